package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/dyngen/internal/compiler"
	"github.com/roach88/dyngen/internal/harness"
	"github.com/roach88/dyngen/internal/ir"
	"github.com/roach88/dyngen/internal/resolve"
)

// RequiredOptions holds flags for the required command.
type RequiredOptions struct {
	*RootOptions
	Class   string
	Regime  string
	Expr    string
	Aliases []string
	Exclude []string
}

// RequiredGroup is the resolved symbol set of one expression group.
type RequiredGroup struct {
	Group    string         `json:"group"`
	Required ir.RequiredSet `json:"required"`
}

// RequiredResult is the output of the required command.
type RequiredResult struct {
	Model  string          `json:"model"`
	Groups []RequiredGroup `json:"groups"`
}

func (r RequiredResult) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s", r.Model)
	for _, g := range r.Groups {
		fmt.Fprintf(&b, "\n  %s:", g.Group)
		keys := g.Required.Keys()
		if len(keys) == 0 {
			b.WriteString(" (none)")
		}
		for _, k := range keys {
			fmt.Fprintf(&b, " %s", k)
		}
	}
	return b.String()
}

// NewRequiredCommand creates the required command.
func NewRequiredCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RequiredOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "required <model.cue>",
		Short: "Show the symbols an expression group requires",
		Long: `Resolve expression groups to the minimal set of symbols they need,
following alias definitions transitively.

Without --expr or --alias, every regime is listed: its dynamics group
and each of its transitions (trigger plus state assignments).

Examples:
  dyngen required models/izhikevich.cue
  dyngen required models/izhikevich.cue --regime subthreshold
  dyngen required models/izhikevich.cue --expr "V + recovery"
  dyngen required models/izhikevich.cue --alias recovery --exclude parameter:a`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRequired(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Class, "class", "", "model class when the source declares several")
	cmd.Flags().StringVar(&opts.Regime, "regime", "", "only list this regime")
	cmd.Flags().StringVar(&opts.Expr, "expr", "", "resolve a single expression")
	cmd.Flags().StringArrayVar(&opts.Aliases, "alias", nil, "resolve alias names (repeatable)")
	cmd.Flags().StringArrayVar(&opts.Exclude, "exclude", nil, "remove category:name from every result (repeatable)")

	return cmd
}

func runRequired(opts *RequiredOptions, path string, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)

	exclude, err := harness.ParseKeys(opts.Exclude)
	if err != nil {
		formatter.Error(ErrCodeGeneric, err.Error(), nil)
		return WrapExitError(ExitCommandError, "invalid --exclude", err)
	}

	m, err := LoadModel(path, opts.Class)
	if err != nil {
		return formatter.Fail(ExitCommandError, "failed to load model", err)
	}

	groups, err := requiredGroups(m, opts)
	if err != nil {
		return formatter.Fail(ExitFailure, "failed to resolve", err)
	}
	for i := range groups {
		groups[i].Required = resolve.Diff(groups[i].Required, ir.RequiredSet{}, exclude)
	}
	return formatter.Success(RequiredResult{Model: m.Name, Groups: groups})
}

func requiredGroups(m *ir.ModelClass, opts *RequiredOptions) ([]RequiredGroup, error) {
	r := resolve.New(m)

	if opts.Expr != "" {
		expr, err := compiler.ParseExpression(opts.Expr)
		if err != nil {
			return nil, err
		}
		rs, err := r.RequiredFor([]ir.Expression{expr})
		if err != nil {
			return nil, err
		}
		return []RequiredGroup{{Group: "expr", Required: rs}}, nil
	}

	if len(opts.Aliases) > 0 {
		rs, err := r.RequiredForAliases(opts.Aliases...)
		if err != nil {
			return nil, err
		}
		return []RequiredGroup{{Group: "aliases", Required: rs}}, nil
	}

	regimes := m.Regimes
	if opts.Regime != "" {
		reg, ok := m.Regime(opts.Regime)
		if !ok {
			return nil, fmt.Errorf("unknown regime %q", opts.Regime)
		}
		regimes = []ir.Regime{*reg}
	}

	var groups []RequiredGroup
	for _, reg := range regimes {
		rs, err := r.RequiredFor(reg.DerivativeExpressions())
		if err != nil {
			return nil, err
		}
		groups = append(groups, RequiredGroup{Group: "regime:" + reg.Name + "/dynamics", Required: rs})

		for i, oc := range reg.OnConditions {
			group := []ir.Expression{oc.Trigger}
			for _, a := range oc.StateAssignments {
				group = append(group, a.Expr)
			}
			rs, err := r.RequiredFor(group)
			if err != nil {
				return nil, err
			}
			groups = append(groups, RequiredGroup{
				Group:    fmt.Sprintf("regime:%s/transition:%d->%s", reg.Name, i, oc.Target),
				Required: rs,
			})
		}
	}
	return groups, nil
}
