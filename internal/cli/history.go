package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/dyngen/internal/store"
)

// HistoryOptions holds flags for the history command.
type HistoryOptions struct {
	*RootOptions
	Store string
	Model string
	Limit int
}

// HistoryResult lists recorded builds.
type HistoryResult struct {
	Builds []store.Build `json:"builds"`
}

func (r HistoryResult) String() string {
	if len(r.Builds) == 0 {
		return "No builds recorded."
	}
	var b strings.Builder
	for i, build := range r.Builds {
		if i > 0 {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "%4d  %s  %-10s %-13s %-9s %s",
			build.Seq, build.CreatedAt.Format("2006-01-02T15:04:05Z"), build.Model, build.Mode, build.Status, build.ID)
		if build.Error != "" {
			fmt.Fprintf(&b, "\n      error: %s", build.Error)
		}
	}
	return b.String()
}

// BuildDetail is one build with the scopes it emitted.
type BuildDetail struct {
	Build     store.Build      `json:"build"`
	Emissions []store.Emission `json:"emissions"`
}

func (d BuildDetail) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s %s (%s)\n", d.Build.ID, d.Build.Model, d.Build.Status, d.Build.Mode)
	fmt.Fprintf(&b, "  dir:    %s\n", d.Build.Dir)
	fmt.Fprintf(&b, "  model:  %s\n", d.Build.ModelHash)
	if d.Build.KernelHash != "" {
		fmt.Fprintf(&b, "  kernel: %s\n", d.Build.KernelHash)
	}
	fmt.Fprintf(&b, "  scopes: %d", len(d.Emissions))
	for _, e := range d.Emissions {
		fmt.Fprintf(&b, "\n    %3d %s", e.Ordinal, e.Scope)
		for _, k := range e.Declared.Keys() {
			fmt.Fprintf(&b, " %s", k)
		}
	}
	return b.String()
}

// NewHistoryCommand creates the history command.
func NewHistoryCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &HistoryOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "history [build-id]",
		Short: "Show recorded builds",
		Long: `List recorded builds in sequence order, or show one build with the
symbols each of its scopes declared.

Examples:
  dyngen history
  dyngen history --model Izhikevich --limit 5
  dyngen history 01928c5e-7d3a-7b1f-9c2e-3f4a5b6c7d8e --format json`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			id := ""
			if len(args) == 1 {
				id = args[0]
			}
			return runHistory(cmd.Context(), opts, id, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Store, "store", "", "build history database (default from config)")
	cmd.Flags().StringVar(&opts.Model, "model", "", "only list builds of this model class")
	cmd.Flags().IntVar(&opts.Limit, "limit", 20, "most recent builds to list (0 for all)")

	return cmd
}

func runHistory(ctx context.Context, opts *HistoryOptions, id string, cmd *cobra.Command) error {
	if ctx == nil {
		ctx = context.Background()
	}
	formatter := opts.formatter(cmd)

	path := firstNonEmpty(opts.Store, opts.cfg().Store)
	if _, err := os.Stat(path); os.IsNotExist(err) {
		formatter.Error(ErrCodeNotFound, fmt.Sprintf("build history not found: %s", path), nil)
		return NewExitError(ExitCommandError, fmt.Sprintf("build history not found: %s", path))
	}
	st, err := store.Open(path)
	if err != nil {
		formatter.Error(ErrCodeStore, err.Error(), nil)
		return WrapExitError(ExitCommandError, "failed to open build history", err)
	}
	defer st.Close()

	if id == "" {
		builds, err := st.ListBuilds(ctx, opts.Model, opts.Limit)
		if err != nil {
			formatter.Error(ErrCodeStore, err.Error(), nil)
			return WrapExitError(ExitCommandError, "failed to list builds", err)
		}
		return formatter.Success(HistoryResult{Builds: builds})
	}

	b, err := st.ReadBuild(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		formatter.Error(ErrCodeNotFound, fmt.Sprintf("build %s not found", id), nil)
		return NewExitError(ExitCommandError, fmt.Sprintf("build %s not found", id))
	}
	if err != nil {
		formatter.Error(ErrCodeStore, err.Error(), nil)
		return WrapExitError(ExitCommandError, "failed to read build", err)
	}
	emissions, err := st.ReadEmissions(ctx, id)
	if err != nil {
		formatter.Error(ErrCodeStore, err.Error(), nil)
		return WrapExitError(ExitCommandError, "failed to read emissions", err)
	}
	return formatter.Success(BuildDetail{Build: b, Emissions: emissions})
}
