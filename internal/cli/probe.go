package cli

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/dyngen/internal/emit"
	"github.com/roach88/dyngen/internal/eval"
	"github.com/roach88/dyngen/internal/ir"
	"github.com/roach88/dyngen/internal/solver"
)

// ProbeOptions holds flags for the probe command.
type ProbeOptions struct {
	*RootOptions
	Class      string
	Regime     string
	Time       float64
	State      []float64
	Derivative []float64
	Set        map[string]string
	Fire       bool
}

// ProbeTransition describes the transition taken by --fire.
type ProbeTransition struct {
	Index  int       `json:"index"`
	Target string    `json:"target"`
	State  []float64 `json:"state"`
}

// ProbeResult is what the kernel functions compute at one point.
type ProbeResult struct {
	Model      string           `json:"model"`
	Regime     string           `json:"regime"`
	Time       float64          `json:"time"`
	State      []float64        `json:"state"`
	Derivative []float64        `json:"derivative"`
	Residual   []float64        `json:"residual"`
	Flags      []bool           `json:"flags"`
	Transition *ProbeTransition `json:"transition,omitempty"`
}

func (r ProbeResult) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s regime %s at t=%g\n", r.Model, r.Regime, r.Time)
	fmt.Fprintf(&b, "  state:      %v\n", r.State)
	fmt.Fprintf(&b, "  derivative: %v\n", r.Derivative)
	fmt.Fprintf(&b, "  residual:   %v\n", r.Residual)
	fmt.Fprintf(&b, "  flags:      %v", r.Flags)
	if r.Transition != nil {
		fmt.Fprintf(&b, "\n  fired %d -> %s: %v", r.Transition.Index, r.Transition.Target, r.Transition.State)
	}
	return b.String()
}

// NewProbeCommand creates the probe command.
func NewProbeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ProbeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "probe <model.cue>",
		Short: "Evaluate a regime's residual and trigger flags at one point",
		Long: `Evaluate what the generated kernel would compute for one regime at a
given time and state, without compiling it:

  residual  F(t, y, y') = g(t, y) - y', with components below the
            configured absolute tolerance zeroed
  flags     the regime's trigger flag array, one entry per transition;
            an entry is false while its guard holds

With --fire the first transition whose guard holds is applied to the
state.

Examples:
  dyngen probe models/izhikevich.cue --regime subthreshold \
    --state -70,-14 --set a=0.02,b=0.2,c=-65,d=8,Isyn=0,theta=30`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runProbe(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Class, "class", "", "model class when the source declares several")
	cmd.Flags().StringVar(&opts.Regime, "regime", "", "regime to probe (default: first regime)")
	cmd.Flags().Float64Var(&opts.Time, "time", 0, "simulation time t")
	cmd.Flags().Float64SliceVar(&opts.State, "state", nil, "state vector y in declaration order")
	cmd.Flags().Float64SliceVar(&opts.Derivative, "derivative", nil, "derivative vector y' (default: zeros)")
	cmd.Flags().StringToStringVar(&opts.Set, "set", nil, "symbol values as name=value")
	cmd.Flags().BoolVar(&opts.Fire, "fire", false, "apply the first transition whose guard holds")

	return cmd
}

func runProbe(opts *ProbeOptions, path string, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)

	bindings, err := parseBindings(opts.Set)
	if err != nil {
		formatter.Error(ErrCodeGeneric, err.Error(), nil)
		return WrapExitError(ExitCommandError, "invalid --set", err)
	}

	m, err := LoadModel(path, opts.Class)
	if err != nil {
		return formatter.Fail(ExitCommandError, "failed to load model", err)
	}

	res, err := probe(m, opts, bindings, opts.cfg().Solver.WithDefaults())
	if err != nil {
		return formatter.Fail(ExitFailure, "probe failed", err)
	}
	return formatter.Success(res)
}

func probe(m *ir.ModelClass, opts *ProbeOptions, b eval.Bindings, settings solver.Settings) (*ProbeResult, error) {
	if len(m.Regimes) == 0 {
		return nil, fmt.Errorf("model %s has no regimes", m.Name)
	}
	regime := firstNonEmpty(opts.Regime, m.Regimes[0].Name)
	r, ok := m.Regime(regime)
	if !ok {
		return nil, fmt.Errorf("unknown regime %q", regime)
	}

	n := len(m.StateVariables)
	if len(opts.State) != n {
		return nil, fmt.Errorf("model %s has %d state variables, got %d state values", m.Name, n, len(opts.State))
	}
	yp := opts.Derivative
	if yp == nil {
		yp = make([]float64, n)
	}
	if len(yp) != n {
		return nil, fmt.Errorf("model %s has %d state variables, got %d derivative values", m.Name, n, len(yp))
	}

	ev := eval.New(m)
	dyn, err := ev.Dynamics(regime, b)
	if err != nil {
		return nil, err
	}
	f := make([]float64, n)
	y1 := make([]float64, n)
	if err := solver.Escalate(m.Name, solver.Residual(dyn, opts.Time, opts.State, yp, f, y1)); err != nil {
		return nil, err
	}
	solver.AdjustZeroCrossings(f, settings.AbsTol)

	flags, err := emit.Arm(r, ev.Guard(opts.Time, opts.State, b))
	if err != nil {
		return nil, err
	}

	res := &ProbeResult{
		Model:      m.Name,
		Regime:     regime,
		Time:       opts.Time,
		State:      opts.State,
		Derivative: yp,
		Residual:   f,
		Flags:      flags,
	}

	if opts.Fire {
		for i, flag := range flags {
			if flag {
				continue
			}
			y := append([]float64(nil), opts.State...)
			target, err := ev.Transition(r.OnConditions[i], opts.Time, y, b)
			if err != nil {
				return nil, err
			}
			res.Transition = &ProbeTransition{Index: i, Target: target, State: y}
			break
		}
	}
	return res, nil
}

func parseBindings(set map[string]string) (eval.Bindings, error) {
	names := make([]string, 0, len(set))
	for name := range set {
		names = append(names, name)
	}
	sort.Strings(names)

	b := make(eval.Bindings, len(set))
	for _, name := range names {
		v, err := strconv.ParseFloat(strings.TrimSpace(set[name]), 64)
		if err != nil {
			return nil, fmt.Errorf("value of %s: %w", name, err)
		}
		b[name] = v
	}
	return b, nil
}
