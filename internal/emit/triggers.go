package emit

import (
	"fmt"
	"strings"

	"github.com/roach88/dyngen/internal/compiler"
	"github.com/roach88/dyngen/internal/ir"
)

// FlagArray names the per-regime trigger flag array in the port buffer.
func FlagArray(regime string) string {
	return fmt.Sprintf("%s.%s_on_condition_flags", PortBuffer, regime)
}

// Triggers assigns, for every transition of the regime in declared order,
// flag[i] = !(guard). A set flag means the transition is not yet armed.
func (e *Emitter) Triggers(r *ir.Regime) (string, error) {
	var b strings.Builder
	array := FlagArray(r.Name)
	for i, oc := range r.OnConditions {
		if idx := r.IndexOf(oc); idx != i {
			return "", fmt.Errorf("regime %s: transition %d resolves to index %d", r.Name, i, idx)
		}
		guard, err := compiler.CSource(oc.Trigger.Text)
		if err != nil {
			return "", fmt.Errorf("regime %s transition %d: %w", r.Name, i, err)
		}
		fmt.Fprintf(&b, "%s%s[%d] = !(%s);\n", e.opts.Indent, array, i, guard)
	}
	if e.opts.Debug {
		for i := range r.OnConditions {
			flag := fmt.Sprintf("%s[%d]", array, i)
			e.trace(&b, fmt.Sprintf("%s_on_condition_flags[%d]", r.Name, i), flag)
		}
	}
	return b.String(), nil
}

// GuardEvaluator evaluates a guard expression to a boolean.
type GuardEvaluator func(guard ir.Expression) (bool, error)

// Arm evaluates the trigger flags the generated code computes, in transition
// order: flag[i] = !guard[i].
func Arm(r *ir.Regime, eval GuardEvaluator) ([]bool, error) {
	flags := make([]bool, len(r.OnConditions))
	for i, oc := range r.OnConditions {
		guard, err := eval(oc.Trigger)
		if err != nil {
			return nil, fmt.Errorf("regime %s transition %d: %w", r.Name, i, err)
		}
		flags[r.IndexOf(oc)] = !guard
	}
	return flags, nil
}
