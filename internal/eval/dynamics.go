package eval

import (
	"fmt"
	"log/slog"

	"github.com/roach88/dyngen/internal/emit"
	"github.com/roach88/dyngen/internal/ir"
	"github.com/roach88/dyngen/internal/solver"
)

// StatusEvaluationFailure is the dynamics status returned when a derivative
// cannot be evaluated.
const StatusEvaluationFailure = -1

// Dynamics adapts a regime's time derivatives to a solver.Dynamics. State
// values are read from y by slot and override the same names in b; state
// variables without a derivative in the regime have y1 = 0.
//
// Evaluation errors are logged and reported as StatusEvaluationFailure.
func (e *Evaluator) Dynamics(regime string, b Bindings) (solver.Dynamics, error) {
	r, ok := e.model.Regime(regime)
	if !ok {
		return nil, fmt.Errorf("unknown regime %q", regime)
	}
	states := e.model.Names(ir.StateVariable)
	exprs := make([]*ir.Expression, len(states))
	for i, name := range states {
		if d, ok := r.Derivative(name); ok {
			exprs[i] = &d
		}
	}

	return func(t float64, y, y1 []float64) int {
		if len(y) != len(states) || len(y1) != len(states) {
			return solver.StatusLengthMismatch
		}
		vals := e.withState(b, y)
		for i, expr := range exprs {
			if expr == nil {
				y1[i] = 0
				continue
			}
			v, err := e.Number(*expr, t, vals)
			if err != nil {
				slog.Debug("derivative evaluation failed",
					"model", e.model.Name,
					"regime", regime,
					"variable", states[i],
					"error", err)
				return StatusEvaluationFailure
			}
			y1[i] = v
		}
		return 0
	}, nil
}

// Guard returns an emit.GuardEvaluator that evaluates triggers at time t
// with state y.
func (e *Evaluator) Guard(t float64, y []float64, b Bindings) emit.GuardEvaluator {
	vals := e.withState(b, y)
	return func(expr ir.Expression) (bool, error) {
		return e.Bool(expr, t, vals)
	}
}

// Transition applies the state assignments of a regime's on-condition to
// y, in place, and returns the target regime. Every right-hand side is
// evaluated against the pre-transition state before any slot is written.
func (e *Evaluator) Transition(oc ir.OnCondition, t float64, y []float64, b Bindings) (string, error) {
	vals := e.withState(b, y)
	next := make(map[int]float64, len(oc.StateAssignments))
	for _, a := range oc.StateAssignments {
		slot := e.model.StateIndex(a.Variable)
		if slot < 0 || slot >= len(y) {
			return "", fmt.Errorf("assignment to unknown state variable %q", a.Variable)
		}
		v, err := e.Number(a.Expr, t, vals)
		if err != nil {
			return "", err
		}
		next[slot] = v
	}
	for slot, v := range next {
		y[slot] = v
	}
	return oc.Target, nil
}

func (e *Evaluator) withState(b Bindings, y []float64) Bindings {
	vals := b.Clone()
	for i, name := range e.model.Names(ir.StateVariable) {
		if i < len(y) {
			vals[name] = y[i]
		}
	}
	return vals
}
