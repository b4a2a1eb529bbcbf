package harness

import (
	"fmt"
	"math"
	"strings"

	"github.com/roach88/dyngen/internal/emit"
	"github.com/roach88/dyngen/internal/eval"
	"github.com/roach88/dyngen/internal/ir"
	"github.com/roach88/dyngen/internal/solver"
	"github.com/roach88/dyngen/internal/store"
)

// DefaultTolerance bounds numeric comparisons when an assertion sets none.
const DefaultTolerance = 1e-9

// AssertionError is returned when an assertion fails.
// It includes detailed context to help debug the failure.
type AssertionError struct {
	Type     string           // Assertion type for categorization
	Expected string           // Human-readable expected outcome
	Actual   string           // Human-readable actual outcome
	Scopes   []store.Emission // Recorded scopes for debugging context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if len(e.Scopes) > 0 {
		fmt.Fprintf(&buf, "\nScopes:\n")
		for _, s := range e.Scopes {
			fmt.Fprintf(&buf, "  [%d] %s %s\n", s.Ordinal, s.Scope, keyList(s.Declared))
		}
	}

	return buf.String()
}

// AssertionContext provides what behavioural assertions evaluate against.
type AssertionContext struct {
	Model *ir.ModelClass
	eval  *eval.Evaluator
}

func (c *AssertionContext) evaluator() *eval.Evaluator {
	if c.eval == nil {
		c.eval = eval.New(c.Model)
	}
	return c.eval
}

// EvaluateAssertions runs every assertion and returns the failure messages.
func EvaluateAssertions(result *Result, assertions []Assertion, actx *AssertionContext) []string {
	var errs []string
	for i, a := range assertions {
		var err error
		switch a.Type {
		case AssertSourceContains:
			err = assertSourceContains(result, a)
		case AssertScopeDeclares:
			err = assertScopeDeclares(result, a)
		case AssertScopeOrder:
			err = assertScopeOrder(result, a)
		case AssertScopeCount:
			err = assertScopeCount(result, a)
		case AssertGenerationError:
			err = assertGenerationError(result, a)
		case AssertResidual:
			err = assertResidual(actx, a)
		case AssertFlags:
			err = assertFlags(actx, a)
		default:
			err = fmt.Errorf("unknown assertion type %q", a.Type)
		}
		if err != nil {
			errs = append(errs, fmt.Sprintf("assertion %d (%s): %v", i, a.Type, err))
		}
	}
	return errs
}

func assertSourceContains(result *Result, a Assertion) error {
	if strings.Contains(result.Source(), a.Text) {
		return nil
	}
	return &AssertionError{
		Type:     AssertSourceContains,
		Expected: fmt.Sprintf("source containing %q", a.Text),
		Actual:   "not found in kernel source",
	}
}

// assertScopeDeclares checks that a scope declared exactly the listed
// symbols, no more and no fewer.
func assertScopeDeclares(result *Result, a Assertion) error {
	keys, err := ParseKeys(a.Symbols)
	if err != nil {
		return err
	}
	want := ir.NewRequiredSet(keys...)
	for _, s := range result.Emissions {
		if s.Scope != a.Scope {
			continue
		}
		if s.Declared.Equal(want) {
			return nil
		}
		return &AssertionError{
			Type:     AssertScopeDeclares,
			Expected: fmt.Sprintf("%s declares %s", a.Scope, keyList(want)),
			Actual:   fmt.Sprintf("declares %s", keyList(s.Declared)),
			Scopes:   result.Emissions,
		}
	}
	return &AssertionError{
		Type:     AssertScopeDeclares,
		Expected: fmt.Sprintf("scope %s", a.Scope),
		Actual:   "scope not opened",
		Scopes:   result.Emissions,
	}
}

// assertScopeOrder checks that scopes were opened in the listed order.
// Intervening scopes are allowed.
func assertScopeOrder(result *Result, a Assertion) error {
	next := 0
	for _, s := range result.Emissions {
		if next < len(a.Scopes) && s.Scope == a.Scopes[next] {
			next++
		}
	}
	if next == len(a.Scopes) {
		return nil
	}
	return &AssertionError{
		Type:     AssertScopeOrder,
		Expected: fmt.Sprintf("scopes in order: %v", a.Scopes),
		Actual:   fmt.Sprintf("%s not found after %v", a.Scopes[next], a.Scopes[:next]),
		Scopes:   result.Emissions,
	}
}

func assertScopeCount(result *Result, a Assertion) error {
	if len(result.Emissions) == a.Count {
		return nil
	}
	return &AssertionError{
		Type:     AssertScopeCount,
		Expected: fmt.Sprintf("%d scopes", a.Count),
		Actual:   fmt.Sprintf("%d scopes", len(result.Emissions)),
		Scopes:   result.Emissions,
	}
}

func assertGenerationError(result *Result, a Assertion) error {
	if result.GenerationError == nil {
		return &AssertionError{
			Type:     AssertGenerationError,
			Expected: fmt.Sprintf("generation to fail with %s", a.Error),
			Actual:   "generation succeeded",
		}
	}
	if result.ErrorKind != a.Error {
		return &AssertionError{
			Type:     AssertGenerationError,
			Expected: a.Error,
			Actual:   fmt.Sprintf("%s: %v", result.ErrorKind, result.GenerationError),
		}
	}
	if result.Kernel != nil {
		return &AssertionError{
			Type:     AssertGenerationError,
			Expected: "no kernel",
			Actual:   "kernel produced despite failure",
		}
	}
	return nil
}

// assertResidual evaluates the regime's residual f = dynamics(y) - yp.
func assertResidual(actx *AssertionContext, a Assertion) error {
	dyn, err := actx.evaluator().Dynamics(a.Regime, eval.Bindings(a.Set))
	if err != nil {
		return err
	}
	yp := a.Derivative
	if yp == nil {
		yp = make([]float64, len(a.State))
	}
	f := make([]float64, len(a.State))
	y1 := make([]float64, len(a.State))
	if err := solver.Escalate(actx.Model.Name, solver.Residual(dyn, a.Time, a.State, yp, f, y1)); err != nil {
		return err
	}
	if len(f) != len(a.Residual) || !within(f, a.Residual, tolerance(a)) {
		return &AssertionError{
			Type:     AssertResidual,
			Expected: fmt.Sprintf("%v", a.Residual),
			Actual:   fmt.Sprintf("%v", f),
		}
	}
	return nil
}

func assertFlags(actx *AssertionContext, a Assertion) error {
	r, ok := actx.Model.Regime(a.Regime)
	if !ok {
		return fmt.Errorf("unknown regime %q", a.Regime)
	}
	flags, err := emit.Arm(r, actx.evaluator().Guard(a.Time, a.State, eval.Bindings(a.Set)))
	if err != nil {
		return err
	}
	if fmt.Sprint(flags) != fmt.Sprint(a.Flags) {
		return &AssertionError{
			Type:     AssertFlags,
			Expected: fmt.Sprintf("%v", a.Flags),
			Actual:   fmt.Sprintf("%v", flags),
		}
	}
	return nil
}

func tolerance(a Assertion) float64 {
	if a.Tolerance > 0 {
		return a.Tolerance
	}
	return DefaultTolerance
}

func within(got, want []float64, tol float64) bool {
	for i := range got {
		if math.Abs(got[i]-want[i]) > tol {
			return false
		}
	}
	return true
}

func keyList(rs ir.RequiredSet) string {
	keys := rs.Keys()
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = k.String()
	}
	return "[" + strings.Join(parts, " ") + "]"
}
