package harness

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/dyngen/internal/ir"
	"github.com/roach88/dyngen/internal/kernel"
	"github.com/roach88/dyngen/internal/store"
	"github.com/roach88/dyngen/internal/testutil"
)

func emissionsResult() *Result {
	r := NewResult()
	r.Kernel = &kernel.Kernel{Source: "int main() {}\n"}
	r.Emissions = []store.Emission{
		{Ordinal: 0, Scope: "M_dynamics", Declared: ir.NewRequiredSet(ir.Key(ir.StateVariable, "V"))},
		{Ordinal: 1, Scope: "M_dynamics/regime:on"},
		{Ordinal: 2, Scope: "M_triggers/regime:on", Declared: ir.NewRequiredSet(ir.Key(ir.Parameter, "theta"))},
	}
	return r
}

func TestAssertScopeDeclares(t *testing.T) {
	r := emissionsResult()

	assert.NoError(t, assertScopeDeclares(r, Assertion{Scope: "M_dynamics", Symbols: []string{"state_variable:V"}}))
	assert.NoError(t, assertScopeDeclares(r, Assertion{Scope: "M_dynamics/regime:on"}))

	err := assertScopeDeclares(r, Assertion{Scope: "M_dynamics", Symbols: []string{"state_variable:V", "parameter:a"}})
	var ae *AssertionError
	require.True(t, errors.As(err, &ae))
	assert.Equal(t, "declares [state_variable:V]", ae.Actual)
	assert.Contains(t, ae.Error(), "[2] M_triggers/regime:on [parameter:theta]")

	err = assertScopeDeclares(r, Assertion{Scope: "M_transition"})
	require.True(t, errors.As(err, &ae))
	assert.Equal(t, "scope not opened", ae.Actual)
}

func TestAssertScopeOrder(t *testing.T) {
	r := emissionsResult()

	assert.NoError(t, assertScopeOrder(r, Assertion{Scopes: []string{"M_dynamics", "M_triggers/regime:on"}}))
	assert.Error(t, assertScopeOrder(r, Assertion{Scopes: []string{"M_triggers/regime:on", "M_dynamics"}}))
	assert.Error(t, assertScopeOrder(r, Assertion{Scopes: []string{"M_transition"}}))
}

func TestAssertScopeCountAndSource(t *testing.T) {
	r := emissionsResult()

	assert.NoError(t, assertScopeCount(r, Assertion{Count: 3}))
	assert.Error(t, assertScopeCount(r, Assertion{Count: 2}))
	assert.NoError(t, assertSourceContains(r, Assertion{Text: "int main()"}))
	assert.Error(t, assertSourceContains(r, Assertion{Text: "void"}))
}

func TestAssertGenerationError(t *testing.T) {
	r := emissionsResult()
	assert.Error(t, assertGenerationError(r, Assertion{Error: KindOther}), "generation succeeded")

	r.Kernel = nil
	r.GenerationError = errors.New("boom")
	r.ErrorKind = KindOther
	assert.NoError(t, assertGenerationError(r, Assertion{Error: KindOther}))
	assert.Error(t, assertGenerationError(r, Assertion{Error: KindCircularDependency}))
}

func TestAssertResidualAndFlags(t *testing.T) {
	actx := &AssertionContext{Model: testutil.Izhikevich()}
	set := map[string]float64{"a": 0.02, "b": 0.2, "Isyn": 10, "noise": 0}

	ok := Assertion{Regime: "subthreshold", Set: set, State: []float64{-70, -14}, Residual: []float64{10, 0}}
	assert.NoError(t, assertResidual(actx, ok))

	off := ok
	off.Residual = []float64{10.1, 0}
	assert.Error(t, assertResidual(actx, off))

	loose := off
	loose.Tolerance = 0.5
	assert.NoError(t, assertResidual(actx, loose))

	unbound := ok
	unbound.Set = map[string]float64{}
	assert.Error(t, assertResidual(actx, unbound), "evaluation failure escalates")

	flags := Assertion{Regime: "subthreshold", Set: map[string]float64{"theta": 30}, State: []float64{-70, -14}, Flags: []bool{true}}
	assert.NoError(t, assertFlags(actx, flags))
	flags.Flags = []bool{false}
	assert.Error(t, assertFlags(actx, flags))
	flags.Regime = "bursting"
	assert.Error(t, assertFlags(actx, flags))
}

func TestEvaluateAssertions(t *testing.T) {
	r := emissionsResult()
	errs := EvaluateAssertions(r, []Assertion{
		{Type: AssertScopeCount, Count: 3},
		{Type: AssertSourceContains, Text: "missing"},
		{Type: "bogus"},
	}, &AssertionContext{})

	require.Len(t, errs, 2)
	assert.Contains(t, errs[0], "assertion 1 (source_contains)")
	assert.Contains(t, errs[1], "unknown assertion type")
}
