package eval

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/dyngen/internal/compiler"
	"github.com/roach88/dyngen/internal/emit"
	"github.com/roach88/dyngen/internal/solver"
	"github.com/roach88/dyngen/internal/testutil"
)

func restingBindings() Bindings {
	return Bindings{
		"a": 0.02, "b": 0.2, "c": -65, "d": 8,
		"theta": 30, "t_ref": 2,
		"Isyn":  10,
		"noise": 0,
		"V":     -70, "U": -14,
	}
}

func TestNumberExpandsAliases(t *testing.T) {
	e := New(testutil.Izhikevich())

	v, err := e.Number(compiler.MustParseExpression("quad"), 0, restingBindings())
	require.NoError(t, err)
	assert.InDelta(t, -14.0, v, 1e-12)

	v, err = e.Number(compiler.MustParseExpression("drive + noise"), 0, restingBindings())
	require.NoError(t, err)
	assert.InDelta(t, 10.0, v, 1e-12)
}

func TestNumberConstantOverride(t *testing.T) {
	e := New(testutil.Izhikevich())
	b := restingBindings()
	b["k3"] = 0

	v, err := e.Number(compiler.MustParseExpression("k3 + 1"), 0, b)
	require.NoError(t, err)
	assert.InDelta(t, 1.0, v, 1e-12)
}

func TestNumberFunctions(t *testing.T) {
	e := New(testutil.Izhikevich())

	tests := []struct {
		expr string
		want float64
	}{
		{"exp(0) + sqrt(V*V)", 71},
		{"fabs(V) / 7", 10},
		{"pow(2, 3) + floor(1.5) + ceil(0.2)", 10},
		{"t * 2", 3},
	}
	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			v, err := e.Number(compiler.MustParseExpression(tt.expr), 1.5, restingBindings())
			require.NoError(t, err)
			assert.InDelta(t, tt.want, v, 1e-9)
		})
	}
}

func TestNumberUnbound(t *testing.T) {
	e := New(testutil.Izhikevich())
	b := restingBindings()
	delete(b, "Isyn")
	delete(b, "a")

	_, err := e.Number(compiler.MustParseExpression("drive + recovery"), 0, b)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnbound))
	assert.Contains(t, err.Error(), "parameter:a, port:Isyn")

	var evalErr *Error
	require.True(t, errors.As(err, &evalErr))
	assert.Equal(t, "drive + recovery", evalErr.Expr)
}

func TestNumberRejectsNonFinite(t *testing.T) {
	e := New(testutil.Izhikevich())
	b := restingBindings()
	b["V"] = math.NaN()

	_, err := e.Number(compiler.MustParseExpression("V"), 0, b)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not a finite number")
}

func TestBool(t *testing.T) {
	e := New(testutil.Izhikevich())
	b := restingBindings()

	fired, err := e.Bool(compiler.MustParseExpression("V > theta"), 0, b)
	require.NoError(t, err)
	assert.False(t, fired)

	b["V"] = 35
	fired, err = e.Bool(compiler.MustParseExpression("V > theta"), 0, b)
	require.NoError(t, err)
	assert.True(t, fired)

	_, err = e.Bool(compiler.MustParseExpression("V + theta"), 0, b)
	require.Error(t, err)
}

const gateCUE = `model: Gate: {
	state: x: {}
	parameter: k: {}
	alias: gate: {
		piecewise: [
			{condition: "x < 0", value: "0"},
			{condition: "x < 1", value: "k * x"},
		]
		otherwise: "k"
	}
	regime: on: time_derivative: x: "gate"
}
`

func TestNumberPiecewise(t *testing.T) {
	e := New(testutil.MustCompile(gateCUE, "Gate"))

	tests := []struct {
		x, want float64
	}{
		{-1, 0},
		{0.5, 1},
		{3, 2},
	}
	for _, tt := range tests {
		v, err := e.Number(compiler.MustParseExpression("gate"), 0, Bindings{"x": tt.x, "k": 2})
		require.NoError(t, err)
		assert.InDelta(t, tt.want, v, 1e-12, "x=%v", tt.x)
	}
}

func TestDynamics(t *testing.T) {
	e := New(testutil.Izhikevich())

	dyn, err := e.Dynamics("subthreshold", restingBindings())
	require.NoError(t, err)

	y := []float64{-70, -14}
	yp := []float64{4, 1}
	f := make([]float64, 2)
	y1 := make([]float64, 2)
	status := solver.Residual(dyn, 0, y, yp, f, y1)
	require.Equal(t, 0, status)
	assert.InDeltaSlice(t, []float64{10, 0}, y1, 1e-12)
	assert.InDeltaSlice(t, []float64{6, -1}, f, 1e-12)

	refractory, err := e.Dynamics("refractory", restingBindings())
	require.NoError(t, err)
	y1 = make([]float64, 2)
	require.Equal(t, 0, refractory(0, []float64{-65, -6}, y1))
	assert.InDeltaSlice(t, []float64{0, 0.02 * (0.2*-65 + 6)}, y1, 1e-12)
}

func TestDynamicsFailureStatus(t *testing.T) {
	e := New(testutil.Izhikevich())
	b := restingBindings()
	delete(b, "Isyn")

	dyn, err := e.Dynamics("subthreshold", b)
	require.NoError(t, err)
	assert.Equal(t, StatusEvaluationFailure, dyn(0, []float64{-70, -14}, make([]float64, 2)))
	assert.Equal(t, solver.StatusLengthMismatch, dyn(0, []float64{-70}, make([]float64, 2)))

	assert.Error(t, solver.Escalate("Izhikevich", dyn(0, []float64{-70, -14}, make([]float64, 2))))

	_, err = e.Dynamics("bursting", b)
	assert.Error(t, err)
}

func TestGuardArmsFlags(t *testing.T) {
	m := testutil.Izhikevich()
	e := New(m)
	sub, _ := m.Regime("subthreshold")
	ref, _ := m.Regime("refractory")

	flags, err := emit.Arm(sub, e.Guard(0, []float64{-70, -14}, restingBindings()))
	require.NoError(t, err)
	assert.Equal(t, []bool{true}, flags)

	flags, err = emit.Arm(sub, e.Guard(0, []float64{35, -14}, restingBindings()))
	require.NoError(t, err)
	assert.Equal(t, []bool{false}, flags)

	flags, err = emit.Arm(ref, e.Guard(3, []float64{-65, -6}, restingBindings()))
	require.NoError(t, err)
	assert.Equal(t, []bool{false}, flags)
}

func TestTransition(t *testing.T) {
	m := testutil.Izhikevich()
	e := New(m)
	sub, _ := m.Regime("subthreshold")

	y := []float64{35, -14}
	target, err := e.Transition(sub.OnConditions[0], 0, y, restingBindings())
	require.NoError(t, err)
	assert.Equal(t, "refractory", target)
	assert.InDeltaSlice(t, []float64{-65, -6}, y, 1e-12)
}
