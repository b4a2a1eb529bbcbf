package emit

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/dyngen/internal/compiler"
	"github.com/roach88/dyngen/internal/ir"
	"github.com/roach88/dyngen/internal/resolve"
	"github.com/roach88/dyngen/internal/testutil"
	"github.com/roach88/dyngen/internal/units"
)

func newEmitter(m *ir.ModelClass, opts Options) *Emitter {
	return New(m, units.NewDeclared(m), opts)
}

func TestDeclarationsFullSubthreshold(t *testing.T) {
	m := testutil.Izhikevich()
	inc, err := resolve.New(m).RequiredFor([]ir.Expression{
		compiler.MustParseExpression("drive + noise"),
		compiler.MustParseExpression("recovery"),
	})
	require.NoError(t, err)

	got, err := newEmitter(m, Options{}).Declarations(inc)
	require.NoError(t, err)

	want := "" +
		"  const double U = y[1];  // (mV/ms)\n" +
		"  const double V = y[0];  // (mV)\n" +
		"  const double a = node.P_.a;  // (1/ms)\n" +
		"  const double b = node.P_.b;  // (1/ms)\n" +
		"  const double Isyn = node.B_.Isyn;  // (mV/ms)\n" +
		"  const double k1 = 0.04;  // (1/(mV*ms))\n" +
		"  const double k2 = 5.0;  // (1/ms)\n" +
		"  const double k3 = 140.0;  // (mV/ms)\n" +
		"  const double noise = 0.5 * node.rng_normal(0.0, 1.0);  // (mV/ms)\n" +
		"  const double quad = k1*V*V + k2*V + k3;  // (mV/ms)\n" +
		"  const double drive = quad - U + Isyn;  // (mV/ms)\n" +
		"  const double recovery = a*(b*V - U);  // (mV/ms)\n"
	assert.Equal(t, want, got)
}

func TestDeclarationsEmptySet(t *testing.T) {
	m := testutil.Izhikevich()
	got, err := newEmitter(m, Options{Debug: true}).Declarations(ir.RequiredSet{})
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestDeclarationsOmitsUnitlessComment(t *testing.T) {
	m := testutil.AliasChain([]string{"x"}, map[string]string{"x": "p + q"})

	got, err := newEmitter(m, Options{Indent: "\t"}).Declarations(ir.NewRequiredSet(ir.Key(ir.Alias, "x")))
	require.NoError(t, err)
	assert.Equal(t, "\tconst double x = p + q;\n", got)
}

func TestDeclarationsDebugTrace(t *testing.T) {
	m := testutil.Izhikevich()
	inc := ir.NewRequiredSet(ir.Key(ir.Parameter, "theta"))

	got, err := newEmitter(m, Options{Debug: true}).Declarations(inc)
	require.NoError(t, err)
	assert.Equal(t, ""+
		"  const double theta = node.P_.theta;  // (mV)\n"+
		"  std::cerr << \"theta = \" << theta << std::endl;\n", got)

	plain, err := newEmitter(m, Options{}).Declarations(inc)
	require.NoError(t, err)
	assert.NotContains(t, plain, "std::cerr")
}

func TestDeclarationsPiecewiseRejected(t *testing.T) {
	m := testutil.AliasChain(nil, nil)
	m.Aliases = []ir.AliasDecl{{
		Name: "gate",
		RHS: ir.Piecewise{
			Pieces:    []ir.Piece{{Condition: compiler.MustParseExpression("p > 0"), Value: compiler.MustParseExpression("1")}},
			Otherwise: compiler.MustParseExpression("0"),
		},
	}}

	got, err := newEmitter(m, Options{}).Declarations(ir.NewRequiredSet(ir.Key(ir.Alias, "gate"), ir.Key(ir.Parameter, "p")))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrPiecewiseUnsupported))
	assert.Empty(t, got, "nothing is emitted on failure")
}

func TestDeclarationsDeterministic(t *testing.T) {
	m := testutil.Izhikevich()
	inc, err := resolve.New(m).RequiredForAliases("drive", "recovery")
	require.NoError(t, err)

	e := newEmitter(m, Options{Debug: true})
	first, err := e.Declarations(inc)
	require.NoError(t, err)
	second, err := e.Declarations(inc)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

// shortAnnotator drops every result to prove the emitter checks the
// annotator's output shape.
type shortAnnotator struct{ units.Annotator }

func (shortAnnotator) AssignUnitsToVariables([]ir.SymbolKey) ([]units.VariableUnit, error) {
	return nil, nil
}

func (shortAnnotator) AssignUnitsToConstants([]string) ([]units.ScaledValue, error) {
	return nil, nil
}

func (shortAnnotator) ScaleAliases([]string) ([]units.ScaledAlias, error) {
	return nil, nil
}

func TestDeclarationsAnnotatorShapeChecked(t *testing.T) {
	m := testutil.Izhikevich()
	e := New(m, shortAnnotator{units.NewDeclared(m)}, Options{})

	tests := []struct {
		name string
		key  ir.SymbolKey
		want string
	}{
		{"variables", ir.Key(ir.Parameter, "a"), "0 units for 1 parameters"},
		{"constants", ir.Key(ir.Constant, "k1"), "0 values for 1 constants"},
		{"aliases", ir.Key(ir.Alias, "recovery"), "0 right-hand sides for 1 aliases"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := e.Declarations(ir.NewRequiredSet(tt.key))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestDeclarationsAliasIntegerLiterals(t *testing.T) {
	m := testutil.AliasChain([]string{"half"}, map[string]string{"half": "1/2 * p"})
	got, err := newEmitter(m, Options{}).Declarations(ir.NewRequiredSet(ir.Key(ir.Alias, "half")))
	require.NoError(t, err)
	assert.Equal(t, "  const double half = 1.0/2.0 * p;\n", got)
}
