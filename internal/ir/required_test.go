package ir

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRequiredSetSortsAndDedups(t *testing.T) {
	rs := NewRequiredSet(
		Key(Parameter, "b"),
		Key(Parameter, "a"),
		Key(Parameter, "b"),
		Key(StateVariable, "V"),
	)

	assert.Equal(t, []string{"a", "b"}, rs.Parameters)
	assert.Equal(t, []string{"V"}, rs.StateVariables)
	assert.Nil(t, rs.Aliases)
	assert.Equal(t, 3, rs.Len())
}

func TestRequiredSetKeysEmissionOrder(t *testing.T) {
	rs := NewRequiredSet(
		Key(Alias, "x"),
		Key(Constant, "k"),
		Key(StateVariable, "V"),
		Key(Port, "I"),
	)

	assert.Equal(t, []SymbolKey{
		Key(StateVariable, "V"),
		Key(Port, "I"),
		Key(Constant, "k"),
		Key(Alias, "x"),
	}, rs.Keys())
}

func TestRequiredSetAlgebra(t *testing.T) {
	a := NewRequiredSet(Key(Parameter, "p"), Key(Parameter, "q"), Key(Alias, "x"))
	b := NewRequiredSet(Key(Parameter, "q"), Key(Alias, "y"))

	assert.True(t, a.Union(b).Equal(NewRequiredSet(
		Key(Parameter, "p"), Key(Parameter, "q"), Key(Alias, "x"), Key(Alias, "y"),
	)))
	assert.True(t, a.Minus(b).Equal(NewRequiredSet(Key(Parameter, "p"), Key(Alias, "x"))))
	assert.True(t, a.Intersect(b).Equal(NewRequiredSet(Key(Parameter, "q"))))
	assert.True(t, a.Intersect(b).IsSubsetOf(a))
	assert.False(t, a.IsSubsetOf(b))
}

func TestRequiredSetCategoryScopedIdentity(t *testing.T) {
	rs := NewRequiredSet(Key(Parameter, "g"))

	assert.True(t, rs.Contains(Key(Parameter, "g")))
	assert.False(t, rs.Contains(Key(Alias, "g")))
}

func TestScopeHashDeterministic(t *testing.T) {
	rs := NewRequiredSet(Key(Parameter, "a"), Key(Alias, "x"))

	h1, err := ScopeHash("model", rs)
	require.NoError(t, err)
	h2, err := ScopeHash("model", rs)
	require.NoError(t, err)
	h3, err := ScopeHash("regime:spiking", rs)
	require.NoError(t, err)

	assert.Equal(t, h1, h2)
	assert.NotEqual(t, h1, h3)
	assert.Len(t, h1, 64, "SHA-256 hex is 64 characters")
}

func TestModelHashChangesWithContent(t *testing.T) {
	m1 := &ModelClass{Name: "M", Constants: []ConstantDecl{{Name: "k", Value: 1}}}
	m2 := &ModelClass{Name: "M", Constants: []ConstantDecl{{Name: "k", Value: 2}}}

	assert.Equal(t, MustModelHash(m1), MustModelHash(m1))
	assert.NotEqual(t, MustModelHash(m1), MustModelHash(m2))
}

func TestModelLookupAndSlots(t *testing.T) {
	m := &ModelClass{
		StateVariables: []StateVariableDecl{{Name: "V"}, {Name: "U"}},
		Parameters:     []ParameterDecl{{Name: "a"}},
		Aliases:        []AliasDecl{{Name: "dV", RHS: Simple{Expr: NewExpression("V - U", "V", "U")}}},
	}

	c, ok := m.Lookup("a")
	require.True(t, ok)
	assert.Equal(t, Parameter, c)

	_, ok = m.Lookup("t")
	assert.False(t, ok)

	assert.Equal(t, 1, m.StateIndex("U"))
	assert.Equal(t, -1, m.StateIndex("missing"))
	assert.Equal(t, []string{"U", "V"}, m.Aliases[0].References())
}

func TestRegimeIndexOf(t *testing.T) {
	r := Regime{
		Name: "sub",
		OnConditions: []OnCondition{
			{Trigger: NewExpression("V > theta"), Target: "spike"},
			{Trigger: NewExpression("t > t_ref"), Target: "sub"},
		},
	}

	assert.Equal(t, 1, r.IndexOf(r.OnConditions[1]))
	assert.Equal(t, -1, r.IndexOf(OnCondition{Trigger: NewExpression("x"), Target: "y"}))
}
