package ir

import (
	"fmt"
	"slices"
)

// Category classifies a model symbol.
//
// The declaration order of the constants is the fixed emission order used by
// the code emitter.
type Category int

const (
	StateVariable Category = iota
	Parameter
	Port
	Constant
	RandomVariable
	Alias
)

// Categories lists every category in emission order.
var Categories = []Category{StateVariable, Parameter, Port, Constant, RandomVariable, Alias}

var categoryNames = map[Category]string{
	StateVariable:  "state_variable",
	Parameter:      "parameter",
	Port:           "port",
	Constant:       "constant",
	RandomVariable: "random_variable",
	Alias:          "alias",
}

func (c Category) String() string {
	if name, ok := categoryNames[c]; ok {
		return name
	}
	return fmt.Sprintf("category(%d)", int(c))
}

// IsLeaf reports whether symbols of this category are never expanded by the
// resolver.
func (c Category) IsLeaf() bool {
	return c != Alias
}

// ParseCategory converts a category name ("parameter", "alias", ...) back
// into a Category.
func ParseCategory(s string) (Category, error) {
	for c, name := range categoryNames {
		if name == s {
			return c, nil
		}
	}
	return 0, fmt.Errorf("unknown category %q", s)
}

// SymbolKey is the identity of a symbol: its category plus its name.
type SymbolKey struct {
	Category Category `json:"category"`
	Name     string   `json:"name"`
}

func (k SymbolKey) String() string {
	return k.Category.String() + ":" + k.Name
}

// Key is a shorthand constructor for SymbolKey.
func Key(c Category, name string) SymbolKey {
	return SymbolKey{Category: c, Name: name}
}

// StateVariableDecl is a continuous state variable. Its position in
// ModelClass.StateVariables is its slot in the solver state vector.
type StateVariableDecl struct {
	Name      string `json:"name"`
	Dimension string `json:"dimension,omitempty"`
	Unit      string `json:"unit,omitempty"`
}

// ParameterDecl is a per-instance parameter stored in the parameter block.
type ParameterDecl struct {
	Name      string `json:"name"`
	Dimension string `json:"dimension,omitempty"`
	Unit      string `json:"unit,omitempty"`
}

// PortMode tells whether a port receives or sends analog values.
type PortMode string

const (
	PortReceive PortMode = "receive"
	PortSend    PortMode = "send"
	PortReduce  PortMode = "reduce"
)

// PortDecl is an input port read from the port buffer.
type PortDecl struct {
	Name      string   `json:"name"`
	Mode      PortMode `json:"mode"`
	Dimension string   `json:"dimension,omitempty"`
	Unit      string   `json:"unit,omitempty"`
}

// ConstantDecl is a named literal.
type ConstantDecl struct {
	Name  string  `json:"name"`
	Value float64 `json:"value"`
	Unit  string  `json:"unit,omitempty"`
}

// RandomVariableDecl is drawn from Distribution once per evaluation and
// multiplied by Scale.
type RandomVariableDecl struct {
	Name         string             `json:"name"`
	Distribution string             `json:"distribution"`
	Params       []DistributionParam `json:"params,omitempty"`
	Scale        float64            `json:"scale"`
	Unit         string             `json:"unit,omitempty"`
}

// DistributionParam is a named distribution argument, kept in declaration
// order because generated draws pass them positionally.
type DistributionParam struct {
	Name  string  `json:"name"`
	Value float64 `json:"value"`
}

// AliasDecl is a derived value bound once per emission scope.
type AliasDecl struct {
	Name string   `json:"name"`
	Unit string   `json:"unit,omitempty"`
	RHS  AliasRHS `json:"rhs"`
}

// References returns the free symbols of every branch of the alias.
func (a AliasDecl) References() []string {
	if a.RHS == nil {
		return nil
	}
	return a.RHS.References()
}

// TimeDerivative is d(Variable)/dt = Expr inside a regime.
type TimeDerivative struct {
	Variable string     `json:"variable"`
	Expr     Expression `json:"expr"`
}

// StateAssignment sets Variable to Expr when a transition fires.
type StateAssignment struct {
	Variable string     `json:"variable"`
	Expr     Expression `json:"expr"`
}

// OnCondition is a guarded transition out of a regime.
type OnCondition struct {
	Trigger          Expression        `json:"trigger"`
	Target           string            `json:"target"`
	StateAssignments []StateAssignment `json:"state_assignments,omitempty"`
}

// Regime is a discrete automaton state owning ordered guarded transitions.
type Regime struct {
	Name            string           `json:"name"`
	TimeDerivatives []TimeDerivative `json:"time_derivatives"`
	OnConditions    []OnCondition    `json:"on_conditions"`
}

// IndexOf returns the stable zero-based position of oc in the regime's
// declared transitions, or -1 if the transition does not belong to the
// regime. Transitions are compared by trigger text and target.
func (r *Regime) IndexOf(oc OnCondition) int {
	for i, candidate := range r.OnConditions {
		if candidate.Trigger.Text == oc.Trigger.Text && candidate.Target == oc.Target {
			return i
		}
	}
	return -1
}

// Derivative returns the time derivative of variable in this regime.
func (r *Regime) Derivative(variable string) (Expression, bool) {
	for _, td := range r.TimeDerivatives {
		if td.Variable == variable {
			return td.Expr, true
		}
	}
	return Expression{}, false
}

// DerivativeExpressions returns the expression group of the regime's time
// derivatives in declaration order.
func (r *Regime) DerivativeExpressions() []Expression {
	exprs := make([]Expression, len(r.TimeDerivatives))
	for i, td := range r.TimeDerivatives {
		exprs[i] = td.Expr
	}
	return exprs
}

// TriggerExpressions returns the expression group of the regime's guards in
// declaration order.
func (r *Regime) TriggerExpressions() []Expression {
	exprs := make([]Expression, len(r.OnConditions))
	for i, oc := range r.OnConditions {
		exprs[i] = oc.Trigger
	}
	return exprs
}

// AssignmentExpressions returns the right-hand sides of a transition's
// state assignments.
func (oc OnCondition) AssignmentExpressions() []Expression {
	exprs := make([]Expression, len(oc.StateAssignments))
	for i, sa := range oc.StateAssignments {
		exprs[i] = sa.Expr
	}
	return exprs
}

// ModelClass is the read-only model graph handed to generation.
//
// Collections keep declaration order. Names are unique within a category and,
// because expression text references symbols by bare name, across categories
// as well (enforced by compiler validation).
type ModelClass struct {
	Name            string               `json:"name"`
	URL             string               `json:"url,omitempty"`
	StateVariables  []StateVariableDecl  `json:"state_variables"`
	Parameters      []ParameterDecl      `json:"parameters"`
	Ports           []PortDecl           `json:"ports"`
	Constants       []ConstantDecl       `json:"constants"`
	RandomVariables []RandomVariableDecl `json:"random_variables"`
	Aliases         []AliasDecl          `json:"aliases"`
	Regimes         []Regime             `json:"regimes"`

	index map[string]Category
}

// Lookup classifies a bare symbol name.
func (m *ModelClass) Lookup(name string) (Category, bool) {
	if m.index == nil {
		m.buildIndex()
	}
	c, ok := m.index[name]
	return c, ok
}

// buildIndex records the category of every name. When a name appears in more
// than one category, the first category in emission order wins; validation
// reports the ambiguity separately.
func (m *ModelClass) buildIndex() {
	m.index = make(map[string]Category)
	for _, c := range Categories {
		for _, name := range m.Names(c) {
			if _, exists := m.index[name]; !exists {
				m.index[name] = c
			}
		}
	}
}

// Names returns the symbol names of one category in declaration order.
func (m *ModelClass) Names(c Category) []string {
	var names []string
	switch c {
	case StateVariable:
		for _, sv := range m.StateVariables {
			names = append(names, sv.Name)
		}
	case Parameter:
		for _, p := range m.Parameters {
			names = append(names, p.Name)
		}
	case Port:
		for _, p := range m.Ports {
			names = append(names, p.Name)
		}
	case Constant:
		for _, k := range m.Constants {
			names = append(names, k.Name)
		}
	case RandomVariable:
		for _, rv := range m.RandomVariables {
			names = append(names, rv.Name)
		}
	case Alias:
		for _, a := range m.Aliases {
			names = append(names, a.Name)
		}
	}
	return names
}

// StateIndex returns the state-vector slot of a state variable.
func (m *ModelClass) StateIndex(name string) int {
	return slices.IndexFunc(m.StateVariables, func(sv StateVariableDecl) bool { return sv.Name == name })
}

// Alias returns the named alias.
func (m *ModelClass) Alias(name string) (AliasDecl, bool) {
	for _, a := range m.Aliases {
		if a.Name == name {
			return a, true
		}
	}
	return AliasDecl{}, false
}

// Constant returns the named constant.
func (m *ModelClass) Constant(name string) (ConstantDecl, bool) {
	for _, k := range m.Constants {
		if k.Name == name {
			return k, true
		}
	}
	return ConstantDecl{}, false
}

// RandomVariable returns the named random variable.
func (m *ModelClass) RandomVariable(name string) (RandomVariableDecl, bool) {
	for _, rv := range m.RandomVariables {
		if rv.Name == name {
			return rv, true
		}
	}
	return RandomVariableDecl{}, false
}

// Regime returns the named regime.
func (m *ModelClass) Regime(name string) (*Regime, bool) {
	for i := range m.Regimes {
		if m.Regimes[i].Name == name {
			return &m.Regimes[i], true
		}
	}
	return nil, false
}

// Unit returns the declared unit of any symbol, or "" when unitless or
// unknown.
func (m *ModelClass) Unit(key SymbolKey) string {
	switch key.Category {
	case StateVariable:
		for _, sv := range m.StateVariables {
			if sv.Name == key.Name {
				return sv.Unit
			}
		}
	case Parameter:
		for _, p := range m.Parameters {
			if p.Name == key.Name {
				return p.Unit
			}
		}
	case Port:
		for _, p := range m.Ports {
			if p.Name == key.Name {
				return p.Unit
			}
		}
	case Constant:
		if k, ok := m.Constant(key.Name); ok {
			return k.Unit
		}
	case RandomVariable:
		if rv, ok := m.RandomVariable(key.Name); ok {
			return rv.Unit
		}
	case Alias:
		if a, ok := m.Alias(key.Name); ok {
			return a.Unit
		}
	}
	return ""
}
