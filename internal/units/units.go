// Package units attaches units and scale factors to the symbols the emitter
// declares. Dimensional analysis itself is out of scope; implementations of
// Annotator decide how a declared unit maps onto the kernel's units.
package units

import (
	"fmt"
	"strconv"

	"github.com/roach88/dyngen/internal/ir"
)

// VariableUnit is the unit attached to a declared variable.
type VariableUnit struct {
	Key  ir.SymbolKey
	Unit string
}

// ScaledValue is a constant rescaled into kernel units.
type ScaledValue struct {
	Key   ir.SymbolKey
	Value float64
	Unit  string
}

// ScaledAlias is an alias right-hand side rescaled into kernel units.
type ScaledAlias struct {
	Name string
	RHS  string
	Unit string
}

// Annotator assigns units and scales. Results keep the order of the input.
type Annotator interface {
	AssignUnitsToVariables(keys []ir.SymbolKey) ([]VariableUnit, error)
	AssignUnitsToConstants(names []string) ([]ScaledValue, error)
	ScaleAliases(names []string) ([]ScaledAlias, error)
}

// Declared annotates symbols with the units declared in the model.
//
// Scales optionally maps a declared unit to the factor that converts it to
// the kernel's unit for that dimension. Constants are multiplied by the
// factor and alias right-hand sides are wrapped as "(<factor>) * (<rhs>)".
// Units without an entry are used as-is.
type Declared struct {
	Model  *ir.ModelClass
	Scales map[string]float64
}

// NewDeclared creates an annotator that keeps declared units unscaled.
func NewDeclared(m *ir.ModelClass) *Declared {
	return &Declared{Model: m}
}

func (d *Declared) scale(unit string) float64 {
	if f, ok := d.Scales[unit]; ok {
		return f
	}
	return 1
}

// AssignUnitsToVariables implements Annotator.
func (d *Declared) AssignUnitsToVariables(keys []ir.SymbolKey) ([]VariableUnit, error) {
	out := make([]VariableUnit, len(keys))
	for i, k := range keys {
		if _, ok := d.Model.Lookup(k.Name); !ok {
			return nil, fmt.Errorf("units: unknown symbol %s", k)
		}
		out[i] = VariableUnit{Key: k, Unit: d.Model.Unit(k)}
	}
	return out, nil
}

// AssignUnitsToConstants implements Annotator.
func (d *Declared) AssignUnitsToConstants(names []string) ([]ScaledValue, error) {
	out := make([]ScaledValue, len(names))
	for i, name := range names {
		c, ok := d.Model.Constant(name)
		if !ok {
			return nil, fmt.Errorf("units: unknown constant %q", name)
		}
		out[i] = ScaledValue{
			Key:   ir.Key(ir.Constant, name),
			Value: c.Value * d.scale(c.Unit),
			Unit:  c.Unit,
		}
	}
	return out, nil
}

// ScaleAliases implements Annotator. Only simple aliases have a single
// right-hand side to scale.
func (d *Declared) ScaleAliases(names []string) ([]ScaledAlias, error) {
	out := make([]ScaledAlias, len(names))
	for i, name := range names {
		a, ok := d.Model.Alias(name)
		if !ok {
			return nil, fmt.Errorf("units: unknown alias %q", name)
		}
		simple, ok := a.RHS.(ir.Simple)
		if !ok {
			return nil, fmt.Errorf("units: alias %q has no single right-hand side", name)
		}
		rhs := simple.Expr.Text
		if f := d.scale(a.Unit); f != 1 {
			rhs = fmt.Sprintf("(%s) * (%s)", FormatFloat(f), rhs)
		}
		out[i] = ScaledAlias{Name: name, RHS: rhs, Unit: a.Unit}
	}
	return out, nil
}

// FormatFloat renders a value as a C++ double literal that round-trips.
func FormatFloat(v float64) string {
	s := strconv.FormatFloat(v, 'g', -1, 64)
	for _, r := range s {
		if r == '.' || r == 'e' || r == 'n' || r == 'I' {
			return s
		}
	}
	return s + ".0"
}
