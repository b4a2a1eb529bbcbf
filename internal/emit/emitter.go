// Package emit turns incremental required sets into C++ declaration text and
// compiles regime guards into trigger flag assignments.
//
// Every function here is a pure function of its inputs and the annotator's
// answers: identical inputs produce byte-identical text.
package emit

import (
	"errors"
	"fmt"
	"strings"

	"github.com/roach88/dyngen/internal/compiler"
	"github.com/roach88/dyngen/internal/ir"
	"github.com/roach88/dyngen/internal/resolve"
	"github.com/roach88/dyngen/internal/units"
)

// ErrPiecewiseUnsupported is returned when a piecewise alias would have to be
// declared. Only single-expression aliases are emitted.
var ErrPiecewiseUnsupported = errors.New("piecewise alias right-hand sides are not supported")

// Storage locations of declared leaves in the generated kernel.
const (
	StateVector     = "y"
	ParameterBlock  = "node.P_"
	PortBuffer      = "node.B_"
	RandomGenerator = "node.rng_"
)

// Options configure one emitter.
type Options struct {
	// Indent prefixes every emitted line. Defaults to two spaces.
	Indent string
	// Debug appends a trace line after each declaration block.
	Debug bool
}

// Emitter renders declarations for one model class.
type Emitter struct {
	model     *ir.ModelClass
	annotator units.Annotator
	opts      Options
}

// New creates an emitter.
func New(m *ir.ModelClass, annotator units.Annotator, opts Options) *Emitter {
	if opts.Indent == "" {
		opts.Indent = "  "
	}
	return &Emitter{model: m, annotator: annotator, opts: opts}
}

// Options returns the options in effect.
func (e *Emitter) Options() Options {
	return e.opts
}

// binding is one declaration line before rendering.
type binding struct {
	name  string
	value string
	unit  string
}

// Declarations renders one const binding per symbol of the incremental set.
// Categories come in emission order; leaves are sorted by name, aliases in
// dependency order with lexical tie-break.
func (e *Emitter) Declarations(inc ir.RequiredSet) (string, error) {
	for _, name := range inc.Aliases {
		a, ok := e.model.Alias(name)
		if !ok {
			return "", &resolve.UnknownSymbolError{Name: name}
		}
		if _, piecewise := a.RHS.(ir.Piecewise); piecewise {
			return "", fmt.Errorf("alias %q: %w", name, ErrPiecewiseUnsupported)
		}
	}

	var bindings []binding
	for _, c := range ir.Categories {
		names := inc.Names(c)
		if len(names) == 0 {
			continue
		}
		var (
			block []binding
			err   error
		)
		switch c {
		case ir.Constant:
			block, err = e.constants(names)
		case ir.Alias:
			block, err = e.aliases(names)
		default:
			block, err = e.variables(c, names)
		}
		if err != nil {
			return "", err
		}
		bindings = append(bindings, block...)
	}

	var b strings.Builder
	for _, bd := range bindings {
		b.WriteString(e.opts.Indent)
		fmt.Fprintf(&b, "const double %s = %s;", bd.name, bd.value)
		if bd.unit != "" {
			fmt.Fprintf(&b, "  // (%s)", bd.unit)
		}
		b.WriteByte('\n')
	}
	if e.opts.Debug {
		for _, bd := range bindings {
			e.trace(&b, bd.name, bd.name)
		}
	}
	return b.String(), nil
}

func (e *Emitter) trace(b *strings.Builder, label, value string) {
	fmt.Fprintf(b, "%sstd::cerr << \"%s = \" << %s << std::endl;\n", e.opts.Indent, label, value)
}

func (e *Emitter) variables(c ir.Category, names []string) ([]binding, error) {
	keys := make([]ir.SymbolKey, len(names))
	for i, name := range names {
		keys[i] = ir.Key(c, name)
	}
	annotated, err := e.annotator.AssignUnitsToVariables(keys)
	if err != nil {
		return nil, err
	}
	if len(annotated) != len(keys) {
		return nil, fmt.Errorf("annotator returned %d units for %d %ss", len(annotated), len(keys), c)
	}

	out := make([]binding, len(annotated))
	for i, vu := range annotated {
		value, err := e.location(vu.Key)
		if err != nil {
			return nil, err
		}
		out[i] = binding{name: vu.Key.Name, value: value, unit: vu.Unit}
	}
	return out, nil
}

// location is the storage a leaf reads from.
func (e *Emitter) location(k ir.SymbolKey) (string, error) {
	switch k.Category {
	case ir.StateVariable:
		slot := e.model.StateIndex(k.Name)
		if slot < 0 {
			return "", &resolve.UnknownSymbolError{Name: k.Name}
		}
		return fmt.Sprintf("%s[%d]", StateVector, slot), nil
	case ir.Parameter:
		return ParameterBlock + "." + k.Name, nil
	case ir.Port:
		return PortBuffer + "." + k.Name, nil
	case ir.RandomVariable:
		rv, ok := e.model.RandomVariable(k.Name)
		if !ok {
			return "", &resolve.UnknownSymbolError{Name: k.Name}
		}
		args := make([]string, len(rv.Params))
		for i, p := range rv.Params {
			args[i] = units.FormatFloat(p.Value)
		}
		return fmt.Sprintf("%s * %s%s(%s)",
			units.FormatFloat(rv.Scale), RandomGenerator, rv.Distribution, strings.Join(args, ", ")), nil
	}
	return "", fmt.Errorf("%s has no storage location", k)
}

func (e *Emitter) constants(names []string) ([]binding, error) {
	scaled, err := e.annotator.AssignUnitsToConstants(names)
	if err != nil {
		return nil, err
	}
	if len(scaled) != len(names) {
		return nil, fmt.Errorf("annotator returned %d values for %d constants", len(scaled), len(names))
	}
	out := make([]binding, len(scaled))
	for i, sv := range scaled {
		out[i] = binding{name: sv.Key.Name, value: units.FormatFloat(sv.Value), unit: sv.Unit}
	}
	return out, nil
}

func (e *Emitter) aliases(names []string) ([]binding, error) {
	ordered, err := resolve.AliasOrder(e.model, names)
	if err != nil {
		return nil, err
	}
	scaled, err := e.annotator.ScaleAliases(ordered)
	if err != nil {
		return nil, err
	}
	if len(scaled) != len(ordered) {
		return nil, fmt.Errorf("annotator returned %d right-hand sides for %d aliases", len(scaled), len(ordered))
	}
	out := make([]binding, len(scaled))
	for i, sa := range scaled {
		rhs, err := compiler.CSource(sa.RHS)
		if err != nil {
			return nil, fmt.Errorf("alias %q: %w", sa.Name, err)
		}
		out[i] = binding{name: sa.Name, value: rhs, unit: sa.Unit}
	}
	return out, nil
}
