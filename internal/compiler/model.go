package compiler

import (
	"fmt"

	"cuelang.org/go/cue"

	"github.com/roach88/dyngen/internal/ir"
)

// CompileModel parses a CUE value into a ModelClass.
// Uses CUE SDK's Go API directly (not CLI subprocess).
//
// The CUE value should be the model struct itself, e.g.:
//
//	ctx := cuecontext.New()
//	v := ctx.CompileString(`model: Izhikevich: { ... }`)
//	m, err := CompileModel(v.LookupPath(cue.ParsePath("model.Izhikevich")))
//
// Field iteration follows CUE declaration order, so the order of state
// variables in the source is their state-vector slot order.
func CompileModel(v cue.Value) (*ir.ModelClass, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	m := &ir.ModelClass{}

	labels := v.Path().Selectors()
	if len(labels) > 0 {
		m.Name = labels[len(labels)-1].String()
	}

	if urlVal := v.LookupPath(cue.ParsePath("url")); urlVal.Exists() {
		url, err := urlVal.String()
		if err != nil {
			return nil, formatCUEError(err)
		}
		m.URL = url
	}

	var err error
	if m.StateVariables, err = parseStateVariables(v); err != nil {
		return nil, err
	}
	if m.Parameters, err = parseParameters(v); err != nil {
		return nil, err
	}
	if m.Ports, err = parsePorts(v); err != nil {
		return nil, err
	}
	if m.Constants, err = parseConstants(v); err != nil {
		return nil, err
	}
	if m.RandomVariables, err = parseRandomVariables(v); err != nil {
		return nil, err
	}
	if m.Aliases, err = parseAliases(v); err != nil {
		return nil, err
	}
	if m.Regimes, err = parseRegimes(v); err != nil {
		return nil, err
	}
	if len(m.Regimes) == 0 {
		return nil, &CompileError{
			Field:   "regime",
			Message: "at least one regime is required",
			Pos:     v.Pos(),
		}
	}

	return m, nil
}

// fields iterates the struct at path, calling fn for each field in
// declaration order. A missing path is not an error.
func fields(v cue.Value, path string, fn func(name string, fv cue.Value) error) error {
	sub := v.LookupPath(cue.ParsePath(path))
	if !sub.Exists() {
		return nil
	}
	iter, err := sub.Fields()
	if err != nil {
		return formatCUEError(err)
	}
	for iter.Next() {
		if err := fn(iter.Selector().Unquoted(), iter.Value()); err != nil {
			return err
		}
	}
	return nil
}

// optionalString reads a string field, returning "" when absent.
func optionalString(v cue.Value, field string) (string, error) {
	fv := v.LookupPath(cue.ParsePath(field))
	if !fv.Exists() {
		return "", nil
	}
	s, err := fv.String()
	if err != nil {
		return "", formatCUEError(err)
	}
	return s, nil
}

func requiredFloat(v cue.Value, field, where string) (float64, error) {
	fv := v.LookupPath(cue.ParsePath(field))
	if !fv.Exists() {
		return 0, &CompileError{
			Field:   where + "." + field,
			Message: fmt.Sprintf("%s is required", field),
			Pos:     v.Pos(),
		}
	}
	f, err := fv.Float64()
	if err != nil {
		return 0, formatCUEError(err)
	}
	return f, nil
}

func parseStateVariables(v cue.Value) ([]ir.StateVariableDecl, error) {
	var out []ir.StateVariableDecl
	err := fields(v, "state", func(name string, fv cue.Value) error {
		sv := ir.StateVariableDecl{Name: name}
		var err error
		if sv.Unit, err = optionalString(fv, "unit"); err != nil {
			return err
		}
		if sv.Dimension, err = optionalString(fv, "dimension"); err != nil {
			return err
		}
		out = append(out, sv)
		return nil
	})
	return out, err
}

func parseParameters(v cue.Value) ([]ir.ParameterDecl, error) {
	var out []ir.ParameterDecl
	err := fields(v, "parameter", func(name string, fv cue.Value) error {
		p := ir.ParameterDecl{Name: name}
		var err error
		if p.Unit, err = optionalString(fv, "unit"); err != nil {
			return err
		}
		if p.Dimension, err = optionalString(fv, "dimension"); err != nil {
			return err
		}
		out = append(out, p)
		return nil
	})
	return out, err
}

func parsePorts(v cue.Value) ([]ir.PortDecl, error) {
	var out []ir.PortDecl
	err := fields(v, "port", func(name string, fv cue.Value) error {
		p := ir.PortDecl{Name: name, Mode: ir.PortReceive}
		var err error
		if p.Unit, err = optionalString(fv, "unit"); err != nil {
			return err
		}
		if p.Dimension, err = optionalString(fv, "dimension"); err != nil {
			return err
		}
		mode, err := optionalString(fv, "mode")
		if err != nil {
			return err
		}
		if mode != "" {
			p.Mode = ir.PortMode(mode)
		}
		out = append(out, p)
		return nil
	})
	return out, err
}

func parseConstants(v cue.Value) ([]ir.ConstantDecl, error) {
	var out []ir.ConstantDecl
	err := fields(v, "constant", func(name string, fv cue.Value) error {
		c := ir.ConstantDecl{Name: name}
		var err error
		if c.Value, err = requiredFloat(fv, "value", "constant."+name); err != nil {
			return err
		}
		if c.Unit, err = optionalString(fv, "unit"); err != nil {
			return err
		}
		out = append(out, c)
		return nil
	})
	return out, err
}

func parseRandomVariables(v cue.Value) ([]ir.RandomVariableDecl, error) {
	var out []ir.RandomVariableDecl
	err := fields(v, "random", func(name string, fv cue.Value) error {
		rv := ir.RandomVariableDecl{Name: name, Scale: 1}
		var err error
		if rv.Distribution, err = optionalString(fv, "distribution"); err != nil {
			return err
		}
		if rv.Distribution == "" {
			return &CompileError{
				Field:   "random." + name + ".distribution",
				Message: "distribution is required",
				Pos:     fv.Pos(),
			}
		}
		if rv.Unit, err = optionalString(fv, "unit"); err != nil {
			return err
		}
		if fv.LookupPath(cue.ParsePath("scale")).Exists() {
			if rv.Scale, err = requiredFloat(fv, "scale", "random."+name); err != nil {
				return err
			}
		}
		err = fields(fv, "params", func(param string, pv cue.Value) error {
			f, err := pv.Float64()
			if err != nil {
				return formatCUEError(err)
			}
			rv.Params = append(rv.Params, ir.DistributionParam{Name: param, Value: f})
			return nil
		})
		if err != nil {
			return err
		}
		out = append(out, rv)
		return nil
	})
	return out, err
}

// parseAliases reads either {rhs: "..."} or
// {piecewise: [{condition, value}], otherwise: "..."}.
func parseAliases(v cue.Value) ([]ir.AliasDecl, error) {
	var out []ir.AliasDecl
	err := fields(v, "alias", func(name string, fv cue.Value) error {
		a := ir.AliasDecl{Name: name}
		field := "alias." + name
		var err error
		if a.Unit, err = optionalString(fv, "unit"); err != nil {
			return err
		}

		rhs, err := optionalString(fv, "rhs")
		if err != nil {
			return err
		}
		pwVal := fv.LookupPath(cue.ParsePath("piecewise"))

		switch {
		case rhs != "" && pwVal.Exists():
			return &CompileError{Field: field, Message: "rhs and piecewise are mutually exclusive", Pos: fv.Pos()}
		case rhs != "":
			expr, err := ParseExpression(rhs)
			if err != nil {
				return atField(field+".rhs", err)
			}
			a.RHS = ir.Simple{Expr: expr}
		case pwVal.Exists():
			pw, err := parsePiecewise(fv, pwVal, field)
			if err != nil {
				return err
			}
			a.RHS = pw
		default:
			return &CompileError{Field: field, Message: "alias needs rhs or piecewise", Pos: fv.Pos()}
		}

		out = append(out, a)
		return nil
	})
	return out, err
}

func parsePiecewise(alias, pwVal cue.Value, field string) (ir.Piecewise, error) {
	var pw ir.Piecewise

	iter, err := pwVal.List()
	if err != nil {
		return pw, formatCUEError(err)
	}
	for i := 0; iter.Next(); i++ {
		at := fmt.Sprintf("%s.piecewise[%d]", field, i)
		cond, err := optionalString(iter.Value(), "condition")
		if err != nil {
			return pw, err
		}
		val, err := optionalString(iter.Value(), "value")
		if err != nil {
			return pw, err
		}
		condExpr, err := ParseExpression(cond)
		if err != nil {
			return pw, atField(at+".condition", err)
		}
		valExpr, err := ParseExpression(val)
		if err != nil {
			return pw, atField(at+".value", err)
		}
		pw.Pieces = append(pw.Pieces, ir.Piece{Condition: condExpr, Value: valExpr})
	}

	otherwise, err := optionalString(alias, "otherwise")
	if err != nil {
		return pw, err
	}
	if pw.Otherwise, err = ParseExpression(otherwise); err != nil {
		return pw, atField(field+".otherwise", err)
	}
	return pw, nil
}

func parseRegimes(v cue.Value) ([]ir.Regime, error) {
	var out []ir.Regime
	err := fields(v, "regime", func(name string, rv cue.Value) error {
		r := ir.Regime{Name: name}
		field := "regime." + name

		err := fields(rv, "time_derivative", func(variable string, dv cue.Value) error {
			text, err := dv.String()
			if err != nil {
				return formatCUEError(err)
			}
			expr, err := ParseExpression(text)
			if err != nil {
				return atField(field+".time_derivative."+variable, err)
			}
			r.TimeDerivatives = append(r.TimeDerivatives, ir.TimeDerivative{Variable: variable, Expr: expr})
			return nil
		})
		if err != nil {
			return err
		}

		if r.OnConditions, err = parseOnConditions(rv, name); err != nil {
			return err
		}

		out = append(out, r)
		return nil
	})
	return out, err
}

// parseOnConditions reads the transitions of one regime. A transition without
// a target stays in its source regime.
func parseOnConditions(rv cue.Value, regime string) ([]ir.OnCondition, error) {
	field := "regime." + regime
	ocVal := rv.LookupPath(cue.ParsePath("on_condition"))
	if !ocVal.Exists() {
		return nil, nil
	}

	iter, err := ocVal.List()
	if err != nil {
		return nil, formatCUEError(err)
	}

	var out []ir.OnCondition
	for i := 0; iter.Next(); i++ {
		at := fmt.Sprintf("%s.on_condition[%d]", field, i)
		ocv := iter.Value()

		trigger, err := optionalString(ocv, "trigger")
		if err != nil {
			return nil, err
		}
		oc := ir.OnCondition{}
		if oc.Trigger, err = ParseExpression(trigger); err != nil {
			return nil, atField(at+".trigger", err)
		}
		if oc.Target, err = optionalString(ocv, "target"); err != nil {
			return nil, err
		}
		if oc.Target == "" {
			oc.Target = regime
		}

		err = fields(ocv, "state_assignment", func(variable string, av cue.Value) error {
			text, err := av.String()
			if err != nil {
				return formatCUEError(err)
			}
			expr, err := ParseExpression(text)
			if err != nil {
				return atField(at+".state_assignment."+variable, err)
			}
			oc.StateAssignments = append(oc.StateAssignments, ir.StateAssignment{Variable: variable, Expr: expr})
			return nil
		})
		if err != nil {
			return nil, err
		}

		out = append(out, oc)
	}
	return out, nil
}
