package testutil

import (
	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"

	"github.com/roach88/dyngen/internal/compiler"
	"github.com/roach88/dyngen/internal/ir"
)

// IzhikevichCUE is a two-regime Izhikevich neuron. It exercises every symbol
// category, aliases nested two deep, an alias shared by both regimes and a
// transition whose guard reads time.
const IzhikevichCUE = `model: Izhikevich: {
	state: {
		V: {unit: "mV"}
		U: {unit: "mV/ms"}
	}
	parameter: {
		a: {unit: "1/ms"}
		b: {unit: "1/ms"}
		c: {unit: "mV"}
		d: {unit: "mV/ms"}
		theta: {unit: "mV"}
		t_ref: {unit: "ms"}
	}
	port: Isyn: {unit: "mV/ms", mode: "receive"}
	constant: {
		k1: {value: 0.04, unit: "1/(mV*ms)"}
		k2: {value: 5, unit: "1/ms"}
		k3: {value: 140, unit: "mV/ms"}
	}
	random: noise: {
		distribution: "normal"
		params: {mu: 0, sigma: 1}
		scale: 0.5
		unit: "mV/ms"
	}
	alias: {
		quad: {rhs: "k1*V*V + k2*V + k3", unit: "mV/ms"}
		recovery: {rhs: "a*(b*V - U)", unit: "mV/ms"}
		drive: {rhs: "quad - U + Isyn", unit: "mV/ms"}
	}
	regime: {
		subthreshold: {
			time_derivative: {
				V: "drive + noise"
				U: "recovery"
			}
			on_condition: [{
				trigger: "V > theta"
				target: "refractory"
				state_assignment: {V: "c", U: "U + d"}
			}]
		}
		refractory: {
			time_derivative: {
				V: "0"
				U: "recovery"
			}
			on_condition: [{
				trigger: "t > t_ref"
				target: "subthreshold"
			}]
		}
	}
}
`

// Izhikevich compiles IzhikevichCUE. It panics on failure, which would mean
// the fixture itself is broken.
func Izhikevich() *ir.ModelClass {
	return MustCompile(IzhikevichCUE, "Izhikevich")
}

// MustCompile compiles the named model out of CUE source text.
func MustCompile(src, name string) *ir.ModelClass {
	v := cuecontext.New().CompileString(src)
	if err := v.Err(); err != nil {
		panic(err)
	}
	m, err := compiler.CompileModel(v.LookupPath(cue.MakePath(cue.Str("model"), cue.Str(name))))
	if err != nil {
		panic(err)
	}
	return m
}

// AliasChain builds a model with parameters p and q and aliases defined by
// defs (alias name → right-hand side), in the order given by names.
func AliasChain(names []string, defs map[string]string) *ir.ModelClass {
	m := &ir.ModelClass{
		Name:       "Chain",
		Parameters: []ir.ParameterDecl{{Name: "p"}, {Name: "q"}},
	}
	for _, name := range names {
		m.Aliases = append(m.Aliases, ir.AliasDecl{
			Name: name,
			RHS:  ir.Simple{Expr: compiler.MustParseExpression(defs[name])},
		})
	}
	return m
}
