// Package eval evaluates model expressions in Go using CUE as the
// arithmetic engine.
//
// An expression is evaluated against Bindings for the leaf symbols it needs
// (state variables, parameters, ports, random variables; constants default
// to their declared value). Aliases are expanded the same way generated
// code declares them: every alias in the dependency closure is bound in
// dependency order before the expression itself is evaluated.
package eval

import (
	"errors"
	"fmt"
	"math"
	"slices"
	"strconv"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/ast"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/format"
	"cuelang.org/go/cue/parser"

	"github.com/roach88/dyngen/internal/compiler"
	"github.com/roach88/dyngen/internal/ir"
	"github.com/roach88/dyngen/internal/resolve"
)

// mathPackage is the CUE builtin package function calls are routed to. A
// model symbol with this name would shadow it.
const mathPackage = "math"

// ErrUnbound is returned when a leaf symbol an expression needs has no
// value.
var ErrUnbound = errors.New("unbound symbol")

// Bindings maps bare symbol names to values.
type Bindings map[string]float64

// Clone returns an independent copy of b.
func (b Bindings) Clone() Bindings {
	out := make(Bindings, len(b))
	for k, v := range b {
		out[k] = v
	}
	return out
}

// Error reports an expression that failed to evaluate.
type Error struct {
	Expr string
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("evaluate %q: %v", e.Expr, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Evaluator evaluates expressions of one model class. It is not safe for
// concurrent use.
type Evaluator struct {
	model     *ir.ModelClass
	resolver  *resolve.Resolver
	ctx       *cue.Context
	rewritten map[string]string
}

// New returns an evaluator for m.
func New(m *ir.ModelClass) *Evaluator {
	return &Evaluator{
		model:     m,
		resolver:  resolve.New(m),
		ctx:       cuecontext.New(),
		rewritten: make(map[string]string),
	}
}

// Model returns the model class the evaluator was built for.
func (e *Evaluator) Model() *ir.ModelClass {
	return e.model
}

// Number evaluates a numeric expression at time t.
func (e *Evaluator) Number(expr ir.Expression, t float64, b Bindings) (float64, error) {
	v, err := e.value(expr, t, b)
	if err != nil {
		return 0, err
	}
	f, err := v.Float64()
	if err != nil && !errors.Is(err, cue.ErrBelow) && !errors.Is(err, cue.ErrAbove) {
		return 0, &Error{Expr: expr.Text, Err: err}
	}
	return f, nil
}

// Bool evaluates a boolean expression (a trigger or piecewise condition) at
// time t.
func (e *Evaluator) Bool(expr ir.Expression, t float64, b Bindings) (bool, error) {
	v, err := e.value(expr, t, b)
	if err != nil {
		return false, err
	}
	ok, err := v.Bool()
	if err != nil {
		return false, &Error{Expr: expr.Text, Err: err}
	}
	return ok, nil
}

func (e *Evaluator) value(expr ir.Expression, t float64, b Bindings) (cue.Value, error) {
	if _, shadowed := e.model.Lookup(mathPackage); shadowed {
		return cue.Value{}, &Error{Expr: expr.Text, Err: fmt.Errorf("symbol %q shadows the math package", mathPackage)}
	}

	src, err := e.scopeSource(expr, t, b)
	if err != nil {
		return cue.Value{}, &Error{Expr: expr.Text, Err: err}
	}
	scope := e.ctx.CompileString(src, cue.Filename("scope.cue"), cue.InferBuiltins(true))
	if err := scope.Err(); err != nil {
		return cue.Value{}, &Error{Expr: expr.Text, Err: err}
	}

	text, err := e.rewrite(expr.Text)
	if err != nil {
		return cue.Value{}, &Error{Expr: expr.Text, Err: err}
	}
	v := e.ctx.CompileString(text, cue.Scope(scope), cue.InferBuiltins(true))
	if err := v.Err(); err != nil {
		return cue.Value{}, &Error{Expr: expr.Text, Err: err}
	}
	return v, nil
}

// scopeSource renders the CUE fields an expression is evaluated against:
// time, every leaf in its closure and every alias in dependency order.
func (e *Evaluator) scopeSource(expr ir.Expression, t float64, b Bindings) (string, error) {
	required, err := e.resolver.RequiredFor([]ir.Expression{expr})
	if err != nil {
		return "", err
	}

	var sb strings.Builder
	if err := writeField(&sb, ir.TimeSymbol, t); err != nil {
		return "", err
	}

	var missing []string
	for _, key := range required.Keys() {
		if !key.Category.IsLeaf() {
			continue
		}
		v, ok := b[key.Name]
		if !ok && key.Category == ir.Constant {
			c, _ := e.model.Constant(key.Name)
			v, ok = c.Value, true
		}
		if !ok {
			missing = append(missing, key.String())
			continue
		}
		if err := writeField(&sb, key.Name, v); err != nil {
			return "", err
		}
	}
	if len(missing) > 0 {
		slices.Sort(missing)
		return "", fmt.Errorf("%w: %s", ErrUnbound, strings.Join(missing, ", "))
	}

	order, err := resolve.AliasOrder(e.model, required.Names(ir.Alias))
	if err != nil {
		return "", err
	}
	for _, name := range order {
		alias, _ := e.model.Alias(name)
		rhs, err := e.aliasSource(alias)
		if err != nil {
			return "", fmt.Errorf("alias %s: %w", name, err)
		}
		fmt.Fprintf(&sb, "%s: %s\n", name, rhs)
	}
	return sb.String(), nil
}

// aliasSource renders an alias RHS. A piecewise alias becomes a guarded
// list comprehension whose only surviving element is the selected branch.
func (e *Evaluator) aliasSource(alias ir.AliasDecl) (string, error) {
	switch rhs := alias.RHS.(type) {
	case ir.Simple:
		return e.rewrite(rhs.Expr.Text)
	case ir.Piecewise:
		var (
			elems   []string
			negated []string
		)
		for _, piece := range rhs.Pieces {
			cond, err := e.rewrite(piece.Condition.Text)
			if err != nil {
				return "", err
			}
			val, err := e.rewrite(piece.Value.Text)
			if err != nil {
				return "", err
			}
			guard := append(slices.Clone(negated), "("+cond+")")
			elems = append(elems, fmt.Sprintf("if %s {(%s)}", strings.Join(guard, " && "), val))
			negated = append(negated, "!("+cond+")")
		}
		other, err := e.rewrite(rhs.Otherwise.Text)
		if err != nil {
			return "", err
		}
		if len(negated) == 0 {
			return other, nil
		}
		elems = append(elems, fmt.Sprintf("if %s {(%s)}", strings.Join(negated, " && "), other))
		return "[" + strings.Join(elems, ", ") + "][0]", nil
	}
	return "", fmt.Errorf("unsupported alias form %T", alias.RHS)
}

// rewrite turns expression text into CUE source, routing function calls to
// the math builtins.
func (e *Evaluator) rewrite(text string) (string, error) {
	if out, ok := e.rewritten[text]; ok {
		return out, nil
	}
	node, err := parser.ParseExpr("expression", text)
	if err != nil {
		return "", err
	}
	ast.Walk(node, func(n ast.Node) bool {
		call, ok := n.(*ast.CallExpr)
		if !ok {
			return true
		}
		if fn, ok := call.Fun.(*ast.Ident); ok {
			if builtin, known := compiler.Functions[fn.Name]; known {
				call.Fun = ast.NewSel(ast.NewIdent(mathPackage), builtin)
			}
		}
		return true
	}, nil)
	b, err := format.Node(node)
	if err != nil {
		return "", err
	}
	out := string(b)
	e.rewritten[text] = out
	return out, nil
}

func writeField(sb *strings.Builder, name string, v float64) error {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return fmt.Errorf("%s: %v is not a finite number", name, v)
	}
	fmt.Fprintf(sb, "%s: %s\n", name, strconv.FormatFloat(v, 'g', -1, 64))
	return nil
}
