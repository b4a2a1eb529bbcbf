package compiler

import (
	"fmt"
	"regexp"
	"slices"
	"sort"
	"strings"

	"cuelang.org/go/cue/ast"
	"cuelang.org/go/cue/parser"
	"cuelang.org/go/cue/token"

	"github.com/roach88/dyngen/internal/ir"
)

// Functions maps the math functions an expression may call to the name of
// the matching builtin in CUE's math package. Calls reach C++ unchanged
// through CSource, so every key is also a valid <cmath> function.
var Functions = map[string]string{
	"exp":   "Exp",
	"log":   "Log",
	"log10": "Log10",
	"pow":   "Pow",
	"sqrt":  "Sqrt",
	"sin":   "Sin",
	"cos":   "Cos",
	"tan":   "Tan",
	"sinh":  "Sinh",
	"cosh":  "Cosh",
	"tanh":  "Tanh",
	"fabs":  "Abs",
	"floor": "Floor",
	"ceil":  "Ceil",
}

// decimalLiteral matches the number literals C++ and CUE read alike:
// no multipliers, digit separators, radix prefixes or leading zeros.
var decimalLiteral = regexp.MustCompile(`^((0|[1-9][0-9]*)(\.[0-9]*)?|\.[0-9]+)([eE][+-]?[0-9]+)?$`)

// IsReserved reports whether name can never be a model symbol.
func IsReserved(name string) bool {
	if name == ir.TimeSymbol {
		return true
	}
	_, isFunc := Functions[name]
	return isFunc
}

// ParseExpression parses expression text and extracts its free symbols.
//
// Expressions use CUE expression syntax restricted to arithmetic, comparison
// and boolean operators, number literals, identifiers and calls to the
// functions in Functions. Time (t) and function names are not references.
func ParseExpression(text string) (ir.Expression, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return ir.Expression{}, &CompileError{Field: "expression", Message: "expression is empty"}
	}

	node, err := parser.ParseExpr("expression", text)
	if err != nil {
		return ir.Expression{}, formatCUEError(err)
	}

	refs, err := freeSymbols(node)
	if err != nil {
		return ir.Expression{}, err
	}
	return ir.NewExpression(text, refs...), nil
}

// CSource renders expression text as C++ source. Integer literals are
// written as double literals, so 1/2 divides in floating point exactly as
// the evaluator does.
func CSource(text string) (string, error) {
	node, err := parser.ParseExpr("expression", text)
	if err != nil {
		return "", formatCUEError(err)
	}

	var ends []int
	ast.Walk(node, func(n ast.Node) bool {
		if lit, ok := n.(*ast.BasicLit); ok && lit.Kind == token.INT && !strings.ContainsAny(lit.Value, ".eE") {
			ends = append(ends, lit.Pos().Offset()+len(lit.Value))
		}
		return true
	}, nil)
	sort.Ints(ends)

	var b strings.Builder
	last := 0
	for _, end := range ends {
		if end > len(text) {
			return "", &CompileError{Field: "expression", Message: fmt.Sprintf("literal offset %d outside %q", end, text)}
		}
		b.WriteString(text[last:end])
		b.WriteString(".0")
		last = end
	}
	b.WriteString(text[last:])
	return b.String(), nil
}

// MustParseExpression is like ParseExpression but panics on error.
// Use only in tests or for literals known to be valid.
func MustParseExpression(text string) ir.Expression {
	e, err := ParseExpression(text)
	if err != nil {
		panic(err)
	}
	return e
}

// freeSymbols walks the expression tree collecting identifiers. Anything
// outside the supported subset is rejected with its position.
func freeSymbols(root ast.Expr) ([]string, error) {
	var (
		refs     []string
		firstErr error
		callees  []*ast.Ident
	)

	fail := func(n ast.Node, msg string) bool {
		if firstErr == nil {
			firstErr = &CompileError{Field: "expression", Message: msg, Pos: n.Pos()}
		}
		return false
	}

	ast.Walk(root, func(n ast.Node) bool {
		if firstErr != nil {
			return false
		}
		switch x := n.(type) {
		case *ast.Ident:
			if slices.Contains(callees, x) {
				return false
			}
			refs = append(refs, x.Name)
		case *ast.BasicLit:
			switch x.Kind {
			case token.INT, token.FLOAT:
				if !decimalLiteral.MatchString(x.Value) {
					return fail(x, fmt.Sprintf("number literal %s is not a plain decimal", x.Value))
				}
			case token.TRUE, token.FALSE:
			default:
				return fail(x, fmt.Sprintf("unsupported literal %s", x.Value))
			}
		case *ast.BinaryExpr:
			if !supportedBinary(x.Op) {
				return fail(x, fmt.Sprintf("unsupported operator %s", x.Op))
			}
		case *ast.UnaryExpr:
			switch x.Op {
			case token.SUB, token.ADD, token.NOT:
			default:
				return fail(x, fmt.Sprintf("unsupported unary operator %s", x.Op))
			}
		case *ast.ParenExpr:
		case *ast.CommentGroup, *ast.Comment:
			return false
		case *ast.CallExpr:
			fn, ok := x.Fun.(*ast.Ident)
			if !ok {
				return fail(x, "only named math functions may be called")
			}
			if _, known := Functions[fn.Name]; !known {
				return fail(x, fmt.Sprintf("unknown function %q", fn.Name))
			}
			callees = append(callees, fn)
		case *ast.SelectorExpr:
			return fail(x, "selectors are not allowed in expressions")
		default:
			return fail(n, fmt.Sprintf("unsupported expression element %T", n))
		}
		return true
	}, nil)

	if firstErr != nil {
		return nil, firstErr
	}
	return refs, nil
}

func supportedBinary(op token.Token) bool {
	switch op {
	case token.ADD, token.SUB, token.MUL, token.QUO,
		token.LSS, token.LEQ, token.GTR, token.GEQ, token.EQL, token.NEQ,
		token.LAND, token.LOR:
		return true
	}
	return false
}
