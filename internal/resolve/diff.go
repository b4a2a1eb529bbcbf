package resolve

import (
	"github.com/roach88/dyngen/internal/ir"
)

// Diff returns, per category, current − previous − exclude: the symbols a
// scope still has to declare. Exclusion is by (category, name), so
// excluding parameter g never hides alias g.
func Diff(current, previous ir.RequiredSet, exclude []ir.SymbolKey) ir.RequiredSet {
	return current.Minus(previous).Minus(ir.NewRequiredSet(exclude...))
}
