// Package resolve decides which model symbols generated code must declare.
//
// A Resolver computes the transitive closure of the symbols an expression
// group references, expanding aliases and stopping at leaves. Diff removes
// what an enclosing scope already declared, and a Tracker keeps those
// declared sets for a stack of nested scopes so no symbol is bound twice
// along any scope chain.
package resolve

import (
	"github.com/roach88/dyngen/internal/ir"
)

// Resolver computes required sets against one model class.
type Resolver struct {
	model *ir.ModelClass
}

// New creates a resolver for m. The model is only read.
func New(m *ir.ModelClass) *Resolver {
	return &Resolver{model: m}
}

// Model returns the model class the resolver reads.
func (r *Resolver) Model() *ir.ModelClass {
	return r.model
}

// color marks alias visitation state during the depth-first walk.
type color uint8

const (
	white color = iota // not reached
	gray               // expansion in progress
	black              // fully expanded
)

// frame is one level of the explicit DFS stack: an alias being expanded
// (or the expression group itself when alias is "") and the position of the
// next reference to visit.
type frame struct {
	alias string
	refs  []string
	next  int
}

// RequiredFor returns every symbol the expression group needs, closed under
// alias expansion. Leaves are collected without expansion. Each category in
// the result is sorted ascending.
//
// Fails with *CircularDependencyError when an alias is reached while its own
// expansion is still in progress, and with *UnknownSymbolError when a
// reference names nothing in the model.
func (r *Resolver) RequiredFor(group []ir.Expression) (ir.RequiredSet, error) {
	var seed []string
	for _, expr := range group {
		seed = append(seed, expr.Refs...)
	}
	return r.closure(seed)
}

// RequiredForAliases seeds the walk with alias names instead of
// expressions. The named aliases are part of the result.
func (r *Resolver) RequiredForAliases(names ...string) (ir.RequiredSet, error) {
	return r.closure(names)
}

func (r *Resolver) closure(seed []string) (ir.RequiredSet, error) {
	var (
		found  []ir.SymbolKey
		colors = make(map[string]color)
		stack  = []*frame{{refs: seed}}
	)

	for len(stack) > 0 {
		top := stack[len(stack)-1]
		if top.next == len(top.refs) {
			if top.alias != "" {
				colors[top.alias] = black
			}
			stack = stack[:len(stack)-1]
			continue
		}

		name := top.refs[top.next]
		top.next++

		if name == ir.TimeSymbol {
			continue
		}
		category, ok := r.model.Lookup(name)
		if !ok {
			return ir.RequiredSet{}, &UnknownSymbolError{Name: name, Alias: top.alias}
		}
		if category.IsLeaf() {
			found = append(found, ir.Key(category, name))
			continue
		}

		switch colors[name] {
		case black:
			continue
		case gray:
			return ir.RequiredSet{}, &CircularDependencyError{Path: cyclePath(stack, name)}
		}

		alias, _ := r.model.Alias(name)
		colors[name] = gray
		found = append(found, ir.Key(ir.Alias, name))
		stack = append(stack, &frame{alias: name, refs: alias.References()})
	}

	return ir.NewRequiredSet(found...), nil
}

// cyclePath reads the in-progress aliases from the one that closes the
// cycle to the top of the stack.
func cyclePath(stack []*frame, closing string) []string {
	var path []string
	for i, f := range stack {
		if f.alias == closing {
			for _, g := range stack[i:] {
				path = append(path, g.alias)
			}
			break
		}
	}
	return append(path, closing)
}
