package resolve

import (
	"strings"

	"github.com/roach88/dyngen/internal/ir"
)

// scope is one open emission scope and what it declared itself.
type scope struct {
	name     string
	declared ir.RequiredSet
}

// Tracker owns the declared sets of a stack of nested emission scopes.
//
// A symbol declared in a scope is visible to every scope nested inside it
// and to nothing else: closing a scope forgets its declarations, so sibling
// scopes (two regimes under one model scope) each declare what they need.
// The root scope is opened by NewTracker and can never be closed.
type Tracker struct {
	resolver *Resolver
	exclude  []ir.SymbolKey
	scopes   []*scope
}

// NewTracker opens the root scope. Symbols in exclude are treated as
// already available in every scope and are never declared.
func NewTracker(r *Resolver, root string, exclude []ir.SymbolKey) *Tracker {
	return &Tracker{
		resolver: r,
		exclude:  exclude,
		scopes:   []*scope{{name: root}},
	}
}

// Push opens a scope nested in the current one.
func (t *Tracker) Push(name string) {
	t.scopes = append(t.scopes, &scope{name: name})
}

// Pop closes the current scope and returns what it declared.
func (t *Tracker) Pop() (ir.RequiredSet, error) {
	if len(t.scopes) == 1 {
		return ir.RequiredSet{}, &ScopeInconsistencyError{
			Scope:   t.Path(),
			Message: "cannot close the root scope",
		}
	}
	top := t.scopes[len(t.scopes)-1]
	t.scopes = t.scopes[:len(t.scopes)-1]
	return top.declared, nil
}

// Depth is the number of open scopes, root included.
func (t *Tracker) Depth() int {
	return len(t.scopes)
}

// Path names the current scope chain, e.g. "Izhikevich/regime:subthreshold".
func (t *Tracker) Path() string {
	names := make([]string, len(t.scopes))
	for i, s := range t.scopes {
		names[i] = s.name
	}
	return strings.Join(names, "/")
}

// Visible is the union of everything declared along the current scope chain.
func (t *Tracker) Visible() ir.RequiredSet {
	var visible ir.RequiredSet
	for _, s := range t.scopes {
		visible = visible.Union(s.declared)
	}
	return visible
}

// Declared returns what the current scope itself declared so far.
func (t *Tracker) Declared() ir.RequiredSet {
	return t.scopes[len(t.scopes)-1].declared
}

// Declare resolves the expression group and records, in the current scope,
// the symbols not yet visible. The returned incremental set is exactly what
// the scope must emit.
func (t *Tracker) Declare(group []ir.Expression) (ir.RequiredSet, error) {
	required, err := t.resolver.RequiredFor(group)
	if err != nil {
		return ir.RequiredSet{}, err
	}
	return t.DeclareSet(required)
}

// DeclareSet records an already resolved required set. The set must be
// closed under alias expansion, as RequiredFor results (and their
// intersections) are: every alias it declares may only reference symbols
// that are required, visible or excluded.
func (t *Tracker) DeclareSet(required ir.RequiredSet) (ir.RequiredSet, error) {
	visible := t.Visible()
	inc := Diff(required, visible, t.exclude)
	available := required.Union(visible).Union(ir.NewRequiredSet(t.exclude...))

	m := t.resolver.Model()
	var missing []ir.SymbolKey
	for _, name := range inc.Aliases {
		a, ok := m.Alias(name)
		if !ok {
			return ir.RequiredSet{}, &UnknownSymbolError{Name: name}
		}
		for _, ref := range a.References() {
			c, ok := m.Lookup(ref)
			if !ok {
				return ir.RequiredSet{}, &UnknownSymbolError{Name: ref, Alias: name}
			}
			if k := ir.Key(c, ref); !available.Contains(k) {
				missing = append(missing, k)
			}
		}
	}
	if len(missing) > 0 {
		return ir.RequiredSet{}, &ScopeInconsistencyError{
			Scope:   t.Path(),
			Message: "aliases reference symbols that are neither declared nor required",
			Symbols: ir.NewRequiredSet(missing...).Keys(),
		}
	}

	top := t.scopes[len(t.scopes)-1]
	top.declared = top.declared.Union(inc)
	return inc, nil
}
