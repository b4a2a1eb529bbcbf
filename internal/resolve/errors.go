package resolve

import (
	"fmt"
	"strings"

	"github.com/roach88/dyngen/internal/ir"
)

// CircularDependencyError reports an alias reachable from itself.
// Path starts and ends with the same alias.
type CircularDependencyError struct {
	Path []string
}

func (e *CircularDependencyError) Error() string {
	return fmt.Sprintf("circular dependency: %s", strings.Join(e.Path, " → "))
}

// UnknownSymbolError reports a reference that names no declared symbol.
type UnknownSymbolError struct {
	Name string
	// Alias is the alias whose definition holds the reference, or "" when
	// the reference comes straight from the expression group.
	Alias string
}

func (e *UnknownSymbolError) Error() string {
	if e.Alias != "" {
		return fmt.Sprintf("unknown symbol %q referenced by alias %q", e.Name, e.Alias)
	}
	return fmt.Sprintf("unknown symbol %q", e.Name)
}

// ScopeInconsistencyError means the tracker's bookkeeping would declare a
// symbol twice or miss one. Generation must stop without emitting.
type ScopeInconsistencyError struct {
	Scope   string
	Message string
	Symbols []ir.SymbolKey
}

func (e *ScopeInconsistencyError) Error() string {
	if len(e.Symbols) == 0 {
		return fmt.Sprintf("scope %s: %s", e.Scope, e.Message)
	}
	names := make([]string, len(e.Symbols))
	for i, k := range e.Symbols {
		names[i] = k.String()
	}
	return fmt.Sprintf("scope %s: %s: %s", e.Scope, e.Message, strings.Join(names, ", "))
}
