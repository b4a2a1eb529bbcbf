package resolve

import (
	"slices"

	"github.com/roach88/dyngen/internal/ir"
)

// AliasOrder sorts the aliases of an incremental set so every alias comes
// after the aliases it references. Ties break lexically, which makes the
// order a pure function of the set.
//
// References to aliases outside names are ignored: those were bound by an
// enclosing scope.
func AliasOrder(m *ir.ModelClass, names []string) ([]string, error) {
	inSet := make(map[string]bool, len(names))
	for _, n := range names {
		inSet[n] = true
	}

	indegree := make(map[string]int, len(names))
	dependents := make(map[string][]string, len(names))
	for _, n := range names {
		alias, _ := m.Alias(n)
		for _, ref := range alias.References() {
			if ref == n && inSet[n] {
				return nil, &CircularDependencyError{Path: []string{n, n}}
			}
			if inSet[ref] {
				indegree[n]++
				dependents[ref] = append(dependents[ref], n)
			}
		}
	}

	var ready []string
	for _, n := range names {
		if indegree[n] == 0 {
			ready = append(ready, n)
		}
	}
	slices.Sort(ready)

	ordered := make([]string, 0, len(names))
	for len(ready) > 0 {
		n := ready[0]
		ready = ready[1:]
		ordered = append(ordered, n)
		for _, d := range dependents[n] {
			indegree[d]--
			if indegree[d] == 0 {
				ready = append(ready, d)
				slices.Sort(ready)
			}
		}
	}

	if len(ordered) != len(names) {
		var stuck []string
		for _, n := range names {
			if indegree[n] > 0 {
				stuck = append(stuck, n)
			}
		}
		slices.Sort(stuck)
		// Any stuck alias lies on or behind a cycle; the resolver reports
		// the exact path.
		if _, err := New(m).RequiredForAliases(stuck...); err != nil {
			return nil, err
		}
		return nil, &CircularDependencyError{Path: append(stuck, stuck[0])}
	}
	return ordered, nil
}
