package compiler

import (
	"fmt"
	"slices"
	"strings"

	"github.com/roach88/dyngen/internal/ir"
)

// AliasCycle describes a set of aliases that depend on each other.
type AliasCycle struct {
	Path    []string `json:"path"`    // Cycle path: ["a", "b", "a"]
	Message string   `json:"message"` // Human-readable description
}

// AnalyzeAliasCycles performs static cycle analysis on alias definitions.
//
// The algorithm:
//  1. Build alias → alias dependency graph from alias references
//  2. Use Tarjan's algorithm to find strongly connected components
//  3. Report each SCC with size > 1 or a self-loop as a cycle
//
// The resolver also detects cycles, but only along the aliases an
// expression group actually reaches; this reports every cycle in the model
// up front. Nodes are visited in sorted order so reports are deterministic.
func AnalyzeAliasCycles(m *ir.ModelClass) []AliasCycle {
	graph := buildAliasGraph(m)
	if len(graph) == 0 {
		return nil
	}

	var cycles []AliasCycle
	for _, scc := range tarjanSCC(graph) {
		if len(scc) > 1 || (len(scc) == 1 && hasSelfLoop(scc[0], graph)) {
			cycles = append(cycles, cycleFromSCC(scc, graph))
		}
	}
	slices.SortFunc(cycles, func(a, b AliasCycle) int {
		return strings.Compare(a.Path[0], b.Path[0])
	})
	return cycles
}

// dependencyGraph maps alias → aliases it references, sorted.
type dependencyGraph map[string][]string

func buildAliasGraph(m *ir.ModelClass) dependencyGraph {
	graph := make(dependencyGraph)
	for _, a := range m.Aliases {
		edges := []string{}
		for _, ref := range a.References() {
			if c, ok := m.Lookup(ref); ok && c == ir.Alias {
				edges = append(edges, ref)
			}
		}
		graph[a.Name] = edges
	}
	return graph
}

func hasSelfLoop(node string, graph dependencyGraph) bool {
	return slices.Contains(graph[node], node)
}

// tarjanSCC finds strongly connected components using Tarjan's algorithm.
// Single-node SCCs without self-loops are NOT cycles.
func tarjanSCC(graph dependencyGraph) [][]string {
	var (
		index   = 0
		stack   []string
		indices = make(map[string]int)
		lowlink = make(map[string]int)
		onStack = make(map[string]bool)
		sccs    [][]string
	)

	var strongConnect func(string)
	strongConnect = func(v string) {
		indices[v] = index
		lowlink[v] = index
		index++
		stack = append(stack, v)
		onStack[v] = true

		for _, w := range graph[v] {
			if _, visited := indices[w]; !visited {
				strongConnect(w)
				lowlink[v] = min(lowlink[v], lowlink[w])
			} else if onStack[w] {
				lowlink[v] = min(lowlink[v], indices[w])
			}
		}

		if lowlink[v] == indices[v] {
			var scc []string
			for {
				w := stack[len(stack)-1]
				stack = stack[:len(stack)-1]
				onStack[w] = false
				scc = append(scc, w)
				if w == v {
					break
				}
			}
			sccs = append(sccs, scc)
		}
	}

	nodes := make([]string, 0, len(graph))
	for node := range graph {
		nodes = append(nodes, node)
	}
	slices.Sort(nodes)
	for _, node := range nodes {
		if _, visited := indices[node]; !visited {
			strongConnect(node)
		}
	}

	return sccs
}

// cycleFromSCC walks the SCC from its lexically smallest member back to
// itself to produce a readable cycle path.
func cycleFromSCC(scc []string, graph dependencyGraph) AliasCycle {
	slices.Sort(scc)
	start := scc[0]

	if len(scc) == 1 {
		return AliasCycle{
			Path:    []string{start, start},
			Message: fmt.Sprintf("alias %s references itself", start),
		}
	}

	members := make(map[string]bool, len(scc))
	for _, node := range scc {
		members[node] = true
	}

	path := []string{start}
	visited := map[string]bool{start: true}
	current := start
	for {
		var next string
		for _, neighbor := range graph[current] {
			if members[neighbor] && (!visited[neighbor] || neighbor == start) {
				next = neighbor
				break
			}
		}
		if next == "" {
			break
		}
		path = append(path, next)
		if next == start {
			break
		}
		visited[next] = true
		current = next
	}

	return AliasCycle{
		Path:    path,
		Message: fmt.Sprintf("circular alias dependency: %s", strings.Join(path, " → ")),
	}
}
