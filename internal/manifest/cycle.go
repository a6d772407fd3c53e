package manifest

import (
	"github.com/droverhq/drover/internal/ir"
)

// DetectCycles finds dependency cycles in a pipeline's task graph.
//
// The graph has an edge dep -> task for every entry in a task's after
// list. Tarjan's algorithm finds strongly connected components; every
// SCC larger than one node, plus self-loops, is a cycle.
//
// Cycles are compile errors, not warnings. A cyclic dependency graph
// has no valid execution order, and running it anyway (as systems of
// this kind sometimes do, by dumping the remaining tasks into one
// batch) silently violates the ordering the manifest asked for.
//
// Each returned cycle is a closed path, e.g. ["a", "b", "a"].
func DetectCycles(spec *ir.PipelineSpec) [][]string {
	graph := make(map[string][]string, len(spec.Tasks))
	for _, t := range spec.Tasks {
		if graph[t.Name] == nil {
			graph[t.Name] = []string{}
		}
		for _, dep := range t.After {
			graph[dep] = append(graph[dep], t.Name)
		}
	}

	var cycles [][]string
	for _, scc := range tarjanSCC(graph) {
		if len(scc) > 1 || hasSelfLoop(scc[0], graph) {
			cycles = append(cycles, closePath(scc, graph))
		}
	}
	return cycles
}

func hasSelfLoop(node string, graph map[string][]string) bool {
	for _, n := range graph[node] {
		if n == node {
			return true
		}
	}
	return false
}

// tarjanSCC finds strongly connected components. Single-node SCCs
// without self-loops are not cycles and are filtered by the caller.
func tarjanSCC(graph map[string][]string) [][]string {
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

	// Iterate in declaration-friendly order: sorted keys would also
	// work, but SCC membership is order-independent and the caller
	// reconstructs paths explicitly.
	for node := range graph {
		if _, visited := indices[node]; !visited {
			strongConnect(node)
		}
	}

	return sccs
}

// closePath reconstructs a closed cycle path through an SCC by
// following edges between members until returning to the start.
func closePath(scc []string, graph map[string][]string) []string {
	if len(scc) == 1 {
		return []string{scc[0], scc[0]}
	}

	members := make(map[string]bool, len(scc))
	for _, n := range scc {
		members[n] = true
	}

	start := scc[0]
	path := []string{start}
	visited := map[string]bool{}
	current := start

	for {
		visited[current] = true
		next := ""
		for _, n := range graph[current] {
			if members[n] && (!visited[n] || n == start) {
				next = n
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
		current = next
	}

	return path
}
