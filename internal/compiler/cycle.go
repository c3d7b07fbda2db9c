package compiler

import (
	"fmt"
	"sort"
	"strings"

	"github.com/weftworks/weft/internal/ir"
)

// CycleWarning flags a potential loop in the sync graph. Cycles are
// warnings, not errors: retry rules keyed on an error variant or
// self-correcting feedback loops are legitimate, and the engine's runtime
// cycle guard and step quota bound them anyway.
type CycleWarning struct {
	Path    []string `json:"path"` // e.g. ["sync-a", "sync-b", "sync-a"]
	Message string   `json:"message"`
}

// AnalyzeCycles statically analyzes the sync graph for loops. An edge
// runs from sync A to sync B when some then clause of A invokes an action
// that some when clause of B triggers on. Strongly connected components
// of size greater than one, and self-loops, are reported.
//
// A DAG returns no warnings.
func AnalyzeCycles(syncs []ir.Sync) []CycleWarning {
	if len(syncs) == 0 {
		return nil
	}

	graph := buildSyncGraph(syncs)
	sccs := tarjanSCC(graph)

	var warnings []CycleWarning
	for _, scc := range sccs {
		if len(scc) > 1 || hasSelfLoop(scc[0], graph) {
			warnings = append(warnings, sccWarning(scc, graph))
		}
	}
	return warnings
}

// syncGraph maps sync name to the syncs its then clauses can trigger.
type syncGraph map[string][]string

func buildSyncGraph(syncs []ir.Sync) syncGraph {
	// Which syncs does each (concept, action) trigger? Variants are
	// ignored here: static analysis over-approximates, the runtime guard
	// is exact.
	triggers := make(map[string][]string)
	for _, s := range syncs {
		for _, w := range s.When {
			key := w.TriggerKey()
			triggers[key] = append(triggers[key], s.Name)
		}
	}

	graph := make(syncGraph, len(syncs))
	for _, s := range syncs {
		graph[s.Name] = []string{}
		for _, t := range s.Then {
			key := ir.WhenClause{Concept: t.Concept, Action: t.Action}.TriggerKey()
			graph[s.Name] = append(graph[s.Name], triggers[key]...)
		}
	}
	return graph
}

func hasSelfLoop(node string, graph syncGraph) bool {
	for _, next := range graph[node] {
		if next == node {
			return true
		}
	}
	return false
}

// tarjanSCC finds strongly connected components. Iterative roots in
// sorted order keep the output deterministic.
func tarjanSCC(graph syncGraph) [][]string {
	nodes := make([]string, 0, len(graph))
	for n := range graph {
		nodes = append(nodes, n)
	}
	sort.Strings(nodes)

	var (
		index   int
		stack   []string
		indices = make(map[string]int)
		lowlink = make(map[string]int)
		onStack = make(map[string]bool)
		sccs    [][]string
	)

	var connect func(string)
	connect = func(v string) {
		indices[v] = index
		lowlink[v] = index
		index++
		stack = append(stack, v)
		onStack[v] = true

		for _, w := range graph[v] {
			if _, visited := indices[w]; !visited {
				connect(w)
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

	for _, n := range nodes {
		if _, visited := indices[n]; !visited {
			connect(n)
		}
	}
	return sccs
}

func sccWarning(scc []string, graph syncGraph) CycleWarning {
	if len(scc) == 1 {
		name := scc[0]
		return CycleWarning{
			Path:    []string{name, name},
			Message: fmt.Sprintf("self-triggering sync: %s invokes an action it also triggers on", name),
		}
	}

	path := cyclePath(scc, graph)
	return CycleWarning{
		Path:    path,
		Message: fmt.Sprintf("potential sync cycle: %s", strings.Join(path, " -> ")),
	}
}

// cyclePath walks edges within the SCC from its first member back to the
// start, producing a concrete example loop for the warning message.
func cyclePath(scc []string, graph syncGraph) []string {
	members := make(map[string]bool, len(scc))
	for _, n := range scc {
		members[n] = true
	}

	start := scc[0]
	path := []string{start}
	visited := map[string]bool{start: true}
	current := start

	for {
		var next string
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
		visited[next] = true
		current = next
	}
	return path
}
