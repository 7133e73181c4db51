package compiler

import (
	"fmt"
	"slices"
	"strings"

	"github.com/roach88/bgproces/internal/ir"
	"github.com/roach88/bgproces/internal/momentopname"
	"github.com/roach88/bgproces/internal/spec"
)

// CycleWarning represents branches whose Basis references form a cycle.
//
// Cycles are warnings, not errors: the loader replays activities in time
// order, so a branch rebased on a branch that was itself rebased on it
// still produces a timeline. It is rarely what the author meant.
type CycleWarning struct {
	Path    []string `json:"path"`    // Cycle path: ["B1", "B2", "B1"]
	Field   string   `json:"field"`   // First Basis property in the cycle
	Message string   `json:"message"` // Human-readable description
}

// AnalyzeBasis builds the branch -> Basis graph of a document and reports
// each strongly connected component with more than one branch, or a
// branch based on itself. Results are ordered by branch name.
func AnalyzeBasis(doc ir.IRObject) []CycleWarning {
	graph, fields := buildBasisGraph(doc)
	if len(graph) == 0 {
		return nil
	}

	var warnings []CycleWarning
	for _, scc := range tarjanSCC(graph) {
		if len(scc) > 1 || (len(scc) == 1 && hasSelfLoop(scc[0], graph)) {
			warnings = append(warnings, cycleSCCToWarning(scc, graph, fields))
		}
	}
	slices.SortFunc(warnings, func(a, b CycleWarning) int {
		return strings.Compare(a.Path[0], b.Path[0])
	})
	return warnings
}

// basisGraph maps a branch to the branches it was based on.
type basisGraph map[string][]string

func buildBasisGraph(doc ir.IRObject) (basisGraph, map[string]string) {
	graph := make(basisGraph)
	fields := make(map[string]string)

	visit := func(path string, v ir.IRValue) {
		arr, _ := v.(ir.IRArray)
		for i, elem := range arr {
			obj, ok := elem.(ir.IRObject)
			if !ok {
				continue
			}
			typ, ok := spec.LookupSoort(stringOf(obj[spec.PropSoort]))
			if !ok {
				continue
			}
			basis := stringOf(obj[spec.PropBasis])
			if basis == "" || basis == momentopname.Uitgangssituatie {
				continue
			}
			for _, key := range obj.SortedKeys() {
				if !typ.IsBranchKey(key) {
					continue
				}
				if !slices.Contains(graph[key], basis) {
					graph[key] = append(graph[key], basis)
				}
				if _, seen := fields[key]; !seen {
					fields[key] = fmt.Sprintf("%s/%d/%s", path, i, spec.PropBasis)
				}
			}
		}
	}

	if obj, ok := doc[spec.KeyProjecten].(ir.IRObject); ok {
		for _, name := range obj.SortedKeys() {
			visit("/"+spec.KeyProjecten+"/"+name, obj[name])
		}
	}
	visit("/"+spec.KeyOverig, doc[spec.KeyOverig])
	return graph, fields
}

func stringOf(v ir.IRValue) string {
	s, _ := v.(ir.IRString)
	return string(s)
}

// hasSelfLoop checks if a node has an edge to itself.
func hasSelfLoop(node string, graph basisGraph) bool {
	return slices.Contains(graph[node], node)
}

// tarjanSCC finds strongly connected components using Tarjan's algorithm.
// Nodes are visited in sorted order so results are deterministic.
func tarjanSCC(graph basisGraph) [][]string {
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

		// Root node: pop the stack and emit an SCC
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

func cycleSCCToWarning(scc []string, graph basisGraph, fields map[string]string) CycleWarning {
	if len(scc) == 1 {
		b := scc[0]
		return CycleWarning{
			Path:    []string{b, b},
			Field:   fields[b],
			Message: fmt.Sprintf("branch %s is based on itself", b),
		}
	}

	path := reconstructCyclePath(scc, graph)
	return CycleWarning{
		Path:    path,
		Field:   fields[path[0]],
		Message: fmt.Sprintf("Basis cycle: %s", strings.Join(path, " -> ")),
	}
}

// reconstructCyclePath walks the SCC from its smallest member, following
// edges that stay inside the SCC, until it returns to the start.
func reconstructCyclePath(scc []string, graph basisGraph) []string {
	members := make(map[string]bool, len(scc))
	for _, n := range scc {
		members[n] = true
	}
	start := slices.Min(scc)

	path := []string{start}
	visited := map[string]bool{start: true}
	current := start
	for {
		next := ""
		for _, w := range graph[current] {
			if w == start && len(path) > 1 {
				return append(path, start)
			}
			if members[w] && !visited[w] {
				next = w
				break
			}
		}
		if next == "" {
			// Every member visited; close the loop.
			return append(path, start)
		}
		path = append(path, next)
		visited[next] = true
		current = next
	}
}
