package compiler

import (
	"fmt"
	"slices"
	"strings"

	"github.com/roach88/robotcore/internal/ir"
)

// CycleError reports routines that call each other in a loop. Inlining such
// a group would never terminate, so it is an error rather than a warning.
type CycleError struct {
	Path []string // e.g. ["a", "b", "a"]
}

func (e *CycleError) Error() string {
	if len(e.Path) == 2 && e.Path[0] == e.Path[1] {
		return fmt.Sprintf("routine %s calls itself", e.Path[0])
	}
	return fmt.Sprintf("routine call cycle: %s", strings.Join(e.Path, " → "))
}

// UnresolvedCallError reports a call step naming a routine that does not
// exist.
type UnresolvedCallError struct {
	Routine string
	Target  string
}

func (e *UnresolvedCallError) Error() string {
	return fmt.Sprintf("routine %s calls unknown routine %q", e.Routine, e.Target)
}

// AnalyzeCalls performs static cycle analysis over the call graph of
// routines. It uses Tarjan's algorithm and reports every strongly connected
// component with more than one member, plus every self-call. An acyclic set
// returns nil.
func AnalyzeCalls(routines []ir.Routine) []*CycleError {
	graph := buildCallGraph(routines)

	var cycles []*CycleError
	for _, scc := range tarjanSCC(graph) {
		if len(scc) > 1 || (len(scc) == 1 && hasSelfLoop(scc[0], graph)) {
			cycles = append(cycles, &CycleError{Path: cyclePath(scc, graph)})
		}
	}
	slices.SortFunc(cycles, func(a, b *CycleError) int {
		return strings.Compare(a.Path[0], b.Path[0])
	})
	return cycles
}

// Link resolves every call step by inlining the callee's root series, named
// after the call step (or the callee when the step is unnamed). It fails on
// unknown targets and call cycles. The input is not modified.
func Link(routines []ir.Routine) ([]ir.Routine, error) {
	byName := make(map[string]ir.Routine, len(routines))
	for _, r := range routines {
		byName[r.Name] = r
	}
	for _, r := range routines {
		for _, target := range r.Root.Calls() {
			if _, ok := byName[target]; !ok {
				return nil, &UnresolvedCallError{Routine: r.Name, Target: target}
			}
		}
	}
	if cycles := AnalyzeCalls(routines); len(cycles) > 0 {
		return nil, cycles[0]
	}

	out := make([]ir.Routine, len(routines))
	for i, r := range routines {
		out[i] = r
		out[i].Root = inline(r.Root, byName)
	}
	return out, nil
}

func inline(s ir.Step, byName map[string]ir.Routine) ir.Step {
	if s.Kind == ir.StepCall {
		callee := byName[s.Binding]
		name := s.Name
		if name == "" {
			name = callee.Name
		}
		root := inline(callee.Root, byName)
		root.Name = name
		return root
	}
	if len(s.Children) == 0 {
		return s
	}
	kids := make([]ir.Step, len(s.Children))
	for i, c := range s.Children {
		kids[i] = inline(c, byName)
	}
	s.Children = kids
	return s
}

// callGraph maps routine name → routines it calls.
type callGraph map[string][]string

func buildCallGraph(routines []ir.Routine) callGraph {
	graph := make(callGraph, len(routines))
	for _, r := range routines {
		graph[r.Name] = append([]string{}, r.Root.Calls()...)
	}
	return graph
}

func hasSelfLoop(node string, graph callGraph) bool {
	return slices.Contains(graph[node], node)
}

// tarjanSCC finds strongly connected components. Nodes are visited in
// sorted order so results are deterministic.
func tarjanSCC(graph callGraph) [][]string {
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

// cyclePath walks an SCC from its smallest member back to itself.
func cyclePath(scc []string, graph callGraph) []string {
	members := make(map[string]bool, len(scc))
	for _, n := range scc {
		members[n] = true
	}
	start := slices.Min(scc)
	if len(scc) == 1 {
		return []string{start, start}
	}

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
