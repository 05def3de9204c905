// Package graph compiles a node/edge list into a safe execution order.
//
// The order honors every dependency edge while staying as close as possible
// to the author's visual layout: nodes are first sorted into 50-unit
// horizontal bands by canvas position (top-to-bottom, then left-to-right),
// then visited dependencies-first so the topological order follows the
// visual reading order wherever the edges allow. Output-kind nodes are
// always moved to the end of the sequence; delivering results is the
// terminal action regardless of where the sort placed them.
package graph

import (
	"fmt"
	"log/slog"
	"math"
	"sort"

	"github.com/quillworks/loom/internal/model"
)

// rowBand is the height of one visual row on the canvas. Nodes whose Y
// positions fall in the same band are treated as the same row.
const rowBand = 50

// CycleError reports a dependency cycle discovered during compilation.
type CycleError struct {
	NodeID string
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("dependency cycle through node %q", e.NodeID)
}

// OutputDependencyError reports a graph where a non-output node depends on
// an output-kind node. Because output nodes are forced to the end of the
// execution order, such an edge can never be satisfied; the graph is
// rejected at compile time.
type OutputDependencyError struct {
	OutputNodeID string
	DependentID  string
}

func (e *OutputDependencyError) Error() string {
	return fmt.Sprintf("node %q depends on output node %q, which always executes last", e.DependentID, e.OutputNodeID)
}

// Compile produces the execution order for the given nodes and edges.
// For every edge (u, v), u precedes v in the result, with the single
// documented exception that output-kind nodes are relocated to the tail.
// Graphs where that relocation would break an edge are rejected.
func Compile(nodes []model.Node, edges []model.Edge) ([]model.Node, error) {
	if len(nodes) == 0 {
		return nil, nil
	}

	byID := make(map[string]model.Node, len(nodes))
	for _, n := range nodes {
		byID[n.ID] = n
	}

	// deps[v] = all u with an edge u -> v.
	deps := make(map[string][]string, len(nodes))
	for _, e := range edges {
		if _, ok := byID[e.Source]; !ok {
			continue
		}
		if _, ok := byID[e.Target]; !ok {
			continue
		}
		deps[e.Target] = append(deps[e.Target], e.Source)
	}

	seeds := visualOrder(nodes)

	// Dependency-first DFS seeded in visual order.
	const (
		unvisited = 0
		visiting  = 1
		done      = 2
	)
	state := make(map[string]int, len(nodes))
	order := make([]model.Node, 0, len(nodes))

	var visit func(id string) error
	visit = func(id string) error {
		switch state[id] {
		case done:
			return nil
		case visiting:
			return &CycleError{NodeID: id}
		}
		state[id] = visiting
		for _, dep := range sortedDeps(deps[id], seeds) {
			if err := visit(dep); err != nil {
				return err
			}
		}
		state[id] = done
		order = append(order, byID[id])
		return nil
	}

	for _, n := range seeds {
		if err := visit(n.ID); err != nil {
			return nil, err
		}
	}

	order = outputsLast(order)

	if err := validate(order, deps); err != nil {
		return nil, err
	}
	return order, nil
}

// visualOrder sorts nodes by row band (Y bucketed to rowBand units), then X.
func visualOrder(nodes []model.Node) []model.Node {
	sorted := make([]model.Node, len(nodes))
	copy(sorted, nodes)
	sort.SliceStable(sorted, func(i, j int) bool {
		ri := rowOf(sorted[i].Position.Y)
		rj := rowOf(sorted[j].Position.Y)
		if ri != rj {
			return ri < rj
		}
		return sorted[i].Position.X < sorted[j].Position.X
	})
	return sorted
}

// rowOf buckets a Y coordinate into its visual row. Floor division keeps
// negative coordinates in consistent bands; integer division would collapse
// (-rowBand, rowBand) into one double-height row.
func rowOf(y float64) int {
	return int(math.Floor(y / rowBand))
}

// sortedDeps orders a node's dependencies by their visual seed position so
// the DFS expansion stays deterministic.
func sortedDeps(depIDs []string, seeds []model.Node) []string {
	if len(depIDs) < 2 {
		return depIDs
	}
	pos := make(map[string]int, len(seeds))
	for i, n := range seeds {
		pos[n.ID] = i
	}
	out := make([]string, len(depIDs))
	copy(out, depIDs)
	sort.SliceStable(out, func(i, j int) bool {
		return pos[out[i]] < pos[out[j]]
	})
	return out
}

// outputsLast moves output-kind nodes to the tail, preserving relative
// order within each partition.
func outputsLast(order []model.Node) []model.Node {
	out := make([]model.Node, 0, len(order))
	var tail []model.Node
	for _, n := range order {
		if n.Kind == model.KindOutput {
			tail = append(tail, n)
			continue
		}
		out = append(out, n)
	}
	return append(out, tail...)
}

// validate re-checks every dependency after the output relocation. A
// violated edge whose source is an output node is an authoring error and is
// rejected; anything else would be a compiler bug and is also rejected,
// after logging, because executing out of order corrupts the run.
func validate(order []model.Node, deps map[string][]string) error {
	index := make(map[string]int, len(order))
	kind := make(map[string]model.NodeKind, len(order))
	for i, n := range order {
		index[n.ID] = i
		kind[n.ID] = n.Kind
	}
	for _, n := range order {
		for _, dep := range deps[n.ID] {
			if index[dep] < index[n.ID] {
				continue
			}
			if kind[dep] == model.KindOutput {
				return &OutputDependencyError{OutputNodeID: dep, DependentID: n.ID}
			}
			slog.Error("graph: compiled order violates dependency",
				"node", n.ID, "dependency", dep)
			return fmt.Errorf("compiled order places %q before its dependency %q", n.ID, dep)
		}
	}
	return nil
}

// Index returns the position of nodeID in order, or -1 when absent.
func Index(order []model.Node, nodeID string) int {
	for i, n := range order {
		if n.ID == nodeID {
			return i
		}
	}
	return -1
}
