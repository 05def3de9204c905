package graph

import (
	"errors"
	"testing"

	"github.com/quillworks/loom/internal/model"
)

func node(id string, kind model.NodeKind, x, y float64) model.Node {
	return model.Node{ID: id, Kind: kind, Label: id, Position: model.Position{X: x, Y: y}}
}

func ids(order []model.Node) []string {
	out := make([]string, len(order))
	for i, n := range order {
		out[i] = n.ID
	}
	return out
}

func assertOrder(t *testing.T, order []model.Node, want []string) {
	t.Helper()
	got := ids(order)
	if len(got) != len(want) {
		t.Fatalf("order = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("order = %v, want %v", got, want)
		}
	}
}

func TestCompileFollowsVisualLayout(t *testing.T) {
	// Two rows: a, b on top (left to right), c below.
	nodes := []model.Node{
		node("c", model.KindProcess, 0, 120),
		node("b", model.KindProcess, 300, 10),
		node("a", model.KindInput, 0, 10),
	}
	order, err := Compile(nodes, nil)
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	assertOrder(t, order, []string{"a", "b", "c"})
}

func TestCompileSameBandSortsByX(t *testing.T) {
	// Y positions 10 and 40 fall in the same 50-unit band; X decides.
	nodes := []model.Node{
		node("right", model.KindProcess, 500, 10),
		node("left", model.KindProcess, 100, 40),
	}
	order, err := Compile(nodes, nil)
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	assertOrder(t, order, []string{"left", "right"})
}

func TestCompileNegativeRowsFloorBanded(t *testing.T) {
	// Y = -30 sits in the band above Y = 10; truncating division would
	// collapse both into one band and let X put "below" first.
	nodes := []model.Node{
		node("below", model.KindProcess, 0, 10),
		node("above", model.KindProcess, 500, -30),
	}
	order, err := Compile(nodes, nil)
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	assertOrder(t, order, []string{"above", "below"})
}

func TestCompileDependencyOverridesLayout(t *testing.T) {
	// b sits above a on the canvas, but depends on a.
	nodes := []model.Node{
		node("b", model.KindProcess, 0, 10),
		node("a", model.KindProcess, 0, 200),
	}
	edges := []model.Edge{{Source: "a", Target: "b"}}
	order, err := Compile(nodes, edges)
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	assertOrder(t, order, []string{"a", "b"})
}

func TestCompileEveryEdgeHonored(t *testing.T) {
	nodes := []model.Node{
		node("in", model.KindInput, 0, 0),
		node("outline", model.KindProcess, 0, 100),
		node("write", model.KindProcess, 0, 200),
		node("edit", model.KindProcess, 0, 300),
		node("deliver", model.KindOutput, 0, 400),
	}
	edges := []model.Edge{
		{Source: "in", Target: "outline"},
		{Source: "outline", Target: "write"},
		{Source: "write", Target: "edit"},
		{Source: "edit", Target: "deliver"},
	}
	order, err := Compile(nodes, edges)
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	for _, e := range edges {
		if Index(order, e.Source) >= Index(order, e.Target) {
			t.Errorf("edge %s -> %s violated in %v", e.Source, e.Target, ids(order))
		}
	}
}

func TestCompileOutputsAlwaysLast(t *testing.T) {
	// The output node is placed top-left, before everything visually.
	nodes := []model.Node{
		node("deliver", model.KindOutput, 0, 0),
		node("write", model.KindProcess, 0, 100),
		node("in", model.KindInput, 100, 100),
	}
	order, err := Compile(nodes, nil)
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	if order[len(order)-1].ID != "deliver" {
		t.Fatalf("output node not last: %v", ids(order))
	}
}

func TestCompileMultipleOutputsKeepRelativeOrder(t *testing.T) {
	nodes := []model.Node{
		node("out1", model.KindOutput, 0, 0),
		node("out2", model.KindOutput, 100, 0),
		node("p", model.KindProcess, 0, 100),
	}
	order, err := Compile(nodes, nil)
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	assertOrder(t, order, []string{"p", "out1", "out2"})
}

func TestCompileCycleRejected(t *testing.T) {
	nodes := []model.Node{
		node("a", model.KindProcess, 0, 0),
		node("b", model.KindProcess, 0, 100),
	}
	edges := []model.Edge{
		{Source: "a", Target: "b"},
		{Source: "b", Target: "a"},
	}
	_, err := Compile(nodes, edges)
	var ce *CycleError
	if !errors.As(err, &ce) {
		t.Fatalf("err = %v, want CycleError", err)
	}
}

func TestCompileOutputDependencyRejected(t *testing.T) {
	// A process node depending on an output node can never run in order.
	nodes := []model.Node{
		node("deliver", model.KindOutput, 0, 0),
		node("after", model.KindProcess, 0, 100),
	}
	edges := []model.Edge{{Source: "deliver", Target: "after"}}
	_, err := Compile(nodes, edges)
	var oe *OutputDependencyError
	if !errors.As(err, &oe) {
		t.Fatalf("err = %v, want OutputDependencyError", err)
	}
	if oe.OutputNodeID != "deliver" || oe.DependentID != "after" {
		t.Fatalf("unexpected error detail: %+v", oe)
	}
}

func TestCompileIgnoresDanglingEdges(t *testing.T) {
	nodes := []model.Node{node("a", model.KindProcess, 0, 0)}
	edges := []model.Edge{{Source: "ghost", Target: "a"}}
	order, err := Compile(nodes, edges)
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	assertOrder(t, order, []string{"a"})
}

func TestCompileEmpty(t *testing.T) {
	order, err := Compile(nil, nil)
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	if len(order) != 0 {
		t.Fatalf("expected empty order, got %v", ids(order))
	}
}

func TestIndex(t *testing.T) {
	order := []model.Node{node("a", model.KindProcess, 0, 0), node("b", model.KindProcess, 0, 100)}
	if got := Index(order, "b"); got != 1 {
		t.Fatalf("Index(b) = %d, want 1", got)
	}
	if got := Index(order, "zzz"); got != -1 {
		t.Fatalf("Index(zzz) = %d, want -1", got)
	}
}
