package ledger

import (
	"testing"
	"time"

	"github.com/quillworks/loom/internal/model"
)

func usageOutput(nodeID string, tokens int, cost float64, words int, at time.Time) model.NodeOutput {
	return model.NodeOutput{
		Kind:    model.KindProcess,
		Content: model.TextContent("x"),
		Metadata: model.OutputMetadata{
			NodeID:    nodeID,
			NodeName:  "node " + nodeID,
			Timestamp: at,
		},
		AIUsage: &model.AIUsage{Tokens: tokens, Cost: cost, Words: words, Model: "m", Provider: "p"},
	}
}

func TestAddAccumulates(t *testing.T) {
	l := New()
	now := time.Now()
	l.Add(usageOutput("a", 100, 0.01, 75, now))
	l.Add(usageOutput("b", 200, 0.02, 150, now))

	got := l.Totals()
	if got.TotalTokens != 300 || got.TotalWords != 225 {
		t.Fatalf("Totals = %+v", got)
	}
	if got.TotalCost < 0.0299 || got.TotalCost > 0.0301 {
		t.Fatalf("TotalCost = %v", got.TotalCost)
	}
	if len(l.Entries()) != 2 {
		t.Fatalf("Entries = %d", len(l.Entries()))
	}
}

func TestAddIgnoresOutputsWithoutUsage(t *testing.T) {
	l := New()
	l.Add(model.NodeOutput{Kind: model.KindInput, Content: model.TextContent("x")})
	if len(l.Entries()) != 0 || l.Totals().TotalTokens != 0 {
		t.Fatal("output without usage changed the ledger")
	}
}

func TestRetryReplacesEntry(t *testing.T) {
	l := New()
	now := time.Now()
	l.Add(usageOutput("a", 100, 0.01, 75, now))
	l.Add(usageOutput("b", 50, 0.005, 40, now))

	// Retry of node a: the new usage replaces the old one, it is not added.
	l.Add(usageOutput("a", 120, 0.012, 90, now.Add(time.Minute)))

	got := l.Totals()
	if got.TotalTokens != 170 {
		t.Fatalf("TotalTokens = %d, want 170", got.TotalTokens)
	}
	entries := l.Entries()
	if len(entries) != 2 {
		t.Fatalf("Entries = %d, want 2", len(entries))
	}
	if entries[0].NodeID != "a" || entries[0].Tokens != 120 {
		t.Fatalf("entry[0] = %+v, want replaced node a", entries[0])
	}
}

func TestRecomputeMatchesLive(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	outputs := map[string]model.NodeOutput{
		"c": usageOutput("c", 30, 0.003, 20, base.Add(2*time.Minute)),
		"a": usageOutput("a", 10, 0.001, 8, base),
		"b": usageOutput("b", 20, 0.002, 15, base.Add(time.Minute)),
	}

	live := New()
	live.Add(outputs["a"])
	live.Add(outputs["b"])
	live.Add(outputs["c"])

	recomputed := Recompute(outputs)

	if live.Totals() != recomputed.Totals() {
		t.Fatalf("live %+v != recomputed %+v", live.Totals(), recomputed.Totals())
	}
	le, re := live.Entries(), recomputed.Entries()
	if len(le) != len(re) {
		t.Fatalf("entry count %d != %d", len(le), len(re))
	}
	for i := range le {
		if le[i] != re[i] {
			t.Fatalf("entry %d: live %+v != recomputed %+v", i, le[i], re[i])
		}
	}
}

func TestRecomputeTimestampTiebreaker(t *testing.T) {
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	outputs := map[string]model.NodeOutput{
		"b": usageOutput("b", 2, 0, 0, at),
		"a": usageOutput("a", 1, 0, 0, at),
	}
	entries := Recompute(outputs).Entries()
	if entries[0].NodeID != "a" || entries[1].NodeID != "b" {
		t.Fatalf("tie broken wrong: %+v", entries)
	}
}
