// Package ledger accumulates AI usage and cost per node and in aggregate.
//
// Totals are derivable two ways: live via Add during execution, and purely
// from persisted node outputs via Recompute after a resume in a different
// process. Both derivations agree exactly because they fold the same
// entries in the same order.
package ledger

import (
	"sort"

	"github.com/quillworks/loom/internal/model"
)

// Ledger is the running usage record for one run. Not safe for concurrent
// use; a run's orchestrator is its only writer.
type Ledger struct {
	entries []model.LedgerEntry
	totals  model.TokenTotals
}

// New returns an empty ledger.
func New() *Ledger {
	return &Ledger{}
}

// Add appends one node's usage. Outputs without AI usage are ignored so the
// caller can feed every node output unconditionally.
func (l *Ledger) Add(out model.NodeOutput) {
	if out.AIUsage == nil {
		return
	}
	entry := model.LedgerEntry{
		NodeID:   out.Metadata.NodeID,
		NodeName: out.Metadata.NodeName,
		Tokens:   out.AIUsage.Tokens,
		Cost:     out.AIUsage.Cost,
		Words:    out.AIUsage.Words,
		Model:    out.AIUsage.Model,
		Provider: out.AIUsage.Provider,
	}
	// A retried node replaces its prior entry wholesale, mirroring how the
	// pipeline state replaces the node's output.
	for i := range l.entries {
		if l.entries[i].NodeID == entry.NodeID {
			l.subtract(l.entries[i])
			l.entries[i] = entry
			l.accumulate(entry)
			return
		}
	}
	l.entries = append(l.entries, entry)
	l.accumulate(entry)
}

func (l *Ledger) accumulate(e model.LedgerEntry) {
	l.totals.TotalTokens += e.Tokens
	l.totals.TotalCost += e.Cost
	l.totals.TotalWords += e.Words
}

func (l *Ledger) subtract(e model.LedgerEntry) {
	l.totals.TotalTokens -= e.Tokens
	l.totals.TotalCost -= e.Cost
	l.totals.TotalWords -= e.Words
}

// Totals returns the aggregate usage.
func (l *Ledger) Totals() model.TokenTotals {
	return l.totals
}

// Entries returns the per-node ledger in insertion order.
func (l *Ledger) Entries() []model.LedgerEntry {
	out := make([]model.LedgerEntry, len(l.entries))
	copy(out, l.entries)
	return out
}

// Recompute rebuilds a ledger purely from persisted node outputs, ordered
// by output timestamp with node id as tiebreaker. Used after a resume where
// the live ledger was lost with the original process.
func Recompute(outputs map[string]model.NodeOutput) *Ledger {
	ordered := make([]model.NodeOutput, 0, len(outputs))
	for _, out := range outputs {
		ordered = append(ordered, out)
	}
	sort.SliceStable(ordered, func(i, j int) bool {
		ti, tj := ordered[i].Metadata.Timestamp, ordered[j].Metadata.Timestamp
		if !ti.Equal(tj) {
			return ti.Before(tj)
		}
		return ordered[i].Metadata.NodeID < ordered[j].Metadata.NodeID
	})
	l := New()
	for _, out := range ordered {
		l.Add(out)
	}
	return l
}
