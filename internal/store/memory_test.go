package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/quillworks/loom/internal/model"
)

func testEngine(id string, status model.EngineStatus) *model.Engine {
	return &model.Engine{
		ID:     id,
		Name:   "engine " + id,
		Status: status,
		Nodes:  []model.Node{{ID: "in", Kind: model.KindInput, Label: "Input"}},
	}
}

func TestMemoryEngineCRUD(t *testing.T) {
	ctx := context.Background()
	s := NewMemory()

	if err := s.CreateEngine(ctx, testEngine("eng-1", model.EngineDraft)); err != nil {
		t.Fatalf("CreateEngine: %v", err)
	}

	got, err := s.GetEngine(ctx, "eng-1")
	if err != nil {
		t.Fatalf("GetEngine: %v", err)
	}
	if got.Name != "engine eng-1" {
		t.Fatalf("Name = %q", got.Name)
	}

	got.Status = model.EngineActive
	if err := s.UpdateEngine(ctx, got); err != nil {
		t.Fatalf("UpdateEngine: %v", err)
	}
	updated, _ := s.GetEngine(ctx, "eng-1")
	if updated.Status != model.EngineActive {
		t.Fatalf("Status = %s", updated.Status)
	}

	if err := s.DeleteEngine(ctx, "eng-1"); err != nil {
		t.Fatalf("DeleteEngine: %v", err)
	}
	if _, err := s.GetEngine(ctx, "eng-1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestMemoryListEnginesFiltersByStatus(t *testing.T) {
	ctx := context.Background()
	s := NewMemory()
	s.CreateEngine(ctx, testEngine("eng-a", model.EngineDraft))
	s.CreateEngine(ctx, testEngine("eng-b", model.EngineActive))

	all, err := s.ListEngines(ctx, "")
	if err != nil {
		t.Fatalf("ListEngines: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("len = %d", len(all))
	}

	active, _ := s.ListEngines(ctx, model.EngineActive)
	if len(active) != 1 || active[0].ID != "eng-b" {
		t.Fatalf("active = %+v", active)
	}
}

func TestMemoryReadReturnsCopy(t *testing.T) {
	ctx := context.Background()
	s := NewMemory()
	s.CreateRecord(ctx, &model.ExecutionRecord{ID: "run-1", Status: model.StatusRunning})

	first, _ := s.ReadRecord(ctx, "run-1")
	first.Status = model.StatusFailed
	first.CompletedNodeIDs = append(first.CompletedNodeIDs, "mutated")

	second, _ := s.ReadRecord(ctx, "run-1")
	if second.Status != model.StatusRunning || len(second.CompletedNodeIDs) != 0 {
		t.Fatalf("stored record mutated through a read copy: %+v", second)
	}
}

func TestMemoryMergeWriteRecord(t *testing.T) {
	ctx := context.Background()
	s := NewMemory()
	s.CreateRecord(ctx, &model.ExecutionRecord{
		ID:            "run-1",
		Status:        model.StatusRunning,
		CurrentNodeID: "write",
	})

	// Two merges touching disjoint fields.
	paused := model.StatusPaused
	if err := s.MergeWriteRecord(ctx, "run-1", &model.RecordUpdate{Status: &paused}); err != nil {
		t.Fatalf("MergeWriteRecord: %v", err)
	}
	stop := true
	if err := s.MergeWriteRecord(ctx, "run-1", &model.RecordUpdate{StopRequested: &stop}); err != nil {
		t.Fatalf("MergeWriteRecord: %v", err)
	}

	rec, _ := s.ReadRecord(ctx, "run-1")
	if rec.Status != model.StatusPaused || !rec.StopRequested || rec.CurrentNodeID != "write" {
		t.Fatalf("merge clobbered fields: %+v", rec)
	}
}

func TestMemoryMergeWriteMissingRecord(t *testing.T) {
	s := NewMemory()
	err := s.MergeWriteRecord(context.Background(), "nope", &model.RecordUpdate{})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestMemoryListRecordsNewestFirst(t *testing.T) {
	ctx := context.Background()
	s := NewMemory()
	base := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	s.CreateRecord(ctx, &model.ExecutionRecord{ID: "run-old", CreatedAt: base})
	s.CreateRecord(ctx, &model.ExecutionRecord{ID: "run-new", CreatedAt: base.Add(time.Hour)})
	s.CreateRecord(ctx, &model.ExecutionRecord{ID: "run-mid", CreatedAt: base.Add(time.Minute)})

	records, err := s.ListRecords(ctx, 2)
	if err != nil {
		t.Fatalf("ListRecords: %v", err)
	}
	if len(records) != 2 || records[0].ID != "run-new" || records[1].ID != "run-mid" {
		t.Fatalf("records = %+v", records)
	}
}
