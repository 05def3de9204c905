package checkpoint

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/quillworks/loom/internal/model"
	"github.com/quillworks/loom/internal/store"
)

func output(nodeID string, structural bool, at time.Time) model.NodeOutput {
	return model.NodeOutput{
		Kind:    model.KindProcess,
		Content: model.TextContent("output of " + nodeID),
		Metadata: model.OutputMetadata{
			NodeID:      nodeID,
			NodeName:    nodeID,
			Permissions: model.Permission{CanWriteContent: true, CanEditStructure: structural},
			Timestamp:   at,
		},
	}
}

func TestSaveLoadClear(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory()
	st.CreateRecord(ctx, &model.ExecutionRecord{ID: "run-1", Status: model.StatusRunning})

	m := NewManager(st)

	state := model.NewPipelineState(map[string]any{"topic": "dragons"}, "ines")
	state.SetOutput("outline", output("outline", true, time.Now()))

	if err := m.Save(ctx, "run-1", "write", state, []string{"outline"}); err != nil {
		t.Fatalf("Save: %v", err)
	}

	cp, err := m.Load(ctx, "run-1")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cp.FailedAtNodeID != "write" {
		t.Fatalf("FailedAtNodeID = %q", cp.FailedAtNodeID)
	}
	if len(cp.CompletedNodeIDs) != 1 || cp.CompletedNodeIDs[0] != "outline" {
		t.Fatalf("CompletedNodeIDs = %v", cp.CompletedNodeIDs)
	}
	if cp.UserInput["topic"] != "dragons" {
		t.Fatalf("UserInput = %v", cp.UserInput)
	}

	rec, _ := st.ReadRecord(ctx, "run-1")
	if !rec.Resumable {
		t.Fatal("record not marked resumable")
	}

	if err := m.Clear(ctx, "run-1"); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	rec, _ = st.ReadRecord(ctx, "run-1")
	if rec.Checkpoint != nil || rec.Resumable {
		t.Fatalf("checkpoint not cleared: %+v", rec)
	}
}

func TestSavePreservesOtherRecordFields(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory()
	st.CreateRecord(ctx, &model.ExecutionRecord{
		ID:            "run-1",
		Status:        model.StatusRunning,
		StopRequested: true,
	})

	m := NewManager(st)
	if err := m.Save(ctx, "run-1", "write", model.NewPipelineState(nil, ""), nil); err != nil {
		t.Fatalf("Save: %v", err)
	}

	rec, _ := st.ReadRecord(ctx, "run-1")
	if !rec.StopRequested {
		t.Fatal("Save clobbered StopRequested")
	}
}

func TestLoadNoCheckpoint(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory()
	st.CreateRecord(ctx, &model.ExecutionRecord{ID: "run-1"})

	_, err := NewManager(st).Load(ctx, "run-1")
	var noCP *ErrNoCheckpoint
	if !errors.As(err, &noCP) {
		t.Fatalf("err = %v, want ErrNoCheckpoint", err)
	}
	if noCP.ExecutionID != "run-1" {
		t.Fatalf("ExecutionID = %q", noCP.ExecutionID)
	}
}

func TestLoadMissingRecord(t *testing.T) {
	st := store.NewMemory()
	_, err := NewManager(st).Load(context.Background(), "nope")
	if !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestRestore(t *testing.T) {
	now := time.Now().UTC()
	cp := &model.Checkpoint{
		FailedAtNodeID: "edit",
		NodeOutputs: map[string]model.NodeOutput{
			"outline": output("outline", true, now),
			"write":   output("write", false, now.Add(time.Minute)),
		},
		CompletedNodeIDs: []string{"outline", "write"},
		UserInput:        map[string]any{"topic": "dragons"},
		ExecutionUser:    "ines",
	}

	state := Restore(cp)
	if state.ExecutionUser != "ines" || state.UserInput["topic"] != "dragons" {
		t.Fatalf("state = %+v", state)
	}
	if len(state.StructuralOutputs) != 1 {
		t.Fatalf("StructuralOutputs = %v", state.StructuralOutputs)
	}
	if _, ok := state.StructuralOutputs["outline"]; !ok {
		t.Fatal("outline missing from structural subset")
	}
	if state.LastNodeOutput == nil || state.LastNodeOutput.Metadata.NodeID != "write" {
		t.Fatalf("LastNodeOutput = %+v", state.LastNodeOutput)
	}
}

func TestRestoreEmptyCheckpoint(t *testing.T) {
	state := Restore(&model.Checkpoint{FailedAtNodeID: "first"})
	if state.NodeOutputs == nil || len(state.NodeOutputs) != 0 {
		t.Fatalf("NodeOutputs = %v", state.NodeOutputs)
	}
	if state.LastNodeOutput != nil {
		t.Fatalf("LastNodeOutput = %+v", state.LastNodeOutput)
	}
}
