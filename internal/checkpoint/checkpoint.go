// Package checkpoint persists and reloads execution state so a failed or
// killed run can continue in this process or another one.
//
// A checkpoint is write-once, read-once: captured on failure, merged into
// the execution record's prior state (never a blind overwrite), and deleted
// after a successful resume. The structural-output subset is not persisted;
// it is re-derived from node outputs on restore.
package checkpoint

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/quillworks/loom/internal/model"
	"github.com/quillworks/loom/internal/store"
)

// Manager wraps the durable record store with checkpoint semantics.
type Manager struct {
	store store.Store
}

// NewManager returns a checkpoint manager backed by the given store.
func NewManager(s store.Store) *Manager {
	return &Manager{store: s}
}

// Save captures the run's state at the failed node and merges it into the
// durable record. Fields written by other concerns (stop flags, errors
// appended by the orchestrator) survive because the store applies a
// read-modify-write merge, not a whole-document replace.
func (m *Manager) Save(ctx context.Context, executionID, failedNodeID string, state *model.PipelineState, completed []string) error {
	cp := &model.Checkpoint{
		FailedAtNodeID:   failedNodeID,
		NodeOutputs:      state.NodeOutputs,
		CompletedNodeIDs: append([]string(nil), completed...),
		UserInput:        state.UserInput,
		ExecutionUser:    state.ExecutionUser,
		Timestamp:        time.Now().UTC(),
	}
	resumable := true
	err := m.store.MergeWriteRecord(ctx, executionID, &model.RecordUpdate{
		Checkpoint: cp,
		Resumable:  &resumable,
	})
	if err != nil {
		return fmt.Errorf("persist checkpoint: %w", err)
	}
	slog.Info("checkpoint saved",
		"execution_id", executionID,
		"failed_node", failedNodeID,
		"completed_nodes", len(completed))
	return nil
}

// Load returns the checkpoint stored for an execution, or ErrNoCheckpoint
// when the record has none.
func (m *Manager) Load(ctx context.Context, executionID string) (*model.Checkpoint, error) {
	rec, err := m.store.ReadRecord(ctx, executionID)
	if err != nil {
		return nil, fmt.Errorf("read record: %w", err)
	}
	if rec.Checkpoint == nil {
		return nil, &ErrNoCheckpoint{ExecutionID: executionID}
	}
	return rec.Checkpoint, nil
}

// Clear removes the checkpoint after a successful resume.
func (m *Manager) Clear(ctx context.Context, executionID string) error {
	resumable := false
	err := m.store.MergeWriteRecord(ctx, executionID, &model.RecordUpdate{
		ClearCheckpoint: true,
		Resumable:       &resumable,
	})
	if err != nil {
		return fmt.Errorf("clear checkpoint: %w", err)
	}
	slog.Info("checkpoint cleared", "execution_id", executionID)
	return nil
}

// Restore reconstructs a PipelineState from a checkpoint, re-deriving the
// structural-output subset from the persisted node outputs.
func Restore(cp *model.Checkpoint) *model.PipelineState {
	state := model.NewPipelineState(cp.UserInput, cp.ExecutionUser)
	if cp.NodeOutputs != nil {
		state.NodeOutputs = cp.NodeOutputs
	}
	state.RederiveStructural()

	// LastNodeOutput is the most recent completed output.
	if n := len(cp.CompletedNodeIDs); n > 0 {
		if out, ok := state.NodeOutputs[cp.CompletedNodeIDs[n-1]]; ok {
			state.LastNodeOutput = &out
		}
	}
	return state
}

// ErrNoCheckpoint is returned when an execution has no stored checkpoint.
type ErrNoCheckpoint struct {
	ExecutionID string
}

func (e *ErrNoCheckpoint) Error() string {
	return fmt.Sprintf("execution %q has no checkpoint", e.ExecutionID)
}
