package store

import (
	"context"
	"errors"

	"github.com/quillworks/loom/internal/model"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// Store defines the persistence interface for engines and execution records.
//
// Execution records use read-modify-write merge semantics: MergeWriteRecord
// applies a partial update under a row lock so fields written by unrelated
// concerns during the same logical run are never clobbered.
type Store interface {
	// Engine definitions
	CreateEngine(ctx context.Context, engine *model.Engine) error
	GetEngine(ctx context.Context, id string) (*model.Engine, error)
	ListEngines(ctx context.Context, status model.EngineStatus) ([]*model.Engine, error)
	UpdateEngine(ctx context.Context, engine *model.Engine) error
	DeleteEngine(ctx context.Context, id string) error

	// Execution records
	CreateRecord(ctx context.Context, rec *model.ExecutionRecord) error
	ReadRecord(ctx context.Context, executionID string) (*model.ExecutionRecord, error)
	MergeWriteRecord(ctx context.Context, executionID string, update *model.RecordUpdate) error
	ListRecords(ctx context.Context, limit int) ([]*model.ExecutionRecord, error)

	// Lifecycle
	Close() error
}
