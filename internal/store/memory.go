package store

import (
	"context"
	"encoding/json"
	"sort"
	"sync"

	"github.com/quillworks/loom/internal/model"
)

// MemoryStore is an in-process Store used by tests and `loom serve --dev`.
// It applies the same merge semantics as the postgres store, including
// deep-copying records on read so callers cannot mutate stored state.
type MemoryStore struct {
	mu      sync.Mutex
	engines map[string]*model.Engine
	records map[string]*model.ExecutionRecord
}

// Compile-time check that MemoryStore implements Store.
var _ Store = (*MemoryStore)(nil)

// NewMemory returns an empty in-memory store.
func NewMemory() *MemoryStore {
	return &MemoryStore{
		engines: make(map[string]*model.Engine),
		records: make(map[string]*model.ExecutionRecord),
	}
}

func (s *MemoryStore) CreateEngine(ctx context.Context, engine *model.Engine) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.engines[engine.ID] = copyOf(engine)
	return nil
}

func (s *MemoryStore) GetEngine(ctx context.Context, id string) (*model.Engine, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.engines[id]
	if !ok {
		return nil, ErrNotFound
	}
	return copyOf(e), nil
}

func (s *MemoryStore) ListEngines(ctx context.Context, status model.EngineStatus) ([]*model.Engine, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*model.Engine, 0, len(s.engines))
	for _, e := range s.engines {
		if status != "" && e.Status != status {
			continue
		}
		out = append(out, copyOf(e))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *MemoryStore) UpdateEngine(ctx context.Context, engine *model.Engine) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.engines[engine.ID]; !ok {
		return ErrNotFound
	}
	s.engines[engine.ID] = copyOf(engine)
	return nil
}

func (s *MemoryStore) DeleteEngine(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.engines[id]; !ok {
		return ErrNotFound
	}
	delete(s.engines, id)
	return nil
}

func (s *MemoryStore) CreateRecord(ctx context.Context, rec *model.ExecutionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[rec.ID] = copyOf(rec)
	return nil
}

func (s *MemoryStore) ReadRecord(ctx context.Context, executionID string) (*model.ExecutionRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[executionID]
	if !ok {
		return nil, ErrNotFound
	}
	return copyOf(rec), nil
}

func (s *MemoryStore) MergeWriteRecord(ctx context.Context, executionID string, update *model.RecordUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[executionID]
	if !ok {
		return ErrNotFound
	}
	update.Apply(rec)
	return nil
}

func (s *MemoryStore) ListRecords(ctx context.Context, limit int) ([]*model.ExecutionRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*model.ExecutionRecord, 0, len(s.records))
	for _, rec := range s.records {
		out = append(out, copyOf(rec))
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemoryStore) Close() error {
	return nil
}

// copyOf deep-copies a record through JSON. Slow but obviously correct,
// which is what a test double wants.
func copyOf[T any](v *T) *T {
	b, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	out := new(T)
	if err := json.Unmarshal(b, out); err != nil {
		panic(err)
	}
	return out
}
