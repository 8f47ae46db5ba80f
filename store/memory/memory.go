// Package memory provides an in-process step store, useful for tests and
// single runs.
package memory

import (
	"context"
	"sync"

	"github.com/gatewaylab/agentrun/store"
)

func init() {
	store.Register("memory", func(ctx context.Context, rawURL string) (store.StepStore, error) {
		return NewMemoryStepStore(), nil
	})
}

// MemoryStepStore keeps step records in process memory.
type MemoryStepStore struct {
	mu      sync.RWMutex
	records map[string]*store.StepRecord
}

var _ store.StepStore = (*MemoryStepStore)(nil)

// NewMemoryStepStore creates an empty in-memory store
func NewMemoryStepStore() *MemoryStepStore {
	return &MemoryStepStore{records: make(map[string]*store.StepRecord)}
}

func (m *MemoryStepStore) Save(ctx context.Context, record *store.StepRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[record.ID] = clone(record)
	return nil
}

func (m *MemoryStepStore) Load(ctx context.Context, id string) (*store.StepRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.records[id]
	if !ok {
		return nil, store.NotFound(id)
	}
	return clone(r), nil
}

func (m *MemoryStepStore) List(ctx context.Context, runID string) ([]*store.StepRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := []*store.StepRecord{}
	for _, r := range m.records {
		if r.RunID == runID {
			out = append(out, clone(r))
		}
	}
	store.SortRecords(out)
	return out, nil
}

func (m *MemoryStepStore) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.records, id)
	return nil
}

func (m *MemoryStepStore) Clear(ctx context.Context, runID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, r := range m.records {
		if r.RunID == runID {
			delete(m.records, id)
		}
	}
	return nil
}

func (m *MemoryStepStore) Close() error {
	return nil
}

func clone(r *store.StepRecord) *store.StepRecord {
	c := *r
	c.Step = append([]byte(nil), r.Step...)
	return &c
}
