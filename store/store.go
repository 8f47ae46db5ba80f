package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/gatewaylab/agentrun/memory"
)

// ErrNotFound is wrapped by the errors stores return for missing records.
var ErrNotFound = errors.New("step record not found")

// StepRecord is the persisted form of a memory step.
type StepRecord struct {
	ID         string          `json:"id"`
	RunID      string          `json:"run_id"`
	AgentName  string          `json:"agent_name"`
	StepNumber int             `json:"step_number"`
	Kind       memory.StepKind `json:"kind"`
	// Seq orders the records of a run.
	Seq       int             `json:"seq"`
	Step      json.RawMessage `json:"step"`
	Timestamp time.Time       `json:"timestamp"`
}

// StepStore defines the interface for step persistence
type StepStore interface {
	// Save stores a record, replacing any record with the same ID
	Save(ctx context.Context, record *StepRecord) error

	// Load retrieves a record by ID
	Load(ctx context.Context, id string) (*StepRecord, error)

	// List returns the records of a run in Seq order
	List(ctx context.Context, runID string) ([]*StepRecord, error)

	// Delete removes a record
	Delete(ctx context.Context, id string) error

	// Clear removes all records of a run
	Clear(ctx context.Context, runID string) error

	Close() error
}

// NotFound returns an error wrapping ErrNotFound for id.
func NotFound(id string) error {
	return fmt.Errorf("%w: %s", ErrNotFound, id)
}

// IsNotFound reports whether err wraps ErrNotFound.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// NewRecord encodes step as the seq-th record of a run.
func NewRecord(runID string, seq int, step memory.Step) (*StepRecord, error) {
	data, err := json.Marshal(step)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s step: %w", step.Kind(), err)
	}
	record := &StepRecord{
		ID:        uuid.NewString(),
		RunID:     runID,
		AgentName: step.Agent(),
		Kind:      step.Kind(),
		Seq:       seq,
		Step:      data,
		Timestamp: time.Now().UTC(),
	}
	if action, ok := step.(*memory.ActionStep); ok {
		record.StepNumber = action.StepNumber
	}
	return record, nil
}

// Decode rebuilds the memory step of the record.
func (r *StepRecord) Decode() (memory.Step, error) {
	step, err := memory.DecodeStep(r.Kind, r.Step)
	if err != nil {
		return nil, fmt.Errorf("record %s: %w", r.ID, err)
	}
	return step, nil
}

// Steps decodes records in Seq order.
func Steps(records []*StepRecord) ([]memory.Step, error) {
	sorted := make([]*StepRecord, len(records))
	copy(sorted, records)
	SortRecords(sorted)

	steps := make([]memory.Step, 0, len(sorted))
	for _, r := range sorted {
		step, err := r.Decode()
		if err != nil {
			return nil, err
		}
		steps = append(steps, step)
	}
	return steps, nil
}

// SortRecords orders records by Seq, then by Timestamp.
func SortRecords(records []*StepRecord) {
	sort.SliceStable(records, func(i, j int) bool {
		if records[i].Seq != records[j].Seq {
			return records[i].Seq < records[j].Seq
		}
		return records[i].Timestamp.Before(records[j].Timestamp)
	})
}
