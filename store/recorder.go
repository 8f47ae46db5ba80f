package store

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/gatewaylab/agentrun/agent"
	"github.com/gatewaylab/agentrun/log"
	"github.com/gatewaylab/agentrun/memory"
)

// Recorder persists every finished step of a run. Register its Callback on
// each agent of the run, managed agents included.
type Recorder struct {
	store  StepStore
	runID  string
	logger log.Logger

	mu  sync.Mutex
	seq int
	err error
}

// NewRecorder records into s under runID. An empty runID gets a new UUID.
func NewRecorder(s StepStore, runID string, logger log.Logger) *Recorder {
	if runID == "" {
		runID = uuid.NewString()
	}
	if logger == nil {
		logger = &log.NoOpLogger{}
	}
	return &Recorder{store: s, runID: runID, logger: logger}
}

// RunID identifies the recorded run.
func (r *Recorder) RunID() string {
	return r.runID
}

// Record saves step. Failures are logged and kept for Err; they never
// interrupt the run.
func (r *Recorder) Record(ctx context.Context, step memory.Step) {
	r.mu.Lock()
	defer r.mu.Unlock()

	record, err := NewRecord(r.runID, r.seq, step)
	if err == nil {
		err = r.store.Save(ctx, record)
	}
	if err != nil {
		r.logger.Warn("failed to record %s step of %s: %v", step.Kind(), step.Agent(), err)
		if r.err == nil {
			r.err = err
		}
		return
	}
	r.seq++
}

// Callback returns the agent step callback recording each step.
func (r *Recorder) Callback() agent.StepCallback {
	return func(ctx context.Context, a *agent.Agent, step memory.Step) {
		r.Record(ctx, step)
	}
}

// Attach registers the callback on a and, recursively, on its managed agents.
func (r *Recorder) Attach(a *agent.Agent) {
	a.AddStepCallback(r.Callback())
	for _, m := range a.ManagedAgents() {
		r.Attach(m)
	}
}

// Err returns the first recording failure.
func (r *Recorder) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.err
}
