// Package store persists the steps of agent runs.
//
// Every finished step of a run, managed agents included, becomes a StepRecord:
// the JSON form of the memory step tagged with the run ID, the agent name and
// a sequence number giving the order of the run.
//
// # Backends
//
// Backends implement StepStore and register themselves by URL scheme:
//
//   - memory: in-process map (store/memory)
//   - file://<dir>: one JSON file per record (store/file)
//   - sqlite://<path>: SQLite database (store/sqlite)
//   - redis://host:port/db: Redis keys with a sorted set per run (store/redis)
//   - postgres://...: PostgreSQL table with a JSONB step column (store/postgres)
//
// Import a backend for its side effect, then open it by URL:
//
//	import _ "github.com/gatewaylab/agentrun/store/sqlite"
//
//	s, err := store.Open(ctx, "sqlite://agentrun.db")
//	if err != nil {
//		return err
//	}
//	defer s.Close()
//
// # Recording a run
//
//	rec := store.NewRecorder(s, "", logger)
//	rec.Attach(manager) // the manager and its managed agents
//	result, err := manager.Run(ctx, task)
//
//	records, _ := s.List(ctx, rec.RunID())
//	steps, _ := store.Steps(records)
//
// Recording failures are logged and reported by Recorder.Err; they never end
// a run.
package store
