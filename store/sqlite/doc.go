// Package sqlite provides a SQLite-backed step store.
//
// The database file is created on first use together with its table
// (default "agent_steps"). The backend registers the "sqlite" URL scheme:
//
//	s, err := store.Open(ctx, "sqlite://agentrun.db")
//
// The driver is github.com/mattn/go-sqlite3, which needs cgo.
package sqlite
