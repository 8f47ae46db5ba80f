package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	_ "github.com/mattn/go-sqlite3"

	"github.com/gatewaylab/agentrun/memory"
	"github.com/gatewaylab/agentrun/store"
)

func init() {
	store.Register("sqlite", func(ctx context.Context, rawURL string) (store.StepStore, error) {
		path := strings.TrimPrefix(rawURL, "sqlite://")
		if path == "" {
			return nil, fmt.Errorf("sqlite store URL %q has no path", rawURL)
		}
		return NewSqliteStepStore(SqliteOptions{Path: path})
	})
}

// SqliteStepStore implements store.StepStore using SQLite
type SqliteStepStore struct {
	db        *sql.DB
	tableName string
}

var _ store.StepStore = (*SqliteStepStore)(nil)

// SqliteOptions configuration for SQLite connection
type SqliteOptions struct {
	Path      string
	TableName string // Default "agent_steps"
}

// NewSqliteStepStore creates a new SQLite step store
func NewSqliteStepStore(opts SqliteOptions) (*SqliteStepStore, error) {
	db, err := sql.Open("sqlite3", opts.Path)
	if err != nil {
		return nil, fmt.Errorf("unable to open database: %w", err)
	}

	tableName := opts.TableName
	if tableName == "" {
		tableName = "agent_steps"
	}

	s := &SqliteStepStore{
		db:        db,
		tableName: tableName,
	}

	if err := s.InitSchema(context.Background()); err != nil {
		db.Close()
		return nil, err
	}

	return s, nil
}

// InitSchema creates the necessary table if it doesn't exist
func (s *SqliteStepStore) InitSchema(ctx context.Context) error {
	query := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			id TEXT PRIMARY KEY,
			run_id TEXT NOT NULL,
			agent_name TEXT NOT NULL,
			step_number INTEGER NOT NULL,
			kind TEXT NOT NULL,
			seq INTEGER NOT NULL,
			step TEXT NOT NULL,
			timestamp DATETIME NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_%s_run_id ON %s (run_id, seq);
	`, s.tableName, s.tableName, s.tableName)

	_, err := s.db.ExecContext(ctx, query)
	if err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// Close closes the database connection
func (s *SqliteStepStore) Close() error {
	return s.db.Close()
}

// Save stores a step record
func (s *SqliteStepStore) Save(ctx context.Context, record *store.StepRecord) error {
	query := fmt.Sprintf(`
		INSERT INTO %s (id, run_id, agent_name, step_number, kind, seq, step, timestamp)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			run_id = excluded.run_id,
			agent_name = excluded.agent_name,
			step_number = excluded.step_number,
			kind = excluded.kind,
			seq = excluded.seq,
			step = excluded.step,
			timestamp = excluded.timestamp
	`, s.tableName)

	_, err := s.db.ExecContext(ctx, query,
		record.ID,
		record.RunID,
		record.AgentName,
		record.StepNumber,
		string(record.Kind),
		record.Seq,
		string(record.Step),
		record.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("failed to save step record: %w", err)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(row scanner) (*store.StepRecord, error) {
	var (
		r    store.StepRecord
		kind string
		step string
	)
	if err := row.Scan(&r.ID, &r.RunID, &r.AgentName, &r.StepNumber, &kind, &r.Seq, &step, &r.Timestamp); err != nil {
		return nil, err
	}
	r.Kind = memory.StepKind(kind)
	r.Step = []byte(step)
	return &r, nil
}

// Load retrieves a step record by ID
func (s *SqliteStepStore) Load(ctx context.Context, id string) (*store.StepRecord, error) {
	query := fmt.Sprintf(`
		SELECT id, run_id, agent_name, step_number, kind, seq, step, timestamp
		FROM %s
		WHERE id = ?
	`, s.tableName)

	r, err := scanRecord(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.NotFound(id)
		}
		return nil, fmt.Errorf("failed to load step record: %w", err)
	}
	return r, nil
}

// List returns the records of a run in seq order
func (s *SqliteStepStore) List(ctx context.Context, runID string) ([]*store.StepRecord, error) {
	query := fmt.Sprintf(`
		SELECT id, run_id, agent_name, step_number, kind, seq, step, timestamp
		FROM %s
		WHERE run_id = ?
		ORDER BY seq ASC, timestamp ASC
	`, s.tableName)

	rows, err := s.db.QueryContext(ctx, query, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to list step records: %w", err)
	}
	defer rows.Close()

	records := []*store.StepRecord{}
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan step record row: %w", err)
		}
		records = append(records, r)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating step record rows: %w", err)
	}

	return records, nil
}

// Delete removes a step record
func (s *SqliteStepStore) Delete(ctx context.Context, id string) error {
	query := fmt.Sprintf("DELETE FROM %s WHERE id = ?", s.tableName)
	_, err := s.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to delete step record: %w", err)
	}
	return nil
}

// Clear removes all records of a run
func (s *SqliteStepStore) Clear(ctx context.Context, runID string) error {
	query := fmt.Sprintf("DELETE FROM %s WHERE run_id = ?", s.tableName)
	_, err := s.db.ExecContext(ctx, query, runID)
	if err != nil {
		return fmt.Errorf("failed to clear step records: %w", err)
	}
	return nil
}
