package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/gatewaylab/agentrun/memory"
	"github.com/gatewaylab/agentrun/store"
)

func init() {
	open := func(ctx context.Context, rawURL string) (store.StepStore, error) {
		s, err := NewPostgresStepStore(ctx, PostgresOptions{ConnString: rawURL})
		if err != nil {
			return nil, err
		}
		if err := s.InitSchema(ctx); err != nil {
			s.Close()
			return nil, err
		}
		return s, nil
	}
	store.Register("postgres", open)
	store.Register("postgresql", open)
}

// DBPool defines the interface for database connection pool
type DBPool interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Close()
}

// PostgresStepStore implements store.StepStore using PostgreSQL
type PostgresStepStore struct {
	pool      DBPool
	tableName string
}

var _ store.StepStore = (*PostgresStepStore)(nil)

// PostgresOptions configuration for Postgres connection
type PostgresOptions struct {
	ConnString string
	TableName  string // Default "agent_steps"
}

// NewPostgresStepStore creates a new Postgres step store
func NewPostgresStepStore(ctx context.Context, opts PostgresOptions) (*PostgresStepStore, error) {
	pool, err := pgxpool.New(ctx, opts.ConnString)
	if err != nil {
		return nil, fmt.Errorf("unable to create connection pool: %w", err)
	}
	return NewPostgresStepStoreWithPool(pool, opts.TableName), nil
}

// NewPostgresStepStoreWithPool creates a new Postgres step store with an existing pool
// Useful for testing with mocks
func NewPostgresStepStoreWithPool(pool DBPool, tableName string) *PostgresStepStore {
	if tableName == "" {
		tableName = "agent_steps"
	}
	return &PostgresStepStore{
		pool:      pool,
		tableName: tableName,
	}
}

// InitSchema creates the necessary table if it doesn't exist
func (s *PostgresStepStore) InitSchema(ctx context.Context) error {
	query := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			id TEXT PRIMARY KEY,
			run_id TEXT NOT NULL,
			agent_name TEXT NOT NULL,
			step_number INTEGER NOT NULL,
			kind TEXT NOT NULL,
			seq INTEGER NOT NULL,
			step JSONB NOT NULL,
			timestamp TIMESTAMPTZ NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_%s_run_id ON %s (run_id, seq);
	`, s.tableName, s.tableName, s.tableName)

	_, err := s.pool.Exec(ctx, query)
	if err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// Close closes the connection pool
func (s *PostgresStepStore) Close() error {
	s.pool.Close()
	return nil
}

// Save stores a step record
func (s *PostgresStepStore) Save(ctx context.Context, record *store.StepRecord) error {
	query := fmt.Sprintf(`
		INSERT INTO %s (id, run_id, agent_name, step_number, kind, seq, step, timestamp)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO UPDATE SET
			run_id = EXCLUDED.run_id,
			agent_name = EXCLUDED.agent_name,
			step_number = EXCLUDED.step_number,
			kind = EXCLUDED.kind,
			seq = EXCLUDED.seq,
			step = EXCLUDED.step,
			timestamp = EXCLUDED.timestamp
	`, s.tableName)

	_, err := s.pool.Exec(ctx, query,
		record.ID,
		record.RunID,
		record.AgentName,
		record.StepNumber,
		string(record.Kind),
		record.Seq,
		[]byte(record.Step),
		record.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("failed to save step record: %w", err)
	}
	return nil
}

func scanRecord(row pgx.Row) (*store.StepRecord, error) {
	var (
		r    store.StepRecord
		kind string
		step []byte
	)
	if err := row.Scan(&r.ID, &r.RunID, &r.AgentName, &r.StepNumber, &kind, &r.Seq, &step, &r.Timestamp); err != nil {
		return nil, err
	}
	r.Kind = memory.StepKind(kind)
	r.Step = step
	return &r, nil
}

// Load retrieves a step record by ID
func (s *PostgresStepStore) Load(ctx context.Context, id string) (*store.StepRecord, error) {
	query := fmt.Sprintf(`
		SELECT id, run_id, agent_name, step_number, kind, seq, step, timestamp
		FROM %s
		WHERE id = $1
	`, s.tableName)

	r, err := scanRecord(s.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.NotFound(id)
		}
		return nil, fmt.Errorf("failed to load step record: %w", err)
	}
	return r, nil
}

// List returns the records of a run in seq order
func (s *PostgresStepStore) List(ctx context.Context, runID string) ([]*store.StepRecord, error) {
	query := fmt.Sprintf(`
		SELECT id, run_id, agent_name, step_number, kind, seq, step, timestamp
		FROM %s
		WHERE run_id = $1
		ORDER BY seq ASC, timestamp ASC
	`, s.tableName)

	rows, err := s.pool.Query(ctx, query, runID)
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
func (s *PostgresStepStore) Delete(ctx context.Context, id string) error {
	query := fmt.Sprintf("DELETE FROM %s WHERE id = $1", s.tableName)
	_, err := s.pool.Exec(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to delete step record: %w", err)
	}
	return nil
}

// Clear removes all records of a run
func (s *PostgresStepStore) Clear(ctx context.Context, runID string) error {
	query := fmt.Sprintf("DELETE FROM %s WHERE run_id = $1", s.tableName)
	_, err := s.pool.Exec(ctx, query, runID)
	if err != nil {
		return fmt.Errorf("failed to clear step records: %w", err)
	}
	return nil
}
