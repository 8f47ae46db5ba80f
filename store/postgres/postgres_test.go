package postgres

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/assert"

	"github.com/gatewaylab/agentrun/memory"
	"github.com/gatewaylab/agentrun/store"
)

var columns = []string{"id", "run_id", "agent_name", "step_number", "kind", "seq", "step", "timestamp"}

const (
	selectByID  = "SELECT id, run_id, agent_name, step_number, kind, seq, step, timestamp FROM agent_steps WHERE id = $1"
	selectByRun = "SELECT id, run_id, agent_name, step_number, kind, seq, step, timestamp FROM agent_steps WHERE run_id = $1 ORDER BY seq ASC, timestamp ASC"
)

func TestPostgresStepStore_Save(t *testing.T) {
	mock, err := pgxmock.NewPool()
	assert.NoError(t, err)
	defer mock.Close()

	s := NewPostgresStepStoreWithPool(mock, "")

	record := &store.StepRecord{
		ID:         "rec-1",
		RunID:      "run-1",
		AgentName:  "manager_code_agent",
		StepNumber: 1,
		Kind:       memory.KindAction,
		Seq:        1,
		Step:       []byte(`{"step_number":1}`),
		Timestamp:  time.Now(),
	}

	// Expect INSERT
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO agent_steps")).
		WithArgs(
			record.ID,
			record.RunID,
			record.AgentName,
			record.StepNumber,
			"action",
			record.Seq,
			[]byte(`{"step_number":1}`),
			record.Timestamp,
		).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err = s.Save(context.Background(), record)
	assert.NoError(t, err)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStepStore_Save_DatabaseError(t *testing.T) {
	mock, err := pgxmock.NewPool()
	assert.NoError(t, err)
	defer mock.Close()

	s := NewPostgresStepStoreWithPool(mock, "")

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO agent_steps")).
		WillReturnError(errors.New("connection reset"))

	err = s.Save(context.Background(), &store.StepRecord{ID: "rec-1", Step: []byte("{}")})
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "failed to save step record")
}

func TestPostgresStepStore_Load(t *testing.T) {
	mock, err := pgxmock.NewPool()
	assert.NoError(t, err)
	defer mock.Close()

	s := NewPostgresStepStoreWithPool(mock, "agent_steps")

	timestamp := time.Now()
	rows := pgxmock.NewRows(columns).
		AddRow("rec-1", "run-1", "manager_code_agent", 2, "action", 3, []byte(`{"step_number":2,"model_output":"Thought: done"}`), timestamp)

	mock.ExpectQuery(regexp.QuoteMeta(selectByID)).
		WithArgs("rec-1").
		WillReturnRows(rows)

	loaded, err := s.Load(context.Background(), "rec-1")
	assert.NoError(t, err)
	assert.Equal(t, "rec-1", loaded.ID)
	assert.Equal(t, "run-1", loaded.RunID)
	assert.Equal(t, "manager_code_agent", loaded.AgentName)
	assert.Equal(t, 2, loaded.StepNumber)
	assert.Equal(t, memory.KindAction, loaded.Kind)
	assert.Equal(t, 3, loaded.Seq)
	assert.True(t, timestamp.Equal(loaded.Timestamp))

	step, err := loaded.Decode()
	assert.NoError(t, err)
	action, ok := step.(*memory.ActionStep)
	assert.True(t, ok)
	assert.Equal(t, "Thought: done", action.ModelOutput)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStepStore_Load_NotFound(t *testing.T) {
	mock, err := pgxmock.NewPool()
	assert.NoError(t, err)
	defer mock.Close()

	s := NewPostgresStepStoreWithPool(mock, "agent_steps")

	mock.ExpectQuery(regexp.QuoteMeta(selectByID)).
		WithArgs("non-existent").
		WillReturnError(pgx.ErrNoRows)

	loaded, err := s.Load(context.Background(), "non-existent")
	assert.Error(t, err)
	assert.Nil(t, loaded)
	assert.True(t, store.IsNotFound(err))

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStepStore_Load_DatabaseError(t *testing.T) {
	mock, err := pgxmock.NewPool()
	assert.NoError(t, err)
	defer mock.Close()

	s := NewPostgresStepStoreWithPool(mock, "agent_steps")

	mock.ExpectQuery(regexp.QuoteMeta(selectByID)).
		WithArgs("rec-1").
		WillReturnError(errors.New("database connection failed"))

	loaded, err := s.Load(context.Background(), "rec-1")
	assert.Error(t, err)
	assert.Nil(t, loaded)
	assert.False(t, store.IsNotFound(err))
	assert.Contains(t, err.Error(), "failed to load step record")

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStepStore_List(t *testing.T) {
	mock, err := pgxmock.NewPool()
	assert.NoError(t, err)
	defer mock.Close()

	s := NewPostgresStepStoreWithPool(mock, "agent_steps")

	timestamp := time.Now()
	rows := pgxmock.NewRows(columns).
		AddRow("rec-1", "run-1", "manager", 0, "task", 0, []byte(`{"task":"hi"}`), timestamp).
		AddRow("rec-2", "run-1", "manager", 1, "action", 1, []byte(`{"step_number":1}`), timestamp)

	mock.ExpectQuery(regexp.QuoteMeta(selectByRun)).
		WithArgs("run-1").
		WillReturnRows(rows)

	loaded, err := s.List(context.Background(), "run-1")
	assert.NoError(t, err)
	assert.Len(t, loaded, 2)
	assert.Equal(t, "rec-1", loaded[0].ID)
	assert.Equal(t, memory.KindTask, loaded[0].Kind)
	assert.Equal(t, "rec-2", loaded[1].ID)
	assert.Equal(t, 1, loaded[1].StepNumber)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStepStore_List_EmptyResult(t *testing.T) {
	mock, err := pgxmock.NewPool()
	assert.NoError(t, err)
	defer mock.Close()

	s := NewPostgresStepStoreWithPool(mock, "agent_steps")

	mock.ExpectQuery(regexp.QuoteMeta(selectByRun)).
		WithArgs("run-empty").
		WillReturnRows(pgxmock.NewRows(columns))

	loaded, err := s.List(context.Background(), "run-empty")
	assert.NoError(t, err)
	assert.NotNil(t, loaded)
	assert.Empty(t, loaded)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStepStore_List_DatabaseError(t *testing.T) {
	mock, err := pgxmock.NewPool()
	assert.NoError(t, err)
	defer mock.Close()

	s := NewPostgresStepStoreWithPool(mock, "agent_steps")

	mock.ExpectQuery(regexp.QuoteMeta(selectByRun)).
		WithArgs("run-1").
		WillReturnError(errors.New("database connection failed"))

	loaded, err := s.List(context.Background(), "run-1")
	assert.Error(t, err)
	assert.Nil(t, loaded)
	assert.Contains(t, err.Error(), "failed to list step records")

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStepStore_DeleteAndClear(t *testing.T) {
	mock, err := pgxmock.NewPool()
	assert.NoError(t, err)
	defer mock.Close()

	s := NewPostgresStepStoreWithPool(mock, "agent_steps")

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM agent_steps WHERE id = $1")).
		WithArgs("rec-1").
		WillReturnResult(pgxmock.NewResult("DELETE", 1))
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM agent_steps WHERE run_id = $1")).
		WithArgs("run-1").
		WillReturnResult(pgxmock.NewResult("DELETE", 4))

	assert.NoError(t, s.Delete(context.Background(), "rec-1"))
	assert.NoError(t, s.Clear(context.Background(), "run-1"))

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStepStore_InitSchema(t *testing.T) {
	mock, err := pgxmock.NewPool()
	assert.NoError(t, err)
	defer mock.Close()

	s := NewPostgresStepStoreWithPool(mock, "custom_steps")

	mock.ExpectExec(regexp.QuoteMeta("CREATE TABLE IF NOT EXISTS custom_steps")).
		WillReturnResult(pgxmock.NewResult("CREATE", 0))

	assert.NoError(t, s.InitSchema(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}
