// Package runlog persists workflow run history and lifecycle events to a
// local SQLite database. Entirely optional: the engine runs without it.
package runlog

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/sells-group/intel-engine/internal/model"
	"github.com/sells-group/intel-engine/internal/orchestrator"
)

// Store records workflow runs and events using modernc.org/sqlite.
type Store struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*Store, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "runlog: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "runlog: exec %s", pragma)
		}
	}
	return &Store{db: db}, nil
}

const migration = `
CREATE TABLE IF NOT EXISTS workflow_runs (
	id           TEXT PRIMARY KEY,
	name         TEXT NOT NULL,
	priority     TEXT NOT NULL,
	status       TEXT NOT NULL,
	task_count   INTEGER NOT NULL,
	tasks        TEXT,
	submitted_at DATETIME NOT NULL,
	completed_at DATETIME
);

CREATE TABLE IF NOT EXISTS workflow_events (
	id          TEXT PRIMARY KEY,
	workflow_id TEXT,
	event_type  TEXT NOT NULL,
	payload     TEXT,
	at          DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_workflow_runs_status ON workflow_runs(status);
CREATE INDEX IF NOT EXISTS idx_workflow_events_workflow_id ON workflow_events(workflow_id);
`

// Migrate creates the schema if missing.
func (s *Store) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, migration)
	return eris.Wrap(err, "runlog: migrate")
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// RecordSubmitted inserts a run row for a newly submitted workflow.
func (s *Store) RecordSubmitted(ctx context.Context, wf *model.IntelligenceWorkflow) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO workflow_runs (id, name, priority, status, task_count, submitted_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO NOTHING`,
		wf.ID, wf.Name, wf.Priority.String(), string(wf.Status), len(wf.Tasks), wf.CreatedAt,
	)
	return eris.Wrap(err, "runlog: insert run")
}

// RecordTerminal updates a run row with its terminal status and task outcomes.
func (s *Store) RecordTerminal(ctx context.Context, wf *model.IntelligenceWorkflow) error {
	tasksJSON, err := json.Marshal(wf.Tasks)
	if err != nil {
		return eris.Wrap(err, "runlog: marshal tasks")
	}

	var completedAt any
	if wf.CompletedAt != nil {
		completedAt = *wf.CompletedAt
	}

	_, err = s.db.ExecContext(ctx,
		`UPDATE workflow_runs SET status = ?, tasks = ?, completed_at = ? WHERE id = ?`,
		string(wf.Status), string(tasksJSON), completedAt, wf.ID,
	)
	return eris.Wrap(err, "runlog: update run")
}

// HandleEvent appends a lifecycle event row. Implements orchestrator.Sink;
// failures are logged, never propagated into the notifier.
func (s *Store) HandleEvent(e orchestrator.Event) {
	payload, err := json.Marshal(e.Payload)
	if err != nil {
		zap.L().Warn("runlog: marshal event payload", zap.Error(err))
		return
	}

	workflowID, _ := e.Payload["workflow_id"].(string)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO workflow_events (id, workflow_id, event_type, payload, at) VALUES (?, ?, ?, ?, ?)`,
		uuid.New().String(), workflowID, string(e.Type), string(payload), e.At,
	)
	if err != nil {
		zap.L().Warn("runlog: insert event", zap.Error(err))
	}
}

// Run is one row of workflow run history.
type Run struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	Priority    string     `json:"priority"`
	Status      string     `json:"status"`
	TaskCount   int        `json:"task_count"`
	SubmittedAt time.Time  `json:"submitted_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// ListRuns returns the most recent runs, newest first.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, priority, status, task_count, submitted_at, completed_at
		 FROM workflow_runs ORDER BY submitted_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, eris.Wrap(err, "runlog: list runs")
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var r Run
		var completedAt sql.NullTime
		if err := rows.Scan(&r.ID, &r.Name, &r.Priority, &r.Status, &r.TaskCount, &r.SubmittedAt, &completedAt); err != nil {
			return nil, eris.Wrap(err, "runlog: scan run")
		}
		if completedAt.Valid {
			t := completedAt.Time
			r.CompletedAt = &t
		}
		runs = append(runs, r)
	}
	return runs, eris.Wrap(rows.Err(), "runlog: iterate runs")
}
