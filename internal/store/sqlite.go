package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/seantiz/petroflow/internal/model"

	_ "modernc.org/sqlite"
)

var migrations = []struct {
	name string
	sql  string
}{
	{"workflows", `
CREATE TABLE IF NOT EXISTS workflows (
    id           TEXT PRIMARY KEY,
    status       TEXT NOT NULL,
    progress     REAL NOT NULL DEFAULT 0,
    current_step TEXT NOT NULL DEFAULT '',
    well_count   INTEGER NOT NULL DEFAULT 0,
    error_count  INTEGER NOT NULL DEFAULT 0,
    state        BLOB NOT NULL,
    created_at   DATETIME NOT NULL,
    updated_at   DATETIME NOT NULL,
    finished_at  DATETIME
)`},
	{"workflow_events", `
CREATE TABLE IF NOT EXISTS workflow_events (
    id          INTEGER PRIMARY KEY AUTOINCREMENT,
    workflow_id TEXT NOT NULL,
    seq         INTEGER NOT NULL,
    segment     INTEGER NOT NULL DEFAULT 0,
    kind        TEXT NOT NULL,
    progress    REAL NOT NULL,
    step        TEXT NOT NULL,
    message     TEXT NOT NULL,
    created_at  DATETIME NOT NULL
)`},
	{"workflow_events index", `
CREATE INDEX IF NOT EXISTS idx_workflow_events_workflow ON workflow_events (workflow_id, seq)`},
	{"error_records", `
CREATE TABLE IF NOT EXISTS error_records (
    id               TEXT PRIMARY KEY,
    workflow_id      TEXT NOT NULL DEFAULT '',
    code             TEXT NOT NULL,
    category         TEXT NOT NULL,
    severity         TEXT NOT NULL,
    message          TEXT NOT NULL,
    user_message     TEXT NOT NULL,
    well_name        TEXT NOT NULL DEFAULT '',
    operation        TEXT NOT NULL DEFAULT '',
    recovery_attempt INTEGER NOT NULL DEFAULT 0,
    created_at       DATETIME NOT NULL
)`},
}

// ErrNotFound is returned when a workflow is not found.
var ErrNotFound = errors.New("workflow not found")

// Compile-time interface satisfaction check.
var _ Store = (*SQLiteStore)(nil)

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens the SQLite database at dbPath and runs migrations.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// An in-memory database exists per connection.
	if dbPath == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}

	for _, m := range migrations {
		if _, err := db.Exec(m.sql); err != nil {
			db.Close()
			return nil, fmt.Errorf("create %s: %w", m.name, err)
		}
	}

	return &SQLiteStore{db: db}, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// CreateWorkflow inserts a new workflow record.
func (s *SQLiteStore) CreateWorkflow(ctx context.Context, w *model.WorkflowState) error {
	state, err := json.Marshal(w)
	if err != nil {
		return fmt.Errorf("encode workflow state: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO workflows (
			id, status, progress, current_step, well_count, error_count,
			state, created_at, updated_at, finished_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		w.ID, w.Status, w.Progress, w.CurrentStep, len(w.Wells), len(w.Errors),
		state, w.CreatedAt, w.UpdatedAt, w.FinishedAt,
	)
	if err != nil {
		return fmt.Errorf("insert workflow: %w", err)
	}
	return nil
}

// GetWorkflow retrieves the full workflow state by ID.
func (s *SQLiteStore) GetWorkflow(ctx context.Context, id string) (*model.WorkflowState, error) {
	var state []byte
	err := s.db.QueryRowContext(ctx, `SELECT state FROM workflows WHERE id = ?`, id).Scan(&state)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get workflow: %w", err)
	}

	w := &model.WorkflowState{}
	if err := json.Unmarshal(state, w); err != nil {
		return nil, fmt.Errorf("decode workflow state: %w", err)
	}
	return w, nil
}

// ListWorkflows returns a paginated list of workflow summaries ordered by
// created_at DESC, along with the total count of all workflows.
func (s *SQLiteStore) ListWorkflows(ctx context.Context, limit, offset int) ([]model.WorkflowSummary, int, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return nil, 0, fmt.Errorf("begin read tx: %w", err)
	}
	defer tx.Rollback()

	var total int
	if err := tx.QueryRowContext(ctx, "SELECT COUNT(*) FROM workflows").Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count workflows: %w", err)
	}

	rows, err := tx.QueryContext(ctx,
		`SELECT id, status, progress, current_step, well_count, error_count,
			created_at, updated_at, finished_at
		FROM workflows ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?`, limit, offset,
	)
	if err != nil {
		return nil, 0, fmt.Errorf("list workflows: %w", err)
	}
	defer rows.Close()

	var out []model.WorkflowSummary
	for rows.Next() {
		var w model.WorkflowSummary
		if err := rows.Scan(
			&w.ID, &w.Status, &w.Progress, &w.CurrentStep, &w.WellCount, &w.ErrorCount,
			&w.CreatedAt, &w.UpdatedAt, &w.FinishedAt,
		); err != nil {
			return nil, 0, fmt.Errorf("scan workflow: %w", err)
		}
		out = append(out, w)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate workflows: %w", err)
	}

	return out, total, nil
}

// UpdateWorkflow overwrites a workflow record. A status change must be a
// valid transition from the stored status.
func (s *SQLiteStore) UpdateWorkflow(ctx context.Context, w *model.WorkflowState) error {
	state, err := json.Marshal(w)
	if err != nil {
		return fmt.Errorf("encode workflow state: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	var current string
	err = tx.QueryRowContext(ctx, "SELECT status FROM workflows WHERE id = ?", w.ID).Scan(&current)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("read workflow status: %w", err)
	}
	if current != w.Status && !model.ValidTransition(current, w.Status) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, current, w.Status)
	}

	_, err = tx.ExecContext(ctx,
		`UPDATE workflows SET
			status = ?, progress = ?, current_step = ?, well_count = ?, error_count = ?,
			state = ?, updated_at = ?, finished_at = ?
		WHERE id = ?`,
		w.Status, w.Progress, w.CurrentStep, len(w.Wells), len(w.Errors),
		state, w.UpdatedAt, w.FinishedAt, w.ID,
	)
	if err != nil {
		return fmt.Errorf("update workflow: %w", err)
	}
	return tx.Commit()
}

// GetWorkflowStats aggregates workflow counts, average run duration of
// finished workflows, and error record counts.
func (s *SQLiteStore) GetWorkflowStats(ctx context.Context) (*WorkflowStats, error) {
	stats := &WorkflowStats{
		CountByStatus:    make(map[string]int),
		ErrorsByCategory: make(map[string]int),
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return nil, fmt.Errorf("begin read tx: %w", err)
	}
	defer tx.Rollback()

	if err := countBy(ctx, tx, "SELECT status, COUNT(*) FROM workflows GROUP BY status", stats.CountByStatus); err != nil {
		return nil, fmt.Errorf("count workflows by status: %w", err)
	}
	for _, n := range stats.CountByStatus {
		stats.Total += n
	}

	rows, err := tx.QueryContext(ctx, "SELECT created_at, finished_at FROM workflows WHERE finished_at IS NOT NULL")
	if err != nil {
		return nil, fmt.Errorf("query durations: %w", err)
	}
	defer rows.Close()
	var sum float64
	var n int
	for rows.Next() {
		var w model.WorkflowSummary
		if err := rows.Scan(&w.CreatedAt, &w.FinishedAt); err != nil {
			return nil, fmt.Errorf("scan duration: %w", err)
		}
		sum += float64(w.FinishedAt.Sub(w.CreatedAt).Milliseconds())
		n++
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate durations: %w", err)
	}
	if n > 0 {
		stats.AvgDurationMS = sum / float64(n)
	}

	if err := countBy(ctx, tx, "SELECT category, COUNT(*) FROM error_records GROUP BY category", stats.ErrorsByCategory); err != nil {
		return nil, fmt.Errorf("count errors by category: %w", err)
	}
	for _, n := range stats.ErrorsByCategory {
		stats.TotalErrors += n
	}

	return stats, nil
}

func countBy(ctx context.Context, tx *sql.Tx, query string, into map[string]int) error {
	rows, err := tx.QueryContext(ctx, query)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var key string
		var n int
		if err := rows.Scan(&key, &n); err != nil {
			return err
		}
		into[key] = n
	}
	return rows.Err()
}

// InsertEvent appends an event row and sets ev.ID.
func (s *SQLiteStore) InsertEvent(ctx context.Context, ev *model.WorkflowEvent) error {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO workflow_events (workflow_id, seq, segment, kind, progress, step, message, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		ev.WorkflowID, ev.Seq, ev.Segment, ev.Kind, ev.Progress, ev.Step, ev.Message, ev.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert event: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("event id: %w", err)
	}
	ev.ID = id
	return nil
}

// GetEvents returns a workflow's events in sequence order.
func (s *SQLiteStore) GetEvents(ctx context.Context, workflowID string) ([]model.WorkflowEvent, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, workflow_id, seq, segment, kind, progress, step, message, created_at
		FROM workflow_events WHERE workflow_id = ? ORDER BY seq, id`, workflowID,
	)
	if err != nil {
		return nil, fmt.Errorf("get events: %w", err)
	}
	defer rows.Close()

	var out []model.WorkflowEvent
	for rows.Next() {
		var ev model.WorkflowEvent
		if err := rows.Scan(&ev.ID, &ev.WorkflowID, &ev.Seq, &ev.Segment, &ev.Kind, &ev.Progress, &ev.Step, &ev.Message, &ev.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		out = append(out, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}
	return out, nil
}

// InsertErrorRecord persists a handled error.
func (s *SQLiteStore) InsertErrorRecord(ctx context.Context, r *ErrorRecord) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO error_records (
			id, workflow_id, code, category, severity, message, user_message,
			well_name, operation, recovery_attempt, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.WorkflowID, r.Code, r.Category, r.Severity, r.Message, r.UserMessage,
		r.WellName, r.Operation, r.RecoveryAttempt, r.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert error record: %w", err)
	}
	return nil
}

// ListErrorRecords returns error records newest first. An empty
// workflowID lists records of every workflow; limit <= 0 means no limit.
func (s *SQLiteStore) ListErrorRecords(ctx context.Context, workflowID string, limit int) ([]ErrorRecord, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, workflow_id, code, category, severity, message, user_message,
			well_name, operation, recovery_attempt, created_at
		FROM error_records WHERE (? = '' OR workflow_id = ?)
		ORDER BY created_at DESC, id DESC LIMIT ?`, workflowID, workflowID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list error records: %w", err)
	}
	defer rows.Close()

	var out []ErrorRecord
	for rows.Next() {
		var r ErrorRecord
		if err := rows.Scan(&r.ID, &r.WorkflowID, &r.Code, &r.Category, &r.Severity, &r.Message,
			&r.UserMessage, &r.WellName, &r.Operation, &r.RecoveryAttempt, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan error record: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate error records: %w", err)
	}
	return out, nil
}
