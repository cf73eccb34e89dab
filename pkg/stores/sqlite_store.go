package stores

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/google/uuid"

	// SQLite driver
	_ "modernc.org/sqlite"

	"github.com/webpilot/webpilot/pkg/workflow"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// SQLiteStore implements the Store interface using SQLite.
type SQLiteStore struct {
	db   *sql.DB
	path string
}

// Config holds SQLite store configuration.
type Config struct {
	Path            string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// NewSQLiteStore creates a new SQLite store instance.
func NewSQLiteStore(cfg Config) (*SQLiteStore, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("database path is required")
	}

	return &SQLiteStore{
		path: cfg.Path,
	}, nil
}

// Init initializes the database connection and enables WAL mode.
func (s *SQLiteStore) Init(ctx context.Context) error {
	dsn := fmt.Sprintf("%s?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL&_txlock=immediate", s.path)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to ping database: %w", err)
	}

	// Foreign keys are a connection-level setting.
	if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys = ON"); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	s.db = db
	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Migrate runs database migrations from the embedded SQL files.
func (s *SQLiteStore) Migrate(_ context.Context) error {
	if s.db == nil {
		return fmt.Errorf("database not initialized")
	}

	sourceDriver, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("failed to create migration source: %w", err)
	}

	driver, err := sqlite3.WithInstance(s.db, &sqlite3.Config{})
	if err != nil {
		return fmt.Errorf("failed to create database driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", sourceDriver, "sqlite3", driver)
	if err != nil {
		return fmt.Errorf("failed to create migration instance: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}

// BeginTx starts a new transaction.
func (s *SQLiteStore) BeginTx(ctx context.Context) (*sql.Tx, error) {
	return s.db.BeginTx(ctx, &sql.TxOptions{
		Isolation: sql.LevelSerializable,
	})
}

// CommitTx commits a transaction.
func (s *SQLiteStore) CommitTx(tx *sql.Tx) error {
	return tx.Commit()
}

// RollbackTx rolls back a transaction.
func (s *SQLiteStore) RollbackTx(tx *sql.Tx) error {
	return tx.Rollback()
}

// SaveWorkflow inserts a workflow or, when the name already exists,
// replaces its definition and bumps the version.
func (s *SQLiteStore) SaveWorkflow(ctx context.Context, wf *workflow.Workflow) (*WorkflowRecord, error) {
	if err := wf.Validate(); err != nil {
		return nil, err
	}

	definition, err := json.Marshal(wf)
	if err != nil {
		return nil, fmt.Errorf("failed to encode workflow: %w", err)
	}
	labels, err := json.Marshal(wf.Labels)
	if err != nil {
		return nil, fmt.Errorf("failed to encode labels: %w", err)
	}
	if wf.Labels == nil {
		labels = []byte("{}")
	}

	now := time.Now().UTC()

	existing, err := s.getRecordByName(ctx, wf.Name)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}

	if existing != nil {
		record := &WorkflowRecord{
			ID:         existing.ID,
			Name:       wf.Name,
			Version:    existing.Version + 1,
			Definition: string(definition),
			Labels:     string(labels),
			CreatedAt:  existing.CreatedAt,
			UpdatedAt:  now,
		}
		query := `
			UPDATE workflows
			SET version = ?, definition = ?, labels = ?, updated_at = ?
			WHERE id = ?
		`
		if _, err := s.db.ExecContext(ctx, query,
			record.Version, record.Definition, record.Labels, record.UpdatedAt, record.ID); err != nil {
			return nil, fmt.Errorf("failed to update workflow: %w", err)
		}
		return record, nil
	}

	id := wf.ID
	if id == "" {
		id = uuid.New().String()
	}
	record := &WorkflowRecord{
		ID:         id,
		Name:       wf.Name,
		Version:    1,
		Definition: string(definition),
		Labels:     string(labels),
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	query := `
		INSERT INTO workflows (id, name, version, definition, labels, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`
	if _, err := s.db.ExecContext(ctx, query,
		record.ID, record.Name, record.Version, record.Definition,
		record.Labels, record.CreatedAt, record.UpdatedAt); err != nil {
		return nil, fmt.Errorf("failed to create workflow: %w", err)
	}

	return record, nil
}

// GetWorkflow retrieves a workflow by ID.
func (s *SQLiteStore) GetWorkflow(ctx context.Context, id string) (*workflow.Workflow, error) {
	query := `
		SELECT id, name, version, definition, labels, created_at, updated_at
		FROM workflows
		WHERE id = ?
	`
	return s.scanWorkflow(s.db.QueryRowContext(ctx, query, id), id)
}

// GetWorkflowByName retrieves a workflow by name.
func (s *SQLiteStore) GetWorkflowByName(ctx context.Context, name string) (*workflow.Workflow, error) {
	query := `
		SELECT id, name, version, definition, labels, created_at, updated_at
		FROM workflows
		WHERE name = ?
	`
	return s.scanWorkflow(s.db.QueryRowContext(ctx, query, name), name)
}

// LookupWorkflow resolves a template reference by workflow name. It
// satisfies the runner's template resolver contract; a missing name
// yields a template-not-found error the runner reports as a
// recoverable failure.
func (s *SQLiteStore) LookupWorkflow(ctx context.Context, ref string) (*workflow.Workflow, error) {
	wf, err := s.GetWorkflowByName(ctx, ref)
	if err != nil {
		if workflow.IsTemplateNotFound(err) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to resolve template %s: %w", ref, err)
	}
	return wf, nil
}

func (s *SQLiteStore) scanWorkflow(row *sql.Row, key string) (*workflow.Workflow, error) {
	record := &WorkflowRecord{}
	err := row.Scan(
		&record.ID,
		&record.Name,
		&record.Version,
		&record.Definition,
		&record.Labels,
		&record.CreatedAt,
		&record.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, workflow.NewTemplateNotFoundError(key)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get workflow: %w", err)
	}

	var wf workflow.Workflow
	if err := json.Unmarshal([]byte(record.Definition), &wf); err != nil {
		return nil, fmt.Errorf("failed to decode workflow %s: %w", record.ID, err)
	}
	wf.ID = record.ID
	wf.Version = record.Version
	wf.CreatedAt = record.CreatedAt
	wf.UpdatedAt = record.UpdatedAt
	return &wf, nil
}

func (s *SQLiteStore) getRecordByName(ctx context.Context, name string) (*WorkflowRecord, error) {
	query := `
		SELECT id, name, version, definition, labels, created_at, updated_at
		FROM workflows
		WHERE name = ?
	`
	record := &WorkflowRecord{}
	err := s.db.QueryRowContext(ctx, query, name).Scan(
		&record.ID,
		&record.Name,
		&record.Version,
		&record.Definition,
		&record.Labels,
		&record.CreatedAt,
		&record.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return record, nil
}

// ListWorkflows lists workflow records with pagination, newest first.
func (s *SQLiteStore) ListWorkflows(ctx context.Context, limit, offset int) ([]*WorkflowRecord, error) {
	query := `
		SELECT id, name, version, definition, labels, created_at, updated_at
		FROM workflows
		ORDER BY updated_at DESC
		LIMIT ? OFFSET ?
	`

	rows, err := s.db.QueryContext(ctx, query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list workflows: %w", err)
	}
	defer rows.Close()

	records := []*WorkflowRecord{}
	for rows.Next() {
		record := &WorkflowRecord{}
		err := rows.Scan(
			&record.ID,
			&record.Name,
			&record.Version,
			&record.Definition,
			&record.Labels,
			&record.CreatedAt,
			&record.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan workflow: %w", err)
		}
		records = append(records, record)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating workflows: %w", err)
	}

	return records, nil
}

// DeleteWorkflow deletes a workflow and, via cascade, its runs.
func (s *SQLiteStore) DeleteWorkflow(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM workflows WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete workflow: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("workflow not found: %s", id)
	}

	return nil
}

// CreateRun creates a new run record.
func (s *SQLiteStore) CreateRun(ctx context.Context, run *Run) error {
	query := `
		INSERT INTO runs (id, workflow_id, workflow_name, status, trace, error, started_at, completed_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := s.db.ExecContext(ctx, query,
		run.ID,
		run.WorkflowID,
		run.WorkflowName,
		run.Status,
		run.Trace,
		run.Error,
		run.StartedAt,
		run.CompletedAt,
		run.CreatedAt,
		run.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create run: %w", err)
	}

	return nil
}

// GetRun retrieves a run by ID.
func (s *SQLiteStore) GetRun(ctx context.Context, id string) (*Run, error) {
	query := `
		SELECT id, workflow_id, workflow_name, status, trace, error, started_at, completed_at, created_at, updated_at
		FROM runs
		WHERE id = ?
	`

	run := &Run{}
	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&run.ID,
		&run.WorkflowID,
		&run.WorkflowName,
		&run.Status,
		&run.Trace,
		&run.Error,
		&run.StartedAt,
		&run.CompletedAt,
		&run.CreatedAt,
		&run.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("run not found: %s", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}

	return run, nil
}

// UpdateRunStatus updates the status of a run, with the final trace
// when the run completed.
func (s *SQLiteStore) UpdateRunStatus(ctx context.Context, id string, status RunStatus, trace *string, errMsg *string) error {
	query := `
		UPDATE runs
		SET status = ?, trace = COALESCE(?, trace), error = ?, completed_at = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?
	`

	var completedAt *time.Time
	if status == RunStatusSucceeded || status == RunStatusFailed || status == RunStatusCancelled {
		now := time.Now().UTC()
		completedAt = &now
	}

	result, err := s.db.ExecContext(ctx, query, status, trace, errMsg, completedAt, id)
	if err != nil {
		return fmt.Errorf("failed to update run status: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("run not found: %s", id)
	}

	return nil
}

// ListRuns lists runs with pagination, newest first.
func (s *SQLiteStore) ListRuns(ctx context.Context, limit, offset int) ([]*Run, error) {
	query := `
		SELECT id, workflow_id, workflow_name, status, trace, error, started_at, completed_at, created_at, updated_at
		FROM runs
		ORDER BY started_at DESC
		LIMIT ? OFFSET ?
	`
	return s.queryRuns(ctx, query, limit, offset)
}

// ListRunsByWorkflow lists the runs of one workflow, newest first.
func (s *SQLiteStore) ListRunsByWorkflow(ctx context.Context, workflowID string, limit, offset int) ([]*Run, error) {
	query := `
		SELECT id, workflow_id, workflow_name, status, trace, error, started_at, completed_at, created_at, updated_at
		FROM runs
		WHERE workflow_id = ?
		ORDER BY started_at DESC
		LIMIT ? OFFSET ?
	`
	return s.queryRuns(ctx, query, workflowID, limit, offset)
}

func (s *SQLiteStore) queryRuns(ctx context.Context, query string, args ...any) ([]*Run, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	runs := []*Run{}
	for rows.Next() {
		run := &Run{}
		err := rows.Scan(
			&run.ID,
			&run.WorkflowID,
			&run.WorkflowName,
			&run.Status,
			&run.Trace,
			&run.Error,
			&run.StartedAt,
			&run.CompletedAt,
			&run.CreatedAt,
			&run.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, run)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating runs: %w", err)
	}

	return runs, nil
}

// DeleteRun deletes a run by ID.
func (s *SQLiteStore) DeleteRun(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM runs WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete run: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("run not found: %s", id)
	}

	return nil
}

// AppendEvent appends a new event to the log.
func (s *SQLiteStore) AppendEvent(ctx context.Context, event *Event) error {
	query := `
		INSERT INTO events (run_id, action_name, level, type, message, details, timestamp)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`

	result, err := s.db.ExecContext(ctx, query,
		event.RunID,
		event.ActionName,
		event.Level,
		event.Type,
		event.Message,
		event.Details,
		event.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("failed to append event: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get event ID: %w", err)
	}

	event.ID = id
	return nil
}

// GetEvents retrieves events with optional filters and pagination.
func (s *SQLiteStore) GetEvents(ctx context.Context, runID *string, level *EventLevel, limit, offset int) ([]*Event, error) {
	query := `
		SELECT id, run_id, action_name, level, type, message, details, timestamp
		FROM events
		WHERE (? IS NULL OR run_id = ?)
		  AND (? IS NULL OR level = ?)
		ORDER BY timestamp DESC
		LIMIT ? OFFSET ?
	`

	rows, err := s.db.QueryContext(ctx, query, runID, runID, level, level, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to get events: %w", err)
	}
	defer rows.Close()

	events := []*Event{}
	for rows.Next() {
		event := &Event{}
		err := rows.Scan(
			&event.ID,
			&event.RunID,
			&event.ActionName,
			&event.Level,
			&event.Type,
			&event.Message,
			&event.Details,
			&event.Timestamp,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		events = append(events, event)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating events: %w", err)
	}

	return events, nil
}

// HealthCheck verifies the database connection is healthy.
func (s *SQLiteStore) HealthCheck(ctx context.Context) error {
	if s.db == nil {
		return fmt.Errorf("database not initialized")
	}

	return s.db.PingContext(ctx)
}
