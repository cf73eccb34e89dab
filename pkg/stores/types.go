package stores

import (
	"context"
	"database/sql"
	"time"

	"github.com/webpilot/webpilot/pkg/workflow"
)

// RunStatus represents the status of a workflow run record.
type RunStatus string

const (
	RunStatusPending   RunStatus = "pending"
	RunStatusRunning   RunStatus = "running"
	RunStatusSucceeded RunStatus = "succeeded"
	RunStatusFailed    RunStatus = "failed"
	RunStatusCancelled RunStatus = "cancelled"
)

// EventLevel represents the severity level of a run event.
type EventLevel string

const (
	EventLevelDebug   EventLevel = "debug"
	EventLevelInfo    EventLevel = "info"
	EventLevelWarning EventLevel = "warning"
	EventLevelError   EventLevel = "error"
)

// WorkflowRecord is a stored workflow definition. Definition holds the
// JSON-encoded workflow model; Version bumps on every save.
type WorkflowRecord struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	Version    int64     `json:"version"`
	Definition string    `json:"definition"` // JSON blob of the workflow model
	Labels     string    `json:"labels"`     // JSON object
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Run is a record of one workflow execution.
type Run struct {
	ID           string     `json:"id"`
	WorkflowID   string     `json:"workflow_id"`
	WorkflowName string     `json:"workflow_name"`
	Status       RunStatus  `json:"status"`
	Trace        string     `json:"trace"` // JSON blob of the root ActionResult
	Error        *string    `json:"error,omitempty"`
	StartedAt    time.Time  `json:"started_at"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// Event is an append-only run log event.
type Event struct {
	ID         int64      `json:"id"`
	RunID      *string    `json:"run_id,omitempty"`
	ActionName *string    `json:"action_name,omitempty"`
	Level      EventLevel `json:"level"`
	Type       string     `json:"type"` // e.g. "run.started", "action.completed"
	Message    string     `json:"message"`
	Details    *string    `json:"details,omitempty"` // JSON blob
	Timestamp  time.Time  `json:"timestamp"`
}

// Store defines the interface for the persistence layer.
type Store interface {
	// Lifecycle
	Init(ctx context.Context) error
	Close() error
	Migrate(ctx context.Context) error

	// Transaction support
	BeginTx(ctx context.Context) (*sql.Tx, error)
	CommitTx(tx *sql.Tx) error
	RollbackTx(tx *sql.Tx) error

	// Workflow operations
	SaveWorkflow(ctx context.Context, wf *workflow.Workflow) (*WorkflowRecord, error)
	GetWorkflow(ctx context.Context, id string) (*workflow.Workflow, error)
	GetWorkflowByName(ctx context.Context, name string) (*workflow.Workflow, error)
	ListWorkflows(ctx context.Context, limit, offset int) ([]*WorkflowRecord, error)
	DeleteWorkflow(ctx context.Context, id string) error

	// Run operations
	CreateRun(ctx context.Context, run *Run) error
	GetRun(ctx context.Context, id string) (*Run, error)
	UpdateRunStatus(ctx context.Context, id string, status RunStatus, trace *string, errMsg *string) error
	ListRuns(ctx context.Context, limit, offset int) ([]*Run, error)
	ListRunsByWorkflow(ctx context.Context, workflowID string, limit, offset int) ([]*Run, error)
	DeleteRun(ctx context.Context, id string) error

	// Event operations
	AppendEvent(ctx context.Context, event *Event) error
	GetEvents(ctx context.Context, runID *string, level *EventLevel, limit, offset int) ([]*Event, error)

	// Utility
	HealthCheck(ctx context.Context) error
}
