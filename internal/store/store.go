package store

import (
	"context"
	"errors"
	"time"

	"github.com/seantiz/petroflow/internal/model"
)

// ErrInvalidTransition is returned when a workflow status transition is not allowed.
var ErrInvalidTransition = errors.New("invalid status transition")

// ErrorRecord is the persisted form of a handled error.
type ErrorRecord struct {
	ID              string    `json:"id"`
	WorkflowID      string    `json:"workflow_id,omitempty"`
	Code            string    `json:"code"`
	Category        string    `json:"category"`
	Severity        string    `json:"severity"`
	Message         string    `json:"message"`
	UserMessage     string    `json:"user_message"`
	WellName        string    `json:"well_name,omitempty"`
	Operation       string    `json:"operation,omitempty"`
	RecoveryAttempt bool      `json:"recovery_attempt"`
	CreatedAt       time.Time `json:"created_at"`
}

// WorkflowStats holds aggregate statistics over persisted workflows.
type WorkflowStats struct {
	Total            int            `json:"total"`
	CountByStatus    map[string]int `json:"count_by_status"`
	AvgDurationMS    float64        `json:"avg_duration_ms"`
	TotalErrors      int            `json:"total_errors"`
	ErrorsByCategory map[string]int `json:"errors_by_category"`
}

// Store defines the persistence operations for workflows.
type Store interface {
	CreateWorkflow(ctx context.Context, s *model.WorkflowState) error
	GetWorkflow(ctx context.Context, id string) (*model.WorkflowState, error)
	ListWorkflows(ctx context.Context, limit, offset int) ([]model.WorkflowSummary, int, error)
	UpdateWorkflow(ctx context.Context, s *model.WorkflowState) error
	GetWorkflowStats(ctx context.Context) (*WorkflowStats, error)
	InsertEvent(ctx context.Context, ev *model.WorkflowEvent) error
	GetEvents(ctx context.Context, workflowID string) ([]model.WorkflowEvent, error)
	InsertErrorRecord(ctx context.Context, rec *ErrorRecord) error
	ListErrorRecords(ctx context.Context, workflowID string, limit int) ([]ErrorRecord, error)
	Close() error
}
