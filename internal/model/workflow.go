package model

import (
	"slices"
	"time"
)

// Workflow status constants.
const (
	StatusIdle             = "idle"
	StatusLoading          = "loading"
	StatusCalculating      = "calculating"
	StatusGeneratingReport = "generating_report"
	StatusComplete         = "complete"
	StatusError            = "error"
)

// validTransitions maps each status to the set of statuses it may transition to.
// complete→calculating is the parameter-change re-entry.
var validTransitions = map[string]map[string]bool{
	StatusIdle: {
		StatusLoading: true,
		StatusError:   true,
	},
	StatusLoading: {
		StatusCalculating: true,
		StatusError:       true,
	},
	StatusCalculating: {
		StatusGeneratingReport: true,
		StatusComplete:         true,
		StatusError:            true,
	},
	StatusGeneratingReport: {
		StatusComplete: true,
		StatusError:    true,
	},
	StatusComplete: {
		StatusCalculating: true,
	},
}

// ValidTransition reports whether transitioning from one status to another is allowed.
func ValidTransition(from, to string) bool {
	targets, ok := validTransitions[from]
	if !ok {
		return false
	}
	return targets[to]
}

// IsTerminal reports whether status freezes the workflow state.
func IsTerminal(status string) bool {
	return status == StatusComplete || status == StatusError
}

// WorkflowIssue is an error or warning recorded against a workflow.
type WorkflowIssue struct {
	Code      string    `json:"code"`
	Category  string    `json:"category"`
	Severity  string    `json:"severity"`
	Message   string    `json:"message"`
	WellName  string    `json:"well_name,omitempty"`
	Step      string    `json:"step"`
	Timestamp time.Time `json:"timestamp"`
}

// WorkflowState is the orchestrator-owned view of a workflow run.
type WorkflowState struct {
	ID           string               `json:"id"`
	Status       string               `json:"status"`
	Progress     float64              `json:"progress"`
	Segment      int                  `json:"segment"`
	CurrentStep  string               `json:"current_step"`
	Message      string               `json:"message,omitempty"`
	Wells        []string             `json:"wells"`
	Calculations []*CalculationResult `json:"calculations,omitempty"`
	Zones        []ReservoirZone      `json:"zones,omitempty"`
	Targets      []CompletionTarget   `json:"targets,omitempty"`
	Errors       []WorkflowIssue      `json:"errors"`
	Warnings     []WorkflowIssue      `json:"warnings"`
	CreatedAt    time.Time            `json:"created_at"`
	UpdatedAt    time.Time            `json:"updated_at"`
	FinishedAt   *time.Time           `json:"finished_at,omitempty"`
}

// Snapshot returns a copy whose slices are independent of the original.
// Calculation results are shared; they are never mutated after creation.
func (s *WorkflowState) Snapshot() WorkflowState {
	c := *s
	c.Wells = slices.Clone(s.Wells)
	c.Calculations = slices.Clone(s.Calculations)
	c.Zones = slices.Clone(s.Zones)
	c.Targets = slices.Clone(s.Targets)
	c.Errors = slices.Clone(s.Errors)
	c.Warnings = slices.Clone(s.Warnings)
	if s.FinishedAt != nil {
		t := *s.FinishedAt
		c.FinishedAt = &t
	}
	return c
}

// WorkflowSummary is the lightweight row kept by the store for listings.
type WorkflowSummary struct {
	ID          string     `json:"id"`
	Status      string     `json:"status"`
	Progress    float64    `json:"progress"`
	CurrentStep string     `json:"current_step"`
	WellCount   int        `json:"well_count"`
	ErrorCount  int        `json:"error_count"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	FinishedAt  *time.Time `json:"finished_at,omitempty"`
}

// WorkflowEvent is a single persisted event emitted by a workflow.
type WorkflowEvent struct {
	ID         int64     `json:"id"`
	WorkflowID string    `json:"workflow_id"`
	Seq        int       `json:"seq"`
	Segment    int       `json:"segment"`
	Kind       string    `json:"kind"`
	Progress   float64   `json:"progress"`
	Step       string    `json:"step"`
	Message    string    `json:"message"`
	CreatedAt  time.Time `json:"created_at"`
}
