// Package fault classifies failures, turns them into user-facing records
// with suggestions and recovery actions, and drives capped automatic
// recovery with backoff. It also tracks the progress indicators the engine
// uses to report long-running phases.
package fault

import (
	"context"
	"time"
)

// Category groups failures by origin.
type Category string

// Error categories.
const (
	CategoryDataValidation Category = "DATA_VALIDATION"
	CategoryCalculation    Category = "CALCULATION"
	CategoryNetwork        Category = "NETWORK"
	CategoryPerformance    Category = "PERFORMANCE"
	CategoryUserInput      Category = "USER_INPUT"
	CategorySystem         Category = "SYSTEM"
	CategoryExport         Category = "EXPORT"
	CategoryVisualization  Category = "VISUALIZATION"
)

// Categories returns every category in a stable order.
func Categories() []Category {
	return []Category{
		CategoryDataValidation, CategoryCalculation, CategoryNetwork, CategoryPerformance,
		CategoryUserInput, CategorySystem, CategoryExport, CategoryVisualization,
	}
}

// Severity ranks how disruptive a failure is.
type Severity string

// Severities.
const (
	SeverityLow      Severity = "LOW"
	SeverityMedium   Severity = "MEDIUM"
	SeverityHigh     Severity = "HIGH"
	SeverityCritical Severity = "CRITICAL"
)

// Severities returns every severity from least to most severe.
func Severities() []Severity {
	return []Severity{SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical}
}

// Coded is implemented by errors that carry a structured code and category.
// Classifiers prefer these over message heuristics.
type Coded interface {
	error
	ErrorCode() string
	ErrorCategory() string
}

// Severe is optionally implemented by errors that know their own severity.
type Severe interface {
	ErrorSeverity() string
}

// RecoveryFunc attempts to recover from the failure described by rec. It
// reports whether recovery succeeded; a returned error is itself handled as
// a new failure tagged as a recovery attempt.
type RecoveryFunc func(ctx context.Context, rec Record, ec Context) (bool, error)

// Action is a recovery step. Automatic actions run immediately in priority
// order; manual actions are surfaced to the caller.
type Action struct {
	ID          string       `json:"id"`
	Label       string       `json:"label"`
	Description string       `json:"description,omitempty"`
	Automatic   bool         `json:"automatic"`
	Priority    int          `json:"priority"`
	Run         RecoveryFunc `json:"-"`
}

// Context carries hints about where a failure happened.
type Context struct {
	Operation       string         `json:"operation,omitempty"`
	WorkflowID      string         `json:"workflow_id,omitempty"`
	WellName        string         `json:"well_name,omitempty"`
	CalculationType string         `json:"calculation_type,omitempty"`
	WellData        bool           `json:"well_data,omitempty"`
	UserInput       bool           `json:"user_input,omitempty"`
	ExportFormat    string         `json:"export_format,omitempty"`
	TemplateID      string         `json:"template_id,omitempty"`
	RecoveryAttempt bool           `json:"recovery_attempt,omitempty"`
	Extra           map[string]any `json:"extra,omitempty"`

	// Retry re-runs the failed operation. When set, the built-in
	// retry_operation action is offered for retryable categories.
	Retry func(ctx context.Context) error `json:"-"`
}

// Record is the normalised form of a handled failure. Records are never
// mutated after creation.
type Record struct {
	ID          string    `json:"id"`
	Code        string    `json:"code"`
	Category    Category  `json:"category"`
	Severity    Severity  `json:"severity"`
	Message     string    `json:"message"`
	UserMessage string    `json:"user_message"`
	Suggestions []string  `json:"suggestions"`
	Actions     []Action  `json:"actions"`
	Timestamp   time.Time `json:"timestamp"`
	Context     Context   `json:"context"`
}

// ManualActions returns the actions that need a human to perform them.
func (r Record) ManualActions() []Action {
	var out []Action
	for _, a := range r.Actions {
		if !a.Automatic {
			out = append(out, a)
		}
	}
	return out
}

// RetryKey is the signature used to cap retries. Records raised inside a
// workflow are counted per workflow, as "<workflow>/<category>:<code>".
func (r Record) RetryKey() string {
	key := string(r.Category) + ":" + r.Code
	if r.Context.WorkflowID != "" {
		return r.Context.WorkflowID + "/" + key
	}
	return key
}
