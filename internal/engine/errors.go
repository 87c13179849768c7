package engine

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrWorkflowNotFound is returned for unknown workflow ids.
	ErrWorkflowNotFound = errors.New("workflow not found")
	// ErrCancelled is returned by Run when the workflow was cancelled.
	ErrCancelled = errors.New("workflow cancelled")
	// ErrNotComplete is returned when an operation needs a completed workflow.
	ErrNotComplete = errors.New("workflow is not complete")
	// ErrWorkflowFinished is returned when cancelling a finished workflow.
	ErrWorkflowFinished = errors.New("workflow already finished")
	// ErrRunEvicted is returned when a finished workflow is only known to
	// the store and the operation needs its in-memory run.
	ErrRunEvicted = errors.New("workflow run is no longer held in memory")
)

// NoValidWellsError fails a workflow whose wells all failed validation.
type NoValidWellsError struct {
	Total int
}

func (e *NoValidWellsError) Error() string {
	return fmt.Sprintf("no valid wells: all %d well(s) failed validation", e.Total)
}

// ErrorCode implements fault.Coded.
func (e *NoValidWellsError) ErrorCode() string { return "NO_VALID_WELLS" }

// ErrorCategory implements fault.Coded.
func (e *NoValidWellsError) ErrorCategory() string { return "DATA_VALIDATION" }

// ErrorSeverity implements fault.Severe.
func (e *NoValidWellsError) ErrorSeverity() string { return "CRITICAL" }

// WellValidationError excludes a single well from a workflow.
type WellValidationError struct {
	Well     string
	Problems []string
}

func (e *WellValidationError) Error() string {
	return fmt.Sprintf("well %q failed validation: %s", e.Well, strings.Join(e.Problems, "; "))
}

// ErrorCode implements fault.Coded.
func (e *WellValidationError) ErrorCode() string { return "WELL_VALIDATION_FAILED" }

// ErrorCategory implements fault.Coded.
func (e *WellValidationError) ErrorCategory() string { return "DATA_VALIDATION" }

// ErrorSeverity implements fault.Severe.
func (e *WellValidationError) ErrorSeverity() string { return "MEDIUM" }
