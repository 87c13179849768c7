package fault

import (
	"errors"
	"slices"
	"strings"
)

// Classifier maps a raw failure and its context to a category, severity and
// code. Implementations may be swapped for structured error codes.
type Classifier interface {
	Classify(err error, ec Context) (Category, Severity, string)
}

// ClassifierFunc adapts a function to the Classifier interface.
type ClassifierFunc func(err error, ec Context) (Category, Severity, string)

// Classify implements Classifier.
func (f ClassifierFunc) Classify(err error, ec Context) (Category, Severity, string) {
	return f(err, ec)
}

var (
	networkHints     = []string{"network", "fetch", "connection", "timeout", "dial", "refused", "unreachable", "no such host"}
	performanceHints = []string{"memory", "performance", "too large", "too many", "slow", "deadline exceeded", "resource exhausted"}

	criticalHints = []string{"fatal", "critical"}
	highHints     = []string{"failed to load", "calculation failed"}
	mediumHints   = []string{"warning", "partial"}
)

// HeuristicClassifier derives categories from structured codes when the
// error carries them, then from context hints, then from message text.
type HeuristicClassifier struct{}

// Classify implements Classifier.
func (HeuristicClassifier) Classify(err error, ec Context) (Category, Severity, string) {
	msg := strings.ToLower(err.Error())
	sev := severityFromMessage(msg)

	var sv Severe
	if errors.As(err, &sv) {
		if s := Severity(strings.ToUpper(sv.ErrorSeverity())); slices.Contains(Severities(), s) {
			sev = s
		}
	}

	var coded Coded
	if errors.As(err, &coded) {
		if c := Category(strings.ToUpper(coded.ErrorCategory())); slices.Contains(Categories(), c) {
			return c, sev, coded.ErrorCode()
		}
	}

	cat := categoryFromContext(ec)
	if cat == "" {
		cat = categoryFromMessage(msg)
	}
	return cat, sev, defaultCode(cat)
}

func categoryFromContext(ec Context) Category {
	switch {
	case ec.CalculationType != "":
		return CategoryCalculation
	case ec.WellData:
		return CategoryDataValidation
	case ec.UserInput:
		return CategoryUserInput
	case ec.ExportFormat != "" || ec.TemplateID != "":
		return CategoryExport
	case strings.HasPrefix(ec.Operation, "visualization"):
		return CategoryVisualization
	}
	return ""
}

func categoryFromMessage(msg string) Category {
	if containsAny(msg, networkHints) {
		return CategoryNetwork
	}
	if containsAny(msg, performanceHints) {
		return CategoryPerformance
	}
	return CategorySystem
}

func severityFromMessage(msg string) Severity {
	switch {
	case containsAny(msg, criticalHints):
		return SeverityCritical
	case containsAny(msg, highHints):
		return SeverityHigh
	case containsAny(msg, mediumHints):
		return SeverityMedium
	default:
		return SeverityLow
	}
}

func defaultCode(c Category) string {
	return string(c) + "_ERROR"
}

func containsAny(s string, needles []string) bool {
	for _, n := range needles {
		if strings.Contains(s, n) {
			return true
		}
	}
	return false
}
