package fault

import (
	"regexp"
	"strings"
)

// plainLanguage rewrites technical fragments of raw error text.
var plainLanguage = []struct {
	re   *regexp.Regexp
	repl string
}{
	{regexp.MustCompile(`(?i)\bNaN\b`), "an invalid number"},
	{regexp.MustCompile(`(?i)\b(null|undefined|nil)\b`), "missing"},
	{regexp.MustCompile(`(?i)\bECONNREFUSED\b|connection refused`), "the service could not be reached"},
	{regexp.MustCompile(`(?i)context deadline exceeded|\btimeout\b`), "the operation took too long"},
	{regexp.MustCompile(`\bRHOB\b`), "bulk density"},
	{regexp.MustCompile(`\bGR\b`), "gamma ray"},
	{regexp.MustCompile(`\b(RT|ILD)\b`), "resistivity"},
	{regexp.MustCompile(`\bSw\b`), "water saturation"},
	{regexp.MustCompile(`\bVsh\b`), "shale volume"},
}

var categoryLead = map[Category]string{
	CategoryDataValidation: "Some well data could not be used",
	CategoryCalculation:    "A calculation could not be completed",
	CategoryNetwork:        "A connection problem occurred",
	CategoryPerformance:    "The analysis is running into resource limits",
	CategoryUserInput:      "Some of the input needs attention",
	CategorySystem:         "An unexpected problem occurred",
	CategoryExport:         "A report or export could not be produced",
	CategoryVisualization:  "The display could not be updated",
}

// UserMessage turns a raw error message into plain language.
func UserMessage(c Category, raw string) string {
	msg := raw
	for _, r := range plainLanguage {
		msg = r.re.ReplaceAllString(msg, r.repl)
	}
	msg = strings.TrimSpace(msg)
	lead, ok := categoryLead[c]
	if !ok {
		lead = categoryLead[CategorySystem]
	}
	if msg == "" {
		return lead + "."
	}
	return lead + ": " + msg + "."
}

var suggestions = map[Category][]string{
	CategoryDataValidation: {
		"Check that every curve has the same number of samples as the depth curve.",
		"Confirm the null value declared for the well matches the data.",
		"Make sure bulk density, gamma ray and resistivity curves are present.",
	},
	CategoryCalculation: {
		"Review the calculation parameters for physically reasonable values.",
		"Check the input curves for long runs of missing samples.",
		"Try the calculation again with default parameters.",
	},
	CategoryNetwork: {
		"Check your network connection.",
		"Try again in a few moments.",
	},
	CategoryPerformance: {
		"Analyse fewer wells per batch.",
		"Enable downsampling for very long logs.",
	},
	CategoryUserInput: {
		"Review the highlighted inputs and correct them.",
	},
	CategorySystem: {
		"Try the operation again.",
		"If the problem persists, contact support with the error ID.",
	},
	CategoryExport: {
		"Try a different export format.",
		"Check that the report template exists.",
	},
	CategoryVisualization: {
		"Reset the track layout to defaults.",
	},
}

// Suggestions returns the actionable hints for a category.
func Suggestions(c Category) []string {
	s, ok := suggestions[c]
	if !ok {
		s = suggestions[CategorySystem]
	}
	return append([]string(nil), s...)
}

var manualActions = map[Category][]Action{
	CategoryDataValidation: {
		{ID: "review_well_data", Label: "Review well data", Priority: 20},
		{ID: "exclude_well", Label: "Exclude the well from the batch", Priority: 10},
	},
	CategoryCalculation: {
		{ID: "adjust_parameters", Label: "Adjust calculation parameters", Priority: 20},
		{ID: "review_input_curves", Label: "Review input curves", Priority: 10},
	},
	CategoryNetwork: {
		{ID: "check_connection", Label: "Check the connection and retry", Priority: 10},
	},
	CategoryPerformance: {
		{ID: "reduce_batch_size", Label: "Reduce the batch size", Priority: 20},
		{ID: "enable_downsampling", Label: "Enable downsampling", Priority: 10},
	},
	CategoryUserInput: {
		{ID: "correct_input", Label: "Correct the input", Priority: 10},
	},
	CategorySystem: {
		{ID: "contact_support", Label: "Contact support", Priority: 10},
	},
	CategoryExport: {
		{ID: "try_other_format", Label: "Try another format", Priority: 10},
	},
	CategoryVisualization: {
		{ID: "reset_view", Label: "Reset the view", Priority: 10},
	},
}

// retryable lists the categories for which re-running the operation may help.
var retryable = map[Category]bool{
	CategoryCalculation: true,
	CategoryNetwork:     true,
	CategoryPerformance: true,
	CategorySystem:      true,
	CategoryExport:      true,
}
