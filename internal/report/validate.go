package report

import (
	"fmt"

	"github.com/seantiz/petroflow/internal/model"
)

// lowCompletenessThreshold triggers a warning for sparse curves.
const lowCompletenessThreshold = 0.7

// Curve aliases required for the standard calculation set.
var (
	requiredDensity     = []string{"RHOB", "DEN", "ZDEN"}
	requiredGamma       = []string{"GR", "SGR", "CGR"}
	requiredResistivity = []string{"RT", "ILD", "RES", "RDEP", "LLD"}
)

// ValidationResult is the outcome of validating one well.
type ValidationResult struct {
	IsValid  bool     `json:"is_valid"`
	Errors   []string `json:"errors"`
	Warnings []string `json:"warnings"`
}

// Validator checks a well before it enters a workflow.
type Validator interface {
	Validate(well *model.WellLog) ValidationResult
}

// StructuralValidator checks naming, the depth track, sample counts and
// the presence of the curves the calculation set needs.
type StructuralValidator struct{}

// Validate implements Validator.
func (StructuralValidator) Validate(w *model.WellLog) ValidationResult {
	var res ValidationResult
	if w == nil {
		res.Errors = append(res.Errors, "well is nil")
		return res
	}
	if w.Name == "" {
		res.Errors = append(res.Errors, "well name is empty")
	}

	depths, ok := w.Depths()
	switch {
	case !ok:
		res.Errors = append(res.Errors, "depth curve is missing")
	case len(depths) == 0:
		res.Errors = append(res.Errors, "depth curve has no samples")
	default:
		for i := 1; i < len(depths); i++ {
			if w.IsNull(depths[i]) || w.IsNull(depths[i-1]) {
				res.Errors = append(res.Errors, fmt.Sprintf("depth sample %d is null", i))
				break
			}
			if depths[i] <= depths[i-1] {
				res.Errors = append(res.Errors, fmt.Sprintf("depth is not strictly increasing at sample %d", i))
				break
			}
		}
		for _, c := range w.Curves {
			if len(c.Values) != len(depths) {
				res.Errors = append(res.Errors, fmt.Sprintf(
					"curve %s has %d samples, depth has %d", c.Mnemonic, len(c.Values), len(depths)))
			}
		}
	}

	for _, req := range []struct {
		label   string
		aliases []string
	}{
		{"bulk density", requiredDensity},
		{"gamma ray", requiredGamma},
		{"resistivity", requiredResistivity},
	} {
		c, ok := w.Curve(req.aliases...)
		if !ok {
			res.Errors = append(res.Errors, fmt.Sprintf("%s curve is missing (expected one of %v)", req.label, req.aliases))
			continue
		}
		if comp := w.Completeness(c.Values); comp < lowCompletenessThreshold {
			res.Warnings = append(res.Warnings, fmt.Sprintf("%s curve %s is only %.0f%% complete", req.label, c.Mnemonic, comp*100))
		}
	}

	res.IsValid = len(res.Errors) == 0
	return res
}
