package calc

import (
	"fmt"
	"time"

	"github.com/seantiz/petroflow/internal/model"
)

// Type identifies a calculation.
type Type string

// Calculation types.
const (
	TypePorosity        Type = "porosity"
	TypeShaleVolume     Type = "shale_volume"
	TypeWaterSaturation Type = "water_saturation"
	TypePermeability    Type = "permeability"
	TypeNetToGross      Type = "net_to_gross"
)

// Method names recorded on results.
const (
	MethodDensity          = "density"
	MethodLarionovTertiary = "larionov_tertiary"
	MethodArchie           = "archie"
	MethodTimur            = "timur"
	MethodCutoff           = "cutoff"
)

// Error codes carried by *Error.
const (
	CodeMissingCurve      = "MISSING_CURVE"
	CodeMissingDepth      = "MISSING_DEPTH"
	CodeLengthMismatch    = "LENGTH_MISMATCH"
	CodeInvalidParameters = "INVALID_PARAMETERS"
	CodeNoValidSamples    = "NO_VALID_SAMPLES"
	CodeUnknownType       = "UNKNOWN_TYPE"
	CodeDependency        = "DEPENDENCY_FAILED"
)

// Curve mnemonic aliases accepted for each input.
var (
	densityCurves     = []string{"RHOB", "DEN", "ZDEN"}
	gammaCurves       = []string{"GR", "SGR", "CGR"}
	resistivityCurves = []string{"RT", "ILD", "RES", "RDEP", "LLD"}
)

// AllTypes returns every calculation type in dependency order.
func AllTypes() []Type {
	return []Type{TypePorosity, TypeShaleVolume, TypeWaterSaturation, TypePermeability, TypeNetToGross}
}

// ParseType validates a calculation type name.
func ParseType(s string) (Type, error) {
	for _, t := range AllTypes() {
		if string(t) == s {
			return t, nil
		}
	}
	return "", &Error{Type: Type(s), Reason: CodeUnknownType, Msg: "unknown calculation type"}
}

// Error is a whole-curve calculation failure.
type Error struct {
	Type   Type
	Well   string
	Reason string
	Msg    string
}

func (e *Error) Error() string {
	if e.Well == "" {
		return fmt.Sprintf("calculation failed: %s: %s", e.Type, e.Msg)
	}
	return fmt.Sprintf("calculation failed: %s for well %s: %s", e.Type, e.Well, e.Msg)
}

// ErrorCode returns the structured failure code.
func (e *Error) ErrorCode() string { return e.Reason }

// ErrorCategory places calculation failures in the CALCULATION category.
func (e *Error) ErrorCategory() string { return "CALCULATION" }

// Resolver returns the result a calculation depends on. The engine routes
// these lookups through the calculation cache.
type Resolver func(t Type) (*model.CalculationResult, error)

// Direct returns a Resolver that computes dependencies without caching.
func Direct(well *model.WellLog, p model.CalculationParameters) Resolver {
	var r Resolver
	r = func(t Type) (*model.CalculationResult, error) {
		return Compute(t, well, p, r)
	}
	return r
}

// Compute runs calculation t over well. Dependencies are fetched via deps.
func Compute(t Type, well *model.WellLog, p model.CalculationParameters, deps Resolver) (*model.CalculationResult, error) {
	depths, ok := well.Depths()
	if !ok {
		return nil, &Error{Type: t, Well: well.Name, Reason: CodeMissingDepth, Msg: "depth curve not found"}
	}

	var (
		s            Series
		method       string
		completeness float64
		err          error
	)

	switch t {
	case TypePorosity:
		method = MethodDensity
		rhob, cerr := inputCurve(t, well, len(depths), densityCurves)
		if cerr != nil {
			return nil, cerr
		}
		completeness = well.Completeness(rhob)
		s, err = DensityPorosity(rhob, well.Null(), p)

	case TypeShaleVolume:
		method = MethodLarionovTertiary
		gr, cerr := inputCurve(t, well, len(depths), gammaCurves)
		if cerr != nil {
			return nil, cerr
		}
		completeness = well.Completeness(gr)
		s, err = LarionovShaleVolume(gr, well.Null(), p)

	case TypeWaterSaturation:
		method = MethodArchie
		rt, cerr := inputCurve(t, well, len(depths), resistivityCurves)
		if cerr != nil {
			return nil, cerr
		}
		phi, derr := dependency(t, well.Name, deps, TypePorosity)
		if derr != nil {
			return nil, derr
		}
		completeness = min(well.Completeness(rt), phi.Quality.DataCompleteness)
		s, err = ArchieSaturation(seriesOf(phi), rt, well.Null(), p)

	case TypePermeability:
		method = MethodTimur
		phi, derr := dependency(t, well.Name, deps, TypePorosity)
		if derr != nil {
			return nil, derr
		}
		sw, derr := dependency(t, well.Name, deps, TypeWaterSaturation)
		if derr != nil {
			return nil, derr
		}
		completeness = min(phi.Quality.DataCompleteness, sw.Quality.DataCompleteness)
		s, err = TimurPermeability(seriesOf(phi), seriesOf(sw))

	case TypeNetToGross:
		method = MethodCutoff
		phi, derr := dependency(t, well.Name, deps, TypePorosity)
		if derr != nil {
			return nil, derr
		}
		vsh, derr := dependency(t, well.Name, deps, TypeShaleVolume)
		if derr != nil {
			return nil, derr
		}
		completeness = min(phi.Quality.DataCompleteness, vsh.Quality.DataCompleteness)
		s, err = NetFlags(seriesOf(phi), seriesOf(vsh), p.NTGPorosityCutoff, p.NTGShaleCutoff)

	default:
		return nil, &Error{Type: t, Well: well.Name, Reason: CodeUnknownType, Msg: "unknown calculation type"}
	}

	if err != nil {
		if ce, ok := err.(*Error); ok {
			ce.Type, ce.Well = t, well.Name
		}
		return nil, err
	}

	return buildResult(well, t, method, p, depths, s, completeness)
}

func inputCurve(t Type, well *model.WellLog, n int, mnemonics []string) ([]float64, error) {
	c, ok := well.Curve(mnemonics...)
	if !ok {
		return nil, &Error{Type: t, Well: well.Name, Reason: CodeMissingCurve,
			Msg: fmt.Sprintf("none of the curves %v found", mnemonics)}
	}
	if len(c.Values) != n {
		return nil, &Error{Type: t, Well: well.Name, Reason: CodeLengthMismatch,
			Msg: fmt.Sprintf("curve %s has %d samples, depth has %d", c.Mnemonic, len(c.Values), n)}
	}
	return c.Values, nil
}

func dependency(t Type, well string, deps Resolver, need Type) (*model.CalculationResult, error) {
	if deps == nil {
		return nil, &Error{Type: t, Well: well, Reason: CodeDependency, Msg: fmt.Sprintf("no resolver for %s", need)}
	}
	r, err := deps(need)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", need, err)
	}
	return r, nil
}

func seriesOf(r *model.CalculationResult) Series {
	return Series{Values: r.Values, Valid: r.Valid, Uncertainty: r.Uncertainty}
}

func buildResult(well *model.WellLog, t Type, method string, p model.CalculationParameters,
	depths []float64, s Series, completeness float64) (*model.CalculationResult, error) {
	null := well.Null()
	values := make([]float64, len(s.Values))
	var valid []float64
	var uncMin, uncMax float64
	first := true
	for i, v := range s.Values {
		if !s.Valid[i] {
			values[i] = null
			continue
		}
		values[i] = v
		valid = append(valid, v)
		u := s.Uncertainty[i]
		if first || u < uncMin {
			uncMin = u
		}
		if first || u > uncMax {
			uncMax = u
		}
		first = false
	}
	if len(valid) == 0 {
		return nil, &Error{Type: t, Well: well.Name, Reason: CodeNoValidSamples, Msg: "no valid output samples"}
	}

	return &model.CalculationResult{
		WellName:    well.Name,
		Type:        string(t),
		Method:      method,
		Parameters:  p,
		Depths:      append([]float64(nil), depths...),
		Values:      values,
		Valid:       s.Valid,
		Uncertainty: s.Uncertainty,
		NullValue:   null,
		Quality: model.QualityMetrics{
			DataCompleteness: float64(len(valid)) / float64(len(values)),
			UncertaintyRange: model.Range{Min: uncMin, Max: uncMax},
			Confidence:       Confidence(completeness),
			InvalidSamples:   len(values) - len(valid),
			SampleErrors:     s.SampleErrors,
		},
		Statistics:   Describe(valid),
		CalculatedAt: time.Now().UTC(),
	}, nil
}

// Confidence maps input completeness to a confidence level.
func Confidence(completeness float64) string {
	switch {
	case completeness >= 0.9:
		return model.ConfidenceHigh
	case completeness >= 0.7:
		return model.ConfidenceMedium
	default:
		return model.ConfidenceLow
	}
}
