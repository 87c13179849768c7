package model

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"
)

// Confidence levels derived from input completeness.
const (
	ConfidenceHigh   = "high"
	ConfidenceMedium = "medium"
	ConfidenceLow    = "low"
)

// CalculationParameters holds the coefficients used by the formulas.
// A value is immutable for the duration of one calculation.
type CalculationParameters struct {
	MatrixDensity     float64 `json:"matrix_density" yaml:"matrix_density"`
	FluidDensity      float64 `json:"fluid_density" yaml:"fluid_density"`
	ArchieA           float64 `json:"archie_a" yaml:"archie_a"`
	ArchieM           float64 `json:"archie_m" yaml:"archie_m"`
	ArchieN           float64 `json:"archie_n" yaml:"archie_n"`
	Rw                float64 `json:"rw" yaml:"rw"`
	GRClean           float64 `json:"gr_clean" yaml:"gr_clean"`
	GRShale           float64 `json:"gr_shale" yaml:"gr_shale"`
	NTGShaleCutoff    float64 `json:"ntg_shale_cutoff" yaml:"ntg_shale_cutoff"`
	NTGPorosityCutoff float64 `json:"ntg_porosity_cutoff" yaml:"ntg_porosity_cutoff"`
}

// DefaultParameters returns sandstone defaults.
func DefaultParameters() CalculationParameters {
	return CalculationParameters{
		MatrixDensity:     2.65,
		FluidDensity:      1.0,
		ArchieA:           1,
		ArchieM:           2,
		ArchieN:           2,
		Rw:                0.1,
		GRClean:           20,
		GRShale:           150,
		NTGShaleCutoff:    0.5,
		NTGPorosityCutoff: 0.08,
	}
}

// WithDefaults fills zero fields from DefaultParameters.
func (p CalculationParameters) WithDefaults() CalculationParameters {
	d := DefaultParameters()
	fill := func(v *float64, def float64) {
		if *v == 0 {
			*v = def
		}
	}
	fill(&p.MatrixDensity, d.MatrixDensity)
	fill(&p.FluidDensity, d.FluidDensity)
	fill(&p.ArchieA, d.ArchieA)
	fill(&p.ArchieM, d.ArchieM)
	fill(&p.ArchieN, d.ArchieN)
	fill(&p.Rw, d.Rw)
	fill(&p.GRClean, d.GRClean)
	fill(&p.GRShale, d.GRShale)
	fill(&p.NTGShaleCutoff, d.NTGShaleCutoff)
	fill(&p.NTGPorosityCutoff, d.NTGPorosityCutoff)
	return p
}

// Hash returns a deterministic hex digest of the parameter set.
func (p CalculationParameters) Hash() string {
	// Struct fields marshal in declaration order, so the encoding is stable.
	b, _ := json.Marshal(p)
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

// Range is a closed numeric interval.
type Range struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

// QualityMetrics summarises how trustworthy a calculation output is.
type QualityMetrics struct {
	DataCompleteness float64 `json:"data_completeness"`
	UncertaintyRange Range   `json:"uncertainty_range"`
	Confidence       string  `json:"confidence"`
	InvalidSamples   int     `json:"invalid_samples"`
	// SampleErrors counts samples whose inputs were present but the formula
	// could not evaluate. They are included in InvalidSamples.
	SampleErrors     int     `json:"sample_errors"`
}

// Statistics are computed over valid samples only.
type Statistics struct {
	Count  int     `json:"count"`
	Mean   float64 `json:"mean"`
	Median float64 `json:"median"`
	StdDev float64 `json:"std_dev"`
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
	P10    float64 `json:"p10"`
	P25    float64 `json:"p25"`
	P50    float64 `json:"p50"`
	P75    float64 `json:"p75"`
	P90    float64 `json:"p90"`
}

// CalculationResult is the output of one formula over one well.
type CalculationResult struct {
	WellName     string                `json:"well_name"`
	Type         string                `json:"type"`
	Method       string                `json:"method"`
	Parameters   CalculationParameters `json:"parameters"`
	Depths       []float64             `json:"depths"`
	Values       []float64             `json:"values"`
	Valid        []bool                `json:"valid"`
	Uncertainty  []float64             `json:"uncertainty"`
	NullValue    float64               `json:"null_value"`
	Quality      QualityMetrics        `json:"quality"`
	Statistics   Statistics            `json:"statistics"`
	CalculatedAt time.Time             `json:"calculated_at"`
}

// Clone returns a deep copy so cached results cannot be mutated by callers.
func (r *CalculationResult) Clone() *CalculationResult {
	if r == nil {
		return nil
	}
	c := *r
	c.Depths = append([]float64(nil), r.Depths...)
	c.Values = append([]float64(nil), r.Values...)
	c.Valid = append([]bool(nil), r.Valid...)
	c.Uncertainty = append([]float64(nil), r.Uncertainty...)
	return &c
}

// ValueAt returns the sample at i and whether it is valid.
func (r *CalculationResult) ValueAt(i int) (float64, bool) {
	if i < 0 || i >= len(r.Values) {
		return 0, false
	}
	if i < len(r.Valid) && !r.Valid[i] {
		return 0, false
	}
	return r.Values[i], true
}
