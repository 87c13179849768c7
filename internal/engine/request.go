package engine

import (
	"fmt"
	"math"

	"github.com/seantiz/petroflow/internal/calc"
	"github.com/seantiz/petroflow/internal/model"
	"github.com/seantiz/petroflow/internal/report"
)

// Request is the input to a workflow.
type Request struct {
	Wells            []*model.WellLog             `json:"wells"`
	Parameters       *model.CalculationParameters `json:"parameters,omitempty"`
	Cutoffs          *model.Cutoffs               `json:"cutoffs,omitempty"`
	CalculationTypes []string                     `json:"calculation_types,omitempty"`
	Templates        []string                     `json:"templates"`
	Formats          []string                     `json:"formats"`
}

// plan is a Request resolved against engine defaults.
type plan struct {
	wells     []*model.WellLog
	params    model.CalculationParameters
	cutoffs   model.Cutoffs
	types     []calc.Type
	templates []string
	formats   []string
}

func (e *Engine) resolve(req Request) (plan, error) {
	p := plan{
		wells:     req.Wells,
		params:    e.opts.Parameters,
		cutoffs:   e.opts.Cutoffs,
		types:     calc.AllTypes(),
		templates: req.Templates,
		formats:   req.Formats,
	}
	if req.Parameters != nil {
		p.params = *req.Parameters
	}
	p.params = p.params.WithDefaults()
	if req.Cutoffs != nil {
		p.cutoffs = *req.Cutoffs
	}
	if len(req.CalculationTypes) > 0 {
		p.types = p.types[:0:0]
		for _, s := range req.CalculationTypes {
			t, err := calc.ParseType(s)
			if err != nil {
				return plan{}, fmt.Errorf("calculation type %q: %w", s, err)
			}
			p.types = append(p.types, t)
		}
	}
	return p, nil
}

// Result is the bundle produced by a workflow.
type Result struct {
	State           model.WorkflowState              `json:"state"`
	Reports         []*report.Report                 `json:"reports"`
	Exports         map[string]string                `json:"exports"`
	Visualization   Visualization                    `json:"visualization"`
	Perforations    []model.PerforationInterval      `json:"perforations"`
	Recommendations []model.CompletionRecommendation `json:"recommendations"`
}

// Visualization is the payload a log viewer needs to draw the results.
type Visualization struct {
	Tracks      []Track        `json:"tracks"`
	DepthRanges []DepthRange   `json:"depth_ranges"`
	Quality     QualitySummary `json:"quality"`
}

// Track configures one curve track.
type Track struct {
	Well   string  `json:"well"`
	Type   string  `json:"type"`
	Method string  `json:"method"`
	Scale  string  `json:"scale"`
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
}

// DepthRange is the depth extent of one well.
type DepthRange struct {
	Well   string  `json:"well"`
	Top    float64 `json:"top"`
	Bottom float64 `json:"bottom"`
}

// QualitySummary aggregates calculation quality metrics.
type QualitySummary struct {
	Calculations     int            `json:"calculations"`
	MeanCompleteness float64        `json:"mean_completeness"`
	ByConfidence     map[string]int `json:"by_confidence"`
	InvalidSamples   int            `json:"invalid_samples"`
}

func buildVisualization(results []*model.CalculationResult) Visualization {
	v := Visualization{
		Tracks:      []Track{},
		DepthRanges: []DepthRange{},
		Quality:     QualitySummary{ByConfidence: map[string]int{}},
	}
	ranges := map[string]int{}
	var completeness float64
	for _, r := range results {
		scale := "linear"
		if r.Type == string(calc.TypePermeability) {
			scale = "log"
		}
		v.Tracks = append(v.Tracks, Track{
			Well:   r.WellName,
			Type:   r.Type,
			Method: r.Method,
			Scale:  scale,
			Min:    r.Statistics.Min,
			Max:    r.Statistics.Max,
		})

		if len(r.Depths) > 0 {
			top, bottom := math.Inf(1), math.Inf(-1)
			for _, d := range r.Depths {
				top = min(top, d)
				bottom = max(bottom, d)
			}
			if i, ok := ranges[r.WellName]; ok {
				v.DepthRanges[i].Top = min(v.DepthRanges[i].Top, top)
				v.DepthRanges[i].Bottom = max(v.DepthRanges[i].Bottom, bottom)
			} else {
				ranges[r.WellName] = len(v.DepthRanges)
				v.DepthRanges = append(v.DepthRanges, DepthRange{Well: r.WellName, Top: top, Bottom: bottom})
			}
		}

		v.Quality.Calculations++
		v.Quality.ByConfidence[r.Quality.Confidence]++
		v.Quality.InvalidSamples += r.Quality.InvalidSamples
		completeness += r.Quality.DataCompleteness
	}
	if v.Quality.Calculations > 0 {
		v.Quality.MeanCompleteness = completeness / float64(v.Quality.Calculations)
	}
	return v
}
