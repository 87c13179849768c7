package targets

import (
	"cmp"
	"math"
	"slices"

	"github.com/seantiz/petroflow/internal/model"
)

// Volumetric and cost model constants.
const (
	barrelsPerAcreFoot = 7758.0
	drainageAcres      = 40.0
	formationVolume    = 1.2 // Bo, reservoir bbl per stock-tank bbl
	oilPrice           = 70.0
	operatingShare     = 0.35
	fieldLifeYears     = 10
	discountRate       = 0.10
	costPerPerfFoot    = 1500.0
)

var recoveryFactor = map[string]float64{
	model.QualityExcellent: 0.35,
	model.QualityGood:      0.25,
	model.QualityFair:      0.15,
	model.QualityPoor:      0.08,
}

var completionCost = map[string]float64{
	model.CompletionConventional:      750_000,
	model.CompletionHydraulicFracture: 2_000_000,
	model.CompletionMultiStage:        4_500_000,
}

var stimulation = map[string]string{
	model.CompletionConventional:      "matrix acid wash",
	model.CompletionHydraulicFracture: "single-stage hydraulic fracture",
	model.CompletionMultiStage:        "multi-stage plug-and-perf hydraulic fracture",
}

// CompletionType buckets targets by average permeability.
func CompletionType(permeability float64) string {
	switch {
	case permeability > 50:
		return model.CompletionConventional
	case permeability > 1:
		return model.CompletionHydraulicFracture
	}
	return model.CompletionMultiStage
}

// QualityPriority maps a quality tier to 1 (excellent) through 4 (poor).
func QualityPriority(quality string) int {
	switch quality {
	case model.QualityExcellent:
		return 1
	case model.QualityGood:
		return 2
	case model.QualityFair:
		return 3
	}
	return 4
}

// Risk derives a risk tier from quality and water saturation.
func Risk(t model.CompletionTarget) string {
	sw := t.Properties.WaterSaturation
	switch {
	case t.Quality == model.QualityPoor || sw > 0.6:
		return model.RiskHigh
	case (t.Quality == model.QualityExcellent || t.Quality == model.QualityGood) && sw <= 0.45:
		return model.RiskLow
	}
	return model.RiskMedium
}

// EstimatedRecovery is the volumetric original oil in place over the
// drainage area times the tier's recovery factor, in stock-tank barrels.
func EstimatedRecovery(t model.CompletionTarget) float64 {
	p := t.Properties
	ooip := barrelsPerAcreFoot * drainageAcres * t.Thickness * p.Porosity * (1 - p.WaterSaturation) / formationVolume
	return max(0, ooip*recoveryFactor[t.Quality])
}

// EvaluateEconomics applies the fixed cost model. PaybackYears is -1 when
// net cash flow never recovers the capital.
func EvaluateEconomics(completion string, perforatedFeet, recoveryBbl float64) model.Economics {
	capex := completionCost[completion] + perforatedFeet*costPerPerfFoot
	revenue := recoveryBbl / fieldLifeYears * oilPrice
	net := revenue * (1 - operatingShare)

	npv := -capex
	for y := 1; y <= fieldLifeYears; y++ {
		npv += net / math.Pow(1+discountRate, float64(y))
	}

	e := model.Economics{
		CapitalCost:   capex,
		AnnualRevenue: revenue,
		NPV:           npv,
		PaybackYears:  -1,
	}
	if net > 0 {
		e.PaybackYears = capex / net
	}
	if capex > 0 {
		e.RateOfReturn = (net*fieldLifeYears - capex) / capex
	}
	return e
}

// GenerateCompletionRecommendations builds one recommendation per target
// from its perforation intervals. The result is sorted by quality
// priority, then by ranking.
func GenerateCompletionRecommendations(targets []model.CompletionTarget, intervals []model.PerforationInterval) []model.CompletionRecommendation {
	byTarget := make(map[string][]model.PerforationInterval)
	for _, iv := range intervals {
		byTarget[iv.TargetID] = append(byTarget[iv.TargetID], iv)
	}

	out := make([]model.CompletionRecommendation, 0, len(targets))
	for _, t := range targets {
		ivs := byTarget[t.ID]
		slices.SortFunc(ivs, func(a, b model.PerforationInterval) int { return cmp.Compare(a.Top, b.Top) })

		var perforated float64
		for _, iv := range ivs {
			perforated += iv.Length
		}
		completion := CompletionType(t.Properties.Permeability)
		recovery := EstimatedRecovery(t)

		out = append(out, model.CompletionRecommendation{
			Target:               t,
			Intervals:            ivs,
			CompletionType:       completion,
			Stimulation:          stimulation[completion],
			EstimatedRecoveryBbl: recovery,
			Risk:                 Risk(t),
			Economics:            EvaluateEconomics(completion, perforated, recovery),
			Priority:             QualityPriority(t.Quality),
		})
	}

	slices.SortStableFunc(out, func(a, b model.CompletionRecommendation) int {
		if c := cmp.Compare(a.Priority, b.Priority); c != 0 {
			return c
		}
		return cmp.Compare(rankOrder(a.Target.Ranking), rankOrder(b.Target.Ranking))
	})
	return out
}

// rankOrder sorts unranked targets last.
func rankOrder(r int) int {
	if r <= 0 {
		return math.MaxInt
	}
	return r
}
