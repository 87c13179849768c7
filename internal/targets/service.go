package targets

import (
	"log/slog"

	"github.com/seantiz/petroflow/internal/calc"
	"github.com/seantiz/petroflow/internal/model"
)

// Analysis is the reservoir analysis of one well.
type Analysis struct {
	WellName        string                           `json:"well_name"`
	Zones           []model.ReservoirZone            `json:"zones"`
	Targets         []model.CompletionTarget         `json:"targets"`
	Perforations    []model.PerforationInterval      `json:"perforations"`
	Recommendations []model.CompletionRecommendation `json:"recommendations"`
}

// Service runs the full target pipeline with fixed perforation options.
type Service struct {
	perforation PerforationOptions
	logger      *slog.Logger
}

// NewService creates a target service.
func NewService(opts PerforationOptions, logger *slog.Logger) *Service {
	return &Service{perforation: opts.withDefaults(), logger: logger}
}

// CurvesFrom picks the scan inputs out of a well's calculation results.
func CurvesFrom(results map[calc.Type]*model.CalculationResult) Curves {
	return Curves{
		Porosity:        results[calc.TypePorosity],
		Permeability:    results[calc.TypePermeability],
		WaterSaturation: results[calc.TypeWaterSaturation],
		ShaleVolume:     results[calc.TypeShaleVolume],
	}
}

// Analyze identifies zones and targets, ranks the targets, plans
// perforations and builds recommendations.
func (s *Service) Analyze(well string, results map[calc.Type]*model.CalculationResult, cutoffs model.Cutoffs) (*Analysis, error) {
	curves := CurvesFrom(results)

	zones, err := IdentifyReservoirZones(well, curves, cutoffs)
	if err != nil {
		return nil, err
	}
	found, err := IdentifyCompletionTargets(well, curves, cutoffs)
	if err != nil {
		return nil, err
	}

	ranked := RankTargets(found)
	perfs := OptimizePerforationIntervals(ranked, s.perforation)
	recs := GenerateCompletionRecommendations(ranked, perfs)

	s.logger.Debug("reservoir analysis complete",
		"well", well,
		"zones", len(zones),
		"targets", len(ranked),
		"perforations", len(perfs),
	)
	return &Analysis{
		WellName:        well,
		Zones:           zones,
		Targets:         ranked,
		Perforations:    perfs,
		Recommendations: recs,
	}, nil
}
