package model

// Quality tiers for completion targets.
const (
	QualityExcellent = "excellent"
	QualityGood      = "good"
	QualityFair      = "fair"
	QualityPoor      = "poor"
)

// Completion strategies.
const (
	StrategyFull      = "full_completion"
	StrategySelective = "selective_completion"
	StrategyLimited   = "limited_completion"
)

// Completion types.
const (
	CompletionConventional      = "conventional"
	CompletionHydraulicFracture = "hydraulic_fracture"
	CompletionMultiStage        = "multi_stage_fracture"
)

// Risk tiers.
const (
	RiskLow    = "low"
	RiskMedium = "medium"
	RiskHigh   = "high"
)

// Cutoffs classify a depth sample as reservoir quality.
type Cutoffs struct {
	PorosityMin        float64 `json:"porosity_min" yaml:"porosity_min"`
	PermeabilityMin    float64 `json:"permeability_min" yaml:"permeability_min"`
	WaterSaturationMax float64 `json:"water_saturation_max" yaml:"water_saturation_max"`
	ShaleVolumeMax     float64 `json:"shale_volume_max" yaml:"shale_volume_max"`
}

// DefaultCutoffs returns conventional sandstone pay cutoffs.
func DefaultCutoffs() Cutoffs {
	return Cutoffs{
		PorosityMin:        0.08,
		PermeabilityMin:    1,
		WaterSaturationMax: 0.6,
		ShaleVolumeMax:     0.4,
	}
}

// PetroProperties are thickness-averaged petrophysical properties.
type PetroProperties struct {
	Porosity        float64 `json:"porosity"`
	Permeability    float64 `json:"permeability"`
	WaterSaturation float64 `json:"water_saturation"`
	ShaleVolume     float64 `json:"shale_volume"`
}

// ReservoirZone is a contiguous interval meeting reservoir cutoffs.
type ReservoirZone struct {
	WellName   string          `json:"well_name"`
	Top        float64         `json:"top"`
	Bottom     float64         `json:"bottom"`
	Thickness  float64         `json:"thickness"`
	Properties PetroProperties `json:"properties"`
	NetToGross float64         `json:"net_to_gross"`
	Samples    int             `json:"samples"`
}

// CompletionTarget is a depth interval recommended for completion.
type CompletionTarget struct {
	ID         string          `json:"id"`
	WellName   string          `json:"well_name"`
	Top        float64         `json:"top"`
	Bottom     float64         `json:"bottom"`
	Thickness  float64         `json:"thickness"`
	Properties PetroProperties `json:"properties"`
	Quality    string          `json:"quality"`
	Score      float64         `json:"score"`
	Ranking    int             `json:"ranking"`
}

// PerforationInterval is a sub-range of a target selected for perforation.
type PerforationInterval struct {
	TargetID          string  `json:"target_id"`
	WellName          string  `json:"well_name"`
	Top               float64 `json:"top"`
	Bottom            float64 `json:"bottom"`
	Length            float64 `json:"length"`
	Strategy          string  `json:"strategy"`
	ShotDensity       int     `json:"shot_density"`
	ProductivityIndex float64 `json:"productivity_index"`
}

// Economics is the simple cash-flow summary attached to a recommendation.
type Economics struct {
	CapitalCost   float64 `json:"capital_cost"`
	AnnualRevenue float64 `json:"annual_revenue"`
	NPV           float64 `json:"npv"`
	PaybackYears  float64 `json:"payback_years"`
	RateOfReturn  float64 `json:"rate_of_return"`
}

// CompletionRecommendation bundles everything needed to complete a target.
type CompletionRecommendation struct {
	Target               CompletionTarget      `json:"target"`
	Intervals            []PerforationInterval `json:"intervals"`
	CompletionType       string                `json:"completion_type"`
	Stimulation          string                `json:"stimulation"`
	EstimatedRecoveryBbl float64               `json:"estimated_recovery_bbl"`
	Risk                 string                `json:"risk"`
	Economics            Economics             `json:"economics"`
	Priority             int                   `json:"priority"`
}
