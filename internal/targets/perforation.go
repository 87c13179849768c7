package targets

import (
	"cmp"
	"math"
	"slices"

	"github.com/seantiz/petroflow/internal/model"
)

// darcyConstant converts mD·ft to field productivity units.
const darcyConstant = 0.001127

// fullCompletionMinThickness is the thinnest excellent target completed
// over its whole length.
const fullCompletionMinThickness = 30.0

// selectiveCoverage is the share of each spacing window perforated by
// selective completion.
const selectiveCoverage = 0.6

// Shot densities in shots per foot.
const (
	shotsFull      = 12
	shotsSelective = 8
	shotsLimited   = 6
)

// PerforationOptions control interval planning.
type PerforationOptions struct {
	Spacing   float64 `json:"spacing" yaml:"spacing"`
	MinLength float64 `json:"min_length" yaml:"min_length"`
	MaxLength float64 `json:"max_length" yaml:"max_length"`
}

// DefaultPerforationOptions returns spacing 20, min 10 and max 100.
func DefaultPerforationOptions() PerforationOptions {
	return PerforationOptions{Spacing: 20, MinLength: 10, MaxLength: 100}
}

func (o PerforationOptions) withDefaults() PerforationOptions {
	d := DefaultPerforationOptions()
	if o.Spacing <= 0 {
		o.Spacing = d.Spacing
	}
	if o.MinLength <= 0 {
		o.MinLength = d.MinLength
	}
	if o.MaxLength <= 0 {
		o.MaxLength = d.MaxLength
	}
	return o
}

// Strategy picks the completion strategy for a target.
func Strategy(t model.CompletionTarget) string {
	switch {
	case t.Quality == model.QualityExcellent && t.Thickness >= fullCompletionMinThickness:
		return model.StrategyFull
	case t.Quality == model.QualityGood || t.Quality == model.QualityExcellent:
		return model.StrategySelective
	}
	return model.StrategyLimited
}

// Productivity is k·h·φ·(1−Sw) in field units.
func Productivity(props model.PetroProperties, length float64) float64 {
	return props.Permeability * length * props.Porosity * (1 - props.WaterSaturation) * darcyConstant
}

// OptimizePerforationIntervals plans perforations for every target at
// least MinLength thick and returns them sorted by descending
// productivity.
func OptimizePerforationIntervals(targets []model.CompletionTarget, opts PerforationOptions) []model.PerforationInterval {
	opts = opts.withDefaults()

	var out []model.PerforationInterval
	for _, t := range targets {
		if t.Thickness < opts.MinLength {
			continue
		}
		strategy := Strategy(t)
		for _, r := range planIntervals(t, strategy, opts) {
			length := r[1] - r[0]
			out = append(out, model.PerforationInterval{
				TargetID:          t.ID,
				WellName:          t.WellName,
				Top:               r[0],
				Bottom:            r[1],
				Length:            length,
				Strategy:          strategy,
				ShotDensity:       shotDensity(strategy),
				ProductivityIndex: Productivity(t.Properties, length),
			})
		}
	}
	slices.SortStableFunc(out, func(a, b model.PerforationInterval) int {
		return cmp.Compare(b.ProductivityIndex, a.ProductivityIndex)
	})
	return out
}

func planIntervals(t model.CompletionTarget, strategy string, opts PerforationOptions) [][2]float64 {
	switch strategy {
	case model.StrategyFull:
		// Whole target, split into runs no longer than MaxLength.
		var out [][2]float64
		for top := t.Top; top < t.Bottom; top += opts.MaxLength {
			out = append(out, [2]float64{top, min(top+opts.MaxLength, t.Bottom)})
		}
		return out

	case model.StrategySelective:
		n := int(math.Ceil(t.Thickness / opts.Spacing))
		out := make([][2]float64, 0, n)
		for i := range n {
			top := t.Top + float64(i)*opts.Spacing
			bottom := min(top+opts.Spacing*selectiveCoverage, t.Bottom)
			if bottom > top {
				out = append(out, [2]float64{top, bottom})
			}
		}
		return out

	default:
		// One centred run covering the target, capped at MaxLength.
		length := min(t.Thickness, opts.MaxLength)
		mid := (t.Top + t.Bottom) / 2
		return [][2]float64{{mid - length/2, mid + length/2}}
	}
}

func shotDensity(strategy string) int {
	switch strategy {
	case model.StrategyFull:
		return shotsFull
	case model.StrategySelective:
		return shotsSelective
	}
	return shotsLimited
}
