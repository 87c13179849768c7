package targets

import (
	"cmp"
	"math"
	"slices"

	"github.com/seantiz/petroflow/internal/model"
)

// Ranking weights and normalisation references.
const (
	weightThickness    = 0.20
	weightPorosity     = 0.25
	weightPermeability = 0.30
	weightSaturation   = 0.25

	refThickness = 50.0
	refPorosity  = 0.30
	refLogPerm   = 3.0 // log10(1000 mD)
)

// Score is the weighted composite ranking score in [0, 100].
func Score(t model.CompletionTarget) float64 {
	thick := clamp100(t.Thickness / refThickness * 100)
	por := clamp100(t.Properties.Porosity / refPorosity * 100)
	perm := clamp100(math.Log10(max(t.Properties.Permeability, 0)+1) / refLogPerm * 100)
	sat := clamp100((1 - t.Properties.WaterSaturation) * 100)
	return weightThickness*thick + weightPorosity*por + weightPermeability*perm + weightSaturation*sat
}

func clamp100(v float64) float64 {
	return max(0, min(100, v))
}

// RankTargets returns a copy of targets scored and sorted by descending
// score, with Ranking set to position+1. Equal scores keep input order.
func RankTargets(targets []model.CompletionTarget) []model.CompletionTarget {
	out := slices.Clone(targets)
	for i := range out {
		out[i].Score = Score(out[i])
	}
	slices.SortStableFunc(out, func(a, b model.CompletionTarget) int {
		return cmp.Compare(b.Score, a.Score)
	})
	for i := range out {
		out[i].Ranking = i + 1
	}
	return out
}
