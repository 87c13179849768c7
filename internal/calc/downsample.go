package calc

import (
	"fmt"

	"github.com/seantiz/petroflow/internal/model"
)

// Downsample decimates every curve of well in place so that no curve holds
// more than maxSamples samples. It reports whether the well was modified.
func Downsample(well *model.WellLog, maxSamples int) bool {
	depths, ok := well.Depths()
	if !ok || maxSamples <= 0 || len(depths) <= maxSamples {
		return false
	}
	stride := (len(depths) + maxSamples - 1) / maxSamples

	for i := range well.Curves {
		c := &well.Curves[i]
		kept := make([]float64, 0, len(c.Values)/stride+1)
		for j := 0; j < len(c.Values); j += stride {
			kept = append(kept, c.Values[j])
		}
		c.Values = kept
		c.Quality.Corrections = append(c.Quality.Corrections, fmt.Sprintf("downsampled_1_in_%d", stride))
	}
	return true
}
