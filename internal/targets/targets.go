// Package targets identifies reservoir zones and completion targets from
// calculated curves, ranks them, and plans perforations.
package targets

import (
	"fmt"
	"math"

	"github.com/seantiz/petroflow/internal/model"
)

// MinTargetThickness is the thinnest interval kept by the scan.
const MinTargetThickness = 5.0

// depthTolerance is the allowed drift between aligned depth samples.
const depthTolerance = 1e-6

// InvalidInputError is returned when the curves passed to the scan are
// missing or not depth-aligned.
type InvalidInputError struct {
	Well   string
	Reason string
}

func (e *InvalidInputError) Error() string {
	return fmt.Sprintf("invalid target input for well %q: %s", e.Well, e.Reason)
}

// ErrorCode implements fault.Coded.
func (e *InvalidInputError) ErrorCode() string { return "INVALID_TARGET_INPUT" }

// ErrorCategory implements fault.Coded.
func (e *InvalidInputError) ErrorCategory() string { return "DATA_VALIDATION" }

// Curves are the four depth-aligned inputs to the scan.
type Curves struct {
	Porosity        *model.CalculationResult
	Permeability    *model.CalculationResult
	WaterSaturation *model.CalculationResult
	ShaleVolume     *model.CalculationResult
}

func (c Curves) validate(well string) error {
	named := []struct {
		name string
		r    *model.CalculationResult
	}{
		{"porosity", c.Porosity},
		{"permeability", c.Permeability},
		{"water saturation", c.WaterSaturation},
		{"shale volume", c.ShaleVolume},
	}
	for _, n := range named {
		if n.r == nil {
			return &InvalidInputError{Well: well, Reason: n.name + " result is missing"}
		}
	}

	ref := c.Porosity
	if len(ref.Depths) != len(ref.Values) {
		return &InvalidInputError{Well: well, Reason: "porosity depths and values differ in length"}
	}
	for _, n := range named[1:] {
		if len(n.r.Values) != len(ref.Values) {
			return &InvalidInputError{Well: well, Reason: fmt.Sprintf(
				"%s has %d samples, porosity has %d", n.name, len(n.r.Values), len(ref.Values))}
		}
		if len(n.r.Depths) != len(ref.Depths) {
			return &InvalidInputError{Well: well, Reason: n.name + " depth track length differs from porosity"}
		}
		for i := range ref.Depths {
			if math.Abs(n.r.Depths[i]-ref.Depths[i]) > depthTolerance {
				return &InvalidInputError{Well: well, Reason: fmt.Sprintf(
					"%s is not depth-aligned at sample %d (%.3f vs %.3f)", n.name, i, n.r.Depths[i], ref.Depths[i])}
			}
		}
	}
	return nil
}

// sample is one depth-aligned set of valid properties.
type sample struct {
	depth float64
	props model.PetroProperties
}

func (c Curves) at(i int) (sample, bool) {
	por, ok1 := c.Porosity.ValueAt(i)
	perm, ok2 := c.Permeability.ValueAt(i)
	sw, ok3 := c.WaterSaturation.ValueAt(i)
	vsh, ok4 := c.ShaleVolume.ValueAt(i)
	if !ok1 || !ok2 || !ok3 || !ok4 {
		return sample{}, false
	}
	return sample{
		depth: c.Porosity.Depths[i],
		props: model.PetroProperties{Porosity: por, Permeability: perm, WaterSaturation: sw, ShaleVolume: vsh},
	}, true
}

// IsPay reports whether props pass every cutoff.
func IsPay(props model.PetroProperties, c model.Cutoffs) bool {
	return props.Porosity >= c.PorosityMin &&
		props.Permeability >= c.PermeabilityMin &&
		props.WaterSaturation <= c.WaterSaturationMax &&
		props.ShaleVolume <= c.ShaleVolumeMax
}

// isReservoirRock ignores the fluid cutoffs.
func isReservoirRock(props model.PetroProperties, c model.Cutoffs) bool {
	return props.Porosity >= c.PorosityMin && props.ShaleVolume <= c.ShaleVolumeMax
}

// interval accumulates contiguous passing samples.
type interval struct {
	top, last float64
	n         int
	avg       model.PetroProperties
	pay       int
}

func (iv *interval) add(s sample, pay bool) {
	if iv.n == 0 {
		iv.top = s.depth
	}
	iv.last = s.depth
	n := float64(iv.n)
	iv.avg.Porosity = (iv.avg.Porosity*n + s.props.Porosity) / (n + 1)
	iv.avg.Permeability = (iv.avg.Permeability*n + s.props.Permeability) / (n + 1)
	iv.avg.WaterSaturation = (iv.avg.WaterSaturation*n + s.props.WaterSaturation) / (n + 1)
	iv.avg.ShaleVolume = (iv.avg.ShaleVolume*n + s.props.ShaleVolume) / (n + 1)
	iv.n++
	if pay {
		iv.pay++
	}
}

// scan walks the samples once, calling emit for each closed interval
// whose thickness is at least MinTargetThickness. bottom extends the
// last passing sample by one depth step.
func scan(c Curves, pass func(model.PetroProperties) bool, pay func(model.PetroProperties) bool,
	emit func(iv interval, bottom float64)) {
	depths := c.Porosity.Depths

	var cur interval
	closeAt := func(bottom float64) {
		if cur.n > 0 && bottom-cur.top >= MinTargetThickness {
			emit(cur, bottom)
		}
		cur = interval{}
	}

	for i := range depths {
		s, ok := c.at(i)
		if ok && pass(s.props) {
			cur.add(s, pay(s.props))
			continue
		}
		if cur.n > 0 {
			closeAt(cur.last + stepAfter(depths, i-1))
		}
	}
	if cur.n > 0 {
		closeAt(cur.last + stepAfter(depths, len(depths)-1))
	}
}

// stepAfter is the spacing below sample i, or above it at the end of the
// track.
func stepAfter(depths []float64, i int) float64 {
	if i+1 < len(depths) {
		return math.Abs(depths[i+1] - depths[i])
	}
	if i > 0 {
		return math.Abs(depths[i] - depths[i-1])
	}
	return 0
}

// IdentifyCompletionTargets scans the curves for contiguous intervals
// that pass every cutoff and returns them as unranked targets in depth
// order.
func IdentifyCompletionTargets(well string, c Curves, cutoffs model.Cutoffs) ([]model.CompletionTarget, error) {
	if err := c.validate(well); err != nil {
		return nil, err
	}

	pass := func(p model.PetroProperties) bool { return IsPay(p, cutoffs) }
	var out []model.CompletionTarget
	scan(c, pass, pass, func(iv interval, bottom float64) {
		t := model.CompletionTarget{
			ID:         fmt.Sprintf("%s-T%02d", well, len(out)+1),
			WellName:   well,
			Top:        iv.top,
			Bottom:     bottom,
			Thickness:  bottom - iv.top,
			Properties: iv.avg,
		}
		t.Quality = QualityTier(QualityPoints(t.Thickness, t.Properties))
		out = append(out, t)
	})
	return out, nil
}

// IdentifyReservoirZones scans for contiguous reservoir rock (porosity
// and shale volume cutoffs only). NetToGross is the fraction of zone
// samples that also pass the fluid cutoffs.
func IdentifyReservoirZones(well string, c Curves, cutoffs model.Cutoffs) ([]model.ReservoirZone, error) {
	if err := c.validate(well); err != nil {
		return nil, err
	}

	var out []model.ReservoirZone
	scan(c,
		func(p model.PetroProperties) bool { return isReservoirRock(p, cutoffs) },
		func(p model.PetroProperties) bool { return IsPay(p, cutoffs) },
		func(iv interval, bottom float64) {
			out = append(out, model.ReservoirZone{
				WellName:   well,
				Top:        iv.top,
				Bottom:     bottom,
				Thickness:  bottom - iv.top,
				Properties: iv.avg,
				NetToGross: float64(iv.pay) / float64(iv.n),
				Samples:    iv.n,
			})
		})
	return out, nil
}

// QualityPoints scores thickness, porosity, permeability and saturation
// 0 to 3 points each.
func QualityPoints(thickness float64, p model.PetroProperties) int {
	points := 0
	points += tier(thickness, 50, 20, 10)
	points += tier(p.Porosity, 0.20, 0.15, 0.10)
	points += tier(p.Permeability, 100, 10, 1)
	switch {
	case p.WaterSaturation <= 0.30:
		points += 3
	case p.WaterSaturation <= 0.45:
		points += 2
	case p.WaterSaturation <= 0.60:
		points++
	}
	return points
}

func tier(v, hi, mid, lo float64) int {
	switch {
	case v >= hi:
		return 3
	case v >= mid:
		return 2
	case v >= lo:
		return 1
	}
	return 0
}

// QualityTier maps a point score to a quality label.
func QualityTier(points int) string {
	switch {
	case points >= 10:
		return model.QualityExcellent
	case points >= 7:
		return model.QualityGood
	case points >= 4:
		return model.QualityFair
	}
	return model.QualityPoor
}
