package calc

import (
	"math"

	"github.com/seantiz/petroflow/internal/model"
)

// Measurement uncertainties used for first-order error propagation.
const (
	sigmaBulkDensity = 0.015 // g/cc
	sigmaGammaRay    = 5.0   // API
	relSigmaRt       = 0.05
)

// Timur bounds. Swi is floored so dry samples do not blow up k.
const (
	timurCoefficient = 0.136
	timurPorosityExp = 4.4
	minSwi           = 0.01
	maxPermeability  = 10000.0 // mD
)

// Series is the per-sample output of a formula.
type Series struct {
	Values      []float64
	Valid       []bool
	Uncertainty []float64

	// SampleErrors counts samples the formula could not evaluate even though
	// their inputs were present (for example φ ≤ 0 in Archie).
	SampleErrors int
}

func newSeries(n int) Series {
	return Series{
		Values:      make([]float64, n),
		Valid:       make([]bool, n),
		Uncertainty: make([]float64, n),
	}
}

func (s *Series) set(i int, v, u float64) {
	s.Values[i] = v
	s.Uncertainty[i] = u
	s.Valid[i] = true
}

func missing(v, null float64) bool {
	return math.IsNaN(v) || math.IsInf(v, 0) || v == null
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

// DensityPorosity computes φD = (ρma − ρb) / (ρma − ρf).
func DensityPorosity(rhob []float64, null float64, p model.CalculationParameters) (Series, error) {
	denom := p.MatrixDensity - p.FluidDensity
	if denom == 0 {
		return Series{}, &Error{Type: TypePorosity, Reason: CodeInvalidParameters,
			Msg: "matrix density equals fluid density"}
	}
	sigma := sigmaBulkDensity / math.Abs(denom)

	s := newSeries(len(rhob))
	for i, rb := range rhob {
		if missing(rb, null) {
			continue
		}
		s.set(i, clamp((p.MatrixDensity-rb)/denom, 0, 1), sigma)
	}
	return s, nil
}

// LarionovShaleVolume computes the tertiary-rock Larionov shale volume
// Vsh = 0.083 × (2^(3.7×IGR) − 1).
func LarionovShaleVolume(gr []float64, null float64, p model.CalculationParameters) (Series, error) {
	span := p.GRShale - p.GRClean
	if span <= 0 {
		return Series{}, &Error{Type: TypeShaleVolume, Reason: CodeInvalidParameters,
			Msg: "shale gamma-ray baseline must exceed clean baseline"}
	}
	sigmaIGR := sigmaGammaRay / span

	s := newSeries(len(gr))
	for i, g := range gr {
		if missing(g, null) {
			continue
		}
		igr := clamp((g-p.GRClean)/span, 0, 1)
		pow := math.Pow(2, 3.7*igr)
		vsh := clamp(0.083*(pow-1), 0, 1)
		slope := 0.083 * 3.7 * math.Ln2 * pow
		s.set(i, vsh, math.Min(1, slope*sigmaIGR))
	}
	return s, nil
}

// ArchieSaturation computes Sw = ((a·Rw)/(φ^m·Rt))^(1/n), clamped to [0,1].
// Samples with φ ≤ 0 or Rt ≤ 0 are invalid and counted in SampleErrors.
func ArchieSaturation(phi Series, rt []float64, null float64, p model.CalculationParameters) (Series, error) {
	if p.ArchieN == 0 || p.Rw <= 0 || p.ArchieA <= 0 {
		return Series{}, &Error{Type: TypeWaterSaturation, Reason: CodeInvalidParameters,
			Msg: "archie a, n and Rw must be positive"}
	}
	if len(phi.Values) != len(rt) {
		return Series{}, &Error{Type: TypeWaterSaturation, Reason: CodeLengthMismatch,
			Msg: "porosity and resistivity lengths differ"}
	}

	s := newSeries(len(rt))
	for i, r := range rt {
		if !phi.Valid[i] || missing(r, null) {
			continue
		}
		por := phi.Values[i]
		if por <= 0 || r <= 0 {
			s.SampleErrors++
			continue
		}
		sw := math.Pow((p.ArchieA*p.Rw)/(math.Pow(por, p.ArchieM)*r), 1/p.ArchieN)
		sw = clamp(sw, 0, 1)
		relPhi := p.ArchieM * phi.Uncertainty[i] / por
		rel := math.Hypot(relPhi, relSigmaRt) / p.ArchieN
		s.set(i, sw, math.Min(1, sw*rel))
	}
	return s, nil
}

// TimurPermeability computes k = 0.136 × φ^4.4 / Swi² in millidarcies, with
// φ and Swi expressed in percent as in Timur's original correlation.
func TimurPermeability(phi, sw Series) (Series, error) {
	if len(phi.Values) != len(sw.Values) {
		return Series{}, &Error{Type: TypePermeability, Reason: CodeLengthMismatch,
			Msg: "porosity and saturation lengths differ"}
	}

	s := newSeries(len(phi.Values))
	for i := range phi.Values {
		if !phi.Valid[i] || !sw.Valid[i] {
			continue
		}
		por := phi.Values[i]
		swi := math.Max(sw.Values[i], minSwi)
		if por <= 0 {
			s.set(i, 0, 0)
			continue
		}
		k := timurCoefficient * math.Pow(por*100, timurPorosityExp) / math.Pow(swi*100, 2)
		k = clamp(k, 0, maxPermeability)
		rel := math.Hypot(timurPorosityExp*phi.Uncertainty[i]/por, 2*sw.Uncertainty[i]/swi)
		s.set(i, k, k*rel)
	}
	return s, nil
}

// NetFlags marks each sample 1 when Vsh < shaleCutoff and φ > porosityCutoff,
// else 0. The mean of the valid flags is the net-to-gross ratio.
func NetFlags(phi, vsh Series, porosityCutoff, shaleCutoff float64) (Series, error) {
	if len(phi.Values) != len(vsh.Values) {
		return Series{}, &Error{Type: TypeNetToGross, Reason: CodeLengthMismatch,
			Msg: "porosity and shale volume lengths differ"}
	}

	s := newSeries(len(phi.Values))
	for i := range phi.Values {
		if !phi.Valid[i] || !vsh.Valid[i] {
			continue
		}
		flag := 0.0
		if vsh.Values[i] < shaleCutoff && phi.Values[i] > porosityCutoff {
			flag = 1
		}
		s.set(i, flag, 0)
	}
	return s, nil
}
