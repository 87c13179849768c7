package calc_test

import (
	"errors"
	"math"
	"slices"
	"testing"

	"github.com/seantiz/petroflow/internal/calc"
	"github.com/seantiz/petroflow/internal/model"
)

const null = model.DefaultNullValue

// makeWell builds a well with n samples at 1 ft spacing from 1000 ft.
func makeWell(rhob, gr, rt []float64) *model.WellLog {
	depths := make([]float64, len(rhob))
	for i := range depths {
		depths[i] = 1000 + float64(i)
	}
	return &model.WellLog{
		Name: "TEST-1",
		Curves: []model.Curve{
			{Mnemonic: "DEPT", Unit: "ft", Values: depths},
			{Mnemonic: "RHOB", Unit: "g/cc", Values: rhob},
			{Mnemonic: "GR", Unit: "API", Values: gr},
			{Mnemonic: "RT", Unit: "ohmm", Values: rt},
		},
	}
}

func approx(a, b, tol float64) bool {
	return math.Abs(a-b) <= tol
}

func TestDensityPorosity(t *testing.T) {
	s, err := calc.DensityPorosity([]float64{2.65, 2.32, 1.0, null}, null, model.DefaultParameters())
	if err != nil {
		t.Fatalf("DensityPorosity: %v", err)
	}

	want := []float64{0, 0.2, 1}
	for i, w := range want {
		if !s.Valid[i] {
			t.Fatalf("sample %d unexpectedly invalid", i)
		}
		if !approx(s.Values[i], w, 1e-9) {
			t.Errorf("phi[%d] = %v, want %v", i, s.Values[i], w)
		}
	}
	if s.Valid[3] {
		t.Error("null sample should be invalid")
	}
}

func TestDensityPorosityInvalidParameters(t *testing.T) {
	p := model.DefaultParameters()
	p.FluidDensity = p.MatrixDensity
	_, err := calc.DensityPorosity([]float64{2.3}, null, p)

	var ce *calc.Error
	if !errors.As(err, &ce) || ce.Reason != calc.CodeInvalidParameters {
		t.Fatalf("err = %v, want invalid parameters", err)
	}
}

func TestLarionovWithinUnitInterval(t *testing.T) {
	gr := []float64{-50, 0, 20, 60, 85, 150, 300, 1000}
	s, err := calc.LarionovShaleVolume(gr, null, model.DefaultParameters())
	if err != nil {
		t.Fatalf("LarionovShaleVolume: %v", err)
	}
	for i, v := range s.Values {
		if v < 0 || v > 1 {
			t.Errorf("vsh[%d] = %v, outside [0,1]", i, v)
		}
	}
	if s.Values[2] != 0 {
		t.Errorf("clean baseline vsh = %v, want 0", s.Values[2])
	}
	// IGR = 0.5 → 0.083 × (2^1.85 − 1).
	if want := 0.083 * (math.Pow(2, 1.85) - 1); !approx(s.Values[4], want, 1e-9) {
		t.Errorf("vsh at IGR 0.5 = %v, want %v", s.Values[4], want)
	}
}

func TestArchieWithinUnitInterval(t *testing.T) {
	phi := calc.Series{
		Values:      []float64{0.01, 0.05, 0.2, 0.35, 0.2, 0},
		Valid:       []bool{true, true, true, true, true, true},
		Uncertainty: []float64{0.01, 0.01, 0.01, 0.01, 0.01, 0.01},
	}
	rt := []float64{0.1, 1, 20, 200, -5, 10}
	s, err := calc.ArchieSaturation(phi, rt, null, model.DefaultParameters())
	if err != nil {
		t.Fatalf("ArchieSaturation: %v", err)
	}
	for i, v := range s.Values {
		if s.Valid[i] && (v < 0 || v > 1) {
			t.Errorf("sw[%d] = %v, outside [0,1]", i, v)
		}
	}
	// a=1, Rw=0.1, φ=0.2, Rt=20, m=n=2: Sw = sqrt(0.1/(0.04*20)) = 0.3536.
	if !approx(s.Values[2], math.Sqrt(0.1/0.8), 1e-9) {
		t.Errorf("sw[2] = %v, want %v", s.Values[2], math.Sqrt(0.1/0.8))
	}
	if s.Valid[4] || s.Valid[5] {
		t.Error("Rt <= 0 and φ <= 0 samples should be invalid")
	}
	if s.SampleErrors != 2 {
		t.Errorf("SampleErrors = %d, want 2", s.SampleErrors)
	}
}

func TestTimurPermeability(t *testing.T) {
	phi := calc.Series{Values: []float64{0.2}, Valid: []bool{true}, Uncertainty: []float64{0.01}}
	sw := calc.Series{Values: []float64{0.3}, Valid: []bool{true}, Uncertainty: []float64{0.02}}
	s, err := calc.TimurPermeability(phi, sw)
	if err != nil {
		t.Fatalf("TimurPermeability: %v", err)
	}
	want := 0.136 * math.Pow(20, 4.4) / 900
	if !approx(s.Values[0], want, 1e-6) {
		t.Errorf("k = %v, want %v", s.Values[0], want)
	}
	if s.Uncertainty[0] <= 0 {
		t.Error("expected positive uncertainty")
	}
}

func TestNetFlags(t *testing.T) {
	phi := calc.Series{Values: []float64{0.2, 0.05, 0.2, 0.2}, Valid: []bool{true, true, true, false}}
	vsh := calc.Series{Values: []float64{0.1, 0.1, 0.7, 0.1}, Valid: []bool{true, true, true, true}}
	flags, err := calc.NetFlags(phi, vsh, 0.08, 0.5)
	if err != nil {
		t.Fatalf("NetFlags: %v", err)
	}
	if want := []bool{true, true, true, false}; !slices.Equal(flags.Valid, want) {
		t.Errorf("valid = %v, want %v", flags.Valid, want)
	}
	if want := []float64{1, 0, 0}; !slices.Equal(flags.Values[:3], want) {
		t.Errorf("flags = %v, want %v", flags.Values[:3], want)
	}
}

func TestComputeAllTypes(t *testing.T) {
	w := makeWell(
		[]float64{2.35, 2.30, 2.32, null, 2.40, 2.28},
		[]float64{30, 35, 40, null, 120, 25},
		[]float64{20, 25, 30, 18, 3, 40},
	)
	p := model.DefaultParameters()
	deps := calc.Direct(w, p)

	for _, typ := range calc.AllTypes() {
		r, err := calc.Compute(typ, w, p, deps)
		if err != nil {
			t.Fatalf("Compute(%s): %v", typ, err)
		}
		if len(r.Values) != 6 || len(r.Depths) != 6 {
			t.Errorf("%s: got %d values, %d depths, want 6", typ, len(r.Values), len(r.Depths))
		}
		if r.Valid[3] {
			t.Errorf("%s: null input sample should be invalid", typ)
		}
		if r.Values[3] != null {
			t.Errorf("%s: invalid sample value = %v, want null sentinel", typ, r.Values[3])
		}
		if r.Statistics.Count != 5 {
			t.Errorf("%s: stats count = %d, want 5", typ, r.Statistics.Count)
		}
		if r.Quality.Confidence != model.ConfidenceMedium {
			t.Errorf("%s: confidence = %q, want medium (5/6 complete)", typ, r.Quality.Confidence)
		}
	}
}

func TestComputeKeepsSampleErrors(t *testing.T) {
	w := makeWell(
		[]float64{2.30, 2.30, 2.30, 2.30},
		[]float64{30, 30, 30, 30},
		[]float64{20, 0, 0, null},
	)
	p := model.DefaultParameters()

	r, err := calc.Compute(calc.TypeWaterSaturation, w, p, calc.Direct(w, p))
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}
	if r.Quality.SampleErrors != 2 {
		t.Errorf("SampleErrors = %d, want 2 (Rt = 0)", r.Quality.SampleErrors)
	}
	if r.Quality.InvalidSamples != 3 {
		t.Errorf("InvalidSamples = %d, want 3 (two rejected, one null)", r.Quality.InvalidSamples)
	}
}

func TestComputeMissingCurve(t *testing.T) {
	w := makeWell([]float64{2.3}, []float64{30}, []float64{10})
	w.Curves = w.Curves[:2] // drop GR and RT

	_, err := calc.Compute(calc.TypeWaterSaturation, w, model.DefaultParameters(), calc.Direct(w, model.DefaultParameters()))
	var ce *calc.Error
	if !errors.As(err, &ce) || ce.Reason != calc.CodeMissingCurve {
		t.Fatalf("err = %v, want missing curve", err)
	}
}

func TestComputeAllNullFails(t *testing.T) {
	w := makeWell([]float64{null, null}, []float64{30, 30}, []float64{10, 10})
	_, err := calc.Compute(calc.TypePorosity, w, model.DefaultParameters(), nil)
	var ce *calc.Error
	if !errors.As(err, &ce) || ce.Reason != calc.CodeNoValidSamples {
		t.Fatalf("err = %v, want no valid samples", err)
	}
}

func TestComputeIsDeterministic(t *testing.T) {
	w := makeWell([]float64{2.3, 2.4}, []float64{30, 60}, []float64{10, 20})
	p := model.DefaultParameters()
	a, err := calc.Compute(calc.TypePermeability, w, p, calc.Direct(w, p))
	if err != nil {
		t.Fatal(err)
	}
	b, err := calc.Compute(calc.TypePermeability, w, p, calc.Direct(w, p))
	if err != nil {
		t.Fatal(err)
	}
	for i := range a.Values {
		if math.Float64bits(a.Values[i]) != math.Float64bits(b.Values[i]) {
			t.Errorf("value %d differs: %v vs %v", i, a.Values[i], b.Values[i])
		}
	}
}

func TestDescribe(t *testing.T) {
	s := calc.Describe([]float64{4, 1, 3, 2, 5})
	if s.Mean != 3 || s.Median != 3 || s.Min != 1 || s.Max != 5 {
		t.Errorf("unexpected stats %+v", s)
	}
	if !approx(s.StdDev, math.Sqrt(2), 1e-9) {
		t.Errorf("stddev = %v, want sqrt(2)", s.StdDev)
	}
	if !approx(s.P25, 2, 1e-9) || !approx(s.P90, 4.6, 1e-9) {
		t.Errorf("p25 = %v, p90 = %v", s.P25, s.P90)
	}
	if got := calc.Describe(nil); got.Count != 0 {
		t.Errorf("empty describe count = %d", got.Count)
	}
}

func TestConfidence(t *testing.T) {
	tests := []struct {
		in   float64
		want string
	}{
		{1, model.ConfidenceHigh},
		{0.9, model.ConfidenceHigh},
		{0.75, model.ConfidenceMedium},
		{0.2, model.ConfidenceLow},
	}
	for _, tt := range tests {
		if got := calc.Confidence(tt.in); got != tt.want {
			t.Errorf("Confidence(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestDownsample(t *testing.T) {
	n := 10
	vals := make([]float64, n)
	for i := range vals {
		vals[i] = 2.3
	}
	w := makeWell(vals, vals, vals)
	if !calc.Downsample(w, 4) {
		t.Fatal("expected downsampling")
	}
	depths, _ := w.Depths()
	if len(depths) != 4 {
		t.Errorf("len(depths) = %d, want 4", len(depths))
	}
	for _, c := range w.Curves {
		if len(c.Values) != len(depths) {
			t.Errorf("curve %s has %d samples, depth has %d", c.Mnemonic, len(c.Values), len(depths))
		}
	}
	if calc.Downsample(w, 100) {
		t.Error("short well should not be downsampled")
	}
}

func TestParseType(t *testing.T) {
	if _, err := calc.ParseType("porosity"); err != nil {
		t.Errorf("ParseType(porosity): %v", err)
	}
	if _, err := calc.ParseType("magic"); err == nil {
		t.Error("expected error for unknown type")
	}
}
