package model

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"math"
	"strings"
)

// Default LAS conventions.
const (
	DefaultNullValue  = -999.25
	DefaultDepthCurve = "DEPT"
)

// WellMetadata describes where a well is and what interval it covers.
type WellMetadata struct {
	Field       string  `json:"field,omitempty"`
	Operator    string  `json:"operator,omitempty"`
	Location    string  `json:"location,omitempty"`
	Elevation   float64 `json:"elevation,omitempty"`
	TopDepth    float64 `json:"top_depth,omitempty"`
	BottomDepth float64 `json:"bottom_depth,omitempty"`
	DepthUnit   string  `json:"depth_unit,omitempty"`
}

// CurveQuality is the quality descriptor attached to a raw curve.
type CurveQuality struct {
	Completeness float64  `json:"completeness"`
	OutlierCount int      `json:"outlier_count"`
	GapCount     int      `json:"gap_count"`
	Corrections  []string `json:"corrections,omitempty"`
}

// Curve is a named, depth-aligned array of log measurements.
type Curve struct {
	Mnemonic    string       `json:"mnemonic"`
	Unit        string       `json:"unit,omitempty"`
	Description string       `json:"description,omitempty"`
	Values      []float64    `json:"values"`
	Quality     CurveQuality `json:"quality"`
}

// WellLog is the caller-owned input to a workflow.
type WellLog struct {
	Name       string       `json:"name"`
	Metadata   WellMetadata `json:"metadata"`
	DepthCurve string       `json:"depth_curve,omitempty"`
	NullValue  float64      `json:"null_value,omitempty"`
	Curves     []Curve      `json:"curves"`
}

// Null returns the well's null sentinel, defaulting to the LAS value.
func (w *WellLog) Null() float64 {
	if w.NullValue == 0 {
		return DefaultNullValue
	}
	return w.NullValue
}

// IsNull reports whether v is a missing sample for this well.
func (w *WellLog) IsNull(v float64) bool {
	return math.IsNaN(v) || math.IsInf(v, 0) || v == w.Null()
}

// Curve returns the first curve matching any of the given mnemonics,
// compared case-insensitively.
func (w *WellLog) Curve(mnemonics ...string) (*Curve, bool) {
	for _, m := range mnemonics {
		for i := range w.Curves {
			if strings.EqualFold(w.Curves[i].Mnemonic, m) {
				return &w.Curves[i], true
			}
		}
	}
	return nil, false
}

// Depths returns the well's depth samples.
func (w *WellLog) Depths() ([]float64, bool) {
	name := w.DepthCurve
	if name == "" {
		name = DefaultDepthCurve
	}
	c, ok := w.Curve(name, "DEPTH", "MD")
	if !ok {
		return nil, false
	}
	return c.Values, true
}

// Completeness returns the fraction of non-null samples in values.
func (w *WellLog) Completeness(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	valid := 0
	for _, v := range values {
		if !w.IsNull(v) {
			valid++
		}
	}
	return float64(valid) / float64(len(values))
}

// Clone returns a deep copy of the well so in-place transforms do not touch
// the caller's data.
func (w *WellLog) Clone() *WellLog {
	c := *w
	c.Curves = make([]Curve, len(w.Curves))
	for i, cv := range w.Curves {
		cv.Values = append([]float64(nil), cv.Values...)
		cv.Quality.Corrections = append([]string(nil), cv.Quality.Corrections...)
		c.Curves[i] = cv
	}
	return &c
}

// Fingerprint returns a short digest of the well's samples. Two wells with
// the same name but different data have different fingerprints.
func (w *WellLog) Fingerprint() string {
	h := sha256.New()
	var buf [8]byte
	put := func(v float64) {
		binary.LittleEndian.PutUint64(buf[:], math.Float64bits(v))
		h.Write(buf[:])
	}

	h.Write([]byte(w.Name + "\x00" + w.DepthCurve + "\x00"))
	put(w.Null())
	// Raw bits, since NaN samples have no JSON encoding.
	for _, c := range w.Curves {
		h.Write([]byte(strings.ToUpper(c.Mnemonic) + "\x00"))
		for _, v := range c.Values {
			put(v)
		}
	}
	return hex.EncodeToString(h.Sum(nil))[:16]
}
