package domain

import (
	"github.com/paulmach/orb"
)

// DatelineCorrector keeps a layer's features on the side of the antimeridian
// the viewport is looking at. It remembers the hemisphere sign and bounds of
// the last viewport it saw so repeated checks for small pans are skipped.
//
// A DatelineCorrector is not safe for concurrent use.
type DatelineCorrector struct {
	sign   int // 0 until the first pass
	bounds orb.Bound
	seen   bool

	scans  int
	onScan func(corrected int)
}

// CheckResult reports what a Check call did.
type CheckResult struct {
	Scanned   bool
	Corrected int
}

// NewDatelineCorrector returns a corrector with no recorded viewport.
func NewDatelineCorrector() *DatelineCorrector {
	return &DatelineCorrector{}
}

// OnScan registers fn to be called after every completed scan with the
// number of features changed.
func (c *DatelineCorrector) OnScan(fn func(corrected int)) {
	c.onScan = fn
}

// Scans returns the number of scans performed so far.
func (c *DatelineCorrector) Scans() int {
	return c.scans
}

// Sign returns the recorded hemisphere sign, or 0 before the first check.
func (c *DatelineCorrector) Sign() int {
	return c.sign
}

// Check scans features when force is set, when the viewport hemisphere sign
// differs from the recorded one, or when the viewport bounds no longer
// intersect the recorded bounds. The viewport bounds are recorded on every
// call.
func (c *DatelineCorrector) Check(vp Viewport, features []Feature, force bool) CheckResult {
	changed := false
	if sign := vp.Sign(); c.sign != sign {
		c.sign = sign
		changed = true
	}
	if c.seen && !vp.Bounds.Intersects(c.bounds) {
		changed = true
	}
	c.bounds = vp.Bounds
	c.seen = true

	if !force && !changed {
		return CheckResult{}
	}

	corrected := 0
	for _, f := range features {
		if CorrectFeature(f, vp, c.sign) {
			corrected++
		}
	}
	c.scans++
	if c.onScan != nil {
		c.onScan(corrected)
	}
	return CheckResult{Scanned: true, Corrected: corrected}
}

// CorrectFeature moves f by ±360 degrees of longitude towards sign.
// Points inside the viewport are left alone; path vertices are judged by sign
// only. Features that are neither points nor paths are skipped. It reports
// whether f changed.
func CorrectFeature(f Feature, vp Viewport, sign int) bool {
	switch f := f.(type) {
	case PointFeature:
		p := f.LatLng()
		if vp.Contains(p) {
			return false
		}
		np, ok := shift(p, sign)
		if !ok {
			return false
		}
		f.SetLatLng(np)
		return true

	case PathFeature:
		old := f.LatLngs()
		next := make([]orb.Point, len(old))
		found := false
		for i, p := range old {
			np, ok := shift(p, sign)
			if ok {
				found = true
			}
			next[i] = np
		}
		if found {
			f.SetLatLngs(next)
		}
		return found
	}
	return false
}

// shift returns p moved to the sign side of the antimeridian, and whether it
// had to move. Latitude is kept.
func shift(p orb.Point, sign int) (orb.Point, bool) {
	if HemisphereSign(p.Lon()) == sign {
		return p, false
	}
	return orb.Point{float64(sign)*360 + p.Lon(), p.Lat()}, true
}
