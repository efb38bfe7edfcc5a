package domain

import (
	"errors"
	"fmt"
	"math"

	"github.com/paulmach/orb"
)

// Viewport is the visible region of a map: its center and bounding rectangle.
type Viewport struct {
	Center orb.Point `json:"center"`
	Bounds orb.Bound `json:"bounds"`
}

// NewViewport builds a viewport from a center and [minLon, minLat, maxLon, maxLat].
func NewViewport(center [2]float64, bbox [4]float64) (Viewport, error) {
	vp := Viewport{
		Center: orb.Point{center[0], center[1]},
		Bounds: orb.Bound{
			Min: orb.Point{bbox[0], bbox[1]},
			Max: orb.Point{bbox[2], bbox[3]},
		},
	}
	return vp, vp.Validate()
}

// Validate rejects non-finite coordinates and inverted bounds.
func (v Viewport) Validate() error {
	for _, f := range []float64{v.Center[0], v.Center[1], v.Bounds.Min[0], v.Bounds.Min[1], v.Bounds.Max[0], v.Bounds.Max[1]} {
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return errors.New("viewport coordinates must be finite")
		}
	}
	if v.Bounds.Min[0] > v.Bounds.Max[0] || v.Bounds.Min[1] > v.Bounds.Max[1] {
		return fmt.Errorf("viewport bounds inverted: min %v max %v", v.Bounds.Min, v.Bounds.Max)
	}
	if v.Center.Lat() < -90 || v.Center.Lat() > 90 {
		return fmt.Errorf("viewport center latitude out of range: %v", v.Center.Lat())
	}
	return nil
}

// Sign is the hemisphere sign of the viewport center.
func (v Viewport) Sign() int {
	return HemisphereSign(v.Center.Lon())
}

// Contains reports whether p lies inside the viewport bounds, edges included.
func (v Viewport) Contains(p orb.Point) bool {
	return v.Bounds.Contains(p)
}

// HemisphereSign returns +1 for lon >= 0 and -1 for lon < 0.
// Zero (and negative zero) is treated as +1.
func HemisphereSign(lon float64) int {
	if lon < 0 {
		return -1
	}
	return 1
}
