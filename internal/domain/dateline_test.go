package domain

import (
	"testing"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- helpers ---

func marker(t *testing.T, lat, lon float64) *Marker {
	t.Helper()
	f, err := NewFeature(geojson.NewFeature(orb.Point{lon, lat}))
	require.NoError(t, err)
	m, ok := f.(*Marker)
	require.True(t, ok)
	return m
}

func path(t *testing.T, pts ...orb.Point) *Path {
	t.Helper()
	f, err := NewFeature(geojson.NewFeature(orb.LineString(pts)))
	require.NoError(t, err)
	p, ok := f.(*Path)
	require.True(t, ok)
	return p
}

// viewport centred on lon with bounds [minLon, maxLon] over NZ latitudes.
func viewport(lon, minLon, maxLon float64) Viewport {
	return Viewport{
		Center: orb.Point{lon, -41},
		Bounds: orb.Bound{Min: orb.Point{minLon, -50}, Max: orb.Point{maxLon, -30}},
	}
}

// --- HemisphereSign ---

func TestHemisphereSign(t *testing.T) {
	tests := []struct {
		lon  float64
		want int
	}{
		{lon: 174.5, want: 1},
		{lon: -176.5, want: -1},
		{lon: 180, want: 1},
		{lon: -180, want: -1},
		{lon: 0, want: 1},
		{lon: -0.0001, want: -1},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, HemisphereSign(tt.lon), "lon %v", tt.lon)
	}
}

// --- CorrectFeature ---

func TestCorrectFeature_PointOppositeSignOutsideBounds(t *testing.T) {
	vp := viewport(170, 160, 179)
	m := marker(t, -44, -175)

	changed := CorrectFeature(m, vp, vp.Sign())

	assert.True(t, changed)
	assert.Equal(t, 185.0, m.LatLng().Lon())
	assert.Equal(t, -44.0, m.LatLng().Lat())
}

func TestCorrectFeature_NegativeViewport(t *testing.T) {
	vp := viewport(-170, -179, -160)
	m := marker(t, -44, 175)

	changed := CorrectFeature(m, vp, vp.Sign())

	assert.True(t, changed)
	assert.Equal(t, -185.0, m.LatLng().Lon())
	assert.Equal(t, -44.0, m.LatLng().Lat())
}

func TestCorrectFeature_PointSameSignIsNoop(t *testing.T) {
	vp := viewport(170, 160, 179)
	m := marker(t, -41, 174.5)

	assert.False(t, CorrectFeature(m, vp, vp.Sign()))
	assert.Equal(t, orb.Point{174.5, -41}, m.LatLng())
}

func TestCorrectFeature_PointInsideBoundsIsNoop(t *testing.T) {
	// Bounds straddle the antimeridian in the negative frame.
	vp := Viewport{
		Center: orb.Point{175, -41},
		Bounds: orb.Bound{Min: orb.Point{-179, -50}, Max: orb.Point{179, -30}},
	}
	m := marker(t, -44, -176.5)

	assert.False(t, CorrectFeature(m, vp, vp.Sign()))
	assert.Equal(t, -176.5, m.LatLng().Lon())
}

func TestCorrectFeature_PathCorrectsOnlyOppositeSignPoints(t *testing.T) {
	vp := viewport(170, 160, 179)
	p := path(t, orb.Point{-175, -10}, orb.Point{170, -10})

	changed := CorrectFeature(p, vp, 1)

	assert.True(t, changed)
	assert.Equal(t, []orb.Point{{185, -10}, {170, -10}}, p.LatLngs())
}

func TestCorrectFeature_PathIgnoresContainment(t *testing.T) {
	// -176 is inside the bounds but a path vertex is judged by sign alone.
	vp := Viewport{
		Center: orb.Point{175, -41},
		Bounds: orb.Bound{Min: orb.Point{-179, -50}, Max: orb.Point{179, -30}},
	}
	p := path(t, orb.Point{-176, -44}, orb.Point{178, -44})

	assert.True(t, CorrectFeature(p, vp, vp.Sign()))
	assert.Equal(t, 184.0, p.LatLngs()[0].Lon())
}

func TestCorrectFeature_PathUnchangedKeepsGeometry(t *testing.T) {
	vp := viewport(170, 160, 179)
	ls := orb.LineString{{171, -40}, {172, -41}}
	gf := geojson.NewFeature(ls)
	f, err := NewFeature(gf)
	require.NoError(t, err)

	assert.False(t, CorrectFeature(f, vp, 1))
	assert.Equal(t, ls, gf.Geometry)
}

func TestCorrectFeature_PolygonRingsStayClosed(t *testing.T) {
	vp := viewport(170, 160, 179)
	poly := orb.Polygon{{{178, -43}, {-178, -43}, {-178, -45}, {178, -43}}}
	gf := geojson.NewFeature(poly)
	f, err := NewFeature(gf)
	require.NoError(t, err)

	require.True(t, CorrectFeature(f, vp, 1))

	ring := gf.Geometry.(orb.Polygon)[0]
	assert.Equal(t, ring[0], ring[len(ring)-1])
	assert.Equal(t, 182.0, ring[1].Lon())
	assert.Equal(t, 182.0, ring[2].Lon())
}

func TestCorrectFeature_OpaqueSkipped(t *testing.T) {
	vp := viewport(170, 160, 179)
	gf := geojson.NewFeature(orb.MultiPoint{{-175, -44}})
	f, err := NewFeature(gf)
	require.NoError(t, err)

	assert.False(t, CorrectFeature(f, vp, 1))
	assert.Equal(t, orb.MultiPoint{{-175, -44}}, gf.Geometry)
}

func TestCorrectFeature_PreservesProperties(t *testing.T) {
	vp := viewport(170, 160, 179)
	gf := geojson.NewFeature(orb.Point{-176.5, -44})
	gf.Properties["siteID"] = "CHTI"
	gf.Properties["networkID"] = "CG"
	f, err := NewFeature(gf)
	require.NoError(t, err)

	require.True(t, CorrectFeature(f, vp, 1))

	assert.Equal(t, "CHTI", gf.Properties["siteID"])
	assert.Equal(t, "CG.CHTI", f.ID())
}

// --- DatelineCorrector ---

func TestDatelineCorrector_FirstCheckScans(t *testing.T) {
	c := NewDatelineCorrector()
	m := marker(t, -44, -176.5)

	res := c.Check(viewport(174, 165, 179), []Feature{m}, false)

	assert.True(t, res.Scanned)
	assert.Equal(t, 1, res.Corrected)
	assert.Equal(t, 1, c.Scans())
	assert.Equal(t, 1, c.Sign())
	assert.Equal(t, 183.5, m.LatLng().Lon())
}

func TestDatelineCorrector_SkipsWhenNothingChanged(t *testing.T) {
	c := NewDatelineCorrector()
	var hookCalls int
	c.OnScan(func(int) { hookCalls++ })
	features := []Feature{marker(t, -44, -176.5)}

	c.Check(viewport(174, 165, 179), features, false)
	res := c.Check(viewport(175, 166, 179.5), features, false)

	assert.False(t, res.Scanned)
	assert.Equal(t, 1, c.Scans())
	assert.Equal(t, 1, hookCalls)
}

func TestDatelineCorrector_ForceScans(t *testing.T) {
	c := NewDatelineCorrector()
	features := []Feature{marker(t, -44, -176.5)}

	c.Check(viewport(174, 165, 179), features, false)
	res := c.Check(viewport(174, 165, 179), features, true)

	assert.True(t, res.Scanned)
	assert.Equal(t, 0, res.Corrected, "already corrected")
	assert.Equal(t, 2, c.Scans())
}

func TestDatelineCorrector_SignChangeScans(t *testing.T) {
	c := NewDatelineCorrector()
	m := marker(t, -41, 174.5)
	features := []Feature{m}

	c.Check(viewport(174, 165, 179), features, false)
	res := c.Check(viewport(-170, -179, -160), features, false)

	assert.True(t, res.Scanned)
	assert.Equal(t, -1, c.Sign())
	assert.Equal(t, -185.5, m.LatLng().Lon())
}

func TestDatelineCorrector_DisjointBoundsScans(t *testing.T) {
	c := NewDatelineCorrector()
	features := []Feature{marker(t, -44, -176.5)}

	c.Check(viewport(174, 165, 179), features, false)
	res := c.Check(viewport(20, 10, 30), features, false)

	assert.True(t, res.Scanned)
	assert.Equal(t, 2, c.Scans())
}

func TestDatelineCorrector_Idempotent(t *testing.T) {
	vp := viewport(170, 160, 179)
	m := marker(t, -44, -175)
	p := path(t, orb.Point{-175, -10}, orb.Point{170, -10})
	features := []Feature{m, p}

	c := NewDatelineCorrector()
	c.Check(vp, features, true)
	afterOnce := []orb.Point{m.LatLng(), p.LatLngs()[0], p.LatLngs()[1]}

	res := c.Check(vp, features, true)

	assert.Equal(t, 0, res.Corrected)
	assert.Equal(t, afterOnce, []orb.Point{m.LatLng(), p.LatLngs()[0], p.LatLngs()[1]})
}

func TestDatelineCorrector_EmptyFeatures(t *testing.T) {
	c := NewDatelineCorrector()
	res := c.Check(viewport(174, 165, 179), nil, true)

	assert.True(t, res.Scanned)
	assert.Zero(t, res.Corrected)
}
