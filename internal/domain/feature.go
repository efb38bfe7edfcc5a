package domain

import (
	"fmt"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

// Feature is a renderable entity on a map layer.
// Correction only touches features that are also a PointFeature or a PathFeature.
type Feature interface {
	ID() string
}

// PointFeature is a feature located at a single point, e.g. a site marker.
type PointFeature interface {
	Feature
	LatLng() orb.Point
	SetLatLng(orb.Point)
}

// PathFeature is a feature made of an ordered sequence of points, e.g. a
// region boundary.
type PathFeature interface {
	Feature
	LatLngs() []orb.Point
	SetLatLngs([]orb.Point)
}

// Marker is a point feature backed by a GeoJSON feature.
type Marker struct {
	f *geojson.Feature
}

// Path is a path feature backed by a GeoJSON line or polygon feature.
// Multi-part geometries are flattened in ring/line order.
type Path struct {
	f *geojson.Feature
}

// Opaque wraps a GeoJSON feature the corrector does not know how to move.
type Opaque struct {
	f *geojson.Feature
}

// NewFeature wraps a GeoJSON feature by geometry type. Features without a
// geometry return a *MalformedInputError.
func NewFeature(f *geojson.Feature) (Feature, error) {
	if f == nil || f.Geometry == nil {
		return nil, &MalformedInputError{FeatureID: featureID(f), Reason: "missing geometry"}
	}
	switch g := f.Geometry.(type) {
	case orb.Point:
		return &Marker{f: f}, nil
	case orb.LineString, orb.Ring, orb.Polygon, orb.MultiLineString, orb.MultiPolygon:
		if len(flatten(g)) == 0 {
			return nil, &MalformedInputError{FeatureID: featureID(f), Reason: "empty " + g.GeoJSONType()}
		}
		return &Path{f: f}, nil
	default:
		return &Opaque{f: f}, nil
	}
}

// GeoJSON returns the backing feature.
func (m *Marker) GeoJSON() *geojson.Feature { return m.f }

func (m *Marker) ID() string { return featureID(m.f) }

func (m *Marker) LatLng() orb.Point { return m.f.Geometry.(orb.Point) }

// SetLatLng replaces the geometry; properties are untouched.
func (m *Marker) SetLatLng(p orb.Point) { m.f.Geometry = p }

// GeoJSON returns the backing feature.
func (p *Path) GeoJSON() *geojson.Feature { return p.f }

func (p *Path) ID() string { return featureID(p.f) }

// LatLngs returns a copy of the path vertices.
func (p *Path) LatLngs() []orb.Point { return flatten(p.f.Geometry) }

// SetLatLngs writes pts back into the geometry in the order LatLngs returned
// them. Surplus points are ignored; missing points leave vertices unchanged.
func (p *Path) SetLatLngs(pts []orb.Point) {
	p.f.Geometry = unflatten(p.f.Geometry, pts)
}

// GeoJSON returns the backing feature.
func (o *Opaque) GeoJSON() *geojson.Feature { return o.f }

func (o *Opaque) ID() string { return featureID(o.f) }

// FeaturesFromCollection wraps every feature in fc. Malformed features are
// returned separately so callers can log and skip them.
func FeaturesFromCollection(fc *geojson.FeatureCollection) ([]Feature, []error) {
	if fc == nil {
		return nil, nil
	}
	out := make([]Feature, 0, len(fc.Features))
	var errs []error
	for _, f := range fc.Features {
		feat, err := NewFeature(f)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		out = append(out, feat)
	}
	return out, errs
}

// Collection assembles wrapped features back into a feature collection.
func Collection(features []Feature) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	for _, f := range features {
		if g, ok := f.(interface{ GeoJSON() *geojson.Feature }); ok {
			fc.Append(g.GeoJSON())
		}
	}
	return fc
}

// featureID prefers the siteID property, then the GeoJSON id.
func featureID(f *geojson.Feature) string {
	if f == nil {
		return ""
	}
	if s := PropString(f.Properties, "siteID"); s != "" {
		if n := PropString(f.Properties, "networkID"); n != "" {
			return n + "." + s
		}
		return s
	}
	if f.ID != nil {
		return fmt.Sprint(f.ID)
	}
	return ""
}

// PropString returns a string property or "" when absent or not a string.
func PropString(p geojson.Properties, key string) string {
	s, _ := p[key].(string)
	return s
}

func flatten(g orb.Geometry) []orb.Point {
	var pts []orb.Point
	switch g := g.(type) {
	case orb.LineString:
		pts = append(pts, g...)
	case orb.Ring:
		pts = append(pts, g...)
	case orb.Polygon:
		for _, r := range g {
			pts = append(pts, r...)
		}
	case orb.MultiLineString:
		for _, ls := range g {
			pts = append(pts, ls...)
		}
	case orb.MultiPolygon:
		for _, poly := range g {
			for _, r := range poly {
				pts = append(pts, r...)
			}
		}
	}
	return pts
}

func unflatten(g orb.Geometry, pts []orb.Point) orb.Geometry {
	i := 0
	fill := func(dst []orb.Point) []orb.Point {
		out := make([]orb.Point, len(dst))
		for j := range dst {
			if i < len(pts) {
				out[j] = pts[i]
			} else {
				out[j] = dst[j]
			}
			i++
		}
		return out
	}

	switch g := g.(type) {
	case orb.LineString:
		return orb.LineString(fill(g))
	case orb.Ring:
		return orb.Ring(fill(g))
	case orb.Polygon:
		out := make(orb.Polygon, len(g))
		for k, r := range g {
			out[k] = orb.Ring(fill(r))
		}
		return out
	case orb.MultiLineString:
		out := make(orb.MultiLineString, len(g))
		for k, ls := range g {
			out[k] = orb.LineString(fill(ls))
		}
		return out
	case orb.MultiPolygon:
		out := make(orb.MultiPolygon, len(g))
		for k, poly := range g {
			p := make(orb.Polygon, len(poly))
			for m, r := range poly {
				p[m] = orb.Ring(fill(r))
			}
			out[k] = p
		}
		return out
	}
	return g
}
