// Package session holds per-client map and chart state: the viewport, one
// site layer per observation type, and a cache of fetched FITS results.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/wkt"
	"github.com/paulmach/orb/geojson"

	"github.com/couchcryptid/fits-map-service/internal/domain"
	"github.com/couchcryptid/fits-map-service/internal/observability"
)

// ErrInvalidArgument is wrapped by errors caused by bad caller input.
var ErrInvalidArgument = errors.New("invalid argument")

// Layer is the site features of one observation type as shown on the map.
type Layer struct {
	TypeID    string
	Within    string
	features  []domain.Feature
	corrector *domain.DatelineCorrector
}

// Collection returns a copy of the layer's features in their current
// positions. Callers must hold the session lock; the copy is safe to use
// after it is released.
func (l *Layer) Collection() *geojson.FeatureCollection {
	return cloneCollection(domain.Collection(l.features))
}

// MoveResult is the outcome of a viewport update.
type MoveResult struct {
	Checked bool                                  `json:"checked"`
	Layers  map[string]*geojson.FeatureCollection `json:"layers"`
}

// ChartQuery selects a multi-site chart. Name is the type display name used
// for the title; when empty it is looked up from the type list.
type ChartQuery struct {
	TypeID  string
	SiteIDs []string
	Name    string
}

// Chart is a data matrix and the options to plot it with.
type Chart struct {
	Data   domain.ChartMatrix `json:"data"`
	Config domain.ChartConfig `json:"config"`
}

// Session is the state of one map client. Its methods are safe for
// concurrent use; map state changes are serialised.
type Session struct {
	id      string
	source  domain.ObservationSource
	cache   *Cache
	width   int
	height  int
	metrics *observability.Metrics
	logger  *slog.Logger

	mu          sync.Mutex
	viewport    domain.Viewport
	hasViewport bool
	layers      map[string]*Layer
}

func newSession(id string, source domain.ObservationSource, c *Cache, width, height int, metrics *observability.Metrics, logger *slog.Logger) *Session {
	return &Session{
		id:      id,
		source:  source,
		cache:   c,
		width:   width,
		height:  height,
		metrics: metrics,
		logger:  logger.With("session_id", id),
		layers:  make(map[string]*Layer),
	}
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// Cache returns the session cache.
func (s *Session) Cache() *Cache { return s.cache }

// Viewport returns the last viewport set and whether one has been set.
func (s *Session) Viewport() (domain.Viewport, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.viewport, s.hasViewport
}

// Types returns the observation types, cached for the session.
func (s *Session) Types(ctx context.Context) ([]domain.ObservationType, error) {
	key := CacheKey{Kind: KindTypes}
	if v, ok := lookup[[]domain.ObservationType](s.cache, key); ok {
		return v, nil
	}
	types, err := s.source.Types(ctx)
	if err != nil {
		return nil, err
	}
	s.cache.Put(key, types)
	return types, nil
}

// LoadSites fetches the sites for q and installs them as the layer for
// q.TypeID, replacing any previous layer of that type. When a viewport is
// set the new layer is corrected against it straight away. Features without
// usable geometry are logged and skipped.
func (s *Session) LoadSites(ctx context.Context, q domain.SiteQuery) (*geojson.FeatureCollection, error) {
	if q.Within != "" {
		if _, err := wkt.UnmarshalPolygon(q.Within); err != nil {
			return nil, fmt.Errorf("%w: within must be a WKT polygon: %v", ErrInvalidArgument, err)
		}
	}

	key := SitesKey(q.TypeID, q.Within)
	fc, ok := lookup[*geojson.FeatureCollection](s.cache, key)
	if !ok {
		gen := s.cache.Generation(q.TypeID)
		var err error
		fc, err = s.source.Sites(ctx, q)
		if err != nil {
			return nil, err
		}
		s.storeFetched(key, fc, gen)
	}

	features, errs := domain.FeaturesFromCollection(cloneCollection(fc))
	for _, err := range errs {
		s.metrics.MalformedFeatures.Inc()
		s.logger.Warn("skipping site feature", "type_id", q.TypeID, "error", err)
	}

	layer := &Layer{
		TypeID:    q.TypeID,
		Within:    q.Within,
		features:  features,
		corrector: domain.NewDatelineCorrector(),
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.layers[q.TypeID] = layer
	if s.hasViewport {
		s.check(layer, true)
	}
	return layer.Collection(), nil
}

// MoveViewport records vp and runs the dateline check on every layer.
// Checked reports whether any layer was scanned.
func (s *Session) MoveViewport(vp domain.Viewport) (MoveResult, error) {
	if err := vp.Validate(); err != nil {
		return MoveResult{}, fmt.Errorf("%w: %v", ErrInvalidArgument, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.viewport = vp
	s.hasViewport = true

	res := MoveResult{Layers: make(map[string]*geojson.FeatureCollection, len(s.layers))}
	for typeID, layer := range s.layers {
		if s.check(layer, false) {
			res.Checked = true
		}
		res.Layers[typeID] = layer.Collection()
	}
	return res, nil
}

// Layer returns the current features for typeID.
func (s *Session) Layer(typeID string) (*geojson.FeatureCollection, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.layers[typeID]
	if !ok {
		return nil, false
	}
	return l.Collection(), true
}

// LayerTypes returns the type IDs that have a layer, sorted.
func (s *Session) LayerTypes() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, 0, len(s.layers))
	for id := range s.layers {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// check must be called with s.mu held.
func (s *Session) check(l *Layer, force bool) bool {
	res := l.corrector.Check(s.viewport, l.features, force)
	if !res.Scanned {
		s.metrics.DatelineSkips.Inc()
		return false
	}
	s.metrics.DatelineScans.Inc()
	s.metrics.FeaturesCorrected.Add(float64(res.Corrected))
	if res.Corrected > 0 {
		s.logger.Debug("dateline correction", "type_id", l.TypeID, "sign", l.corrector.Sign(), "corrected", res.Corrected)
	}
	return true
}

// Chart builds a multi-site chart from observation results.
func (s *Session) Chart(ctx context.Context, q ChartQuery) (Chart, error) {
	if q.TypeID == "" || len(q.SiteIDs) == 0 {
		return Chart{}, fmt.Errorf("%w: typeID and at least one siteID are required", ErrInvalidArgument)
	}

	key := ResultsKey(q.TypeID, q.SiteIDs)
	res, ok := lookup[domain.Results](s.cache, key)
	if !ok {
		gen := s.cache.Generation(q.TypeID)
		var err error
		res, err = s.source.Results(ctx, domain.ResultsQuery{TypeID: q.TypeID, SiteIDs: q.SiteIDs})
		if err != nil {
			return Chart{}, err
		}
		s.storeFetched(key, res, gen)
	}

	name := q.Name
	if name == "" {
		name = s.typeName(ctx, q.TypeID)
	}
	m := domain.BuildChartMatrix(res.Series)
	return Chart{
		Data:   m,
		Config: domain.NewChartConfig(domain.ChartTitle(name, q.TypeID), s.width, s.height, m),
	}, nil
}

// SiteChart builds a single-site chart from the CSV series endpoint.
func (s *Session) SiteChart(ctx context.Context, q domain.SeriesQuery) (Chart, error) {
	if q.TypeID == "" || q.SiteID == "" || q.NetworkID == "" {
		return Chart{}, fmt.Errorf("%w: typeID, siteID and networkID are required", ErrInvalidArgument)
	}
	if q.Days < 0 {
		return Chart{}, fmt.Errorf("%w: days must not be negative", ErrInvalidArgument)
	}

	key := SeriesKey(q.TypeID, q.NetworkID, q.SiteID, q.Days)
	series, ok := lookup[domain.Series](s.cache, key)
	if !ok {
		gen := s.cache.Generation(q.TypeID)
		var err error
		series, err = s.source.SiteSeries(ctx, q)
		if err != nil {
			return Chart{}, err
		}
		s.storeFetched(key, series, gen)
	}

	m := domain.BuildChartMatrix([]domain.Series{series})
	return Chart{
		Data:   m,
		Config: domain.NewSiteChartConfig(domain.SiteChartTitle(q.SiteID, q.TypeID), s.width, s.height, m.ErrorBars),
	}, nil
}

// typeName looks up the display name of typeID. Lookup failures fall back
// to an empty name so the chart is titled with the type ID.
func (s *Session) typeName(ctx context.Context, typeID string) string {
	types, err := s.Types(ctx)
	if err != nil {
		s.logger.Debug("type name lookup failed", "type_id", typeID, "error", err)
		return ""
	}
	for _, t := range types {
		if t.TypeID == typeID {
			return t.Name
		}
	}
	return ""
}

// InvalidateType drops cached results for typeID. Layers already loaded
// keep their features until sites are loaded again.
func (s *Session) InvalidateType(typeID string) int {
	return s.cache.InvalidateType(typeID)
}

// storeFetched caches v unless its type was invalidated while it was being
// fetched. The value is still returned to the caller either way.
func (s *Session) storeFetched(key CacheKey, v any, gen uint64) {
	if !s.cache.PutAt(key, v, gen) {
		s.logger.Debug("discarding result fetched before invalidation", "type_id", key.TypeID, "kind", key.Kind)
	}
}

func lookup[T any](c *Cache, key CacheKey) (T, bool) {
	v, ok := c.Get(key)
	if !ok {
		var zero T
		return zero, false
	}
	t, ok := v.(T)
	return t, ok
}

// cloneCollection deep copies fc so corrections never touch cached values.
func cloneCollection(fc *geojson.FeatureCollection) *geojson.FeatureCollection {
	out := geojson.NewFeatureCollection()
	if fc == nil {
		return out
	}
	for _, f := range fc.Features {
		if f == nil {
			continue
		}
		var g orb.Geometry
		if f.Geometry != nil {
			g = orb.Clone(f.Geometry)
		}
		nf := geojson.NewFeature(g)
		nf.ID = f.ID
		nf.Type = f.Type
		nf.BBox = f.BBox
		nf.Properties = f.Properties.Clone()
		out.Append(nf)
	}
	return out
}
