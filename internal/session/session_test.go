package session

import (
	"context"
	"errors"
	"io"
	"encoding/json"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/fits-map-service/internal/domain"
	"github.com/couchcryptid/fits-map-service/internal/observability"
)

const sitesJSON = `{"type":"FeatureCollection","features":[
	{"type":"Feature","geometry":{"type":"Point","coordinates":[175.5,-41.1]},"properties":{"siteID":"HOLD","networkID":"CG"}},
	{"type":"Feature","geometry":{"type":"Point","coordinates":[-176.5,-43.9]},"properties":{"siteID":"CHTI","networkID":"CG"}},
	{"type":"Feature","geometry":null,"properties":{"siteID":"GONE","networkID":"CG"}}
]}`

// --- mocks ---

type fakeSource struct {
	mu      sync.Mutex
	calls   map[string]int
	sites   *geojson.FeatureCollection
	results domain.Results
	series  domain.Series
	err     error
	onSites func() // runs inside Sites, before it returns
}

func newFakeSource(t *testing.T) *fakeSource {
	t.Helper()
	fc, err := geojson.UnmarshalFeatureCollection([]byte(sitesJSON))
	require.NoError(t, err)

	t0 := time.Date(2015, 1, 2, 0, 0, 0, 0, time.UTC)
	return &fakeSource{
		calls: make(map[string]int),
		sites: fc,
		results: domain.Results{TypeID: "e", Sites: []string{"HOLD"}, Series: []domain.Series{{
			TypeID: "e", SiteID: "HOLD", Label: "HOLD",
			Observations: []domain.Observation{{Time: t0, Value: 1.5}},
		}}},
		series: domain.Series{
			TypeID: "e", SiteID: "HOLD", NetworkID: "CG", Label: "e (mm)",
			Observations: []domain.Observation{{Time: t0, Value: 1.5, Error: 0.2, HasError: true}},
		},
	}
}

func (f *fakeSource) called(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[op]
}

func (f *fakeSource) record(op string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[op]++
	return f.err
}

func (f *fakeSource) Types(context.Context) ([]domain.ObservationType, error) {
	if err := f.record("types"); err != nil {
		return nil, err
	}
	return []domain.ObservationType{{TypeID: "e", Name: "displacement east", Unit: "mm"}}, nil
}

func (f *fakeSource) Sites(context.Context, domain.SiteQuery) (*geojson.FeatureCollection, error) {
	if err := f.record("sites"); err != nil {
		return nil, err
	}
	if f.onSites != nil {
		f.onSites()
	}
	return f.sites, nil
}

func (f *fakeSource) Results(context.Context, domain.ResultsQuery) (domain.Results, error) {
	if err := f.record("results"); err != nil {
		return domain.Results{}, err
	}
	return f.results, nil
}

func (f *fakeSource) SiteSeries(context.Context, domain.SeriesQuery) (domain.Series, error) {
	if err := f.record("series"); err != nil {
		return domain.Series{}, err
	}
	return f.series, nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestSession(src domain.ObservationSource, m *observability.Metrics) *Session {
	c := NewCache(100, time.Minute, nil, m)
	return newSession("test", src, c, 896, 512, m, discardLogger())
}

func viewport(t *testing.T, center [2]float64, bbox [4]float64) domain.Viewport {
	t.Helper()
	vp, err := domain.NewViewport(center, bbox)
	require.NoError(t, err)
	return vp
}

func pointOf(t *testing.T, fc *geojson.FeatureCollection, siteID string) orb.Point {
	t.Helper()
	for _, f := range fc.Features {
		if domain.PropString(f.Properties, "siteID") == siteID {
			p, ok := f.Geometry.(orb.Point)
			require.True(t, ok)
			return p
		}
	}
	t.Fatalf("site %s not found", siteID)
	return orb.Point{}
}

// --- tests ---

func TestSession_TypesCached(t *testing.T) {
	src := newFakeSource(t)
	s := newTestSession(src, observability.NewMetricsForTesting())

	for range 2 {
		types, err := s.Types(context.Background())
		require.NoError(t, err)
		require.Len(t, types, 1)
	}
	assert.Equal(t, 1, src.called("types"))
}

func TestSession_LoadSitesWithoutViewport(t *testing.T) {
	src := newFakeSource(t)
	m := observability.NewMetricsForTesting()
	s := newTestSession(src, m)

	fc, err := s.LoadSites(context.Background(), domain.SiteQuery{TypeID: "e"})
	require.NoError(t, err)

	assert.Len(t, fc.Features, 2, "feature without geometry is skipped")
	assert.Equal(t, orb.Point{-176.5, -43.9}, pointOf(t, fc, "CHTI"))
	assert.InDelta(t, 1, testutil.ToFloat64(m.MalformedFeatures), 0)
	assert.Equal(t, []string{"e"}, s.LayerTypes())
}

func TestSession_LoadSitesCorrectsAgainstViewport(t *testing.T) {
	src := newFakeSource(t)
	s := newTestSession(src, observability.NewMetricsForTesting())

	_, err := s.MoveViewport(viewport(t, [2]float64{179, -40}, [4]float64{165, -50, 193, -30}))
	require.NoError(t, err)

	fc, err := s.LoadSites(context.Background(), domain.SiteQuery{TypeID: "e"})
	require.NoError(t, err)

	assert.Equal(t, orb.Point{175.5, -41.1}, pointOf(t, fc, "HOLD"))
	assert.Equal(t, orb.Point{183.5, -43.9}, pointOf(t, fc, "CHTI"))

	// The cached collection is left untouched.
	assert.Equal(t, orb.Point{-176.5, -43.9}, pointOf(t, src.sites, "CHTI"))
}

func TestSession_MoveViewport(t *testing.T) {
	src := newFakeSource(t)
	m := observability.NewMetricsForTesting()
	s := newTestSession(src, m)

	_, err := s.LoadSites(context.Background(), domain.SiteQuery{TypeID: "e"})
	require.NoError(t, err)

	east := viewport(t, [2]float64{179, -40}, [4]float64{165, -50, 193, -30})
	res, err := s.MoveViewport(east)
	require.NoError(t, err)
	assert.True(t, res.Checked, "first viewport sets the sign")
	assert.Equal(t, orb.Point{183.5, -43.9}, pointOf(t, res.Layers["e"], "CHTI"))

	nudged := viewport(t, [2]float64{179.5, -40}, [4]float64{166, -50, 194, -30})
	res, err = s.MoveViewport(nudged)
	require.NoError(t, err)
	assert.False(t, res.Checked, "small pan on the same side is skipped")
	assert.InDelta(t, 1, testutil.ToFloat64(m.DatelineSkips), 0)

	west := viewport(t, [2]float64{-179, -40}, [4]float64{-193, -50, -165, -30})
	res, err = s.MoveViewport(west)
	require.NoError(t, err)
	assert.True(t, res.Checked)
	assert.Equal(t, orb.Point{-176.5, -43.9}, pointOf(t, res.Layers["e"], "CHTI"))
	assert.Equal(t, orb.Point{-184.5, -41.1}, pointOf(t, res.Layers["e"], "HOLD"))

	vp, ok := s.Viewport()
	require.True(t, ok)
	assert.Equal(t, west, vp)
}

func TestSession_MoveViewportInvalid(t *testing.T) {
	s := newTestSession(newFakeSource(t), observability.NewMetricsForTesting())

	bad := domain.Viewport{Bounds: orb.Bound{Min: orb.Point{10, 0}, Max: orb.Point{0, 0}}}
	_, err := s.MoveViewport(bad)
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

func TestSession_LoadSitesBadPolygon(t *testing.T) {
	src := newFakeSource(t)
	s := newTestSession(src, observability.NewMetricsForTesting())

	_, err := s.LoadSites(context.Background(), domain.SiteQuery{TypeID: "e", Within: "not a polygon"})
	assert.ErrorIs(t, err, ErrInvalidArgument)
	assert.Zero(t, src.called("sites"))
}

func TestSession_LoadSitesWithin(t *testing.T) {
	src := newFakeSource(t)
	s := newTestSession(src, observability.NewMetricsForTesting())

	within := "POLYGON((170.18 -37.52,177.19 -47.52,177.20 -37.53,170.18 -37.52))"
	_, err := s.LoadSites(context.Background(), domain.SiteQuery{TypeID: "e", Within: within})
	require.NoError(t, err)
	_, err = s.LoadSites(context.Background(), domain.SiteQuery{TypeID: "e", Within: within})
	require.NoError(t, err)
	_, err = s.LoadSites(context.Background(), domain.SiteQuery{TypeID: "e"})
	require.NoError(t, err)

	assert.Equal(t, 2, src.called("sites"), "region is part of the cache key")
}

func TestSession_FetchErrorNotCached(t *testing.T) {
	src := newFakeSource(t)
	src.err = &domain.FetchError{Op: "site", URL: "http://fits/site", StatusCode: 500}
	s := newTestSession(src, observability.NewMetricsForTesting())

	_, err := s.LoadSites(context.Background(), domain.SiteQuery{TypeID: "e"})
	var fe *domain.FetchError
	require.ErrorAs(t, err, &fe)
	assert.Empty(t, s.LayerTypes())

	src.err = nil
	_, err = s.LoadSites(context.Background(), domain.SiteQuery{TypeID: "e"})
	require.NoError(t, err)
	assert.Equal(t, 2, src.called("sites"))
}

func TestSession_Chart(t *testing.T) {
	src := newFakeSource(t)
	s := newTestSession(src, observability.NewMetricsForTesting())

	c, err := s.Chart(context.Background(), ChartQuery{TypeID: "e", SiteIDs: []string{"HOLD"}})
	require.NoError(t, err)

	assert.Equal(t, "Displacement east", c.Config.Title)
	assert.Equal(t, 896, c.Config.Width)
	assert.Equal(t, []string{"Date", "HOLD"}, c.Data.Labels)
	require.Len(t, c.Data.Rows, 1)

	c, err = s.Chart(context.Background(), ChartQuery{TypeID: "e", SiteIDs: []string{"HOLD"}, Name: "east"})
	require.NoError(t, err)
	assert.Equal(t, "East", c.Config.Title)
	assert.Equal(t, 1, src.called("results"))
}

func TestSession_ChartValidation(t *testing.T) {
	s := newTestSession(newFakeSource(t), observability.NewMetricsForTesting())

	_, err := s.Chart(context.Background(), ChartQuery{TypeID: "e"})
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

func TestSession_SiteChart(t *testing.T) {
	src := newFakeSource(t)
	s := newTestSession(src, observability.NewMetricsForTesting())

	q := domain.SeriesQuery{TypeID: "e", SiteID: "HOLD", NetworkID: "CG", Days: 30}
	c, err := s.SiteChart(context.Background(), q)
	require.NoError(t, err)

	assert.Equal(t, "HOLD-e", c.Config.Title)
	assert.True(t, c.Data.ErrorBars)
	assert.Equal(t, []string{"Date", "e (mm)"}, c.Data.Labels)

	_, err = s.SiteChart(context.Background(), q)
	require.NoError(t, err)
	q.Days = 7
	_, err = s.SiteChart(context.Background(), q)
	require.NoError(t, err)
	assert.Equal(t, 2, src.called("series"))

	_, err = s.SiteChart(context.Background(), domain.SeriesQuery{TypeID: "e", SiteID: "HOLD"})
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

func TestSession_InvalidateType(t *testing.T) {
	src := newFakeSource(t)
	s := newTestSession(src, observability.NewMetricsForTesting())
	ctx := context.Background()

	_, err := s.Types(ctx)
	require.NoError(t, err)
	_, err = s.LoadSites(ctx, domain.SiteQuery{TypeID: "e"})
	require.NoError(t, err)
	_, err = s.Chart(ctx, ChartQuery{TypeID: "e", SiteIDs: []string{"HOLD"}, Name: "east"})
	require.NoError(t, err)

	assert.Equal(t, 2, s.InvalidateType("e"))
	assert.Equal(t, 1, s.Cache().Len(), "type list survives")

	_, err = s.LoadSites(ctx, domain.SiteQuery{TypeID: "e"})
	require.NoError(t, err)
	assert.Equal(t, 2, src.called("sites"))
}

func TestSession_FetchErrorIsNotWrappedAsInvalid(t *testing.T) {
	src := newFakeSource(t)
	src.err = errors.New("boom")
	s := newTestSession(src, observability.NewMetricsForTesting())

	_, err := s.Chart(context.Background(), ChartQuery{TypeID: "e", SiteIDs: []string{"HOLD"}, Name: "x"})
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrInvalidArgument)
}

func TestSession_ResultFetchedBeforeInvalidationIsNotCached(t *testing.T) {
	src := newFakeSource(t)
	s := newTestSession(src, observability.NewMetricsForTesting())
	ctx := context.Background()

	src.onSites = func() { s.InvalidateType("e") }
	fc, err := s.LoadSites(ctx, domain.SiteQuery{TypeID: "e"})
	require.NoError(t, err)
	assert.Len(t, fc.Features, 2, "caller still gets the fetched sites")
	assert.Zero(t, s.Cache().Len())

	src.onSites = nil
	_, err = s.LoadSites(ctx, domain.SiteQuery{TypeID: "e"})
	require.NoError(t, err)
	_, err = s.LoadSites(ctx, domain.SiteQuery{TypeID: "e"})
	require.NoError(t, err)
	assert.Equal(t, 2, src.called("sites"), "only the fetch after invalidation is cached")
}

func TestSession_ConcurrentMoveViewport(t *testing.T) {
	src := newFakeSource(t)
	s := newTestSession(src, observability.NewMetricsForTesting())

	_, err := s.LoadSites(context.Background(), domain.SiteQuery{TypeID: "e"})
	require.NoError(t, err)

	east := viewport(t, [2]float64{170, -40}, [4]float64{156, -50, 184, -30})
	west := viewport(t, [2]float64{-170, -40}, [4]float64{-184, -50, -156, -30})

	first, err := s.MoveViewport(east)
	require.NoError(t, err)
	held := first.Layers["e"]
	want := pointOf(t, held, "CHTI")

	var wg sync.WaitGroup
	errs := make(chan error, 100)
	for i := range 100 {
		vp := east
		if i%2 == 0 {
			vp = west
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := s.MoveViewport(vp)
			if err != nil {
				errs <- err
				return
			}
			if _, err := json.Marshal(res.Layers["e"]); err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		assert.NoError(t, err)
	}
	assert.Equal(t, want, pointOf(t, held, "CHTI"), "returned layers are not changed by later moves")
}
