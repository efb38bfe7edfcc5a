package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus counters, histograms, and gauges for the map service.
type Metrics struct {
	// FITS upstream metrics.
	FITSRequests    *prometheus.CounterVec   // labels: endpoint={type,site,observation_results,observation}, outcome={success,error}
	FITSAPIDuration *prometheus.HistogramVec // labels: endpoint

	// Cache metrics.
	CacheLookups       *prometheus.CounterVec // labels: cache={session,response}, result={hit,miss}
	CacheInvalidations prometheus.Counter

	// Dateline correction metrics.
	DatelineScans     prometheus.Counter
	DatelineSkips     prometheus.Counter
	FeaturesCorrected prometheus.Counter
	MalformedFeatures prometheus.Counter

	// Session metrics.
	ActiveSessions prometheus.Gauge

	// Update notices.
	UpdateNotices *prometheus.CounterVec // labels: outcome={applied,malformed}
}

// NewMetrics creates and registers all service metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(
		m.FITSRequests,
		m.FITSAPIDuration,
		m.CacheLookups,
		m.CacheInvalidations,
		m.DatelineScans,
		m.DatelineSkips,
		m.FeaturesCorrected,
		m.MalformedFeatures,
		m.ActiveSessions,
		m.UpdateNotices,
	)
	return m
}

// NewMetricsForTesting creates Metrics without registering them, avoiding
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}

func newMetrics() *Metrics {
	return &Metrics{
		FITSRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "fits_map",
			Name:      "fits_requests_total",
			Help:      "FITS API requests by endpoint and outcome.",
		}, []string{"endpoint", "outcome"}),
		FITSAPIDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "fits_map",
			Name:      "fits_api_duration_seconds",
			Help:      "FITS API request duration in seconds.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"endpoint"}),
		CacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "fits_map",
			Name:      "cache_lookups_total",
			Help:      "Cache lookups by cache and result.",
		}, []string{"cache", "result"}),
		CacheInvalidations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "fits_map",
			Name:      "cache_invalidations_total",
			Help:      "Observation type invalidations applied to caches.",
		}),
		DatelineScans: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "fits_map",
			Name:      "dateline_scans_total",
			Help:      "Dateline correction passes over a layer.",
		}),
		DatelineSkips: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "fits_map",
			Name:      "dateline_skips_total",
			Help:      "Viewport updates that did not require a correction pass.",
		}),
		FeaturesCorrected: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "fits_map",
			Name:      "features_corrected_total",
			Help:      "Features moved across the antimeridian.",
		}),
		MalformedFeatures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "fits_map",
			Name:      "malformed_features_total",
			Help:      "Site features skipped because they could not be placed on a map.",
		}),
		ActiveSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "fits_map",
			Name:      "active_sessions",
			Help:      "Client sessions currently held.",
		}),
		UpdateNotices: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "fits_map",
			Name:      "update_notices_total",
			Help:      "Observation update notices consumed by outcome.",
		}, []string{"outcome"}),
	}
}
