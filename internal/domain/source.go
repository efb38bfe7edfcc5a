package domain

import (
	"context"

	"github.com/paulmach/orb/geojson"
)

// ObservationSource reads FITS metadata and observations.
type ObservationSource interface {
	// Types lists the observation types.
	Types(ctx context.Context) ([]ObservationType, error)

	// Sites returns the sites matching q as a GeoJSON feature collection.
	Sites(ctx context.Context, q SiteQuery) (*geojson.FeatureCollection, error)

	// Results returns observation results for one or more sites.
	Results(ctx context.Context, q ResultsQuery) (Results, error)

	// SiteSeries returns the full series for a single site.
	SiteSeries(ctx context.Context, q SeriesQuery) (Series, error)
}
