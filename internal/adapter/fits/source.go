package fits

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/paulmach/orb/geojson"

	"github.com/couchcryptid/fits-map-service/internal/domain"
)

// Source implements domain.ObservationSource on top of a Fetcher.
type Source struct {
	fetcher Fetcher
}

// NewSource creates a Source reading through f.
func NewSource(f Fetcher) *Source {
	return &Source{fetcher: f}
}

func typesRequest() Request {
	return Request{Endpoint: "type", Path: "/type", Accept: acceptJSON}
}

// Types lists the FITS observation types.
func (s *Source) Types(ctx context.Context) ([]domain.ObservationType, error) {
	body, err := s.fetcher.Fetch(ctx, typesRequest())
	if err != nil {
		return nil, err
	}
	return domain.ParseTypes(body)
}

// Sites returns the sites matching q. An empty body (FITS returns no
// features array when nothing matches) is an empty collection.
func (s *Source) Sites(ctx context.Context, q domain.SiteQuery) (*geojson.FeatureCollection, error) {
	params := url.Values{}
	if q.TypeID != "" {
		params.Set("typeID", q.TypeID)
	}
	if q.Within != "" {
		params.Set("within", q.Within)
	}

	body, err := s.fetcher.Fetch(ctx, Request{
		Endpoint: "site",
		Path:     "/site",
		Params:   params,
		Accept:   acceptGeoJSON,
		TypeID:   q.TypeID,
	})
	if err != nil {
		return nil, err
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return geojson.NewFeatureCollection(), nil
	}

	fc, err := geojson.UnmarshalFeatureCollection(body)
	if err != nil {
		return nil, fmt.Errorf("decode sites: %w", err)
	}
	return fc, nil
}

// Results returns observation results for the sites in q.
func (s *Source) Results(ctx context.Context, q domain.ResultsQuery) (domain.Results, error) {
	if q.TypeID == "" || len(q.SiteIDs) == 0 {
		return domain.Results{}, errors.New("results query needs a typeID and at least one siteID")
	}
	params := url.Values{
		"typeID": {q.TypeID},
		"siteID": {strings.Join(q.SiteIDs, ",")},
	}

	body, err := s.fetcher.Fetch(ctx, Request{
		Endpoint: "observation_results",
		Path:     "/observation_results",
		Params:   params,
		Accept:   acceptJSON,
		TypeID:   q.TypeID,
	})
	if err != nil {
		return domain.Results{}, err
	}
	return domain.ParseResults(body)
}

// SiteSeries returns the CSV series for a single site.
func (s *Source) SiteSeries(ctx context.Context, q domain.SeriesQuery) (domain.Series, error) {
	if q.TypeID == "" || q.SiteID == "" || q.NetworkID == "" {
		return domain.Series{}, errors.New("series query needs typeID, siteID and networkID")
	}
	params := url.Values{
		"typeID":    {q.TypeID},
		"siteID":    {q.SiteID},
		"networkID": {q.NetworkID},
	}
	if q.Days > 0 {
		params.Set("days", strconv.Itoa(q.Days))
	}

	body, err := s.fetcher.Fetch(ctx, Request{
		Endpoint: "observation",
		Path:     "/observation",
		Params:   params,
		Accept:   acceptCSV,
		TypeID:   q.TypeID,
	})
	if err != nil {
		return domain.Series{}, err
	}
	return domain.ParseSeriesCSV(bytes.NewReader(body), q)
}
