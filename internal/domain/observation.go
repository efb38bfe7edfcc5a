package domain

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"time"
)

// ObservationType is a kind of measurement FITS stores, e.g. "e" (displacement east).
type ObservationType struct {
	TypeID      string `json:"typeID"`
	Name        string `json:"name"`
	Unit        string `json:"unit"`
	Description string `json:"description,omitempty"`
}

// Observation is one timestamped value with an optional standard error.
type Observation struct {
	Time     time.Time
	Value    float64
	Error    float64
	HasError bool
}

// Series is the observations of one type at one site.
type Series struct {
	TypeID       string
	SiteID       string
	NetworkID    string
	Label        string
	Observations []Observation
}

// Results is the decoded /observation_results payload: one series per site.
type Results struct {
	TypeID string
	Sites  []string
	Series []Series
}

// ResultsQuery selects observation results for a type at one or more sites.
type ResultsQuery struct {
	TypeID  string
	SiteIDs []string
}

// SeriesQuery selects the CSV series for a single site.
type SeriesQuery struct {
	TypeID    string
	SiteID    string
	NetworkID string
	Days      int // 0 means all data
}

// SiteQuery filters the site list. Both fields are optional.
type SiteQuery struct {
	TypeID string
	Within string // WKT polygon
}

type rawResults struct {
	Param   string            `json:"param"`
	Sites   []string          `json:"sites"`
	Results []json.RawMessage `json:"results"`
}

// ParseResults decodes an /observation_results body into one Series per site.
// Rows are [time, cell, cell...] with one cell per site, where a cell is
// [value, error], [value], [null] or null. Legacy single-site rows of the form
// [time, value, error] are accepted too.
func ParseResults(data []byte) (Results, error) {
	var raw rawResults
	if err := json.Unmarshal(data, &raw); err != nil {
		return Results{}, fmt.Errorf("parse observation results: %w", err)
	}

	res := Results{TypeID: raw.Param, Sites: raw.Sites}
	res.Series = make([]Series, len(raw.Sites))
	for i, s := range raw.Sites {
		res.Series[i] = Series{TypeID: raw.Param, SiteID: s, Label: s}
	}
	if len(res.Series) == 0 {
		res.Series = []Series{{TypeID: raw.Param, Label: raw.Param}}
	}

	for n, row := range raw.Results {
		var cols []json.RawMessage
		if err := json.Unmarshal(row, &cols); err != nil {
			return Results{}, fmt.Errorf("parse observation results row %d: %w", n, err)
		}
		if len(cols) < 2 {
			return Results{}, fmt.Errorf("parse observation results row %d: want at least 2 columns, got %d", n, len(cols))
		}
		t, err := parseResultTime(cols[0])
		if err != nil {
			return Results{}, fmt.Errorf("parse observation results row %d: %w", n, err)
		}

		if flat, ok := flatRow(cols[1:]); ok {
			obs, present := cellObservation(t, flat)
			if present {
				res.Series[0].Observations = append(res.Series[0].Observations, obs)
			}
			continue
		}

		for i, cell := range cols[1:] {
			if i >= len(res.Series) {
				break
			}
			var vals []*float64
			if err := json.Unmarshal(cell, &vals); err != nil {
				return Results{}, fmt.Errorf("parse observation results row %d site %d: %w", n, i, err)
			}
			if obs, present := cellObservation(t, vals); present {
				res.Series[i].Observations = append(res.Series[i].Observations, obs)
			}
		}
	}
	return res, nil
}

// flatRow recognises the legacy [time, value, error?] row shape.
func flatRow(cols []json.RawMessage) ([]*float64, bool) {
	if len(cols) > 2 {
		return nil, false
	}
	vals := make([]*float64, len(cols))
	for i, c := range cols {
		var v *float64
		if err := json.Unmarshal(c, &v); err != nil {
			return nil, false
		}
		vals[i] = v
	}
	return vals, true
}

func cellObservation(t time.Time, vals []*float64) (Observation, bool) {
	if len(vals) == 0 || vals[0] == nil {
		return Observation{}, false
	}
	obs := Observation{Time: t, Value: *vals[0]}
	if len(vals) > 1 && vals[1] != nil {
		obs.Error = *vals[1]
		obs.HasError = true
	}
	return obs, true
}

// parseResultTime accepts epoch milliseconds, RFC 3339 or YYYY-MM-DD.
func parseResultTime(raw json.RawMessage) (time.Time, error) {
	var ms float64
	if err := json.Unmarshal(raw, &ms); err == nil {
		return time.UnixMilli(int64(ms)).UTC(), nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return time.Time{}, fmt.Errorf("invalid time %s", raw)
	}
	return ParseObservationTime(s)
}

// ParseObservationTime parses the time formats FITS emits.
func ParseObservationTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05", "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid time %q", s)
}

// ParseSeriesCSV decodes the /observation CSV body. The first header column
// is the date; the second names the series, e.g. "e (mm)". A third column,
// when present, holds the error.
func ParseSeriesCSV(r io.Reader, q SeriesQuery) (Series, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return Series{}, errors.New("parse observation csv: empty body")
	}
	if err != nil {
		return Series{}, fmt.Errorf("parse observation csv header: %w", err)
	}
	if len(header) < 2 {
		return Series{}, fmt.Errorf("parse observation csv header: want at least 2 columns, got %d", len(header))
	}

	s := Series{
		TypeID:    q.TypeID,
		SiteID:    q.SiteID,
		NetworkID: q.NetworkID,
		Label:     strings.TrimSpace(header[1]),
	}

	for line := 2; ; line++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return Series{}, fmt.Errorf("parse observation csv line %d: %w", line, err)
		}
		if len(rec) < 2 {
			continue
		}
		t, err := ParseObservationTime(rec[0])
		if err != nil {
			return Series{}, fmt.Errorf("parse observation csv line %d: %w", line, err)
		}
		v, err := strconv.ParseFloat(strings.TrimSpace(rec[1]), 64)
		if err != nil {
			return Series{}, fmt.Errorf("parse observation csv line %d value: %w", line, err)
		}
		obs := Observation{Time: t, Value: v}
		if len(rec) > 2 && strings.TrimSpace(rec[2]) != "" {
			e, err := strconv.ParseFloat(strings.TrimSpace(rec[2]), 64)
			if err != nil {
				return Series{}, fmt.Errorf("parse observation csv line %d error: %w", line, err)
			}
			obs.Error = e
			obs.HasError = true
		}
		s.Observations = append(s.Observations, obs)
	}

	sort.SliceStable(s.Observations, func(i, j int) bool {
		return s.Observations[i].Time.Before(s.Observations[j].Time)
	})
	return s, nil
}

// ParseTypes decodes the /type body, which is either a bare array or an
// object with a "type" array.
func ParseTypes(data []byte) ([]ObservationType, error) {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '[' {
		var types []ObservationType
		if err := json.Unmarshal(data, &types); err != nil {
			return nil, fmt.Errorf("parse types: %w", err)
		}
		return types, nil
	}
	var wrapped struct {
		Type []ObservationType `json:"type"`
	}
	if err := json.Unmarshal(data, &wrapped); err != nil {
		return nil, fmt.Errorf("parse types: %w", err)
	}
	return wrapped.Type, nil
}
