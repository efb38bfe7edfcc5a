package domain

import (
	"encoding/json"
	"sort"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"
)

// Names of the axis formatters a chart renderer should apply.
const (
	FormatterUTCTime = "utc-time" // FormatUTCTime
	FormatterUTCDate = "utc-date" // FormatUTCDate
)

// Cell is one series value in a chart row. Valid is false for gaps.
type Cell struct {
	Value    float64
	Error    float64
	HasError bool
	Valid    bool
}

// ChartRow is one timestamp across every series.
type ChartRow struct {
	Time  time.Time
	Cells []Cell
}

// ChartMatrix is the tabular form charting widgets consume: a date column
// followed by one column per series, each paired with an error column when
// ErrorBars is set.
type ChartMatrix struct {
	Labels    []string
	ErrorBars bool
	Rows      []ChartRow
}

// BuildChartMatrix merges series on their timestamps. Rows are sorted
// ascending; a series with no observation at a row's time gets an invalid
// cell. Error bars are enabled when any observation carries an error.
func BuildChartMatrix(series []Series) ChartMatrix {
	m := ChartMatrix{Labels: make([]string, 0, len(series)+1)}
	m.Labels = append(m.Labels, "Date")

	index := make(map[int64]int)
	for si, s := range series {
		label := s.Label
		if label == "" {
			label = s.SiteID
		}
		m.Labels = append(m.Labels, label)

		for _, o := range s.Observations {
			if o.HasError {
				m.ErrorBars = true
			}
			key := o.Time.UnixNano()
			ri, ok := index[key]
			if !ok {
				ri = len(m.Rows)
				index[key] = ri
				m.Rows = append(m.Rows, ChartRow{Time: o.Time.UTC(), Cells: make([]Cell, len(series))})
			}
			// Last observation wins for duplicate timestamps.
			m.Rows[ri].Cells[si] = Cell{Value: o.Value, Error: o.Error, HasError: o.HasError, Valid: true}
		}
	}

	sort.SliceStable(m.Rows, func(i, j int) bool {
		return m.Rows[i].Time.Before(m.Rows[j].Time)
	})
	return m
}

// Columns returns the number of data columns excluding the date column.
func (m ChartMatrix) Columns() int {
	n := len(m.Labels) - 1
	if m.ErrorBars {
		n *= 2
	}
	return n
}

// MarshalJSON encodes rows as arrays: [millis, v1, e1, v2, e2, ...] with
// errors only when ErrorBars is set. Gaps are null.
func (m ChartMatrix) MarshalJSON() ([]byte, error) {
	rows := make([][]any, len(m.Rows))
	for i, r := range m.Rows {
		row := make([]any, 0, 1+m.Columns())
		row = append(row, r.Time.UnixMilli())
		for _, c := range r.Cells {
			if c.Valid {
				row = append(row, c.Value)
			} else {
				row = append(row, nil)
			}
			if m.ErrorBars {
				if c.Valid && c.HasError {
					row = append(row, c.Error)
				} else {
					row = append(row, nil)
				}
			}
		}
		rows[i] = row
	}
	return json.Marshal(struct {
		Labels    []string `json:"labels"`
		ErrorBars bool     `json:"errorBars"`
		Rows      [][]any  `json:"rows"`
	}{m.Labels, m.ErrorBars, rows})
}

// AxisOptions configures one chart axis.
type AxisOptions struct {
	ValueFormatter     string `json:"valueFormatter,omitempty"`
	AxisLabelFormatter string `json:"axisLabelFormatter,omitempty"`
	PixelsPerLabel     int    `json:"pixelsPerLabel,omitempty"`
}

// ChartConfig is the option record handed to the charting widget.
type ChartConfig struct {
	Title                  string                 `json:"title"`
	Width                  int                    `json:"width"`
	Height                 int                    `json:"height"`
	Sigma                  float64                `json:"sigma"`
	DrawPoints             bool                   `json:"drawPoints"`
	PointSize              int                    `json:"pointSize"`
	HighlightCircleSize    int                    `json:"highlightCircleSize"`
	ConnectSeparatedPoints bool                   `json:"connectSeparatedPoints"`
	ErrorBars              bool                   `json:"errorBars"`
	FillAlpha              float64                `json:"fillAlpha"`
	StrokeWidth            int                    `json:"strokeWidth"`
	XAxisLabelWidth        int                    `json:"xAxisLabelWidth"`
	Axes                   map[string]AxisOptions `json:"axes,omitempty"`
	LabelsSeparateLines    bool                   `json:"labelsSeparateLines,omitempty"`
	LabelFollow            bool                   `json:"labelFollow,omitempty"`
	VerticalCrosshair      bool                   `json:"verticalCrosshair"`
	Legend                 string                 `json:"legend"`
	Labels                 []string               `json:"labels,omitempty"`
}

// NewChartConfig returns the multi-series chart options for m.
func NewChartConfig(title string, width, height int, m ChartMatrix) ChartConfig {
	cfg := baseChartConfig(title, width, height, m.ErrorBars)
	cfg.Axes = map[string]AxisOptions{
		"x": {
			ValueFormatter:     FormatterUTCTime,
			AxisLabelFormatter: FormatterUTCDate,
			PixelsPerLabel:     100,
		},
	}
	cfg.LabelFollow = true
	cfg.LabelsSeparateLines = true
	cfg.Labels = m.Labels
	return cfg
}

// NewSiteChartConfig returns the options for a single-site chart. Labels are
// left to the renderer, which reads them from the data header.
func NewSiteChartConfig(title string, width, height int, errorBars bool) ChartConfig {
	return baseChartConfig(title, width, height, errorBars)
}

func baseChartConfig(title string, width, height int, errorBars bool) ChartConfig {
	return ChartConfig{
		Title:                  title,
		Width:                  width,
		Height:                 height,
		Sigma:                  1.0,
		DrawPoints:             true,
		PointSize:              2,
		HighlightCircleSize:    4,
		ConnectSeparatedPoints: true,
		ErrorBars:              errorBars,
		FillAlpha:              0.1,
		StrokeWidth:            2,
		XAxisLabelWidth:        100,
		VerticalCrosshair:      true,
		Legend:                 "always",
	}
}

// ChartTitle is the type display name with an upper-cased first letter, or
// the type ID when there is no name.
func ChartTitle(typeName, typeID string) string {
	if typeName == "" {
		return typeID
	}
	return capitalize(typeName)
}

// SiteChartTitle is "<SiteID>-<typeID>", or the type ID alone without a site.
func SiteChartTitle(siteID, typeID string) string {
	if siteID == "" {
		return typeID
	}
	return capitalize(siteID) + "-" + typeID
}

func capitalize(s string) string {
	r, size := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError {
		return s
	}
	var b strings.Builder
	b.WriteRune(unicode.ToUpper(r))
	b.WriteString(s[size:])
	return b.String()
}
