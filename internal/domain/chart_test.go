package domain

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func day(d int) time.Time {
	return time.Date(2015, 1, d, 0, 0, 0, 0, time.UTC)
}

func TestBuildChartMatrix_MergesOnTime(t *testing.T) {
	series := []Series{
		{SiteID: "HOLD", Observations: []Observation{
			{Time: day(3), Value: 3},
			{Time: day(1), Value: 1},
		}},
		{SiteID: "KAIK", Label: "Kaikoura", Observations: []Observation{
			{Time: day(2), Value: 20},
			{Time: day(3), Value: 30},
		}},
	}

	m := BuildChartMatrix(series)

	assert.Equal(t, []string{"Date", "HOLD", "Kaikoura"}, m.Labels)
	assert.False(t, m.ErrorBars)

	want := []ChartRow{
		{Time: day(1), Cells: []Cell{{Value: 1, Valid: true}, {}}},
		{Time: day(2), Cells: []Cell{{}, {Value: 20, Valid: true}}},
		{Time: day(3), Cells: []Cell{{Value: 3, Valid: true}, {Value: 30, Valid: true}}},
	}
	if diff := cmp.Diff(want, m.Rows); diff != "" {
		t.Errorf("rows mismatch (-want +got):\n%s", diff)
	}
}

func TestBuildChartMatrix_ErrorBarsJSON(t *testing.T) {
	series := []Series{
		{SiteID: "HOLD", Observations: []Observation{{Time: day(1), Value: 1.5, Error: 0.2, HasError: true}}},
		{SiteID: "KAIK", Observations: []Observation{{Time: day(2), Value: 2}}},
	}

	m := BuildChartMatrix(series)
	require.True(t, m.ErrorBars)
	assert.Equal(t, 4, m.Columns())

	b, err := json.Marshal(m)
	require.NoError(t, err)

	assert.JSONEq(t, `{
		"labels": ["Date","HOLD","KAIK"],
		"errorBars": true,
		"rows": [
			[1420070400000, 1.5, 0.2, null, null],
			[1420156800000, null, null, 2, null]
		]
	}`, string(b))
}

func TestBuildChartMatrix_Empty(t *testing.T) {
	m := BuildChartMatrix(nil)
	assert.Equal(t, []string{"Date"}, m.Labels)
	assert.Empty(t, m.Rows)

	b, err := json.Marshal(m)
	require.NoError(t, err)
	assert.JSONEq(t, `{"labels":["Date"],"errorBars":false,"rows":[]}`, string(b))
}

func TestNewChartConfig(t *testing.T) {
	m := ChartMatrix{Labels: []string{"Date", "HOLD"}, ErrorBars: true}

	cfg := NewChartConfig(ChartTitle("displacement east", "e"), 896, 512, m)

	assert.Equal(t, "Displacement east", cfg.Title)
	assert.Equal(t, 896, cfg.Width)
	assert.Equal(t, 512, cfg.Height)
	assert.True(t, cfg.ErrorBars)
	assert.True(t, cfg.DrawPoints)
	assert.Equal(t, 2, cfg.PointSize)
	assert.Equal(t, 1.0, cfg.Sigma)
	assert.Equal(t, "always", cfg.Legend)
	assert.Equal(t, []string{"Date", "HOLD"}, cfg.Labels)
	assert.Equal(t, FormatterUTCTime, cfg.Axes["x"].ValueFormatter)
	assert.Equal(t, FormatterUTCDate, cfg.Axes["x"].AxisLabelFormatter)
}

func TestNewSiteChartConfig(t *testing.T) {
	cfg := NewSiteChartConfig(SiteChartTitle("hold", "e"), 400, 300, false)

	assert.Equal(t, "Hold-e", cfg.Title)
	assert.False(t, cfg.ErrorBars)
	assert.Nil(t, cfg.Axes)
	assert.Nil(t, cfg.Labels)
}

func TestChartTitles(t *testing.T) {
	assert.Equal(t, "e", ChartTitle("", "e"))
	assert.Equal(t, "Ölfus", ChartTitle("ölfus", "x"))
	assert.Equal(t, "e", SiteChartTitle("", "e"))
	assert.Equal(t, "HOLD-e", SiteChartTitle("HOLD", "e"))
}
