package raster_test

import (
	"context"
	"errors"
	"slices"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/humanimpact/hii-stats/services/stats/internal/raster"
	"github.com/humanimpact/hii-stats/services/stats/internal/testutil"
)

func intPtr(v int) *int { return &v }

func seriesOf(t *testing.T, dates ...string) *raster.Series {
	t.Helper()
	g := testutil.DegreeGrid(0, 1, 1, 1)
	list := make([]*raster.Slice, 0, len(dates))
	for _, d := range dates {
		list = append(list, testutil.ConstantSlice(t, testutil.Date(t, d), g, 1))
	}
	return testutil.MemSeries(t, "hii", list...)
}

func TestSeriesSelect(t *testing.T) {
	series := seriesOf(t, "2023-06-01", "2024-01-01", "2024-06-01")

	tests := []struct {
		name   string
		asOf   string
		maxAge *int
		want   string
		ok     bool
	}{
		{name: "exact date", asOf: "2024-06-01", maxAge: intPtr(365), want: "2024-06-01", ok: true},
		{name: "between slices", asOf: "2024-03-15", maxAge: intPtr(365), want: "2024-01-01", ok: true},
		{name: "before first slice", asOf: "2023-01-01", maxAge: nil, ok: false},
		{name: "age exactly at limit", asOf: "2025-06-01", maxAge: intPtr(365), want: "2024-06-01", ok: true},
		{name: "one day too old", asOf: "2025-06-02", maxAge: intPtr(365), ok: false},
		{name: "no limit", asOf: "2030-01-01", maxAge: nil, want: "2024-06-01", ok: true},
		{name: "zero limit same day", asOf: "2024-01-01", maxAge: intPtr(0), want: "2024-01-01", ok: true},
		{name: "zero limit next day", asOf: "2024-01-02", maxAge: intPtr(0), ok: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, ok := series.Select(testutil.Date(t, tt.asOf), tt.maxAge)
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.Equal(t, tt.want, e.Date.Format(raster.DateLayout))
			}
		})
	}
}

// Selection never returns a slice dated after asOf or older than the limit.
func TestSeriesSelectBounds(t *testing.T) {
	series := seriesOf(t, "2020-01-01", "2020-03-10", "2021-07-04", "2022-12-31", "2023-02-28")
	start := testutil.Date(t, "2019-12-01")

	for day := 0; day < 1400; day += 7 {
		asOf := start.AddDate(0, 0, day)
		for _, limit := range []int{0, 30, 365} {
			e, ok := series.Select(asOf, &limit)
			if !ok {
				continue
			}
			assert.False(t, e.Date.After(asOf), "slice %s after %s", e.Date, asOf)
			assert.LessOrEqual(t, raster.AgeDays(e.Date, asOf), limit)
		}
	}
}

func TestSeriesAllIsRestartable(t *testing.T) {
	series := seriesOf(t, "2024-03-01", "2024-01-01", "2024-02-01", "2024-05-01")
	asOf := testutil.Date(t, "2024-04-01")

	var dates []string
	for e := range series.All(asOf) {
		dates = append(dates, e.Date.Format(raster.DateLayout))
	}
	assert.Equal(t, []string{"2024-01-01", "2024-02-01", "2024-03-01"}, dates)

	again := slices.Collect(series.All(asOf))
	assert.Len(t, again, 3)

	var first []time.Time
	for e := range series.All(asOf) {
		first = append(first, e.Date)
		break
	}
	assert.Len(t, first, 1)
}

func TestNewSeriesRejectsDuplicateDates(t *testing.T) {
	load := func(context.Context) (*raster.Slice, error) { return nil, nil }
	d := testutil.Date(t, "2024-01-01")
	_, err := raster.NewSeries("hii", []raster.Entry{
		raster.NewEntry(d, "a", load),
		raster.NewEntry(d, "b", load),
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, raster.ErrDuplicateDate))
}

func TestEntryLoadChecksDate(t *testing.T) {
	g := testutil.DegreeGrid(0, 1, 1, 1)
	s := testutil.ConstantSlice(t, testutil.Date(t, "2024-01-02"), g, 1)
	e := raster.NewEntry(testutil.Date(t, "2024-01-01"), "k", func(context.Context) (*raster.Slice, error) {
		return s, nil
	})

	_, err := e.Load(context.Background())
	assert.Error(t, err)
}

func TestAgeDays(t *testing.T) {
	d := testutil.Date(t, "2024-02-28")
	assert.Equal(t, 0, raster.AgeDays(d, d.Add(23*time.Hour)))
	assert.Equal(t, 2, raster.AgeDays(d, testutil.Date(t, "2024-03-01")))
	assert.Equal(t, -1, raster.AgeDays(d, testutil.Date(t, "2024-02-27")))
}
