package stats

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/humanimpact/hii-stats/services/stats/internal/models"
)

func f(v float64) *float64 { return &v }

func TestScaledStatRounding(t *testing.T) {
	tests := []struct {
		raw  float64
		want float64
	}{
		{raw: 1234.4, want: 12.34},
		{raw: 1234.5, want: 12.35},
		{raw: 1234.6, want: 12.35},
		{raw: -1234.5, want: -12.35},
		{raw: 0.49, want: 0},
		{raw: 50, want: 0.5},
		{raw: 5000, want: 50},
	}
	for _, tt := range tests {
		got := ScaledStat(f(tt.raw))
		require.NotNil(t, got, "raw %v", tt.raw)
		assert.Equal(t, tt.want, *got, "raw %v", tt.raw)
	}
}

// Every reported value is a whole number of hundredths.
func TestScaledStatIsHundredths(t *testing.T) {
	for raw := -3000.0; raw <= 3000; raw += 0.37 {
		got := ScaledStat(f(raw))
		require.NotNil(t, got)
		scaled := *got * 100
		assert.InDelta(t, math.Round(scaled), scaled, 1e-6, "raw %v", raw)
		assert.InDelta(t, raw/100, *got, 0.005+1e-9)
	}
}

func TestScaledStatAbsent(t *testing.T) {
	assert.Nil(t, ScaledStat(nil))
	assert.Nil(t, ScaledStat(f(math.NaN())))
	assert.Nil(t, ScaledStat(f(math.Inf(1))))
}

func TestSumPerArea(t *testing.T) {
	got := SumPerArea(f(1234.567), f(10))
	require.NotNil(t, got)
	assert.InDelta(t, 123.4567, *got, 1e-12, "not rounded")

	assert.Nil(t, SumPerArea(nil, f(10)))
	assert.Nil(t, SumPerArea(f(1), nil))
	assert.Nil(t, SumPerArea(f(1), f(0)))
	assert.Nil(t, SumPerArea(f(math.Inf(1)), f(2)))
}

func TestBuildStatRecord(t *testing.T) {
	rec := BuildStatRecord(models.ReductionResult{
		RasterMean:   f(5000),
		RasterMin:    f(1234.5),
		RasterMax:    f(9999.4),
		RasterStdDev: f(12.5),
		RasterSum:    f(1000),
		AreaSum:      f(10),
	})

	assert.Equal(t, 50.0, *rec.Mean)
	assert.Equal(t, 12.35, *rec.Min)
	assert.Equal(t, 99.99, *rec.Max)
	assert.Equal(t, 0.13, *rec.StdDev)
	assert.Equal(t, 100.0, *rec.SumPerArea)
	assert.False(t, rec.Absent())
}

func TestBuildStatRecordPropagatesAbsence(t *testing.T) {
	assert.True(t, BuildStatRecord(models.ReductionResult{}).Absent())

	rec := BuildStatRecord(models.ReductionResult{RasterMean: f(100), AreaSum: f(3)})
	assert.Equal(t, 1.0, *rec.Mean)
	assert.Nil(t, rec.Min)
	assert.Nil(t, rec.Max)
	assert.Nil(t, rec.StdDev)
	assert.Nil(t, rec.SumPerArea)
}

func TestRecordsEqual(t *testing.T) {
	a := models.StatRecord{Mean: f(1), SumPerArea: f(2)}
	b := models.StatRecord{Mean: f(1.0000001), SumPerArea: f(2)}
	assert.True(t, RecordsEqual(a, b, 1e-6))
	assert.False(t, RecordsEqual(a, models.StatRecord{Mean: f(1)}, 1e-6))
	assert.Equal(t, "null", ValuePtrString(nil))
	assert.Equal(t, "1.5000", ValuePtrString(f(1.5)))
}
