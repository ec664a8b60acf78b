// Package stats turns raw reduction outputs into reported statistics.
package stats

import (
	"fmt"
	"math"

	"github.com/humanimpact/hii-stats/services/stats/internal/models"
)

// valueScale is the factor the HII raster is stored at.
const valueScale = 100

// BuildStatRecord converts a reduction result into the reported statistic
// set. Absent inputs give absent outputs; it never fails.
func BuildStatRecord(r models.ReductionResult) models.StatRecord {
	return models.StatRecord{
		Mean:       ScaledStat(r.RasterMean),
		Min:        ScaledStat(r.RasterMin),
		Max:        ScaledStat(r.RasterMax),
		StdDev:     ScaledStat(r.RasterStdDev),
		SumPerArea: SumPerArea(r.RasterSum, r.AreaSum),
	}
}

// ScaledStat rounds a raw value to the nearest integer (half away from zero)
// and removes the storage scale.
func ScaledStat(v *float64) *float64 {
	if v == nil || !finite(*v) {
		return nil
	}
	out := math.Round(*v) / valueScale
	return &out
}

// SumPerArea divides the raster sum by the covered area, unrounded. A zero
// or missing area is a degenerate region and yields no value.
func SumPerArea(sum, area *float64) *float64 {
	if sum == nil || area == nil || *area == 0 {
		return nil
	}
	out := *sum / *area
	if !finite(out) {
		return nil
	}
	return &out
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// ValuesEqual compares two optional values with tolerance.
func ValuesEqual(a, b *float64, epsilon float64) bool {
	switch {
	case a == nil && b == nil:
		return true
	case a == nil || b == nil:
		return false
	default:
		return math.Abs(*a-*b) <= epsilon
	}
}

// RecordsEqual compares two stat records field by field.
func RecordsEqual(a, b models.StatRecord, epsilon float64) bool {
	return ValuesEqual(a.Mean, b.Mean, epsilon) &&
		ValuesEqual(a.Min, b.Min, epsilon) &&
		ValuesEqual(a.Max, b.Max, epsilon) &&
		ValuesEqual(a.StdDev, b.StdDev, epsilon) &&
		ValuesEqual(a.SumPerArea, b.SumPerArea, epsilon)
}

// ValuePtrString prints optional values for logging.
func ValuePtrString(v *float64) string {
	if v == nil {
		return "null"
	}
	return fmt.Sprintf("%.4f", *v)
}
