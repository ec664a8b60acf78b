package zonal

import (
	"math"

	"github.com/humanimpact/hii-stats/services/stats/internal/models"
)

// accumulator is the combined reducer: every statistic is updated from the
// same pixel in the same call. Mean and variance use West's weighted
// variant of Welford's update.
type accumulator struct {
	count   int
	weight  float64
	mean    float64
	m2      float64
	min     float64
	max     float64
	sum     float64
	areaSum float64
}

// add folds in one pixel value v with coverage weight w and weighted area.
func (a *accumulator) add(v, w, area float64) {
	if w <= 0 {
		return
	}
	if a.count == 0 {
		a.min, a.max = v, v
	} else {
		a.min = math.Min(a.min, v)
		a.max = math.Max(a.max, v)
	}
	a.count++

	a.weight += w
	delta := v - a.mean
	a.mean += (w / a.weight) * delta
	a.m2 += w * delta * (v - a.mean)

	a.sum += w * v
	a.areaSum += area
}

func (a *accumulator) result() models.ReductionResult {
	if a.count == 0 {
		return models.ReductionResult{}
	}
	variance := a.m2 / a.weight
	if variance < 0 {
		variance = 0
	}
	return models.ReductionResult{
		RasterMean:   ptr(a.mean),
		RasterMin:    ptr(a.min),
		RasterMax:    ptr(a.max),
		RasterStdDev: ptr(math.Sqrt(variance)),
		RasterSum:    ptr(a.sum),
		AreaSum:      ptr(a.areaSum),
	}
}

func ptr(v float64) *float64 { return &v }
