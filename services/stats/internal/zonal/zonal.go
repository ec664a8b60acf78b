// Package zonal computes area-weighted statistics of a raster slice inside
// a region geometry.
package zonal

import (
	"context"

	"github.com/humanimpact/hii-stats/services/stats/internal/models"
	"github.com/humanimpact/hii-stats/services/stats/internal/raster"
)

// DefaultMaxPixels is the pixel budget of a single reduction.
const DefaultMaxPixels = 1e15

// Reducer runs the combined mean/min/max/stdDev/sum reduction of a slice and
// the sum of its area layer over one region, at the slice's native grid.
type Reducer interface {
	Reduce(ctx context.Context, slice *raster.Slice, area *raster.AreaGrid, region models.Region) (models.ReductionResult, error)
}
