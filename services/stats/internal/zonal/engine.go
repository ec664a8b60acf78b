package zonal

import (
	"context"
	"errors"

	"github.com/humanimpact/hii-stats/services/stats/internal/apperr"
	"github.com/humanimpact/hii-stats/services/stats/internal/models"
	"github.com/humanimpact/hii-stats/services/stats/internal/raster"
)

// Engine reduces regions locally by rasterizing each geometry onto the
// slice grid with area-proportional pixel coverage.
type Engine struct {
	maxPixels float64
}

// NewEngine returns an engine with the given pixel budget. A non-positive
// budget selects DefaultMaxPixels.
func NewEngine(maxPixels float64) *Engine {
	if maxPixels <= 0 {
		maxPixels = DefaultMaxPixels
	}
	return &Engine{maxPixels: maxPixels}
}

// Reduce implements Reducer.
func (e *Engine) Reduce(ctx context.Context, slice *raster.Slice, area *raster.AreaGrid, region models.Region) (models.ReductionResult, error) {
	if slice == nil || area == nil {
		return models.ReductionResult{}, errors.New("zonal: slice and area layer are required")
	}
	if area.Grid() != slice.Grid {
		return models.ReductionResult{}, errors.New("zonal: area layer grid does not match the slice grid")
	}

	mp, err := prepare(region.Geometry)
	if err != nil {
		return models.ReductionResult{}, apperr.MalformedGeometry(region.ID, err)
	}
	reproject(mp, slice.Grid.FromWGS84())

	win, ok := slice.Grid.Window(mp.Bound())
	if !ok {
		return models.ReductionResult{}, nil
	}
	if win.Pixels() > e.maxPixels {
		return models.ReductionResult{}, apperr.PixelBudget(win.Pixels(), e.maxPixels)
	}

	var acc accumulator
	err = scan(ctx, slice.Grid, win, mp, func(col, row int, frac float64) {
		v, ok := slice.Value(col, row)
		if !ok {
			return
		}
		acc.add(v, frac, area.At(col, row)*frac)
	})
	if err != nil {
		return models.ReductionResult{}, err
	}
	return acc.result(), nil
}
