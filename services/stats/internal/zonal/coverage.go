package zonal

import (
	"context"
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/clip"
	"github.com/paulmach/orb/planar"

	"github.com/humanimpact/hii-stats/services/stats/internal/raster"
)

// scan visits every pixel of win that overlaps mp with its coverage
// fraction in (0, 1]. Each row strip is clipped first so that per-cell
// clipping only sees the part of the geometry crossing that row.
//
// clip mutates its input, hence the clones.
func scan(ctx context.Context, grid raster.Grid, win raster.Window, mp orb.MultiPolygon, visit func(col, row int, frac float64)) error {
	cellArea := grid.CellArea()
	for row := win.Row0; row < win.Row1; row++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		strip := clip.MultiPolygon(grid.StripBound(row, win.Col0, win.Col1), mp.Clone())
		if len(strip) == 0 {
			continue
		}

		c0, c1 := grid.ColumnRange(strip.Bound(), win.Col0, win.Col1)
		for col := c0; col < c1; col++ {
			part := clip.MultiPolygon(grid.CellBound(col, row), strip.Clone())
			if len(part) == 0 {
				continue
			}
			frac := math.Abs(planar.Area(part)) / cellArea
			if frac <= 0 {
				continue
			}
			visit(col, row, math.Min(frac, 1))
		}
	}
	return nil
}
