package raster

import (
	"errors"
	"fmt"
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/project"
)

// Supported coordinate reference systems.
const (
	CRSGeographic  = "EPSG:4326"
	CRSWebMercator = "EPSG:3857"
)

// mercatorMaxLat is the latitude where web mercator is clipped.
const mercatorMaxLat = 85.05112877980659

// Grid is the pixel grid of a slice: a north-up raster anchored at its
// top-left corner.
type Grid struct {
	CRS         string
	OriginX     float64
	OriginY     float64
	PixelWidth  float64
	PixelHeight float64
	Width       int
	Height      int
}

// Validate checks that the grid is usable.
func (g Grid) Validate() error {
	if g.CRS != CRSGeographic && g.CRS != CRSWebMercator {
		return fmt.Errorf("unsupported crs %q", g.CRS)
	}
	if g.Width <= 0 || g.Height <= 0 {
		return fmt.Errorf("invalid grid size %dx%d", g.Width, g.Height)
	}
	if !(g.PixelWidth > 0) || !(g.PixelHeight > 0) {
		return errors.New("pixel size must be positive")
	}
	if math.IsNaN(g.OriginX) || math.IsNaN(g.OriginY) || math.IsInf(g.OriginX, 0) || math.IsInf(g.OriginY, 0) {
		return errors.New("origin must be finite")
	}
	return nil
}

// Pixels is the number of cells in the grid.
func (g Grid) Pixels() int {
	return g.Width * g.Height
}

// Bound is the grid extent in CRS units.
func (g Grid) Bound() orb.Bound {
	return orb.Bound{
		Min: orb.Point{g.OriginX, g.OriginY - float64(g.Height)*g.PixelHeight},
		Max: orb.Point{g.OriginX + float64(g.Width)*g.PixelWidth, g.OriginY},
	}
}

// CellBound is the extent of one pixel.
func (g Grid) CellBound(col, row int) orb.Bound {
	x0 := g.OriginX + float64(col)*g.PixelWidth
	y1 := g.OriginY - float64(row)*g.PixelHeight
	return orb.Bound{
		Min: orb.Point{x0, y1 - g.PixelHeight},
		Max: orb.Point{x0 + g.PixelWidth, y1},
	}
}

// StripBound is the extent of one row between columns [col0, col1).
func (g Grid) StripBound(row, col0, col1 int) orb.Bound {
	y1 := g.OriginY - float64(row)*g.PixelHeight
	return orb.Bound{
		Min: orb.Point{g.OriginX + float64(col0)*g.PixelWidth, y1 - g.PixelHeight},
		Max: orb.Point{g.OriginX + float64(col1)*g.PixelWidth, y1},
	}
}

// CellArea is the planar area of one pixel in squared CRS units.
func (g Grid) CellArea() float64 {
	return g.PixelWidth * g.PixelHeight
}

// Window is a half-open block of pixels [Col0, Col1) x [Row0, Row1).
type Window struct {
	Col0, Row0 int
	Col1, Row1 int
}

// Pixels is the number of cells in the window.
func (w Window) Pixels() float64 {
	return float64(w.Col1-w.Col0) * float64(w.Row1-w.Row0)
}

// Window returns the pixels touched by b, clamped to the grid. ok is false
// when b does not overlap the grid.
func (g Grid) Window(b orb.Bound) (Window, bool) {
	w := Window{
		Col0: clampIndex(math.Floor((b.Min.X()-g.OriginX)/g.PixelWidth), g.Width),
		Col1: clampIndex(math.Ceil((b.Max.X()-g.OriginX)/g.PixelWidth), g.Width),
		Row0: clampIndex(math.Floor((g.OriginY-b.Max.Y())/g.PixelHeight), g.Height),
		Row1: clampIndex(math.Ceil((g.OriginY-b.Min.Y())/g.PixelHeight), g.Height),
	}
	return w, w.Col0 < w.Col1 && w.Row0 < w.Row1
}

// ColumnRange returns the columns touched by the x-extent of b, restricted
// to [lo, hi).
func (g Grid) ColumnRange(b orb.Bound, lo, hi int) (int, int) {
	c0 := int(math.Floor((b.Min.X() - g.OriginX) / g.PixelWidth))
	c1 := int(math.Ceil((b.Max.X() - g.OriginX) / g.PixelWidth))
	return max(c0, lo), min(c1, hi)
}

func clampIndex(v float64, n int) int {
	if v < 0 {
		return 0
	}
	if v > float64(n) {
		return n
	}
	return int(v)
}

// NominalScale is the pixel size in metres at the equator.
func (g Grid) NominalScale() float64 {
	if g.CRS == CRSGeographic {
		return g.PixelWidth * math.Pi / 180 * orb.EarthRadius
	}
	return g.PixelWidth
}

// FromWGS84 returns the projection from lon/lat into the grid CRS, or nil
// when the grid is already geographic.
func (g Grid) FromWGS84() orb.Projection {
	if g.CRS != CRSWebMercator {
		return nil
	}
	return func(p orb.Point) orb.Point {
		lat := math.Max(-mercatorMaxLat, math.Min(mercatorMaxLat, p[1]))
		return project.WGS84.ToMercator(orb.Point{p[0], lat})
	}
}

// ToWGS84 returns the projection from the grid CRS into lon/lat.
func (g Grid) ToWGS84() orb.Projection {
	if g.CRS != CRSWebMercator {
		return func(p orb.Point) orb.Point { return p }
	}
	return project.Mercator.ToWGS84
}
