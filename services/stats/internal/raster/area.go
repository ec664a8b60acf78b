package raster

import (
	"math"

	"github.com/paulmach/orb"
)

const (
	// authalicRadius is the radius of the sphere with the WGS84 ellipsoid's
	// surface area, in metres.
	authalicRadius = 6371007.181
	m2ToKm2        = 1e-6
)

// AreaGrid holds the geodesic area of every pixel of a grid in km². Both
// supported CRSs are cylindrical, so area only varies by row.
type AreaGrid struct {
	grid Grid
	rows []float64
}

// NewAreaGrid derives the pixel area layer of g.
func NewAreaGrid(g Grid) (*AreaGrid, error) {
	if err := g.Validate(); err != nil {
		return nil, err
	}

	toWGS84 := g.ToWGS84()
	rows := make([]float64, g.Height)
	for row := range rows {
		cell := g.CellBound(0, row)
		nw := toWGS84(orb.Point{cell.Min.X(), cell.Max.Y()})
		se := toWGS84(orb.Point{cell.Max.X(), cell.Min.Y()})
		rows[row] = cellArea(nw, se) * m2ToKm2
	}
	return &AreaGrid{grid: g, rows: rows}, nil
}

// cellArea is the spherical area in m² of the lon/lat box spanned by two
// opposite corners.
func cellArea(a, b orb.Point) float64 {
	lat0 := clampLat(a[1]) * math.Pi / 180
	lat1 := clampLat(b[1]) * math.Pi / 180
	dLon := math.Abs(b[0]-a[0]) * math.Pi / 180
	return authalicRadius * authalicRadius * dLon * math.Abs(math.Sin(lat0)-math.Sin(lat1))
}

func clampLat(lat float64) float64 {
	return math.Max(-90, math.Min(90, lat))
}

// Grid returns the grid the layer was derived from.
func (a *AreaGrid) Grid() Grid { return a.grid }

// At returns the area of one pixel in km².
func (a *AreaGrid) At(col, row int) float64 {
	if row < 0 || row >= len(a.rows) || col < 0 || col >= a.grid.Width {
		return 0
	}
	return a.rows[row]
}
