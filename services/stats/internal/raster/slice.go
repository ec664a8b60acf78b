package raster

import (
	"fmt"
	"math"
	"time"
)

// Slice is one dated raster of the series. Values are row-major from the
// top-left pixel; NaN marks nodata.
type Slice struct {
	ID     string
	Date   time.Time
	Grid   Grid
	Values []float64
}

// NewSlice validates the grid and value count.
func NewSlice(id string, date time.Time, grid Grid, values []float64) (*Slice, error) {
	if err := grid.Validate(); err != nil {
		return nil, fmt.Errorf("slice %s: %w", id, err)
	}
	if len(values) != grid.Pixels() {
		return nil, fmt.Errorf("slice %s: %d values for a %dx%d grid", id, len(values), grid.Width, grid.Height)
	}
	return &Slice{ID: id, Date: Day(date), Grid: grid, Values: values}, nil
}

// Value returns the pixel value and whether it holds data.
func (s *Slice) Value(col, row int) (float64, bool) {
	if col < 0 || row < 0 || col >= s.Grid.Width || row >= s.Grid.Height {
		return 0, false
	}
	v := s.Values[row*s.Grid.Width+col]
	if math.IsNaN(v) {
		return 0, false
	}
	return v, true
}
