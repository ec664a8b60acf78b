package raster

import (
	"encoding/json"
	"fmt"
	"io"
	"math"
	"time"
)

// document is the on-disk grid format.
type document struct {
	ID        string     `json:"id"`
	Date      string     `json:"date"`
	CRS       string     `json:"crs"`
	Origin    [2]float64 `json:"origin"`
	PixelSize [2]float64 `json:"pixel_size"`
	Width     int        `json:"width"`
	Height    int        `json:"height"`
	NoData    *float64   `json:"nodata,omitempty"`
	Values    []*float64 `json:"values"`
}

// Decode reads a grid document. Null values and values equal to the
// document's nodata marker become NaN.
func Decode(r io.Reader) (*Slice, error) {
	var doc document
	if err := json.NewDecoder(r).Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode grid document: %w", err)
	}

	date, err := time.Parse(DateLayout, doc.Date)
	if err != nil {
		return nil, fmt.Errorf("grid %s: invalid date %q: %w", doc.ID, doc.Date, err)
	}

	values := make([]float64, len(doc.Values))
	for i, v := range doc.Values {
		switch {
		case v == nil:
			values[i] = math.NaN()
		case doc.NoData != nil && *v == *doc.NoData:
			values[i] = math.NaN()
		default:
			values[i] = *v
		}
	}

	grid := Grid{
		CRS:         doc.CRS,
		OriginX:     doc.Origin[0],
		OriginY:     doc.Origin[1],
		PixelWidth:  doc.PixelSize[0],
		PixelHeight: doc.PixelSize[1],
		Width:       doc.Width,
		Height:      doc.Height,
	}
	id := doc.ID
	if id == "" {
		id = doc.Date
	}
	return NewSlice(id, date, grid, values)
}

// Encode writes a slice as a grid document with nodata as null.
func Encode(w io.Writer, s *Slice) error {
	values := make([]*float64, len(s.Values))
	for i := range s.Values {
		if math.IsNaN(s.Values[i]) {
			continue
		}
		v := s.Values[i]
		values[i] = &v
	}
	doc := document{
		ID:        s.ID,
		Date:      s.Date.Format(DateLayout),
		CRS:       s.Grid.CRS,
		Origin:    [2]float64{s.Grid.OriginX, s.Grid.OriginY},
		PixelSize: [2]float64{s.Grid.PixelWidth, s.Grid.PixelHeight},
		Width:     s.Grid.Width,
		Height:    s.Grid.Height,
		Values:    values,
	}
	return json.NewEncoder(w).Encode(doc)
}
