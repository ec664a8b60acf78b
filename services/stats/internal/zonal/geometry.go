package zonal

import (
	"errors"
	"fmt"
	"math"

	"github.com/paulmach/orb"
)

// prepare validates a region geometry and normalizes it to a MultiPolygon
// with closed rings. The input is not modified.
func prepare(g orb.Geometry) (orb.MultiPolygon, error) {
	var mp orb.MultiPolygon
	switch geom := g.(type) {
	case nil:
		return nil, errors.New("geometry is missing")
	case orb.Polygon:
		mp = orb.MultiPolygon{geom.Clone()}
	case orb.MultiPolygon:
		mp = geom.Clone()
	case orb.Bound:
		mp = orb.MultiPolygon{geom.ToPolygon()}
	default:
		return nil, fmt.Errorf("unsupported geometry type %s", g.GeoJSONType())
	}

	if len(mp) == 0 {
		return nil, errors.New("geometry is empty")
	}
	for i, poly := range mp {
		if len(poly) == 0 {
			return nil, fmt.Errorf("polygon %d has no rings", i)
		}
		for j, ring := range poly {
			closed, err := closeRing(ring)
			if err != nil {
				return nil, fmt.Errorf("polygon %d ring %d: %w", i, j, err)
			}
			poly[j] = closed
		}
	}
	return mp, nil
}

func closeRing(r orb.Ring) (orb.Ring, error) {
	for _, p := range r {
		if !finite(p[0]) || !finite(p[1]) {
			return nil, errors.New("non-finite coordinate")
		}
	}
	if len(r) > 0 && !r.Closed() {
		r = append(r, r[0])
	}
	if len(r) < 4 {
		return nil, fmt.Errorf("ring has %d points, need at least 4", len(r))
	}
	return r, nil
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// reproject applies proj to every vertex in place.
func reproject(mp orb.MultiPolygon, proj orb.Projection) {
	if proj == nil {
		return
	}
	for _, poly := range mp {
		for _, ring := range poly {
			for i := range ring {
				ring[i] = proj(ring[i])
			}
		}
	}
}
