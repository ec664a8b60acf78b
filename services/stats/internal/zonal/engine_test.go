package zonal_test

import (
	"context"
	"math"
	"testing"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/humanimpact/hii-stats/services/stats/internal/apperr"
	"github.com/humanimpact/hii-stats/services/stats/internal/models"
	"github.com/humanimpact/hii-stats/services/stats/internal/raster"
	"github.com/humanimpact/hii-stats/services/stats/internal/testutil"
	"github.com/humanimpact/hii-stats/services/stats/internal/zonal"
)

// fixture is a 4x4 one-degree grid over lon [0,4], lat [0,4] holding 1..16
// row-major from the top-left.
func fixture(t *testing.T) (*raster.Slice, *raster.AreaGrid) {
	t.Helper()
	g := testutil.DegreeGrid(0, 4, 4, 4)
	values := make([]float64, 16)
	for i := range values {
		values[i] = float64(i + 1)
	}
	s := testutil.MustSlice(t, testutil.Date(t, "2024-01-01"), g, values)
	return s, testutil.MustArea(t, g)
}

func TestEngineAlignedSquare(t *testing.T) {
	slice, area := fixture(t)
	res, err := zonal.NewEngine(0).Reduce(context.Background(), slice, area, testutil.Square("sw", 0, 0, 2, 2))
	require.NoError(t, err)

	// rows 2-3, cols 0-1: 9, 10, 13, 14
	assert.InDelta(t, 11.5, *res.RasterMean, 1e-9)
	assert.Equal(t, 9.0, *res.RasterMin)
	assert.Equal(t, 14.0, *res.RasterMax)
	assert.InDelta(t, math.Sqrt(4.25), *res.RasterStdDev, 1e-9)
	assert.InDelta(t, 46, *res.RasterSum, 1e-9)

	wantArea := 2 * (area.At(0, 2) + area.At(0, 3))
	assert.InEpsilon(t, wantArea, *res.AreaSum, 1e-9)
}

func TestEnginePartialCoverage(t *testing.T) {
	slice, area := fixture(t)
	res, err := zonal.NewEngine(0).Reduce(context.Background(), slice, area, testutil.Square("half", 0, 0, 0.5, 1))
	require.NoError(t, err)

	assert.InDelta(t, 13, *res.RasterMean, 1e-9)
	assert.InDelta(t, 6.5, *res.RasterSum, 1e-9)
	assert.InEpsilon(t, area.At(0, 3)/2, *res.AreaSum, 1e-9)
}

func TestEngineTriangleCoverage(t *testing.T) {
	g := testutil.DegreeGrid(0, 2, 2, 2)
	slice := testutil.ConstantSlice(t, testutil.Date(t, "2024-01-01"), g, 50)
	area := testutil.MustArea(t, g)

	// lower-left triangle of the grid: diagonal pixels are half covered
	tri := models.Region{ID: "tri", Geometry: orb.Polygon{{{0, 0}, {2, 0}, {0, 2}, {0, 0}}}}
	res, err := zonal.NewEngine(0).Reduce(context.Background(), slice, area, tri)
	require.NoError(t, err)

	assert.InDelta(t, 50, *res.RasterMean, 1e-9)
	assert.InDelta(t, 0, *res.RasterStdDev, 1e-9)
	// coverage: full (0,1), half (0,0), half (1,1)
	assert.InDelta(t, 100, *res.RasterSum, 1e-9)
}

func TestEngineIgnoresNodata(t *testing.T) {
	g := testutil.DegreeGrid(0, 1, 2, 1)
	slice := testutil.MustSlice(t, testutil.Date(t, "2024-01-01"), g, []float64{testutil.NaN, 300})
	area := testutil.MustArea(t, g)

	res, err := zonal.NewEngine(0).Reduce(context.Background(), slice, area, testutil.Square("r", 0, 0, 2, 1))
	require.NoError(t, err)
	assert.Equal(t, 300.0, *res.RasterMean)
	assert.InEpsilon(t, area.At(1, 0), *res.AreaSum, 1e-9, "area only counts valid pixels")
}

func TestEngineNoData(t *testing.T) {
	g := testutil.DegreeGrid(0, 1, 1, 1)
	slice := testutil.MustSlice(t, testutil.Date(t, "2024-01-01"), g, []float64{testutil.NaN})
	area := testutil.MustArea(t, g)
	engine := zonal.NewEngine(0)

	res, err := engine.Reduce(context.Background(), slice, area, testutil.Square("ocean", 0, 0, 1, 1))
	require.NoError(t, err)
	assert.True(t, res.Empty())

	res, err = engine.Reduce(context.Background(), slice, area, testutil.Square("far", 50, 50, 60, 60))
	require.NoError(t, err)
	assert.True(t, res.Empty())
}

func TestEngineMultiPolygonWithHole(t *testing.T) {
	slice, area := fixture(t)
	region := models.Region{ID: "mp", Geometry: orb.MultiPolygon{
		{
			{{0, 0}, {4, 0}, {4, 4}, {0, 4}, {0, 0}},
			{{1, 1}, {3, 1}, {3, 3}, {1, 3}, {1, 1}},
		},
	}}
	res, err := zonal.NewEngine(0).Reduce(context.Background(), slice, area, region)
	require.NoError(t, err)

	// ring of 12 outer pixels: 1..16 minus 6, 7, 10, 11
	assert.InDelta(t, (136.0-34.0)/12, *res.RasterMean, 1e-9)
	assert.InDelta(t, 102, *res.RasterSum, 1e-9)
}

func TestEngineMalformedGeometry(t *testing.T) {
	slice, area := fixture(t)
	engine := zonal.NewEngine(0)

	tests := map[string]orb.Geometry{
		"missing":     nil,
		"point":       orb.Point{1, 1},
		"short ring":  orb.Polygon{{{0, 0}, {1, 1}}},
		"nan":         orb.Polygon{{{0, 0}, {1, math.NaN()}, {1, 1}, {0, 0}}},
		"empty multi": orb.MultiPolygon{},
	}
	for name, geom := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := engine.Reduce(context.Background(), slice, area, models.Region{ID: name, Geometry: geom})
			require.Error(t, err)
			assert.True(t, apperr.IsMalformedGeometry(err))
			assert.True(t, apperr.IsRegionLocal(err))
		})
	}
}

func TestEngineClosesOpenRings(t *testing.T) {
	slice, area := fixture(t)
	open := models.Region{ID: "open", Geometry: orb.Polygon{{{0, 0}, {2, 0}, {2, 2}, {0, 2}}}}
	res, err := zonal.NewEngine(0).Reduce(context.Background(), slice, area, open)
	require.NoError(t, err)
	assert.InDelta(t, 11.5, *res.RasterMean, 1e-9)
}

func TestEnginePixelBudget(t *testing.T) {
	slice, area := fixture(t)
	_, err := zonal.NewEngine(3).Reduce(context.Background(), slice, area, testutil.Square("big", 0, 0, 4, 4))
	require.Error(t, err)
	assert.True(t, apperr.IsPixelBudget(err))
	assert.False(t, apperr.IsRegionLocal(err))
}

func TestEngineGridMismatch(t *testing.T) {
	slice, _ := fixture(t)
	other := testutil.MustArea(t, testutil.DegreeGrid(0, 8, 8, 8))
	_, err := zonal.NewEngine(0).Reduce(context.Background(), slice, other, testutil.Square("r", 0, 0, 1, 1))
	assert.Error(t, err)
}

func TestEngineCancelled(t *testing.T) {
	slice, area := fixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := zonal.NewEngine(0).Reduce(ctx, slice, area, testutil.Square("r", 0, 0, 4, 4))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestEngineWebMercator(t *testing.T) {
	const step = 111319.49079327357
	g := raster.Grid{CRS: raster.CRSWebMercator, OriginX: 0, OriginY: 2 * step, PixelWidth: step, PixelHeight: step, Width: 2, Height: 2}
	slice := testutil.MustSlice(t, testutil.Date(t, "2024-01-01"), g, []float64{1, 2, 3, 4})
	area := testutil.MustArea(t, g)

	// lon/lat square over the bottom-left pixel, inset to stay clear of
	// the slightly curved mercator row edges
	res, err := zonal.NewEngine(0).Reduce(context.Background(), slice, area, testutil.Square("r", 0.1, 0.1, 0.9, 0.9))
	require.NoError(t, err)
	assert.Equal(t, 3.0, *res.RasterMean)
	assert.Equal(t, 3.0, *res.RasterMax)
}
