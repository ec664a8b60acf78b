package raster_test

import (
	"bytes"
	"context"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/humanimpact/hii-stats/services/stats/internal/raster"
	"github.com/humanimpact/hii-stats/services/stats/internal/testutil"
)

const gridDoc = `{
  "id": "hii-2024-01-01",
  "date": "2024-01-01",
  "crs": "EPSG:4326",
  "origin": [10, 5],
  "pixel_size": [0.5, 0.5],
  "width": 2,
  "height": 2,
  "nodata": -9999,
  "values": [100, null, -9999, 250]
}`

func TestDecode(t *testing.T) {
	s, err := raster.Decode(strings.NewReader(gridDoc))
	require.NoError(t, err)

	assert.Equal(t, "hii-2024-01-01", s.ID)
	assert.Equal(t, "2024-01-01", s.Date.Format(raster.DateLayout))
	assert.Equal(t, 10.0, s.Grid.OriginX)
	assert.Equal(t, 0.5, s.Grid.PixelHeight)

	v, ok := s.Value(0, 0)
	assert.True(t, ok)
	assert.Equal(t, 100.0, v)
	_, ok = s.Value(1, 0)
	assert.False(t, ok, "null is nodata")
	_, ok = s.Value(0, 1)
	assert.False(t, ok, "nodata marker is nodata")
	_, ok = s.Value(5, 5)
	assert.False(t, ok)
}

func TestDecodeRejectsBadDocuments(t *testing.T) {
	tests := map[string]string{
		"bad date":     `{"date":"01/01/2024","crs":"EPSG:4326","origin":[0,0],"pixel_size":[1,1],"width":1,"height":1,"values":[1]}`,
		"value count":  `{"date":"2024-01-01","crs":"EPSG:4326","origin":[0,0],"pixel_size":[1,1],"width":2,"height":1,"values":[1]}`,
		"unknown crs":  `{"date":"2024-01-01","crs":"EPSG:2154","origin":[0,0],"pixel_size":[1,1],"width":1,"height":1,"values":[1]}`,
		"invalid json": `{"date":`,
	}
	for name, doc := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := raster.Decode(strings.NewReader(doc))
			assert.Error(t, err)
		})
	}
}

func TestEncodeKeepsNodata(t *testing.T) {
	g := testutil.DegreeGrid(0, 2, 2, 1)
	s := testutil.MustSlice(t, testutil.Date(t, "2024-05-01"), g, []float64{math.NaN(), 42})

	var buf bytes.Buffer
	require.NoError(t, raster.Encode(&buf, s))
	assert.Contains(t, buf.String(), `"values":[null,42]`)

	back, err := raster.Decode(&buf)
	require.NoError(t, err)
	_, ok := back.Value(0, 0)
	assert.False(t, ok)
	v, ok := back.Value(1, 0)
	assert.True(t, ok)
	assert.Equal(t, 42.0, v)
}

func writeSlice(t *testing.T, dir, date string, v float64) {
	t.Helper()
	s := testutil.ConstantSlice(t, testutil.Date(t, date), testutil.DegreeGrid(0, 1, 1, 1), v)
	f, err := os.Create(filepath.Join(dir, date+".json"))
	require.NoError(t, err)
	defer f.Close()
	require.NoError(t, raster.Encode(f, s))
}

func TestDirCatalog(t *testing.T) {
	root := t.TempDir()
	dir := filepath.Join(root, "hii")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	writeSlice(t, dir, "2024-02-01", 2)
	writeSlice(t, dir, "2024-01-01", 1)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "README.txt"), []byte("ignored"), 0o644))

	series, err := raster.LoadSeries(context.Background(), raster.DirCatalog{Root: root}, "hii")
	require.NoError(t, err)
	assert.Equal(t, 2, series.Len())

	e, ok := series.Select(testutil.Date(t, "2024-03-01"), nil)
	require.True(t, ok)
	s, err := e.Load(context.Background())
	require.NoError(t, err)
	v, _ := s.Value(0, 0)
	assert.Equal(t, 2.0, v)
}

func TestDirCatalogMissingSeries(t *testing.T) {
	_, err := raster.LoadSeries(context.Background(), raster.DirCatalog{Root: t.TempDir()}, "hii")
	assert.Error(t, err)
}

func TestBlobCatalog(t *testing.T) {
	ctx := context.Background()
	store := testutil.NewMemStore()
	for date, v := range map[string]float64{"2024-01-01": 1, "2024-01-05": 5} {
		s := testutil.ConstantSlice(t, testutil.Date(t, date), testutil.DegreeGrid(0, 1, 1, 1), v)
		var buf bytes.Buffer
		require.NoError(t, raster.Encode(&buf, s))
		require.NoError(t, store.Put(ctx, "rasters/hii/"+date+".json", buf.Bytes(), "application/json"))
	}
	require.NoError(t, store.Put(ctx, "rasters/other/2024-01-09.json", []byte("{}"), "application/json"))

	series, err := raster.LoadSeries(ctx, raster.BlobCatalog{Store: store, Prefix: "rasters"}, "hii")
	require.NoError(t, err)
	assert.Equal(t, 2, series.Len())

	e, ok := series.Select(testutil.Date(t, "2024-01-04"), nil)
	require.True(t, ok)
	assert.Equal(t, "rasters/hii/2024-01-01.json", e.Key)
	s, err := e.Load(ctx)
	require.NoError(t, err)
	v, _ := s.Value(0, 0)
	assert.Equal(t, 1.0, v)
}
