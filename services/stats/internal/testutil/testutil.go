// Package testutil holds fixtures shared by the stats service tests.
package testutil

import (
	"context"
	"math"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/paulmach/orb"

	"github.com/humanimpact/hii-stats/services/stats/internal/blob"
	"github.com/humanimpact/hii-stats/services/stats/internal/models"
	"github.com/humanimpact/hii-stats/services/stats/internal/raster"
)

// Date parses an ISO date and fails the test on error.
func Date(t testing.TB, s string) time.Time {
	t.Helper()
	d, err := time.Parse(models.DateLayout, s)
	if err != nil {
		t.Fatalf("parse date %q: %v", s, err)
	}
	return d
}

// Float returns a pointer to v.
func Float(v float64) *float64 { return &v }

// DegreeGrid is a one-degree geographic grid with its top-left corner at
// (lon0, lat0).
func DegreeGrid(lon0, lat0 float64, width, height int) raster.Grid {
	return raster.Grid{
		CRS:         raster.CRSGeographic,
		OriginX:     lon0,
		OriginY:     lat0,
		PixelWidth:  1,
		PixelHeight: 1,
		Width:       width,
		Height:      height,
	}
}

// ConstantSlice fills every pixel of g with v.
func ConstantSlice(t testing.TB, date time.Time, g raster.Grid, v float64) *raster.Slice {
	t.Helper()
	values := make([]float64, g.Pixels())
	for i := range values {
		values[i] = v
	}
	return MustSlice(t, date, g, values)
}

// MustSlice builds a slice and fails the test on error.
func MustSlice(t testing.TB, date time.Time, g raster.Grid, values []float64) *raster.Slice {
	t.Helper()
	s, err := raster.NewSlice(date.Format(models.DateLayout), date, g, values)
	if err != nil {
		t.Fatalf("new slice: %v", err)
	}
	return s
}

// MustArea derives the area layer of g.
func MustArea(t testing.TB, g raster.Grid) *raster.AreaGrid {
	t.Helper()
	a, err := raster.NewAreaGrid(g)
	if err != nil {
		t.Fatalf("area grid: %v", err)
	}
	return a
}

// NaN is the nodata marker.
var NaN = math.NaN()

// Square is a region covering [minX,maxX] x [minY,maxY].
func Square(id string, minX, minY, maxX, maxY float64) models.Region {
	return models.Region{
		ID:         id,
		Name:       strings.ToUpper(id),
		Geometry:   orb.Bound{Min: orb.Point{minX, minY}, Max: orb.Point{maxX, maxY}}.ToPolygon(),
		Properties: map[string]any{"iso": id},
	}
}

// MemSeries builds a series whose entries load the given slices.
func MemSeries(t testing.TB, id string, slices ...*raster.Slice) *raster.Series {
	t.Helper()
	entries := make([]raster.Entry, 0, len(slices))
	for _, s := range slices {
		entries = append(entries, raster.NewEntry(s.Date, s.ID, func(context.Context) (*raster.Slice, error) {
			return s, nil
		}))
	}
	series, err := raster.NewSeries(id, entries)
	if err != nil {
		t.Fatalf("new series: %v", err)
	}
	return series
}

// MemCatalog serves fixed series from memory.
type MemCatalog map[string][]*raster.Slice

// List implements raster.Catalog.
func (c MemCatalog) List(_ context.Context, seriesID string) ([]raster.Entry, error) {
	slices := c[seriesID]
	entries := make([]raster.Entry, 0, len(slices))
	for _, s := range slices {
		entries = append(entries, raster.NewEntry(s.Date, s.ID, func(context.Context) (*raster.Slice, error) {
			return s, nil
		}))
	}
	return entries, nil
}

// MemStore is an in-memory blob.Store.
type MemStore struct {
	mu      sync.Mutex
	objects map[string][]byte
	types   map[string]string
}

// NewMemStore returns an empty store.
func NewMemStore() *MemStore {
	return &MemStore{objects: map[string][]byte{}, types: map[string]string{}}
}

var _ blob.Store = (*MemStore)(nil)

// Get implements blob.Store.
func (m *MemStore) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.objects[key]
	if !ok {
		return nil, blob.ErrNotFound
	}
	return append([]byte(nil), data...), nil
}

// Put implements blob.Store.
func (m *MemStore) Put(_ context.Context, key string, data []byte, contentType string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = append([]byte(nil), data...)
	m.types[key] = contentType
	return nil
}

// Exists implements blob.Store.
func (m *MemStore) Exists(_ context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.objects[key]
	return ok, nil
}

// List implements blob.Store.
func (m *MemStore) List(_ context.Context, prefix string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var keys []string
	for k := range m.objects {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

// Delete implements blob.Store.
func (m *MemStore) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, key)
	delete(m.types, key)
	return nil
}

// ContentType returns the content type an object was stored with.
func (m *MemStore) ContentType(key string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.types[key]
}

// StubReducer returns canned results per region and counts calls.
type StubReducer struct {
	Results map[string]models.ReductionResult
	Errors  map[string]error
	// Fallback is used for regions with no canned entry.
	Fallback func(region models.Region) (models.ReductionResult, error)

	calls atomic.Int64
}

// Reduce implements zonal.Reducer.
func (s *StubReducer) Reduce(_ context.Context, _ *raster.Slice, _ *raster.AreaGrid, region models.Region) (models.ReductionResult, error) {
	s.calls.Add(1)
	if err, ok := s.Errors[region.ID]; ok {
		return models.ReductionResult{}, err
	}
	if res, ok := s.Results[region.ID]; ok {
		return res, nil
	}
	if s.Fallback != nil {
		return s.Fallback(region)
	}
	return models.ReductionResult{}, nil
}

// Calls is the number of Reduce invocations so far.
func (s *StubReducer) Calls() int { return int(s.calls.Load()) }

// StaticRegions is a regions.Source over fixed collections.
type StaticRegions struct {
	CountryList []models.Region
	StateList   []models.Region
	Err         error

	loads atomic.Int64
}

// Countries returns the country collection.
func (s *StaticRegions) Countries(context.Context) ([]models.Region, error) {
	s.loads.Add(1)
	return s.CountryList, s.Err
}

// States returns the state collection.
func (s *StaticRegions) States(context.Context) ([]models.Region, error) {
	s.loads.Add(1)
	return s.StateList, s.Err
}

// Loads counts collection reads.
func (s *StaticRegions) Loads() int { return int(s.loads.Load()) }
