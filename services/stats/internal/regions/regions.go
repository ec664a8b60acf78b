// Package regions loads the region collections statistics are computed
// over.
package regions

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/humanimpact/hii-stats/services/stats/internal/blob"
	"github.com/humanimpact/hii-stats/services/stats/internal/models"
)

// GlobalID is the identifier of the synthetic global region.
const GlobalID = "global"

// ErrStatesNotConfigured is returned when no state collection is set up.
var ErrStatesNotConfigured = errors.New("state regions are not configured")

// Source provides the country and state collections.
type Source interface {
	Countries(ctx context.Context) ([]models.Region, error)
	States(ctx context.Context) ([]models.Region, error)
}

// Options control how feature properties map onto regions.
type Options struct {
	IDProperty   string
	NameProperty string
}

type readFunc func(ctx context.Context, path string) ([]byte, error)

// GeoJSONSource reads FeatureCollections from files or object storage.
type GeoJSONSource struct {
	read          readFunc
	countriesPath string
	statesPath    string
	opts          Options
}

// NewFileSource reads collections from the local filesystem.
func NewFileSource(countriesPath, statesPath string, opts Options) *GeoJSONSource {
	return &GeoJSONSource{
		read:          func(_ context.Context, p string) ([]byte, error) { return os.ReadFile(p) },
		countriesPath: countriesPath,
		statesPath:    statesPath,
		opts:          opts,
	}
}

// NewBlobSource reads collections from an object store.
func NewBlobSource(store blob.Store, countriesKey, statesKey string, opts Options) *GeoJSONSource {
	return &GeoJSONSource{
		read:          store.Get,
		countriesPath: countriesKey,
		statesPath:    statesKey,
		opts:          opts,
	}
}

// Countries implements Source.
func (s *GeoJSONSource) Countries(ctx context.Context) ([]models.Region, error) {
	return s.load(ctx, s.countriesPath)
}

// States implements Source.
func (s *GeoJSONSource) States(ctx context.Context) ([]models.Region, error) {
	if s.statesPath == "" {
		return nil, ErrStatesNotConfigured
	}
	return s.load(ctx, s.statesPath)
}

func (s *GeoJSONSource) load(ctx context.Context, path string) ([]models.Region, error) {
	data, err := s.read(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("read regions %s: %w", path, err)
	}
	regions, err := Decode(data, s.opts)
	if err != nil {
		return nil, fmt.Errorf("regions %s: %w", path, err)
	}
	return regions, nil
}

// Decode parses a FeatureCollection. Features keep their geometry even when
// it is missing or unusable; the reducer reports that per region.
func Decode(data []byte, opts Options) ([]models.Region, error) {
	fc, err := geojson.UnmarshalFeatureCollection(data)
	if err != nil {
		return nil, fmt.Errorf("decode feature collection: %w", err)
	}

	out := make([]models.Region, 0, len(fc.Features))
	for i, f := range fc.Features {
		props := map[string]any(f.Properties)
		if props == nil {
			props = map[string]any{}
		}
		out = append(out, models.Region{
			ID:         featureID(f, opts.IDProperty, i),
			Name:       propString(props, opts.NameProperty),
			Geometry:   f.Geometry,
			Properties: props,
		})
	}
	return out, nil
}

func featureID(f *geojson.Feature, prop string, index int) string {
	if id := propString(f.Properties, prop); id != "" {
		return id
	}
	switch v := f.ID.(type) {
	case string:
		if v != "" {
			return v
		}
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	}
	return fmt.Sprintf("feature-%d", index)
}

func propString(props map[string]any, key string) string {
	if key == "" || props == nil {
		return ""
	}
	switch v := props[key].(type) {
	case string:
		return strings.TrimSpace(v)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case nil:
		return ""
	default:
		return fmt.Sprint(v)
	}
}

// Global builds the single region spanning the area of interest.
func Global(bounds orb.Bound) models.Region {
	return models.Region{
		ID:         GlobalID,
		Geometry:   bounds.ToPolygon(),
		Properties: map[string]any{},
	}
}

// ParseBounds parses "minLon,minLat,maxLon,maxLat".
func ParseBounds(s string) (orb.Bound, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return orb.Bound{}, fmt.Errorf("bounds %q: want minLon,minLat,maxLon,maxLat", s)
	}
	vals := make([]float64, 4)
	for i, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return orb.Bound{}, fmt.Errorf("bounds %q: %w", s, err)
		}
		vals[i] = v
	}
	b := orb.Bound{Min: orb.Point{vals[0], vals[1]}, Max: orb.Point{vals[2], vals[3]}}
	if b.Min.X() >= b.Max.X() || b.Min.Y() >= b.Max.Y() {
		return orb.Bound{}, fmt.Errorf("bounds %q: min must be below max", s)
	}
	if b.Min.Y() < -90 || b.Max.Y() > 90 || b.Min.X() < -180 || b.Max.X() > 180 {
		return orb.Bound{}, fmt.Errorf("bounds %q: outside lon/lat range", s)
	}
	return b, nil
}
