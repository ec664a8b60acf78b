package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/paulmach/orb"
)

// DateLayout is the ISO date format used in task dates and output paths.
const DateLayout = "2006-01-02"

// DatasetName is the namespace every output batch is written under.
const DatasetName = "hii-stats"

// Scope names a region grouping over which statistics are computed.
type Scope string

const (
	ScopeGlobal  Scope = "global"
	ScopeCountry Scope = "country"
	ScopeState   Scope = "state"
)

// ParseScope validates a scope name.
func ParseScope(s string) (Scope, error) {
	switch Scope(strings.ToLower(strings.TrimSpace(s))) {
	case ScopeGlobal:
		return ScopeGlobal, nil
	case ScopeCountry:
		return ScopeCountry, nil
	case ScopeState:
		return ScopeState, nil
	default:
		return "", fmt.Errorf("unknown scope %q", s)
	}
}

// Region is a named polygon or multi-polygon in WGS84 lon/lat.
type Region struct {
	ID         string
	Name       string
	Geometry   orb.Geometry
	Properties map[string]any
}

// ReductionResult is the raw output of one combined reduction. A nil field
// means the reducer produced no value for that key.
type ReductionResult struct {
	RasterMean   *float64 `json:"raster_mean"`
	RasterMin    *float64 `json:"raster_min"`
	RasterMax    *float64 `json:"raster_max"`
	RasterStdDev *float64 `json:"raster_stdDev"`
	RasterSum    *float64 `json:"raster_sum"`
	AreaSum      *float64 `json:"area_sum"`
}

// Empty reports whether no key carries a value.
func (r ReductionResult) Empty() bool {
	return r.RasterMean == nil && r.RasterMin == nil && r.RasterMax == nil &&
		r.RasterStdDev == nil && r.RasterSum == nil && r.AreaSum == nil
}

// StatRecord is the reported statistic set for one region. Nil fields are
// absent values and serialize as null.
type StatRecord struct {
	Mean       *float64 `json:"mean"`
	Min        *float64 `json:"min"`
	Max        *float64 `json:"max"`
	StdDev     *float64 `json:"std_dev"`
	SumPerArea *float64 `json:"sum_per_area"`
}

// Absent reports whether every field is absent (a no-data region).
func (s StatRecord) Absent() bool {
	return s.Mean == nil && s.Min == nil && s.Max == nil && s.StdDev == nil && s.SumPerArea == nil
}

// RegionStats pairs a region with its statistics.
type RegionStats struct {
	Region Region
	Stats  StatRecord
	// SliceDate is set on cumulative rows.
	SliceDate *time.Time
	// Error carries the region-local failure, if any. Stats are all absent
	// when it is set.
	Error string
}

// OutputBatch is one scope's results for one task date.
type OutputBatch struct {
	RunID    string
	TaskDate time.Time
	Scope    Scope
	Path     string
	Records  []RegionStats
}

// BatchPath builds the storage path {date}/hii_stats_{scope}_{date}.
func BatchPath(taskDate time.Time, scope Scope) string {
	d := taskDate.Format(DateLayout)
	return fmt.Sprintf("%s/hii_stats_%s_%s", d, scope, d)
}

// CumulativeBatchPath builds the storage path for a flattened history batch.
func CumulativeBatchPath(taskDate time.Time, scope Scope) string {
	d := taskDate.Format(DateLayout)
	return fmt.Sprintf("%s/hii_stats_%s_cumulative_%s", d, scope, d)
}
