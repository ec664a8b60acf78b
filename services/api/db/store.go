package db

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Store wraps database access helpers.
type Store struct {
	pool *pgxpool.Pool
}

// New creates a Store backed by a pgx pool.
func New(ctx context.Context, databaseURL string) (*Store, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, err
	}
	return &Store{pool: pool}, nil
}

// Close releases the pool resources.
func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// Ping checks the database connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// RegionStat is one stored region row of the latest version of a batch.
type RegionStat struct {
	RegionID   string          `json:"region_id"`
	RegionName *string         `json:"region_name,omitempty"`
	Scope      string          `json:"scope"`
	TaskDate   time.Time       `json:"task_date"`
	SliceDate  *time.Time      `json:"slice_date,omitempty"`
	Mean       *float64        `json:"mean"`
	Min        *float64        `json:"min"`
	Max        *float64        `json:"max"`
	StdDev     *float64        `json:"std_dev"`
	SumPerArea *float64        `json:"sum_per_area"`
	Error      *string         `json:"error,omitempty"`
	Properties json.RawMessage `json:"properties,omitempty"`
	Path       string          `json:"path"`
	Version    int             `json:"version"`
	RunID      string          `json:"run_id"`
}

// latestVersion restricts z to the newest version of each (dataset, path).
const latestVersion = `
    z.version = (
        SELECT MAX(v.version) FROM hii.zonal_stats v
        WHERE v.dataset = z.dataset AND v.path = z.path
    )`

const regionStatColumns = `
    z.region_id, z.region_name, z.scope, z.task_date, z.slice_date,
    z.mean, z.min, z.max, z.std_dev, z.sum_per_area, z.error, z.properties,
    z.path, z.version, z.run_id`

const statsByDateSQL = `
    SELECT` + regionStatColumns + `
    FROM hii.zonal_stats z
    WHERE z.dataset = $1 AND z.task_date = $2 AND z.slice_date IS NULL
      AND ($3::text IS NULL OR z.scope = $3)
      AND` + latestVersion + `
    ORDER BY z.scope, z.region_id
`

// StatsByDate returns the latest daily rows of a task date, optionally
// restricted to one scope.
func (s *Store) StatsByDate(ctx context.Context, dataset string, taskDate time.Time, scope *string) ([]RegionStat, error) {
	rows, err := s.pool.Query(ctx, statsByDateSQL, dataset, taskDate, scope)
	if err != nil {
		return nil, err
	}
	return collectRegionStats(rows)
}

const latestTaskDateSQL = `
    SELECT MAX(task_date) FROM hii.zonal_stats
    WHERE dataset = $1 AND slice_date IS NULL
`

// LatestTaskDate returns the most recent task date with daily rows, or nil.
func (s *Store) LatestTaskDate(ctx context.Context, dataset string) (*time.Time, error) {
	var latest *time.Time
	err := s.pool.QueryRow(ctx, latestTaskDateSQL, dataset).Scan(&latest)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return latest, nil
}

func collectRegionStats(rows pgx.Rows) ([]RegionStat, error) {
	defer rows.Close()

	stats := make([]RegionStat, 0)
	for rows.Next() {
		var st RegionStat
		var props []byte
		if err := rows.Scan(
			&st.RegionID,
			&st.RegionName,
			&st.Scope,
			&st.TaskDate,
			&st.SliceDate,
			&st.Mean,
			&st.Min,
			&st.Max,
			&st.StdDev,
			&st.SumPerArea,
			&st.Error,
			&props,
			&st.Path,
			&st.Version,
			&st.RunID,
		); err != nil {
			return nil, err
		}
		if len(props) > 0 {
			st.Properties = json.RawMessage(props)
		}
		stats = append(stats, st)
	}
	return stats, rows.Err()
}
