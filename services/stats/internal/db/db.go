package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/humanimpact/hii-stats/services/stats/internal/models"
)

const schemaSQL = `
CREATE SCHEMA IF NOT EXISTS hii;
CREATE TABLE IF NOT EXISTS hii.zonal_stats (
    id            BIGSERIAL PRIMARY KEY,
    dataset       TEXT NOT NULL,
    path          TEXT NOT NULL,
    version       INTEGER NOT NULL,
    run_id        TEXT NOT NULL,
    task_date     DATE NOT NULL,
    scope         TEXT NOT NULL,
    region_id     TEXT NOT NULL,
    region_name   TEXT,
    slice_date    DATE,
    mean          DOUBLE PRECISION,
    min           DOUBLE PRECISION,
    max           DOUBLE PRECISION,
    std_dev       DOUBLE PRECISION,
    sum_per_area  DOUBLE PRECISION,
    error         TEXT,
    properties    JSONB,
    created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS zonal_stats_dataset_path_idx ON hii.zonal_stats (dataset, path, version);
CREATE INDEX IF NOT EXISTS zonal_stats_region_idx ON hii.zonal_stats (scope, region_id, task_date);`

// EnsureSchema creates the stats table if it does not exist.
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	_, err := pool.Exec(ctx, schemaSQL)
	return err
}

// InsertBatch stores a batch as a new version of (dataset, path) and
// returns the version written. With overwrite every previous version is
// removed and the batch becomes version 1.
func InsertBatch(ctx context.Context, pool *pgxpool.Pool, batch models.OutputBatch, dataset, path string, overwrite bool) (int, error) {
	rows, err := BuildStatRows(batch)
	if err != nil {
		return 0, err
	}

	tx, err := pool.Begin(ctx)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	// Serialize writers of the same path so version numbers stay unique.
	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1::text || '/' || $2::text))`, dataset, path); err != nil {
		return 0, err
	}

	version := 1
	if overwrite {
		if _, err := tx.Exec(ctx, `DELETE FROM hii.zonal_stats WHERE dataset = $1 AND path = $2`, dataset, path); err != nil {
			return 0, err
		}
	} else {
		if err := tx.QueryRow(ctx,
			`SELECT COALESCE(MAX(version), 0) + 1 FROM hii.zonal_stats WHERE dataset = $1 AND path = $2`,
			dataset, path).Scan(&version); err != nil {
			return 0, err
		}
	}

	batchQ := &pgx.Batch{}
	query := `INSERT INTO hii.zonal_stats (dataset, path, version, run_id, task_date, scope, region_id, region_name, slice_date, mean, min, max, std_dev, sum_per_area, error, properties)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16)`

	for _, r := range rows {
		batchQ.Queue(query, dataset, path, version, batch.RunID, batch.TaskDate, string(batch.Scope),
			r.RegionID, r.RegionName, r.SliceDate, r.Mean, r.Min, r.Max, r.StdDev, r.SumPerArea, r.Error, r.Properties)
	}

	res := tx.SendBatch(ctx, batchQ)
	for range rows {
		if _, err := res.Exec(); err != nil {
			_ = res.Close()
			return 0, fmt.Errorf("insert stats row: %w", err)
		}
	}
	if err := res.Close(); err != nil {
		return 0, err
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, err
	}
	return version, nil
}
