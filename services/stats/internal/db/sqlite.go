package db

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	_ "modernc.org/sqlite"

	"github.com/humanimpact/hii-stats/services/stats/internal/models"
)

// SQLite is a local stats store with the same layout as the PostgreSQL
// table.
type SQLite struct {
	*sql.DB
	mu sync.Mutex
}

// OpenSQLite opens (or creates) the database file and its schema.
func OpenSQLite(ctx context.Context, path string) (*SQLite, error) {
	dir := filepath.Dir(path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	sqlDB, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db := &SQLite{DB: sqlDB}
	for _, stmt := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		`CREATE TABLE IF NOT EXISTS zonal_stats (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			dataset TEXT NOT NULL,
			path TEXT NOT NULL,
			version INTEGER NOT NULL,
			run_id TEXT NOT NULL,
			task_date TEXT NOT NULL,
			scope TEXT NOT NULL,
			region_id TEXT NOT NULL,
			region_name TEXT,
			slice_date TEXT,
			mean REAL,
			min REAL,
			max REAL,
			std_dev REAL,
			sum_per_area REAL,
			error TEXT,
			properties TEXT,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
		"CREATE INDEX IF NOT EXISTS idx_zonal_stats_path ON zonal_stats(dataset, path, version)",
	} {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to execute %q: %w", stmt, err)
		}
	}
	return db, nil
}

// InsertBatch mirrors the PostgreSQL InsertBatch.
func (db *SQLite) InsertBatch(ctx context.Context, batch models.OutputBatch, dataset, path string, overwrite bool) (int, error) {
	rows, err := BuildStatRows(batch)
	if err != nil {
		return 0, err
	}

	db.mu.Lock()
	defer db.mu.Unlock()

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback() //nolint:errcheck

	version := 1
	if overwrite {
		if _, err := tx.ExecContext(ctx, `DELETE FROM zonal_stats WHERE dataset = ? AND path = ?`, dataset, path); err != nil {
			return 0, err
		}
	} else {
		if err := tx.QueryRowContext(ctx,
			`SELECT COALESCE(MAX(version), 0) + 1 FROM zonal_stats WHERE dataset = ? AND path = ?`,
			dataset, path).Scan(&version); err != nil {
			return 0, err
		}
	}

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO zonal_stats (dataset, path, version, run_id, task_date, scope, region_id, region_name, slice_date, mean, min, max, std_dev, sum_per_area, error, properties)
VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`)
	if err != nil {
		return 0, err
	}
	defer stmt.Close()

	taskDate := batch.TaskDate.Format(models.DateLayout)
	for _, r := range rows {
		var sliceDate *string
		if r.SliceDate != nil {
			s := r.SliceDate.Format(models.DateLayout)
			sliceDate = &s
		}
		if _, err := stmt.ExecContext(ctx, dataset, path, version, batch.RunID, taskDate, string(batch.Scope),
			r.RegionID, r.RegionName, sliceDate, r.Mean, r.Min, r.Max, r.StdDev, r.SumPerArea, r.Error, string(r.Properties)); err != nil {
			return 0, fmt.Errorf("insert stats row: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return version, nil
}
