package sink

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/humanimpact/hii-stats/services/stats/internal/apperr"
	"github.com/humanimpact/hii-stats/services/stats/internal/db"
	"github.com/humanimpact/hii-stats/services/stats/internal/models"
)

// PostgresSink stores batches in hii.zonal_stats.
type PostgresSink struct {
	pool *pgxpool.Pool
}

// NewPostgresSink wraps a pool whose schema is already in place.
func NewPostgresSink(pool *pgxpool.Pool) *PostgresSink {
	return &PostgresSink{pool: pool}
}

// Name implements Sink.
func (s *PostgresSink) Name() string { return "postgres" }

// Write implements Sink.
func (s *PostgresSink) Write(ctx context.Context, batch models.OutputBatch, dataset, path string, overwrite bool) (string, error) {
	version, err := db.InsertBatch(ctx, s.pool, batch, dataset, path, overwrite)
	if err != nil {
		return "", apperr.SinkWrite(path, err)
	}
	return tableLocation("postgres", dataset, path, version), nil
}

// SQLiteSink stores batches in a local SQLite file.
type SQLiteSink struct {
	db *db.SQLite
}

// NewSQLiteSink wraps an open database.
func NewSQLiteSink(database *db.SQLite) *SQLiteSink {
	return &SQLiteSink{db: database}
}

// Name implements Sink.
func (s *SQLiteSink) Name() string { return "sqlite" }

// Write implements Sink.
func (s *SQLiteSink) Write(ctx context.Context, batch models.OutputBatch, dataset, path string, overwrite bool) (string, error) {
	version, err := s.db.InsertBatch(ctx, batch, dataset, path, overwrite)
	if err != nil {
		return "", apperr.SinkWrite(path, err)
	}
	return tableLocation("sqlite", dataset, path, version), nil
}

func tableLocation(kind, dataset, path string, version int) string {
	return fmt.Sprintf("%s:%s/%s@v%d", kind, dataset, path, version)
}
