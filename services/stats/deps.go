package main

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/humanimpact/hii-stats/services/stats/internal/blob"
	"github.com/humanimpact/hii-stats/services/stats/internal/compute"
	"github.com/humanimpact/hii-stats/services/stats/internal/config"
	"github.com/humanimpact/hii-stats/services/stats/internal/db"
	"github.com/humanimpact/hii-stats/services/stats/internal/pipeline"
	"github.com/humanimpact/hii-stats/services/stats/internal/raster"
	"github.com/humanimpact/hii-stats/services/stats/internal/regions"
	"github.com/humanimpact/hii-stats/services/stats/internal/sink"
	"github.com/humanimpact/hii-stats/services/stats/internal/zonal"
)

// buildDeps wires the configured sources, reducer and sink. cleanup
// releases whatever was opened.
func buildDeps(ctx context.Context, cfg config.Config, log *zap.Logger) (pipeline.Deps, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}
	fail := func(err error) (pipeline.Deps, func(), error) {
		cleanup()
		return pipeline.Deps{}, func() {}, err
	}

	var store blob.Store
	if cfg.NeedsBlob() {
		s, err := blob.New(ctx, cfg.MinIO)
		if err != nil {
			return fail(err)
		}
		store = s
	}

	deps := pipeline.Deps{
		Backend: cfg.Reducer.Backend,
		Workers: cfg.Workers,
		Log:     log,
	}

	switch cfg.Raster.Source {
	case config.SourceBlob:
		deps.Catalog = raster.BlobCatalog{Store: store, Prefix: cfg.Raster.Prefix}
	default:
		deps.Catalog = raster.DirCatalog{Root: cfg.Raster.Dir}
	}

	opts := regions.Options{IDProperty: cfg.Regions.IDProperty, NameProperty: cfg.Regions.NameProperty}
	switch cfg.Regions.Source {
	case config.SourceBlob:
		deps.Regions = regions.NewBlobSource(store, cfg.Regions.CountriesPath, cfg.Regions.StatesPath, opts)
	default:
		deps.Regions = regions.NewFileSource(cfg.Regions.CountriesPath, cfg.Regions.StatesPath, opts)
	}

	switch cfg.Reducer.Backend {
	case config.BackendRemote:
		deps.Reducer = compute.New(compute.Config{
			BaseURL:     cfg.Reducer.URL,
			Timeout:     cfg.Reducer.Timeout,
			MaxAttempts: cfg.Reducer.MaxAttempts,
			Backoff:     cfg.Reducer.Backoff,
			MaxPixels:   cfg.Reducer.MaxPixels,
		}, log)
	default:
		deps.Reducer = zonal.NewEngine(cfg.Reducer.MaxPixels)
	}

	format, err := sink.ParseFormat(cfg.Sink.Format)
	if err != nil {
		return fail(err)
	}
	switch cfg.Sink.Kind {
	case config.SinkBlob:
		deps.Sink = sink.NewBlobSink(store, cfg.Sink.Prefix, format)
	case config.SinkPostgres:
		pool, err := pgxpool.New(ctx, cfg.Sink.DatabaseURL)
		if err != nil {
			return fail(err)
		}
		closers = append(closers, pool.Close)
		if err := db.EnsureSchema(ctx, pool); err != nil {
			return fail(fmt.Errorf("ensure schema: %w", err))
		}
		deps.Sink = sink.NewPostgresSink(pool)
	case config.SinkSQLite:
		sqlite, err := db.OpenSQLite(ctx, cfg.Sink.SQLitePath)
		if err != nil {
			return fail(err)
		}
		closers = append(closers, func() { _ = sqlite.Close() })
		deps.Sink = sink.NewSQLiteSink(sqlite)
	default:
		deps.Sink = sink.NewFileSink(cfg.Sink.OutputDir, format)
	}

	return deps, cleanup, nil
}
