// Package pipeline drives a stats run: input checks, per-scope region
// fan-out and hand-off to the sink.
package pipeline

import (
	"context"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/humanimpact/hii-stats/internal/metrics"
	"github.com/humanimpact/hii-stats/services/stats/internal/apperr"
	"github.com/humanimpact/hii-stats/services/stats/internal/models"
	"github.com/humanimpact/hii-stats/services/stats/internal/raster"
	"github.com/humanimpact/hii-stats/services/stats/internal/stats"
	"github.com/humanimpact/hii-stats/services/stats/internal/zonal"
)

// Orchestrator reduces every region of a scope against one slice.
type Orchestrator struct {
	reducer zonal.Reducer
	backend string
	workers int
	log     *zap.Logger
}

// NewOrchestrator returns an orchestrator running at most workers
// reductions at once. backend labels latency metrics.
func NewOrchestrator(reducer zonal.Reducer, backend string, workers int, log *zap.Logger) *Orchestrator {
	if workers < 1 {
		workers = 1
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Orchestrator{reducer: reducer, backend: backend, workers: workers, log: log}
}

// Run reduces regions and returns one record per region, sorted by region
// ID. Region-local failures become all-absent records carrying the error
// text; in the global scope every failure is fatal.
func (o *Orchestrator) Run(ctx context.Context, scope models.Scope, regions []models.Region, slice *raster.Slice, area *raster.AreaGrid) ([]models.RegionStats, error) {
	results := make([]models.RegionStats, len(regions))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.workers)

	for i, region := range regions {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			rec, err := o.reduceOne(gctx, scope, region, slice, area)
			if err != nil {
				return err
			}
			results[i] = rec
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	sort.SliceStable(results, func(i, j int) bool { return results[i].Region.ID < results[j].Region.ID })
	return results, nil
}

func (o *Orchestrator) reduceOne(ctx context.Context, scope models.Scope, region models.Region, slice *raster.Slice, area *raster.AreaGrid) (models.RegionStats, error) {
	start := time.Now()
	res, err := o.reducer.Reduce(ctx, slice, area, region)
	metrics.RecordReduce(o.backend, time.Since(start))

	if err != nil {
		metrics.RecordRegion(string(scope), metrics.OutcomeFailed)
		if scope == models.ScopeGlobal || !apperr.IsRegionLocal(err) {
			return models.RegionStats{}, fmt.Errorf("%s region %s: %w", scope, region.ID, err)
		}
		o.log.Warn("region reduction failed",
			zap.String("scope", string(scope)),
			zap.String("region_id", region.ID),
			zap.String("code", apperr.Code(err)),
			zap.Error(err),
		)
		return models.RegionStats{Region: region, Error: err.Error()}, nil
	}

	rec := stats.BuildStatRecord(res)
	if rec.Absent() {
		metrics.RecordRegion(string(scope), metrics.OutcomeNoData)
		o.log.Debug("region has no data", zap.String("scope", string(scope)), zap.String("region_id", region.ID))
	} else {
		metrics.RecordRegion(string(scope), metrics.OutcomeOK)
		o.log.Debug("region reduced",
			zap.String("scope", string(scope)),
			zap.String("region_id", region.ID),
			zap.String("mean", stats.ValuePtrString(rec.Mean)),
			zap.String("sum_per_area", stats.ValuePtrString(rec.SumPerArea)),
		)
	}
	return models.RegionStats{Region: region, Stats: rec}, nil
}
