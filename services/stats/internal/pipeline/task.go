package pipeline

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/paulmach/orb"
	"go.uber.org/zap"

	"github.com/humanimpact/hii-stats/internal/logger"
	"github.com/humanimpact/hii-stats/internal/metrics"
	"github.com/humanimpact/hii-stats/services/stats/internal/apperr"
	"github.com/humanimpact/hii-stats/services/stats/internal/models"
	"github.com/humanimpact/hii-stats/services/stats/internal/raster"
	"github.com/humanimpact/hii-stats/services/stats/internal/regions"
	"github.com/humanimpact/hii-stats/services/stats/internal/sink"
	"github.com/humanimpact/hii-stats/services/stats/internal/zonal"
)

// TaskConfig is the immutable description of one run.
type TaskConfig struct {
	RunID        string
	TaskDate     time.Time
	Overwrite    bool
	Cumulative   bool
	DryRun       bool
	SeriesID     string
	MaxAgeDays   *int
	Scopes       []models.Scope
	Dataset      string
	GlobalBounds orb.Bound
}

// Deps are the collaborators of a task.
type Deps struct {
	Catalog raster.Catalog
	Regions regions.Source
	Reducer zonal.Reducer
	// Backend names the reducer in metrics.
	Backend string
	Workers int
	Sink    sink.Sink
	Log     *zap.Logger
}

// BatchSummary describes one written (or, in dry-run mode, skipped) batch.
type BatchSummary struct {
	Scope    models.Scope
	Path     string
	Location string
	Regions  int
	NoData   int
	Failed   int
}

// RunSummary is what a task reports back when it succeeds.
type RunSummary struct {
	RunID     string
	TaskDate  time.Time
	SliceDate time.Time
	Slices    int
	Batches   []BatchSummary
}

// Task computes and stores the statistics of one task date.
type Task struct {
	cfg  TaskConfig
	deps Deps
	orch *Orchestrator
	log  *zap.Logger
}

// NewTask validates cfg and deps and fixes the run identity.
func NewTask(cfg TaskConfig, deps Deps) (*Task, error) {
	if deps.Catalog == nil || deps.Regions == nil || deps.Reducer == nil || deps.Sink == nil {
		return nil, errors.New("pipeline: catalog, regions, reducer and sink are required")
	}
	if len(cfg.Scopes) == 0 {
		return nil, apperr.Config("no scopes enabled", nil)
	}
	if cfg.Dataset == "" {
		cfg.Dataset = models.DatasetName
	}
	if cfg.RunID == "" {
		cfg.RunID = uuid.NewString()
	}
	cfg.TaskDate = raster.Day(cfg.TaskDate)
	cfg.Scopes = slices.Clone(cfg.Scopes)
	if cfg.MaxAgeDays != nil {
		n := *cfg.MaxAgeDays
		cfg.MaxAgeDays = &n
	}

	log := deps.Log
	if log == nil {
		log = zap.NewNop()
	}
	log = log.With(zap.String("run_id", cfg.RunID), zap.String("task_date", cfg.TaskDate.Format(models.DateLayout)))

	return &Task{
		cfg:  cfg,
		deps: deps,
		orch: NewOrchestrator(deps.Reducer, deps.Backend, deps.Workers, log),
		log:  log,
	}, nil
}

// RunID identifies this run in logs and stored rows.
func (t *Task) RunID() string { return t.cfg.RunID }

// CheckInputs lists the series and selects the slice for the task date. It
// fails with a stale input error when no slice is recent enough, before any
// region is loaded or reduced.
func (t *Task) CheckInputs(ctx context.Context) (*raster.Series, raster.Entry, error) {
	series, err := raster.LoadSeries(ctx, t.deps.Catalog, t.cfg.SeriesID)
	if err != nil {
		return nil, raster.Entry{}, err
	}
	entry, ok := series.Select(t.cfg.TaskDate, t.cfg.MaxAgeDays)
	if !ok {
		return nil, raster.Entry{}, apperr.StaleInput(t.staleMessage(series))
	}
	return series, entry, nil
}

func (t *Task) staleMessage(series *raster.Series) string {
	date := t.cfg.TaskDate.Format(models.DateLayout)
	latest, ok := series.Select(t.cfg.TaskDate, nil)
	if !ok {
		return fmt.Sprintf("series %s has no slice on or before %s", series.ID(), date)
	}
	return fmt.Sprintf("series %s: latest slice %s is %d days older than %s, limit is %d",
		series.ID(), latest.Date.Format(models.DateLayout), raster.AgeDays(latest.Date, t.cfg.TaskDate), date, *t.cfg.MaxAgeDays)
}

// Run executes the task.
func (t *Task) Run(ctx context.Context) (RunSummary, error) {
	summary := RunSummary{RunID: t.cfg.RunID, TaskDate: t.cfg.TaskDate}

	series, entry, err := t.CheckInputs(ctx)
	if err != nil {
		return summary, err
	}
	summary.SliceDate = entry.Date
	t.log.Info("selected slice",
		zap.String("slice_date", entry.Date.Format(models.DateLayout)),
		zap.String("key", entry.Key),
		zap.Bool("cumulative", t.cfg.Cumulative),
		zap.Bool("dry_run", t.cfg.DryRun),
	)

	cache := newRegionCache(t.deps.Regions, t.cfg.GlobalBounds)
	if t.cfg.Cumulative {
		err = t.runCumulative(ctx, series, cache, &summary)
	} else {
		err = t.runDaily(ctx, entry, cache, &summary)
	}
	if err != nil {
		return summary, err
	}

	t.log.Info("run complete", zap.Int("slices", summary.Slices), zap.Int("batches", len(summary.Batches)))
	return summary, nil
}

func (t *Task) runDaily(ctx context.Context, entry raster.Entry, cache *regionCache, summary *RunSummary) error {
	slice, area, err := loadSlice(ctx, entry)
	if err != nil {
		return err
	}
	summary.Slices = 1

	for _, scope := range t.cfg.Scopes {
		regs, err := cache.get(ctx, scope)
		if err != nil {
			return err
		}
		records, err := t.orch.Run(ctx, scope, regs, slice, area)
		if err != nil {
			return err
		}
		batch := models.OutputBatch{
			RunID:    t.cfg.RunID,
			TaskDate: t.cfg.TaskDate,
			Scope:    scope,
			Path:     models.BatchPath(t.cfg.TaskDate, scope),
			Records:  records,
		}
		bs, err := t.write(ctx, batch)
		if err != nil {
			return err
		}
		summary.Batches = append(summary.Batches, bs)
	}
	return nil
}

func loadSlice(ctx context.Context, entry raster.Entry) (*raster.Slice, *raster.AreaGrid, error) {
	slice, err := entry.Load(ctx)
	if err != nil {
		return nil, nil, err
	}
	area, err := raster.NewAreaGrid(slice.Grid)
	if err != nil {
		return nil, nil, fmt.Errorf("area layer for %s: %w", slice.ID, err)
	}
	return slice, area, nil
}

// write hands a batch to the sink, or only logs it in dry-run mode.
func (t *Task) write(ctx context.Context, batch models.OutputBatch) (BatchSummary, error) {
	bs := BatchSummary{Scope: batch.Scope, Path: batch.Path, Regions: len(batch.Records)}
	for _, rec := range batch.Records {
		switch {
		case rec.Error != "":
			bs.Failed++
		case rec.Stats.Absent():
			bs.NoData++
		}
	}

	log := logger.WithScope(t.log, string(batch.Scope))
	if t.cfg.DryRun {
		log.Info("dry-run: skipping sink write",
			zap.String("path", batch.Path),
			zap.Int("regions", bs.Regions),
			zap.Int("no_data", bs.NoData),
			zap.Int("failed", bs.Failed),
		)
		return bs, nil
	}

	location, err := t.deps.Sink.Write(ctx, batch, t.cfg.Dataset, batch.Path, t.cfg.Overwrite)
	if err != nil {
		return bs, err
	}
	bs.Location = location
	metrics.RecordBatch(string(batch.Scope), t.deps.Sink.Name())
	log.Info("batch written",
		zap.String("location", location),
		zap.Int("regions", bs.Regions),
		zap.Int("no_data", bs.NoData),
		zap.Int("failed", bs.Failed),
	)
	return bs, nil
}

// regionCache loads each scope's regions at most once per run.
type regionCache struct {
	source regions.Source
	bounds orb.Bound
	loaded map[models.Scope][]models.Region
}

func newRegionCache(source regions.Source, bounds orb.Bound) *regionCache {
	return &regionCache{source: source, bounds: bounds, loaded: map[models.Scope][]models.Region{}}
}

func (c *regionCache) get(ctx context.Context, scope models.Scope) ([]models.Region, error) {
	if regs, ok := c.loaded[scope]; ok {
		return regs, nil
	}

	var (
		regs []models.Region
		err  error
	)
	switch scope {
	case models.ScopeGlobal:
		regs = []models.Region{regions.Global(c.bounds)}
	case models.ScopeCountry:
		regs, err = c.source.Countries(ctx)
	case models.ScopeState:
		regs, err = c.source.States(ctx)
	default:
		err = fmt.Errorf("unknown scope %q", scope)
	}
	if err != nil {
		return nil, fmt.Errorf("load %s regions: %w", scope, err)
	}
	c.loaded[scope] = regs
	return regs, nil
}
