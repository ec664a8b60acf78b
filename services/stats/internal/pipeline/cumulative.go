package pipeline

import (
	"context"

	"go.uber.org/zap"

	"github.com/humanimpact/hii-stats/services/stats/internal/models"
	"github.com/humanimpact/hii-stats/services/stats/internal/raster"
)

// runCumulative reduces every slice up to the task date, oldest first, and
// writes one flattened batch per scope with each row tagged by slice date.
func (t *Task) runCumulative(ctx context.Context, series *raster.Series, cache *regionCache, summary *RunSummary) error {
	history := make(map[models.Scope][]models.RegionStats, len(t.cfg.Scopes))

	for entry := range series.All(t.cfg.TaskDate) {
		slice, area, err := loadSlice(ctx, entry)
		if err != nil {
			return err
		}
		sliceDate := slice.Date

		for _, scope := range t.cfg.Scopes {
			regs, err := cache.get(ctx, scope)
			if err != nil {
				return err
			}
			records, err := t.orch.Run(ctx, scope, regs, slice, area)
			if err != nil {
				return err
			}
			for i := range records {
				records[i].SliceDate = &sliceDate
			}
			history[scope] = append(history[scope], records...)
		}

		summary.Slices++
		t.log.Debug("cumulative slice reduced", zap.String("slice_date", sliceDate.Format(models.DateLayout)))
	}

	for _, scope := range t.cfg.Scopes {
		batch := models.OutputBatch{
			RunID:    t.cfg.RunID,
			TaskDate: t.cfg.TaskDate,
			Scope:    scope,
			Path:     models.CumulativeBatchPath(t.cfg.TaskDate, scope),
			Records:  history[scope],
		}
		bs, err := t.write(ctx, batch)
		if err != nil {
			return err
		}
		summary.Batches = append(summary.Batches, bs)
	}
	return nil
}
