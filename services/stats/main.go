package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/humanimpact/hii-stats/internal/logger"
	"github.com/humanimpact/hii-stats/internal/metrics"
	"github.com/humanimpact/hii-stats/services/stats/internal/config"
	"github.com/humanimpact/hii-stats/services/stats/internal/models"
	"github.com/humanimpact/hii-stats/services/stats/internal/pipeline"
)

func main() {
	os.Exit(execute(os.Args[1:], os.Stderr))
}

// execute runs the command and returns the process exit code. Errors are
// silenced by cobra, so they are reported here, including flag errors raised
// before the logger exists.
func execute(args []string, stderr io.Writer) int {
	cmd := newRootCmd()
	cmd.SetArgs(args)
	cmd.SetErr(stderr)
	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(stderr, "hii-stats: %v\n", err)
		return 1
	}
	return 0
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "hii-stats",
		Short: "Compute Human Impact Index zonal statistics for a task date",
		Long: `hii-stats selects the most recent HII raster slice on or before the task
date, reduces it over the global extent and every configured region
collection, and writes one batch per scope.

Example:
  hii-stats --taskdate 2024-06-01
  hii-stats -d 2024-06-01 --cumulative --overwrite`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd)
		},
	}

	flags := cmd.Flags()
	flags.StringP("taskdate", "d", "", "task date as YYYY-MM-DD (default today, UTC)")
	flags.Bool("overwrite", false, "replace existing batches instead of writing a new version")
	flags.Bool("cumulative", false, "reduce every slice up to the task date into one batch per scope")
	flags.Bool("dry-run", false, "compute statistics without writing them")
	flags.String("config", "", "optional YAML config file")
	return cmd
}

func run(cmd *cobra.Command) error {
	cfg, err := config.Load(cmd.Flags())
	if err != nil {
		logger.Init(logger.Config{Level: "info", Format: "json"}).Error("invalid configuration", zap.Error(err))
		return err
	}

	logger.Init(cfg.Log)
	defer logger.Sync() //nolint:errcheck

	runID := uuid.NewString()
	log := logger.WithRun(runID, cfg.TaskDate.Format(models.DateLayout))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// The task tags its own logger with the run, so deps get the base one.
	deps, cleanup, err := buildDeps(ctx, cfg, logger.Log)
	if err != nil {
		log.Error("failed to initialise dependencies", zap.Error(err))
		return err
	}
	defer cleanup()

	task, err := pipeline.NewTask(pipeline.TaskConfig{
		RunID:        runID,
		TaskDate:     cfg.TaskDate,
		Overwrite:    cfg.Overwrite,
		Cumulative:   cfg.Cumulative,
		DryRun:       cfg.DryRun,
		SeriesID:     cfg.SeriesID,
		MaxAgeDays:   cfg.MaxAgeDays,
		Scopes:       cfg.Scopes,
		Dataset:      cfg.Dataset,
		GlobalBounds: cfg.GlobalBounds,
	}, deps)
	if err != nil {
		log.Error("invalid task", zap.Error(err))
		return err
	}

	summary, err := task.Run(ctx)
	pushMetrics(cfg, log, err == nil)
	if err != nil {
		log.Error("stats run failed", zap.Error(err))
		return err
	}

	for _, b := range summary.Batches {
		log.Info("batch",
			zap.String("scope", string(b.Scope)),
			zap.String("path", b.Path),
			zap.String("location", b.Location),
			zap.Int("regions", b.Regions),
		)
	}
	return nil
}

func pushMetrics(cfg config.Config, log *zap.Logger, ok bool) {
	if cfg.PushgatewayURL == "" {
		return
	}
	if ok {
		metrics.RecordSuccess(time.Now())
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := metrics.Push(ctx, cfg.PushgatewayURL, "hii_stats"); err != nil {
		log.Warn("failed to push metrics", zap.Error(err))
	}
}
