package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/humanimpact/hii-stats/internal/logger"
	"github.com/humanimpact/hii-stats/services/api/config"
	"github.com/humanimpact/hii-stats/services/api/db"
	httpserver "github.com/humanimpact/hii-stats/services/api/http"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logger.Init(logger.Config{Level: "info"}).Fatal("config error", zap.Error(err))
	}

	log := logger.Init(cfg.Log)
	defer logger.Sync() //nolint:errcheck

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	store, err := db.New(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatal("db connection error", zap.Error(err))
	}
	defer store.Close()

	srv := httpserver.New(cfg, store, log)
	log.Info("REST API listening", zap.String("addr", cfg.ListenAddr()))

	if err := srv.Run(ctx); err != nil {
		log.Error("server error", zap.Error(err))
		os.Exit(1)
	}
}
