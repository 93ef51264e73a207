package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"yieldgotchi/internal/config"
	"yieldgotchi/internal/db"
	"yieldgotchi/internal/guardian"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.LoadAPIFromEnv()
	if err != nil {
		slog.Error("load config", "err", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	if cfg.Memory {
		logger.Error("worker needs DATABASE_URL, the in-memory store is private to the api process")
		os.Exit(1)
	}
	catalog, err := guardian.LoadCatalog(cfg.CatalogPath)
	if err != nil {
		logger.Error("load catalog failed", "err", err, "path", cfg.CatalogPath)
		os.Exit(1)
	}

	pool, err := db.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error("db connect failed", "err", err)
		os.Exit(1)
	}
	defer pool.Close()
	if err := db.Migrate(ctx, pool); err != nil {
		logger.Error("db migrate failed", "err", err)
		os.Exit(1)
	}

	engine := guardian.NewEngine(cfg.Rules, catalog, nil)
	svc := guardian.NewService(guardian.NewPGStore(pool), engine, guardian.RealClock{}, logger)

	runOnce := strings.EqualFold(strings.TrimSpace(os.Getenv("YG_WORKER_RUN_ONCE")), "true")
	if runOnce {
		changed, err := svc.RefreshAll(ctx)
		if err != nil {
			logger.Error("refresh failed", "err", err)
			os.Exit(1)
		}
		logger.Info("worker run-once completed", "changed", changed)
		return
	}

	ticker := time.NewTicker(cfg.RefreshEvery)
	defer ticker.Stop()

	logger.Info("worker started", "refresh_every", cfg.RefreshEvery.String())
	for {
		select {
		case <-ctx.Done():
			logger.Info("worker shutdown")
			return
		case <-ticker.C:
			started := time.Now()
			changed, err := svc.RefreshAll(ctx)
			if err != nil {
				logger.Error("refresh pass failed", "err", err)
				continue
			}
			logger.Info("refresh pass complete", "changed", changed, "took", time.Since(started).String())
		}
	}
}
