package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"yieldgotchi/internal/api"
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
	catalog, err := guardian.LoadCatalog(cfg.CatalogPath)
	if err != nil {
		logger.Error("load catalog failed", "err", err, "path", cfg.CatalogPath)
		os.Exit(1)
	}

	var store guardian.Store
	if cfg.Memory {
		logger.Warn("using in-memory store, state is lost on restart")
		store = guardian.NewMemoryStore()
	} else {
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
		store = guardian.NewPGStore(pool)
	}

	engine := guardian.NewEngine(cfg.Rules, catalog, nil)
	svc := guardian.NewService(store, engine, guardian.RealClock{}, logger)

	server := api.New(logger, svc)
	httpServer := &http.Server{
		Addr:              cfg.Addr,
		Handler:           server.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		_ = httpServer.Shutdown(shutdownCtx)
	}()

	logger.Info("yieldgotchi api listening", "addr", cfg.Addr, "memory_store", cfg.Memory, "catalog_items", len(catalog))
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("server failed", "err", err)
		os.Exit(1)
	}
}
