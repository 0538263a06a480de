// STAC catalog server entry point
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rkm/stac-catalog/internal/api"
	"github.com/rkm/stac-catalog/internal/config"
	"github.com/rkm/stac-catalog/internal/engine"
	"github.com/rkm/stac-catalog/internal/metrics"
	"github.com/rkm/stac-catalog/internal/stac"
	"github.com/rkm/stac-catalog/internal/store"
	"github.com/rkm/stac-catalog/internal/store/memory"
	"github.com/rkm/stac-catalog/internal/store/redis"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logger := setupLogger(cfg.Logging.Level, cfg.Logging.Format)

	logger.Info("starting catalog server",
		"version", cfg.Catalog.Version,
		"driver", cfg.Store.Driver,
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
	)

	metrics.Register()

	// Queryable registry: defaults plus any configured extensions.
	registry := config.DefaultQueryables()
	if cfg.Search.QueryablesPath != "" {
		registry, err = config.LoadQueryables(cfg.Search.QueryablesPath)
		if err != nil {
			return fmt.Errorf("loading queryables: %w", err)
		}
		logger.Info("loaded queryables", "path", cfg.Search.QueryablesPath, "count", registry.Count())
	}

	st, err := openStore(cfg, registry, logger)
	if err != nil {
		return fmt.Errorf("opening %s store: %w", cfg.Store.Driver, err)
	}
	defer st.Close()

	cursorStore := stac.NewMemoryCursorStore(cfg.Search.CursorTTL, 5*time.Minute)
	defer cursorStore.Stop()

	eng := engine.New(engine.Options{
		Store:        st,
		Registry:     registry,
		Cursors:      cursorStore,
		DefaultLimit: cfg.Search.DefaultLimit,
		MaxLimit:     cfg.Search.MaxLimit,
		Logger:       logger,
	})

	handlers := api.NewHandlers(cfg, eng, logger)
	router := api.NewRouter(handlers, logger)

	server := &http.Server{
		Addr:         cfg.Server.Address(),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  120 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("server listening", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErr:
		return fmt.Errorf("server error: %w", err)
	case sig := <-quit:
		logger.Info("received shutdown signal", "signal", sig)
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	logger.Info("shutting down server", "timeout", cfg.Server.ShutdownTimeout)
	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown error: %w", err)
	}

	logger.Info("server stopped")
	return nil
}

func openStore(cfg *config.Config, registry *config.QueryableRegistry, logger *slog.Logger) (store.Store, error) {
	switch cfg.Store.Driver {
	case "redis":
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		st, err := redis.Open(ctx, redis.Options{
			Addrs:    cfg.Redis.Addresses,
			Password: cfg.Redis.Password,
			Prefix:   cfg.Redis.KeyPrefix,
			Registry: registry,
			Logger:   logger,
		})
		if err != nil {
			return nil, err
		}
		if err := st.WaitForReady(ctx, 10*time.Second); err != nil {
			st.Close()
			return nil, err
		}
		return st, nil
	default:
		return memory.Open(memory.Options{
			SnapshotPath:     cfg.Snapshot.Path,
			SnapshotInterval: cfg.Snapshot.Interval,
			Logger:           logger,
		})
	}
}

func setupLogger(level, format string) *slog.Logger {
	var logLevel slog.Level
	switch level {
	case "debug":
		logLevel = slog.LevelDebug
	case "info":
		logLevel = slog.LevelInfo
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: logLevel}

	var handler slog.Handler
	if format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	return slog.New(handler)
}
