package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"golang.org/x/sync/errgroup"

	"github.com/odyssey-erp/odyssey-rea/internal/app"
	"github.com/odyssey-erp/odyssey-rea/internal/observability"
	"github.com/odyssey-erp/odyssey-rea/internal/observation"
	observationhttp "github.com/odyssey-erp/odyssey-rea/internal/observation/http"
	"github.com/odyssey-erp/odyssey-rea/jobs"
)

const shutdownGrace = 10 * time.Second

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping server startup")
		return
	}

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}
	logger := app.NewLogger(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("rea-server stopped", slog.Any("error", err))
		stop()
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *app.Config, logger *slog.Logger) error {
	metrics := observability.NewMetrics()

	var (
		rebuilds  observation.RebuildScheduler
		inspector *asynq.Inspector
	)
	if cfg.RedisEnabled() {
		redisOpts, err := jobs.RedisOpt(cfg.RedisAddr)
		if err != nil {
			return fmt.Errorf("redis address: %w", err)
		}
		client, err := jobs.NewClient(redisOpts)
		if err != nil {
			return fmt.Errorf("job client: %w", err)
		}
		defer closeQuietly(logger, "job client", client.Close)
		inspector = asynq.NewInspector(redisOpts)
		defer closeQuietly(logger, "queue inspector", inspector.Close)
		rebuilds = client
	}

	engine, err := app.NewEngine(ctx, app.EngineParams{
		Config:   cfg,
		Logger:   logger,
		Metrics:  metrics,
		Rebuilds: rebuilds,
	})
	if err != nil {
		return fmt.Errorf("engine: %w", err)
	}
	defer closeQuietly(logger, "engine", engine.Close)

	server := &http.Server{
		Addr: cfg.AppAddr,
		Handler: app.NewRouter(app.RouterParams{
			Logger:       logger,
			Config:       cfg,
			EventHandler: observationhttp.NewHandler(logger, engine.Service, cfg.EventsRateLimit),
			JobHandler:   jobs.NewHandler(inspector, logger),
			Metrics:      metrics,
		}),
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	group, gctx := errgroup.WithContext(ctx)
	group.Go(func() error {
		logger.Info("listening", slog.String("addr", cfg.AppAddr), slog.String("store", cfg.EventStore))
		if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	group.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})
	return group.Wait()
}

func closeQuietly(logger *slog.Logger, name string, closeFn func() error) {
	if err := closeFn(); err != nil {
		logger.Warn("close "+name, slog.Any("error", err))
	}
}
