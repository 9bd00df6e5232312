package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/odyssey-erp/odyssey-rea/internal/app"
	jobmetrics "github.com/odyssey-erp/odyssey-rea/internal/jobs"
	"github.com/odyssey-erp/odyssey-rea/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping worker startup")
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
		logger.Error("worker stopped", slog.Any("error", err))
		stop()
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *app.Config, logger *slog.Logger) error {
	if !cfg.RedisEnabled() {
		return errors.New("REDIS_ADDR is required")
	}
	redisOpts, err := jobs.RedisOpt(cfg.RedisAddr)
	if err != nil {
		return fmt.Errorf("redis address: %w", err)
	}

	// The worker repairs snapshots itself, so it does not schedule rebuilds.
	engine, err := app.NewEngine(ctx, app.EngineParams{Config: cfg, Logger: logger})
	if err != nil {
		return fmt.Errorf("engine: %w", err)
	}
	defer func() {
		if err := engine.Close(); err != nil {
			logger.Warn("close engine", slog.Any("error", err))
		}
	}()

	cron, err := verifySchedule(cfg)
	if err != nil {
		return err
	}
	projections := jobs.NewProjectionJob(engine.Service, logger, jobmetrics.NewMetrics(prometheus.DefaultRegisterer))
	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts:   redisOpts,
		Logger:      logger,
		Concurrency: cfg.WorkerConcurrency,
		Handlers:    projections.Handlers(),
		Cron:        cron,
	})
	if err != nil {
		return err
	}
	logger.Info("worker started",
		slog.Int("concurrency", cfg.WorkerConcurrency),
		slog.String("verify_cron", cfg.VerifyCron),
	)
	return worker.Run(ctx)
}

// verifySchedule returns the periodic full verification, or nothing when
// VERIFY_CRON is empty.
func verifySchedule(cfg *app.Config) ([]jobs.CronRegistration, error) {
	if cfg.VerifyCron == "" {
		return nil, nil
	}
	task, err := jobs.NewVerifyTask("", cfg.VerifyConcurrency)
	if err != nil {
		return nil, fmt.Errorf("verify task: %w", err)
	}
	return []jobs.CronRegistration{{
		Spec:    cfg.VerifyCron,
		Task:    task,
		Options: []asynq.Option{asynq.MaxRetry(3)},
	}}, nil
}
