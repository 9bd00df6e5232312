package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/odyssey-erp/odyssey-rea/internal/jobs"
	"github.com/odyssey-erp/odyssey-rea/internal/observation"
)

// ProjectionService is the engine surface used by projection jobs.
type ProjectionService interface {
	Rebuild(ctx context.Context, resourceID string) (observation.EconomicResource, error)
	Verify(ctx context.Context, resourceID string) (observation.VerifyReport, error)
	VerifyAll(ctx context.Context, concurrency int) ([]observation.VerifyReport, error)
}

// ProjectionJob handles rebuild and verification tasks.
type ProjectionJob struct {
	Service ProjectionService
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// NewProjectionJob initialises the projection handlers.
func NewProjectionJob(service ProjectionService, logger *slog.Logger, metrics *jobmetrics.Metrics) *ProjectionJob {
	return &ProjectionJob{Service: service, Logger: logger, Metrics: metrics}
}

// Handlers lists the task handlers to register on a Worker.
func (j *ProjectionJob) Handlers() []TaskHandler {
	return []TaskHandler{
		{Type: TaskProjectionRebuild, Handler: j.HandleRebuild},
		{Type: TaskProjectionVerify, Handler: j.HandleVerify},
	}
}

// HandleRebuild refolds one resource. Unknown resources are not retried.
func (j *ProjectionJob) HandleRebuild(ctx context.Context, t *asynq.Task) (resultErr error) {
	if j == nil || j.Service == nil {
		return errors.New("projection rebuild: handler not configured")
	}
	var payload RebuildPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil || payload.ResourceID == "" {
		return asynq.SkipRetry
	}

	tracker := j.Metrics.Track(TaskProjectionRebuild)
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	logger := j.logger().With(slog.String("resource_id", payload.ResourceID))
	start := time.Now()
	resource, err := j.Service.Rebuild(ctx, payload.ResourceID)
	if errors.Is(err, observation.ErrNotFound) {
		logger.Warn("rebuild skipped, resource has no history")
		return fmt.Errorf("rebuild %s: %v: %w", payload.ResourceID, err, asynq.SkipRetry)
	}
	if err != nil {
		logger.Error("rebuild failed", slog.Any("error", err))
		return err
	}
	logger.Info("projection rebuilt",
		slog.Any("accounting", resource.AccountingQuantity),
		slog.Any("onhand", resource.OnhandQuantity),
		slog.Duration("duration", time.Since(start)),
	)
	return nil
}

// HandleVerify verifies one resource or, with an empty payload resource, the
// whole store.
func (j *ProjectionJob) HandleVerify(ctx context.Context, t *asynq.Task) (resultErr error) {
	if j == nil || j.Service == nil {
		return errors.New("projection verify: handler not configured")
	}
	var payload VerifyPayload
	if len(t.Payload()) > 0 {
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
	}

	tracker := j.Metrics.Track(TaskProjectionVerify)
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	start := time.Now()
	var reports []observation.VerifyReport
	if payload.ResourceID != "" {
		report, err := j.Service.Verify(ctx, payload.ResourceID)
		if errors.Is(err, observation.ErrNotFound) {
			return fmt.Errorf("verify %s: %v: %w", payload.ResourceID, err, asynq.SkipRetry)
		}
		if err != nil {
			return err
		}
		reports = append(reports, report)
	} else {
		all, err := j.Service.VerifyAll(ctx, payload.Concurrency)
		if err != nil {
			j.logger().Error("verification failed", slog.Any("error", err))
			return err
		}
		reports = all
	}

	var clean, repaired, tampered int
	for _, report := range reports {
		switch {
		case len(report.TamperedEvents) > 0:
			tampered++
			j.logger().Error("tampered events detected",
				slog.String("resource_id", report.ResourceID),
				slog.Any("event_ids", report.TamperedEvents),
			)
		case report.Repaired:
			repaired++
			j.logger().Warn("projection drift repaired", slog.String("resource_id", report.ResourceID))
		default:
			clean++
		}
	}
	j.Metrics.AddVerified(jobmetrics.ResultClean, clean)
	j.Metrics.AddVerified(jobmetrics.ResultRepaired, repaired)
	j.Metrics.AddVerified(jobmetrics.ResultTampered, tampered)

	j.logger().Info("completed projection verification",
		slog.Int("resources", len(reports)),
		slog.Int("repaired", repaired),
		slog.Int("tampered", tampered),
		slog.Duration("duration", time.Since(start)),
	)
	return nil
}

func (j *ProjectionJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger
	}
	return slog.Default()
}
