package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/odyssey-erp/siteledger/internal/jobs"
	"github.com/odyssey-erp/siteledger/internal/ledger"
)

// DashboardSource builds the cached overview.
type DashboardSource interface {
	Dashboard(ctx context.Context, activityLimit int) (ledger.Dashboard, error)
}

// DashboardWarmupJob primes the dashboard cache so the first request after a write is fast.
type DashboardWarmupJob struct {
	Source  DashboardSource
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// NewDashboardWarmupJob wires dependencies for the warmup handler.
func NewDashboardWarmupJob(source DashboardSource, logger *slog.Logger, metrics *jobmetrics.Metrics) *DashboardWarmupJob {
	return &DashboardWarmupJob{Source: source, Logger: logger, Metrics: metrics}
}

// Handle processes dashboard warmup tasks.
func (j *DashboardWarmupJob) Handle(ctx context.Context, t *asynq.Task) (resultErr error) {
	if j == nil || j.Source == nil {
		return errors.New("dashboard warmup: handler not configured")
	}
	var payload DashboardWarmupPayload
	if len(t.Payload()) > 0 {
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
	}
	if payload.ActivityLimit <= 0 {
		payload.ActivityLimit = ledger.DefaultRecentActivityLimit
	}

	tracker := j.metrics().Track(TaskDashboardWarmup)
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	logger := j.logger().With(slog.Int("activity_limit", payload.ActivityLimit))
	start := time.Now()
	dash, err := j.Source.Dashboard(ctx, payload.ActivityLimit)
	if err != nil {
		logger.Error("dashboard warmup failed", slog.Any("error", err))
		return err
	}
	logger.Info("dashboard warmed",
		slog.String("total_payable", dash.TotalPayable.String()),
		slog.String("total_receivable", dash.TotalReceivable.String()),
		slog.Duration("duration", time.Since(start)),
	)
	return nil
}

func (j *DashboardWarmupJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskDashboardWarmup))
	}
	return slog.Default().With(slog.String("job", TaskDashboardWarmup))
}

func (j *DashboardWarmupJob) metrics() *jobmetrics.Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}
