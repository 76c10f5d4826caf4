package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/sentinel-ops/sentinel/internal/jobs"
)

var defaultJobMetrics = jobmetrics.NewMetrics(nil)

// CacheInvalidator bumps the dashboard cache version.
type CacheInvalidator interface {
	Invalidate(ctx context.Context) error
}

// DashboardRefreshJob invalidates cached dashboard metrics.
type DashboardRefreshJob struct {
	Cache   CacheInvalidator
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// NewDashboardRefreshJob wires the refresh handler.
func NewDashboardRefreshJob(cache CacheInvalidator, logger *slog.Logger, metrics *jobmetrics.Metrics) *DashboardRefreshJob {
	return &DashboardRefreshJob{Cache: cache, Logger: logger, Metrics: metrics}
}

// Handle processes TaskDashboardRefresh.
func (j *DashboardRefreshJob) Handle(ctx context.Context, task *asynq.Task) error {
	if j == nil || j.Cache == nil {
		return errors.New("dashboard refresh: cache not configured")
	}
	var payload DashboardRefreshPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}

	tracker := j.metrics().Track(TaskDashboardRefresh)
	if err := j.Cache.Invalidate(ctx); err != nil {
		j.log().Error("bump dashboard cache", slog.String("reason", payload.Reason), slog.Any("error", err))
		return tracker.End(err)
	}
	j.log().Info("dashboard cache bumped", slog.String("reason", payload.Reason), slog.Any("bases", payload.Bases))
	return tracker.End(nil)
}

func (j *DashboardRefreshJob) metrics() *jobmetrics.Metrics {
	if j != nil && j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}

func (j *DashboardRefreshJob) log() *slog.Logger {
	if j != nil && j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskDashboardRefresh))
	}
	return slog.Default().With(slog.String("job", TaskDashboardRefresh))
}
