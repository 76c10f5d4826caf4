package jobs

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskDashboardRefresh bumps the dashboard cache version after stock or
	// workflow changes.
	TaskDashboardRefresh = "dashboard:refresh"
	// TaskIdempotencyCleanup purges expired Idempotency-Key rows.
	TaskIdempotencyCleanup = "idempotency:cleanup"
)

// refreshWindow collapses bursts of refresh requests into one task.
const refreshWindow = 5 * time.Second

// DashboardRefreshPayload records why a refresh was requested.
type DashboardRefreshPayload struct {
	Reason string   `json:"reason"`
	Bases  []string `json:"bases,omitempty"`
}

// NewDashboardRefreshTask constructs an Asynq task for a cache bump.
func NewDashboardRefreshTask(payload DashboardRefreshPayload) (*asynq.Task, error) {
	if payload.Reason == "" {
		payload.Reason = "manual"
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskDashboardRefresh, body, asynq.Queue(QueueDefault), asynq.MaxRetry(3)), nil
}

// IdempotencyCleanupPayload configures the retention window.
type IdempotencyCleanupPayload struct {
	RetentionHours int `json:"retention_hours"`
}

func (p IdempotencyCleanupPayload) retention() time.Duration {
	if p.RetentionHours <= 0 {
		return 72 * time.Hour
	}
	return time.Duration(p.RetentionHours) * time.Hour
}

// NewIdempotencyCleanupTask constructs the retention task.
func NewIdempotencyCleanupTask(retention time.Duration) (*asynq.Task, error) {
	payload := IdempotencyCleanupPayload{RetentionHours: int(retention / time.Hour)}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskIdempotencyCleanup, body, asynq.Queue(QueueDefault)), nil
}
