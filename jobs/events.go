package jobs

import (
	"context"
	"log/slog"

	"github.com/sentinel-ops/sentinel/internal/requests"
	"github.com/sentinel-ops/sentinel/internal/visibility"
)

// Events turns request and movement notifications into dashboard refresh
// tasks. It satisfies both requests.EventPort and assets.EventPort.
type Events struct {
	client *Client
	logger *slog.Logger
}

// NewEvents wires the notification adapter.
func NewEvents(client *Client, logger *slog.Logger) *Events {
	if logger == nil {
		logger = slog.Default()
	}
	return &Events{client: client, logger: logger}
}

// RequestChanged enqueues a refresh so request counts stay current.
func (e *Events) RequestChanged(ctx context.Context, req requests.Request) error {
	if e == nil || e.client == nil {
		return nil
	}
	e.logger.Debug("request changed", slog.String("request_id", req.ID.String()), slog.String("status", string(req.Status)))
	return e.client.enqueueRefresh(ctx, DashboardRefreshPayload{
		Reason: "request:" + string(req.Status),
		Bases:  []string{req.BaseID},
	})
}

// MovementRecorded enqueues a refresh after stock moved.
func (e *Events) MovementRecorded(ctx context.Context, kind visibility.Kind, bases []string) error {
	if e == nil || e.client == nil {
		return nil
	}
	return e.client.enqueueRefresh(ctx, DashboardRefreshPayload{Reason: "movement:" + string(kind), Bases: bases})
}
