package dashboard

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/sentinel-ops/sentinel/internal/platform/httpx"
	"github.com/sentinel-ops/sentinel/internal/rbac"
	"github.com/sentinel-ops/sentinel/internal/shared"
)

// Refresher schedules a cache invalidation in the background.
type Refresher interface {
	EnqueueDashboardRefresh(ctx context.Context, reason string) error
}

// Handler exposes dashboard endpoints.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	refresher Refresher
	rbac      rbac.Middleware
}

// NewHandler builds Handler instance. refresher may be nil, in which case
// refresh requests bump the cache inline.
func NewHandler(logger *slog.Logger, service *Service, refresher Refresher, rbac rbac.Middleware) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, refresher: refresher, rbac: rbac}
}

// MountRoutes registers dashboard routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/metrics", h.metrics)
	r.Get("/activity", h.activity)
	r.With(h.rbac.RequireAll(rbac.PermManageWorkflow)).Post("/refresh", h.refresh)
}

func (h *Handler) metrics(w http.ResponseWriter, r *http.Request) {
	p, ok := rbac.PrincipalFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, httpx.ErrUnauthorized)
		return
	}
	values := r.URL.Query()
	window, err := shared.ParseDateRange(values, time.Now())
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	m, err := h.service.Metrics(r.Context(), p, Query{
		BaseID:        values.Get("baseId"),
		EquipmentType: values.Get("equipmentType"),
		From:          window.From,
		To:            window.To,
	})
	if err != nil {
		if !errors.Is(err, httpx.ErrForbidden) {
			h.logger.Error("dashboard metrics", slog.Any("error", err))
		}
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, m)
}

func (h *Handler) activity(w http.ResponseWriter, r *http.Request) {
	p, ok := rbac.PrincipalFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, httpx.ErrUnauthorized)
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	rows, err := h.service.Activity(r.Context(), p, limit)
	if err != nil {
		h.logger.Error("dashboard activity", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, rows)
}

func (h *Handler) refresh(w http.ResponseWriter, r *http.Request) {
	p, _ := rbac.PrincipalFromContext(r.Context())
	var err error
	if h.refresher != nil {
		err = h.refresher.EnqueueDashboardRefresh(r.Context(), "manual:"+p.Username)
	} else {
		err = h.service.Invalidate(r.Context())
	}
	if err != nil {
		h.logger.Error("dashboard refresh", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}
