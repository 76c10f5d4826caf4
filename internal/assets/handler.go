package assets

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/sentinel-ops/sentinel/internal/platform/httpx"
	"github.com/sentinel-ops/sentinel/internal/rbac"
	"github.com/sentinel-ops/sentinel/internal/shared"
	"github.com/sentinel-ops/sentinel/internal/visibility"
)

// Handler exposes movement records over JSON.
type Handler struct {
	logger  *slog.Logger
	service *Service
	rbac    rbac.Middleware
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service, rbac rbac.Middleware) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, rbac: rbac}
}

// MountBaseRoutes registers GET /bases.
func (h *Handler) MountBaseRoutes(r chi.Router) {
	r.Get("/", h.listBases)
}

// MountStockRoutes registers GET /stock.
func (h *Handler) MountStockRoutes(r chi.Router) {
	r.Get("/", h.listStock)
}

// MountPurchaseRoutes registers purchase routes.
func (h *Handler) MountPurchaseRoutes(r chi.Router) {
	r.Get("/", listHandler(h, h.service.ListPurchases))
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny(rbac.PermCreatePurchases))
		r.Post("/", createHandler(h, "create purchase", h.service.CreatePurchase))
		r.Post("/{id}/status", statusHandler(h, "purchase status", h.service.UpdatePurchaseStatus))
	})
}

// MountTransferRoutes registers transfer routes.
func (h *Handler) MountTransferRoutes(r chi.Router) {
	r.Get("/", listHandler(h, h.service.ListTransfers))
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny(rbac.PermCreateTransfers))
		r.Post("/", createHandler(h, "create transfer", h.service.CreateTransfer))
		r.Post("/{id}/status", statusHandler(h, "transfer status", h.service.UpdateTransferStatus))
	})
}

// MountAssignmentRoutes registers assignment routes.
func (h *Handler) MountAssignmentRoutes(r chi.Router) {
	r.Get("/", listHandler(h, h.service.ListAssignments))
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny(rbac.PermCreateAssignments))
		r.Post("/", createHandler(h, "create assignment", h.service.CreateAssignment))
		r.Post("/{id}/status", statusHandler(h, "assignment status", h.service.UpdateAssignmentStatus))
	})
}

// MountExpenditureRoutes registers expenditure routes.
func (h *Handler) MountExpenditureRoutes(r chi.Router) {
	r.Get("/", listHandler(h, h.service.ListExpenditures))
	r.With(h.rbac.RequireAny(rbac.PermCreateAssignments)).Post("/", createHandler(h, "create expenditure", h.service.CreateExpenditure))
}

type listResponse[T any] struct {
	Items      []T               `json:"items"`
	Pagination shared.Pagination `json:"pagination"`
}

func (h *Handler) listBases(w http.ResponseWriter, r *http.Request) {
	p, ok := rbac.PrincipalFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, httpx.ErrUnauthorized)
		return
	}
	bases, err := h.service.Bases(r.Context(), p)
	if err != nil {
		h.fail(w, "list bases", err)
		return
	}
	httpx.JSON(w, http.StatusOK, bases)
}

func (h *Handler) listStock(w http.ResponseWriter, r *http.Request) {
	p, ok := rbac.PrincipalFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, httpx.ErrUnauthorized)
		return
	}
	rows, err := h.service.Stock(r.Context(), p, visibility.QueryFromValues(r.URL.Query()))
	if err != nil {
		h.fail(w, "list stock", err)
		return
	}
	if rows == nil {
		rows = []StockBalance{}
	}
	httpx.JSON(w, http.StatusOK, rows)
}

// ListQueryFromRequest reads list filters and the date window from r.
func ListQueryFromRequest(r *http.Request) (ListQuery, error) {
	values := r.URL.Query()
	window, err := shared.ParseDateRange(values, time.Now())
	if err != nil {
		return ListQuery{}, err
	}
	return ListQuery{Query: visibility.QueryFromValues(values), Since: window.From, Until: window.To}, nil
}

func listHandler[T any](h *Handler, list func(context.Context, rbac.Principal, ListQuery) ([]T, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, ok := rbac.PrincipalFromContext(r.Context())
		if !ok {
			httpx.RespondError(w, httpx.ErrUnauthorized)
			return
		}
		q, err := ListQueryFromRequest(r)
		if err != nil {
			httpx.RespondError(w, err)
			return
		}
		items, err := list(r.Context(), p, q)
		if err != nil {
			h.fail(w, "list movements", err)
			return
		}
		page, perPage := shared.PaginationFromQuery(r.URL.Query())
		slice, meta := shared.Paginate(items, page, perPage)
		if slice == nil {
			slice = []T{}
		}
		httpx.JSON(w, http.StatusOK, listResponse[T]{Items: slice, Pagination: meta})
	}
}

func createHandler[In, Out any](h *Handler, op string, create func(context.Context, rbac.Principal, In, string) (Out, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, ok := rbac.PrincipalFromContext(r.Context())
		if !ok {
			httpx.RespondError(w, httpx.ErrUnauthorized)
			return
		}
		var in In
		if err := httpx.DecodeJSON(r, &in); err != nil {
			httpx.RespondError(w, err)
			return
		}
		rec, err := create(r.Context(), p, in, strings.TrimSpace(r.Header.Get("Idempotency-Key")))
		if err != nil {
			h.fail(w, op, err)
			return
		}
		httpx.JSON(w, http.StatusCreated, rec)
	}
}

func statusHandler[Out any](h *Handler, op string, update func(context.Context, rbac.Principal, uuid.UUID, StatusInput) (Out, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, ok := rbac.PrincipalFromContext(r.Context())
		if !ok {
			httpx.RespondError(w, httpx.ErrUnauthorized)
			return
		}
		id, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			httpx.RespondError(w, ErrNotFound)
			return
		}
		var in StatusInput
		if err := httpx.DecodeJSON(r, &in); err != nil {
			httpx.RespondError(w, err)
			return
		}
		rec, err := update(r.Context(), p, id, in)
		if err != nil {
			h.fail(w, op, err)
			return
		}
		httpx.JSON(w, http.StatusOK, rec)
	}
}

func (h *Handler) fail(w http.ResponseWriter, op string, err error) {
	var ve *shared.ValidationError
	switch {
	case errors.As(err, &ve), errors.Is(err, httpx.ErrNotFound), errors.Is(err, httpx.ErrForbidden),
		errors.Is(err, httpx.ErrConflict), errors.Is(err, httpx.ErrDuplicate):
		h.logger.Debug(op, slog.Any("error", err))
	default:
		h.logger.Error(op, slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}
