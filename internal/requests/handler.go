package requests

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/sentinel-ops/sentinel/internal/platform/httpx"
	"github.com/sentinel-ops/sentinel/internal/rbac"
	"github.com/sentinel-ops/sentinel/internal/shared"
	"github.com/sentinel-ops/sentinel/internal/visibility"
)

// Handler exposes the request workflow over JSON.
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

// MountRoutes registers request routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.list)
	r.Get("/{id}", h.get)
	r.Get("/{id}/history", h.history)
	r.With(h.rbac.RequireAny(
		rbac.PermRequestPurchases,
		rbac.PermRequestTransfers,
		rbac.PermCreatePurchases,
		rbac.PermCreateTransfers,
		rbac.PermCreateAssignments,
	)).Post("/", h.submit)
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny(rbac.PermApproveRequests))
		r.Post("/{id}/review", h.transition(ActionReview))
		r.Post("/{id}/approve", h.transition(ActionApprove))
		r.Post("/{id}/reject", h.transition(ActionReject))
	})
	r.With(h.rbac.RequireAll(rbac.PermManageWorkflow)).Post("/{id}/cancel", h.transition(ActionCancel))
}

type requestView struct {
	Request
	AllowedActions []Action `json:"allowedActions"`
}

type listResponse struct {
	Items      []requestView     `json:"items"`
	Pagination shared.Pagination `json:"pagination"`
}

type transitionBody struct {
	Comment string `json:"comment"`
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	p, ok := rbac.PrincipalFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, httpx.ErrUnauthorized)
		return
	}
	q := visibility.QueryFromValues(r.URL.Query())
	items, err := h.service.List(r.Context(), p, q)
	if err != nil {
		h.fail(w, "list requests", err)
		return
	}
	page, perPage := shared.PaginationFromQuery(r.URL.Query())
	slice, meta := shared.Paginate(items, page, perPage)
	views := make([]requestView, 0, len(slice))
	for _, req := range slice {
		views = append(views, requestView{Request: req, AllowedActions: nonNil(AllowedActions(p, req))})
	}
	httpx.JSON(w, http.StatusOK, listResponse{Items: views, Pagination: meta})
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	p, id, ok := h.principalAndID(w, r)
	if !ok {
		return
	}
	req, err := h.service.Get(r.Context(), p, id)
	if err != nil {
		h.fail(w, "get request", err)
		return
	}
	httpx.JSON(w, http.StatusOK, requestView{Request: req, AllowedActions: nonNil(AllowedActions(p, req))})
}

func (h *Handler) history(w http.ResponseWriter, r *http.Request) {
	p, id, ok := h.principalAndID(w, r)
	if !ok {
		return
	}
	trail, err := h.service.History(r.Context(), p, id)
	if err != nil {
		h.fail(w, "request history", err)
		return
	}
	if trail == nil {
		trail = []Transition{}
	}
	httpx.JSON(w, http.StatusOK, trail)
}

func (h *Handler) submit(w http.ResponseWriter, r *http.Request) {
	p, ok := rbac.PrincipalFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, httpx.ErrUnauthorized)
		return
	}
	var in SubmitInput
	if err := httpx.DecodeJSON(r, &in); err != nil {
		httpx.RespondError(w, err)
		return
	}
	req, err := h.service.Submit(r.Context(), p, in, strings.TrimSpace(r.Header.Get("Idempotency-Key")))
	if err != nil {
		h.fail(w, "submit request", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, requestView{Request: req, AllowedActions: nonNil(AllowedActions(p, req))})
}

func (h *Handler) transition(action Action) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, id, ok := h.principalAndID(w, r)
		if !ok {
			return
		}
		var body transitionBody
		if err := httpx.DecodeJSON(r, &body); err != nil && !errors.Is(err, io.EOF) {
			httpx.RespondError(w, err)
			return
		}
		req, err := h.service.Transition(r.Context(), p, id, action, strings.TrimSpace(body.Comment))
		if err != nil {
			h.fail(w, "request "+string(action), err)
			return
		}
		httpx.JSON(w, http.StatusOK, requestView{Request: req, AllowedActions: nonNil(AllowedActions(p, req))})
	}
}

func (h *Handler) principalAndID(w http.ResponseWriter, r *http.Request) (rbac.Principal, uuid.UUID, bool) {
	p, ok := rbac.PrincipalFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, httpx.ErrUnauthorized)
		return rbac.Principal{}, uuid.Nil, false
	}
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.RespondError(w, ErrNotFound)
		return rbac.Principal{}, uuid.Nil, false
	}
	return p, id, true
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

func nonNil(actions []Action) []Action {
	if actions == nil {
		return []Action{}
	}
	return actions
}
