package auth

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/sentinel-ops/sentinel/internal/platform/httpx"
	"github.com/sentinel-ops/sentinel/internal/rbac"
	"github.com/sentinel-ops/sentinel/internal/shared"
)

// Handler wires HTTP endpoints for authentication flows.
type Handler struct {
	logger  *slog.Logger
	service *Service
	authn   *Authenticator
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, service *Service, authn *Authenticator) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, authn: authn}
}

// MountRoutes registers the public auth routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/login", h.handleLogin)
	r.With(h.authn.Optional).Post("/register", h.handleRegister)
}

// MountAccountRoutes registers routes for the authenticated account. The
// router must already run Authenticate.
func (h *Handler) MountAccountRoutes(r chi.Router) {
	r.Get("/", h.handleMe)
}

// MountUserRoutes registers the user administration routes.
func (h *Handler) MountUserRoutes(r chi.Router) {
	guard := rbac.Middleware{Logger: h.logger}.RequireAny(rbac.PermManageUsers)
	r.With(guard).Get("/", h.handleListUsers)
	r.With(guard).Post("/{id}/activate", h.handleSetActive(true))
	r.With(guard).Post("/{id}/deactivate", h.handleSetActive(false))
}

type meResponse struct {
	User        User              `json:"user"`
	Permissions []rbac.Permission `json:"permissions"`
	RoleName    string            `json:"roleName"`
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	var in LoginInput
	if err := httpx.DecodeJSON(r, &in); err != nil {
		httpx.RespondError(w, err)
		return
	}
	res, err := h.service.Login(r.Context(), in)
	if err != nil {
		if errors.Is(err, shared.ErrInvalidCredentials) {
			httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "Invalid credentials")
			return
		}
		h.logger.Error("login", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, res)
}

func (h *Handler) handleRegister(w http.ResponseWriter, r *http.Request) {
	var in RegisterInput
	if err := httpx.DecodeJSON(r, &in); err != nil {
		httpx.RespondError(w, err)
		return
	}
	var actor *rbac.Principal
	if p, ok := rbac.PrincipalFromContext(r.Context()); ok {
		actor = &p
	}
	user, err := h.service.Register(r.Context(), actor, in)
	if err != nil {
		h.logger.Debug("register", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, user)
}

func (h *Handler) handleMe(w http.ResponseWriter, r *http.Request) {
	p, ok := rbac.PrincipalFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, httpx.ErrUnauthorized)
		return
	}
	user, err := h.service.Me(r.Context(), p)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, meResponse{User: *user, Permissions: p.Granted(), RoleName: p.Role.DisplayName()})
}

func (h *Handler) handleListUsers(w http.ResponseWriter, r *http.Request) {
	p, _ := rbac.PrincipalFromContext(r.Context())
	users, err := h.service.ListUsers(r.Context(), p)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if users == nil {
		users = []User{}
	}
	httpx.JSON(w, http.StatusOK, users)
}

func (h *Handler) handleSetActive(active bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, _ := rbac.PrincipalFromContext(r.Context())
		id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
		if err != nil {
			httpx.RespondError(w, shared.ErrNotFound)
			return
		}
		if err := h.service.SetActive(r.Context(), p, id, active); err != nil {
			h.logger.Debug("set user active", slog.Int64("id", id), slog.Any("error", err))
			httpx.RespondError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}
