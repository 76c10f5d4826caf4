package rbac

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/sentinel-ops/sentinel/internal/platform/httpx"
)

// PermissionsHandler exposes the caller's effective permissions.
type PermissionsHandler struct{}

// NewPermissionsHandler builds PermissionsHandler instance.
func NewPermissionsHandler() *PermissionsHandler {
	return &PermissionsHandler{}
}

// MountRoutes registers permission routes.
func (h *PermissionsHandler) MountRoutes(r chi.Router) {
	r.Get("/", h.mine)
	r.Get("/roles", h.listRoles)
}

type permissionsResponse struct {
	Role        Role                `json:"role"`
	RoleName    string              `json:"roleName"`
	BaseID      string              `json:"baseId,omitempty"`
	Permissions map[Permission]bool `json:"permissions"`
}

func (h *PermissionsHandler) mine(w http.ResponseWriter, r *http.Request) {
	p, ok := PrincipalFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, httpx.ErrUnauthorized)
		return
	}
	httpx.JSON(w, http.StatusOK, permissionsResponse{
		Role:        p.Role,
		RoleName:    p.Role.DisplayName(),
		BaseID:      p.BaseID,
		Permissions: Matrix(p.Role),
	})
}

func (h *PermissionsHandler) listRoles(w http.ResponseWriter, r *http.Request) {
	out := make([]permissionsResponse, 0, len(Roles()))
	for _, role := range Roles() {
		out = append(out, permissionsResponse{Role: role, RoleName: role.DisplayName(), Permissions: Matrix(role)})
	}
	httpx.JSON(w, http.StatusOK, out)
}
