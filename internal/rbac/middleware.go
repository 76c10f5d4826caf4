package rbac

import (
	"log/slog"
	"net/http"

	"github.com/sentinel-ops/sentinel/internal/platform/httpx"
)

// Middleware wires RBAC authorization helpers for HTTP handlers. It expects
// the auth middleware to have stored a Principal in the request context.
type Middleware struct {
	Logger *slog.Logger
}

// RequireAny ensures the current principal holds at least one of perms.
func (m Middleware) RequireAny(perms ...Permission) func(http.Handler) http.Handler {
	return m.guard("require any", func(p Principal) bool {
		return hasAnyPermission(p.Role, perms)
	})
}

// RequireAll ensures the current principal holds every permission in perms.
func (m Middleware) RequireAll(perms ...Permission) func(http.Handler) http.Handler {
	return m.guard("require all", func(p Principal) bool {
		return hasAllPermissions(p.Role, perms)
	})
}

// RequireRole ensures the current principal has one of roles.
func (m Middleware) RequireRole(roles ...Role) func(http.Handler) http.Handler {
	return m.guard("require role", func(p Principal) bool {
		for _, r := range roles {
			if p.Role == r {
				return true
			}
		}
		return false
	})
}

func (m Middleware) guard(name string, allow func(Principal) bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, ok := PrincipalFromContext(r.Context())
			if !ok {
				httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "authentication required")
				return
			}
			if !allow(p) {
				if m.Logger != nil {
					m.Logger.Warn("rbac "+name+" denied",
						slog.String("user", p.Username),
						slog.String("role", string(p.Role)),
						slog.String("path", r.URL.Path))
				}
				httpx.Problem(w, http.StatusForbidden, "Forbidden", "insufficient permissions")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func hasAnyPermission(role Role, required []Permission) bool {
	if len(required) == 0 {
		return true
	}
	for _, p := range required {
		if HasPermission(role, p) {
			return true
		}
	}
	return false
}

func hasAllPermissions(role Role, required []Permission) bool {
	for _, p := range required {
		if !HasPermission(role, p) {
			return false
		}
	}
	return true
}
