package auth

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/sentinel-ops/sentinel/internal/platform/httpx"
	"github.com/sentinel-ops/sentinel/internal/rbac"
)

// AccountChecker reports whether the account behind a token may still act.
type AccountChecker interface {
	Active(ctx context.Context, id int64) (bool, error)
}

// Authenticator verifies bearer tokens on incoming requests.
type Authenticator struct {
	tokens   *TokenIssuer
	accounts AccountChecker
	logger   *slog.Logger
}

// AuthenticatorOption customises an Authenticator.
type AuthenticatorOption func(*Authenticator)

// WithAccounts rejects tokens whose account has been deactivated since issue.
func WithAccounts(accounts AccountChecker) AuthenticatorOption {
	return func(a *Authenticator) {
		a.accounts = accounts
	}
}

// NewAuthenticator constructs an Authenticator.
func NewAuthenticator(tokens *TokenIssuer, logger *slog.Logger, opts ...AuthenticatorOption) *Authenticator {
	if logger == nil {
		logger = slog.Default()
	}
	a := &Authenticator{tokens: tokens, logger: logger}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// bearerToken extracts the token from an "Authorization: Bearer <t>" header.
func bearerToken(r *http.Request) string {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}

// Authenticate requires a valid bearer token. A missing token yields 401,
// an invalid or expired one, or one for a deactivated account, yields 403.
func (a *Authenticator) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p, status := a.principal(r)
		switch status {
		case http.StatusUnauthorized:
			httpx.Problem(w, status, "Unauthorized", "missing bearer token")
			return
		case http.StatusForbidden:
			httpx.Problem(w, status, "Forbidden", "invalid or expired token")
			return
		case http.StatusInternalServerError:
			httpx.Problem(w, status, "Internal Error", "")
			return
		}
		next.ServeHTTP(w, r.WithContext(rbac.ContextWithPrincipal(r.Context(), p)))
	})
}

// Optional attaches the principal when a valid token is present and passes
// anonymous requests through untouched.
func (a *Authenticator) Optional(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if p, status := a.principal(r); status == http.StatusOK {
			r = r.WithContext(rbac.ContextWithPrincipal(r.Context(), p))
		}
		next.ServeHTTP(w, r)
	})
}

// CheckRole authenticates the request and then requires one of roles.
func (a *Authenticator) CheckRole(roles ...rbac.Role) func(http.Handler) http.Handler {
	guard := rbac.Middleware{Logger: a.logger}.RequireRole(roles...)
	return func(next http.Handler) http.Handler {
		return a.Authenticate(guard(next))
	}
}

func (a *Authenticator) principal(r *http.Request) (rbac.Principal, int) {
	raw := bearerToken(r)
	if raw == "" {
		return rbac.Principal{}, http.StatusUnauthorized
	}
	claims, err := a.tokens.Parse(raw)
	if err != nil {
		a.logger.Debug("reject token", slog.String("path", r.URL.Path), slog.Any("error", err))
		return rbac.Principal{}, http.StatusForbidden
	}
	p := claims.Principal()
	if a.accounts != nil {
		active, err := a.accounts.Active(r.Context(), p.ID)
		if err != nil {
			a.logger.Error("account lookup", slog.Int64("user_id", p.ID), slog.Any("error", err))
			return rbac.Principal{}, http.StatusInternalServerError
		}
		if !active {
			a.logger.Debug("reject token for inactive account", slog.String("user", p.Username))
			return rbac.Principal{}, http.StatusForbidden
		}
	}
	return p, http.StatusOK
}
