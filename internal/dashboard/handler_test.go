package dashboard

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/sentinel-ops/sentinel/internal/rbac"
)

type recordingRefresher struct {
	reasons []string
}

func (r *recordingRefresher) EnqueueDashboardRefresh(_ context.Context, reason string) error {
	r.reasons = append(r.reasons, reason)
	return nil
}

func newTestRouter(t *testing.T, svc *Service, refresher Refresher) http.Handler {
	t.Helper()
	h := NewHandler(nil, svc, refresher, rbac.Middleware{})
	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var p rbac.Principal
			switch r.Header.Get("X-Test-User") {
			case "admin":
				p = adminP
			case "commander1":
				p = commanderP
			case "logistics1":
				p = logisticsP
			default:
				next.ServeHTTP(w, r)
				return
			}
			next.ServeHTTP(w, r.WithContext(rbac.ContextWithPrincipal(r.Context(), p)))
		})
	})
	r.Route("/api/dashboard", h.MountRoutes)
	return r
}

func get(h http.Handler, user, method, path string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	if user != "" {
		req.Header.Set("X-Test-User", user)
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func TestHandlerMetrics(t *testing.T) {
	repo := &fakeRepo{
		before: Totals{Purchases: 500},
		during: Totals{Purchases: 100, Expended: 30},
	}
	h := newTestRouter(t, newTestService(t, repo, nil), nil)

	rr := get(h, "", http.MethodGet, "/api/dashboard/metrics")
	require.Equal(t, http.StatusUnauthorized, rr.Code)

	rr = get(h, "admin", http.MethodGet, "/api/dashboard/metrics?from=2024-03-01&to=2024-03-10")
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	var m Metrics
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&m))
	require.Equal(t, 500, m.OpeningBalance)
	require.Equal(t, 570, m.ClosingBalance)
	require.Equal(t, 8, m.PendingRequests)

	rr = get(h, "admin", http.MethodGet, "/api/dashboard/metrics?from=bad")
	require.Equal(t, http.StatusBadRequest, rr.Code)

	rr = get(h, "logistics1", http.MethodGet, "/api/dashboard/metrics?equipmentType=medical")
	require.Equal(t, http.StatusForbidden, rr.Code)
}

func TestHandlerRefresh(t *testing.T) {
	repo := &fakeRepo{}
	refresher := &recordingRefresher{}
	h := newTestRouter(t, newTestService(t, repo, nil), refresher)

	rr := get(h, "commander1", http.MethodPost, "/api/dashboard/refresh")
	require.Equal(t, http.StatusForbidden, rr.Code)
	require.Empty(t, refresher.reasons)

	rr = get(h, "admin", http.MethodPost, "/api/dashboard/refresh")
	require.Equal(t, http.StatusAccepted, rr.Code)
	require.Equal(t, []string{"manual:admin"}, refresher.reasons)
}

func TestHandlerRefreshInlineWithoutQueue(t *testing.T) {
	repo := &fakeRepo{}
	h := newTestRouter(t, newTestService(t, repo, nil), nil)

	require.Equal(t, http.StatusOK, get(h, "admin", http.MethodGet, "/api/dashboard/metrics").Code)
	require.Equal(t, http.StatusOK, get(h, "admin", http.MethodGet, "/api/dashboard/metrics").Code)
	require.Equal(t, 2, repo.calls())

	require.Equal(t, http.StatusAccepted, get(h, "admin", http.MethodPost, "/api/dashboard/refresh").Code)
	require.Equal(t, http.StatusOK, get(h, "admin", http.MethodGet, "/api/dashboard/metrics").Code)
	require.Equal(t, 4, repo.calls())
}

func TestHandlerActivity(t *testing.T) {
	h := newTestRouter(t, newTestService(t, &fakeRepo{}, fakeAudit{}), nil)

	rr := get(h, "admin", http.MethodGet, "/api/dashboard/activity?limit=5")
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
}
