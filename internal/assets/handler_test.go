package assets

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/sentinel-ops/sentinel/internal/rbac"
)

func newTestRouter(t *testing.T) (http.Handler, *memoryRepo) {
	t.Helper()
	svc, repo, _ := newTestService(t)
	h := NewHandler(nil, svc, rbac.Middleware{})
	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			users := map[string]rbac.Principal{"admin": adminP, "commander1": commanderP, "logistics1": logisticsP}
			p, ok := users[r.Header.Get("X-Test-User")]
			if !ok {
				next.ServeHTTP(w, r)
				return
			}
			next.ServeHTTP(w, r.WithContext(rbac.ContextWithPrincipal(r.Context(), p)))
		})
	})
	r.Route("/api/bases", h.MountBaseRoutes)
	r.Route("/api/stock", h.MountStockRoutes)
	r.Route("/api/purchases", h.MountPurchaseRoutes)
	r.Route("/api/transfers", h.MountTransferRoutes)
	r.Route("/api/assignments", h.MountAssignmentRoutes)
	r.Route("/api/expenditures", h.MountExpenditureRoutes)
	return r, repo
}

func do(t *testing.T, h http.Handler, user, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if user != "" {
		req.Header.Set("X-Test-User", user)
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func TestHandlerPurchaseFlow(t *testing.T) {
	h, repo := newTestRouter(t)

	body := map[string]any{
		"equipmentType": "weapons", "itemName": "M4A1 Carbine", "quantity": 4,
		"unitCost": 1200, "supplier": "Defense Contractor Inc.", "baseId": "base-alpha",
	}
	rr := do(t, h, "logistics1", http.MethodPost, "/api/purchases/", body)
	require.Equal(t, http.StatusForbidden, rr.Code)

	rr = do(t, h, "commander1", http.MethodPost, "/api/purchases/", body)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	var created Purchase
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&created))
	require.Equal(t, 4800.0, created.TotalCost)

	for _, status := range []string{"approved", "delivered"} {
		rr = do(t, h, "commander1", http.MethodPost, "/api/purchases/"+created.ID.String()+"/status", map[string]string{"status": status})
		require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	}
	require.Equal(t, 4, repo.available("base-alpha", "M4A1 Carbine"))

	rr = do(t, h, "logistics1", http.MethodGet, "/api/purchases/?equipmentType=weapons", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var page struct {
		Items []Purchase `json:"items"`
	}
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&page))
	require.Len(t, page.Items, 1)

	rr = do(t, h, "commander1", http.MethodGet, "/api/stock/", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	require.Contains(t, rr.Body.String(), "M4A1 Carbine")
}

func TestHandlerValidationMessage(t *testing.T) {
	h, _ := newTestRouter(t)

	rr := do(t, h, "admin", http.MethodPost, "/api/transfers/", map[string]any{
		"equipmentType": "vehicles", "itemName": "HMMWV", "quantity": 1, "fromBaseId": "base-alpha", "toBaseId": "base-alpha",
	})
	require.Equal(t, http.StatusBadRequest, rr.Code)
	require.Contains(t, rr.Body.String(), "Source and destination bases must be different.")

	rr = do(t, h, "admin", http.MethodPost, "/api/expenditures/", map[string]any{"equipmentType": "ammunition"})
	require.Equal(t, http.StatusBadRequest, rr.Code)
	require.Contains(t, rr.Body.String(), "Please fill in all required fields.")

	rr = do(t, h, "admin", http.MethodGet, "/api/purchases/?range=2w", nil)
	require.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestHandlerScopes(t *testing.T) {
	h, _ := newTestRouter(t)

	rr := do(t, h, "", http.MethodGet, "/api/bases/", nil)
	require.Equal(t, http.StatusUnauthorized, rr.Code)

	rr = do(t, h, "logistics1", http.MethodGet, "/api/assignments/", nil)
	require.Equal(t, http.StatusForbidden, rr.Code)

	rr = do(t, h, "logistics1", http.MethodGet, "/api/bases/", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var bases []Base
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&bases))
	require.Len(t, bases, 3)

	rr = do(t, h, "admin", http.MethodPost, "/api/assignments/not-a-uuid/status", map[string]string{"status": "returned"})
	require.Equal(t, http.StatusNotFound, rr.Code)
}
