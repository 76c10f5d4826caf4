package rbac

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
}

func serveAs(h http.Handler, p *Principal) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if p != nil {
		req = req.WithContext(ContextWithPrincipal(req.Context(), *p))
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func TestRequireAny(t *testing.T) {
	m := Middleware{}
	h := m.RequireAny(PermCreatePurchases, PermRequestPurchases)(okHandler())

	require.Equal(t, http.StatusUnauthorized, serveAs(h, nil).Code)
	require.Equal(t, http.StatusNoContent, serveAs(h, &Principal{Role: RoleBaseCommander}).Code)
	require.Equal(t, http.StatusNoContent, serveAs(h, &Principal{Role: RoleLogisticsOfficer}).Code)
	require.Equal(t, http.StatusForbidden, serveAs(h, &Principal{Role: Role("ghost")}).Code)
}

func TestRequireAll(t *testing.T) {
	m := Middleware{}
	h := m.RequireAll(PermViewReports, PermExportData)(okHandler())

	require.Equal(t, http.StatusNoContent, serveAs(h, &Principal{Role: RoleAdmin}).Code)
	require.Equal(t, http.StatusForbidden, serveAs(h, &Principal{Role: RoleBaseCommander}).Code)
}

func TestRequireRole(t *testing.T) {
	m := Middleware{}
	h := m.RequireRole(RoleAdmin, RoleBaseCommander)(okHandler())

	require.Equal(t, http.StatusNoContent, serveAs(h, &Principal{Role: RoleBaseCommander}).Code)
	require.Equal(t, http.StatusForbidden, serveAs(h, &Principal{Role: RoleLogisticsOfficer}).Code)
}

func TestPermissionsHandlerMine(t *testing.T) {
	r := chi.NewRouter()
	r.Route("/permissions", NewPermissionsHandler().MountRoutes)

	rr := serveAs(r, nil)
	require.Equal(t, http.StatusNotFound, rr.Code)

	req := httptest.NewRequest(http.MethodGet, "/permissions/", nil)
	req = req.WithContext(ContextWithPrincipal(req.Context(), Principal{Role: RoleBaseCommander, BaseID: "base-alpha"}))
	rr = httptest.NewRecorder()
	r.ServeHTTP(rr, req)
	require.Equal(t, http.StatusOK, rr.Code)

	var body permissionsResponse
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&body))
	require.Equal(t, RoleBaseCommander, body.Role)
	require.Equal(t, "base-alpha", body.BaseID)
	require.True(t, body.Permissions[PermApproveRequests])
	require.False(t, body.Permissions[PermExportData])
}
