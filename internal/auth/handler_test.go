package auth_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/sentinel-ops/sentinel/internal/auth"
	"github.com/sentinel-ops/sentinel/internal/platform/httpx"
	"github.com/sentinel-ops/sentinel/internal/rbac"
	"github.com/sentinel-ops/sentinel/internal/shared"
)

const (
	testSecret   = "test-secret-0123456789abcdef"
	seedPassword = "password"
)

type stubRepo struct {
	mu    sync.Mutex
	users []auth.User
}

func newStubRepo(t *testing.T) *stubRepo {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(seedPassword), bcrypt.MinCost)
	require.NoError(t, err)
	repo := &stubRepo{}
	for i, seed := range auth.SeedUsers() {
		repo.users = append(repo.users, auth.User{
			ID: int64(i + 1), Username: seed.Username, Email: seed.Email, Name: seed.Name,
			Role: seed.Role, BaseID: seed.BaseID, PasswordHash: string(hash), IsActive: true, IsSeed: true,
		})
	}
	return repo
}

func (s *stubRepo) FindByIdentifier(_ context.Context, identifier string) (*auth.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if strings.EqualFold(u.Username, identifier) || strings.EqualFold(u.Email, identifier) {
			u := u
			return &u, nil
		}
	}
	return nil, shared.ErrNotFound
}

func (s *stubRepo) FindByID(_ context.Context, id int64) (*auth.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.ID == id {
			u := u
			return &u, nil
		}
	}
	return nil, shared.ErrNotFound
}

func (s *stubRepo) Create(_ context.Context, user auth.User) (*auth.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if strings.EqualFold(u.Username, user.Username) || strings.EqualFold(u.Email, user.Email) {
			return nil, auth.ErrDuplicateUser
		}
	}
	user.ID = int64(len(s.users) + 1)
	user.CreatedAt = time.Now().UTC()
	user.UpdatedAt = user.CreatedAt
	s.users = append(s.users, user)
	return &user, nil
}

func (s *stubRepo) List(context.Context) ([]auth.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]auth.User(nil), s.users...), nil
}

func (s *stubRepo) SetActive(_ context.Context, id int64, active bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, u := range s.users {
		if u.ID == id && !u.IsSeed {
			s.users[i].IsActive = active
			return nil
		}
	}
	return shared.ErrNotFound
}

type stubBases map[string]bool

func (b stubBases) BaseExists(_ context.Context, id string) (bool, error) {
	return b[id], nil
}

func newAuthRouter(t *testing.T) (http.Handler, *auth.Service) {
	t.Helper()
	tokens, err := auth.NewTokenIssuer(testSecret, time.Hour)
	require.NoError(t, err)
	svc := auth.NewService(newStubRepo(t), stubBases{"base-alpha": true, "base-bravo": true}, tokens, nil)
	authn := auth.NewAuthenticator(tokens, nil, auth.WithAccounts(svc))
	h := auth.NewHandler(nil, svc, authn)

	r := chi.NewRouter()
	r.Route("/api/auth", h.MountRoutes)
	r.Group(func(r chi.Router) {
		r.Use(authn.Authenticate)
		r.Route("/api/me", h.MountAccountRoutes)
		r.Route("/api/users", h.MountUserRoutes)
	})
	r.With(authn.CheckRole(rbac.RoleAdmin)).Get("/api/admin-only", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	return r, svc
}

func send(t *testing.T, h http.Handler, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func login(t *testing.T, h http.Handler, identifier string) string {
	t.Helper()
	return loginWith(t, h, identifier, seedPassword)
}

func loginWith(t *testing.T, h http.Handler, identifier, password string) string {
	t.Helper()
	rr := send(t, h, http.MethodPost, "/api/auth/login", "", map[string]string{"identifier": identifier, "password": password})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	var res auth.LoginResult
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&res))
	require.NotEmpty(t, res.Token)
	return res.Token
}

func TestLoginByUsernameAndEmail(t *testing.T) {
	h, _ := newAuthRouter(t)

	rr := send(t, h, http.MethodPost, "/api/auth/login", "", map[string]string{"email": "smith@military.gov", "password": "password"})
	require.Equal(t, http.StatusOK, rr.Code)
	var res auth.LoginResult
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&res))
	require.Equal(t, "commander1", res.User.Username)
	require.Equal(t, rbac.RoleBaseCommander, res.User.Role)
	require.NotContains(t, rr.Body.String(), "$2a$")

	require.NotEmpty(t, login(t, h, "logistics1"))
}

func TestLoginInvalidCredentials(t *testing.T) {
	h, _ := newAuthRouter(t)

	rr := send(t, h, http.MethodPost, "/api/auth/login", "", map[string]string{"identifier": "admin", "password": "wrong"})
	require.Equal(t, http.StatusUnauthorized, rr.Code)
	require.Contains(t, rr.Body.String(), "Invalid credentials")

	rr = send(t, h, http.MethodPost, "/api/auth/login", "", map[string]string{"identifier": "ghost", "password": "password"})
	require.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestAuthenticateMissingAndInvalidToken(t *testing.T) {
	h, _ := newAuthRouter(t)

	rr := send(t, h, http.MethodGet, "/api/me/", "", nil)
	require.Equal(t, http.StatusUnauthorized, rr.Code)

	rr = send(t, h, http.MethodGet, "/api/me/", "not-a-jwt", nil)
	require.Equal(t, http.StatusForbidden, rr.Code)

	other, err := auth.NewTokenIssuer("another-secret-0123456789", time.Hour)
	require.NoError(t, err)
	forged, _, err := other.Issue(auth.User{ID: 1, Username: "admin", Role: rbac.RoleAdmin})
	require.NoError(t, err)
	rr = send(t, h, http.MethodGet, "/api/me/", forged, nil)
	require.Equal(t, http.StatusForbidden, rr.Code)
}

func TestMeReturnsPermissions(t *testing.T) {
	h, _ := newAuthRouter(t)
	token := login(t, h, "commander1")

	rr := send(t, h, http.MethodGet, "/api/me/", token, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var body struct {
		User        auth.User         `json:"user"`
		Permissions []rbac.Permission `json:"permissions"`
	}
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&body))
	require.Equal(t, "base-alpha", body.User.BaseID)
	require.Contains(t, body.Permissions, rbac.PermApproveRequests)
	require.NotContains(t, body.Permissions, rbac.PermManageUsers)
}

func TestCheckRole(t *testing.T) {
	h, _ := newAuthRouter(t)

	rr := send(t, h, http.MethodGet, "/api/admin-only", "", nil)
	require.Equal(t, http.StatusUnauthorized, rr.Code)

	rr = send(t, h, http.MethodGet, "/api/admin-only", login(t, h, "logistics1"), nil)
	require.Equal(t, http.StatusForbidden, rr.Code)

	rr = send(t, h, http.MethodGet, "/api/admin-only", login(t, h, "admin"), nil)
	require.Equal(t, http.StatusNoContent, rr.Code)
}

func TestRegister(t *testing.T) {
	h, _ := newAuthRouter(t)

	rr := send(t, h, http.MethodPost, "/api/auth/register", "", map[string]string{
		"username": "logistics2", "email": "Officer2@Military.gov", "name": "Sergeant Lee", "password": "longenough",
	})
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	var created auth.User
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&created))
	require.Equal(t, rbac.RoleLogisticsOfficer, created.Role)
	require.Equal(t, "officer2@military.gov", created.Email)
	require.True(t, created.IsActive)

	require.NotEmpty(t, loginWith(t, h, "logistics2", "longenough"))

	rr = send(t, h, http.MethodPost, "/api/auth/register", "", map[string]string{
		"username": "logistics2", "email": "x@military.gov", "name": "Dup", "password": "longenough",
	})
	require.Equal(t, http.StatusConflict, rr.Code)
}

func TestRegisterValidation(t *testing.T) {
	h, _ := newAuthRouter(t)

	cases := []struct {
		name   string
		body   map[string]string
		status int
		msg    string
	}{
		{"missing fields", map[string]string{"username": "x1"}, http.StatusBadRequest, shared.MsgRequiredFields},
		{"short password", map[string]string{"username": "abc", "email": "a@b.io", "name": "A", "password": "short"}, http.StatusBadRequest, "at least 8"},
		{"bad email", map[string]string{"username": "abc", "email": "nope", "name": "A", "password": "longenough"}, http.StatusBadRequest, "valid email"},
		{"admin role", map[string]string{"username": "abc", "email": "a@b.io", "name": "A", "password": "longenough", "role": "admin"}, http.StatusBadRequest, "Administrator"},
		{"anonymous commander", map[string]string{"username": "abc", "email": "a@b.io", "name": "A", "password": "longenough", "role": "base_commander", "baseId": "base-bravo"}, http.StatusForbidden, ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rr := send(t, h, http.MethodPost, "/api/auth/register", "", tc.body)
			require.Equal(t, tc.status, rr.Code, rr.Body.String())
			if tc.msg != "" {
				require.Contains(t, rr.Body.String(), tc.msg)
			}
		})
	}
}

func TestAdminRegistersCommander(t *testing.T) {
	h, _ := newAuthRouter(t)
	admin := login(t, h, "admin")

	body := map[string]string{"username": "commander2", "email": "c2@military.gov", "name": "Major Ortiz", "password": "longenough", "role": "base_commander"}
	rr := send(t, h, http.MethodPost, "/api/auth/register", admin, body)
	require.Equal(t, http.StatusBadRequest, rr.Code)

	body["baseId"] = "base-zulu"
	rr = send(t, h, http.MethodPost, "/api/auth/register", admin, body)
	require.Equal(t, http.StatusBadRequest, rr.Code)
	require.Contains(t, rr.Body.String(), "Unknown base")

	body["baseId"] = "base-bravo"
	rr = send(t, h, http.MethodPost, "/api/auth/register", admin, body)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
}

func TestUserAdministration(t *testing.T) {
	h, _ := newAuthRouter(t)
	admin := login(t, h, "admin")

	rr := send(t, h, http.MethodGet, "/api/users/", login(t, h, "commander1"), nil)
	require.Equal(t, http.StatusForbidden, rr.Code)

	rr = send(t, h, http.MethodGet, "/api/users/", admin, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var users []auth.User
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&users))
	require.Len(t, users, 3)

	rr = send(t, h, http.MethodPost, "/api/users/3/deactivate", admin, nil)
	require.Equal(t, http.StatusNotFound, rr.Code, "seed accounts are immutable")

	rr = send(t, h, http.MethodPost, "/api/auth/register", "", map[string]string{
		"username": "temp1", "email": "temp1@military.gov", "name": "Temp", "password": "longenough",
	})
	require.Equal(t, http.StatusCreated, rr.Code)

	temp := loginWith(t, h, "temp1", "longenough")
	require.Equal(t, http.StatusOK, send(t, h, http.MethodGet, "/api/me/", temp, nil).Code)

	rr = send(t, h, http.MethodPost, "/api/users/4/deactivate", admin, nil)
	require.Equal(t, http.StatusNoContent, rr.Code)

	rr = send(t, h, http.MethodPost, "/api/auth/login", "", map[string]string{"identifier": "temp1", "password": "longenough"})
	require.Equal(t, http.StatusUnauthorized, rr.Code)

	rr = send(t, h, http.MethodGet, "/api/me/", temp, nil)
	require.Equal(t, http.StatusForbidden, rr.Code, "tokens issued before deactivation stop working")

	rr = send(t, h, http.MethodPost, "/api/users/4/activate", admin, nil)
	require.Equal(t, http.StatusNoContent, rr.Code)
	require.Equal(t, http.StatusOK, send(t, h, http.MethodGet, "/api/me/", temp, nil).Code)
}

func TestMeRefusesDeactivatedAccount(t *testing.T) {
	h, svc := newAuthRouter(t)
	admin := login(t, h, "admin")
	ctx := context.Background()

	rr := send(t, h, http.MethodPost, "/api/auth/register", "", map[string]string{
		"username": "temp2", "email": "temp2@military.gov", "name": "Temp", "password": "longenough",
	})
	require.Equal(t, http.StatusCreated, rr.Code)
	var created auth.User
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&created))

	active, err := svc.Active(ctx, created.ID)
	require.NoError(t, err)
	require.True(t, active)

	rr = send(t, h, http.MethodPost, fmt.Sprintf("/api/users/%d/deactivate", created.ID), admin, nil)
	require.Equal(t, http.StatusNoContent, rr.Code)

	active, err = svc.Active(ctx, created.ID)
	require.NoError(t, err)
	require.False(t, active)
	_, err = svc.Me(ctx, created.Principal())
	require.ErrorIs(t, err, auth.ErrAccountInactive)
	require.ErrorIs(t, err, httpx.ErrForbidden)

	active, err = svc.Active(ctx, 999)
	require.NoError(t, err)
	require.False(t, active)
}
