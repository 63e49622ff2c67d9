package transport

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pitabwire/karani/internal/admin"
	"github.com/pitabwire/karani/internal/capability"
	"github.com/pitabwire/karani/internal/config"
	"github.com/pitabwire/karani/internal/store"
	"github.com/pitabwire/karani/model"
)

// stubAuth injects fixed claims the way the real auth middleware would.
func stubAuth(claims map[string]any) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(w, r.WithContext(WithClaims(r.Context(), claims)))
		})
	}
}

func rootClaims() map[string]any {
	return map[string]any{
		"sub":      "admin-0",
		"username": "root-admin",
		"roles":    []any{"root"},
	}
}

func newTestRouter(t *testing.T, claims map[string]any) (http.Handler, *store.MemoryUserStore) {
	t.Helper()

	st := store.NewMemoryUserStore()
	st.PutUser(model.User{
		ID:       "u-1",
		Username: "al_ice",
		Email:    "alice@example.com",
		IsActive: "yes",
		Roles:    model.RoleRefs{AdminID: "adm-1"},
	})
	st.PutUser(model.User{
		ID:       "u-2",
		Username: "bob",
		Email:    "bob@example.com",
		IsActive: "yes",
	})
	st.PutAdmin(model.Admin{ID: "adm-1", Name: "Alice Admin", User: model.UserRef{ID: "u-1", Name: "al_ice"}})

	cfg := config.Defaults()
	cfg.Observability.Metrics.Enabled = false

	router := NewRouter(Dependencies{
		Config:       cfg,
		Users:        admin.NewService(st, capability.DefaultPolicy(), nil, nil),
		Authenticate: stubAuth(claims),
	})
	return router, st
}

type outcomeBody struct {
	Errors []string          `json:"errors"`
	Errfor map[string]string `json:"errfor"`
	User   *model.User       `json:"user"`
}

func decodeOutcome(t *testing.T, rec *httptest.ResponseRecorder) outcomeBody {
	t.Helper()
	var body outcomeBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestUpdateUserEndpoint(t *testing.T) {
	router, st := newTestRouter(t, rootClaims())

	req := httptest.NewRequest(http.MethodPut, "/admin/users/u-1",
		strings.NewReader(`{"username":"al-ice2","email":"Alice2@Example.com","isActive":"yes"}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeOutcome(t, rec)
	assert.Empty(t, body.Errors)
	assert.Empty(t, body.Errfor)
	require.NotNil(t, body.User)
	assert.Equal(t, "al-ice2", body.User.Username)
	assert.Equal(t, "Alice Admin", body.User.AdminName)

	stored, ok := st.GetUser("u-1")
	require.True(t, ok)
	assert.Equal(t, "alice2@example.com", stored.Email)
}

func TestUpdateUserEndpoint_ValidationErrorsStillOK(t *testing.T) {
	router, _ := newTestRouter(t, rootClaims())

	req := httptest.NewRequest(http.MethodPut, "/admin/users/u-1",
		strings.NewReader(`{"username":"","email":"nope"}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeOutcome(t, rec)
	assert.Equal(t, "required", body.Errfor["username"])
	assert.Equal(t, "invalid email format", body.Errfor["email"])
}

func TestUpdateUserEndpoint_DuplicateUsername(t *testing.T) {
	router, _ := newTestRouter(t, rootClaims())

	req := httptest.NewRequest(http.MethodPut, "/admin/users/u-1",
		strings.NewReader(`{"username":"bob","email":"alice@example.com","isActive":"yes"}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeOutcome(t, rec)
	assert.Equal(t, "username already taken", body.Errfor["username"])
}

func TestUpdateUserEndpoint_BadJSON(t *testing.T) {
	router, _ := newTestRouter(t, rootClaims())

	req := httptest.NewRequest(http.MethodPut, "/admin/users/u-1", strings.NewReader(`{nope`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUpdateUserEndpoint_MissingTarget(t *testing.T) {
	router, _ := newTestRouter(t, rootClaims())

	req := httptest.NewRequest(http.MethodPut, "/admin/users/u-404",
		strings.NewReader(`{"username":"ghost","email":"ghost@example.com"}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)

	var body struct {
		Error *model.ErrorEnvelope `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.NotNil(t, body.Error)
	assert.Equal(t, model.ErrNotFound, body.Error.Code)
}

func TestPasswordEndpoint(t *testing.T) {
	router, st := newTestRouter(t, rootClaims())

	req := httptest.NewRequest(http.MethodPut, "/admin/users/u-1/password",
		strings.NewReader(`{"newPassword":"hunter2hunter2","confirm":"hunter2hunter2"}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeOutcome(t, rec)
	assert.Empty(t, body.Errors)

	// The raw response must not echo the secrets back.
	var raw map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &raw))
	assert.Equal(t, "", raw["newPassword"])
	assert.Equal(t, "", raw["confirm"])

	stored, ok := st.GetUser("u-1")
	require.True(t, ok)
	assert.NotEmpty(t, stored.PasswordHash)
}

func TestPasswordEndpoint_Mismatch(t *testing.T) {
	router, _ := newTestRouter(t, rootClaims())

	req := httptest.NewRequest(http.MethodPut, "/admin/users/u-1/password",
		strings.NewReader(`{"newPassword":"one","confirm":"two"}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeOutcome(t, rec)
	assert.Contains(t, body.Errors, "passwords do not match")
}

func TestDeleteEndpoint(t *testing.T) {
	router, st := newTestRouter(t, rootClaims())

	req := httptest.NewRequest(http.MethodDelete, "/admin/users/u-2", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeOutcome(t, rec)
	assert.Empty(t, body.Errors)

	_, ok := st.GetUser("u-2")
	assert.False(t, ok, "user should be deleted")
}

func TestDeleteEndpoint_Forbidden(t *testing.T) {
	claims := map[string]any{"sub": "admin-0", "roles": []any{"auditor"}}
	router, st := newTestRouter(t, claims)

	req := httptest.NewRequest(http.MethodDelete, "/admin/users/u-2", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeOutcome(t, rec)
	assert.Contains(t, body.Errors, "you may not delete users")

	_, ok := st.GetUser("u-2")
	assert.True(t, ok, "user should still exist")
}

func TestDeleteEndpoint_Self(t *testing.T) {
	claims := map[string]any{"sub": "u-1", "roles": []any{"root"}}
	router, st := newTestRouter(t, claims)

	req := httptest.NewRequest(http.MethodDelete, "/admin/users/u-1", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeOutcome(t, rec)
	assert.Contains(t, body.Errors, "you may not delete yourself")

	_, ok := st.GetUser("u-1")
	assert.True(t, ok)
}

func TestHealthEndpointsArePublic(t *testing.T) {
	// An auth middleware that rejects everything proves health bypasses it.
	deny := func(http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusUnauthorized)
		})
	}

	cfg := config.Defaults()
	cfg.Observability.Metrics.Enabled = false
	router := NewRouter(Dependencies{
		Config:       cfg,
		Users:        admin.NewService(store.NewMemoryUserStore(), capability.DefaultPolicy(), nil, nil),
		Authenticate: deny,
	})

	for _, path := range []string{"/healthz", "/readyz"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusOK, rec.Code, "%s should bypass auth", path)
	}

	req := httptest.NewRequest(http.MethodDelete, "/admin/users/u-1", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
