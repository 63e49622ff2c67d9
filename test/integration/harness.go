// Package integration provides a reusable test harness for end-to-end
// testing of the Karani admin API. It starts a full HTTP server with the
// in-memory entity store and a local HMAC token issuer.
package integration

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/pitabwire/karani/internal/admin"
	"github.com/pitabwire/karani/internal/capability"
	"github.com/pitabwire/karani/internal/config"
	"github.com/pitabwire/karani/internal/store"
	"github.com/pitabwire/karani/internal/transport"
	"github.com/pitabwire/karani/model"
)

const (
	harnessSecret    = "integration-test-secret"
	harnessSecretEnv = "KARANI_TEST_AUTH_SECRET"
	harnessIssuer    = "https://id.test.local"
	harnessAudience  = "karani-admin"
)

// Harness encapsulates a fully wired server instance for integration tests.
type Harness struct {
	t      *testing.T
	server *httptest.Server

	// Store is exposed for seeding and direct assertions.
	Store *store.MemoryUserStore
}

// NewHarness builds and starts a server backed by the in-memory store,
// pre-seeded with a root admin and two managed users. The server is torn
// down automatically when the test finishes.
func NewHarness(t *testing.T) *Harness {
	t.Helper()
	t.Setenv(harnessSecretEnv, harnessSecret)

	cfg := config.Defaults()
	cfg.Identity = config.IdentityConfig{
		Issuer:    harnessIssuer,
		Audience:  harnessAudience,
		SecretEnv: harnessSecretEnv,
	}
	cfg.Observability.Metrics.Enabled = false

	st := store.NewMemoryUserStore()
	st.PutUser(model.User{
		ID:       "root-1",
		Username: "root-admin",
		Email:    "root@test.local",
		IsActive: "yes",
	})
	st.PutUser(model.User{
		ID:       "u-1",
		Username: "al_ice",
		Email:    "alice@test.local",
		IsActive: "yes",
		Roles:    model.RoleRefs{AdminID: "adm-1", AccountID: "acc-1"},
	})
	st.PutUser(model.User{
		ID:       "u-2",
		Username: "bob",
		Email:    "bob@test.local",
		IsActive: "yes",
	})
	st.PutAdmin(model.Admin{ID: "adm-1", Name: "Alice Admin", User: model.UserRef{ID: "u-1", Name: "al_ice"}})
	st.PutAccount(model.Account{ID: "acc-1", Name: "Alice Account", User: model.UserRef{ID: "u-1", Name: "al_ice"}})

	authenticator, err := transport.NewAuthenticator(cfg.Identity)
	if err != nil {
		t.Fatalf("NewAuthenticator() error = %v", err)
	}

	router := transport.NewRouter(transport.Dependencies{
		Config:       cfg,
		Users:        admin.NewService(st, capability.DefaultPolicy(), nil, nil),
		Authenticate: authenticator.Middleware,
	})

	server := httptest.NewServer(router)
	t.Cleanup(server.Close)

	return &Harness{t: t, server: server, Store: st}
}

// Token mints a signed bearer token for the given subject and roles.
func (h *Harness) Token(subjectID string, roles ...string) string {
	h.t.Helper()

	roleClaims := make([]any, len(roles))
	for i, r := range roles {
		roleClaims[i] = r
	}
	claims := jwt.MapClaims{
		"iss":      harnessIssuer,
		"aud":      harnessAudience,
		"sub":      subjectID,
		"username": "harness-" + subjectID,
		"roles":    roleClaims,
		"exp":      time.Now().Add(time.Hour).Unix(),
	}

	raw, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(harnessSecret))
	if err != nil {
		h.t.Fatalf("minting token: %v", err)
	}
	return raw
}

// Do sends a request with an optional bearer token and JSON body, returning
// the status code and the decoded response object.
func (h *Harness) Do(method, path, token string, body any) (int, map[string]any) {
	h.t.Helper()

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			h.t.Fatalf("marshaling request body: %v", err)
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequest(method, h.server.URL+path, reader)
	if err != nil {
		h.t.Fatalf("building request: %v", err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := h.server.Client().Do(req)
	if err != nil {
		h.t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		h.t.Fatalf("reading response body: %v", err)
	}

	var decoded map[string]any
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &decoded); err != nil {
			h.t.Fatalf("decoding response %q: %v", raw, err)
		}
	}
	return resp.StatusCode, decoded
}

// Errfor extracts the field-error map from a decoded outcome.
func Errfor(body map[string]any) map[string]any {
	m, _ := body["errfor"].(map[string]any)
	return m
}

// Errors extracts the general error list from a decoded outcome.
func Errors(body map[string]any) []any {
	l, _ := body["errors"].([]any)
	return l
}
