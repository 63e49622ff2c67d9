package integration

import (
	"net/http"
	"testing"

	"golang.org/x/crypto/bcrypt"
)

func TestUpdateUserLifecycle(t *testing.T) {
	h := NewHarness(t)
	token := h.Token("root-1", "root")

	status, body := h.Do(http.MethodPut, "/admin/users/u-1", token, map[string]any{
		"username": "al-ice2",
		"email":    "Alice2@Test.Local",
		"isActive": "yes",
	})
	if status != http.StatusOK {
		t.Fatalf("status = %d, want 200", status)
	}
	if len(Errors(body)) != 0 || len(Errfor(body)) != 0 {
		t.Fatalf("unexpected errors: %v / %v", Errors(body), Errfor(body))
	}

	user, ok := body["user"].(map[string]any)
	if !ok {
		t.Fatal("response should carry the updated user")
	}
	if user["username"] != "al-ice2" {
		t.Errorf("user.username = %v, want al-ice2", user["username"])
	}
	if user["adminName"] != "Alice Admin" {
		t.Errorf("user.adminName = %v, want Alice Admin", user["adminName"])
	}

	stored, _ := h.Store.GetUser("u-1")
	if stored.Email != "alice2@test.local" {
		t.Errorf("stored email = %q, want lower-cased", stored.Email)
	}
	adm, _ := h.Store.GetAdmin("adm-1")
	if adm.User.Name != "al-ice2" {
		t.Errorf("admin ref = %q, want al-ice2", adm.User.Name)
	}
	acc, _ := h.Store.GetAccount("acc-1")
	if acc.User.Name != "al-ice2" {
		t.Errorf("account ref = %q, want al-ice2", acc.User.Name)
	}
}

func TestUpdateUserValidation(t *testing.T) {
	h := NewHarness(t)
	token := h.Token("root-1", "root")

	status, body := h.Do(http.MethodPut, "/admin/users/u-1", token, map[string]any{
		"username": "no spaces!",
		"email":    "not-an-email",
	})
	if status != http.StatusOK {
		t.Fatalf("status = %d, want 200 (validation failure is data)", status)
	}
	errfor := Errfor(body)
	if errfor["username"] != "only use letters, numbers, '-', '_'" {
		t.Errorf("errfor.username = %v", errfor["username"])
	}
	if errfor["email"] != "invalid email format" {
		t.Errorf("errfor.email = %v", errfor["email"])
	}

	stored, _ := h.Store.GetUser("u-1")
	if stored.Username != "al_ice" {
		t.Errorf("stored username = %q, want untouched al_ice", stored.Username)
	}
}

func TestUpdateUserDuplicate(t *testing.T) {
	h := NewHarness(t)
	token := h.Token("root-1", "root")

	status, body := h.Do(http.MethodPut, "/admin/users/u-1", token, map[string]any{
		"username": "bob",
		"email":    "alice@test.local",
		"isActive": "yes",
	})
	if status != http.StatusOK {
		t.Fatalf("status = %d, want 200", status)
	}
	if got := Errfor(body)["username"]; got != "username already taken" {
		t.Errorf("errfor.username = %v, want username already taken", got)
	}
}

func TestUpdateUserNotFound(t *testing.T) {
	h := NewHarness(t)
	token := h.Token("root-1", "root")

	status, body := h.Do(http.MethodPut, "/admin/users/u-404", token, map[string]any{
		"username": "ghost",
		"email":    "ghost@test.local",
	})
	if status != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", status)
	}
	if body["error"] == nil {
		t.Error("response should carry an error envelope")
	}
}

func TestPasswordChange(t *testing.T) {
	h := NewHarness(t)
	token := h.Token("root-1", "root")

	status, body := h.Do(http.MethodPut, "/admin/users/u-1/password", token, map[string]any{
		"newPassword": "correct-horse-battery",
		"confirm":     "correct-horse-battery",
	})
	if status != http.StatusOK {
		t.Fatalf("status = %d, want 200", status)
	}
	if len(Errors(body)) != 0 {
		t.Fatalf("unexpected errors: %v", Errors(body))
	}
	if body["newPassword"] != "" || body["confirm"] != "" {
		t.Error("secrets must be cleared in the response")
	}

	stored, _ := h.Store.GetUser("u-1")
	if bcrypt.CompareHashAndPassword([]byte(stored.PasswordHash), []byte("correct-horse-battery")) != nil {
		t.Error("stored hash should verify against the new password")
	}
}

func TestPasswordMismatch(t *testing.T) {
	h := NewHarness(t)
	token := h.Token("root-1", "root")

	status, body := h.Do(http.MethodPut, "/admin/users/u-1/password", token, map[string]any{
		"newPassword": "one-password",
		"confirm":     "another-password",
	})
	if status != http.StatusOK {
		t.Fatalf("status = %d, want 200", status)
	}
	errs := Errors(body)
	if len(errs) != 1 || errs[0] != "passwords do not match" {
		t.Errorf("errors = %v, want the mismatch message", errs)
	}

	stored, _ := h.Store.GetUser("u-1")
	if stored.PasswordHash != "" {
		t.Error("password must be untouched after validation failure")
	}
}

func TestDeleteUser(t *testing.T) {
	h := NewHarness(t)
	token := h.Token("root-1", "root")

	status, body := h.Do(http.MethodDelete, "/admin/users/u-1", token, nil)
	if status != http.StatusOK {
		t.Fatalf("status = %d, want 200", status)
	}
	if len(Errors(body)) != 0 {
		t.Fatalf("unexpected errors: %v", Errors(body))
	}

	if _, ok := h.Store.GetUser("u-1"); ok {
		t.Error("user should be gone")
	}
	if _, ok := h.Store.GetAccount("acc-1"); ok {
		t.Error("dependent account record should be gone")
	}
}

func TestDeleteUserRequiresRootRole(t *testing.T) {
	h := NewHarness(t)
	token := h.Token("root-1", "auditor")

	status, body := h.Do(http.MethodDelete, "/admin/users/u-2", token, nil)
	if status != http.StatusOK {
		t.Fatalf("status = %d, want 200", status)
	}
	errs := Errors(body)
	if len(errs) != 1 || errs[0] != "you may not delete users" {
		t.Errorf("errors = %v, want the authorization message", errs)
	}
	if _, ok := h.Store.GetUser("u-2"); !ok {
		t.Error("user should still exist")
	}
}

func TestDeleteSelfRejected(t *testing.T) {
	h := NewHarness(t)
	token := h.Token("root-1", "root")

	status, body := h.Do(http.MethodDelete, "/admin/users/root-1", token, nil)
	if status != http.StatusOK {
		t.Fatalf("status = %d, want 200", status)
	}
	errs := Errors(body)
	if len(errs) != 1 || errs[0] != "you may not delete yourself" {
		t.Errorf("errors = %v, want the self-delete message", errs)
	}
	if _, ok := h.Store.GetUser("root-1"); !ok {
		t.Error("root user should still exist")
	}
}

func TestUnauthenticatedRequestsRejected(t *testing.T) {
	h := NewHarness(t)

	status, _ := h.Do(http.MethodDelete, "/admin/users/u-1", "", nil)
	if status != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401 without a token", status)
	}

	status, _ = h.Do(http.MethodPut, "/admin/users/u-1", "not.a.token", map[string]any{
		"username": "al_ice",
		"email":    "alice@test.local",
	})
	if status != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401 with a garbage token", status)
	}
}

func TestHealthEndpoints(t *testing.T) {
	h := NewHarness(t)

	status, body := h.Do(http.MethodGet, "/healthz", "", nil)
	if status != http.StatusOK {
		t.Errorf("healthz status = %d, want 200", status)
	}
	if body["status"] != "ok" {
		t.Errorf("healthz body = %v", body)
	}

	status, body = h.Do(http.MethodGet, "/readyz", "", nil)
	if status != http.StatusOK {
		t.Errorf("readyz status = %d, want 200", status)
	}
	if body["status"] != "ready" {
		t.Errorf("readyz body = %v", body)
	}
}
