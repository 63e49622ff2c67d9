package model

import (
	"fmt"
	"testing"
)

func TestErrorEnvelope_Error(t *testing.T) {
	e := &ErrorEnvelope{Code: ErrNotFound, Message: "user not found"}
	want := "NOT_FOUND: user not found"
	if got := e.Error(); got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
}

func TestErrorEnvelope_implements_error(t *testing.T) {
	var _ error = (*ErrorEnvelope)(nil)
}

func TestNewNotFoundError(t *testing.T) {
	e := NewNotFoundError("user missing")
	if e.Code != ErrNotFound {
		t.Errorf("Code = %q, want %q", e.Code, ErrNotFound)
	}
	if e.Message != "user missing" {
		t.Errorf("Message = %q, want %q", e.Message, "user missing")
	}
}

func TestNewForbiddenError(t *testing.T) {
	e := NewForbiddenError("access denied")
	if e.Code != ErrForbidden {
		t.Errorf("Code = %q, want %q", e.Code, ErrForbidden)
	}
}

func TestNewInternalError(t *testing.T) {
	e := NewInternalError()
	if e.Code != ErrInternalError {
		t.Errorf("Code = %q, want %q", e.Code, ErrInternalError)
	}
}

func TestNewStoreUnavailableError(t *testing.T) {
	e := NewStoreUnavailableError()
	if e.Code != ErrStoreUnavailable {
		t.Errorf("Code = %q, want %q", e.Code, ErrStoreUnavailable)
	}
}

func TestCodeOf(t *testing.T) {
	if got := CodeOf(NewConflictError("taken")); got != ErrConflict {
		t.Errorf("CodeOf(conflict) = %q, want %q", got, ErrConflict)
	}

	wrapped := fmt.Errorf("pipeline: %w", NewNotFoundError("gone"))
	if got := CodeOf(wrapped); got != ErrNotFound {
		t.Errorf("CodeOf(wrapped) = %q, want %q", got, ErrNotFound)
	}

	if got := CodeOf(fmt.Errorf("plain")); got != ErrInternalError {
		t.Errorf("CodeOf(plain) = %q, want %q", got, ErrInternalError)
	}
}
