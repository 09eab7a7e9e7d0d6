package errors

import (
	stdErrors "errors"
	"fmt"
	"net/http"
	"testing"
)

func TestErrorIncludesInternal(t *testing.T) {
	internal := stdErrors.New("boom")
	err := Wrap(internal, "failed")

	if err.Error() != "failed: boom" {
		t.Fatalf("unexpected error string: %s", err.Error())
	}
	if err.Code != ErrInternalServer.Code || err.StatusCode != http.StatusInternalServerError {
		t.Fatalf("unexpected classification: %s %d", err.Code, err.StatusCode)
	}
	if !stdErrors.Is(err, internal) {
		t.Fatal("expected wrapped error to unwrap to the original")
	}
}

func TestWithInternalCopies(t *testing.T) {
	base := New("TEST", "test", 400)
	with := base.WithInternal(stdErrors.New("oops"))

	if with == base {
		t.Fatal("expected WithInternal to return a copy")
	}
	if base.Internal != nil {
		t.Fatal("expected original error to remain unchanged")
	}
	if with.Internal == nil {
		t.Fatal("expected internal error to be set")
	}
}

func TestWithMessageKeepsCodeAndStatus(t *testing.T) {
	out := ErrTenantAccessDenied.WithMessage("nope")
	if out.Code != "TENANT_ACCESS_DENIED" || out.StatusCode != http.StatusForbidden {
		t.Fatalf("unexpected metadata: %s %d", out.Code, out.StatusCode)
	}
	if ErrTenantAccessDenied.Message == "nope" {
		t.Fatal("expected original message to remain unchanged")
	}
}

func TestFromError(t *testing.T) {
	appErr := ErrNotFound
	if out := FromError(appErr); out != appErr {
		t.Fatal("expected FromError to return the same AppError instance")
	}

	wrapped := fmt.Errorf("handler: %w", ErrTenantRequired)
	if out := FromError(wrapped); out != ErrTenantRequired {
		t.Fatal("expected FromError to unwrap AppError")
	}

	raw := stdErrors.New("raw")
	out := FromError(raw)
	if out.Code != ErrInternalServer.Code {
		t.Fatalf("expected internal server code, got %s", out.Code)
	}
	if out.Internal == nil {
		t.Fatal("expected internal error to be attached")
	}
}

func TestNewBadRequest(t *testing.T) {
	err := NewBadRequest("invalid payload")
	if err.Code != ErrBadRequest.Code {
		t.Fatalf("expected %s, got %s", ErrBadRequest.Code, err.Code)
	}
	if err.Message != "invalid payload" {
		t.Fatalf("unexpected message: %s", err.Message)
	}
	if err.StatusCode != ErrBadRequest.StatusCode {
		t.Fatalf("unexpected status: %d", err.StatusCode)
	}
}

func TestCopiesMatchSentinelByCode(t *testing.T) {
	sentinel := New("tenant.domain_taken", "taken", http.StatusConflict)

	if !stdErrors.Is(sentinel.WithMessage("example.com is taken"), sentinel) {
		t.Fatal("expected message copy to match sentinel")
	}
	if !stdErrors.Is(fmt.Errorf("bind: %w", sentinel.WithInternal(stdErrors.New("dup"))), sentinel) {
		t.Fatal("expected wrapped copy to match sentinel")
	}
	if stdErrors.Is(ErrTenantNotFound, sentinel) {
		t.Fatal("different codes must not match")
	}
}
