package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

type detailedErr struct{}

func (detailedErr) Error() string { return "quota" }

func (detailedErr) Unwrap() error { return New(KindQuotaExceeded, "QUOTA_EXCEEDED", "quota exceeded") }

func (detailedErr) Details() map[string]any { return map[string]any{"limit": 25} }

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		kind Kind
		want int
	}{
		{KindUnauthorized, http.StatusUnauthorized},
		{KindForbidden, http.StatusForbidden},
		{KindNotFound, http.StatusNotFound},
		{KindValidation, http.StatusBadRequest},
		{KindQuotaExceeded, http.StatusTooManyRequests},
		{KindUpstream, http.StatusBadGateway},
		{KindInternal, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.kind.String(), func(t *testing.T) {
			if got := HTTPStatus(tt.kind); got != tt.want {
				t.Errorf("HTTPStatus(%v) = %d, want %d", tt.kind, got, tt.want)
			}
		})
	}
}

func TestFrom_WrappedSentinel(t *testing.T) {
	sentinel := NotFound("PROFILE_NOT_FOUND", "profile not found")
	err := fmt.Errorf("load profile: %w", sentinel)

	got := From(err)
	if got != sentinel {
		t.Fatalf("From() = %v, want sentinel", got)
	}
	if !errors.Is(err, sentinel) {
		t.Error("errors.Is should match the sentinel through wrapping")
	}
	if !Is(err, KindNotFound) {
		t.Error("Is(err, KindNotFound) = false")
	}
}

func TestFrom_PlainErrorIsInternal(t *testing.T) {
	got := From(errors.New("boom"))
	if got.Kind != KindInternal {
		t.Errorf("Kind = %v, want internal", got.Kind)
	}
	if got.Code != "INTERNAL_ERROR" {
		t.Errorf("Code = %s, want INTERNAL_ERROR", got.Code)
	}
}

func TestFrom_Nil(t *testing.T) {
	if From(nil) != nil {
		t.Error("From(nil) should be nil")
	}
}

func TestToBody_HidesInternalCause(t *testing.T) {
	status, body := ToBody(errors.New("password=hunter2"))
	if status != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", status)
	}
	if body.Error.Message != "internal server error" {
		t.Errorf("message leaked cause: %q", body.Error.Message)
	}
}

func TestToBody_Details(t *testing.T) {
	status, body := ToBody(detailedErr{})
	if status != http.StatusTooManyRequests {
		t.Errorf("status = %d, want 429", status)
	}
	if body.Error.Details["limit"] != 25 {
		t.Errorf("details = %v", body.Error.Details)
	}
}

func TestError_Message(t *testing.T) {
	err := Upstream("IDENTITY_UNAVAILABLE", "identity provider request failed", errors.New("timeout"))
	if err.Error() != "identity provider request failed: timeout" {
		t.Errorf("Error() = %q", err.Error())
	}
}
