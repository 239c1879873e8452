package domain

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestErrorTypeForStatus(t *testing.T) {
	tests := []struct {
		status int
		want   ErrorType
	}{
		{http.StatusNotFound, ErrorTypeNotFound},
		{http.StatusUnauthorized, ErrorTypeAuthentication},
		{http.StatusForbidden, ErrorTypeAuthentication},
		{http.StatusTooManyRequests, ErrorTypeRateLimit},
		{http.StatusServiceUnavailable, ErrorTypeOverloaded},
		{http.StatusBadRequest, ErrorTypeInvalidRequest},
		{http.StatusBadGateway, ErrorTypeServer},
		{http.StatusInternalServerError, ErrorTypeServer},
	}

	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			if got := ErrorTypeForStatus(tt.status); got != tt.want {
				t.Errorf("ErrorTypeForStatus(%d) = %q, want %q", tt.status, got, tt.want)
			}
		})
	}
}

func TestAPIError(t *testing.T) {
	err := NewAPIError(ErrorTypeRateLimit, "slow down")
	if got := err.HTTPStatusCode(); got != http.StatusTooManyRequests {
		t.Errorf("HTTPStatusCode() = %d", got)
	}
	if got := err.Error(); got != "rate_limit: slow down" {
		t.Errorf("Error() = %q", got)
	}

	err.WithCode("too_many").WithStatusCode(418)
	if got := err.HTTPStatusCode(); got != 418 {
		t.Errorf("HTTPStatusCode() = %d, want explicit 418", got)
	}
	if got := err.Error(); got != "rate_limit (too_many): slow down" {
		t.Errorf("Error() = %q", got)
	}
}

func TestIsNotFound(t *testing.T) {
	wrapped := fmt.Errorf("send: %w", ErrNotFound("gone"))
	if !IsNotFound(wrapped) {
		t.Error("wrapped not-found error not recognised")
	}
	if IsNotFound(ErrServer("boom")) {
		t.Error("server error reported as not found")
	}
	if IsNotFound(errors.New("not found")) {
		t.Error("plain error reported as not found")
	}
	if IsNotFound(nil) {
		t.Error("nil reported as not found")
	}
}

func TestNewTurns(t *testing.T) {
	u := NewUserTurn("hi")
	if u.Role != RoleUser || u.CardWidget != nil || u.CreatedAt.IsZero() {
		t.Errorf("NewUserTurn() = %+v", u)
	}
	a := NewAssistantTurn("", nil)
	if a.Role != RoleAssistant {
		t.Errorf("NewAssistantTurn() role = %q", a.Role)
	}
}
