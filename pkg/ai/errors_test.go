package ai

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestNewServiceErrorKinds(t *testing.T) {
	tests := []struct {
		name   string
		status int
		code   string
		want   error
	}{
		{name: "throttled", status: http.StatusTooManyRequests, want: ErrRateLimited},
		{name: "quota", status: http.StatusTooManyRequests, code: "insufficient_quota", want: ErrInsufficientQuota},
		{name: "payment required", status: http.StatusPaymentRequired, want: ErrInsufficientQuota},
		{name: "missing model", status: http.StatusNotFound, want: ErrNotFound},
		{name: "server error", status: http.StatusInternalServerError, want: ErrServiceFailure},
		{name: "bad request", status: http.StatusBadRequest, want: ErrServiceFailure},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := fmt.Errorf("wrapped: %w", NewServiceError(tt.status, tt.code, "boom"))
			if !errors.Is(err, tt.want) {
				t.Fatalf("errors.Is(%v, %v) = false", err, tt.want)
			}
			if got := StatusOf(err); got != tt.status {
				t.Fatalf("StatusOf = %d, want %d", got, tt.status)
			}
		})
	}
}

func TestServiceErrorDefaultsStatus(t *testing.T) {
	err := NewServiceError(0, "", "connection reset")
	if err.Status != http.StatusBadGateway {
		t.Fatalf("status = %d, want %d", err.Status, http.StatusBadGateway)
	}
	if !err.Retryable() {
		t.Fatal("expected gateway failure to be retryable")
	}
	if NewServiceError(http.StatusNotFound, "", "").Retryable() {
		t.Fatal("not found must not be retryable")
	}
}
