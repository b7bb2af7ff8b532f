package ai

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrRateLimited       = errors.New("rate limited")
	ErrInsufficientQuota = errors.New("insufficient quota")
	ErrNotFound          = errors.New("model or endpoint not found")
	ErrServiceFailure    = errors.New("language model service failure")
)

// ServiceError is returned by the adapters for every non-success answer of
// the upstream service. Kind is one of the sentinel errors above so callers
// can use errors.Is.
type ServiceError struct {
	Kind    error
	Status  int
	Message string
}

func (e *ServiceError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("%s (status %d)", e.Kind, e.Status)
	}
	return fmt.Sprintf("%s (status %d): %s", e.Kind, e.Status, e.Message)
}

func (e *ServiceError) Unwrap() error {
	return e.Kind
}

// Retryable reports whether the same request may succeed later.
func (e *ServiceError) Retryable() bool {
	return e.Kind == ErrRateLimited || (e.Kind == ErrServiceFailure && e.Status >= 500)
}

// NewServiceError classifies an upstream status. code is the provider
// specific error code if any, used to tell quota exhaustion from throttling.
func NewServiceError(status int, code, message string) *ServiceError {
	kind := ErrServiceFailure
	switch {
	case status == http.StatusTooManyRequests && code == "insufficient_quota":
		kind = ErrInsufficientQuota
	case status == http.StatusTooManyRequests:
		kind = ErrRateLimited
	case status == http.StatusPaymentRequired:
		kind = ErrInsufficientQuota
	case status == http.StatusNotFound:
		kind = ErrNotFound
	}
	if status == 0 {
		status = http.StatusBadGateway
	}
	return &ServiceError{Kind: kind, Status: status, Message: message}
}

// StatusOf returns the upstream status carried by err, or 0.
func StatusOf(err error) int {
	var se *ServiceError
	if errors.As(err, &se) {
		return se.Status
	}
	return 0
}
