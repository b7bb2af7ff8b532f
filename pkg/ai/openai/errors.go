package openai

import (
	"context"
	"errors"
	"net/http"

	"github.com/laedsonzzz/DialogAI-Qualidade-sub001/pkg/ai"

	"github.com/openai/openai-go/v3"
)

var errNotConfigured = ai.NewServiceError(http.StatusNotFound, "", "openai client not configured")

// mapError converts SDK errors into *ai.ServiceError. Cancellation of the
// caller's context is passed through untouched.
func mapError(parent context.Context, err error) error {
	if err == nil {
		return nil
	}
	if parent.Err() != nil {
		return parent.Err()
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ai.NewServiceError(http.StatusGatewayTimeout, "", "request timed out")
	}

	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return ai.NewServiceError(apiErr.StatusCode, apiErr.Code, apiErr.Message)
	}
	return ai.NewServiceError(0, "", err.Error())
}
