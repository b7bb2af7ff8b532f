package ollama

import (
	"context"
	"errors"
	"net/http"

	"github.com/laedsonzzz/DialogAI-Qualidade-sub001/pkg/ai"

	"github.com/ollama/ollama/api"
)

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

	var statusErr api.StatusError
	if errors.As(err, &statusErr) {
		return ai.NewServiceError(statusErr.StatusCode, "", statusErr.ErrorMessage)
	}
	var statusErrPtr *api.StatusError
	if errors.As(err, &statusErrPtr) {
		return ai.NewServiceError(statusErrPtr.StatusCode, "", statusErrPtr.ErrorMessage)
	}
	return ai.NewServiceError(0, "", err.Error())
}
