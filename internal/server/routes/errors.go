package routes

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/laedsonzzz/DialogAI-Qualidade-sub001/pkg/ai"
	"github.com/laedsonzzz/DialogAI-Qualidade-sub001/pkg/common"
	"github.com/laedsonzzz/DialogAI-Qualidade-sub001/pkg/graph"
	"github.com/laedsonzzz/DialogAI-Qualidade-sub001/pkg/ingest"
	"github.com/laedsonzzz/DialogAI-Qualidade-sub001/pkg/loader"
	"github.com/laedsonzzz/DialogAI-Qualidade-sub001/pkg/loader/transcript"
	"github.com/laedsonzzz/DialogAI-Qualidade-sub001/pkg/logger"
	"github.com/laedsonzzz/DialogAI-Qualidade-sub001/pkg/motive"
	"github.com/laedsonzzz/DialogAI-Qualidade-sub001/pkg/store"
)

type errorResponse struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

func errorStatus(err error) int {
	switch {
	case errors.Is(err, loader.ErrFileTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, loader.ErrMimeNotAllowed),
		errors.Is(err, loader.ErrUnsupportedMime),
		errors.Is(err, transcript.ErrUnsupportedFormat):
		return http.StatusUnsupportedMediaType
	case errors.Is(err, common.ErrInvalidKBType),
		errors.Is(err, ingest.ErrInvalidStatus),
		errors.Is(err, loader.ErrEmpty),
		errors.Is(err, loader.ErrMagicMismatch):
		return http.StatusBadRequest
	case errors.Is(err, ingest.ErrEmptyText),
		errors.Is(err, loader.ErrParseFailure),
		errors.Is(err, transcript.ErrEmptyTable):
		return http.StatusUnprocessableEntity
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, graph.ErrExtractionBusy),
		errors.Is(err, motive.ErrRunFinished):
		return http.StatusConflict
	case errors.Is(err, ai.ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, ai.ErrInsufficientQuota),
		errors.Is(err, ai.ErrNotFound),
		errors.Is(err, ai.ErrServiceFailure),
		errors.Is(err, ingest.ErrEmbeddingMismatch):
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

// respondError writes err as JSON. Internal errors are logged and hidden.
func respondError(c echo.Context, op string, err error) error {
	status := errorStatus(err)
	if status == http.StatusInternalServerError {
		logger.Error("[Server]["+op+"] Request failed", "err", err)
		return c.JSON(status, errorResponse{Message: "Internal server error"})
	}

	resp := errorResponse{Message: err.Error()}
	var validation *loader.ValidationError
	if errors.As(err, &validation) {
		resp.Code = validation.Code
	}
	if status >= http.StatusInternalServerError {
		logger.Warn("[Server]["+op+"] Upstream failure", "err", err)
	}
	return c.JSON(status, resp)
}

func badRequest(c echo.Context, message string) error {
	return c.JSON(http.StatusBadRequest, errorResponse{Message: message})
}
