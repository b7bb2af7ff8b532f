package routes

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/laedsonzzz/DialogAI-Qualidade-sub001/internal/server/middleware"
	"github.com/laedsonzzz/DialogAI-Qualidade-sub001/pkg/common"
)

// RetrieveHandler returns the chunks closest to a text.
func RetrieveHandler(c echo.Context) error {
	type retrieveBody struct {
		Text string `json:"text" validate:"required"`
		TopK int    `json:"top_k" validate:"gte=0,lte=100"`
	}

	type retrieveResponse struct {
		Chunks []common.RetrievedChunk `json:"chunks"`
	}

	data := new(retrieveBody)
	if err := c.Bind(data); err != nil {
		return badRequest(c, "Invalid request body")
	}
	if err := c.Validate(data); err != nil {
		return badRequest(c, "Invalid request body")
	}

	cc := c.(*middleware.AppContext)
	chunks, err := cc.App.Retriever.Retrieve(c.Request().Context(), cc.TenantID, c.Param("kb_type"), data.Text, data.TopK)
	if err != nil {
		return respondError(c, "Retrieve", err)
	}
	return c.JSON(http.StatusOK, retrieveResponse{Chunks: chunks})
}
