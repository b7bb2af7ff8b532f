package routes

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/laedsonzzz/DialogAI-Qualidade-sub001/internal/server/middleware"
	"github.com/laedsonzzz/DialogAI-Qualidade-sub001/pkg/graph"
)

// ExtractGraphHandler runs a knowledge graph extraction and waits for it.
func ExtractGraphHandler(c echo.Context) error {
	type extractGraphBody struct {
		LimitChunks int     `json:"limit_chunks" validate:"gte=0"`
		PIIMode     string  `json:"pii_mode" validate:"omitempty,oneof=raw masked"`
		SourceID    *string `json:"source_id"`
	}

	data := new(extractGraphBody)
	if err := c.Bind(data); err != nil {
		return badRequest(c, "Invalid request body")
	}
	if err := c.Validate(data); err != nil {
		return badRequest(c, "Invalid request body")
	}

	cc := c.(*middleware.AppContext)
	summary, err := cc.App.Graph.RunExtraction(c.Request().Context(), graph.Request{
		TenantID:    cc.TenantID,
		KBType:      c.Param("kb_type"),
		LimitChunks: data.LimitChunks,
		PIIMode:     piiMode(data.PIIMode),
		SourceID:    data.SourceID,
	})
	if err != nil {
		return respondError(c, "ExtractGraph", err)
	}
	return c.JSON(http.StatusOK, summary)
}
