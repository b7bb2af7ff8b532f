package server

import (
	"github.com/laedsonzzz/DialogAI-Qualidade-sub001/internal/server/middleware"
	"github.com/laedsonzzz/DialogAI-Qualidade-sub001/internal/server/routes"

	"github.com/labstack/echo/v4"
)

func RegisterRoutes(e *echo.Echo) {
	// Health check route
	e.GET("/health", func(c echo.Context) error {
		return c.String(200, "OK")
	})

	apiRoutes := e.Group("/api", middleware.TenantMiddleware)

	// Knowledge base routes
	apiRoutes.POST("/kb/:kb_type/sources/text", routes.CreateTextSourceHandler)
	apiRoutes.POST("/kb/:kb_type/sources/file", routes.CreateFileSourceHandler)
	apiRoutes.PATCH("/kb/:kb_type/sources/:id", routes.EditSourceHandler)
	apiRoutes.POST("/kb/:kb_type/retrieve", routes.RetrieveHandler)
	apiRoutes.POST("/kb/:kb_type/graph/extract", routes.ExtractGraphHandler)

	// Analysis run routes
	apiRoutes.POST("/analysis-runs/import", routes.ImportAnalysisRunHandler)
	apiRoutes.POST("/analysis-runs/:id/start", routes.StartAnalysisRunHandler)
	apiRoutes.GET("/analysis-runs/:id", routes.GetAnalysisRunHandler)
}
