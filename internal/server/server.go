// Package server exposes the knowledge-base and analysis operations over
// HTTP.
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-playground/validator"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	mid "github.com/laedsonzzz/DialogAI-Qualidade-sub001/internal/server/middleware"
	"github.com/laedsonzzz/DialogAI-Qualidade-sub001/pkg/logger"
)

type CustomValidator struct {
	validator *validator.Validate
}

func (cv *CustomValidator) Validate(i any) error {
	if err := cv.validator.Struct(i); err != nil {
		return err
	}
	return nil
}

type Config struct {
	Port        string
	BodyLimit   string
	CORSOrigins []string
}

// New builds the echo instance with middleware and routes.
func New(cfg Config, app *mid.App) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.Validator = &CustomValidator{validator: validator.New()}

	e.Use(mid.AppContextMiddleware(app))
	if len(cfg.CORSOrigins) > 0 {
		e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
			AllowOrigins: cfg.CORSOrigins,
			AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, mid.TenantHeader},
		}))
	}
	e.Use(middleware.RequestLogger())
	e.Use(middleware.Recover())
	if cfg.BodyLimit != "" {
		e.Use(middleware.BodyLimit(cfg.BodyLimit))
	}

	RegisterRoutes(e)
	return e
}

// Run serves until ctx is done and then shuts down gracefully.
func Run(ctx context.Context, e *echo.Echo, port string) error {
	if port == "" {
		port = "8080"
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Starting server", "port", port)
		if err := e.Start(":" + port); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error("Failed to shutdown server", "err", err)
		return err
	}
	return nil
}
