package routes

import (
	"context"
	"io"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/laedsonzzz/DialogAI-Qualidade-sub001/internal/queue"
	"github.com/laedsonzzz/DialogAI-Qualidade-sub001/internal/server/middleware"
	"github.com/laedsonzzz/DialogAI-Qualidade-sub001/internal/storage"
	"github.com/laedsonzzz/DialogAI-Qualidade-sub001/pkg/ingest"
	"github.com/laedsonzzz/DialogAI-Qualidade-sub001/pkg/loader"
	"github.com/laedsonzzz/DialogAI-Qualidade-sub001/pkg/logger"
)

type sourceResponse struct {
	Message string         `json:"message"`
	Result  *ingest.Result `json:"result,omitempty"`
}

func piiMode(value string) loader.PIIMode {
	if strings.TrimSpace(value) == "" {
		return ""
	}
	return loader.ParsePIIMode(value)
}

// CreateTextSourceHandler stores a free-text entry in a knowledge base.
func CreateTextSourceHandler(c echo.Context) error {
	type createTextSourceBody struct {
		Title   string `json:"title"`
		Text    string `json:"text" validate:"required"`
		PIIMode string `json:"pii_mode" validate:"omitempty,oneof=raw masked"`
	}

	data := new(createTextSourceBody)
	if err := c.Bind(data); err != nil {
		return badRequest(c, "Invalid request body")
	}
	if err := c.Validate(data); err != nil {
		return badRequest(c, "Invalid request body")
	}

	cc := c.(*middleware.AppContext)
	res, err := cc.App.Ingest.IngestText(c.Request().Context(), ingest.TextRequest{
		TenantID: cc.TenantID,
		KBType:   c.Param("kb_type"),
		Title:    data.Title,
		Text:     data.Text,
		PIIMode:  piiMode(data.PIIMode),
	})
	if err != nil {
		return respondError(c, "CreateTextSource", err)
	}
	return c.JSON(http.StatusCreated, sourceResponse{Message: "Source created", Result: res})
}

// CreateFileSourceHandler ingests the raw request body as a document. The
// file name comes from the filename query parameter, the type from the
// Content-Type header. With async=true the file is archived and queued.
func CreateFileSourceHandler(c echo.Context) error {
	filename := strings.TrimSpace(c.QueryParam("filename"))
	if filename == "" {
		return badRequest(c, "Missing filename query parameter")
	}

	content, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return badRequest(c, "Could not read request body")
	}

	cc := c.(*middleware.AppContext)
	req := ingest.FileRequest{
		TenantID: cc.TenantID,
		KBType:   c.Param("kb_type"),
		Title:    c.QueryParam("title"),
		Filename: filename,
		MimeType: c.Request().Header.Get(echo.HeaderContentType),
		Content:  content,
		PIIMode:  piiMode(c.QueryParam("pii_mode")),
	}

	if c.QueryParam("async") == "true" {
		return queueFileSource(c, cc.App, req)
	}

	res, err := cc.App.Ingest.IngestFile(c.Request().Context(), req)
	if err != nil {
		return respondError(c, "CreateFileSource", err)
	}
	return c.JSON(http.StatusCreated, sourceResponse{Message: "Source created", Result: res})
}

func queueFileSource(c echo.Context, app *middleware.App, req ingest.FileRequest) error {
	type queuedResponse struct {
		Message   string `json:"message"`
		ObjectKey string `json:"object_key"`
	}

	if app.Uploads == nil || app.IngestQueue == nil {
		return c.JSON(http.StatusServiceUnavailable, errorResponse{Message: "Asynchronous ingestion is not configured"})
	}
	if err := app.Ingest.ValidateFile(req); err != nil {
		return respondError(c, "CreateFileSource", err)
	}

	ctx := c.Request().Context()
	key, err := storage.UploadKey(req.TenantID, req.KBType, req.Filename)
	if err != nil {
		return respondError(c, "CreateFileSource", err)
	}
	if err := app.Uploads.Put(ctx, key, req.MimeType, req.Content); err != nil {
		return respondError(c, "CreateFileSource", err)
	}
	err = app.IngestQueue.PublishIngest(ctx, queue.IngestMsg{
		TenantID:  req.TenantID,
		KBType:    req.KBType,
		Title:     req.Title,
		Filename:  req.Filename,
		MimeType:  req.MimeType,
		ObjectKey: key,
		PIIMode:   string(req.PIIMode),
	})
	if err != nil {
		if delErr := app.Uploads.Delete(context.WithoutCancel(ctx), key); delErr != nil {
			logger.Warn("[Server][CreateFileSource] Could not remove orphaned upload", "key", key, "err", delErr)
		}
		return respondError(c, "CreateFileSource", err)
	}
	return c.JSON(http.StatusAccepted, queuedResponse{Message: "Source queued", ObjectKey: key})
}

// EditSourceHandler archives or re-activates a source.
func EditSourceHandler(c echo.Context) error {
	type editSourceBody struct {
		Status string `json:"status" validate:"required"`
	}

	data := new(editSourceBody)
	if err := c.Bind(data); err != nil {
		return badRequest(c, "Invalid request body")
	}
	if err := c.Validate(data); err != nil {
		return badRequest(c, "Invalid request body")
	}

	cc := c.(*middleware.AppContext)
	err := cc.App.Ingest.SetSourceStatus(c.Request().Context(), cc.TenantID, c.Param("kb_type"), c.Param("id"), data.Status)
	if err != nil {
		return respondError(c, "EditSource", err)
	}
	return c.JSON(http.StatusOK, sourceResponse{Message: "Source updated"})
}
