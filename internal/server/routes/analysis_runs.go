package routes

import (
	"io"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/laedsonzzz/DialogAI-Qualidade-sub001/internal/server/middleware"
	"github.com/laedsonzzz/DialogAI-Qualidade-sub001/pkg/common"
	"github.com/laedsonzzz/DialogAI-Qualidade-sub001/pkg/loader/transcript"
	"github.com/laedsonzzz/DialogAI-Qualidade-sub001/pkg/logger"
	"github.com/laedsonzzz/DialogAI-Qualidade-sub001/pkg/motive"
	"github.com/laedsonzzz/DialogAI-Qualidade-sub001/pkg/store"
)

var mappableFields = []transcript.Field{
	transcript.FieldAttendanceID,
	transcript.FieldMessage,
	transcript.FieldRole,
	transcript.FieldOrder,
	transcript.FieldMotive,
}

// columnMapping reads map_<field>=<header> query parameters.
func columnMapping(c echo.Context) map[string]string {
	mapping := map[string]string{}
	for _, f := range mappableFields {
		if header := strings.TrimSpace(c.QueryParam("map_" + string(f))); header != "" {
			mapping[string(f)] = header
		}
	}
	return mapping
}

// ImportAnalysisRunHandler parses a transcript table from the raw request
// body into a new analysis run. With start=true the run is dispatched
// right away.
func ImportAnalysisRunHandler(c echo.Context) error {
	type importResponse struct {
		Message  string               `json:"message"`
		Run      *common.AnalysisRun  `json:"run,omitempty"`
		Imported int64                `json:"imported"`
		Started  bool                 `json:"started"`
		Stats    transcript.Stats     `json:"stats"`
		Warnings []transcript.Warning `json:"warnings"`
	}

	filename := strings.TrimSpace(c.QueryParam("filename"))
	if filename == "" {
		return badRequest(c, "Missing filename query parameter")
	}
	content, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return badRequest(c, "Could not read request body")
	}
	if len(content) == 0 {
		return badRequest(c, "Empty transcript file")
	}

	parsed, err := transcript.Parse(content, filename, c.Request().Header.Get(echo.HeaderContentType), columnMapping(c))
	if err != nil {
		return respondError(c, "ImportAnalysisRun", err)
	}
	if len(parsed.Rows) == 0 {
		return c.JSON(http.StatusUnprocessableEntity, importResponse{
			Message:  "No usable transcript rows",
			Stats:    parsed.Stats,
			Warnings: parsed.Warnings,
		})
	}

	cc := c.(*middleware.AppContext)
	ctx := c.Request().Context()

	run, err := cc.App.Analysis.CreateRun(ctx, cc.TenantID)
	if err != nil {
		return respondError(c, "ImportAnalysisRun", err)
	}

	rows := make([]common.TranscriptRow, len(parsed.Rows))
	for i, r := range parsed.Rows {
		rows[i] = common.TranscriptRow{
			RunID:        run.ID,
			TenantID:     cc.TenantID,
			Motive:       r.Motive,
			AttendanceID: r.AttendanceID,
			Seq:          r.Seq,
			Role:         r.Role,
			RawRole:      r.RawRole,
			Text:         r.Text,
		}
	}
	imported, err := cc.App.Analysis.ImportTranscriptRows(ctx, rows)
	if err != nil {
		return respondError(c, "ImportAnalysisRun", err)
	}

	started := false
	if c.QueryParam("start") == "true" {
		if err := cc.App.Analyzer.Start(ctx, run.ID, cc.TenantID); err != nil {
			logger.Error("[Server][ImportAnalysisRun] Could not start run", "run_id", run.ID, "err", err)
		} else {
			started = true
		}
	}

	logger.Info("[Server][ImportAnalysisRun] Transcripts imported", "run_id", run.ID, "rows", imported, "warnings", len(parsed.Warnings))
	return c.JSON(http.StatusCreated, importResponse{
		Message:  "Run created",
		Run:      &run,
		Imported: imported,
		Started:  started,
		Stats:    parsed.Stats,
		Warnings: parsed.Warnings,
	})
}

// StartAnalysisRunHandler dispatches an existing run.
func StartAnalysisRunHandler(c echo.Context) error {
	cc := c.(*middleware.AppContext)
	ctx := c.Request().Context()
	runID := c.Param("id")

	run, err := cc.App.Analysis.GetRun(ctx, runID, cc.TenantID)
	if err != nil {
		return respondError(c, "StartAnalysisRun", err)
	}
	if run == nil {
		return respondError(c, "StartAnalysisRun", store.ErrNotFound)
	}
	if run.Status != common.RunStatusPending {
		return respondError(c, "StartAnalysisRun", motive.ErrRunFinished)
	}
	if err := cc.App.Analyzer.Start(ctx, runID, cc.TenantID); err != nil {
		return respondError(c, "StartAnalysisRun", err)
	}
	return c.JSON(http.StatusAccepted, map[string]string{"message": "Run started", "run_id": runID})
}

// GetAnalysisRunHandler returns the progress, results and errors of a run.
func GetAnalysisRunHandler(c echo.Context) error {
	cc := c.(*middleware.AppContext)

	report, err := cc.App.Analysis.GetRunReport(c.Request().Context(), c.Param("id"), cc.TenantID)
	if err != nil {
		return respondError(c, "GetAnalysisRun", err)
	}
	if report == nil {
		return respondError(c, "GetAnalysisRun", store.ErrNotFound)
	}
	return c.JSON(http.StatusOK, report)
}
