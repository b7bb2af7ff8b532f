package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"

	"github.com/laedsonzzz/DialogAI-Qualidade-sub001/internal/queue"
	"github.com/laedsonzzz/DialogAI-Qualidade-sub001/internal/server/middleware"
	"github.com/laedsonzzz/DialogAI-Qualidade-sub001/pkg/common"
	"github.com/laedsonzzz/DialogAI-Qualidade-sub001/pkg/graph"
	"github.com/laedsonzzz/DialogAI-Qualidade-sub001/pkg/ingest"
	"github.com/laedsonzzz/DialogAI-Qualidade-sub001/pkg/loader"
	"github.com/laedsonzzz/DialogAI-Qualidade-sub001/pkg/store"
)

type fakeIngester struct {
	textReqs  []ingest.TextRequest
	fileReqs  []ingest.FileRequest
	statusArg []string
	err       error
	validErr  error
}

func (f *fakeIngester) ValidateFile(req ingest.FileRequest) error {
	return f.validErr
}

func (f *fakeIngester) IngestFile(ctx context.Context, req ingest.FileRequest) (*ingest.Result, error) {
	f.fileReqs = append(f.fileReqs, req)
	if f.err != nil {
		return nil, f.err
	}
	return &ingest.Result{Source: common.Source{ID: "src-1", TenantID: req.TenantID}, Chunks: 2}, nil
}

func (f *fakeIngester) IngestText(ctx context.Context, req ingest.TextRequest) (*ingest.Result, error) {
	f.textReqs = append(f.textReqs, req)
	if f.err != nil {
		return nil, f.err
	}
	return &ingest.Result{Source: common.Source{ID: "src-1", TenantID: req.TenantID}, Chunks: 1}, nil
}

func (f *fakeIngester) SetSourceStatus(ctx context.Context, tenantID, kbType, sourceID, status string) error {
	f.statusArg = []string{tenantID, kbType, sourceID, status}
	return f.err
}

type fakeRetriever struct {
	topK int
}

func (f *fakeRetriever) Retrieve(ctx context.Context, tenantID, kbType, text string, topK int) ([]common.RetrievedChunk, error) {
	f.topK = topK
	if kbType != "client" {
		return nil, common.ErrInvalidKBType
	}
	return []common.RetrievedChunk{{ChunkID: "c1", Content: "Prazo de 7 dias"}}, nil
}

type fakeGraph struct {
	req graph.Request
	err error
}

func (f *fakeGraph) RunExtraction(ctx context.Context, req graph.Request) (graph.Summary, error) {
	f.req = req
	return graph.Summary{Processed: 3}, f.err
}

type fakeAnalysis struct {
	store.AnalysisStore
	rows []common.TranscriptRow
	runs map[string]common.AnalysisRun
}

func (f *fakeAnalysis) CreateRun(ctx context.Context, tenantID string) (common.AnalysisRun, error) {
	run := common.AnalysisRun{ID: "run-1", TenantID: tenantID, Status: common.RunStatusPending}
	if f.runs == nil {
		f.runs = map[string]common.AnalysisRun{}
	}
	f.runs[run.ID] = run
	return run, nil
}

func (f *fakeAnalysis) ImportTranscriptRows(ctx context.Context, rows []common.TranscriptRow) (int64, error) {
	f.rows = append(f.rows, rows...)
	return int64(len(rows)), nil
}

func (f *fakeAnalysis) GetRun(ctx context.Context, runID, tenantID string) (*common.AnalysisRun, error) {
	run, ok := f.runs[runID]
	if !ok || run.TenantID != tenantID {
		return nil, nil
	}
	return &run, nil
}

func (f *fakeAnalysis) GetRunReport(ctx context.Context, runID, tenantID string) (*common.RunReport, error) {
	run, _ := f.GetRun(ctx, runID, tenantID)
	if run == nil {
		return nil, nil
	}
	return &common.RunReport{Run: *run, Progress: []common.MotiveProgress{}, Results: []common.MotiveResult{}, Errors: []common.ErrorEntry{}}, nil
}

type fakeStarter struct {
	started []string
}

func (f *fakeStarter) Start(ctx context.Context, runID, tenantID string) error {
	f.started = append(f.started, runID+"@"+tenantID)
	return nil
}

type fakeUploads struct {
	keys    []string
	deleted []string
}

func (f *fakeUploads) Put(ctx context.Context, key, contentType string, content []byte) error {
	f.keys = append(f.keys, key)
	return nil
}

func (f *fakeUploads) Delete(ctx context.Context, key string) error {
	f.deleted = append(f.deleted, key)
	return nil
}

type fakeIngestQueue struct {
	msgs []queue.IngestMsg
	err  error
}

func (f *fakeIngestQueue) PublishIngest(ctx context.Context, msg queue.IngestMsg) error {
	if f.err != nil {
		return f.err
	}
	f.msgs = append(f.msgs, msg)
	return nil
}

type testApp struct {
	ingester  *fakeIngester
	retriever *fakeRetriever
	graph     *fakeGraph
	analysis  *fakeAnalysis
	starter   *fakeStarter
	app       *middleware.App
	e         *echo.Echo
}

func newTestApp() *testApp {
	t := &testApp{
		ingester:  &fakeIngester{},
		retriever: &fakeRetriever{},
		graph:     &fakeGraph{},
		analysis:  &fakeAnalysis{},
		starter:   &fakeStarter{},
	}
	t.app = &middleware.App{
		Ingest:    t.ingester,
		Retriever: t.retriever,
		Graph:     t.graph,
		Analysis:  t.analysis,
		Analyzer:  t.starter,
	}
	t.e = New(Config{}, t.app)
	return t
}

func (t *testApp) do(method, target, contentType, body string, tenant bool) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if contentType != "" {
		req.Header.Set(echo.HeaderContentType, contentType)
	}
	if tenant {
		req.Header.Set(middleware.TenantHeader, "t1")
	}
	rec := httptest.NewRecorder()
	t.e.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, out any) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), out); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
}

func TestHealth(t *testing.T) {
	rec := newTestApp().do(http.MethodGet, "/health", "", "", false)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestTenantHeaderRequired(t *testing.T) {
	ta := newTestApp()
	rec := ta.do(http.MethodPost, "/api/kb/client/sources/text", echo.MIMEApplicationJSON, `{"text":"x"}`, false)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	if len(ta.ingester.textReqs) != 0 {
		t.Fatal("handler must not run without tenant")
	}
}

func TestCreateTextSource(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		err      error
		wantCode int
	}{
		{name: "created", body: `{"text":"Prazo de 7 dias.","pii_mode":"raw"}`, wantCode: http.StatusCreated},
		{name: "missing text", body: `{"title":"x"}`, wantCode: http.StatusBadRequest},
		{name: "bad pii mode", body: `{"text":"x","pii_mode":"hidden"}`, wantCode: http.StatusBadRequest},
		{name: "invalid kb", body: `{"text":"x"}`, err: common.ErrInvalidKBType, wantCode: http.StatusBadRequest},
		{name: "empty after canonicalization", body: `{"text":"x"}`, err: ingest.ErrEmptyText, wantCode: http.StatusUnprocessableEntity},
		{name: "internal", body: `{"text":"x"}`, err: errors.New("db down"), wantCode: http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ta := newTestApp()
			ta.ingester.err = tt.err
			rec := ta.do(http.MethodPost, "/api/kb/client/sources/text", echo.MIMEApplicationJSON, tt.body, true)
			if rec.Code != tt.wantCode {
				t.Fatalf("expected %d, got %d: %s", tt.wantCode, rec.Code, rec.Body.String())
			}
			if rec.Code == http.StatusInternalServerError && strings.Contains(rec.Body.String(), "db down") {
				t.Fatal("internal errors must not leak")
			}
			if tt.wantCode == http.StatusCreated {
				got := ta.ingester.textReqs[0]
				if got.TenantID != "t1" || got.KBType != "client" || got.PIIMode != loader.PIIRaw {
					t.Fatalf("unexpected request %+v", got)
				}
			}
		})
	}
}

func TestCreateFileSource(t *testing.T) {
	ta := newTestApp()

	rec := ta.do(http.MethodPost, "/api/kb/operator/sources/file", "text/plain", "hello", true)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("missing filename: expected 400, got %d", rec.Code)
	}

	rec = ta.do(http.MethodPost, "/api/kb/operator/sources/file?filename=a.txt&title=Regras", "text/plain", "hello", true)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	got := ta.ingester.fileReqs[0]
	if got.Filename != "a.txt" || got.Title != "Regras" || got.MimeType != "text/plain" || string(got.Content) != "hello" || got.KBType != "operator" {
		t.Fatalf("unexpected request %+v", got)
	}

	ta.ingester.err = &loader.ValidationError{Code: loader.CodeFileTooLarge, Err: loader.ErrFileTooLarge}
	rec = ta.do(http.MethodPost, "/api/kb/operator/sources/file?filename=a.txt", "text/plain", "hello", true)
	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("expected 413, got %d", rec.Code)
	}
	var resp struct {
		Code string `json:"code"`
	}
	decode(t, rec, &resp)
	if resp.Code != loader.CodeFileTooLarge {
		t.Fatalf("expected validation code, got %q", resp.Code)
	}
}

func TestCreateFileSourceAsync(t *testing.T) {
	ta := newTestApp()

	rec := ta.do(http.MethodPost, "/api/kb/client/sources/file?filename=a.pdf&async=true", "application/pdf", "%PDF-1.7", true)
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 without queue, got %d", rec.Code)
	}

	uploads := &fakeUploads{}
	ingestQueue := &fakeIngestQueue{}
	ta.app.Uploads = uploads
	ta.app.IngestQueue = ingestQueue

	rec = ta.do(http.MethodPost, "/api/kb/client/sources/file?filename=a.pdf&async=true", "application/pdf", "%PDF-1.7", true)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", rec.Code, rec.Body.String())
	}
	if len(uploads.keys) != 1 || len(ingestQueue.msgs) != 1 || ingestQueue.msgs[0].ObjectKey != uploads.keys[0] {
		t.Fatalf("expected archived and queued upload, got %v %+v", uploads.keys, ingestQueue.msgs)
	}
	if len(ta.ingester.fileReqs) != 0 {
		t.Fatal("async upload must not ingest inline")
	}

	ingestQueue.err = errors.New("broker down")
	rec = ta.do(http.MethodPost, "/api/kb/client/sources/file?filename=b.pdf&async=true", "application/pdf", "%PDF-1.7", true)
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500 on publish failure, got %d", rec.Code)
	}
	if len(uploads.deleted) != 1 || uploads.deleted[0] != uploads.keys[1] {
		t.Fatalf("expected orphaned upload removed, got %v", uploads.deleted)
	}
	ingestQueue.err = nil

	ta.ingester.validErr = &loader.ValidationError{Code: loader.CodeMagicMismatch, Err: loader.ErrMagicMismatch}
	rec = ta.do(http.MethodPost, "/api/kb/client/sources/file?filename=a.pdf&async=true", "application/pdf", "nope", true)
	if rec.Code != http.StatusBadRequest || len(ingestQueue.msgs) != 1 {
		t.Fatalf("invalid upload must be rejected before queueing, got %d", rec.Code)
	}
}

func TestEditSource(t *testing.T) {
	ta := newTestApp()
	rec := ta.do(http.MethodPatch, "/api/kb/client/sources/src-1", echo.MIMEApplicationJSON, `{"status":"archived"}`, true)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	want := []string{"t1", "client", "src-1", "archived"}
	if strings.Join(ta.ingester.statusArg, ",") != strings.Join(want, ",") {
		t.Fatalf("unexpected args %v", ta.ingester.statusArg)
	}

	ta.ingester.err = store.ErrNotFound
	rec = ta.do(http.MethodPatch, "/api/kb/client/sources/nope", echo.MIMEApplicationJSON, `{"status":"archived"}`, true)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestRetrieve(t *testing.T) {
	ta := newTestApp()
	rec := ta.do(http.MethodPost, "/api/kb/client/retrieve", echo.MIMEApplicationJSON, `{"text":"prazo","top_k":3}`, true)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var resp struct {
		Chunks []common.RetrievedChunk `json:"chunks"`
	}
	decode(t, rec, &resp)
	if len(resp.Chunks) != 1 || resp.Chunks[0].ChunkID != "c1" || ta.retriever.topK != 3 {
		t.Fatalf("unexpected response %+v (topK %d)", resp, ta.retriever.topK)
	}

	rec = ta.do(http.MethodPost, "/api/kb/other/retrieve", echo.MIMEApplicationJSON, `{"text":"prazo"}`, true)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for invalid kb, got %d", rec.Code)
	}
}

func TestExtractGraph(t *testing.T) {
	ta := newTestApp()
	rec := ta.do(http.MethodPost, "/api/kb/client/graph/extract", echo.MIMEApplicationJSON, `{"limit_chunks":7,"source_id":"s1"}`, true)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if ta.graph.req.LimitChunks != 7 || ta.graph.req.SourceID == nil || *ta.graph.req.SourceID != "s1" || ta.graph.req.TenantID != "t1" {
		t.Fatalf("unexpected request %+v", ta.graph.req)
	}

	ta.graph.err = graph.ErrExtractionBusy
	rec = ta.do(http.MethodPost, "/api/kb/client/graph/extract", echo.MIMEApplicationJSON, `{}`, true)
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rec.Code)
	}
}

func TestAnalysisRunLifecycle(t *testing.T) {
	ta := newTestApp()
	csv := "ID_Atendimento;Mensagem;Papel;Ordem;Motivo\n" +
		"A1;Quero cancelar;Cliente;1;Cancelamento\n" +
		"A1;Posso ajudar;Atendente;2;Cancelamento\n"

	rec := ta.do(http.MethodPost, "/api/analysis-runs/import?filename=export.csv&start=true", "text/csv", csv, true)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		Run      common.AnalysisRun `json:"run"`
		Imported int64              `json:"imported"`
		Started  bool               `json:"started"`
	}
	decode(t, rec, &resp)
	if resp.Run.ID != "run-1" || resp.Imported != 2 || !resp.Started {
		t.Fatalf("unexpected response %+v", resp)
	}
	if ta.analysis.rows[0].RunID != "run-1" || ta.analysis.rows[0].TenantID != "t1" || ta.analysis.rows[1].Seq != 2 {
		t.Fatalf("unexpected rows %+v", ta.analysis.rows)
	}
	if len(ta.starter.started) != 1 || ta.starter.started[0] != "run-1@t1" {
		t.Fatalf("unexpected starts %v", ta.starter.started)
	}

	rec = ta.do(http.MethodPost, "/api/analysis-runs/run-1/start", "", "", true)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", rec.Code)
	}
	rec = ta.do(http.MethodPost, "/api/analysis-runs/missing/start", "", "", true)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}

	for _, status := range []common.RunStatus{common.RunStatusCompleted, common.RunStatusFailed} {
		ta.analysis.runs["run-2"] = common.AnalysisRun{ID: "run-2", TenantID: "t1", Status: status}
		rec = ta.do(http.MethodPost, "/api/analysis-runs/run-2/start", "", "", true)
		if rec.Code != http.StatusConflict {
			t.Fatalf("expected 409 for %s run, got %d", status, rec.Code)
		}
	}
	if len(ta.starter.started) != 2 {
		t.Fatalf("finished runs must not be dispatched, got %v", ta.starter.started)
	}

	rec = ta.do(http.MethodGet, "/api/analysis-runs/run-1", "", "", true)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var report common.RunReport
	decode(t, rec, &report)
	if report.Run.ID != "run-1" || report.Run.Status != common.RunStatusPending {
		t.Fatalf("unexpected report %+v", report)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/analysis-runs/run-1", nil)
	req.Header.Set(middleware.TenantHeader, "other")
	rec = httptest.NewRecorder()
	ta.e.ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("runs of other tenants must be invisible, got %d", rec.Code)
	}
}

func TestImportAnalysisRunRejections(t *testing.T) {
	ta := newTestApp()

	rec := ta.do(http.MethodPost, "/api/analysis-runs/import?filename=a.pdf", "application/pdf", "%PDF", true)
	if rec.Code != http.StatusUnsupportedMediaType {
		t.Fatalf("expected 415, got %d", rec.Code)
	}
	rec = ta.do(http.MethodPost, "/api/analysis-runs/import", "text/csv", "a;b\n", true)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 without filename, got %d", rec.Code)
	}
	if len(ta.analysis.runs) != 0 {
		t.Fatal("no run must be created for rejected imports")
	}
}
