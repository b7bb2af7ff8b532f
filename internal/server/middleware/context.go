package middleware

import (
	"context"

	"github.com/labstack/echo/v4"

	"github.com/laedsonzzz/DialogAI-Qualidade-sub001/internal/queue"
	"github.com/laedsonzzz/DialogAI-Qualidade-sub001/pkg/common"
	"github.com/laedsonzzz/DialogAI-Qualidade-sub001/pkg/graph"
	"github.com/laedsonzzz/DialogAI-Qualidade-sub001/pkg/ingest"
	"github.com/laedsonzzz/DialogAI-Qualidade-sub001/pkg/store"
)

type Ingester interface {
	ValidateFile(req ingest.FileRequest) error
	IngestFile(ctx context.Context, req ingest.FileRequest) (*ingest.Result, error)
	IngestText(ctx context.Context, req ingest.TextRequest) (*ingest.Result, error)
	SetSourceStatus(ctx context.Context, tenantID, kbType, sourceID, status string) error
}

type Retriever interface {
	Retrieve(ctx context.Context, tenantID, kbType, text string, topK int) ([]common.RetrievedChunk, error)
}

type GraphExtractor interface {
	RunExtraction(ctx context.Context, req graph.Request) (graph.Summary, error)
}

type AnalysisStarter interface {
	Start(ctx context.Context, runID, tenantID string) error
}

type UploadArchive interface {
	Put(ctx context.Context, key, contentType string, content []byte) error
	Delete(ctx context.Context, key string) error
}

type IngestPublisher interface {
	PublishIngest(ctx context.Context, msg queue.IngestMsg) error
}

// App holds the services shared by all handlers. Uploads and IngestQueue
// are nil when asynchronous ingestion is not configured.
type App struct {
	Ingest    Ingester
	Retriever Retriever
	Graph     GraphExtractor
	Analysis  store.AnalysisStore
	Analyzer  AnalysisStarter

	Uploads     UploadArchive
	IngestQueue IngestPublisher
}

type AppContext struct {
	echo.Context
	App      *App
	TenantID string
}

func AppContextMiddleware(app *App) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			cc := &AppContext{Context: c, App: app}
			return next(cc)
		}
	}
}
