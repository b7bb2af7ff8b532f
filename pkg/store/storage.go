package store

import (
	"context"
	"errors"

	"github.com/laedsonzzz/DialogAI-Qualidade-sub001/pkg/common"
)

// ErrNotFound is returned when a tenant scoped row does not exist.
var ErrNotFound = errors.New("not found")

// SourceStore persists knowledge-base sources and their chunks.
type SourceStore interface {
	// SaveSource stores the source and all of its chunks atomically and
	// returns the source with its generated id.
	SaveSource(ctx context.Context, src common.Source, chunks []common.Chunk) (common.Source, error)
	GetSource(ctx context.Context, tenantID string, kb common.KBType, id string) (common.Source, error)
	SetSourceStatus(ctx context.Context, tenantID string, kb common.KBType, id string, status common.SourceStatus) error
}

// ChunkSearcher runs a nearest-neighbour lookup over chunk embeddings of
// active sources, closest first.
type ChunkSearcher interface {
	SearchChunks(
		ctx context.Context,
		tenantID string,
		kb common.KBType,
		embedding []float32,
		limit int,
	) ([]common.RetrievedChunk, error)
}

// GraphStore is the persistence side of knowledge graph extraction.
type GraphStore interface {
	// ListChunksForExtraction returns chunks of active sources, most recent first.
	ListChunksForExtraction(
		ctx context.Context,
		tenantID string,
		kb common.KBType,
		sourceID *string,
		limit int,
	) ([]common.Chunk, error)
	Begin(ctx context.Context) (GraphTx, error)
}

// GraphTx is a transaction or, when obtained from another GraphTx, a
// savepoint nested in it. Rollback after Commit is a no-op.
type GraphTx interface {
	Begin(ctx context.Context) (GraphTx, error)
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error

	// FindNodeByLabel matches the normalized label and returns nil when absent.
	FindNodeByLabel(ctx context.Context, tenantID string, kb common.KBType, label string) (*common.KnowledgeNode, error)
	// MergeNode overwrites node_type and merges properties when they are
	// non-nil and touches updated_at.
	MergeNode(ctx context.Context, id string, nodeType *string, properties map[string]any) error
	InsertNode(ctx context.Context, node common.KnowledgeNode) (string, error)
	// InsertEdge reports false when an identical edge already exists.
	InsertEdge(ctx context.Context, edge common.KnowledgeEdge) (bool, error)
}

// AnalysisStore persists motive analysis runs, their raw transcripts and
// their outcome.
type AnalysisStore interface {
	CreateRun(ctx context.Context, tenantID string) (common.AnalysisRun, error)
	ImportTranscriptRows(ctx context.Context, rows []common.TranscriptRow) (int64, error)
	// GetRun returns nil when the run does not exist for this tenant.
	GetRun(ctx context.Context, runID, tenantID string) (*common.AnalysisRun, error)
	SetRunStatus(ctx context.Context, runID string, status common.RunStatus) error

	// ListMotives returns the distinct motives of a run ordered by name,
	// each with its number of distinct attendance ids.
	ListMotives(ctx context.Context, runID string) ([]common.MotiveCount, error)
	ListAttendanceIDs(ctx context.Context, runID, motive string) ([]string, error)
	ListMessages(ctx context.Context, runID, motive, attendanceID string) ([]common.TranscriptRow, error)

	// GetProgress returns the processed counter, 0 when none was stored.
	GetProgress(ctx context.Context, runID, motive string) (int, error)
	SetProgress(ctx context.Context, progress common.MotiveProgress) error

	UpsertResult(ctx context.Context, result common.MotiveResult) error
	// GetCache returns nil when the motive was never fully synthesized.
	GetCache(ctx context.Context, tenantID, motive string) (*common.MotiveCache, error)
	UpsertCache(ctx context.Context, cache common.MotiveCache) error
	AppendError(ctx context.Context, entry common.ErrorEntry) error

	GetRunReport(ctx context.Context, runID, tenantID string) (*common.RunReport, error)
}
