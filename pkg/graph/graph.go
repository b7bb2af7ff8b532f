package graph

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/laedsonzzz/DialogAI-Qualidade-sub001/pkg/ai"
	"github.com/laedsonzzz/DialogAI-Qualidade-sub001/pkg/common"
	"github.com/laedsonzzz/DialogAI-Qualidade-sub001/pkg/leaselock"
	"github.com/laedsonzzz/DialogAI-Qualidade-sub001/pkg/loader"
	"github.com/laedsonzzz/DialogAI-Qualidade-sub001/pkg/logger"
	"github.com/laedsonzzz/DialogAI-Qualidade-sub001/pkg/store"
)

// ErrExtractionBusy is returned when another extraction holds the lease of
// the same tenant and kb type.
var ErrExtractionBusy = errors.New("extraction already running for tenant and kb type")

const DefaultLimitChunks = 50

// Locker guards a critical section with a named lease. *leaselock.Client
// satisfies it.
type Locker interface {
	WithLease(ctx context.Context, key string, opts leaselock.Options, fn func(ctx context.Context) error) error
}

// Config tunes the extractor.
//
// DefaultLimitChunks applies when a request carries no positive limit.
// LockTTL is the lease duration when a Locker is configured.
type Config struct {
	Model              string
	Temperature        float64
	DefaultLimitChunks int
	LockTTL            time.Duration
}

// Request describes one extraction run.
type Request struct {
	TenantID    string
	KBType      string
	LimitChunks int
	PIIMode     loader.PIIMode
	SourceID    *string
}

// Summary counts what a run did. Processed counts chunks whose savepoint was
// released, Failed counts chunks that were rolled back.
type Summary struct {
	Processed    int `json:"processed"`
	Failed       int `json:"failed"`
	NodesCreated int `json:"nodes_created"`
	EdgesCreated int `json:"edges_created"`
}

// Extractor turns stored chunks into knowledge graph nodes and edges.
type Extractor struct {
	client ai.CompletionClient
	store  store.GraphStore
	cfg    Config
	locker Locker
}

type ExtractorOption func(*Extractor)

// WithLocker rejects overlapping runs for the same tenant and kb type.
func WithLocker(locker Locker) ExtractorOption {
	return func(e *Extractor) {
		e.locker = locker
	}
}

func NewExtractor(
	client ai.CompletionClient,
	graphStore store.GraphStore,
	cfg Config,
	opts ...ExtractorOption,
) *Extractor {
	if cfg.DefaultLimitChunks <= 0 {
		cfg.DefaultLimitChunks = DefaultLimitChunks
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = 10 * time.Minute
	}
	e := &Extractor{client: client, store: graphStore, cfg: cfg}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(e)
	}
	return e
}

// RunExtraction processes up to req.LimitChunks active chunks, most recent
// first, inside one transaction. Every chunk runs under its own savepoint so
// a failing model call or malformed output only discards that chunk.
func (e *Extractor) RunExtraction(ctx context.Context, req Request) (Summary, error) {
	kb, err := common.ParseKBType(req.KBType)
	if err != nil {
		return Summary{}, err
	}

	if e.locker == nil {
		return e.run(ctx, req, kb)
	}

	var summary Summary
	key := fmt.Sprintf("graph-extract:%s:%s", req.TenantID, kb)
	err = e.locker.WithLease(ctx, key, leaselock.Options{TTL: e.cfg.LockTTL}, func(ctx context.Context) error {
		var runErr error
		summary, runErr = e.run(ctx, req, kb)
		return runErr
	})
	if errors.Is(err, leaselock.ErrBusy) {
		return Summary{}, ErrExtractionBusy
	}
	return summary, err
}

func (e *Extractor) run(ctx context.Context, req Request, kb common.KBType) (Summary, error) {
	limit := req.LimitChunks
	if limit <= 0 {
		limit = e.cfg.DefaultLimitChunks
	}

	chunks, err := e.store.ListChunksForExtraction(ctx, req.TenantID, kb, req.SourceID, limit)
	if err != nil {
		return Summary{}, fmt.Errorf("list chunks: %w", err)
	}
	if len(chunks) == 0 {
		logger.Info("[Graph][RunExtraction] No chunks to process", "tenant", req.TenantID, "kb", kb)
		return Summary{}, nil
	}

	logger.Info("[Graph][RunExtraction] Starting extraction", "tenant", req.TenantID, "kb", kb, "chunks", len(chunks))

	tx, err := e.store.Begin(ctx)
	if err != nil {
		return Summary{}, fmt.Errorf("begin extraction: %w", err)
	}
	defer tx.Rollback(context.Background())

	var summary Summary
	for _, chunk := range chunks {
		if err := ctx.Err(); err != nil {
			return Summary{}, err
		}

		nodes, edges, err := e.processChunk(ctx, tx, req, kb, chunk)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return Summary{}, ctxErr
			}
			summary.Failed++
			logger.Warn("[Graph][RunExtraction] Chunk skipped", "chunk_id", chunk.ID, "err", err)
			continue
		}
		summary.Processed++
		summary.NodesCreated += nodes
		summary.EdgesCreated += edges
	}

	if err := tx.Commit(ctx); err != nil {
		return Summary{}, fmt.Errorf("commit extraction: %w", err)
	}

	logger.Info(
		"[Graph][RunExtraction] Finished extraction",
		"tenant", req.TenantID,
		"kb", kb,
		"processed", summary.Processed,
		"failed", summary.Failed,
		"nodes_created", summary.NodesCreated,
		"edges_created", summary.EdgesCreated,
	)
	return summary, nil
}

// processChunk runs one chunk under a savepoint and reports how many nodes
// and edges it created. On error the savepoint is rolled back.
func (e *Extractor) processChunk(
	ctx context.Context,
	tx store.GraphTx,
	req Request,
	kb common.KBType,
	chunk common.Chunk,
) (int, int, error) {
	sp, err := tx.Begin(ctx)
	if err != nil {
		return 0, 0, fmt.Errorf("savepoint: %w", err)
	}

	text := chunk.Content
	if req.PIIMode != loader.PIIRaw {
		text = loader.Anonymize(text, loader.PIIMasked)
	}

	res, err := e.extract(ctx, kb, text)
	if err != nil {
		_ = sp.Rollback(ctx)
		return 0, 0, err
	}

	m := &chunkMerger{
		tx:       sp,
		tenantID: req.TenantID,
		kb:       kb,
		sourceID: chunk.SourceID,
		local:    map[string]string{},
	}
	if err := m.merge(ctx, res); err != nil {
		_ = sp.Rollback(ctx)
		return 0, 0, err
	}
	if err := sp.Commit(ctx); err != nil {
		_ = sp.Rollback(ctx)
		return 0, 0, fmt.Errorf("release savepoint: %w", err)
	}
	return m.nodesCreated, m.edgesCreated, nil
}
