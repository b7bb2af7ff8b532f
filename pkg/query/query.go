package query

import (
	"context"
	"fmt"

	"github.com/laedsonzzz/DialogAI-Qualidade-sub001/pkg/common"
	"github.com/laedsonzzz/DialogAI-Qualidade-sub001/pkg/logger"
	"github.com/laedsonzzz/DialogAI-Qualidade-sub001/pkg/store"
)

const DefaultTopK = 5

// Embedder turns texts into fixed dimension vectors.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

type Config struct {
	DefaultTopK int
}

// Retriever answers nearest-neighbour lookups over the stored chunks of a
// tenant's knowledge base.
type Retriever struct {
	embedder Embedder
	searcher store.ChunkSearcher
	cfg      Config
	trace    Tracer
}

type RetrieverOption func(*Retriever)

// WithTracer records the ids of the chunks every lookup returns.
func WithTracer(trace Tracer) RetrieverOption {
	return func(r *Retriever) {
		r.trace = trace
	}
}

func NewRetriever(
	embedder Embedder,
	searcher store.ChunkSearcher,
	cfg Config,
	opts ...RetrieverOption,
) *Retriever {
	if cfg.DefaultTopK <= 0 {
		cfg.DefaultTopK = DefaultTopK
	}
	r := &Retriever{embedder: embedder, searcher: searcher, cfg: cfg}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(r)
	}
	return r
}

// Retrieve embeds text and returns up to topK chunks ordered by ascending
// cosine distance. A non-positive topK falls back to the configured default.
// An empty knowledge base yields an empty slice.
func (r *Retriever) Retrieve(
	ctx context.Context,
	tenantID string,
	kbType string,
	text string,
	topK int,
) ([]common.RetrievedChunk, error) {
	kb, err := common.ParseKBType(kbType)
	if err != nil {
		return nil, err
	}
	if topK <= 0 {
		topK = r.cfg.DefaultTopK
	}
	topK = max(topK, 1)

	vectors, err := r.embedder.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vectors) == 0 {
		return nil, fmt.Errorf("embedder returned no vector for query")
	}

	chunks, err := r.searcher.SearchChunks(ctx, tenantID, kb, vectors[0], topK)
	if err != nil {
		return nil, fmt.Errorf("search chunks: %w", err)
	}
	if chunks == nil {
		chunks = []common.RetrievedChunk{}
	}

	ids := make([]string, len(chunks))
	for i, c := range chunks {
		ids[i] = c.ChunkID
	}
	RecordRetrievedChunkIDs(r.trace, ids...)

	logger.Debug("[Query][Retrieve] Retrieved chunks", "tenant", tenantID, "kb", kb, "top_k", topK, "hits", len(chunks))
	return chunks, nil
}
