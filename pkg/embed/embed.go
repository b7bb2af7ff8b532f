// Package embed turns texts into fixed-dimension vectors.
package embed

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/laedsonzzz/DialogAI-Qualidade-sub001/pkg/ai"
	"github.com/laedsonzzz/DialogAI-Qualidade-sub001/pkg/logger"
)

// DefaultDimension is the width of the chunks.embedding column.
const DefaultDimension = 1536

// EmbeddingServiceError is returned when the upstream embedding call fails.
type EmbeddingServiceError struct {
	Status  int
	Details string
	Err     error
}

func (e *EmbeddingServiceError) Error() string {
	return fmt.Sprintf("embedding service error (status %d): %s", e.Status, e.Details)
}

func (e *EmbeddingServiceError) Unwrap() error {
	return e.Err
}

type Config struct {
	Dimension int
}

// Embedder wraps an ai.EmbeddingClient and guarantees the vector size.
type Embedder struct {
	client ai.EmbeddingClient
	dim    int
}

func New(client ai.EmbeddingClient, cfg Config) *Embedder {
	dim := cfg.Dimension
	if dim <= 0 {
		dim = DefaultDimension
	}
	return &Embedder{client: client, dim: dim}
}

// Dimension is the length of every vector returned by Embed.
func (e *Embedder) Dimension() int {
	return e.dim
}

// Embed sends all texts in one upstream call. Every returned vector has
// exactly Dimension entries. A cardinality mismatch is logged and the
// vectors are returned positionally as received.
func (e *Embedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	raw, err := e.client.GenerateEmbeddings(ctx, texts)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
		status := ai.StatusOf(err)
		if status == 0 {
			status = http.StatusBadGateway
		}
		return nil, &EmbeddingServiceError{Status: status, Details: err.Error(), Err: err}
	}

	if len(raw) != len(texts) {
		logger.Warn("[Embed][Embed] embedding count differs from input count",
			"inputs", len(texts), "vectors", len(raw))
	}

	out := make([][]float32, len(raw))
	for i, vec := range raw {
		out[i] = Resize(vec, e.dim)
	}
	return out, nil
}

// Resize truncates or zero-pads vec to dim entries. The input is not modified.
func Resize(vec []float32, dim int) []float32 {
	out := make([]float32, dim)
	copy(out, vec)
	return out
}
