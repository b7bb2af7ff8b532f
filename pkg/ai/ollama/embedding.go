package ollama

import (
	"context"
	"strings"

	"github.com/laedsonzzz/DialogAI-Qualidade-sub001/pkg/ai"

	"github.com/ollama/ollama/api"
)

// GenerateEmbeddings embeds all non-blank inputs with one /api/embed call.
// Blank inputs come back as empty vectors.
func (c *GraphOllamaClient) GenerateEmbeddings(
	ctx context.Context,
	inputs []string,
) ([][]float32, error) {
	if len(inputs) == 0 {
		return nil, nil
	}

	out := make([][]float32, len(inputs))
	idxMap := make([]int, 0, len(inputs))
	stringsIn := make([]string, 0, len(inputs))
	for i, in := range inputs {
		if strings.TrimSpace(in) == "" {
			out[i] = []float32{}
			continue
		}
		idxMap = append(idxMap, i)
		stringsIn = append(stringsIn, in)
	}
	if len(stringsIn) == 0 {
		return out, nil
	}

	rCtx, cancel := c.requestContext(ctx)
	defer cancel()

	if err := c.reqLock.Acquire(rCtx, 1); err != nil {
		return nil, mapError(ctx, err)
	}
	defer c.reqLock.Release(1)

	res, err := c.Client.Embed(rCtx, &api.EmbedRequest{
		Model: c.embeddingModel,
		Input: stringsIn,
	})
	if err != nil {
		return nil, mapError(ctx, err)
	}

	c.modifyMetrics(ai.ModelMetrics{
		InputTokens: res.PromptEvalCount,
		TotalTokens: res.PromptEvalCount,
		DurationMs:  res.TotalDuration.Milliseconds(),
	})

	for i, vec := range res.Embeddings {
		if i >= len(idxMap) {
			break
		}
		out[idxMap[i]] = vec
	}
	return out, nil
}
