package openai

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/laedsonzzz/DialogAI-Qualidade-sub001/pkg/ai"

	"github.com/openai/openai-go/v3"
)

// GenerateEmbeddings creates embeddings for multiple inputs in a single request.
// Blank inputs are not sent upstream and come back as empty vectors; callers
// own the final dimension.
func (c *GraphOpenAIClient) GenerateEmbeddings(ctx context.Context, inputs []string) ([][]float32, error) {
	if len(inputs) == 0 {
		return nil, nil
	}
	if c.EmbeddingClient == nil {
		return nil, errNotConfigured
	}

	idxMap, stringsIn, out := splitBlankInputs(inputs)
	if len(stringsIn) == 0 {
		return out, nil
	}

	rCtx, cancel := c.requestContext(ctx)
	defer cancel()

	if err := c.reqLock.Acquire(rCtx, 1); err != nil {
		return nil, mapError(ctx, err)
	}
	defer c.reqLock.Release(1)

	body := openai.EmbeddingNewParams{
		Input: openai.EmbeddingNewParamsInputUnion{OfArrayOfStrings: stringsIn},
		Model: c.embeddingModel,
	}

	start := time.Now()
	response, err := c.EmbeddingClient.Embeddings.New(rCtx, body)
	if err != nil {
		return nil, mapError(ctx, err)
	}

	c.modifyMetrics(ai.ModelMetrics{
		InputTokens: int(response.Usage.PromptTokens),
		TotalTokens: int(response.Usage.TotalTokens),
		DurationMs:  time.Since(start).Milliseconds(),
	})

	for _, embedding := range response.Data {
		dataIdx := int(embedding.Index)
		if dataIdx < 0 || dataIdx >= len(stringsIn) {
			return nil, ai.NewServiceError(
				http.StatusBadGateway, "",
				fmt.Sprintf("embedding index out of range: %d", embedding.Index),
			)
		}
		vec := make([]float32, len(embedding.Embedding))
		for i, v := range embedding.Embedding {
			vec[i] = float32(v)
		}
		out[idxMap[dataIdx]] = vec
	}
	return out, nil
}

func splitBlankInputs(inputs []string) (idxMap []int, stringsIn []string, out [][]float32) {
	idxMap = make([]int, 0, len(inputs))
	stringsIn = make([]string, 0, len(inputs))
	out = make([][]float32, len(inputs))
	for i, in := range inputs {
		if strings.TrimSpace(in) == "" {
			out[i] = []float32{}
			continue
		}
		idxMap = append(idxMap, i)
		stringsIn = append(stringsIn, in)
	}
	return idxMap, stringsIn, out
}
