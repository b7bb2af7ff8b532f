package ollama

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/laedsonzzz/DialogAI-Qualidade-sub001/pkg/ai"
	"github.com/laedsonzzz/DialogAI-Qualidade-sub001/pkg/logger"

	"github.com/ollama/ollama/api"
	"github.com/pkoukk/tiktoken-go"
)

const (
	defaultNumCtx  = 4096
	responseBudget = 1024
)

// GenerateChat sends the conversation to Ollama and returns the assistant text.
func (c *GraphOllamaClient) GenerateChat(
	ctx context.Context,
	messages []ai.ChatMessage,
	opts ...ai.GenerateOption,
) (string, error) {
	options := ai.ApplyOptions(ai.GenerateOptions{
		Model:         c.chatModel,
		SystemPrompts: []string{},
		Temperature:   0.2,
	}, opts...)

	msgs := make([]api.Message, 0, len(options.SystemPrompts)+len(messages))
	for _, sys := range options.SystemPrompts {
		msgs = append(msgs, api.Message{Role: ai.RoleSystem, Content: sys})
	}
	for _, m := range messages {
		role := m.Role
		if role == "" {
			role = ai.RoleUser
		}
		msgs = append(msgs, api.Message{Role: role, Content: m.Message})
	}

	stream := false
	req := &api.ChatRequest{
		Model:    options.Model,
		Messages: msgs,
		Stream:   &stream,
		Options:  map[string]any{"temperature": options.Temperature},
	}

	switch {
	case options.Schema != nil:
		schema, err := json.Marshal(ai.GenerateSchema(options.Schema.Out))
		if err != nil {
			return "", err
		}
		req.Format = schema
	case options.JSONResponse:
		req.Format = json.RawMessage(`"json"`)
	}

	if options.Thinking != "" {
		req.Think = &api.ThinkValue{
			Value: options.Thinking,
		}
	}

	if numCtx := contextSize(msgs); numCtx > defaultNumCtx {
		req.Options["num_ctx"] = numCtx
	}

	rCtx, cancel := c.requestContext(ctx)
	defer cancel()

	if err := c.reqLock.Acquire(rCtx, 1); err != nil {
		return "", mapError(ctx, err)
	}
	defer c.reqLock.Release(1)

	var final api.ChatResponse
	if err := c.Client.Chat(rCtx, req, func(cr api.ChatResponse) error {
		final.Message.Content += cr.Message.Content
		if cr.Done {
			final.Done = true
			final.Metrics = cr.Metrics
		}
		return nil
	}); err != nil {
		logger.Debug("[Ollama][GenerateChat] request failed", "model", options.Model, "err", err)
		return "", mapError(ctx, err)
	}

	c.modifyMetrics(ai.ModelMetrics{
		InputTokens:  final.Metrics.PromptEvalCount,
		OutputTokens: final.Metrics.EvalCount,
		TotalTokens:  final.Metrics.PromptEvalCount + final.Metrics.EvalCount,
		DurationMs:   final.Metrics.TotalDuration.Milliseconds(),
	})

	return final.Message.Content, nil
}

// contextSize estimates num_ctx for the request. Falls back to the default
// window when the encoding is not available.
func contextSize(msgs []api.Message) int {
	enc, err := tiktoken.GetEncoding("o200k_base")
	if err != nil {
		logger.Warn("[Ollama] tiktoken encoding unavailable", "err", err)
		return defaultNumCtx
	}
	var chat strings.Builder
	for _, m := range msgs {
		chat.WriteString(m.Content)
		chat.WriteString("\n")
	}
	return len(enc.Encode(chat.String(), nil, nil)) + responseBudget
}
