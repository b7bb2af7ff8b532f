package openai

import (
	"context"
	"net/http"
	"time"

	"github.com/laedsonzzz/DialogAI-Qualidade-sub001/pkg/ai"
	"github.com/laedsonzzz/DialogAI-Qualidade-sub001/pkg/logger"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/shared"
)

// GenerateChat sends a multi-turn chat conversation to the model and
// returns the assistant's reply as plain text.
//
// System prompts passed via ai.WithSystemPrompts are sent before messages.
// ai.WithJSONResponse and ai.WithSchema switch the response format.
//
// Example:
//
//	msgs := []ai.ChatMessage{
//		{Role: ai.RoleUser, Message: "Resuma o atendimento"},
//	}
//	resp, err := client.GenerateChat(ctx, msgs, ai.WithJSONResponse())
func (c *GraphOpenAIClient) GenerateChat(
	ctx context.Context,
	messages []ai.ChatMessage,
	opts ...ai.GenerateOption,
) (string, error) {
	if c.ChatClient == nil {
		return "", errNotConfigured
	}

	options := ai.ApplyOptions(ai.GenerateOptions{
		Model:         c.chatModel,
		SystemPrompts: []string{},
		Temperature:   0.2,
	}, opts...)

	msgs := make([]openai.ChatCompletionMessageParamUnion, 0, len(options.SystemPrompts)+len(messages))
	for _, message := range options.SystemPrompts {
		msgs = append(msgs, openai.SystemMessage(message))
	}
	for _, message := range messages {
		switch message.Role {
		case ai.RoleSystem:
			msgs = append(msgs, openai.SystemMessage(message.Message))
		case ai.RoleAssistant:
			msgs = append(msgs, openai.AssistantMessage(message.Message))
		default:
			msgs = append(msgs, openai.UserMessage(message.Message))
		}
	}

	body := openai.ChatCompletionNewParams{
		Model:       openai.ChatModel(options.Model),
		Messages:    msgs,
		Temperature: openai.Float(options.Temperature),
	}

	switch {
	case options.Schema != nil:
		body.ResponseFormat = openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONSchema: &openai.ResponseFormatJSONSchemaParam{
				JSONSchema: openai.ResponseFormatJSONSchemaJSONSchemaParam{
					Name:        options.Schema.Name,
					Description: openai.String(options.Schema.Description),
					Schema:      ai.GenerateSchema(options.Schema.Out),
					Strict:      openai.Bool(false),
				},
			},
		}
	case options.JSONResponse:
		body.ResponseFormat = openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONObject: &shared.ResponseFormatJSONObjectParam{},
		}
	}

	if options.Thinking != "" {
		// gpt-5 models only accept temperature 1.0 when reasoning is enabled
		if c.chatURL == "" {
			body.Temperature = openai.Float(1.0)
		}
		body.ReasoningEffort = shared.ReasoningEffort(options.Thinking)
	}

	rCtx, cancel := c.requestContext(ctx)
	defer cancel()

	if err := c.reqLock.Acquire(rCtx, 1); err != nil {
		return "", mapError(ctx, err)
	}
	defer c.reqLock.Release(1)

	start := time.Now()
	response, err := c.ChatClient.Chat.Completions.New(rCtx, body)
	if err != nil {
		logger.Debug("[OpenAI][GenerateChat] request failed", "model", options.Model, "err", err)
		return "", mapError(ctx, err)
	}
	duration := time.Since(start).Milliseconds()

	c.modifyMetrics(ai.ModelMetrics{
		InputTokens:  int(response.Usage.PromptTokens),
		OutputTokens: int(response.Usage.CompletionTokens),
		TotalTokens:  int(response.Usage.TotalTokens),
		DurationMs:   duration,
	})

	if len(response.Choices) == 0 {
		return "", ai.NewServiceError(http.StatusBadGateway, "", "no choices in response from model")
	}
	return response.Choices[0].Message.Content, nil
}
