package ai

import (
	"context"
)

// ChatMessage represents a single message in a chat conversation.
//
// Role must be one of:
//   - "system"    → instructions for the model
//   - "user"      → a user-provided message
//   - "assistant" → a message from the AI assistant
type ChatMessage struct {
	Message string `json:"message"`
	Role    string `json:"role"`
}

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ResponseSchema asks the backend to constrain its output to a JSON schema
// generated from Out.
type ResponseSchema struct {
	Name        string
	Description string
	Out         any
}

// GenerateOptions holds configuration for AI generation requests.
type GenerateOptions struct {
	Model         string          // Model identifier to use for generation
	SystemPrompts []string        // System prompts prepended to the request
	Temperature   float64         // Sampling temperature (0.0-2.0)
	Thinking      string          // Extended thinking mode configuration
	JSONResponse  bool            // Ask for a bare JSON object
	Schema        *ResponseSchema // Ask for JSON matching a schema, implies JSONResponse
}

// ModelMetrics contains performance metrics from AI model operations.
type ModelMetrics struct {
	InputTokens    int     `json:"input_tokens"`
	OutputTokens   int     `json:"output_tokens"`
	TotalTokens    int     `json:"total_tokens"`
	Requests       int     `json:"requests"`
	DurationMs     int64   `json:"duration_ms"`
	TokenPerSecond float32 `json:"tokens_per_second"`
}

// GenerateOption is a functional option for configuring AI generation requests.
type GenerateOption func(*GenerateOptions)

// WithModel returns a GenerateOption that sets the model to use for generation.
func WithModel(model string) GenerateOption {
	return func(o *GenerateOptions) {
		o.Model = model
	}
}

// WithSystemPrompts returns a GenerateOption that sets the system prompts
// to prepend to the generation request.
func WithSystemPrompts(prompts ...string) GenerateOption {
	return func(o *GenerateOptions) {
		o.SystemPrompts = prompts
	}
}

// WithTemperature returns a GenerateOption that sets the sampling temperature.
// Higher values (e.g., 1.0) produce more random outputs, while lower values
// (e.g., 0.2) make outputs more focused and deterministic.
func WithTemperature(temp float64) GenerateOption {
	return func(o *GenerateOptions) {
		o.Temperature = temp
	}
}

// WithThinking returns a GenerateOption that enables extended thinking mode.
func WithThinking(thinking string) GenerateOption {
	return func(o *GenerateOptions) {
		o.Thinking = thinking
	}
}

// WithJSONResponse asks the model to answer with a single JSON object.
func WithJSONResponse() GenerateOption {
	return func(o *GenerateOptions) {
		o.JSONResponse = true
	}
}

// WithSchema asks the model to answer with JSON matching the schema of out.
func WithSchema(name, description string, out any) GenerateOption {
	return func(o *GenerateOptions) {
		o.JSONResponse = true
		o.Schema = &ResponseSchema{Name: name, Description: description, Out: out}
	}
}

// ApplyOptions folds opts over defaults.
func ApplyOptions(defaults GenerateOptions, opts ...GenerateOption) GenerateOptions {
	for _, o := range opts {
		o(&defaults)
	}
	return defaults
}

// CompletionClient produces a single text completion for an ordered list of
// role-tagged turns.
type CompletionClient interface {
	GenerateChat(
		ctx context.Context,
		messages []ChatMessage,
		opts ...GenerateOption,
	) (string, error)
}

// EmbeddingClient turns texts into vectors, one per input in input order.
type EmbeddingClient interface {
	GenerateEmbeddings(ctx context.Context, inputs []string) ([][]float32, error)
}

// MetricsReporter exposes accumulated usage of a backend.
type MetricsReporter interface {
	ResetMetrics()
	GetMetrics() ModelMetrics
}

// Client is implemented by every backend adapter.
type Client interface {
	CompletionClient
	EmbeddingClient
	MetricsReporter
}
