package openai

import (
	"context"
	"sync"
	"time"

	"github.com/laedsonzzz/DialogAI-Qualidade-sub001/pkg/ai"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"golang.org/x/sync/semaphore"
)

// GraphOpenAIClient talks to an OpenAI compatible API. It manages separate
// clients for embeddings and chat so both can point at different endpoints.
//
// A GraphOpenAIClient should be created using NewGraphOpenAIClient.
type GraphOpenAIClient struct {
	embeddingModel string
	chatModel      string

	chatURL string
	timeout time.Duration

	reqLock *semaphore.Weighted

	metricsLock sync.Mutex
	metrics     ai.ModelMetrics

	ChatClient      *openai.Client
	EmbeddingClient *openai.Client
}

// NewGraphOpenAIClientParams defines the configuration parameters for creating
// a new GraphOpenAIClient.
//
// ChatURL and EmbeddingURL may be empty to use the public OpenAI endpoint.
// Timeout bounds every single request, zero disables it.
type NewGraphOpenAIClientParams struct {
	EmbeddingModel string
	ChatModel      string

	EmbeddingURL string
	EmbeddingKey string
	ChatURL      string
	ChatKey      string

	Timeout               time.Duration
	MaxConcurrentRequests int64
}

// NewGraphOpenAIClient creates and returns a new client configured with
// the provided parameters.
//
// Example:
//
//	client := openai.NewGraphOpenAIClient(openai.NewGraphOpenAIClientParams{
//		EmbeddingModel: "text-embedding-3-small",
//		ChatModel:      "gpt-4o-mini",
//		EmbeddingKey:   os.Getenv("OPENAI_API_KEY"),
//		ChatKey:        os.Getenv("OPENAI_API_KEY"),
//	})
func NewGraphOpenAIClient(
	params NewGraphOpenAIClientParams,
) *GraphOpenAIClient {
	chatClient := newOpenaiClient(params.ChatURL, params.ChatKey)
	embedClient := newOpenaiClient(params.EmbeddingURL, params.EmbeddingKey)

	maxReq := params.MaxConcurrentRequests
	if maxReq <= 0 {
		maxReq = 1
	}

	return &GraphOpenAIClient{
		embeddingModel: params.EmbeddingModel,
		chatModel:      params.ChatModel,

		chatURL: params.ChatURL,
		timeout: params.Timeout,

		reqLock: semaphore.NewWeighted(maxReq),

		metricsLock: sync.Mutex{},
		metrics:     ai.ModelMetrics{},

		ChatClient:      chatClient,
		EmbeddingClient: embedClient,
	}
}

func newOpenaiClient(
	baseURL string,
	apiKey string,
) *openai.Client {
	if apiKey == "" {
		return nil
	}
	options := []option.RequestOption{
		option.WithAPIKey(apiKey),
		// retries are owned by the queue
		option.WithMaxRetries(0),
	}

	if baseURL != "" {
		options = append(options, option.WithBaseURL(baseURL))
	}

	client := openai.NewClient(options...)

	return &client
}

func (c *GraphOpenAIClient) requestContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, c.timeout)
}
