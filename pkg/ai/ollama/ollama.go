package ollama

import (
	"context"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/laedsonzzz/DialogAI-Qualidade-sub001/pkg/ai"

	"github.com/ollama/ollama/api"
	"golang.org/x/sync/semaphore"
)

// GraphOllamaClient implements ai.Client using Ollama as the backend.
type GraphOllamaClient struct {
	embeddingModel string
	chatModel      string

	timeout time.Duration
	reqLock *semaphore.Weighted

	metricsLock sync.Mutex
	metrics     ai.ModelMetrics

	baseURL    *url.URL
	httpClient *http.Client

	Client *api.Client
}

// NewGraphOllamaClientParams contains configuration options for creating a new GraphOllamaClient.
type NewGraphOllamaClientParams struct {
	EmbeddingModel string
	ChatModel      string

	BaseURL string
	ApiKey  string

	Timeout               time.Duration
	MaxConcurrentRequests int64
}

type headerTransport struct {
	headers map[string]string
	rt      http.RoundTripper
}

func (t *headerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	// clone so original request isn't modified
	r := req.Clone(req.Context())
	for k, v := range t.headers {
		// don't overwrite if already set
		if r.Header.Get(k) == "" {
			r.Header.Set(k, v)
		}
	}
	return t.rt.RoundTrip(r)
}

// NewGraphOllamaClient creates a new Ollama-based AI client with the specified configuration.
// It connects to the Ollama server at the given BaseURL (or the default if empty).
func NewGraphOllamaClient(
	params NewGraphOllamaClientParams,
) (*GraphOllamaClient, error) {
	var (
		u   *url.URL
		err error
	)

	if params.BaseURL != "" {
		u, err = url.Parse(params.BaseURL)
		if err != nil {
			return nil, err
		}
	} else {
		u, _ = url.Parse("http://127.0.0.1:11434")
	}

	headers := map[string]string{}
	if params.ApiKey != "" {
		headers["Authorization"] = "Bearer " + params.ApiKey
	}
	httpClient := &http.Client{
		Transport: &headerTransport{
			headers: headers,
			rt:      http.DefaultTransport,
		},
	}

	cli := api.NewClient(u, httpClient)

	maxReq := params.MaxConcurrentRequests
	if maxReq <= 0 {
		maxReq = 1
	}

	return &GraphOllamaClient{
		embeddingModel: params.EmbeddingModel,
		chatModel:      params.ChatModel,

		timeout: params.Timeout,
		reqLock: semaphore.NewWeighted(maxReq),

		metricsLock: sync.Mutex{},
		metrics:     ai.ModelMetrics{},

		baseURL:    u,
		httpClient: httpClient,

		Client: cli,
	}, nil
}

func (c *GraphOllamaClient) requestContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, c.timeout)
}
