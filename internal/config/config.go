// Package config assembles the settings of every component from the
// environment. Components never read the environment themselves.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/laedsonzzz/DialogAI-Qualidade-sub001/internal/queue"
	"github.com/laedsonzzz/DialogAI-Qualidade-sub001/internal/storage"
	"github.com/laedsonzzz/DialogAI-Qualidade-sub001/internal/util"
	"github.com/laedsonzzz/DialogAI-Qualidade-sub001/pkg/ai"
	"github.com/laedsonzzz/DialogAI-Qualidade-sub001/pkg/ai/ollama"
	"github.com/laedsonzzz/DialogAI-Qualidade-sub001/pkg/ai/openai"
	"github.com/laedsonzzz/DialogAI-Qualidade-sub001/pkg/embed"
	"github.com/laedsonzzz/DialogAI-Qualidade-sub001/pkg/graph"
	"github.com/laedsonzzz/DialogAI-Qualidade-sub001/pkg/ingest"
	"github.com/laedsonzzz/DialogAI-Qualidade-sub001/pkg/loader"
	"github.com/laedsonzzz/DialogAI-Qualidade-sub001/pkg/motive"
	"github.com/laedsonzzz/DialogAI-Qualidade-sub001/pkg/query"
)

const (
	AdapterOpenAI = "openai"
	AdapterOllama = "ollama"
)

type Config struct {
	Debug   bool
	LogJSON bool

	Port        string
	BodyLimit   string
	CORSOrigins []string

	DatabaseURL   string
	MigrationsDir string
	AutoMigrate   bool

	AI       AIConfig
	Embed    embed.Config
	Ingest   ingest.Config
	Retrieve query.Config
	Graph    graph.Config
	Motive   motive.Config

	// AsyncAnalysis publishes analysis runs to RabbitMQ instead of running
	// them inside the API process.
	AsyncAnalysis bool
	Queue         queue.Config
	Storage       storage.Config
}

type AIConfig struct {
	Adapter string

	ChatModel      string
	EmbeddingModel string

	ChatURL      string
	ChatKey      string
	EmbeddingURL string
	EmbeddingKey string

	Timeout               time.Duration
	MaxConcurrentRequests int64
}

// Load reads the environment. Missing values fall back to defaults; Validate
// reports the ones that cannot.
func Load() Config {
	chatModel := util.GetEnvString("AI_CHAT_MODEL", "gpt-4o-mini")

	return Config{
		Debug:   util.GetEnvBool("DEBUG", false),
		LogJSON: strings.EqualFold(util.GetEnv("LOG_FORMAT"), "json"),

		Port:        util.GetEnvString("PORT", "8080"),
		BodyLimit:   util.GetEnvString("BODY_LIMIT", "25M"),
		CORSOrigins: util.GetEnvList("CORS_ORIGINS", []string{"*"}),

		DatabaseURL:   util.GetEnv("DATABASE_URL"),
		MigrationsDir: util.GetEnvString("MIGRATIONS_DIR", "migrations"),
		AutoMigrate:   util.GetEnvBool("AUTO_MIGRATE", true),

		AI: AIConfig{
			Adapter:               strings.ToLower(util.GetEnvString("AI_ADAPTER", AdapterOpenAI)),
			ChatModel:             chatModel,
			EmbeddingModel:        util.GetEnvString("AI_EMBED_MODEL", "text-embedding-3-small"),
			ChatURL:               util.GetEnv("AI_CHAT_URL"),
			ChatKey:               util.GetEnv("AI_CHAT_KEY"),
			EmbeddingURL:          util.GetEnv("AI_EMBED_URL"),
			EmbeddingKey:          util.GetEnv("AI_EMBED_KEY"),
			Timeout:               util.GetEnvDuration("AI_TIMEOUT_SECONDS", 120, time.Second),
			MaxConcurrentRequests: int64(util.GetEnvInt("AI_PARALLEL_REQ", 4)),
		},
		Embed: embed.Config{
			Dimension: util.GetEnvInt("EMBEDDING_DIM", embed.DefaultDimension),
		},
		Ingest: ingest.Config{
			Loader: loader.Config{
				MaxUploadBytes: int64(util.GetEnvNumeric("UPLOAD_MAX_BYTES", int(loader.DefaultMaxUploadBytes))),
				AllowedMimes:   util.GetEnvList("UPLOAD_ALLOWED_MIMES", loader.DefaultAllowedMimes),
			},
			PIIMode:        loader.ParsePIIMode(util.GetEnvString("PII_MODE", string(loader.PIIMasked))),
			MaxChunkTokens: util.GetEnvInt("CHUNK_MAX_TOKENS", ingest.DefaultMaxChunkTokens),
			EmbedBatchSize: util.GetEnvInt("EMBED_BATCH_SIZE", ingest.DefaultEmbedBatchSize),
			TokenEncoding:  util.GetEnvString("TOKEN_ENCODING", ingest.DefaultTokenEncoding),
		},
		Retrieve: query.Config{
			DefaultTopK: util.GetEnvInt("RETRIEVE_TOP_K", query.DefaultTopK),
		},
		Graph: graph.Config{
			Model:              util.GetEnvString("AI_CHAT_EXTRACT_MODEL", chatModel),
			Temperature:        util.GetEnvNumeric("GRAPH_TEMPERATURE", 0),
			DefaultLimitChunks: util.GetEnvInt("GRAPH_LIMIT_CHUNKS", graph.DefaultLimitChunks),
			LockTTL:            util.GetEnvDuration("GRAPH_LOCK_TTL_MINUTES", 10, time.Minute),
		},
		Motive: motive.Config{
			SampleCap:      util.GetEnvInt("ANALYSIS_SAMPLE_CAP", motive.DefaultSampleCap),
			MaxPromptChars: util.GetEnvInt("ANALYSIS_MAX_PROMPT_CHARS", motive.DefaultMaxPromptChars),
			RunTimeout:     util.GetEnvDuration("ANALYSIS_RUN_TIMEOUT_MINUTES", 0, time.Minute),
			ReuseCache:     util.GetEnvBool("ANALYSIS_REUSE_CACHE", false),
			Model:          util.GetEnvString("AI_CHAT_ANALYSIS_MODEL", chatModel),
			Temperature:    util.GetEnvNumeric("ANALYSIS_TEMPERATURE", 0),
		},

		AsyncAnalysis: util.GetEnvBool("ANALYSIS_ASYNC", false),
		Queue: queue.Config{
			User:     util.GetEnv("RABBITMQ_USER"),
			Password: util.GetEnv("RABBITMQ_PASSWORD"),
			Host:     util.GetEnvString("RABBITMQ_HOST", "localhost"),
			Port:     util.GetEnvString("RABBITMQ_PORT", "5672"),
		},
		Storage: storage.Config{
			Region:    util.GetEnvString("AWS_REGION", "us-east-1"),
			Endpoint:  util.GetEnv("AWS_ENDPOINT"),
			AccessKey: util.GetEnv("AWS_ACCESS_KEY"),
			SecretKey: util.GetEnv("AWS_SECRET_KEY"),
			Bucket:    util.GetEnv("AWS_BUCKET"),
		},
	}
}

// Validate reports settings without a usable default.
func (c Config) Validate() error {
	var problems []string
	if c.DatabaseURL == "" {
		problems = append(problems, "DATABASE_URL is required")
	}
	switch c.AI.Adapter {
	case AdapterOpenAI, AdapterOllama:
	default:
		problems = append(problems, fmt.Sprintf("AI_ADAPTER %q is not supported", c.AI.Adapter))
	}
	if c.Embed.Dimension != embed.DefaultDimension {
		problems = append(problems, fmt.Sprintf("EMBEDDING_DIM must be %d to match the chunks.embedding column", embed.DefaultDimension))
	}
	if len(problems) > 0 {
		return fmt.Errorf("invalid configuration: %s", strings.Join(problems, "; "))
	}
	return nil
}

// NewClient builds the configured AI backend.
func (c AIConfig) NewClient() (ai.Client, error) {
	switch c.Adapter {
	case AdapterOllama:
		client, err := ollama.NewGraphOllamaClient(ollama.NewGraphOllamaClientParams{
			EmbeddingModel:        c.EmbeddingModel,
			ChatModel:             c.ChatModel,
			BaseURL:               c.ChatURL,
			ApiKey:                c.ChatKey,
			Timeout:               c.Timeout,
			MaxConcurrentRequests: c.MaxConcurrentRequests,
		})
		if err != nil {
			return nil, fmt.Errorf("create ollama client: %w", err)
		}
		return client, nil
	case AdapterOpenAI:
		return openai.NewGraphOpenAIClient(openai.NewGraphOpenAIClientParams{
			EmbeddingModel:        c.EmbeddingModel,
			ChatModel:             c.ChatModel,
			EmbeddingURL:          c.EmbeddingURL,
			EmbeddingKey:          c.EmbeddingKey,
			ChatURL:               c.ChatURL,
			ChatKey:               c.ChatKey,
			Timeout:               c.Timeout,
			MaxConcurrentRequests: c.MaxConcurrentRequests,
		}), nil
	}
	return nil, fmt.Errorf("unsupported AI_ADAPTER %q", c.Adapter)
}
