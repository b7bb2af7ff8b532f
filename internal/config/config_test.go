package config

import (
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/laedsonzzz/DialogAI-Qualidade-sub001/pkg/loader"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/dialogai")

	cfg := Load()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("unexpected validation error: %v", err)
	}
	if cfg.AI.Adapter != AdapterOpenAI || cfg.Port != "8080" {
		t.Fatalf("unexpected defaults %+v", cfg)
	}
	if cfg.Retrieve.DefaultTopK != 5 || cfg.Graph.DefaultLimitChunks != 50 || cfg.Motive.SampleCap != 25 {
		t.Fatalf("unexpected component defaults %+v %+v %+v", cfg.Retrieve, cfg.Graph, cfg.Motive)
	}
	if cfg.Ingest.PIIMode != loader.PIIMasked {
		t.Fatalf("expected masked PII mode by default, got %q", cfg.Ingest.PIIMode)
	}
	if cfg.Motive.RunTimeout != 0 || cfg.Graph.LockTTL != 10*time.Minute {
		t.Fatalf("unexpected durations %v %v", cfg.Motive.RunTimeout, cfg.Graph.LockTTL)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/dialogai")
	t.Setenv("AI_ADAPTER", "Ollama")
	t.Setenv("AI_CHAT_MODEL", "llama3")
	t.Setenv("AI_TIMEOUT_SECONDS", "30")
	t.Setenv("PII_MODE", "raw")
	t.Setenv("UPLOAD_ALLOWED_MIMES", "application/pdf, text/plain")
	t.Setenv("UPLOAD_MAX_BYTES", "1024")
	t.Setenv("ANALYSIS_RUN_TIMEOUT_MINUTES", "90")
	t.Setenv("ANALYSIS_REUSE_CACHE", "true")
	t.Setenv("LOG_FORMAT", "JSON")

	cfg := Load()
	if cfg.AI.Adapter != AdapterOllama || cfg.AI.Timeout != 30*time.Second {
		t.Fatalf("unexpected ai config %+v", cfg.AI)
	}
	if cfg.Graph.Model != "llama3" || cfg.Motive.Model != "llama3" {
		t.Fatalf("chat model must be the default for every component, got %q %q", cfg.Graph.Model, cfg.Motive.Model)
	}
	if cfg.Ingest.PIIMode != loader.PIIRaw || cfg.Ingest.Loader.MaxUploadBytes != 1024 {
		t.Fatalf("unexpected ingest config %+v", cfg.Ingest)
	}
	if !reflect.DeepEqual(cfg.Ingest.Loader.AllowedMimes, []string{"application/pdf", "text/plain"}) {
		t.Fatalf("unexpected mimes %v", cfg.Ingest.Loader.AllowedMimes)
	}
	if cfg.Motive.RunTimeout != 90*time.Minute || !cfg.Motive.ReuseCache {
		t.Fatalf("unexpected motive config %+v", cfg.Motive)
	}
	if !cfg.LogJSON {
		t.Fatal("expected JSON logging")
	}
}

func TestValidate(t *testing.T) {
	cfg := Config{AI: AIConfig{Adapter: "gemini"}}
	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected validation error")
	}
	for _, want := range []string{"DATABASE_URL", "AI_ADAPTER", "EMBEDDING_DIM"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("expected %q in %q", want, err.Error())
		}
	}
}

func TestValidateEmbeddingDimension(t *testing.T) {
	tests := []struct {
		dim     int
		wantErr bool
	}{
		{dim: 1536, wantErr: false},
		{dim: 768, wantErr: true},
		{dim: 3072, wantErr: true},
		{dim: 0, wantErr: true},
	}
	for _, tt := range tests {
		cfg := Config{DatabaseURL: "postgres://db", AI: AIConfig{Adapter: AdapterOpenAI}}
		cfg.Embed.Dimension = tt.dim
		err := cfg.Validate()
		if (err != nil) != tt.wantErr {
			t.Fatalf("dim %d: expected error=%v, got %v", tt.dim, tt.wantErr, err)
		}
	}
}

func TestAIConfigNewClient(t *testing.T) {
	if _, err := (AIConfig{Adapter: AdapterOpenAI, ChatKey: "k"}).NewClient(); err != nil {
		t.Fatalf("openai: %v", err)
	}
	if _, err := (AIConfig{Adapter: AdapterOllama, ChatURL: "http://localhost:11434"}).NewClient(); err != nil {
		t.Fatalf("ollama: %v", err)
	}
	if _, err := (AIConfig{Adapter: "other"}).NewClient(); err == nil {
		t.Fatal("expected error for unknown adapter")
	}
}
