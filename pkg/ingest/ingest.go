// Package ingest turns uploaded documents and free text into embedded
// chunks of a tenant's knowledge base.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/laedsonzzz/DialogAI-Qualidade-sub001/pkg/common"
	"github.com/laedsonzzz/DialogAI-Qualidade-sub001/pkg/loader"
	"github.com/laedsonzzz/DialogAI-Qualidade-sub001/pkg/logger"
	"github.com/laedsonzzz/DialogAI-Qualidade-sub001/pkg/store"
)

var (
	ErrEmptyText         = errors.New("no text left after canonicalization")
	ErrEmbeddingMismatch = errors.New("embedding count does not match chunk count")
	ErrInvalidStatus     = errors.New("invalid source status")
)

const (
	DefaultMaxChunkTokens = 512
	DefaultEmbedBatchSize = 64
)

// Embedder turns texts into fixed dimension vectors.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

type Config struct {
	Loader         loader.Config
	PIIMode        loader.PIIMode
	MaxChunkTokens int
	EmbedBatchSize int
	TokenEncoding  string
}

// Service runs the ingestion pipeline: validate, extract, anonymize,
// chunk, embed and store.
type Service struct {
	embedder Embedder
	sources  store.SourceStore
	cfg      Config
	count    TokenCounter
}

type Option func(*Service)

// WithTokenCounter replaces the tiktoken based counter.
func WithTokenCounter(count TokenCounter) Option {
	return func(s *Service) {
		s.count = count
	}
}

func NewService(embedder Embedder, sources store.SourceStore, cfg Config, opts ...Option) (*Service, error) {
	if cfg.MaxChunkTokens <= 0 {
		cfg.MaxChunkTokens = DefaultMaxChunkTokens
	}
	if cfg.EmbedBatchSize <= 0 {
		cfg.EmbedBatchSize = DefaultEmbedBatchSize
	}
	if cfg.PIIMode == "" {
		cfg.PIIMode = loader.PIIMasked
	}

	s := &Service{embedder: embedder, sources: sources, cfg: cfg}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(s)
	}
	if s.count == nil {
		count, err := NewTiktokenCounter(cfg.TokenEncoding)
		if err != nil {
			return nil, fmt.Errorf("token encoder: %w", err)
		}
		s.count = count
	}
	return s, nil
}

// FileRequest is an uploaded document. An empty PIIMode uses the service
// default.
type FileRequest struct {
	TenantID string
	KBType   string
	Title    string
	Filename string
	MimeType string
	Content  []byte
	PIIMode  loader.PIIMode
}

// TextRequest is a free-text entry typed by a user.
type TextRequest struct {
	TenantID string
	KBType   string
	Title    string
	Text     string
	PIIMode  loader.PIIMode
}

// Result is the stored source together with the canonical text that was
// chunked.
type Result struct {
	Source common.Source `json:"source"`
	Chunks int           `json:"chunks"`
	Text   string        `json:"text"`
}

// ValidateFile runs the upload checks of IngestFile without extracting
// anything, so callers can reject a file before queueing it.
func (s *Service) ValidateFile(req FileRequest) error {
	if _, err := common.ParseKBType(req.KBType); err != nil {
		return err
	}
	return loader.Validate(s.cfg.Loader, req.Content, req.Filename, req.MimeType)
}

func (s *Service) IngestFile(ctx context.Context, req FileRequest) (*Result, error) {
	if err := s.ValidateFile(req); err != nil {
		return nil, err
	}
	kb, _ := common.ParseKBType(req.KBType)
	text, err := loader.ExtractText(req.Content, req.Filename, req.MimeType)
	if err != nil {
		return nil, err
	}

	title := strings.TrimSpace(req.Title)
	if title == "" {
		title = req.Filename
	}
	return s.ingest(ctx, common.Source{
		TenantID: req.TenantID,
		KBType:   kb,
		Title:    title,
		Filename: req.Filename,
		MimeType: loader.NormalizeMime(req.MimeType),
	}, text, s.mode(req.PIIMode))
}

func (s *Service) IngestText(ctx context.Context, req TextRequest) (*Result, error) {
	kb, err := common.ParseKBType(req.KBType)
	if err != nil {
		return nil, err
	}
	return s.ingest(ctx, common.Source{
		TenantID: req.TenantID,
		KBType:   kb,
		Title:    strings.TrimSpace(req.Title),
		MimeType: loader.MimeText,
	}, loader.NormalizeText(req.Text), s.mode(req.PIIMode))
}

// SetSourceStatus archives or re-activates a source. Chunks of archived
// sources are ignored by retrieval and extraction.
func (s *Service) SetSourceStatus(ctx context.Context, tenantID, kbType, sourceID, status string) error {
	kb, err := common.ParseKBType(kbType)
	if err != nil {
		return err
	}
	st := common.SourceStatus(strings.ToLower(strings.TrimSpace(status)))
	if st != common.SourceStatusActive && st != common.SourceStatusArchived {
		return fmt.Errorf("%w: %q", ErrInvalidStatus, status)
	}
	return s.sources.SetSourceStatus(ctx, tenantID, kb, sourceID, st)
}

func (s *Service) mode(requested loader.PIIMode) loader.PIIMode {
	if requested == "" {
		return s.cfg.PIIMode
	}
	return requested
}

func (s *Service) ingest(ctx context.Context, src common.Source, text string, mode loader.PIIMode) (*Result, error) {
	text = strings.TrimSpace(loader.Anonymize(text, mode))
	if text == "" {
		return nil, ErrEmptyText
	}
	if src.Title == "" {
		src.Title = firstLine(text, 80)
	}

	pieces := splitIntoChunks(text, s.cfg.MaxChunkTokens, s.count)
	chunks := make([]common.Chunk, len(pieces))
	for i, p := range pieces {
		chunks[i] = common.Chunk{
			TenantID:   src.TenantID,
			KBType:     src.KBType,
			Content:    p.text,
			TokenCount: p.tokens,
		}
	}

	err := store.ChunkRange(len(chunks), s.cfg.EmbedBatchSize, func(start, end int) error {
		texts := make([]string, 0, end-start)
		for _, c := range chunks[start:end] {
			texts = append(texts, c.Content)
		}
		vectors, err := s.embedder.Embed(ctx, texts)
		if err != nil {
			return err
		}
		if len(vectors) != len(texts) {
			return fmt.Errorf("%w: %d chunks, %d vectors", ErrEmbeddingMismatch, len(texts), len(vectors))
		}
		for i, vec := range vectors {
			chunks[start+i].Embedding = vec
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	saved, err := s.sources.SaveSource(ctx, src, chunks)
	if err != nil {
		return nil, fmt.Errorf("save source: %w", err)
	}

	logger.Info(
		"[Ingest][Ingest] Source stored",
		"tenant", saved.TenantID,
		"kb", saved.KBType,
		"source_id", saved.ID,
		"chunks", len(chunks),
		"pii_mode", mode,
	)
	return &Result{Source: saved, Chunks: len(chunks), Text: text}, nil
}

func firstLine(text string, maxRunes int) string {
	line, _, _ := strings.Cut(text, "\n")
	line = strings.TrimSpace(line)
	if r := []rune(line); len(r) > maxRunes {
		return string(r[:maxRunes])
	}
	return line
}
