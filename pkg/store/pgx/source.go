package pgx

import (
	"context"
	"fmt"
	"time"

	"github.com/laedsonzzz/DialogAI-Qualidade-sub001/internal/util"
	"github.com/laedsonzzz/DialogAI-Qualidade-sub001/pkg/common"
	"github.com/laedsonzzz/DialogAI-Qualidade-sub001/pkg/logger"
	"github.com/laedsonzzz/DialogAI-Qualidade-sub001/pkg/store"

	pgxv5 "github.com/jackc/pgx/v5"
	"github.com/pgvector/pgvector-go"
)

const insertSourceSQL = `
INSERT INTO kb_sources (id, tenant_id, kb_type, title, filename, mime_type, status)
VALUES ($1, $2, $3, $4, NULLIF($5, ''), NULLIF($6, ''), $7)
RETURNING created_at`

const insertChunkSQL = `
INSERT INTO kb_chunks (id, source_id, tenant_id, kb_type, chunk_no, content, token_count, embedding)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

const getSourceSQL = `
SELECT id, tenant_id, kb_type, title, COALESCE(filename, ''), COALESCE(mime_type, ''), status, created_at
FROM kb_sources
WHERE tenant_id = $1 AND kb_type = $2 AND id = $3`

const setSourceStatusSQL = `
UPDATE kb_sources
SET status = $4, updated_at = now()
WHERE tenant_id = $1 AND kb_type = $2 AND id = $3`

const searchChunksSQL = `
SELECT c.id, c.content, s.title, (c.embedding <=> $3)::float8 AS distance
FROM kb_chunks c
JOIN kb_sources s ON s.id = c.source_id
WHERE c.tenant_id = $1
  AND c.kb_type = $2
  AND s.status = 'active'
ORDER BY c.embedding <=> $3
LIMIT $4`

// SaveSource inserts the source and its chunks in one transaction.
func (s *Storage) SaveSource(
	ctx context.Context,
	src common.Source,
	chunks []common.Chunk,
) (common.Source, error) {
	id, err := s.newID()
	if err != nil {
		return common.Source{}, err
	}
	src.ID = id
	if src.Status == "" {
		src.Status = common.SourceStatusActive
	}

	tx, err := s.conn.Begin(ctx)
	if err != nil {
		return common.Source{}, err
	}
	defer tx.Rollback(ctx)

	var createdAt time.Time
	err = tx.QueryRow(ctx, insertSourceSQL,
		src.ID,
		src.TenantID,
		string(src.KBType),
		util.SanitizePostgresText(src.Title),
		util.SanitizePostgresText(src.Filename),
		src.MimeType,
		string(src.Status),
	).Scan(&createdAt)
	if err != nil {
		return common.Source{}, fmt.Errorf("insert source: %w", err)
	}
	src.CreatedAt = createdAt

	err = store.ChunkRange(len(chunks), s.chunkBatchSize, func(start, end int) error {
		batch := &pgxv5.Batch{}
		for i := start; i < end; i++ {
			chunkID, err := s.newID()
			if err != nil {
				return err
			}
			c := chunks[i]
			batch.Queue(insertChunkSQL,
				chunkID,
				src.ID,
				src.TenantID,
				string(src.KBType),
				i,
				util.SanitizePostgresText(c.Content),
				c.TokenCount,
				pgvector.NewVector(c.Embedding),
			)
		}
		return tx.SendBatch(ctx, batch).Close()
	})
	if err != nil {
		return common.Source{}, fmt.Errorf("insert chunks: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return common.Source{}, err
	}

	logger.Debug("[Store][SaveSource] Saved source", "source_id", src.ID, "chunks", len(chunks))
	return src, nil
}

func (s *Storage) GetSource(
	ctx context.Context,
	tenantID string,
	kb common.KBType,
	id string,
) (common.Source, error) {
	var (
		src    common.Source
		kbType string
		status string
	)
	err := s.conn.QueryRow(ctx, getSourceSQL, tenantID, string(kb), id).Scan(
		&src.ID,
		&src.TenantID,
		&kbType,
		&src.Title,
		&src.Filename,
		&src.MimeType,
		&status,
		&src.CreatedAt,
	)
	if isNoRows(err) {
		return common.Source{}, store.ErrNotFound
	}
	if err != nil {
		return common.Source{}, err
	}
	src.KBType = common.KBType(kbType)
	src.Status = common.SourceStatus(status)
	return src, nil
}

func (s *Storage) SetSourceStatus(
	ctx context.Context,
	tenantID string,
	kb common.KBType,
	id string,
	status common.SourceStatus,
) error {
	tag, err := s.conn.Exec(ctx, setSourceStatusSQL, tenantID, string(kb), id, string(status))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

// SearchChunks ranks chunks of active sources by cosine distance to the
// query embedding.
func (s *Storage) SearchChunks(
	ctx context.Context,
	tenantID string,
	kb common.KBType,
	embedding []float32,
	limit int,
) ([]common.RetrievedChunk, error) {
	rows, err := s.conn.Query(ctx, searchChunksSQL, tenantID, string(kb), pgvector.NewVector(embedding), limit)
	if err != nil {
		return nil, err
	}

	chunks, err := pgxv5.CollectRows(rows, func(row pgxv5.CollectableRow) (common.RetrievedChunk, error) {
		var c common.RetrievedChunk
		err := row.Scan(&c.ChunkID, &c.Content, &c.SourceTitle, &c.Distance)
		return c, err
	})
	if err != nil {
		return nil, err
	}
	if chunks == nil {
		chunks = []common.RetrievedChunk{}
	}
	return chunks, nil
}
