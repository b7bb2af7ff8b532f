package pgx

import (
	"context"
	"errors"
	"fmt"

	"github.com/laedsonzzz/DialogAI-Qualidade-sub001/internal/util"
	"github.com/laedsonzzz/DialogAI-Qualidade-sub001/pkg/common"
	"github.com/laedsonzzz/DialogAI-Qualidade-sub001/pkg/store"

	pgxv5 "github.com/jackc/pgx/v5"
)

const listChunksForExtractionSQL = `
SELECT c.id, c.source_id, c.tenant_id, c.kb_type, c.content, c.token_count, c.created_at
FROM kb_chunks c
JOIN kb_sources s ON s.id = c.source_id
WHERE c.tenant_id = $1
  AND c.kb_type = $2
  AND s.status = 'active'
  AND ($3::text IS NULL OR c.source_id = $3::text)
ORDER BY c.created_at DESC, c.chunk_no ASC
LIMIT $4`

const findNodeByLabelSQL = `
SELECT id, tenant_id, kb_type, label, node_type, properties, source_id
FROM kb_nodes
WHERE tenant_id = $1 AND kb_type = $2 AND label_norm = $3`

const mergeNodeSQL = `
UPDATE kb_nodes
SET node_type  = COALESCE($2::text, node_type),
    properties = CASE WHEN $3::jsonb IS NULL THEN properties ELSE properties || $3::jsonb END,
    updated_at = now()
WHERE id = $1`

const insertNodeSQL = `
INSERT INTO kb_nodes (id, tenant_id, kb_type, label, label_norm, node_type, properties, source_id)
VALUES ($1, $2, $3, $4, $5, $6, COALESCE($7::jsonb, '{}'::jsonb), $8)
RETURNING id`

const insertEdgeSQL = `
INSERT INTO kb_edges (id, tenant_id, kb_type, src_node_id, dst_node_id, relation, properties)
VALUES ($1, $2, $3, $4, $5, $6, COALESCE($7::jsonb, '{}'::jsonb))
ON CONFLICT (tenant_id, kb_type, src_node_id, dst_node_id, relation) DO NOTHING`

func (s *Storage) ListChunksForExtraction(
	ctx context.Context,
	tenantID string,
	kb common.KBType,
	sourceID *string,
	limit int,
) ([]common.Chunk, error) {
	var lim any
	if limit > 0 {
		lim = limit
	}
	rows, err := s.conn.Query(ctx, listChunksForExtractionSQL, tenantID, string(kb), sourceID, lim)
	if err != nil {
		return nil, err
	}
	return pgxv5.CollectRows(rows, func(row pgxv5.CollectableRow) (common.Chunk, error) {
		var (
			c      common.Chunk
			kbType string
		)
		err := row.Scan(&c.ID, &c.SourceID, &c.TenantID, &kbType, &c.Content, &c.TokenCount, &c.CreatedAt)
		c.KBType = common.KBType(kbType)
		return c, err
	})
}

// Begin opens the outer extraction transaction.
func (s *Storage) Begin(ctx context.Context) (store.GraphTx, error) {
	tx, err := s.conn.Begin(ctx)
	if err != nil {
		return nil, err
	}
	return &graphTx{tx: tx, newID: s.newID}, nil
}

// graphTx wraps a pgx transaction. pgx maps Begin on a Tx to a SAVEPOINT,
// Commit to RELEASE and Rollback to ROLLBACK TO, so nesting comes for free.
type graphTx struct {
	tx    pgxv5.Tx
	newID func() (string, error)
}

func (g *graphTx) Begin(ctx context.Context) (store.GraphTx, error) {
	sp, err := g.tx.Begin(ctx)
	if err != nil {
		return nil, err
	}
	return &graphTx{tx: sp, newID: g.newID}, nil
}

func (g *graphTx) Commit(ctx context.Context) error {
	return g.tx.Commit(ctx)
}

func (g *graphTx) Rollback(ctx context.Context) error {
	err := g.tx.Rollback(ctx)
	if errors.Is(err, pgxv5.ErrTxClosed) {
		return nil
	}
	return err
}

func (g *graphTx) FindNodeByLabel(
	ctx context.Context,
	tenantID string,
	kb common.KBType,
	label string,
) (*common.KnowledgeNode, error) {
	var (
		node   common.KnowledgeNode
		kbType string
		props  []byte
	)
	err := g.tx.QueryRow(ctx, findNodeByLabelSQL, tenantID, string(kb), common.NormalizeLabel(label)).Scan(
		&node.ID,
		&node.TenantID,
		&kbType,
		&node.Label,
		&node.NodeType,
		&props,
		&node.SourceID,
	)
	if isNoRows(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	node.KBType = common.KBType(kbType)
	node.Properties, err = decodeProperties(props)
	if err != nil {
		return nil, fmt.Errorf("decode node properties: %w", err)
	}
	return &node, nil
}

func (g *graphTx) MergeNode(
	ctx context.Context,
	id string,
	nodeType *string,
	properties map[string]any,
) error {
	props, err := encodeProperties(properties)
	if err != nil {
		return err
	}
	_, err = g.tx.Exec(ctx, mergeNodeSQL, id, sanitizedPtr(nodeType), props)
	return err
}

func (g *graphTx) InsertNode(ctx context.Context, node common.KnowledgeNode) (string, error) {
	id, err := g.newID()
	if err != nil {
		return "", err
	}
	props, err := encodeProperties(node.Properties)
	if err != nil {
		return "", err
	}
	label := util.SanitizePostgresText(node.Label)

	var created string
	err = g.tx.QueryRow(ctx, insertNodeSQL,
		id,
		node.TenantID,
		string(node.KBType),
		label,
		common.NormalizeLabel(label),
		sanitizedPtr(node.NodeType),
		props,
		node.SourceID,
	).Scan(&created)
	if err != nil {
		return "", err
	}
	return created, nil
}

func (g *graphTx) InsertEdge(ctx context.Context, edge common.KnowledgeEdge) (bool, error) {
	id, err := g.newID()
	if err != nil {
		return false, err
	}
	props, err := encodeProperties(edge.Properties)
	if err != nil {
		return false, err
	}
	tag, err := g.tx.Exec(ctx, insertEdgeSQL,
		id,
		edge.TenantID,
		string(edge.KBType),
		edge.SrcNodeID,
		edge.DstNodeID,
		util.SanitizePostgresText(edge.Relation),
		props,
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func sanitizedPtr(value *string) *string {
	if value == nil {
		return nil
	}
	v := util.SanitizePostgresText(*value)
	return &v
}
