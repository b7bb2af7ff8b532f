package graph

import (
	"context"
	"fmt"

	"github.com/laedsonzzz/DialogAI-Qualidade-sub001/pkg/common"
	"github.com/laedsonzzz/DialogAI-Qualidade-sub001/pkg/logger"
	"github.com/laedsonzzz/DialogAI-Qualidade-sub001/pkg/store"
)

// chunkMerger writes the extraction of one chunk. local maps normalized
// labels to node ids resolved while handling this chunk.
type chunkMerger struct {
	tx       store.GraphTx
	tenantID string
	kb       common.KBType
	sourceID string
	local    map[string]string

	nodesCreated int
	edgesCreated int
}

func (m *chunkMerger) merge(ctx context.Context, res extractResponse) error {
	for _, n := range res.Nodes {
		if err := m.upsertNode(ctx, n); err != nil {
			return fmt.Errorf("upsert node %q: %w", n.Label, err)
		}
	}

	for _, edge := range res.Edges {
		src, err := m.resolve(ctx, edge.SrcLabel)
		if err != nil {
			return fmt.Errorf("resolve node %q: %w", edge.SrcLabel, err)
		}
		dst, err := m.resolve(ctx, edge.DstLabel)
		if err != nil {
			return fmt.Errorf("resolve node %q: %w", edge.DstLabel, err)
		}
		m.insertEdge(ctx, src, dst, edge)
	}
	return nil
}

func (m *chunkMerger) upsertNode(ctx context.Context, n extractNode) error {
	key := common.NormalizeLabel(n.Label)
	if _, ok := m.local[key]; ok {
		return nil
	}

	var nodeType *string
	if n.NodeType != "" {
		nodeType = &n.NodeType
	}

	existing, err := m.tx.FindNodeByLabel(ctx, m.tenantID, m.kb, n.Label)
	if err != nil {
		return err
	}
	if existing != nil {
		if err := m.tx.MergeNode(ctx, existing.ID, nodeType, n.Properties); err != nil {
			return err
		}
		m.local[key] = existing.ID
		return nil
	}

	id, err := m.insertNode(ctx, n.Label, nodeType, n.Properties)
	if err != nil {
		return err
	}
	m.local[key] = id
	return nil
}

// resolve returns the id of label, preferring nodes already seen in this
// chunk, then the store, and creating the node as a last resort.
func (m *chunkMerger) resolve(ctx context.Context, label string) (string, error) {
	key := common.NormalizeLabel(label)
	if id, ok := m.local[key]; ok {
		return id, nil
	}

	existing, err := m.tx.FindNodeByLabel(ctx, m.tenantID, m.kb, label)
	if err != nil {
		return "", err
	}
	if existing != nil {
		m.local[key] = existing.ID
		return existing.ID, nil
	}

	id, err := m.insertNode(ctx, label, nil, nil)
	if err != nil {
		return "", err
	}
	m.local[key] = id
	return id, nil
}

func (m *chunkMerger) insertNode(
	ctx context.Context,
	label string,
	nodeType *string,
	props map[string]any,
) (string, error) {
	var sourceID *string
	if m.sourceID != "" {
		sourceID = &m.sourceID
	}
	id, err := m.tx.InsertNode(ctx, common.KnowledgeNode{
		TenantID:   m.tenantID,
		KBType:     m.kb,
		Label:      label,
		NodeType:   nodeType,
		Properties: props,
		SourceID:   sourceID,
	})
	if err != nil {
		return "", err
	}
	m.nodesCreated++
	return id, nil
}

// insertEdge runs under its own savepoint. Failures are logged and only
// discard this edge.
func (m *chunkMerger) insertEdge(ctx context.Context, src, dst string, edge extractEdge) {
	sp, err := m.tx.Begin(ctx)
	if err != nil {
		logger.Warn("[Graph][InsertEdge] Could not open savepoint", "relation", edge.Relation, "err", err)
		return
	}

	created, err := sp.InsertEdge(ctx, common.KnowledgeEdge{
		TenantID:   m.tenantID,
		KBType:     m.kb,
		SrcNodeID:  src,
		DstNodeID:  dst,
		Relation:   edge.Relation,
		Properties: edge.Properties,
	})
	if err != nil {
		_ = sp.Rollback(ctx)
		logger.Warn(
			"[Graph][InsertEdge] Edge skipped",
			"src", edge.SrcLabel,
			"dst", edge.DstLabel,
			"relation", edge.Relation,
			"err", err,
		)
		return
	}
	if err := sp.Commit(ctx); err != nil {
		_ = sp.Rollback(ctx)
		logger.Warn("[Graph][InsertEdge] Could not release savepoint", "relation", edge.Relation, "err", err)
		return
	}
	if created {
		m.edgesCreated++
	}
}
