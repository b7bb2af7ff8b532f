package graph

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/laedsonzzz/DialogAI-Qualidade-sub001/pkg/ai"
	"github.com/laedsonzzz/DialogAI-Qualidade-sub001/pkg/common"
)

type extractNode struct {
	Label      string         `json:"label" jsonschema_description:"Short canonical name of the node"`
	NodeType   string         `json:"node_type,omitempty" jsonschema_description:"Optional category of the node"`
	Properties map[string]any `json:"properties,omitempty" jsonschema_description:"Optional flat attributes"`
}

type extractEdge struct {
	SrcLabel   string         `json:"src_label" jsonschema_description:"Label of the source node"`
	DstLabel   string         `json:"dst_label" jsonschema_description:"Label of the destination node"`
	Relation   string         `json:"relation" jsonschema_description:"Short verb phrase in lower case"`
	Properties map[string]any `json:"properties,omitempty" jsonschema_description:"Optional flat attributes"`
}

type extractResponse struct {
	Nodes []extractNode `json:"nodes" jsonschema_description:"Nodes found in the chunk"`
	Edges []extractEdge `json:"edges" jsonschema_description:"Edges between the nodes"`
}

var kbDescriptions = map[common.KBType]string{
	common.KBTypeClient:   "client knowledge base (facts about customers, their products and situations)",
	common.KBTypeOperator: "operator knowledge base (processes, rules and behavioral guidelines for operators)",
}

func (e *Extractor) extract(ctx context.Context, kb common.KBType, text string) (extractResponse, error) {
	opts := []ai.GenerateOption{
		ai.WithSystemPrompts(fmt.Sprintf(ai.ExtractGraphPrompt, kbDescriptions[kb])),
		ai.WithJSONResponse(),
	}
	if e.cfg.Model != "" {
		opts = append(opts, ai.WithModel(e.cfg.Model))
	}
	if e.cfg.Temperature > 0 {
		opts = append(opts, ai.WithTemperature(e.cfg.Temperature))
	}

	raw, err := e.client.GenerateChat(ctx, []ai.ChatMessage{
		{Role: ai.RoleUser, Message: text},
	}, opts...)
	if err != nil {
		return extractResponse{}, fmt.Errorf("extraction call: %w", err)
	}

	var res extractResponse
	if err := ai.UnmarshalFlexible(raw, &res); err != nil {
		return extractResponse{}, fmt.Errorf("parse extraction: %w", err)
	}
	return sanitize(res), nil
}

// sanitize drops nodes without label and edges missing an endpoint or a
// relation, then folds nodes that share a normalized label. The first
// occurrence keeps its casing; later ones only fill in what it lacks.
func sanitize(res extractResponse) extractResponse {
	out := extractResponse{}
	index := map[string]int{}

	for _, n := range res.Nodes {
		label := strings.TrimSpace(n.Label)
		if label == "" {
			continue
		}
		key := common.NormalizeLabel(label)
		props := flattenProperties(n.Properties)
		nodeType := strings.TrimSpace(n.NodeType)

		if i, ok := index[key]; ok {
			existing := &out.Nodes[i]
			if existing.NodeType == "" {
				existing.NodeType = nodeType
			}
			for k, v := range props {
				if existing.Properties == nil {
					existing.Properties = map[string]any{}
				}
				if _, ok := existing.Properties[k]; !ok {
					existing.Properties[k] = v
				}
			}
			continue
		}

		index[key] = len(out.Nodes)
		out.Nodes = append(out.Nodes, extractNode{Label: label, NodeType: nodeType, Properties: props})
	}

	for _, edge := range res.Edges {
		src := strings.TrimSpace(edge.SrcLabel)
		dst := strings.TrimSpace(edge.DstLabel)
		rel := strings.TrimSpace(edge.Relation)
		if src == "" || dst == "" || rel == "" {
			continue
		}
		out.Edges = append(out.Edges, extractEdge{
			SrcLabel:   src,
			DstLabel:   dst,
			Relation:   rel,
			Properties: flattenProperties(edge.Properties),
		})
	}
	return out
}

// flattenProperties keeps scalar values as they are and stores nested
// objects and lists as their compact JSON text. Null values are dropped.
func flattenProperties(props map[string]any) map[string]any {
	if len(props) == 0 {
		return nil
	}
	out := map[string]any{}
	for k, v := range props {
		k = strings.TrimSpace(k)
		if k == "" {
			continue
		}
		switch v := v.(type) {
		case nil:
		case string, float64, bool:
			out[k] = v
		default:
			raw, err := json.Marshal(v)
			if err != nil {
				continue
			}
			out[k] = string(raw)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
