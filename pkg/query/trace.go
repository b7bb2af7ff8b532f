package query

import (
	"slices"
	"sync"
)

type TraceEventKind string

const TraceEventRetrievedChunkIDs TraceEventKind = "retrieved_chunk_ids"

// TraceEvent is an extensible event envelope for retrieval tracing.
type TraceEvent struct {
	Kind     TraceEventKind
	ChunkIDs []string
}

// Tracer is a sink for retrieval tracing events.
type Tracer interface {
	Record(event TraceEvent)
}

func RecordRetrievedChunkIDs(t Tracer, ids ...string) {
	if t == nil || len(ids) == 0 {
		return
	}
	t.Record(TraceEvent{Kind: TraceEventRetrievedChunkIDs, ChunkIDs: slices.Clone(ids)})
}

// ChunkCollector gathers the distinct chunk ids seen across lookups, in
// first-seen order.
type ChunkCollector struct {
	mu   sync.Mutex
	seen map[string]struct{}
	ids  []string
}

func NewChunkCollector() *ChunkCollector {
	return &ChunkCollector{seen: map[string]struct{}{}}
}

func (c *ChunkCollector) Record(event TraceEvent) {
	if event.Kind != TraceEventRetrievedChunkIDs {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, id := range event.ChunkIDs {
		if _, ok := c.seen[id]; ok {
			continue
		}
		c.seen[id] = struct{}{}
		c.ids = append(c.ids, id)
	}
}

func (c *ChunkCollector) ChunkIDs() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Clone(c.ids)
}
