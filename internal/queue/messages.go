package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/laedsonzzz/DialogAI-Qualidade-sub001/pkg/motive"
)

// ErrInvalidMessage marks a body that can never be processed.
var ErrInvalidMessage = errors.New("invalid queue message")

// IngestMsg asks the worker to ingest a file previously archived in object
// storage under ObjectKey.
type IngestMsg struct {
	TenantID  string `json:"tenant_id"`
	KBType    string `json:"kb_type"`
	Title     string `json:"title,omitempty"`
	Filename  string `json:"filename"`
	MimeType  string `json:"mime_type"`
	ObjectKey string `json:"object_key"`
	PIIMode   string `json:"pii_mode,omitempty"`
}

func (m IngestMsg) Validate() error {
	var missing []string
	if strings.TrimSpace(m.TenantID) == "" {
		missing = append(missing, "tenant_id")
	}
	if strings.TrimSpace(m.KBType) == "" {
		missing = append(missing, "kb_type")
	}
	if strings.TrimSpace(m.ObjectKey) == "" {
		missing = append(missing, "object_key")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: missing %s", ErrInvalidMessage, strings.Join(missing, ", "))
	}
	return nil
}

func ParseIngestMsg(body []byte) (IngestMsg, error) {
	var m IngestMsg
	if err := json.Unmarshal(body, &m); err != nil {
		return IngestMsg{}, fmt.Errorf("%w: %v", ErrInvalidMessage, err)
	}
	return m, m.Validate()
}

// Producer publishes work messages. It serializes publishes on the shared
// channel.
type Producer struct {
	mu sync.Mutex
	ch Publisher
}

func NewProducer(ch Publisher) *Producer {
	return &Producer{ch: ch}
}

func (p *Producer) publish(ctx context.Context, queueName string, body []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := PublishFIFO(ctx, p.ch, queueName, body, nil); err != nil {
		return fmt.Errorf("publish to %s: %w", queueName, err)
	}
	return nil
}

// Dispatch implements motive.Dispatcher by publishing the task to the
// analysis queue.
func (p *Producer) Dispatch(ctx context.Context, task motive.Task) error {
	if err := task.Validate(); err != nil {
		return err
	}
	body, err := task.Marshal()
	if err != nil {
		return err
	}
	return p.publish(ctx, AnalysisQueue, body)
}

func (p *Producer) PublishIngest(ctx context.Context, msg IngestMsg) error {
	if err := msg.Validate(); err != nil {
		return err
	}
	body, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return p.publish(ctx, IngestQueue, body)
}
