package common

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrInvalidKBType is returned whenever a knowledge-base partition name is
// neither "client" nor "operator".
var ErrInvalidKBType = errors.New("invalid kb type")

// KBType names one of the two knowledge-base partitions of a tenant.
//
//   - "client"   → facts about customers
//   - "operator" → process and behavioral guidelines
type KBType string

const (
	KBTypeClient   KBType = "client"
	KBTypeOperator KBType = "operator"
)

// ParseKBType validates a raw kb type value.
func ParseKBType(value string) (KBType, error) {
	switch KBType(strings.TrimSpace(value)) {
	case KBTypeClient:
		return KBTypeClient, nil
	case KBTypeOperator:
		return KBTypeOperator, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidKBType, value)
}

type SourceStatus string

const (
	SourceStatusActive   SourceStatus = "active"
	SourceStatusArchived SourceStatus = "archived"
)

// Source is an uploaded document or free-text entry. It belongs to exactly
// one tenant and one knowledge-base partition.
type Source struct {
	ID        string       `json:"id"`
	TenantID  string       `json:"tenant_id"`
	KBType    KBType       `json:"kb_type"`
	Title     string       `json:"title"`
	Filename  string       `json:"filename,omitempty"`
	MimeType  string       `json:"mime_type,omitempty"`
	Status    SourceStatus `json:"status"`
	CreatedAt time.Time    `json:"created_at"`
}

// Chunk is a retrievable slice of a Source together with its embedding.
// Embedding always has the configured dimension once persisted.
type Chunk struct {
	ID         string    `json:"id"`
	SourceID   string    `json:"source_id"`
	TenantID   string    `json:"tenant_id"`
	KBType     KBType    `json:"kb_type"`
	Content    string    `json:"content"`
	TokenCount int       `json:"token_count"`
	Embedding  []float32 `json:"-"`
	CreatedAt  time.Time `json:"created_at"`
}

// RetrievedChunk is one hit of a similarity lookup, nearest first.
type RetrievedChunk struct {
	ChunkID     string  `json:"chunk_id"`
	Content     string  `json:"content"`
	SourceTitle string  `json:"source_title"`
	Distance    float64 `json:"distance"`
}

// KnowledgeNode is a deduplicated entity or topic of a tenant's knowledge
// graph. Nodes are unique per tenant, kb type and normalized label.
type KnowledgeNode struct {
	ID         string         `json:"id"`
	TenantID   string         `json:"tenant_id"`
	KBType     KBType         `json:"kb_type"`
	Label      string         `json:"label"`
	NodeType   *string        `json:"node_type,omitempty"`
	Properties map[string]any `json:"properties,omitempty"`
	SourceID   *string        `json:"source_id,omitempty"`
}

// KnowledgeEdge is a directed relation between two existing nodes. Edges are
// unique per tenant, kb type, endpoints and relation.
type KnowledgeEdge struct {
	ID         string         `json:"id"`
	TenantID   string         `json:"tenant_id"`
	KBType     KBType         `json:"kb_type"`
	SrcNodeID  string         `json:"src_node_id"`
	DstNodeID  string         `json:"dst_node_id"`
	Relation   string         `json:"relation"`
	Properties map[string]any `json:"properties,omitempty"`
}

// NormalizeLabel is the identity used to deduplicate node labels.
func NormalizeLabel(label string) string {
	return strings.ToLower(strings.TrimSpace(label))
}

// Role is the normalized speaker of a transcript message.
type Role string

const (
	RoleOperator Role = "operator"
	RoleBot      Role = "bot"
	RoleCustomer Role = "customer"
)

// TranscriptRow is one message line of a historical conversation imported
// for a run. Role is nil when the raw value could not be mapped.
type TranscriptRow struct {
	RunID        string  `json:"run_id"`
	TenantID     string  `json:"tenant_id"`
	Motive       string  `json:"motive"`
	AttendanceID string  `json:"attendance_id"`
	Seq          int     `json:"seq"`
	Role         *Role   `json:"role"`
	RawRole      string  `json:"raw_role,omitempty"`
	Text         string  `json:"text"`
}

type RunStatus string

const (
	RunStatusPending   RunStatus = "pending"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
)

// AnalysisRun is one execution of the motive batch analysis.
type AnalysisRun struct {
	ID         string     `json:"id"`
	TenantID   string     `json:"tenant_id"`
	Status     RunStatus  `json:"status"`
	CreatedAt  time.Time  `json:"created_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

// MotiveCount is a motive present in a run with its distinct attendance count.
type MotiveCount struct {
	Motive string `json:"motive"`
	Total  int    `json:"total"`
}

// MotiveProgress is the resumable counter of a motive inside a run.
type MotiveProgress struct {
	RunID                string `json:"run_id"`
	Motive               string `json:"motive"`
	TotalIDsDistinct     int    `json:"total_ids_distinct"`
	ProcessedIDsDistinct int    `json:"processed_ids_distinct"`
}

// MotiveSummary is the scenario package synthesized for a motive.
type MotiveSummary struct {
	Title      string   `json:"title"`
	Profiles   []string `json:"profiles"`
	Process    string   `json:"process"`
	Guidelines []string `json:"guidelines"`
	Patterns   []string `json:"patterns"`
}

type ResultStatus string

const (
	ResultStatusPending ResultStatus = "pending"
	ResultStatusReady   ResultStatus = "ready"
)

// MotiveResult is the per-run outcome of a motive, one row per run and motive.
type MotiveResult struct {
	RunID    string        `json:"run_id"`
	TenantID string        `json:"tenant_id"`
	Motive   string        `json:"motive"`
	Summary  MotiveSummary `json:"summary"`
	Status   ResultStatus  `json:"status"`
}

// MotiveCache is the run-independent summary of a fully processed motive.
type MotiveCache struct {
	TenantID string        `json:"tenant_id"`
	Motive   string        `json:"motive"`
	Summary  MotiveSummary `json:"summary"`
}

const (
	ErrCodeAttendanceProcess = "ATT_PROCESS_ERR"
	ErrCodeMotiveLLM         = "MOTIVE_LLM_ERR"
)

// ErrorEntry is a non-fatal failure recorded during a run.
type ErrorEntry struct {
	RunID        string    `json:"run_id"`
	TenantID     string    `json:"tenant_id"`
	AttendanceID *string   `json:"attendance_id,omitempty"`
	Motive       string    `json:"motive"`
	Code         string    `json:"code"`
	Reason       string    `json:"reason"`
	CreatedAt    time.Time `json:"created_at"`
}

// RunReport bundles everything an observer needs to follow a run.
type RunReport struct {
	Run      AnalysisRun      `json:"run"`
	Progress []MotiveProgress `json:"progress"`
	Results  []MotiveResult   `json:"results"`
	Errors   []ErrorEntry     `json:"errors"`
}
