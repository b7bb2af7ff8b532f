package pgx

import (
	"context"
	"reflect"
	"strings"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/laedsonzzz/DialogAI-Qualidade-sub001/pkg/common"
	"github.com/laedsonzzz/DialogAI-Qualidade-sub001/pkg/store"
)

var (
	_ store.SourceStore   = (*Storage)(nil)
	_ store.ChunkSearcher = (*Storage)(nil)
	_ store.GraphStore    = (*Storage)(nil)
	_ store.AnalysisStore = (*Storage)(nil)
	_ store.GraphTx       = (*graphTx)(nil)
)

func TestEncodeProperties(t *testing.T) {
	v, err := encodeProperties(nil)
	if err != nil || v != nil {
		t.Fatalf("expected nil for nil map, got %v (%v)", v, err)
	}

	v, err = encodeProperties(map[string]any{"a": 1})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v != `{"a":1}` {
		t.Fatalf("unexpected encoding %v", v)
	}
}

func TestDecodeProperties(t *testing.T) {
	props, err := decodeProperties([]byte(`{}`))
	if err != nil || props != nil {
		t.Fatalf("expected nil for empty object, got %v (%v)", props, err)
	}

	props, err = decodeProperties([]byte(`{"channel":"phone"}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !reflect.DeepEqual(props, map[string]any{"channel": "phone"}) {
		t.Fatalf("unexpected properties %v", props)
	}

	if _, err := decodeProperties([]byte(`not json`)); err == nil {
		t.Fatalf("expected error for invalid json")
	}
}

func TestTranscriptCopyRows(t *testing.T) {
	op := common.RoleOperator
	rows := []common.TranscriptRow{
		{RunID: "r", TenantID: "t", Motive: "Cancelamento", AttendanceID: "A1", Seq: 1, Role: &op, RawRole: "Atendente", Text: "oi\x00"},
		{RunID: "r", TenantID: "t", Motive: "Cancelamento", AttendanceID: "A1", Seq: 2, Text: "tchau"},
	}

	got := transcriptCopyRows(rows)
	want := [][]any{
		{"r", "t", "Cancelamento", "A1", int32(1), "operator", "Atendente", "oi"},
		{"r", "t", "Cancelamento", "A1", int32(2), nil, nil, "tchau"},
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("unexpected copy rows\n got: %#v\nwant: %#v", got, want)
	}
}

type recordingConn struct {
	pgxIConn
	sql  []string
	args [][]any
}

func (c *recordingConn) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	c.sql = append(c.sql, sql)
	c.args = append(c.args, args)
	return pgconn.NewCommandTag("UPDATE 0"), nil
}

func TestSetRunStatusOnlyLeavesPending(t *testing.T) {
	conn := &recordingConn{}
	s := NewStorage(conn)
	if err := s.SetRunStatus(context.Background(), "run-1", common.RunStatusFailed); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(conn.sql) != 1 || !strings.Contains(conn.sql[0], "AND status = 'pending'") {
		t.Fatalf("status update must be limited to pending runs: %v", conn.sql)
	}
	if !reflect.DeepEqual(conn.args[0], []any{"run-1", "failed"}) {
		t.Fatalf("unexpected args %v", conn.args[0])
	}
}
