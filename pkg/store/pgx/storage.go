package pgx

import (
	"context"
	"encoding/json"
	"errors"

	pgxv5 "github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	gonanoid "github.com/matoous/go-nanoid/v2"
)

type pgxIConn interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, optionsAndArgs ...any) (pgxv5.Rows, error)
	QueryRow(ctx context.Context, sql string, optionsAndArgs ...any) pgxv5.Row
	Begin(ctx context.Context) (pgxv5.Tx, error)
	SendBatch(ctx context.Context, b *pgxv5.Batch) pgxv5.BatchResults
	CopyFrom(ctx context.Context, tableName pgxv5.Identifier, columnNames []string, rowSrc pgxv5.CopyFromSource) (int64, error)
}

// Storage implements the store interfaces on PostgreSQL with pgvector for
// chunk embeddings. A *pgxpool.Pool or a single *pgx.Conn can back it.
type Storage struct {
	conn           pgxIConn
	chunkBatchSize int
	newID          func() (string, error)
}

// NewStorage wraps an existing database connection.
func NewStorage(conn pgxIConn) *Storage {
	return &Storage{
		conn:           conn,
		chunkBatchSize: 200,
		newID:          func() (string, error) { return gonanoid.New() },
	}
}

// encodeProperties turns a property map into a jsonb parameter. A nil map
// becomes SQL NULL so callers can tell "no change" from "empty".
func encodeProperties(props map[string]any) (any, error) {
	if props == nil {
		return nil, nil
	}
	raw, err := json.Marshal(props)
	if err != nil {
		return nil, err
	}
	return string(raw), nil
}

func decodeProperties(raw []byte) (map[string]any, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	props := map[string]any{}
	if err := json.Unmarshal(raw, &props); err != nil {
		return nil, err
	}
	if len(props) == 0 {
		return nil, nil
	}
	return props, nil
}

func isNoRows(err error) bool {
	return errors.Is(err, pgxv5.ErrNoRows)
}
