package pgx

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/laedsonzzz/DialogAI-Qualidade-sub001/internal/util"
	"github.com/laedsonzzz/DialogAI-Qualidade-sub001/pkg/common"

	pgxv5 "github.com/jackc/pgx/v5"
)

const createRunSQL = `
INSERT INTO analysis_runs (id, tenant_id, status)
VALUES ($1, $2, 'pending')
RETURNING created_at`

const getRunSQL = `
SELECT id, tenant_id, status, created_at, finished_at
FROM analysis_runs
WHERE id = $1 AND tenant_id = $2`

const setRunStatusSQL = `
UPDATE analysis_runs
SET status = $2::text,
    finished_at = CASE WHEN $2::text IN ('completed', 'failed') THEN now() ELSE NULL END
WHERE id = $1 AND status = 'pending'`

const listMotivesSQL = `
SELECT motive, COUNT(DISTINCT attendance_id)
FROM transcript_rows
WHERE run_id = $1
GROUP BY motive
ORDER BY motive`

const listAttendanceIDsSQL = `
SELECT DISTINCT attendance_id
FROM transcript_rows
WHERE run_id = $1 AND motive = $2
ORDER BY attendance_id`

const listMessagesSQL = `
SELECT run_id, tenant_id, motive, attendance_id, seq, role, COALESCE(raw_role, ''), text
FROM transcript_rows
WHERE run_id = $1 AND motive = $2 AND attendance_id = $3
ORDER BY seq, id`

const getProgressSQL = `
SELECT processed_ids_distinct
FROM motive_progress
WHERE run_id = $1 AND motive = $2`

const setProgressSQL = `
INSERT INTO motive_progress (run_id, motive, total_ids_distinct, processed_ids_distinct, updated_at)
VALUES ($1, $2, $3, $4, now())
ON CONFLICT (run_id, motive) DO UPDATE
SET total_ids_distinct     = EXCLUDED.total_ids_distinct,
    processed_ids_distinct = EXCLUDED.processed_ids_distinct,
    updated_at             = now()`

const upsertResultSQL = `
INSERT INTO motive_results (run_id, tenant_id, motive, summary, status, updated_at)
VALUES ($1, $2, $3, $4::jsonb, $5, now())
ON CONFLICT (run_id, motive) DO UPDATE
SET summary    = EXCLUDED.summary,
    status     = EXCLUDED.status,
    updated_at = now()`

const getCacheSQL = `
SELECT summary
FROM motive_cache
WHERE tenant_id = $1 AND motive = $2`

const upsertCacheSQL = `
INSERT INTO motive_cache (tenant_id, motive, summary, updated_at)
VALUES ($1, $2, $3::jsonb, now())
ON CONFLICT (tenant_id, motive) DO UPDATE
SET summary    = EXCLUDED.summary,
    updated_at = now()`

const appendErrorSQL = `
INSERT INTO analysis_errors (run_id, tenant_id, attendance_id, motive, code, reason)
VALUES ($1, $2, $3, $4, $5, $6)`

const listProgressSQL = `
SELECT run_id, motive, total_ids_distinct, processed_ids_distinct
FROM motive_progress
WHERE run_id = $1
ORDER BY motive`

const listResultsSQL = `
SELECT run_id, tenant_id, motive, summary, status
FROM motive_results
WHERE run_id = $1
ORDER BY motive`

const listErrorsSQL = `
SELECT run_id, tenant_id, attendance_id, motive, code, reason, created_at
FROM analysis_errors
WHERE run_id = $1
ORDER BY created_at, id`

var transcriptColumns = []string{
	"run_id", "tenant_id", "motive", "attendance_id", "seq", "role", "raw_role", "text",
}

func (s *Storage) CreateRun(ctx context.Context, tenantID string) (common.AnalysisRun, error) {
	id, err := s.newID()
	if err != nil {
		return common.AnalysisRun{}, err
	}
	run := common.AnalysisRun{ID: id, TenantID: tenantID, Status: common.RunStatusPending}
	if err := s.conn.QueryRow(ctx, createRunSQL, id, tenantID).Scan(&run.CreatedAt); err != nil {
		return common.AnalysisRun{}, err
	}
	return run, nil
}

// ImportTranscriptRows bulk loads rows with COPY.
func (s *Storage) ImportTranscriptRows(ctx context.Context, rows []common.TranscriptRow) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	return s.conn.CopyFrom(
		ctx,
		pgxv5.Identifier{"transcript_rows"},
		transcriptColumns,
		pgxv5.CopyFromRows(transcriptCopyRows(rows)),
	)
}

func transcriptCopyRows(rows []common.TranscriptRow) [][]any {
	out := make([][]any, len(rows))
	for i, r := range rows {
		var role any
		if r.Role != nil {
			role = string(*r.Role)
		}
		var rawRole any
		if r.RawRole != "" {
			rawRole = util.SanitizePostgresText(r.RawRole)
		}
		out[i] = []any{
			r.RunID,
			r.TenantID,
			util.SanitizePostgresText(r.Motive),
			util.SanitizePostgresText(r.AttendanceID),
			int32(r.Seq),
			role,
			rawRole,
			util.SanitizePostgresText(r.Text),
		}
	}
	return out
}

func (s *Storage) GetRun(ctx context.Context, runID, tenantID string) (*common.AnalysisRun, error) {
	var (
		run    common.AnalysisRun
		status string
	)
	err := s.conn.QueryRow(ctx, getRunSQL, runID, tenantID).Scan(
		&run.ID, &run.TenantID, &status, &run.CreatedAt, &run.FinishedAt,
	)
	if isNoRows(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	run.Status = common.RunStatus(status)
	return &run, nil
}

func (s *Storage) SetRunStatus(ctx context.Context, runID string, status common.RunStatus) error {
	_, err := s.conn.Exec(ctx, setRunStatusSQL, runID, string(status))
	return err
}

func (s *Storage) ListMotives(ctx context.Context, runID string) ([]common.MotiveCount, error) {
	rows, err := s.conn.Query(ctx, listMotivesSQL, runID)
	if err != nil {
		return nil, err
	}
	return pgxv5.CollectRows(rows, func(row pgxv5.CollectableRow) (common.MotiveCount, error) {
		var m common.MotiveCount
		err := row.Scan(&m.Motive, &m.Total)
		return m, err
	})
}

func (s *Storage) ListAttendanceIDs(ctx context.Context, runID, motive string) ([]string, error) {
	rows, err := s.conn.Query(ctx, listAttendanceIDsSQL, runID, motive)
	if err != nil {
		return nil, err
	}
	return pgxv5.CollectRows(rows, pgxv5.RowTo[string])
}

func (s *Storage) ListMessages(
	ctx context.Context,
	runID, motive, attendanceID string,
) ([]common.TranscriptRow, error) {
	rows, err := s.conn.Query(ctx, listMessagesSQL, runID, motive, attendanceID)
	if err != nil {
		return nil, err
	}
	return pgxv5.CollectRows(rows, func(row pgxv5.CollectableRow) (common.TranscriptRow, error) {
		var (
			r    common.TranscriptRow
			role *string
		)
		err := row.Scan(&r.RunID, &r.TenantID, &r.Motive, &r.AttendanceID, &r.Seq, &role, &r.RawRole, &r.Text)
		if role != nil {
			rr := common.Role(*role)
			r.Role = &rr
		}
		return r, err
	})
}

func (s *Storage) GetProgress(ctx context.Context, runID, motive string) (int, error) {
	var processed int
	err := s.conn.QueryRow(ctx, getProgressSQL, runID, motive).Scan(&processed)
	if isNoRows(err) {
		return 0, nil
	}
	return processed, err
}

func (s *Storage) SetProgress(ctx context.Context, p common.MotiveProgress) error {
	_, err := s.conn.Exec(ctx, setProgressSQL, p.RunID, p.Motive, p.TotalIDsDistinct, p.ProcessedIDsDistinct)
	return err
}

func (s *Storage) UpsertResult(ctx context.Context, result common.MotiveResult) error {
	summary, err := json.Marshal(result.Summary)
	if err != nil {
		return err
	}
	status := result.Status
	if status == "" {
		status = common.ResultStatusPending
	}
	_, err = s.conn.Exec(ctx, upsertResultSQL,
		result.RunID, result.TenantID, result.Motive, string(summary), string(status),
	)
	return err
}

func (s *Storage) GetCache(ctx context.Context, tenantID, motive string) (*common.MotiveCache, error) {
	var raw []byte
	err := s.conn.QueryRow(ctx, getCacheSQL, tenantID, motive).Scan(&raw)
	if isNoRows(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	cache := &common.MotiveCache{TenantID: tenantID, Motive: motive}
	if err := json.Unmarshal(raw, &cache.Summary); err != nil {
		return nil, fmt.Errorf("decode motive cache: %w", err)
	}
	return cache, nil
}

func (s *Storage) UpsertCache(ctx context.Context, cache common.MotiveCache) error {
	summary, err := json.Marshal(cache.Summary)
	if err != nil {
		return err
	}
	_, err = s.conn.Exec(ctx, upsertCacheSQL, cache.TenantID, cache.Motive, string(summary))
	return err
}

func (s *Storage) AppendError(ctx context.Context, e common.ErrorEntry) error {
	_, err := s.conn.Exec(ctx, appendErrorSQL,
		e.RunID,
		e.TenantID,
		e.AttendanceID,
		e.Motive,
		e.Code,
		util.SanitizePostgresText(e.Reason),
	)
	return err
}

// GetRunReport returns nil when the run does not exist for the tenant.
func (s *Storage) GetRunReport(ctx context.Context, runID, tenantID string) (*common.RunReport, error) {
	run, err := s.GetRun(ctx, runID, tenantID)
	if err != nil || run == nil {
		return nil, err
	}
	report := &common.RunReport{Run: *run}

	rows, err := s.conn.Query(ctx, listProgressSQL, runID)
	if err != nil {
		return nil, err
	}
	report.Progress, err = pgxv5.CollectRows(rows, func(row pgxv5.CollectableRow) (common.MotiveProgress, error) {
		var p common.MotiveProgress
		err := row.Scan(&p.RunID, &p.Motive, &p.TotalIDsDistinct, &p.ProcessedIDsDistinct)
		return p, err
	})
	if err != nil {
		return nil, err
	}

	rows, err = s.conn.Query(ctx, listResultsSQL, runID)
	if err != nil {
		return nil, err
	}
	report.Results, err = pgxv5.CollectRows(rows, func(row pgxv5.CollectableRow) (common.MotiveResult, error) {
		var (
			r      common.MotiveResult
			raw    []byte
			status string
		)
		if err := row.Scan(&r.RunID, &r.TenantID, &r.Motive, &raw, &status); err != nil {
			return r, err
		}
		r.Status = common.ResultStatus(status)
		return r, json.Unmarshal(raw, &r.Summary)
	})
	if err != nil {
		return nil, err
	}

	rows, err = s.conn.Query(ctx, listErrorsSQL, runID)
	if err != nil {
		return nil, err
	}
	report.Errors, err = pgxv5.CollectRows(rows, func(row pgxv5.CollectableRow) (common.ErrorEntry, error) {
		var e common.ErrorEntry
		err := row.Scan(&e.RunID, &e.TenantID, &e.AttendanceID, &e.Motive, &e.Code, &e.Reason, &e.CreatedAt)
		return e, err
	})
	if err != nil {
		return nil, err
	}
	return report, nil
}
