// Package transcript parses historical conversation tables (CSV or XLSX)
// into ordered message rows grouped by attendance and motive.
package transcript

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/laedsonzzz/DialogAI-Qualidade-sub001/pkg/common"
)

var (
	ErrUnsupportedFormat = errors.New("unsupported transcript format")
	ErrEmptyTable        = errors.New("transcript table has no header")
)

const (
	MimeCSV  = "text/csv"
	MimeXLSX = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

// Row is one accepted message line. Role is nil when RawRole could not be
// mapped. Line is the 1-based line or sheet row it came from.
type Row struct {
	AttendanceID string       `json:"attendance_id"`
	Motive       string       `json:"motive"`
	Seq          int          `json:"seq"`
	Role         *common.Role `json:"role"`
	RawRole      string       `json:"raw_role"`
	Text         string       `json:"text"`
	Line         int          `json:"line"`
}

// Warning is a data-quality note for a human reviewer. Line 0 refers to the
// table as a whole.
type Warning struct {
	Line    int    `json:"line"`
	Message string `json:"message"`
}

type Stats struct {
	TotalRows           int            `json:"total_rows"`
	TotalAttendances    int            `json:"total_attendances"`
	AttendancesByMotive map[string]int `json:"attendances_by_motive"`
}

type Result struct {
	Rows     []Row     `json:"rows"`
	Stats    Stats     `json:"stats"`
	Warnings []Warning `json:"warnings"`
}

func (r *Result) warn(line int, format string, args ...any) {
	r.Warnings = append(r.Warnings, Warning{Line: line, Message: fmt.Sprintf(format, args...)})
}

// Parse reads a CSV or XLSX table. mapping optionally maps canonical field
// names (attendance_id, message, role, order, motive) to header names of
// the file; unmapped fields are resolved through known synonyms.
func Parse(content []byte, filename, mimeType string, mapping map[string]string) (*Result, error) {
	mt := strings.ToLower(strings.TrimSpace(mimeType))
	if i := strings.IndexByte(mt, ';'); i >= 0 {
		mt = strings.TrimSpace(mt[:i])
	}
	ext := strings.ToLower(filepath.Ext(filename))

	var (
		records []record
		err     error
	)
	switch {
	case mt == MimeCSV || mt == "application/csv" || ext == ".csv":
		records, err = readCSV(content)
	case mt == MimeXLSX || ext == ".xlsx":
		records, err = readXLSX(content)
	default:
		return nil, fmt.Errorf("%w: %s (%s)", ErrUnsupportedFormat, filename, mimeType)
	}
	if err != nil {
		return nil, err
	}

	return build(records, mapping)
}

// record is a raw table line with its position.
type record struct {
	line   int
	fields []string
	err    error
}

func isBlank(fields []string) bool {
	for _, f := range fields {
		if strings.TrimSpace(f) != "" {
			return false
		}
	}
	return true
}

func build(records []record, mapping map[string]string) (*Result, error) {
	res := &Result{
		Rows:     []Row{},
		Warnings: []Warning{},
		Stats:    Stats{AttendancesByMotive: map[string]int{}},
	}

	headerIdx := -1
	for i, rec := range records {
		if rec.err == nil && !isBlank(rec.fields) {
			headerIdx = i
			break
		}
	}
	if headerIdx < 0 {
		return nil, ErrEmptyTable
	}

	columns := resolveColumns(records[headerIdx].fields, mapping, res)

	nextSeq := map[string]int{}
	seenAttendance := map[string]struct{}{}
	seenByMotive := map[string]map[string]struct{}{}

	for _, rec := range records[headerIdx+1:] {
		if rec.err != nil {
			res.warn(rec.line, "unreadable line: %v", rec.err)
			continue
		}
		if isBlank(rec.fields) {
			continue
		}

		attendanceID := columns.value(rec.fields, FieldAttendanceID)
		message := columns.value(rec.fields, FieldMessage)
		rawRole := columns.value(rec.fields, FieldRole)
		motive := columns.value(rec.fields, FieldMotive)

		var missing []string
		for _, f := range []struct {
			name  Field
			value string
		}{
			{FieldAttendanceID, attendanceID},
			{FieldMessage, message},
			{FieldRole, rawRole},
			{FieldMotive, motive},
		} {
			if f.value == "" {
				missing = append(missing, string(f.name))
			}
		}
		if len(missing) > 0 {
			res.warn(rec.line, "row skipped, missing %s", strings.Join(missing, ", "))
			continue
		}

		role := NormalizeRole(rawRole)
		if role == nil {
			res.warn(rec.line, "unknown role %q", rawRole)
		}

		seq, ok := parseOrder(columns.value(rec.fields, FieldOrder))
		if !ok {
			seq = nextSeq[attendanceID] + 1
			if columns.has(FieldOrder) {
				res.warn(rec.line, "invalid order, using position %d", seq)
			} else {
				res.warn(rec.line, "missing order, using position %d", seq)
			}
		}
		if seq > nextSeq[attendanceID] {
			nextSeq[attendanceID] = seq
		}

		res.Rows = append(res.Rows, Row{
			AttendanceID: attendanceID,
			Motive:       motive,
			Seq:          seq,
			Role:         role,
			RawRole:      rawRole,
			Text:         message,
			Line:         rec.line,
		})

		seenAttendance[attendanceID] = struct{}{}
		if seenByMotive[motive] == nil {
			seenByMotive[motive] = map[string]struct{}{}
		}
		seenByMotive[motive][attendanceID] = struct{}{}
	}

	res.Stats.TotalRows = len(res.Rows)
	res.Stats.TotalAttendances = len(seenAttendance)
	for motive, ids := range seenByMotive {
		res.Stats.AttendancesByMotive[motive] = len(ids)
	}

	return res, nil
}
