package transcript

import (
	"math"
	"strconv"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Field is a canonical transcript column.
type Field string

const (
	FieldAttendanceID Field = "attendance_id"
	FieldMessage      Field = "message"
	FieldRole         Field = "role"
	FieldOrder        Field = "order"
	FieldMotive       Field = "motive"
)

var canonicalFields = []Field{FieldAttendanceID, FieldMessage, FieldRole, FieldOrder, FieldMotive}

// headerSynonyms is keyed by normalized header name.
var headerSynonyms = map[string]Field{
	"attendance_id":   FieldAttendanceID,
	"id_atendimento":  FieldAttendanceID,
	"atendimento_id":  FieldAttendanceID,
	"atendimento":     FieldAttendanceID,
	"id":              FieldAttendanceID,
	"protocolo":       FieldAttendanceID,
	"ticket":          FieldAttendanceID,
	"id_conversa":     FieldAttendanceID,
	"conversation_id": FieldAttendanceID,

	"message":  FieldMessage,
	"mensagem": FieldMessage,
	"texto":    FieldMessage,
	"text":     FieldMessage,
	"conteudo": FieldMessage,
	"fala":     FieldMessage,

	"role":           FieldRole,
	"papel":          FieldRole,
	"autor":          FieldRole,
	"remetente":      FieldRole,
	"tipo_remetente": FieldRole,
	"speaker":        FieldRole,
	"origem":         FieldRole,

	"order":     FieldOrder,
	"ordem":     FieldOrder,
	"seq":       FieldOrder,
	"sequencia": FieldOrder,
	"indice":    FieldOrder,
	"posicao":   FieldOrder,

	"motive":         FieldMotive,
	"motivo":         FieldMotive,
	"motivo_contato": FieldMotive,
	"assunto":        FieldMotive,
	"categoria":      FieldMotive,
	"reason":         FieldMotive,
}

var accentFolder = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// normalizeKey folds accents and case and joins words with underscores.
func normalizeKey(s string) string {
	folded, _, err := transform.String(accentFolder, s)
	if err != nil {
		folded = s
	}
	folded = strings.TrimPrefix(folded, "\ufeff")

	var b strings.Builder
	pendingSep := false
	for _, r := range strings.ToLower(strings.TrimSpace(folded)) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			if pendingSep && b.Len() > 0 {
				b.WriteByte('_')
			}
			pendingSep = false
			b.WriteRune(r)
			continue
		}
		pendingSep = true
	}
	return b.String()
}

type columnIndex map[Field]int

func (c columnIndex) has(f Field) bool {
	_, ok := c[f]
	return ok
}

func (c columnIndex) value(fields []string, f Field) string {
	i, ok := c[f]
	if !ok || i >= len(fields) {
		return ""
	}
	return strings.TrimSpace(fields[i])
}

// resolveColumns applies the explicit mapping first (exact, then case
// insensitive, then normalized match) and falls back to synonyms.
func resolveColumns(header []string, mapping map[string]string, res *Result) columnIndex {
	cols := columnIndex{}
	taken := map[int]bool{}

	for key, source := range mapping {
		field := Field(normalizeKey(key))
		if !isCanonical(field) {
			res.warn(0, "mapping for unknown field %q ignored", key)
			continue
		}
		idx := findHeader(header, source)
		if idx < 0 {
			res.warn(0, "mapped column %q for %s not found", source, field)
			continue
		}
		cols[field] = idx
		taken[idx] = true
	}

	for i, h := range header {
		if taken[i] {
			continue
		}
		field, ok := headerSynonyms[normalizeKey(h)]
		if !ok || cols.has(field) {
			continue
		}
		cols[field] = i
		taken[i] = true
	}

	for _, f := range canonicalFields {
		if !cols.has(f) {
			res.warn(0, "no column found for %s", f)
		}
	}
	return cols
}

func isCanonical(f Field) bool {
	for _, c := range canonicalFields {
		if c == f {
			return true
		}
	}
	return false
}

func findHeader(header []string, name string) int {
	for i, h := range header {
		if h == name {
			return i
		}
	}
	for i, h := range header {
		if strings.EqualFold(strings.TrimSpace(h), strings.TrimSpace(name)) {
			return i
		}
	}
	target := normalizeKey(name)
	for i, h := range header {
		if normalizeKey(h) == target {
			return i
		}
	}
	return -1
}

func parseOrder(value string) (int, bool) {
	if value == "" {
		return 0, false
	}
	if n, err := strconv.ParseInt(value, 10, 32); err == nil {
		return int(n), true
	}
	// spreadsheets often store integers as floats
	f, err := strconv.ParseFloat(strings.ReplaceAll(value, ",", "."), 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) || f != math.Trunc(f) {
		return 0, false
	}
	// seq is an int4 column
	if f < math.MinInt32 || f > math.MaxInt32 {
		return 0, false
	}
	return int(f), true
}
