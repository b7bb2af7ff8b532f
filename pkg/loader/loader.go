// Package loader turns uploaded documents into normalized, optionally
// anonymized plain text.
package loader

import (
	"errors"
	"fmt"
	"mime"
	"path/filepath"
	"strings"

	"github.com/laedsonzzz/DialogAI-Qualidade-sub001/pkg/loader/doc"
	"github.com/laedsonzzz/DialogAI-Qualidade-sub001/pkg/loader/pdf"
)

const (
	MimePDF  = "application/pdf"
	MimeDOCX = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	MimeText = "text/plain"
)

// DefaultAllowedMimes is used when Config.AllowedMimes is empty.
var DefaultAllowedMimes = []string{MimePDF, MimeDOCX, MimeText}

// DefaultMaxUploadBytes is used when Config.MaxUploadBytes is not positive.
const DefaultMaxUploadBytes int64 = 10 << 20

var (
	ErrUnsupportedMime = errors.New("unsupported mime type")
	ErrParseFailure    = errors.New("failed to parse document")
)

// Config holds the upload limits.
type Config struct {
	MaxUploadBytes int64
	AllowedMimes   []string
}

func (c Config) maxBytes() int64 {
	if c.MaxUploadBytes <= 0 {
		return DefaultMaxUploadBytes
	}
	return c.MaxUploadBytes
}

func (c Config) allowed(mimeType string) bool {
	allowed := c.AllowedMimes
	if len(allowed) == 0 {
		allowed = DefaultAllowedMimes
	}
	for _, a := range allowed {
		if NormalizeMime(a) == mimeType {
			return true
		}
	}
	return false
}

// NormalizeMime lower-cases a content type and drops its parameters.
func NormalizeMime(declared string) string {
	declared = strings.TrimSpace(declared)
	if declared == "" {
		return ""
	}
	if mt, _, err := mime.ParseMediaType(declared); err == nil {
		return mt
	}
	if i := strings.IndexByte(declared, ';'); i >= 0 {
		declared = declared[:i]
	}
	return strings.ToLower(strings.TrimSpace(declared))
}

func hasExt(filename, ext string) bool {
	return strings.EqualFold(filepath.Ext(filename), ext)
}

// ExtractText returns the normalized text of a validated upload.
func ExtractText(content []byte, filename, mimeType string) (string, error) {
	mt := NormalizeMime(mimeType)

	var (
		text string
		err  error
	)
	switch {
	case mt == MimePDF:
		text, err = pdf.ExtractText(content)
	case mt == MimeDOCX || (mt == "" && hasExt(filename, ".docx")):
		text, err = doc.ExtractText(content)
	case mt == MimeText || strings.HasPrefix(mt, "text/"):
		text = strings.ToValidUTF8(string(content), "\uFFFD")
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedMime, mimeType)
	}
	if err != nil {
		return "", fmt.Errorf("%w: %s: %v", ErrParseFailure, filename, err)
	}

	return NormalizeText(text), nil
}
