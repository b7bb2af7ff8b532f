package loader

import (
	"bytes"
	"errors"
	"fmt"
	"unicode"
	"unicode/utf8"

	"github.com/laedsonzzz/DialogAI-Qualidade-sub001/pkg/logger"
)

var (
	ErrEmpty          = errors.New("empty file")
	ErrFileTooLarge   = errors.New("file too large")
	ErrMimeNotAllowed = errors.New("mime type not allowed")
	ErrMagicMismatch  = errors.New("content does not match declared type")
)

const (
	CodeEmpty          = "EMPTY_FILE"
	CodeFileTooLarge   = "FILE_TOO_LARGE"
	CodeMimeNotAllowed = "MIME_NOT_ALLOWED"
	CodeMagicMismatch  = "MAGIC_MISMATCH"
)

var (
	magicPDF = []byte("%PDF")
	magicZip = []byte("PK\x03\x04")
)

// minPrintableRatio is the share of printable runes below which a plain
// text upload is flagged as suspicious.
const minPrintableRatio = 0.60

// ValidationError carries a stable code next to the sentinel error.
type ValidationError struct {
	Code   string
	Err    error
	Detail string
}

func (e *ValidationError) Error() string {
	if e.Detail == "" {
		return e.Err.Error()
	}
	return fmt.Sprintf("%s: %s", e.Err, e.Detail)
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

func reject(code string, err error, detail string) error {
	return &ValidationError{Code: code, Err: err, Detail: detail}
}

// Validate checks size, declared mime type and magic bytes of an upload.
func Validate(cfg Config, content []byte, filename, declaredMime string) error {
	if len(content) == 0 {
		return reject(CodeEmpty, ErrEmpty, filename)
	}
	if int64(len(content)) > cfg.maxBytes() {
		return reject(CodeFileTooLarge, ErrFileTooLarge,
			fmt.Sprintf("%d bytes exceeds limit of %d", len(content), cfg.maxBytes()))
	}

	mt := NormalizeMime(declaredMime)
	if !cfg.allowed(mt) {
		return reject(CodeMimeNotAllowed, ErrMimeNotAllowed, declaredMime)
	}

	switch {
	case mt == MimePDF:
		if !bytes.HasPrefix(content, magicPDF) {
			return reject(CodeMagicMismatch, ErrMagicMismatch, "missing %PDF header")
		}
	case mt == MimeDOCX || hasExt(filename, ".docx"):
		if !bytes.HasPrefix(content, magicZip) {
			return reject(CodeMagicMismatch, ErrMagicMismatch, "missing zip header")
		}
		if !hasExt(filename, ".docx") {
			return reject(CodeMagicMismatch, ErrMagicMismatch, "docx upload must use the .docx extension")
		}
	case mt == MimeText:
		if ratio := printableRatio(content); ratio < minPrintableRatio {
			logger.Warn("[Loader][Validate] plain text upload looks binary",
				"filename", filename, "printable_ratio", ratio)
		}
	}

	return nil
}

func printableRatio(content []byte) float64 {
	total, printable := 0, 0
	for len(content) > 0 {
		r, size := utf8.DecodeRune(content)
		content = content[size:]
		total++
		if r == utf8.RuneError && size <= 1 {
			continue
		}
		if unicode.IsPrint(r) || unicode.IsSpace(r) {
			printable++
		}
	}
	if total == 0 {
		return 1
	}
	return float64(printable) / float64(total)
}
