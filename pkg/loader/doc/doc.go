// Package doc reads the body text of Office Open XML word documents.
package doc

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"
)

const (
	documentPart = "word/document.xml"

	DefaultMaxDocumentBytes = 50 << 20
)

var (
	ErrNoDocument       = errors.New("docx has no word/document.xml")
	ErrDocumentTooLarge = errors.New("word/document.xml exceeds the size limit")
	errUnbalancedTable  = errors.New("unbalanced table markup")
)

// Config bounds the uncompressed size of the document part. Zero uses
// DefaultMaxDocumentBytes.
type Config struct {
	MaxDocumentBytes int64
}

func (c Config) limit() int64 {
	if c.MaxDocumentBytes <= 0 {
		return DefaultMaxDocumentBytes
	}
	return c.MaxDocumentBytes
}

// ExtractText reads content with the default Config.
func ExtractText(content []byte) (string, error) {
	return Config{}.Extract(content)
}

// Extract returns one line per paragraph. Table rows become pipe separated
// lines followed by a blank line, and deleted revisions are skipped.
func (c Config) Extract(content []byte) (string, error) {
	zr, err := zip.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return "", fmt.Errorf("failed to open docx: %w", err)
	}

	idx := -1
	for i, f := range zr.File {
		if f.Name == documentPart {
			idx = i
			break
		}
	}
	if idx < 0 {
		return "", ErrNoDocument
	}
	part := zr.File[idx]
	if part.UncompressedSize64 > uint64(c.limit()) {
		return "", fmt.Errorf("%w: %d bytes", ErrDocumentTooLarge, part.UncompressedSize64)
	}

	rc, err := part.Open()
	if err != nil {
		return "", fmt.Errorf("failed to open %s: %w", documentPart, err)
	}
	defer rc.Close()

	var w walker
	if err := w.walk(xml.NewDecoder(io.LimitReader(rc, c.limit()))); err != nil {
		return "", err
	}
	return w.text(), nil
}

// walker collects paragraphs and table rows from the token stream.
type walker struct {
	lines   []string
	para    strings.Builder
	cell    []string
	row     []string
	tables  int
	deleted int
	inText  bool
}

func (w *walker) walk(dec *xml.Decoder) error {
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to parse %s: %w", documentPart, err)
		}

		switch t := tok.(type) {
		case xml.StartElement:
			w.start(t.Name.Local)
		case xml.EndElement:
			if err := w.end(t.Name.Local); err != nil {
				return err
			}
		case xml.CharData:
			if w.inText && w.deleted == 0 {
				w.para.Write(t)
			}
		}
	}
}

func (w *walker) start(name string) {
	switch name {
	case "del":
		w.deleted++
	case "t":
		w.inText = true
	case "tbl":
		w.tables++
	case "tc":
		w.cell = w.cell[:0]
	}
	if w.deleted > 0 {
		return
	}
	switch name {
	case "tab":
		w.para.WriteByte('\t')
	case "br", "cr":
		w.para.WriteByte('\n')
	case "noBreakHyphen":
		w.para.WriteByte('-')
	}
}

func (w *walker) end(name string) error {
	switch name {
	case "del":
		if w.deleted > 0 {
			w.deleted--
		}
	case "t":
		w.inText = false
	case "p":
		text := strings.TrimSpace(w.para.String())
		w.para.Reset()
		if w.tables > 0 {
			if text != "" {
				w.cell = append(w.cell, text)
			}
			return nil
		}
		w.lines = append(w.lines, text)
	case "tc":
		w.row = append(w.row, strings.Join(w.cell, " "))
	case "tr":
		if len(w.row) > 0 {
			w.lines = append(w.lines, "| "+strings.Join(w.row, " | ")+" |")
		}
		w.row = w.row[:0]
	case "tbl":
		if w.tables == 0 {
			return errUnbalancedTable
		}
		w.tables--
		if w.tables == 0 {
			w.lines = append(w.lines, "")
		}
	}
	return nil
}

// text joins the lines and keeps at most one blank line in a row.
func (w *walker) text() string {
	var sb strings.Builder
	blank := false
	for _, line := range w.lines {
		if line == "" {
			if !blank && sb.Len() > 0 {
				sb.WriteByte('\n')
			}
			blank = true
			continue
		}
		if sb.Len() > 0 {
			sb.WriteByte('\n')
		}
		sb.WriteString(line)
		blank = false
	}
	return strings.TrimSpace(sb.String())
}
