// Package pdf extracts the text layer of PDF documents.
package pdf

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/ledongthuc/pdf"
)

// ErrNoText is returned when the document has no extractable text layer,
// which is the case for scanned PDFs.
var ErrNoText = errors.New("pdf has no text layer")

// ExtractText returns the plain text of every page, pages separated by a
// blank line.
func ExtractText(content []byte) (text string, err error) {
	// the reader panics on some malformed cross reference tables
	defer func() {
		if r := recover(); r != nil {
			text = ""
			err = fmt.Errorf("pdf parse panic: %v", r)
		}
	}()

	r, err := pdf.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return "", fmt.Errorf("pdf reader: %w", err)
	}

	var sb strings.Builder
	for i := 1; i <= r.NumPage(); i++ {
		page := r.Page(i)
		if page.V.IsNull() {
			continue
		}
		pageText, err := page.GetPlainText(nil)
		if err != nil {
			continue
		}
		pageText = strings.TrimSpace(pageText)
		if pageText == "" {
			continue
		}
		if sb.Len() > 0 {
			sb.WriteString("\n\n")
		}
		sb.WriteString(pageText)
	}

	if sb.Len() == 0 {
		// some producers only expose text through the document level reader
		plain, err := r.GetPlainText()
		if err != nil {
			return "", fmt.Errorf("pdf plaintext: %w", err)
		}
		b, err := io.ReadAll(plain)
		if err != nil {
			return "", fmt.Errorf("pdf read: %w", err)
		}
		if strings.TrimSpace(string(b)) == "" {
			return "", ErrNoText
		}
		return string(b), nil
	}

	return sb.String(), nil
}
