package transcript

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/xuri/excelize/v2"
)

var utf8BOM = []byte("\xef\xbb\xbf")

// DetectDelimiter looks at the first non-blank line and picks ';' when it
// occurs more often than ','.
func DetectDelimiter(content []byte) rune {
	for _, line := range strings.Split(string(content), "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}
		if strings.Count(line, ";") > strings.Count(line, ",") {
			return ';'
		}
		return ','
	}
	return ','
}

func readCSV(content []byte) ([]record, error) {
	content = bytes.TrimPrefix(content, utf8BOM)

	reader := csv.NewReader(bytes.NewReader(content))
	reader.Comma = DetectDelimiter(content)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	var records []record
	for {
		fields, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			var line int
			var pe *csv.ParseError
			if errors.As(err, &pe) {
				line = pe.StartLine
			}
			records = append(records, record{line: line, err: err})
			continue
		}
		line, _ := reader.FieldPos(0)
		records = append(records, record{line: line, fields: fields})
	}
	return records, nil
}

// readXLSX reads the first sheet only.
func readXLSX(content []byte) ([]record, error) {
	f, err := excelize.OpenReader(bytes.NewReader(content))
	if err != nil {
		return nil, fmt.Errorf("%w: xlsx: %v", ErrUnsupportedFormat, err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, ErrEmptyTable
	}

	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("%w: xlsx sheet %q: %v", ErrUnsupportedFormat, sheets[0], err)
	}

	records := make([]record, 0, len(rows))
	for i, row := range rows {
		records = append(records, record{line: i + 1, fields: row})
	}
	return records, nil
}
