package parser

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"

	"guu-schedule-bot/internal/models"
)

const delimitedSource = "table"

var utf8BOM = []byte("\xef\xbb\xbf")

func parseDelimited(content []byte) ([]models.RawRow, error) {
	content = bytes.TrimPrefix(content, utf8BOM)
	if len(bytes.TrimSpace(content)) == 0 {
		return nil, errors.New("empty input")
	}
	if bytes.IndexByte(content, 0) >= 0 {
		return nil, errors.New("binary content")
	}
	if !utf8.Valid(content) {
		decoded, err := charmap.Windows1251.NewDecoder().Bytes(content)
		if err != nil {
			return nil, fmt.Errorf("decode cp1251: %w", err)
		}
		content = decoded
	}

	r := csv.NewReader(bytes.NewReader(content))
	r.Comma = detectDelimiter(content)
	r.FieldsPerRecord = -1
	r.LazyQuotes = true
	r.TrimLeadingSpace = true

	var records [][]string
	for {
		record, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read record: %w", err)
		}
		records = append(records, record)
	}

	if maxWidth(records) < 2 {
		return nil, errors.New("no delimited columns found")
	}
	return extractRows(delimitedSource, records), nil
}

// detectDelimiter выбирает разделитель, чаще всего встречающийся в первой строке.
func detectDelimiter(content []byte) rune {
	line := content
	if i := bytes.IndexByte(content, '\n'); i >= 0 {
		line = content[:i]
	}
	best, bestCount := ',', 0
	for _, d := range []rune{',', ';', '\t'} {
		if n := bytes.Count(line, []byte(string(d))); n > bestCount {
			best, bestCount = d, n
		}
	}
	return best
}

func maxWidth(records [][]string) int {
	w := 0
	for _, r := range records {
		w = max(w, len(r))
	}
	return w
}
