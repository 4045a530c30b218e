package importer

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"

	"github.com/spf13/afero"

	"github.com/jiraexport/jiraexport-go/internal/csvdoc"
)

// Input describes a file to read.
type Input struct {
	FilePath  string
	Delimiter rune // 0 detects the delimiter from the extension
	HasHeader bool
}

// Table is the content of a file as label-keyed rows.
type Table struct {
	Headers []string
	Rows    []csvdoc.Row
}

// Read parses a CSV/TSV file. Without a header row the columns are named
// col1, col2, and so on. Repeated header names get a numeric suffix so no
// column is lost.
func Read(fs afero.Fs, input Input) (*Table, error) {
	src, err := openSource(fs, input.FilePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer src.Close()

	delimiter := input.Delimiter
	if delimiter == 0 {
		delimiter = DetectDelimiter(input.FilePath)
	}

	reader := csv.NewReader(src)
	reader.Comma = delimiter
	reader.LazyQuotes = true
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1

	first, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return &Table{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}

	table := &Table{}
	if input.HasHeader {
		table.Headers = uniqueHeaders(first)
	} else {
		table.Headers = make([]string, len(first))
		for i := range table.Headers {
			table.Headers[i] = fmt.Sprintf("col%d", i+1)
		}
		table.Rows = append(table.Rows, toRow(table.Headers, first))
	}

	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read row: %w", err)
		}
		table.Rows = append(table.Rows, toRow(table.Headers, record))
	}

	return table, nil
}

// toRow maps a record onto headers; extra fields are dropped and missing ones stay empty.
func toRow(headers, record []string) csvdoc.Row {
	row := make(csvdoc.Row, len(headers))
	for i, h := range headers {
		if i < len(record) {
			row[h] = csvdoc.String(record[i])
		} else {
			row[h] = csvdoc.String("")
		}
	}
	return row
}

func uniqueHeaders(headers []string) []string {
	used := make(map[string]bool, len(headers))
	out := make([]string, len(headers))
	for i, h := range headers {
		name := h
		for n := 2; used[name]; n++ {
			name = h + "_" + strconv.Itoa(n)
		}
		used[name] = true
		out[i] = name
	}
	return out
}
