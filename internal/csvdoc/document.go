package csvdoc

import (
	"fmt"
	"strings"
)

// EscapeField returns the CSV form of a single value.
// Text containing a double quote, comma, carriage return or line feed is wrapped
// in double quotes, with every interior quote doubled.
func EscapeField(v Value) string {
	s := v.String()
	if !strings.ContainsAny(s, "\",\r\n") {
		return s
	}
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}

// RowToLine escapes each value and joins them with commas.
func RowToLine(values []Value) string {
	fields := make([]string, len(values))
	for i, v := range values {
		fields[i] = EscapeField(v)
	}
	return strings.Join(fields, ",")
}

// BuildDocument renders headers and rows into a single document.
// Each row emits one field per header, in header order; labels missing from
// the row become empty fields and labels not in headers are ignored.
// Lines are joined by "\n" without a trailing newline.
func BuildDocument(headers []string, rows []Row) string {
	return BuildDocumentColumns(headers, rows, true)
}

// BuildDocumentColumns renders rows in the order of columns, emitting the
// header line only when includeHeader is set.
func BuildDocumentColumns(columns []string, rows []Row, includeHeader bool) string {
	lines := make([]string, 0, len(rows)+1)
	if includeHeader && len(columns) > 0 {
		lines = append(lines, RowToLine(Strings(columns)))
	}

	values := make([]Value, len(columns))
	for _, row := range rows {
		for i, column := range columns {
			values[i] = row[column]
		}
		lines = append(lines, RowToLine(values))
	}

	return strings.Join(lines, "\n")
}

// Preview renders at most max rows of the document, followed by a note on how
// many rows were left out.
func Preview(headers []string, rows []Row, max int) string {
	if max < 0 {
		max = 0
	}
	shown := rows
	if len(shown) > max {
		shown = shown[:max]
	}

	doc := BuildDocument(headers, shown)
	if rest := len(rows) - len(shown); rest > 0 {
		if doc != "" {
			doc += "\n"
		}
		doc += fmt.Sprintf("... and %d more rows", rest)
	}
	return doc
}
