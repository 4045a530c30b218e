package exporter

import (
	"fmt"

	"github.com/c2h5oh/datasize"

	"github.com/jiraexport/jiraexport-go/internal/csvdoc"
)

var sizeUnits = []struct {
	name string
	size datasize.ByteSize
}{
	{"B", datasize.B},
	{"KB", datasize.KB},
	{"MB", datasize.MB},
	{"GB", datasize.GB},
}

// EstimateByteSize approximates the size of the full document.
// It measures the document built from headers and the first row only and
// multiplies that by the number of rows, so heterogeneous rows make it inaccurate.
func EstimateByteSize(headers []string, rows []csvdoc.Row) datasize.ByteSize {
	sample := rows
	if len(sample) > 1 {
		sample = sample[:1]
	}
	perRow := len(csvdoc.BuildDocument(headers, sample))
	return datasize.ByteSize(perRow) * datasize.ByteSize(len(rows))
}

// FormatByteSize renders a size in the largest unit up to GB that keeps the
// value below 1024, with two decimals, e.g. 1536 -> "1.50 KB".
func FormatByteSize(bytes datasize.ByteSize) string {
	unit := 0
	for unit < len(sizeUnits)-1 && bytes >= sizeUnits[unit+1].size {
		unit++
	}
	size := float64(bytes) / float64(sizeUnits[unit].size)
	return fmt.Sprintf("%.2f %s", size, sizeUnits[unit].name)
}
