package exporter

import (
	"github.com/jonboulle/clockwork"
)

const (
	// DefaultExtension is used when GenerateFilename gets no extension.
	DefaultExtension = "csv"

	timestampLayout = "2006-01-02T15-04-05"
)

// Materializer turns documents into named files handed to a Sink.
type Materializer struct {
	clock clockwork.Clock
	sink  Sink
}

// NewMaterializer creates a materializer. A nil clock falls back to the real clock.
func NewMaterializer(clock clockwork.Clock, sink Sink) *Materializer {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Materializer{clock: clock, sink: sink}
}

// GenerateFilename returns "<prefix>_<timestamp>.<extension>".
// The timestamp is the current UTC time truncated to seconds, with ':' and '.'
// replaced so the name is valid on common filesystems, e.g. 2024-01-15T10-30-45.
func (m *Materializer) GenerateFilename(prefix, extension string) string {
	if extension == "" {
		extension = DefaultExtension
	}
	timestamp := m.clock.Now().UTC().Format(timestampLayout)
	return prefix + "_" + timestamp + "." + extension
}

// Deliver sanitizes filename and hands the document to the sink.
// It returns the location reported by the sink.
func (m *Materializer) Deliver(document, filename string) (string, error) {
	return m.sink.Write(SanitizeFilename(filename), []byte(document))
}
