// Package exporter names, sizes and delivers rendered CSV documents.
package exporter

import (
	"compress/gzip"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"
)

// Sink is the delivery boundary: it receives the document bytes under a
// sanitized filename and returns where they ended up.
type Sink interface {
	Write(filename string, content []byte) (string, error)
}

// FileSink writes documents into a directory of a filesystem.
type FileSink struct {
	Fs  afero.Fs
	Dir string
}

// NewFileSink returns a sink writing into dir on fs.
func NewFileSink(fs afero.Fs, dir string) *FileSink {
	return &FileSink{Fs: fs, Dir: dir}
}

// Write creates the file, compressing it when the name ends in ".gz".
func (s *FileSink) Write(filename string, content []byte) (string, error) {
	dir := s.Dir
	if dir == "" {
		dir = "."
	}
	if err := s.Fs.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create output directory %s: %w", dir, err)
	}

	path := filepath.Join(dir, filename)
	output, err := OpenOutputFile(s.Fs, path)
	if err != nil {
		return "", err
	}

	if _, err := output.Write(content); err != nil {
		output.Close()
		return "", fmt.Errorf("failed to write %s: %w", path, err)
	}
	if err := output.Close(); err != nil {
		return "", fmt.Errorf("failed to close %s: %w", path, err)
	}
	return path, nil
}

// WriterSink writes documents to a stream, e.g. stdout.
type WriterSink struct {
	W io.Writer
}

// Write copies content to the stream and terminates the last line with a
// newline when the document does not already end in one. File sinks store
// the document byte for byte.
func (s *WriterSink) Write(_ string, content []byte) (string, error) {
	if _, err := s.W.Write(content); err != nil {
		return "", fmt.Errorf("failed to write output: %w", err)
	}
	if len(content) > 0 && content[len(content)-1] != '\n' {
		if _, err := io.WriteString(s.W, "\n"); err != nil {
			return "", fmt.Errorf("failed to write output: %w", err)
		}
	}
	return "-", nil
}

// OpenOutputFile opens an output file, handling compression automatically based on extension.
func OpenOutputFile(fs afero.Fs, filePath string) (io.WriteCloser, error) {
	file, err := fs.Create(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to create output file: %w", err)
	}

	ext := strings.ToLower(filepath.Ext(filePath))
	switch ext {
	case ".gz":
		return &gzipWriter{file: file, writer: gzip.NewWriter(file)}, nil
	case ".bz2":
		file.Close()
		return nil, fmt.Errorf("bzip2 output compression not supported, use .gz instead")
	default:
		return file, nil
	}
}

// gzipWriter wraps gzip writer and file to close both properly.
type gzipWriter struct {
	file   afero.File
	writer *gzip.Writer
}

func (g *gzipWriter) Write(p []byte) (int, error) {
	return g.writer.Write(p)
}

func (g *gzipWriter) Close() error {
	if err := g.writer.Close(); err != nil {
		g.file.Close()
		return err
	}
	return g.file.Close()
}
