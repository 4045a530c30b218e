// Package importer reads local CSV/TSV files into rows for custom exports.
package importer

import (
	"compress/bzip2"
	"compress/gzip"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"
)

// source is a decompressed view of an input file. Closing it closes
// every layer underneath.
type source struct {
	io.Reader
	closers []io.Closer
}

func (s *source) Close() error {
	var firstErr error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i].Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// openSource opens path on fs, unwrapping .gz and .bz2 layers.
func openSource(fs afero.Fs, path string) (*source, error) {
	file, err := fs.Open(path)
	if err != nil {
		return nil, err
	}
	src := &source{Reader: file, closers: []io.Closer{file}}

	for _, ext := range compressionLayers(path) {
		switch ext {
		case ".gz":
			gz, err := gzip.NewReader(src.Reader)
			if err != nil {
				src.Close()
				return nil, fmt.Errorf("failed to create gzip reader: %w", err)
			}
			src.Reader = gz
			src.closers = append(src.closers, gz)
		case ".bz2":
			src.Reader = bzip2.NewReader(src.Reader)
		}
	}
	return src, nil
}

// compressionLayers returns the compression extensions of path, outermost first.
func compressionLayers(path string) []string {
	var layers []string
	for {
		ext := strings.ToLower(filepath.Ext(path))
		if ext != ".gz" && ext != ".bz2" {
			return layers
		}
		layers = append(layers, ext)
		path = path[:len(path)-len(ext)]
	}
}

// ParseDelimiter converts a --delimiter value to a rune; 0 means detect
// from the file extension.
func ParseDelimiter(value string) (rune, error) {
	switch strings.ToLower(value) {
	case "comma", "csv":
		return ',', nil
	case "tab", "tsv":
		return '\t', nil
	case "auto", "":
		return 0, nil
	default:
		return 0, fmt.Errorf("invalid delimiter: %s (use 'comma', 'tab', or 'auto')", value)
	}
}

// DetectDelimiter returns '\t' for .tsv files (compressed or not) and ',' otherwise.
func DetectDelimiter(path string) rune {
	for _, ext := range compressionLayers(path) {
		path = path[:len(path)-len(ext)]
	}
	if strings.ToLower(filepath.Ext(path)) == ".tsv" {
		return '\t'
	}
	return ','
}
