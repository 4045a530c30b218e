package exporter

import (
	"bytes"
	"compress/gzip"
	"errors"
	"io"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/c2h5oh/datasize"
	"github.com/jonboulle/clockwork"
	"github.com/spf13/afero"

	"github.com/jiraexport/jiraexport-go/internal/csvdoc"
)

func TestSanitizeFilename(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"already safe", "jira_issues_2024.csv", "jira_issues_2024.csv"},
		{"spaces and bangs", "My File!!.csv", "My_File_.csv"},
		{"double underscore", "a__b", "a_b"},
		{"surrounding underscores", "_abc_", "abc"},
		{"slashes", "../etc/passwd", ".._etc_passwd"},
		{"unicode", "résumé.csv", "r_sum_.csv"},
		{"only specials", "!!!", ""},
		{"empty", "", ""},
		{"dash and dot kept", "a-b.c", "a-b.c"},
		{"colon timestamp", "x_2024-01-15T10:30:45.csv", "x_2024-01-15T10_30_45.csv"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := SanitizeFilename(tt.input); got != tt.want {
				t.Errorf("SanitizeFilename(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func FuzzSanitizeFilenameIdempotent(f *testing.F) {
	for _, seed := range []string{"", "_", "__", "a__b", "_abc_", "My File!!.csv", "日本語", " _ _ ", "a\x00b"} {
		f.Add(seed)
	}
	f.Fuzz(func(t *testing.T, input string) {
		once := SanitizeFilename(input)
		if twice := SanitizeFilename(once); twice != once {
			t.Errorf("SanitizeFilename not idempotent for %q: %q -> %q", input, once, twice)
		}
		if strings.HasPrefix(once, "_") || strings.HasSuffix(once, "_") || strings.Contains(once, "__") {
			t.Errorf("SanitizeFilename(%q) = %q has stray underscores", input, once)
		}
	})
}

func TestGenerateFilename(t *testing.T) {
	clock := clockwork.NewFakeClockAt(time.Date(2024, 1, 15, 10, 30, 45, 123_000_000, time.UTC))
	m := NewMaterializer(clock, nil)

	tests := []struct {
		name      string
		prefix    string
		extension string
		want      string
	}{
		{"csv", "jira_issues", "csv", "jira_issues_2024-01-15T10-30-45.csv"},
		{"default extension", "jira_users", "", "jira_users_2024-01-15T10-30-45.csv"},
		{"gzip", "jira_projects", "csv.gz", "jira_projects_2024-01-15T10-30-45.csv.gz"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := m.GenerateFilename(tt.prefix, tt.extension); got != tt.want {
				t.Errorf("GenerateFilename(%q, %q) = %q, want %q", tt.prefix, tt.extension, got, tt.want)
			}
		})
	}
}

func TestGenerateFilenameUsesUTC(t *testing.T) {
	zone := time.FixedZone("UTC-5", -5*60*60)
	clock := clockwork.NewFakeClockAt(time.Date(2024, 1, 15, 22, 0, 0, 0, zone))
	m := NewMaterializer(clock, nil)

	want := "x_2024-01-16T03-00-00.csv"
	if got := m.GenerateFilename("x", "csv"); got != want {
		t.Errorf("GenerateFilename() = %q, want %q", got, want)
	}
}

func TestEstimateByteSize(t *testing.T) {
	headers := []string{"A", "B"}
	rows := []csvdoc.Row{
		{"A": csvdoc.String("x"), "B": csvdoc.String("y")},
		{"A": csvdoc.String("a much longer value"), "B": csvdoc.String("z")},
		{"A": csvdoc.String("q")},
	}

	// "A,B\nx,y" is 7 bytes, times 3 rows.
	if got := EstimateByteSize(headers, rows); got != 21 {
		t.Errorf("EstimateByteSize() = %d, want 21", got)
	}
	if got := EstimateByteSize(headers, nil); got != 0 {
		t.Errorf("EstimateByteSize(no rows) = %d, want 0", got)
	}

	multiByte := []csvdoc.Row{{"A": csvdoc.String("é")}}
	// "A,B\né," is 7 bytes in UTF-8.
	if got := EstimateByteSize(headers, multiByte); got != 7 {
		t.Errorf("EstimateByteSize(multi-byte) = %d, want 7", got)
	}
}

func TestFormatByteSize(t *testing.T) {
	tests := []struct {
		bytes datasize.ByteSize
		want  string
	}{
		{0, "0.00 B"},
		{500, "500.00 B"},
		{1023, "1023.00 B"},
		{1024, "1.00 KB"},
		{1536, "1.50 KB"},
		{5 * datasize.MB, "5.00 MB"},
		{1073741824, "1.00 GB"},
		{2048 * datasize.GB, "2048.00 GB"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if got := FormatByteSize(tt.bytes); got != tt.want {
				t.Errorf("FormatByteSize(%d) = %q, want %q", tt.bytes, got, tt.want)
			}
		})
	}
}

func TestDeliverToFile(t *testing.T) {
	fs := afero.NewMemMapFs()
	m := NewMaterializer(clockwork.NewFakeClock(), NewFileSink(fs, "exports"))

	path, err := m.Deliver("A,B\nx,y", "My Export!!.csv")
	if err != nil {
		t.Fatalf("Deliver() error = %v", err)
	}

	wantPath := filepath.Join("exports", "My_Export_.csv")
	if path != wantPath {
		t.Errorf("Deliver() path = %q, want %q", path, wantPath)
	}

	content, err := afero.ReadFile(fs, wantPath)
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	if string(content) != "A,B\nx,y" {
		t.Errorf("content = %q, want %q", content, "A,B\nx,y")
	}
}

func TestDeliverToGzip(t *testing.T) {
	fs := afero.NewMemMapFs()
	m := NewMaterializer(clockwork.NewFakeClock(), NewFileSink(fs, ""))

	path, err := m.Deliver("A\n1", "out.csv.gz")
	if err != nil {
		t.Fatalf("Deliver() error = %v", err)
	}

	file, err := fs.Open(path)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer file.Close()

	reader, err := gzip.NewReader(file)
	if err != nil {
		t.Fatalf("gzip.NewReader() error = %v", err)
	}
	content, err := io.ReadAll(reader)
	if err != nil {
		t.Fatalf("ReadAll() error = %v", err)
	}
	if string(content) != "A\n1" {
		t.Errorf("content = %q, want %q", content, "A\n1")
	}
}

func TestDeliverBzip2Unsupported(t *testing.T) {
	m := NewMaterializer(clockwork.NewFakeClock(), NewFileSink(afero.NewMemMapFs(), "out"))
	if _, err := m.Deliver("A", "out.csv.bz2"); err == nil {
		t.Error("Deliver() expected error for .bz2 output")
	}
}

func TestDeliverReadOnlyFs(t *testing.T) {
	fs := afero.NewReadOnlyFs(afero.NewMemMapFs())
	m := NewMaterializer(clockwork.NewFakeClock(), NewFileSink(fs, "out"))
	if _, err := m.Deliver("A", "out.csv"); err == nil {
		t.Error("Deliver() expected error on read-only filesystem")
	}
}

func TestDeliverToWriter(t *testing.T) {
	var buf bytes.Buffer
	m := NewMaterializer(clockwork.NewFakeClock(), &WriterSink{W: &buf})

	path, err := m.Deliver("A,B\nx,y", "ignored.csv")
	if err != nil {
		t.Fatalf("Deliver() error = %v", err)
	}
	if path != "-" {
		t.Errorf("Deliver() path = %q, want %q", path, "-")
	}
	if buf.String() != "A,B\nx,y\n" {
		t.Errorf("output = %q", buf.String())
	}
}

func TestWriterSinkTerminatesOutput(t *testing.T) {
	tests := []struct {
		name     string
		document string
		want     string
	}{
		{"unterminated", "A,B\nx,y", "A,B\nx,y\n"},
		{"already terminated", "A,B\n", "A,B\n"},
		{"empty", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			sink := &WriterSink{W: &buf}
			if _, err := sink.Write("a.csv", []byte(tt.document)); err != nil {
				t.Fatalf("Write() error = %v", err)
			}
			if buf.String() != tt.want {
				t.Errorf("output = %q, want %q", buf.String(), tt.want)
			}
		})
	}
}

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) { return 0, errors.New("blocked") }

func TestDeliverWriterError(t *testing.T) {
	m := NewMaterializer(clockwork.NewFakeClock(), &WriterSink{W: failingWriter{}})
	if _, err := m.Deliver("A", "a.csv"); err == nil {
		t.Error("Deliver() expected error from failing writer")
	}
}
