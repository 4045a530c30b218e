// Package service exports Jira records to CSV files.
package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/c2h5oh/datasize"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/jiraexport/jiraexport-go/internal/converter"
	"github.com/jiraexport/jiraexport-go/internal/csvdoc"
	"github.com/jiraexport/jiraexport-go/internal/database"
	"github.com/jiraexport/jiraexport-go/internal/exporter"
	"github.com/jiraexport/jiraexport-go/internal/jira"
)

const (
	DefaultMaxResults = 1000
	PreviewRows       = 10
)

var (
	// ErrNoRows is returned when there is nothing to export.
	ErrNoRows = errors.New("no rows to export")
	// ErrMissingQuery is returned when neither a project key nor JQL is given.
	ErrMissingQuery = errors.New("project key or jql is required")
)

// Kind identifies what is exported.
type Kind string

const (
	KindIssues   Kind = "issues"
	KindUsers    Kind = "users"
	KindProjects Kind = "projects"
	KindCustom   Kind = "custom"
)

// ParseKind converts a kind name.
func ParseKind(s string) (Kind, error) {
	switch k := Kind(s); k {
	case KindIssues, KindUsers, KindProjects:
		return k, nil
	default:
		return "", fmt.Errorf("invalid export kind: %s (use 'issues', 'users', or 'projects')", s)
	}
}

// Fetcher reads records from Jira.
type Fetcher interface {
	GetIssues(ctx context.Context, projectKey, jql string, maxResults int) ([]jira.Issue, error)
	SearchIssues(ctx context.Context, jql string, maxResults int) ([]jira.Issue, error)
	GetUsers(ctx context.Context) ([]jira.User, error)
	GetProjects(ctx context.Context) ([]jira.Project, error)
}

// History records finished exports.
type History interface {
	RecordExport(ctx context.Context, e database.Export) (int64, error)
	SnapshotRows(ctx context.Context, tableName string, headers []string, records [][]string) error
}

// Progress receives the stages of an export.
type Progress interface {
	StartFetch(kind Kind)
	FinishFetch(kind Kind, rows int, duration time.Duration)
	StartWrite(filename string, rows int)
	FinishWrite(filename, path string, rows int)
	Error(stage, key string, err error)
}

type noProgress struct{}

func (noProgress) StartFetch(Kind) {}
func (noProgress) FinishFetch(Kind, int, time.Duration) {}
func (noProgress) StartWrite(string, int) {}
func (noProgress) FinishWrite(string, string, int) {}
func (noProgress) Error(string, string, error) {}

// Options describes one export request.
type Options struct {
	ProjectKey string
	JQL        string
	MaxResults int
	Filename   string // Filename prefix, a timestamp and extension are appended
	Extension  string
}

// Result describes a finished export.
type Result struct {
	Kind          Kind
	Filename      string
	Path          string // File path, or "-" for stdout
	RowCount      int
	EstimatedSize datasize.ByteSize
	FileSize      string
}

// PreviewData holds the first rows of an export.
type PreviewData struct {
	Headers []string
	Rows    []csvdoc.Row
	Count   int
}

// Service fetches, converts and delivers exports.
type Service struct {
	fetcher        Fetcher
	converter      *converter.Converter
	materializer   *exporter.Materializer
	history        History
	snapshot       bool
	includeHeaders bool
	extension      string
	progress       Progress
	clock          clockwork.Clock
	logger         *zap.SugaredLogger
}

// Option configures a Service.
type Option func(s *Service)

// WithHistory records every export, optionally snapshotting the exported rows.
func WithHistory(h History, snapshot bool) Option {
	return func(s *Service) {
		s.history = h
		s.snapshot = snapshot
	}
}

// WithExtension sets the extension used when Options.Extension is empty, e.g. "csv.gz".
func WithExtension(extension string) Option {
	return func(s *Service) { s.extension = extension }
}

// WithProgress reports export stages to p.
func WithProgress(p Progress) Option {
	return func(s *Service) { s.progress = p }
}

// WithClock sets the clock used for history timestamps.
func WithClock(clock clockwork.Clock) Option {
	return func(s *Service) { s.clock = clock }
}

// WithLogger sets the logger.
func WithLogger(logger *zap.SugaredLogger) Option {
	return func(s *Service) { s.logger = logger }
}

// New creates a service. Header lines follow the converter options.
func New(fetcher Fetcher, conv *converter.Converter, mat *exporter.Materializer, opts ...Option) *Service {
	s := &Service{
		fetcher:        fetcher,
		converter:      conv,
		materializer:   mat,
		includeHeaders: conv.Options().IncludeHeaders,
		progress:       noProgress{},
		clock:          clockwork.NewRealClock(),
		logger:         zap.NewNop().Sugar(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ExportProjectIssues exports the issues of a project, narrowed by JQL when given.
func (s *Service) ExportProjectIssues(ctx context.Context, opts Options) (*Result, error) {
	if opts.ProjectKey == "" && opts.JQL == "" {
		return nil, ErrMissingQuery
	}
	issues, err := fetch(s, KindIssues, func() ([]jira.Issue, error) {
		return s.fetcher.GetIssues(ctx, opts.ProjectKey, opts.JQL, maxResults(opts))
	})
	if err != nil {
		return nil, err
	}
	if len(issues) == 0 {
		return nil, fmt.Errorf("no issues found: %w", ErrNoRows)
	}
	rows := s.converter.ConvertIssues(issues)
	return s.export(ctx, KindIssues, s.converter.Headers(), rows, withDefault(opts, "jira_issues"))
}

// ExportIssuesWithJQL exports the issues matching a JQL query.
func (s *Service) ExportIssuesWithJQL(ctx context.Context, jql string, opts Options) (*Result, error) {
	if jql == "" {
		return nil, ErrMissingQuery
	}
	issues, err := fetch(s, KindIssues, func() ([]jira.Issue, error) {
		return s.fetcher.SearchIssues(ctx, jql, maxResults(opts))
	})
	if err != nil {
		return nil, err
	}
	if len(issues) == 0 {
		return nil, fmt.Errorf("no issues match the jql query: %w", ErrNoRows)
	}
	rows := s.converter.ConvertIssues(issues)
	return s.export(ctx, KindIssues, s.converter.Headers(), rows, withDefault(opts, "jira_issues_jql"))
}

// ExportUsers exports all users.
func (s *Service) ExportUsers(ctx context.Context, opts Options) (*Result, error) {
	users, err := fetch(s, KindUsers, func() ([]jira.User, error) {
		return s.fetcher.GetUsers(ctx)
	})
	if err != nil {
		return nil, err
	}
	if len(users) == 0 {
		return nil, fmt.Errorf("no users found: %w", ErrNoRows)
	}
	rows := s.converter.ConvertUsers(users)
	return s.export(ctx, KindUsers, converter.UserHeaders, rows, withDefault(opts, "jira_users"))
}

// ExportProjects exports all projects.
func (s *Service) ExportProjects(ctx context.Context, opts Options) (*Result, error) {
	projects, err := fetch(s, KindProjects, func() ([]jira.Project, error) {
		return s.fetcher.GetProjects(ctx)
	})
	if err != nil {
		return nil, err
	}
	if len(projects) == 0 {
		return nil, fmt.Errorf("no projects found: %w", ErrNoRows)
	}
	rows := s.converter.ConvertProjects(projects)
	return s.export(ctx, KindProjects, converter.ProjectHeaders, rows, withDefault(opts, "jira_projects"))
}

// ExportCustom exports caller-supplied rows. An empty filename uses the "custom_data" prefix.
func (s *Service) ExportCustom(ctx context.Context, headers []string, rows []csvdoc.Row, filename string) (*Result, error) {
	if len(rows) == 0 {
		return nil, ErrNoRows
	}
	return s.export(ctx, KindCustom, headers, rows, withDefault(Options{Filename: filename}, "custom_data"))
}

// Preview returns the first rows of an export without delivering anything.
func (s *Service) Preview(ctx context.Context, kind Kind, opts Options) (*PreviewData, error) {
	var headers []string
	var rows []csvdoc.Row

	switch kind {
	case KindIssues:
		if opts.ProjectKey == "" && opts.JQL == "" {
			return nil, ErrMissingQuery
		}
		issues, err := s.fetcher.GetIssues(ctx, opts.ProjectKey, opts.JQL, PreviewRows)
		if err != nil {
			return nil, err
		}
		headers, rows = s.converter.Headers(), s.converter.ConvertIssues(issues)
	case KindUsers:
		users, err := s.fetcher.GetUsers(ctx)
		if err != nil {
			return nil, err
		}
		headers, rows = converter.UserHeaders, s.converter.ConvertUsers(users[:min(len(users), PreviewRows)])
	case KindProjects:
		projects, err := s.fetcher.GetProjects(ctx)
		if err != nil {
			return nil, err
		}
		headers, rows = converter.ProjectHeaders, s.converter.ConvertProjects(projects[:min(len(projects), PreviewRows)])
	default:
		return nil, fmt.Errorf("cannot preview %q exports", kind)
	}

	return &PreviewData{Headers: headers, Rows: rows, Count: len(rows)}, nil
}

func (s *Service) export(ctx context.Context, kind Kind, headers []string, rows []csvdoc.Row, opts Options) (*Result, error) {
	extension := opts.Extension
	if extension == "" {
		extension = s.extension
	}
	filename := s.materializer.GenerateFilename(opts.Filename, extension)
	document := csvdoc.BuildDocumentColumns(headers, rows, s.includeHeaders)

	s.progress.StartWrite(filename, len(rows))
	path, err := s.materializer.Deliver(document, filename)
	if err != nil {
		s.progress.Error("write", filename, err)
		return nil, fmt.Errorf("failed to deliver %s: %w", filename, err)
	}
	s.progress.FinishWrite(filename, path, len(rows))

	estimated := exporter.EstimateByteSize(headers, rows)
	result := &Result{
		Kind:          kind,
		Filename:      exporter.SanitizeFilename(filename),
		Path:          path,
		RowCount:      len(rows),
		EstimatedSize: estimated,
		FileSize:      exporter.FormatByteSize(estimated),
	}
	s.logger.Debugf("exported %d %s rows to %s (%s)", result.RowCount, kind, result.Path, result.FileSize)

	if s.history != nil {
		if err := s.record(ctx, result, headers, rows); err != nil {
			return result, err
		}
	}
	return result, nil
}

// fetch runs get, reporting its progress under kind.
func fetch[T any](s *Service, kind Kind, get func() ([]T, error)) ([]T, error) {
	s.progress.StartFetch(kind)
	start := s.clock.Now()
	items, err := get()
	if err != nil {
		s.progress.Error("fetch", string(kind), err)
		return nil, err
	}
	s.progress.FinishFetch(kind, len(items), s.clock.Since(start))
	return items, nil
}

func (s *Service) record(ctx context.Context, result *Result, headers []string, rows []csvdoc.Row) error {
	entry := database.Export{
		Kind:           string(result.Kind),
		Filename:       result.Filename,
		Location:       result.Path,
		RowCount:       result.RowCount,
		EstimatedBytes: result.EstimatedSize.Bytes(),
		CreatedAt:      s.clock.Now().Truncate(time.Second),
	}

	if s.snapshot {
		entry.SnapshotTable = database.SanitizeTableName(result.Filename)
		if err := s.history.SnapshotRows(ctx, entry.SnapshotTable, headers, records(headers, rows)); err != nil {
			return fmt.Errorf("failed to snapshot export: %w", err)
		}
	}
	if _, err := s.history.RecordExport(ctx, entry); err != nil {
		return err
	}
	return nil
}

// records flattens rows into string records ordered by headers.
func records(headers []string, rows []csvdoc.Row) [][]string {
	out := make([][]string, len(rows))
	for i, row := range rows {
		record := make([]string, len(headers))
		for j, h := range headers {
			record[j] = row[h].String()
		}
		out[i] = record
	}
	return out
}

func maxResults(opts Options) int {
	if opts.MaxResults > 0 {
		return opts.MaxResults
	}
	return DefaultMaxResults
}

func withDefault(opts Options, prefix string) Options {
	if opts.Filename == "" {
		opts.Filename = prefix
	}
	return opts
}
