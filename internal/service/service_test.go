package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"testing"
	"time"

	"github.com/jarcoal/httpmock"
	"github.com/jonboulle/clockwork"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/jiraexport/jiraexport-go/internal/config"
	"github.com/jiraexport/jiraexport-go/internal/converter"
	"github.com/jiraexport/jiraexport-go/internal/csvdoc"
	"github.com/jiraexport/jiraexport-go/internal/database"
	"github.com/jiraexport/jiraexport-go/internal/exporter"
	"github.com/jiraexport/jiraexport-go/internal/jira"
)

var testNow = time.Date(2024, 1, 15, 10, 30, 45, 0, time.UTC)

type fakeFetcher struct {
	issues   []jira.Issue
	users    []jira.User
	projects []jira.Project
	err      error

	gotProject string
	gotJQL     string
	gotMax     int
}

func (f *fakeFetcher) GetIssues(_ context.Context, projectKey, jql string, maxResults int) ([]jira.Issue, error) {
	f.gotProject, f.gotJQL, f.gotMax = projectKey, jql, maxResults
	return f.issues, f.err
}

func (f *fakeFetcher) SearchIssues(_ context.Context, jql string, maxResults int) ([]jira.Issue, error) {
	f.gotJQL, f.gotMax = jql, maxResults
	return f.issues, f.err
}

func (f *fakeFetcher) GetUsers(context.Context) ([]jira.User, error) {
	return f.users, f.err
}

func (f *fakeFetcher) GetProjects(context.Context) ([]jira.Project, error) {
	return f.projects, f.err
}

type fixture struct {
	fs      afero.Fs
	fetcher *fakeFetcher
	svc     *Service
}

func newFixture(t *testing.T, opts converter.Options, svcOpts ...Option) *fixture {
	t.Helper()
	conv, err := converter.New(opts)
	require.NoError(t, err)

	fs := afero.NewMemMapFs()
	fetcher := &fakeFetcher{}
	mat := exporter.NewMaterializer(clockwork.NewFakeClockAt(testNow), exporter.NewFileSink(fs, "exports"))
	svcOpts = append([]Option{WithLogger(zaptest.NewLogger(t).Sugar())}, svcOpts...)
	return &fixture{fs: fs, fetcher: fetcher, svc: New(fetcher, conv, mat, svcOpts...)}
}

func (f *fixture) read(t *testing.T, path string) string {
	t.Helper()
	content, err := afero.ReadFile(f.fs, path)
	require.NoError(t, err)
	return string(content)
}

func sampleUsers() []jira.User {
	return []jira.User{
		{AccountID: "a1", DisplayName: "Jo", EmailAddress: "jo@example.com", Active: true},
		{AccountID: "a2", DisplayName: "Lee, Sam", Active: false},
	}
}

func TestExportUsers(t *testing.T) {
	f := newFixture(t, converter.DefaultOptions())
	f.fetcher.users = sampleUsers()

	result, err := f.svc.ExportUsers(context.Background(), Options{})
	require.NoError(t, err)

	assert.Equal(t, KindUsers, result.Kind)
	assert.Equal(t, "jira_users_2024-01-15T10-30-45.csv", result.Filename)
	assert.Equal(t, filepath.Join("exports", result.Filename), result.Path)
	assert.Equal(t, 2, result.RowCount)

	rows := f.svc.converter.ConvertUsers(f.fetcher.users)
	assert.Equal(t, exporter.EstimateByteSize(converter.UserHeaders, rows), result.EstimatedSize)
	assert.Equal(t, exporter.FormatByteSize(result.EstimatedSize), result.FileSize)

	want := "Account ID,Display Name,Email Address,Active\n" +
		"a1,Jo,jo@example.com,true\n" +
		"a2,\"Lee, Sam\",,false"
	assert.Equal(t, want, f.read(t, result.Path))
}

func TestExportWithoutHeaders(t *testing.T) {
	opts := converter.DefaultOptions()
	opts.IncludeHeaders = false
	f := newFixture(t, opts)
	f.fetcher.projects = []jira.Project{
		{ID: "10000", Key: "PS", Name: "Planning Studio", ProjectTypeKey: "software",
			Lead: jira.User{DisplayName: "Jo", EmailAddress: "jo@example.com"}},
	}

	result, err := f.svc.ExportProjects(context.Background(), Options{Filename: "all projects"})
	require.NoError(t, err)

	assert.Equal(t, "all_projects_2024-01-15T10-30-45.csv", result.Filename)
	assert.Equal(t, "10000,PS,Planning Studio,software,Jo,jo@example.com", f.read(t, result.Path))
}

func TestExportProjectIssues(t *testing.T) {
	f := newFixture(t, converter.Options{
		IncludeHeaders: true,
		Fields: []converter.Field{
			{Key: "key", Label: "Issue Key", Type: converter.TypeString},
			{Key: "summary", Label: "Summary", Type: converter.TypeString},
			{Key: "storyPoints", Label: "Story Points", Type: converter.TypeNumber},
		},
	})
	f.fetcher.issues = []jira.Issue{
		{Key: "PS-1", Fields: jira.IssueFields{Summary: `Say "hi"`}},
		{Key: "PS-2", Fields: jira.IssueFields{Summary: "Two\nlines"}},
	}

	result, err := f.svc.ExportProjectIssues(context.Background(), Options{ProjectKey: "PS"})
	require.NoError(t, err)

	assert.Equal(t, "PS", f.fetcher.gotProject)
	assert.Equal(t, DefaultMaxResults, f.fetcher.gotMax)
	assert.Equal(t, "jira_issues_2024-01-15T10-30-45.csv", result.Filename)
	assert.Equal(t, "Issue Key,Summary,Story Points\nPS-1,\"Say \"\"hi\"\"\",\nPS-2,\"Two\nlines\",", f.read(t, result.Path))
}

func TestExportIssuesWithJQL(t *testing.T) {
	f := newFixture(t, converter.DefaultOptions())
	f.fetcher.issues = []jira.Issue{{Key: "PS-1"}}

	result, err := f.svc.ExportIssuesWithJQL(context.Background(), "assignee = currentUser()", Options{MaxResults: 25})
	require.NoError(t, err)

	assert.Equal(t, "assignee = currentUser()", f.fetcher.gotJQL)
	assert.Equal(t, 25, f.fetcher.gotMax)
	assert.Equal(t, "jira_issues_jql_2024-01-15T10-30-45.csv", result.Filename)
}

func TestExportErrors(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, converter.DefaultOptions())

	_, err := f.svc.ExportProjectIssues(ctx, Options{})
	assert.ErrorIs(t, err, ErrMissingQuery)

	_, err = f.svc.ExportIssuesWithJQL(ctx, "", Options{})
	assert.ErrorIs(t, err, ErrMissingQuery)

	_, err = f.svc.ExportUsers(ctx, Options{})
	assert.ErrorIs(t, err, ErrNoRows)

	_, err = f.svc.ExportProjects(ctx, Options{})
	assert.ErrorIs(t, err, ErrNoRows)

	_, err = f.svc.ExportCustom(ctx, []string{"a"}, nil, "")
	assert.ErrorIs(t, err, ErrNoRows)

	boom := errors.New("boom")
	f.fetcher.err = boom
	_, err = f.svc.ExportProjectIssues(ctx, Options{ProjectKey: "PS"})
	assert.ErrorIs(t, err, boom)

	exists, err := afero.DirExists(f.fs, "exports")
	require.NoError(t, err)
	assert.False(t, exists, "nothing should be written on failure")
}

func TestExportCustomGzip(t *testing.T) {
	f := newFixture(t, converter.DefaultOptions(), WithExtension("csv.gz"))
	rows := []csvdoc.Row{
		{"name": csvdoc.String("widget"), "count": csvdoc.Int(3), "ok": csvdoc.Bool(false)},
	}

	result, err := f.svc.ExportCustom(context.Background(), []string{"name", "count", "ok"}, rows, "")
	require.NoError(t, err)
	assert.Equal(t, "custom_data_2024-01-15T10-30-45.csv.gz", result.Filename)
	assert.Equal(t, KindCustom, result.Kind)

	content, err := afero.ReadFile(f.fs, result.Path)
	require.NoError(t, err)
	require.True(t, bytes.HasPrefix(content, []byte{0x1f, 0x8b}), "expected gzip magic")
}

func TestExportToWriter(t *testing.T) {
	conv, err := converter.New(converter.DefaultOptions())
	require.NoError(t, err)
	var out bytes.Buffer
	mat := exporter.NewMaterializer(clockwork.NewFakeClockAt(testNow), &exporter.WriterSink{W: &out})
	fetcher := &fakeFetcher{users: sampleUsers()[:1]}

	result, err := New(fetcher, conv, mat).ExportUsers(context.Background(), Options{})
	require.NoError(t, err)
	assert.Equal(t, "-", result.Path)
	assert.Equal(t, "Account ID,Display Name,Email Address,Active\na1,Jo,jo@example.com,true\n", out.String())
}

func TestExportRecordsHistory(t *testing.T) {
	ctx := context.Background()
	db, err := database.Open(ctx, "")
	require.NoError(t, err)
	defer db.Close()

	clock := clockwork.NewFakeClockAt(testNow.Add(500 * time.Millisecond))
	f := newFixture(t, converter.DefaultOptions(), WithHistory(db, true), WithClock(clock))
	f.fetcher.users = sampleUsers()

	result, err := f.svc.ExportUsers(ctx, Options{})
	require.NoError(t, err)

	exports, err := db.ListExports(ctx, 10)
	require.NoError(t, err)
	require.Len(t, exports, 1)
	got := exports[0]
	assert.Equal(t, "users", got.Kind)
	assert.Equal(t, result.Filename, got.Filename)
	assert.Equal(t, result.Path, got.Location)
	assert.Equal(t, 2, got.RowCount)
	assert.Equal(t, result.EstimatedSize.Bytes(), got.EstimatedBytes)
	assert.Equal(t, "jira_users_2024_01_15T10_30_45", got.SnapshotTable)
	assert.True(t, got.CreatedAt.Equal(testNow))

	var name string
	err = db.QueryRowContext(ctx, `SELECT Display_Name FROM "`+got.SnapshotTable+`" WHERE Account_ID = 'a2'`).Scan(&name)
	require.NoError(t, err)
	assert.Equal(t, "Lee, Sam", name)
}

func TestPreview(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, converter.DefaultOptions())
	for i := 0; i < 15; i++ {
		f.fetcher.users = append(f.fetcher.users, jira.User{AccountID: "a", DisplayName: "User"})
	}

	preview, err := f.svc.Preview(ctx, KindUsers, Options{})
	require.NoError(t, err)
	assert.Equal(t, PreviewRows, preview.Count)
	assert.Equal(t, converter.UserHeaders, preview.Headers)

	_, err = f.svc.Preview(ctx, KindIssues, Options{})
	assert.ErrorIs(t, err, ErrMissingQuery)

	f.fetcher.issues = []jira.Issue{{Key: "PS-1"}}
	preview, err = f.svc.Preview(ctx, KindIssues, Options{ProjectKey: "PS"})
	require.NoError(t, err)
	assert.Equal(t, PreviewRows, f.fetcher.gotMax)
	assert.Equal(t, 1, preview.Count)

	_, err = f.svc.Preview(ctx, KindCustom, Options{})
	assert.Error(t, err)

	exists, err := afero.DirExists(f.fs, "exports")
	require.NoError(t, err)
	assert.False(t, exists, "preview must not deliver")
}

func TestParseKind(t *testing.T) {
	for _, name := range []string{"issues", "users", "projects"} {
		kind, err := ParseKind(name)
		require.NoError(t, err)
		assert.Equal(t, Kind(name), kind)
	}
	_, err := ParseKind("custom")
	assert.Error(t, err)
}

func TestExportThroughJiraClient(t *testing.T) {
	client := jira.NewClient(config.Jira{
		BaseURL: "https://example.atlassian.net",
		Email:   "jo@example.com",
		APIKey:  "secret",
	}, zaptest.NewLogger(t).Sugar())
	httpmock.ActivateNonDefault(client.HTTPClient())
	t.Cleanup(httpmock.DeactivateAndReset)

	httpmock.RegisterResponder("GET", "https://example.atlassian.net/rest/api/3/users/search",
		httpmock.NewJsonResponderOrPanic(http.StatusOK, []map[string]any{
			{"accountId": "a1", "displayName": "Jo", "emailAddress": "jo@example.com", "active": true},
		}))

	conv, err := converter.New(converter.DefaultOptions())
	require.NoError(t, err)
	fs := afero.NewMemMapFs()
	mat := exporter.NewMaterializer(clockwork.NewFakeClockAt(testNow), exporter.NewFileSink(fs, ""))

	result, err := New(client, conv, mat).ExportUsers(context.Background(), Options{})
	require.NoError(t, err)
	assert.Equal(t, "jira_users_2024-01-15T10-30-45.csv", result.Path)

	content, err := afero.ReadFile(fs, result.Path)
	require.NoError(t, err)
	assert.Equal(t, "Account ID,Display Name,Email Address,Active\na1,Jo,jo@example.com,true", string(content))
}

type recordingProgress struct {
	events []string
}

func (p *recordingProgress) StartFetch(kind Kind) { p.events = append(p.events, "fetch "+string(kind)) }
func (p *recordingProgress) FinishFetch(kind Kind, rows int, _ time.Duration) {
	p.events = append(p.events, fmt.Sprintf("fetched %s %d", kind, rows))
}
func (p *recordingProgress) StartWrite(filename string, rows int) {
	p.events = append(p.events, fmt.Sprintf("write %s %d", filename, rows))
}
func (p *recordingProgress) FinishWrite(_, path string, rows int) {
	p.events = append(p.events, fmt.Sprintf("wrote %s %d", path, rows))
}
func (p *recordingProgress) Error(stage, key string, err error) {
	p.events = append(p.events, fmt.Sprintf("%s %s failed: %v", stage, key, err))
}

func TestExportReportsProgress(t *testing.T) {
	progress := &recordingProgress{}
	f := newFixture(t, converter.DefaultOptions(), WithProgress(progress))
	f.fetcher.users = sampleUsers()

	_, err := f.svc.ExportUsers(context.Background(), Options{})
	require.NoError(t, err)

	assert.Equal(t, []string{
		"fetch users",
		"fetched users 2",
		"write jira_users_2024-01-15T10-30-45.csv 2",
		"wrote " + filepath.Join("exports", "jira_users_2024-01-15T10-30-45.csv") + " 2",
	}, progress.events)

	progress.events = nil
	f.fetcher.err = errors.New("boom")
	_, err = f.svc.ExportProjects(context.Background(), Options{})
	require.Error(t, err)
	assert.Equal(t, []string{"fetch projects", "fetch projects failed: boom"}, progress.events)
}
