// Package cli provides the command-line interface for jiraexport.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"text/tabwriter"

	"github.com/c2h5oh/datasize"
	"github.com/fatih/color"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/jiraexport/jiraexport-go/internal/config"
	"github.com/jiraexport/jiraexport-go/internal/converter"
	"github.com/jiraexport/jiraexport-go/internal/csvdoc"
	"github.com/jiraexport/jiraexport-go/internal/database"
	"github.com/jiraexport/jiraexport-go/internal/exporter"
	"github.com/jiraexport/jiraexport-go/internal/importer"
	"github.com/jiraexport/jiraexport-go/internal/jira"
	"github.com/jiraexport/jiraexport-go/internal/service"
)

var (
	// Colors for output
	successColor = color.New(color.FgGreen, color.Bold)
	infoColor    = color.New(color.FgCyan)
	warnColor    = color.New(color.FgYellow)
)

var rootCmd = &cobra.Command{
	Use:   "jiraexport",
	Short: "Export Jira issues, users and projects to CSV",
	Long: `jiraexport - export Jira Cloud data to CSV files

Fetches issues, users or projects through the Jira REST API and writes them as
RFC 4180 style CSV documents named <prefix>_<timestamp>.csv.

Features:
  • Issues by project key or JQL query
  • ISO, locale or custom date layouts
  • Optional gzip compression
  • Export history in SQLite`,
	Example: `  # Export all issues of a project
  jiraexport issues -p PS

  # Export the result of a JQL query with local dates
  jiraexport jql "assignee = currentUser() AND resolution = Unresolved" --date-format local

  # Print the users export to stdout
  jiraexport users --stdout

  # Record exports and list them later
  jiraexport projects --db history.db
  jiraexport history --db history.db`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

var issuesCmd = &cobra.Command{
	Use:   "issues",
	Short: "Export the issues of a project",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		project, _ := cmd.Flags().GetString("project")
		jql, _ := cmd.Flags().GetString("jql")
		name, _ := cmd.Flags().GetString("name")
		return runWithApp(cmd, true, func(ctx context.Context, a *app) error {
			return a.exportIssues(ctx, project, jql, name)
		})
	},
}

var jqlCmd = &cobra.Command{
	Use:   "jql <query>",
	Short: "Export the issues matching a JQL query",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		name, _ := cmd.Flags().GetString("name")
		return runWithApp(cmd, true, func(ctx context.Context, a *app) error {
			return a.exportJQL(ctx, args[0], name)
		})
	},
}

var usersCmd = &cobra.Command{
	Use:   "users",
	Short: "Export all users",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		name, _ := cmd.Flags().GetString("name")
		return runWithApp(cmd, true, func(ctx context.Context, a *app) error {
			return a.exportUsers(ctx, name)
		})
	},
}

var projectsCmd = &cobra.Command{
	Use:   "projects",
	Short: "Export all projects",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		name, _ := cmd.Flags().GetString("name")
		return runWithApp(cmd, true, func(ctx context.Context, a *app) error {
			return a.exportProjects(ctx, name)
		})
	},
}

var customCmd = &cobra.Command{
	Use:   "custom <file>",
	Short: "Re-export a local CSV/TSV file (.gz and .bz2 supported)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		delimiterStr, _ := cmd.Flags().GetString("delimiter")
		hasHeader, _ := cmd.Flags().GetBool("header")
		name, _ := cmd.Flags().GetString("name")

		delimiter, err := importer.ParseDelimiter(delimiterStr)
		if err != nil {
			return err
		}
		input := importer.Input{FilePath: args[0], Delimiter: delimiter, HasHeader: hasHeader}
		return runWithApp(cmd, false, func(ctx context.Context, a *app) error {
			return a.exportCustom(ctx, input, name)
		})
	},
}

var previewCmd = &cobra.Command{
	Use:       "preview <issues|users|projects>",
	Short:     "Show the first rows of an export without writing a file",
	Args:      cobra.ExactArgs(1),
	ValidArgs: []string{string(service.KindIssues), string(service.KindUsers), string(service.KindProjects)},
	RunE: func(cmd *cobra.Command, args []string) error {
		kind, err := service.ParseKind(args[0])
		if err != nil {
			return err
		}
		project, _ := cmd.Flags().GetString("project")
		jql, _ := cmd.Flags().GetString("jql")
		return runWithApp(cmd, true, func(ctx context.Context, a *app) error {
			return a.preview(ctx, kind, service.Options{ProjectKey: project, JQL: jql})
		})
	},
}

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List recorded exports",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")
		return runWithApp(cmd, false, func(ctx context.Context, a *app) error {
			return a.history(ctx, limit)
		})
	},
}

var pingCmd = &cobra.Command{
	Use:   "ping",
	Short: "Check the Jira connection",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runWithApp(cmd, true, func(ctx context.Context, a *app) error {
			return a.ping(ctx)
		})
	},
}

func init() {
	config.RegisterFlags(rootCmd.PersistentFlags())

	issuesCmd.Flags().StringP("project", "p", "", "Project key, e.g. PS")
	issuesCmd.Flags().String("jql", "", "JQL query, used instead of the project filter when given")
	previewCmd.Flags().StringP("project", "p", "", "Project key for issue previews")
	previewCmd.Flags().String("jql", "", "JQL query for issue previews")
	historyCmd.Flags().Int("limit", 20, "Number of exports to list, 0 for all")
	customCmd.Flags().String("delimiter", "auto", "Input delimiter: 'comma', 'tab', or 'auto' (default: auto)")
	customCmd.Flags().BoolP("header", "H", true, "Input file has header row")

	for _, cmd := range []*cobra.Command{issuesCmd, jqlCmd, usersCmd, projectsCmd, customCmd} {
		cmd.Flags().String("name", "", "Filename prefix (default depends on the export)")
	}

	rootCmd.AddCommand(issuesCmd, jqlCmd, usersCmd, projectsCmd, customCmd, previewCmd, historyCmd, pingCmd)
}

// Execute runs the root command.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	return rootCmd.ExecuteContext(ctx)
}

// runWithApp loads and validates the configuration, then runs fn with a wired app.
func runWithApp(cmd *cobra.Command, needsJira bool, fn func(ctx context.Context, a *app) error) error {
	cfg, err := config.Load(cmd.Flags())
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	if needsJira {
		if err := cfg.Jira.Validate(); err != nil {
			return fmt.Errorf("%w\nset JIRA_BASE_URL, JIRA_EMAIL and JIRA_API_KEY or pass --base-url, --email and --api-key", err)
		}
	}

	ctx := cmd.Context()
	a, err := newApp(ctx, cfg, cmd.OutOrStdout(), afero.NewOsFs(), !cfg.Stdout && isTerminal(os.Stdout))
	if err != nil {
		return err
	}
	defer a.Close()

	return explain(fn(ctx, a))
}

// app holds the components of one command run.
type app struct {
	cfg      *config.Config
	out      io.Writer // Data output
	status   io.Writer // Status lines, stderr when the data goes to stdout
	fs       afero.Fs
	logger   *zap.SugaredLogger
	client   *jira.Client
	svc      *service.Service
	db       *database.DB
	progress *ProgressTracker
}

func newApp(ctx context.Context, cfg *config.Config, out io.Writer, fs afero.Fs, interactive bool) (*app, error) {
	logger, err := newLogger(cfg.Verbose)
	if err != nil {
		return nil, err
	}

	a := &app{
		cfg:    cfg,
		out:    out,
		status: out,
		fs:     fs,
		logger: logger,
		client: jira.NewClient(cfg.Jira, logger),
	}
	if cfg.Stdout {
		a.status = os.Stderr
	}
	a.progress = NewProgressTracker(a.status, interactive)

	conv, err := converter.New(converter.Options{
		IncludeHeaders:   cfg.IncludeHeaders,
		DateFormat:       cfg.DateFormat,
		CustomDateFormat: cfg.CustomDateFormat,
		Fields:           converter.DefaultFields(),
	})
	if err != nil {
		return nil, err
	}

	var sink exporter.Sink = exporter.NewFileSink(fs, cfg.OutputDir)
	if cfg.Stdout {
		sink = &exporter.WriterSink{W: out}
	}

	opts := []service.Option{service.WithLogger(logger), service.WithProgress(a.progress)}
	if cfg.Gzip {
		opts = append(opts, service.WithExtension("csv.gz"))
	}
	if cfg.DBPath != "" {
		if a.db, err = database.Open(ctx, cfg.DBPath); err != nil {
			return nil, err
		}
		opts = append(opts, service.WithHistory(a.db, true))
	}

	a.svc = service.New(a.client, conv, exporter.NewMaterializer(nil, sink), opts...)
	return a, nil
}

// Close stops progress output and releases the history database.
func (a *app) Close() {
	a.progress.Stop()
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			warnColor.Fprintf(os.Stderr, "Warning: %v\n", err)
		}
	}
	_ = a.logger.Sync()
}

func newLogger(verbose bool) (*zap.SugaredLogger, error) {
	level := zapcore.WarnLevel
	if verbose {
		level = zapcore.DebugLevel
	}

	cfg := zap.NewDevelopmentConfig()
	cfg.Level = zap.NewAtomicLevelAt(level)
	cfg.OutputPaths = []string{"stderr"}
	cfg.DisableStacktrace = true
	logger, err := cfg.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}
	return logger.Sugar(), nil
}

func (a *app) exportIssues(ctx context.Context, project, jql, name string) error {
	if project != "" {
		infoColor.Fprintf(a.status, "Exporting issues of project %s\n", project)
	} else {
		infoColor.Fprintf(a.status, "Exporting issues matching %q\n", jql)
	}
	result, err := a.svc.ExportProjectIssues(ctx, service.Options{
		ProjectKey: project,
		JQL:        jql,
		MaxResults: a.cfg.MaxResults,
		Filename:   name,
	})
	return a.report(result, err)
}

func (a *app) exportJQL(ctx context.Context, jql, name string) error {
	infoColor.Fprintf(a.status, "Exporting issues matching %q\n", jql)
	result, err := a.svc.ExportIssuesWithJQL(ctx, jql, service.Options{MaxResults: a.cfg.MaxResults, Filename: name})
	return a.report(result, err)
}

func (a *app) exportUsers(ctx context.Context, name string) error {
	infoColor.Fprintf(a.status, "Exporting users\n")
	result, err := a.svc.ExportUsers(ctx, service.Options{Filename: name})
	return a.report(result, err)
}

func (a *app) exportProjects(ctx context.Context, name string) error {
	infoColor.Fprintf(a.status, "Exporting projects\n")
	result, err := a.svc.ExportProjects(ctx, service.Options{Filename: name})
	return a.report(result, err)
}

func (a *app) exportCustom(ctx context.Context, input importer.Input, name string) error {
	infoColor.Fprintf(a.status, "Reading %s\n", input.FilePath)
	table, err := importer.Read(a.fs, input)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", input.FilePath, err)
	}
	infoColor.Fprintf(a.status, "  Read %d rows\n", len(table.Rows))

	result, err := a.svc.ExportCustom(ctx, table.Headers, table.Rows, name)
	return a.report(result, err)
}

func (a *app) report(result *service.Result, err error) error {
	// Completed bars must be drawn before the summary lines.
	a.progress.Stop()
	if result == nil {
		return err
	}

	if result.Path == "-" {
		successColor.Fprintf(a.status, "✓ Exported %d rows (%s)\n", result.RowCount, result.FileSize)
	} else {
		successColor.Fprintf(a.status, "✓ Exported %d rows to %s\n", result.RowCount, result.Path)
		infoColor.Fprintf(a.status, "  Estimated size: %s\n", result.FileSize)
	}
	if err != nil {
		warnColor.Fprintf(a.status, "Warning: export was not recorded: %v\n", err)
	}
	return nil
}

func (a *app) preview(ctx context.Context, kind service.Kind, opts service.Options) error {
	data, err := a.svc.Preview(ctx, kind, opts)
	if err != nil {
		return err
	}
	if data.Count == 0 {
		warnColor.Fprintf(a.status, "No %s found\n", kind)
		return nil
	}

	infoColor.Fprintf(a.status, "Showing the first %d %s\n", data.Count, kind)
	fmt.Fprintln(a.out, csvdoc.BuildDocumentColumns(data.Headers, data.Rows, a.cfg.IncludeHeaders))
	return nil
}

func (a *app) history(ctx context.Context, limit int) error {
	if a.db == nil {
		return fmt.Errorf("export history is disabled: pass --db or set JIRAEXPORT_DB")
	}

	exports, err := a.db.ListExports(ctx, limit)
	if err != nil {
		return err
	}
	if len(exports) == 0 {
		infoColor.Fprintf(a.status, "No exports recorded in %s\n", a.db.Path)
		return nil
	}

	w := tabwriter.NewWriter(a.out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tCREATED\tKIND\tROWS\tSIZE\tLOCATION")
	for _, e := range exports {
		fmt.Fprintf(w, "%d\t%s\t%s\t%d\t%s\t%s\n",
			e.ID,
			e.CreatedAt.Local().Format("2006-01-02 15:04:05"),
			e.Kind,
			e.RowCount,
			exporter.FormatByteSize(datasize.ByteSize(e.EstimatedBytes)),
			e.Location)
	}
	return w.Flush()
}

func (a *app) ping(ctx context.Context) error {
	info, err := a.client.ServerInfo(ctx)
	if err != nil {
		return err
	}
	successColor.Fprintf(a.status, "✓ Connected to %s\n", a.cfg.Jira.BaseURL)
	if info.ServerTitle != "" || info.Version != "" {
		infoColor.Fprintf(a.status, "  %s %s (%s)\n", info.ServerTitle, info.Version, info.DeploymentType)
	}
	return nil
}

// explain adds hints to errors the user can act on.
func explain(err error) error {
	var apiErr *jira.APIError
	switch {
	case err == nil:
		return nil
	case errors.Is(err, service.ErrNoRows):
		return fmt.Errorf("%w: nothing was written", err)
	case errors.As(err, &apiErr) && (apiErr.StatusCode == http.StatusUnauthorized || apiErr.StatusCode == http.StatusForbidden):
		return fmt.Errorf("%w\ncheck the email and API token", err)
	case errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusBadRequest:
		return fmt.Errorf("%w\ncheck the project key or JQL query", err)
	default:
		return err
	}
}
