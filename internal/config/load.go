package config

import (
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// DefaultEnvFile is read when present; real environment variables take precedence.
const DefaultEnvFile = ".env"

// Flag names shared by the CLI and Load.
const (
	FlagBaseURL          = "base-url"
	FlagEmail            = "email"
	FlagAPIKey           = "api-key"
	FlagTimeout          = "timeout"
	FlagEnvFile          = "env-file"
	FlagOutputDir        = "output-dir"
	FlagStdout           = "stdout"
	FlagGzip             = "gzip"
	FlagDB               = "db"
	FlagNoHeader         = "no-header"
	FlagDateFormat       = "date-format"
	FlagCustomDateFormat = "custom-date-format"
	FlagMaxResults       = "max"
	FlagVerbose          = "verbose"
)

// envNames lists the environment variables of each setting, in priority order.
// The VITE_ names keep .env files of the web frontend usable.
var envNames = map[string][]string{
	FlagBaseURL:          {"JIRA_BASE_URL", "VITE_JIRA_BASE_URL"},
	FlagEmail:            {"JIRA_EMAIL", "VITE_JIRA_EMAIL"},
	FlagAPIKey:           {"JIRA_API_KEY", "VITE_JIRA_API_KEY"},
	FlagTimeout:          {"JIRA_TIMEOUT"},
	FlagOutputDir:        {"JIRAEXPORT_OUTPUT_DIR"},
	FlagDB:               {"JIRAEXPORT_DB"},
	FlagDateFormat:       {"JIRAEXPORT_DATE_FORMAT"},
	FlagCustomDateFormat: {"JIRAEXPORT_CUSTOM_DATE_FORMAT"},
}

// RegisterFlags defines the configuration flags on a flag set.
func RegisterFlags(flags *pflag.FlagSet) {
	flags.String(FlagBaseURL, "", "Jira base URL, e.g. https://example.atlassian.net (env JIRA_BASE_URL)")
	flags.String(FlagEmail, "", "Jira account email (env JIRA_EMAIL)")
	flags.String(FlagAPIKey, "", "Jira API token (env JIRA_API_KEY)")
	flags.Duration(FlagTimeout, 30*time.Second, "HTTP request timeout")
	flags.String(FlagEnvFile, DefaultEnvFile, "Env file to read settings from, if it exists")
	flags.StringP(FlagOutputDir, "o", ".", "Directory for exported files")
	flags.Bool(FlagStdout, false, "Write the CSV document to stdout instead of a file")
	flags.Bool(FlagGzip, false, "Compress exported files with gzip")
	flags.String(FlagDB, "", "SQLite database recording export history (disabled when empty)")
	flags.Bool(FlagNoHeader, false, "Omit the header line")
	flags.String(FlagDateFormat, string(DateFormatISO), "Date format: 'iso', 'local', or 'custom'")
	flags.String(FlagCustomDateFormat, "", "Custom date layout using YYYY, MM, DD, HH, mm, ss tokens")
	flags.Int(FlagMaxResults, DefaultMaxResults, "Maximum number of issues to fetch")
	flags.BoolP(FlagVerbose, "v", false, "Log HTTP requests")
}

// Load builds the configuration from flags, environment variables and the env file.
// Precedence: changed flags, environment, env file, flag defaults.
func Load(flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()

	envFile := DefaultEnvFile
	if f := flags.Lookup(FlagEnvFile); f != nil && f.Value.String() != "" {
		envFile = f.Value.String()
	}
	dotenv, err := readEnvFile(envFile)
	if err != nil {
		return nil, err
	}

	for key, names := range envNames {
		if err := v.BindEnv(append([]string{key}, names...)...); err != nil {
			return nil, fmt.Errorf("failed to bind env for %s: %w", key, err)
		}
		for _, name := range names {
			if value, ok := dotenv[name]; ok {
				v.SetDefault(key, value)
				break
			}
		}
	}

	if err := v.BindPFlags(flags); err != nil {
		return nil, fmt.Errorf("failed to bind flags: %w", err)
	}

	dateFormatName := v.GetString(FlagDateFormat)
	if dateFormatName == "" {
		dateFormatName = string(DateFormatISO)
	}
	dateFormat, err := ParseDateFormat(dateFormatName)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		Jira: Jira{
			BaseURL: v.GetString(FlagBaseURL),
			Email:   v.GetString(FlagEmail),
			APIKey:  v.GetString(FlagAPIKey),
			Timeout: v.GetDuration(FlagTimeout),
		},
		OutputDir:        v.GetString(FlagOutputDir),
		Stdout:           v.GetBool(FlagStdout),
		Gzip:             v.GetBool(FlagGzip),
		DBPath:           v.GetString(FlagDB),
		IncludeHeaders:   !v.GetBool(FlagNoHeader),
		DateFormat:       dateFormat,
		CustomDateFormat: v.GetString(FlagCustomDateFormat),
		MaxResults:       v.GetInt(FlagMaxResults),
		Verbose:          v.GetBool(FlagVerbose),
	}
	if cfg.MaxResults == 0 {
		cfg.MaxResults = DefaultMaxResults
	}

	return cfg, nil
}

// readEnvFile reads KEY=VALUE pairs; a missing file yields no values.
func readEnvFile(path string) (map[string]string, error) {
	values, err := godotenv.Read(path)
	if errors.Is(err, fs.ErrNotExist) {
		return map[string]string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("cannot read env file %q: %w", path, err)
	}
	return values, nil
}
