// Package config provides configuration types and parsing for jiraexport.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

// DateFormat selects how date columns are rendered.
type DateFormat string

const (
	DateFormatISO    DateFormat = "iso"
	DateFormatLocal  DateFormat = "local"
	DateFormatCustom DateFormat = "custom"
)

// DefaultMaxResults is the page size requested for issue exports.
const DefaultMaxResults = 1000

// Jira holds the connection settings of the Jira instance.
type Jira struct {
	BaseURL string        `validate:"required,url"`
	Email   string        `validate:"required,email"`
	APIKey  string        `validate:"required"`
	Timeout time.Duration `validate:"gte=0"`
}

// Config holds all configuration options for jiraexport.
type Config struct {
	Jira             Jira
	OutputDir        string
	Stdout           bool // Write the document to stdout instead of a file
	Gzip             bool
	DBPath           string // Export history database, disabled when empty
	IncludeHeaders   bool
	DateFormat       DateFormat `validate:"oneof=iso local custom"`
	CustomDateFormat string     `validate:"required_if=DateFormat custom"`
	MaxResults       int        `validate:"gte=1"`
	Verbose          bool
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// ParseDateFormat converts a date format name.
// Valid values: "iso", "local", "custom".
func ParseDateFormat(s string) (DateFormat, error) {
	switch DateFormat(strings.ToLower(strings.TrimSpace(s))) {
	case DateFormatISO:
		return DateFormatISO, nil
	case DateFormatLocal:
		return DateFormatLocal, nil
	case DateFormatCustom:
		return DateFormatCustom, nil
	default:
		return "", fmt.Errorf("invalid date format: %s (use 'iso', 'local', or 'custom')", s)
	}
}

// IsConfigured reports whether base URL, email and API key are all set.
func (j Jira) IsConfigured() bool {
	return j.BaseURL != "" && j.Email != "" && j.APIKey != ""
}

// Validate checks the Jira connection settings.
func (j Jira) Validate() error {
	if err := validate.Struct(j); err != nil {
		return fmt.Errorf("invalid jira configuration: %w", describe(err))
	}
	return nil
}

// Validate checks the export settings. Jira settings are checked separately
// because not every command talks to Jira.
func (c *Config) Validate() error {
	if err := validate.StructExcept(c, "Jira"); err != nil {
		return fmt.Errorf("invalid configuration: %w", describe(err))
	}
	if c.Stdout && c.Gzip {
		return fmt.Errorf("--gzip cannot be combined with --stdout")
	}
	return nil
}

// describe turns validator errors into a readable message.
func describe(err error) error {
	errs, ok := err.(validator.ValidationErrors)
	if !ok {
		return err
	}
	msgs := make([]string, 0, len(errs))
	for _, e := range errs {
		if e.Param() != "" {
			msgs = append(msgs, fmt.Sprintf("%s must satisfy %s=%s", e.Field(), e.Tag(), e.Param()))
		} else {
			msgs = append(msgs, fmt.Sprintf("%s must satisfy %s", e.Field(), e.Tag()))
		}
	}
	return fmt.Errorf("%s", strings.Join(msgs, "; "))
}
