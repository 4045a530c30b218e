// Package converter turns Jira payloads into CSV rows.
package converter

import (
	"fmt"
	"strings"
	"time"

	"github.com/jiraexport/jiraexport-go/internal/config"
	"github.com/jiraexport/jiraexport-go/internal/csvdoc"
	"github.com/jiraexport/jiraexport-go/internal/jira"
)

// FieldType controls how a field value is rendered.
type FieldType string

const (
	TypeString  FieldType = "string"
	TypeNumber  FieldType = "number"
	TypeBoolean FieldType = "boolean"
	TypeDate    FieldType = "date"
	TypeArray   FieldType = "array"
)

// Field is one exported issue column.
type Field struct {
	Key      string
	Label    string
	Required bool
	Type     FieldType
}

// Options configures the conversion.
type Options struct {
	IncludeHeaders   bool
	DateFormat       config.DateFormat
	CustomDateFormat string
	Fields           []Field
	Location         *time.Location // Used by local and custom date formats, defaults to time.Local
}

// UserHeaders are the columns of a user export.
var UserHeaders = []string{"Account ID", "Display Name", "Email Address", "Active"}

// ProjectHeaders are the columns of a project export.
var ProjectHeaders = []string{"ID", "Key", "Name", "Project Type", "Lead", "Lead Email"}

// DefaultFields returns the issue columns exported when no fields are configured.
func DefaultFields() []Field {
	return []Field{
		{Key: "key", Label: "Issue Key", Required: true, Type: TypeString},
		{Key: "summary", Label: "Summary", Required: true, Type: TypeString},
		{Key: "description", Label: "Description", Type: TypeString},
		{Key: "issueType", Label: "Issue Type", Required: true, Type: TypeString},
		{Key: "status", Label: "Status", Required: true, Type: TypeString},
		{Key: "priority", Label: "Priority", Type: TypeString},
		{Key: "assignee", Label: "Assignee", Type: TypeString},
		{Key: "reporter", Label: "Reporter", Required: true, Type: TypeString},
		{Key: "project", Label: "Project", Required: true, Type: TypeString},
		{Key: "projectKey", Label: "Project Key", Required: true, Type: TypeString},
		{Key: "created", Label: "Created", Required: true, Type: TypeDate},
		{Key: "updated", Label: "Updated", Required: true, Type: TypeDate},
		{Key: "storyPoints", Label: "Story Points", Type: TypeNumber},
		{Key: "labels", Label: "Labels", Type: TypeArray},
		{Key: "components", Label: "Components", Type: TypeArray},
		{Key: "fixVersions", Label: "Fix Versions", Type: TypeArray},
	}
}

// DefaultOptions returns headers on, ISO dates and the default fields.
func DefaultOptions() Options {
	return Options{
		IncludeHeaders: true,
		DateFormat:     config.DateFormatISO,
		Fields:         DefaultFields(),
	}
}

// Converter maps Jira records to label-keyed rows.
type Converter struct {
	opts  Options
	dates *dateFormatter
}

// New creates a converter. Empty fields fall back to DefaultFields.
func New(opts Options) (*Converter, error) {
	if len(opts.Fields) == 0 {
		opts.Fields = DefaultFields()
	}
	if opts.DateFormat == "" {
		opts.DateFormat = config.DateFormatISO
	}
	for _, f := range opts.Fields {
		if _, ok := issueValues[f.Key]; !ok {
			return nil, fmt.Errorf("unknown issue field %q", f.Key)
		}
	}

	dates, err := newDateFormatter(opts.DateFormat, opts.CustomDateFormat, opts.Location)
	if err != nil {
		return nil, fmt.Errorf("invalid custom date format %q: %w", opts.CustomDateFormat, err)
	}
	return &Converter{opts: opts, dates: dates}, nil
}

// Options returns a copy of the current options.
func (c *Converter) Options() Options {
	opts := c.opts
	opts.Fields = append([]Field(nil), c.opts.Fields...)
	return opts
}

// Headers returns the labels of the configured issue fields.
func (c *Converter) Headers() []string {
	headers := make([]string, len(c.opts.Fields))
	for i, f := range c.opts.Fields {
		headers[i] = f.Label
	}
	return headers
}

// issueValue extracts the raw value of a field from an issue.
type issueValue func(issue *jira.Issue) any

var issueValues = map[string]issueValue{
	"key":         func(i *jira.Issue) any { return i.Key },
	"summary":     func(i *jira.Issue) any { return i.Fields.Summary },
	"description": func(i *jira.Issue) any { return i.Fields.DescriptionText() },
	"issueType":   func(i *jira.Issue) any { return i.Fields.IssueType.Name },
	"status":      func(i *jira.Issue) any { return i.Fields.Status.Name },
	"priority": func(i *jira.Issue) any {
		if i.Fields.Priority == nil {
			return ""
		}
		return i.Fields.Priority.Name
	},
	"assignee":   func(i *jira.Issue) any { return displayName(i.Fields.Assignee) },
	"reporter":   func(i *jira.Issue) any { return displayName(i.Fields.Reporter) },
	"project":    func(i *jira.Issue) any { return i.Fields.Project.Name },
	"projectKey": func(i *jira.Issue) any { return i.Fields.Project.Key },
	"created":    func(i *jira.Issue) any { return i.Fields.Created },
	"updated":    func(i *jira.Issue) any { return i.Fields.Updated },
	"storyPoints": func(i *jira.Issue) any {
		if points, ok := i.Fields.CustomNumber(jira.StoryPointsField); ok {
			return points
		}
		return nil
	},
	"labels":      func(i *jira.Issue) any { return i.Fields.Labels },
	"components":  func(i *jira.Issue) any { return names(i.Fields.Components) },
	"fixVersions": func(i *jira.Issue) any { return names(i.Fields.FixVersions) },
}

// ConvertIssues converts issues into rows keyed by field label.
func (c *Converter) ConvertIssues(issues []jira.Issue) []csvdoc.Row {
	rows := make([]csvdoc.Row, 0, len(issues))
	for i := range issues {
		row := make(csvdoc.Row, len(c.opts.Fields))
		for _, f := range c.opts.Fields {
			row[f.Label] = c.formatValue(issueValues[f.Key](&issues[i]), f.Type)
		}
		rows = append(rows, row)
	}
	return rows
}

// ConvertUsers converts users into rows keyed by UserHeaders.
func (c *Converter) ConvertUsers(users []jira.User) []csvdoc.Row {
	rows := make([]csvdoc.Row, 0, len(users))
	for _, u := range users {
		rows = append(rows, csvdoc.Row{
			"Account ID":    csvdoc.String(u.AccountID),
			"Display Name":  csvdoc.String(u.DisplayName),
			"Email Address": csvdoc.String(u.EmailAddress),
			"Active":        csvdoc.Bool(u.Active),
		})
	}
	return rows
}

// ConvertProjects converts projects into rows keyed by ProjectHeaders.
func (c *Converter) ConvertProjects(projects []jira.Project) []csvdoc.Row {
	rows := make([]csvdoc.Row, 0, len(projects))
	for _, p := range projects {
		rows = append(rows, csvdoc.Row{
			"ID":           csvdoc.String(p.ID),
			"Key":          csvdoc.String(p.Key),
			"Name":         csvdoc.String(p.Name),
			"Project Type": csvdoc.String(p.ProjectTypeKey),
			"Lead":         csvdoc.String(p.Lead.DisplayName),
			"Lead Email":   csvdoc.String(p.Lead.EmailAddress),
		})
	}
	return rows
}

func (c *Converter) formatValue(value any, typ FieldType) csvdoc.Value {
	switch typ {
	case TypeNumber:
		switch v := value.(type) {
		case float64:
			return csvdoc.Float(v)
		case int:
			return csvdoc.Int(int64(v))
		default:
			return csvdoc.String("")
		}
	case TypeBoolean:
		b, _ := value.(bool)
		return csvdoc.Bool(b)
	case TypeDate:
		s, _ := value.(string)
		return csvdoc.String(c.dates.Format(s))
	case TypeArray:
		items, _ := value.([]string)
		return csvdoc.String(strings.Join(items, ", "))
	default:
		if value == nil {
			return csvdoc.String("")
		}
		return csvdoc.String(fmt.Sprint(value))
	}
}

func displayName(u *jira.User) string {
	if u == nil {
		return ""
	}
	return u.DisplayName
}

func names(items []jira.Named) []string {
	out := make([]string, len(items))
	for i, item := range items {
		out[i] = item.Name
	}
	return out
}
