package jira

import (
	"encoding/json"
	"strings"

	"github.com/valyala/fastjson"
)

// User is a Jira account.
type User struct {
	AccountID    string `json:"accountId"`
	DisplayName  string `json:"displayName"`
	EmailAddress string `json:"emailAddress"`
	Active       bool   `json:"active"`
}

// Project is a Jira project.
type Project struct {
	ID             string      `json:"id"`
	Key            string      `json:"key"`
	Name           string      `json:"name"`
	ProjectTypeKey string      `json:"projectTypeKey"`
	Lead           User        `json:"lead"`
	IssueTypes     []IssueType `json:"issueTypes,omitempty"`
}

// IssueType describes a kind of issue.
type IssueType struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	IconURL     string `json:"iconUrl"`
	Subtask     bool   `json:"subtask"`
}

// Named is any Jira object identified by its name (status, priority, component, version).
type Named struct {
	ID   string `json:"id,omitempty"`
	Name string `json:"name"`
}

// Status of an issue.
type Status struct {
	Name           string `json:"name"`
	StatusCategory Named  `json:"statusCategory"`
}

// Issue is a single Jira issue.
type Issue struct {
	ID     string      `json:"id"`
	Key    string      `json:"key"`
	Fields IssueFields `json:"fields"`
}

// IssueFields holds the fields of an issue that the exporter understands.
// Fields named "customfield_*" are kept raw in Custom.
type IssueFields struct {
	Summary     string          `json:"summary"`
	Description json.RawMessage `json:"description,omitempty"`
	IssueType   IssueType       `json:"issuetype"`
	Project     Project         `json:"project"`
	Assignee    *User           `json:"assignee,omitempty"`
	Reporter    *User           `json:"reporter,omitempty"`
	Status      Status          `json:"status"`
	Priority    *Named          `json:"priority,omitempty"`
	Created     string          `json:"created"`
	Updated     string          `json:"updated"`
	Labels      []string        `json:"labels,omitempty"`
	Components  []Named         `json:"components,omitempty"`
	FixVersions []Named         `json:"fixVersions,omitempty"`

	Custom map[string]json.RawMessage `json:"-"`
}

const customFieldPrefix = "customfield_"

// StoryPointsField is the custom field Jira Cloud uses for story points.
const StoryPointsField = "customfield_10016"

// UnmarshalJSON decodes the known fields and collects custom fields.
func (f *IssueFields) UnmarshalJSON(data []byte) error {
	type plain IssueFields
	if err := json.Unmarshal(data, (*plain)(f)); err != nil {
		return err
	}

	var all map[string]json.RawMessage
	if err := json.Unmarshal(data, &all); err != nil {
		return err
	}
	for key, value := range all {
		if !strings.HasPrefix(key, customFieldPrefix) || string(value) == "null" {
			continue
		}
		if f.Custom == nil {
			f.Custom = make(map[string]json.RawMessage)
		}
		f.Custom[key] = value
	}
	return nil
}

// CustomNumber returns a numeric custom field, if present.
func (f *IssueFields) CustomNumber(key string) (float64, bool) {
	raw, ok := f.Custom[key]
	if !ok {
		return 0, false
	}
	v, err := fastjson.ParseBytes(raw)
	if err != nil || v.Type() != fastjson.TypeNumber {
		return 0, false
	}
	return v.GetFloat64(), true
}

// DescriptionText flattens the description to plain text.
// Jira v2 returns a string, v3 returns an Atlassian Document Format tree.
func (f *IssueFields) DescriptionText() string {
	if len(f.Description) == 0 {
		return ""
	}
	v, err := fastjson.ParseBytes(f.Description)
	if err != nil {
		return ""
	}

	switch v.Type() {
	case fastjson.TypeString:
		return string(v.GetStringBytes())
	case fastjson.TypeObject:
		var blocks []string
		for _, block := range v.GetArray("content") {
			blocks = append(blocks, adfText(block))
		}
		return strings.Join(blocks, "\n")
	default:
		return ""
	}
}

// adfText concatenates the text nodes below an ADF node.
func adfText(node *fastjson.Value) string {
	switch string(node.GetStringBytes("type")) {
	case "text":
		return string(node.GetStringBytes("text"))
	case "hardBreak":
		return "\n"
	}

	var sb strings.Builder
	children := node.GetArray("content")
	for i, child := range children {
		sb.WriteString(adfText(child))
		if isADFBlock(child) && i < len(children)-1 {
			sb.WriteString("\n")
		}
	}
	return sb.String()
}

func isADFBlock(node *fastjson.Value) bool {
	switch string(node.GetStringBytes("type")) {
	case "paragraph", "heading", "listItem", "bulletList", "orderedList", "codeBlock", "blockquote":
		return true
	}
	return false
}

// ServerInfo describes the Jira instance.
type ServerInfo struct {
	BaseURL        string `json:"baseUrl"`
	Version        string `json:"version"`
	DeploymentType string `json:"deploymentType"`
	ServerTitle    string `json:"serverTitle"`
}

type searchResponse struct {
	Issues     []Issue `json:"issues"`
	Total      int     `json:"total"`
	MaxResults int     `json:"maxResults"`
}
