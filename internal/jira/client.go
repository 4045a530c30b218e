// Package jira is a small client for the Jira Cloud REST API v3.
package jira

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	resty "github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"github.com/jiraexport/jiraexport-go/internal/config"
)

const (
	apiPath           = "/rest/api/3"
	DefaultTimeout    = 30 * time.Second
	DefaultMaxResults = 50
)

// ErrNotConfigured is returned when base URL, email or API key is missing.
var ErrNotConfigured = errors.New("jira api is not properly configured")

// APIError is a non-2xx response of the Jira API.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("jira api error: %d - %s", e.StatusCode, e.Body)
}

// Client calls the Jira REST API with basic authentication.
type Client struct {
	cfg    config.Jira
	http   *resty.Client
	logger *zap.SugaredLogger
}

// NewClient creates a client for the configured Jira instance.
func NewClient(cfg config.Jira, logger *zap.SugaredLogger) *Client {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	c := &Client{cfg: cfg, logger: logger}
	c.http = resty.New().
		SetBaseURL(strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")+apiPath).
		SetBasicAuth(cfg.Email, cfg.APIKey).
		SetHeader("Accept", "application/json").
		SetHeader("Content-Type", "application/json").
		SetTimeout(timeout)

	c.http.OnAfterResponse(func(_ *resty.Client, res *resty.Response) error {
		c.logger.Debugf("%s %s | %d | %s", res.Request.Method, res.Request.URL, res.StatusCode(), res.Time())
		return nil
	})
	c.http.OnError(func(req *resty.Request, err error) {
		c.logger.Warnf("%s %s | %s", req.Method, req.URL, err)
	})

	return c
}

// HTTPClient exposes the underlying http.Client, e.g. for transport mocks.
func (c *Client) HTTPClient() *http.Client {
	return c.http.GetClient()
}

// IsConfigured reports whether base URL, email and API key are all set.
func (c *Client) IsConfigured() bool {
	return c.cfg.IsConfigured()
}

// GetUsers returns the users visible to the authenticated account.
func (c *Client) GetUsers(ctx context.Context) ([]User, error) {
	var users []User
	if err := c.get(ctx, "/users/search", nil, &users); err != nil {
		return nil, fmt.Errorf("failed to fetch users: %w", err)
	}
	return users, nil
}

// GetUser returns a single user by account ID.
func (c *Client) GetUser(ctx context.Context, accountID string) (*User, error) {
	var user User
	params := url.Values{"accountId": {accountID}}
	if err := c.get(ctx, "/user", params, &user); err != nil {
		return nil, fmt.Errorf("failed to fetch user %s: %w", accountID, err)
	}
	return &user, nil
}

// GetProjects returns all accessible projects, with their leads.
func (c *Client) GetProjects(ctx context.Context) ([]Project, error) {
	var projects []Project
	params := url.Values{"expand": {"lead"}}
	if err := c.get(ctx, "/project", params, &projects); err != nil {
		return nil, fmt.Errorf("failed to fetch projects: %w", err)
	}
	return projects, nil
}

// GetProject returns a single project, including its issue types.
func (c *Client) GetProject(ctx context.Context, projectKey string) (*Project, error) {
	var project Project
	if err := c.get(ctx, "/project/"+url.PathEscape(projectKey), nil, &project); err != nil {
		return nil, fmt.Errorf("failed to fetch project %s: %w", projectKey, err)
	}
	return &project, nil
}

// GetIssueTypes returns the issue types available in a project.
func (c *Client) GetIssueTypes(ctx context.Context, projectKey string) ([]IssueType, error) {
	project, err := c.GetProject(ctx, projectKey)
	if err != nil {
		return nil, err
	}
	return project.IssueTypes, nil
}

// SearchIssues runs a JQL query and returns a single page of results.
func (c *Client) SearchIssues(ctx context.Context, jql string, maxResults int) ([]Issue, error) {
	if maxResults <= 0 {
		maxResults = DefaultMaxResults
	}
	params := url.Values{
		"jql":        {jql},
		"maxResults": {strconv.Itoa(maxResults)},
	}

	var res searchResponse
	if err := c.get(ctx, "/search", params, &res); err != nil {
		return nil, fmt.Errorf("failed to search issues: %w", err)
	}
	return res.Issues, nil
}

// GetIssues returns the issues of a project, narrowed by jql when given.
func (c *Client) GetIssues(ctx context.Context, projectKey, jql string, maxResults int) ([]Issue, error) {
	if jql == "" {
		if projectKey == "" {
			return nil, errors.New("project key or jql is required")
		}
		jql = "project = " + projectKey
	}
	return c.SearchIssues(ctx, jql, maxResults)
}

// GetIssue returns a single issue by key.
func (c *Client) GetIssue(ctx context.Context, issueKey string) (*Issue, error) {
	var issue Issue
	if err := c.get(ctx, "/issue/"+url.PathEscape(issueKey), nil, &issue); err != nil {
		return nil, fmt.Errorf("failed to fetch issue %s: %w", issueKey, err)
	}
	return &issue, nil
}

// ServerInfo returns information about the Jira instance.
func (c *Client) ServerInfo(ctx context.Context) (*ServerInfo, error) {
	var info ServerInfo
	if err := c.get(ctx, "/serverInfo", nil, &info); err != nil {
		return nil, fmt.Errorf("failed to fetch server info: %w", err)
	}
	return &info, nil
}

// TestConnection checks that the API is reachable with the configured credentials.
func (c *Client) TestConnection(ctx context.Context) error {
	_, err := c.ServerInfo(ctx)
	return err
}

func (c *Client) get(ctx context.Context, endpoint string, params url.Values, result any) error {
	if !c.IsConfigured() {
		return ErrNotConfigured
	}

	req := c.http.R().SetContext(ctx).SetResult(result)
	if params != nil {
		req.SetQueryParamsFromValues(params)
	}

	res, err := req.Get(endpoint)
	if err != nil {
		return err
	}
	if res.IsError() {
		return &APIError{StatusCode: res.StatusCode(), Body: strings.TrimSpace(res.String())}
	}
	return nil
}
