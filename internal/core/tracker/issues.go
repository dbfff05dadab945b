package tracker

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"go.uber.org/zap"

	"github.com/threadline/threadline/internal/core"
)

// LoadIssueByNumber fetches an issue by its project-scoped number.
func (c *Client) LoadIssueByNumber(ctx context.Context, iid int64) (*core.Issue, error) {
	req := request{method: http.MethodGet, path: fmt.Sprintf("projects/%d/issues/%d", c.projectID, iid)}
	resp, err := c.do(ctx, req)
	if err != nil {
		return nil, err
	}
	if err := expectOK(resp, req, "error fetching issue via issue number"); err != nil {
		return nil, err
	}

	var issue core.Issue
	if err := decodeJSON(resp, req, &issue); err != nil {
		return nil, err
	}
	return &issue, nil
}

// LoadIssueByTerm searches the project's issues for term, oldest first. It
// returns nil when nothing matches. When several issues match, the first whose
// title contains term (case-insensitively) wins, else the oldest.
func (c *Client) LoadIssueByTerm(ctx context.Context, term string) (*core.Issue, error) {
	query := url.Values{}
	query.Set("search", term)
	query.Set("order_by", "created_at")
	query.Set("sort", "asc")

	req := request{method: http.MethodGet, path: fmt.Sprintf("projects/%d/issues?%s", c.projectID, query.Encode())}
	resp, err := c.do(ctx, req)
	if err != nil {
		return nil, err
	}
	if err := expectOK(resp, req, "error fetching issue via search"); err != nil {
		return nil, err
	}

	var results []core.Issue
	if err := decodeJSON(resp, req, &results); err != nil {
		return nil, err
	}

	if len(results) == 0 {
		return nil, nil
	}
	if len(results) > 1 && c.logger != nil {
		c.logger.Warn(fmt.Sprintf("Multiple issues match %q.", term), zap.Int("matches", len(results)))
	}

	needle := strings.ToLower(term)
	for i := range results {
		if strings.Contains(strings.ToLower(results[i].Title), needle) {
			return &results[i], nil
		}
	}

	if c.logger != nil {
		c.logger.Warn(fmt.Sprintf("Issue search results do not contain an issue with title matching %q. Using first result.", needle))
	}
	return &results[0], nil
}

// LoadUser returns the signed-in user, or nil when there is no token or the
// tracker does not accept it.
func (c *Client) LoadUser(ctx context.Context) (*core.User, error) {
	if c.Token() == "" {
		return nil, nil
	}

	req := request{method: http.MethodGet, path: "user"}
	resp, err := c.do(ctx, req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		drain(resp)
		return nil, nil
	}

	var user core.User
	if err := decodeJSON(resp, req, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

// PostComment adds a markdown note to an issue.
func (c *Client) PostComment(ctx context.Context, iid int64, markdown string) (*core.IssueComment, error) {
	req, err := jsonRequest(http.MethodPost, fmt.Sprintf("projects/%d/issues/%d/notes", c.projectID, iid), map[string]string{"body": markdown})
	if err != nil {
		return nil, err
	}

	resp, err := c.do(ctx, req)
	if err != nil {
		return nil, err
	}
	if err := expectOK(resp, req, "error posting comment"); err != nil {
		return nil, err
	}

	var comment core.IssueComment
	if err := decodeJSON(resp, req, &comment); err != nil {
		return nil, err
	}
	return &comment, nil
}

// NewIssue describes an issue to create for a document.
type NewIssue struct {
	DocumentURL string
	Title       string
	Description string
	Label       string
}

// CreateIssue opens the issue backing a document through the relay, which
// holds the credential allowed to create issues.
func (c *Client) CreateIssue(ctx context.Context, issue NewIssue) (*core.Issue, error) {
	if c.relayURL == "" {
		return nil, errors.New("tracker: relay URL is required to create issues")
	}

	labels := []string{}
	if issue.Label != "" {
		labels = append(labels, issue.Label)
	}
	description := fmt.Sprintf("# %s\n\n%s\n\n[%s](%s)", issue.Title, issue.Description, issue.DocumentURL, issue.DocumentURL)

	req, err := jsonRequest(http.MethodPost, fmt.Sprintf("%s/projects/%d/issues", c.relayURL, c.projectID), map[string]any{
		"title":       issue.Title,
		"description": description,
		"labels":      labels,
	})
	if err != nil {
		return nil, err
	}

	httpReq, err := c.build(ctx, req, withAuth)
	if err != nil {
		return nil, err
	}
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, &RequestError{Method: req.method, Path: req.path, Err: err}
	}
	if err := expectOK(resp, req, "error creating issue"); err != nil {
		return nil, err
	}

	var created core.Issue
	if err := decodeJSON(resp, req, &created); err != nil {
		return nil, err
	}
	return &created, nil
}

// RenderMarkdown renders text with the tracker's GitLab-flavoured markdown
// endpoint and returns the HTML.
func (c *Client) RenderMarkdown(ctx context.Context, text string) (string, error) {
	req, err := jsonRequest(http.MethodPost, "markdown", map[string]any{"text": text, "gfm": true})
	if err != nil {
		return "", err
	}

	resp, err := c.do(ctx, req)
	if err != nil {
		return "", err
	}
	if err := expectOK(resp, req, "error rendering markdown"); err != nil {
		return "", err
	}
	defer resp.Body.Close() // nolint:errcheck // best-effort cleanup on HTTP response body

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", &RequestError{Method: req.method, Path: req.path, StatusCode: resp.StatusCode, Err: err}
	}

	var rendered struct {
		HTML string `json:"html"`
	}
	if json.Unmarshal(data, &rendered) == nil && rendered.HTML != "" {
		return rendered.HTML, nil
	}
	return string(bytes.TrimSpace(data)), nil
}
