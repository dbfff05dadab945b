package relay

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

	"github.com/threadline/threadline/internal/metrics"
)

// privateTokenHeader carries the service credential to the tracker.
const privateTokenHeader = "PRIVATE-TOKEN"

// maxAvatarBytes bounds the proxied image size.
const maxAvatarBytes = 5 << 20

// IssueRequest is the body accepted by the issue-creation proxy.
type IssueRequest struct {
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Labels      []string `json:"labels"`
}

// IssueResponse mirrors the tracker's successful answer to an issue creation.
type IssueResponse struct {
	StatusCode int
	Body       json.RawMessage
}

// Avatar resolves the avatar of username through the tracker's avatar lookup
// and returns the image bytes.
func (r *Relay) Avatar(ctx context.Context, username string) ([]byte, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return nil, fmt.Errorf("%w: username", ErrMissingParameter)
	}
	if r.apiURL == "" {
		return nil, &UpstreamError{Op: "avatar lookup", Err: errors.New("tracker api url not configured")}
	}

	email := username
	if r.emailDomain != "" && !strings.Contains(username, "@") {
		email = username + "@" + r.emailDomain
	}
	lookup := r.apiURL + "/avatar?" + url.Values{"email": {email}}.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, lookup, nil)
	if err != nil {
		return nil, fmt.Errorf("build avatar lookup: %w", err)
	}
	req.Header.Set(privateTokenHeader, r.serviceToken)
	req.Header.Set("Accept", "application/json")

	data, status, err := r.send(req, 1<<20)
	if err != nil {
		return nil, r.upstream("avatar", "avatar lookup", status, data, err)
	}
	if status != http.StatusOK {
		return nil, r.upstream("avatar", "avatar lookup", status, data, nil)
	}

	var found struct {
		AvatarURL string `json:"avatar_url"`
	}
	if err := json.Unmarshal(data, &found); err != nil || found.AvatarURL == "" {
		return nil, r.upstream("avatar", "avatar lookup", status, data, errors.New("response has no avatar_url"))
	}

	imgReq, err := http.NewRequestWithContext(ctx, http.MethodGet, found.AvatarURL, nil)
	if err != nil {
		return nil, r.upstream("avatar", "avatar fetch", 0, nil, err)
	}
	image, status, err := r.send(imgReq, maxAvatarBytes)
	if err != nil {
		return nil, r.upstream("avatar", "avatar fetch", status, nil, err)
	}
	if status != http.StatusOK {
		return nil, r.upstream("avatar", "avatar fetch", status, nil, nil)
	}
	metrics.RecordProxyRequest("avatar", metrics.OutcomeSuccess)
	return image, nil
}

// CreateIssue forwards issue to the tracker with the service credential and
// mirrors a 2xx JSON answer. Any other answer, or a transport failure, yields
// an *UpstreamError whose body is only logged.
func (r *Relay) CreateIssue(ctx context.Context, projectID string, issue IssueRequest) (*IssueResponse, error) {
	if strings.TrimSpace(issue.Title) == "" || strings.TrimSpace(issue.Description) == "" {
		return nil, fmt.Errorf("%w: title and description are required", ErrMissingParameter)
	}
	if strings.TrimSpace(projectID) == "" {
		return nil, fmt.Errorf("%w: project id", ErrMissingParameter)
	}
	if r.apiURL == "" {
		return nil, &UpstreamError{Op: "create issue", Err: errors.New("tracker api url not configured")}
	}

	body, err := json.Marshal(issue)
	if err != nil {
		return nil, fmt.Errorf("encode issue: %w", err)
	}

	endpoint := fmt.Sprintf("%s/projects/%s/issues", r.apiURL, url.PathEscape(projectID))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build issue request: %w", err)
	}
	req.Header.Set(privateTokenHeader, r.serviceToken)
	req.Header.Set("Content-Type", "application/json")

	data, status, err := r.send(req, 1<<20)
	if err != nil {
		return nil, r.upstream("issues", "create issue", status, data, err)
	}
	if status < 200 || status >= 300 {
		return nil, r.upstream("issues", "create issue", status, data, nil)
	}
	if !json.Valid(data) {
		return nil, r.upstream("issues", "create issue", status, data, errors.New("response is not JSON"))
	}
	metrics.RecordProxyRequest("issues", metrics.OutcomeSuccess)
	return &IssueResponse{StatusCode: status, Body: json.RawMessage(data)}, nil
}

func (r *Relay) send(req *http.Request, limit int64) ([]byte, int, error) {
	resp, err := r.httpClient.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close() // nolint:errcheck // best-effort cleanup on HTTP response body

	data, err := io.ReadAll(io.LimitReader(resp.Body, limit))
	if err != nil {
		return nil, resp.StatusCode, err
	}
	return data, resp.StatusCode, nil
}

// upstream logs and counts a failed proxy call. A tracker answer with an error
// status counts as rejected, anything else as a failure.
func (r *Relay) upstream(route, op string, status int, body []byte, err error) *UpstreamError {
	upstream := &UpstreamError{Op: op, StatusCode: status, Body: string(body), Err: err}
	r.logUpstream(upstream)
	outcome := metrics.OutcomeFailure
	if err == nil && status != 0 {
		outcome = metrics.OutcomeRejected
	}
	metrics.RecordProxyRequest(route, outcome)
	return upstream
}
