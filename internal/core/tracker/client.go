// Package tracker is the issue-tracker API layer used by the widget: it holds
// the user's bearer token, falls back to anonymous reads when the token is
// rejected, tracks rate-limit headers and reports a revoked integration.
package tracker

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/fulmenhq/gofulmen/logging"
	"go.uber.org/zap"

	"github.com/threadline/threadline/internal/core"
)

// notInstalledMessage is the 403 body message the tracker sends once the
// integration has been removed from a project.
const notInstalledMessage = "Resource not accessible by integration"

var searchPath = regexp.MustCompile(`/search/`)

// Config configures a Client.
type Config struct {
	// BaseURL is the tracker API root, e.g. https://gitlab.example.com/api/v4.
	BaseURL string
	// RelayURL is the root of the OAuth relay serving /token and the
	// issue-creation proxy.
	RelayURL   string
	ProjectID  int64
	Token      string
	HTTPClient *http.Client
	Clock      func() time.Time
	Logger     *logging.Logger
}

// Client talks to the tracker on behalf of one widget session.
type Client struct {
	baseURL    string
	relayURL   string
	projectID  int64 // immutable after NewClient
	httpClient *http.Client
	clock      func() time.Time
	logger     *logging.Logger

	mu    sync.Mutex
	token string

	rateLimits *RateLimitTracker
	revoked    chan struct{}
}

// NewClient returns a Client for cfg.
func NewClient(cfg Config) (*Client, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		return nil, errors.New("tracker: base URL is required")
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}

	return &Client{
		baseURL:    baseURL,
		relayURL:   strings.TrimRight(strings.TrimSpace(cfg.RelayURL), "/"),
		projectID:  cfg.ProjectID,
		httpClient: httpClient,
		clock:      cfg.Clock,
		logger:     cfg.Logger,
		token:      strings.TrimSpace(cfg.Token),
		rateLimits: NewRateLimitTracker(),
		revoked:    make(chan struct{}, 1),
	}, nil
}

// ProjectID returns the project the client is scoped to.
func (c *Client) ProjectID() int64 {
	return c.projectID
}

// Token returns the held bearer token, or "" when signed out.
func (c *Client) Token() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.token
}

// SetToken replaces the held bearer token.
func (c *Client) SetToken(token string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.token = strings.TrimSpace(token)
}

// RateLimits exposes the client's rate-limit tracker.
func (c *Client) RateLimits() *RateLimitTracker {
	return c.rateLimits
}

// Revoked delivers a notification when the tracker reports that the
// integration is no longer installed on the project. Notifications coalesce:
// at most one is pending at a time and none is ever blocked on.
func (c *Client) Revoked() <-chan struct{} {
	return c.revoked
}

// RequestError is returned for transport failures (StatusCode 0) and non-2xx
// responses alike.
type RequestError struct {
	Method     string
	Path       string
	StatusCode int
	Message    string
	Err        error
}

func (e *RequestError) Error() string {
	switch {
	case e.Err != nil:
		return fmt.Sprintf("%s %s: %v", e.Method, e.Path, e.Err)
	case e.Message != "":
		return fmt.Sprintf("%s %s: %d %s", e.Method, e.Path, e.StatusCode, e.Message)
	default:
		return fmt.Sprintf("%s %s: status %d", e.Method, e.Path, e.StatusCode)
	}
}

func (e *RequestError) Unwrap() error {
	return e.Err
}

// IsUnauthorized reports whether err is a 401 from the tracker.
func IsUnauthorized(err error) bool {
	var reqErr *RequestError
	return errors.As(err, &reqErr) && reqErr.StatusCode == http.StatusUnauthorized
}

// StatusCode extracts the HTTP status from err, or 0.
func StatusCode(err error) int {
	var reqErr *RequestError
	if errors.As(err, &reqErr) {
		return reqErr.StatusCode
	}
	return 0
}

// request describes a tracker call independently of any attempt so it can be
// re-sent.
type request struct {
	method      string
	path        string
	body        []byte
	contentType string
}

func jsonRequest(method, path string, payload any) (request, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return request{}, fmt.Errorf("encode %s %s: %w", method, path, err)
	}
	return request{method: method, path: path, body: body, contentType: "application/json"}, nil
}

type authState int

const (
	withAuth authState = iota
	withoutAuth
)

// do sends req. A GET rejected with 401 or 403 while carrying a bearer token
// is re-sent exactly once without it; the anonymous attempt is terminal.
func (c *Client) do(ctx context.Context, req request) (*http.Response, error) {
	state := withAuth
	for {
		httpReq, err := c.build(ctx, req, state)
		if err != nil {
			return nil, err
		}

		resp, err := c.httpClient.Do(httpReq)
		if err != nil {
			return nil, &RequestError{Method: req.method, Path: req.path, Err: err}
		}

		c.observe(resp, httpReq.URL.Path)

		rejected := resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden
		if state == withAuth && req.method == http.MethodGet && rejected && httpReq.Header.Get("Authorization") != "" {
			drain(resp)
			c.logDebug("retrying without authorization",
				zap.String("path", req.path),
				zap.Int("status", resp.StatusCode))
			state = withoutAuth
			continue
		}
		return resp, nil
	}
}

func (c *Client) build(ctx context.Context, req request, state authState) (*http.Request, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	var body io.Reader
	if req.body != nil {
		body = bytes.NewReader(req.body)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.method, c.resolve(req.path), body)
	if err != nil {
		return nil, fmt.Errorf("build %s %s: %w", req.method, req.path, err)
	}
	httpReq.Header.Set("Cache-Control", "no-cache")
	httpReq.Header.Set("Accept", "application/json")
	if req.contentType != "" {
		httpReq.Header.Set("Content-Type", req.contentType)
	}
	if state == withAuth {
		if token := c.Token(); token != "" {
			httpReq.Header.Set("Authorization", "Bearer "+token)
		}
	}
	return httpReq, nil
}

func (c *Client) resolve(path string) string {
	if strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") {
		return path
	}
	return c.baseURL + "/" + strings.TrimLeft(path, "/")
}

// observe applies the side effects every response has on client state.
// urlPath selects the rate-limit class.
func (c *Client) observe(resp *http.Response, urlPath string) {
	switch resp.StatusCode {
	case http.StatusUnauthorized:
		c.SetToken("")
	case http.StatusForbidden:
		if c.integrationRevoked(resp) {
			select {
			case c.revoked <- struct{}{}:
			default:
			}
		}
	}

	class := core.RateLimitStandard
	if searchPath.MatchString(urlPath) {
		class = core.RateLimitSearch
	}
	state, ok := c.rateLimits.Update(class, resp.Header)
	if ok && resp.StatusCode == http.StatusForbidden && state.Remaining == 0 {
		c.warnRateLimited(class, state)
	}
}

// integrationRevoked inspects a 403 body, leaving it readable for the caller.
func (c *Client) integrationRevoked(resp *http.Response) bool {
	if resp.Body == nil {
		return false
	}
	data, err := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	resp.Body = io.NopCloser(bytes.NewReader(data))
	if err != nil {
		return false
	}

	var payload struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		return false
	}
	return payload.Message == notInstalledMessage
}

func (c *Client) warnRateLimited(class core.RateLimitClass, state core.RateLimitState) {
	reset := time.Unix(state.Reset, 0)
	mins := int(math.Round(reset.Sub(c.now()).Minutes()))
	apiType := "non-search APIs"
	if class == core.RateLimitSearch {
		apiType = "search API"
	}
	plural := "s"
	if mins == 1 {
		plural = ""
	}
	if c.logger != nil {
		c.logger.Warn(fmt.Sprintf("Rate limit exceeded for %s. Resets in %d minute%s.", apiType, mins, plural),
			zap.String("class", string(class)),
			zap.Int64("reset", state.Reset))
	}
}

func (c *Client) logDebug(msg string, fields ...zap.Field) {
	if c.logger != nil {
		c.logger.Debug(msg, fields...)
	}
}

func (c *Client) now() time.Time {
	if c.clock != nil {
		return c.clock()
	}
	return time.Now()
}

// expectOK converts a non-2xx response into a RequestError, closing it.
func expectOK(resp *http.Response, req request, message string) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	drain(resp)
	return &RequestError{Method: req.method, Path: req.path, StatusCode: resp.StatusCode, Message: message}
}

func decodeJSON(resp *http.Response, req request, v any) error {
	defer resp.Body.Close() // nolint:errcheck // best-effort cleanup on HTTP response body
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return &RequestError{Method: req.method, Path: req.path, StatusCode: resp.StatusCode, Err: fmt.Errorf("decode response: %w", err)}
	}
	return nil
}

func drain(resp *http.Response) {
	if resp == nil || resp.Body == nil {
		return
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	_ = resp.Body.Close()
}
