package tracker

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"gopkg.in/yaml.v3"

	"github.com/threadline/threadline/internal/core"
)

// RepoConfigFile is the widget configuration file read from the project's
// repository.
const RepoConfigFile = "utterances.json"

// RepoConfigRef is the branch the configuration file is read from.
const RepoConfigRef = "master"

// LoadRepoConfig reads the project's widget configuration. The file is JSON
// by convention; any YAML 1.2 document (a JSON superset) is accepted.
func (c *Client) LoadRepoConfig(ctx context.Context) (*core.RepoConfig, error) {
	req := request{
		method: http.MethodGet,
		path:   fmt.Sprintf("projects/%d/repository/files/%s/raw?ref=%s", c.projectID, url.PathEscape(RepoConfigFile), RepoConfigRef),
	}
	resp, err := c.do(ctx, req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode == http.StatusNotFound {
		drain(resp)
		return nil, &RequestError{
			Method:     req.method,
			Path:       req.path,
			StatusCode: resp.StatusCode,
			Message:    fmt.Sprintf("project %d does not have a file named %q in the %q branch", c.projectID, RepoConfigFile, RepoConfigRef),
		}
	}
	if err := expectOK(resp, req, "error fetching "+RepoConfigFile); err != nil {
		return nil, err
	}
	defer resp.Body.Close() // nolint:errcheck // best-effort cleanup on HTTP response body

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &RequestError{Method: req.method, Path: req.path, StatusCode: resp.StatusCode, Err: err}
	}

	var cfg core.RepoConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", RepoConfigFile, err)
	}
	return &cfg, nil
}
