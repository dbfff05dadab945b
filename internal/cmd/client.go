package cmd

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/threadline/threadline/internal/config"
	"github.com/threadline/threadline/internal/core"
	"github.com/threadline/threadline/internal/core/tracker"
	"github.com/threadline/threadline/internal/observability"
)

// threadFlags selects a thread the way the widget's page attributes do.
type threadFlags struct {
	project     int64
	issue       int64
	term        string
	origin      string
	url         string
	title       string
	description string
	label       string
}

func (f *threadFlags) register(cmd *cobra.Command) {
	cmd.Flags().Int64Var(&f.project, "project", 0, "tracker project id (default tracker.project_id)")
	cmd.Flags().Int64Var(&f.issue, "issue", 0, "issue number backing the thread")
	cmd.Flags().StringVar(&f.term, "term", "", "issue search term (usually the page pathname)")
	cmd.Flags().StringVar(&f.origin, "origin", "", "host page origin")
	cmd.Flags().StringVar(&f.url, "url", "", "host page URL, used when an issue is created")
	cmd.Flags().StringVar(&f.title, "title", "", "host page title")
	cmd.Flags().StringVar(&f.description, "description", "", "host page description")
	cmd.Flags().StringVar(&f.label, "label", "", "label applied to a created issue")
	cmd.MarkFlagsMutuallyExclusive("issue", "term")
}

// attributes converts the flags into validated page attributes.
func (f *threadFlags) attributes(cfg *config.Config) (*core.PageAttributes, error) {
	project := f.project
	if project == 0 {
		project = cfg.Tracker.ProjectID
	}
	if project == 0 {
		return nil, fmt.Errorf("--project or tracker.project_id is required")
	}

	params := url.Values{}
	params.Set("projectid", strconv.FormatInt(project, 10))
	params.Set("origin", f.origin)
	switch {
	case f.issue > 0:
		params.Set("issue-number", strconv.FormatInt(f.issue, 10))
	case f.term != "":
		params.Set("issue-term", f.term)
	}
	for key, value := range map[string]string{
		"url":         f.url,
		"title":       f.title,
		"description": f.description,
		"label":       f.label,
	} {
		if value != "" {
			params.Set(key, value)
		}
	}
	return core.ParsePageAttributes(params)
}

// credentialFlags override the configured tracker credentials.
type credentialFlags struct {
	token    string
	session  string
	baseURL  string
	relayURL string
}

func (f *credentialFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.token, "token", "", "tracker access token (default tracker.token)")
	cmd.Flags().StringVar(&f.session, "session", "", "relay session token traded for an access token")
	cmd.Flags().StringVar(&f.baseURL, "base-url", "", "tracker API root (default tracker.base_url)")
	cmd.Flags().StringVar(&f.relayURL, "relay-url", "", "relay root (default tracker.relay_url)")
}

// newTrackerClient builds a client from config and flags and resolves a
// session token into an access token when one is given.
func newTrackerClient(ctx context.Context, cfg *config.Config, creds credentialFlags, project int64) (*tracker.Client, error) {
	timeout := cfg.Tracker.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	client, err := tracker.NewClient(tracker.Config{
		BaseURL:    firstNonEmpty(creds.baseURL, cfg.Tracker.BaseURL),
		RelayURL:   firstNonEmpty(creds.relayURL, cfg.Tracker.RelayURL),
		ProjectID:  project,
		Token:      firstNonEmpty(creds.token, cfg.Tracker.Token),
		HTTPClient: &http.Client{Timeout: timeout},
		Logger:     observability.CLILogger,
	})
	if err != nil {
		return nil, err
	}

	if session := firstNonEmpty(creds.session, cfg.Tracker.Session); session != "" && client.Token() == "" {
		if _, err := client.ExchangeSession(ctx, session); err != nil {
			return nil, fmt.Errorf("exchange session: %w", err)
		}
		observability.CLILogger.Debug("Session exchanged for access token")
	}

	go watchRevocation(ctx, client)
	return client, nil
}

// watchRevocation logs once when the tracker reports the integration gone.
func watchRevocation(ctx context.Context, client *tracker.Client) {
	select {
	case <-ctx.Done():
	case <-client.Revoked():
		observability.CLILogger.Warn("Tracker integration is no longer installed on this project",
			zap.Int64("project_id", client.ProjectID()))
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
