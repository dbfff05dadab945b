package cmd

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/threadline/threadline/internal/config"
	"github.com/threadline/threadline/internal/core/tracker"
)

func TestThreadFlagsAttributes(t *testing.T) {
	cfg := &config.Config{Tracker: config.TrackerConfig{ProjectID: 7}}

	t.Run("term with configured project", func(t *testing.T) {
		f := threadFlags{term: "docs/intro.html", origin: "https://docs.example", label: "comments"}
		attrs, err := f.attributes(cfg)
		require.NoError(t, err)
		assert.Equal(t, int64(7), attrs.ProjectID)
		assert.Equal(t, "docs/intro.html", attrs.IssueTerm)
		assert.Equal(t, "comments", attrs.Label)
		assert.False(t, attrs.ByNumber())
	})

	t.Run("issue number overrides project", func(t *testing.T) {
		f := threadFlags{project: 9, issue: 12}
		attrs, err := f.attributes(cfg)
		require.NoError(t, err)
		assert.Equal(t, int64(9), attrs.ProjectID)
		assert.Equal(t, int64(12), attrs.IssueNumber)
		assert.True(t, attrs.ByNumber())
	})

	t.Run("needs an issue selector", func(t *testing.T) {
		_, err := (&threadFlags{}).attributes(cfg)
		require.Error(t, err)
	})

	t.Run("needs a project", func(t *testing.T) {
		_, err := (&threadFlags{issue: 1}).attributes(&config.Config{})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "--project")
	})
}

func TestInsertHidden(t *testing.T) {
	page := func(n int) *tracker.CommentPage { return &tracker.CommentPage{Number: n} }
	numbers := func(pages []*tracker.CommentPage) []int {
		out := make([]int, len(pages))
		for i, p := range pages {
			out[i] = p.Number
		}
		return out
	}

	assert.Equal(t, []int{1, 2, 3, 4}, numbers(insertHidden([]*tracker.CommentPage{page(1), page(3), page(4)}, []*tracker.CommentPage{page(2)})))
	assert.Equal(t, []int{1, 2, 3, 4}, numbers(insertHidden([]*tracker.CommentPage{page(1), page(4)}, []*tracker.CommentPage{page(2), page(3)})))
	assert.Equal(t, []int{1, 2}, numbers(insertHidden([]*tracker.CommentPage{page(1), page(2)}, nil)))
}

func TestReadCommentBody(t *testing.T) {
	t.Cleanup(func() {
		commentBody = ""
		commentBodyFile = ""
	})

	commentBody = "inline"
	body, err := readCommentBody(strings.NewReader(""))
	require.NoError(t, err)
	assert.Equal(t, "inline", body)

	commentBody = ""
	commentBodyFile = "-"
	body, err = readCommentBody(strings.NewReader("from stdin"))
	require.NoError(t, err)
	assert.Equal(t, "from stdin", body)

	path := filepath.Join(t.TempDir(), "body.md")
	require.NoError(t, os.WriteFile(path, []byte("from file"), 0o600))
	commentBodyFile = path
	body, err = readCommentBody(strings.NewReader(""))
	require.NoError(t, err)
	assert.Equal(t, "from file", body)

	commentBodyFile = ""
	_, err = readCommentBody(strings.NewReader(""))
	require.Error(t, err)
}

func TestRelayConfigMapping(t *testing.T) {
	cfg, err := config.Decode(map[string]any{
		"relay": map[string]any{
			"gitlab_url":     "https://git.example",
			"client_id":      "id",
			"client_secret":  "secret",
			"callback_url":   "https://relay.example",
			"frontend_url":   "https://docs.example",
			"state_password": "pw",
			"session_ttl":    "1h",
		},
	})
	require.NoError(t, err)

	rc := relayConfig(cfg)
	assert.Equal(t, "https://git.example/oauth/authorize", rc.AuthorizeURL)
	assert.Equal(t, "https://git.example/oauth/token", rc.TokenURL)
	assert.Equal(t, "https://git.example/api/v4", rc.APIURL)
	assert.Equal(t, "pw", rc.StatePassword)
	assert.NotNil(t, rc.HTTPClient)
}

func TestHelpers(t *testing.T) {
	assert.Equal(t, "b", firstNonEmpty("", "  ", "b", "c"))
	assert.Equal(t, "", firstNonEmpty())
	assert.Equal(t, "(set)", setOrNot("x"))
	assert.Equal(t, "(not set)", setOrNot(" "))
	assert.True(t, strings.HasPrefix(joinKinds(), "thumbsup, thumbsdown"))
}

func TestWriteReport(t *testing.T) {
	var stdout strings.Builder
	require.NoError(t, writeReport(&stdout, "-", "#12 docs/intro.html"))
	assert.Equal(t, "#12 docs/intro.html\n", stdout.String())

	path := filepath.Join(t.TempDir(), "reports", "thread.md")
	require.NoError(t, writeReport(&stdout, path, "| # | Author |"))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "| # | Author |\n", string(data))
}
