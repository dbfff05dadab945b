package cmd

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/threadline/threadline/internal/core/engine"
	"github.com/threadline/threadline/internal/core/tracker"
	"github.com/threadline/threadline/internal/observability"
	"github.com/threadline/threadline/internal/output"
)

var (
	threadSelect threadFlags
	threadCreds  credentialFlags
	threadAll    bool
	threadFormat string
	threadOut    string
)

var threadCmd = &cobra.Command{
	Use:   "thread",
	Short: "Load a comment thread",
	Long: `Load the issue backing a page and its comments.

The first page, the last page and (when the last page is nearly empty) the
page before it are fetched at once. The remaining pages stay hidden until
--all loads them one at a time, oldest first.`,
	Example: `  threadline thread --project 7 --term docs/intro.html
  threadline thread --project 7 --issue 12 --all --output-format json`,
	RunE: func(cmd *cobra.Command, args []string) error {
		format, err := output.ParseFormat(threadFormat)
		if err != nil {
			return err
		}

		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		attrs, err := threadSelect.attributes(cfg)
		if err != nil {
			return err
		}
		client, err := newTrackerClient(cmd.Context(), cfg, threadCreds, attrs.ProjectID)
		if err != nil {
			return err
		}

		thread, err := engine.NewThread(client, attrs, observability.CLILogger)
		if err != nil {
			return err
		}
		report, err := loadThreadReport(cmd, thread, threadAll)
		if err != nil {
			return err
		}

		rendered, err := output.NewFormatter(format).FormatThread(report)
		if err != nil {
			return err
		}

		if rendered == "" {
			rendered = "No issue found for this page yet. Posting a comment creates it."
		}
		return writeReport(cmd.OutOrStdout(), threadOut, rendered)
	},
}

// loadThreadReport runs the thread bootstrap and, with all set, drains the
// hidden pages.
func loadThreadReport(cmd *cobra.Command, thread *engine.Thread, all bool) (*output.ThreadReport, error) {
	view, err := thread.Load(cmd.Context())
	if err != nil {
		return nil, err
	}

	report := &output.ThreadReport{
		Issue:         view.Issue,
		User:          view.User,
		LoginRequired: view.LoginRequired,
	}
	if view.Issue == nil {
		return report, nil
	}

	pages := view.Pages
	if all && !view.LoginRequired {
		more, err := drainHidden(cmd, thread)
		if err != nil {
			return nil, err
		}
		pages = insertHidden(pages, more)
	}

	for _, page := range pages {
		report.Comments = append(report.Comments, page.Comments...)
	}
	if p := thread.Paginator(); p != nil {
		report.Remaining = p.RemainingEstimate()
	}
	return report, nil
}

func drainHidden(cmd *cobra.Command, thread *engine.Thread) ([]*tracker.CommentPage, error) {
	var pages []*tracker.CommentPage
	for p := thread.Paginator(); p != nil && p.HasMore(); {
		page, err := thread.LoadMore(cmd.Context())
		if err != nil {
			return nil, err
		}
		if page == nil {
			break
		}
		observability.CLILogger.Debug("Loaded hidden page", zap.Int("page", page.Number), zap.Int("comments", len(page.Comments)))
		pages = append(pages, page)
	}
	return pages, nil
}

// insertHidden places lazily loaded pages between the first eager page and
// the trailing ones so the timeline stays in page order.
func insertHidden(eager, hidden []*tracker.CommentPage) []*tracker.CommentPage {
	if len(hidden) == 0 || len(eager) == 0 {
		return append(eager, hidden...)
	}
	out := make([]*tracker.CommentPage, 0, len(eager)+len(hidden))
	out = append(out, eager[0])
	out = append(out, hidden...)
	return append(out, eager[1:]...)
}

// writeReport writes rendered to path, or to stdout when path is empty or
// "-". Parent directories are created.
func writeReport(stdout io.Writer, path, rendered string) error {
	path = strings.TrimSpace(path)
	if path == "" || path == "-" {
		_, err := fmt.Fprintln(stdout, rendered)
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}
	return os.WriteFile(path, []byte(rendered+"\n"), 0o644)
}

func init() {
	rootCmd.AddCommand(threadCmd)

	threadSelect.register(threadCmd)
	threadCreds.register(threadCmd)
	threadCmd.Flags().BoolVar(&threadAll, "all", false, "load every hidden page")
	threadCmd.Flags().StringVar(&threadFormat, "output-format", string(output.FormatTable), "Output format: table|json|markdown")
	threadCmd.Flags().StringVar(&threadOut, "out", "", "Write output to a file (default stdout)")
}
