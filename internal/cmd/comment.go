package cmd

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/threadline/threadline/internal/core/engine"
	"github.com/threadline/threadline/internal/observability"
)

var (
	commentSelect   threadFlags
	commentCreds    credentialFlags
	commentBody     string
	commentBodyFile string
	commentPreview  bool
)

var commentCmd = &cobra.Command{
	Use:   "comment",
	Short: "Post a comment to a thread",
	Long: `Post a markdown comment to the thread backing a page.

The page origin must be listed in the project's threadline.json. When no
issue exists for the page yet, one is created through the relay first.
--preview renders the markdown instead of posting it.`,
	Example: `  threadline comment --project 7 --term docs/intro.html --origin https://docs.example --body "Nice page"
  echo "From stdin" | threadline comment --project 7 --issue 12 --origin https://docs.example --body-file -`,
	RunE: func(cmd *cobra.Command, args []string) error {
		body, err := readCommentBody(cmd.InOrStdin())
		if err != nil {
			return err
		}

		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		attrs, err := commentSelect.attributes(cfg)
		if err != nil {
			return err
		}
		client, err := newTrackerClient(cmd.Context(), cfg, commentCreds, attrs.ProjectID)
		if err != nil {
			return err
		}

		if commentPreview {
			html, err := client.RenderMarkdown(cmd.Context(), body)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), html)
			return err
		}

		if client.Token() == "" {
			return errors.New("sign in required: pass --token or --session")
		}
		if attrs.Origin == "" {
			return errors.New("--origin is required to post")
		}

		thread, err := engine.NewThread(client, attrs, observability.CLILogger)
		if err != nil {
			return err
		}
		if _, err := thread.Load(cmd.Context()); err != nil {
			return err
		}

		comment, err := thread.Submit(cmd.Context(), body)
		if err != nil {
			return err
		}

		observability.CLILogger.Info("Comment posted",
			zap.Int64("iid", thread.Issue().IID),
			zap.Int64("note_id", comment.ID))
		_, err = fmt.Fprintf(cmd.OutOrStdout(), "Posted comment %d on #%d\n", comment.ID, thread.Issue().IID)
		return err
	},
}

func readCommentBody(stdin io.Reader) (string, error) {
	body := commentBody
	switch strings.TrimSpace(commentBodyFile) {
	case "":
	case "-":
		data, err := io.ReadAll(stdin)
		if err != nil {
			return "", fmt.Errorf("read stdin: %w", err)
		}
		body = string(data)
	default:
		data, err := os.ReadFile(commentBodyFile)
		if err != nil {
			return "", err
		}
		body = string(data)
	}
	if strings.TrimSpace(body) == "" {
		return "", errors.New("comment body is required (--body or --body-file)")
	}
	return body, nil
}

func init() {
	rootCmd.AddCommand(commentCmd)

	commentSelect.register(commentCmd)
	commentCreds.register(commentCmd)
	commentCmd.Flags().StringVar(&commentBody, "body", "", "comment markdown")
	commentCmd.Flags().StringVar(&commentBodyFile, "body-file", "", "read comment markdown from a file, or - for stdin")
	commentCmd.Flags().BoolVar(&commentPreview, "preview", false, "render the markdown instead of posting")
	commentCmd.MarkFlagsMutuallyExclusive("body", "body-file")
}
