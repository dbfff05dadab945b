package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/threadline/threadline/internal/core"
)

var (
	reactCreds credentialFlags
	reactIssue int64
	reactNote  int64
)

var reactCmd = &cobra.Command{
	Use:   "react [reaction-url] <kind>",
	Short: "Toggle a reaction on a comment",
	Long: fmt.Sprintf(`Toggle the signed-in user's reaction on a comment.

Pass the award emoji URL of the comment, or --issue and --note to build it
from tracker.project_id. Running the command twice removes the reaction.

Kinds: %s`, joinKinds()),
	Example: `  threadline react --issue 12 --note 345 heart
  threadline react https://gitlab.com/api/v4/projects/7/issues/12/notes/345/award_emoji rocket`,
	Args: cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		kind := core.ReactionKind(strings.TrimSpace(args[len(args)-1]))
		if !kind.Valid() {
			return fmt.Errorf("unknown reaction %q (want one of %s)", kind, joinKinds())
		}

		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		client, err := newTrackerClient(cmd.Context(), cfg, reactCreds, cfg.Tracker.ProjectID)
		if err != nil {
			return err
		}

		target := ""
		switch {
		case len(args) == 2:
			target = args[0]
		case reactIssue > 0 && reactNote > 0 && client.ProjectID() > 0:
			target = client.ReactionsPath(reactIssue, reactNote)
		default:
			return fmt.Errorf("pass a reaction URL or --issue and --note with tracker.project_id set")
		}

		result, err := client.ToggleReaction(cmd.Context(), target, kind)
		if err != nil {
			return err
		}

		verb := "Added"
		if result.Deleted {
			verb = "Removed"
		}
		_, err = fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", verb, kind)
		return err
	},
}

func joinKinds() string {
	names := make([]string, len(core.ReactionKinds))
	for i, k := range core.ReactionKinds {
		names[i] = string(k)
	}
	return strings.Join(names, ", ")
}

func init() {
	rootCmd.AddCommand(reactCmd)

	reactCreds.register(reactCmd)
	reactCmd.Flags().Int64Var(&reactIssue, "issue", 0, "issue number holding the comment")
	reactCmd.Flags().Int64Var(&reactNote, "note", 0, "comment (note) id")
}
