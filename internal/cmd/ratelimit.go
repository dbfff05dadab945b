package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/threadline/threadline/internal/observability"
	"github.com/threadline/threadline/internal/output"
)

var (
	rateLimitCreds  credentialFlags
	rateLimitFormat string
)

var rateLimitCmd = &cobra.Command{
	Use:     "ratelimit",
	Aliases: []string{"rate-limit"},
	Short:   "Show tracker rate limit state",
	Long: `Issue one request for the signed-in user and print the quota the
tracker reported in its RateLimit headers.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		format, err := output.ParseFormat(rateLimitFormat)
		if err != nil {
			return err
		}

		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		client, err := newTrackerClient(cmd.Context(), cfg, rateLimitCreds, cfg.Tracker.ProjectID)
		if err != nil {
			return err
		}

		if client.Token() == "" {
			return fmt.Errorf("sign in required: pass --token or --session")
		}

		user, err := client.LoadUser(cmd.Context())
		if err != nil {
			return err
		}
		if user != nil {
			observability.CLILogger.Debug("Signed in", zap.String("username", user.Username))
		}

		rendered, err := output.NewFormatter(format).FormatRateLimits(client.RateLimits().Snapshot())
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(cmd.OutOrStdout(), rendered)
		return err
	},
}

func init() {
	rootCmd.AddCommand(rateLimitCmd)

	rateLimitCreds.register(rateLimitCmd)
	rateLimitCmd.Flags().StringVar(&rateLimitFormat, "output-format", string(output.FormatTable), "Output format: table|json|markdown")
}
