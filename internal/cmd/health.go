package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/threadline/threadline/internal/observability"
	"github.com/threadline/threadline/internal/relay"
	"github.com/threadline/threadline/internal/server/handlers"
)

var healthURL string

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Check the relay configuration or a running relay",
	Long: `Without --url, verify that serve would start with the current configuration.
With --url, ask a running relay's readiness probe.`,
	Example: `  threadline health
  threadline health --url https://relay.example`,
	Run: func(cmd *cobra.Command, args []string) {
		log := observability.CLILogger

		if healthURL != "" {
			status, err := probeRelay(cmd.Context(), &http.Client{Timeout: 10 * time.Second}, healthURL)
			if err != nil {
				ExitWithCode(log, foundry.ExitExternalServiceUnavailable, "Relay is not ready", err)
				return
			}
			log.Info("✅ Relay ready", zap.String("url", healthURL), zap.String("status", status))
			return
		}

		cfg, err := loadConfig()
		if err != nil {
			ExitWithCode(log, foundry.ExitConfigInvalid, "Configuration failed to load", err)
			return
		}
		if err := cfg.Validate(); err != nil {
			ExitWithCode(log, foundry.ExitConfigInvalid, "Relay configuration incomplete", err)
			return
		}
		log.Info("✅ Relay configuration complete")

		if _, err := relay.New(relayConfig(cfg)); err != nil {
			ExitWithCode(log, foundry.ExitConfigInvalid, "Relay initialization failed", err)
			return
		}
		log.Info("✅ Relay initializes", zap.String("version", versionInfo.Version))
	},
}

// probeRelay asks base's readiness probe and returns the reported status.
func probeRelay(ctx context.Context, client *http.Client, base string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, strings.TrimRight(base, "/")+"/health/ready", nil)
	if err != nil {
		return "", err
	}
	resp, err := client.Do(req)
	if err != nil {
		return "", err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("readiness probe answered %s", resp.Status)
	}
	var probe handlers.ProbeResponse
	if err := json.NewDecoder(resp.Body).Decode(&probe); err != nil {
		return "", fmt.Errorf("decode readiness probe: %w", err)
	}
	return probe.Status, nil
}

func init() {
	rootCmd.AddCommand(healthCmd)
	healthCmd.Flags().StringVar(&healthURL, "url", "", "base URL of a running relay")
}
