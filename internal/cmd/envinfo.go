package cmd

import (
	"fmt"
	"runtime"
	"strings"

	"github.com/fulmenhq/gofulmen/crucible"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/threadline/threadline/internal/config"
	"github.com/threadline/threadline/internal/observability"
)

var envInfoCmd = &cobra.Command{
	Use:   "envinfo",
	Short: "Display environment information",
	Long:  "Display environment, configuration, and version information. Secrets are reported as set or not set.",
	Run: func(cmd *cobra.Command, args []string) {
		version := crucible.GetVersion()
		log := observability.CLILogger

		log.Info("=== threadline Environment Information ===")
		log.Info("")

		log.Info("Application:")
		log.Info("  Name:       " + config.AppName)
		log.Info("  Version:    " + versionInfo.Version)
		log.Info("  Commit:     " + versionInfo.Commit)
		log.Info("  Built:      " + versionInfo.BuildDate)
		log.Info("")

		log.Info("SSOT:")
		log.Info("  Gofulmen:   "+version.Gofulmen, zap.String("gofulmen_version", version.Gofulmen))
		log.Info("  Crucible:   "+version.Crucible, zap.String("crucible_version", version.Crucible))
		log.Info("")

		log.Info("Runtime:")
		log.Info("  Go Version: "+runtime.Version(), zap.String("go_version", runtime.Version()))
		log.Info("  GOOS:       "+runtime.GOOS, zap.String("goos", runtime.GOOS))
		log.Info("  GOARCH:     "+runtime.GOARCH, zap.String("goarch", runtime.GOARCH))
		log.Info("")

		cfg, err := loadConfig()
		if err != nil {
			log.Warn("Config load failed", zap.Error(err))
			return
		}

		configFile := viper.ConfigFileUsed()
		if configFile == "" {
			configFile = "(none)"
		}

		log.Info("Configuration:")
		log.Info("  Config File:    "+configFile, zap.String("config_file", configFile))
		log.Info("  Server Host:    "+cfg.Server.Host, zap.String("host", cfg.Server.Host))
		log.Info(fmt.Sprintf("  Server Port:    %d", cfg.Server.Port), zap.Int("port", cfg.Server.Port))
		log.Info("  Log Level:      "+cfg.Logging.Level, zap.String("log_level", cfg.Logging.Level))
		log.Info(fmt.Sprintf("  Metrics Port:   %d", cfg.Metrics.Port), zap.Int("metrics_port", cfg.Metrics.Port))
		log.Info("")

		log.Info("Relay:")
		log.Info("  Authorize URL:  " + cfg.Relay.AuthorizeURL)
		log.Info("  Token URL:      " + cfg.Relay.TokenURL)
		log.Info("  API URL:        " + cfg.Relay.APIURL)
		log.Info("  Callback URL:   " + cfg.Relay.CallbackURL)
		log.Info("  Frontend URL:   " + cfg.Relay.FrontendURL)
		log.Info("  Scopes:         " + strings.Join(cfg.Relay.Scopes, " "))
		log.Info("  Session TTL:    " + cfg.Relay.SessionTTL.String())
		log.Info("  Client ID:      " + setOrNot(cfg.Relay.ClientID))
		log.Info("  Client Secret:  " + setOrNot(cfg.Relay.ClientSecret))
		log.Info("  State Password: " + setOrNot(cfg.Relay.StatePassword))
		log.Info("  Service Token:  " + setOrNot(cfg.Relay.ServiceToken))
		log.Info("  CORS Origins:   " + strings.Join(cfg.CORS.AllowedOrigins, ", "))
		if err := cfg.Validate(); err != nil {
			log.Warn("  serve would refuse to start", zap.Error(err))
		}
		log.Info("")

		log.Info("Tracker:")
		log.Info("  Base URL:       " + cfg.Tracker.BaseURL)
		log.Info("  Relay URL:      " + cfg.Tracker.RelayURL)
		log.Info(fmt.Sprintf("  Project ID:     %d", cfg.Tracker.ProjectID))
		log.Info("  Token:          " + setOrNot(cfg.Tracker.Token))
		log.Info("  Session:        " + setOrNot(cfg.Tracker.Session))
		log.Info("")

		log.Info("=== End Environment Information ===")
	},
}

func setOrNot(value string) string {
	if strings.TrimSpace(value) == "" {
		return "(not set)"
	}
	return "(set)"
}

func init() {
	rootCmd.AddCommand(envInfoCmd)
}
