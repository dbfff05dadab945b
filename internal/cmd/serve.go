package cmd

import (
	"context"
	"net/http"
	"time"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/fulmenhq/gofulmen/signals"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/threadline/threadline/internal/config"
	errwrap "github.com/threadline/threadline/internal/errors"
	"github.com/threadline/threadline/internal/metrics"
	"github.com/threadline/threadline/internal/observability"
	"github.com/threadline/threadline/internal/relay"
	"github.com/threadline/threadline/internal/server"
	"github.com/threadline/threadline/internal/server/handlers"
	servermw "github.com/threadline/threadline/internal/server/middleware"
)

const telemetryNamespace = "threadline"

var (
	serverPort int
	serverHost string
)

// signalHealthChecker implements HealthChecker for signal system
type signalHealthChecker struct{}

func (s signalHealthChecker) CheckHealth(ctx context.Context) error {
	return nil // Signal handlers are registered and ready
}

// telemetryHealthChecker ensures telemetry system and exporter are available
type telemetryHealthChecker struct{}

func (telemetryHealthChecker) CheckHealth(ctx context.Context) error {
	if observability.TelemetrySystem == nil || observability.PrometheusExporter == nil {
		return errwrap.NewInternalError("telemetry system not initialized")
	}
	return nil
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the OAuth relay",
	Long: `Start the OAuth relay with graceful shutdown support.

The relay needs the OAuth application's client id and secret, its public
callback URL, the frontend URL sessions are delivered to and the state
password that seals session tokens. The names client_id, client_secret,
Callback_URL, state_password and Access_Token are read from the
environment as well as THREADLINE_RELAY_*.

Signal Handling:
  • Ctrl+C (SIGINT) or SIGTERM: Graceful shutdown
  • Ctrl+C twice within 2s: Force quit
  • SIGHUP: Config reload (restart to apply relay settings)`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			ExitWithCode(observability.CLILogger, foundry.ExitConfigInvalid, "Failed to load configuration", err)
		}
		if err := cfg.Validate(); err != nil {
			ExitWithCode(observability.CLILogger, foundry.ExitConfigInvalid, "Invalid relay configuration", err)
		}

		// Initialize server logger with namespace
		observability.InitServerLogger(config.AppName, cfg.Logging.Level, telemetryNamespace)

		metricsPort := cfg.Metrics.Port
		if metricsPort == 0 {
			metricsPort = 9090
		}

		if cfg.Metrics.Enabled {
			if err := observability.InitMetrics(config.AppName, metricsPort, telemetryNamespace); err != nil {
				observability.ServerLogger.Error("Failed to initialize metrics",
					zap.Error(err))
				return errwrap.WrapInternal(cmd.Context(), err, "metrics initialization failed")
			}
			metrics.SetServerStartTime(time.Now().Unix())
		}

		rly, err := relay.New(relayConfig(cfg))
		if err != nil {
			return errwrap.WrapInternal(cmd.Context(), err, "relay initialization failed")
		}

		observability.ServerLogger.Info("Initializing relay",
			zap.String("service", config.AppName),
			zap.String("version", versionInfo.Version),
			zap.String("host", cfg.Server.Host),
			zap.Int("port", cfg.Server.Port),
			zap.Int("metrics_port", metricsPort),
			zap.String("callback_url", cfg.Relay.CallbackURL),
			zap.Strings("allowed_origins", cfg.CORS.AllowedOrigins))

		// Initialize health manager
		hm := handlers.InitHealthManager(versionInfo.Version)
		hm.RegisterChecker("signal_handlers", signalHealthChecker{})
		hm.RegisterChecker("relay", rly)
		if cfg.Metrics.Enabled {
			hm.RegisterChecker("telemetry", telemetryHealthChecker{})
		}

		handlers.SetAppName(config.AppName)

		srv := server.New(server.Options{
			Host:  cfg.Server.Host,
			Port:  cfg.Server.Port,
			Relay: rly,
			CORS: servermw.CORSConfig{
				AllowedOrigins: cfg.CORS.AllowedOrigins,
				Strict:         cfg.CORS.Strict,
			},
			MetricsPort:  metricsPort,
			AdminToken:   cfg.Server.AdminToken,
			ReadTimeout:  cfg.Server.ReadTimeout,
			WriteTimeout: cfg.Server.WriteTimeout,
			IdleTimeout:  cfg.Server.IdleTimeout,
		})

		shutdownTimeout := cfg.Server.ShutdownTimeout
		if shutdownTimeout == 0 {
			shutdownTimeout = 10 * time.Second
		}

		// Register graceful shutdown handlers (LIFO order - last registered, first executed)
		// Handler 1: Flush logger (executed last)
		signals.OnShutdown(func(ctx context.Context) error {
			observability.ServerLogger.Info("Flushing logger...")
			if err := observability.ServerLogger.Sync(); err != nil {
				// Sync errors are often benign (stdout/stderr already closed)
				observability.ServerLogger.Warn("Logger sync returned error (may be benign)",
					zap.Error(err))
			}
			return nil
		})

		if cfg.Metrics.Enabled {
			signals.OnShutdown(func(ctx context.Context) error {
				if err := observability.StopMetrics(); err != nil {
					observability.ServerLogger.Warn("Metrics exporter stop failed", zap.Error(err))
				}
				return nil
			})
		}

		// Handler 2: Shutdown HTTP server (executed first)
		signals.OnShutdown(func(ctx context.Context) error {
			observability.ServerLogger.Info("Shutting down HTTP server...")
			shutdownCtx, cancel := context.WithTimeout(ctx, shutdownTimeout)
			defer cancel()

			if err := srv.Shutdown(shutdownCtx); err != nil {
				return errwrap.WrapInternal(ctx, err, "server shutdown failed")
			}

			observability.ServerLogger.Info("HTTP server stopped gracefully")
			return nil
		})

		// Register config reload handler (SIGHUP)
		signals.OnReload(func(ctx context.Context) error {
			observability.ServerLogger.Info("Received SIGHUP: attempting config reload")

			if err := viper.ReadInConfig(); err != nil {
				if _, ok := err.(viper.ConfigFileNotFoundError); ok {
					observability.ServerLogger.Info("No config file found - using defaults and environment variables")
					return nil
				}
				observability.ServerLogger.Error("Failed to reload config file",
					zap.String("file", viper.ConfigFileUsed()),
					zap.Error(err))
				return errwrap.WrapInternal(ctx, err, "config reload failed")
			}

			reloaded, err := loadConfig()
			if err != nil {
				return errwrap.WrapInternal(ctx, err, "config reload failed")
			}
			if err := reloaded.Validate(); err != nil {
				observability.ServerLogger.Warn("Reloaded configuration is invalid; keeping current relay settings",
					zap.Error(err))
				return nil
			}

			observability.ServerLogger.Info("Configuration reloaded; relay settings apply after restart",
				zap.String("file", viper.ConfigFileUsed()))
			return nil
		})

		// Enable double-tap force quit (Ctrl+C within 2 seconds)
		if err := signals.EnableDoubleTap(signals.DoubleTapConfig{
			Window:  2 * time.Second,
			Message: "Press Ctrl+C again within 2 seconds to force quit",
		}); err != nil {
			observability.ServerLogger.Warn("Failed to enable double-tap force quit",
				zap.Error(err))
		}

		// Start server in background goroutine
		errChan := make(chan error, 1)
		go func() {
			if err := srv.Start(); err != nil && err != http.ErrServerClosed {
				errChan <- err
			}
		}()

		// Start signal listener in background
		go func() {
			if err := signals.Listen(cmd.Context()); err != nil {
				observability.ServerLogger.Error("Signal handler error", zap.Error(err))
				errChan <- err
			}
		}()

		// Wait for error or shutdown completion
		if err := <-errChan; err != nil {
			return errwrap.WrapInternal(cmd.Context(), err, "server error")
		}

		return nil
	},
}

// relayConfig maps loaded settings onto the relay.
func relayConfig(cfg *config.Config) relay.Config {
	return relay.Config{
		ClientID:          cfg.Relay.ClientID,
		ClientSecret:      cfg.Relay.ClientSecret,
		AuthorizeURL:      cfg.Relay.AuthorizeURL,
		TokenURL:          cfg.Relay.TokenURL,
		CallbackURL:       cfg.Relay.CallbackURL,
		FrontendURL:       cfg.Relay.FrontendURL,
		StatePassword:     cfg.Relay.StatePassword,
		ServiceToken:      cfg.Relay.ServiceToken,
		APIURL:            cfg.Relay.APIURL,
		AvatarEmailDomain: cfg.Relay.AvatarEmailDomain,
		State:             cfg.Relay.State,
		Scopes:            cfg.Relay.Scopes,
		SessionTTL:        cfg.Relay.SessionTTL,
		HTTPClient:        &http.Client{Timeout: 30 * time.Second},
		Logger:            observability.ServerLogger,
	}
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVar(&serverHost, "host", "localhost", "server host")
	serveCmd.Flags().IntVarP(&serverPort, "port", "p", 3000, "server port")

	_ = viper.BindPFlag("server.host", serveCmd.Flags().Lookup("host"))
	_ = viper.BindPFlag("server.port", serveCmd.Flags().Lookup("port"))
}
