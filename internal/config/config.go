package config

import (
	"time"
)

// Config represents the complete application configuration.
// Sources, lowest precedence first: defaults, config file, .env, environment,
// flags.
type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	Logging LoggingConfig `mapstructure:"logging"`
	Metrics MetricsConfig `mapstructure:"metrics"`
	Relay   RelayConfig   `mapstructure:"relay"`
	Tracker TrackerConfig `mapstructure:"tracker"`
	CORS    CORSConfig    `mapstructure:"cors"`
}

// ServerConfig contains HTTP server configuration
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`

	// AdminToken enables the admin signal endpoint when non-empty.
	AdminToken string `mapstructure:"admin_token"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	// Level controls the minimum log level
	// Valid values: trace, debug, info, warn, error
	Level string `mapstructure:"level"`

	// Profile selects the logging complexity level
	// Valid values: SIMPLE, STRUCTURED, ENTERPRISE
	Profile string `mapstructure:"profile"`
}

// MetricsConfig contains Prometheus metrics configuration
type MetricsConfig struct {
	// Enabled controls whether metrics are exposed
	Enabled bool `mapstructure:"enabled"`

	// Port is the dedicated metrics endpoint port (Prometheus format)
	Port int `mapstructure:"port"`
}

// RelayConfig holds the OAuth relay's provider registration and secrets.
type RelayConfig struct {
	// GitLabURL is the tracker host. Authorize, token and API URLs are
	// derived from it unless set explicitly.
	GitLabURL    string `mapstructure:"gitlab_url"`
	AuthorizeURL string `mapstructure:"authorize_url"`
	TokenURL     string `mapstructure:"token_url"`
	APIURL       string `mapstructure:"api_url"`

	ClientID      string `mapstructure:"client_id"`
	ClientSecret  string `mapstructure:"client_secret"`
	CallbackURL   string `mapstructure:"callback_url"`
	FrontendURL   string `mapstructure:"frontend_url"`
	StatePassword string `mapstructure:"state_password"`
	// ServiceToken authenticates the avatar and issue proxies.
	ServiceToken string `mapstructure:"service_token"`

	AvatarEmailDomain string        `mapstructure:"avatar_email_domain"`
	State             string        `mapstructure:"state"`
	Scopes            []string      `mapstructure:"scopes"`
	SessionTTL        time.Duration `mapstructure:"session_ttl"`
}

// TrackerConfig configures the CLI's tracker client.
type TrackerConfig struct {
	// BaseURL is the tracker REST root, e.g. https://gitlab.com/api/v4.
	BaseURL   string `mapstructure:"base_url"`
	RelayURL  string `mapstructure:"relay_url"`
	ProjectID int64  `mapstructure:"project_id"`
	Token     string `mapstructure:"token"`
	// Session is a relay session token traded for an access token at startup.
	Session string        `mapstructure:"session"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// CORSConfig controls the relay's CORS headers.
type CORSConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
	Strict         bool     `mapstructure:"strict"`
}
