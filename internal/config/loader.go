// Package config provides centralized configuration management for threadline.
// Values come from viper (defaults, config file, environment, flags) and are
// decoded into Config with mapstructure.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/go-viper/mapstructure/v2"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. THREADLINE_SERVER_PORT.
const EnvPrefix = "THREADLINE"

// AppName names the config directory and the binary.
const AppName = "threadline"

var (
	// appConfig holds the current application configuration
	appConfig *Config
	configMu  sync.RWMutex
)

// legacyEnv maps config keys to the bare variable names older relay
// deployments export.
var legacyEnv = map[string]string{
	"relay.client_id":      "client_id",
	"relay.client_secret":  "client_secret",
	"relay.callback_url":   "Callback_URL",
	"relay.state_password": "state_password",
	"relay.service_token":  "Access_Token",
}

// SetDefaults registers default values on v.
func SetDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.host", "localhost")
	v.SetDefault("server.port", 3000)
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "30s")
	v.SetDefault("server.idle_timeout", "120s")
	v.SetDefault("server.shutdown_timeout", "10s")
	v.SetDefault("server.admin_token", "")

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.profile", "structured")

	// Metrics defaults
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.port", 9090)

	// Relay defaults
	v.SetDefault("relay.gitlab_url", "https://gitlab.com")
	v.SetDefault("relay.authorize_url", "")
	v.SetDefault("relay.token_url", "")
	v.SetDefault("relay.api_url", "")
	v.SetDefault("relay.client_id", "")
	v.SetDefault("relay.client_secret", "")
	v.SetDefault("relay.callback_url", "")
	v.SetDefault("relay.frontend_url", "")
	v.SetDefault("relay.state_password", "")
	v.SetDefault("relay.service_token", "")
	v.SetDefault("relay.avatar_email_domain", "")
	v.SetDefault("relay.state", "STATE")
	v.SetDefault("relay.scopes", []string{"api", "read_user", "read_api", "read_repository", "write_repository"})
	v.SetDefault("relay.session_ttl", "8760h")

	// Tracker client defaults
	v.SetDefault("tracker.base_url", "https://gitlab.com/api/v4")
	v.SetDefault("tracker.relay_url", "")
	v.SetDefault("tracker.project_id", 0)
	v.SetDefault("tracker.token", "")
	v.SetDefault("tracker.session", "")
	v.SetDefault("tracker.timeout", "30s")

	// CORS defaults
	v.SetDefault("cors.allowed_origins", []string{})
	v.SetDefault("cors.strict", false)
}

// BindEnv enables THREADLINE_* overrides and the legacy variable names.
func BindEnv(v *viper.Viper) error {
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	for key, legacy := range legacyEnv {
		prefixed := EnvPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		if err := v.BindEnv(key, prefixed, legacy); err != nil {
			return fmt.Errorf("bind %s: %w", key, err)
		}
	}
	return nil
}

// LoadDotEnv loads KEY=VALUE pairs from the given files into the process
// environment. Missing files are skipped; variables already set win.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, path := range paths {
		if err := godotenv.Load(path); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("load %s: %w", path, err)
		}
	}
	return nil
}

// Load decodes the settings held by v into a Config and stores it as the
// current configuration.
func Load(v *viper.Viper) (*Config, error) {
	cfg, err := Decode(v.AllSettings())
	if err != nil {
		return nil, err
	}
	setConfig(cfg)
	return cfg, nil
}

// Decode converts a settings map into a Config and fills derived URLs.
func Decode(settings map[string]any) (*Config, error) {
	cfg := &Config{}
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           cfg,
		WeaklyTypedInput: true,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create decoder: %w", err)
	}

	if err := decoder.Decode(settings); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	cfg.Relay.deriveURLs()
	cfg.CORS.AllowedOrigins = compact(cfg.CORS.AllowedOrigins)
	cfg.Relay.Scopes = compact(cfg.Relay.Scopes)
	return cfg, nil
}

func (r *RelayConfig) deriveURLs() {
	base := strings.TrimRight(strings.TrimSpace(r.GitLabURL), "/")
	if base == "" {
		return
	}
	if r.AuthorizeURL == "" {
		r.AuthorizeURL = base + "/oauth/authorize"
	}
	if r.TokenURL == "" {
		r.TokenURL = base + "/oauth/token"
	}
	if r.APIURL == "" {
		r.APIURL = base + "/api/v4"
	}
}

// Validate reports the relay settings serve cannot start without.
func (c *Config) Validate() error {
	required := []struct {
		key   string
		value string
	}{
		{"relay.client_id", c.Relay.ClientID},
		{"relay.client_secret", c.Relay.ClientSecret},
		{"relay.callback_url", c.Relay.CallbackURL},
		{"relay.frontend_url", c.Relay.FrontendURL},
		{"relay.state_password", c.Relay.StatePassword},
	}

	var missing []string
	for _, r := range required {
		if strings.TrimSpace(r.value) == "" {
			missing = append(missing, r.key)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required configuration: %s", strings.Join(missing, ", "))
	}
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port out of range: %d", c.Server.Port)
	}
	return nil
}

// GetConfig returns the current application configuration (thread-safe)
func GetConfig() *Config {
	configMu.RLock()
	defer configMu.RUnlock()
	return appConfig
}

// setConfig updates the current configuration (thread-safe)
func setConfig(cfg *Config) {
	configMu.Lock()
	defer configMu.Unlock()
	appConfig = cfg
}

// DefaultConfigDir returns $XDG_CONFIG_HOME/threadline or its platform
// equivalent, or "" when it cannot be resolved.
func DefaultConfigDir() string {
	dir, err := os.UserConfigDir()
	if err != nil || strings.TrimSpace(dir) == "" {
		return ""
	}
	return filepath.Join(dir, AppName)
}

func compact(values []string) []string {
	out := values[:0]
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}
