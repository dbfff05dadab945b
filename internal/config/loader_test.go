package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newViper(t *testing.T) *viper.Viper {
	t.Helper()
	v := viper.New()
	SetDefaults(v)
	require.NoError(t, BindEnv(v))
	return v
}

func TestLoad(t *testing.T) {
	t.Run("LoadDefaults", func(t *testing.T) {
		cfg, err := Load(newViper(t))
		require.NoError(t, err)
		require.NotNil(t, cfg)

		assert.Equal(t, "localhost", cfg.Server.Host)
		assert.Equal(t, 3000, cfg.Server.Port)
		assert.Equal(t, 30*time.Second, cfg.Server.ReadTimeout)
		assert.Equal(t, 120*time.Second, cfg.Server.IdleTimeout)
		assert.Equal(t, 10*time.Second, cfg.Server.ShutdownTimeout)

		assert.Equal(t, "info", cfg.Logging.Level)
		assert.True(t, cfg.Metrics.Enabled)
		assert.Equal(t, 9090, cfg.Metrics.Port)

		assert.Equal(t, "https://gitlab.com/oauth/authorize", cfg.Relay.AuthorizeURL)
		assert.Equal(t, "https://gitlab.com/oauth/token", cfg.Relay.TokenURL)
		assert.Equal(t, "https://gitlab.com/api/v4", cfg.Relay.APIURL)
		assert.Equal(t, "STATE", cfg.Relay.State)
		assert.Equal(t, []string{"api", "read_user", "read_api", "read_repository", "write_repository"}, cfg.Relay.Scopes)
		assert.Equal(t, 365*24*time.Hour, cfg.Relay.SessionTTL)

		assert.Equal(t, 30*time.Second, cfg.Tracker.Timeout)
		assert.Same(t, cfg, GetConfig())
	})

	t.Run("EnvironmentOverrides", func(t *testing.T) {
		t.Setenv("THREADLINE_SERVER_PORT", "9000")
		t.Setenv("THREADLINE_RELAY_GITLAB_URL", "https://git.example/")
		t.Setenv("THREADLINE_CORS_ALLOWED_ORIGINS", "https://a.example, https://b.example")
		t.Setenv("THREADLINE_TRACKER_PROJECT_ID", "42")

		cfg, err := Load(newViper(t))
		require.NoError(t, err)

		assert.Equal(t, 9000, cfg.Server.Port)
		assert.Equal(t, "https://git.example/oauth/token", cfg.Relay.TokenURL)
		assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.CORS.AllowedOrigins)
		assert.Equal(t, int64(42), cfg.Tracker.ProjectID)
	})

	t.Run("LegacyVariableNames", func(t *testing.T) {
		t.Setenv("client_id", "legacy-client")
		t.Setenv("client_secret", "legacy-secret")
		t.Setenv("Callback_URL", "https://relay.example")
		t.Setenv("state_password", "pw")
		t.Setenv("Access_Token", "svc")

		cfg, err := Load(newViper(t))
		require.NoError(t, err)

		assert.Equal(t, "legacy-client", cfg.Relay.ClientID)
		assert.Equal(t, "legacy-secret", cfg.Relay.ClientSecret)
		assert.Equal(t, "https://relay.example", cfg.Relay.CallbackURL)
		assert.Equal(t, "pw", cfg.Relay.StatePassword)
		assert.Equal(t, "svc", cfg.Relay.ServiceToken)
	})

	t.Run("PrefixedNameWinsOverLegacy", func(t *testing.T) {
		t.Setenv("client_id", "legacy-client")
		t.Setenv("THREADLINE_RELAY_CLIENT_ID", "new-client")

		cfg, err := Load(newViper(t))
		require.NoError(t, err)
		assert.Equal(t, "new-client", cfg.Relay.ClientID)
	})

	t.Run("ExplicitURLsAreKept", func(t *testing.T) {
		v := newViper(t)
		v.Set("relay.authorize_url", "https://sso.example/authorize")

		cfg, err := Load(v)
		require.NoError(t, err)
		assert.Equal(t, "https://sso.example/authorize", cfg.Relay.AuthorizeURL)
		assert.Equal(t, "https://gitlab.com/oauth/token", cfg.Relay.TokenURL)
	})

	t.Run("ConfigFile", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "config.yaml")
		require.NoError(t, os.WriteFile(path, []byte(`
server:
  port: 4000
relay:
  frontend_url: https://docs.example/index.html
  session_ttl: 2h
cors:
  allowed_origins:
    - https://docs.example
  strict: true
`), 0o600))

		v := newViper(t)
		v.SetConfigFile(path)
		require.NoError(t, v.ReadInConfig())

		cfg, err := Load(v)
		require.NoError(t, err)
		assert.Equal(t, 4000, cfg.Server.Port)
		assert.Equal(t, "https://docs.example/index.html", cfg.Relay.FrontendURL)
		assert.Equal(t, 2*time.Hour, cfg.Relay.SessionTTL)
		assert.Equal(t, []string{"https://docs.example"}, cfg.CORS.AllowedOrigins)
		assert.True(t, cfg.CORS.Strict)
	})
}

func TestValidate(t *testing.T) {
	cfg, err := Decode(map[string]any{})
	require.NoError(t, err)

	err = cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "relay.client_id")
	assert.Contains(t, err.Error(), "relay.state_password")

	cfg.Relay = RelayConfig{
		ClientID:      "id",
		ClientSecret:  "secret",
		CallbackURL:   "https://relay.example",
		FrontendURL:   "https://docs.example",
		StatePassword: "pw",
	}
	assert.NoError(t, cfg.Validate())

	cfg.Server.Port = 70000
	assert.Error(t, cfg.Validate())
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(path, []byte("THREADLINE_DOTENV_PROBE=from-file\n"), 0o600))
	t.Cleanup(func() { _ = os.Unsetenv("THREADLINE_DOTENV_PROBE") })

	require.NoError(t, LoadDotEnv(filepath.Join(dir, "missing.env"), path))
	assert.Equal(t, "from-file", os.Getenv("THREADLINE_DOTENV_PROBE"))
}
