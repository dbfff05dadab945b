package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/threadline/threadline/internal/errors"
	"github.com/threadline/threadline/internal/relay"
	servermw "github.com/threadline/threadline/internal/server/middleware"
)

func testRelay(t *testing.T) *relay.Relay {
	t.Helper()
	r, err := relay.New(relay.Config{
		ClientID:      "client",
		ClientSecret:  "secret",
		AuthorizeURL:  "https://gitlab.example/oauth/authorize",
		TokenURL:      "https://gitlab.example/oauth/token",
		CallbackURL:   "https://relay.example",
		FrontendURL:   "https://docs.example/",
		StatePassword: "pw",
	})
	require.NoError(t, err)
	return r
}

func TestServerUsesStandardErrorHandlers(t *testing.T) {
	srv := New(Options{Host: "127.0.0.1"})

	req := httptest.NewRequest(http.MethodGet, "/does-not-exist", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusNotFound, rec.Code)

	var body apperrors.HTTPErrorResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, "NOT_FOUND", body.Error.Code)
}

func TestServerMethodNotAllowed(t *testing.T) {
	srv := New(Options{Relay: testRelay(t)})

	req := httptest.NewRequest(http.MethodGet, "/token", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusMethodNotAllowed, rec.Code)

	var body apperrors.HTTPErrorResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, "METHOD_NOT_ALLOWED", body.Error.Code)
}

func TestServerMountsRelayRoutes(t *testing.T) {
	srv := New(Options{
		Relay: testRelay(t),
		CORS:  servermw.CORSConfig{AllowedOrigins: []string{"https://docs.example"}},
	})

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "alive", rec.Body.String())
	assert.Equal(t, "https://docs.example", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))

	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/authorize?redirect_uri=x", nil))
	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Contains(t, rec.Header().Get("Location"), "https://gitlab.example/oauth/authorize")
}

func TestServerWithoutRelayHasNoRelayRoutes(t *testing.T) {
	srv := New(Options{})

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/authorize?redirect_uri=x", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestServerAnswersPreflightOnAnyPath(t *testing.T) {
	srv := New(Options{Relay: testRelay(t)})

	req := httptest.NewRequest(http.MethodOptions, "/projects/7/issues", nil)
	req.Header.Set("Origin", "https://blog.example")
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Body.String())
	assert.Equal(t, "https://blog.example", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "GET, POST, OPTIONS", rec.Header().Get("Access-Control-Allow-Methods"))
}

func TestAdminEndpointRequiresToken(t *testing.T) {
	disabled := New(Options{})
	rec := httptest.NewRecorder()
	disabled.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/admin/signal", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	enabled := New(Options{AdminToken: "secret"})
	rec = httptest.NewRecorder()
	enabled.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/admin/signal", nil))
	assert.NotEqual(t, http.StatusNotFound, rec.Code)
}
