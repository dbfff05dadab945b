package relay

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/threadline/threadline/internal/statecodec"
)

func testConfig() Config {
	return Config{
		ClientID:      "client",
		ClientSecret:  "secret",
		AuthorizeURL:  "https://git.example/oauth/authorize",
		TokenURL:      "https://git.example/oauth/token",
		CallbackURL:   "https://relay.example/",
		FrontendURL:   "https://docs.example/page",
		StatePassword: "pw",
	}
}

func TestNewReportsMissingSettings(t *testing.T) {
	_, err := New(Config{ClientID: "client"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "client secret")
	assert.Contains(t, err.Error(), "state password")
	assert.NotContains(t, err.Error(), "client id")
}

func TestNewAppliesDefaults(t *testing.T) {
	r, err := New(testConfig())
	require.NoError(t, err)
	assert.Equal(t, DefaultState, r.state)
	assert.Equal(t, DefaultScopes, r.oauth.Scopes)
	assert.Equal(t, DefaultSessionTTL, r.sessionTTL)
	assert.Equal(t, "https://relay.example"+AuthorizedPath, r.oauth.RedirectURL)
	require.NoError(t, r.CheckHealth(context.Background()))
}

func TestAuthorizeURLUsesRequestBase(t *testing.T) {
	r, err := New(testConfig())
	require.NoError(t, err)

	u, err := url.Parse(r.AuthorizeURL("http://localhost:3000/"))
	require.NoError(t, err)
	q := u.Query()
	assert.Equal(t, "git.example", u.Host)
	assert.Equal(t, "client", q.Get("client_id"))
	assert.Equal(t, "code", q.Get("response_type"))
	assert.Equal(t, DefaultState, q.Get("state"))
	assert.Equal(t, "http://localhost:3000"+AuthorizedPath, q.Get("redirect_uri"))
}

func TestDecodeSession(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	cfg := testConfig()
	cfg.Clock = func() time.Time { return now }
	r, err := New(cfg)
	require.NoError(t, err)

	_, err = r.DecodeSession(" ")
	require.ErrorIs(t, err, ErrMissingParameter)

	session, err := statecodec.EncodeState("user-token", "pw", now.Add(time.Hour))
	require.NoError(t, err)
	token, err := r.DecodeSession(session)
	require.NoError(t, err)
	assert.Equal(t, "user-token", token)

	stale, err := statecodec.EncodeState("user-token", "pw", now.Add(-time.Minute))
	require.NoError(t, err)
	_, err = r.DecodeSession(stale)
	require.ErrorIs(t, err, statecodec.ErrExpiredState)
}

func TestCompleteAuthorizationRequiresCode(t *testing.T) {
	r, err := New(testConfig())
	require.NoError(t, err)
	_, err = r.CompleteAuthorization(context.Background(), "")
	require.ErrorIs(t, err, ErrMissingParameter)
}

func TestCreateIssueRejectsErrorAnswers(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/api/v4/projects/7/issues":
			w.WriteHeader(http.StatusCreated)
			_, _ = w.Write([]byte(`{"iid":1}`))
		default:
			w.WriteHeader(http.StatusForbidden)
			_, _ = w.Write([]byte(`{"message":"403 Forbidden"}`))
		}
	}))
	t.Cleanup(srv.Close)

	cfg := testConfig()
	cfg.APIURL = srv.URL + "/api/v4"
	cfg.ServiceToken = "service-token"
	r, err := New(cfg)
	require.NoError(t, err)

	issue := IssueRequest{Title: "Intro", Description: "# Intro"}
	resp, err := r.CreateIssue(context.Background(), "7", issue)
	require.NoError(t, err)
	assert.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.JSONEq(t, `{"iid":1}`, string(resp.Body))

	resp, err = r.CreateIssue(context.Background(), "8", issue)
	require.Error(t, err)
	assert.Nil(t, resp)
	var upstream *UpstreamError
	require.True(t, errors.As(err, &upstream))
	assert.Equal(t, http.StatusForbidden, upstream.StatusCode)
	assert.Contains(t, upstream.Body, "403 Forbidden")
}
