package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/threadline/threadline/internal/relay"
	"github.com/threadline/threadline/internal/statecodec"
)

const testPassword = "state-password"

// newUpstream fakes the OAuth provider and the tracker API.
func newUpstream(t *testing.T) *httptest.Server {
	t.Helper()

	mux := http.NewServeMux()
	var srv *httptest.Server

	mux.HandleFunc("POST /oauth/token", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "client", r.PostForm.Get("client_id"))
		assert.Equal(t, "secret", r.PostForm.Get("client_secret"))
		assert.Equal(t, "authorization_code", r.PostForm.Get("grant_type"))
		assert.Equal(t, "https://relay.example/authorized", r.PostForm.Get("redirect_uri"))

		if r.PostForm.Get("code") != "good" {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"error":"invalid_grant","detail":"upstream-secret-detail"}`))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"tok-123","token_type":"bearer"}`))
	})
	mux.HandleFunc("GET /api/v4/avatar", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "service-token", r.Header.Get("PRIVATE-TOKEN"))
		if r.URL.Query().Get("email") != "ada@example.com" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"avatar_url":"` + srv.URL + `/img/ada.png"}`))
	})
	mux.HandleFunc("GET /img/ada.png", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("\x89PNG-ada"))
	})
	mux.HandleFunc("POST /api/v4/projects/{id}/issues", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "service-token", r.Header.Get("PRIVATE-TOKEN"))
		switch r.PathValue("id") {
		case "403":
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusForbidden)
			_, _ = w.Write([]byte(`{"message":"403 Forbidden"}`))
		case "500":
			w.WriteHeader(http.StatusInternalServerError)
			_, _ = w.Write([]byte("<html>upstream-secret-detail</html>"))
		default:
			var body map[string]any
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			body["iid"] = 1
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusCreated)
			_ = json.NewEncoder(w).Encode(body)
		}
	})

	srv = httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func newTestRouter(t *testing.T, now func() time.Time) (http.Handler, *httptest.Server) {
	t.Helper()

	upstream := newUpstream(t)
	r, err := relay.New(relay.Config{
		ClientID:          "client",
		ClientSecret:      "secret",
		AuthorizeURL:      upstream.URL + "/oauth/authorize",
		TokenURL:          upstream.URL + "/oauth/token",
		CallbackURL:       "https://relay.example",
		FrontendURL:       "https://docs.example/index.html",
		StatePassword:     testPassword,
		ServiceToken:      "service-token",
		APIURL:            upstream.URL + "/api/v4",
		AvatarEmailDomain: "example.com",
		Clock:             now,
	})
	require.NoError(t, err)

	h := NewRelayHandler(r)
	router := chi.NewRouter()
	router.Get("/", h.Alive)
	router.Get("/authorize", h.Authorize)
	router.Get("/authorized", h.Authorized)
	router.Post("/token", h.Token)
	router.Get("/avatar/{username}", h.Avatar)
	router.Post("/projects/{projectId}/issues", h.CreateIssue)
	return router, upstream
}

func serve(handler http.Handler, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func errorBody(t *testing.T, rec *httptest.ResponseRecorder) (string, string) {
	t.Helper()
	var body struct {
		Error struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body.Error.Code, body.Error.Message
}

func TestAlive(t *testing.T) {
	router, _ := newTestRouter(t, nil)
	rec := serve(router, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "alive", rec.Body.String())
}

func TestAuthorizeRedirectsToProvider(t *testing.T) {
	router, upstream := newTestRouter(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/authorize?redirect_uri=https://docs.example/page", nil)
	req.Host = "relay.internal:7000"
	req.Header.Set("X-Forwarded-Proto", "https")
	rec := serve(router, req)

	require.Equal(t, http.StatusFound, rec.Code)
	location, err := url.Parse(rec.Header().Get("Location"))
	require.NoError(t, err)
	assert.Equal(t, upstream.URL+"/oauth/authorize", location.Scheme+"://"+location.Host+location.Path)

	query := location.Query()
	assert.Equal(t, "client", query.Get("client_id"))
	assert.Equal(t, "https://relay.internal:7000/authorized", query.Get("redirect_uri"))
	assert.Equal(t, "code", query.Get("response_type"))
	assert.Equal(t, "STATE", query.Get("state"))
	assert.Equal(t, "api read_user read_api read_repository write_repository", query.Get("scope"))
}

func TestAuthorizeRequiresRedirectURI(t *testing.T) {
	router, _ := newTestRouter(t, nil)
	rec := serve(router, httptest.NewRequest(http.MethodGet, "/authorize", nil))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	_, message := errorBody(t, rec)
	assert.Equal(t, `"redirect_uri" is required.`, message)
}

func TestAuthorizedIssuesSession(t *testing.T) {
	now := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	router, _ := newTestRouter(t, func() time.Time { return now })

	rec := serve(router, httptest.NewRequest(http.MethodGet, "/authorized?code=good", nil))
	require.Equal(t, http.StatusFound, rec.Code)

	location, err := url.Parse(rec.Header().Get("Location"))
	require.NoError(t, err)
	assert.Equal(t, "docs.example", location.Host)
	assert.Equal(t, "/index.html", location.Path)

	session := location.Query().Get("utterances")
	require.NotEmpty(t, session)

	token, err := statecodec.DecodeState(session, testPassword, now.Add(364*24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, "tok-123", token)

	_, err = statecodec.DecodeState(session, testPassword, now.Add(366*24*time.Hour))
	assert.ErrorIs(t, err, statecodec.ErrExpiredState)
}

func TestAuthorizedUpstreamFailureHidesBody(t *testing.T) {
	router, _ := newTestRouter(t, nil)

	rec := serve(router, httptest.NewRequest(http.MethodGet, "/authorized?code=bad", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "upstream-secret-detail")

	code, message := errorBody(t, rec)
	assert.Equal(t, "UPSTREAM_ERROR", code)
	assert.Equal(t, "Unable to load token from GitLab.", message)
}

func TestAuthorizedRequiresCode(t *testing.T) {
	router, _ := newTestRouter(t, nil)
	rec := serve(router, httptest.NewRequest(http.MethodGet, "/authorized", nil))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	_, message := errorBody(t, rec)
	assert.Equal(t, `"code" is required.`, message)
}

func TestTokenExchange(t *testing.T) {
	now := time.Now()
	router, _ := newTestRouter(t, func() time.Time { return now })

	session, err := statecodec.EncodeState("tok-123", testPassword, now.Add(time.Hour))
	require.NoError(t, err)
	expired, err := statecodec.EncodeState("tok-123", testPassword, now.Add(-time.Second))
	require.NoError(t, err)

	t.Run("json body", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/token", strings.NewReader(`{"session":"`+session+`"}`))
		req.Header.Set("Content-Type", "application/json")
		rec := serve(router, req)

		require.Equal(t, http.StatusOK, rec.Code)
		var token string
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &token))
		assert.Equal(t, "tok-123", token)
	})

	t.Run("form body", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/token", strings.NewReader(url.Values{"session": {session}}.Encode()))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		rec := serve(router, req)
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("missing session", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/token", strings.NewReader(`{}`))
		req.Header.Set("Content-Type", "application/json")
		rec := serve(router, req)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		_, message := errorBody(t, rec)
		assert.Equal(t, "Unable to parse body", message)
	})

	t.Run("expired", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/token", strings.NewReader(`{"session":"`+expired+`"}`))
		req.Header.Set("Content-Type", "application/json")
		rec := serve(router, req)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		code, message := errorBody(t, rec)
		assert.Equal(t, "EXPIRED_STATE", code)
		assert.Equal(t, "state is expired", message)
	})

	t.Run("tampered", func(t *testing.T) {
		last := session[len(session)-1:]
		replacement := "0"
		if last == "0" {
			replacement = "1"
		}
		tampered := session[:len(session)-1] + replacement

		req := httptest.NewRequest(http.MethodPost, "/token", strings.NewReader(`{"session":"`+tampered+`"}`))
		req.Header.Set("Content-Type", "application/json")
		rec := serve(router, req)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		code, message := errorBody(t, rec)
		assert.Equal(t, "INVALID_STATE", code)
		assert.Equal(t, "state is invalid", message)
	})
}

func TestAvatarProxy(t *testing.T) {
	router, _ := newTestRouter(t, nil)

	rec := serve(router, httptest.NewRequest(http.MethodGet, "/avatar/ada", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "image/png", rec.Header().Get("Content-Type"))
	assert.Equal(t, "\x89PNG-ada", rec.Body.String())

	rec = serve(router, httptest.NewRequest(http.MethodGet, "/avatar/nobody", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	_, message := errorBody(t, rec)
	assert.Equal(t, "Unable to fetch avatar from GitLab.", message)
}

func TestCreateIssueProxy(t *testing.T) {
	router, _ := newTestRouter(t, nil)

	post := func(project, body string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/projects/"+project+"/issues", strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		return serve(router, req)
	}

	rec := post("7", `{"title":"Intro","description":"# Intro","labels":["comments"]}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	var created map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	assert.Equal(t, "Intro", created["title"])
	assert.Equal(t, float64(1), created["iid"])

	rec = post("7", `{"title":"Intro"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	_, message := errorBody(t, rec)
	assert.Equal(t, "Title and description are required.", message)

	rec = post("403", `{"title":"Intro","description":"d"}`)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "403 Forbidden")
	code, message := errorBody(t, rec)
	assert.Equal(t, "UPSTREAM_ERROR", code)
	assert.Equal(t, "Unable to create issue in GitLab.", message)

	rec = post("500", `{"title":"Intro","description":"d"}`)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "upstream-secret-detail")
	_, message = errorBody(t, rec)
	assert.Equal(t, "Unable to create issue in GitLab.", message)
}
