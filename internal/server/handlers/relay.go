package handlers

import (
	"encoding/json"
	"errors"
	"mime"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	apperrors "github.com/threadline/threadline/internal/errors"
	"github.com/threadline/threadline/internal/relay"
	"github.com/threadline/threadline/internal/statecodec"
)

// maxBodyBytes bounds request bodies accepted by the relay.
const maxBodyBytes = 1 << 20

// RelayHandler serves the OAuth relay endpoints.
type RelayHandler struct {
	relay *relay.Relay
}

// NewRelayHandler returns handlers backed by r.
func NewRelayHandler(r *relay.Relay) *RelayHandler {
	return &RelayHandler{relay: r}
}

// Alive answers the root liveness check.
func (h *RelayHandler) Alive(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("alive"))
}

// Authorize redirects the browser to the provider's login page.
func (h *RelayHandler) Authorize(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("redirect_uri") == "" {
		respondWithError(w, r, apperrors.NewInvalidInputError(`"redirect_uri" is required.`))
		return
	}
	http.Redirect(w, r, h.relay.AuthorizeURL(requestBase(r)), http.StatusFound)
}

// Authorized completes the code exchange and sends the browser back to the
// frontend with a session token.
func (h *RelayHandler) Authorized(w http.ResponseWriter, r *http.Request) {
	code := r.URL.Query().Get("code")
	if code == "" {
		respondWithError(w, r, apperrors.NewInvalidInputError(`"code" is required.`))
		return
	}

	target, err := h.relay.CompleteAuthorization(r.Context(), code)
	if err != nil {
		respondWithError(w, r, apperrors.WrapUpstream(r.Context(), err, "Unable to load token from GitLab."))
		return
	}
	http.Redirect(w, r, target, http.StatusFound)
}

// Token trades a session token for the access token it carries.
func (h *RelayHandler) Token(w http.ResponseWriter, r *http.Request) {
	session, err := readSession(w, r)
	if err != nil || session == "" {
		respondWithError(w, r, apperrors.WrapInvalidInput(r.Context(), err, "Unable to parse body"))
		return
	}

	token, err := h.relay.DecodeSession(session)
	switch {
	case errors.Is(err, statecodec.ErrExpiredState):
		respondWithError(w, r, apperrors.WrapExpiredState(r.Context(), err, statecodec.ErrExpiredState.Error()))
		return
	case err != nil:
		respondWithError(w, r, apperrors.WrapInvalidState(r.Context(), err, statecodec.ErrInvalidState.Error()))
		return
	}

	writeJSON(w, http.StatusOK, token)
}

// Avatar proxies a user's avatar image.
func (h *RelayHandler) Avatar(w http.ResponseWriter, r *http.Request) {
	username := chi.URLParam(r, "username")
	image, err := h.relay.Avatar(r.Context(), username)
	if errors.Is(err, relay.ErrMissingParameter) {
		respondWithError(w, r, apperrors.WrapInvalidInput(r.Context(), err, `"username" is required.`))
		return
	}
	if err != nil {
		respondWithError(w, r, apperrors.WrapUpstream(r.Context(), err, "Unable to fetch avatar from GitLab."))
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(image)
}

// CreateIssue opens an issue with the relay's service credential and mirrors
// the tracker's successful answer.
func (h *RelayHandler) CreateIssue(w http.ResponseWriter, r *http.Request) {
	var issue relay.IssueRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&issue); err != nil {
		respondWithError(w, r, apperrors.WrapInvalidInput(r.Context(), err, "Unable to parse body"))
		return
	}

	resp, err := h.relay.CreateIssue(r.Context(), chi.URLParam(r, "projectId"), issue)
	if errors.Is(err, relay.ErrMissingParameter) {
		respondWithError(w, r, apperrors.WrapInvalidInput(r.Context(), err, "Title and description are required."))
		return
	}
	if err != nil {
		respondWithError(w, r, apperrors.WrapUpstream(r.Context(), err, "Unable to create issue in GitLab."))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(resp.StatusCode)
	_, _ = w.Write(resp.Body)
}

// readSession accepts the session as JSON or as a form field.
func readSession(w http.ResponseWriter, r *http.Request) (string, error) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "application/json" {
		var body struct {
			Session string `json:"session"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			return "", err
		}
		return strings.TrimSpace(body.Session), nil
	}

	if err := r.ParseForm(); err != nil {
		return "", err
	}
	return strings.TrimSpace(r.PostForm.Get("session")), nil
}

// requestBase is the scheme and host the caller used to reach the relay.
func requestBase(r *http.Request) string {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if forwarded := r.Header.Get("X-Forwarded-Proto"); forwarded != "" {
		scheme = strings.TrimSpace(strings.Split(forwarded, ",")[0])
	}
	return scheme + "://" + r.Host
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondWithError(w http.ResponseWriter, r *http.Request, err error) {
	apperrors.RespondWithError(w, r, err)
}
