// Package relay performs the OAuth code exchange for the widget and seals the
// resulting access token into a self-contained session token. It holds no
// per-user state; everything a request needs travels in the token.
package relay

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"slices"
	"strings"
	"time"

	"github.com/fulmenhq/gofulmen/logging"
	"go.uber.org/zap"
	"golang.org/x/oauth2"

	"github.com/threadline/threadline/internal/metrics"
	"github.com/threadline/threadline/internal/statecodec"
)

// DefaultScopes are requested on every authorization.
var DefaultScopes = []string{"api", "read_user", "read_api", "read_repository", "write_repository"}

const (
	// DefaultState is sent as the OAuth state parameter.
	DefaultState = "STATE"
	// DefaultSessionTTL is how long an issued session token stays valid.
	DefaultSessionTTL = 365 * 24 * time.Hour
	// SessionParam carries the session token back to the frontend.
	SessionParam = "utterances"
	// AuthorizedPath is the relay route the provider redirects back to.
	AuthorizedPath = "/authorized"
)

// ErrMissingParameter is returned when a required request value is absent.
var ErrMissingParameter = errors.New("missing parameter")

// UpstreamError reports a failed call to the tracker or OAuth provider. Body
// is kept for logs only and is excluded from Error.
type UpstreamError struct {
	Op         string
	StatusCode int
	Body       string
	Err        error
}

func (e *UpstreamError) Error() string {
	switch {
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	case e.StatusCode != 0:
		return fmt.Sprintf("%s: upstream status %d", e.Op, e.StatusCode)
	default:
		return e.Op + ": upstream failure"
	}
}

func (e *UpstreamError) Unwrap() error {
	return e.Err
}

// Config configures a Relay.
type Config struct {
	ClientID     string
	ClientSecret string
	AuthorizeURL string
	TokenURL     string
	// CallbackURL is the public base URL of the relay as registered with the
	// provider.
	CallbackURL string
	// FrontendURL receives the session token after a successful login.
	FrontendURL   string
	StatePassword string
	// ServiceToken authenticates the avatar and issue proxies.
	ServiceToken string
	// APIURL is the tracker REST root, e.g. https://gitlab.example.com/api/v4.
	APIURL            string
	AvatarEmailDomain string
	State             string
	Scopes            []string
	SessionTTL        time.Duration

	HTTPClient *http.Client
	Logger     *logging.Logger
	Clock      func() time.Time
}

// Relay is the stateless OAuth relay.
type Relay struct {
	oauth        *oauth2.Config
	codec        *statecodec.Codec
	state        string
	frontendURL  string
	serviceToken string
	apiURL       string
	emailDomain  string
	sessionTTL   time.Duration
	httpClient   *http.Client
	logger       *logging.Logger
}

// New validates cfg and returns a Relay.
func New(cfg Config) (*Relay, error) {
	var missing []string
	for name, value := range map[string]string{
		"client id":      cfg.ClientID,
		"client secret":  cfg.ClientSecret,
		"authorize url":  cfg.AuthorizeURL,
		"token url":      cfg.TokenURL,
		"callback url":   cfg.CallbackURL,
		"frontend url":   cfg.FrontendURL,
		"state password": cfg.StatePassword,
	} {
		if strings.TrimSpace(value) == "" {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		slices.Sort(missing)
		return nil, fmt.Errorf("relay: missing %s", strings.Join(missing, ", "))
	}

	scopes := cfg.Scopes
	if len(scopes) == 0 {
		scopes = DefaultScopes
	}
	state := cfg.State
	if state == "" {
		state = DefaultState
	}
	ttl := cfg.SessionTTL
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}

	codec := statecodec.New(cfg.StatePassword)
	codec.Clock = cfg.Clock

	return &Relay{
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			Endpoint: oauth2.Endpoint{
				AuthURL:   cfg.AuthorizeURL,
				TokenURL:  cfg.TokenURL,
				AuthStyle: oauth2.AuthStyleInParams,
			},
			RedirectURL: strings.TrimRight(cfg.CallbackURL, "/") + AuthorizedPath,
			Scopes:      scopes,
		},
		codec:        codec,
		state:        state,
		frontendURL:  cfg.FrontendURL,
		serviceToken: cfg.ServiceToken,
		apiURL:       strings.TrimRight(cfg.APIURL, "/"),
		emailDomain:  cfg.AvatarEmailDomain,
		sessionTTL:   ttl,
		httpClient:   httpClient,
		logger:       cfg.Logger,
	}, nil
}

// AuthorizeURL is the provider login URL. The provider sends the user back to
// AuthorizedPath under relayBase, the origin the browser used to reach the
// relay.
func (r *Relay) AuthorizeURL(relayBase string) string {
	redirect := strings.TrimRight(relayBase, "/") + AuthorizedPath
	return r.oauth.AuthCodeURL(r.state, oauth2.SetAuthURLParam("redirect_uri", redirect))
}

// CompleteAuthorization exchanges code for an access token and returns the
// frontend URL carrying the sealed session token.
func (r *Relay) CompleteAuthorization(ctx context.Context, code string) (string, error) {
	if strings.TrimSpace(code) == "" {
		return "", fmt.Errorf("%w: code", ErrMissingParameter)
	}

	ctx = context.WithValue(ctx, oauth2.HTTPClient, r.httpClient)
	token, err := r.oauth.Exchange(ctx, code)
	if err != nil {
		upstream := &UpstreamError{Op: "exchange code", Err: err}
		var retrieveErr *oauth2.RetrieveError
		if errors.As(err, &retrieveErr) {
			upstream.Err = nil
			upstream.Body = string(retrieveErr.Body)
			if retrieveErr.Response != nil {
				upstream.StatusCode = retrieveErr.Response.StatusCode
			}
		}
		r.logUpstream(upstream)
		metrics.RecordTokenExchange(metrics.OutcomeFailure)
		return "", upstream
	}
	metrics.RecordTokenExchange(metrics.OutcomeSuccess)

	session, err := r.codec.Encode(token.AccessToken, r.sessionTTL)
	if err != nil {
		return "", fmt.Errorf("seal session: %w", err)
	}

	target, err := url.Parse(r.frontendURL)
	if err != nil {
		return "", fmt.Errorf("parse frontend url: %w", err)
	}
	query := target.Query()
	query.Set(SessionParam, session)
	target.RawQuery = query.Encode()

	if r.logger != nil {
		r.logger.Info("Issued session token", zap.String("frontend", target.Host))
	}
	return target.String(), nil
}

// DecodeSession opens a session token and returns the access token inside.
// Errors wrap statecodec.ErrInvalidState or statecodec.ErrExpiredState.
func (r *Relay) DecodeSession(session string) (string, error) {
	if strings.TrimSpace(session) == "" {
		return "", fmt.Errorf("%w: session", ErrMissingParameter)
	}

	token, err := r.codec.Decode(session)
	switch {
	case errors.Is(err, statecodec.ErrExpiredState):
		metrics.RecordStateDecode(metrics.OutcomeExpired)
	case err != nil:
		metrics.RecordStateDecode(metrics.OutcomeInvalid)
	default:
		metrics.RecordStateDecode(metrics.OutcomeSuccess)
	}
	return token, err
}

// CheckHealth reports whether the relay can reach a usable configuration.
func (r *Relay) CheckHealth(ctx context.Context) error {
	if r == nil || r.oauth == nil {
		return errors.New("relay not configured")
	}
	return nil
}

func (r *Relay) logUpstream(err *UpstreamError) {
	if r.logger == nil {
		return
	}
	r.logger.Error("Upstream request failed",
		zap.String("op", err.Op),
		zap.Int("status", err.StatusCode),
		zap.String("body", err.Body),
		zap.Error(err.Err))
}
