package sdk

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/oauth2"
)

// OAuth scopes requested for service sessions.
const (
	ScopeDatastore     = "https://www.googleapis.com/auth/datastore"
	ScopeCloudPlatform = "https://www.googleapis.com/auth/cloud-platform"
)

// Token is a bearer token with its absolute expiry. RefreshToken is only
// set for user sessions that may refresh.
type Token struct {
	AccessToken  string
	Expiry       time.Time
	RefreshToken string
}

// Valid reports whether the token can be used for at least margin from
// now. A zero Expiry never expires.
func (t *Token) Valid(now time.Time, margin time.Duration) bool {
	if t == nil || t.AccessToken == "" {
		return false
	}
	if t.Expiry.IsZero() {
		return true
	}
	return now.Add(margin).Before(t.Expiry)
}

// Session supplies the project and a currently valid bearer token to the
// document client. ServiceSession and UserSession implement it; tests may
// inject their own.
type Session interface {
	ProjectID() string
	// AccessToken returns a token valid for at least the configured safety
	// margin, refreshing it first when needed.
	AccessToken(ctx context.Context) (string, error)
}

// refreshFunc obtains a new token. current is the cached token, possibly nil.
type refreshFunc func(ctx context.Context, current *Token) (*Token, error)

// tokenCache owns the token of one session. The mutex is held for the whole
// refresh, so concurrent callers that find the token stale wait for the
// single refresh in flight and then share its result.
type tokenCache struct {
	mu      sync.Mutex
	token   *Token
	margin  time.Duration
	refresh refreshFunc // nil disables refresh
	kind    string

	observer Observer
	logger   logrus.FieldLogger
	now      func() time.Time
}

func newTokenCache(kind string, config *Config, initial *Token, refresh refreshFunc) *tokenCache {
	return &tokenCache{
		token:    initial,
		margin:   config.TokenSafetyMargin,
		refresh:  refresh,
		kind:     kind,
		observer: config.Observer,
		logger:   config.Logger.WithField("session", kind),
		now:      time.Now,
	}
}

// get returns a copy of a valid token, refreshing when necessary
func (c *tokenCache) get(ctx context.Context) (Token, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.token.Valid(c.now(), c.margin) {
		return *c.token, nil
	}
	return c.refreshLocked(ctx)
}

// forceRefresh refreshes regardless of the cached token's validity
func (c *tokenCache) forceRefresh(ctx context.Context) (Token, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.refreshLocked(ctx)
}

func (c *tokenCache) refreshLocked(ctx context.Context) (Token, error) {
	if c.refresh == nil {
		return Token{}, &AuthenticationError{Message: "token expired and the session cannot refresh"}
	}

	start := time.Now()
	token, err := c.refresh(ctx, c.token)
	duration := time.Since(start)
	c.observer.OnTokenRefresh(c.kind, duration, err)
	if err != nil {
		c.logger.WithError(err).Warn("token refresh failed")
		return Token{}, err
	}

	c.token = token
	c.logger.WithFields(logrus.Fields{
		"expiry":   token.Expiry,
		"duration": duration,
	}).Debug("token refreshed")
	return *token, nil
}

// snapshot returns a copy of the cached token without refreshing
func (c *tokenCache) snapshot() Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.token == nil {
		return Token{}
	}
	return *c.token
}

// tokenResponse covers the token endpoint, identitytoolkit and securetoken
// response shapes.
type tokenResponse struct {
	AccessToken  string    `json:"access_token"`
	IDToken      string    `json:"idToken"`
	IDTokenAlt   string    `json:"id_token"`
	RefreshToken string    `json:"refresh_token"`
	RefreshAlt   string    `json:"refreshToken"`
	ExpiresIn    expiresIn `json:"expires_in"`
	ExpiresInAlt expiresIn `json:"expiresIn"`
	UserID       string    `json:"user_id"`
	LocalID      string    `json:"localId"`
}

// expiresIn accepts both a JSON number and a numeric string of seconds
type expiresIn int64

func (e *expiresIn) UnmarshalJSON(data []byte) error {
	var n int64
	if err := json.Unmarshal(data, &n); err == nil {
		*e = expiresIn(n)
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return err
	}
	*e = expiresIn(n)
	return nil
}

// token converts the response, preferring the id token for user flows
func (r *tokenResponse) token(now time.Time) (*Token, error) {
	access := firstNonEmpty(r.IDToken, r.IDTokenAlt, r.AccessToken)
	if access == "" {
		return nil, &AuthenticationError{Message: "token response carries no token"}
	}
	seconds := int64(r.ExpiresIn)
	if seconds == 0 {
		seconds = int64(r.ExpiresInAlt)
	}
	if seconds <= 0 {
		seconds = 3600
	}
	return &Token{
		AccessToken:  access,
		Expiry:       now.Add(time.Duration(seconds) * time.Second),
		RefreshToken: firstNonEmpty(r.RefreshToken, r.RefreshAlt),
	}, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// exchangeToken performs one token request. 4xx answers become
// AuthenticationError; transport failures, 429 and 5xx are returned as is
// so the caller's executor can retry them.
func exchangeToken(ctx context.Context, t *httpTransport, r request) (*tokenResponse, error) {
	var resp tokenResponse
	status, err := t.do(ctx, r, &resp)
	if err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && status >= http.StatusBadRequest && !apiErr.IsRetryable() {
			return nil, &AuthenticationError{Message: "token exchange rejected", Err: apiErr}
		}
		return nil, err
	}
	return &resp, nil
}

// TokenSource adapts a session to oauth2.TokenSource, so the session can
// authorize any other Google API client.
//
// Example:
//
//	httpClient := oauth2.NewClient(ctx, sdk.TokenSource(ctx, session))
func TokenSource(ctx context.Context, session Session) oauth2.TokenSource {
	return &sessionTokenSource{ctx: ctx, session: session}
}

type sessionTokenSource struct {
	ctx     context.Context
	session Session
}

// Token implements oauth2.TokenSource. The session does its own caching, so
// the returned token carries no expiry.
func (s *sessionTokenSource) Token() (*oauth2.Token, error) {
	access, err := s.session.AccessToken(s.ctx)
	if err != nil {
		return nil, err
	}
	return &oauth2.Token{AccessToken: access, TokenType: "Bearer"}, nil
}
