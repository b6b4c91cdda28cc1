package sdk

import (
	"context"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const customTokenAudience = "https://identitytoolkit.googleapis.com/google.identity.identitytoolkit.v1.IdentityToolkit"

// UserSession authenticates as an end user. It is created by exactly one of
// NewUserSessionByUserID, NewUserSessionByRefreshToken or
// NewUserSessionByAccessToken. Only sessions holding a refresh token can
// refresh.
type UserSession struct {
	creds     *Credentials
	config    *Config
	transport *httpTransport
	cache     *tokenCache

	mu     sync.RWMutex
	userID string
}

func newUserSession(creds *Credentials, config *Config) (*UserSession, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if creds == nil || creds.ProjectID == "" {
		return nil, &AuthenticationError{Message: "credentials have no project_id"}
	}
	return &UserSession{
		creds:     creds,
		config:    config,
		transport: newHTTPTransport(config),
	}, nil
}

// NewUserSessionByUserID signs in as userID with a custom token signed by
// the service account. It is meant for controlled environments such as
// integration tests. When withRefreshToken is false the refresh token is
// discarded and the session cannot refresh.
//
// The credentials must carry an API key.
func NewUserSessionByUserID(ctx context.Context, creds *Credentials, userID string, withRefreshToken bool, config *Config) (*UserSession, error) {
	s, err := newUserSession(creds, config)
	if err != nil {
		return nil, err
	}
	if creds.APIKey == "" {
		return nil, &AuthenticationError{Message: "signing in with a custom token requires an API key"}
	}

	now := time.Now()
	customToken, err := creds.sign(jwt.MapClaims{
		"iss": creds.ClientEmail,
		"sub": creds.ClientEmail,
		"aud": customTokenAudience,
		"iat": now.Unix(),
		"exp": now.Add(time.Hour).Unix(),
		"uid": userID,
	})
	if err != nil {
		return nil, err
	}

	r, err := jsonRequest(http.MethodPost,
		s.config.IdentityToolkitURL+"/accounts:signInWithCustomToken?key="+url.QueryEscape(creds.APIKey),
		"sign in "+userID,
		map[string]interface{}{"token": customToken, "returnSecureToken": true})
	if err != nil {
		return nil, err
	}
	resp, err := exchangeToken(ctx, s.transport, r)
	if err != nil {
		return nil, err
	}
	token, err := resp.token(now)
	if err != nil {
		return nil, err
	}

	s.userID = firstNonEmpty(resp.LocalID, resp.UserID, userID)
	var refresh refreshFunc
	if withRefreshToken && token.RefreshToken != "" {
		refresh = s.refresh
	} else {
		token.RefreshToken = ""
	}
	s.cache = newTokenCache("user", s.config, token, refresh)
	return s, nil
}

// NewUserSessionByRefreshToken exchanges a refresh token, typically one
// persisted from an earlier session, for a new access token.
func NewUserSessionByRefreshToken(ctx context.Context, creds *Credentials, refreshToken string, config *Config) (*UserSession, error) {
	s, err := newUserSession(creds, config)
	if err != nil {
		return nil, err
	}
	if refreshToken == "" {
		return nil, &AuthenticationError{Message: "empty refresh token"}
	}

	s.cache = newTokenCache("user", s.config, &Token{RefreshToken: refreshToken}, s.refresh)
	if _, err := s.cache.get(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

// NewUserSessionByAccessToken wraps an existing access token. The user id
// and expiry are read from the token's claims without verifying its
// signature; the service verifies it on every request. The session cannot
// refresh, so once the token expires AccessToken fails with an
// AuthenticationError.
func NewUserSessionByAccessToken(creds *Credentials, accessToken string, config *Config) (*UserSession, error) {
	s, err := newUserSession(creds, config)
	if err != nil {
		return nil, err
	}

	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(accessToken, claims); err != nil {
		return nil, &AuthenticationError{Message: "access token is not a JWT", Err: err}
	}

	token := &Token{AccessToken: accessToken}
	if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
		token.Expiry = exp.Time
	}
	if uid, ok := claims["user_id"].(string); ok {
		s.userID = uid
	} else if sub, err := claims.GetSubject(); err == nil {
		s.userID = sub
	}

	s.cache = newTokenCache("user", s.config, token, nil)
	return s, nil
}

// ProjectID returns the project the user signs in to
func (s *UserSession) ProjectID() string {
	return s.creds.ProjectID
}

// UserID returns the signed in user's id
func (s *UserSession) UserID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.userID
}

// AccessToken returns a valid bearer token, refreshing it when the session
// holds a refresh token.
func (s *UserSession) AccessToken(ctx context.Context) (string, error) {
	token, err := s.cache.get(ctx)
	if err != nil {
		return "", err
	}
	return token.AccessToken, nil
}

// RefreshToken returns the current refresh token, or "" when the session
// cannot refresh. Persist it to resume the session later with
// NewUserSessionByRefreshToken.
func (s *UserSession) RefreshToken() string {
	return s.cache.snapshot().RefreshToken
}

// Refresh obtains a new token even if the cached one is still valid
func (s *UserSession) Refresh(ctx context.Context) error {
	_, err := s.cache.forceRefresh(ctx)
	return err
}

// Token returns the cached token without refreshing
func (s *UserSession) Token() Token {
	return s.cache.snapshot()
}

func (s *UserSession) refresh(ctx context.Context, current *Token) (*Token, error) {
	if current == nil || current.RefreshToken == "" {
		return nil, &AuthenticationError{Message: "no refresh token"}
	}

	endpoint := s.config.SecureTokenURL
	if s.creds.APIKey != "" {
		endpoint += "?key=" + url.QueryEscape(s.creds.APIKey)
	}
	form := url.Values{
		"grant_type":    {"refresh_token"},
		"refresh_token": {current.RefreshToken},
	}

	now := time.Now()
	resp, err := exchangeToken(ctx, s.transport, request{
		method:      http.MethodPost,
		url:         endpoint,
		subject:     "refresh user token",
		body:        []byte(form.Encode()),
		contentType: "application/x-www-form-urlencoded",
	})
	if err != nil {
		return nil, err
	}
	token, err := resp.token(now)
	if err != nil {
		return nil, err
	}
	if token.RefreshToken == "" {
		token.RefreshToken = current.RefreshToken
	}

	if uid := firstNonEmpty(resp.UserID, resp.LocalID); uid != "" {
		s.mu.Lock()
		s.userID = uid
		s.mu.Unlock()
	}
	return token, nil
}
