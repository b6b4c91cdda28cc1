package sdk

import (
	"context"
	"net/http"
	"net/url"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const jwtBearerGrant = "urn:ietf:params:oauth:grant-type:jwt-bearer"

// ServiceSession authenticates as a service account. Every refresh signs a
// fresh assertion and exchanges it at the token endpoint.
type ServiceSession struct {
	creds     *Credentials
	config    *Config
	transport *httpTransport
	cache     *tokenCache
}

// NewServiceSession creates a service account session. No request is made
// until the first token is needed.
//
// Example:
//
//	creds, _ := sdk.LoadCredentials("service-account.json")
//	session, err := sdk.NewServiceSession(creds, sdk.DefaultConfig())
func NewServiceSession(creds *Credentials, config *Config) (*ServiceSession, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if err := creds.Verify(); err != nil {
		return nil, err
	}

	s := &ServiceSession{
		creds:     creds,
		config:    config,
		transport: newHTTPTransport(config),
	}
	s.cache = newTokenCache("service", config, nil, s.refresh)
	return s, nil
}

// ProjectID returns the service account's project
func (s *ServiceSession) ProjectID() string {
	return s.creds.ProjectID
}

// AccessToken returns a valid bearer token, refreshing it when needed
func (s *ServiceSession) AccessToken(ctx context.Context) (string, error) {
	token, err := s.cache.get(ctx)
	if err != nil {
		return "", err
	}
	return token.AccessToken, nil
}

// Refresh obtains a new token even if the cached one is still valid
func (s *ServiceSession) Refresh(ctx context.Context) error {
	_, err := s.cache.forceRefresh(ctx)
	return err
}

// Token returns the cached token without refreshing
func (s *ServiceSession) Token() Token {
	return s.cache.snapshot()
}

func (s *ServiceSession) refresh(ctx context.Context, _ *Token) (*Token, error) {
	now := time.Now()
	assertion, err := s.creds.sign(jwt.MapClaims{
		"iss":   s.creds.ClientEmail,
		"sub":   s.creds.ClientEmail,
		"aud":   s.config.TokenURL,
		"scope": ScopeDatastore + " " + ScopeCloudPlatform,
		"iat":   now.Unix(),
		"exp":   now.Add(time.Hour).Unix(),
	})
	if err != nil {
		return nil, err
	}

	form := url.Values{
		"grant_type": {jwtBearerGrant},
		"assertion":  {assertion},
	}
	resp, err := exchangeToken(ctx, s.transport, request{
		method:      http.MethodPost,
		url:         s.config.TokenURL,
		subject:     "service token",
		body:        []byte(form.Encode()),
		contentType: "application/x-www-form-urlencoded",
	})
	if err != nil {
		return nil, err
	}
	return resp.token(now)
}
