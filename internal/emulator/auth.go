package emulator

import (
	"fmt"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const tokenIssuer = "firenest-emulator"

// Principal is the caller identified by a bearer token
type Principal struct {
	Subject string
	// UserID is set for end user tokens
	UserID string
}

// IsUser reports whether the principal is an end user
func (p *Principal) IsUser() bool {
	return p.UserID != ""
}

// Authority plays the three token endpoints: the OAuth2 JWT bearer grant
// for service accounts, custom token sign-in and refresh token exchange for
// users. Issued tokens are HS256 JWTs that Verify checks.
//
// Incoming assertions and custom tokens are parsed without verifying their
// signature; the emulator does not know the service account's public key.
type Authority struct {
	secret    []byte
	ttl       time.Duration
	apiKey    string
	projectID string
	now       func() time.Time

	mu      sync.Mutex
	refresh map[string]*refreshGrant
}

// refreshGrant is an issued refresh token
type refreshGrant struct {
	userID   string
	issued   time.Time
	lastUsed time.Time
}

// NewAuthority creates an authority from cfg
func NewAuthority(cfg *Config) *Authority {
	return &Authority{
		secret:    []byte(cfg.SigningSecret),
		ttl:       cfg.TokenLifetime(),
		apiKey:    cfg.APIKey,
		projectID: cfg.ProjectID,
		now:       time.Now,
		refresh:   make(map[string]*refreshGrant),
	}
}

// ExchangeAssertion answers a JWT bearer grant
func (a *Authority) ExchangeAssertion(grantType, assertion string) (*ServiceTokenResponse, error) {
	if grantType != "urn:ietf:params:oauth:grant-type:jwt-bearer" {
		return nil, invalidArgument("unsupported grant_type %q", grantType)
	}
	claims, err := a.parseUnverified(assertion)
	if err != nil {
		return nil, err
	}
	issuer, _ := claims.GetIssuer()
	if issuer == "" {
		return nil, invalidArgument("assertion has no issuer")
	}

	token, err := a.issue(jwt.MapClaims{"sub": issuer})
	if err != nil {
		return nil, err
	}
	return &ServiceTokenResponse{
		AccessToken: token,
		ExpiresIn:   int64(a.ttl / time.Second),
		TokenType:   "Bearer",
	}, nil
}

// SignInWithCustomToken signs in the user named by the token's uid claim
func (a *Authority) SignInWithCustomToken(apiKey string, req *SignInRequest) (*SignInResponse, error) {
	if err := a.checkAPIKey(apiKey); err != nil {
		return nil, err
	}
	claims, err := a.parseUnverified(req.Token)
	if err != nil {
		return nil, err
	}
	uid, _ := claims["uid"].(string)
	if uid == "" {
		return nil, invalidArgument("INVALID_CUSTOM_TOKEN: missing uid")
	}

	idToken, err := a.userToken(uid)
	if err != nil {
		return nil, err
	}
	resp := &SignInResponse{
		IDToken:   idToken,
		ExpiresIn: strconv.FormatInt(int64(a.ttl/time.Second), 10),
		LocalID:   uid,
	}
	if req.ReturnSecureToken {
		resp.RefreshToken = a.newRefreshToken(uid)
	}
	return resp, nil
}

// RefreshUser exchanges a refresh token. The refresh token stays valid.
func (a *Authority) RefreshUser(apiKey, grantType, refreshToken string) (*SecureTokenResponse, error) {
	if err := a.checkAPIKey(apiKey); err != nil {
		return nil, err
	}
	if grantType != "refresh_token" {
		return nil, invalidArgument("unsupported grant_type %q", grantType)
	}

	a.mu.Lock()
	grant, ok := a.refresh[refreshToken]
	if ok {
		grant.lastUsed = a.now()
	}
	a.mu.Unlock()
	if !ok {
		return nil, invalidArgument("INVALID_REFRESH_TOKEN")
	}
	uid := grant.userID

	idToken, err := a.userToken(uid)
	if err != nil {
		return nil, err
	}
	return &SecureTokenResponse{
		AccessToken:  idToken,
		ExpiresIn:    strconv.FormatInt(int64(a.ttl/time.Second), 10),
		TokenType:    "Bearer",
		RefreshToken: refreshToken,
		IDToken:      idToken,
		UserID:       uid,
		ProjectID:    a.projectID,
	}, nil
}

// Verify checks a bearer token issued by this authority
func (a *Authority) Verify(token string) (*Principal, error) {
	claims := jwt.MapClaims{}
	_, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (interface{}, error) {
		return a.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(tokenIssuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(a.now),
	)
	if err != nil {
		return nil, unauthenticated("Request had invalid authentication credentials: %v", err)
	}

	p := &Principal{}
	p.Subject, _ = claims.GetSubject()
	p.UserID, _ = claims["user_id"].(string)
	return p, nil
}

func (a *Authority) userToken(uid string) (string, error) {
	return a.issue(jwt.MapClaims{"sub": uid, "user_id": uid})
}

func (a *Authority) issue(claims jwt.MapClaims) (string, error) {
	now := a.now()
	claims["iss"] = tokenIssuer
	claims["iat"] = now.Unix()
	claims["exp"] = now.Add(a.ttl).Unix()
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

func (a *Authority) parseUnverified(token string) (jwt.MapClaims, error) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return nil, invalidArgument("malformed token: %v", err)
	}
	if exp, err := claims.GetExpirationTime(); err == nil && exp != nil && exp.Before(a.now()) {
		return nil, invalidArgument("token expired")
	}
	return claims, nil
}

func (a *Authority) checkAPIKey(key string) error {
	if a.apiKey != "" && key != a.apiKey {
		return invalidArgument("API key not valid. Please pass a valid API key.")
	}
	return nil
}

func (a *Authority) newRefreshToken(uid string) string {
	token := uuid.NewString()
	now := a.now()
	a.mu.Lock()
	a.refresh[token] = &refreshGrant{userID: uid, issued: now, lastUsed: now}
	a.mu.Unlock()
	return token
}

// IdleRefreshTokens returns the user ids of refresh tokens issued before
// now-minAge and unused since now-idle. Unless dryRun is set they are
// revoked.
func (a *Authority) IdleRefreshTokens(idle, minAge time.Duration, dryRun bool) []string {
	now := a.now()
	a.mu.Lock()
	defer a.mu.Unlock()

	var users []string
	for token, grant := range a.refresh {
		if now.Sub(grant.lastUsed) < idle || now.Sub(grant.issued) < minAge {
			continue
		}
		users = append(users, grant.userID)
		if !dryRun {
			delete(a.refresh, token)
		}
	}
	sort.Strings(users)
	return users
}

// RefreshTokenCount returns how many refresh tokens are live
func (a *Authority) RefreshTokenCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.refresh)
}
