package sdk

import (
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// Default service endpoints.
const (
	DefaultFirestoreURL       = "https://firestore.googleapis.com/v1"
	DefaultTokenURL           = "https://oauth2.googleapis.com/token"
	DefaultIdentityToolkitURL = "https://identitytoolkit.googleapis.com/v1"
	DefaultSecureTokenURL     = "https://securetoken.googleapis.com/v1/token"
)

// HTTPDoer is the HTTP transport the SDK sends requests through.
// *http.Client satisfies it.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Config holds the configuration for sessions and the document client.
// All fields are optional and have sensible defaults.
//
// Configuration can be built using the fluent builder pattern:
//
//	config := sdk.DefaultConfig().
//	    WithFirestoreURL("http://localhost:8080/v1").
//	    WithTimeout(10 * time.Second).
//	    WithBackoff(sdk.BackoffConfig{MaxElapsedTime: 20 * time.Second})
//
//	session, err := sdk.NewServiceSession(creds, config)
//	client, err := sdk.NewClient(session, config)
type Config struct {
	// FirestoreURL is the base URL of the document API, without the
	// trailing "/projects/..." part.
	// Default: "https://firestore.googleapis.com/v1"
	FirestoreURL string

	// DatabaseID selects the database inside the project.
	// Default: "(default)"
	DatabaseID string

	// TokenURL is the OAuth2 token endpoint used by service sessions.
	// Default: "https://oauth2.googleapis.com/token"
	TokenURL string

	// IdentityToolkitURL is the base URL used to sign users in with a custom token.
	// Default: "https://identitytoolkit.googleapis.com/v1"
	IdentityToolkitURL string

	// SecureTokenURL exchanges user refresh tokens.
	// Default: "https://securetoken.googleapis.com/v1/token"
	SecureTokenURL string

	// Timeout bounds each individual HTTP attempt.
	// Default: 30s
	Timeout time.Duration

	// Backoff controls retries of transient failures.
	Backoff BackoffConfig

	// TransportConfig holds HTTP transport settings for the default client.
	TransportConfig TransportConfig

	// HTTPClient overrides the HTTP transport. If nil, an *http.Client is
	// built from TransportConfig and Timeout.
	HTTPClient HTTPDoer

	// Headers are custom headers to include in all requests.
	Headers map[string]string

	// Observer for monitoring operations.
	// If nil, NoopObserver is used.
	Observer Observer

	// Logger receives structured logs about refreshes, retries and failures.
	// If nil, logs are discarded.
	Logger logrus.FieldLogger

	// TokenSafetyMargin is how long a cached token must remain valid to be
	// handed out without a refresh.
	// Default: 60s
	TokenSafetyMargin time.Duration

	// PageSize is the number of documents fetched per List page.
	// Default: 100
	PageSize int
}

// TransportConfig holds HTTP transport configuration for connection pooling.
//
// Example:
//
//	config.TransportConfig = sdk.TransportConfig{
//	    MaxIdleConns:    200,
//	    MaxConnsPerHost: 50,
//	    IdleConnTimeout: 120 * time.Second,
//	}
type TransportConfig struct {
	// MaxIdleConns controls the maximum number of idle connections
	// across all hosts. Zero means no limit.
	// Default: 100
	MaxIdleConns int

	// MaxConnsPerHost controls the maximum connections per host.
	// Default: 10
	MaxConnsPerHost int

	// IdleConnTimeout is the maximum time an idle connection will remain idle
	// before closing itself.
	// Default: 90s
	IdleConnTimeout time.Duration
}

// DefaultConfig returns a Config with sensible defaults suitable for most use cases.
// The default configuration includes:
//   - Google production endpoints
//   - Timeout: 30 seconds per attempt
//   - Backoff: 50ms initial, x1.5, capped at 10s, 60s budget
//   - Token safety margin: 60 seconds
//   - Connection pooling: 100 idle connections, 10 per host
func DefaultConfig() *Config {
	return &Config{
		FirestoreURL:       DefaultFirestoreURL,
		DatabaseID:         "(default)",
		TokenURL:           DefaultTokenURL,
		IdentityToolkitURL: DefaultIdentityToolkitURL,
		SecureTokenURL:     DefaultSecureTokenURL,
		Timeout:            30 * time.Second,
		Backoff:            DefaultBackoff(),
		TransportConfig: TransportConfig{
			MaxIdleConns:    100,
			MaxConnsPerHost: 10,
			IdleConnTimeout: 90 * time.Second,
		},
		Headers:           make(map[string]string),
		Observer:          &NoopObserver{},
		TokenSafetyMargin: 60 * time.Second,
		PageSize:          100,
	}
}

// WithFirestoreURL sets the base URL of the document API.
//
// Example:
//
//	config := sdk.DefaultConfig().
//	    WithFirestoreURL("http://localhost:8080/v1")
func (c *Config) WithFirestoreURL(url string) *Config {
	c.FirestoreURL = url
	return c
}

// WithAuthURLs points every token endpoint at one base URL. This is how
// tests and the emulator wire sessions to a local server: the token,
// identitytoolkit and securetoken paths are appended to base.
func (c *Config) WithAuthURLs(base string) *Config {
	base = strings.TrimRight(base, "/")
	c.TokenURL = base + "/oauth2/token"
	c.IdentityToolkitURL = base + "/identitytoolkit/v1"
	c.SecureTokenURL = base + "/securetoken/v1/token"
	return c
}

// WithDatabase selects the database inside the project
func (c *Config) WithDatabase(id string) *Config {
	c.DatabaseID = id
	return c
}

// WithTimeout sets the per-attempt request timeout
func (c *Config) WithTimeout(timeout time.Duration) *Config {
	c.Timeout = timeout
	return c
}

// WithBackoff sets the retry backoff. Zero fields keep their defaults.
func (c *Config) WithBackoff(backoff BackoffConfig) *Config {
	c.Backoff = backoff
	return c
}

// WithHTTPClient sets a custom HTTP transport
func (c *Config) WithHTTPClient(client HTTPDoer) *Config {
	c.HTTPClient = client
	return c
}

// WithHeader adds a custom header to be sent with all requests.
//
// Example:
//
//	config := sdk.DefaultConfig().
//	    WithHeader("X-Goog-Request-Reason", "nightly-export")
func (c *Config) WithHeader(key, value string) *Config {
	if c.Headers == nil {
		c.Headers = make(map[string]string)
	}
	c.Headers[key] = value
	return c
}

// WithObserver sets a custom observer for monitoring SDK operations
func (c *Config) WithObserver(observer Observer) *Config {
	c.Observer = observer
	return c
}

// WithLogger sets the structured logger
func (c *Config) WithLogger(logger logrus.FieldLogger) *Config {
	c.Logger = logger
	return c
}

// WithTokenSafetyMargin sets how long before expiry a token is refreshed
func (c *Config) WithTokenSafetyMargin(margin time.Duration) *Config {
	c.TokenSafetyMargin = margin
	return c
}

// WithPageSize sets the List page size
func (c *Config) WithPageSize(size int) *Config {
	c.PageSize = size
	return c
}

// Validate validates the configuration and sets defaults for missing values.
// This is called automatically by NewClient and the session constructors.
//
// Returns an error if the configuration is invalid (e.g., missing document URL).
func (c *Config) Validate() error {
	if c.FirestoreURL == "" {
		return ErrInvalidConfig
	}
	c.FirestoreURL = strings.TrimRight(c.FirestoreURL, "/")
	if c.DatabaseID == "" {
		c.DatabaseID = "(default)"
	}
	if c.TokenURL == "" {
		c.TokenURL = DefaultTokenURL
	}
	if c.IdentityToolkitURL == "" {
		c.IdentityToolkitURL = DefaultIdentityToolkitURL
	}
	c.IdentityToolkitURL = strings.TrimRight(c.IdentityToolkitURL, "/")
	if c.SecureTokenURL == "" {
		c.SecureTokenURL = DefaultSecureTokenURL
	}
	if c.Timeout <= 0 {
		c.Timeout = 30 * time.Second
	}
	c.Backoff = c.Backoff.withDefaults()
	if c.TokenSafetyMargin < 0 {
		c.TokenSafetyMargin = 0
	}
	if c.PageSize <= 0 {
		c.PageSize = 100
	}
	if c.Observer == nil {
		c.Observer = &NoopObserver{}
	}
	if c.Logger == nil {
		c.Logger = discardLogger()
	}
	if c.HTTPClient == nil {
		c.HTTPClient = newHTTPClient(c)
	}
	return nil
}

// discardLogger returns a logger that drops everything
func discardLogger() logrus.FieldLogger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	logger.SetLevel(logrus.WarnLevel)
	return logger
}

// ConfigFromEnv builds a Config from DefaultConfig overridden by environment
// variables:
//
//	FIRESTORE_URL, FIRESTORE_DATABASE, FIRENEST_AUTH_URL,
//	FIRENEST_TIMEOUT, FIRENEST_RETRY_BUDGET, FIRENEST_PAGE_SIZE
//
// FIRESTORE_EMULATOR_HOST, when set, points the document API at
// http://<host>/v1.
func ConfigFromEnv() *Config {
	c := DefaultConfig()
	c.FirestoreURL = getEnv("FIRESTORE_URL", c.FirestoreURL)
	if host := getEnv("FIRESTORE_EMULATOR_HOST", ""); host != "" {
		c.FirestoreURL = "http://" + host + "/v1"
	}
	c.DatabaseID = getEnv("FIRESTORE_DATABASE", c.DatabaseID)
	if auth := getEnv("FIRENEST_AUTH_URL", ""); auth != "" {
		c.WithAuthURLs(auth)
	}
	c.Timeout = getEnvDuration("FIRENEST_TIMEOUT", c.Timeout)
	c.Backoff.MaxElapsedTime = getEnvDuration("FIRENEST_RETRY_BUDGET", c.Backoff.MaxElapsedTime)
	c.PageSize = getEnvInt("FIRENEST_PAGE_SIZE", c.PageSize)
	return c
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
