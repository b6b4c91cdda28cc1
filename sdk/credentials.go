package sdk

import (
	"crypto/rsa"
	"encoding/json"
	"os"

	"github.com/golang-jwt/jwt/v5"
)

// Credentials is the key material of a service account, as found in the
// JSON key file downloaded from the cloud console. It is immutable once
// loaded.
type Credentials struct {
	ProjectID    string `json:"project_id"`
	ClientEmail  string `json:"client_email"`
	PrivateKeyID string `json:"private_key_id"`
	PrivateKey   string `json:"private_key"`
	// APIKey is required to sign users in with a custom token. Key files
	// don't carry it; set it from configuration.
	APIKey string `json:"api_key,omitempty"`

	signer *rsa.PrivateKey
}

// LoadCredentials reads and validates a service account key file.
//
// Example:
//
//	creds, err := sdk.LoadCredentials("service-account.json")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	creds = creds.WithAPIKey(os.Getenv("FIREBASE_API_KEY"))
func LoadCredentials(path string) (*Credentials, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &IOError{Path: path, Err: err}
	}
	return ParseCredentials(data)
}

// ParseCredentials parses and validates a service account key.
func ParseCredentials(data []byte) (*Credentials, error) {
	var creds Credentials
	if err := json.Unmarshal(data, &creds); err != nil {
		return nil, &SerializationError{Message: "malformed credentials", Err: err}
	}
	key, err := creds.parseKey()
	if err != nil {
		return nil, err
	}
	creds.signer = key
	return &creds, nil
}

// WithAPIKey returns a copy of c carrying the given web API key
func (c *Credentials) WithAPIKey(key string) *Credentials {
	out := *c
	out.APIKey = key
	return &out
}

// Verify checks required fields and that the private key is a parsable
// RSA key. It does not modify c and is safe for concurrent use.
func (c *Credentials) Verify() error {
	_, err := c.parseKey()
	return err
}

func (c *Credentials) parseKey() (*rsa.PrivateKey, error) {
	switch {
	case c.ProjectID == "":
		return nil, &AuthenticationError{Message: "credentials have no project_id"}
	case c.ClientEmail == "":
		return nil, &AuthenticationError{Message: "credentials have no client_email"}
	case c.PrivateKey == "":
		return nil, &AuthenticationError{Message: "credentials have no private_key"}
	}
	key, err := jwt.ParseRSAPrivateKeyFromPEM([]byte(c.PrivateKey))
	if err != nil {
		return nil, &AuthenticationError{Message: "invalid private key", Err: err}
	}
	return key, nil
}

// signingKey returns the key parsed at load time. Credentials built as a
// struct literal have none and are parsed on every call.
func (c *Credentials) signingKey() (*rsa.PrivateKey, error) {
	if c.signer != nil {
		return c.signer, nil
	}
	return c.parseKey()
}

// sign signs claims with RS256 using the service account key
func (c *Credentials) sign(claims jwt.Claims) (string, error) {
	key, err := c.signingKey()
	if err != nil {
		return "", err
	}
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	if c.PrivateKeyID != "" {
		token.Header["kid"] = c.PrivateKeyID
	}
	signed, err := token.SignedString(key)
	if err != nil {
		return "", &AuthenticationError{Message: "failed to sign assertion", Err: err}
	}
	return signed, nil
}
