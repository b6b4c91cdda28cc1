package testdata

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"sync"
	"time"
)

// TestProject is the project id used by fixtures
const TestProject = "firenest-test"

// TestAPIKey is the web API key used by fixtures
const TestAPIKey = "test-api-key"

// ServiceAccount is a generated service account key
type ServiceAccount struct {
	ProjectID    string
	ClientEmail  string
	PrivateKeyID string
	Key          *rsa.PrivateKey
	// PEM is the PKCS#8 encoded private key
	PEM string
}

var (
	keyOnce sync.Once
	testKey *rsa.PrivateKey
	keyErr  error
)

// sharedKey generates one RSA key per test binary
func sharedKey() (*rsa.PrivateKey, error) {
	keyOnce.Do(func() {
		testKey, keyErr = rsa.GenerateKey(rand.Reader, 2048)
	})
	return testKey, keyErr
}

// NewServiceAccount returns a service account for project with a freshly
// generated (per test binary) RSA key.
func NewServiceAccount(project string) (*ServiceAccount, error) {
	key, err := sharedKey()
	if err != nil {
		return nil, err
	}
	der, err := x509.MarshalPKCS8PrivateKey(key)
	if err != nil {
		return nil, err
	}
	return &ServiceAccount{
		ProjectID:    project,
		ClientEmail:  "tester@" + project + ".iam.gserviceaccount.com",
		PrivateKeyID: "test-key-1",
		Key:          key,
		PEM:          string(pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: der})),
	}, nil
}

// JSON renders the account as a key file
func (sa *ServiceAccount) JSON() []byte {
	data, _ := json.Marshal(map[string]string{
		"type":           "service_account",
		"project_id":     sa.ProjectID,
		"private_key_id": sa.PrivateKeyID,
		"private_key":    sa.PEM,
		"client_email":   sa.ClientEmail,
		"client_id":      "1234567890",
		"token_uri":      "https://oauth2.googleapis.com/token",
	})
	return data
}

// TestData provides common field values for codec and document tests
var TestData = struct {
	SimpleString  string
	UnicodeString string
	SimpleInt     int64
	SimpleFloat   float64
	SimpleBool    bool
	SimpleTime    time.Time
	NanoTime      time.Time
	Bytes         []byte
	Reference     string
}{
	SimpleString:  "abc",
	UnicodeString: "Hello 世界 🌍",
	SimpleInt:     -42,
	SimpleFloat:   3.14159,
	SimpleBool:    true,
	SimpleTime:    time.Date(2023, 1, 1, 12, 0, 0, 0, time.UTC),
	NanoTime:      time.Date(2024, 2, 29, 23, 59, 59, 123456789, time.UTC),
	Bytes:         []byte{0x00, 0xff, 0x10, 0x80},
	Reference:     "projects/" + TestProject + "/databases/(default)/documents/tests/ref",
}
