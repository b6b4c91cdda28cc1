package sdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"
)

const userAgent = "firenest-go-sdk/1.0.0"

// httpTransport sends single HTTP attempts and turns their outcome into the
// SDK error taxonomy. It never retries; callers wrap it with Execute.
type httpTransport struct {
	// client is the underlying HTTP transport
	client HTTPDoer
	// headers are added to every request
	headers map[string]string
	// timeout bounds one attempt
	timeout time.Duration
	// observer for monitoring attempts
	observer Observer
	logger   logrus.FieldLogger
}

// newHTTPClient creates the default *http.Client from the config
func newHTTPClient(config *Config) *http.Client {
	transport := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		MaxIdleConns:        config.TransportConfig.MaxIdleConns,
		MaxConnsPerHost:     config.TransportConfig.MaxConnsPerHost,
		IdleConnTimeout:     config.TransportConfig.IdleConnTimeout,
		TLSHandshakeTimeout: 10 * time.Second,
	}
	return &http.Client{
		Transport: transport,
		Timeout:   config.Timeout,
	}
}

// newHTTPTransport creates a transport from a validated config
func newHTTPTransport(config *Config) *httpTransport {
	return &httpTransport{
		client:   config.HTTPClient,
		headers:  config.Headers,
		timeout:  config.Timeout,
		observer: config.Observer,
		logger:   config.Logger,
	}
}

// request describes one HTTP attempt
type request struct {
	method string
	url    string
	// subject is attached to API errors, usually the document path
	subject     string
	token       string
	body        []byte
	contentType string
}

// jsonRequest builds a request with a JSON encoded body
func jsonRequest(method, target, subject string, body interface{}) (request, error) {
	req := request{method: method, url: target, subject: subject}
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return req, &SerializationError{Message: "failed to marshal request body", Err: err}
		}
		req.body = data
		req.contentType = "application/json"
	}
	return req, nil
}

// do performs a single attempt. On a 2xx response the body is decoded into
// result when result is non-nil. It returns the HTTP status (0 when no
// response arrived) and a classified error.
func (t *httpTransport) do(ctx context.Context, r request, result interface{}) (int, error) {
	t.observer.OnRequestStart(r.method, r.subject)
	start := time.Now()

	status, err := t.perform(ctx, r, result)

	t.observer.OnRequestEnd(r.method, r.subject, status, time.Since(start), err)
	if err != nil {
		t.logger.WithFields(logrus.Fields{
			"method":  r.method,
			"context": r.subject,
			"status":  status,
		}).WithError(err).Debug("request attempt failed")
	}
	return status, err
}

func (t *httpTransport) perform(ctx context.Context, r request, result interface{}) (int, error) {
	if t.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.timeout)
		defer cancel()
	}

	var bodyReader io.Reader
	if r.body != nil {
		bodyReader = bytes.NewReader(r.body)
	}

	req, err := http.NewRequestWithContext(ctx, r.method, r.url, bodyReader)
	if err != nil {
		return 0, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)
	if r.contentType != "" {
		req.Header.Set("Content-Type", r.contentType)
	}
	if r.token != "" {
		req.Header.Set("Authorization", "Bearer "+r.token)
	}
	for key, value := range t.headers {
		req.Header.Set(key, value)
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return 0, &TransportError{Op: r.method + " " + r.subject, Err: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, &TransportError{Op: "reading response", Err: err}
	}

	if err := classifyResponse(resp.StatusCode, respBody, r.subject); err != nil {
		return resp.StatusCode, err
	}

	if result != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, result); err != nil {
			return resp.StatusCode, &SerializationError{Message: "failed to parse response", Err: err}
		}
	}
	return resp.StatusCode, nil
}
