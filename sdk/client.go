package sdk

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/birbparty/firenest/sdk"

// Client performs document operations on behalf of a Session.
//
// Every operation asks the session for a valid token, sends one HTTP
// request per attempt, and retries transient failures (network errors, 429
// and 5xx) with exponential backoff until the configured budget runs out.
// Any other failure is returned immediately.
//
// A Client is safe for concurrent use.
//
// Example:
//
//	session, err := sdk.NewServiceSession(creds, nil)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	client, err := sdk.NewClient(session, nil)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	ctx := context.Background()
//	if _, err := client.Create(ctx, "users", "alice", user); sdk.IsConflict(err) {
//	    log.Println("alice already exists")
//	}
type Client struct {
	session   Session
	config    *Config
	transport *httpTransport
	tracer    trace.Tracer
	logger    logrus.FieldLogger
}

// NewClient creates a document client. If config is nil, DefaultConfig is
// used.
func NewClient(session Session, config *Config) (*Client, error) {
	if session == nil {
		return nil, fmt.Errorf("%w: session is required", ErrInvalidConfig)
	}
	if config == nil {
		config = DefaultConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if _, err := url.Parse(config.FirestoreURL); err != nil {
		return nil, fmt.Errorf("%w: invalid document URL: %v", ErrInvalidConfig, err)
	}

	return &Client{
		session:   session,
		config:    config,
		transport: newHTTPTransport(config),
		tracer:    otel.Tracer(tracerName),
		logger:    config.Logger.WithField("project", session.ProjectID()),
	}, nil
}

// ProjectID returns the project of the client's session
func (c *Client) ProjectID() string {
	return c.session.ProjectID()
}

// DocumentsRoot returns the absolute name prefix of every document:
// projects/{project}/databases/{database}/documents
func (c *Client) DocumentsRoot() string {
	return fmt.Sprintf("projects/%s/databases/%s/documents", c.session.ProjectID(), c.config.DatabaseID)
}

// documentURL returns the URL of a relative document or collection path,
// with a verb such as ":runQuery" appended when given.
func (c *Client) documentURL(relPath, verb string, query url.Values) string {
	var b strings.Builder
	b.WriteString(c.config.FirestoreURL)
	b.WriteString("/")
	b.WriteString(c.DocumentsRoot())
	if relPath != "" {
		b.WriteString("/")
		b.WriteString(escapePath(relPath))
	}
	b.WriteString(verb)
	if len(query) > 0 {
		b.WriteString("?")
		b.WriteString(query.Encode())
	}
	return b.String()
}

// escapePath escapes each segment of a slash separated path
func escapePath(p string) string {
	segments := strings.Split(strings.Trim(p, "/"), "/")
	for i, s := range segments {
		segments[i] = url.PathEscape(s)
	}
	return strings.Join(segments, "/")
}

// call runs one document operation under the executor. Every attempt
// fetches a token and sends one request; retryable failures are marked
// transient.
func (c *Client) call(ctx context.Context, op, method, target, subject string, body, result interface{}) error {
	ctx, span := c.tracer.Start(ctx, "firenest."+op, trace.WithAttributes(
		attribute.String("firestore.operation", op),
		attribute.String("firestore.path", subject),
	))
	defer span.End()

	start := time.Now()
	_, err := Execute(ctx, c.config.Backoff, c.config.Observer, op, func(ctx context.Context) (struct{}, error) {
		token, err := c.session.AccessToken(ctx)
		if err != nil {
			return struct{}{}, markTransient(err)
		}

		r, err := jsonRequest(method, target, subject, body)
		if err != nil {
			return struct{}{}, err
		}
		r.token = token

		_, err = c.transport.do(ctx, r, result)
		return struct{}{}, markTransient(err)
	})

	fields := logrus.Fields{
		"operation": op,
		"path":      subject,
		"duration":  time.Since(start),
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		c.logger.WithFields(fields).WithField("kind", KindOf(err).String()).WithError(err).Debug("operation failed")
		return err
	}
	c.logger.WithFields(fields).Debug("operation succeeded")
	return nil
}

// markTransient wraps retryable errors so Execute retries them
func markTransient(err error) error {
	if IsRetryable(err) {
		return Transient(err)
	}
	return err
}

// AbsToRel converts an absolute document name, as found in Document.Name
// of List and Query results, to the relative path Delete expects. Paths
// that are already relative are returned unchanged.
//
// Example:
//
//	sdk.AbsToRel("projects/p/databases/(default)/documents/users/alice")
//	// "users/alice"
func AbsToRel(name string) string {
	const marker = "/documents/"
	if !strings.HasPrefix(name, "projects/") {
		return name
	}
	if i := strings.Index(name, marker); i >= 0 {
		return name[i+len(marker):]
	}
	return name
}
