package sdk

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	"github.com/birbparty/firenest/sdk/testdata"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// staticSession hands out a fixed token and counts how often it was asked
type staticSession struct {
	project string
	token   string
	err     error
	calls   atomic.Int32
}

func (s *staticSession) ProjectID() string { return s.project }

func (s *staticSession) AccessToken(ctx context.Context) (string, error) {
	s.calls.Add(1)
	if s.err != nil {
		return "", s.err
	}
	return s.token, nil
}

func newStaticSession() *staticSession {
	return &staticSession{project: testdata.TestProject, token: "static-token"}
}

func testConfig(baseURL string) *Config {
	return DefaultConfig().
		WithFirestoreURL(baseURL + "/v1").
		WithAuthURLs(baseURL).
		WithTimeout(2 * time.Second).
		WithBackoff(fastBackoff(2 * time.Second))
}

func newTestClient(t *testing.T, ts *testdata.TestSuite, session Session, config *Config) *Client {
	t.Helper()
	if config == nil {
		config = testConfig(ts.BaseURL)
	}
	client, err := NewClient(session, config)
	require.NoError(t, err)
	return client
}

func docPath(rel string) string {
	return testdata.DocumentsPath(testdata.TestProject) + "/" + rel
}

func wireDoc(rel string, fields Fields) documentWire {
	return documentWire{
		Name:       "projects/" + testdata.TestProject + "/databases/(default)/documents/" + rel,
		Fields:     fields,
		CreateTime: "2024-01-01T10:00:00.000001Z",
		UpdateTime: "2024-01-02T10:00:00Z",
	}
}

func echoDocument(rel string) testdata.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) (int, interface{}) {
		var body documentWire
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			return http.StatusBadRequest, testdata.ErrorBody(400, "INVALID_ARGUMENT", err.Error())
		}
		return http.StatusOK, wireDoc(rel, body.Fields)
	}
}

func parseQuery(t *testing.T, raw string) url.Values {
	t.Helper()
	q, err := url.ParseQuery(raw)
	require.NoError(t, err)
	return q
}

func TestNewClient(t *testing.T) {
	t.Run("requires a session", func(t *testing.T) {
		_, err := NewClient(nil, nil)
		assert.ErrorIs(t, err, ErrInvalidConfig)
	})

	t.Run("rejects an empty document URL", func(t *testing.T) {
		_, err := NewClient(newStaticSession(), DefaultConfig().WithFirestoreURL(""))
		assert.ErrorIs(t, err, ErrInvalidConfig)
	})

	t.Run("documents root", func(t *testing.T) {
		client, err := NewClient(newStaticSession(), DefaultConfig().WithDatabase("staging"))
		require.NoError(t, err)
		assert.Equal(t, "projects/firenest-test/databases/staging/documents", client.DocumentsRoot())
		assert.Equal(t, testdata.TestProject, client.ProjectID())
	})
}

func TestClient_Create(t *testing.T) {
	ts := testdata.NewTestSuite(t)
	ts.Server.RegisterHandler("POST "+docPath("tests"), echoDocument("tests/abc"))
	client := newTestClient(t, ts, newStaticSession(), nil)

	result, err := client.Create(ts.Context, "tests", "abc", Fields{"a_string": String("abc")})
	require.NoError(t, err)
	assert.Equal(t, "abc", result.DocumentID)
	assert.True(t, result.CreateTime.Equal(time.Date(2024, 1, 1, 10, 0, 0, 1000, time.UTC)))

	reqs := ts.Server.RequestsTo(docPath("tests"))
	require.Len(t, reqs, 1)
	assert.Equal(t, "abc", parseQuery(t, reqs[0].Query).Get("documentId"))
	assert.Equal(t, "Bearer static-token", reqs[0].Headers.Get("Authorization"))
	assert.Equal(t, "application/json", reqs[0].Headers.Get("Content-Type"))
	assert.JSONEq(t, `{"fields":{"a_string":{"stringValue":"abc"}}}`, string(reqs[0].Body))
}

func TestClient_CreateGeneratedID(t *testing.T) {
	ts := testdata.NewTestSuite(t)
	ts.Server.RegisterHandler("POST "+docPath("tests"), echoDocument("tests/Xy12generated"))
	client := newTestClient(t, ts, newStaticSession(), nil)

	result, err := client.Create(ts.Context, "tests", "", Fields{})
	require.NoError(t, err)
	assert.Equal(t, "Xy12generated", result.DocumentID)

	reqs := ts.Server.RequestsTo(docPath("tests"))
	require.Len(t, reqs, 1)
	assert.Empty(t, reqs[0].Query)
}

func TestClient_CreateConflict(t *testing.T) {
	ts := testdata.NewTestSuite(t)
	ts.Server.WithErrorResponse("POST "+docPath("tests"), http.StatusConflict, "ALREADY_EXISTS", "Document already exists")
	client := newTestClient(t, ts, newStaticSession(), nil)

	_, err := client.Create(ts.Context, "tests", "abc", Fields{})
	require.Error(t, err)
	assert.True(t, IsConflict(err))
	assert.Equal(t, KindAPI, KindOf(err))

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, "tests/abc", apiErr.Context)
	assert.Len(t, ts.Server.RequestsTo(docPath("tests")), 1, "permanent errors are not retried")
}

func TestClient_Get(t *testing.T) {
	ts := testdata.NewTestSuite(t)
	ts.Server.RegisterHandler("GET "+docPath("tests/abc"), func(w http.ResponseWriter, r *http.Request) (int, interface{}) {
		return http.StatusOK, wireDoc("tests/abc", Fields{"n": Int(7)})
	})
	client := newTestClient(t, ts, newStaticSession(), nil)

	doc, err := client.Get(ts.Context, "tests", "abc")
	require.NoError(t, err)
	assert.Equal(t, "abc", doc.ID())
	assert.Equal(t, "tests/abc", doc.RelativePath())
	assert.True(t, Int(7).Equal(doc.Fields["n"]))

	var fields MapFields
	require.NoError(t, client.Read(ts.Context, "tests", "abc", &fields))
	assert.Equal(t, MapFields{"n": int64(7)}, fields)
}

func TestClient_GetByName(t *testing.T) {
	ts := testdata.NewTestSuite(t)
	ts.Server.RegisterHandler("GET "+docPath("users/alice"), func(w http.ResponseWriter, r *http.Request) (int, interface{}) {
		return http.StatusOK, wireDoc("users/alice", Fields{"name": String("Alice")})
	})
	client := newTestClient(t, ts, newStaticSession(), nil)

	doc, err := client.GetByName(ts.Context, "projects/firenest-test/databases/(default)/documents/users/alice")
	require.NoError(t, err)
	assert.Equal(t, "alice", doc.ID())
}

func TestClient_GetNotFound(t *testing.T) {
	ts := testdata.NewTestSuite(t)
	ts.Server.WithErrorResponse("GET "+docPath("tests/missing"), http.StatusNotFound, "NOT_FOUND", "Document not found")
	client := newTestClient(t, ts, newStaticSession(), nil)

	_, err := client.Get(ts.Context, "tests", "missing")
	assert.True(t, IsNotFound(err))
	assert.Equal(t, KindAPI, KindOf(err))
}

func TestClient_RetriesTransientFailures(t *testing.T) {
	ts := testdata.NewTestSuite(t)
	ts.Server.WithRetryResponse("GET "+docPath("tests/abc"), 2, http.StatusInternalServerError,
		func(w http.ResponseWriter, r *http.Request) (int, interface{}) {
			return http.StatusOK, wireDoc("tests/abc", Fields{})
		})

	metrics := NewMetricsCollector()
	session := newStaticSession()
	client := newTestClient(t, ts, session, testConfig(ts.BaseURL).WithObserver(metrics))

	_, err := client.Get(ts.Context, "tests", "abc")
	require.NoError(t, err)

	assert.Len(t, ts.Server.RequestsTo(docPath("tests/abc")), 3)
	assert.Equal(t, int32(3), session.calls.Load(), "a token is fetched per attempt")

	delays := metrics.RetryDelays("read")
	require.Len(t, delays, 2)
	assert.Greater(t, delays[1], delays[0])
}

func TestClient_RetryBudgetExhausted(t *testing.T) {
	ts := testdata.NewTestSuite(t)
	ts.Server.WithErrorResponse("GET "+docPath("tests/abc"), http.StatusServiceUnavailable, "UNAVAILABLE", "try later")
	budget := 200 * time.Millisecond
	client := newTestClient(t, ts, newStaticSession(), testConfig(ts.BaseURL).WithBackoff(fastBackoff(budget)))

	elapsed := testdata.MeasureTime(func() {
		_, err := client.Get(ts.Context, "tests", "abc")
		assert.Equal(t, KindBudgetExhausted, KindOf(err))

		var apiErr *APIError
		require.True(t, errors.As(err, &apiErr))
		assert.Equal(t, http.StatusServiceUnavailable, apiErr.Code)
	})

	assert.Less(t, elapsed, budget+time.Second)
	assert.Greater(t, len(ts.Server.RequestsTo(docPath("tests/abc"))), 1)
}

func TestClient_TransportErrors(t *testing.T) {
	ts := testdata.NewTestSuite(t)
	baseURL := ts.BaseURL
	ts.Server.Close()

	client := newTestClient(t, ts, newStaticSession(), testConfig(baseURL).WithBackoff(fastBackoff(100*time.Millisecond)))

	_, err := client.Get(context.Background(), "tests", "abc")
	assert.Equal(t, KindBudgetExhausted, KindOf(err))

	var netErr *TransportError
	assert.True(t, errors.As(err, &netErr))
}

func TestClient_SessionErrorsAreNotRetried(t *testing.T) {
	ts := testdata.NewTestSuite(t)
	session := newStaticSession()
	session.err = &AuthenticationError{Message: "token expired and the session cannot refresh"}
	client := newTestClient(t, ts, session, nil)

	_, err := client.Get(ts.Context, "tests", "abc")
	assert.Equal(t, KindAuthentication, KindOf(err))
	assert.Equal(t, int32(1), session.calls.Load())
	assert.Empty(t, ts.Server.RequestsTo(docPath("")))
}

func TestClient_Write(t *testing.T) {
	tests := []struct {
		name      string
		opts      WriteOptions
		fields    Fields
		wantMask  []string
		wantExist string
	}{
		{
			name:   "replace",
			fields: Fields{"a": Int(1)},
		},
		{
			name:     "merge sends a sorted quoted mask",
			opts:     WriteOptions{Merge: true},
			fields:   Fields{"b": Int(1), "a": Int(2), "000": Int(3), "with space": Null()},
			wantMask: []string{"`000`", "a", "b", "`with space`"},
		},
		{
			name:      "replace with must exist",
			opts:      WriteOptions{Precondition: MustExist()},
			fields:    Fields{"a": Int(1)},
			wantExist: "true",
		},
		{
			name:      "merge with must not exist",
			opts:      WriteOptions{Merge: true, Precondition: MustNotExist()},
			fields:    Fields{"a": Int(1)},
			wantMask:  []string{"a"},
			wantExist: "false",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := testdata.NewTestSuite(t)
			ts.Server.RegisterHandler("PATCH "+docPath("tests/abc"), echoDocument("tests/abc"))
			client := newTestClient(t, ts, newStaticSession(), nil)

			result, err := client.Write(ts.Context, "tests", "abc", tt.fields, tt.opts)
			require.NoError(t, err)
			assert.Equal(t, "abc", result.DocumentID)

			reqs := ts.Server.RequestsTo(docPath("tests/abc"))
			require.Len(t, reqs, 1)
			q := parseQuery(t, reqs[0].Query)
			if tt.wantMask == nil {
				assert.Empty(t, q["updateMask.fieldPaths"])
			} else {
				assert.Equal(t, tt.wantMask, q["updateMask.fieldPaths"])
			}
			assert.Equal(t, tt.wantExist, q.Get("currentDocument.exists"))
		})
	}
}

func TestClient_WriteEmptyMerge(t *testing.T) {
	ts := testdata.NewTestSuite(t)
	client := newTestClient(t, ts, newStaticSession(), nil)

	_, err := client.Write(ts.Context, "tests", "abc", Fields{}, WriteOptions{Merge: true})
	assert.Equal(t, KindSerialization, KindOf(err))
	assert.Equal(t, 0, ts.Server.GetRequestCount())
}

func TestClient_WriteWithoutIDCreates(t *testing.T) {
	ts := testdata.NewTestSuite(t)
	ts.Server.RegisterHandler("POST "+docPath("tests"), echoDocument("tests/generated"))
	client := newTestClient(t, ts, newStaticSession(), nil)

	for _, opts := range []WriteOptions{{}, {Merge: true}, {Precondition: MustNotExist()}} {
		result, err := client.Write(ts.Context, "tests", "", Fields{"a": Int(1)}, opts)
		require.NoError(t, err)
		assert.Equal(t, "generated", result.DocumentID)
	}
	assert.Len(t, ts.Server.RequestsTo(docPath("tests")), 3)
}

func TestClient_WriteWithoutIDMustExist(t *testing.T) {
	ts := testdata.NewTestSuite(t)
	client := newTestClient(t, ts, newStaticSession(), nil)

	_, err := client.Write(ts.Context, "tests", "", Fields{"a": Int(1)}, WriteOptions{Precondition: MustExist()})
	assert.Equal(t, KindSerialization, KindOf(err))
	assert.Equal(t, 0, ts.Server.GetRequestCount())
}

func TestClient_Delete(t *testing.T) {
	tests := []struct {
		name      string
		fail      bool
		wantQuery string
	}{
		{"lenient", false, ""},
		{"fail if not existing", true, "true"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := testdata.NewTestSuite(t)
			ts.Server.RegisterHandler("DELETE "+docPath("tests/abc"), func(w http.ResponseWriter, r *http.Request) (int, interface{}) {
				return http.StatusOK, map[string]interface{}{}
			})
			client := newTestClient(t, ts, newStaticSession(), nil)

			require.NoError(t, client.Delete(ts.Context, "tests/abc", tt.fail))

			reqs := ts.Server.RequestsTo(docPath("tests/abc"))
			require.Len(t, reqs, 1)
			assert.Equal(t, tt.wantQuery, parseQuery(t, reqs[0].Query).Get("currentDocument.exists"))
		})
	}
}

func TestClient_DeleteMissingStrict(t *testing.T) {
	ts := testdata.NewTestSuite(t)
	ts.Server.WithErrorResponse("DELETE "+docPath("tests/abc"), http.StatusNotFound, "NOT_FOUND", "No document to update: tests/abc")
	client := newTestClient(t, ts, newStaticSession(), nil)

	err := client.Delete(ts.Context, "tests/abc", true)
	require.Error(t, err)
	assert.True(t, IsNotFound(err))
	assert.Contains(t, err.Error(), "No document to update")
}

func TestClient_ServiceSessionEndToEnd(t *testing.T) {
	ts := testdata.NewTestSuite(t)
	ts.Server.RegisterHandler("GET "+docPath("tests/abc"), func(w http.ResponseWriter, r *http.Request) (int, interface{}) {
		return http.StatusOK, wireDoc("tests/abc", Fields{})
	})
	config := testConfig(ts.BaseURL)
	session := newTestServiceSession(t, config)
	client := newTestClient(t, ts, session, config)

	for i := 0; i < 3; i++ {
		_, err := client.Get(ts.Context, "tests", "abc")
		require.NoError(t, err)
	}

	reqs := ts.Server.RequestsTo(docPath("tests/abc"))
	require.Len(t, reqs, 3)
	for _, r := range reqs {
		assert.Equal(t, "Bearer mock-token-1", r.Headers.Get("Authorization"))
	}
	assert.Len(t, ts.Server.RequestsTo("/oauth2/token"), 1)
}

func TestClient_TokenExchangeRetried(t *testing.T) {
	ts := testdata.NewTestSuite(t)
	ts.Server.WithRetryResponse("POST /oauth2/token", 1, http.StatusServiceUnavailable,
		func(w http.ResponseWriter, r *http.Request) (int, interface{}) {
			return http.StatusOK, map[string]interface{}{"access_token": "late-token", "expires_in": 3600}
		})
	ts.Server.RegisterHandler("GET "+docPath("tests/abc"), func(w http.ResponseWriter, r *http.Request) (int, interface{}) {
		return http.StatusOK, wireDoc("tests/abc", Fields{})
	})
	config := testConfig(ts.BaseURL)
	client := newTestClient(t, ts, newTestServiceSession(t, config), config)

	_, err := client.Get(ts.Context, "tests", "abc")
	require.NoError(t, err)
	assert.Len(t, ts.Server.RequestsTo("/oauth2/token"), 2)
}

func TestClient_Headers(t *testing.T) {
	ts := testdata.NewTestSuite(t)
	ts.Server.RegisterHandler("GET "+docPath("tests/abc"), func(w http.ResponseWriter, r *http.Request) (int, interface{}) {
		return http.StatusOK, wireDoc("tests/abc", Fields{})
	})
	config := testConfig(ts.BaseURL).WithHeader("X-Goog-Request-Reason", "tests")
	client := newTestClient(t, ts, newStaticSession(), config)

	_, err := client.Get(ts.Context, "tests", "abc")
	require.NoError(t, err)

	reqs := ts.Server.RequestsTo(docPath("tests/abc"))
	require.Len(t, reqs, 1)
	assert.Equal(t, "tests", reqs[0].Headers.Get("X-Goog-Request-Reason"))
	assert.Equal(t, userAgent, reqs[0].Headers.Get("User-Agent"))
}

func TestAbsToRel(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"projects/p/databases/(default)/documents/users/alice", "users/alice"},
		{"projects/p/databases/(default)/documents/a/b/c/d", "a/b/c/d"},
		{"users/alice", "users/alice"},
		{"projects/p/databases/(default)", "projects/p/databases/(default)"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, AbsToRel(tt.in), tt.in)
	}
}
