package emulator

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/birbparty/firenest/sdk"
	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

const docsPrefix = "/v1/projects/test-project/databases/(default)/documents"

type HandlerTestSuite struct {
	suite.Suite
	cfg   *Config
	store *Store
	app   *fiber.App
	token string
}

func (s *HandlerTestSuite) SetupTest() {
	s.cfg = DefaultConfig()
	s.cfg.APIKey = "test-key"
	s.store = NewStore()
	auth := NewAuthority(s.cfg)
	s.app = NewApp(s.cfg, s.store, auth)

	token, err := auth.issue(jwt.MapClaims{"sub": "tester"})
	s.Require().NoError(err)
	s.token = token
}

func (s *HandlerTestSuite) do(method, target string, body interface{}) (int, []byte) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		s.Require().NoError(err)
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, target, reader)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+s.token)

	resp, err := s.app.Test(req, -1)
	s.Require().NoError(err)
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	s.Require().NoError(err)
	return resp.StatusCode, data
}

func (s *HandlerTestSuite) decode(data []byte, dest interface{}) {
	s.Require().NoError(json.Unmarshal(data, dest), string(data))
}

func (s *HandlerTestSuite) requireError(status int, data []byte, wantCode int, wantStatus string) {
	s.Require().Equal(wantCode, status, string(data))
	var envelope ErrorResponse
	s.decode(data, &envelope)
	s.Equal(wantCode, envelope.Error.Code)
	s.Equal(wantStatus, envelope.Error.Status)
}

func (s *HandlerTestSuite) createDoc(collection, id string, fields map[string]sdk.Value) *DocumentResponse {
	status, data := s.do(http.MethodPost, docsPrefix+"/"+collection+"?documentId="+id, DocumentRequest{Fields: fields})
	s.Require().Equal(http.StatusOK, status, string(data))
	var doc DocumentResponse
	s.decode(data, &doc)
	return &doc
}

func (s *HandlerTestSuite) TestCreateAndGet() {
	doc := s.createDoc("tests", "one", map[string]sdk.Value{"a_string": sdk.String("abc")})
	s.Equal("projects/test-project/databases/(default)/documents/tests/one", doc.Name)

	status, data := s.do(http.MethodGet, docsPrefix+"/tests/one", nil)
	s.Require().Equal(http.StatusOK, status)
	var got DocumentResponse
	s.decode(data, &got)
	s.Equal(sdk.String("abc"), got.Fields["a_string"])

	status, data = s.do(http.MethodPost, docsPrefix+"/tests?documentId=one", DocumentRequest{})
	s.requireError(status, data, http.StatusConflict, StatusAlreadyExists)

	status, data = s.do(http.MethodGet, docsPrefix+"/tests/missing", nil)
	s.requireError(status, data, http.StatusNotFound, StatusNotFound)
}

func (s *HandlerTestSuite) TestEscapedDocumentID() {
	s.createDoc("tests", url.PathEscape("with space"), nil)

	status, _ := s.do(http.MethodGet, docsPrefix+"/tests/"+url.PathEscape("with space"), nil)
	s.Equal(http.StatusOK, status)
}

func (s *HandlerTestSuite) TestPatch() {
	s.createDoc("tests", "doc", map[string]sdk.Value{"a": sdk.Int(1), "b": sdk.Int(2)})

	body := DocumentRequest{Fields: map[string]sdk.Value{"a": sdk.Int(10)}}
	status, data := s.do(http.MethodPatch, docsPrefix+"/tests/doc?updateMask.fieldPaths=a&updateMask.fieldPaths=c", body)
	s.Require().Equal(http.StatusOK, status, string(data))

	var doc DocumentResponse
	s.decode(data, &doc)
	s.Equal(sdk.Int(10), doc.Fields["a"])
	s.Equal(sdk.Int(2), doc.Fields["b"])
	s.NotContains(doc.Fields, "c")

	status, data = s.do(http.MethodPatch, docsPrefix+"/tests/doc", body)
	s.Require().Equal(http.StatusOK, status)
	var replaced DocumentResponse
	s.decode(data, &replaced)
	s.Equal(map[string]sdk.Value{"a": sdk.Int(10)}, replaced.Fields)

	status, data = s.do(http.MethodGet, docsPrefix+"/tests/doc", nil)
	s.Require().Equal(http.StatusOK, status)
	var stored DocumentResponse
	s.decode(data, &stored)
	s.Equal(map[string]sdk.Value{"a": sdk.Int(10)}, stored.Fields)

	status, data = s.do(http.MethodPatch, docsPrefix+"/tests/other?currentDocument.exists=true", body)
	s.requireError(status, data, http.StatusNotFound, StatusNotFound)

	status, data = s.do(http.MethodPatch, docsPrefix+"/tests/other?currentDocument.exists=maybe", body)
	s.requireError(status, data, http.StatusBadRequest, StatusInvalidArgument)

	status, data = s.do(http.MethodPatch, docsPrefix+"/tests", body)
	s.requireError(status, data, http.StatusBadRequest, StatusInvalidArgument)
}

func (s *HandlerTestSuite) TestDelete() {
	status, data := s.do(http.MethodDelete, docsPrefix+"/tests/doc?currentDocument.exists=true", nil)
	s.requireError(status, data, http.StatusNotFound, StatusNotFound)

	var envelope ErrorResponse
	s.decode(data, &envelope)
	s.Contains(envelope.Error.Message, "No document to update")

	status, _ = s.do(http.MethodDelete, docsPrefix+"/tests/doc", nil)
	s.Equal(http.StatusOK, status)

	s.createDoc("tests", "doc", nil)
	status, data = s.do(http.MethodDelete, docsPrefix+"/tests/doc?currentDocument.exists=true", nil)
	s.Require().Equal(http.StatusOK, status)
	s.JSONEq(`{}`, string(data))
	s.Equal(0, s.store.Len())
}

func (s *HandlerTestSuite) TestList() {
	for _, id := range []string{"c", "a", "b"} {
		s.createDoc("items", id, map[string]sdk.Value{"id": sdk.String(id)})
	}

	status, data := s.do(http.MethodGet, docsPrefix+"/items?pageSize=2", nil)
	s.Require().Equal(http.StatusOK, status)
	var page ListResponse
	s.decode(data, &page)
	s.Require().Len(page.Documents, 2)
	s.Require().NotEmpty(page.NextPageToken)

	status, data = s.do(http.MethodGet, docsPrefix+"/items?pageSize=2&pageToken="+page.NextPageToken, nil)
	s.Require().Equal(http.StatusOK, status)
	var next ListResponse
	s.decode(data, &next)
	s.Require().Len(next.Documents, 1)
	s.Empty(next.NextPageToken)
	s.Equal("items/c", sdk.AbsToRel(next.Documents[0].Name))

	status, data = s.do(http.MethodGet, docsPrefix+"/empty", nil)
	s.Require().Equal(http.StatusOK, status)
	s.JSONEq(`{}`, string(data))
}

func (s *HandlerTestSuite) TestRunQuery() {
	s.createDoc("tests", "a", map[string]sdk.Value{"a_string": sdk.String("abc")})
	s.createDoc("tests", "b", map[string]sdk.Value{"a_string": sdk.String("def")})

	query := RunQueryRequest{StructuredQuery: &StructuredQuery{
		From:  []CollectionSelector{{CollectionID: "tests"}},
		Where: fieldFilter("a_string", opEqual, sdk.String("abc")),
	}}
	status, data := s.do(http.MethodPost, docsPrefix+":runQuery", query)
	s.Require().Equal(http.StatusOK, status, string(data))

	var results []RunQueryResponse
	s.decode(data, &results)
	s.Require().Len(results, 1)
	s.Require().NotNil(results[0].Document)
	s.Equal("tests/a", sdk.AbsToRel(results[0].Document.Name))
	s.NotEmpty(results[0].ReadTime)

	query.StructuredQuery.Where = fieldFilter("a_string", opEqual, sdk.String("none"))
	status, data = s.do(http.MethodPost, docsPrefix+":runQuery", query)
	s.Require().Equal(http.StatusOK, status)
	var empty []RunQueryResponse
	s.decode(data, &empty)
	s.Require().Len(empty, 1)
	s.Nil(empty[0].Document, "an empty result carries only a read time")

	status, data = s.do(http.MethodPost, docsPrefix+"/tests/a:runQuery", query)
	s.Equal(http.StatusOK, status, string(data))

	status, data = s.do(http.MethodPost, docsPrefix+"/tests:runQuery", query)
	s.requireError(status, data, http.StatusBadRequest, StatusInvalidArgument)

	status, data = s.do(http.MethodPost, docsPrefix+":runQuery", RunQueryRequest{})
	s.requireError(status, data, http.StatusBadRequest, StatusInvalidArgument)
}

func (s *HandlerTestSuite) TestInvalidJSON() {
	req := httptest.NewRequest(http.MethodPost, docsPrefix+"/tests", strings.NewReader("{"))
	req.Header.Set("Authorization", "Bearer "+s.token)
	resp, err := s.app.Test(req, -1)
	s.Require().NoError(err)
	s.Equal(http.StatusBadRequest, resp.StatusCode)
}

func (s *HandlerTestSuite) TestAuthRequired() {
	s.token = ""
	status, data := s.do(http.MethodGet, docsPrefix+"/tests/doc", nil)
	s.requireError(status, data, http.StatusUnauthorized, StatusUnauthenticated)

	s.token = "forged"
	status, data = s.do(http.MethodGet, docsPrefix+"/tests/doc", nil)
	s.requireError(status, data, http.StatusUnauthorized, StatusUnauthenticated)
}

func (s *HandlerTestSuite) TestTokenEndpoints() {
	assertion := clientToken(s.T(), jwt.MapClaims{"iss": "svc@test-project.iam.gserviceaccount.com"})
	form := url.Values{
		"grant_type": {"urn:ietf:params:oauth:grant-type:jwt-bearer"},
		"assertion":  {assertion},
	}
	req := httptest.NewRequest(http.MethodPost, "/oauth2/token", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	resp, err := s.app.Test(req, -1)
	s.Require().NoError(err)
	s.Require().Equal(http.StatusOK, resp.StatusCode)

	var service ServiceTokenResponse
	s.Require().NoError(json.NewDecoder(resp.Body).Decode(&service))
	s.NotEmpty(service.AccessToken)

	s.token = service.AccessToken
	status, _ := s.do(http.MethodGet, docsPrefix+"/tests/missing", nil)
	s.Equal(http.StatusNotFound, status, "the issued token is accepted")

	custom := clientToken(s.T(), jwt.MapClaims{"uid": "alice"})
	status, data := s.do(http.MethodPost, "/identitytoolkit/v1/accounts:signInWithCustomToken?key=test-key",
		SignInRequest{Token: custom, ReturnSecureToken: true})
	s.Require().Equal(http.StatusOK, status, string(data))
	var signIn SignInResponse
	s.decode(data, &signIn)
	s.Equal("alice", signIn.LocalID)

	form = url.Values{"grant_type": {"refresh_token"}, "refresh_token": {signIn.RefreshToken}}
	req = httptest.NewRequest(http.MethodPost, "/securetoken/v1/token?key=test-key", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	resp, err = s.app.Test(req, -1)
	s.Require().NoError(err)
	s.Require().Equal(http.StatusOK, resp.StatusCode)

	var refreshed SecureTokenResponse
	s.Require().NoError(json.NewDecoder(resp.Body).Decode(&refreshed))
	s.Equal("alice", refreshed.UserID)
	s.Equal(s.cfg.ProjectID, refreshed.ProjectID)

	status, data = s.do(http.MethodPost, "/identitytoolkit/v1/accounts:signInWithCustomToken?key=wrong",
		SignInRequest{Token: custom})
	s.requireError(status, data, http.StatusBadRequest, StatusInvalidArgument)
}

func (s *HandlerTestSuite) TestReset() {
	s.createDoc("tests", "a", nil)
	status, _ := s.do(http.MethodDelete, "/emulator/v1/projects/test-project/databases/(default)/documents", nil)
	s.Equal(http.StatusOK, status)
	s.Equal(0, s.store.Len())
}

func (s *HandlerTestSuite) TestHealthAndNotFound() {
	s.token = ""
	status, data := s.do(http.MethodGet, "/health", nil)
	s.Require().Equal(http.StatusOK, status)
	var health HealthResponse
	s.decode(data, &health)
	s.Equal("healthy", health.Status)

	status, data = s.do(http.MethodGet, "/nowhere", nil)
	s.requireError(status, data, http.StatusNotFound, StatusNotFound)

	status, _ = s.do(http.MethodGet, "/metrics", nil)
	s.Equal(http.StatusOK, status)
}

func (s *HandlerTestSuite) TestMetricsAfterMixedTraffic() {
	s.createDoc("tests", "doc", map[string]sdk.Value{"a": sdk.Int(1)})
	body := DocumentRequest{Fields: map[string]sdk.Value{"a": sdk.Int(2)}}
	for i := 0; i < 3; i++ {
		s.do(http.MethodGet, docsPrefix+"/tests/doc", nil)
		s.do(http.MethodPatch, docsPrefix+"/tests/doc", body)
		s.do(http.MethodGet, docsPrefix+"/tests", nil)
		s.do(http.MethodDelete, docsPrefix+"/tests/gone", nil)
		s.do(http.MethodGet, "/health", nil)
	}

	status, data := s.do(http.MethodGet, "/metrics", nil)
	s.Require().Equal(http.StatusOK, status, string(data))
	s.Contains(string(data), `method="PATCH"`)
	s.Contains(string(data), `method="DELETE"`)
}

func TestHandlerSuite(t *testing.T) {
	suite.Run(t, new(HandlerTestSuite))
}

func TestRateLimiter(t *testing.T) {
	cfg := DefaultConfig()
	cfg.RateLimit = 2
	app := NewApp(cfg, NewStore(), NewAuthority(cfg))

	codes := make([]int, 0, 3)
	var envelope ErrorResponse
	for i := 0; i < 3; i++ {
		resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/health", nil), -1)
		require.NoError(t, err)
		codes = append(codes, resp.StatusCode)
		if resp.StatusCode == http.StatusTooManyRequests {
			require.NoError(t, json.NewDecoder(resp.Body).Decode(&envelope))
		}
		resp.Body.Close()
	}
	assert.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, codes)
	assert.Equal(t, StatusResourceExhausted, envelope.Error.Status)
}

func TestAuthDisabled(t *testing.T) {
	cfg := DefaultConfig()
	cfg.RequireAuth = false
	app := NewApp(cfg, NewStore(), NewAuthority(cfg))

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, docsPrefix+"/tests/doc", nil), -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}
