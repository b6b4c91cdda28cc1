package emulator

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/valyala/fasthttp"
)

// Handler holds all dependencies for emulator handlers
type Handler struct {
	store     *Store
	auth      *Authority
	startTime time.Time
}

// NewHandler creates a new handler instance
func NewHandler(store *Store, auth *Authority) *Handler {
	return &Handler{
		store:     store,
		auth:      auth,
		startTime: time.Now(),
	}
}

// target is a parsed document URL
type target struct {
	// root is projects/{p}/databases/{d}/documents
	root string
	// segments of the path below root
	segments []string
	// query is set for the :runQuery verb
	query bool
}

func (t *target) name() string {
	if len(t.segments) == 0 {
		return t.root
	}
	return t.root + "/" + strings.Join(t.segments, "/")
}

func (t *target) isDocument() bool {
	return len(t.segments) > 0 && len(t.segments)%2 == 0
}

func (t *target) isCollection() bool {
	return len(t.segments)%2 == 1
}

func parseTarget(c *fiber.Ctx) (*target, error) {
	rest := c.Params("*")
	rest, query := strings.CutSuffix(rest, ":runQuery")

	sub, ok := strings.CutPrefix(rest, "documents")
	if !ok || (sub != "" && sub[0] != '/') {
		return nil, notFound("unknown resource %q", rest)
	}

	t := &target{
		root:  "projects/" + c.Params("project") + "/databases/" + c.Params("database") + "/documents",
		query: query,
	}
	if sub = strings.Trim(sub, "/"); sub != "" {
		t.segments = strings.Split(sub, "/")
	}
	for _, s := range t.segments {
		if s == "" {
			return nil, invalidArgument("empty path segment in %q", rest)
		}
	}
	return t, nil
}

// GetDocuments handles GET on a document (read) or a collection (list)
func (h *Handler) GetDocuments(c *fiber.Ctx) error {
	t, err := parseTarget(c)
	if err != nil {
		return fail(c, err)
	}

	switch {
	case t.query:
		return fail(c, invalidArgument("runQuery requires POST"))
	case t.isDocument():
		doc, err := h.store.Get(t.name())
		h.record("get", err)
		if err != nil {
			return fail(c, err)
		}
		return c.JSON(doc)
	case t.isCollection():
		pageSize, _ := strconv.Atoi(c.Query("pageSize"))
		page, err := h.store.List(t.name(), pageSize, c.Query("pageToken"))
		h.record("list", err)
		if err != nil {
			return fail(c, err)
		}
		return c.JSON(page)
	default:
		return fail(c, invalidArgument("cannot read the documents root"))
	}
}

// PostDocuments handles POST on a collection (create) or a :runQuery verb
func (h *Handler) PostDocuments(c *fiber.Ctx) error {
	t, err := parseTarget(c)
	if err != nil {
		return fail(c, err)
	}
	if t.query {
		return h.runQuery(c, t)
	}
	if !t.isCollection() {
		return fail(c, invalidArgument("documents can only be created in a collection"))
	}

	var req DocumentRequest
	if err := decodeBody(c, &req); err != nil {
		return fail(c, err)
	}

	doc, err := h.store.Create(t.name(), c.Query("documentId"), req.Fields)
	h.record("create", err)
	if err != nil {
		return fail(c, err)
	}
	UpdateStoredDocuments(h.store.Len())
	return c.JSON(doc)
}

func (h *Handler) runQuery(c *fiber.Ctx, t *target) error {
	if len(t.segments) != 0 && !t.isDocument() {
		return fail(c, invalidArgument("a query parent must be the documents root or a document"))
	}

	var req RunQueryRequest
	if err := decodeBody(c, &req); err != nil {
		return fail(c, err)
	}

	docs, err := h.store.Query(t.name(), req.StructuredQuery)
	h.record("query", err)
	if err != nil {
		return fail(c, err)
	}

	readTime := formatTime(time.Now())
	if len(docs) == 0 {
		return c.JSON([]RunQueryResponse{{ReadTime: readTime}})
	}
	resp := make([]RunQueryResponse, len(docs))
	for i, doc := range docs {
		resp[i] = RunQueryResponse{Document: doc, ReadTime: readTime}
	}
	return c.JSON(resp)
}

// PatchDocument handles PATCH on a document (write)
func (h *Handler) PatchDocument(c *fiber.Ctx) error {
	t, err := parseTarget(c)
	if err != nil {
		return fail(c, err)
	}
	if !t.isDocument() {
		return fail(c, invalidArgument("writes must target a document"))
	}

	var req DocumentRequest
	if err := decodeBody(c, &req); err != nil {
		return fail(c, err)
	}
	exists, err := existsPrecondition(c)
	if err != nil {
		return fail(c, err)
	}

	doc, err := h.store.Patch(t.name(), req.Fields, queryValues(c.Context().QueryArgs(), "updateMask.fieldPaths"), exists)
	h.record("write", err)
	if err != nil {
		return fail(c, err)
	}
	UpdateStoredDocuments(h.store.Len())
	return c.JSON(doc)
}

// DeleteDocument handles DELETE on a document
func (h *Handler) DeleteDocument(c *fiber.Ctx) error {
	t, err := parseTarget(c)
	if err != nil {
		return fail(c, err)
	}
	if !t.isDocument() {
		return fail(c, invalidArgument("deletes must target a document"))
	}
	exists, err := existsPrecondition(c)
	if err != nil {
		return fail(c, err)
	}

	err = h.store.Delete(t.name(), exists)
	h.record("delete", err)
	if err != nil {
		return fail(c, err)
	}
	UpdateStoredDocuments(h.store.Len())
	return c.JSON(fiber.Map{})
}

// ResetDocuments handles DELETE /emulator/v1/projects/:project/databases/:database/documents
func (h *Handler) ResetDocuments(c *fiber.Ctx) error {
	h.store.Reset()
	UpdateStoredDocuments(0)
	return c.JSON(fiber.Map{})
}

// ExchangeToken handles POST /oauth2/token
func (h *Handler) ExchangeToken(c *fiber.Ctx) error {
	resp, err := h.auth.ExchangeAssertion(c.FormValue("grant_type"), c.FormValue("assertion"))
	if err != nil {
		return fail(c, err)
	}
	RecordTokenIssued("service")
	return c.JSON(resp)
}

// SignInWithCustomToken handles POST /identitytoolkit/v1/accounts:signInWithCustomToken
func (h *Handler) SignInWithCustomToken(c *fiber.Ctx) error {
	var req SignInRequest
	if err := decodeBody(c, &req); err != nil {
		return fail(c, err)
	}
	resp, err := h.auth.SignInWithCustomToken(c.Query("key"), &req)
	if err != nil {
		return fail(c, err)
	}
	RecordTokenIssued("user")
	return c.JSON(resp)
}

// RefreshToken handles POST /securetoken/v1/token
func (h *Handler) RefreshToken(c *fiber.Ctx) error {
	resp, err := h.auth.RefreshUser(c.Query("key"), c.FormValue("grant_type"), c.FormValue("refresh_token"))
	if err != nil {
		return fail(c, err)
	}
	RecordTokenIssued("user")
	return c.JSON(resp)
}

// Health handles GET /health
func (h *Handler) Health(c *fiber.Ctx) error {
	return c.JSON(HealthResponse{
		Status:  "healthy",
		Service: "firenest-emulator",
		Version: "1.0.0",
		Uptime:  time.Since(h.startTime).Round(time.Second).String(),
		Checks:  map[string]string{"store": "ok"},
		Metadata: map[string]string{
			"documents": strconv.Itoa(h.store.Len()),
		},
	})
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status   string            `json:"status"`
	Service  string            `json:"service"`
	Version  string            `json:"version"`
	Uptime   string            `json:"uptime"`
	Checks   map[string]string `json:"checks"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

func (h *Handler) record(op string, err error) {
	result := "ok"
	if apiErr, ok := err.(*Error); ok {
		result = apiErr.Status
	} else if err != nil {
		result = StatusInternal
	}
	RecordDocumentOperation(op, result)
}

func decodeBody(c *fiber.Ctx, dest interface{}) error {
	body := c.Body()
	if len(body) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, dest); err != nil {
		return invalidArgument("Invalid JSON payload received. %v", err)
	}
	return nil
}

// existsPrecondition reads currentDocument.exists
func existsPrecondition(c *fiber.Ctx) (*bool, error) {
	raw := c.Query("currentDocument.exists")
	if raw == "" {
		return nil, nil
	}
	exists, err := strconv.ParseBool(raw)
	if err != nil {
		return nil, invalidArgument("invalid currentDocument.exists %q", raw)
	}
	return &exists, nil
}

// queryValues returns every value of a repeated query parameter, or nil
// when it is absent
func queryValues(args *fasthttp.Args, key string) []string {
	raw := args.PeekMulti(key)
	if len(raw) == 0 {
		return nil
	}
	values := make([]string, len(raw))
	for i, v := range raw {
		values[i] = string(v)
	}
	return values
}
