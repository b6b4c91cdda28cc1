package sdk

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Document is a document as returned by the service.
type Document struct {
	// Name is the absolute name:
	// projects/{p}/databases/{d}/documents/{collection}/{id}
	Name       string
	Fields     Fields
	CreateTime time.Time
	UpdateTime time.Time
}

// ID returns the last segment of the document name
func (d *Document) ID() string {
	if i := strings.LastIndex(d.Name, "/"); i >= 0 {
		return d.Name[i+1:]
	}
	return d.Name
}

// RelativePath returns the name without the documents root, suitable for
// Delete.
func (d *Document) RelativePath() string {
	return AbsToRel(d.Name)
}

// DataTo decodes the document fields into dest
func (d *Document) DataTo(dest Decoder) error {
	if err := dest.DecodeFields(d.Fields); err != nil {
		var serErr *SerializationError
		if errors.As(err, &serErr) {
			return err
		}
		return &SerializationError{Message: "cannot decode " + d.Name, Err: err}
	}
	return nil
}

// documentWire is the document JSON representation
type documentWire struct {
	Name       string           `json:"name,omitempty"`
	Fields     map[string]Value `json:"fields,omitempty"`
	CreateTime string           `json:"createTime,omitempty"`
	UpdateTime string           `json:"updateTime,omitempty"`
}

func (w *documentWire) document() (*Document, error) {
	doc := &Document{Name: w.Name, Fields: Fields(w.Fields)}
	if doc.Fields == nil {
		doc.Fields = Fields{}
	}
	var err error
	if w.CreateTime != "" {
		if doc.CreateTime, err = time.Parse(time.RFC3339Nano, w.CreateTime); err != nil {
			return nil, &SerializationError{Field: "createTime", Message: "malformed timestamp", Err: err}
		}
	}
	if w.UpdateTime != "" {
		if doc.UpdateTime, err = time.Parse(time.RFC3339Nano, w.UpdateTime); err != nil {
			return nil, &SerializationError{Field: "updateTime", Message: "malformed timestamp", Err: err}
		}
	}
	return doc, nil
}

// Precondition is checked by the service before applying a write or delete.
type Precondition struct {
	// Exists requires the document to exist (true) or not exist (false).
	// nil means unconditional.
	Exists *bool
}

// MustExist is the precondition that the document already exists
func MustExist() *Precondition {
	exists := true
	return &Precondition{Exists: &exists}
}

// MustNotExist is the precondition that the document does not exist yet
func MustNotExist() *Precondition {
	exists := false
	return &Precondition{Exists: &exists}
}

func (p *Precondition) apply(query url.Values) {
	if p != nil && p.Exists != nil {
		query.Set("currentDocument.exists", strconv.FormatBool(*p.Exists))
	}
}

// WriteOptions controls Write.
type WriteOptions struct {
	// Merge restricts the write to the top level fields present in the
	// value, leaving all other fields untouched. When false the document's
	// field set is replaced.
	Merge bool

	// Precondition is checked before the write. A merge write does not
	// imply one: it creates the document when absent.
	Precondition *Precondition
}

// WriteResult describes a successful create or write.
type WriteResult struct {
	DocumentID string
	CreateTime time.Time
	UpdateTime time.Time
}

func writeResult(doc *Document) *WriteResult {
	return &WriteResult{
		DocumentID: doc.ID(),
		CreateTime: doc.CreateTime,
		UpdateTime: doc.UpdateTime,
	}
}

func encodeDocument(value Encoder) (*documentWire, error) {
	fields, err := value.EncodeFields()
	if err != nil {
		var serErr *SerializationError
		if errors.As(err, &serErr) {
			return nil, err
		}
		return nil, &SerializationError{Message: "cannot encode value", Err: err}
	}
	return &documentWire{Fields: fields}, nil
}

// Create creates collection/documentID. It fails with an APIError of status
// 409 when the document already exists. An empty documentID lets the
// service generate one; WriteResult.DocumentID reports it.
//
// Example:
//
//	_, err := client.Create(ctx, "users", "alice", user)
//	if sdk.IsConflict(err) {
//	    // already there, ignore
//	}
func (c *Client) Create(ctx context.Context, collection, documentID string, value Encoder) (*WriteResult, error) {
	body, err := encodeDocument(value)
	if err != nil {
		return nil, err
	}

	query := url.Values{}
	if documentID != "" {
		query.Set("documentId", documentID)
	}

	var resp documentWire
	subject := joinPath(collection, documentID)
	if err := c.call(ctx, "create", http.MethodPost, c.documentURL(collection, "", query), subject, body, &resp); err != nil {
		return nil, err
	}
	doc, err := resp.document()
	if err != nil {
		return nil, err
	}
	return writeResult(doc), nil
}

// Get reads collection/documentID. It fails with an APIError of status 404
// when the document does not exist.
func (c *Client) Get(ctx context.Context, collection, documentID string) (*Document, error) {
	path := joinPath(collection, documentID)
	return c.get(ctx, "read", c.documentURL(path, "", nil), path)
}

// Read reads collection/documentID and decodes it into dest.
func (c *Client) Read(ctx context.Context, collection, documentID string, dest Decoder) error {
	doc, err := c.Get(ctx, collection, documentID)
	if err != nil {
		return err
	}
	return doc.DataTo(dest)
}

// GetByName reads a document by its absolute name, as found in
// Document.Name or in a reference value.
func (c *Client) GetByName(ctx context.Context, name string) (*Document, error) {
	target := c.config.FirestoreURL + "/" + escapePath(name)
	return c.get(ctx, "read", target, name)
}

// ReadByName reads a document by its absolute name and decodes it into dest.
func (c *Client) ReadByName(ctx context.Context, name string, dest Decoder) error {
	doc, err := c.GetByName(ctx, name)
	if err != nil {
		return err
	}
	return doc.DataTo(dest)
}

func (c *Client) get(ctx context.Context, op, target, subject string) (*Document, error) {
	var resp documentWire
	if err := c.call(ctx, op, http.MethodGet, target, subject, nil, &resp); err != nil {
		return nil, err
	}
	return resp.document()
}

// Write writes value to collection/documentID.
//
// Without Merge the document's field set is replaced: fields missing from
// value are removed. With Merge only the top level fields of value are
// written and every other field is left untouched. Neither mode requires
// the document to exist unless opts.Precondition says so.
//
// An empty documentID creates a new document with a generated id. Merge
// and a MustNotExist precondition trivially hold for a new document; a
// MustExist precondition never does and fails with a SerializationError
// before any request is made.
//
// Example:
//
//	// update the score, keep everything else
//	_, err := client.Write(ctx, "users", "alice",
//	    sdk.Fields{"score": sdk.Int(42)},
//	    sdk.WriteOptions{Merge: true})
func (c *Client) Write(ctx context.Context, collection, documentID string, value Encoder, opts WriteOptions) (*WriteResult, error) {
	if documentID == "" {
		if p := opts.Precondition; p != nil && p.Exists != nil && *p.Exists {
			return nil, &SerializationError{Message: "a document with a generated id cannot already exist"}
		}
		return c.Create(ctx, collection, "", value)
	}

	body, err := encodeDocument(value)
	if err != nil {
		return nil, err
	}

	query := url.Values{}
	if opts.Merge {
		if len(body.Fields) == 0 {
			return nil, &SerializationError{Message: "a merge write needs at least one field"}
		}
		for _, name := range sortedKeys(body.Fields) {
			query.Add("updateMask.fieldPaths", quoteSegment(name))
		}
	}
	opts.Precondition.apply(query)

	path := joinPath(collection, documentID)
	var resp documentWire
	if err := c.call(ctx, "write", http.MethodPatch, c.documentURL(path, "", query), path, body, &resp); err != nil {
		return nil, err
	}
	doc, err := resp.document()
	if err != nil {
		return nil, err
	}
	return writeResult(doc), nil
}

// Delete deletes the document at path, which must be relative to the
// documents root (see AbsToRel). When failIfNotExisting is true a missing
// document fails with an APIError of status 404; otherwise deleting a
// missing document succeeds.
func (c *Client) Delete(ctx context.Context, path string, failIfNotExisting bool) error {
	query := url.Values{}
	if failIfNotExisting {
		MustExist().apply(query)
	}
	return c.call(ctx, "delete", http.MethodDelete, c.documentURL(path, "", query), path, nil, nil)
}

func joinPath(collection, documentID string) string {
	collection = strings.Trim(collection, "/")
	if documentID == "" {
		return collection
	}
	return collection + "/" + documentID
}

func sortedKeys(fields map[string]Value) []string {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
