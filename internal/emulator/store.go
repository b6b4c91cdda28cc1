package emulator

import (
	"encoding/base64"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/birbparty/firenest/sdk"
	"github.com/google/uuid"
)

const (
	defaultPageSize = 100
	maxPageSize     = 300
)

type storedDocument struct {
	fields     map[string]sdk.Value
	createTime time.Time
	updateTime time.Time
}

func (d *storedDocument) response(name string) *DocumentResponse {
	return &DocumentResponse{
		Name:       name,
		Fields:     copyFields(d.fields),
		CreateTime: formatTime(d.createTime),
		UpdateTime: formatTime(d.updateTime),
	}
}

// Store is an in-memory document database keyed by absolute document name.
// It is safe for concurrent use.
type Store struct {
	mu   sync.RWMutex
	docs map[string]*storedDocument
	now  func() time.Time
	last time.Time
}

// NewStore creates an empty store
func NewStore() *Store {
	return &Store{
		docs: make(map[string]*storedDocument),
		now:  time.Now,
	}
}

// tick returns a strictly increasing commit time with microsecond precision.
// Callers must hold the write lock.
func (s *Store) tick() time.Time {
	t := s.now().UTC().Truncate(time.Microsecond)
	if !t.After(s.last) {
		t = s.last.Add(time.Microsecond)
	}
	s.last = t
	return t
}

// NewDocumentID returns a 20 character generated id
func NewDocumentID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:20]
}

// Create stores a new document named collection/id. An empty id is
// generated. It fails with ALREADY_EXISTS when the name is taken.
func (s *Store) Create(collection, id string, fields map[string]sdk.Value) (*DocumentResponse, error) {
	if id == "" {
		id = NewDocumentID()
	}
	name := collection + "/" + id

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.docs[name]; ok {
		return nil, alreadyExists("Document already exists: %s", name)
	}
	now := s.tick()
	doc := &storedDocument{fields: copyFields(fields), createTime: now, updateTime: now}
	s.docs[name] = doc
	return doc.response(name), nil
}

// Get returns the document called name
func (s *Store) Get(name string) (*DocumentResponse, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	doc, ok := s.docs[name]
	if !ok {
		return nil, notFound("Document %q not found", name)
	}
	return doc.response(name), nil
}

// Patch writes fields to the document called name.
//
// Without a mask the document's fields are replaced. With a mask only the
// listed paths change: a path present in fields is set, a path absent from
// fields is removed. exists, when non-nil, is checked first.
func (s *Store) Patch(name string, fields map[string]sdk.Value, mask []string, exists *bool) (*DocumentResponse, error) {
	paths := make([][]string, 0, len(mask))
	for _, p := range mask {
		segments, err := parseFieldPath(p)
		if err != nil {
			return nil, invalidArgument("%v", err)
		}
		paths = append(paths, segments)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	doc, found := s.docs[name]
	if exists != nil {
		if *exists && !found {
			return nil, notFound("No document to update: %s", name)
		}
		if !*exists && found {
			return nil, alreadyExists("Document already exists: %s", name)
		}
	}

	now := s.tick()
	if !found {
		doc = &storedDocument{fields: map[string]sdk.Value{}, createTime: now}
		s.docs[name] = doc
	}

	if mask == nil {
		doc.fields = copyFields(fields)
	} else {
		updated := copyFields(doc.fields)
		for _, segments := range paths {
			if v, ok := lookup(fields, segments); ok {
				assign(updated, segments, v)
			} else {
				remove(updated, segments)
			}
		}
		doc.fields = updated
	}
	doc.updateTime = now
	return doc.response(name), nil
}

// Delete removes the document called name. With exists set to true a
// missing document fails with NOT_FOUND; otherwise deleting nothing
// succeeds. Subcollections are left in place.
func (s *Store) Delete(name string, exists *bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, found := s.docs[name]
	if exists != nil {
		if *exists && !found {
			return notFound("No document to update: %s", name)
		}
		if !*exists && found {
			return alreadyExists("Document already exists: %s", name)
		}
	}
	delete(s.docs, name)
	return nil
}

// List returns one page of the documents directly inside collection,
// ordered by name.
func (s *Store) List(collection string, pageSize int, pageToken string) (*ListResponse, error) {
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}
	start := ""
	if pageToken != "" {
		decoded, err := base64.RawURLEncoding.DecodeString(pageToken)
		if err != nil {
			return nil, invalidArgument("invalid page token")
		}
		start = string(decoded)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	names := s.childrenLocked(collection)
	i := sort.SearchStrings(names, start)

	resp := &ListResponse{}
	for ; i < len(names) && len(resp.Documents) < pageSize; i++ {
		resp.Documents = append(resp.Documents, s.docs[names[i]].response(names[i]))
	}
	if i < len(names) {
		resp.NextPageToken = base64.RawURLEncoding.EncodeToString([]byte(names[i]))
	}
	return resp, nil
}

// Query runs q against the collections below parent. Results are ordered by
// the query's orderings, then by name.
func (s *Store) Query(parent string, q *StructuredQuery) ([]*DocumentResponse, error) {
	plan, err := planQuery(q)
	if err != nil {
		return nil, err
	}

	s.mu.RLock()
	var matched []*DocumentResponse
	for _, name := range s.sortedNamesLocked() {
		if !plan.selects(parent, name) {
			continue
		}
		doc := s.docs[name]
		if plan.matches(doc.fields) {
			matched = append(matched, doc.response(name))
		}
	}
	s.mu.RUnlock()

	plan.sort(matched)
	if q.Limit != nil && int(*q.Limit) < len(matched) {
		matched = matched[:*q.Limit]
	}
	return matched, nil
}

// Len returns the number of stored documents
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.docs)
}

// Reset removes every document
func (s *Store) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.docs = make(map[string]*storedDocument)
}

func (s *Store) sortedNamesLocked() []string {
	names := make([]string, 0, len(s.docs))
	for name := range s.docs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// childrenLocked returns the sorted names of documents directly inside
// collection
func (s *Store) childrenLocked(collection string) []string {
	prefix := collection + "/"
	var names []string
	for name := range s.docs {
		if rest, ok := strings.CutPrefix(name, prefix); ok && !strings.Contains(rest, "/") {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

func copyFields(fields map[string]sdk.Value) map[string]sdk.Value {
	out := make(map[string]sdk.Value, len(fields))
	for k, v := range fields {
		out[k] = v
	}
	return out
}
