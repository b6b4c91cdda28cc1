package sdk

import (
	"context"
	"net/http"
	"regexp"
	"strings"
)

// Operator is a field filter comparison.
type Operator string

const (
	Equal              Operator = "EQUAL"
	NotEqual           Operator = "NOT_EQUAL"
	LessThan           Operator = "LESS_THAN"
	LessThanOrEqual    Operator = "LESS_THAN_OR_EQUAL"
	GreaterThan        Operator = "GREATER_THAN"
	GreaterThanOrEqual Operator = "GREATER_THAN_OR_EQUAL"
	ArrayContains      Operator = "ARRAY_CONTAINS"
	In                 Operator = "IN"
	ArrayContainsAny   Operator = "ARRAY_CONTAINS_ANY"
	NotIn              Operator = "NOT_IN"
)

// Filter selects documents whose Field compares to Value with Op. Field is
// a dot separated path; segments that are not plain identifiers are quoted
// automatically.
type Filter struct {
	Field string
	Op    Operator
	Value Value
}

// Where is a shorthand for building a Filter
func Where(field string, op Operator, value Value) *Filter {
	return &Filter{Field: field, Op: op, Value: value}
}

// Order sorts query results on Field.
type Order struct {
	Field     string
	Ascending bool
}

// Asc orders ascending on field
func Asc(field string) Order { return Order{Field: field, Ascending: true} }

// Desc orders descending on field
func Desc(field string) Order { return Order{Field: field} }

type fieldReference struct {
	FieldPath string `json:"fieldPath"`
}

type fieldFilter struct {
	Field fieldReference `json:"field"`
	Op    Operator       `json:"op"`
	Value Value          `json:"value"`
}

type queryFilter struct {
	FieldFilter *fieldFilter `json:"fieldFilter,omitempty"`
}

type orderWire struct {
	Field     fieldReference `json:"field"`
	Direction string         `json:"direction"`
}

type collectionSelector struct {
	CollectionID string `json:"collectionId"`
}

type structuredQuery struct {
	From    []collectionSelector `json:"from"`
	Where   *queryFilter         `json:"where,omitempty"`
	OrderBy []orderWire          `json:"orderBy,omitempty"`
}

type runQueryRequest struct {
	StructuredQuery structuredQuery `json:"structuredQuery"`
}

type runQueryResponse struct {
	Document *documentWire `json:"document,omitempty"`
	ReadTime string        `json:"readTime,omitempty"`
}

// buildQuery translates a filter and an ordering into a structured query
// over collectionID.
func buildQuery(collectionID string, filter *Filter, orderBy []Order) runQueryRequest {
	q := structuredQuery{From: []collectionSelector{{CollectionID: collectionID}}}
	if filter != nil {
		q.Where = &queryFilter{FieldFilter: &fieldFilter{
			Field: fieldReference{FieldPath: QuoteFieldPath(filter.Field)},
			Op:    filter.Op,
			Value: filter.Value,
		}}
	}
	for _, o := range orderBy {
		direction := "DESCENDING"
		if o.Ascending {
			direction = "ASCENDING"
		}
		q.OrderBy = append(q.OrderBy, orderWire{
			Field:     fieldReference{FieldPath: QuoteFieldPath(o.Field)},
			Direction: direction,
		})
	}
	return runQueryRequest{StructuredQuery: q}
}

// splitCollection splits "parent/doc/sub" into the parent document path and
// the collection id.
func splitCollection(collection string) (parent, collectionID string) {
	collection = strings.Trim(collection, "/")
	if i := strings.LastIndex(collection, "/"); i >= 0 {
		return collection[:i], collection[i+1:]
	}
	return "", collection
}

// Query runs a structured query over collection and returns every matching
// document. filter and orderBy are optional; with neither the whole
// collection is returned. Results are not paginated.
//
// Example:
//
//	docs, err := client.Query(ctx, "tests",
//	    sdk.Where("a_string", sdk.Equal, sdk.String("abc")),
//	    []sdk.Order{sdk.Asc("a_map.a")})
func (c *Client) Query(ctx context.Context, collection string, filter *Filter, orderBy []Order) ([]*Document, error) {
	parent, collectionID := splitCollection(collection)
	body := buildQuery(collectionID, filter, orderBy)

	var resp []runQueryResponse
	target := c.documentURL(parent, ":runQuery", nil)
	if err := c.call(ctx, "query", http.MethodPost, target, collection, body, &resp); err != nil {
		return nil, err
	}

	docs := make([]*Document, 0, len(resp))
	for _, r := range resp {
		if r.Document == nil {
			continue
		}
		doc, err := r.Document.document()
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

var simpleSegment = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z_0-9]*$`)

// QuoteFieldPath quotes every segment of a dot separated field path that is
// not a plain identifier. Segments that are already quoted with backticks
// are kept as they are.
//
//	QuoteFieldPath("a_map.000")   // "a_map.`000`"
//	QuoteFieldPath("a_map.`000`") // "a_map.`000`"
func QuoteFieldPath(path string) string {
	segments := splitFieldPath(path)
	for i, s := range segments {
		if strings.HasPrefix(s, "`") && strings.HasSuffix(s, "`") && len(s) >= 2 {
			continue
		}
		segments[i] = quoteSegment(s)
	}
	return strings.Join(segments, ".")
}

// quoteSegment quotes a single field name when needed
func quoteSegment(name string) string {
	if simpleSegment.MatchString(name) {
		return name
	}
	escaped := strings.NewReplacer("\\", "\\\\", "`", "\\`").Replace(name)
	return "`" + escaped + "`"
}

// splitFieldPath splits on dots outside backtick quoted segments
func splitFieldPath(path string) []string {
	var (
		segments []string
		current  strings.Builder
		quoted   bool
		escaped  bool
	)
	for _, r := range path {
		switch {
		case escaped:
			escaped = false
		case quoted && r == '\\':
			escaped = true
		case r == '`':
			quoted = !quoted
		case r == '.' && !quoted:
			segments = append(segments, current.String())
			current.Reset()
			continue
		}
		current.WriteRune(r)
	}
	return append(segments, current.String())
}
