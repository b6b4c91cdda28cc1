package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/birbparty/firenest/sdk"
)

var operators = map[string]sdk.Operator{
	"==":                 sdk.Equal,
	"!=":                 sdk.NotEqual,
	"<":                  sdk.LessThan,
	"<=":                 sdk.LessThanOrEqual,
	">":                  sdk.GreaterThan,
	">=":                 sdk.GreaterThanOrEqual,
	"array-contains":     sdk.ArrayContains,
	"in":                 sdk.In,
	"array-contains-any": sdk.ArrayContainsAny,
	"not-in":             sdk.NotIn,
}

// parseWhere parses "field op value". The value is JSON; anything that is
// not valid JSON is taken as a plain string.
func parseWhere(expr string) (*sdk.Filter, error) {
	parts := strings.Fields(expr)
	if len(parts) < 3 {
		return nil, fmt.Errorf("invalid filter %q: want \"field op value\"", expr)
	}

	op, ok := operators[parts[1]]
	if !ok {
		return nil, fmt.Errorf("invalid filter %q: unknown operator %q", expr, parts[1])
	}

	raw := strings.TrimPrefix(strings.TrimSpace(expr), parts[0])
	raw = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(raw), parts[1]))
	value, err := parseValue(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid filter %q: %w", expr, err)
	}
	return sdk.Where(parts[0], op, value), nil
}

func parseValue(raw string) (sdk.Value, error) {
	var x interface{}
	if err := decodeJSON(strings.NewReader(raw), &x); err != nil {
		return sdk.String(raw), nil
	}
	return sdk.ValueOf(x)
}

// parseOrder parses "field" or "field:asc" or "field:desc"
func parseOrder(expr string) (sdk.Order, error) {
	field, dir, _ := strings.Cut(expr, ":")
	if field == "" {
		return sdk.Order{}, fmt.Errorf("invalid order %q", expr)
	}

	switch strings.ToLower(dir) {
	case "", "asc":
		return sdk.Asc(field), nil
	case "desc":
		return sdk.Desc(field), nil
	}
	return sdk.Order{}, fmt.Errorf("invalid order %q: direction must be asc or desc", expr)
}

// parseData reads a JSON object as document fields
func parseData(r io.Reader) (sdk.MapFields, error) {
	var data sdk.MapFields
	if err := decodeJSON(r, &data); err != nil {
		return nil, fmt.Errorf("invalid document data: %w", err)
	}
	if data == nil {
		return nil, fmt.Errorf("invalid document data: want a JSON object")
	}
	return data, nil
}

// decodeJSON decodes exactly one JSON value, keeping numbers exact
func decodeJSON(r io.Reader, v interface{}) error {
	dec := json.NewDecoder(r)
	dec.UseNumber()
	if err := dec.Decode(v); err != nil {
		return err
	}
	if dec.More() {
		return fmt.Errorf("unexpected data after JSON value")
	}
	return nil
}

// splitPath splits "a/b/c/d" into the collection "a/b/c" and id "d"
func splitPath(path string) (collection, id string, err error) {
	path = strings.Trim(path, "/")
	i := strings.LastIndex(path, "/")
	if i <= 0 || i == len(path)-1 {
		return "", "", fmt.Errorf("invalid document path %q: want collection/id", path)
	}
	return path[:i], path[i+1:], nil
}

type documentOutput struct {
	Name       string                 `json:"name"`
	CreateTime time.Time              `json:"createTime"`
	UpdateTime time.Time              `json:"updateTime"`
	Fields     map[string]interface{} `json:"fields"`
}

func printDocuments(w io.Writer, docs ...*sdk.Document) error {
	for _, doc := range docs {
		var fields sdk.MapFields
		if err := doc.DataTo(&fields); err != nil {
			return err
		}

		var buf bytes.Buffer
		enc := json.NewEncoder(&buf)
		enc.SetIndent("", "  ")
		if err := enc.Encode(documentOutput{
			Name:       doc.RelativePath(),
			CreateTime: doc.CreateTime,
			UpdateTime: doc.UpdateTime,
			Fields:     fields,
		}); err != nil {
			return err
		}
		if _, err := w.Write(buf.Bytes()); err != nil {
			return err
		}
	}
	return nil
}
