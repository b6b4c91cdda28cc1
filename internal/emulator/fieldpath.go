package emulator

import (
	"fmt"
	"strings"

	"github.com/birbparty/firenest/sdk"
)

// parseFieldPath splits a field path into segments. Segments are separated
// by dots; a segment wrapped in backticks may contain any character, with
// "\`" and "\\" as escapes.
func parseFieldPath(path string) ([]string, error) {
	if path == "" {
		return nil, fmt.Errorf("empty field path")
	}

	var (
		segments []string
		cur      strings.Builder
		quoted   bool
		inQuote  bool
	)
	for i := 0; i < len(path); i++ {
		ch := path[i]
		switch {
		case inQuote && ch == '\\':
			if i+1 >= len(path) {
				return nil, fmt.Errorf("dangling escape in field path %q", path)
			}
			i++
			cur.WriteByte(path[i])
		case inQuote && ch == '`':
			inQuote = false
		case inQuote:
			cur.WriteByte(ch)
		case ch == '`':
			if cur.Len() > 0 || quoted {
				return nil, fmt.Errorf("unexpected backtick in field path %q", path)
			}
			inQuote, quoted = true, true
		case ch == '.':
			if cur.Len() == 0 && !quoted {
				return nil, fmt.Errorf("empty segment in field path %q", path)
			}
			segments = append(segments, cur.String())
			cur.Reset()
			quoted = false
		default:
			if quoted {
				return nil, fmt.Errorf("characters after closing backtick in field path %q", path)
			}
			cur.WriteByte(ch)
		}
	}
	if inQuote {
		return nil, fmt.Errorf("unterminated backtick in field path %q", path)
	}
	if cur.Len() == 0 && !quoted {
		return nil, fmt.Errorf("empty segment in field path %q", path)
	}
	return append(segments, cur.String()), nil
}

// lookup returns the value at segments inside fields
func lookup(fields map[string]sdk.Value, segments []string) (sdk.Value, bool) {
	v, ok := fields[segments[0]]
	if !ok {
		return sdk.Value{}, false
	}
	for _, seg := range segments[1:] {
		m, isMap := v.MapValue()
		if !isMap {
			return sdk.Value{}, false
		}
		if v, ok = m[seg]; !ok {
			return sdk.Value{}, false
		}
	}
	return v, true
}

// assign sets segments in fields to v, creating intermediate maps and
// replacing non-map values on the way. Maps are copied, never mutated.
func assign(fields map[string]sdk.Value, segments []string, v sdk.Value) {
	if len(segments) == 1 {
		fields[segments[0]] = v
		return
	}
	child := map[string]sdk.Value{}
	if m, ok := fields[segments[0]].MapValue(); ok {
		for k, val := range m {
			child[k] = val
		}
	}
	assign(child, segments[1:], v)
	fields[segments[0]] = sdk.Map(child)
}

// remove deletes segments from fields. Missing paths are ignored.
func remove(fields map[string]sdk.Value, segments []string) {
	if len(segments) == 1 {
		delete(fields, segments[0])
		return
	}
	m, ok := fields[segments[0]].MapValue()
	if !ok {
		return
	}
	child := make(map[string]sdk.Value, len(m))
	for k, val := range m {
		child[k] = val
	}
	remove(child, segments[1:])
	fields[segments[0]] = sdk.Map(child)
}
