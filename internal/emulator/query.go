package emulator

import (
	"sort"
	"strings"

	"github.com/birbparty/firenest/sdk"
)

// Field filter operators
const (
	opEqual              = "EQUAL"
	opNotEqual           = "NOT_EQUAL"
	opLessThan           = "LESS_THAN"
	opLessThanOrEqual    = "LESS_THAN_OR_EQUAL"
	opGreaterThan        = "GREATER_THAN"
	opGreaterThanOrEqual = "GREATER_THAN_OR_EQUAL"
	opArrayContains      = "ARRAY_CONTAINS"
	opIn                 = "IN"
	opArrayContainsAny   = "ARRAY_CONTAINS_ANY"
	opNotIn              = "NOT_IN"
)

type ordering struct {
	path       []string
	descending bool
}

// queryPlan is a validated structured query
type queryPlan struct {
	collectionID   string
	allDescendants bool
	filterPath     []string
	filter         *FieldFilter
	orderBy        []ordering
}

func planQuery(q *StructuredQuery) (*queryPlan, error) {
	if q == nil {
		return nil, invalidArgument("structuredQuery is required")
	}
	if len(q.From) != 1 || q.From[0].CollectionID == "" {
		return nil, invalidArgument("query must select exactly one collection")
	}
	if q.Limit != nil && *q.Limit < 0 {
		return nil, invalidArgument("limit must be non-negative")
	}

	plan := &queryPlan{
		collectionID:   q.From[0].CollectionID,
		allDescendants: q.From[0].AllDescendants,
	}

	if q.Where != nil && q.Where.FieldFilter != nil {
		f := q.Where.FieldFilter
		path, err := parseFieldPath(f.Field.FieldPath)
		if err != nil {
			return nil, invalidArgument("%v", err)
		}
		switch f.Op {
		case opEqual, opNotEqual, opLessThan, opLessThanOrEqual, opGreaterThan, opGreaterThanOrEqual, opArrayContains:
		case opIn, opNotIn, opArrayContainsAny:
			if f.Value.Kind() != sdk.ArrayKind {
				return nil, invalidArgument("%s requires an array value", f.Op)
			}
		default:
			return nil, invalidArgument("unsupported operator %q", f.Op)
		}
		plan.filter = f
		plan.filterPath = path
	}

	for _, o := range q.OrderBy {
		path, err := parseFieldPath(o.Field.FieldPath)
		if err != nil {
			return nil, invalidArgument("%v", err)
		}
		switch o.Direction {
		case "", "ASCENDING", "DIRECTION_UNSPECIFIED":
			plan.orderBy = append(plan.orderBy, ordering{path: path})
		case "DESCENDING":
			plan.orderBy = append(plan.orderBy, ordering{path: path, descending: true})
		default:
			return nil, invalidArgument("unsupported direction %q", o.Direction)
		}
	}

	// an inequality without an ordering is implicitly ordered by its field
	if plan.filter != nil && len(plan.orderBy) == 0 && isInequality(plan.filter.Op) {
		plan.orderBy = []ordering{{path: plan.filterPath}}
	}
	return plan, nil
}

func isInequality(op string) bool {
	switch op {
	case opNotEqual, opLessThan, opLessThanOrEqual, opGreaterThan, opGreaterThanOrEqual, opNotIn:
		return true
	}
	return false
}

// selects reports whether name belongs to the queried collection below parent
func (p *queryPlan) selects(parent, name string) bool {
	rest, ok := strings.CutPrefix(name, parent+"/")
	if !ok {
		return false
	}
	segments := strings.Split(rest, "/")
	if len(segments)%2 != 0 || segments[len(segments)-2] != p.collectionID {
		return false
	}
	return p.allDescendants || len(segments) == 2
}

// matches applies the filter and drops documents missing an ordered field
func (p *queryPlan) matches(fields map[string]sdk.Value) bool {
	for _, o := range p.orderBy {
		if _, ok := lookup(fields, o.path); !ok {
			return false
		}
	}
	if p.filter == nil {
		return true
	}
	v, ok := lookup(fields, p.filterPath)
	if !ok {
		return false
	}
	return evalFilter(p.filter.Op, v, p.filter.Value)
}

func (p *queryPlan) sort(docs []*DocumentResponse) {
	sort.SliceStable(docs, func(i, j int) bool {
		for _, o := range p.orderBy {
			a, _ := lookup(docs[i].Fields, o.path)
			b, _ := lookup(docs[j].Fields, o.path)
			c := compareValues(a, b)
			if o.descending {
				c = -c
			}
			if c != 0 {
				return c < 0
			}
		}
		return docs[i].Name < docs[j].Name
	})
}

func evalFilter(op string, field, operand sdk.Value) bool {
	sameType := typeOrder(field) == typeOrder(operand)
	switch op {
	case opEqual:
		return compareValues(field, operand) == 0
	case opNotEqual:
		return !field.IsNull() && compareValues(field, operand) != 0
	case opLessThan:
		return sameType && compareValues(field, operand) < 0
	case opLessThanOrEqual:
		return sameType && compareValues(field, operand) <= 0
	case opGreaterThan:
		return sameType && compareValues(field, operand) > 0
	case opGreaterThanOrEqual:
		return sameType && compareValues(field, operand) >= 0
	case opArrayContains:
		elems, ok := field.ArrayValue()
		return ok && containsValue(elems, operand)
	case opIn:
		candidates, _ := operand.ArrayValue()
		return containsValue(candidates, field)
	case opNotIn:
		candidates, _ := operand.ArrayValue()
		return !field.IsNull() && !containsValue(candidates, field)
	case opArrayContainsAny:
		elems, ok := field.ArrayValue()
		if !ok {
			return false
		}
		candidates, _ := operand.ArrayValue()
		for _, c := range candidates {
			if containsValue(elems, c) {
				return true
			}
		}
	}
	return false
}

func containsValue(values []sdk.Value, v sdk.Value) bool {
	for _, e := range values {
		if compareValues(e, v) == 0 {
			return true
		}
	}
	return false
}
