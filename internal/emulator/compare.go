package emulator

import (
	"bytes"
	"math"
	"sort"
	"strings"

	"github.com/birbparty/firenest/sdk"
)

// typeOrder ranks value kinds the way the service sorts mixed types.
// Integers and doubles share one rank.
func typeOrder(v sdk.Value) int {
	switch v.Kind() {
	case sdk.NullKind:
		return 0
	case sdk.BoolKind:
		return 1
	case sdk.IntegerKind, sdk.DoubleKind:
		return 2
	case sdk.TimestampKind:
		return 3
	case sdk.StringKind:
		return 4
	case sdk.BytesKind:
		return 5
	case sdk.ReferenceKind:
		return 6
	case sdk.GeoPointKind:
		return 7
	case sdk.ArrayKind:
		return 8
	default:
		return 9
	}
}

// compareValues orders two values: -1, 0 or 1.
func compareValues(a, b sdk.Value) int {
	if ta, tb := typeOrder(a), typeOrder(b); ta != tb {
		return cmpInt(int64(ta), int64(tb))
	}

	switch a.Kind() {
	case sdk.NullKind:
		return 0
	case sdk.BoolKind:
		x, _ := a.BoolValue()
		y, _ := b.BoolValue()
		switch {
		case x == y:
			return 0
		case !x:
			return -1
		default:
			return 1
		}
	case sdk.IntegerKind, sdk.DoubleKind:
		return compareNumbers(a, b)
	case sdk.TimestampKind:
		x, _ := a.TimestampValue()
		y, _ := b.TimestampValue()
		return x.Compare(y)
	case sdk.StringKind:
		x, _ := a.StringValue()
		y, _ := b.StringValue()
		return strings.Compare(x, y)
	case sdk.BytesKind:
		x, _ := a.BytesValue()
		y, _ := b.BytesValue()
		return bytes.Compare(x, y)
	case sdk.ReferenceKind:
		x, _ := a.ReferenceValue()
		y, _ := b.ReferenceValue()
		return compareReferences(x, y)
	case sdk.GeoPointKind:
		x, _ := a.GeoPointValue()
		y, _ := b.GeoPointValue()
		if c := cmpFloat(x.Latitude, y.Latitude); c != 0 {
			return c
		}
		return cmpFloat(x.Longitude, y.Longitude)
	case sdk.ArrayKind:
		x, _ := a.ArrayValue()
		y, _ := b.ArrayValue()
		for i := 0; i < len(x) && i < len(y); i++ {
			if c := compareValues(x[i], y[i]); c != 0 {
				return c
			}
		}
		return cmpInt(int64(len(x)), int64(len(y)))
	default:
		x, _ := a.MapValue()
		y, _ := b.MapValue()
		return compareMaps(x, y)
	}
}

// compareNumbers compares integers exactly and NaN below every number
func compareNumbers(a, b sdk.Value) int {
	x, xInt := a.IntegerValue()
	y, yInt := b.IntegerValue()
	if xInt && yInt {
		return cmpInt(x, y)
	}
	return cmpFloat(asFloat(a), asFloat(b))
}

func asFloat(v sdk.Value) float64 {
	if i, ok := v.IntegerValue(); ok {
		return float64(i)
	}
	d, _ := v.DoubleValue()
	return d
}

func cmpFloat(x, y float64) int {
	xNaN, yNaN := math.IsNaN(x), math.IsNaN(y)
	switch {
	case xNaN && yNaN:
		return 0
	case xNaN:
		return -1
	case yNaN:
		return 1
	case x < y:
		return -1
	case x > y:
		return 1
	default:
		return 0
	}
}

func cmpInt(x, y int64) int {
	switch {
	case x < y:
		return -1
	case x > y:
		return 1
	default:
		return 0
	}
}

// compareReferences orders document names segment by segment
func compareReferences(x, y string) int {
	xs, ys := strings.Split(x, "/"), strings.Split(y, "/")
	for i := 0; i < len(xs) && i < len(ys); i++ {
		if c := strings.Compare(xs[i], ys[i]); c != 0 {
			return c
		}
	}
	return cmpInt(int64(len(xs)), int64(len(ys)))
}

// compareMaps orders maps by their sorted keys, then values
func compareMaps(x, y map[string]sdk.Value) int {
	xk, yk := sortedFieldNames(x), sortedFieldNames(y)
	for i := 0; i < len(xk) && i < len(yk); i++ {
		if c := strings.Compare(xk[i], yk[i]); c != 0 {
			return c
		}
		if c := compareValues(x[xk[i]], y[yk[i]]); c != 0 {
			return c
		}
	}
	return cmpInt(int64(len(xk)), int64(len(yk)))
}

func sortedFieldNames(m map[string]sdk.Value) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
