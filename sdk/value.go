package sdk

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"time"
)

// ValueKind identifies which variant a Value holds.
type ValueKind int

const (
	NullKind ValueKind = iota
	BoolKind
	IntegerKind
	DoubleKind
	TimestampKind
	StringKind
	BytesKind
	ReferenceKind
	GeoPointKind
	ArrayKind
	MapKind
)

// String returns the wire name of the kind
func (k ValueKind) String() string {
	switch k {
	case NullKind:
		return "nullValue"
	case BoolKind:
		return "booleanValue"
	case IntegerKind:
		return "integerValue"
	case DoubleKind:
		return "doubleValue"
	case TimestampKind:
		return "timestampValue"
	case StringKind:
		return "stringValue"
	case BytesKind:
		return "bytesValue"
	case ReferenceKind:
		return "referenceValue"
	case GeoPointKind:
		return "geoPointValue"
	case ArrayKind:
		return "arrayValue"
	case MapKind:
		return "mapValue"
	default:
		return "unknown"
	}
}

// LatLng is a geographic point
type LatLng struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// Value is a single document field value. The zero Value is null.
//
// Values are built with the constructors in this file and inspected with
// Kind and the typed accessors:
//
//	v := sdk.Map(map[string]sdk.Value{
//	    "name": sdk.String("alice"),
//	    "age":  sdk.Int(42),
//	})
//	if m, ok := v.MapValue(); ok {
//	    name, _ := m["name"].StringValue()
//	}
type Value struct {
	kind ValueKind
	b    bool
	i    int64
	d    float64
	t    time.Time
	// s holds string and reference values
	s   string
	raw []byte
	geo LatLng
	arr []Value
	m   map[string]Value
}

// integer is any Go integer type
type integer interface {
	~int | ~int8 | ~int16 | ~int32 | ~int64 |
		~uint | ~uint8 | ~uint16 | ~uint32 | ~uint64
}

// Null returns the null value
func Null() Value { return Value{} }

// Bool returns a boolean value
func Bool(b bool) Value { return Value{kind: BoolKind, b: b} }

// Int returns an integer value. The wire format only carries signed 64-bit
// integers: unsigned values above math.MaxInt64 wrap, use Uint64 when v
// may be that large.
func Int[T integer](v T) Value { return Value{kind: IntegerKind, i: int64(v)} }

// Uint64 returns an integer value, failing with a SerializationError when
// v does not fit in a signed 64-bit integer.
func Uint64(v uint64) (Value, error) {
	if v > math.MaxInt64 {
		return Value{}, &SerializationError{Message: fmt.Sprintf("integer %d overflows int64", v)}
	}
	return Int(v), nil
}

// Double returns a floating point value
func Double(f float64) Value { return Value{kind: DoubleKind, d: f} }

// Timestamp returns a timestamp value, normalized to UTC
func Timestamp(t time.Time) Value { return Value{kind: TimestampKind, t: t.UTC()} }

// String returns a string value
func String(s string) Value { return Value{kind: StringKind, s: s} }

// Bytes returns a bytes value
func Bytes(b []byte) Value { return Value{kind: BytesKind, raw: b} }

// Reference returns a reference to the document with the given absolute name
func Reference(name string) Value { return Value{kind: ReferenceKind, s: name} }

// GeoPoint returns a geographic point value
func GeoPoint(lat, lng float64) Value {
	return Value{kind: GeoPointKind, geo: LatLng{Latitude: lat, Longitude: lng}}
}

// Array returns an array value
func Array(values ...Value) Value { return Value{kind: ArrayKind, arr: values} }

// Map returns a map value
func Map(fields map[string]Value) Value {
	if fields == nil {
		fields = map[string]Value{}
	}
	return Value{kind: MapKind, m: fields}
}

// Kind returns the variant held by v
func (v Value) Kind() ValueKind { return v.kind }

// IsNull reports whether v is the null value
func (v Value) IsNull() bool { return v.kind == NullKind }

func (v Value) BoolValue() (bool, bool) { return v.b, v.kind == BoolKind }

func (v Value) IntegerValue() (int64, bool) { return v.i, v.kind == IntegerKind }

func (v Value) DoubleValue() (float64, bool) { return v.d, v.kind == DoubleKind }

func (v Value) TimestampValue() (time.Time, bool) { return v.t, v.kind == TimestampKind }

func (v Value) StringValue() (string, bool) { return v.s, v.kind == StringKind }

func (v Value) BytesValue() ([]byte, bool) { return v.raw, v.kind == BytesKind }

func (v Value) ReferenceValue() (string, bool) { return v.s, v.kind == ReferenceKind }

func (v Value) GeoPointValue() (LatLng, bool) { return v.geo, v.kind == GeoPointKind }

func (v Value) ArrayValue() ([]Value, bool) { return v.arr, v.kind == ArrayKind }

func (v Value) MapValue() (map[string]Value, bool) { return v.m, v.kind == MapKind }

// Equal reports whether v and o hold the same variant and content.
// Doubles compare by value, so NaN is never equal to itself.
func (v Value) Equal(o Value) bool {
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case NullKind:
		return true
	case BoolKind:
		return v.b == o.b
	case IntegerKind:
		return v.i == o.i
	case DoubleKind:
		return v.d == o.d
	case TimestampKind:
		return v.t.Equal(o.t)
	case StringKind, ReferenceKind:
		return v.s == o.s
	case BytesKind:
		return bytes.Equal(v.raw, o.raw)
	case GeoPointKind:
		return v.geo == o.geo
	case ArrayKind:
		if len(v.arr) != len(o.arr) {
			return false
		}
		for i := range v.arr {
			if !v.arr[i].Equal(o.arr[i]) {
				return false
			}
		}
		return true
	case MapKind:
		if len(v.m) != len(o.m) {
			return false
		}
		for k, fv := range v.m {
			ov, ok := o.m[k]
			if !ok || !fv.Equal(ov) {
				return false
			}
		}
		return true
	}
	return false
}

// Interface converts v to plain Go values: nil, bool, int64, float64,
// time.Time, string, []byte, LatLng, []interface{} and
// map[string]interface{}. References become their document name.
func (v Value) Interface() interface{} {
	switch v.kind {
	case BoolKind:
		return v.b
	case IntegerKind:
		return v.i
	case DoubleKind:
		return v.d
	case TimestampKind:
		return v.t
	case StringKind, ReferenceKind:
		return v.s
	case BytesKind:
		return v.raw
	case GeoPointKind:
		return v.geo
	case ArrayKind:
		out := make([]interface{}, len(v.arr))
		for i, e := range v.arr {
			out[i] = e.Interface()
		}
		return out
	case MapKind:
		out := make(map[string]interface{}, len(v.m))
		for k, e := range v.m {
			out[k] = e.Interface()
		}
		return out
	}
	return nil
}

// ValueOf converts a plain Go value, as produced by encoding/json or
// Interface, into a Value. Whole json.Number values become integers.
func ValueOf(x interface{}) (Value, error) {
	switch t := x.(type) {
	case nil:
		return Null(), nil
	case Value:
		return t, nil
	case bool:
		return Bool(t), nil
	case int:
		return Int(t), nil
	case int32:
		return Int(t), nil
	case int64:
		return Int(t), nil
	case uint32:
		return Int(t), nil
	case uint:
		return Uint64(uint64(t))
	case uint64:
		return Uint64(t)
	case float32:
		return Double(float64(t)), nil
	case float64:
		return Double(t), nil
	case json.Number:
		if i, err := t.Int64(); err == nil {
			return Int(i), nil
		}
		f, err := t.Float64()
		if err != nil {
			return Value{}, &SerializationError{Message: fmt.Sprintf("invalid number %q", t), Err: err}
		}
		return Double(f), nil
	case string:
		return String(t), nil
	case []byte:
		return Bytes(t), nil
	case time.Time:
		return Timestamp(t), nil
	case LatLng:
		return GeoPoint(t.Latitude, t.Longitude), nil
	case []interface{}:
		values := make([]Value, len(t))
		for i, e := range t {
			ev, err := ValueOf(e)
			if err != nil {
				return Value{}, err
			}
			values[i] = ev
		}
		return Array(values...), nil
	case map[string]interface{}:
		fields := make(map[string]Value, len(t))
		for k, e := range t {
			ev, err := ValueOf(e)
			if err != nil {
				return Value{}, err
			}
			fields[k] = ev
		}
		return Map(fields), nil
	}
	return Value{}, &SerializationError{Message: fmt.Sprintf("unsupported type %T", x)}
}

type arrayWire struct {
	Values []Value `json:"values,omitempty"`
}

type mapWire struct {
	Fields map[string]Value `json:"fields,omitempty"`
}

// MarshalJSON encodes v as a tagged object with exactly one key.
func (v Value) MarshalJSON() ([]byte, error) {
	var payload interface{}
	switch v.kind {
	case NullKind:
		payload = nil
	case BoolKind:
		payload = v.b
	case IntegerKind:
		payload = strconv.FormatInt(v.i, 10)
	case DoubleKind:
		switch {
		case math.IsNaN(v.d):
			payload = "NaN"
		case math.IsInf(v.d, 1):
			payload = "Infinity"
		case math.IsInf(v.d, -1):
			payload = "-Infinity"
		default:
			payload = v.d
		}
	case TimestampKind:
		payload = v.t.UTC().Format(time.RFC3339Nano)
	case StringKind, ReferenceKind:
		payload = v.s
	case BytesKind:
		payload = base64.StdEncoding.EncodeToString(v.raw)
	case GeoPointKind:
		payload = v.geo
	case ArrayKind:
		payload = arrayWire{Values: v.arr}
	case MapKind:
		payload = mapWire{Fields: v.m}
	default:
		return nil, &SerializationError{Message: fmt.Sprintf("unknown value kind %d", v.kind)}
	}
	return json.Marshal(map[string]interface{}{v.kind.String(): payload})
}

// UnmarshalJSON decodes the tagged wire object.
func (v *Value) UnmarshalJSON(data []byte) error {
	var tagged map[string]json.RawMessage
	if err := json.Unmarshal(data, &tagged); err != nil {
		return &SerializationError{Message: "value is not an object", Err: err}
	}
	if len(tagged) != 1 {
		return &SerializationError{Message: fmt.Sprintf("value must have exactly one key, got %d", len(tagged))}
	}

	for key, raw := range tagged {
		decoded, err := decodeTagged(key, raw)
		if err != nil {
			return err
		}
		*v = decoded
	}
	return nil
}

func decodeTagged(key string, raw json.RawMessage) (Value, error) {
	fail := func(err error) (Value, error) {
		return Value{}, &SerializationError{Field: key, Message: "malformed value", Err: err}
	}

	switch key {
	case "nullValue":
		return Null(), nil
	case "booleanValue":
		var b bool
		if err := json.Unmarshal(raw, &b); err != nil {
			return fail(err)
		}
		return Bool(b), nil
	case "integerValue":
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			// tolerate a bare number
			var n json.Number
			if err := json.Unmarshal(raw, &n); err != nil {
				return fail(err)
			}
			s = n.String()
		}
		i, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return fail(err)
		}
		return Int(i), nil
	case "doubleValue":
		var f float64
		if err := json.Unmarshal(raw, &f); err == nil {
			return Double(f), nil
		}
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return fail(err)
		}
		switch s {
		case "NaN":
			return Double(math.NaN()), nil
		case "Infinity":
			return Double(math.Inf(1)), nil
		case "-Infinity":
			return Double(math.Inf(-1)), nil
		}
		return fail(fmt.Errorf("invalid double %q", s))
	case "timestampValue":
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return fail(err)
		}
		t, err := time.Parse(time.RFC3339Nano, s)
		if err != nil {
			return fail(err)
		}
		return Timestamp(t), nil
	case "stringValue", "referenceValue":
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return fail(err)
		}
		if key == "referenceValue" {
			return Reference(s), nil
		}
		return String(s), nil
	case "bytesValue":
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return fail(err)
		}
		b, err := base64.StdEncoding.DecodeString(s)
		if err != nil {
			return fail(err)
		}
		return Bytes(b), nil
	case "geoPointValue":
		var geo LatLng
		if err := json.Unmarshal(raw, &geo); err != nil {
			return fail(err)
		}
		return GeoPoint(geo.Latitude, geo.Longitude), nil
	case "arrayValue":
		var arr arrayWire
		if err := json.Unmarshal(raw, &arr); err != nil {
			return fail(err)
		}
		return Array(arr.Values...), nil
	case "mapValue":
		var m mapWire
		if err := json.Unmarshal(raw, &m); err != nil {
			return fail(err)
		}
		return Map(m.Fields), nil
	}
	return Value{}, &SerializationError{Field: key, Message: "unknown value type"}
}
