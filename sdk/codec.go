package sdk

import (
	"errors"
	"fmt"
	"time"
)

// Fields is the field set of a document: field name to value.
type Fields map[string]Value

// Encoder is implemented by application types that can be written as a
// document.
type Encoder interface {
	EncodeFields() (Fields, error)
}

// Decoder is implemented by application types that can be read from a
// document. Wire fields the type does not know must be ignored.
type Decoder interface {
	DecodeFields(fields Fields) error
}

// Record is a type that can be both written and read.
//
// Example:
//
//	type User struct {
//	    Name     string
//	    Age      int
//	    Nickname *string
//	}
//
//	func (u User) EncodeFields() (sdk.Fields, error) {
//	    return sdk.Fields{}.
//	        Set("name", sdk.String(u.Name)).
//	        Set("age", sdk.Int(u.Age)).
//	        SetOptional("nickname", sdk.OptionalValue(u.Nickname, sdk.String)), nil
//	}
//
//	func (u *User) DecodeFields(f sdk.Fields) (err error) {
//	    if u.Name, err = sdk.Required(f, "name", sdk.AsString); err != nil {
//	        return err
//	    }
//	    if u.Age, err = sdk.OrDefault(f, "age", 0, sdk.AsInt[int]); err != nil {
//	        return err
//	    }
//	    u.Nickname, err = sdk.Optional(f, "nickname", sdk.AsString)
//	    return err
//	}
type Record interface {
	Encoder
	Decoder
}

// Set stores v under name and returns f for chaining
func (f Fields) Set(name string, v Value) Fields {
	f[name] = v
	return f
}

// SetOptional stores *v under name, or leaves the field absent when v is
// nil. Absent fields are never written as null.
func (f Fields) SetOptional(name string, v *Value) Fields {
	if v != nil {
		f[name] = *v
	}
	return f
}

// EncodeFields lets a bare Fields be written directly
func (f Fields) EncodeFields() (Fields, error) {
	return f, nil
}

// DecodeFields replaces f with a copy of fields
func (f *Fields) DecodeFields(fields Fields) error {
	out := make(Fields, len(fields))
	for k, v := range fields {
		out[k] = v
	}
	*f = out
	return nil
}

// MapFields is a schemaless record of plain Go values, as produced by
// encoding/json. It is what the CLI reads and writes.
type MapFields map[string]interface{}

// EncodeFields converts every entry with ValueOf
func (m MapFields) EncodeFields() (Fields, error) {
	fields := make(Fields, len(m))
	for k, x := range m {
		v, err := ValueOf(x)
		if err != nil {
			return nil, withField(err, k)
		}
		fields[k] = v
	}
	return fields, nil
}

// DecodeFields converts every value with Value.Interface
func (m *MapFields) DecodeFields(fields Fields) error {
	out := make(MapFields, len(fields))
	for k, v := range fields {
		out[k] = v.Interface()
	}
	*m = out
	return nil
}

// OptionalValue encodes *p with enc, or returns nil when p is nil
func OptionalValue[T any](p *T, enc func(T) Value) *Value {
	if p == nil {
		return nil
	}
	v := enc(*p)
	return &v
}

// MapOf encodes a Go map as a map value
func MapOf[T any](m map[string]T, enc func(T) Value) Value {
	fields := make(map[string]Value, len(m))
	for k, e := range m {
		fields[k] = enc(e)
	}
	return Map(fields)
}

// ArrayOf encodes a slice as an array value
func ArrayOf[T any](s []T, enc func(T) Value) Value {
	values := make([]Value, len(s))
	for i, e := range s {
		values[i] = enc(e)
	}
	return Array(values...)
}

// RecordValue encodes a nested record as a map value
func RecordValue(e Encoder) (Value, error) {
	fields, err := e.EncodeFields()
	if err != nil {
		return Value{}, err
	}
	return Map(fields), nil
}

// Required decodes the field name with conv. A missing field is a
// SerializationError.
func Required[T any](f Fields, name string, conv func(Value) (T, error)) (T, error) {
	v, ok := f[name]
	if !ok {
		var zero T
		return zero, &SerializationError{Field: name, Message: "required field is missing"}
	}
	out, err := conv(v)
	if err != nil {
		var zero T
		return zero, withField(err, name)
	}
	return out, nil
}

// Optional decodes the field name with conv, returning nil when the field
// is absent or null.
func Optional[T any](f Fields, name string, conv func(Value) (T, error)) (*T, error) {
	v, ok := f[name]
	if !ok || v.IsNull() {
		return nil, nil
	}
	out, err := conv(v)
	if err != nil {
		return nil, withField(err, name)
	}
	return &out, nil
}

// OrDefault decodes the field name with conv, returning def when the field
// is absent or null.
func OrDefault[T any](f Fields, name string, def T, conv func(Value) (T, error)) (T, error) {
	p, err := Optional(f, name, conv)
	if err != nil || p == nil {
		return def, err
	}
	return *p, nil
}

// withField attaches the field name to a serialization error
func withField(err error, name string) error {
	var serErr *SerializationError
	if errors.As(err, &serErr) {
		if serErr.Field == "" {
			serErr.Field = name
		} else {
			serErr.Field = name + "." + serErr.Field
		}
		return serErr
	}
	return &SerializationError{Field: name, Message: "cannot decode", Err: err}
}

func kindMismatch(want ValueKind, got Value) error {
	return &SerializationError{Message: fmt.Sprintf("expected %s, got %s", want, got.Kind())}
}

// AsString decodes a string value
func AsString(v Value) (string, error) {
	if s, ok := v.StringValue(); ok {
		return s, nil
	}
	return "", kindMismatch(StringKind, v)
}

// AsInt decodes an integer value into T, failing when it does not fit.
func AsInt[T integer](v Value) (T, error) {
	i, ok := v.IntegerValue()
	if !ok {
		return 0, kindMismatch(IntegerKind, v)
	}
	t := T(i)
	if int64(t) != i || (i < 0) != (t < 0) {
		return 0, &SerializationError{Message: fmt.Sprintf("integer %d overflows %T", i, t)}
	}
	return t, nil
}

// AsFloat decodes a double value. Integers are accepted as well.
func AsFloat(v Value) (float64, error) {
	if f, ok := v.DoubleValue(); ok {
		return f, nil
	}
	if i, ok := v.IntegerValue(); ok {
		return float64(i), nil
	}
	return 0, kindMismatch(DoubleKind, v)
}

// AsBool decodes a boolean value
func AsBool(v Value) (bool, error) {
	if b, ok := v.BoolValue(); ok {
		return b, nil
	}
	return false, kindMismatch(BoolKind, v)
}

// AsTime decodes a timestamp value
func AsTime(v Value) (time.Time, error) {
	if t, ok := v.TimestampValue(); ok {
		return t, nil
	}
	return time.Time{}, kindMismatch(TimestampKind, v)
}

// AsBytes decodes a bytes value
func AsBytes(v Value) ([]byte, error) {
	if b, ok := v.BytesValue(); ok {
		return b, nil
	}
	return nil, kindMismatch(BytesKind, v)
}

// AsReference decodes a reference value into the document name
func AsReference(v Value) (string, error) {
	if s, ok := v.ReferenceValue(); ok {
		return s, nil
	}
	return "", kindMismatch(ReferenceKind, v)
}

// AsGeoPoint decodes a geographic point
func AsGeoPoint(v Value) (LatLng, error) {
	if g, ok := v.GeoPointValue(); ok {
		return g, nil
	}
	return LatLng{}, kindMismatch(GeoPointKind, v)
}

// AsMap returns a converter decoding a map value whose entries are decoded
// with conv.
func AsMap[T any](conv func(Value) (T, error)) func(Value) (map[string]T, error) {
	return func(v Value) (map[string]T, error) {
		m, ok := v.MapValue()
		if !ok {
			return nil, kindMismatch(MapKind, v)
		}
		out := make(map[string]T, len(m))
		for k, e := range m {
			t, err := conv(e)
			if err != nil {
				return nil, withField(err, k)
			}
			out[k] = t
		}
		return out, nil
	}
}

// AsArray returns a converter decoding an array value whose elements are
// decoded with conv.
func AsArray[T any](conv func(Value) (T, error)) func(Value) ([]T, error) {
	return func(v Value) ([]T, error) {
		arr, ok := v.ArrayValue()
		if !ok {
			return nil, kindMismatch(ArrayKind, v)
		}
		out := make([]T, len(arr))
		for i, e := range arr {
			t, err := conv(e)
			if err != nil {
				return nil, withField(err, fmt.Sprintf("[%d]", i))
			}
			out[i] = t
		}
		return out, nil
	}
}

// AsRecord decodes a map value into a nested record
func AsRecord[T any, PT interface {
	*T
	Decoder
}](v Value) (T, error) {
	var out T
	m, ok := v.MapValue()
	if !ok {
		return out, kindMismatch(MapKind, v)
	}
	if err := PT(&out).DecodeFields(Fields(m)); err != nil {
		return out, err
	}
	return out, nil
}
