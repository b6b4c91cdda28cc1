package sdk

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/birbparty/firenest/sdk/testdata"
	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testAddress struct {
	City string
	Zip  string
}

func (a testAddress) EncodeFields() (Fields, error) {
	return Fields{}.
		Set("city", String(a.City)).
		Set("zip", String(a.Zip)), nil
}

func (a *testAddress) DecodeFields(f Fields) (err error) {
	if a.City, err = Required(f, "city", AsString); err != nil {
		return err
	}
	a.Zip, err = OrDefault(f, "zip", "", AsString)
	return err
}

// testRecord exercises every codec helper
type testRecord struct {
	Name     string
	Age      int
	Score    *float64
	Tags     []string
	Counters map[string]int64
	Address  *testAddress
	Avatar   []byte
	Born     time.Time
}

func (r testRecord) EncodeFields() (Fields, error) {
	f := Fields{}.
		Set("name", String(r.Name)).
		Set("age", Int(r.Age)).
		SetOptional("score", OptionalValue(r.Score, Double)).
		Set("tags", ArrayOf(r.Tags, String)).
		Set("counters", MapOf(r.Counters, Int[int64])).
		Set("avatar", Bytes(r.Avatar)).
		Set("born", Timestamp(r.Born))
	if r.Address != nil {
		addr, err := RecordValue(r.Address)
		if err != nil {
			return nil, err
		}
		f.Set("address", addr)
	}
	return f, nil
}

func (r *testRecord) DecodeFields(f Fields) (err error) {
	if r.Name, err = Required(f, "name", AsString); err != nil {
		return err
	}
	if r.Age, err = Required(f, "age", AsInt[int]); err != nil {
		return err
	}
	if r.Score, err = Optional(f, "score", AsFloat); err != nil {
		return err
	}
	if r.Tags, err = OrDefault(f, "tags", []string(nil), AsArray(AsString)); err != nil {
		return err
	}
	if r.Counters, err = OrDefault(f, "counters", map[string]int64(nil), AsMap(AsInt[int64])); err != nil {
		return err
	}
	if r.Address, err = Optional(f, "address", AsRecord[testAddress]); err != nil {
		return err
	}
	if r.Avatar, err = OrDefault(f, "avatar", []byte(nil), AsBytes); err != nil {
		return err
	}
	r.Born, err = OrDefault(f, "born", time.Time{}, AsTime)
	return err
}

func sampleRecord() testRecord {
	score := testdata.TestData.SimpleFloat
	return testRecord{
		Name:     testdata.TestData.UnicodeString,
		Age:      int(testdata.TestData.SimpleInt),
		Score:    &score,
		Tags:     []string{"a", "b"},
		Counters: map[string]int64{"000": 1, "x y": 2},
		Address:  &testAddress{City: "Lyon", Zip: "69001"},
		Avatar:   testdata.TestData.Bytes,
		Born:     testdata.TestData.NanoTime,
	}
}

func TestCodec_RecordRoundTrip(t *testing.T) {
	tests := []struct {
		name   string
		record testRecord
	}{
		{"all fields", sampleRecord()},
		{"optional fields absent", testRecord{Name: "bob", Age: 1, Avatar: []byte{1}, Born: testdata.TestData.SimpleTime}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fields, err := tt.record.EncodeFields()
			require.NoError(t, err)

			data, err := json.Marshal(documentWire{Fields: fields})
			require.NoError(t, err)

			var wire documentWire
			require.NoError(t, json.Unmarshal(data, &wire))
			doc, err := wire.document()
			require.NoError(t, err)

			var got testRecord
			require.NoError(t, doc.DataTo(&got))
			if diff := cmp.Diff(tt.record, got, cmpopts.EquateEmpty()); diff != "" {
				t.Errorf("record mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestCodec_AbsentOptionalIsNotWrittenAsNull(t *testing.T) {
	fields, err := testRecord{Name: "bob"}.EncodeFields()
	require.NoError(t, err)

	_, present := fields["score"]
	assert.False(t, present)
	_, present = fields["address"]
	assert.False(t, present)
}

func TestCodec_UnknownFieldsIgnored(t *testing.T) {
	fields, err := sampleRecord().EncodeFields()
	require.NoError(t, err)
	fields.Set("added_later", String("ignored"))

	var got testRecord
	require.NoError(t, got.DecodeFields(fields))
	assert.Equal(t, sampleRecord().Name, got.Name)
}

func TestCodec_DecodeErrors(t *testing.T) {
	valid := func() Fields {
		f, _ := sampleRecord().EncodeFields()
		return f
	}

	tests := []struct {
		name      string
		fields    Fields
		wantField string
	}{
		{
			name: "missing required field",
			fields: func() Fields {
				f := valid()
				delete(f, "name")
				return f
			}(),
			wantField: "name",
		},
		{
			name:      "wrong kind",
			fields:    valid().Set("age", String("forty")),
			wantField: "age",
		},
		{
			name:      "bad array element",
			fields:    valid().Set("tags", Array(String("a"), Int(2))),
			wantField: "tags.[1]",
		},
		{
			name:      "bad nested record",
			fields:    valid().Set("address", Map(map[string]Value{"zip": String("1")})),
			wantField: "address.city",
		},
		{
			name:      "bad map entry",
			fields:    valid().Set("counters", Map(map[string]Value{"k": Bool(true)})),
			wantField: "counters.k",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got testRecord
			err := got.DecodeFields(tt.fields)
			require.Error(t, err)

			var serErr *SerializationError
			require.True(t, errors.As(err, &serErr))
			assert.Equal(t, tt.wantField, serErr.Field)
		})
	}
}

func TestAsInt(t *testing.T) {
	t.Run("fits", func(t *testing.T) {
		got, err := AsInt[int8](Int(-128))
		require.NoError(t, err)
		assert.Equal(t, int8(-128), got)
	})

	t.Run("overflows int8", func(t *testing.T) {
		_, err := AsInt[int8](Int(300))
		assert.Equal(t, KindSerialization, KindOf(err))
	})

	t.Run("negative into unsigned", func(t *testing.T) {
		_, err := AsInt[uint](Int(-1))
		assert.Equal(t, KindSerialization, KindOf(err))
	})

	t.Run("negative into uint64", func(t *testing.T) {
		_, err := AsInt[uint64](Int(-1))
		assert.Equal(t, KindSerialization, KindOf(err))
	})

	t.Run("not an integer", func(t *testing.T) {
		_, err := AsInt[int](Double(1))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "expected integerValue, got doubleValue")
	})
}

func TestConverters(t *testing.T) {
	f, err := AsFloat(Int(2))
	require.NoError(t, err)
	assert.Equal(t, 2.0, f)

	b, err := AsBool(Bool(true))
	require.NoError(t, err)
	assert.True(t, b)

	geo, err := AsGeoPoint(GeoPoint(1, 2))
	require.NoError(t, err)
	assert.Equal(t, LatLng{Latitude: 1, Longitude: 2}, geo)

	ref, err := AsReference(Reference("projects/p/databases/(default)/documents/a/b"))
	require.NoError(t, err)
	assert.Equal(t, "projects/p/databases/(default)/documents/a/b", ref)

	_, err = AsString(Null())
	assert.Error(t, err)
	_, err = AsTime(String("2024-01-01T00:00:00Z"))
	assert.Error(t, err)
	_, err = AsMap(AsString)(Array())
	assert.Error(t, err)
}

func TestOptionalTreatsNullAsAbsent(t *testing.T) {
	f := Fields{"nickname": Null()}

	got, err := Optional(f, "nickname", AsString)
	require.NoError(t, err)
	assert.Nil(t, got)

	def, err := OrDefault(f, "nickname", "anon", AsString)
	require.NoError(t, err)
	assert.Equal(t, "anon", def)

	_, err = Required(f, "nickname", AsString)
	assert.Error(t, err, "a required field may not be null")
}

func TestFields_SetOptional(t *testing.T) {
	var missing *string
	name := "alice"

	f := Fields{}.
		SetOptional("missing", OptionalValue(missing, String)).
		SetOptional("name", OptionalValue(&name, String))

	assert.Len(t, f, 1)
	assert.True(t, String("alice").Equal(f["name"]))
}

func TestFields_DecodeCopies(t *testing.T) {
	src := Fields{"a": Int(1)}
	var dst Fields
	require.NoError(t, dst.DecodeFields(src))

	src["b"] = Int(2)
	assert.Len(t, dst, 1)
}

func TestMapFields(t *testing.T) {
	in := MapFields{
		"name": "alice",
		"age":  json.Number("42"),
		"tags": []interface{}{"a"},
		"when": testdata.TestData.SimpleTime,
	}
	fields, err := in.EncodeFields()
	require.NoError(t, err)
	assert.True(t, Int(42).Equal(fields["age"]))
	assert.True(t, Timestamp(testdata.TestData.SimpleTime).Equal(fields["when"]))

	var out MapFields
	require.NoError(t, out.DecodeFields(fields))
	assert.Equal(t, int64(42), out["age"])
	assert.Equal(t, []interface{}{"a"}, out["tags"])

	_, err = MapFields{"bad": make(chan int)}.EncodeFields()
	var serErr *SerializationError
	require.True(t, errors.As(err, &serErr))
	assert.Equal(t, "bad", serErr.Field)
}
