package sdk

import (
	"net/http"
	"testing"

	"github.com/birbparty/firenest/sdk/testdata"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func recordFields(t *testing.T, r testRecord) Fields {
	t.Helper()
	f, err := r.EncodeFields()
	require.NoError(t, err)
	return f
}

func TestReadAs(t *testing.T) {
	ts := testdata.NewTestSuite(t)
	want := sampleRecord()
	ts.Server.RegisterHandler("GET "+docPath("people/alice"), func(w http.ResponseWriter, r *http.Request) (int, interface{}) {
		return http.StatusOK, wireDoc("people/alice", recordFields(t, want))
	})
	ts.Server.RegisterHandler("GET "+docPath("people/broken"), func(w http.ResponseWriter, r *http.Request) (int, interface{}) {
		return http.StatusOK, wireDoc("people/broken", Fields{"name": Int(1)})
	})
	client := newTestClient(t, ts, newStaticSession(), nil)

	t.Run("decodes into the type", func(t *testing.T) {
		got, err := ReadAs[testRecord](ts.Context, client, "people", "alice")
		require.NoError(t, err)
		assert.Equal(t, want.Name, got.Name)
		assert.Equal(t, want.Age, got.Age)
		require.NotNil(t, got.Address)
		assert.Equal(t, "Lyon", got.Address.City)
	})

	t.Run("decode failure is a serialization error", func(t *testing.T) {
		_, err := ReadAs[testRecord](ts.Context, client, "people", "broken")
		assert.Equal(t, KindSerialization, KindOf(err))
	})

	t.Run("missing document", func(t *testing.T) {
		_, err := ReadAs[testRecord](ts.Context, client, "people", "nobody")
		assert.True(t, IsNotFound(err))
	})
}

func TestListAs(t *testing.T) {
	ts := testdata.NewTestSuite(t)
	ts.Server.RegisterHandler("GET "+docPath("people"), func(w http.ResponseWriter, r *http.Request) (int, interface{}) {
		return http.StatusOK, listResponse{Documents: []documentWire{
			wireDoc("people/a", recordFields(t, testRecord{Name: "a", Age: 1})),
			wireDoc("people/b", Fields{"age": Int(2)}),
			wireDoc("people/c", recordFields(t, testRecord{Name: "c", Age: 3})),
		}}
	})
	client := newTestClient(t, ts, newStaticSession(), nil)

	var names []string
	var lastErr error
	for person, err := range ListAs[testRecord](ts.Context, client, "people") {
		if err != nil {
			lastErr = err
			continue
		}
		names = append(names, person.Name)
	}

	assert.Equal(t, []string{"a"}, names, "iteration stops at the first undecodable document")
	assert.Equal(t, KindSerialization, KindOf(lastErr))
}

func TestQueryAs(t *testing.T) {
	ts := testdata.NewTestSuite(t)
	ts.Server.RegisterHandler("POST "+testdata.DocumentsPath(testdata.TestProject)+":runQuery",
		func(w http.ResponseWriter, r *http.Request) (int, interface{}) {
			return http.StatusOK, []runQueryResponse{
				{Document: ptr(wireDoc("people/a", recordFields(t, testRecord{Name: "a", Age: 30})))},
				{Document: ptr(wireDoc("people/b", recordFields(t, testRecord{Name: "b", Age: 40})))},
			}
		})
	client := newTestClient(t, ts, newStaticSession(), nil)

	people, err := QueryAs[testRecord](ts.Context, client, "people", Where("age", GreaterThan, Int(18)), []Order{Asc("age")})
	require.NoError(t, err)
	require.Len(t, people, 2)
	assert.Equal(t, "a", people[0].Name)
	assert.Equal(t, 40, people[1].Age)
}
