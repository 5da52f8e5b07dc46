package record

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixedValidator struct {
	validateErr error
	selectIdx   int
	selectErr   error
}

func (f *fixedValidator) Validate(key string, value []byte) error { return f.validateErr }
func (f *fixedValidator) Select(key string, values [][]byte) (int, error) {
	return f.selectIdx, f.selectErr
}

func TestMemoryStorePutGet(t *testing.T) {
	s := NewMemoryStore()
	v := &fixedValidator{selectIdx: 1}
	require.NoError(t, s.Put(v, "/v/a", []byte("first")))
	got, ok := s.Get("/v/a")
	require.True(t, ok)
	assert.Equal(t, []byte("first"), got)
}

func TestMemoryStorePutRejectsWhenSelectPrefersExisting(t *testing.T) {
	s := NewMemoryStore()
	require.NoError(t, s.Put(&fixedValidator{selectIdx: 1}, "/v/a", []byte("first")))
	require.NoError(t, s.Put(&fixedValidator{selectIdx: 0}, "/v/a", []byte("second")))
	got, _ := s.Get("/v/a")
	assert.Equal(t, []byte("first"), got)
}

func TestMemoryStoreDeleteAndHas(t *testing.T) {
	s := NewMemoryStore()
	require.NoError(t, s.Put(&fixedValidator{selectIdx: 1}, "/v/a", []byte("x")))
	assert.True(t, s.Has("/v/a"))
	s.Delete("/v/a")
	assert.False(t, s.Has("/v/a"))
}

func TestMemoryStoreKeysSorted(t *testing.T) {
	s := NewMemoryStore()
	v := &fixedValidator{selectIdx: 1}
	require.NoError(t, s.Put(v, "/v/b", []byte("1")))
	require.NoError(t, s.Put(v, "/v/a", []byte("1")))
	assert.Equal(t, []string{"/v/a", "/v/b"}, s.Keys())
}

func TestNamespacedValidatorUnknownNamespace(t *testing.T) {
	nv := NamespacedValidator{"v": &fixedValidator{selectIdx: 1}}
	err := nv.Validate("/unknown/x", []byte("y"))
	assert.Error(t, err)
}

func TestNamespaceParsing(t *testing.T) {
	ns, rest, ok := Namespace("/v/hello/world")
	require.True(t, ok)
	assert.Equal(t, "v", ns)
	assert.Equal(t, "hello/world", rest)

	_, _, ok = Namespace("no-leading-slash")
	assert.False(t, ok)
}
