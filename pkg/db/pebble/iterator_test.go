package pebble

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eigerco/pvmhost/pkg/db"
)

func collect(t *testing.T, iter db.Iterator) []string {
	t.Helper()
	var kvs []string
	for iter.Next() {
		v, err := iter.Value()
		require.NoError(t, err)
		kvs = append(kvs, string(iter.Key())+"="+string(v))
	}
	return kvs
}

func TestIteratorRanges(t *testing.T) {
	store := newStore(t)
	for _, k := range []string{"d", "b", "a", "e", "c"} {
		require.NoError(t, store.Put([]byte(k), []byte("v"+k)))
	}

	t.Run("full range in key order", func(t *testing.T) {
		iter, err := store.NewIterator(nil, nil)
		require.NoError(t, err)
		defer iter.Close() //nolint:errcheck
		assert.Equal(t, []string{"a=va", "b=vb", "c=vc", "d=vd", "e=ve"}, collect(t, iter))
	})

	t.Run("end is exclusive", func(t *testing.T) {
		iter, err := store.NewIterator([]byte("b"), []byte("e"))
		require.NoError(t, err)
		defer iter.Close() //nolint:errcheck
		assert.Equal(t, []string{"b=vb", "c=vc", "d=vd"}, collect(t, iter))
	})
}

func TestIteratorValidity(t *testing.T) {
	store := newStore(t)
	require.NoError(t, store.Put([]byte("key"), []byte("value")))

	iter, err := store.NewIterator(nil, nil)
	require.NoError(t, err)
	defer iter.Close() //nolint:errcheck

	assert.False(t, iter.Valid())
	require.True(t, iter.Next())
	assert.True(t, iter.Valid())

	assert.False(t, iter.Next())
	assert.False(t, iter.Valid())
	_, err = iter.Value()
	assert.ErrorIs(t, err, ErrIteratorInvalid)
}

func TestPrefixUpperBound(t *testing.T) {
	assert.Equal(t, []byte{1, 3}, PrefixUpperBound([]byte{1, 2}))
	assert.Equal(t, []byte{2}, PrefixUpperBound([]byte{1, 0xff}))
	assert.Nil(t, PrefixUpperBound([]byte{0xff, 0xff}))
}

func TestPersistentStore(t *testing.T) {
	dir := t.TempDir()

	store, err := NewKVStore(WithPath(dir))
	require.NoError(t, err)
	require.NoError(t, store.Put([]byte("key"), []byte("value")))
	require.NoError(t, store.Close())

	store, err = NewKVStore(WithPath(dir))
	require.NoError(t, err)
	defer store.Close() //nolint:errcheck

	v, err := store.Get([]byte("key"))
	require.NoError(t, err)
	assert.Equal(t, []byte("value"), v)
}
