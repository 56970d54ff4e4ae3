package pebble

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBatchReplacesKeys(t *testing.T) {
	store := newStore(t)
	require.NoError(t, store.Put([]byte("storage/a"), []byte("old")))
	require.NoError(t, store.Put([]byte("storage/b"), []byte("old")))

	// delete everything then write the survivors, the later write wins
	batch := store.NewBatch()
	defer batch.Close() //nolint:errcheck
	require.NoError(t, batch.Delete([]byte("storage/a")))
	require.NoError(t, batch.Delete([]byte("storage/b")))
	require.NoError(t, batch.Put([]byte("storage/a"), []byte("new")))

	// nothing is visible before the commit
	v, err := store.Get([]byte("storage/b"))
	require.NoError(t, err)
	assert.Equal(t, []byte("old"), v)

	require.NoError(t, batch.Commit())

	v, err = store.Get([]byte("storage/a"))
	require.NoError(t, err)
	assert.Equal(t, []byte("new"), v)
	_, err = store.Get([]byte("storage/b"))
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestBatchDone(t *testing.T) {
	store := newStore(t)

	t.Run("committed", func(t *testing.T) {
		batch := store.NewBatch()
		require.NoError(t, batch.Put([]byte("key"), []byte("value")))
		require.NoError(t, batch.Commit())

		assert.ErrorIs(t, batch.Put([]byte("key2"), []byte("value2")), ErrBatchDone)
		assert.ErrorIs(t, batch.Delete([]byte("key")), ErrBatchDone)
		assert.ErrorIs(t, batch.Commit(), ErrBatchDone)
		assert.NoError(t, batch.Close())
		assert.NoError(t, batch.Close())
	})

	t.Run("closed without commit", func(t *testing.T) {
		batch := store.NewBatch()
		require.NoError(t, batch.Put([]byte("discarded"), []byte("value")))
		require.NoError(t, batch.Close())

		assert.ErrorIs(t, batch.Commit(), ErrBatchDone)
		_, err := store.Get([]byte("discarded"))
		assert.ErrorIs(t, err, ErrNotFound)
	})
}
