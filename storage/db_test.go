package storage

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func exerciseDatabase(t *testing.T, db Database) {
	t.Helper()

	_, err := db.Get([]byte("missing"))
	require.True(t, errors.Is(err, ErrNotFound))

	require.NoError(t, db.Put([]byte("a"), []byte("1")))
	value, err := db.Get([]byte("a"))
	require.NoError(t, err)
	require.Equal(t, []byte("1"), value)

	batch := NewBatch()
	batch.Put([]byte("b"), []byte("2"))
	batch.Put([]byte("c"), []byte("3"))
	batch.Delete([]byte("a"))
	require.Equal(t, 3, batch.Len())
	require.NoError(t, db.Write(batch))

	_, err = db.Get([]byte("a"))
	require.True(t, errors.Is(err, ErrNotFound))
	value, err = db.Get([]byte("c"))
	require.NoError(t, err)
	require.Equal(t, []byte("3"), value)

	require.NoError(t, db.Delete([]byte("b")))
	_, err = db.Get([]byte("b"))
	require.True(t, errors.Is(err, ErrNotFound))
}

func TestMemDB(t *testing.T) {
	db := NewMemDB()
	defer db.Close()
	exerciseDatabase(t, db)
	require.Equal(t, 1, db.Len())
}

func TestMemDBReturnsCopies(t *testing.T) {
	db := NewMemDB()
	buf := []byte("value")
	require.NoError(t, db.Put([]byte("k"), buf))
	buf[0] = 'X'
	got, err := db.Get([]byte("k"))
	require.NoError(t, err)
	require.Equal(t, []byte("value"), got)
}

func TestLevelDB(t *testing.T) {
	db, err := NewLevelDB(filepath.Join(t.TempDir(), "ledger"))
	require.NoError(t, err)
	defer db.Close()
	exerciseDatabase(t, db)
}
