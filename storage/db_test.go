package storage

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func exerciseDatabase(t *testing.T, db Database) {
	t.Helper()

	_, err := db.Get([]byte("missing"))
	require.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, db.Put([]byte("k"), []byte("v1")))
	got, err := db.Get([]byte("k"))
	require.NoError(t, err)
	require.Equal(t, []byte("v1"), got)

	ok, err := db.Has([]byte("k"))
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, db.Delete([]byte("k")))
	ok, err = db.Has([]byte("k"))
	require.NoError(t, err)
	require.False(t, ok)
	require.NoError(t, db.Delete([]byte("k")))

	require.NoError(t, db.Put([]byte("old"), []byte("x")))
	batch := db.NewBatch()
	batch.Put([]byte("a"), []byte("1"))
	batch.Put([]byte("b"), []byte("2"))
	batch.Delete([]byte("old"))
	require.Equal(t, 3, batch.Len())
	_, err = db.Get([]byte("a"))
	require.ErrorIs(t, err, ErrNotFound)
	require.NoError(t, db.Write(batch))
	got, err = db.Get([]byte("b"))
	require.NoError(t, err)
	require.Equal(t, []byte("2"), got)
	ok, err = db.Has([]byte("old"))
	require.NoError(t, err)
	require.False(t, ok)
}

func TestMemDB(t *testing.T) {
	db := NewMemDB()
	defer db.Close()
	exerciseDatabase(t, db)
}

func TestMemDBCopiesValues(t *testing.T) {
	db := NewMemDB()
	value := []byte("abc")
	require.NoError(t, db.Put([]byte("k"), value))
	value[0] = 'z'
	got, err := db.Get([]byte("k"))
	require.NoError(t, err)
	require.Equal(t, []byte("abc"), got)
}

func TestLevelDBPersistsAcrossReopen(t *testing.T) {
	dir := t.TempDir()

	db1, err := NewLevelDB(dir)
	require.NoError(t, err)
	exerciseDatabase(t, db1)
	require.NoError(t, db1.Put([]byte("persist"), []byte("yes")))
	db1.Close()

	db2, err := NewLevelDB(dir)
	require.NoError(t, err)
	defer db2.Close()
	got, err := db2.Get([]byte("persist"))
	require.NoError(t, err)
	require.Equal(t, []byte("yes"), got)
}

func TestWriteRejectsForeignBatch(t *testing.T) {
	mem := NewMemDB()
	ldb, err := NewLevelDB(t.TempDir())
	require.NoError(t, err)
	defer ldb.Close()

	require.Error(t, mem.Write(ldb.NewBatch()))
	require.Error(t, ldb.Write(mem.NewBatch()))
}
