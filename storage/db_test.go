package storage

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMemDBPutGetHas(t *testing.T) {
	db := NewMemDB()
	defer db.Close()

	key := []byte("settlement/state")
	value := []byte("payload")
	require.NoError(t, db.Put(key, value))

	ok, err := db.Has(key)
	require.NoError(t, err)
	require.True(t, ok)

	got, err := db.Get(key)
	require.NoError(t, err)
	require.Equal(t, value, got)

	ok, err = db.Has([]byte("missing"))
	require.NoError(t, err)
	require.False(t, ok)

	_, err = db.Get([]byte("missing"))
	require.Error(t, err)
}

func TestMemDBCopiesValues(t *testing.T) {
	db := NewMemDB()
	defer db.Close()

	key := []byte("k")
	value := []byte("original")
	require.NoError(t, db.Put(key, value))
	value[0] = 'X'

	got, err := db.Get(key)
	require.NoError(t, err)
	require.Equal(t, []byte("original"), got)

	got[1] = 'Y'
	again, err := db.Get(key)
	require.NoError(t, err)
	require.Equal(t, []byte("original"), again)
}

func TestLevelDBRoundTrip(t *testing.T) {
	dir := t.TempDir()
	db, err := NewLevelDB(filepath.Join(dir, "db"))
	require.NoError(t, err)
	defer db.Close()

	key := []byte("k")
	require.NoError(t, db.Put(key, []byte("v")))

	ok, err := db.Has(key)
	require.NoError(t, err)
	require.True(t, ok)

	got, err := db.Get(key)
	require.NoError(t, err)
	require.Equal(t, []byte("v"), got)

	ok, err = db.Has([]byte("absent"))
	require.NoError(t, err)
	require.False(t, ok)
}
