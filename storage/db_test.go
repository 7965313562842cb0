package storage

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMemDBRoundTrip(t *testing.T) {
	db := NewMemDB()
	defer db.Close()

	require.NoError(t, db.Put([]byte("alpha"), []byte{0x01}))
	got, err := db.Get([]byte("alpha"))
	require.NoError(t, err)
	require.Equal(t, []byte{0x01}, got)

	missing, err := db.Get([]byte("beta"))
	require.NoError(t, err)
	require.Nil(t, missing)

	require.NoError(t, db.Delete([]byte("alpha")))
	got, err = db.Get([]byte("alpha"))
	require.NoError(t, err)
	require.Nil(t, got)
}

func TestMemDBBatchIsInvisibleUntilWrite(t *testing.T) {
	db := NewMemDB()
	defer db.Close()

	batch := db.NewBatch()
	batch.Put([]byte("alpha"), []byte{0x01})
	batch.Put([]byte("beta"), []byte{0x02})

	got, err := db.Get([]byte("alpha"))
	require.NoError(t, err)
	require.Nil(t, got, "batched write must not be visible before Write")

	require.NoError(t, batch.Write())

	got, err = db.Get([]byte("beta"))
	require.NoError(t, err)
	require.Equal(t, []byte{0x02}, got)
}

func TestLevelDBRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger")
	db, err := NewLevelDB(path)
	require.NoError(t, err)
	defer db.Close()

	require.NoError(t, db.Put([]byte("alpha"), []byte{0xAA}))
	got, err := db.Get([]byte("alpha"))
	require.NoError(t, err)
	require.Equal(t, []byte{0xAA}, got)

	missing, err := db.Get([]byte("beta"))
	require.NoError(t, err)
	require.Nil(t, missing)

	batch := db.NewBatch()
	batch.Put([]byte("gamma"), []byte{0x03})
	batch.Delete([]byte("alpha"))
	require.NoError(t, batch.Write())

	got, err = db.Get([]byte("gamma"))
	require.NoError(t, err)
	require.Equal(t, []byte{0x03}, got)
	got, err = db.Get([]byte("alpha"))
	require.NoError(t, err)
	require.Nil(t, got)
}
