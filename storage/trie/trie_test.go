package trie

import (
	"testing"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/require"

	"salechain/storage"
)

func TestTrieCommitFlushPersistsData(t *testing.T) {
	dir := t.TempDir()

	db1, err := storage.NewLevelDB(dir)
	require.NoError(t, err)

	tr, err := NewTrie(db1, nil)
	require.NoError(t, err)

	key := crypto.Keccak256Hash([]byte("key"))
	value := []byte("value")

	require.NoError(t, tr.Update(key.Bytes(), value))
	root, err := tr.Commit(0)
	require.NoError(t, err)

	db1.Close()

	db2, err := storage.NewLevelDB(dir)
	require.NoError(t, err)
	defer db2.Close()

	restored, err := NewTrie(db2, root.Bytes())
	require.NoError(t, err)

	got, err := restored.Get(key.Bytes())
	require.NoError(t, err)
	require.Equal(t, value, got)
}

func TestTrieCopyIsolatesMutations(t *testing.T) {
	db := storage.NewMemDB()
	t.Cleanup(db.Close)

	tr, err := NewTrie(db, nil)
	require.NoError(t, err)

	key := crypto.Keccak256Hash([]byte("sale")).Bytes()
	require.NoError(t, tr.Update(key, []byte("open")))

	snapshot := tr.Copy()
	require.NoError(t, tr.Update(key, []byte("closed")))
	require.NoError(t, tr.Delete(crypto.Keccak256Hash([]byte("missing")).Bytes()))

	got, err := snapshot.Get(key)
	require.NoError(t, err)
	require.Equal(t, []byte("open"), got)

	got, err = tr.Get(key)
	require.NoError(t, err)
	require.Equal(t, []byte("closed"), got)
}

func TestTrieResetDiscardsUncommitted(t *testing.T) {
	db := storage.NewMemDB()
	t.Cleanup(db.Close)

	tr, err := NewTrie(db, nil)
	require.NoError(t, err)
	key := crypto.Keccak256Hash([]byte("k")).Bytes()
	require.NoError(t, tr.Update(key, []byte("v1")))
	root, err := tr.Commit(1)
	require.NoError(t, err)

	require.NoError(t, tr.Update(key, []byte("v2")))
	require.NoError(t, tr.Reset(root))

	got, err := tr.Get(key)
	require.NoError(t, err)
	require.Equal(t, []byte("v1"), got)
	require.Equal(t, root, tr.Root())
}
