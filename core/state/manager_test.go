package state

import (
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/require"

	"salechain/core/types"
	"salechain/storage"
	"salechain/storage/trie"
)

func newTestManager(t *testing.T) (*Manager, storage.Database) {
	t.Helper()
	db := storage.NewMemDB()
	t.Cleanup(db.Close)
	tr, err := trie.NewTrie(db, nil)
	require.NoError(t, err)
	return NewManager(tr), db
}

func TestGetAccountDefaultsToEmptySystemAccount(t *testing.T) {
	m, _ := newTestManager(t)
	acc, err := m.GetAccount(solana.NewWallet().PublicKey())
	require.NoError(t, err)
	require.Equal(t, solana.SystemProgramID, acc.Owner)
	require.Zero(t, acc.Lamports)
	require.Empty(t, acc.Data)
}

func TestPutAccountRoundTripAndDeleteWhenEmpty(t *testing.T) {
	m, _ := newTestManager(t)
	addr := solana.NewWallet().PublicKey()
	owner := solana.TokenProgramID

	stored := &types.Account{Lamports: 42, Owner: owner, Data: []byte{1, 2, 3}}
	require.NoError(t, m.PutAccount(addr, stored))

	got, err := m.GetAccount(addr)
	require.NoError(t, err)
	require.True(t, stored.Equal(got))

	exists, err := m.AccountExists(addr)
	require.NoError(t, err)
	require.True(t, exists)

	require.NoError(t, m.PutAccount(addr, &types.Account{Owner: owner}))
	exists, err = m.AccountExists(addr)
	require.NoError(t, err)
	require.False(t, exists)
}

func TestRevertDiscardsMutations(t *testing.T) {
	m, _ := newTestManager(t)
	addr := solana.NewWallet().PublicKey()
	require.NoError(t, m.PutAccount(addr, &types.Account{Lamports: 10, Owner: solana.SystemProgramID}))

	snap := m.Snapshot()
	require.NoError(t, m.PutAccount(addr, &types.Account{Lamports: 99, Owner: solana.SystemProgramID}))
	m.Revert(snap)

	got, err := m.GetAccount(addr)
	require.NoError(t, err)
	require.Equal(t, uint64(10), got.Lamports)
}

func TestCommitPersistsRoot(t *testing.T) {
	m, db := newTestManager(t)
	addr := solana.NewWallet().PublicKey()
	require.NoError(t, m.PutAccount(addr, &types.Account{Lamports: 7, Owner: solana.SystemProgramID}))

	root, err := m.Commit(1)
	require.NoError(t, err)
	require.Equal(t, root, m.Root())

	reopened, err := trie.NewTrie(db, root.Bytes())
	require.NoError(t, err)
	got, err := NewManager(reopened).GetAccount(addr)
	require.NoError(t, err)
	require.Equal(t, uint64(7), got.Lamports)
}

func TestRentMinimumBalance(t *testing.T) {
	rent := DefaultRent()
	require.NoError(t, rent.Validate())
	require.Equal(t, uint64((128+141)*3480*2), rent.MinimumBalance(141))
	require.Equal(t, uint64(128*3480*2), rent.MinimumBalance(0))
	require.True(t, rent.IsExempt(rent.MinimumBalance(72), 72))
	require.False(t, rent.IsExempt(rent.MinimumBalance(72)-1, 72))

	huge := Rent{LamportsPerByteYear: ^uint64(0), ExemptionYears: 2}
	require.Error(t, huge.Validate())
	require.Equal(t, ^uint64(0), huge.MinimumBalance(1))
	require.Error(t, Rent{ExemptionYears: 1}.Validate())
}
