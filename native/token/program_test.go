package token

import (
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/require"

	ledgererrors "salechain/core/errors"
	"salechain/core/runtime"
	"salechain/core/state"
	"salechain/core/types"
	"salechain/native/system"
	"salechain/storage"
	"salechain/storage/trie"
)

type tokenFixture struct {
	t         *testing.T
	state     *state.Manager
	exec      *runtime.Executor
	payer     solana.PublicKey
	authority solana.PublicKey
	mint      solana.PublicKey
}

func newTokenFixture(t *testing.T) *tokenFixture {
	t.Helper()
	db := storage.NewMemDB()
	t.Cleanup(db.Close)
	tr, err := trie.NewTrie(db, nil)
	require.NoError(t, err)
	f := &tokenFixture{
		t:         t,
		state:     state.NewManager(tr),
		exec:      runtime.NewExecutor(state.DefaultRent(), system.New(), New(), NewAssociatedProgram()),
		payer:     solana.NewWallet().PublicKey(),
		authority: solana.NewWallet().PublicKey(),
		mint:      solana.NewWallet().PublicKey(),
	}
	require.NoError(t, f.state.PutAccount(f.payer, &types.Account{Lamports: 1_000_000_000, Owner: system.ProgramID}))
	rent := f.exec.Rent().MinimumBalance(MintSize)
	for _, ix := range NewCreateMintInstructions(f.payer, f.mint, rent, 6, f.authority) {
		f.run([]solana.PublicKey{f.payer, f.mint}, ix)
	}
	return f
}

func (f *tokenFixture) run(signers []solana.PublicKey, ix types.Instruction) {
	f.t.Helper()
	require.NoError(f.t, f.exec.Execute(f.state, signers, ix, nil))
}

func (f *tokenFixture) createATA(wallet solana.PublicKey) solana.PublicKey {
	f.t.Helper()
	ix, err := NewCreateIdempotentInstruction(f.payer, wallet, f.mint)
	require.NoError(f.t, err)
	f.run([]solana.PublicKey{f.payer}, ix)
	ata, _, err := AssociatedAddress(wallet, f.mint)
	require.NoError(f.t, err)
	return ata
}

func (f *tokenFixture) tokenBalance(addr solana.PublicKey) uint64 {
	f.t.Helper()
	acc, err := f.state.GetAccount(addr)
	require.NoError(f.t, err)
	tokenAcc, err := DecodeTokenAccount(acc.Data)
	require.NoError(f.t, err)
	return tokenAcc.Amount
}

func TestMintToAndTransfer(t *testing.T) {
	f := newTokenFixture(t)
	alice := solana.NewWallet().PublicKey()
	bob := solana.NewWallet().PublicKey()
	aliceATA := f.createATA(alice)
	bobATA := f.createATA(bob)

	f.run([]solana.PublicKey{f.authority}, NewMintToInstruction(f.mint, aliceATA, f.authority, 1_000))
	require.Equal(t, uint64(1_000), f.tokenBalance(aliceATA))

	f.run([]solana.PublicKey{alice}, NewTransferInstruction(aliceATA, bobATA, alice, 250))
	require.Equal(t, uint64(750), f.tokenBalance(aliceATA))
	require.Equal(t, uint64(250), f.tokenBalance(bobATA))

	mintAcc, err := f.state.GetAccount(f.mint)
	require.NoError(t, err)
	mint, err := DecodeMint(mintAcc.Data)
	require.NoError(t, err)
	require.Equal(t, uint64(1_000), mint.Supply)
	require.Equal(t, uint8(6), mint.Decimals)
}

func TestTransferFailures(t *testing.T) {
	f := newTokenFixture(t)
	alice := solana.NewWallet().PublicKey()
	bob := solana.NewWallet().PublicKey()
	aliceATA := f.createATA(alice)
	bobATA := f.createATA(bob)
	f.run([]solana.PublicKey{f.authority}, NewMintToInstruction(f.mint, aliceATA, f.authority, 100))

	err := f.exec.Execute(f.state, []solana.PublicKey{alice}, NewTransferInstruction(aliceATA, bobATA, alice, 101), nil)
	require.ErrorIs(t, err, ledgererrors.ErrInsufficientFunds)

	err = f.exec.Execute(f.state, []solana.PublicKey{bob}, NewTransferInstruction(aliceATA, bobATA, bob, 1), nil)
	require.ErrorIs(t, err, ledgererrors.ErrUnauthorized)

	err = f.exec.Execute(f.state, nil, NewTransferInstruction(aliceATA, bobATA, alice, 1), nil)
	require.ErrorIs(t, err, ledgererrors.ErrMissingSignature)

	require.Equal(t, uint64(100), f.tokenBalance(aliceATA))
	require.Equal(t, uint64(0), f.tokenBalance(bobATA))
}

func TestMintToRequiresAuthority(t *testing.T) {
	f := newTokenFixture(t)
	alice := solana.NewWallet().PublicKey()
	aliceATA := f.createATA(alice)

	err := f.exec.Execute(f.state, []solana.PublicKey{alice}, NewMintToInstruction(f.mint, aliceATA, alice, 1), nil)
	require.ErrorIs(t, err, ledgererrors.ErrUnauthorized)
}

func TestCreateIdempotentIsIdempotent(t *testing.T) {
	f := newTokenFixture(t)
	wallet := solana.NewWallet().PublicKey()
	ata := f.createATA(wallet)

	payerBefore, err := f.state.GetAccount(f.payer)
	require.NoError(t, err)
	require.Equal(t, ata, f.createATA(wallet))
	payerAfter, err := f.state.GetAccount(f.payer)
	require.NoError(t, err)
	require.Equal(t, payerBefore.Lamports, payerAfter.Lamports)

	acc, err := f.state.GetAccount(ata)
	require.NoError(t, err)
	require.Equal(t, ProgramID, acc.Owner)
	require.Equal(t, f.exec.Rent().MinimumBalance(AccountSize), acc.Lamports)
}

func TestInitializeMintTwiceFails(t *testing.T) {
	f := newTokenFixture(t)
	err := f.exec.Execute(f.state, nil, NewInitializeMintInstruction(f.mint, 0, f.authority), nil)
	require.ErrorIs(t, err, ledgererrors.ErrAlreadyExists)
}
