package runtime

import (
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/require"

	ledgererrors "salechain/core/errors"
	"salechain/core/state"
	"salechain/core/types"
	"salechain/storage"
	"salechain/storage/trie"
)

type funcProgram struct {
	id solana.PublicKey
	fn func(ctx *Context, accounts []solana.PublicKey, data []byte) error
}

func (p funcProgram) ID() solana.PublicKey { return p.id }

func (p funcProgram) Process(ctx *Context, accounts []solana.PublicKey, data []byte) error {
	return p.fn(ctx, accounts, data)
}

func newTestStore(t *testing.T) *state.Manager {
	t.Helper()
	db := storage.NewMemDB()
	t.Cleanup(db.Close)
	tr, err := trie.NewTrie(db, nil)
	require.NoError(t, err)
	return state.NewManager(tr)
}

func TestDebitOfForeignAccountRejected(t *testing.T) {
	store := newTestStore(t)
	victim := solana.NewWallet().PublicKey()
	thief := solana.NewWallet().PublicKey()
	require.NoError(t, store.PutAccount(victim, &types.Account{Lamports: 100, Owner: solana.SystemProgramID}))

	prog := funcProgram{id: solana.NewWallet().PublicKey(), fn: func(ctx *Context, accounts []solana.PublicKey, _ []byte) error {
		acc, err := ctx.Account(accounts[0])
		if err != nil {
			return err
		}
		acc.Lamports = 0
		return ctx.SetAccount(accounts[0], acc)
	}}
	exec := NewExecutor(state.DefaultRent(), prog)
	ix := types.Instruction{ProgramID: prog.id, Accounts: []solana.PublicKey{victim, thief}}
	require.ErrorIs(t, exec.Execute(store, []solana.PublicKey{victim}, ix, nil), ledgererrors.ErrExternalAccountModified)
}

func TestUnbalancedInstructionRejected(t *testing.T) {
	store := newTestStore(t)
	target := solana.NewWallet().PublicKey()
	prog := funcProgram{id: solana.NewWallet().PublicKey(), fn: func(ctx *Context, accounts []solana.PublicKey, _ []byte) error {
		acc, err := ctx.Account(accounts[0])
		if err != nil {
			return err
		}
		acc.Lamports += 1_000
		return ctx.SetAccount(accounts[0], acc)
	}}
	exec := NewExecutor(state.DefaultRent(), prog)
	ix := types.Instruction{ProgramID: prog.id, Accounts: []solana.PublicKey{target}}
	require.ErrorIs(t, exec.Execute(store, nil, ix, nil), ledgererrors.ErrUnbalancedInstruction)

	acc, err := store.GetAccount(target)
	require.NoError(t, err)
	require.Zero(t, acc.Lamports)
}

func TestInvokeSignedGrantsDerivedSigner(t *testing.T) {
	store := newTestStore(t)
	callerID := solana.NewWallet().PublicKey()
	calleeID := solana.NewWallet().PublicKey()
	seed := []byte("vault")
	pda, bump, err := solana.FindProgramAddress([][]byte{seed}, callerID)
	require.NoError(t, err)

	var sawSigner bool
	callee := funcProgram{id: calleeID, fn: func(ctx *Context, accounts []solana.PublicKey, _ []byte) error {
		sawSigner = ctx.IsSigner(accounts[0])
		return ctx.RequireSigner(accounts[0])
	}}
	caller := funcProgram{id: callerID, fn: func(ctx *Context, accounts []solana.PublicKey, data []byte) error {
		ix := types.Instruction{ProgramID: calleeID, Accounts: []solana.PublicKey{accounts[0]}}
		if len(data) > 0 {
			return ctx.Invoke(ix)
		}
		return ctx.InvokeSigned(ix, [][]byte{seed, {bump}})
	}}
	exec := NewExecutor(state.DefaultRent(), caller, callee)

	ix := types.Instruction{ProgramID: callerID, Accounts: []solana.PublicKey{pda, calleeID}}
	require.NoError(t, exec.Execute(store, nil, ix, nil))
	require.True(t, sawSigner)

	ix.Data = []byte{1}
	require.ErrorIs(t, exec.Execute(store, nil, ix, nil), ledgererrors.ErrMissingSignature)
}

func TestInvokeRequiresPassedAccounts(t *testing.T) {
	store := newTestStore(t)
	calleeID := solana.NewWallet().PublicKey()
	hidden := solana.NewWallet().PublicKey()
	callee := funcProgram{id: calleeID, fn: func(*Context, []solana.PublicKey, []byte) error { return nil }}
	caller := funcProgram{id: solana.NewWallet().PublicKey(), fn: func(ctx *Context, _ []solana.PublicKey, _ []byte) error {
		return ctx.Invoke(types.Instruction{ProgramID: calleeID, Accounts: []solana.PublicKey{hidden}})
	}}
	exec := NewExecutor(state.DefaultRent(), caller, callee)
	err := exec.Execute(store, nil, types.Instruction{ProgramID: caller.id}, nil)
	require.ErrorIs(t, err, ledgererrors.ErrInvalidAccount)
}

func TestCallDepthLimited(t *testing.T) {
	store := newTestStore(t)
	id := solana.NewWallet().PublicKey()
	self := funcProgram{id: id, fn: func(ctx *Context, _ []solana.PublicKey, _ []byte) error {
		return ctx.Invoke(types.Instruction{ProgramID: id})
	}}
	exec := NewExecutor(state.DefaultRent(), self)
	err := exec.Execute(store, nil, types.Instruction{ProgramID: id}, nil)
	require.ErrorIs(t, err, ledgererrors.ErrCallDepthExceeded)
}

func TestUnknownProgram(t *testing.T) {
	store := newTestStore(t)
	exec := NewExecutor(state.DefaultRent())
	err := exec.Execute(store, nil, types.Instruction{ProgramID: solana.NewWallet().PublicKey()}, nil)
	require.ErrorIs(t, err, ledgererrors.ErrUnknownProgram)
}

func TestLogsAndEventsCollected(t *testing.T) {
	store := newTestStore(t)
	prog := funcProgram{id: solana.NewWallet().PublicKey(), fn: func(ctx *Context, _ []solana.PublicKey, _ []byte) error {
		ctx.Log("hello %d", 7)
		ctx.Emit(&types.Event{Type: "test.event", Attributes: map[string]string{}})
		return nil
	}}
	exec := NewExecutor(state.DefaultRent(), prog)
	out := &Invocation{}
	require.NoError(t, exec.Execute(store, nil, types.Instruction{ProgramID: prog.id}, out))
	require.Len(t, out.Logs, 1)
	require.Contains(t, out.Logs[0], "hello 7")
	require.Equal(t, 1, out.Events.Len())
}
