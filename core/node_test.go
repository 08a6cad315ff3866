package core

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/require"

	ledgererrors "salechain/core/errors"
	"salechain/core/events"
	"salechain/core/types"
	"salechain/native/common"
	"salechain/native/crowdsale"
	"salechain/native/system"
	"salechain/native/token"
	"salechain/storage"
)

const fundedLamports = 50_000_000_000

type nodeFixture struct {
	t        *testing.T
	db       storage.Database
	node     *Node
	nonce    uint64
	owner    solana.PrivateKey
	mintAuth solana.PrivateKey
	mint     solana.PrivateKey
	buyer    solana.PrivateKey
	id       solana.PublicKey
}

func mustKey(t *testing.T) solana.PrivateKey {
	t.Helper()
	key, err := solana.NewRandomPrivateKey()
	require.NoError(t, err)
	return key
}

func newNodeFixture(t *testing.T, opts Options) *nodeFixture {
	t.Helper()
	f := &nodeFixture{
		t:        t,
		owner:    mustKey(t),
		mintAuth: mustKey(t),
		mint:     mustKey(t),
		buyer:    mustKey(t),
		id:       mustKey(t).PublicKey(),
	}
	mem := storage.NewMemDB()
	t.Cleanup(mem.Close)
	f.db = mem
	opts.Genesis = append(opts.Genesis,
		GenesisAccount{Address: f.owner.PublicKey(), Lamports: fundedLamports},
		GenesisAccount{Address: f.mintAuth.PublicKey(), Lamports: fundedLamports},
		GenesisAccount{Address: f.buyer.PublicKey(), Lamports: fundedLamports},
	)
	if opts.Now == nil {
		opts.Now = func() time.Time { return time.Unix(1_700_000_000, 0) }
	}
	node, err := NewNode(mem, opts)
	require.NoError(t, err)
	f.node = node
	return f
}

func (f *nodeFixture) submit(ixs []types.Instruction, keys ...solana.PrivateKey) (*types.Receipt, error) {
	f.t.Helper()
	f.nonce++
	tx := &types.Transaction{Nonce: f.nonce, Instructions: ixs}
	require.NoError(f.t, tx.Sign(keys...))
	return f.node.Submit(context.Background(), tx)
}

func (f *nodeFixture) mustSubmit(ixs []types.Instruction, keys ...solana.PrivateKey) *types.Receipt {
	f.t.Helper()
	receipt, err := f.submit(ixs, keys...)
	if err != nil {
		f.t.Fatalf("submit: %v", err)
	}
	require.True(f.t, receipt.Succeeded())
	return receipt
}

// openSale creates the mint, the sale and funds its reserve.
func (f *nodeFixture) openSale(cost uint32, reserve uint64) {
	f.t.Helper()
	mintRent := f.node.MinimumBalance(token.MintSize)
	f.mustSubmit(token.NewCreateMintInstructions(f.mintAuth.PublicKey(), f.mint.PublicKey(), mintRent, 0, f.mintAuth.PublicKey()), f.mintAuth, f.mint)

	initIx, err := crowdsale.NewInitializeInstruction(f.owner.PublicKey(), f.id, f.mint.PublicKey(), cost)
	require.NoError(f.t, err)
	f.mustSubmit([]types.Instruction{initIx}, f.owner)

	reserveAddr, err := crowdsale.ReserveAddress(f.id, f.mint.PublicKey())
	require.NoError(f.t, err)
	f.mustSubmit([]types.Instruction{token.NewMintToInstruction(f.mint.PublicKey(), reserveAddr, f.mintAuth.PublicKey(), reserve)}, f.mintAuth)
}

func (f *nodeFixture) buy(amount uint32) (*types.Receipt, error) {
	f.t.Helper()
	ix, err := crowdsale.NewBuyTokensInstruction(f.buyer.PublicKey(), f.id, f.mint.PublicKey(), amount)
	require.NoError(f.t, err)
	return f.submit([]types.Instruction{ix}, f.buyer)
}

func TestNodeSaleLifecycle(t *testing.T) {
	f := newNodeFixture(t, Options{})
	f.openSale(1_000, 500)

	view, err := f.node.Sale(f.id)
	require.NoError(t, err)
	require.Equal(t, uint32(1_000), view.Record.Cost)
	require.Equal(t, f.owner.PublicKey(), view.Record.Owner)
	require.Equal(t, uint64(500), view.ReserveTokens)
	require.Equal(t, view.RentFloor, view.Lamports)
	require.Zero(t, view.Withdrawable)

	receipt, err := f.buy(20)
	require.NoError(t, err)
	require.Len(t, receipt.Events, 2)

	tokens, err := f.node.TokenBalance(f.buyer.PublicKey(), f.mint.PublicKey())
	require.NoError(t, err)
	require.Equal(t, uint64(20), tokens)

	view, err = f.node.Sale(f.id)
	require.NoError(t, err)
	require.Equal(t, uint64(20_000), view.Withdrawable)
	require.Equal(t, uint64(480), view.ReserveTokens)

	purchases, total, err := f.node.Purchases(f.id, 0, 0)
	require.NoError(t, err)
	require.Equal(t, uint64(1), total)
	require.Equal(t, uint32(20), purchases[0].Amount)
	require.Equal(t, uint64(20_000), purchases[0].Total)
	require.Equal(t, receipt.TxHash, purchases[0].TxHash)

	before, err := f.node.Balance(f.owner.PublicKey())
	require.NoError(t, err)
	withdrawIx, err := crowdsale.NewWithdrawInstruction(f.owner.PublicKey(), f.id)
	require.NoError(t, err)
	f.mustSubmit([]types.Instruction{withdrawIx}, f.owner)
	after, err := f.node.Balance(f.owner.PublicKey())
	require.NoError(t, err)
	require.Equal(t, before+20_000, after)

	view, err = f.node.Sale(f.id)
	require.NoError(t, err)
	require.Equal(t, view.RentFloor, view.Lamports)
}

func TestNodeFailedTransactionIsAtomic(t *testing.T) {
	f := newNodeFixture(t, Options{})
	f.openSale(10, 5)
	root := f.node.StateRoot()
	slot := f.node.Slot()

	// The transfer succeeds on its own but the purchase exceeds the reserve.
	transfer := system.NewTransferInstruction(f.buyer.PublicKey(), f.owner.PublicKey(), 7)
	buy, err := crowdsale.NewBuyTokensInstruction(f.buyer.PublicKey(), f.id, f.mint.PublicKey(), 6)
	require.NoError(t, err)
	receipt, err := f.submit([]types.Instruction{transfer, buy}, f.buyer)
	require.ErrorIs(t, err, ledgererrors.ErrInsufficientFunds)
	require.NotNil(t, receipt)
	require.Equal(t, types.ReceiptFailed, receipt.Status)
	require.NotEmpty(t, receipt.Error)

	require.Equal(t, root, f.node.StateRoot())
	require.Equal(t, slot, f.node.Slot())
	balance, err := f.node.Balance(f.buyer.PublicKey())
	require.NoError(t, err)
	require.Equal(t, uint64(fundedLamports), balance)

	stored, err := f.node.Receipt(receipt.TxHash)
	require.NoError(t, err)
	require.False(t, stored.Succeeded())

	_, total, err := f.node.Purchases(f.id, 0, 0)
	require.NoError(t, err)
	require.Zero(t, total)
}

func TestNodeRejectsDuplicateTransaction(t *testing.T) {
	f := newNodeFixture(t, Options{})
	tx := &types.Transaction{Nonce: 1, Instructions: []types.Instruction{
		system.NewTransferInstruction(f.buyer.PublicKey(), f.owner.PublicKey(), 1),
	}}
	require.NoError(t, tx.Sign(f.buyer))

	_, err := f.node.Submit(context.Background(), tx)
	require.NoError(t, err)
	_, err = f.node.Submit(context.Background(), tx)
	require.ErrorIs(t, err, ledgererrors.ErrDuplicateTransaction)

	balance, err := f.node.Balance(f.owner.PublicKey())
	require.NoError(t, err)
	require.Equal(t, uint64(fundedLamports+1), balance)
}

func TestNodeRejectsBadSignature(t *testing.T) {
	f := newNodeFixture(t, Options{})
	tx := &types.Transaction{Nonce: 1, Instructions: []types.Instruction{
		system.NewTransferInstruction(f.buyer.PublicKey(), f.owner.PublicKey(), 1),
	}}
	require.NoError(t, tx.Sign(f.buyer))
	tx.Nonce = 2

	receipt, err := f.node.Submit(context.Background(), tx)
	require.ErrorIs(t, err, ledgererrors.ErrInvalidSignature)
	require.Nil(t, receipt)

	hash, err := tx.HashString()
	require.NoError(t, err)
	_, err = f.node.Receipt(hash)
	require.ErrorIs(t, err, ledgererrors.ErrNotFound)
}

func TestNodePublishesCommittedEvents(t *testing.T) {
	bus := events.NewBus()
	f := newNodeFixture(t, Options{Bus: bus})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ch, unsubscribe, _ := bus.Subscribe(ctx, "")
	defer unsubscribe()

	f.openSale(3, 10)
	_, err := f.buy(4)
	require.NoError(t, err)

	// A failed purchase publishes nothing.
	_, err = f.buy(0)
	require.ErrorIs(t, err, crowdsale.ErrInvalidAmount)

	var purchases int
	deadline := time.After(2 * time.Second)
	for purchases == 0 {
		select {
		case env := <-ch:
			if env.Event.Type == crowdsale.EventTypePurchase {
				purchases++
				require.Equal(t, "12", env.Event.Attributes["total"])
			}
		case <-deadline:
			t.Fatalf("purchase event not delivered")
		}
	}
	for {
		select {
		case env := <-ch:
			if env.Event.Type == crowdsale.EventTypePurchase {
				t.Fatalf("unexpected second purchase event %+v", env)
			}
		default:
			return
		}
	}
}

func TestNodePausedModule(t *testing.T) {
	pauses := common.NewPauseSet()
	f := newNodeFixture(t, Options{Pauses: pauses})
	f.openSale(1, 10)

	pauses.Set(crowdsale.ModuleName, true)
	_, err := f.buy(1)
	require.ErrorIs(t, err, common.ErrModulePaused)

	pauses.Set(crowdsale.ModuleName, false)
	_, err = f.buy(1)
	require.NoError(t, err)
}

func TestNodeReopensFromStorage(t *testing.T) {
	f := newNodeFixture(t, Options{})
	f.openSale(2, 8)
	_, err := f.buy(3)
	require.NoError(t, err)
	root := f.node.StateRoot()
	slot := f.node.Slot()
	buyerLamports, err := f.node.Balance(f.buyer.PublicKey())
	require.NoError(t, err)

	reopened, err := NewNode(f.db, Options{Genesis: []GenesisAccount{{Address: f.buyer.PublicKey(), Lamports: 1}}})
	require.NoError(t, err)
	require.Equal(t, root, reopened.StateRoot())
	require.Equal(t, slot, reopened.Slot())

	// Genesis is applied only once.
	balance, err := reopened.Balance(f.buyer.PublicKey())
	require.NoError(t, err)
	require.Equal(t, buyerLamports, balance)

	view, err := reopened.Sale(f.id)
	require.NoError(t, err)
	require.Equal(t, uint64(5), view.ReserveTokens)
}

func TestNodeAirdrop(t *testing.T) {
	f := newNodeFixture(t, Options{})
	_, err := f.node.Airdrop(context.Background(), f.buyer.PublicKey(), 10)
	require.ErrorIs(t, err, ErrAirdropDisabled)

	f = newNodeFixture(t, Options{AllowAirdrop: true, MaxAirdrop: 100})
	balance, err := f.node.Airdrop(context.Background(), f.buyer.PublicKey(), 100)
	require.NoError(t, err)
	require.Equal(t, uint64(fundedLamports+100), balance)

	_, err = f.node.Airdrop(context.Background(), f.buyer.PublicKey(), 101)
	require.True(t, errors.Is(err, ledgererrors.ErrInvalidInstruction))
}

func TestNodeUnknownSale(t *testing.T) {
	f := newNodeFixture(t, Options{})
	_, err := f.node.Sale(solana.NewWallet().PublicKey())
	require.ErrorIs(t, err, ledgererrors.ErrNotFound)
}
