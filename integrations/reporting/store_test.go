package reporting

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"salechain/core/events"
	"salechain/core/types"
	"salechain/native/crowdsale"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	store, err := Open(DriverSQLite, dsn, nil)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

type saleFixture struct {
	id     solana.PublicKey
	sale   solana.PublicKey
	record *crowdsale.SaleRecord
}

func newSaleFixture(t *testing.T) saleFixture {
	t.Helper()
	id := solana.NewWallet().PublicKey()
	sale, _, err := crowdsale.SaleAddress(id)
	require.NoError(t, err)
	return saleFixture{id: id, sale: sale, record: &crowdsale.SaleRecord{
		ID:          id,
		Cost:        500,
		MintAccount: solana.NewWallet().PublicKey(),
		Owner:       solana.NewWallet().PublicKey(),
	}}
}

func (f saleFixture) purchase(buyer solana.PublicKey, amount uint32) types.Event {
	return *crowdsale.NewPurchaseEvent(crowdsale.Purchase{
		Sale:        f.sale,
		SaleID:      f.id,
		Buyer:       buyer,
		BuyerTokens: solana.NewWallet().PublicKey(),
		Mint:        f.record.MintAccount,
		Amount:      amount,
		Cost:        f.record.Cost,
		Total:       uint64(amount) * uint64(f.record.Cost),
	})
}

func TestApplyAggregatesSale(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	f := newSaleFixture(t)
	alice := solana.NewWallet().PublicKey()
	bob := solana.NewWallet().PublicKey()

	envs := []events.Envelope{
		{Sequence: 1, TxHash: "tx-create", Slot: 1, Event: *crowdsale.NewCreatedEvent(f.sale, f.record)},
		{Sequence: 2, TxHash: "tx-a1", Slot: 2, Event: f.purchase(alice, 4)},
		{Sequence: 3, TxHash: "tx-b1", Slot: 3, Event: f.purchase(bob, 10)},
		{Sequence: 4, TxHash: "tx-a2", Slot: 4, Event: f.purchase(alice, 2)},
		{Sequence: 5, TxHash: "tx-w", Slot: 5, Event: *crowdsale.NewWithdrawalEvent(f.sale, f.record, 3_000, 0)},
		{Sequence: 6, TxHash: "tx-close", Slot: 6, Event: *crowdsale.NewClosedEvent(f.sale, f.record)},
	}
	for _, env := range envs {
		require.NoError(t, store.Apply(ctx, env))
	}
	// replays are ignored
	require.NoError(t, store.Apply(ctx, envs[1]))

	summary, err := store.Summary(ctx, f.id.String())
	require.NoError(t, err)
	require.Equal(t, uint64(3), summary.Purchases)
	require.Equal(t, uint64(16), summary.TokensSold)
	require.Equal(t, uint64(8_000), summary.LamportsRaised)
	require.Equal(t, uint64(3_000), summary.LamportsWithdrawn)
	require.Equal(t, "closed", summary.Status)
	require.Equal(t, uint64(6), summary.ClosedSlot)

	top, err := store.TopBuyers(ctx, f.id.String(), 5)
	require.NoError(t, err)
	require.Len(t, top, 2)
	require.Equal(t, bob.String(), top[0].Buyer)
	require.Equal(t, uint64(5_000), top[0].Lamports)
	require.Equal(t, uint64(2), top[1].Purchases)
	require.Equal(t, uint64(6), top[1].Tokens)
}

func TestSummaryUnknownSale(t *testing.T) {
	store := openTestStore(t)
	_, err := store.Summary(context.Background(), solana.NewWallet().PublicKey().String())
	require.ErrorIs(t, err, ErrSaleNotIndexed)
}

func TestApplyIgnoresOtherModules(t *testing.T) {
	store := openTestStore(t)
	err := store.Apply(context.Background(), events.Envelope{
		Sequence: 1,
		TxHash:   "airdrop",
		Event:    types.Event{Type: "ledger.airdrop", Attributes: map[string]string{"address": "x"}},
	})
	require.NoError(t, err)
}

func TestRunFollowsBus(t *testing.T) {
	store := openTestStore(t)
	bus := events.NewBus()
	f := newSaleFixture(t)
	bus.Publish("tx-create", 1, []types.Event{*crowdsale.NewCreatedEvent(f.sale, f.record)})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		store.Run(ctx, bus)
		close(done)
	}()
	require.Eventually(t, func() bool { return bus.Subscribers() == 1 }, time.Second, 5*time.Millisecond)
	bus.Publish("tx-buy", 2, []types.Event{f.purchase(solana.NewWallet().PublicKey(), 3)})

	require.Eventually(t, func() bool {
		summary, err := store.Summary(context.Background(), f.id.String())
		return err == nil && summary.Purchases == 1
	}, 2*time.Second, 10*time.Millisecond)
	cancel()
	<-done
}

func TestRunKeepsUpWithBurst(t *testing.T) {
	store := openTestStore(t)
	bus := events.NewBus()
	f := newSaleFixture(t)
	bus.Publish("tx-create", 1, []types.Event{*crowdsale.NewCreatedEvent(f.sale, f.record)})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		store.Run(ctx, bus)
		close(done)
	}()
	require.Eventually(t, func() bool { return bus.Subscribers() == 1 }, time.Second, 5*time.Millisecond)

	const burst = 100
	buyer := solana.NewWallet().PublicKey()
	purchases := make([]types.Event, 0, burst)
	for i := 0; i < burst; i++ {
		purchases = append(purchases, f.purchase(buyer, 1))
	}
	bus.Publish("tx-burst", 2, purchases)

	require.Eventually(t, func() bool {
		summary, err := store.Summary(context.Background(), f.id.String())
		return err == nil && summary.Purchases == burst
	}, 5*time.Second, 10*time.Millisecond)
	summary, err := store.Summary(context.Background(), f.id.String())
	require.NoError(t, err)
	require.Equal(t, uint64(burst), summary.TokensSold)
	cancel()
	<-done
}

func TestOpenRejectsUnknownDriver(t *testing.T) {
	_, err := Open("oracle", "dsn", nil)
	require.Error(t, err)
	_, err = Open(DriverSQLite, " ", nil)
	require.Error(t, err)
}
