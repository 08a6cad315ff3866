package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gagliardetto/solana-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	ledgererrors "salechain/core/errors"
	"salechain/core/events"
	"salechain/core/runtime"
	"salechain/core/state"
	"salechain/core/types"
	nativecommon "salechain/native/common"
	"salechain/native/crowdsale"
	"salechain/native/system"
	"salechain/native/token"
	"salechain/observability"
	"salechain/storage"
	"salechain/storage/trie"
)

// ErrAirdropDisabled is returned by Airdrop on nodes without a faucet.
var ErrAirdropDisabled = errors.New("node: airdrop disabled")

// EventTypeAirdrop is published when faucet lamports are credited.
const EventTypeAirdrop = "ledger.airdrop"

// GenesisAccount funds an address when the ledger is first created.
type GenesisAccount struct {
	Address  solana.PublicKey
	Lamports uint64
}

// Options configures a Node.
type Options struct {
	Rent          state.Rent
	Pauses        nativecommon.PauseView
	Genesis       []GenesisAccount
	AllowAirdrop  bool
	MaxAirdrop    uint64
	Logger        *slog.Logger
	Bus           *events.Bus
	Now           func() time.Time
	TracerName    string
	ExtraPrograms []runtime.Program
}

// Node executes transactions one at a time against the state trie. Every
// transaction either commits all of its instructions or none of them.
type Node struct {
	mu sync.Mutex

	db        storage.Database
	ledger    *Ledger
	state     *state.Manager
	exec      *runtime.Executor
	crowdsale *crowdsale.Program
	bus       *events.Bus
	logger    *slog.Logger
	tracer    trace.Tracer
	nowFn     func() time.Time

	allowAirdrop bool
	maxAirdrop   uint64
	head         Head
}

// NewNode opens the ledger stored in db, applying genesis allocations on first
// start.
func NewNode(db storage.Database, opts Options) (*Node, error) {
	if db == nil {
		return nil, fmt.Errorf("node: database required")
	}
	if opts.Rent == (state.Rent{}) {
		opts.Rent = state.DefaultRent()
	}
	if err := opts.Rent.Validate(); err != nil {
		return nil, err
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Bus == nil {
		opts.Bus = events.NewBus()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.TracerName == "" {
		opts.TracerName = "salechain/core"
	}

	ledger := NewLedger(db)
	head, err := ledger.Head()
	if err != nil {
		return nil, fmt.Errorf("node: load head: %w", err)
	}
	var root []byte
	if head != nil {
		root = head.StateRoot.Bytes()
	}
	stateTrie, err := trie.NewTrie(db, root)
	if err != nil {
		return nil, fmt.Errorf("node: open state: %w", err)
	}

	sale := crowdsale.New()
	sale.SetPauses(opts.Pauses)
	exec := runtime.NewExecutor(opts.Rent, system.New(), token.New(), token.NewAssociatedProgram(), sale)
	for _, p := range opts.ExtraPrograms {
		exec.Register(p)
	}

	n := &Node{
		db:           db,
		ledger:       ledger,
		state:        state.NewManager(stateTrie),
		exec:         exec,
		crowdsale:    sale,
		bus:          opts.Bus,
		logger:       opts.Logger.With("component", "node"),
		tracer:       otel.Tracer(opts.TracerName),
		nowFn:        opts.Now,
		allowAirdrop: opts.AllowAirdrop,
		maxAirdrop:   opts.MaxAirdrop,
	}
	if head != nil {
		n.head = *head
	}
	if err := n.applyGenesis(opts.Genesis); err != nil {
		return nil, err
	}
	n.logger.Info("ledger opened",
		slog.Uint64("slot", n.head.Slot),
		slog.String("state_root", n.head.StateRoot.Hex()))
	return n, nil
}

func (n *Node) applyGenesis(accounts []GenesisAccount) error {
	applied, err := n.ledger.GenesisApplied()
	if err != nil {
		return err
	}
	if applied {
		return nil
	}
	for _, alloc := range accounts {
		acc, err := n.state.GetAccount(alloc.Address)
		if err != nil {
			return err
		}
		if acc.Lamports > ^uint64(0)-alloc.Lamports {
			return fmt.Errorf("genesis: %w for %s", ledgererrors.ErrArithmeticOverflow, alloc.Address)
		}
		acc.Lamports += alloc.Lamports
		if err := n.state.PutAccount(alloc.Address, acc); err != nil {
			return err
		}
	}
	root, err := n.state.Commit(0)
	if err != nil {
		return fmt.Errorf("genesis: commit: %w", err)
	}
	n.head = Head{Slot: 0, StateRoot: root, Timestamp: n.nowFn().Unix()}
	if err := n.ledger.SetHead(n.head); err != nil {
		return err
	}
	n.logger.Info("genesis applied", slog.Int("accounts", len(accounts)), slog.String("state_root", root.Hex()))
	return n.ledger.MarkGenesis(root)
}

// Events returns the bus committed events are published on.
func (n *Node) Events() *events.Bus { return n.bus }

// Executor exposes the program registry.
func (n *Node) Executor() *runtime.Executor { return n.exec }

// Head returns the last committed ledger position.
func (n *Node) Head() Head {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.head
}

// Submit verifies and executes tx. The returned receipt describes the
// outcome; a failed transaction also returns the error that aborted it and
// leaves state untouched.
func (n *Node) Submit(ctx context.Context, tx *types.Transaction) (*types.Receipt, error) {
	if tx == nil {
		return nil, fmt.Errorf("%w: nil transaction", ledgererrors.ErrInvalidInstruction)
	}
	hash, err := tx.HashString()
	if err != nil {
		return nil, fmt.Errorf("%w: hash transaction: %v", ledgererrors.ErrInvalidInstruction, err)
	}
	ctx, span := n.tracer.Start(ctx, "core.Submit", trace.WithAttributes(
		attribute.String("tx.hash", hash),
		attribute.Int("tx.instructions", len(tx.Instructions)),
	))
	defer span.End()

	if err := ctx.Err(); err != nil {
		span.RecordError(err)
		return nil, err
	}
	if err := tx.Verify(); err != nil {
		span.SetStatus(codes.Error, "verify")
		observability.Ledger().ObserveTransaction("rejected", 0, 0)
		return nil, err
	}

	start := time.Now()
	n.mu.Lock()
	receipt, committed, err := n.execute(hash, tx)
	n.mu.Unlock()
	elapsed := time.Since(start)

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		if receipt == nil {
			observability.Ledger().ObserveTransaction("rejected", 0, elapsed)
		} else {
			observability.Ledger().ObserveTransaction("failed", receipt.Slot, elapsed)
			n.logger.Warn("transaction failed",
				slog.String("tx_hash", hash),
				slog.String("error", err.Error()))
		}
		return receipt, err
	}
	span.SetAttributes(attribute.Int64("ledger.slot", int64(receipt.Slot)))
	observability.Ledger().ObserveTransaction("committed", receipt.Slot, elapsed)
	if committed {
		n.bus.Publish(hash, receipt.Slot, receipt.Events)
	}
	n.logger.Debug("transaction committed",
		slog.String("tx_hash", hash),
		slog.Uint64("slot", receipt.Slot),
		slog.Int("events", len(receipt.Events)))
	return receipt, nil
}

// execute runs under n.mu.
func (n *Node) execute(hash string, tx *types.Transaction) (*types.Receipt, bool, error) {
	seen, err := n.ledger.HasReceipt(hash)
	if err != nil {
		return nil, false, err
	}
	if seen {
		return nil, false, fmt.Errorf("%w: %s", ledgererrors.ErrDuplicateTransaction, hash)
	}

	now := n.nowFn().Unix()
	snapshot := n.state.Snapshot()
	inv := &runtime.Invocation{Events: &events.Recorder{}}
	for i, ix := range tx.Instructions {
		if err := n.exec.Execute(n.state, tx.Signers, ix, inv); err != nil {
			n.state.Revert(snapshot)
			execErr := fmt.Errorf("instruction %d: %w", i, err)
			receipt := &types.Receipt{
				TxHash:    hash,
				Slot:      n.head.Slot,
				Status:    types.ReceiptFailed,
				Error:     execErr.Error(),
				Logs:      inv.Logs,
				Events:    []types.Event{},
				Timestamp: now,
			}
			if err := n.ledger.PutReceipt(receipt); err != nil {
				return nil, false, err
			}
			return receipt, false, execErr
		}
	}

	slot := n.head.Slot + 1
	root, err := n.state.Commit(slot)
	if err != nil {
		n.state.Revert(snapshot)
		return nil, false, fmt.Errorf("node: commit slot %d: %w", slot, err)
	}
	head := Head{Slot: slot, StateRoot: root, Timestamp: now}
	if err := n.ledger.SetHead(head); err != nil {
		return nil, false, err
	}
	n.head = head

	evts := inv.Events.Events()
	receipt := &types.Receipt{
		TxHash:    hash,
		Slot:      slot,
		Status:    types.ReceiptSuccess,
		Logs:      inv.Logs,
		Events:    evts,
		StateRoot: root.Hex(),
		Timestamp: now,
	}
	if err := n.ledger.PutReceipt(receipt); err != nil {
		return nil, false, err
	}
	for _, evt := range evts {
		purchase, ok := crowdsale.PurchaseFromEvent(evt)
		if !ok {
			continue
		}
		if err := n.ledger.AppendPurchase(PurchaseRecord{Purchase: purchase, TxHash: hash, Slot: slot, Timestamp: now}); err != nil {
			return nil, false, err
		}
	}
	return receipt, true, nil
}

// Airdrop credits lamports to addr out of thin air. It is meant for
// development networks and is disabled unless configured.
func (n *Node) Airdrop(ctx context.Context, addr solana.PublicKey, lamports uint64) (uint64, error) {
	if !n.allowAirdrop {
		return 0, ErrAirdropDisabled
	}
	if lamports == 0 {
		return 0, fmt.Errorf("%w: airdrop amount must be positive", ledgererrors.ErrInvalidInstruction)
	}
	if n.maxAirdrop > 0 && lamports > n.maxAirdrop {
		return 0, fmt.Errorf("%w: airdrop of %d exceeds limit %d", ledgererrors.ErrInvalidInstruction, lamports, n.maxAirdrop)
	}
	_, span := n.tracer.Start(ctx, "core.Airdrop")
	defer span.End()

	n.mu.Lock()
	acc, err := n.state.GetAccount(addr)
	if err != nil {
		n.mu.Unlock()
		return 0, err
	}
	if acc.Lamports > ^uint64(0)-lamports {
		n.mu.Unlock()
		return 0, fmt.Errorf("%w: airdrop to %s", ledgererrors.ErrArithmeticOverflow, addr)
	}
	snapshot := n.state.Snapshot()
	acc.Lamports += lamports
	if err := n.state.PutAccount(addr, acc); err != nil {
		n.state.Revert(snapshot)
		n.mu.Unlock()
		return 0, err
	}
	slot := n.head.Slot + 1
	root, err := n.state.Commit(slot)
	if err != nil {
		n.state.Revert(snapshot)
		n.mu.Unlock()
		return 0, err
	}
	n.head = Head{Slot: slot, StateRoot: root, Timestamp: n.nowFn().Unix()}
	err = n.ledger.SetHead(n.head)
	n.mu.Unlock()
	if err != nil {
		return 0, err
	}

	n.bus.Publish("", slot, []types.Event{{Type: EventTypeAirdrop, Attributes: map[string]string{
		"address":  addr.String(),
		"lamports": strconv.FormatUint(lamports, 10),
	}}})
	n.logger.Info("airdrop", slog.String("address", addr.String()), slog.Uint64("lamports", lamports))
	return acc.Lamports, nil
}

// StateRoot returns the last committed state root.
func (n *Node) StateRoot() common.Hash {
	return n.Head().StateRoot
}
