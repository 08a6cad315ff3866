package runtime

import (
	"bytes"
	"fmt"
	"sort"

	"github.com/gagliardetto/solana-go"
	"github.com/holiman/uint256"

	ledgererrors "salechain/core/errors"
	"salechain/core/events"
	"salechain/core/state"
	"salechain/core/types"
)

// MaxInvokeDepth bounds nested cross-program calls, counting the top-level
// instruction.
const MaxInvokeDepth = 4

// Program is a native program the executor can dispatch instructions to.
type Program interface {
	ID() solana.PublicKey
	Process(ctx *Context, accounts []solana.PublicKey, data []byte) error
}

// AccountStore is the persistent account backend instructions execute
// against.
type AccountStore interface {
	GetAccount(addr solana.PublicKey) (*types.Account, error)
	PutAccount(addr solana.PublicKey, account *types.Account) error
}

// Executor dispatches instructions to registered programs and enforces the
// account ownership rules between them.
type Executor struct {
	programs map[solana.PublicKey]Program
	rent     state.Rent
}

// NewExecutor returns an executor with the provided programs registered.
func NewExecutor(rent state.Rent, programs ...Program) *Executor {
	e := &Executor{programs: make(map[solana.PublicKey]Program), rent: rent}
	for _, p := range programs {
		e.Register(p)
	}
	return e
}

// Register adds or replaces a program.
func (e *Executor) Register(p Program) {
	if p == nil {
		return
	}
	e.programs[p.ID()] = p
}

// Program returns the registered program with the given id.
func (e *Executor) Program(id solana.PublicKey) (Program, bool) {
	p, ok := e.programs[id]
	return p, ok
}

// ProgramIDs lists registered program ids in a stable order.
func (e *Executor) ProgramIDs() []solana.PublicKey {
	ids := make([]solana.PublicKey, 0, len(e.programs))
	for id := range e.programs {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return bytes.Compare(ids[i][:], ids[j][:]) < 0 })
	return ids
}

// Rent returns the rent parameters in force.
func (e *Executor) Rent() state.Rent { return e.rent }

// Invocation carries the per-instruction output of an Execute call.
type Invocation struct {
	Logs   []string
	Events *events.Recorder
}

// Execute runs one top-level instruction. Account changes are written to store
// only when the instruction succeeds, its lamport total is unchanged and every
// touched account with data remains rent exempt.
func (e *Executor) Execute(store AccountStore, signers []solana.PublicKey, ix types.Instruction, out *Invocation) error {
	if out == nil {
		out = &Invocation{}
	}
	if out.Events == nil {
		out.Events = &events.Recorder{}
	}
	signerSet := make(map[solana.PublicKey]struct{}, len(signers))
	for _, s := range signers {
		signerSet[s] = struct{}{}
	}
	txn := &execution{
		exec:     e,
		store:    store,
		original: make(map[solana.PublicKey]*types.Account),
		working:  make(map[solana.PublicKey]*types.Account),
		out:      out,
	}
	if err := txn.invoke(ix, signerSet, nil, 1); err != nil {
		return err
	}
	if err := txn.verifyBalanced(); err != nil {
		return err
	}
	if err := txn.verifyRent(); err != nil {
		return err
	}
	return txn.flush()
}

type execution struct {
	exec     *Executor
	store    AccountStore
	original map[solana.PublicKey]*types.Account
	working  map[solana.PublicKey]*types.Account
	out      *Invocation
}

func (x *execution) invoke(ix types.Instruction, signers map[solana.PublicKey]struct{}, caller *Context, depth int) error {
	if depth > MaxInvokeDepth {
		return fmt.Errorf("%w: depth %d", ledgererrors.ErrCallDepthExceeded, depth)
	}
	program, ok := x.exec.programs[ix.ProgramID]
	if !ok {
		return fmt.Errorf("%w: %s", ledgererrors.ErrUnknownProgram, ix.ProgramID)
	}
	allowed := make(map[solana.PublicKey]struct{}, len(ix.Accounts))
	for _, acc := range ix.Accounts {
		if caller != nil {
			if _, ok := caller.allowed[acc]; !ok {
				return fmt.Errorf("%w: %s not passed to calling program", ledgererrors.ErrInvalidAccount, acc)
			}
		}
		allowed[acc] = struct{}{}
	}
	ctx := &Context{
		exec:      x,
		programID: ix.ProgramID,
		signers:   signers,
		allowed:   allowed,
		depth:     depth,
	}
	accounts := append([]solana.PublicKey(nil), ix.Accounts...)
	return program.Process(ctx, accounts, ix.Data)
}

func (x *execution) load(addr solana.PublicKey) (*types.Account, error) {
	if acc, ok := x.working[addr]; ok {
		return acc, nil
	}
	acc, err := x.store.GetAccount(addr)
	if err != nil {
		return nil, err
	}
	x.original[addr] = acc.Clone()
	x.working[addr] = acc.Clone()
	return x.working[addr], nil
}

func (x *execution) verifyBalanced() error {
	before := new(uint256.Int)
	after := new(uint256.Int)
	for addr, orig := range x.original {
		before.Add(before, uint256.NewInt(orig.Lamports))
		after.Add(after, uint256.NewInt(x.working[addr].Lamports))
	}
	if !before.Eq(after) {
		return fmt.Errorf("%w: before %s after %s", ledgererrors.ErrUnbalancedInstruction, before.Dec(), after.Dec())
	}
	return nil
}

func (x *execution) verifyRent() error {
	for _, addr := range x.sortedTouched() {
		acc := x.working[addr]
		if acc.Equal(x.original[addr]) || len(acc.Data) == 0 {
			continue
		}
		if !x.exec.rent.IsExempt(acc.Lamports, len(acc.Data)) {
			return fmt.Errorf("%w: account %s holds %d, needs %d", ledgererrors.ErrInsufficientBalance, addr, acc.Lamports, x.exec.rent.MinimumBalance(len(acc.Data)))
		}
	}
	return nil
}

func (x *execution) flush() error {
	for _, addr := range x.sortedTouched() {
		acc := x.working[addr]
		if acc.Equal(x.original[addr]) {
			continue
		}
		if err := x.store.PutAccount(addr, acc); err != nil {
			return err
		}
	}
	return nil
}

func (x *execution) sortedTouched() []solana.PublicKey {
	addrs := make([]solana.PublicKey, 0, len(x.working))
	for addr := range x.working {
		addrs = append(addrs, addr)
	}
	sort.Slice(addrs, func(i, j int) bool { return bytes.Compare(addrs[i][:], addrs[j][:]) < 0 })
	return addrs
}
