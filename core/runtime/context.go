package runtime

import (
	"bytes"
	"fmt"

	"github.com/gagliardetto/solana-go"

	ledgererrors "salechain/core/errors"
	"salechain/core/events"
	"salechain/core/state"
	"salechain/core/types"
)

// Context is handed to a program for the duration of one instruction. It
// exposes the accounts passed to the instruction, the signer set and
// cross-program invocation.
type Context struct {
	exec      *execution
	programID solana.PublicKey
	signers   map[solana.PublicKey]struct{}
	allowed   map[solana.PublicKey]struct{}
	depth     int
}

// ProgramID returns the id of the executing program.
func (c *Context) ProgramID() solana.PublicKey { return c.programID }

// Depth returns the invocation depth; top-level instructions run at depth 1.
func (c *Context) Depth() int { return c.depth }

// IsSigner reports whether addr signed the transaction or was signed for by a
// calling program.
func (c *Context) IsSigner(addr solana.PublicKey) bool {
	_, ok := c.signers[addr]
	return ok
}

// RequireSigner returns ErrMissingSignature unless addr is a signer.
func (c *Context) RequireSigner(addr solana.PublicKey) error {
	if !c.IsSigner(addr) {
		return fmt.Errorf("%w: %s", ledgererrors.ErrMissingSignature, addr)
	}
	return nil
}

// Account returns a copy of the account at addr. Only accounts passed to the
// instruction are readable.
func (c *Context) Account(addr solana.PublicKey) (*types.Account, error) {
	if _, ok := c.allowed[addr]; !ok {
		return nil, fmt.Errorf("%w: %s not passed to instruction", ledgererrors.ErrInvalidAccount, addr)
	}
	acc, err := c.exec.load(addr)
	if err != nil {
		return nil, err
	}
	return acc.Clone(), nil
}

// SetAccount replaces the account at addr after checking the ownership rules:
// only the owning program may debit lamports or change data, owners can only
// be reassigned by the current owner onto zeroed data, and the executable flag
// never changes.
func (c *Context) SetAccount(addr solana.PublicKey, next *types.Account) error {
	if next == nil {
		return fmt.Errorf("%w: nil account for %s", ledgererrors.ErrInvalidAccount, addr)
	}
	if _, ok := c.allowed[addr]; !ok {
		return fmt.Errorf("%w: %s not passed to instruction", ledgererrors.ErrInvalidAccount, addr)
	}
	cur, err := c.exec.load(addr)
	if err != nil {
		return err
	}
	owned := cur.Owner == c.programID
	if next.Executable != cur.Executable {
		return fmt.Errorf("%w: executable flag of %s", ledgererrors.ErrExternalAccountModified, addr)
	}
	if next.Lamports < cur.Lamports && !owned {
		return fmt.Errorf("%w: debit of %s by %s", ledgererrors.ErrExternalAccountModified, addr, c.programID)
	}
	if !bytes.Equal(next.Data, cur.Data) && !owned {
		return fmt.Errorf("%w: data of %s by %s", ledgererrors.ErrExternalAccountModified, addr, c.programID)
	}
	if next.Owner != cur.Owner {
		if !owned || !zeroed(next.Data) {
			return fmt.Errorf("%w: owner of %s by %s", ledgererrors.ErrExternalAccountModified, addr, c.programID)
		}
	}
	c.exec.working[addr] = next.Clone()
	return nil
}

// Invoke calls another program with the caller's signers. Every account in ix
// must have been passed to the calling instruction.
func (c *Context) Invoke(ix types.Instruction) error {
	return c.exec.invoke(ix, c.signers, c, c.depth+1)
}

// InvokeSigned calls another program, additionally granting signer status to
// the program-derived addresses produced by each seed set under the calling
// program's id.
func (c *Context) InvokeSigned(ix types.Instruction, signerSeeds ...[][]byte) error {
	signers := make(map[solana.PublicKey]struct{}, len(c.signers)+len(signerSeeds))
	for s := range c.signers {
		signers[s] = struct{}{}
	}
	for _, seeds := range signerSeeds {
		addr, err := solana.CreateProgramAddress(seeds, c.programID)
		if err != nil {
			return fmt.Errorf("%w: invalid signer seeds: %v", ledgererrors.ErrInvalidAccount, err)
		}
		signers[addr] = struct{}{}
	}
	return c.exec.invoke(ix, signers, c, c.depth+1)
}

// Rent returns the ledger rent parameters.
func (c *Context) Rent() state.Rent { return c.exec.exec.rent }

// MinimumBalance returns the rent floor for dataLen bytes.
func (c *Context) MinimumBalance(dataLen int) uint64 {
	return c.exec.exec.rent.MinimumBalance(dataLen)
}

// Log appends a program log line to the transaction receipt.
func (c *Context) Log(format string, args ...any) {
	c.exec.out.Logs = append(c.exec.out.Logs, fmt.Sprintf("Program %s: %s", c.programID, fmt.Sprintf(format, args...)))
}

// Emit buffers an event. Events reach subscribers only if the transaction
// commits.
func (c *Context) Emit(evt events.Event) {
	c.exec.out.Events.Emit(evt)
}

func zeroed(data []byte) bool {
	for _, b := range data {
		if b != 0 {
			return false
		}
	}
	return true
}
