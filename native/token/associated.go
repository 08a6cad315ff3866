package token

import (
	"fmt"

	"github.com/gagliardetto/solana-go"

	ledgererrors "salechain/core/errors"
	"salechain/core/runtime"
	"salechain/core/types"
	"salechain/native/system"
)

// AssociatedProgramID is the associated token account program address.
var AssociatedProgramID = solana.SPLAssociatedTokenAccountProgramID

// InstructionCreateIdempotent creates the associated token account unless it
// already exists.
const InstructionCreateIdempotent uint8 = 1

// AssociatedProgram derives and provisions the canonical token account of a
// wallet for a mint.
type AssociatedProgram struct{}

// NewAssociatedProgram returns the associated token account program.
func NewAssociatedProgram() *AssociatedProgram { return &AssociatedProgram{} }

// ID implements runtime.Program.
func (p *AssociatedProgram) ID() solana.PublicKey { return AssociatedProgramID }

// AssociatedAddress returns the associated token account of wallet for mint.
func AssociatedAddress(wallet, mint solana.PublicKey) (solana.PublicKey, uint8, error) {
	return solana.FindAssociatedTokenAddress(wallet, mint)
}

// Process implements runtime.Program.
// accounts: [payer, associatedAccount, wallet, mint, systemProgram, tokenProgram]
func (p *AssociatedProgram) Process(ctx *runtime.Context, accounts []solana.PublicKey, data []byte) error {
	if len(data) != 1 || data[0] != InstructionCreateIdempotent {
		return fmt.Errorf("%w: unsupported associated token instruction", ledgererrors.ErrInvalidInstruction)
	}
	if len(accounts) < 4 {
		return fmt.Errorf("%w: create associated account expects 4 accounts", ledgererrors.ErrInvalidAccount)
	}
	payer, ata, wallet, mint := accounts[0], accounts[1], accounts[2], accounts[3]
	expected, bump, err := AssociatedAddress(wallet, mint)
	if err != nil {
		return fmt.Errorf("%w: derive associated address: %v", ledgererrors.ErrInvalidAccount, err)
	}
	if expected != ata {
		return fmt.Errorf("%w: %s is not the associated account of %s for %s", ledgererrors.ErrInvalidAccount, ata, wallet, mint)
	}
	existing, err := ctx.Account(ata)
	if err != nil {
		return err
	}
	if existing.Owner == ProgramID && len(existing.Data) == AccountSize {
		current, err := DecodeTokenAccount(existing.Data)
		if err != nil {
			return err
		}
		if current.Owner != wallet || current.Mint != mint {
			return fmt.Errorf("%w: associated account %s has wrong owner or mint", ledgererrors.ErrInvalidAccount, ata)
		}
		return nil
	}

	rent := ctx.MinimumBalance(AccountSize)
	create := system.NewCreateAccountInstruction(payer, ata, rent, AccountSize, ProgramID)
	seeds := [][]byte{wallet[:], ProgramID[:], mint[:], {bump}}
	if err := ctx.InvokeSigned(create, seeds); err != nil {
		return err
	}
	if err := ctx.Invoke(NewInitializeAccountInstruction(ata, mint, wallet)); err != nil {
		return err
	}
	ctx.Log("create associated token account %s for %s", ata, wallet)
	return nil
}

// NewCreateIdempotentInstruction creates the associated token account of
// wallet for mint, funded by payer, if it does not exist yet.
func NewCreateIdempotentInstruction(payer, wallet, mint solana.PublicKey) (types.Instruction, error) {
	ata, _, err := AssociatedAddress(wallet, mint)
	if err != nil {
		return types.Instruction{}, err
	}
	return types.Instruction{
		ProgramID: AssociatedProgramID,
		Accounts:  []solana.PublicKey{payer, ata, wallet, mint, system.ProgramID, ProgramID},
		Data:      []byte{InstructionCreateIdempotent},
	}, nil
}
