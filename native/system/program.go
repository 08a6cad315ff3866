// Package system implements native currency transfers and account
// allocation.
package system

import (
	"bytes"
	"encoding/binary"
	"fmt"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"

	ledgererrors "salechain/core/errors"
	"salechain/core/runtime"
	"salechain/core/state"
	"salechain/core/types"
)

// ProgramID is the system program address.
var ProgramID = solana.SystemProgramID

// Instruction discriminants, little-endian u32 prefixes of the instruction
// data.
const (
	InstructionCreateAccount uint32 = 0
	InstructionTransfer      uint32 = 2
)

type createAccountData struct {
	Instruction uint32
	Lamports    uint64
	Space       uint64
	Owner       solana.PublicKey
}

type transferData struct {
	Instruction uint32
	Lamports    uint64
}

// Program is the native system program.
type Program struct{}

// New returns the system program.
func New() *Program { return &Program{} }

// ID implements runtime.Program.
func (p *Program) ID() solana.PublicKey { return ProgramID }

// Process implements runtime.Program.
func (p *Program) Process(ctx *runtime.Context, accounts []solana.PublicKey, data []byte) error {
	if len(data) < 4 {
		return fmt.Errorf("%w: system instruction too short", ledgererrors.ErrInvalidInstruction)
	}
	switch binary.LittleEndian.Uint32(data[:4]) {
	case InstructionCreateAccount:
		var args createAccountData
		if err := decode(data, &args); err != nil {
			return err
		}
		return p.createAccount(ctx, accounts, args)
	case InstructionTransfer:
		var args transferData
		if err := decode(data, &args); err != nil {
			return err
		}
		return p.transfer(ctx, accounts, args.Lamports)
	default:
		return fmt.Errorf("%w: unknown system instruction %d", ledgererrors.ErrInvalidInstruction, binary.LittleEndian.Uint32(data[:4]))
	}
}

// accounts: [payer, newAccount]
func (p *Program) createAccount(ctx *runtime.Context, accounts []solana.PublicKey, args createAccountData) error {
	if len(accounts) < 2 {
		return fmt.Errorf("%w: create account expects 2 accounts", ledgererrors.ErrInvalidAccount)
	}
	payerKey, newKey := accounts[0], accounts[1]
	if payerKey == newKey {
		return fmt.Errorf("%w: payer and new account must differ", ledgererrors.ErrInvalidAccount)
	}
	if args.Space > state.MaxAccountDataLen {
		return fmt.Errorf("%w: space %d exceeds limit", ledgererrors.ErrInvalidInstruction, args.Space)
	}
	if err := ctx.RequireSigner(payerKey); err != nil {
		return err
	}
	if err := ctx.RequireSigner(newKey); err != nil {
		return err
	}
	target, err := ctx.Account(newKey)
	if err != nil {
		return err
	}
	if len(target.Data) > 0 || target.Owner != ProgramID {
		return fmt.Errorf("%w: %s", ledgererrors.ErrAlreadyExists, newKey)
	}
	// A pre-funded plain account is topped up to the requested balance; the
	// payer covers only the shortfall.
	var shortfall uint64
	if target.Lamports < args.Lamports {
		shortfall = args.Lamports - target.Lamports
	}
	payer, err := ctx.Account(payerKey)
	if err != nil {
		return err
	}
	if payer.Lamports < shortfall {
		return fmt.Errorf("%w: %s holds %d, needs %d", ledgererrors.ErrInsufficientFunds, payerKey, payer.Lamports, shortfall)
	}
	if shortfall > 0 {
		payer.Lamports -= shortfall
		if err := ctx.SetAccount(payerKey, payer); err != nil {
			return err
		}
	}
	created := &types.Account{
		Lamports: target.Lamports + shortfall,
		Owner:    args.Owner,
		Data:     make([]byte, args.Space),
	}
	if err := ctx.SetAccount(newKey, created); err != nil {
		return err
	}
	ctx.Log("create account %s space=%d owner=%s", newKey, args.Space, args.Owner)
	return nil
}

// accounts: [from, to]
func (p *Program) transfer(ctx *runtime.Context, accounts []solana.PublicKey, lamports uint64) error {
	if len(accounts) < 2 {
		return fmt.Errorf("%w: transfer expects 2 accounts", ledgererrors.ErrInvalidAccount)
	}
	fromKey, toKey := accounts[0], accounts[1]
	if err := ctx.RequireSigner(fromKey); err != nil {
		return err
	}
	from, err := ctx.Account(fromKey)
	if err != nil {
		return err
	}
	if from.Owner != ProgramID || len(from.Data) > 0 {
		return fmt.Errorf("%w: transfer source %s must be a plain system account", ledgererrors.ErrInvalidAccount, fromKey)
	}
	if from.Lamports < lamports {
		return fmt.Errorf("%w: %s holds %d, needs %d", ledgererrors.ErrInsufficientFunds, fromKey, from.Lamports, lamports)
	}
	if fromKey == toKey || lamports == 0 {
		return nil
	}
	to, err := ctx.Account(toKey)
	if err != nil {
		return err
	}
	if to.Lamports > ^uint64(0)-lamports {
		return fmt.Errorf("%w: credit to %s", ledgererrors.ErrArithmeticOverflow, toKey)
	}
	from.Lamports -= lamports
	to.Lamports += lamports
	if err := ctx.SetAccount(fromKey, from); err != nil {
		return err
	}
	if err := ctx.SetAccount(toKey, to); err != nil {
		return err
	}
	ctx.Log("transfer %d lamports %s -> %s", lamports, fromKey, toKey)
	return nil
}

// NewCreateAccountInstruction allocates space bytes at newAccount owned by
// owner, funded with lamports from payer. Both payer and newAccount must sign.
func NewCreateAccountInstruction(payer, newAccount solana.PublicKey, lamports, space uint64, owner solana.PublicKey) types.Instruction {
	return types.Instruction{
		ProgramID: ProgramID,
		Accounts:  []solana.PublicKey{payer, newAccount},
		Data: mustEncode(&createAccountData{
			Instruction: InstructionCreateAccount,
			Lamports:    lamports,
			Space:       space,
			Owner:       owner,
		}),
	}
}

// NewTransferInstruction moves lamports from a signing system account.
func NewTransferInstruction(from, to solana.PublicKey, lamports uint64) types.Instruction {
	return types.Instruction{
		ProgramID: ProgramID,
		Accounts:  []solana.PublicKey{from, to},
		Data:      mustEncode(&transferData{Instruction: InstructionTransfer, Lamports: lamports}),
	}
}

func decode(data []byte, out any) error {
	if err := bin.NewBorshDecoder(data).Decode(out); err != nil {
		return fmt.Errorf("%w: %v", ledgererrors.ErrInvalidInstruction, err)
	}
	return nil
}

func mustEncode(v any) []byte {
	var buf bytes.Buffer
	if err := bin.NewBorshEncoder(&buf).Encode(v); err != nil {
		panic(fmt.Sprintf("system: encode instruction: %v", err))
	}
	return buf.Bytes()
}
