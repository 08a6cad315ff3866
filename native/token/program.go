// Package token implements fungible token mints, token accounts and
// associated token accounts.
package token

import (
	"fmt"
	"strconv"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"

	ledgererrors "salechain/core/errors"
	"salechain/core/runtime"
	"salechain/core/types"
	"salechain/native/system"
)

// ProgramID is the token program address.
var ProgramID = solana.TokenProgramID

// Instruction discriminants, the first byte of the instruction data.
const (
	InstructionInitializeMint    uint8 = 0
	InstructionInitializeAccount uint8 = 1
	InstructionTransfer          uint8 = 3
	InstructionMintTo            uint8 = 7
)

const (
	TypeMintTo   = "token.mint_to"
	TypeTransfer = "token.transfer"
)

type initializeMintData struct {
	Instruction   uint8
	Decimals      uint8
	MintAuthority solana.PublicKey
}

type amountData struct {
	Instruction uint8
	Amount      uint64
}

// Program is the native token program.
type Program struct{}

// New returns the token program.
func New() *Program { return &Program{} }

// ID implements runtime.Program.
func (p *Program) ID() solana.PublicKey { return ProgramID }

// Process implements runtime.Program.
func (p *Program) Process(ctx *runtime.Context, accounts []solana.PublicKey, data []byte) error {
	if len(data) == 0 {
		return fmt.Errorf("%w: empty token instruction", ledgererrors.ErrInvalidInstruction)
	}
	switch data[0] {
	case InstructionInitializeMint:
		var args initializeMintData
		if err := decode(data, &args); err != nil {
			return err
		}
		return p.initializeMint(ctx, accounts, args)
	case InstructionInitializeAccount:
		return p.initializeAccount(ctx, accounts)
	case InstructionTransfer:
		var args amountData
		if err := decode(data, &args); err != nil {
			return err
		}
		return p.transfer(ctx, accounts, args.Amount)
	case InstructionMintTo:
		var args amountData
		if err := decode(data, &args); err != nil {
			return err
		}
		return p.mintTo(ctx, accounts, args.Amount)
	default:
		return fmt.Errorf("%w: unknown token instruction %d", ledgererrors.ErrInvalidInstruction, data[0])
	}
}

func (p *Program) ownedAccount(ctx *runtime.Context, addr solana.PublicKey, size int) (*types.Account, error) {
	acc, err := ctx.Account(addr)
	if err != nil {
		return nil, err
	}
	if acc.Owner != ProgramID || len(acc.Data) != size {
		return nil, fmt.Errorf("%w: %s is not a token program account of %d bytes", ledgererrors.ErrInvalidAccount, addr, size)
	}
	return acc, nil
}

func (p *Program) loadMint(ctx *runtime.Context, addr solana.PublicKey) (*types.Account, *Mint, error) {
	acc, err := p.ownedAccount(ctx, addr, MintSize)
	if err != nil {
		return nil, nil, err
	}
	mint, err := DecodeMint(acc.Data)
	if err != nil {
		return nil, nil, err
	}
	if !mint.IsInitialized {
		return nil, nil, fmt.Errorf("%w: mint %s not initialised", ledgererrors.ErrInvalidAccount, addr)
	}
	return acc, mint, nil
}

func (p *Program) loadTokenAccount(ctx *runtime.Context, addr solana.PublicKey) (*types.Account, *TokenAccount, error) {
	acc, err := p.ownedAccount(ctx, addr, AccountSize)
	if err != nil {
		return nil, nil, err
	}
	tokenAcc, err := DecodeTokenAccount(acc.Data)
	if err != nil {
		return nil, nil, fmt.Errorf("%s: %w", addr, err)
	}
	return acc, tokenAcc, nil
}

func store(ctx *runtime.Context, addr solana.PublicKey, acc *types.Account, v interface{ Encode() ([]byte, error) }) error {
	data, err := v.Encode()
	if err != nil {
		return err
	}
	acc.Data = data
	return ctx.SetAccount(addr, acc)
}

// accounts: [mint]
func (p *Program) initializeMint(ctx *runtime.Context, accounts []solana.PublicKey, args initializeMintData) error {
	if len(accounts) < 1 {
		return fmt.Errorf("%w: initialize mint expects 1 account", ledgererrors.ErrInvalidAccount)
	}
	mintKey := accounts[0]
	acc, err := p.ownedAccount(ctx, mintKey, MintSize)
	if err != nil {
		return err
	}
	existing, err := DecodeMint(acc.Data)
	if err != nil {
		return err
	}
	if existing.IsInitialized {
		return fmt.Errorf("%w: mint %s", ledgererrors.ErrAlreadyExists, mintKey)
	}
	mint := &Mint{MintAuthority: args.MintAuthority, Decimals: args.Decimals, IsInitialized: true}
	if err := store(ctx, mintKey, acc, mint); err != nil {
		return err
	}
	ctx.Log("initialize mint %s decimals=%d", mintKey, args.Decimals)
	return nil
}

// accounts: [account, mint, owner]
func (p *Program) initializeAccount(ctx *runtime.Context, accounts []solana.PublicKey) error {
	if len(accounts) < 3 {
		return fmt.Errorf("%w: initialize account expects 3 accounts", ledgererrors.ErrInvalidAccount)
	}
	accKey, mintKey, owner := accounts[0], accounts[1], accounts[2]
	acc, err := p.ownedAccount(ctx, accKey, AccountSize)
	if err != nil {
		return err
	}
	if !zeroed(acc.Data) {
		return fmt.Errorf("%w: token account %s", ledgererrors.ErrAlreadyExists, accKey)
	}
	if _, _, err := p.loadMint(ctx, mintKey); err != nil {
		return err
	}
	return store(ctx, accKey, acc, &TokenAccount{Mint: mintKey, Owner: owner})
}

// accounts: [mint, destination, mintAuthority]
func (p *Program) mintTo(ctx *runtime.Context, accounts []solana.PublicKey, amount uint64) error {
	if len(accounts) < 3 {
		return fmt.Errorf("%w: mint to expects 3 accounts", ledgererrors.ErrInvalidAccount)
	}
	mintKey, destKey, authority := accounts[0], accounts[1], accounts[2]
	mintAcc, mint, err := p.loadMint(ctx, mintKey)
	if err != nil {
		return err
	}
	if mint.MintAuthority != authority {
		return fmt.Errorf("%w: %s is not the mint authority", ledgererrors.ErrUnauthorized, authority)
	}
	if err := ctx.RequireSigner(authority); err != nil {
		return err
	}
	destAcc, dest, err := p.loadTokenAccount(ctx, destKey)
	if err != nil {
		return err
	}
	if dest.Mint != mintKey {
		return fmt.Errorf("%w: %s holds mint %s", ledgererrors.ErrInvalidAccount, destKey, dest.Mint)
	}
	if mint.Supply > ^uint64(0)-amount || dest.Amount > ^uint64(0)-amount {
		return fmt.Errorf("%w: mint %d to %s", ledgererrors.ErrArithmeticOverflow, amount, destKey)
	}
	mint.Supply += amount
	dest.Amount += amount
	if err := store(ctx, mintKey, mintAcc, mint); err != nil {
		return err
	}
	if err := store(ctx, destKey, destAcc, dest); err != nil {
		return err
	}
	ctx.Emit(&types.Event{Type: TypeMintTo, Attributes: map[string]string{
		"mint":        mintKey.String(),
		"destination": destKey.String(),
		"amount":      strconv.FormatUint(amount, 10),
	}})
	return nil
}

// accounts: [source, destination, owner]
func (p *Program) transfer(ctx *runtime.Context, accounts []solana.PublicKey, amount uint64) error {
	if len(accounts) < 3 {
		return fmt.Errorf("%w: transfer expects 3 accounts", ledgererrors.ErrInvalidAccount)
	}
	srcKey, destKey, owner := accounts[0], accounts[1], accounts[2]
	srcAcc, src, err := p.loadTokenAccount(ctx, srcKey)
	if err != nil {
		return err
	}
	if src.Owner != owner {
		return fmt.Errorf("%w: %s does not own %s", ledgererrors.ErrUnauthorized, owner, srcKey)
	}
	if err := ctx.RequireSigner(owner); err != nil {
		return err
	}
	destAcc, dest, err := p.loadTokenAccount(ctx, destKey)
	if err != nil {
		return err
	}
	if src.Mint != dest.Mint {
		return fmt.Errorf("%w: mint mismatch %s != %s", ledgererrors.ErrInvalidAccount, src.Mint, dest.Mint)
	}
	if src.Amount < amount {
		return fmt.Errorf("%w: %s holds %d tokens, needs %d", ledgererrors.ErrInsufficientFunds, srcKey, src.Amount, amount)
	}
	if srcKey == destKey {
		return nil
	}
	if dest.Amount > ^uint64(0)-amount {
		return fmt.Errorf("%w: credit to %s", ledgererrors.ErrArithmeticOverflow, destKey)
	}
	src.Amount -= amount
	dest.Amount += amount
	if err := store(ctx, srcKey, srcAcc, src); err != nil {
		return err
	}
	if err := store(ctx, destKey, destAcc, dest); err != nil {
		return err
	}
	ctx.Emit(&types.Event{Type: TypeTransfer, Attributes: map[string]string{
		"mint":        src.Mint.String(),
		"source":      srcKey.String(),
		"destination": destKey.String(),
		"amount":      strconv.FormatUint(amount, 10),
	}})
	return nil
}

// NewInitializeMintInstruction initialises a mint account allocated to the
// token program.
func NewInitializeMintInstruction(mint solana.PublicKey, decimals uint8, mintAuthority solana.PublicKey) types.Instruction {
	return types.Instruction{
		ProgramID: ProgramID,
		Accounts:  []solana.PublicKey{mint},
		Data:      mustEncode(&initializeMintData{Instruction: InstructionInitializeMint, Decimals: decimals, MintAuthority: mintAuthority}),
	}
}

// NewCreateMintInstructions allocates and initialises a mint in one
// transaction. payer and mint must both sign.
func NewCreateMintInstructions(payer, mint solana.PublicKey, rentLamports uint64, decimals uint8, mintAuthority solana.PublicKey) []types.Instruction {
	return []types.Instruction{
		system.NewCreateAccountInstruction(payer, mint, rentLamports, MintSize, ProgramID),
		NewInitializeMintInstruction(mint, decimals, mintAuthority),
	}
}

// NewInitializeAccountInstruction initialises a token account for owner.
func NewInitializeAccountInstruction(account, mint, owner solana.PublicKey) types.Instruction {
	return types.Instruction{
		ProgramID: ProgramID,
		Accounts:  []solana.PublicKey{account, mint, owner},
		Data:      []byte{InstructionInitializeAccount},
	}
}

// NewMintToInstruction mints amount tokens into destination.
func NewMintToInstruction(mint, destination, mintAuthority solana.PublicKey, amount uint64) types.Instruction {
	return types.Instruction{
		ProgramID: ProgramID,
		Accounts:  []solana.PublicKey{mint, destination, mintAuthority},
		Data:      mustEncode(&amountData{Instruction: InstructionMintTo, Amount: amount}),
	}
}

// NewTransferInstruction moves amount tokens between accounts of the same
// mint.
func NewTransferInstruction(source, destination, owner solana.PublicKey, amount uint64) types.Instruction {
	return types.Instruction{
		ProgramID: ProgramID,
		Accounts:  []solana.PublicKey{source, destination, owner},
		Data:      mustEncode(&amountData{Instruction: InstructionTransfer, Amount: amount}),
	}
}

func decode(data []byte, out any) error {
	if err := bin.NewBorshDecoder(data).Decode(out); err != nil {
		return fmt.Errorf("%w: %v", ledgererrors.ErrInvalidInstruction, err)
	}
	return nil
}

func mustEncode(v any) []byte {
	data, err := encode(v)
	if err != nil {
		panic(fmt.Sprintf("token: encode instruction: %v", err))
	}
	return data
}

func zeroed(data []byte) bool {
	for _, b := range data {
		if b != 0 {
			return false
		}
	}
	return true
}
