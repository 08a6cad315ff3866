// Package crowdsale implements a fixed-price token sale: an owner registers a
// sale backed by a token reserve, buyers exchange lamports for reserved tokens
// at the posted price and the owner sweeps proceeds down to the rent floor.
package crowdsale

import (
	"bytes"
	"errors"
	"fmt"
	"math"

	"github.com/gagliardetto/solana-go"
	"github.com/holiman/uint256"

	ledgererrors "salechain/core/errors"
	"salechain/core/runtime"
	"salechain/core/types"
	"salechain/native/common"
	"salechain/native/system"
	"salechain/native/token"
)

// ModuleName identifies the program to the pause guard.
const ModuleName = "crowdsale"

var (
	ErrSaleClosed    = errors.New("crowdsale: sale closed")
	ErrInvalidCost   = errors.New("crowdsale: cost must be positive")
	ErrInvalidAmount = errors.New("crowdsale: amount must be positive")
	ErrInvalidSeeds  = errors.New("crowdsale: invalid authority seeds")
	ErrInvalidRecord = errors.New("crowdsale: invalid sale record")
)

// Program is the crowdsale program.
type Program struct {
	pauses common.PauseView
}

// New returns the crowdsale program.
func New() *Program { return &Program{} }

// SetPauses configures the pause view consulted before creating sales and
// settling purchases. Passing nil disables the guard.
func (p *Program) SetPauses(pauses common.PauseView) { p.pauses = pauses }

// ID implements runtime.Program.
func (p *Program) ID() solana.PublicKey { return ProgramID }

// Process implements runtime.Program.
func (p *Program) Process(ctx *runtime.Context, accounts []solana.PublicKey, data []byte) error {
	if len(data) < DiscriminatorSize {
		return fmt.Errorf("%w: crowdsale instruction too short", ledgererrors.ErrInvalidInstruction)
	}
	disc, payload := data[:DiscriminatorSize], data[DiscriminatorSize:]
	switch {
	case bytes.Equal(disc, initializeDiscriminator[:]):
		if len(accounts) < 8 {
			return fmt.Errorf("%w: initialize expects 8 accounts", ledgererrors.ErrInvalidAccount)
		}
		var args initializeArgs
		if err := decodeArgs(payload, &args); err != nil {
			return err
		}
		return p.initialize(ctx, InitializeAccounts{
			Payer: accounts[0], Sale: accounts[1], Authority: accounts[2], Mint: accounts[3],
			Reserve: accounts[4], SystemProgram: accounts[5], TokenProgram: accounts[6],
			AssociatedTokenProgram: accounts[7],
		}, args)
	case bytes.Equal(disc, buyTokensDiscriminator[:]):
		if len(accounts) < 9 {
			return fmt.Errorf("%w: buy_tokens expects 9 accounts", ledgererrors.ErrInvalidAccount)
		}
		var args buyTokensArgs
		if err := decodeArgs(payload, &args); err != nil {
			return err
		}
		return p.buyTokens(ctx, BuyTokensAccounts{
			Buyer: accounts[0], BuyerTokenAccount: accounts[1], Sale: accounts[2], Reserve: accounts[3],
			Authority: accounts[4], Mint: accounts[5], TokenProgram: accounts[6],
			AssociatedTokenProgram: accounts[7], SystemProgram: accounts[8],
		}, args.Amount)
	case bytes.Equal(disc, withdrawDiscriminator[:]):
		if len(accounts) < 3 {
			return fmt.Errorf("%w: withdraw expects 3 accounts", ledgererrors.ErrInvalidAccount)
		}
		return p.withdraw(ctx, WithdrawAccounts{Owner: accounts[0], Sale: accounts[1], SystemProgram: accounts[2]})
	case bytes.Equal(disc, closeDiscriminator[:]):
		if len(accounts) < 2 {
			return fmt.Errorf("%w: close expects 2 accounts", ledgererrors.ErrInvalidAccount)
		}
		return p.close(ctx, CloseAccounts{Owner: accounts[0], Sale: accounts[1]})
	default:
		return fmt.Errorf("%w: unknown crowdsale instruction %x", ledgererrors.ErrInvalidInstruction, disc)
	}
}

func (p *Program) initialize(ctx *runtime.Context, accs InitializeAccounts, args initializeArgs) error {
	if err := common.Guard(p.pauses, ModuleName); err != nil {
		return err
	}
	if args.Cost == 0 {
		return ErrInvalidCost
	}
	if err := ctx.RequireSigner(accs.Payer); err != nil {
		return err
	}
	signer, err := deriveSaleSigner(args.ID)
	if err != nil {
		return err
	}
	if signer.address != accs.Sale {
		return fmt.Errorf("%w: sale %s is not derived from id %s", ledgererrors.ErrInvalidAccount, accs.Sale, args.ID)
	}
	auth, err := deriveAuthority(args.ID)
	if err != nil {
		return err
	}
	if auth.Address() != accs.Authority {
		return fmt.Errorf("%w: authority %s, expected %s", ErrInvalidSeeds, accs.Authority, auth.Address())
	}
	reserve, _, err := token.AssociatedAddress(auth.Address(), accs.Mint)
	if err != nil || reserve != accs.Reserve {
		return fmt.Errorf("%w: reserve %s is not the authority's token account", ledgererrors.ErrInvalidAccount, accs.Reserve)
	}
	if err := requireMint(ctx, accs.Mint); err != nil {
		return err
	}

	rent := ctx.MinimumBalance(AccountDataSize)
	create := system.NewCreateAccountInstruction(accs.Payer, accs.Sale, rent, AccountDataSize, ProgramID)
	if err := ctx.InvokeSigned(create, signer.seeds); err != nil {
		return err
	}
	record := &SaleRecord{
		ID:           args.ID,
		Cost:         args.Cost,
		MintAccount:  accs.Mint,
		TokenAccount: accs.Reserve,
		Status:       StatusOpen,
		Owner:        accs.Payer,
	}
	if err := storeRecord(ctx, accs.Sale, record); err != nil {
		return err
	}
	createReserve, err := token.NewCreateIdempotentInstruction(accs.Payer, auth.Address(), accs.Mint)
	if err != nil {
		return err
	}
	if err := ctx.Invoke(createReserve); err != nil {
		return err
	}
	ctx.Log("created sale %s cost=%d owner=%s", args.ID, args.Cost, accs.Payer)
	ctx.Emit(NewCreatedEvent(accs.Sale, record))
	return nil
}

func (p *Program) buyTokens(ctx *runtime.Context, accs BuyTokensAccounts, amount uint32) error {
	if err := common.Guard(p.pauses, ModuleName); err != nil {
		return err
	}
	if amount == 0 {
		return ErrInvalidAmount
	}
	if err := ctx.RequireSigner(accs.Buyer); err != nil {
		return err
	}
	_, record, err := loadRecord(ctx, accs.Sale)
	if err != nil {
		return err
	}
	if !record.IsOpen() {
		return fmt.Errorf("%w: %s", ErrSaleClosed, record.ID)
	}
	auth, err := deriveAuthority(record.ID)
	if err != nil {
		return err
	}
	if auth.Address() != accs.Authority {
		return fmt.Errorf("%w: authority %s, expected %s", ErrInvalidSeeds, accs.Authority, auth.Address())
	}
	if accs.Mint != record.MintAccount {
		return fmt.Errorf("%w: mint %s, sale sells %s", ledgererrors.ErrInvalidAccount, accs.Mint, record.MintAccount)
	}
	if accs.Reserve != record.TokenAccount {
		return fmt.Errorf("%w: reserve %s, sale uses %s", ledgererrors.ErrInvalidAccount, accs.Reserve, record.TokenAccount)
	}
	buyerTokens, _, err := token.AssociatedAddress(accs.Buyer, accs.Mint)
	if err != nil || buyerTokens != accs.BuyerTokenAccount {
		return fmt.Errorf("%w: buyer token account %s", ledgererrors.ErrInvalidAccount, accs.BuyerTokenAccount)
	}
	total, err := Price(amount, record.Cost)
	if err != nil {
		return err
	}

	if err := ctx.Invoke(system.NewTransferInstruction(accs.Buyer, accs.Sale, total)); err != nil {
		return err
	}
	createBuyerTokens, err := token.NewCreateIdempotentInstruction(accs.Buyer, accs.Buyer, accs.Mint)
	if err != nil {
		return err
	}
	if err := ctx.Invoke(createBuyerTokens); err != nil {
		return err
	}
	release := token.NewTransferInstruction(accs.Reserve, accs.BuyerTokenAccount, auth.Address(), uint64(amount))
	if err := ctx.InvokeSigned(release, auth.signerSeeds()); err != nil {
		return err
	}
	ctx.Log("purchase sale=%s buyer=%s amount=%d total=%d", record.ID, accs.Buyer, amount, total)
	ctx.Emit(NewPurchaseEvent(Purchase{
		Sale:        accs.Sale,
		SaleID:      record.ID,
		Buyer:       accs.Buyer,
		BuyerTokens: accs.BuyerTokenAccount,
		Mint:        accs.Mint,
		Amount:      amount,
		Cost:        record.Cost,
		Total:       total,
	}))
	return nil
}

func (p *Program) withdraw(ctx *runtime.Context, accs WithdrawAccounts) error {
	saleAcc, record, err := loadRecord(ctx, accs.Sale)
	if err != nil {
		return err
	}
	if accs.Owner != record.Owner || !ctx.IsSigner(accs.Owner) {
		return fmt.Errorf("%w: %s may not withdraw from sale %s", ledgererrors.ErrUnauthorized, accs.Owner, record.ID)
	}
	floor := ctx.MinimumBalance(AccountDataSize)
	withdrawable, err := Withdrawable(saleAcc.Lamports, floor)
	if err != nil {
		return err
	}
	if withdrawable == 0 {
		ctx.Log("sale %s already at rent floor", record.ID)
		return nil
	}
	owner, err := ctx.Account(accs.Owner)
	if err != nil {
		return err
	}
	if owner.Lamports > math.MaxUint64-withdrawable {
		return fmt.Errorf("%w: credit to %s", ledgererrors.ErrArithmeticOverflow, accs.Owner)
	}
	saleAcc.Lamports -= withdrawable
	owner.Lamports += withdrawable
	if err := ctx.SetAccount(accs.Sale, saleAcc); err != nil {
		return err
	}
	if err := ctx.SetAccount(accs.Owner, owner); err != nil {
		return err
	}
	ctx.Log("withdraw sale=%s amount=%d", record.ID, withdrawable)
	ctx.Emit(NewWithdrawalEvent(accs.Sale, record, withdrawable, saleAcc.Lamports))
	return nil
}

func (p *Program) close(ctx *runtime.Context, accs CloseAccounts) error {
	_, record, err := loadRecord(ctx, accs.Sale)
	if err != nil {
		return err
	}
	if accs.Owner != record.Owner || !ctx.IsSigner(accs.Owner) {
		return fmt.Errorf("%w: %s may not close sale %s", ledgererrors.ErrUnauthorized, accs.Owner, record.ID)
	}
	if record.Status == StatusClosed {
		return nil
	}
	record.Status = StatusClosed
	if err := storeRecord(ctx, accs.Sale, record); err != nil {
		return err
	}
	ctx.Log("closed sale %s", record.ID)
	ctx.Emit(NewClosedEvent(accs.Sale, record))
	return nil
}

// Price returns amount*cost. Totals outside the 32-bit price domain are
// rejected rather than truncated.
func Price(amount, cost uint32) (uint64, error) {
	total := new(uint256.Int).Mul(uint256.NewInt(uint64(amount)), uint256.NewInt(uint64(cost)))
	if total.GtUint64(math.MaxUint32) {
		return 0, fmt.Errorf("%w: %d * %d exceeds price range", ledgererrors.ErrArithmeticOverflow, amount, cost)
	}
	return total.Uint64(), nil
}

// Withdrawable returns the part of balance above floor.
func Withdrawable(balance, floor uint64) (uint64, error) {
	if balance < floor {
		return 0, fmt.Errorf("%w: balance %d below floor %d", ledgererrors.ErrInsufficientBalance, balance, floor)
	}
	return balance - floor, nil
}

func loadRecord(ctx *runtime.Context, sale solana.PublicKey) (*types.Account, *SaleRecord, error) {
	acc, err := ctx.Account(sale)
	if err != nil {
		return nil, nil, err
	}
	if acc.IsEmpty() {
		return nil, nil, fmt.Errorf("%w: sale %s", ledgererrors.ErrNotFound, sale)
	}
	if acc.Owner != ProgramID {
		return nil, nil, fmt.Errorf("%w: %s is not owned by the crowdsale program", ledgererrors.ErrInvalidAccount, sale)
	}
	record, err := DecodeRecord(acc.Data)
	if err != nil {
		return nil, nil, err
	}
	expected, _, err := SaleAddress(record.ID)
	if err != nil || expected != sale {
		return nil, nil, fmt.Errorf("%w: sale %s does not match id %s", ledgererrors.ErrInvalidAccount, sale, record.ID)
	}
	return acc, record, nil
}

func storeRecord(ctx *runtime.Context, sale solana.PublicKey, record *SaleRecord) error {
	acc, err := ctx.Account(sale)
	if err != nil {
		return err
	}
	data, err := EncodeRecord(record)
	if err != nil {
		return err
	}
	acc.Data = data
	return ctx.SetAccount(sale, acc)
}

func requireMint(ctx *runtime.Context, mint solana.PublicKey) error {
	acc, err := ctx.Account(mint)
	if err != nil {
		return err
	}
	if acc.Owner != token.ProgramID {
		return fmt.Errorf("%w: %s is not a mint", ledgererrors.ErrInvalidAccount, mint)
	}
	m, err := token.DecodeMint(acc.Data)
	if err != nil {
		return err
	}
	if !m.IsInitialized {
		return fmt.Errorf("%w: mint %s not initialised", ledgererrors.ErrInvalidAccount, mint)
	}
	return nil
}
