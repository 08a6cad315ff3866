package crowdsale

import (
	"bytes"
	"fmt"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"

	ledgererrors "salechain/core/errors"
	"salechain/core/types"
	"salechain/native/system"
	"salechain/native/token"
)

var (
	initializeDiscriminator = discriminator("global", "initialize")
	buyTokensDiscriminator  = discriminator("global", "buy_tokens")
	withdrawDiscriminator   = discriminator("global", "withdraw")
	closeDiscriminator      = discriminator("global", "close")
)

type initializeArgs struct {
	ID   solana.PublicKey
	Cost uint32
}

type buyTokensArgs struct {
	Amount uint32
}

// InitializeAccounts lists the accounts of an initialize instruction in order.
type InitializeAccounts struct {
	Payer                  solana.PublicKey
	Sale                   solana.PublicKey
	Authority              solana.PublicKey
	Mint                   solana.PublicKey
	Reserve                solana.PublicKey
	SystemProgram          solana.PublicKey
	TokenProgram           solana.PublicKey
	AssociatedTokenProgram solana.PublicKey
}

func (a InitializeAccounts) keys() []solana.PublicKey {
	return []solana.PublicKey{a.Payer, a.Sale, a.Authority, a.Mint, a.Reserve, a.SystemProgram, a.TokenProgram, a.AssociatedTokenProgram}
}

// BuyTokensAccounts lists the accounts of a buy_tokens instruction in order.
type BuyTokensAccounts struct {
	Buyer                  solana.PublicKey
	BuyerTokenAccount      solana.PublicKey
	Sale                   solana.PublicKey
	Reserve                solana.PublicKey
	Authority              solana.PublicKey
	Mint                   solana.PublicKey
	TokenProgram           solana.PublicKey
	AssociatedTokenProgram solana.PublicKey
	SystemProgram          solana.PublicKey
}

func (a BuyTokensAccounts) keys() []solana.PublicKey {
	return []solana.PublicKey{a.Buyer, a.BuyerTokenAccount, a.Sale, a.Reserve, a.Authority, a.Mint, a.TokenProgram, a.AssociatedTokenProgram, a.SystemProgram}
}

// WithdrawAccounts lists the accounts of a withdraw instruction in order.
type WithdrawAccounts struct {
	Owner         solana.PublicKey
	Sale          solana.PublicKey
	SystemProgram solana.PublicKey
}

func (a WithdrawAccounts) keys() []solana.PublicKey {
	return []solana.PublicKey{a.Owner, a.Sale, a.SystemProgram}
}

// CloseAccounts lists the accounts of a close instruction in order.
type CloseAccounts struct {
	Owner solana.PublicKey
	Sale  solana.PublicKey
}

func (a CloseAccounts) keys() []solana.PublicKey {
	return []solana.PublicKey{a.Owner, a.Sale}
}

// NewInitializeInstruction builds the instruction creating sale id priced at
// cost lamports per token unit, with a reserve for mint funded by payer.
func NewInitializeInstruction(payer, id, mint solana.PublicKey, cost uint32) (types.Instruction, error) {
	sale, _, err := SaleAddress(id)
	if err != nil {
		return types.Instruction{}, err
	}
	authority, _, err := AuthorityAddress(id)
	if err != nil {
		return types.Instruction{}, err
	}
	reserve, _, err := token.AssociatedAddress(authority, mint)
	if err != nil {
		return types.Instruction{}, err
	}
	accounts := InitializeAccounts{
		Payer:                  payer,
		Sale:                   sale,
		Authority:              authority,
		Mint:                   mint,
		Reserve:                reserve,
		SystemProgram:          system.ProgramID,
		TokenProgram:           token.ProgramID,
		AssociatedTokenProgram: token.AssociatedProgramID,
	}
	data, err := encodeInstruction(initializeDiscriminator, &initializeArgs{ID: id, Cost: cost})
	if err != nil {
		return types.Instruction{}, err
	}
	return types.Instruction{ProgramID: ProgramID, Accounts: accounts.keys(), Data: data}, nil
}

// NewBuyTokensInstruction builds a purchase of amount token units of sale id
// by buyer. mint must be the sale's mint.
func NewBuyTokensInstruction(buyer, id, mint solana.PublicKey, amount uint32) (types.Instruction, error) {
	sale, _, err := SaleAddress(id)
	if err != nil {
		return types.Instruction{}, err
	}
	authority, _, err := AuthorityAddress(id)
	if err != nil {
		return types.Instruction{}, err
	}
	reserve, _, err := token.AssociatedAddress(authority, mint)
	if err != nil {
		return types.Instruction{}, err
	}
	buyerTokens, _, err := token.AssociatedAddress(buyer, mint)
	if err != nil {
		return types.Instruction{}, err
	}
	accounts := BuyTokensAccounts{
		Buyer:                  buyer,
		BuyerTokenAccount:      buyerTokens,
		Sale:                   sale,
		Reserve:                reserve,
		Authority:              authority,
		Mint:                   mint,
		TokenProgram:           token.ProgramID,
		AssociatedTokenProgram: token.AssociatedProgramID,
		SystemProgram:          system.ProgramID,
	}
	data, err := encodeInstruction(buyTokensDiscriminator, &buyTokensArgs{Amount: amount})
	if err != nil {
		return types.Instruction{}, err
	}
	return types.Instruction{ProgramID: ProgramID, Accounts: accounts.keys(), Data: data}, nil
}

// NewWithdrawInstruction builds the owner's sweep of sale id down to its rent
// floor.
func NewWithdrawInstruction(owner, id solana.PublicKey) (types.Instruction, error) {
	sale, _, err := SaleAddress(id)
	if err != nil {
		return types.Instruction{}, err
	}
	accounts := WithdrawAccounts{Owner: owner, Sale: sale, SystemProgram: system.ProgramID}
	data, err := encodeInstruction(withdrawDiscriminator, nil)
	if err != nil {
		return types.Instruction{}, err
	}
	return types.Instruction{ProgramID: ProgramID, Accounts: accounts.keys(), Data: data}, nil
}

// NewCloseInstruction builds the owner's transition of sale id to Closed.
func NewCloseInstruction(owner, id solana.PublicKey) (types.Instruction, error) {
	sale, _, err := SaleAddress(id)
	if err != nil {
		return types.Instruction{}, err
	}
	accounts := CloseAccounts{Owner: owner, Sale: sale}
	data, err := encodeInstruction(closeDiscriminator, nil)
	if err != nil {
		return types.Instruction{}, err
	}
	return types.Instruction{ProgramID: ProgramID, Accounts: accounts.keys(), Data: data}, nil
}

func encodeInstruction(disc [DiscriminatorSize]byte, args any) ([]byte, error) {
	var buf bytes.Buffer
	buf.Write(disc[:])
	if args != nil {
		if err := bin.NewBorshEncoder(&buf).Encode(args); err != nil {
			return nil, fmt.Errorf("crowdsale: encode instruction: %w", err)
		}
	}
	return buf.Bytes(), nil
}

func decodeArgs(payload []byte, out any) error {
	if err := bin.NewBorshDecoder(payload).Decode(out); err != nil {
		return fmt.Errorf("%w: %v", ledgererrors.ErrInvalidInstruction, err)
	}
	return nil
}
