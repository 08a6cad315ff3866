package token

import (
	"bytes"
	"fmt"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"

	ledgererrors "salechain/core/errors"
)

const (
	// MintSize is the data length of an initialised mint account.
	MintSize = 42
	// AccountSize is the data length of a token account.
	AccountSize = 72
)

// Mint is the on-ledger definition of a token.
type Mint struct {
	MintAuthority solana.PublicKey `json:"mintAuthority"`
	Supply        uint64           `json:"supply"`
	Decimals      uint8            `json:"decimals"`
	IsInitialized bool             `json:"isInitialized"`
}

// TokenAccount holds a balance of one mint for one owner.
type TokenAccount struct {
	Mint   solana.PublicKey `json:"mint"`
	Owner  solana.PublicKey `json:"owner"`
	Amount uint64           `json:"amount"`
}

// DecodeMint parses mint account data.
func DecodeMint(data []byte) (*Mint, error) {
	if len(data) != MintSize {
		return nil, fmt.Errorf("%w: mint data length %d", ledgererrors.ErrInvalidAccount, len(data))
	}
	var m Mint
	if err := bin.NewBorshDecoder(data).Decode(&m); err != nil {
		return nil, fmt.Errorf("%w: decode mint: %v", ledgererrors.ErrInvalidAccount, err)
	}
	return &m, nil
}

// Encode returns the Borsh layout of the mint.
func (m *Mint) Encode() ([]byte, error) {
	return encode(m)
}

// DecodeTokenAccount parses token account data. Zeroed data (allocated but not
// yet initialised) is rejected.
func DecodeTokenAccount(data []byte) (*TokenAccount, error) {
	if len(data) != AccountSize {
		return nil, fmt.Errorf("%w: token account data length %d", ledgererrors.ErrInvalidAccount, len(data))
	}
	var a TokenAccount
	if err := bin.NewBorshDecoder(data).Decode(&a); err != nil {
		return nil, fmt.Errorf("%w: decode token account: %v", ledgererrors.ErrInvalidAccount, err)
	}
	if a.Mint.IsZero() {
		return nil, fmt.Errorf("%w: token account not initialised", ledgererrors.ErrInvalidAccount)
	}
	return &a, nil
}

// Encode returns the Borsh layout of the token account.
func (a *TokenAccount) Encode() ([]byte, error) {
	return encode(a)
}

func encode(v any) ([]byte, error) {
	var buf bytes.Buffer
	if err := bin.NewBorshEncoder(&buf).Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
