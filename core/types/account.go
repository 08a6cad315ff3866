package types

import (
	"bytes"

	"github.com/gagliardetto/solana-go"
)

// Account is a ledger storage slot: a native currency balance plus program
// owned data. Accounts that hold neither lamports nor data do not exist in
// state.
type Account struct {
	Lamports   uint64           `json:"lamports"`
	Owner      solana.PublicKey `json:"owner"`
	Data       []byte           `json:"data"`
	Executable bool             `json:"executable"`
}

// NewSystemAccount returns an empty account owned by the system program, the
// shape every unallocated address reads as.
func NewSystemAccount() *Account {
	return &Account{Owner: solana.SystemProgramID}
}

// Clone returns a deep copy so callers can mutate the copy without affecting
// the stored instance.
func (a *Account) Clone() *Account {
	if a == nil {
		return nil
	}
	clone := *a
	if a.Data != nil {
		clone.Data = append([]byte(nil), a.Data...)
	}
	return &clone
}

// IsEmpty reports whether the account holds no lamports and no data.
func (a *Account) IsEmpty() bool {
	return a == nil || (a.Lamports == 0 && len(a.Data) == 0)
}

// Equal reports whether both accounts carry identical state.
func (a *Account) Equal(other *Account) bool {
	if a == nil || other == nil {
		return a == other
	}
	return a.Lamports == other.Lamports &&
		a.Owner == other.Owner &&
		a.Executable == other.Executable &&
		bytes.Equal(a.Data, other.Data)
}
