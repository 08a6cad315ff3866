package state

import (
	"fmt"

	"github.com/holiman/uint256"
)

const (
	// AccountStorageOverhead is charged on top of the data length of every
	// account when computing its rent floor.
	AccountStorageOverhead = 128

	DefaultLamportsPerByteYear = 3480
	DefaultExemptionYears      = 2
)

// Rent describes the minimum balance an account must hold to remain valid.
type Rent struct {
	LamportsPerByteYear uint64
	ExemptionYears      uint64
}

// DefaultRent returns the ledger's standard rent parameters.
func DefaultRent() Rent {
	return Rent{
		LamportsPerByteYear: DefaultLamportsPerByteYear,
		ExemptionYears:      DefaultExemptionYears,
	}
}

// Validate rejects parameters whose floor would overflow for the largest
// permitted account size.
func (r Rent) Validate() error {
	if r.LamportsPerByteYear == 0 {
		return fmt.Errorf("rent: lamports per byte-year must be positive")
	}
	if r.ExemptionYears == 0 {
		return fmt.Errorf("rent: exemption years must be positive")
	}
	if _, ok := r.minimumBalance(MaxAccountDataLen); !ok {
		return fmt.Errorf("rent: parameters overflow for %d byte accounts", MaxAccountDataLen)
	}
	return nil
}

// MaxAccountDataLen caps the data size of a single account.
const MaxAccountDataLen = 10 * 1024 * 1024

// MinimumBalance returns the rent floor for an account holding dataLen bytes.
// The result saturates at the maximum uint64 value.
func (r Rent) MinimumBalance(dataLen int) uint64 {
	v, ok := r.minimumBalance(dataLen)
	if !ok {
		return ^uint64(0)
	}
	return v
}

// IsExempt reports whether lamports meet the floor for dataLen bytes.
func (r Rent) IsExempt(lamports uint64, dataLen int) bool {
	return lamports >= r.MinimumBalance(dataLen)
}

func (r Rent) minimumBalance(dataLen int) (uint64, bool) {
	if dataLen < 0 {
		dataLen = 0
	}
	size := uint256.NewInt(uint64(dataLen) + AccountStorageOverhead)
	perByte, overflow := new(uint256.Int).MulOverflow(uint256.NewInt(r.LamportsPerByteYear), uint256.NewInt(r.ExemptionYears))
	if overflow {
		return 0, false
	}
	total, overflow := new(uint256.Int).MulOverflow(size, perByte)
	if overflow || !total.IsUint64() {
		return 0, false
	}
	return total.Uint64(), true
}
