package crowdsale

import (
	"bytes"
	"crypto/sha256"
	"fmt"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
)

// ProgramID is the address the crowdsale program is deployed at.
var ProgramID = solana.MustPublicKeyFromBase58("4tAj8UbxCCVChy785xKz4ZK17vKch3CAbwM8co7u8VUb")

const (
	// RecordSize is the serialized length of a SaleRecord without the account
	// discriminator: id, cost, mint, reserve, status, owner.
	RecordSize = 32 + 4 + 32 + 32 + 1 + 32
	// DiscriminatorSize is the length of the account type prefix.
	DiscriminatorSize = 8
	// AccountDataSize is the data length of a sale account; the rent floor is
	// computed for this size.
	AccountDataSize = DiscriminatorSize + RecordSize
)

// Status is the lifecycle flag of a sale.
type Status uint8

const (
	StatusOpen Status = iota
	StatusClosed
)

func (s Status) String() string {
	switch s {
	case StatusOpen:
		return "open"
	case StatusClosed:
		return "closed"
	default:
		return fmt.Sprintf("status(%d)", uint8(s))
	}
}

// MarshalText renders the status for JSON payloads.
func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText accepts the names produced by MarshalText.
func (s *Status) UnmarshalText(text []byte) error {
	switch string(text) {
	case "open":
		*s = StatusOpen
	case "closed":
		*s = StatusClosed
	default:
		return fmt.Errorf("crowdsale: unknown status %q", text)
	}
	return nil
}

// SaleRecord is the persisted state of one sale. The field order is the
// on-ledger layout.
type SaleRecord struct {
	ID           solana.PublicKey `json:"id"`
	Cost         uint32           `json:"cost"`
	MintAccount  solana.PublicKey `json:"mintAccount"`
	TokenAccount solana.PublicKey `json:"tokenAccount"`
	Status       Status           `json:"status"`
	Owner        solana.PublicKey `json:"owner"`
}

// Clone returns a copy of the record.
func (r *SaleRecord) Clone() *SaleRecord {
	if r == nil {
		return nil
	}
	clone := *r
	return &clone
}

// IsOpen reports whether the sale accepts purchases.
func (r *SaleRecord) IsOpen() bool {
	return r != nil && r.Status == StatusOpen
}

var recordDiscriminator = discriminator("account", "Crowdsale")

func discriminator(namespace, name string) [DiscriminatorSize]byte {
	sum := sha256.Sum256([]byte(namespace + ":" + name))
	var out [DiscriminatorSize]byte
	copy(out[:], sum[:DiscriminatorSize])
	return out
}

// EncodeRecord returns the account data for r: the discriminator followed by
// the Borsh layout of the record.
func EncodeRecord(r *SaleRecord) ([]byte, error) {
	buf := bytes.NewBuffer(make([]byte, 0, AccountDataSize))
	buf.Write(recordDiscriminator[:])
	if err := bin.NewBorshEncoder(buf).Encode(r); err != nil {
		return nil, fmt.Errorf("crowdsale: encode record: %w", err)
	}
	if buf.Len() != AccountDataSize {
		return nil, fmt.Errorf("crowdsale: encoded record is %d bytes, want %d", buf.Len(), AccountDataSize)
	}
	return buf.Bytes(), nil
}

// DecodeRecord parses sale account data.
func DecodeRecord(data []byte) (*SaleRecord, error) {
	if len(data) != AccountDataSize {
		return nil, fmt.Errorf("%w: sale data length %d", ErrInvalidRecord, len(data))
	}
	if !bytes.Equal(data[:DiscriminatorSize], recordDiscriminator[:]) {
		return nil, fmt.Errorf("%w: discriminator mismatch", ErrInvalidRecord)
	}
	var r SaleRecord
	if err := bin.NewBorshDecoder(data[DiscriminatorSize:]).Decode(&r); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRecord, err)
	}
	if r.Status > StatusClosed {
		return nil, fmt.Errorf("%w: unknown status %d", ErrInvalidRecord, r.Status)
	}
	return &r, nil
}
