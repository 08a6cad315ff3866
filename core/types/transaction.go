package types

import (
	"fmt"

	"github.com/btcsuite/btcutil/base58"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"
	"github.com/gagliardetto/solana-go"

	ledgererrors "salechain/core/errors"
)

// MaxInstructions bounds the number of instructions a single transaction may
// carry.
const MaxInstructions = 16

// Instruction is a single program invocation. Accounts are positional; each
// program documents the order it expects.
type Instruction struct {
	ProgramID solana.PublicKey   `json:"programId"`
	Accounts  []solana.PublicKey `json:"accounts"`
	Data      []byte             `json:"data"`
}

// Transaction groups instructions that execute atomically. Every entry in
// Signers must have a matching ed25519 signature over the transaction hash at
// the same index in Signatures.
type Transaction struct {
	Nonce        uint64             `json:"nonce"`
	Instructions []Instruction      `json:"instructions"`
	Signers      []solana.PublicKey `json:"signers"`
	Signatures   []solana.Signature `json:"signatures"`
}

type txMessage struct {
	Nonce        uint64
	Instructions []Instruction
	Signers      []solana.PublicKey
}

// Hash returns keccak256 over the RLP encoded nonce, instructions and signer
// list. Signatures are not part of the hash.
func (tx *Transaction) Hash() ([32]byte, error) {
	var out [32]byte
	encoded, err := rlp.EncodeToBytes(&txMessage{
		Nonce:        tx.Nonce,
		Instructions: tx.Instructions,
		Signers:      tx.Signers,
	})
	if err != nil {
		return out, err
	}
	copy(out[:], crypto.Keccak256(encoded))
	return out, nil
}

// HashString returns the base58 form of the transaction hash used as the
// transaction identifier.
func (tx *Transaction) HashString() (string, error) {
	hash, err := tx.Hash()
	if err != nil {
		return "", err
	}
	return EncodeHash(hash), nil
}

// EncodeHash renders a 32-byte hash as base58.
func EncodeHash(hash [32]byte) string {
	return base58.Encode(hash[:])
}

// DecodeHash parses a base58 transaction identifier.
func DecodeHash(value string) ([32]byte, error) {
	var out [32]byte
	decoded := base58.Decode(value)
	if len(decoded) != len(out) {
		return out, fmt.Errorf("invalid transaction hash %q", value)
	}
	copy(out[:], decoded)
	return out, nil
}

// Sign replaces the signer list with the public keys of keys (in order) and
// signs the resulting hash with each key.
func (tx *Transaction) Sign(keys ...solana.PrivateKey) error {
	if len(keys) == 0 {
		return fmt.Errorf("sign: at least one key required")
	}
	tx.Signers = make([]solana.PublicKey, len(keys))
	for i, key := range keys {
		tx.Signers[i] = key.PublicKey()
	}
	hash, err := tx.Hash()
	if err != nil {
		return err
	}
	tx.Signatures = make([]solana.Signature, len(keys))
	for i, key := range keys {
		sig, err := key.Sign(hash[:])
		if err != nil {
			return err
		}
		tx.Signatures[i] = sig
	}
	return nil
}

// Verify checks structural limits and every signature.
func (tx *Transaction) Verify() error {
	if len(tx.Instructions) == 0 {
		return fmt.Errorf("%w: transaction has no instructions", ledgererrors.ErrInvalidInstruction)
	}
	if len(tx.Instructions) > MaxInstructions {
		return fmt.Errorf("%w: too many instructions (%d)", ledgererrors.ErrInvalidInstruction, len(tx.Instructions))
	}
	if len(tx.Signers) == 0 {
		return fmt.Errorf("%w: transaction is unsigned", ledgererrors.ErrMissingSignature)
	}
	if len(tx.Signers) != len(tx.Signatures) {
		return fmt.Errorf("%w: %d signers but %d signatures", ledgererrors.ErrInvalidSignature, len(tx.Signers), len(tx.Signatures))
	}
	hash, err := tx.Hash()
	if err != nil {
		return err
	}
	seen := make(map[solana.PublicKey]struct{}, len(tx.Signers))
	for i, signer := range tx.Signers {
		if _, dup := seen[signer]; dup {
			return fmt.Errorf("%w: duplicate signer %s", ledgererrors.ErrInvalidSignature, signer)
		}
		seen[signer] = struct{}{}
		if !tx.Signatures[i].Verify(signer, hash[:]) {
			return fmt.Errorf("%w: signer %s", ledgererrors.ErrInvalidSignature, signer)
		}
	}
	return nil
}
