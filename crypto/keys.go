package crypto

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/gagliardetto/solana-go"
)

// ErrInvalidAddress is returned when an address string cannot be decoded.
var ErrInvalidAddress = errors.New("crypto: invalid address")

// GenerateKey creates a fresh ed25519 keypair.
func GenerateKey() (solana.PrivateKey, error) {
	return solana.NewRandomPrivateKey()
}

// ParseAddress decodes a base58 encoded 32-byte address.
func ParseAddress(value string) (solana.PublicKey, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return solana.PublicKey{}, fmt.Errorf("%w: empty", ErrInvalidAddress)
	}
	key, err := solana.PublicKeyFromBase58(trimmed)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("%w: %v", ErrInvalidAddress, err)
	}
	return key, nil
}

// MustParseAddress is like ParseAddress but panics on malformed input. Intended
// for compile-time constants.
func MustParseAddress(value string) solana.PublicKey {
	key, err := ParseAddress(value)
	if err != nil {
		panic(err)
	}
	return key
}

// SaveKeyFile writes the base58 encoded secret key to path with 0600
// permissions. The file is written to a temporary sibling first and renamed so
// a crash never leaves a truncated key behind.
func SaveKeyFile(path string, key solana.PrivateKey) error {
	if len(key) != 64 {
		return errors.New("crypto: invalid private key length")
	}
	if path == "" {
		return errors.New("crypto: empty key file path")
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, ".key-")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.WriteString(key.String() + "\n"); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

// LoadKeyFile reads a secret key written by SaveKeyFile. Keypair files in the
// JSON byte-array format produced by solana-keygen are accepted as well.
func LoadKeyFile(path string) (solana.PrivateKey, error) {
	if path == "" {
		return nil, errors.New("crypto: empty key file path")
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	trimmed := strings.TrimSpace(string(raw))
	if strings.HasPrefix(trimmed, "[") {
		var values []byte
		var ints []int
		if err := json.Unmarshal([]byte(trimmed), &ints); err != nil {
			return nil, fmt.Errorf("crypto: decode keypair file: %w", err)
		}
		for _, v := range ints {
			if v < 0 || v > 255 {
				return nil, errors.New("crypto: keypair byte out of range")
			}
			values = append(values, byte(v))
		}
		if len(values) != 64 {
			return nil, errors.New("crypto: invalid private key length")
		}
		return solana.PrivateKey(values), nil
	}
	key, err := solana.PrivateKeyFromBase58(trimmed)
	if err != nil {
		return nil, fmt.Errorf("crypto: decode key file: %w", err)
	}
	if len(key) != 64 {
		return nil, errors.New("crypto: invalid private key length")
	}
	return key, nil
}
