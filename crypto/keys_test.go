package crypto

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestKeyFileRoundTrip(t *testing.T) {
	key, err := GenerateKey()
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "keys", "owner.key")
	require.NoError(t, SaveKeyFile(path, key))

	info, err := os.Stat(path)
	require.NoError(t, err)
	require.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	loaded, err := LoadKeyFile(path)
	require.NoError(t, err)
	require.Equal(t, key.PublicKey(), loaded.PublicKey())
}

func TestLoadKeyFileAcceptsByteArray(t *testing.T) {
	key, err := GenerateKey()
	require.NoError(t, err)

	parts := make([]string, len(key))
	for i, b := range key {
		parts[i] = strconv.Itoa(int(b))
	}
	path := filepath.Join(t.TempDir(), "id.json")
	require.NoError(t, os.WriteFile(path, []byte("["+strings.Join(parts, ",")+"]"), 0o600))

	loaded, err := LoadKeyFile(path)
	require.NoError(t, err)
	require.Equal(t, key.PublicKey(), loaded.PublicKey())
}

func TestParseAddress(t *testing.T) {
	key, err := GenerateKey()
	require.NoError(t, err)
	addr := key.PublicKey()

	parsed, err := ParseAddress("  " + addr.String() + " ")
	require.NoError(t, err)
	require.Equal(t, addr, parsed)

	_, err = ParseAddress("")
	require.ErrorIs(t, err, ErrInvalidAddress)
	_, err = ParseAddress("not-base58-0OIl")
	require.ErrorIs(t, err, ErrInvalidAddress)
}
