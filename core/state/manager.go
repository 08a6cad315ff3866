package state

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"
	"github.com/gagliardetto/solana-go"

	"salechain/core/types"
	"salechain/storage/trie"
)

// Manager reads and writes ledger accounts stored in the state trie. It is not
// safe for concurrent use; the node serialises access.
type Manager struct {
	trie *trie.Trie
}

// NewManager creates a state manager operating on the provided trie.
func NewManager(tr *trie.Trie) *Manager {
	return &Manager{trie: tr}
}

type storedAccount struct {
	Lamports   uint64
	Owner      [32]byte
	Data       []byte
	Executable bool
}

func accountStateKey(addr solana.PublicKey) []byte {
	return ethcrypto.Keccak256(addr[:])
}

// GetAccount returns the account stored at addr. Unallocated addresses read as
// an empty system-owned account so callers never need a nil check.
func (m *Manager) GetAccount(addr solana.PublicKey) (*types.Account, error) {
	data, err := m.trie.Get(accountStateKey(addr))
	if err != nil {
		return nil, fmt.Errorf("state: load account %s: %w", addr, err)
	}
	if len(data) == 0 {
		return types.NewSystemAccount(), nil
	}
	var stored storedAccount
	if err := rlp.DecodeBytes(data, &stored); err != nil {
		return nil, fmt.Errorf("state: decode account %s: %w", addr, err)
	}
	return &types.Account{
		Lamports:   stored.Lamports,
		Owner:      solana.PublicKeyFromBytes(stored.Owner[:]),
		Data:       stored.Data,
		Executable: stored.Executable,
	}, nil
}

// AccountExists reports whether addr holds lamports or data.
func (m *Manager) AccountExists(addr solana.PublicKey) (bool, error) {
	data, err := m.trie.Get(accountStateKey(addr))
	if err != nil {
		return false, err
	}
	return len(data) > 0, nil
}

// PutAccount stores the account at addr. Empty accounts are removed from the
// trie.
func (m *Manager) PutAccount(addr solana.PublicKey, account *types.Account) error {
	key := accountStateKey(addr)
	if account.IsEmpty() {
		return m.trie.Delete(key)
	}
	encoded, err := rlp.EncodeToBytes(&storedAccount{
		Lamports:   account.Lamports,
		Owner:      account.Owner,
		Data:       account.Data,
		Executable: account.Executable,
	})
	if err != nil {
		return fmt.Errorf("state: encode account %s: %w", addr, err)
	}
	return m.trie.Update(key, encoded)
}

// Snapshot captures the current in-memory state. Pass the result to Revert to
// discard every mutation made since.
func (m *Manager) Snapshot() *trie.Trie {
	return m.trie.Copy()
}

// Revert restores a state captured by Snapshot.
func (m *Manager) Revert(snapshot *trie.Trie) {
	if snapshot != nil {
		m.trie = snapshot
	}
}

// Hash returns the root reflecting uncommitted mutations.
func (m *Manager) Hash() common.Hash {
	return m.trie.Hash()
}

// Root returns the last committed state root.
func (m *Manager) Root() common.Hash {
	return m.trie.Root()
}

// Commit persists all pending mutations for the given slot and returns the new
// root.
func (m *Manager) Commit(slot uint64) (common.Hash, error) {
	return m.trie.Commit(slot)
}
