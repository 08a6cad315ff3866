package trie

import (
	"github.com/ethereum/go-ethereum/common"
	gethtypes "github.com/ethereum/go-ethereum/core/types"
	gethtrie "github.com/ethereum/go-ethereum/trie"
	"github.com/ethereum/go-ethereum/trie/trienode"
	"github.com/ethereum/go-ethereum/triedb"

	"salechain/storage"
)

// Trie is the account state commitment: a go-ethereum Merkle Patricia trie
// over keccak256-hashed keys, reopened at the new root after every commit so
// one instance serves every slot.
//
// Trie is not safe for concurrent use.
type Trie struct {
	db   *triedb.Database
	trie *gethtrie.Trie
	root common.Hash
}

// NewTrie opens the trie at root. A nil or empty root denotes the empty trie.
func NewTrie(store storage.Database, root []byte) (*Trie, error) {
	t := &Trie{db: store.TrieDB()}
	at := gethtypes.EmptyRootHash
	if len(root) > 0 {
		at = common.BytesToHash(root)
	}
	if err := t.open(at); err != nil {
		return nil, err
	}
	return t, nil
}

func (t *Trie) open(root common.Hash) error {
	underlying, err := gethtrie.New(gethtrie.TrieID(root), t.db)
	if err != nil {
		return err
	}
	t.trie = underlying
	t.root = root
	return nil
}

func (t *Trie) Get(key []byte) ([]byte, error) { return t.trie.Get(key) }

func (t *Trie) Update(key, value []byte) error { return t.trie.Update(key, value) }

// Delete removes key. Deleting a missing key is not an error.
func (t *Trie) Delete(key []byte) error { return t.trie.Delete(key) }

// Hash returns the root including uncommitted mutations.
func (t *Trie) Hash() common.Hash { return t.trie.Hash() }

// Root returns the last committed root.
func (t *Trie) Root() common.Hash { return t.root }

// Reset drops pending mutations and reopens the trie at root.
func (t *Trie) Reset(root common.Hash) error { return t.open(root) }

// Copy returns an independent view over the same node database. Mutating the
// copy leaves t untouched, which is what state snapshots rely on.
func (t *Trie) Copy() *Trie {
	return &Trie{db: t.db, trie: t.trie.Copy(), root: t.root}
}

// Commit flushes pending nodes for slot and returns the new root.
func (t *Trie) Commit(slot uint64) (common.Hash, error) {
	root, nodes := t.trie.Commit(false)
	if nodes != nil {
		set := trienode.NewMergedNodeSet()
		if err := set.Merge(nodes); err != nil {
			return common.Hash{}, err
		}
		if err := t.db.Update(root, t.root, slot, set, nil); err != nil {
			return common.Hash{}, err
		}
		if err := t.db.Commit(root, false); err != nil {
			return common.Hash{}, err
		}
	}
	if err := t.open(root); err != nil {
		return common.Hash{}, err
	}
	return root, nil
}
