package storage

import (
	"errors"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/core/rawdb"
	"github.com/ethereum/go-ethereum/ethdb"
	gethleveldb "github.com/ethereum/go-ethereum/ethdb/leveldb"
	"github.com/ethereum/go-ethereum/ethdb/memorydb"
	"github.com/ethereum/go-ethereum/triedb"
	"github.com/syndtr/goleveldb/leveldb/opt"
)

// ErrNotFound is returned by Get when the key is absent.
var ErrNotFound = errors.New("storage: key not found")

// Database is a generic interface for a key-value store.
// This allows the ledger to use any database backend (in-memory or persistent).
// TrieDB exposes the node database the state trie commits into; it shares the
// same backing store as Put/Get.
type Database interface {
	Put(key []byte, value []byte) error
	Get(key []byte) ([]byte, error)
	Has(key []byte) (bool, error)
	Delete(key []byte) error
	TrieDB() *triedb.Database
	Close() // A way to gracefully shut down the database connection.
}

type kvStore struct {
	db ethdb.Database

	once   sync.Once
	trieDB *triedb.Database
}

func (s *kvStore) Put(key []byte, value []byte) error {
	if len(key) == 0 {
		return fmt.Errorf("storage: empty key")
	}
	return s.db.Put(key, value)
}

func (s *kvStore) Get(key []byte) ([]byte, error) {
	ok, err := s.db.Has(key)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNotFound
	}
	return s.db.Get(key)
}

func (s *kvStore) Has(key []byte) (bool, error) {
	return s.db.Has(key)
}

func (s *kvStore) Delete(key []byte) error {
	return s.db.Delete(key)
}

func (s *kvStore) TrieDB() *triedb.Database {
	s.once.Do(func() {
		s.trieDB = triedb.NewDatabase(s.db, triedb.HashDefaults)
	})
	return s.trieDB
}

// --- In-Memory DB (for testing) ---

type MemDB struct {
	kvStore
}

func NewMemDB() *MemDB {
	return &MemDB{kvStore: kvStore{db: rawdb.NewDatabase(memorydb.New())}}
}

// Close satisfies the Database interface for MemDB.
func (db *MemDB) Close() {
	// Nothing to close for an in-memory database.
}

// --- Persistent DB ---

// LevelDBOptions tunes the LevelDB backend. Zero values fall back to
// conservative defaults.
type LevelDBOptions struct {
	CacheMB  int
	Handles  int
	ReadOnly bool
}

const (
	minCacheMB = 16
	minHandles = 16
)

// LevelDB is a persistent key-value store using LevelDB.
type LevelDB struct {
	kvStore
	path string
}

// NewLevelDB creates or opens a LevelDB database at the specified path.
func NewLevelDB(path string) (*LevelDB, error) {
	return NewLevelDBWithOptions(path, LevelDBOptions{})
}

// NewLevelDBWithOptions opens a LevelDB database applying the supplied cache
// and file handle budget.
func NewLevelDBWithOptions(path string, options LevelDBOptions) (*LevelDB, error) {
	if path == "" {
		return nil, fmt.Errorf("storage: leveldb path required")
	}
	cache := options.CacheMB
	if cache < minCacheMB {
		cache = minCacheMB
	}
	handles := options.Handles
	if handles < minHandles {
		handles = minHandles
	}
	kv, err := gethleveldb.NewCustom(path, "", func(o *opt.Options) {
		o.OpenFilesCacheCapacity = handles
		o.BlockCacheCapacity = cache / 2 * opt.MiB
		o.WriteBuffer = cache / 4 * opt.MiB
		o.ReadOnly = options.ReadOnly
	})
	if err != nil {
		return nil, fmt.Errorf("storage: open leveldb %s: %w", path, err)
	}
	return &LevelDB{kvStore: kvStore{db: rawdb.NewDatabase(kv)}, path: path}, nil
}

// Path returns the directory backing the database.
func (ldb *LevelDB) Path() string { return ldb.path }

// Close closes the database connection.
func (ldb *LevelDB) Close() {
	_ = ldb.db.Close()
}
