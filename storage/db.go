package storage

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/core/rawdb"
	"github.com/ethereum/go-ethereum/ethdb"
	gethleveldb "github.com/ethereum/go-ethereum/ethdb/leveldb"
	"github.com/ethereum/go-ethereum/ethdb/memorydb"
	"github.com/ethereum/go-ethereum/triedb"
	"github.com/syndtr/goleveldb/leveldb"
)

// ErrNotFound is returned by Get when the key is absent.
var ErrNotFound = errors.New("storage: key not found")

// Database is a generic interface for a key-value store.
// Every backend also exposes a trie database over the same key space so the
// state trie and raw metadata (e.g. the committed state root) share storage.
type Database interface {
	Put(key []byte, value []byte) error
	Get(key []byte) ([]byte, error)
	Delete(key []byte) error
	TrieDB() *triedb.Database
	Close() // A way to gracefully shut down the database connection.
}

// --- In-Memory DB (for testing) ---

type MemDB struct {
	kv     *memorydb.Database
	trieDB *triedb.Database
}

func NewMemDB() *MemDB {
	kv := memorydb.New()
	return &MemDB{
		kv:     kv,
		trieDB: triedb.NewDatabase(rawdb.NewDatabase(kv), triedb.HashDefaults),
	}
}

func (db *MemDB) Put(key []byte, value []byte) error {
	return db.kv.Put(key, value)
}

func (db *MemDB) Get(key []byte) ([]byte, error) {
	ok, err := db.kv.Has(key)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNotFound
	}
	return db.kv.Get(key)
}

func (db *MemDB) Delete(key []byte) error {
	return db.kv.Delete(key)
}

// TrieDB returns the hash-scheme trie database layered over the memory store.
func (db *MemDB) TrieDB() *triedb.Database { return db.trieDB }

// Close satisfies the Database interface for MemDB.
func (db *MemDB) Close() {
	// Nothing to close for an in-memory database.
}

// --- Persistent DB (for mainnet) ---

// LevelDB is a persistent key-value store using LevelDB.
type LevelDB struct {
	db     ethdb.KeyValueStore
	trieDB *triedb.Database
}

// NewLevelDB creates or opens a LevelDB database at the specified path.
func NewLevelDB(path string) (*LevelDB, error) {
	kv, err := gethleveldb.New(path, 16, 16, "", false)
	if err != nil {
		return nil, fmt.Errorf("storage: open leveldb %s: %w", path, err)
	}
	return &LevelDB{
		db:     kv,
		trieDB: triedb.NewDatabase(rawdb.NewDatabase(kv), triedb.HashDefaults),
	}, nil
}

// Put inserts or updates a key-value pair.
func (ldb *LevelDB) Put(key []byte, value []byte) error {
	return ldb.db.Put(key, value)
}

// Get retrieves a value for a given key.
func (ldb *LevelDB) Get(key []byte) ([]byte, error) {
	value, err := ldb.db.Get(key)
	if errors.Is(err, leveldb.ErrNotFound) {
		return nil, ErrNotFound
	}
	return value, err
}

// Delete removes the key if present.
func (ldb *LevelDB) Delete(key []byte) error {
	return ldb.db.Delete(key)
}

// TrieDB returns the trie database persisted in the same LevelDB instance.
func (ldb *LevelDB) TrieDB() *triedb.Database { return ldb.trieDB }

// Close flushes the trie database and closes the database connection.
func (ldb *LevelDB) Close() {
	ldb.trieDB.Close()
	ldb.db.Close()
}
