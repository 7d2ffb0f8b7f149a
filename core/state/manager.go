package state

import (
	"bytes"
	"errors"
	"fmt"
	"reflect"

	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"

	"clobsettle/storage"
	"clobsettle/storage/trie"
)

// stateRootKey is the raw (non-trie) key holding the last committed root.
var stateRootKey = []byte("meta/state-root")

// Manager provides RLP key-value access to the state trie together with
// all-or-nothing execution scopes. Keys are hashed with keccak256 before they
// reach the trie.
//
// Manager is not safe for concurrent use.
type Manager struct {
	trie  *trie.Trie
	depth int
}

// NewManager creates a state manager operating on the provided trie.
func NewManager(tr *trie.Trie) *Manager {
	return &Manager{trie: tr}
}

// Open loads the trie at the root last recorded by Commit, or an empty trie
// when the database has never been committed.
func Open(db storage.Database) (*Manager, error) {
	if db == nil {
		return nil, fmt.Errorf("state: database required")
	}
	root, err := db.Get(stateRootKey)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("state: read root: %w", err)
	}
	tr, err := trie.NewTrie(db, root)
	if err != nil {
		return nil, fmt.Errorf("state: open trie: %w", err)
	}
	return NewManager(tr), nil
}

func kvKey(key []byte) []byte {
	return ethcrypto.Keccak256(key)
}

// Atomic runs fn against the current state. When fn returns an error every
// mutation performed inside fn is discarded and the error is returned
// unchanged. Nested scopes roll back independently of their parent.
func (m *Manager) Atomic(fn func() error) error {
	if m == nil || m.trie == nil {
		return fmt.Errorf("state: manager not initialised")
	}
	backup := m.trie.Copy()
	m.depth++
	err := fn()
	m.depth--
	if err != nil {
		m.trie = backup
		return err
	}
	return nil
}

// InAtomic reports whether the caller runs inside an Atomic scope.
func (m *Manager) InAtomic() bool {
	return m != nil && m.depth > 0
}

// Root returns the root hash of the state including uncommitted mutations.
func (m *Manager) Root() common.Hash {
	return m.trie.Hash()
}

// Commit persists the trie, records the resulting root in the raw key space
// and returns it.
func (m *Manager) Commit(blockNumber uint64) (common.Hash, error) {
	if m.InAtomic() {
		return common.Hash{}, fmt.Errorf("state: commit inside atomic scope")
	}
	root, err := m.trie.Commit(m.trie.Root(), blockNumber)
	if err != nil {
		return common.Hash{}, fmt.Errorf("state: commit: %w", err)
	}
	if err := m.trie.Store().Put(stateRootKey, root.Bytes()); err != nil {
		return common.Hash{}, fmt.Errorf("state: record root: %w", err)
	}
	return root, nil
}

// KVPut stores the provided value under the supplied key using RLP encoding.
// The key is automatically hashed with keccak256 to match the requirements of
// the underlying trie implementation.
func (m *Manager) KVPut(key []byte, value interface{}) error {
	if len(key) == 0 {
		return fmt.Errorf("kv: key must not be empty")
	}
	encoded, err := rlp.EncodeToBytes(value)
	if err != nil {
		return err
	}
	return m.trie.Update(kvKey(key), encoded)
}

// KVGet retrieves the value stored under the supplied key and decodes it into
// the provided destination. The boolean return value indicates whether the key
// existed in state.
func (m *Manager) KVGet(key []byte, out interface{}) (bool, error) {
	if len(key) == 0 {
		return false, fmt.Errorf("kv: key must not be empty")
	}
	data, err := m.trie.Get(kvKey(key))
	if err != nil {
		return false, err
	}
	if len(data) == 0 {
		return false, nil
	}
	if out == nil {
		return true, nil
	}
	if err := rlp.DecodeBytes(data, out); err != nil {
		return false, err
	}
	return true, nil
}

// KVDelete removes the value stored under key. Removing an absent key is a
// no-op.
func (m *Manager) KVDelete(key []byte) error {
	if len(key) == 0 {
		return fmt.Errorf("kv: key must not be empty")
	}
	return m.trie.Delete(kvKey(key))
}

// KVAppend appends the provided value to the RLP-encoded byte slice list stored
// under the supplied key. Duplicate values are ignored to keep the index
// deterministic.
func (m *Manager) KVAppend(key []byte, value []byte) error {
	if len(key) == 0 {
		return fmt.Errorf("kv: key must not be empty")
	}
	var list [][]byte
	if _, err := m.KVGet(key, &list); err != nil {
		return err
	}
	for _, existing := range list {
		if bytes.Equal(existing, value) {
			return nil
		}
	}
	list = append(list, append([]byte(nil), value...))
	return m.KVPut(key, list)
}

// KVGetList decodes the RLP list stored under key into out, which must point
// to a slice. A missing key yields an empty slice.
func (m *Manager) KVGetList(key []byte, out interface{}) error {
	if len(key) == 0 {
		return fmt.Errorf("kv: key must not be empty")
	}
	data, err := m.trie.Get(kvKey(key))
	if err != nil {
		return err
	}
	if len(data) == 0 {
		val := reflect.ValueOf(out)
		if val.Kind() != reflect.Ptr || val.IsNil() {
			return fmt.Errorf("kv: destination must be a non-nil pointer")
		}
		elem := val.Elem()
		if elem.Kind() != reflect.Slice {
			return fmt.Errorf("kv: destination must point to a slice")
		}
		elem.Set(reflect.MakeSlice(elem.Type(), 0, 0))
		return nil
	}
	return rlp.DecodeBytes(data, out)
}
