package trie

import (
	"github.com/ethereum/go-ethereum/common"
	gethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethdb"
	gethtrie "github.com/ethereum/go-ethereum/trie"
	"github.com/ethereum/go-ethereum/trie/trienode"
	"github.com/ethereum/go-ethereum/triedb"

	"clobsettle/storage"
)

// Trie is the Merkle Patricia trie behind two things: the engine state
// managed by core/state, and the off-chain settlement tree a prover keeps to
// produce dominator proofs.
//
// Keys are keccak256 hashes computed by the caller. After Commit the wrapper
// reopens the trie at the new root, so nodes resolved afterwards are read back
// from the database and show up in Witness.
//
// Trie is not safe for concurrent use.
type Trie struct {
	store  storage.Database
	trieDB *triedb.Database
	trie   *gethtrie.Trie
	root   common.Hash
}

// NewTrie opens the trie at root over store. A nil or empty root opens the
// empty trie.
func NewTrie(store storage.Database, root []byte) (*Trie, error) {
	trieDB := store.TrieDB()
	rootHash := gethtypes.EmptyRootHash
	if len(root) > 0 {
		rootHash = common.BytesToHash(root)
	}
	underlying, err := gethtrie.New(gethtrie.TrieID(rootHash), trieDB)
	if err != nil {
		return nil, err
	}
	return &Trie{
		store:  store,
		trieDB: trieDB,
		trie:   underlying,
		root:   rootHash,
	}, nil
}

// Get returns the value under key, or nil when the key is absent.
func (t *Trie) Get(key []byte) ([]byte, error) {
	return t.trie.Get(key)
}

// Update writes value under key. An empty value removes the key.
func (t *Trie) Update(key, value []byte) error {
	return t.trie.Update(key, value)
}

// Delete removes key. Deleting an absent key is a no-op.
func (t *Trie) Delete(key []byte) error {
	return t.trie.Delete(key)
}

// Prove writes the nodes on the path to key, including the root, into proofDb.
// The set proves the value under key, or its absence, against Hash().
func (t *Trie) Prove(key []byte, proofDb ethdb.KeyValueWriter) error {
	return t.trie.Prove(key, proofDb)
}

// Witness returns every node blob loaded from the database since the trie was
// last opened, keyed by node path. Replaying the same reads and writes on a
// trie holding only these nodes reaches the same root.
func (t *Trie) Witness() map[string][]byte {
	return t.trie.Witness()
}

// Hash returns the root hash including uncommitted mutations.
func (t *Trie) Hash() common.Hash {
	return t.trie.Hash()
}

// Root returns the last committed root hash.
func (t *Trie) Root() common.Hash {
	return t.root
}

// Reset drops uncommitted mutations and reopens the trie at root.
func (t *Trie) Reset(root common.Hash) error {
	underlying, err := gethtrie.New(gethtrie.TrieID(root), t.trieDB)
	if err != nil {
		return err
	}
	t.trie = underlying
	t.root = root
	return nil
}

// Copy returns a wrapper over an independent copy of the in-memory trie. Both
// share the node database. State atomic scopes and rejected-proof forks rely
// on mutations of one side staying invisible to the other.
func (t *Trie) Copy() *Trie {
	return &Trie{
		store:  t.store,
		trieDB: t.trieDB,
		trie:   t.trie.Copy(),
		root:   t.root,
	}
}

// Commit flushes dirty nodes into the node database and reopens the trie at
// the resulting root, which it returns.
func (t *Trie) Commit(parent common.Hash, blockNumber uint64) (common.Hash, error) {
	newRoot, nodes := t.trie.Commit(false)
	if nodes != nil {
		merged := trienode.NewMergedNodeSet()
		if err := merged.Merge(nodes); err != nil {
			return common.Hash{}, err
		}
		if err := t.trieDB.Update(newRoot, parent, blockNumber, merged, nil); err != nil {
			return common.Hash{}, err
		}
		if err := t.trieDB.Commit(newRoot, false); err != nil {
			return common.Hash{}, err
		}
	}
	if err := t.Reset(newRoot); err != nil {
		return common.Hash{}, err
	}
	return newRoot, nil
}

// Store returns the backing database. The state manager keeps its committed
// root there, outside the trie.
func (t *Trie) Store() storage.Database {
	return t.store
}
