package dominator

import (
	"bytes"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/rawdb"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethdb/memorydb"
	"github.com/ethereum/go-ethereum/rlp"
	gethtrie "github.com/ethereum/go-ethereum/trie"
	"github.com/ethereum/go-ethereum/triedb"
)

// VerifyTransition replays the leaves against a partial trie rebuilt from the
// nodes in compiled. Every leaf must hold Old under oldRoot, and writing every
// New value into that trie must yield exactly newRoot, so no slot outside the
// leaf set can differ between the two roots. compiled is the RLP list of trie
// nodes produced by Prover.
func VerifyTransition(compiled []byte, oldRoot, newRoot common.Hash, leaves []Leaf) error {
	if len(leaves) == 0 {
		return fmt.Errorf("%w: no leaves", ErrProofsUnsatisfied)
	}
	seen := make(map[string]struct{}, len(leaves))
	for _, leaf := range leaves {
		if _, dup := seen[string(leaf.Key)]; dup {
			return fmt.Errorf("%w: duplicate leaf key %x", ErrProofsUnsatisfied, leaf.Key)
		}
		seen[string(leaf.Key)] = struct{}{}
	}
	tr, err := openPartialTrie(compiled, oldRoot)
	if err != nil {
		return err
	}
	for i, leaf := range leaves {
		value, err := tr.Get(crypto.Keccak256(leaf.Key))
		if err != nil {
			return fmt.Errorf("%w: leaf %d old value: %v", ErrProofsUnsatisfied, i, err)
		}
		if !slotEquals(value, leaf.Old) {
			return fmt.Errorf("%w: leaf %d old value mismatch", ErrProofsUnsatisfied, i)
		}
	}
	var zero [32]byte
	for i, leaf := range leaves {
		hashed := crypto.Keccak256(leaf.Key)
		if leaf.New == zero {
			err = tr.Delete(hashed)
		} else {
			err = tr.Update(hashed, leaf.New[:])
		}
		if err != nil {
			return fmt.Errorf("%w: leaf %d new value: %v", ErrProofsUnsatisfied, i, err)
		}
	}
	if got := tr.Hash(); got != newRoot {
		return fmt.Errorf("%w: transition yields root %s, want %s", ErrProofsUnsatisfied, got, newRoot)
	}
	return nil
}

// openPartialTrie loads the compiled nodes into a hash-scheme node database
// and opens the trie at root over it. Resolving a node outside the set fails
// with a missing node error.
func openPartialTrie(compiled []byte, root common.Hash) (*gethtrie.Trie, error) {
	var nodes [][]byte
	if err := rlp.DecodeBytes(compiled, &nodes); err != nil {
		return nil, fmt.Errorf("%w: decode compiled proof: %v", ErrProofsUnsatisfied, err)
	}
	kv := memorydb.New()
	for _, node := range nodes {
		if err := kv.Put(crypto.Keccak256(node), node); err != nil {
			return nil, err
		}
	}
	db := triedb.NewDatabase(rawdb.NewDatabase(kv), triedb.HashDefaults)
	tr, err := gethtrie.New(gethtrie.TrieID(root), db)
	if err != nil {
		return nil, fmt.Errorf("%w: open root %s: %v", ErrProofsUnsatisfied, root, err)
	}
	return tr, nil
}

func slotEquals(raw []byte, want [32]byte) bool {
	if len(raw) == 0 {
		return want == [32]byte{}
	}
	return bytes.Equal(raw, want[:])
}
