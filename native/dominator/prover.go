package dominator

import (
	"fmt"
	"sort"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"

	"clobsettle/storage/trie"
)

// Update assigns Value to the slot under Key. A zero value removes the slot.
type Update struct {
	Key   []byte
	Value [32]byte
}

// Prover maintains the off-chain side of the settlement tree and produces the
// leaves and compiled proofs the engine verifies. It is used by operators,
// tooling and tests.
type Prover struct {
	tree  *trie.Trie
	block uint64
}

// NewProver wraps tr.
func NewProver(tr *trie.Trie) *Prover {
	return &Prover{tree: tr}
}

// Root returns the current tree root.
func (p *Prover) Root() common.Hash {
	return p.tree.Hash()
}

// Value returns the value stored in the slot under key.
func (p *Prover) Value(key []byte) ([32]byte, error) {
	var out [32]byte
	raw, err := p.tree.Get(crypto.Keccak256(key))
	if err != nil {
		return out, err
	}
	if len(raw) != 0 && len(raw) != len(out) {
		return out, fmt.Errorf("slot %x holds %d bytes", key, len(raw))
	}
	copy(out[:], raw)
	return out, nil
}

// Apply commits the tree, then performs updates and returns the leaves in
// update order, the compiled proof and the new root. The compiled proof holds
// every node read while applying the updates, which is what a verifier needs
// to replay them from the previous root.
func (p *Prover) Apply(updates []Update) ([]Leaf, []byte, common.Hash, error) {
	p.block++
	if _, err := p.tree.Commit(p.tree.Root(), p.block); err != nil {
		return nil, nil, common.Hash{}, fmt.Errorf("commit tree: %w", err)
	}
	leaves := make([]Leaf, len(updates))
	seen := make(map[string]struct{}, len(updates))
	for i, u := range updates {
		if _, dup := seen[string(u.Key)]; dup {
			return nil, nil, common.Hash{}, fmt.Errorf("duplicate update for key %x", u.Key)
		}
		seen[string(u.Key)] = struct{}{}
		old, err := p.Value(u.Key)
		if err != nil {
			return nil, nil, common.Hash{}, err
		}
		leaves[i] = Leaf{Key: append([]byte(nil), u.Key...), Old: old, New: u.Value}
	}
	var zero [32]byte
	for _, u := range updates {
		hashed := crypto.Keccak256(u.Key)
		var err error
		if u.Value == zero {
			err = p.tree.Delete(hashed)
		} else {
			err = p.tree.Update(hashed, u.Value[:])
		}
		if err != nil {
			return nil, nil, common.Hash{}, err
		}
	}
	compiled, err := compileWitness(p.tree.Witness())
	if err != nil {
		return nil, nil, common.Hash{}, err
	}
	return leaves, compiled, p.tree.Hash(), nil
}

// compileWitness encodes the node blobs ordered by node path.
func compileWitness(witness map[string][]byte) ([]byte, error) {
	paths := make([]string, 0, len(witness))
	for path := range witness {
		paths = append(paths, path)
	}
	sort.Strings(paths)
	nodes := make([][]byte, 0, len(paths))
	for _, path := range paths {
		nodes = append(nodes, witness[path])
	}
	return rlp.EncodeToBytes(nodes)
}
