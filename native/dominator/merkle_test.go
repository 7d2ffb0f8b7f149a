package dominator

import (
	"testing"

	gethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/require"

	"clobsettle/storage"
	"clobsettle/storage/trie"
)

func newTestProver(t *testing.T) *Prover {
	t.Helper()
	tr, err := trie.NewTrie(storage.NewMemDB(), nil)
	require.NoError(t, err)
	return NewProver(tr)
}

func TestProverTransitionVerifies(t *testing.T) {
	p := newTestProver(t)
	require.Equal(t, gethtypes.EmptyRootHash, p.Root())

	first := []Update{
		{Key: AccountKey(alice, baseToken), Value: pack(t, 10, 0)},
		{Key: OrderbookKey(baseToken, quoteToken), Value: pack(t, 0, 4)},
	}
	leaves, compiled, root, err := p.Apply(first)
	require.NoError(t, err)
	require.NoError(t, VerifyTransition(compiled, gethtypes.EmptyRootHash, root, leaves))
	require.Equal(t, root, p.Root())

	second := []Update{
		{Key: AccountKey(alice, baseToken), Value: pack(t, 6, 4)},
		{Key: AccountKey(bob, baseToken), Value: pack(t, 3, 0)},
		{Key: OrderbookKey(baseToken, quoteToken), Value: [32]byte{}},
	}
	leaves, compiled, next, err := p.Apply(second)
	require.NoError(t, err)
	require.Equal(t, pack(t, 10, 0), leaves[0].Old)
	require.Equal(t, [32]byte{}, leaves[1].Old)
	require.NoError(t, VerifyTransition(compiled, root, next, leaves))

	v, err := p.Value(OrderbookKey(baseToken, quoteToken))
	require.NoError(t, err)
	require.Equal(t, [32]byte{}, v)

	// The same evidence does not hold against a different starting root.
	require.ErrorIs(t, VerifyTransition(compiled, gethtypes.EmptyRootHash, next, leaves), ErrProofsUnsatisfied)
}

func TestVerifyTransitionRejectsTampering(t *testing.T) {
	p := newTestProver(t)
	_, _, root, err := p.Apply([]Update{{Key: AccountKey(alice, baseToken), Value: pack(t, 10, 0)}})
	require.NoError(t, err)
	leaves, compiled, next, err := p.Apply([]Update{{Key: AccountKey(alice, baseToken), Value: pack(t, 5, 5)}})
	require.NoError(t, err)

	require.ErrorIs(t, VerifyTransition(compiled, root, next, nil), ErrProofsUnsatisfied)

	tampered := []Leaf{{Key: leaves[0].Key, Old: leaves[0].Old, New: pack(t, 6, 5)}}
	require.ErrorIs(t, VerifyTransition(compiled, root, next, tampered), ErrProofsUnsatisfied)

	dup := []Leaf{leaves[0], leaves[0]}
	require.ErrorIs(t, VerifyTransition(compiled, root, next, dup), ErrProofsUnsatisfied)

	require.ErrorIs(t, VerifyTransition([]byte{0x01, 0x02}, root, next, leaves), ErrProofsUnsatisfied)

	absent := []Leaf{{Key: AccountKey(bob, baseToken), New: pack(t, 1, 0)}}
	require.ErrorIs(t, VerifyTransition(compiled, gethtypes.EmptyRootHash, gethtypes.EmptyRootHash, absent), ErrProofsUnsatisfied)
}

func TestProverRejectsDuplicateUpdates(t *testing.T) {
	p := newTestProver(t)
	key := AccountKey(alice, baseToken)
	_, _, _, err := p.Apply([]Update{{Key: key, Value: pack(t, 1, 0)}, {Key: key, Value: pack(t, 2, 0)}})
	require.Error(t, err)
}

func TestVerifyTransitionRejectsUndeclaredChange(t *testing.T) {
	p := newTestProver(t)
	_, _, root, err := p.Apply([]Update{
		{Key: AccountKey(alice, quoteToken), Value: pack(t, 10, 0)},
		{Key: AccountKey(bob, quoteToken), Value: pack(t, 100, 0)},
	})
	require.NoError(t, err)

	leaves, compiled, next, err := p.Apply([]Update{
		{Key: AccountKey(alice, quoteToken), Value: pack(t, 60, 0)},
		{Key: AccountKey(bob, quoteToken), Value: [32]byte{}},
	})
	require.NoError(t, err)
	require.NoError(t, VerifyTransition(compiled, root, next, leaves))

	// Declaring only alice's slot must not carry bob's hidden deletion.
	require.ErrorIs(t, VerifyTransition(compiled, root, next, leaves[:1]), ErrProofsUnsatisfied)
	require.ErrorIs(t, VerifyTransition(compiled, root, next, leaves[1:]), ErrProofsUnsatisfied)
}

func TestVerifyTransitionReplaysDeletionsAcrossBranches(t *testing.T) {
	p := newTestProver(t)
	var seed []Update
	for i := byte(1); i <= 16; i++ {
		seed = append(seed, Update{Key: AccountKey(addr(i), baseToken), Value: pack(t, uint64(i), 0)})
	}
	_, _, root, err := p.Apply(seed)
	require.NoError(t, err)

	for i := byte(1); i <= 16; i++ {
		leaves, compiled, next, err := p.Apply([]Update{{Key: AccountKey(addr(i), baseToken), Value: [32]byte{}}})
		require.NoError(t, err)
		require.Equal(t, pack(t, uint64(i), 0), leaves[0].Old)
		require.NoError(t, VerifyTransition(compiled, root, next, leaves), "deleting slot %d", i)
		root = next
	}
	require.Equal(t, gethtypes.EmptyRootHash, root)
}
