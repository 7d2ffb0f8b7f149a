package bank

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/rlp"
	"github.com/stretchr/testify/require"
)

type mockStorage struct {
	kv map[string][]byte
}

func newMockStorage() *mockStorage {
	return &mockStorage{kv: make(map[string][]byte)}
}

func (m *mockStorage) KVPut(key []byte, value interface{}) error {
	encoded, err := rlp.EncodeToBytes(value)
	if err != nil {
		return err
	}
	m.kv[string(key)] = encoded
	return nil
}

func (m *mockStorage) KVGet(key []byte, out interface{}) (bool, error) {
	encoded, ok := m.kv[string(key)]
	if !ok {
		return false, nil
	}
	if out == nil {
		return true, nil
	}
	if err := rlp.DecodeBytes(encoded, out); err != nil {
		return false, err
	}
	return true, nil
}

func addr(index byte) [20]byte {
	var out [20]byte
	out[19] = index
	return out
}

func TestMintReserveUnreserve(t *testing.T) {
	ledger := NewLedger(newMockStorage())
	alice := addr(1)

	require.NoError(t, ledger.Mint(1, alice, big.NewInt(100)))
	issuance, err := ledger.TotalIssuance(1)
	require.NoError(t, err)
	require.Equal(t, "100", issuance.String())

	ok, err := ledger.CanReserve(1, alice, big.NewInt(101))
	require.NoError(t, err)
	require.False(t, ok)
	require.ErrorIs(t, ledger.Reserve(1, alice, big.NewInt(101)), ErrInsufficientBalance)

	require.NoError(t, ledger.Reserve(1, alice, big.NewInt(60)))
	bal, err := ledger.Balance(1, alice)
	require.NoError(t, err)
	require.Equal(t, "40", bal.Free.String())
	require.Equal(t, "60", bal.Reserved.String())

	require.ErrorIs(t, ledger.Unreserve(1, alice, big.NewInt(61)), ErrInsufficientBalance)
	require.NoError(t, ledger.Unreserve(1, alice, big.NewInt(10)))
	reserved, err := ledger.ReservedBalance(1, alice)
	require.NoError(t, err)
	require.Equal(t, "50", reserved.String())
	require.Equal(t, "100", bal.Total().String())
}

func TestRepatriateReservedToFreeAndReserved(t *testing.T) {
	ledger := NewLedger(newMockStorage())
	alice, bob := addr(1), addr(2)
	require.NoError(t, ledger.Mint(0, alice, big.NewInt(50)))
	require.NoError(t, ledger.Reserve(0, alice, big.NewInt(50)))

	require.NoError(t, ledger.RepatriateReserved(0, alice, bob, big.NewInt(20), StatusReserved))
	require.NoError(t, ledger.RepatriateReserved(0, alice, bob, big.NewInt(5), StatusFree))
	require.ErrorIs(t, ledger.RepatriateReserved(0, alice, bob, big.NewInt(26), StatusFree), ErrInsufficientBalance)

	bobBal, err := ledger.Balance(0, bob)
	require.NoError(t, err)
	require.Equal(t, "5", bobBal.Free.String())
	require.Equal(t, "20", bobBal.Reserved.String())
	aliceReserved, err := ledger.ReservedBalance(0, alice)
	require.NoError(t, err)
	require.Equal(t, "25", aliceReserved.String())
}

func TestTransferAndOverflow(t *testing.T) {
	ledger := NewLedger(newMockStorage())
	alice, bob := addr(1), addr(2)
	require.NoError(t, ledger.Mint(2, alice, big.NewInt(10)))
	require.ErrorIs(t, ledger.Transfer(2, alice, bob, big.NewInt(11)), ErrInsufficientBalance)
	require.NoError(t, ledger.Transfer(2, alice, bob, big.NewInt(4)))

	free, err := ledger.FreeBalance(2, bob)
	require.NoError(t, err)
	require.Equal(t, "4", free.String())

	require.ErrorIs(t, ledger.Mint(2, bob, MaxAmount), ErrOverflow)
	require.ErrorIs(t, ledger.Transfer(2, alice, bob, big.NewInt(-1)), ErrInvalidAmount)
}
