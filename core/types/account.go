package types

import "math/big"

// TokenBalance is the per-token balance of an account: a freely spendable
// part and a part reserved by a module on the account's behalf.
type TokenBalance struct {
	Free     *big.Int `json:"free"`
	Reserved *big.Int `json:"reserved"`
}

// NewTokenBalance returns a zeroed balance.
func NewTokenBalance() *TokenBalance {
	return &TokenBalance{Free: big.NewInt(0), Reserved: big.NewInt(0)}
}

// Total returns free plus reserved.
func (b *TokenBalance) Total() *big.Int {
	if b == nil {
		return big.NewInt(0)
	}
	total := new(big.Int)
	if b.Free != nil {
		total.Add(total, b.Free)
	}
	if b.Reserved != nil {
		total.Add(total, b.Reserved)
	}
	return total
}

// Clone returns a deep copy with nil amounts normalised to zero.
func (b *TokenBalance) Clone() *TokenBalance {
	clone := NewTokenBalance()
	if b == nil {
		return clone
	}
	if b.Free != nil {
		clone.Free.Set(b.Free)
	}
	if b.Reserved != nil {
		clone.Reserved.Set(b.Reserved)
	}
	return clone
}
