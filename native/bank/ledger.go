package bank

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math/big"

	"clobsettle/core/types"
)

var (
	// ErrInsufficientBalance is returned when a free or reserved balance cannot
	// cover the requested amount.
	ErrInsufficientBalance = errors.New("bank: insufficient balance")
	// ErrOverflow is returned when a balance or the issuance would exceed the
	// 128-bit amount range.
	ErrOverflow = errors.New("bank: amount overflow")
	// ErrInvalidAmount is returned for nil or negative amounts.
	ErrInvalidAmount = errors.New("bank: invalid amount")
)

// MaxAmount is the largest representable balance (2^128 - 1).
var MaxAmount = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 128), big.NewInt(1))

// NativeToken is the token id of the chain's native currency.
const NativeToken uint32 = 0

// BalanceStatus selects which side of the destination balance receives a
// repatriated amount.
type BalanceStatus uint8

const (
	StatusFree BalanceStatus = iota
	StatusReserved
)

// Storage abstracts the subset of state manager functionality required by the
// ledger.
type Storage interface {
	KVGet(key []byte, out interface{}) (bool, error)
	KVPut(key []byte, value interface{}) error
}

var (
	balancePrefix  = []byte("bank/balance/")
	issuancePrefix = []byte("bank/issuance/")
)

type storedBalance struct {
	Free     *big.Int
	Reserved *big.Int
}

func balanceKey(token uint32, who [20]byte) []byte {
	buf := make([]byte, len(balancePrefix)+4+len(who))
	copy(buf, balancePrefix)
	binary.BigEndian.PutUint32(buf[len(balancePrefix):], token)
	copy(buf[len(balancePrefix)+4:], who[:])
	return buf
}

func issuanceKey(token uint32) []byte {
	buf := make([]byte, len(issuancePrefix)+4)
	copy(buf, issuancePrefix)
	binary.BigEndian.PutUint32(buf[len(issuancePrefix):], token)
	return buf
}

// Ledger is a multi-token balance ledger whose accounts carry a free and a
// reserved balance. Native and auxiliary tokens share one interface.
type Ledger struct {
	store Storage
}

// NewLedger constructs a ledger bound to the provided storage backend.
func NewLedger(store Storage) *Ledger {
	return &Ledger{store: store}
}

func checkAmount(amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return ErrInvalidAmount
	}
	if amount.Cmp(MaxAmount) > 0 {
		return ErrOverflow
	}
	return nil
}

func (l *Ledger) load(token uint32, who [20]byte) (*types.TokenBalance, error) {
	if l == nil || l.store == nil {
		return nil, fmt.Errorf("bank: ledger not initialised")
	}
	var stored storedBalance
	ok, err := l.store.KVGet(balanceKey(token, who), &stored)
	if err != nil {
		return nil, fmt.Errorf("bank: load balance: %w", err)
	}
	if !ok {
		return types.NewTokenBalance(), nil
	}
	return (&types.TokenBalance{Free: stored.Free, Reserved: stored.Reserved}).Clone(), nil
}

func (l *Ledger) save(token uint32, who [20]byte, bal *types.TokenBalance) error {
	if bal.Free.Cmp(MaxAmount) > 0 || bal.Reserved.Cmp(MaxAmount) > 0 {
		return ErrOverflow
	}
	return l.store.KVPut(balanceKey(token, who), storedBalance{Free: bal.Free, Reserved: bal.Reserved})
}

// Balance returns a copy of the account's balance for token.
func (l *Ledger) Balance(token uint32, who [20]byte) (*types.TokenBalance, error) {
	return l.load(token, who)
}

// FreeBalance returns the spendable balance.
func (l *Ledger) FreeBalance(token uint32, who [20]byte) (*big.Int, error) {
	bal, err := l.load(token, who)
	if err != nil {
		return nil, err
	}
	return bal.Free, nil
}

// ReservedBalance returns the total reserved balance across all purposes.
func (l *Ledger) ReservedBalance(token uint32, who [20]byte) (*big.Int, error) {
	bal, err := l.load(token, who)
	if err != nil {
		return nil, err
	}
	return bal.Reserved, nil
}

// TotalIssuance returns the amount of token minted so far.
func (l *Ledger) TotalIssuance(token uint32) (*big.Int, error) {
	if l == nil || l.store == nil {
		return nil, fmt.Errorf("bank: ledger not initialised")
	}
	issuance := new(big.Int)
	if _, err := l.store.KVGet(issuanceKey(token), issuance); err != nil {
		return nil, fmt.Errorf("bank: load issuance: %w", err)
	}
	return issuance, nil
}

// Mint credits amount to the free balance of who and increases issuance.
func (l *Ledger) Mint(token uint32, who [20]byte, amount *big.Int) error {
	if err := checkAmount(amount); err != nil {
		return err
	}
	issuance, err := l.TotalIssuance(token)
	if err != nil {
		return err
	}
	issuance.Add(issuance, amount)
	if issuance.Cmp(MaxAmount) > 0 {
		return ErrOverflow
	}
	if err := l.MutateAccount(token, who, func(bal *types.TokenBalance) error {
		bal.Free.Add(bal.Free, amount)
		return nil
	}); err != nil {
		return err
	}
	return l.store.KVPut(issuanceKey(token), issuance)
}

// MutateAccount loads the balance, applies fn and persists the result when fn
// succeeds. Negative results are rejected.
func (l *Ledger) MutateAccount(token uint32, who [20]byte, fn func(*types.TokenBalance) error) error {
	bal, err := l.load(token, who)
	if err != nil {
		return err
	}
	if err := fn(bal); err != nil {
		return err
	}
	if bal.Free.Sign() < 0 || bal.Reserved.Sign() < 0 {
		return ErrInsufficientBalance
	}
	return l.save(token, who, bal)
}

// CanReserve reports whether the free balance covers amount.
func (l *Ledger) CanReserve(token uint32, who [20]byte, amount *big.Int) (bool, error) {
	if err := checkAmount(amount); err != nil {
		return false, err
	}
	free, err := l.FreeBalance(token, who)
	if err != nil {
		return false, err
	}
	return free.Cmp(amount) >= 0, nil
}

// Reserve moves amount from the free to the reserved balance.
func (l *Ledger) Reserve(token uint32, who [20]byte, amount *big.Int) error {
	if err := checkAmount(amount); err != nil {
		return err
	}
	return l.MutateAccount(token, who, func(bal *types.TokenBalance) error {
		if bal.Free.Cmp(amount) < 0 {
			return ErrInsufficientBalance
		}
		bal.Free.Sub(bal.Free, amount)
		bal.Reserved.Add(bal.Reserved, amount)
		return nil
	})
}

// Unreserve moves amount from the reserved back to the free balance.
func (l *Ledger) Unreserve(token uint32, who [20]byte, amount *big.Int) error {
	if err := checkAmount(amount); err != nil {
		return err
	}
	return l.MutateAccount(token, who, func(bal *types.TokenBalance) error {
		if bal.Reserved.Cmp(amount) < 0 {
			return ErrInsufficientBalance
		}
		bal.Reserved.Sub(bal.Reserved, amount)
		bal.Free.Add(bal.Free, amount)
		return nil
	})
}

// RepatriateReserved moves amount out of the reserved balance of from into
// either the free or the reserved balance of to.
func (l *Ledger) RepatriateReserved(token uint32, from, to [20]byte, amount *big.Int, status BalanceStatus) error {
	if err := checkAmount(amount); err != nil {
		return err
	}
	if amount.Sign() == 0 {
		return nil
	}
	if err := l.MutateAccount(token, from, func(bal *types.TokenBalance) error {
		if bal.Reserved.Cmp(amount) < 0 {
			return ErrInsufficientBalance
		}
		bal.Reserved.Sub(bal.Reserved, amount)
		return nil
	}); err != nil {
		return err
	}
	return l.MutateAccount(token, to, func(bal *types.TokenBalance) error {
		switch status {
		case StatusFree:
			bal.Free.Add(bal.Free, amount)
		case StatusReserved:
			bal.Reserved.Add(bal.Reserved, amount)
		default:
			return fmt.Errorf("bank: unknown balance status %d", status)
		}
		return nil
	})
}

// Transfer moves amount between free balances.
func (l *Ledger) Transfer(token uint32, from, to [20]byte, amount *big.Int) error {
	if err := checkAmount(amount); err != nil {
		return err
	}
	if amount.Sign() == 0 || from == to {
		return nil
	}
	if err := l.MutateAccount(token, from, func(bal *types.TokenBalance) error {
		if bal.Free.Cmp(amount) < 0 {
			return ErrInsufficientBalance
		}
		bal.Free.Sub(bal.Free, amount)
		return nil
	}); err != nil {
		return err
	}
	return l.MutateAccount(token, to, func(bal *types.TokenBalance) error {
		bal.Free.Add(bal.Free, amount)
		return nil
	})
}
