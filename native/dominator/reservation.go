package dominator

import (
	"fmt"
	"math/big"

	"clobsettle/native/bank"
)

// Reservations tracks the amounts earmarked per (purpose, owner, token,
// dominator). Every entry is backed by an equal share of the owner's reserved
// balance on the bank ledger.
type Reservations struct {
	store  store
	ledger Ledger
}

// Amount returns the earmarked amount of an entry.
func (r *Reservations) Amount(p Purpose, owner [20]byte, token uint32, dominator [20]byte) (*big.Int, error) {
	return r.store.reservation(reservationKey(p, owner, token, dominator))
}

// HasAtLeast reports whether the entry holds at least amount.
func (r *Reservations) HasAtLeast(p Purpose, owner [20]byte, token uint32, dominator [20]byte, amount *big.Int) (bool, error) {
	current, err := r.Amount(p, owner, token, dominator)
	if err != nil {
		return false, err
	}
	return current.Cmp(amount) >= 0, nil
}

func (r *Reservations) adjust(p Purpose, owner [20]byte, token uint32, dominator [20]byte, delta *big.Int) error {
	key := reservationKey(p, owner, token, dominator)
	current, err := r.store.reservation(key)
	if err != nil {
		return err
	}
	current.Add(current, delta)
	if current.Sign() < 0 {
		return ErrInsufficientBalance
	}
	if current.Cmp(bank.MaxAmount) > 0 {
		return ErrOverflow
	}
	return r.store.putReservation(key, current)
}

// Reserve moves amount of the owner's free balance into reservation.
func (r *Reservations) Reserve(p Purpose, owner [20]byte, token uint32, dominator [20]byte, amount *big.Int) error {
	if amount.Sign() == 0 {
		return nil
	}
	if err := r.ledger.Reserve(token, owner, amount); err != nil {
		return fmt.Errorf("reserve %s: %w", p, ledgerErr(err))
	}
	return r.adjust(p, owner, token, dominator, amount)
}

// Unreserve returns amount of the entry to the owner's free balance.
func (r *Reservations) Unreserve(p Purpose, owner [20]byte, token uint32, dominator [20]byte, amount *big.Int) error {
	if amount.Sign() == 0 {
		return nil
	}
	if err := r.adjust(p, owner, token, dominator, new(big.Int).Neg(amount)); err != nil {
		return fmt.Errorf("unreserve %s: %w", p, err)
	}
	if err := r.ledger.Unreserve(token, owner, amount); err != nil {
		return fmt.Errorf("unreserve %s: %w", p, ledgerErr(err))
	}
	return nil
}

// Move relabels amount of an owner's earmark from one purpose to another. The
// bank ledger is untouched.
func (r *Reservations) Move(from, to Purpose, owner [20]byte, token uint32, dominator [20]byte, amount *big.Int) error {
	if amount.Sign() == 0 {
		return nil
	}
	if err := r.adjust(from, owner, token, dominator, new(big.Int).Neg(amount)); err != nil {
		return fmt.Errorf("move %s: %w", from, err)
	}
	return r.adjust(to, owner, token, dominator, amount)
}

// Repatriate moves amount of from's entry into to's entry of the same purpose,
// carrying the reserved balance along.
func (r *Reservations) Repatriate(p Purpose, from, to [20]byte, token uint32, dominator [20]byte, amount *big.Int) error {
	if amount.Sign() == 0 {
		return nil
	}
	if err := r.adjust(p, from, token, dominator, new(big.Int).Neg(amount)); err != nil {
		return fmt.Errorf("repatriate %s: %w", p, err)
	}
	if err := r.ledger.RepatriateReserved(token, from, to, amount, bank.StatusReserved); err != nil {
		return fmt.Errorf("repatriate %s: %w", p, ledgerErr(err))
	}
	return r.adjust(p, to, token, dominator, amount)
}

// RepatriateToFree moves amount of from's entry into the free balance of to.
func (r *Reservations) RepatriateToFree(p Purpose, from, to [20]byte, token uint32, dominator [20]byte, amount *big.Int) error {
	if amount.Sign() == 0 {
		return nil
	}
	if err := r.adjust(p, from, token, dominator, new(big.Int).Neg(amount)); err != nil {
		return fmt.Errorf("repatriate %s: %w", p, err)
	}
	if err := r.ledger.RepatriateReserved(token, from, to, amount, bank.StatusFree); err != nil {
		return fmt.Errorf("repatriate %s: %w", p, ledgerErr(err))
	}
	return nil
}
