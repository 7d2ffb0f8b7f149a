package dominator

import (
	"fmt"
	"math/big"

	"clobsettle/core/events"
	"clobsettle/native/bank"
	"clobsettle/observability/metrics"
)

// Stake locks amount of the native token behind dominator on behalf of staker.
func (e *Engine) Stake(staker, dominator [20]byte, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidStaking
	}
	return e.atomic(func() error {
		d, err := e.loadDominator(dominator)
		if err != nil {
			return err
		}
		switch d.Status {
		case StatusEvicted:
			return ErrDominatorEvicted
		case StatusRegistered:
			return ErrDominatorStatusInvalid
		}
		current := e.seasonAt(d, e.height())
		if _, err := e.ensureBonus(d, current); err != nil {
			return err
		}
		st := e.store()
		position, err := st.staking(dominator, staker)
		if err != nil {
			return err
		}
		if position == nil {
			position = &Staking{FromSeason: current, Amount: big.NewInt(0), FromSeasonAmount: big.NewInt(0)}
		} else if _, err := e.takeShares(d, staker, position, current, 0); err != nil {
			return err
		}
		total := new(big.Int).Add(position.Amount, amount)
		if total.Cmp(e.params.MinimalStakingAmount) < 0 {
			return ErrLittleStakingAmount
		}
		if err := e.reservations().Reserve(PurposeStaking, staker, bank.NativeToken, dominator, amount); err != nil {
			return err
		}
		position.Amount = total
		if err := st.putStaking(dominator, staker, position); err != nil {
			return err
		}
		d.Staked = new(big.Int).Add(d.Staked, amount)
		e.refreshStatus(d)
		if err := st.putDominator(d); err != nil {
			return err
		}
		name, staked := d.Name, cloneBigInt(d.Staked)
		e.observe(func(m *metrics.SettlementMetrics) { m.SetStaked(name, staked) })
		e.emit(events.DominatorStaked{Dominator: dominator, Staker: staker, Amount: cloneBigInt(amount), Total: cloneBigInt(total)})
		return nil
	})
}

// Unstake withdraws amount of staker's position. The funds stay reserved as a
// pending unstake for UnstakeDelay blocks.
func (e *Engine) Unstake(staker, dominator [20]byte, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidStaking
	}
	return e.atomic(func() error {
		d, err := e.loadDominator(dominator)
		if err != nil {
			return err
		}
		st := e.store()
		position, err := st.staking(dominator, staker)
		if err != nil {
			return err
		}
		if position == nil {
			return ErrInvalidStaking
		}
		if position.Amount.Cmp(amount) < 0 {
			return ErrInsufficientBalance
		}
		remainder := new(big.Int).Sub(position.Amount, amount)
		if remainder.Sign() > 0 && remainder.Cmp(e.params.MinimalStakingAmount) < 0 {
			return ErrLittleStakingAmount
		}
		h := e.height()
		current := e.seasonAt(d, h)
		if d.Launched {
			if _, err := e.ensureBonus(d, current); err != nil {
				return err
			}
		}
		if _, err := e.takeShares(d, staker, position, current, 0); err != nil {
			return err
		}
		position.Amount = remainder
		if position.FromSeasonAmount.Cmp(remainder) > 0 {
			position.FromSeasonAmount = cloneBigInt(remainder)
		}
		if err := st.putStaking(dominator, staker, position); err != nil {
			return err
		}
		res := e.reservations()
		if err := res.Move(PurposeStaking, PurposePendingUnstake, staker, bank.NativeToken, dominator, amount); err != nil {
			return err
		}
		unlockAt := h + e.params.UnstakeDelay
		if e.params.UnstakeDelay == 0 {
			if err := res.Unreserve(PurposePendingUnstake, staker, bank.NativeToken, dominator, amount); err != nil {
				return err
			}
		} else {
			if err := st.enqueueUnstake(unlockAt, PendingUnstake{Dominator: dominator, Staker: staker, Amount: cloneBigInt(amount)}); err != nil {
				return err
			}
		}
		d.Staked = new(big.Int).Sub(d.Staked, amount)
		if d.Staked.Sign() < 0 {
			return fmt.Errorf("dominator: stake underflow for %x", dominator)
		}
		e.refreshStatus(d)
		if err := st.putDominator(d); err != nil {
			return err
		}
		name, staked := d.Name, cloneBigInt(d.Staked)
		e.observe(func(m *metrics.SettlementMetrics) { m.SetStaked(name, staked) })
		e.emit(events.DominatorUnstaked{Dominator: dominator, Staker: staker, Amount: cloneBigInt(amount), UnlockAt: unlockAt})
		return nil
	})
}
