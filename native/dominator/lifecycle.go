package dominator

import (
	"fmt"
	"math/big"

	gethtypes "github.com/ethereum/go-ethereum/core/types"

	"clobsettle/core/events"
	"clobsettle/observability/metrics"
)

const maxNameLength = 32

// ValidateName checks a dominator name: 1 to 32 characters of [a-z0-9-] that
// neither start nor end with a dash.
func ValidateName(name string) error {
	if len(name) == 0 || len(name) > maxNameLength {
		return ErrInvalidName
	}
	if name[0] == '-' || name[len(name)-1] == '-' {
		return ErrInvalidName
	}
	for i := 0; i < len(name); i++ {
		c := name[i]
		if (c >= 'a' && c <= 'z') || (c >= '0' && c <= '9') || c == '-' {
			continue
		}
		return ErrInvalidName
	}
	return nil
}

// Register creates a dominator operated by caller.
func (e *Engine) Register(caller [20]byte, name string) error {
	if err := ValidateName(name); err != nil {
		return err
	}
	return e.atomic(func() error {
		h := e.height()
		if h < e.params.RegisterGracePeriod {
			return ErrTooEarlyToRegister
		}
		st := e.store()
		if _, exists, err := st.dominator(caller); err != nil {
			return err
		} else if exists {
			return ErrDominatorAlreadyExists
		}
		taken, err := st.nameTaken(name)
		if err != nil {
			return err
		}
		if taken {
			return ErrDominatorAlreadyExists
		}
		d := &Dominator{
			Account:      caller,
			Name:         name,
			Staked:       big.NewInt(0),
			MerkleRoot:   gethtypes.EmptyRootHash,
			RegisteredAt: h,
			Status:       StatusRegistered,
		}
		if err := st.putDominator(d); err != nil {
			return err
		}
		if err := st.putName(name, caller); err != nil {
			return err
		}
		if err := st.appendIndex(caller); err != nil {
			return err
		}
		e.emit(events.DominatorRegistered{Dominator: caller, Name: name, Height: h})
		e.logger.Info("dominator registered", "dominator", fmt.Sprintf("%x", caller), "name", name, "height", h)
		return nil
	})
}

func (e *Engine) requireAuthority(caller [20]byte) error {
	if caller != e.params.Authority {
		return ErrUnauthorized
	}
	return nil
}

// Launch moves a registered dominator to Inactive, opening it for staking, and
// starts its season clock.
func (e *Engine) Launch(caller, dominator [20]byte) error {
	if err := e.requireAuthority(caller); err != nil {
		return err
	}
	return e.atomic(func() error {
		d, err := e.loadDominator(dominator)
		if err != nil {
			return err
		}
		if d.Status != StatusRegistered {
			return ErrDominatorStatusInvalid
		}
		h := e.height()
		d.Status = StatusInactive
		d.Launched = true
		d.StartFrom = h
		if err := e.store().putDominator(d); err != nil {
			return err
		}
		e.observe(func(m *metrics.SettlementMetrics) { m.ObserveTransition(StatusInactive.String()) })
		e.emit(events.DominatorLaunched{Dominator: dominator, StartFrom: h})
		e.logger.Info("dominator launched", "dominator", fmt.Sprintf("%x", dominator), "startFrom", h)
		return nil
	})
}

// Evict terminally disables a dominator. Stakers keep their positions and may
// still claim and unstake; users may revoke authorized funds directly.
func (e *Engine) Evict(caller, dominator [20]byte) error {
	if err := e.requireAuthority(caller); err != nil {
		return err
	}
	return e.atomic(func() error {
		d, err := e.loadDominator(dominator)
		if err != nil {
			return err
		}
		if d.Status == StatusEvicted {
			return ErrDominatorEvicted
		}
		d.Status = StatusEvicted
		if err := e.store().putDominator(d); err != nil {
			return err
		}
		h := e.height()
		e.observe(func(m *metrics.SettlementMetrics) { m.ObserveTransition(StatusEvicted.String()) })
		e.emit(events.DominatorEvicted{Dominator: dominator, Height: h})
		e.logger.Warn("dominator evicted", "dominator", fmt.Sprintf("%x", dominator), "height", h)
		return nil
	})
}

// refreshStatus flips Inactive and Active around the online threshold.
func (e *Engine) refreshStatus(d *Dominator) {
	var online bool
	switch {
	case d.Status == StatusInactive && d.Staked.Cmp(e.params.OnlineThreshold) >= 0:
		d.Status = StatusActive
		online = true
	case d.Status == StatusActive && d.Staked.Cmp(e.params.OnlineThreshold) < 0:
		d.Status = StatusInactive
	default:
		return
	}
	status := d.Status.String()
	e.observe(func(m *metrics.SettlementMetrics) { m.ObserveTransition(status) })
	e.emit(events.DominatorStatusChanged{Dominator: d.Account, Online: online, Staked: cloneBigInt(d.Staked)})
	e.logger.Info("dominator status changed", "dominator", fmt.Sprintf("%x", d.Account), "status", d.Status.String(), "staked", d.Staked.String())
}

// Authorize escrows amount of token for trading on dominator. The funds stay in
// a stash until the dominator proves the deposit with a TransferIn.
func (e *Engine) Authorize(user, dominator [20]byte, token uint32, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	return e.atomic(func() error {
		d, err := e.loadDominator(dominator)
		if err != nil {
			return err
		}
		switch d.Status {
		case StatusActive:
		case StatusEvicted:
			return ErrDominatorEvicted
		default:
			return ErrDominatorInactive
		}
		st := e.store()
		existing, err := st.receipt(dominator, user)
		if err != nil {
			return err
		}
		if existing != nil {
			return ErrReceiptAlreadyExists
		}
		if err := e.reservations().Reserve(PurposeAuthorizingStash, user, token, dominator, amount); err != nil {
			return err
		}
		if err := st.putReceipt(dominator, user, &Receipt{Kind: ReceiptAuthorize, Token: token, Amount: cloneBigInt(amount), Block: e.height()}); err != nil {
			return err
		}
		e.emit(events.DominatorAuthorized{Dominator: dominator, Account: user, Token: token, Amount: cloneBigInt(amount)})
		return nil
	})
}

// Revoke requests the withdrawal of authorized funds. Against an evicted
// dominator the funds are released immediately, see releaseEvicted.
func (e *Engine) Revoke(user, dominator [20]byte, token uint32, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	return e.atomic(func() error {
		d, err := e.loadDominator(dominator)
		if err != nil {
			return err
		}
		if d.Status == StatusEvicted {
			return e.releaseEvicted(user, dominator, token, amount)
		}
		res := e.reservations()
		st := e.store()
		existing, err := st.receipt(dominator, user)
		if err != nil {
			return err
		}
		if existing != nil {
			return ErrReceiptAlreadyExists
		}
		ok, err := res.HasAtLeast(PurposeAuthorizing, user, token, dominator, amount)
		if err != nil {
			return err
		}
		if !ok {
			return ErrInsufficientBalance
		}
		if err := st.putReceipt(dominator, user, &Receipt{Kind: ReceiptRevoke, Token: token, Amount: cloneBigInt(amount), Block: e.height()}); err != nil {
			return err
		}
		e.emit(events.DominatorRevoked{Dominator: dominator, Account: user, Token: token, Amount: cloneBigInt(amount)})
		return nil
	})
}

// releaseEvicted returns amount of token held for an evicted dominator to the
// user's free balance. The stash of an open Authorize receipt is drained
// before the authorized balance, and a receipt the dominator can no longer
// prove is dropped: a drained Authorize receipt or any Revoke receipt.
func (e *Engine) releaseEvicted(user, dominator [20]byte, token uint32, amount *big.Int) error {
	st := e.store()
	res := e.reservations()
	remaining := new(big.Int).Set(amount)
	receipt, err := st.receipt(dominator, user)
	if err != nil {
		return err
	}
	switch {
	case receipt == nil:
	case receipt.Kind == ReceiptAuthorize && receipt.Token == token:
		fromStash := new(big.Int).Set(receipt.Amount)
		if fromStash.Cmp(remaining) > 0 {
			fromStash.Set(remaining)
		}
		if err := res.Unreserve(PurposeAuthorizingStash, user, token, dominator, fromStash); err != nil {
			return err
		}
		remaining.Sub(remaining, fromStash)
		receipt.Amount = new(big.Int).Sub(receipt.Amount, fromStash)
		if receipt.Amount.Sign() == 0 {
			err = st.deleteReceipt(dominator, user)
		} else {
			err = st.putReceipt(dominator, user, receipt)
		}
		if err != nil {
			return err
		}
	case receipt.Kind == ReceiptRevoke:
		if err := st.deleteReceipt(dominator, user); err != nil {
			return err
		}
	}
	if err := res.Unreserve(PurposeAuthorizing, user, token, dominator, remaining); err != nil {
		return err
	}
	e.emit(events.DominatorRevoked{Dominator: dominator, Account: user, Token: token, Amount: cloneBigInt(amount), Direct: true})
	return nil
}
