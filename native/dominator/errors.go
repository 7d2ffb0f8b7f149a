package dominator

import (
	"errors"

	"clobsettle/native/bank"
)

var (
	ErrProofsUnsatisfied      = errors.New("dominator: proofs unsatisfied")
	ErrDominatorNotFound      = errors.New("dominator: dominator not found")
	ErrDominatorAlreadyExists = errors.New("dominator: dominator already exists")
	ErrDominatorStatusInvalid = errors.New("dominator: dominator status invalid")
	ErrDominatorInactive      = errors.New("dominator: dominator inactive")
	ErrDominatorEvicted       = errors.New("dominator: dominator evicted")
	ErrInsufficientBalance    = errors.New("dominator: insufficient balance")
	ErrOverflow               = errors.New("dominator: overflow")
	ErrReceiptNotExists       = errors.New("dominator: receipt not exists")
	ErrReceiptAlreadyExists   = errors.New("dominator: receipt already exists")
	ErrInvalidStaking         = errors.New("dominator: invalid staking")
	ErrLittleStakingAmount    = errors.New("dominator: staking amount too little")
	ErrInvalidName            = errors.New("dominator: invalid name")
	ErrTooEarlyToRegister     = errors.New("dominator: too early to register")
	ErrInvalidAmount          = errors.New("dominator: invalid amount")
	ErrUnauthorized           = errors.New("dominator: unauthorized")
)

// ledgerErr maps balance ledger failures onto the engine taxonomy so callers
// only need to match one set of sentinels.
func ledgerErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, bank.ErrInsufficientBalance):
		return ErrInsufficientBalance
	case errors.Is(err, bank.ErrOverflow):
		return ErrOverflow
	case errors.Is(err, bank.ErrInvalidAmount):
		return ErrInvalidAmount
	default:
		return err
	}
}
