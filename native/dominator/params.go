package dominator

import (
	"errors"
	"fmt"
	"math/big"
)

const (
	// FeeScale is the denominator of fee rates (parts per million).
	FeeScale = 1_000_000
	// PriceScale is the fixed-point scale of limit order prices (18 decimals).
	PriceScale = 1_000_000_000_000_000_000
)

// Params controls the dominator engine.
type Params struct {
	// RegisterGracePeriod is the first block height at which registration is
	// accepted.
	RegisterGracePeriod uint64
	// SeasonDuration is the number of blocks per profit-sharing season.
	SeasonDuration uint64
	// OnlineThreshold is the stake a dominator needs to be Active.
	OnlineThreshold *big.Int
	// MinimalStakingAmount bounds every non-zero staking position from below.
	MinimalStakingAmount *big.Int
	// AuthorizeTolerance is the absolute difference allowed between a
	// proven account total and the on-chain authorization.
	AuthorizeTolerance *big.Int
	// ToleranceOverrides replaces AuthorizeTolerance for specific tokens.
	ToleranceOverrides []TokenAmount
	// MaxSeasonsPerClaim caps the non-empty seasons paid by one ClaimShares.
	// Zero removes the cap.
	MaxSeasonsPerClaim uint64
	// UnstakeDelay is the number of blocks unstaked funds stay locked.
	UnstakeDelay uint64
	// MaxFeeRate bounds the maker and taker fee rates accepted in proofs.
	MaxFeeRate uint32
	// Authority may launch and evict dominators.
	Authority [20]byte
}

// DefaultParams returns the engine defaults.
func DefaultParams() Params {
	return Params{
		RegisterGracePeriod:  10,
		SeasonDuration:       100_800,
		OnlineThreshold:      big.NewInt(10_000),
		MinimalStakingAmount: big.NewInt(10),
		AuthorizeTolerance:   big.NewInt(1_000),
		MaxSeasonsPerClaim:   64,
		UnstakeDelay:         14_400,
		MaxFeeRate:           10_000,
	}
}

// Validate ensures the parameters fall within acceptable bounds.
func (p Params) Validate() error {
	if p.SeasonDuration == 0 {
		return errors.New("season duration must be positive")
	}
	if p.OnlineThreshold == nil || p.OnlineThreshold.Sign() <= 0 {
		return errors.New("online threshold must be positive")
	}
	if p.MinimalStakingAmount == nil || p.MinimalStakingAmount.Sign() <= 0 {
		return errors.New("minimal staking amount must be positive")
	}
	if p.MinimalStakingAmount.Cmp(p.OnlineThreshold) > 0 {
		return errors.New("minimal staking amount cannot exceed the online threshold")
	}
	if p.AuthorizeTolerance == nil || p.AuthorizeTolerance.Sign() < 0 {
		return errors.New("authorize tolerance cannot be negative")
	}
	seen := make(map[uint32]struct{}, len(p.ToleranceOverrides))
	for _, o := range p.ToleranceOverrides {
		if o.Amount == nil || o.Amount.Sign() < 0 {
			return fmt.Errorf("tolerance override for token %d cannot be negative", o.Token)
		}
		if _, dup := seen[o.Token]; dup {
			return fmt.Errorf("duplicate tolerance override for token %d", o.Token)
		}
		seen[o.Token] = struct{}{}
	}
	if p.MaxFeeRate > FeeScale {
		return fmt.Errorf("max fee rate must be <= %d", FeeScale)
	}
	if p.Authority == ([20]byte{}) {
		return errors.New("authority address must be set")
	}
	return nil
}

// Tolerance returns the authorize tolerance that applies to token.
func (p Params) Tolerance(token uint32) *big.Int {
	for _, o := range p.ToleranceOverrides {
		if o.Token == token && o.Amount != nil {
			return new(big.Int).Set(o.Amount)
		}
	}
	if p.AuthorizeTolerance == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(p.AuthorizeTolerance)
}
