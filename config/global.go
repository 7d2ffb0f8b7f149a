package config

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"clobsettle/native/dominator"
	"clobsettle/native/rewards"
)

func parseUintAmount(value string) (*big.Int, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return big.NewInt(0), nil
	}
	amount, ok := new(big.Int).SetString(trimmed, 10)
	if !ok {
		return nil, fmt.Errorf("invalid amount %q", value)
	}
	if amount.Sign() < 0 {
		return nil, fmt.Errorf("amount must not be negative")
	}
	return amount, nil
}

func parseAuthority(value string) ([20]byte, error) {
	trimmed := strings.TrimSpace(value)
	if !common.IsHexAddress(trimmed) {
		return [20]byte{}, fmt.Errorf("invalid address %q", value)
	}
	return common.HexToAddress(trimmed), nil
}

// Params converts the section into engine parameters.
func (d Dominator) Params() (dominator.Params, error) {
	p := dominator.Params{
		RegisterGracePeriod: d.RegisterGracePeriod,
		SeasonDuration:      d.SeasonDuration,
		MaxSeasonsPerClaim:  d.MaxSeasonsPerClaim,
		UnstakeDelay:        d.UnstakeDelay,
		MaxFeeRate:          d.MaxFeeRate,
	}
	var err error
	if p.OnlineThreshold, err = parseUintAmount(d.OnlineThreshold); err != nil {
		return p, fmt.Errorf("invalid Dominator.OnlineThreshold: %w", err)
	}
	if p.MinimalStakingAmount, err = parseUintAmount(d.MinimalStakingAmount); err != nil {
		return p, fmt.Errorf("invalid Dominator.MinimalStakingAmount: %w", err)
	}
	if p.AuthorizeTolerance, err = parseUintAmount(d.AuthorizeTolerance); err != nil {
		return p, fmt.Errorf("invalid Dominator.AuthorizeTolerance: %w", err)
	}
	for i, o := range d.ToleranceOverrides {
		amount, err := parseUintAmount(o.Amount)
		if err != nil {
			return p, fmt.Errorf("invalid Dominator.ToleranceOverrides[%d]: %w", i, err)
		}
		p.ToleranceOverrides = append(p.ToleranceOverrides, dominator.TokenAmount{Token: o.Token, Amount: amount})
	}
	if strings.TrimSpace(d.Authority) != "" {
		if p.Authority, err = parseAuthority(d.Authority); err != nil {
			return p, fmt.Errorf("invalid Dominator.Authority: %w", err)
		}
	}
	return p, nil
}

// Config converts the section into accumulator settings.
func (r Rewards) Config() rewards.Config {
	return rewards.Config{EraLength: r.EraLength}
}
