package config

// TokenTolerance overrides the authorize tolerance for one token.
type TokenTolerance struct {
	Token  uint32 `toml:"Token"`
	Amount string `toml:"Amount"`
}

// Dominator captures the settlement engine parameters. Amounts are decimal
// strings so they are not bounded by TOML's 64-bit integers.
type Dominator struct {
	RegisterGracePeriod  uint64           `toml:"RegisterGracePeriod"`
	SeasonDuration       uint64           `toml:"SeasonDuration"`
	OnlineThreshold      string           `toml:"OnlineThreshold"`
	MinimalStakingAmount string           `toml:"MinimalStakingAmount"`
	AuthorizeTolerance   string           `toml:"AuthorizeTolerance"`
	ToleranceOverrides   []TokenTolerance `toml:"ToleranceOverrides"`
	MaxSeasonsPerClaim   uint64           `toml:"MaxSeasonsPerClaim"`
	UnstakeDelay         uint64           `toml:"UnstakeDelay"`
	MaxFeeRate           uint32           `toml:"MaxFeeRate"`
	// Authority is the 0x-prefixed hex address allowed to launch and evict.
	Authority string `toml:"Authority"`
}

// Rewards configures the trading volume accumulator.
type Rewards struct {
	EraLength uint64 `toml:"EraLength"`
}
