package dominator

import (
	"math/big"
	"sort"

	"github.com/ethereum/go-ethereum/common"
)

// Status enumerates the lifecycle states of a dominator.
type Status uint8

const (
	StatusRegistered Status = iota
	StatusInactive
	StatusActive
	StatusEvicted
)

// String implements fmt.Stringer.
func (s Status) String() string {
	switch s {
	case StatusRegistered:
		return "registered"
	case StatusInactive:
		return "inactive"
	case StatusActive:
		return "active"
	case StatusEvicted:
		return "evicted"
	default:
		return "unknown"
	}
}

// Dominator is the on-chain record of an off-chain matching engine operator.
type Dominator struct {
	Account      [20]byte
	Name         string
	Staked       *big.Int
	MerkleRoot   common.Hash
	RegisteredAt uint64
	Launched     bool
	// StartFrom is the block the dominator was launched at and the origin of
	// its season numbering. Meaningless unless Launched is set.
	StartFrom     uint64
	Sequence      uint64
	SequenceBlock uint64
	Status        Status
}

func (d *Dominator) ensureDefaults() {
	if d.Staked == nil {
		d.Staked = big.NewInt(0)
	}
}

// Purpose labels a reservation entry.
type Purpose uint8

const (
	PurposeStaking Purpose = iota + 1
	PurposeAuthorizing
	PurposeAuthorizingStash
	PurposePendingUnstake
)

// String implements fmt.Stringer.
func (p Purpose) String() string {
	switch p {
	case PurposeStaking:
		return "STAKING"
	case PurposeAuthorizing:
		return "AUTHORIZING"
	case PurposeAuthorizingStash:
		return "AUTHORIZING_STASH"
	case PurposePendingUnstake:
		return "PENDING_UNSTAKE"
	default:
		return "UNKNOWN"
	}
}

// ReceiptKind distinguishes deposit from withdrawal intents.
type ReceiptKind uint8

const (
	ReceiptAuthorize ReceiptKind = iota + 1
	ReceiptRevoke
)

// String implements fmt.Stringer.
func (k ReceiptKind) String() string {
	switch k {
	case ReceiptAuthorize:
		return "authorize"
	case ReceiptRevoke:
		return "revoke"
	default:
		return "unknown"
	}
}

// Receipt is a user's pending intent awaiting a settlement proof. At most one
// exists per dominator and user.
type Receipt struct {
	Kind   ReceiptKind
	Token  uint32
	Amount *big.Int
	Block  uint64
}

func (r *Receipt) matches(kind ReceiptKind, token uint32, amount *big.Int) bool {
	return r != nil && r.Kind == kind && r.Token == token && r.Amount != nil && r.Amount.Cmp(amount) == 0
}

// Staking tracks a staker's position with a dominator. FromSeasonAmount is the
// part of Amount that was staked when FromSeason's pool was snapshotted.
type Staking struct {
	FromSeason       uint64
	Amount           *big.Int
	FromSeasonAmount *big.Int
}

func (s *Staking) ensureDefaults() {
	if s.Amount == nil {
		s.Amount = big.NewInt(0)
	}
	if s.FromSeasonAmount == nil {
		s.FromSeasonAmount = big.NewInt(0)
	}
}

// TokenAmount pairs a token id with an amount.
type TokenAmount struct {
	Token  uint32
	Amount *big.Int
}

// Bonus is the profit pool of one dominator season.
type Bonus struct {
	Staked *big.Int
	Profit []TokenAmount
}

func (b *Bonus) ensureDefaults() {
	if b.Staked == nil {
		b.Staked = big.NewInt(0)
	}
}

// ProfitOf returns the profit accumulated for token.
func (b *Bonus) ProfitOf(token uint32) *big.Int {
	for _, p := range b.Profit {
		if p.Token == token && p.Amount != nil {
			return new(big.Int).Set(p.Amount)
		}
	}
	return big.NewInt(0)
}

// HasProfit reports whether any token accrued a non-zero profit.
func (b *Bonus) HasProfit() bool {
	for _, p := range b.Profit {
		if p.Amount != nil && p.Amount.Sign() > 0 {
			return true
		}
	}
	return false
}

func (b *Bonus) addProfit(token uint32, amount *big.Int) {
	for i := range b.Profit {
		if b.Profit[i].Token == token {
			b.Profit[i].Amount = new(big.Int).Add(b.Profit[i].Amount, amount)
			return
		}
	}
	b.Profit = append(b.Profit, TokenAmount{Token: token, Amount: new(big.Int).Set(amount)})
	sort.Slice(b.Profit, func(i, j int) bool { return b.Profit[i].Token < b.Profit[j].Token })
}

// PendingUnstake is a withdrawal held under PENDING_UNSTAKE until its unlock
// block.
type PendingUnstake struct {
	Dominator [20]byte
	Staker    [20]byte
	Amount    *big.Int
}

func addTokenAmount(list []TokenAmount, token uint32, amount *big.Int) []TokenAmount {
	if amount == nil || amount.Sign() == 0 {
		return list
	}
	for i := range list {
		if list[i].Token == token {
			list[i].Amount = new(big.Int).Add(list[i].Amount, amount)
			return list
		}
	}
	list = append(list, TokenAmount{Token: token, Amount: new(big.Int).Set(amount)})
	sort.Slice(list, func(i, j int) bool { return list[i].Token < list[j].Token })
	return list
}
