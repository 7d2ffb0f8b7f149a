package events

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"clobsettle/core/types"
)

const (
	// TypeDominatorRegistered is emitted when an operator registers a dominator.
	TypeDominatorRegistered = "dominator.registered"
	// TypeDominatorLaunched is emitted when the authority launches a dominator.
	TypeDominatorLaunched = "dominator.launched"
	// TypeDominatorEvicted is emitted when the authority evicts a dominator.
	TypeDominatorEvicted = "dominator.evicted"
	// TypeDominatorOnline is emitted when the stake crosses the online threshold.
	TypeDominatorOnline = "dominator.online"
	// TypeDominatorOffline is emitted when the stake falls below the online threshold.
	TypeDominatorOffline = "dominator.offline"
	// TypeDominatorStaked captures a stake added on behalf of a staker.
	TypeDominatorStaked = "dominator.staked"
	// TypeDominatorUnstaked captures a stake withdrawal entering the unlock queue.
	TypeDominatorUnstaked = "dominator.unstaked"
	// TypeDominatorUnstakeReleased is emitted when a queued withdrawal unlocks.
	TypeDominatorUnstakeReleased = "dominator.unstake.released"
	// TypeDominatorSharesClaimed captures profit paid out to a staker.
	TypeDominatorSharesClaimed = "dominator.shares.claimed"
	// TypeDominatorAuthorized is emitted when a user escrows funds for trading.
	TypeDominatorAuthorized = "dominator.authorized"
	// TypeDominatorRevoked is emitted when a user requests a withdrawal.
	TypeDominatorRevoked = "dominator.revoked"
	// TypeDominatorProofAccepted is emitted for every proof the engine accepts.
	TypeDominatorProofAccepted = "dominator.proof.accepted"
	// TypeDominatorFeeCredited captures fee revenue credited to a season pool.
	TypeDominatorFeeCredited = "dominator.fee.credited"
)

// DominatorRegistered records a new dominator.
type DominatorRegistered struct {
	Dominator [20]byte
	Name      string
	Height    uint64
}

// EventType satisfies the Event interface.
func (DominatorRegistered) EventType() string { return TypeDominatorRegistered }

// Event converts the structured payload into a broadcastable event.
func (e DominatorRegistered) Event() *types.Event {
	return &types.Event{Type: TypeDominatorRegistered, Attributes: map[string]string{
		"dominator": formatAddress(e.Dominator),
		"name":      e.Name,
		"height":    formatUint(e.Height),
	}}
}

// DominatorLaunched records the block the dominator's seasons start from.
type DominatorLaunched struct {
	Dominator [20]byte
	StartFrom uint64
}

// EventType satisfies the Event interface.
func (DominatorLaunched) EventType() string { return TypeDominatorLaunched }

// Event converts the structured payload into a broadcastable event.
func (e DominatorLaunched) Event() *types.Event {
	return &types.Event{Type: TypeDominatorLaunched, Attributes: map[string]string{
		"dominator": formatAddress(e.Dominator),
		"startFrom": formatUint(e.StartFrom),
	}}
}

// DominatorEvicted records a terminal eviction.
type DominatorEvicted struct {
	Dominator [20]byte
	Height    uint64
}

// EventType satisfies the Event interface.
func (DominatorEvicted) EventType() string { return TypeDominatorEvicted }

// Event converts the structured payload into a broadcastable event.
func (e DominatorEvicted) Event() *types.Event {
	return &types.Event{Type: TypeDominatorEvicted, Attributes: map[string]string{
		"dominator": formatAddress(e.Dominator),
		"height":    formatUint(e.Height),
	}}
}

// DominatorStatusChanged captures an online or offline transition.
type DominatorStatusChanged struct {
	Dominator [20]byte
	Online    bool
	Staked    *big.Int
}

// EventType satisfies the Event interface.
func (e DominatorStatusChanged) EventType() string {
	if e.Online {
		return TypeDominatorOnline
	}
	return TypeDominatorOffline
}

// Event converts the structured payload into a broadcastable event.
func (e DominatorStatusChanged) Event() *types.Event {
	return &types.Event{Type: e.EventType(), Attributes: map[string]string{
		"dominator": formatAddress(e.Dominator),
		"staked":    formatAmount(e.Staked),
	}}
}

// DominatorStaked captures the stake delta applied for a staker.
type DominatorStaked struct {
	Dominator [20]byte
	Staker    [20]byte
	Amount    *big.Int
	Total     *big.Int
}

// EventType satisfies the Event interface.
func (DominatorStaked) EventType() string { return TypeDominatorStaked }

// Event converts the structured payload into a broadcastable event.
func (e DominatorStaked) Event() *types.Event {
	return &types.Event{Type: TypeDominatorStaked, Attributes: map[string]string{
		"dominator": formatAddress(e.Dominator),
		"staker":    formatAddress(e.Staker),
		"amount":    formatAmount(e.Amount),
		"total":     formatAmount(e.Total),
	}}
}

// DominatorUnstaked captures a withdrawal queued until UnlockAt.
type DominatorUnstaked struct {
	Dominator [20]byte
	Staker    [20]byte
	Amount    *big.Int
	UnlockAt  uint64
}

// EventType satisfies the Event interface.
func (DominatorUnstaked) EventType() string { return TypeDominatorUnstaked }

// Event converts the structured payload into a broadcastable event.
func (e DominatorUnstaked) Event() *types.Event {
	return &types.Event{Type: TypeDominatorUnstaked, Attributes: map[string]string{
		"dominator": formatAddress(e.Dominator),
		"staker":    formatAddress(e.Staker),
		"amount":    formatAmount(e.Amount),
		"unlockAt":  formatUint(e.UnlockAt),
	}}
}

// DominatorUnstakeReleased captures a matured withdrawal returned to the staker.
type DominatorUnstakeReleased struct {
	Dominator [20]byte
	Staker    [20]byte
	Amount    *big.Int
}

// EventType satisfies the Event interface.
func (DominatorUnstakeReleased) EventType() string { return TypeDominatorUnstakeReleased }

// Event converts the structured payload into a broadcastable event.
func (e DominatorUnstakeReleased) Event() *types.Event {
	return &types.Event{Type: TypeDominatorUnstakeReleased, Attributes: map[string]string{
		"dominator": formatAddress(e.Dominator),
		"staker":    formatAddress(e.Staker),
		"amount":    formatAmount(e.Amount),
	}}
}

// DominatorSharesClaimed captures the profit paid to a staker in one token.
type DominatorSharesClaimed struct {
	Dominator  [20]byte
	Staker     [20]byte
	Token      uint32
	Amount     *big.Int
	FromSeason uint64
}

// EventType satisfies the Event interface.
func (DominatorSharesClaimed) EventType() string { return TypeDominatorSharesClaimed }

// Event converts the structured payload into a broadcastable event.
func (e DominatorSharesClaimed) Event() *types.Event {
	return &types.Event{Type: TypeDominatorSharesClaimed, Attributes: map[string]string{
		"dominator":  formatAddress(e.Dominator),
		"staker":     formatAddress(e.Staker),
		"token":      formatUint(uint64(e.Token)),
		"amount":     formatAmount(e.Amount),
		"fromSeason": formatUint(e.FromSeason),
	}}
}

// DominatorAuthorized records funds escrowed by a user for off-chain trading.
type DominatorAuthorized struct {
	Dominator [20]byte
	Account   [20]byte
	Token     uint32
	Amount    *big.Int
}

// EventType satisfies the Event interface.
func (DominatorAuthorized) EventType() string { return TypeDominatorAuthorized }

// Event converts the structured payload into a broadcastable event.
func (e DominatorAuthorized) Event() *types.Event {
	return &types.Event{Type: TypeDominatorAuthorized, Attributes: map[string]string{
		"dominator": formatAddress(e.Dominator),
		"account":   formatAddress(e.Account),
		"token":     formatUint(uint64(e.Token)),
		"amount":    formatAmount(e.Amount),
	}}
}

// DominatorRevoked records a withdrawal request. Direct is set when the
// dominator was evicted and the funds were released without a proof.
type DominatorRevoked struct {
	Dominator [20]byte
	Account   [20]byte
	Token     uint32
	Amount    *big.Int
	Direct    bool
}

// EventType satisfies the Event interface.
func (DominatorRevoked) EventType() string { return TypeDominatorRevoked }

// Event converts the structured payload into a broadcastable event.
func (e DominatorRevoked) Event() *types.Event {
	attrs := map[string]string{
		"dominator": formatAddress(e.Dominator),
		"account":   formatAddress(e.Account),
		"token":     formatUint(uint64(e.Token)),
		"amount":    formatAmount(e.Amount),
	}
	if e.Direct {
		attrs["direct"] = "true"
	}
	return &types.Event{Type: TypeDominatorRevoked, Attributes: attrs}
}

// DominatorProofAccepted records an accepted proof and the root it advanced to.
type DominatorProofAccepted struct {
	Dominator [20]byte
	Account   [20]byte
	EventID   uint64
	Command   string
	Root      common.Hash
}

// EventType satisfies the Event interface.
func (DominatorProofAccepted) EventType() string { return TypeDominatorProofAccepted }

// Event converts the structured payload into a broadcastable event.
func (e DominatorProofAccepted) Event() *types.Event {
	attrs := map[string]string{
		"dominator": formatAddress(e.Dominator),
		"eventId":   formatUint(e.EventID),
		"command":   e.Command,
		"root":      e.Root.Hex(),
	}
	if !zeroAddress(e.Account) {
		attrs["account"] = formatAddress(e.Account)
	}
	return &types.Event{Type: TypeDominatorProofAccepted, Attributes: attrs}
}

// DominatorFeeCredited captures fee revenue added to a season's pool.
type DominatorFeeCredited struct {
	Dominator [20]byte
	Season    uint64
	Token     uint32
	Amount    *big.Int
}

// EventType satisfies the Event interface.
func (DominatorFeeCredited) EventType() string { return TypeDominatorFeeCredited }

// Event converts the structured payload into a broadcastable event.
func (e DominatorFeeCredited) Event() *types.Event {
	return &types.Event{Type: TypeDominatorFeeCredited, Attributes: map[string]string{
		"dominator": formatAddress(e.Dominator),
		"season":    formatUint(e.Season),
		"token":     formatUint(uint64(e.Token)),
		"amount":    formatAmount(e.Amount),
	}}
}
