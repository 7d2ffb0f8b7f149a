package dominator

import (
	"errors"
	"fmt"
	"log/slog"
	"math/big"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"clobsettle/core/events"
	"clobsettle/native/bank"
	"clobsettle/observability/metrics"
)

var (
	errNilState  = errors.New("dominator engine: state not configured")
	errNilLedger = errors.New("dominator engine: ledger not configured")
)

type engineState interface {
	KVGet(key []byte, out interface{}) (bool, error)
	KVPut(key []byte, value interface{}) error
	KVDelete(key []byte) error
	KVAppend(key []byte, value []byte) error
	KVGetList(key []byte, out interface{}) error
	Atomic(fn func() error) error
}

// Ledger is the reservable balance ledger the engine settles against.
type Ledger interface {
	FreeBalance(token uint32, who [20]byte) (*big.Int, error)
	ReservedBalance(token uint32, who [20]byte) (*big.Int, error)
	Reserve(token uint32, who [20]byte, amount *big.Int) error
	Unreserve(token uint32, who [20]byte, amount *big.Int) error
	RepatriateReserved(token uint32, from, to [20]byte, amount *big.Int, status bank.BalanceStatus) error
	Transfer(token uint32, from, to [20]byte, amount *big.Int) error
}

// TradingRecorder receives the quote volume traded by every settled account.
type TradingRecorder interface {
	SaveTrading(account [20]byte, volume *big.Int, height uint64) error
}

// Engine verifies settlement proofs submitted by dominators and manages their
// lifecycle, staking and profit sharing. The state backend and the ledger must
// share one transactional store so that Atomic rolls back both.
//
// Engine is not safe for concurrent use.
type Engine struct {
	state    engineState
	ledger   Ledger
	rewards  TradingRecorder
	emitter  events.Emitter
	logger   *slog.Logger
	metrics  *metrics.SettlementMetrics
	params   Params
	heightFn func() uint64
	scope    *scope
}

// scope buffers the events and metric updates of one transaction until it
// commits. A rolled back transaction drops them.
type scope struct {
	effects []func()
}

// NewEngine creates an engine with default parameters, a no-op emitter and the
// default logger.
func NewEngine() *Engine {
	return &Engine{
		emitter:  events.NoopEmitter{},
		logger:   slog.Default(),
		params:   DefaultParams(),
		heightFn: func() uint64 { return 0 },
	}
}

// SetState configures the state backend used by the engine.
func (e *Engine) SetState(state engineState) { e.state = state }

// SetLedger configures the balance ledger.
func (e *Engine) SetLedger(ledger Ledger) { e.ledger = ledger }

// SetRewards configures the trading volume recorder. Nil disables recording.
func (e *Engine) SetRewards(rewards TradingRecorder) { e.rewards = rewards }

// SetMetrics configures the metrics sink. Nil disables metrics.
func (e *Engine) SetMetrics(m *metrics.SettlementMetrics) { e.metrics = m }

// SetParams validates and installs engine parameters.
func (e *Engine) SetParams(p Params) error {
	if err := p.Validate(); err != nil {
		return fmt.Errorf("dominator: invalid params: %w", err)
	}
	e.params = p
	return nil
}

// Params returns the active parameters.
func (e *Engine) Params() Params { return e.params }

// SetHeightFunc overrides the block height source.
func (e *Engine) SetHeightFunc(fn func() uint64) {
	if fn == nil {
		e.heightFn = func() uint64 { return 0 }
		return
	}
	e.heightFn = fn
}

// SetEmitter configures the event emitter used by the engine. Passing nil resets
// the emitter to a no-op implementation.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

// SetLogger configures the logger. Passing nil restores slog.Default.
func (e *Engine) SetLogger(logger *slog.Logger) {
	if logger == nil {
		e.logger = slog.Default()
		return
	}
	e.logger = logger
}

func (e *Engine) emit(event events.Event) {
	if e == nil || e.emitter == nil || event == nil {
		return
	}
	emitter := e.emitter
	e.deferred(func() { emitter.Emit(event) })
}

// observe records a metric update once the enclosing transaction commits.
func (e *Engine) observe(fn func(m *metrics.SettlementMetrics)) {
	if e.metrics == nil {
		return
	}
	m := e.metrics
	e.deferred(func() { fn(m) })
}

func (e *Engine) deferred(fn func()) {
	if e.scope == nil {
		fn()
		return
	}
	e.scope.effects = append(e.scope.effects, fn)
}

func (e *Engine) height() uint64 {
	if e.heightFn == nil {
		return 0
	}
	return e.heightFn()
}

func (e *Engine) ready() error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if e.ledger == nil {
		return errNilLedger
	}
	return nil
}

// atomic runs fn inside one state transaction after checking the engine is
// wired.
func (e *Engine) atomic(fn func() error) error {
	if err := e.ready(); err != nil {
		return err
	}
	return e.transact(fn)
}

// transact runs fn in a state transaction. Events and metric updates issued by
// fn are released in order when the outermost transaction commits.
func (e *Engine) transact(fn func() error) error {
	parent := e.scope
	current := &scope{}
	e.scope = current
	err := e.state.Atomic(fn)
	e.scope = parent
	if err != nil {
		return err
	}
	if parent != nil {
		parent.effects = append(parent.effects, current.effects...)
		return nil
	}
	for _, effect := range current.effects {
		effect()
	}
	return nil
}

func (e *Engine) store() store { return store{state: e.state} }

func (e *Engine) reservations() *Reservations {
	return &Reservations{store: e.store(), ledger: e.ledger}
}

func (e *Engine) loadDominator(account [20]byte) (*Dominator, error) {
	d, ok, err := e.store().dominator(account)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrDominatorNotFound
	}
	return d, nil
}

// Dominator returns the record of the dominator operated by account.
func (e *Engine) Dominator(account [20]byte) (*Dominator, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	return e.loadDominator(account)
}

// Dominators returns every registered dominator in registration order.
func (e *Engine) Dominators() ([]*Dominator, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	accounts, err := e.store().index()
	if err != nil {
		return nil, err
	}
	out := make([]*Dominator, 0, len(accounts))
	for _, a := range accounts {
		d, err := e.loadDominator(a)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, nil
}

// Receipt returns the pending receipt of user with dominator, or nil.
func (e *Engine) Receipt(dominator, user [20]byte) (*Receipt, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	return e.store().receipt(dominator, user)
}

// Staking returns the staking position of staker with dominator, or nil.
func (e *Engine) Staking(dominator, staker [20]byte) (*Staking, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	return e.store().staking(dominator, staker)
}

// Bonus returns the profit pool of a dominator season, or nil.
func (e *Engine) Bonus(dominator [20]byte, season uint64) (*Bonus, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	return e.store().bonus(dominator, season)
}

// Reserved returns the amount earmarked for purpose.
func (e *Engine) Reserved(p Purpose, owner [20]byte, token uint32, dominator [20]byte) (*big.Int, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	return e.reservations().Amount(p, owner, token, dominator)
}

// VaultAccount derives the account holding the fee revenue of a dominator
// until it is shared with stakers.
func VaultAccount(dominator [20]byte) [20]byte {
	var out [20]byte
	copy(out[:], ethcrypto.Keccak256([]byte("dominator/vault"), dominator[:])[12:])
	return out
}

func cloneBigInt(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(v)
}
