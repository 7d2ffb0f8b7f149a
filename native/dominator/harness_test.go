package dominator

import (
	"io"
	"log/slog"
	"math/big"
	"testing"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"

	"clobsettle/core/events"
	"clobsettle/core/state"
	"clobsettle/native/bank"
	"clobsettle/native/rewards"
	"clobsettle/observability/logging"
	"clobsettle/storage"
	"clobsettle/storage/trie"
)

const (
	baseToken  uint32 = 1
	quoteToken uint32 = 2
	testPrice         = 2_000_000_000_000_000_000
)

var (
	authority = addr(0xaa)
	operator  = addr(0xd0)
	staker    = addr(0x51)
	alice     = addr(0x01)
	bob       = addr(0x02)
)

func addr(b byte) [20]byte {
	var out [20]byte
	out[19] = b
	return out
}

func testParams() Params {
	return Params{
		RegisterGracePeriod:  10,
		SeasonDuration:       100,
		OnlineThreshold:      big.NewInt(10_000),
		MinimalStakingAmount: big.NewInt(10),
		AuthorizeTolerance:   big.NewInt(0),
		MaxSeasonsPerClaim:   2,
		UnstakeDelay:         5,
		MaxFeeRate:           10_000,
		Authority:            authority,
	}
}

type harness struct {
	t       *testing.T
	state   *state.Manager
	ledger  *bank.Ledger
	engine  *Engine
	prover  *Prover
	events  *events.Recorder
	volume  *rewards.Accumulator
	height  uint64
	eventID uint64
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	tr, err := trie.NewTrie(storage.NewMemDB(), nil)
	require.NoError(t, err)
	offchain, err := trie.NewTrie(storage.NewMemDB(), nil)
	require.NoError(t, err)
	mgr := state.NewManager(tr)
	acc, err := rewards.NewAccumulator(mgr, rewards.Config{EraLength: 1000})
	require.NoError(t, err)

	h := &harness{
		t:      t,
		state:  mgr,
		ledger: bank.NewLedger(mgr),
		prover: NewProver(offchain),
		events: &events.Recorder{},
		volume: acc,
	}
	h.engine = NewEngine()
	h.engine.SetState(mgr)
	h.engine.SetLedger(h.ledger)
	h.engine.SetRewards(acc)
	h.engine.SetEmitter(h.events)
	h.engine.SetLogger(logging.New(io.Discard, "dominator-test", "", slog.LevelDebug))
	h.engine.SetHeightFunc(func() uint64 { return h.height })
	require.NoError(t, h.engine.SetParams(testParams()))
	return h
}

func (h *harness) mint(token uint32, who [20]byte, amount int64) {
	h.t.Helper()
	require.NoError(h.t, h.ledger.Mint(token, who, big.NewInt(amount)))
}

// activate registers, launches and stakes the operator up to the online
// threshold at block 15.
func (h *harness) activate() {
	h.t.Helper()
	h.height = 15
	require.NoError(h.t, h.engine.Register(operator, "alice-exchange"))
	require.NoError(h.t, h.engine.Launch(authority, operator))
	h.mint(bank.NativeToken, staker, 20_000)
	require.NoError(h.t, h.engine.Stake(staker, operator, big.NewInt(10_000)))
	d, err := h.engine.Dominator(operator)
	require.NoError(h.t, err)
	require.Equal(h.t, StatusActive, d.Status)
}

func pack(t *testing.T, l, r uint64) [32]byte {
	t.Helper()
	v, err := PackValue(uint256.NewInt(l), uint256.NewInt(r))
	require.NoError(t, err)
	return v
}

func (h *harness) account(p *Prover, user [20]byte, token uint32) (uint64, uint64) {
	h.t.Helper()
	v, err := p.Value(AccountKey(user, token))
	require.NoError(h.t, err)
	l, r := SplitValue(v)
	return l.Uint64(), r.Uint64()
}

func (h *harness) setAccount(user [20]byte, token uint32, available, frozen uint64) Update {
	return Update{Key: AccountKey(user, token), Value: pack(h.t, available, frozen)}
}

func (h *harness) slot(key []byte, l, r uint64) Update {
	return Update{Key: key, Value: pack(h.t, l, r)}
}

func (h *harness) build(p *Prover, user [20]byte, cmd Command, updates []Update, makers, pages uint32) *Proof {
	h.t.Helper()
	leaves, compiled, root, err := p.Apply(updates)
	require.NoError(h.t, err)
	h.eventID++
	return &Proof{
		EventID:       h.eventID,
		UserID:        user,
		Command:       cmd,
		Leaves:        leaves,
		MakerAccounts: makers,
		PageCount:     pages,
		MerkleProof:   compiled,
		Root:          root,
	}
}

// fork returns a prover over a copy of the off-chain tree for proofs that are
// expected to be rejected.
func (h *harness) fork() *Prover {
	return &Prover{tree: h.prover.tree.Copy()}
}

func (h *harness) submit(p *Proof) error {
	_, err := h.engine.Verify(operator, []*Proof{p})
	return err
}

func (h *harness) deposit(user [20]byte, token uint32, amount uint64) {
	h.t.Helper()
	h.mint(token, user, int64(amount))
	require.NoError(h.t, h.engine.Authorize(user, operator, token, new(big.Int).SetUint64(amount)))
	avail, frozen := h.account(h.prover, user, token)
	p := h.build(h.prover, user, TransferIn{Currency: token, Amount: new(big.Int).SetUint64(amount)},
		[]Update{h.setAccount(user, token, avail+amount, frozen)}, 0, 0)
	require.NoError(h.t, h.submit(p))
}

func (h *harness) balance(token uint32, who [20]byte) (string, string) {
	h.t.Helper()
	bal, err := h.ledger.Balance(token, who)
	require.NoError(h.t, err)
	return bal.Free.String(), bal.Reserved.String()
}

func (h *harness) reserved(p Purpose, who [20]byte, token uint32) string {
	h.t.Helper()
	amount, err := h.engine.Reserved(p, who, token, operator)
	require.NoError(h.t, err)
	return amount.String()
}

func (h *harness) tokenSupply(token uint32, accounts ...[20]byte) *big.Int {
	h.t.Helper()
	total := new(big.Int)
	for _, a := range accounts {
		bal, err := h.ledger.Balance(token, a)
		require.NoError(h.t, err)
		total.Add(total, bal.Total())
	}
	return total
}

// restBid places bob's resting bid of 10 base at testPrice.
func (h *harness) restBid() {
	h.t.Helper()
	cmd := BidLimit{Price: big.NewInt(testPrice), Amount: big.NewInt(10), MakerFee: 1000, TakerFee: 2000, Base: baseToken, Quote: quoteToken}
	p := h.build(h.prover, bob, cmd, []Update{
		h.slot(OrderbookKey(baseToken, quoteToken), 0, 10),
		h.setAccount(bob, baseToken, 0, 0),
		h.setAccount(bob, quoteToken, 80, 20),
		h.slot(BestPriceKey(baseToken, quoteToken), 0, testPrice),
		h.slot(PageKey(baseToken, quoteToken, uint256.NewInt(testPrice)), 0, 10),
	}, 0, 1)
	require.NoError(h.t, h.submit(p))
}

// aliceAsk builds alice's ask that fully consumes bob's resting bid. bobBase is
// the base amount credited to bob; 9 reconciles with a 0.1% maker fee.
func (h *harness) aliceAsk(p *Prover, bobBase uint64) *Proof {
	h.t.Helper()
	cmd := AskLimit{Price: big.NewInt(testPrice), Amount: big.NewInt(10), MakerFee: 1000, TakerFee: 2000, Base: baseToken, Quote: quoteToken}
	return h.build(p, alice, cmd, []Update{
		h.slot(OrderbookKey(baseToken, quoteToken), 0, 0),
		h.setAccount(alice, baseToken, 0, 0),
		h.setAccount(alice, quoteToken, 19, 0),
		h.setAccount(bob, baseToken, bobBase, 0),
		h.setAccount(bob, quoteToken, 80, 0),
		h.slot(BestPriceKey(baseToken, quoteToken), 0, 0),
		h.slot(PageKey(baseToken, quoteToken, uint256.NewInt(testPrice)), 0, 0),
	}, 2, 1)
}
