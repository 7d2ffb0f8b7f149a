package dominator

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"

	"clobsettle/core/events"
)

func setupBook(t *testing.T) *harness {
	h := newHarness(t)
	h.activate()
	h.height = 20
	h.deposit(alice, baseToken, 10)
	h.deposit(bob, quoteToken, 100)
	h.restBid()
	return h
}

func TestAskLimitSettlesAgainstRestingBid(t *testing.T) {
	h := setupBook(t)
	vault := VaultAccount(operator)
	baseBefore := h.tokenSupply(baseToken, alice, bob, vault)
	quoteBefore := h.tokenSupply(quoteToken, alice, bob, vault)

	require.NoError(t, h.submit(h.aliceAsk(h.prover, 9)))

	// Funds only move between the touched accounts and the vault.
	require.Zero(t, baseBefore.Cmp(h.tokenSupply(baseToken, alice, bob, vault)))
	require.Zero(t, quoteBefore.Cmp(h.tokenSupply(quoteToken, alice, bob, vault)))

	require.Equal(t, "0", h.reserved(PurposeAuthorizing, alice, baseToken))
	require.Equal(t, "19", h.reserved(PurposeAuthorizing, alice, quoteToken))
	require.Equal(t, "9", h.reserved(PurposeAuthorizing, bob, baseToken))
	require.Equal(t, "80", h.reserved(PurposeAuthorizing, bob, quoteToken))

	free, reserved := h.balance(baseToken, vault)
	require.Equal(t, "1", free)
	require.Equal(t, "0", reserved)
	free, _ = h.balance(quoteToken, vault)
	require.Equal(t, "1", free)
	_, reserved = h.balance(quoteToken, alice)
	require.Equal(t, "19", reserved)

	bonus, err := h.engine.Bonus(operator, 0)
	require.NoError(t, err)
	require.Equal(t, "1", bonus.ProfitOf(baseToken).String())
	require.Equal(t, "1", bonus.ProfitOf(quoteToken).String())
	require.Len(t, h.events.OfType(events.TypeDominatorFeeCredited), 2)

	aliceVolume, err := h.volume.Volume(0, alice)
	require.NoError(t, err)
	require.Equal(t, "20", aliceVolume.String())
	bobVolume, err := h.volume.Volume(0, bob)
	require.NoError(t, err)
	require.Equal(t, "20", bobVolume.String())

	d, err := h.engine.Dominator(operator)
	require.NoError(t, err)
	require.Equal(t, h.prover.Root(), d.MerkleRoot)
	require.Equal(t, h.eventID, d.Sequence)
	require.Equal(t, uint64(20), d.SequenceBlock)
}

func TestAskLimitRejectsFeeMismatch(t *testing.T) {
	h := setupBook(t)
	root := h.state.Root()
	err := h.submit(h.aliceAsk(h.fork(), 10))
	require.ErrorIs(t, err, ErrProofsUnsatisfied)
	require.Equal(t, root, h.state.Root())
}

func TestProofAgainstForeignRootIsRejected(t *testing.T) {
	h := newHarness(t)
	h.activate()
	h.height = 20
	h.deposit(bob, quoteToken, 100)
	h.restBid()

	// Alice never deposited; her balance only exists in a diverged tree.
	fake := h.fork()
	require.NoError(t, fakeBalance(fake, h, alice, baseToken, 10))
	cmd := AskLimit{Price: big.NewInt(testPrice), Amount: big.NewInt(10), MakerFee: 1000, TakerFee: 2000, Base: baseToken, Quote: quoteToken}
	p := h.build(fake, alice, cmd, []Update{
		h.slot(OrderbookKey(baseToken, quoteToken), 0, 0),
		h.setAccount(alice, baseToken, 0, 0),
		h.setAccount(alice, quoteToken, 19, 0),
		h.setAccount(bob, baseToken, 9, 0),
		h.setAccount(bob, quoteToken, 80, 0),
		h.slot(BestPriceKey(baseToken, quoteToken), 0, 0),
		h.slot(PageKey(baseToken, quoteToken, uint256.NewInt(testPrice)), 0, 0),
	}, 2, 1)
	require.ErrorIs(t, h.submit(p), ErrProofsUnsatisfied)
}

// fakeBalance writes straight into a forked tree without a proof.
func fakeBalance(p *Prover, h *harness, user [20]byte, token uint32, amount uint64) error {
	_, _, _, err := p.Apply([]Update{h.setAccount(user, token, amount, 0)})
	return err
}

func TestAskCrossingTheBookWithoutTradeIsRejected(t *testing.T) {
	h := setupBook(t)
	cmd := AskLimit{Price: big.NewInt(testPrice), Amount: big.NewInt(10), MakerFee: 1000, TakerFee: 2000, Base: baseToken, Quote: quoteToken}
	p := h.build(h.fork(), alice, cmd, []Update{
		h.slot(OrderbookKey(baseToken, quoteToken), 10, 10),
		h.setAccount(alice, baseToken, 0, 10),
		h.setAccount(alice, quoteToken, 0, 0),
		h.slot(BestPriceKey(baseToken, quoteToken), testPrice, testPrice),
		h.slot(PageKey(baseToken, quoteToken, uint256.NewInt(testPrice)), 10, 10),
	}, 0, 1)
	require.ErrorIs(t, h.submit(p), ErrProofsUnsatisfied)
}

func TestBidLimitSettlesAgainstRestingAsk(t *testing.T) {
	h := newHarness(t)
	h.activate()
	h.height = 20
	h.deposit(alice, baseToken, 10)
	h.deposit(bob, quoteToken, 100)
	pageKey := PageKey(baseToken, quoteToken, uint256.NewInt(testPrice))

	ask := AskLimit{Price: big.NewInt(testPrice), Amount: big.NewInt(10), MakerFee: 1000, TakerFee: 2000, Base: baseToken, Quote: quoteToken}
	require.NoError(t, h.submit(h.build(h.prover, alice, ask, []Update{
		h.slot(OrderbookKey(baseToken, quoteToken), 10, 0),
		h.setAccount(alice, baseToken, 0, 10),
		h.setAccount(alice, quoteToken, 0, 0),
		h.slot(BestPriceKey(baseToken, quoteToken), testPrice, 0),
		h.slot(pageKey, 10, 0),
	}, 0, 1)))

	bid := BidLimit{Price: big.NewInt(testPrice), Amount: big.NewInt(10), MakerFee: 1000, TakerFee: 2000, Base: baseToken, Quote: quoteToken}
	require.NoError(t, h.submit(h.build(h.prover, bob, bid, []Update{
		h.slot(OrderbookKey(baseToken, quoteToken), 0, 0),
		h.setAccount(bob, baseToken, 9, 0),
		h.setAccount(bob, quoteToken, 80, 0),
		h.setAccount(alice, baseToken, 0, 0),
		h.setAccount(alice, quoteToken, 19, 0),
		h.slot(BestPriceKey(baseToken, quoteToken), 0, 0),
		h.slot(pageKey, 0, 0),
	}, 2, 1)))

	require.Equal(t, "9", h.reserved(PurposeAuthorizing, bob, baseToken))
	require.Equal(t, "80", h.reserved(PurposeAuthorizing, bob, quoteToken))
	require.Equal(t, "19", h.reserved(PurposeAuthorizing, alice, quoteToken))
	free, _ := h.balance(baseToken, VaultAccount(operator))
	require.Equal(t, "1", free)
	free, _ = h.balance(quoteToken, VaultAccount(operator))
	require.Equal(t, "1", free)
}

func TestBidAboveLimitPriceIsRejected(t *testing.T) {
	h := newHarness(t)
	h.activate()
	h.height = 20
	h.deposit(alice, baseToken, 10)
	h.deposit(bob, quoteToken, 100)
	pageKey := PageKey(baseToken, quoteToken, uint256.NewInt(testPrice))
	ask := AskLimit{Price: big.NewInt(testPrice), Amount: big.NewInt(10), MakerFee: 1000, TakerFee: 2000, Base: baseToken, Quote: quoteToken}
	require.NoError(t, h.submit(h.build(h.prover, alice, ask, []Update{
		h.slot(OrderbookKey(baseToken, quoteToken), 10, 0),
		h.setAccount(alice, baseToken, 0, 10),
		h.setAccount(alice, quoteToken, 0, 0),
		h.slot(BestPriceKey(baseToken, quoteToken), testPrice, 0),
		h.slot(pageKey, 10, 0),
	}, 0, 1)))

	// Bob pays 30 quote for 10 base at a limit of 2.
	bid := BidLimit{Price: big.NewInt(testPrice), Amount: big.NewInt(10), MakerFee: 1000, TakerFee: 2000, Base: baseToken, Quote: quoteToken}
	err := h.submit(h.build(h.fork(), bob, bid, []Update{
		h.slot(OrderbookKey(baseToken, quoteToken), 0, 0),
		h.setAccount(bob, baseToken, 9, 0),
		h.setAccount(bob, quoteToken, 70, 0),
		h.setAccount(alice, baseToken, 0, 0),
		h.setAccount(alice, quoteToken, 29, 0),
		h.slot(BestPriceKey(baseToken, quoteToken), 0, 0),
		h.slot(pageKey, 0, 0),
	}, 2, 1))
	require.ErrorIs(t, err, ErrProofsUnsatisfied)
}

func TestCancelReleasesFrozenQuote(t *testing.T) {
	h := setupBook(t)
	require.NoError(t, h.submit(h.build(h.prover, bob, Cancel{Base: baseToken, Quote: quoteToken}, []Update{
		h.slot(OrderbookKey(baseToken, quoteToken), 0, 0),
		h.setAccount(bob, baseToken, 0, 0),
		h.setAccount(bob, quoteToken, 100, 0),
		h.slot(BestPriceKey(baseToken, quoteToken), 0, 0),
		h.slot(PageKey(baseToken, quoteToken, uint256.NewInt(testPrice)), 0, 0),
	}, 0, 1)))
	require.Equal(t, "100", h.reserved(PurposeAuthorizing, bob, quoteToken))
}

func TestCancelMustBeBalanceNeutral(t *testing.T) {
	h := setupBook(t)
	err := h.submit(h.build(h.fork(), bob, Cancel{Base: baseToken, Quote: quoteToken}, []Update{
		h.slot(OrderbookKey(baseToken, quoteToken), 0, 0),
		h.setAccount(bob, baseToken, 0, 0),
		h.setAccount(bob, quoteToken, 120, 0),
		h.slot(BestPriceKey(baseToken, quoteToken), 0, 0),
		h.slot(PageKey(baseToken, quoteToken, uint256.NewInt(testPrice)), 0, 0),
	}, 0, 1))
	require.ErrorIs(t, err, ErrProofsUnsatisfied)
}

func TestReplayedProofIsRejected(t *testing.T) {
	h := newHarness(t)
	h.activate()
	h.mint(baseToken, alice, 50)
	require.NoError(t, h.engine.Authorize(alice, operator, baseToken, big.NewInt(50)))
	p := h.build(h.prover, alice, TransferIn{Currency: baseToken, Amount: big.NewInt(50)},
		[]Update{h.setAccount(alice, baseToken, 50, 0)}, 0, 0)
	require.NoError(t, h.submit(p))
	require.ErrorIs(t, h.submit(p), ErrProofsUnsatisfied)
	require.Equal(t, "50", h.reserved(PurposeAuthorizing, alice, baseToken))
}

func TestAuthorizeReceiptRoundTrip(t *testing.T) {
	h := newHarness(t)
	h.activate()
	h.mint(baseToken, alice, 80)
	require.NoError(t, h.engine.Authorize(alice, operator, baseToken, big.NewInt(50)))
	require.ErrorIs(t, h.engine.Authorize(alice, operator, baseToken, big.NewInt(10)), ErrReceiptAlreadyExists)
	require.Equal(t, "50", h.reserved(PurposeAuthorizingStash, alice, baseToken))

	// An Authorize receipt can never be consumed by a withdrawal proof.
	out := h.build(h.fork(), alice, TransferOut{Currency: baseToken, Amount: big.NewInt(50)},
		[]Update{h.setAccount(alice, baseToken, 0, 0)}, 0, 0)
	require.ErrorIs(t, h.submit(out), ErrReceiptNotExists)

	wrongAmount := h.build(h.fork(), alice, TransferIn{Currency: baseToken, Amount: big.NewInt(40)},
		[]Update{h.setAccount(alice, baseToken, 40, 0)}, 0, 0)
	require.ErrorIs(t, h.submit(wrongAmount), ErrReceiptNotExists)

	in := h.build(h.prover, alice, TransferIn{Currency: baseToken, Amount: big.NewInt(50)},
		[]Update{h.setAccount(alice, baseToken, 50, 0)}, 0, 0)
	require.NoError(t, h.submit(in))
	require.Equal(t, "0", h.reserved(PurposeAuthorizingStash, alice, baseToken))
	require.Equal(t, "50", h.reserved(PurposeAuthorizing, alice, baseToken))
	receipt, err := h.engine.Receipt(operator, alice)
	require.NoError(t, err)
	require.Nil(t, receipt)

	again := h.build(h.fork(), alice, TransferIn{Currency: baseToken, Amount: big.NewInt(50)},
		[]Update{h.setAccount(alice, baseToken, 100, 0)}, 0, 0)
	require.ErrorIs(t, h.submit(again), ErrReceiptNotExists)
}

func TestRevokeAndWithdraw(t *testing.T) {
	h := newHarness(t)
	h.activate()
	h.deposit(alice, baseToken, 50)

	require.ErrorIs(t, h.engine.Revoke(alice, operator, baseToken, big.NewInt(60)), ErrInsufficientBalance)
	require.NoError(t, h.engine.Revoke(alice, operator, baseToken, big.NewInt(30)))
	require.ErrorIs(t, h.engine.Revoke(alice, operator, baseToken, big.NewInt(1)), ErrReceiptAlreadyExists)

	require.NoError(t, h.submit(h.build(h.prover, alice, TransferOut{Currency: baseToken, Amount: big.NewInt(30)},
		[]Update{h.setAccount(alice, baseToken, 20, 0)}, 0, 0)))
	free, reserved := h.balance(baseToken, alice)
	require.Equal(t, "30", free)
	require.Equal(t, "20", reserved)

	// The user is trading the rest, so the withdrawal is refused.
	require.NoError(t, h.engine.Revoke(alice, operator, baseToken, big.NewInt(20)))
	h.deposit(bob, quoteToken, 100)
	require.NoError(t, h.submit(h.build(h.prover, alice, AskLimit{
		Price: big.NewInt(testPrice), Amount: big.NewInt(5), MakerFee: 1000, TakerFee: 2000, Base: baseToken, Quote: quoteToken,
	}, []Update{
		h.slot(OrderbookKey(baseToken, quoteToken), 5, 0),
		h.setAccount(alice, baseToken, 15, 5),
		h.setAccount(alice, quoteToken, 0, 0),
		h.slot(BestPriceKey(baseToken, quoteToken), testPrice, 0),
		h.slot(PageKey(baseToken, quoteToken, uint256.NewInt(testPrice)), 5, 0),
	}, 0, 1)))

	wrongAmount := h.build(h.fork(), alice, RejectTransferOut{Currency: baseToken, Amount: big.NewInt(15)},
		[]Update{h.setAccount(alice, baseToken, 15, 5)}, 0, 0)
	require.ErrorIs(t, h.submit(wrongAmount), ErrReceiptNotExists)

	require.NoError(t, h.submit(h.build(h.prover, alice, RejectTransferOut{Currency: baseToken, Amount: big.NewInt(20)},
		[]Update{h.setAccount(alice, baseToken, 15, 5)}, 0, 0)))
	receipt, err := h.engine.Receipt(operator, alice)
	require.NoError(t, err)
	require.Nil(t, receipt)
	require.Equal(t, "20", h.reserved(PurposeAuthorizing, alice, baseToken))
}

func TestRejectTransferInReleasesStash(t *testing.T) {
	h := newHarness(t)
	h.activate()
	h.mint(quoteToken, alice, 5)
	require.NoError(t, h.engine.Authorize(alice, operator, quoteToken, big.NewInt(5)))

	moved := &Proof{EventID: 1, UserID: alice, Command: RejectTransferIn{}, Root: addrRoot()}
	require.ErrorIs(t, h.submit(moved), ErrProofsUnsatisfied)

	require.NoError(t, h.submit(&Proof{EventID: 2, UserID: alice, Command: RejectTransferIn{}, Root: h.prover.Root()}))
	free, reserved := h.balance(quoteToken, alice)
	require.Equal(t, "5", free)
	require.Equal(t, "0", reserved)

	// Without a receipt the command is a no-op.
	require.NoError(t, h.submit(&Proof{EventID: 3, UserID: alice, Command: RejectTransferIn{}, Root: h.prover.Root()}))
}

func addrRoot() common.Hash {
	var root common.Hash
	root[0] = 0x42
	return root
}

func TestVerifyBatchStopsAtFirstFailure(t *testing.T) {
	h := newHarness(t)
	h.activate()
	h.mint(baseToken, alice, 50)
	require.NoError(t, h.engine.Authorize(alice, operator, baseToken, big.NewInt(50)))
	good := h.build(h.prover, alice, TransferIn{Currency: baseToken, Amount: big.NewInt(50)},
		[]Update{h.setAccount(alice, baseToken, 50, 0)}, 0, 0)
	bad := h.build(h.prover, bob, TransferIn{Currency: baseToken, Amount: big.NewInt(7)},
		[]Update{h.setAccount(bob, baseToken, 7, 0)}, 0, 0)
	never := h.build(h.prover, alice, Cancel{Base: baseToken, Quote: quoteToken}, nil, 0, 0)

	n, err := h.engine.Verify(operator, []*Proof{good, bad, never})
	require.Equal(t, 1, n)
	require.ErrorIs(t, err, ErrReceiptNotExists)

	d, err := h.engine.Dominator(operator)
	require.NoError(t, err)
	require.Equal(t, good.EventID, d.Sequence)
	require.Equal(t, good.Root, d.MerkleRoot)
	require.Len(t, h.events.OfType(events.TypeDominatorProofAccepted), 1)
}

func TestVerifyRequiresActiveDominator(t *testing.T) {
	h := newHarness(t)
	h.height = 15
	proof := &Proof{EventID: 1, UserID: alice, Command: RejectTransferIn{}}

	_, err := h.engine.Verify(operator, []*Proof{proof})
	require.ErrorIs(t, err, ErrDominatorNotFound)

	require.NoError(t, h.engine.Register(operator, "alice-exchange"))
	_, err = h.engine.Verify(operator, []*Proof{proof})
	require.ErrorIs(t, err, ErrDominatorStatusInvalid)

	require.NoError(t, h.engine.Launch(authority, operator))
	_, err = h.engine.Verify(operator, []*Proof{proof})
	require.ErrorIs(t, err, ErrDominatorInactive)

	require.NoError(t, h.engine.Evict(authority, operator))
	_, err = h.engine.Verify(operator, []*Proof{proof})
	require.ErrorIs(t, err, ErrDominatorEvicted)
}
