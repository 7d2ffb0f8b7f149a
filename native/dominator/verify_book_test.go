package dominator

import (
	"math/big"
	"testing"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"
)

const highPrice = 3_000_000_000_000_000_000

func bidOrder(price, amount int64) BidLimit {
	return BidLimit{Price: new(big.Int).Mul(big.NewInt(price), big.NewInt(PriceScale)), Amount: big.NewInt(amount),
		MakerFee: 1000, TakerFee: 2000, Base: baseToken, Quote: quoteToken}
}

func askOrder(amount int64) AskLimit {
	return AskLimit{Price: big.NewInt(testPrice), Amount: big.NewInt(amount), MakerFee: 1000, TakerFee: 2000, Base: baseToken, Quote: quoteToken}
}

func (h *harness) page(price uint64, ask, bid uint64) Update {
	return h.slot(PageKey(baseToken, quoteToken, uint256.NewInt(price)), ask, bid)
}

// setupTwoLevels rests two bids of bob: 5 base at 3 and 5 base at 2.
func setupTwoLevels(t *testing.T) *harness {
	h := newHarness(t)
	h.activate()
	h.height = 20
	h.deposit(bob, quoteToken, 100)
	require.NoError(t, h.submit(h.build(h.prover, bob, bidOrder(3, 5), []Update{
		h.slot(OrderbookKey(baseToken, quoteToken), 0, 5),
		h.setAccount(bob, baseToken, 0, 0),
		h.setAccount(bob, quoteToken, 85, 15),
		h.slot(BestPriceKey(baseToken, quoteToken), 0, highPrice),
		h.page(highPrice, 0, 5),
	}, 0, 1)))
	require.NoError(t, h.submit(h.build(h.prover, bob, bidOrder(2, 5), []Update{
		h.slot(OrderbookKey(baseToken, quoteToken), 0, 10),
		h.setAccount(bob, baseToken, 0, 0),
		h.setAccount(bob, quoteToken, 75, 25),
		h.slot(BestPriceKey(baseToken, quoteToken), 0, highPrice),
		h.page(testPrice, 0, 5),
	}, 0, 1)))
	return h
}

// sweepBothLevels is alice's ask of 12 at 2: it drains both bid pages and
// rests the remaining 2 base at 2.
func (h *harness) sweepBothLevels() []Update {
	return []Update{
		h.slot(OrderbookKey(baseToken, quoteToken), 2, 0),
		h.setAccount(alice, baseToken, 0, 2),
		h.setAccount(alice, quoteToken, 24, 0),
		h.setAccount(bob, baseToken, 9, 0),
		h.setAccount(bob, quoteToken, 75, 0),
		h.slot(BestPriceKey(baseToken, quoteToken), testPrice, 0),
		h.page(highPrice, 0, 0),
		h.page(testPrice, 2, 0),
	}
}

func TestAskSweepsPagesAndRestsRemainder(t *testing.T) {
	h := setupTwoLevels(t)
	h.deposit(alice, baseToken, 12)

	require.NoError(t, h.submit(h.build(h.prover, alice, askOrder(12), h.sweepBothLevels(), 2, 2)))
	require.Equal(t, "2", h.reserved(PurposeAuthorizing, alice, baseToken))
	require.Equal(t, "24", h.reserved(PurposeAuthorizing, alice, quoteToken))
	require.Equal(t, "9", h.reserved(PurposeAuthorizing, bob, baseToken))
	require.Equal(t, "75", h.reserved(PurposeAuthorizing, bob, quoteToken))
	free, _ := h.balance(baseToken, VaultAccount(operator))
	require.Equal(t, "1", free)
	free, _ = h.balance(quoteToken, VaultAccount(operator))
	require.Equal(t, "1", free)
}

func TestAskPartiallyFillsLastPage(t *testing.T) {
	h := setupTwoLevels(t)
	h.deposit(alice, baseToken, 7)

	// 5 at 3 and 2 of the 5 at 2; the best bid stays on the partial page.
	require.NoError(t, h.submit(h.build(h.prover, alice, askOrder(7), []Update{
		h.slot(OrderbookKey(baseToken, quoteToken), 0, 3),
		h.setAccount(alice, baseToken, 0, 0),
		h.setAccount(alice, quoteToken, 18, 0),
		h.setAccount(bob, baseToken, 6, 0),
		h.setAccount(bob, quoteToken, 75, 6),
		h.slot(BestPriceKey(baseToken, quoteToken), 0, testPrice),
		h.page(highPrice, 0, 0),
		h.page(testPrice, 0, 3),
	}, 2, 2)))
	require.Equal(t, "18", h.reserved(PurposeAuthorizing, alice, quoteToken))
	require.Equal(t, "81", h.reserved(PurposeAuthorizing, bob, quoteToken))
}

func TestAskSweepRejectsInconsistentBook(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(h *harness, u []Update) []Update
	}{
		{"pages out of order", func(h *harness, u []Update) []Update {
			u[6], u[7] = u[7], u[6]
			return u
		}},
		{"middle page not drained", func(h *harness, u []Update) []Update {
			// 4 at 3 and 5 at 2 with 3 resting reconciles everywhere except
			// the page left behind at 3.
			return []Update{
				h.slot(OrderbookKey(baseToken, quoteToken), 3, 1),
				h.setAccount(alice, baseToken, 0, 3),
				h.setAccount(alice, quoteToken, 21, 0),
				h.setAccount(bob, baseToken, 8, 0),
				h.setAccount(bob, quoteToken, 75, 3),
				h.slot(BestPriceKey(baseToken, quoteToken), testPrice, 0),
				h.page(highPrice, 0, 1),
				h.page(testPrice, 3, 0),
			}
		}},
		{"best bid left on a drained page", func(h *harness, u []Update) []Update {
			u[5] = h.slot(BestPriceKey(baseToken, quoteToken), testPrice, highPrice)
			return u
		}},
		{"remainder rests without moving the best ask", func(h *harness, u []Update) []Update {
			u[5] = h.slot(BestPriceKey(baseToken, quoteToken), 0, 0)
			return u
		}},
		{"remainder rests on a higher page", func(h *harness, u []Update) []Update {
			u[6] = h.page(highPrice, 2, 0)
			u[7] = h.page(testPrice, 0, 0)
			return u
		}},
		{"drained page skipped", func(h *harness, u []Update) []Update {
			return append(u[:6:6], u[7])
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := setupTwoLevels(t)
			h.deposit(alice, baseToken, 12)
			root := h.state.Root()
			updates := tc.mutate(h, h.sweepBothLevels())
			pages := uint32(len(updates) - 6)
			err := h.submit(h.build(h.fork(), alice, askOrder(12), updates, 2, pages))
			require.ErrorIs(t, err, ErrProofsUnsatisfied)
			require.Equal(t, root, h.state.Root())
		})
	}
}

func TestBidFrozenQuoteMustCoverPlacedAmount(t *testing.T) {
	h := newHarness(t)
	h.activate()
	h.height = 20
	h.deposit(bob, quoteToken, 100)
	place := func(p *Prover, frozen uint64) *Proof {
		return h.build(p, bob, bidOrder(3, 5), []Update{
			h.slot(OrderbookKey(baseToken, quoteToken), 0, 5),
			h.setAccount(bob, baseToken, 0, 0),
			h.setAccount(bob, quoteToken, 100-frozen, frozen),
			h.slot(BestPriceKey(baseToken, quoteToken), 0, highPrice),
			h.page(highPrice, 0, 5),
		}, 0, 1)
	}
	require.ErrorIs(t, h.submit(place(h.fork(), 10)), ErrProofsUnsatisfied)
	require.ErrorIs(t, h.submit(place(h.fork(), 16)), ErrProofsUnsatisfied)
	require.NoError(t, h.submit(place(h.prover, 15)))
}

func TestCancelOfBestLevelMovesBestPrice(t *testing.T) {
	cancel := func(h *harness, p *Prover, price, bestBid uint64, bookBid, frozen uint64) *Proof {
		return h.build(p, bob, Cancel{Base: baseToken, Quote: quoteToken}, []Update{
			h.slot(OrderbookKey(baseToken, quoteToken), 0, bookBid),
			h.setAccount(bob, baseToken, 0, 0),
			h.setAccount(bob, quoteToken, 100-frozen, frozen),
			h.slot(BestPriceKey(baseToken, quoteToken), 0, bestBid),
			h.page(price, 0, 0),
		}, 0, 1)
	}

	h := setupTwoLevels(t)
	// The best level empties, so the best bid must fall below it.
	require.ErrorIs(t, h.submit(cancel(h, h.fork(), highPrice, highPrice, 5, 10)), ErrProofsUnsatisfied)
	require.ErrorIs(t, h.submit(cancel(h, h.fork(), highPrice, 4_000_000_000_000_000_000, 5, 10)), ErrProofsUnsatisfied)
	// Cancelling a deeper level leaves the best bid alone.
	require.ErrorIs(t, h.submit(cancel(h, h.fork(), testPrice, testPrice, 5, 15)), ErrProofsUnsatisfied)

	require.NoError(t, h.submit(cancel(h, h.prover, highPrice, testPrice, 5, 10)))
	require.Equal(t, "100", h.reserved(PurposeAuthorizing, bob, quoteToken))
	require.NoError(t, h.submit(cancel(h, h.prover, testPrice, 0, 0, 0)))
}
