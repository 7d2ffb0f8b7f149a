package dominator

import (
	"fmt"
	"math/big"

	"github.com/holiman/uint256"
)

var priceScale = uint256.NewInt(PriceScale)

// limitOrder is the side-independent view of AskLimit and BidLimit. An ask
// consumes the bid half of the book and rests on the ask half; a bid is the
// mirror image.
type limitOrder struct {
	ask      bool
	price    *uint256.Int
	amount   *uint256.Int
	makerFee uint32
	takerFee uint32
	base     uint32
	quote    uint32
}

func newLimitOrder(ask bool, price, amount *big.Int, makerFee, takerFee, base, quote uint32) (limitOrder, error) {
	p, err := toUint128(price)
	if err != nil {
		return limitOrder{}, fmt.Errorf("price: %w", err)
	}
	a, err := toUint128(amount)
	if err != nil {
		return limitOrder{}, fmt.Errorf("amount: %w", err)
	}
	return limitOrder{ask: ask, price: p, amount: a, makerFee: makerFee, takerFee: takerFee, base: base, quote: quote}, nil
}

// own returns the half of a book slot the order rests on.
func (o limitOrder) own(l, r *uint256.Int) *uint256.Int {
	if o.ask {
		return l
	}
	return r
}

// counter returns the half of a book slot the order trades against.
func (o limitOrder) counter(l, r *uint256.Int) *uint256.Int {
	if o.ask {
		return r
	}
	return l
}

// reaches reports whether a counter order at price matches the limit.
func (o limitOrder) reaches(price *uint256.Int) bool {
	if o.ask {
		return !price.Lt(o.price)
	}
	return !price.Gt(o.price)
}

// inward reports whether a lies strictly closer to the limit than b. Counter
// pages are consumed inward; an own resting price improves inward.
func (o limitOrder) inward(a, b *uint256.Int) bool {
	if o.ask {
		return a.Lt(b)
	}
	return a.Gt(b)
}

func unsatisfied(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrProofsUnsatisfied, fmt.Sprintf(format, args...))
}

func (e *Engine) verifyLimit(d *Dominator, p *Proof, o limitOrder) (*Settlement, error) {
	if o.base == o.quote {
		return nil, unsatisfied("base and quote token are equal")
	}
	if o.price.IsZero() || o.amount.IsZero() {
		return nil, unsatisfied("zero price or amount")
	}
	if o.makerFee > e.params.MaxFeeRate || o.takerFee > e.params.MaxFeeRate {
		return nil, unsatisfied("fee rate above %d", e.params.MaxFeeRate)
	}
	makers, pages := int(p.MakerAccounts), int(p.PageCount)
	if makers%2 != 0 {
		return nil, unsatisfied("odd maker leaf count %d", makers)
	}
	if len(p.Leaves) != 4+makers+pages {
		return nil, unsatisfied("leaf count %d, want %d", len(p.Leaves), 4+makers+pages)
	}
	leaves := p.Leaves

	if err := expectKey(leaves[0], OrderbookKey(o.base, o.quote)); err != nil {
		return nil, err
	}
	market := leaves[0].halves()
	traded, ok := decrease(o.counter(market.oldL, market.oldR), o.counter(market.newL, market.newR))
	if !ok {
		return nil, unsatisfied("counter side of the book grew")
	}
	placed, ok := decrease(o.own(market.newL, market.newR), o.own(market.oldL, market.oldR))
	if !ok {
		return nil, unsatisfied("own side of the book shrank")
	}
	if !new(uint256.Int).Add(traded, placed).Eq(o.amount) {
		return nil, unsatisfied("traded %s plus placed %s differs from amount %s", traded, placed, o.amount)
	}

	if err := expectKey(leaves[1], AccountKey(p.UserID, o.base)); err != nil {
		return nil, err
	}
	if err := expectKey(leaves[2], AccountKey(p.UserID, o.quote)); err != nil {
		return nil, err
	}
	takerBase, takerQuote := leaves[1].halves(), leaves[2].halves()
	if err := e.authorizedExactly(d, p.UserID, o.base, takerBase.oldTotal()); err != nil {
		return nil, err
	}
	if err := e.authorizedExactly(d, p.UserID, o.quote, takerQuote.oldTotal()); err != nil {
		return nil, err
	}

	pairs := makers / 2
	if traded.IsZero() != (pairs == 0) {
		return nil, unsatisfied("maker leaves must accompany a trade")
	}
	settlement := &Settlement{Base: o.base, Quote: o.quote, Accounts: make([]AccountDelta, 1, 1+pairs)}
	makerBase, makerQuote := new(uint256.Int), new(uint256.Int)
	for k := 0; k < pairs; k++ {
		mb, mq := leaves[3+2*k], leaves[4+2*k]
		kb, err := DecodeKey(mb.Key)
		if err != nil {
			return nil, unsatisfied("maker %d: %v", k, err)
		}
		kq, err := DecodeKey(mq.Key)
		if err != nil {
			return nil, unsatisfied("maker %d: %v", k, err)
		}
		if kb.Tag != TagAccount || kq.Tag != TagAccount || kb.Account != kq.Account ||
			kb.Token != o.base || kq.Token != o.quote || kb.Account == p.UserID {
			return nil, unsatisfied("maker %d: malformed account leaves", k)
		}
		hb, hq := mb.halves(), mq.halves()
		var b, q *uint256.Int
		if o.ask {
			b, ok = decrease(hb.newTotal(), hb.oldTotal())
			if ok {
				q, ok = decrease(hq.oldTotal(), hq.newTotal())
			}
		} else {
			b, ok = decrease(hb.oldTotal(), hb.newTotal())
			if ok {
				q, ok = decrease(hq.newTotal(), hq.oldTotal())
			}
		}
		if !ok {
			return nil, unsatisfied("maker %d: balance moved against the trade", k)
		}
		makerBase.Add(makerBase, b)
		makerQuote.Add(makerQuote, q)
		settlement.Accounts = append(settlement.Accounts, AccountDelta{
			Account:     kb.Account,
			BaseOld:     hb.oldTotal(),
			BaseNew:     hb.newTotal(),
			QuoteOld:    hq.oldTotal(),
			QuoteNew:    hq.newTotal(),
			QuoteVolume: q,
		})
	}

	var takerVolume *uint256.Int
	if o.ask {
		baseFee, err := ceilFee(traded, o.makerFee)
		if err != nil {
			return nil, err
		}
		if !new(uint256.Int).Add(makerBase, baseFee).Eq(traded) {
			return nil, unsatisfied("maker base %s plus fee %s differs from traded %s", makerBase, baseFee, traded)
		}
		quoteFee, err := ceilFee(makerQuote, o.takerFee)
		if err != nil {
			return nil, err
		}
		gain, ok := decrease(takerQuote.newTotal(), takerQuote.oldTotal())
		if !ok || !gain.Eq(new(uint256.Int).Sub(makerQuote, quoteFee)) {
			return nil, unsatisfied("taker quote does not reconcile with makers")
		}
		spent, ok := decrease(takerBase.oldL, takerBase.newL)
		if !ok || !spent.Eq(o.amount) {
			return nil, unsatisfied("taker available base must drop by the amount")
		}
		frozen, ok := decrease(takerBase.newR, takerBase.oldR)
		if !ok || !frozen.Eq(placed) {
			return nil, unsatisfied("taker frozen base must grow by the placed amount")
		}
		// makerQuote + pairs units of slack must cover traded at the limit price.
		lhs, overflow := new(uint256.Int).MulOverflow(new(uint256.Int).Add(makerQuote, uint256.NewInt(uint64(pairs))), priceScale)
		if overflow {
			return nil, ErrOverflow
		}
		rhs, overflow := new(uint256.Int).MulOverflow(traded, o.price)
		if overflow {
			return nil, ErrOverflow
		}
		if lhs.Lt(rhs) {
			return nil, unsatisfied("trade below the limit price")
		}
		settlement.BaseFee, settlement.QuoteFee = baseFee, quoteFee
		takerVolume = makerQuote
	} else {
		if !makerBase.Eq(traded) {
			return nil, unsatisfied("maker base %s differs from traded %s", makerBase, traded)
		}
		baseFee, err := ceilFee(traded, o.takerFee)
		if err != nil {
			return nil, err
		}
		gain, ok := decrease(takerBase.newTotal(), takerBase.oldTotal())
		if !ok || !gain.Eq(new(uint256.Int).Sub(traded, baseFee)) {
			return nil, unsatisfied("taker base does not reconcile with makers")
		}
		paid, ok := decrease(takerQuote.oldTotal(), takerQuote.newTotal())
		if !ok {
			return nil, unsatisfied("taker quote grew on a bid")
		}
		frozen, ok := decrease(takerQuote.newR, takerQuote.oldR)
		if !ok {
			return nil, unsatisfied("taker frozen quote shrank")
		}
		if err := frozenCoversPlaced(frozen, placed, o.price); err != nil {
			return nil, err
		}
		quoteFee, err := ceilFee(paid, o.makerFee)
		if err != nil {
			return nil, err
		}
		if !new(uint256.Int).Add(makerQuote, quoteFee).Eq(paid) {
			return nil, unsatisfied("maker quote %s plus fee %s differs from paid %s", makerQuote, quoteFee, paid)
		}
		lhs, overflow := new(uint256.Int).MulOverflow(paid, priceScale)
		if overflow {
			return nil, ErrOverflow
		}
		rhs, overflow := new(uint256.Int).MulOverflow(traded, o.price)
		if overflow {
			return nil, ErrOverflow
		}
		if lhs.Gt(rhs) {
			return nil, unsatisfied("trade above the limit price")
		}
		settlement.BaseFee, settlement.QuoteFee = baseFee, quoteFee
		takerVolume = paid
	}
	settlement.Accounts[0] = AccountDelta{
		Account:     p.UserID,
		BaseOld:     takerBase.oldTotal(),
		BaseNew:     takerBase.newTotal(),
		QuoteOld:    takerQuote.oldTotal(),
		QuoteNew:    takerQuote.newTotal(),
		QuoteVolume: takerVolume,
	}

	if err := expectKey(leaves[3+makers], BestPriceKey(o.base, o.quote)); err != nil {
		return nil, err
	}
	if err := o.verifyBook(traded, placed, leaves[3+makers].halves(), leaves[4+makers:]); err != nil {
		return nil, err
	}
	return settlement, nil
}

// verifyBook checks the price pages and the best price slot against the
// traded and placed volume.
func (o limitOrder) verifyBook(traded, placed *uint256.Int, best halves, pages []Leaf) error {
	bestCounterOld, bestCounterNew := o.counter(best.oldL, best.oldR), o.counter(best.newL, best.newR)
	bestOwnOld, bestOwnNew := o.own(best.oldL, best.oldR), o.own(best.newL, best.newR)

	if traded.IsZero() {
		if len(pages) != 1 {
			return unsatisfied("order without trade must prove exactly one page")
		}
		pg := pages[0]
		if err := expectKey(pg, PageKey(o.base, o.quote, o.price)); err != nil {
			return err
		}
		h := pg.halves()
		if !o.counter(h.oldL, h.oldR).IsZero() || !o.counter(h.newL, h.newR).IsZero() {
			return unsatisfied("counter orders rest at the limit price")
		}
		grown, ok := decrease(o.own(h.newL, h.newR), o.own(h.oldL, h.oldR))
		if !ok || !grown.Eq(placed) {
			return unsatisfied("placed page does not grow by the placed amount")
		}
		if !bestCounterNew.Eq(bestCounterOld) {
			return unsatisfied("counter best price moved without a trade")
		}
		if !bestCounterOld.IsZero() && o.reaches(bestCounterOld) {
			return unsatisfied("limit price crosses the book")
		}
	} else {
		if len(pages) == 0 {
			return unsatisfied("trade without price pages")
		}
		var (
			prev                   *uint256.Int
			drained, grown         = new(uint256.Int), new(uint256.Int)
			lastPrice, lastCounter *uint256.Int
		)
		for i, pg := range pages {
			k, err := DecodeKey(pg.Key)
			if err != nil {
				return unsatisfied("page %d: %v", i, err)
			}
			if k.Tag != TagPage || k.Base != o.base || k.Quote != o.quote {
				return unsatisfied("page %d: wrong market", i)
			}
			price := k.Price
			if price.IsZero() || !o.reaches(price) {
				return unsatisfied("page %d beyond the limit price", i)
			}
			if prev != nil && !o.inward(price, prev) {
				return unsatisfied("page %d out of order", i)
			}
			prev = price
			h := pg.halves()
			counterNew := o.counter(h.newL, h.newR)
			d, ok := decrease(o.counter(h.oldL, h.oldR), counterNew)
			if !ok {
				return unsatisfied("page %d counter size grew", i)
			}
			g, ok := decrease(o.own(h.newL, h.newR), o.own(h.oldL, h.oldR))
			if !ok {
				return unsatisfied("page %d own size shrank", i)
			}
			last := i == len(pages)-1
			if !last && (!counterNew.IsZero() || !g.IsZero()) {
				return unsatisfied("page %d not fully drained", i)
			}
			if !g.IsZero() && (!price.Eq(o.price) || !counterNew.IsZero()) {
				return unsatisfied("page %d places at the wrong price", i)
			}
			if d.IsZero() && !(last && price.Eq(o.price)) {
				return unsatisfied("page %d untouched", i)
			}
			drained.Add(drained, d)
			grown.Add(grown, g)
			lastPrice, lastCounter = price, counterNew
		}
		if !drained.Eq(traded) {
			return unsatisfied("pages drain %s, traded %s", drained, traded)
		}
		if !grown.Eq(placed) {
			return unsatisfied("pages place %s, placed %s", grown, placed)
		}
		first, _ := DecodeKey(pages[0].Key)
		if !first.Price.Eq(bestCounterOld) {
			return unsatisfied("first page is not the best counter price")
		}
		if !lastCounter.IsZero() {
			if !bestCounterNew.Eq(lastPrice) {
				return unsatisfied("best counter price must stay at the partially filled page")
			}
		} else if !bestCounterNew.IsZero() && !o.inward(bestCounterNew, lastPrice) {
			return unsatisfied("best counter price must move past the drained pages")
		}
	}

	if placed.IsZero() {
		if !bestOwnNew.Eq(bestOwnOld) {
			return unsatisfied("own best price moved without placing")
		}
		return nil
	}
	want := bestOwnOld
	if bestOwnOld.IsZero() || o.inward(o.price, bestOwnOld) {
		want = o.price
	}
	if !bestOwnNew.Eq(want) {
		return unsatisfied("own best price %s, want %s", bestOwnNew, want)
	}
	return nil
}

// frozenCoversPlaced requires the quote frozen for a resting bid to equal
// placed at price within one unit of rounding: |frozen·S − placed·P| < S.
func frozenCoversPlaced(frozen, placed, price *uint256.Int) error {
	lhs, overflow := new(uint256.Int).MulOverflow(frozen, priceScale)
	if overflow {
		return ErrOverflow
	}
	rhs, overflow := new(uint256.Int).MulOverflow(placed, price)
	if overflow {
		return ErrOverflow
	}
	var gap *uint256.Int
	if lhs.Lt(rhs) {
		gap = new(uint256.Int).Sub(rhs, lhs)
	} else {
		gap = new(uint256.Int).Sub(lhs, rhs)
	}
	if !gap.Lt(priceScale) {
		return unsatisfied("taker frozen quote %s does not cover %s placed at %s", frozen, placed, price)
	}
	return nil
}

// authorizedExactly binds a proven account total to the on-chain
// authorization within the token's tolerance.
func (e *Engine) authorizedExactly(d *Dominator, user [20]byte, token uint32, total *uint256.Int) error {
	reserved, err := e.reservations().Amount(PurposeAuthorizing, user, token, d.Account)
	if err != nil {
		return err
	}
	diff := new(big.Int).Sub(reserved, total.ToBig())
	if diff.Abs(diff).Cmp(e.params.Tolerance(token)) > 0 {
		return unsatisfied("account %x token %d total %s diverges from authorization %s", user, token, total, reserved)
	}
	return nil
}
