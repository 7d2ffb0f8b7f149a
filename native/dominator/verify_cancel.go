package dominator

import "github.com/holiman/uint256"

// verifyCancel checks the withdrawal of one resting order. Exactly one side of
// the market shrinks, the user's balances move from frozen to available only,
// and the cancelled page accounts for the whole aggregate delta.
func (e *Engine) verifyCancel(d *Dominator, p *Proof, c Cancel) error {
	if len(p.Leaves) != 5 {
		return unsatisfied("cancel expects 5 leaves, got %d", len(p.Leaves))
	}
	market, baseLeaf, quoteLeaf, bestLeaf, pageLeaf := p.Leaves[0], p.Leaves[1], p.Leaves[2], p.Leaves[3], p.Leaves[4]
	if err := expectKey(market, OrderbookKey(c.Base, c.Quote)); err != nil {
		return err
	}
	if err := expectKey(baseLeaf, AccountKey(p.UserID, c.Base)); err != nil {
		return err
	}
	if err := expectKey(quoteLeaf, AccountKey(p.UserID, c.Quote)); err != nil {
		return err
	}
	if err := expectKey(bestLeaf, BestPriceKey(c.Base, c.Quote)); err != nil {
		return err
	}
	k, err := DecodeKey(pageLeaf.Key)
	if err != nil {
		return unsatisfied("page: %v", err)
	}
	if k.Tag != TagPage || k.Base != c.Base || k.Quote != c.Quote || k.Price.IsZero() {
		return unsatisfied("page leaf of the wrong market")
	}
	price := k.Price

	m := market.halves()
	askDelta, okAsk := decrease(m.oldL, m.newL)
	bidDelta, okBid := decrease(m.oldR, m.newR)
	if !okAsk || !okBid {
		return unsatisfied("cancel grew the book")
	}
	if askDelta.IsZero() == bidDelta.IsZero() {
		return unsatisfied("cancel must shrink exactly one side")
	}
	cancelAsk := !askDelta.IsZero()

	hb, hq := baseLeaf.halves(), quoteLeaf.halves()
	if !hb.oldTotal().Eq(hb.newTotal()) || !hq.oldTotal().Eq(hq.newTotal()) {
		return unsatisfied("cancel changed account totals")
	}
	if err := e.authorizedExactly(d, p.UserID, c.Base, hb.oldTotal()); err != nil {
		return err
	}
	if err := e.authorizedExactly(d, p.UserID, c.Quote, hq.oldTotal()); err != nil {
		return err
	}
	released, untouched := hb, hq
	if !cancelAsk {
		released, untouched = hq, hb
	}
	if !untouched.oldR.Eq(untouched.newR) {
		return unsatisfied("cancel unfroze the wrong token")
	}
	if released.newR.Gt(released.oldR) {
		return unsatisfied("cancel froze funds")
	}

	pg := pageLeaf.halves()
	best := bestLeaf.halves()
	var (
		pageOld, pageNew, otherOld, otherNew *uint256.Int
		bestOld, bestNew, keptOld, keptNew   *uint256.Int
		delta                                = askDelta
	)
	if cancelAsk {
		pageOld, pageNew, otherOld, otherNew = pg.oldL, pg.newL, pg.oldR, pg.newR
		bestOld, bestNew, keptOld, keptNew = best.oldL, best.newL, best.oldR, best.newR
	} else {
		pageOld, pageNew, otherOld, otherNew = pg.oldR, pg.newR, pg.oldL, pg.newL
		bestOld, bestNew, keptOld, keptNew = best.oldR, best.newR, best.oldL, best.newL
		delta = bidDelta
	}
	drained, ok := decrease(pageOld, pageNew)
	if !ok || !drained.Eq(delta) {
		return unsatisfied("page drain does not match the book delta")
	}
	if !otherOld.Eq(otherNew) {
		return unsatisfied("cancel touched the other side of the page")
	}
	if !keptOld.Eq(keptNew) {
		return unsatisfied("cancel moved the other best price")
	}
	if pageNew.IsZero() && price.Eq(bestOld) {
		// The best level emptied: the best price moves strictly away from the
		// spread or the side becomes empty.
		if !bestNew.IsZero() {
			if cancelAsk && !bestNew.Gt(price) {
				return unsatisfied("best ask must move above the emptied level")
			}
			if !cancelAsk && !bestNew.Lt(price) {
				return unsatisfied("best bid must move below the emptied level")
			}
		}
	} else if !bestNew.Eq(bestOld) {
		return unsatisfied("best price moved without emptying the best level")
	}
	return nil
}
