package dominator

import (
	"fmt"
	"math/big"
	"sort"

	"clobsettle/core/events"
	"clobsettle/native/bank"
	"clobsettle/observability/metrics"
)

// seasonAt returns the season of d at height h; zero before launch.
func (e *Engine) seasonAt(d *Dominator, h uint64) uint64 {
	if !d.Launched || h < d.StartFrom || e.params.SeasonDuration == 0 {
		return 0
	}
	return (h - d.StartFrom) / e.params.SeasonDuration
}

// CurrentSeason returns the current season of a dominator.
func (e *Engine) CurrentSeason(dominator [20]byte) (uint64, error) {
	d, err := e.Dominator(dominator)
	if err != nil {
		return 0, err
	}
	return e.seasonAt(d, e.height()), nil
}

// ensureBonus creates the pool of season with the dominator's current stake
// as its snapshot when it does not exist yet.
func (e *Engine) ensureBonus(d *Dominator, season uint64) (*Bonus, error) {
	st := e.store()
	b, err := st.bonus(d.Account, season)
	if err != nil {
		return nil, err
	}
	if b != nil {
		return b, nil
	}
	b = &Bonus{Staked: cloneBigInt(d.Staked)}
	if err := st.putBonus(d.Account, season, b); err != nil {
		return nil, err
	}
	return b, nil
}

// creditFee records fee revenue already moved into the vault in the current
// season's pool.
func (e *Engine) creditFee(d *Dominator, token uint32, amount *big.Int) error {
	if amount.Sign() == 0 {
		return nil
	}
	season := e.seasonAt(d, e.height())
	b, err := e.ensureBonus(d, season)
	if err != nil {
		return err
	}
	b.addProfit(token, amount)
	st := e.store()
	if err := st.putBonus(d.Account, season, b); err != nil {
		return err
	}
	seasons, err := st.seasons(d.Account)
	if err != nil {
		return err
	}
	if n := len(seasons); n == 0 || seasons[n-1] < season {
		if err := st.putSeasons(d.Account, append(seasons, season)); err != nil {
			return err
		}
	}
	credited := cloneBigInt(amount)
	e.observe(func(m *metrics.SettlementMetrics) { m.ObserveFee(token, credited) })
	e.emit(events.DominatorFeeCredited{Dominator: d.Account, Season: season, Token: token, Amount: cloneBigInt(amount)})
	return nil
}

// ratMulInt returns floor(amount * num / den).
func ratMulInt(amount, num, den *big.Int) *big.Int {
	if den.Sign() == 0 {
		return big.NewInt(0)
	}
	r := new(big.Rat).SetFrac(new(big.Int).Mul(amount, num), den)
	return new(big.Int).Quo(r.Num(), r.Denom())
}

// shareWalk iterates the non-empty seasons in [st.FromSeason, current) and
// computes the staker's share of each. limit caps the number of seasons
// visited; zero means no cap. The returned season is the FromSeason the
// position advances to.
func (e *Engine) shareWalk(d *Dominator, st *Staking, current uint64, limit uint64) ([]TokenAmount, uint64, error) {
	next := current
	if st.FromSeason >= current {
		return nil, st.FromSeason, nil
	}
	seasons, err := e.store().seasons(d.Account)
	if err != nil {
		return nil, 0, err
	}
	idx := sort.Search(len(seasons), func(i int) bool { return seasons[i] >= st.FromSeason })
	var (
		owed      []TokenAmount
		processed uint64
	)
	for ; idx < len(seasons) && seasons[idx] < current; idx++ {
		season := seasons[idx]
		if limit > 0 && processed == limit {
			next = season
			break
		}
		processed++
		b, err := e.store().bonus(d.Account, season)
		if err != nil {
			return nil, 0, err
		}
		if b == nil || b.Staked.Sign() == 0 {
			continue
		}
		eligible := st.Amount
		if season == st.FromSeason {
			eligible = st.FromSeasonAmount
		}
		if eligible.Sign() == 0 {
			continue
		}
		for _, p := range b.Profit {
			owed = addTokenAmount(owed, p.Token, ratMulInt(eligible, p.Amount, b.Staked))
		}
	}
	return owed, next, nil
}

// takeShares pays the staker's share of every finished season up to limit and
// advances the position.
func (e *Engine) takeShares(d *Dominator, staker [20]byte, st *Staking, current uint64, limit uint64) ([]TokenAmount, error) {
	owed, next, err := e.shareWalk(d, st, current, limit)
	if err != nil {
		return nil, err
	}
	vault := VaultAccount(d.Account)
	for _, o := range owed {
		if err := e.ledger.Transfer(o.Token, vault, staker, o.Amount); err != nil {
			return nil, fmt.Errorf("pay shares: %w", ledgerErr(err))
		}
		e.emit(events.DominatorSharesClaimed{Dominator: d.Account, Staker: staker, Token: o.Token, Amount: cloneBigInt(o.Amount), FromSeason: st.FromSeason})
	}
	if next != st.FromSeason {
		st.FromSeason = next
		st.FromSeasonAmount = cloneBigInt(st.Amount)
	}
	return owed, nil
}

// ClaimShares pays staker the profit of up to MaxSeasonsPerClaim finished
// non-empty seasons.
func (e *Engine) ClaimShares(staker, dominator [20]byte) ([]TokenAmount, error) {
	var paid []TokenAmount
	err := e.atomic(func() error {
		d, err := e.loadDominator(dominator)
		if err != nil {
			return err
		}
		st, err := e.store().staking(dominator, staker)
		if err != nil {
			return err
		}
		if st == nil {
			return ErrInvalidStaking
		}
		current := e.seasonAt(d, e.height())
		if d.Launched {
			if _, err := e.ensureBonus(d, current); err != nil {
				return err
			}
		}
		paid, err = e.takeShares(d, staker, st, current, e.params.MaxSeasonsPerClaim)
		if err != nil {
			return err
		}
		return e.store().putStaking(dominator, staker, st)
	})
	if err != nil {
		return nil, err
	}
	return paid, nil
}

// PendingShares estimates the profit staker would receive from every finished
// season without changing state.
func (e *Engine) PendingShares(staker, dominator [20]byte) ([]TokenAmount, error) {
	d, err := e.Dominator(dominator)
	if err != nil {
		return nil, err
	}
	st, err := e.store().staking(dominator, staker)
	if err != nil {
		return nil, err
	}
	if st == nil {
		return nil, nil
	}
	owed, _, err := e.shareWalk(d, st, e.seasonAt(d, e.height()), 0)
	return owed, err
}

// OnInitialize runs at the start of block height. It snapshots the stake of
// every dominator entering a new season and releases every unstake that
// matured at or before height.
func (e *Engine) OnInitialize(height uint64) error {
	return e.atomic(func() error {
		st := e.store()
		accounts, err := st.index()
		if err != nil {
			return err
		}
		for _, account := range accounts {
			d, err := e.loadDominator(account)
			if err != nil {
				return err
			}
			if !d.Launched || d.Status == StatusEvicted || height < d.StartFrom {
				continue
			}
			if (height-d.StartFrom)%e.params.SeasonDuration != 0 {
				continue
			}
			if _, err := e.ensureBonus(d, e.seasonAt(d, height)); err != nil {
				return err
			}
		}
		return e.releaseUnstakes(height)
	})
}

// releaseUnstakes unreserves every queued unstake whose unlock height is at or
// below height, oldest queue first.
func (e *Engine) releaseUnstakes(height uint64) error {
	st := e.store()
	heights, err := st.unlockHeights()
	if err != nil {
		return err
	}
	matured := sort.Search(len(heights), func(i int) bool { return heights[i] > height })
	if matured == 0 {
		return nil
	}
	res := e.reservations()
	for _, block := range heights[:matured] {
		pending, err := st.pendingUnstakes(block)
		if err != nil {
			return err
		}
		for _, p := range pending {
			if err := res.Unreserve(PurposePendingUnstake, p.Staker, bank.NativeToken, p.Dominator, p.Amount); err != nil {
				return fmt.Errorf("release unstake: %w", err)
			}
			e.emit(events.DominatorUnstakeReleased{Dominator: p.Dominator, Staker: p.Staker, Amount: cloneBigInt(p.Amount)})
		}
		if err := st.putPendingUnstakes(block, nil); err != nil {
			return err
		}
	}
	return st.putUnlockHeights(heights[matured:])
}
