package dominator

import (
	"fmt"
	"math/big"

	"github.com/holiman/uint256"
)

// AccountDelta is the proven balance change of one account in a market.
type AccountDelta struct {
	Account     [20]byte
	BaseOld     *uint256.Int
	BaseNew     *uint256.Int
	QuoteOld    *uint256.Int
	QuoteNew    *uint256.Int
	QuoteVolume *uint256.Int
}

// Settlement is the verified outcome of a limit order. The taker comes first.
type Settlement struct {
	Base     uint32
	Quote    uint32
	Accounts []AccountDelta
	BaseFee  *uint256.Int
	QuoteFee *uint256.Int
}

type flow struct {
	account [20]byte
	amount  *big.Int
}

// apply moves reserved funds between the AUTHORIZING entries of the touched
// accounts and sends the fees to the dominator's vault.
func (s *Settlement) apply(e *Engine, d *Dominator) error {
	if err := e.settleToken(d, s.Base, s.BaseFee, s.Accounts, func(a AccountDelta) (*uint256.Int, *uint256.Int) {
		return a.BaseOld, a.BaseNew
	}); err != nil {
		return fmt.Errorf("settle base %d: %w", s.Base, err)
	}
	if err := e.settleToken(d, s.Quote, s.QuoteFee, s.Accounts, func(a AccountDelta) (*uint256.Int, *uint256.Int) {
		return a.QuoteOld, a.QuoteNew
	}); err != nil {
		return fmt.Errorf("settle quote %d: %w", s.Quote, err)
	}
	if e.rewards == nil {
		return nil
	}
	h := e.height()
	for _, a := range s.Accounts {
		if a.QuoteVolume == nil || a.QuoteVolume.IsZero() {
			continue
		}
		if err := e.rewards.SaveTrading(a.Account, a.QuoteVolume.ToBig(), h); err != nil {
			return fmt.Errorf("record trading volume: %w", err)
		}
	}
	return nil
}

func (e *Engine) settleToken(d *Dominator, token uint32, fee *uint256.Int, accounts []AccountDelta, pick func(AccountDelta) (*uint256.Int, *uint256.Int)) error {
	var (
		decreases, increases []flow
		sumDec, sumInc       = new(big.Int), new(big.Int)
	)
	for _, a := range accounts {
		oldTotal, newTotal := pick(a)
		switch oldTotal.Cmp(newTotal) {
		case 1:
			amt := new(uint256.Int).Sub(oldTotal, newTotal).ToBig()
			decreases = append(decreases, flow{account: a.Account, amount: amt})
			sumDec.Add(sumDec, amt)
		case -1:
			amt := new(uint256.Int).Sub(newTotal, oldTotal).ToBig()
			increases = append(increases, flow{account: a.Account, amount: amt})
			sumInc.Add(sumInc, amt)
		}
	}
	feeBig := fee.ToBig()
	if new(big.Int).Sub(sumDec, sumInc).Cmp(feeBig) != 0 {
		return fmt.Errorf("%w: token %d not conserved", ErrProofsUnsatisfied, token)
	}
	res := e.reservations()
	i, j := 0, 0
	for i < len(decreases) && j < len(increases) {
		move := decreases[i].amount
		if increases[j].amount.Cmp(move) < 0 {
			move = increases[j].amount
		}
		if err := res.Repatriate(PurposeAuthorizing, decreases[i].account, increases[j].account, token, d.Account, move); err != nil {
			return err
		}
		decreases[i].amount = new(big.Int).Sub(decreases[i].amount, move)
		increases[j].amount = new(big.Int).Sub(increases[j].amount, move)
		if decreases[i].amount.Sign() == 0 {
			i++
		}
		if increases[j].amount.Sign() == 0 {
			j++
		}
	}
	vault := VaultAccount(d.Account)
	for ; i < len(decreases); i++ {
		if err := res.RepatriateToFree(PurposeAuthorizing, decreases[i].account, vault, token, d.Account, decreases[i].amount); err != nil {
			return err
		}
	}
	return e.creditFee(d, token, feeBig)
}
