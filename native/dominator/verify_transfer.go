package dominator

import (
	"fmt"
	"math/big"
)

func (e *Engine) singleAccountLeaf(p *Proof, token uint32) (halves, error) {
	if len(p.Leaves) != 1 {
		return halves{}, unsatisfied("transfer expects 1 leaf, got %d", len(p.Leaves))
	}
	if err := expectKey(p.Leaves[0], AccountKey(p.UserID, token)); err != nil {
		return halves{}, err
	}
	return p.Leaves[0].halves(), nil
}

func (e *Engine) matchingReceipt(d *Dominator, user [20]byte, kind ReceiptKind, token uint32, amount *big.Int) error {
	r, err := e.store().receipt(d.Account, user)
	if err != nil {
		return err
	}
	if !r.matches(kind, token, amount) {
		return ErrReceiptNotExists
	}
	return nil
}

func (e *Engine) verifyTransferIn(d *Dominator, p *Proof, c TransferIn) error {
	amount, err := toUint128(c.Amount)
	if err != nil {
		return err
	}
	if err := e.matchingReceipt(d, p.UserID, ReceiptAuthorize, c.Currency, c.Amount); err != nil {
		return err
	}
	h, err := e.singleAccountLeaf(p, c.Currency)
	if err != nil {
		return err
	}
	grown, ok := decrease(h.newL, h.oldL)
	if !ok || !grown.Eq(amount) || !h.newR.Eq(h.oldR) {
		return unsatisfied("deposit must raise available by %s", amount)
	}
	if err := e.authorizedExactly(d, p.UserID, c.Currency, h.oldTotal()); err != nil {
		return err
	}
	if err := e.reservations().Move(PurposeAuthorizingStash, PurposeAuthorizing, p.UserID, c.Currency, d.Account, c.Amount); err != nil {
		return fmt.Errorf("settle deposit: %w", err)
	}
	return e.store().deleteReceipt(d.Account, p.UserID)
}

func (e *Engine) verifyTransferOut(d *Dominator, p *Proof, c TransferOut) error {
	amount, err := toUint128(c.Amount)
	if err != nil {
		return err
	}
	if err := e.matchingReceipt(d, p.UserID, ReceiptRevoke, c.Currency, c.Amount); err != nil {
		return err
	}
	h, err := e.singleAccountLeaf(p, c.Currency)
	if err != nil {
		return err
	}
	if h.oldL.Lt(amount) {
		return unsatisfied("available %s cannot cover withdrawal %s", h.oldL, amount)
	}
	spent, _ := decrease(h.oldL, h.newL)
	if h.newL.Gt(h.oldL) || !spent.Eq(amount) || !h.newR.Eq(h.oldR) {
		return unsatisfied("withdrawal must lower available by %s", amount)
	}
	if err := e.authorizedExactly(d, p.UserID, c.Currency, h.oldTotal()); err != nil {
		return err
	}
	if err := e.reservations().Unreserve(PurposeAuthorizing, p.UserID, c.Currency, d.Account, c.Amount); err != nil {
		return fmt.Errorf("settle withdrawal: %w", err)
	}
	return e.store().deleteReceipt(d.Account, p.UserID)
}

func (e *Engine) verifyRejectTransferOut(d *Dominator, p *Proof, c RejectTransferOut) error {
	amount, err := toUint128(c.Amount)
	if err != nil {
		return err
	}
	if err := e.matchingReceipt(d, p.UserID, ReceiptRevoke, c.Currency, c.Amount); err != nil {
		return err
	}
	h, err := e.singleAccountLeaf(p, c.Currency)
	if err != nil {
		return err
	}
	if !h.oldL.Lt(amount) {
		return unsatisfied("available %s covers withdrawal %s", h.oldL, amount)
	}
	if p.Leaves[0].Old != p.Leaves[0].New {
		return unsatisfied("rejected withdrawal changed the account")
	}
	return e.store().deleteReceipt(d.Account, p.UserID)
}

// verifyRejectTransferIn abandons a pending deposit. No tree state moves, so
// the proof carries no leaves and must keep the accepted root.
func (e *Engine) verifyRejectTransferIn(d *Dominator, p *Proof) error {
	if len(p.Leaves) != 0 {
		return unsatisfied("rejected deposit carries leaves")
	}
	if p.Root != d.MerkleRoot {
		return unsatisfied("rejected deposit moves the root")
	}
	st := e.store()
	r, err := st.receipt(d.Account, p.UserID)
	if err != nil {
		return err
	}
	if r == nil {
		return nil
	}
	if r.Kind != ReceiptAuthorize {
		return ErrReceiptNotExists
	}
	if err := e.reservations().Unreserve(PurposeAuthorizingStash, p.UserID, r.Token, d.Account, r.Amount); err != nil {
		return fmt.Errorf("release stash: %w", err)
	}
	return st.deleteReceipt(d.Account, p.UserID)
}
