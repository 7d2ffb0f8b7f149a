package dominator

import (
	"fmt"

	"clobsettle/core/events"
)

// Verify processes a batch of proofs submitted by the dominator operated by
// caller. Proofs are applied in order, each in its own transaction; the first
// failure stops the batch. The number of committed proofs is returned along
// with the error of the failing one.
func (e *Engine) Verify(caller [20]byte, proofs []*Proof) (int, error) {
	if err := e.ready(); err != nil {
		return 0, err
	}
	for i, p := range proofs {
		if p == nil || p.Command == nil {
			return i, fmt.Errorf("proof %d: %w: missing command", i, ErrProofsUnsatisfied)
		}
		kind := p.Command.Kind().String()
		if err := e.transact(func() error { return e.verifyOne(caller, p) }); err != nil {
			e.metrics.ObserveProof(kind, "rejected")
			e.logger.Warn("proof rejected",
				"dominator", fmt.Sprintf("%x", caller),
				"eventId", p.EventID,
				"command", kind,
				"error", err)
			return i, fmt.Errorf("proof %d (event %d): %w", i, p.EventID, err)
		}
		e.metrics.ObserveProof(kind, "accepted")
		e.logger.Info("proof accepted",
			"dominator", fmt.Sprintf("%x", caller),
			"eventId", p.EventID,
			"command", kind,
			"root", p.Root.Hex())
	}
	return len(proofs), nil
}

func (e *Engine) verifyOne(caller [20]byte, p *Proof) error {
	d, err := e.loadDominator(caller)
	if err != nil {
		return err
	}
	switch d.Status {
	case StatusActive:
	case StatusRegistered:
		return ErrDominatorStatusInvalid
	case StatusInactive:
		return ErrDominatorInactive
	case StatusEvicted:
		return ErrDominatorEvicted
	default:
		return ErrDominatorStatusInvalid
	}
	if p.EventID <= d.Sequence {
		return unsatisfied("event %d already settled (last %d)", p.EventID, d.Sequence)
	}
	if _, reject := p.Command.(RejectTransferIn); !reject {
		if err := VerifyTransition(p.MerkleProof, d.MerkleRoot, p.Root, p.Leaves); err != nil {
			return err
		}
	}

	switch cmd := p.Command.(type) {
	case AskLimit:
		o, err := newLimitOrder(true, cmd.Price, cmd.Amount, cmd.MakerFee, cmd.TakerFee, cmd.Base, cmd.Quote)
		if err != nil {
			return err
		}
		s, err := e.verifyLimit(d, p, o)
		if err != nil {
			return err
		}
		if err := s.apply(e, d); err != nil {
			return err
		}
	case BidLimit:
		o, err := newLimitOrder(false, cmd.Price, cmd.Amount, cmd.MakerFee, cmd.TakerFee, cmd.Base, cmd.Quote)
		if err != nil {
			return err
		}
		s, err := e.verifyLimit(d, p, o)
		if err != nil {
			return err
		}
		if err := s.apply(e, d); err != nil {
			return err
		}
	case Cancel:
		err = e.verifyCancel(d, p, cmd)
	case TransferIn:
		err = e.verifyTransferIn(d, p, cmd)
	case TransferOut:
		err = e.verifyTransferOut(d, p, cmd)
	case RejectTransferOut:
		err = e.verifyRejectTransferOut(d, p, cmd)
	case RejectTransferIn:
		err = e.verifyRejectTransferIn(d, p)
	default:
		return unsatisfied("unsupported command %T", p.Command)
	}
	if err != nil {
		return err
	}

	h := e.height()
	d.MerkleRoot = p.Root
	d.Sequence = p.EventID
	d.SequenceBlock = h
	if err := e.store().putDominator(d); err != nil {
		return err
	}
	e.emit(events.DominatorProofAccepted{
		Dominator: d.Account,
		Account:   p.UserID,
		EventID:   p.EventID,
		Command:   p.Command.Kind().String(),
		Root:      p.Root,
	})
	return nil
}
