package dominator

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/rlp"
)

// CommandKind is the wire tag of a command.
type CommandKind uint8

const (
	KindAskLimit CommandKind = iota + 1
	KindBidLimit
	KindCancel
	KindTransferOut
	KindTransferIn
	KindRejectTransferOut
	KindRejectTransferIn
)

// String implements fmt.Stringer.
func (k CommandKind) String() string {
	switch k {
	case KindAskLimit:
		return "AskLimit"
	case KindBidLimit:
		return "BidLimit"
	case KindCancel:
		return "Cancel"
	case KindTransferOut:
		return "TransferOut"
	case KindTransferIn:
		return "TransferIn"
	case KindRejectTransferOut:
		return "RejectTransferOut"
	case KindRejectTransferIn:
		return "RejectTransferIn"
	default:
		return fmt.Sprintf("CommandKind(%d)", uint8(k))
	}
}

// Command is the claimed trading command of a proof. The set of
// implementations is closed.
type Command interface {
	Kind() CommandKind
	isCommand()
}

// AskLimit sells Amount of Base at a limit Price quoted in Quote.
type AskLimit struct {
	Price    *big.Int
	Amount   *big.Int
	MakerFee uint32
	TakerFee uint32
	Base     uint32
	Quote    uint32
}

// BidLimit buys Amount of Base at a limit Price quoted in Quote.
type BidLimit struct {
	Price    *big.Int
	Amount   *big.Int
	MakerFee uint32
	TakerFee uint32
	Base     uint32
	Quote    uint32
}

// Cancel withdraws a resting order from a market.
type Cancel struct {
	Base  uint32
	Quote uint32
}

// TransferOut settles a revoked withdrawal.
type TransferOut struct {
	Currency uint32
	Amount   *big.Int
}

// TransferIn settles an authorized deposit.
type TransferIn struct {
	Currency uint32
	Amount   *big.Int
}

// RejectTransferOut refuses a withdrawal the user's available balance cannot
// cover.
type RejectTransferOut struct {
	Currency uint32
	Amount   *big.Int
}

// RejectTransferIn abandons a pending deposit.
type RejectTransferIn struct{}

func (AskLimit) Kind() CommandKind          { return KindAskLimit }
func (BidLimit) Kind() CommandKind          { return KindBidLimit }
func (Cancel) Kind() CommandKind            { return KindCancel }
func (TransferOut) Kind() CommandKind       { return KindTransferOut }
func (TransferIn) Kind() CommandKind        { return KindTransferIn }
func (RejectTransferOut) Kind() CommandKind { return KindRejectTransferOut }
func (RejectTransferIn) Kind() CommandKind  { return KindRejectTransferIn }

func (AskLimit) isCommand()          {}
func (BidLimit) isCommand()          {}
func (Cancel) isCommand()            {}
func (TransferOut) isCommand()       {}
func (TransferIn) isCommand()        {}
func (RejectTransferOut) isCommand() {}
func (RejectTransferIn) isCommand()  {}

// Proof is one claimed state transition of the off-chain tree.
type Proof struct {
	EventID       uint64
	UserID        [20]byte
	Command       Command
	Leaves        []Leaf
	MakerAccounts uint32
	PageCount     uint32
	MerkleProof   []byte
	Root          common.Hash
}

type wireProof struct {
	EventID       uint64
	UserID        [20]byte
	Kind          uint8
	Command       rlp.RawValue
	Leaves        []Leaf
	MakerAccounts uint32
	PageCount     uint32
	MerkleProof   []byte
	Root          common.Hash
}

func (p *Proof) toWire() (*wireProof, error) {
	if p == nil || p.Command == nil {
		return nil, fmt.Errorf("dominator: proof without command")
	}
	cmd, err := rlp.EncodeToBytes(p.Command)
	if err != nil {
		return nil, fmt.Errorf("dominator: encode %s: %w", p.Command.Kind(), err)
	}
	return &wireProof{
		EventID:       p.EventID,
		UserID:        p.UserID,
		Kind:          uint8(p.Command.Kind()),
		Command:       cmd,
		Leaves:        p.Leaves,
		MakerAccounts: p.MakerAccounts,
		PageCount:     p.PageCount,
		MerkleProof:   p.MerkleProof,
		Root:          p.Root,
	}, nil
}

func (w *wireProof) toProof() (*Proof, error) {
	cmd, err := decodeCommand(CommandKind(w.Kind), w.Command)
	if err != nil {
		return nil, err
	}
	return &Proof{
		EventID:       w.EventID,
		UserID:        w.UserID,
		Command:       cmd,
		Leaves:        w.Leaves,
		MakerAccounts: w.MakerAccounts,
		PageCount:     w.PageCount,
		MerkleProof:   w.MerkleProof,
		Root:          w.Root,
	}, nil
}

func decodeCommand(kind CommandKind, raw []byte) (Command, error) {
	var (
		cmd Command
		err error
	)
	switch kind {
	case KindAskLimit:
		var c AskLimit
		err = rlp.DecodeBytes(raw, &c)
		cmd = c
	case KindBidLimit:
		var c BidLimit
		err = rlp.DecodeBytes(raw, &c)
		cmd = c
	case KindCancel:
		var c Cancel
		err = rlp.DecodeBytes(raw, &c)
		cmd = c
	case KindTransferOut:
		var c TransferOut
		err = rlp.DecodeBytes(raw, &c)
		cmd = c
	case KindTransferIn:
		var c TransferIn
		err = rlp.DecodeBytes(raw, &c)
		cmd = c
	case KindRejectTransferOut:
		var c RejectTransferOut
		err = rlp.DecodeBytes(raw, &c)
		cmd = c
	case KindRejectTransferIn:
		var c RejectTransferIn
		err = rlp.DecodeBytes(raw, &c)
		cmd = c
	default:
		return nil, fmt.Errorf("dominator: unknown command kind %d", uint8(kind))
	}
	if err != nil {
		return nil, fmt.Errorf("dominator: decode %s: %w", kind, err)
	}
	return cmd, nil
}

// EncodeProof serialises a proof to its RLP wire form.
func EncodeProof(p *Proof) ([]byte, error) {
	w, err := p.toWire()
	if err != nil {
		return nil, err
	}
	return rlp.EncodeToBytes(w)
}

// DecodeProof parses a proof from its RLP wire form.
func DecodeProof(data []byte) (*Proof, error) {
	var w wireProof
	if err := rlp.DecodeBytes(data, &w); err != nil {
		return nil, fmt.Errorf("dominator: decode proof: %w", err)
	}
	return w.toProof()
}

// EncodeBatch serialises proofs as one RLP list.
func EncodeBatch(proofs []*Proof) ([]byte, error) {
	wire := make([]*wireProof, 0, len(proofs))
	for i, p := range proofs {
		w, err := p.toWire()
		if err != nil {
			return nil, fmt.Errorf("proof %d: %w", i, err)
		}
		wire = append(wire, w)
	}
	return rlp.EncodeToBytes(wire)
}

// DecodeBatch parses a batch produced by EncodeBatch.
func DecodeBatch(data []byte) ([]*Proof, error) {
	var wire []*wireProof
	if err := rlp.DecodeBytes(data, &wire); err != nil {
		return nil, fmt.Errorf("dominator: decode batch: %w", err)
	}
	proofs := make([]*Proof, 0, len(wire))
	for i, w := range wire {
		p, err := w.toProof()
		if err != nil {
			return nil, fmt.Errorf("proof %d: %w", i, err)
		}
		proofs = append(proofs, p)
	}
	return proofs, nil
}
