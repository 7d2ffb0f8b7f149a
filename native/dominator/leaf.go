package dominator

import (
	"encoding/binary"
	"fmt"
	"math/big"

	"github.com/holiman/uint256"
)

// Leaf key tags.
const (
	TagAccount   byte = 0x00
	TagOrderbook byte = 0x01
	TagBestPrice byte = 0x02
	TagPage      byte = 0x03
)

const (
	accountKeyLen   = 1 + 20 + 4
	orderbookKeyLen = 1 + 4 + 4
	pageKeyLen      = orderbookKeyLen + 16
)

// Leaf is a single proven slot transition. Old and New each pack two
// big-endian 128-bit halves. An all-zero value is an absent slot.
type Leaf struct {
	Key []byte
	Old [32]byte
	New [32]byte
}

// AccountKey is the slot holding (available, frozen) of account for token.
func AccountKey(account [20]byte, token uint32) []byte {
	key := make([]byte, accountKeyLen)
	key[0] = TagAccount
	copy(key[1:21], account[:])
	binary.BigEndian.PutUint32(key[21:], token)
	return key
}

// OrderbookKey is the slot holding (ask size, bid size) of a market.
func OrderbookKey(base, quote uint32) []byte {
	return marketKey(TagOrderbook, base, quote)
}

// BestPriceKey is the slot holding (best ask, best bid) of a market.
func BestPriceKey(base, quote uint32) []byte {
	return marketKey(TagBestPrice, base, quote)
}

// PageKey is the slot holding (ask size, bid size) resting at price.
func PageKey(base, quote uint32, price *uint256.Int) []byte {
	key := make([]byte, pageKeyLen)
	copy(key, marketKey(TagPage, base, quote))
	b := price.Bytes32()
	copy(key[orderbookKeyLen:], b[16:])
	return key
}

func marketKey(tag byte, base, quote uint32) []byte {
	key := make([]byte, orderbookKeyLen)
	key[0] = tag
	binary.BigEndian.PutUint32(key[1:5], base)
	binary.BigEndian.PutUint32(key[5:9], quote)
	return key
}

// LeafKey is a decoded leaf key.
type LeafKey struct {
	Tag     byte
	Account [20]byte
	Token   uint32
	Base    uint32
	Quote   uint32
	Price   *uint256.Int
}

// DecodeKey parses a leaf key.
func DecodeKey(key []byte) (LeafKey, error) {
	if len(key) == 0 {
		return LeafKey{}, fmt.Errorf("empty leaf key")
	}
	out := LeafKey{Tag: key[0]}
	switch key[0] {
	case TagAccount:
		if len(key) != accountKeyLen {
			return LeafKey{}, fmt.Errorf("account key length %d", len(key))
		}
		copy(out.Account[:], key[1:21])
		out.Token = binary.BigEndian.Uint32(key[21:])
	case TagOrderbook, TagBestPrice:
		if len(key) != orderbookKeyLen {
			return LeafKey{}, fmt.Errorf("market key length %d", len(key))
		}
		out.Base = binary.BigEndian.Uint32(key[1:5])
		out.Quote = binary.BigEndian.Uint32(key[5:9])
	case TagPage:
		if len(key) != pageKeyLen {
			return LeafKey{}, fmt.Errorf("page key length %d", len(key))
		}
		out.Base = binary.BigEndian.Uint32(key[1:5])
		out.Quote = binary.BigEndian.Uint32(key[5:9])
		out.Price = new(uint256.Int).SetBytes(key[orderbookKeyLen:])
	default:
		return LeafKey{}, fmt.Errorf("unknown leaf tag 0x%02x", key[0])
	}
	return out, nil
}

// PackValue packs two 128-bit halves into a leaf value.
func PackValue(l, r *uint256.Int) ([32]byte, error) {
	var out [32]byte
	if l.BitLen() > 128 || r.BitLen() > 128 {
		return out, ErrOverflow
	}
	lb, rb := l.Bytes32(), r.Bytes32()
	copy(out[:16], lb[16:])
	copy(out[16:], rb[16:])
	return out, nil
}

// SplitValue unpacks a leaf value into its two halves.
func SplitValue(v [32]byte) (*uint256.Int, *uint256.Int) {
	return new(uint256.Int).SetBytes(v[:16]), new(uint256.Int).SetBytes(v[16:])
}

// halves is a decoded leaf transition.
type halves struct {
	oldL, oldR, newL, newR *uint256.Int
}

func (l Leaf) halves() halves {
	ol, or := SplitValue(l.Old)
	nl, nr := SplitValue(l.New)
	return halves{oldL: ol, oldR: or, newL: nl, newR: nr}
}

func (h halves) oldTotal() *uint256.Int { return new(uint256.Int).Add(h.oldL, h.oldR) }
func (h halves) newTotal() *uint256.Int { return new(uint256.Int).Add(h.newL, h.newR) }

// expectKey checks that leaf carries exactly want.
func expectKey(l Leaf, want []byte) error {
	if string(l.Key) != string(want) {
		return fmt.Errorf("%w: unexpected leaf key %x, want %x", ErrProofsUnsatisfied, l.Key, want)
	}
	return nil
}

// decrease returns a-b and false when b exceeds a.
func decrease(a, b *uint256.Int) (*uint256.Int, bool) {
	out, underflow := new(uint256.Int).SubOverflow(a, b)
	return out, !underflow
}

// ceilFee returns ceil(amount * rate / FeeScale).
func ceilFee(amount *uint256.Int, rate uint32) (*uint256.Int, error) {
	product, overflow := new(uint256.Int).MulOverflow(amount, uint256.NewInt(uint64(rate)))
	if overflow {
		return nil, ErrOverflow
	}
	return ceilDiv(product, uint256.NewInt(FeeScale)), nil
}

func ceilDiv(x, d *uint256.Int) *uint256.Int {
	q, r := new(uint256.Int).DivMod(x, d, new(uint256.Int))
	if !r.IsZero() {
		q.AddUint64(q, 1)
	}
	return q
}

// toUint128 converts a non-negative big integer bounded by 128 bits.
func toUint128(v *big.Int) (*uint256.Int, error) {
	if v == nil || v.Sign() < 0 {
		return nil, ErrInvalidAmount
	}
	if v.BitLen() > 128 {
		return nil, ErrOverflow
	}
	out, _ := uint256.FromBig(v)
	return out, nil
}
