package dominator

import (
	"encoding/binary"
	"fmt"
	"math/big"
	"sort"
)

var (
	recordPrefix      = []byte("dominator/record/")
	namePrefix        = []byte("dominator/name/")
	indexKey          = []byte("dominator/index")
	receiptPrefix     = []byte("dominator/receipt/")
	reservationPrefix = []byte("dominator/reserve/")
	stakingPrefix     = []byte("dominator/staking/")
	bonusPrefix       = []byte("dominator/bonus/")
	seasonsPrefix     = []byte("dominator/seasons/")
	unstakePrefix     = []byte("dominator/unstake/")
	unlockIndexKey    = []byte("dominator/unstake-index")
)

func concatKey(prefix []byte, parts ...[]byte) []byte {
	size := len(prefix)
	for _, p := range parts {
		size += len(p)
	}
	buf := make([]byte, 0, size)
	buf = append(buf, prefix...)
	for _, p := range parts {
		buf = append(buf, p...)
	}
	return buf
}

func u32(v uint32) []byte {
	var out [4]byte
	binary.BigEndian.PutUint32(out[:], v)
	return out[:]
}

func u64(v uint64) []byte {
	var out [8]byte
	binary.BigEndian.PutUint64(out[:], v)
	return out[:]
}

func recordKey(account [20]byte) []byte { return concatKey(recordPrefix, account[:]) }
func nameKey(name string) []byte        { return concatKey(namePrefix, []byte(name)) }

func receiptKey(dominator, user [20]byte) []byte {
	return concatKey(receiptPrefix, dominator[:], user[:])
}

func reservationKey(p Purpose, owner [20]byte, token uint32, dominator [20]byte) []byte {
	return concatKey(reservationPrefix, []byte{byte(p)}, owner[:], u32(token), dominator[:])
}

func stakingKey(dominator, staker [20]byte) []byte {
	return concatKey(stakingPrefix, dominator[:], staker[:])
}

func bonusKey(dominator [20]byte, season uint64) []byte {
	return concatKey(bonusPrefix, dominator[:], u64(season))
}

func seasonsKey(dominator [20]byte) []byte { return concatKey(seasonsPrefix, dominator[:]) }
func unstakeKey(block uint64) []byte       { return concatKey(unstakePrefix, u64(block)) }

// store is the persistence layer of the engine.
type store struct {
	state engineState
}

func (s store) dominator(account [20]byte) (*Dominator, bool, error) {
	var d Dominator
	ok, err := s.state.KVGet(recordKey(account), &d)
	if err != nil {
		return nil, false, fmt.Errorf("dominator: load record: %w", err)
	}
	if !ok {
		return nil, false, nil
	}
	d.ensureDefaults()
	return &d, true, nil
}

func (s store) putDominator(d *Dominator) error {
	d.ensureDefaults()
	return s.state.KVPut(recordKey(d.Account), d)
}

func (s store) nameTaken(name string) (bool, error) {
	return s.state.KVGet(nameKey(name), nil)
}

func (s store) putName(name string, account [20]byte) error {
	return s.state.KVPut(nameKey(name), account[:])
}

func (s store) appendIndex(account [20]byte) error {
	return s.state.KVAppend(indexKey, account[:])
}

func (s store) index() ([][20]byte, error) {
	var raw [][]byte
	if err := s.state.KVGetList(indexKey, &raw); err != nil {
		return nil, fmt.Errorf("dominator: load index: %w", err)
	}
	out := make([][20]byte, 0, len(raw))
	for _, r := range raw {
		if len(r) != 20 {
			return nil, fmt.Errorf("dominator: corrupt index entry")
		}
		var a [20]byte
		copy(a[:], r)
		out = append(out, a)
	}
	return out, nil
}

func (s store) receipt(dominator, user [20]byte) (*Receipt, error) {
	var r Receipt
	ok, err := s.state.KVGet(receiptKey(dominator, user), &r)
	if err != nil {
		return nil, fmt.Errorf("dominator: load receipt: %w", err)
	}
	if !ok {
		return nil, nil
	}
	return &r, nil
}

func (s store) putReceipt(dominator, user [20]byte, r *Receipt) error {
	return s.state.KVPut(receiptKey(dominator, user), r)
}

func (s store) deleteReceipt(dominator, user [20]byte) error {
	return s.state.KVDelete(receiptKey(dominator, user))
}

func (s store) reservation(key []byte) (*big.Int, error) {
	amount := new(big.Int)
	if _, err := s.state.KVGet(key, amount); err != nil {
		return nil, fmt.Errorf("dominator: load reservation: %w", err)
	}
	return amount, nil
}

func (s store) putReservation(key []byte, amount *big.Int) error {
	if amount.Sign() == 0 {
		return s.state.KVDelete(key)
	}
	return s.state.KVPut(key, amount)
}

func (s store) staking(dominator, staker [20]byte) (*Staking, error) {
	var st Staking
	ok, err := s.state.KVGet(stakingKey(dominator, staker), &st)
	if err != nil {
		return nil, fmt.Errorf("dominator: load staking: %w", err)
	}
	if !ok {
		return nil, nil
	}
	st.ensureDefaults()
	return &st, nil
}

func (s store) putStaking(dominator, staker [20]byte, st *Staking) error {
	if st.Amount.Sign() == 0 {
		return s.state.KVDelete(stakingKey(dominator, staker))
	}
	return s.state.KVPut(stakingKey(dominator, staker), st)
}

func (s store) bonus(dominator [20]byte, season uint64) (*Bonus, error) {
	var b Bonus
	ok, err := s.state.KVGet(bonusKey(dominator, season), &b)
	if err != nil {
		return nil, fmt.Errorf("dominator: load bonus: %w", err)
	}
	if !ok {
		return nil, nil
	}
	b.ensureDefaults()
	return &b, nil
}

func (s store) putBonus(dominator [20]byte, season uint64, b *Bonus) error {
	b.ensureDefaults()
	return s.state.KVPut(bonusKey(dominator, season), b)
}

func (s store) seasons(dominator [20]byte) ([]uint64, error) {
	var out []uint64
	if _, err := s.state.KVGet(seasonsKey(dominator), &out); err != nil {
		return nil, fmt.Errorf("dominator: load season index: %w", err)
	}
	return out, nil
}

func (s store) putSeasons(dominator [20]byte, seasons []uint64) error {
	return s.state.KVPut(seasonsKey(dominator), seasons)
}

func (s store) pendingUnstakes(block uint64) ([]PendingUnstake, error) {
	var out []PendingUnstake
	if _, err := s.state.KVGet(unstakeKey(block), &out); err != nil {
		return nil, fmt.Errorf("dominator: load unstake queue: %w", err)
	}
	return out, nil
}

func (s store) putPendingUnstakes(block uint64, list []PendingUnstake) error {
	if len(list) == 0 {
		return s.state.KVDelete(unstakeKey(block))
	}
	return s.state.KVPut(unstakeKey(block), list)
}

// unlockHeights returns the heights holding a pending unstake queue in
// ascending order.
func (s store) unlockHeights() ([]uint64, error) {
	var out []uint64
	if _, err := s.state.KVGet(unlockIndexKey, &out); err != nil {
		return nil, fmt.Errorf("dominator: load unlock index: %w", err)
	}
	return out, nil
}

func (s store) putUnlockHeights(heights []uint64) error {
	if len(heights) == 0 {
		return s.state.KVDelete(unlockIndexKey)
	}
	return s.state.KVPut(unlockIndexKey, heights)
}

// enqueueUnstake appends p to the queue maturing at block and indexes block.
func (s store) enqueueUnstake(block uint64, p PendingUnstake) error {
	queue, err := s.pendingUnstakes(block)
	if err != nil {
		return err
	}
	if err := s.putPendingUnstakes(block, append(queue, p)); err != nil {
		return err
	}
	heights, err := s.unlockHeights()
	if err != nil {
		return err
	}
	i := sort.Search(len(heights), func(i int) bool { return heights[i] >= block })
	if i < len(heights) && heights[i] == block {
		return nil
	}
	heights = append(heights, 0)
	copy(heights[i+1:], heights[i:])
	heights[i] = block
	return s.putUnlockHeights(heights)
}
