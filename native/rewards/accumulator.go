package rewards

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math/big"
)

var (
	errNilStore       = errors.New("rewards: storage not configured")
	errInvalidVolume  = errors.New("rewards: volume must be non-negative")
	errZeroEraLength  = errors.New("rewards: era length must be positive")
	volumePrefix      = []byte("rewards/volume/")
	totalPrefix       = []byte("rewards/total/")
	participantPrefix = []byte("rewards/participants/")
)

// Storage abstracts the state manager functionality required by the
// accumulator.
type Storage interface {
	KVGet(key []byte, out interface{}) (bool, error)
	KVPut(key []byte, value interface{}) error
	KVAppend(key []byte, value []byte) error
	KVGetList(key []byte, out interface{}) error
}

// Config controls how trading volume is bucketed.
type Config struct {
	EraLength uint64
}

// DefaultConfig returns eras of one day of six second blocks.
func DefaultConfig() Config {
	return Config{EraLength: 14_400}
}

// Validate ensures the configuration values fall within acceptable bounds.
func (c Config) Validate() error {
	if c.EraLength == 0 {
		return errZeroEraLength
	}
	return nil
}

// Accumulator records quote volume traded per account and era. The totals feed
// trading reward programmes run outside the settlement engine.
type Accumulator struct {
	store  Storage
	config Config
}

// NewAccumulator binds an accumulator to store.
func NewAccumulator(store Storage, cfg Config) (*Accumulator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Accumulator{store: store, config: cfg}, nil
}

func eraKey(prefix []byte, era uint64, account *[20]byte) []byte {
	size := len(prefix) + 8
	if account != nil {
		size += 20
	}
	buf := make([]byte, size)
	copy(buf, prefix)
	binary.BigEndian.PutUint64(buf[len(prefix):], era)
	if account != nil {
		copy(buf[len(prefix)+8:], account[:])
	}
	return buf
}

// Era returns the era containing height.
func (a *Accumulator) Era(height uint64) uint64 {
	return height / a.config.EraLength
}

// SaveTrading adds volume to the account's total of the era containing height.
func (a *Accumulator) SaveTrading(account [20]byte, volume *big.Int, height uint64) error {
	if a == nil || a.store == nil {
		return errNilStore
	}
	if volume == nil || volume.Sign() < 0 {
		return errInvalidVolume
	}
	if volume.Sign() == 0 {
		return nil
	}
	era := a.Era(height)
	current, err := a.Volume(era, account)
	if err != nil {
		return err
	}
	if err := a.store.KVPut(eraKey(volumePrefix, era, &account), current.Add(current, volume)); err != nil {
		return fmt.Errorf("rewards: store volume: %w", err)
	}
	total, err := a.EraTotal(era)
	if err != nil {
		return err
	}
	if err := a.store.KVPut(eraKey(totalPrefix, era, nil), total.Add(total, volume)); err != nil {
		return fmt.Errorf("rewards: store era total: %w", err)
	}
	return a.store.KVAppend(eraKey(participantPrefix, era, nil), account[:])
}

// Volume returns the volume traded by account during era.
func (a *Accumulator) Volume(era uint64, account [20]byte) (*big.Int, error) {
	if a == nil || a.store == nil {
		return nil, errNilStore
	}
	out := new(big.Int)
	if _, err := a.store.KVGet(eraKey(volumePrefix, era, &account), out); err != nil {
		return nil, fmt.Errorf("rewards: load volume: %w", err)
	}
	return out, nil
}

// EraTotal returns the volume traded by every account during era.
func (a *Accumulator) EraTotal(era uint64) (*big.Int, error) {
	if a == nil || a.store == nil {
		return nil, errNilStore
	}
	out := new(big.Int)
	if _, err := a.store.KVGet(eraKey(totalPrefix, era, nil), out); err != nil {
		return nil, fmt.Errorf("rewards: load era total: %w", err)
	}
	return out, nil
}

// Participants lists the accounts that traded during era in first-trade order.
func (a *Accumulator) Participants(era uint64) ([][20]byte, error) {
	if a == nil || a.store == nil {
		return nil, errNilStore
	}
	var raw [][]byte
	if err := a.store.KVGetList(eraKey(participantPrefix, era, nil), &raw); err != nil {
		return nil, fmt.Errorf("rewards: load participants: %w", err)
	}
	out := make([][20]byte, 0, len(raw))
	for _, r := range raw {
		var account [20]byte
		copy(account[:], r)
		out = append(out, account)
	}
	return out, nil
}
