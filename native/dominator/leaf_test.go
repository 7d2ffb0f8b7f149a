package dominator

import (
	"testing"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"
)

func TestPackValueSplitsIntoHalves(t *testing.T) {
	v, err := PackValue(uint256.NewInt(7), uint256.NewInt(9))
	require.NoError(t, err)
	require.Equal(t, byte(7), v[15])
	require.Equal(t, byte(9), v[31])
	l, r := SplitValue(v)
	require.Equal(t, uint64(7), l.Uint64())
	require.Equal(t, uint64(9), r.Uint64())

	wide := new(uint256.Int).Lsh(uint256.NewInt(1), 128)
	_, err = PackValue(wide, uint256.NewInt(0))
	require.ErrorIs(t, err, ErrOverflow)
	_, err = PackValue(uint256.NewInt(0), wide)
	require.ErrorIs(t, err, ErrOverflow)
}

func TestDecodeKey(t *testing.T) {
	k, err := DecodeKey(AccountKey(alice, quoteToken))
	require.NoError(t, err)
	require.Equal(t, TagAccount, k.Tag)
	require.Equal(t, alice, k.Account)
	require.Equal(t, quoteToken, k.Token)

	k, err = DecodeKey(BestPriceKey(baseToken, quoteToken))
	require.NoError(t, err)
	require.Equal(t, TagBestPrice, k.Tag)
	require.Equal(t, baseToken, k.Base)
	require.Equal(t, quoteToken, k.Quote)

	price := uint256.NewInt(testPrice)
	k, err = DecodeKey(PageKey(baseToken, quoteToken, price))
	require.NoError(t, err)
	require.Equal(t, TagPage, k.Tag)
	require.True(t, k.Price.Eq(price))

	_, err = DecodeKey(nil)
	require.Error(t, err)
	_, err = DecodeKey([]byte{0x09, 0x01})
	require.Error(t, err)
	_, err = DecodeKey(OrderbookKey(baseToken, quoteToken)[:5])
	require.Error(t, err)
}

func TestCeilFee(t *testing.T) {
	fee, err := ceilFee(uint256.NewInt(10), 1000)
	require.NoError(t, err)
	require.Equal(t, uint64(1), fee.Uint64())

	fee, err = ceilFee(uint256.NewInt(2_000_000), 1000)
	require.NoError(t, err)
	require.Equal(t, uint64(2000), fee.Uint64())

	fee, err = ceilFee(uint256.NewInt(10), 0)
	require.NoError(t, err)
	require.True(t, fee.IsZero())
}
