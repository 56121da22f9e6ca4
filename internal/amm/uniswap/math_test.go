package uniswap

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"zapquote/internal/amm"
)

func TestGetAmountOut(t *testing.T) {
	testCases := []struct {
		name       string
		amountIn   int64
		reserveIn  int64
		reserveOut int64
		expected   int64
	}{
		{"token0 to token1", 10_000, 1_000_000, 2_000_000, 19_743},
		{"token1 to token0", 10_000, 2_000_000, 1_000_000, 4_960},
	}
	fee := NewFee(3, 1000)

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			out, err := GetAmountOut(big.NewInt(tc.amountIn), big.NewInt(tc.reserveIn), big.NewInt(tc.reserveOut), fee)
			require.NoError(t, err)
			assert.Equal(t, tc.expected, out.Int64())

			// k never decreases
			kBefore := new(big.Int).Mul(big.NewInt(tc.reserveIn), big.NewInt(tc.reserveOut))
			kAfter := new(big.Int).Mul(big.NewInt(tc.reserveIn+tc.amountIn), new(big.Int).Sub(big.NewInt(tc.reserveOut), out))
			assert.True(t, kAfter.Cmp(kBefore) >= 0)
		})
	}
}

func TestGetAmountOutErrors(t *testing.T) {
	fee := NewFee(3, 1000)
	_, err := GetAmountOut(big.NewInt(0), big.NewInt(1), big.NewInt(1), fee)
	assert.ErrorIs(t, err, amm.ErrInvalidAmount)

	_, err = GetAmountOut(big.NewInt(1), big.NewInt(0), big.NewInt(1), fee)
	assert.ErrorIs(t, err, amm.ErrInsufficientLiquidity)

	_, err = GetAmountOut(big.NewInt(1), big.NewInt(1), big.NewInt(1), NewFee(5, 4))
	assert.ErrorIs(t, err, amm.ErrUnsupportedVariant)
}

func TestGetAmountIn(t *testing.T) {
	fee := NewFee(3, 1000)
	in, err := GetAmountIn(big.NewInt(19_743), big.NewInt(1_000_000), big.NewInt(2_000_000), fee)
	require.NoError(t, err)
	assert.Equal(t, int64(10_000), in.Int64())

	_, err = GetAmountIn(big.NewInt(2_000_000), big.NewInt(1_000_000), big.NewInt(2_000_000), fee)
	assert.ErrorIs(t, err, amm.ErrInsufficientLiquidity)
}

func TestMintFee(t *testing.T) {
	reserve := big.NewInt(2_000_000)
	supply := big.NewInt(1_000_000)
	kLast := big.NewInt(1_000_000_000_000)

	assert.Equal(t, int64(90_909), MintFee(reserve, reserve, supply, kLast, NewFee(1, 6)).Int64())
	assert.Equal(t, int64(190_476), MintFee(reserve, reserve, supply, kLast, NewFee(8, 25)).Int64())

	assert.Zero(t, MintFee(reserve, reserve, supply, big.NewInt(0), NewFee(1, 6)).Sign(), "kLast of zero disables the fee")
	assert.Zero(t, MintFee(big.NewInt(1), big.NewInt(1), supply, kLast, NewFee(1, 6)).Sign(), "no growth, no fee")
}

func TestLiquidityMinted(t *testing.T) {
	liquidity, err := LiquidityMinted(big.NewInt(1000), big.NewInt(2000), big.NewInt(1_000_000), big.NewInt(2_000_000), big.NewInt(1_000_000), 1000)
	require.NoError(t, err)
	assert.Equal(t, int64(1000), liquidity.Int64())

	first, err := LiquidityMinted(big.NewInt(1_000_000), big.NewInt(4_000_000), big.NewInt(0), big.NewInt(0), big.NewInt(0), 1000)
	require.NoError(t, err)
	assert.Equal(t, int64(1_999_000), first.Int64())

	_, err = LiquidityMinted(big.NewInt(10), big.NewInt(10), big.NewInt(0), big.NewInt(0), big.NewInt(0), 1000)
	assert.ErrorIs(t, err, amm.ErrInsufficientLiquidity)
}

func TestOptimalAmounts(t *testing.T) {
	a0, a1, err := OptimalAmounts(big.NewInt(1000), big.NewInt(5000), big.NewInt(1_000_000), big.NewInt(2_000_000))
	require.NoError(t, err)
	assert.Equal(t, int64(1000), a0.Int64())
	assert.Equal(t, int64(2000), a1.Int64())

	a0, a1, err = OptimalAmounts(big.NewInt(5000), big.NewInt(1000), big.NewInt(1_000_000), big.NewInt(2_000_000))
	require.NoError(t, err)
	assert.Equal(t, int64(500), a0.Int64())
	assert.Equal(t, int64(1000), a1.Int64())
}

func TestOptimalSwapIn(t *testing.T) {
	reserveIn := big.NewInt(1_000_000)
	reserveOut := big.NewInt(2_000_000)
	fee := NewFee(3, 1000)

	swap, err := OptimalSwapIn(big.NewInt(100_000), reserveIn, reserveOut, fee)
	require.NoError(t, err)
	assert.Equal(t, int64(48_843), swap.Int64())

	// the remainder and the output match the post-swap ratio closely
	out, err := GetAmountOut(swap, reserveIn, reserveOut, fee)
	require.NoError(t, err)
	remainder := new(big.Int).Sub(big.NewInt(100_000), swap)
	newIn := new(big.Int).Add(reserveIn, swap)
	newOut := new(big.Int).Sub(reserveOut, out)
	needed, err := Quote(remainder, newIn, newOut)
	require.NoError(t, err)
	diff := new(big.Int).Sub(needed, out)
	assert.True(t, diff.CmpAbs(big.NewInt(500)) < 0, "ratio mismatch %s", diff)

	_, err = OptimalSwapIn(big.NewInt(1), reserveIn, reserveOut, fee)
	assert.ErrorIs(t, err, amm.ErrInsufficientLiquidity)
}

func TestBurnAmounts(t *testing.T) {
	a0, a1, err := BurnAmounts(big.NewInt(1000), big.NewInt(1_000_000), big.NewInt(2_000_000), big.NewInt(1_000_000))
	require.NoError(t, err)
	assert.Equal(t, int64(1000), a0.Int64())
	assert.Equal(t, int64(2000), a1.Int64())

	_, _, err = BurnAmounts(big.NewInt(1), big.NewInt(1), big.NewInt(1), big.NewInt(1_000_000))
	assert.ErrorIs(t, err, amm.ErrInsufficientLiquidity)
}
