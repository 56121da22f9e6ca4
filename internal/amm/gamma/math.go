package gamma

import (
	"fmt"
	"math/big"

	"zapquote/internal/amm"
	"zapquote/internal/amm/gamma/tickmath"
)

// Precision is the fixed point unit of hypervisor prices.
var Precision = new(big.Int).Exp(big.NewInt(10), big.NewInt(36), nil)

var q192 = new(big.Int).Lsh(big.NewInt(1), 192)

// PriceAtTick returns the token1 per token0 price of tick scaled by Precision.
func PriceAtTick(tick int32) (*big.Int, error) {
	sqrtPrice, err := tickmath.GetSqrtRatioAtTick(tick)
	if err != nil {
		return nil, err
	}
	return PriceFromSqrt(sqrtPrice), nil
}

// PriceFromSqrt returns sqrtPriceX96²·Precision/2^192.
func PriceFromSqrt(sqrtPriceX96 *big.Int) *big.Int {
	price := new(big.Int).Mul(sqrtPriceX96, sqrtPriceX96)
	price.Mul(price, Precision)
	return price.Quo(price, q192)
}

// Shares returns the hypervisor shares minted for a deposit:
// deposit1 + deposit0·price, scaled by totalSupply over the pool value in token1.
func Shares(deposit0, deposit1, price, total0, total1, totalSupply *big.Int) (*big.Int, error) {
	shares := new(big.Int).Mul(deposit0, price)
	shares.Quo(shares, Precision)
	shares.Add(shares, deposit1)
	if totalSupply.Sign() == 0 {
		return shares, nil
	}
	value := new(big.Int).Mul(total0, price)
	value.Quo(value, Precision)
	value.Add(value, total1)
	if value.Sign() == 0 {
		return nil, amm.ErrInsufficientLiquidity
	}
	shares.Mul(shares, totalSupply)
	return shares.Quo(shares, value), nil
}

// WithdrawAmounts returns the proportional share of the hypervisor totals.
func WithdrawAmounts(shares, total0, total1, totalSupply *big.Int) (*big.Int, *big.Int, error) {
	if totalSupply.Sign() == 0 {
		return nil, nil, amm.ErrInsufficientLiquidity
	}
	amount0 := new(big.Int).Mul(total0, shares)
	amount0.Quo(amount0, totalSupply)
	amount1 := new(big.Int).Mul(total1, shares)
	amount1.Quo(amount1, totalSupply)
	return amount0, amount1, nil
}

// Band is the accepted range of the opposite token for a deposit.
type Band struct {
	Start *big.Int
	End   *big.Int
}

// Contains reports whether amount lies inside the band.
func (b Band) Contains(amount *big.Int) bool {
	return amount.Cmp(b.Start) >= 0 && amount.Cmp(b.End) <= 0
}

// Mid returns the band midpoint.
func (b Band) Mid() *big.Int {
	mid := new(big.Int).Add(b.Start, b.End)
	return mid.Rsh(mid, 1)
}

// FitToBand keeps deposit0 and trims deposit1 to the midpoint of band1 when it is above
// the band, or trims deposit0 to the midpoint of band0 when deposit1 is below it.
// band1 is the token1 range for deposit0 and band0 the token0 range for deposit1.
// A single sided deposit is checked against the band of the side that was offered and
// is kept as is when that band admits zero of the other token.
func FitToBand(deposit0, deposit1 *big.Int, band1, band0 Band) (*big.Int, *big.Int, error) {
	zero := new(big.Int)
	switch {
	case deposit0.Sign() == 0 && deposit1.Sign() == 0:
		return zero, new(big.Int), nil
	case deposit0.Sign() == 0:
		if !band0.Contains(zero) {
			return nil, nil, fmt.Errorf("%w: deposit needs at least %s token0", amm.ErrInsufficientLiquidity, band0.Start)
		}
		return zero, new(big.Int).Set(deposit1), nil
	case deposit1.Sign() == 0:
		if !band1.Contains(zero) {
			return nil, nil, fmt.Errorf("%w: deposit needs at least %s token1", amm.ErrInsufficientLiquidity, band1.Start)
		}
		return new(big.Int).Set(deposit0), zero, nil
	case band1.Contains(deposit1):
		return new(big.Int).Set(deposit0), new(big.Int).Set(deposit1), nil
	case deposit1.Cmp(band1.End) > 0:
		return new(big.Int).Set(deposit0), band1.Mid(), nil
	default:
		return fitMin(deposit0, band0.Mid()), new(big.Int).Set(deposit1), nil
	}
}

func fitMin(a, b *big.Int) *big.Int {
	if a.Cmp(b) < 0 {
		return new(big.Int).Set(a)
	}
	return b
}

// SwapForDeposit returns how much of full to swap so that the swapped part, valued at
// price, and the rest sit at the band midpoint. mid is the opposite side band midpoint of
// a deposit of full.
func SwapForDeposit(full, mid, price *big.Int, zeroForOne bool) *big.Int {
	num := new(big.Int)
	den := new(big.Int)
	if zeroForOne {
		// s = full·mid·P / (price·full + mid·P)
		num.Mul(full, mid).Mul(num, Precision)
		den.Mul(price, full).Add(den, new(big.Int).Mul(mid, Precision))
	} else {
		// s = full·mid·price / (full·P + mid·price)
		num.Mul(full, mid).Mul(num, price)
		den.Mul(full, Precision).Add(den, new(big.Int).Mul(mid, price))
	}
	if den.Sign() == 0 {
		return new(big.Int)
	}
	return num.Quo(num, den)
}
