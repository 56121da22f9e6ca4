package uniswap

import (
	"fmt"
	"math/big"

	"github.com/shopspring/decimal"

	"zapquote/internal/amm"
	"zapquote/internal/fixedpoint"
)

// FeeFraction is a fee of N/D.
type FeeFraction struct {
	N *big.Int
	D *big.Int
}

// NewFee builds a fee fraction from integers.
func NewFee(n, d uint64) FeeFraction {
	return FeeFraction{N: new(big.Int).SetUint64(n), D: new(big.Int).SetUint64(d)}
}

// Valid reports whether 0 <= N < D.
func (f FeeFraction) Valid() bool {
	return f.N != nil && f.D != nil && f.D.Sign() > 0 && f.N.Sign() >= 0 && f.N.Cmp(f.D) < 0
}

// Rate returns N/D as a decimal fraction.
func (f FeeFraction) Rate() decimal.Decimal {
	if !f.Valid() {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(f.N, 0).DivRound(decimal.NewFromBigInt(f.D, 0), 18)
}

// GetAmountOut returns amountIn*(D-N)*reserveOut / (reserveIn*D + amountIn*(D-N)).
func GetAmountOut(amountIn, reserveIn, reserveOut *big.Int, fee FeeFraction) (*big.Int, error) {
	if err := amm.CheckPositive(amountIn); err != nil {
		return nil, err
	}
	if reserveIn.Sign() <= 0 || reserveOut.Sign() <= 0 {
		return nil, amm.ErrInsufficientLiquidity
	}
	if !fee.Valid() {
		return nil, fmt.Errorf("%w: fee %v/%v", amm.ErrUnsupportedVariant, fee.N, fee.D)
	}
	amountInWithFee := new(big.Int).Sub(fee.D, fee.N)
	amountInWithFee.Mul(amountInWithFee, amountIn)
	numerator := new(big.Int).Mul(amountInWithFee, reserveOut)
	denominator := new(big.Int).Mul(reserveIn, fee.D)
	denominator.Add(denominator, amountInWithFee)
	return numerator.Quo(numerator, denominator), nil
}

// GetAmountIn returns the input needed for amountOut, rounded up by one as the router does.
func GetAmountIn(amountOut, reserveIn, reserveOut *big.Int, fee FeeFraction) (*big.Int, error) {
	if err := amm.CheckPositive(amountOut); err != nil {
		return nil, err
	}
	if reserveIn.Sign() <= 0 || amountOut.Cmp(reserveOut) >= 0 {
		return nil, amm.ErrInsufficientLiquidity
	}
	if !fee.Valid() {
		return nil, fmt.Errorf("%w: fee %v/%v", amm.ErrUnsupportedVariant, fee.N, fee.D)
	}
	numerator := new(big.Int).Mul(reserveIn, amountOut)
	numerator.Mul(numerator, fee.D)
	denominator := new(big.Int).Sub(reserveOut, amountOut)
	denominator.Mul(denominator, new(big.Int).Sub(fee.D, fee.N))
	numerator.Quo(numerator, denominator)
	return numerator.Add(numerator, big.NewInt(1)), nil
}

// Quote returns the amount of B worth amountA at the reserve ratio.
func Quote(amountA, reserveA, reserveB *big.Int) (*big.Int, error) {
	if reserveA.Sign() <= 0 || reserveB.Sign() <= 0 {
		return nil, amm.ErrInsufficientLiquidity
	}
	return fixedpoint.MulDivDown(amountA, reserveB, reserveA)
}

// MintFee returns the LP tokens minted to the fee recipient for the growth of sqrt(k)
// since kLast, where share is the protocol's fraction of that growth.
//
//	liquidity = totalSupply*(rootK-rootKLast)*n / (rootK*(d-n) + rootKLast*n)
func MintFee(reserve0, reserve1, totalSupply, kLast *big.Int, share FeeFraction) *big.Int {
	if kLast == nil || kLast.Sign() == 0 || !share.Valid() || share.N.Sign() == 0 {
		return new(big.Int)
	}
	rootK := fixedpoint.Sqrt(new(big.Int).Mul(reserve0, reserve1))
	rootKLast := fixedpoint.Sqrt(kLast)
	if rootK.Cmp(rootKLast) <= 0 {
		return new(big.Int)
	}
	numerator := new(big.Int).Sub(rootK, rootKLast)
	numerator.Mul(numerator, totalSupply)
	numerator.Mul(numerator, share.N)
	denominator := new(big.Int).Sub(share.D, share.N)
	denominator.Mul(denominator, rootK)
	denominator.Add(denominator, new(big.Int).Mul(rootKLast, share.N))
	return numerator.Quo(numerator, denominator)
}

// OptimalAmounts mirrors the router: keep amount0 and scale amount1 down, or the reverse.
func OptimalAmounts(amount0, amount1, reserve0, reserve1 *big.Int) (*big.Int, *big.Int, error) {
	if reserve0.Sign() == 0 && reserve1.Sign() == 0 {
		return new(big.Int).Set(amount0), new(big.Int).Set(amount1), nil
	}
	amount1Optimal, err := Quote(amount0, reserve0, reserve1)
	if err != nil {
		return nil, nil, err
	}
	if amount1Optimal.Cmp(amount1) <= 0 {
		return new(big.Int).Set(amount0), amount1Optimal, nil
	}
	amount0Optimal, err := Quote(amount1, reserve1, reserve0)
	if err != nil {
		return nil, nil, err
	}
	return amount0Optimal, new(big.Int).Set(amount1), nil
}

// LiquidityMinted returns the LP minted for amounts already matched to the pool ratio.
// totalSupply must already include any mint fee.
func LiquidityMinted(amount0, amount1, reserve0, reserve1, totalSupply *big.Int, minimumLiquidity uint64) (*big.Int, error) {
	var liquidity *big.Int
	if totalSupply.Sign() == 0 {
		liquidity = fixedpoint.Sqrt(new(big.Int).Mul(amount0, amount1))
		liquidity.Sub(liquidity, new(big.Int).SetUint64(minimumLiquidity))
	} else {
		if reserve0.Sign() == 0 || reserve1.Sign() == 0 {
			return nil, amm.ErrInsufficientLiquidity
		}
		l0 := new(big.Int).Mul(amount0, totalSupply)
		l0.Quo(l0, reserve0)
		l1 := new(big.Int).Mul(amount1, totalSupply)
		l1.Quo(l1, reserve1)
		liquidity = fixedpoint.Min(l0, l1)
	}
	if liquidity.Sign() <= 0 {
		return nil, amm.ErrInsufficientLiquidity
	}
	return liquidity, nil
}

// BurnAmounts returns the reserves paid out for liquidity. totalSupply must already include
// any mint fee.
func BurnAmounts(liquidity, reserve0, reserve1, totalSupply *big.Int) (*big.Int, *big.Int, error) {
	if err := amm.CheckPositive(liquidity); err != nil {
		return nil, nil, err
	}
	if totalSupply.Sign() == 0 || liquidity.Cmp(totalSupply) > 0 {
		return nil, nil, amm.ErrInsufficientLiquidity
	}
	amount0 := new(big.Int).Mul(liquidity, reserve0)
	amount0.Quo(amount0, totalSupply)
	amount1 := new(big.Int).Mul(liquidity, reserve1)
	amount1.Quo(amount1, totalSupply)
	if amount0.Sign() == 0 || amount1.Sign() == 0 {
		return nil, nil, amm.ErrInsufficientLiquidity
	}
	return amount0, amount1, nil
}

// OptimalSwapIn returns how much of fullAmountIn to swap so the remainder and the swap
// output match the post-swap reserve ratio:
//
//	half = full/2; out = amountOut(half)
//	swap = full - sqrt(half^2 * out / quote(half, rIn+half, rOut-out))
func OptimalSwapIn(fullAmountIn, reserveIn, reserveOut *big.Int, fee FeeFraction) (*big.Int, error) {
	if err := amm.CheckPositive(fullAmountIn); err != nil {
		return nil, err
	}
	half := new(big.Int).Rsh(fullAmountIn, 1)
	if half.Sign() == 0 {
		return nil, amm.ErrInsufficientLiquidity
	}
	out, err := GetAmountOut(half, reserveIn, reserveOut, fee)
	if err != nil {
		return nil, err
	}
	if out.Sign() == 0 {
		return nil, amm.ErrInsufficientLiquidity
	}
	denom, err := Quote(half, new(big.Int).Add(reserveIn, half), new(big.Int).Sub(reserveOut, out))
	if err != nil {
		return nil, err
	}
	if denom.Sign() == 0 {
		return nil, amm.ErrInsufficientLiquidity
	}
	v := new(big.Int).Mul(half, half)
	v.Mul(v, out)
	v.Quo(v, denom)
	swap := new(big.Int).Sub(fullAmountIn, fixedpoint.Sqrt(v))
	if swap.Sign() <= 0 || swap.Cmp(fullAmountIn) >= 0 {
		return nil, amm.ErrInsufficientLiquidity
	}
	return swap, nil
}
