package solidly

import (
	"math/big"

	"zapquote/internal/amm"
	"zapquote/internal/amm/uniswap"
	"zapquote/internal/fixedpoint"
)

// MaxOptimalSwapIterations bounds the stable single sided swap search.
const MaxOptimalSwapIterations = 10

// Reserves are the two sides of a swap with their decimal scales (10^decimals).
type Reserves struct {
	In       *big.Int
	Out      *big.Int
	ScaleIn  *big.Int
	ScaleOut *big.Int
}

// deductFee returns amountIn minus the pair fee, rounded as the pair does.
func deductFee(amountIn *big.Int, fee uniswap.FeeFraction) *big.Int {
	paid := new(big.Int).Mul(amountIn, fee.N)
	paid.Quo(paid, fee.D)
	return paid.Sub(amountIn, paid)
}

// VolatileAmountOut is amountIn*reserveOut/(reserveIn+amountIn) with the fee taken first.
func VolatileAmountOut(amountIn *big.Int, r Reserves, fee uniswap.FeeFraction) (*big.Int, error) {
	if err := amm.CheckPositive(amountIn); err != nil {
		return nil, err
	}
	if r.In.Sign() <= 0 || r.Out.Sign() <= 0 {
		return nil, amm.ErrInsufficientLiquidity
	}
	in := deductFee(amountIn, fee)
	out := new(big.Int).Mul(in, r.Out)
	return out.Quo(out, new(big.Int).Add(r.In, in)), nil
}

// StableAmountOut solves x^3y+y^3x=k for the output of a stable swap with the fee taken
// first. converged is false when the solver hit its iteration cap.
func StableAmountOut(amountIn *big.Int, r Reserves, fee uniswap.FeeFraction) (out *big.Int, converged bool, err error) {
	if err := amm.CheckPositive(amountIn); err != nil {
		return nil, false, err
	}
	if r.In.Sign() <= 0 || r.Out.Sign() <= 0 {
		return nil, false, amm.ErrInsufficientLiquidity
	}
	in := deductFee(amountIn, fee)

	xy := fixedpoint.StableK(r.In, r.Out, r.ScaleIn, r.ScaleOut)
	reserveIn := normalise(r.In, r.ScaleIn)
	reserveOut := normalise(r.Out, r.ScaleOut)
	in = normalise(in, r.ScaleIn)

	y, converged := fixedpoint.GetY(new(big.Int).Add(in, reserveIn), xy, reserveOut)
	if y.Cmp(reserveOut) >= 0 {
		return new(big.Int), converged, nil
	}
	out = new(big.Int).Sub(reserveOut, y)
	out.Mul(out, r.ScaleOut)
	return out.Quo(out, fixedpoint.One), converged, nil
}

func normalise(amount, scale *big.Int) *big.Int {
	n := new(big.Int).Mul(amount, fixedpoint.One)
	return n.Quo(n, scale)
}

// StableOptimalSwapIn searches the amount to swap so that the remainder and the swap output
// match the post-swap pool ratio. It starts at half and re-solves
// swap = full*1e18/(ratio+1e18), where ratio is the execution rate over the pool ratio,
// until successive candidates differ by at most one unit.
func StableOptimalSwapIn(fullAmountIn *big.Int, r Reserves, fee uniswap.FeeFraction) (*big.Int, error) {
	if err := amm.CheckPositive(fullAmountIn); err != nil {
		return nil, err
	}
	swap := new(big.Int).Rsh(fullAmountIn, 1)
	if swap.Sign() == 0 {
		return nil, amm.ErrInsufficientLiquidity
	}
	one := big.NewInt(1)
	for i := 0; i < MaxOptimalSwapIterations; i++ {
		out, _, err := StableAmountOut(swap, r, fee)
		if err != nil {
			return nil, err
		}
		if out.Sign() == 0 {
			return nil, amm.ErrInsufficientLiquidity
		}
		normIn := normalise(swap, r.ScaleIn)
		normOut := normalise(out, r.ScaleOut)
		if normIn.Sign() == 0 {
			return nil, amm.ErrInsufficientLiquidity
		}
		rate := new(big.Int).Mul(normOut, fixedpoint.One)
		rate.Quo(rate, normIn)

		poolIn := normalise(new(big.Int).Add(r.In, swap), r.ScaleIn)
		poolOut := normalise(new(big.Int).Sub(r.Out, out), r.ScaleOut)
		poolRatio := new(big.Int).Mul(poolOut, fixedpoint.One)
		poolRatio.Quo(poolRatio, poolIn)
		if poolRatio.Sign() == 0 {
			return nil, amm.ErrInsufficientLiquidity
		}

		ratio := new(big.Int).Mul(rate, fixedpoint.One)
		ratio.Quo(ratio, poolRatio)
		next := new(big.Int).Mul(fullAmountIn, fixedpoint.One)
		next.Quo(next, ratio.Add(ratio, fixedpoint.One))

		delta := new(big.Int).Sub(next, swap)
		swap = next
		if delta.CmpAbs(one) <= 0 {
			break
		}
	}
	if swap.Sign() <= 0 || swap.Cmp(fullAmountIn) >= 0 {
		return nil, amm.ErrInsufficientLiquidity
	}
	return swap, nil
}
