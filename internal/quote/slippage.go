package quote

import (
	"errors"
	"math/big"

	"github.com/shopspring/decimal"

	"zapquote/internal/amm"
)

// ImpactDivisor sizes the reduced quote used as the spot reference for price impact.
var ImpactDivisor = big.NewInt(1000)

// ApplySlippage returns floor(amount·(1-slippage)).
func ApplySlippage(amount *big.Int, slippage decimal.Decimal) *big.Int {
	if amount == nil || amount.Sign() <= 0 {
		return new(big.Int)
	}
	keep := decimal.NewFromInt(1).Sub(slippage)
	return decimal.NewFromBigInt(amount, 0).Mul(keep).Floor().BigInt()
}

func applyAll(amounts []*big.Int, slippage decimal.Decimal) []*big.Int {
	out := make([]*big.Int, len(amounts))
	for i, a := range amounts {
		out[i] = ApplySlippage(a, slippage)
	}
	return out
}

func scaleDown(amounts []*big.Int, divisor *big.Int) []*big.Int {
	out := make([]*big.Int, len(amounts))
	for i, a := range amounts {
		out[i] = new(big.Int).Quo(a, divisor)
	}
	return out
}

// SampledImpact compares actual with the result of the same quote at 1/ImpactDivisor of
// the size, scaled back up: 1 - actual/(reference·ImpactDivisor), floored at zero.
// References too small for the pool report no impact.
func SampledImpact(actual *big.Int, reference func(divisor *big.Int) (*big.Int, error)) (decimal.Decimal, error) {
	out, err := reference(ImpactDivisor)
	if errors.Is(err, amm.ErrInvalidAmount) || errors.Is(err, amm.ErrInsufficientLiquidity) {
		return decimal.Zero, nil
	}
	if err != nil {
		return decimal.Zero, err
	}
	return PriceImpact(decimal.NewFromBigInt(new(big.Int).Mul(out, ImpactDivisor), 0), decimal.NewFromBigInt(actual, 0)), nil
}

// PriceImpact returns 1 - valueOut/valueIn, floored at zero.
func PriceImpact(valueIn, valueOut decimal.Decimal) decimal.Decimal {
	if !valueIn.IsPositive() {
		return decimal.Zero
	}
	impact := decimal.NewFromInt(1).Sub(valueOut.DivRound(valueIn, 18))
	if impact.IsNegative() {
		return decimal.Zero
	}
	return impact
}
