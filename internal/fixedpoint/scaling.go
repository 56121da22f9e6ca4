package fixedpoint

import (
	"fmt"
	"math/big"
)

// ScalingFactor returns the factor that upscales a token with the given decimals to
// 18-decimal fixed point, multiplied by its rate (1e18 = no rate).
func ScalingFactor(decimals uint8, rate *big.Int) (*big.Int, error) {
	if decimals > 18 {
		return nil, fmt.Errorf("scaling factor: unsupported decimals %d", decimals)
	}
	base := new(big.Int).Mul(Pow10(18-decimals), One)
	if rate == nil {
		return base, nil
	}
	return MulDown(base, rate)
}

// Upscale applies a scaling factor, rounding down.
func Upscale(amount, scalingFactor *big.Int) (*big.Int, error) {
	return MulDown(amount, scalingFactor)
}

// DownscaleDown reverses a scaling factor, rounding down.
func DownscaleDown(amount, scalingFactor *big.Int) (*big.Int, error) {
	return DivDown(amount, scalingFactor)
}

// DownscaleUp reverses a scaling factor, rounding up.
func DownscaleUp(amount, scalingFactor *big.Int) (*big.Int, error) {
	return DivUp(amount, scalingFactor)
}

// UpscaleAll applies scaling factors element-wise.
func UpscaleAll(amounts, scalingFactors []*big.Int) ([]*big.Int, error) {
	if len(amounts) != len(scalingFactors) {
		return nil, fmt.Errorf("upscale: %d amounts for %d scaling factors", len(amounts), len(scalingFactors))
	}
	out := make([]*big.Int, len(amounts))
	for i := range amounts {
		v, err := Upscale(amounts[i], scalingFactors[i])
		if err != nil {
			return nil, fmt.Errorf("upscale token %d: %w", i, err)
		}
		out[i] = v
	}
	return out, nil
}
