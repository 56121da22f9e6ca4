package balancer

import (
	"context"
	"fmt"
	"math/big"

	"go.uber.org/zap"

	"zapquote/internal/amm"
	"zapquote/internal/fixedpoint"
)

// GyroAmountsIn returns the token amounts a proportional join of bpt takes, rounded up the
// way the pool does it.
func GyroAmountsIn(balances, scalingFactors []*big.Int, supply, bpt *big.Int) ([]*big.Int, error) {
	ratio, err := fixedpoint.DivUp(bpt, supply)
	if err != nil {
		return nil, err
	}
	upscaled, err := fixedpoint.UpscaleAll(balances, scalingFactors)
	if err != nil {
		return nil, err
	}
	out := make([]*big.Int, len(balances))
	for i, balance := range upscaled {
		amount, err := fixedpoint.MulUp(balance, ratio)
		if err != nil {
			return nil, err
		}
		if out[i], err = fixedpoint.DownscaleUp(amount, scalingFactors[i]); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// GyroEstimate returns the largest BPT amount whose proportional join, rounded up the way
// GyroAmountsIn rounds it, stays within maxAmounts.
//
// An amount fits when DownscaleUp(MulUp(balanceᵢ, ratio)) <= maxᵢ, which holds exactly
// when ratio <= Upscale(maxᵢ)·1e18/balanceᵢ. DivUp(bpt, supply) <= ratio then bounds bpt by
// ratio·supply/1e18.
func GyroEstimate(balances, scalingFactors, maxAmounts []*big.Int, supply *big.Int) (*big.Int, error) {
	upBalances, err := fixedpoint.UpscaleAll(balances, scalingFactors)
	if err != nil {
		return nil, err
	}
	upInputs, err := fixedpoint.UpscaleAll(maxAmounts, scalingFactors)
	if err != nil {
		return nil, err
	}
	var ratio *big.Int
	for i := range upBalances {
		if upBalances[i].Sign() == 0 {
			return nil, amm.ErrInsufficientLiquidity
		}
		candidate, err := fixedpoint.DivDown(upInputs[i], upBalances[i])
		if err != nil {
			return nil, err
		}
		if ratio == nil || candidate.Cmp(ratio) < 0 {
			ratio = candidate
		}
	}
	if ratio == nil {
		return nil, amm.ErrInsufficientLiquidity
	}
	return fixedpoint.MulDown(ratio, supply)
}

func fits(amounts, maxAmounts []*big.Int) bool {
	for i := range amounts {
		if amounts[i].Cmp(maxAmounts[i]) > 0 {
			return false
		}
	}
	return true
}

// searchGyroJoin finds the largest exact BPT join whose amounts stay within maxAmounts. It
// starts from the local bound and confirms against the pool with queryJoin; while the pool
// asks for more than offered, the candidate shrinks by the worst overshoot, and by at least
// one unit, until it falls below one.
func (p *VaultPool) searchGyroJoin(ctx context.Context, s VaultState, maxAmounts []*big.Int) (*big.Int, []*big.Int, error) {
	bpt, err := GyroEstimate(s.Balances, s.ScalingFactors, maxAmounts, s.TotalSupply)
	if err != nil {
		return nil, nil, err
	}

	for bpt.Sign() > 0 {
		amounts, err := GyroAmountsIn(s.Balances, s.ScalingFactors, s.TotalSupply, bpt)
		if err != nil {
			return nil, nil, err
		}
		if fits(amounts, maxAmounts) {
			break
		}
		bpt = shrink(bpt, amounts, maxAmounts)
	}

	for bpt.Sign() > 0 {
		userData, err := EncodeKindAmount(JoinAllTokensInForExactBPTOut, bpt)
		if err != nil {
			return nil, nil, err
		}
		_, amountsIn, err := p.queryJoin(ctx, s, maxAmounts, userData)
		if err != nil {
			return nil, nil, err
		}
		if fits(amountsIn, maxAmounts) {
			return bpt, amountsIn, nil
		}
		p.engine.deps.Logger.Debug("gyro join exceeds inputs, stepping down",
			zap.String("pool", p.address.Hex()),
			zap.String("bpt", bpt.String()),
		)
		bpt = shrink(bpt, amountsIn, maxAmounts)
	}
	return nil, nil, fmt.Errorf("%w: no gyro join fits the offered amounts", amm.ErrInsufficientLiquidity)
}

// shrink scales bpt by the smallest maxᵢ/amountᵢ and returns at least one unit less.
func shrink(bpt *big.Int, amounts, maxAmounts []*big.Int) *big.Int {
	next := new(big.Int).Sub(bpt, big.NewInt(1))
	for i := range amounts {
		if amounts[i].Cmp(maxAmounts[i]) <= 0 {
			continue
		}
		scaled := new(big.Int).Mul(bpt, maxAmounts[i])
		scaled.Quo(scaled, amounts[i])
		if scaled.Cmp(next) < 0 {
			next = scaled
		}
	}
	return next
}
