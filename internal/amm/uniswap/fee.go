package uniswap

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"zapquote/internal/amm"
	"zapquote/internal/chain"
	"zapquote/internal/model"
	"zapquote/internal/state"
)

// DefaultFeeDenominator is used when a fee read from chain has no configured unit.
const DefaultFeeDenominator = 10000

// FeeSource provides the swap fee of a pair.
type FeeSource interface {
	// PairCall returns the call batched with the pair state when the fee lives on the pair.
	PairCall(pair common.Address) (chain.Call, bool)
	// Resolve turns the batched result, if any, into a fee.
	Resolve(ctx context.Context, reader chain.Reader, pair common.Address, result *chain.Result) (FeeFraction, error)
}

// ConstantFee is a fee fixed by configuration.
type ConstantFee struct {
	Fee FeeFraction
}

func (f ConstantFee) PairCall(common.Address) (chain.Call, bool) { return chain.Call{}, false }

func (f ConstantFee) Resolve(context.Context, chain.Reader, common.Address, *chain.Result) (FeeFraction, error) {
	return f.Fee, nil
}

// PairMethodFee reads the fee numerator from a view method on the pair, such as swapFee()
// or fee().
type PairMethodFee struct {
	Method      string
	Denominator *big.Int
}

func (f PairMethodFee) PairCall(pair common.Address) (chain.Call, bool) {
	parsed, err := PairABI()
	if err != nil {
		return chain.Call{}, false
	}
	return chain.Call{To: pair, ABI: parsed, Method: f.Method}, true
}

func (f PairMethodFee) Resolve(_ context.Context, _ chain.Reader, pair common.Address, result *chain.Result) (FeeFraction, error) {
	if result == nil {
		return FeeFraction{}, fmt.Errorf("fee %s of %s: missing result", f.Method, pair.Hex())
	}
	n, err := chain.Value(*result, chain.AsBigInt)
	if err != nil {
		return FeeFraction{}, fmt.Errorf("fee %s of %s: %w", f.Method, pair.Hex(), err)
	}
	return FeeFraction{N: n, D: f.Denominator}, nil
}

// FactoryPairFee reads getPairFee(pair) from the factory through the factory cache.
type FactoryPairFee struct {
	ChainID     uint64
	Factory     common.Address
	Denominator *big.Int
	Cache       *state.FactoryCache
}

func (f FactoryPairFee) PairCall(common.Address) (chain.Call, bool) { return chain.Call{}, false }

func (f FactoryPairFee) Resolve(ctx context.Context, reader chain.Reader, pair common.Address, _ *chain.Result) (FeeFraction, error) {
	parsed, err := FactoryABI()
	if err != nil {
		return FeeFraction{}, err
	}
	call := chain.Call{To: f.Factory, ABI: parsed, Method: "getPairFee", Args: []interface{}{pair}}
	values, err := f.Cache.Get(ctx, f.ChainID, reader, call, false)
	if err != nil {
		return FeeFraction{}, fmt.Errorf("factory fee of %s: %w", pair.Hex(), err)
	}
	n, err := chain.AsBigInt(values[0])
	if err != nil {
		return FeeFraction{}, err
	}
	return FeeFraction{N: n, D: f.Denominator}, nil
}

// NewFeeSource selects the fee source configured for a constant-product AMM.
func NewFeeSource(cfg model.AmmConfig, cache *state.FactoryCache) (FeeSource, error) {
	denominator := new(big.Int).SetUint64(cfg.Fee.Denominator)
	if cfg.Fee.Denominator == 0 {
		denominator.SetUint64(DefaultFeeDenominator)
	}
	switch cfg.FeeSource {
	case "", model.FeeSourceConstant:
		return ConstantFee{Fee: NewFee(cfg.Fee.Numerator, cfg.Fee.Denominator)}, nil
	case model.FeeSourcePairSwapFee:
		return PairMethodFee{Method: "swapFee", Denominator: denominator}, nil
	case model.FeeSourcePairFee:
		return PairMethodFee{Method: "fee", Denominator: denominator}, nil
	case model.FeeSourceFactoryPairFee:
		return FactoryPairFee{ChainID: cfg.ChainID, Factory: cfg.Factory, Denominator: denominator, Cache: cache}, nil
	default:
		return nil, fmt.Errorf("%w: fee source %q for %s", amm.ErrUnsupportedVariant, cfg.FeeSource, cfg.Family)
	}
}
