package solidly

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"zapquote/internal/amm"
	"zapquote/internal/amm/uniswap"
	"zapquote/internal/chain"
	"zapquote/internal/model"
	"zapquote/internal/state"
)

// FeeSource provides the swap fee of a hybrid pair, which may depend on whether the pair
// is stable.
type FeeSource interface {
	PairCall(pair common.Address) (chain.Call, bool)
	Resolve(ctx context.Context, reader chain.Reader, pair common.Address, stable bool, result *chain.Result) (uniswap.FeeFraction, error)
}

// ConstantFee is a fee fixed by configuration.
type ConstantFee struct {
	Fee uniswap.FeeFraction
}

func (f ConstantFee) PairCall(common.Address) (chain.Call, bool) { return chain.Call{}, false }

func (f ConstantFee) Resolve(context.Context, chain.Reader, common.Address, bool, *chain.Result) (uniswap.FeeFraction, error) {
	return f.Fee, nil
}

// PairMethodFee reads a numerator from the pair, fee() or feeRatio().
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

func (f PairMethodFee) Resolve(_ context.Context, _ chain.Reader, pair common.Address, _ bool, result *chain.Result) (uniswap.FeeFraction, error) {
	n, err := pairValue(pair, f.Method, result)
	if err != nil {
		return uniswap.FeeFraction{}, err
	}
	return uniswap.FeeFraction{N: n, D: f.Denominator}, nil
}

// PairSwapFee reads swapFee() from the pair; the fee is 1/swapFee.
type PairSwapFee struct{}

func (PairSwapFee) PairCall(pair common.Address) (chain.Call, bool) {
	return PairMethodFee{Method: "swapFee"}.PairCall(pair)
}

func (PairSwapFee) Resolve(_ context.Context, _ chain.Reader, pair common.Address, _ bool, result *chain.Result) (uniswap.FeeFraction, error) {
	x, err := pairValue(pair, "swapFee", result)
	if err != nil {
		return uniswap.FeeFraction{}, err
	}
	if x.Sign() <= 0 {
		return uniswap.FeeFraction{}, fmt.Errorf("%w: swapFee of %s is zero", amm.ErrUnsupportedVariant, pair.Hex())
	}
	return uniswap.FeeFraction{N: big.NewInt(1), D: x}, nil
}

func pairValue(pair common.Address, method string, result *chain.Result) (*big.Int, error) {
	if result == nil {
		return nil, fmt.Errorf("fee %s of %s: missing result", method, pair.Hex())
	}
	n, err := chain.Value(*result, chain.AsBigInt)
	if err != nil {
		return nil, fmt.Errorf("fee %s of %s: %w", method, pair.Hex(), err)
	}
	return n, nil
}

// FactoryFee reads getFee(bool) or getFee(address,bool) from the factory through the
// factory cache.
type FactoryFee struct {
	ChainID     uint64
	Factory     common.Address
	PerPool     bool
	Denominator *big.Int
	Cache       *state.FactoryCache
}

func (f FactoryFee) PairCall(common.Address) (chain.Call, bool) { return chain.Call{}, false }

func (f FactoryFee) Resolve(ctx context.Context, reader chain.Reader, pair common.Address, stable bool, _ *chain.Result) (uniswap.FeeFraction, error) {
	var (
		parsed *abi.ABI
		args   []interface{}
		err    error
	)
	if f.PerPool {
		parsed, err = FactoryPoolFeeABI()
		args = []interface{}{pair, stable}
	} else {
		parsed, err = FactoryStableFeeABI()
		args = []interface{}{stable}
	}
	if err != nil {
		return uniswap.FeeFraction{}, err
	}
	call := chain.Call{To: f.Factory, ABI: parsed, Method: "getFee", Args: args}
	values, err := f.Cache.Get(ctx, f.ChainID, reader, call, false)
	if err != nil {
		return uniswap.FeeFraction{}, fmt.Errorf("factory fee of %s: %w", pair.Hex(), err)
	}
	n, err := chain.AsBigInt(values[0])
	if err != nil {
		return uniswap.FeeFraction{}, err
	}
	return uniswap.FeeFraction{N: n, D: f.Denominator}, nil
}

// NewFeeSource selects the fee source configured for a hybrid AMM.
func NewFeeSource(cfg model.AmmConfig, cache *state.FactoryCache) (FeeSource, error) {
	denominator := new(big.Int).SetUint64(cfg.Fee.Denominator)
	if cfg.Fee.Denominator == 0 {
		denominator.SetUint64(uniswap.DefaultFeeDenominator)
	}
	switch cfg.FeeSource {
	case "", model.FeeSourceConstant:
		return ConstantFee{Fee: uniswap.NewFee(cfg.Fee.Numerator, cfg.Fee.Denominator)}, nil
	case model.FeeSourcePairFee:
		return PairMethodFee{Method: "fee", Denominator: denominator}, nil
	case model.FeeSourcePairFeeRatio:
		return PairMethodFee{Method: "feeRatio", Denominator: denominator}, nil
	case model.FeeSourcePairSwapFee:
		return PairSwapFee{}, nil
	case model.FeeSourceFactoryStable:
		return FactoryFee{ChainID: cfg.ChainID, Factory: cfg.Factory, Denominator: denominator, Cache: cache}, nil
	case model.FeeSourceFactoryPool:
		return FactoryFee{ChainID: cfg.ChainID, Factory: cfg.Factory, PerPool: true, Denominator: denominator, Cache: cache}, nil
	default:
		return nil, fmt.Errorf("%w: fee source %q for %s", amm.ErrUnsupportedVariant, cfg.FeeSource, cfg.Family)
	}
}
