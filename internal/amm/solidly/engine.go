// Package solidly implements the hybrid pair engine: volatile pairs follow the constant
// product curve and stable pairs the x^3y+y^3x curve.
package solidly

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"zapquote/internal/amm"
	"zapquote/internal/amm/uniswap"
	"zapquote/internal/chain"
	"zapquote/internal/fixedpoint"
	"zapquote/internal/model"
	"zapquote/internal/state"
	"zapquote/internal/zapstep"
)

// HybridState is a snapshot of a hybrid pair.
type HybridState struct {
	Token0      common.Address
	Token1      common.Address
	Decimals0   uint8
	Decimals1   uint8
	Reserve0    *big.Int
	Reserve1    *big.Int
	TotalSupply *big.Int
	Stable      bool
	Fee         uniswap.FeeFraction
}

// Engine loads hybrid pairs of one deployment.
type Engine struct {
	cfg    model.AmmConfig
	deps   amm.Deps
	fees   FeeSource
	pair   *abi.ABI
	router *abi.ABI
}

// New creates an engine for cfg.
func New(cfg model.AmmConfig, deps amm.Deps) (*Engine, error) {
	deps = deps.WithDefaults()
	fees, err := NewFeeSource(cfg, deps.Factory)
	if err != nil {
		return nil, err
	}
	e := &Engine{cfg: cfg, deps: deps, fees: fees}
	if e.pair, err = PairABI(); err != nil {
		return nil, fmt.Errorf("parse pair abi: %w", err)
	}
	if e.router, err = RouterABI(); err != nil {
		return nil, fmt.Errorf("parse router abi: %w", err)
	}
	return e, nil
}

func (e *Engine) Family() model.Family    { return model.FamilyHybridCurve }
func (e *Engine) Config() model.AmmConfig { return e.cfg }

// Load reads the pair state in one batch; token decimals come from the token cache.
func (e *Engine) Load(ctx context.Context, reader chain.Reader, pair common.Address) (amm.Pool, error) {
	calls := []chain.Call{
		{To: pair, ABI: e.pair, Method: "token0"},
		{To: pair, ABI: e.pair, Method: "token1"},
		{To: pair, ABI: e.pair, Method: "getReserves"},
		{To: pair, ABI: e.pair, Method: "totalSupply"},
		{To: pair, ABI: e.pair, Method: "stable"},
	}
	feeCall, hasFeeCall := e.fees.PairCall(pair)
	if hasFeeCall {
		calls = append(calls, feeCall)
	}
	results, err := reader.BatchCall(ctx, calls)
	if err != nil {
		return nil, fmt.Errorf("load pair %s: %w", pair.Hex(), err)
	}
	if err := state.Require(calls, results); err != nil {
		return nil, fmt.Errorf("load pair %s: %w", pair.Hex(), err)
	}

	var s HybridState
	if s.Token0, err = chain.Value(results[0], chain.AsAddress); err != nil {
		return nil, fmt.Errorf("token0: %w", err)
	}
	if s.Token1, err = chain.Value(results[1], chain.AsAddress); err != nil {
		return nil, fmt.Errorf("token1: %w", err)
	}
	if len(results[2].Values) < 2 {
		return nil, fmt.Errorf("getReserves: short result")
	}
	if s.Reserve0, err = chain.AsBigInt(results[2].Values[0]); err != nil {
		return nil, fmt.Errorf("reserve0: %w", err)
	}
	if s.Reserve1, err = chain.AsBigInt(results[2].Values[1]); err != nil {
		return nil, fmt.Errorf("reserve1: %w", err)
	}
	if s.TotalSupply, err = chain.Value(results[3], chain.AsBigInt); err != nil {
		return nil, fmt.Errorf("totalSupply: %w", err)
	}
	if s.Stable, err = chain.Value(results[4], chain.AsBool); err != nil {
		return nil, fmt.Errorf("stable: %w", err)
	}

	var feeResult *chain.Result
	if hasFeeCall {
		feeResult = &results[5]
	}
	if s.Fee, err = e.fees.Resolve(ctx, reader, pair, s.Stable, feeResult); err != nil {
		return nil, err
	}
	if !s.Fee.Valid() {
		return nil, fmt.Errorf("%w: fee %v/%v of %s", amm.ErrUnsupportedVariant, s.Fee.N, s.Fee.D, pair.Hex())
	}

	metas, err := e.deps.Tokens.Load(ctx, reader, []common.Address{s.Token0, s.Token1}, e.deps.Logger)
	if err != nil {
		return nil, err
	}
	s.Decimals0 = metas[s.Token0].Decimals
	s.Decimals1 = metas[s.Token1].Decimals

	return e.Pool(pair, s), nil
}

// Pool wraps a snapshot.
func (e *Engine) Pool(address common.Address, s HybridState) *Pair {
	return &Pair{engine: e, address: address, state: state.Loaded(s)}
}

// Pair is a loaded hybrid pair.
type Pair struct {
	engine  *Engine
	address common.Address
	state   state.Cell[HybridState]
}

func (p *Pair) Family() model.Family    { return model.FamilyHybridCurve }
func (p *Pair) Address() common.Address { return p.address }
func (p *Pair) LPToken() common.Address { return p.address }

func (p *Pair) Tokens() []common.Address {
	s, err := p.state.Get()
	if err != nil {
		return nil
	}
	return []common.Address{s.Token0, s.Token1}
}

// AfterSwap returns the pair with quote's amounts moved through its reserves. The fee leaves
// the pair, so only the amount after fee is added to the input reserve.
func (p *Pair) AfterSwap(quote amm.SwapQuote) (amm.Pool, error) {
	s, err := p.state.Get()
	if err != nil {
		return nil, err
	}
	r, _, err := p.reserves(s, quote.TokenIn)
	if err != nil {
		return nil, err
	}
	if quote.AmountOut.Cmp(r.Out) >= 0 {
		return nil, amm.ErrInsufficientLiquidity
	}
	reserveIn := new(big.Int).Add(r.In, deductFee(quote.AmountIn, s.Fee))
	reserveOut := new(big.Int).Sub(r.Out, quote.AmountOut)
	next := s
	if quote.TokenIn == s.Token0 {
		next.Reserve0, next.Reserve1 = reserveIn, reserveOut
	} else {
		next.Reserve0, next.Reserve1 = reserveOut, reserveIn
	}
	return p.engine.Pool(p.address, next), nil
}

// AfterRemove returns the pair after quote's liquidity is burned.
func (p *Pair) AfterRemove(quote amm.RemoveQuote) (amm.Pool, error) {
	s, err := p.state.Get()
	if err != nil {
		return nil, err
	}
	if len(quote.Amounts) != 2 {
		return nil, fmt.Errorf("remove quote: %d amounts for a pair", len(quote.Amounts))
	}
	if quote.Liquidity.Cmp(s.TotalSupply) > 0 || quote.Amounts[0].Cmp(s.Reserve0) >= 0 || quote.Amounts[1].Cmp(s.Reserve1) >= 0 {
		return nil, amm.ErrInsufficientLiquidity
	}
	next := s
	next.Reserve0 = new(big.Int).Sub(s.Reserve0, quote.Amounts[0])
	next.Reserve1 = new(big.Int).Sub(s.Reserve1, quote.Amounts[1])
	next.TotalSupply = new(big.Int).Sub(s.TotalSupply, quote.Liquidity)
	return p.engine.Pool(p.address, next), nil
}

func (p *Pair) SwapFeeRate() (decimal.Decimal, error) {
	s, err := p.state.Get()
	if err != nil {
		return decimal.Zero, err
	}
	return s.Fee.Rate(), nil
}

func (p *Pair) reserves(s HybridState, tokenIn common.Address) (Reserves, common.Address, error) {
	scale0 := fixedpoint.Pow10(s.Decimals0)
	scale1 := fixedpoint.Pow10(s.Decimals1)
	switch tokenIn {
	case s.Token0:
		return Reserves{In: s.Reserve0, Out: s.Reserve1, ScaleIn: scale0, ScaleOut: scale1}, s.Token1, nil
	case s.Token1:
		return Reserves{In: s.Reserve1, Out: s.Reserve0, ScaleIn: scale1, ScaleOut: scale0}, s.Token0, nil
	default:
		return Reserves{}, common.Address{}, fmt.Errorf("%w: %s", amm.ErrTokenMismatch, tokenIn.Hex())
	}
}

func (p *Pair) QuoteSwap(_ context.Context, tokenIn common.Address, amountIn *big.Int) (amm.SwapQuote, error) {
	s, err := p.state.Get()
	if err != nil {
		return amm.SwapQuote{}, err
	}
	r, tokenOut, err := p.reserves(s, tokenIn)
	if err != nil {
		return amm.SwapQuote{}, err
	}
	quote := amm.SwapQuote{TokenIn: tokenIn, TokenOut: tokenOut, AmountIn: new(big.Int).Set(amountIn)}
	if s.Stable {
		out, converged, err := StableAmountOut(amountIn, r, s.Fee)
		if err != nil {
			return amm.SwapQuote{}, err
		}
		if !converged {
			p.engine.deps.Logger.Warn("stable invariant did not converge",
				zap.String("pair", p.address.Hex()),
				zap.String("amount_in", amountIn.String()),
			)
		}
		quote.AmountOut = out
		quote.NotConverged = !converged
	} else {
		if quote.AmountOut, err = VolatileAmountOut(amountIn, r, s.Fee); err != nil {
			return amm.SwapQuote{}, err
		}
	}
	if quote.AmountOut.Sign() == 0 {
		return amm.SwapQuote{}, amm.ErrInsufficientLiquidity
	}
	return quote, nil
}

func (p *Pair) QuoteAddLiquidity(_ context.Context, amounts []*big.Int) (amm.AddQuote, error) {
	s, err := p.state.Get()
	if err != nil {
		return amm.AddQuote{}, err
	}
	if err := amm.CheckAmounts(amounts, 2); err != nil {
		return amm.AddQuote{}, err
	}
	amount0, amount1, err := uniswap.OptimalAmounts(amounts[0], amounts[1], s.Reserve0, s.Reserve1)
	if err != nil {
		return amm.AddQuote{}, err
	}
	liquidity, err := uniswap.LiquidityMinted(amount0, amount1, s.Reserve0, s.Reserve1, s.TotalSupply, p.engine.cfg.MinLiquidity())
	if err != nil {
		return amm.AddQuote{}, err
	}
	return amm.AddQuote{
		Offered:   []*big.Int{new(big.Int).Set(amounts[0]), new(big.Int).Set(amounts[1])},
		Amounts:   []*big.Int{amount0, amount1},
		Liquidity: liquidity,
	}, nil
}

func (p *Pair) QuoteRemoveLiquidity(_ context.Context, liquidity *big.Int) (amm.RemoveQuote, error) {
	s, err := p.state.Get()
	if err != nil {
		return amm.RemoveQuote{}, err
	}
	amount0, amount1, err := uniswap.BurnAmounts(liquidity, s.Reserve0, s.Reserve1, s.TotalSupply)
	if err != nil {
		return amm.RemoveQuote{}, err
	}
	return amm.RemoveQuote{Liquidity: new(big.Int).Set(liquidity), Amounts: []*big.Int{amount0, amount1}}, nil
}

func (p *Pair) OptimalSwapAmount(_ context.Context, tokenIn common.Address, fullAmountIn *big.Int) (*big.Int, error) {
	s, err := p.state.Get()
	if err != nil {
		return nil, err
	}
	r, _, err := p.reserves(s, tokenIn)
	if err != nil {
		return nil, err
	}
	if s.Stable {
		return StableOptimalSwapIn(fullAmountIn, r, s.Fee)
	}
	return uniswap.OptimalSwapIn(fullAmountIn, r.In, r.Out, s.Fee)
}

// BuildAddLiquidity encodes router addLiquidity; amountADesired is word 3 and
// amountBDesired word 4.
func (p *Pair) BuildAddLiquidity(quote amm.AddQuote, params amm.BuildParams) (zapstep.Step, error) {
	s, err := p.state.Get()
	if err != nil {
		return zapstep.Step{}, err
	}
	data, err := p.engine.router.Pack("addLiquidity",
		s.Token0, s.Token1, s.Stable,
		quote.Amounts[0], quote.Amounts[1],
		params.Min(0), params.Min(1),
		params.Recipient, params.DeadlineOrMax(),
	)
	if err != nil {
		return zapstep.Step{}, fmt.Errorf("pack addLiquidity: %w", err)
	}
	return zapstep.NewStep(p.engine.cfg.Router, data,
		zapstep.Patched(s.Token0, 3),
		zapstep.Patched(s.Token1, 4),
	), nil
}

// BuildRemoveLiquidity encodes router removeLiquidity; liquidity is word 3.
func (p *Pair) BuildRemoveLiquidity(quote amm.RemoveQuote, params amm.BuildParams) (zapstep.Step, error) {
	s, err := p.state.Get()
	if err != nil {
		return zapstep.Step{}, err
	}
	data, err := p.engine.router.Pack("removeLiquidity",
		s.Token0, s.Token1, s.Stable,
		quote.Liquidity,
		params.Min(0), params.Min(1),
		params.Recipient, params.DeadlineOrMax(),
	)
	if err != nil {
		return zapstep.Step{}, fmt.Errorf("pack removeLiquidity: %w", err)
	}
	return zapstep.NewStep(p.engine.cfg.Router, data, zapstep.Patched(p.address, 3)), nil
}

// BuildSwap encodes router swapExactTokensForTokensSimple; amountIn is word 0.
func (p *Pair) BuildSwap(quote amm.SwapQuote, params amm.BuildParams) (zapstep.Step, error) {
	s, err := p.state.Get()
	if err != nil {
		return zapstep.Step{}, err
	}
	data, err := p.engine.router.Pack("swapExactTokensForTokensSimple",
		quote.AmountIn,
		params.MinOutOrZero(),
		quote.TokenIn, quote.TokenOut,
		s.Stable,
		params.Recipient,
		params.DeadlineOrMax(),
	)
	if err != nil {
		return zapstep.Step{}, fmt.Errorf("pack swapExactTokensForTokensSimple: %w", err)
	}
	return zapstep.NewStep(p.engine.cfg.Router, data, zapstep.Patched(quote.TokenIn, 0)), nil
}
