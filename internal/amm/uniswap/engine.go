// Package uniswap implements the constant-product pair engine.
package uniswap

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"zapquote/internal/amm"
	"zapquote/internal/chain"
	"zapquote/internal/model"
	"zapquote/internal/state"
	"zapquote/internal/zapstep"
)

// PairState is a snapshot of a constant-product pair.
type PairState struct {
	Token0      common.Address
	Token1      common.Address
	Reserve0    *big.Int
	Reserve1    *big.Int
	TotalSupply *big.Int
	KLast       *big.Int
	FeeOn       bool
	Fee         FeeFraction
}

// Engine loads constant-product pairs of one deployment.
type Engine struct {
	cfg     model.AmmConfig
	deps    amm.Deps
	fees    FeeSource
	pair    *abi.ABI
	factory *abi.ABI
	router  *abi.ABI
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
	if e.factory, err = FactoryABI(); err != nil {
		return nil, fmt.Errorf("parse factory abi: %w", err)
	}
	if e.router, err = RouterABI(); err != nil {
		return nil, fmt.Errorf("parse router abi: %w", err)
	}
	return e, nil
}

func (e *Engine) Family() model.Family    { return model.FamilyConstantProduct }
func (e *Engine) Config() model.AmmConfig { return e.cfg }

// Load reads the pair state in one batch. Factory level values come from the factory cache.
func (e *Engine) Load(ctx context.Context, reader chain.Reader, pair common.Address) (amm.Pool, error) {
	s, err := e.LoadState(ctx, reader, pair)
	if err != nil {
		return nil, err
	}
	return e.Pool(pair, s), nil
}

// LoadState reads the pair snapshot.
func (e *Engine) LoadState(ctx context.Context, reader chain.Reader, pair common.Address) (PairState, error) {
	calls := []chain.Call{
		{To: pair, ABI: e.pair, Method: "token0"},
		{To: pair, ABI: e.pair, Method: "token1"},
		{To: pair, ABI: e.pair, Method: "getReserves"},
		{To: pair, ABI: e.pair, Method: "totalSupply"},
		{To: pair, ABI: e.pair, Method: "kLast", Optional: true},
	}
	feeCall, hasFeeCall := e.fees.PairCall(pair)
	if hasFeeCall {
		calls = append(calls, feeCall)
	}

	results, err := reader.BatchCall(ctx, calls)
	if err != nil {
		return PairState{}, fmt.Errorf("load pair %s: %w", pair.Hex(), err)
	}
	if err := state.Require(calls, results); err != nil {
		return PairState{}, fmt.Errorf("load pair %s: %w", pair.Hex(), err)
	}

	var s PairState
	if s.Token0, err = chain.Value(results[0], chain.AsAddress); err != nil {
		return PairState{}, fmt.Errorf("token0: %w", err)
	}
	if s.Token1, err = chain.Value(results[1], chain.AsAddress); err != nil {
		return PairState{}, fmt.Errorf("token1: %w", err)
	}
	if len(results[2].Values) < 2 {
		return PairState{}, fmt.Errorf("getReserves: short result")
	}
	if s.Reserve0, err = chain.AsBigInt(results[2].Values[0]); err != nil {
		return PairState{}, fmt.Errorf("reserve0: %w", err)
	}
	if s.Reserve1, err = chain.AsBigInt(results[2].Values[1]); err != nil {
		return PairState{}, fmt.Errorf("reserve1: %w", err)
	}
	if s.TotalSupply, err = chain.Value(results[3], chain.AsBigInt); err != nil {
		return PairState{}, fmt.Errorf("totalSupply: %w", err)
	}
	s.KLast = new(big.Int)
	if results[4].Err == nil {
		if s.KLast, err = chain.Value(results[4], chain.AsBigInt); err != nil {
			return PairState{}, fmt.Errorf("kLast: %w", err)
		}
	}

	var feeResult *chain.Result
	if hasFeeCall {
		feeResult = &results[5]
	}
	if s.Fee, err = e.fees.Resolve(ctx, reader, pair, feeResult); err != nil {
		return PairState{}, err
	}

	if s.FeeOn, err = e.feeOn(ctx, reader); err != nil {
		return PairState{}, err
	}
	e.deps.Logger.Debug("pair loaded",
		zap.String("pair", pair.Hex()),
		zap.String("reserve0", s.Reserve0.String()),
		zap.String("reserve1", s.Reserve1.String()),
		zap.Bool("fee_on", s.FeeOn),
	)
	return s, nil
}

func (e *Engine) feeOn(ctx context.Context, reader chain.Reader) (bool, error) {
	if e.cfg.MintFee.IsZero() || e.cfg.Factory == (common.Address{}) {
		return false, nil
	}
	call := chain.Call{To: e.cfg.Factory, ABI: e.factory, Method: "feeTo"}
	values, err := e.deps.Factory.Get(ctx, e.cfg.ChainID, reader, call, false)
	if err != nil {
		return false, fmt.Errorf("factory feeTo: %w", err)
	}
	feeTo, err := chain.AsAddress(values[0])
	if err != nil {
		return false, fmt.Errorf("factory feeTo: %w", err)
	}
	return feeTo != (common.Address{}), nil
}

// Pool wraps a snapshot.
func (e *Engine) Pool(address common.Address, s PairState) *Pair {
	return &Pair{engine: e, address: address, state: state.Loaded(s)}
}

// Pair is a loaded constant-product pair.
type Pair struct {
	engine  *Engine
	address common.Address
	state   state.Cell[PairState]
}

func (p *Pair) Family() model.Family    { return model.FamilyConstantProduct }
func (p *Pair) Address() common.Address { return p.address }
func (p *Pair) LPToken() common.Address { return p.address }

func (p *Pair) Tokens() []common.Address {
	s, err := p.state.Get()
	if err != nil {
		return nil
	}
	return []common.Address{s.Token0, s.Token1}
}

// State returns the snapshot.
func (p *Pair) State() (PairState, error) {
	return p.state.Get()
}

// AfterSwap returns the pair with quote's amounts moved through its reserves.
func (p *Pair) AfterSwap(quote amm.SwapQuote) (amm.Pool, error) {
	s, err := p.state.Get()
	if err != nil {
		return nil, err
	}
	reserveIn, reserveOut, _, err := p.reserves(s, quote.TokenIn)
	if err != nil {
		return nil, err
	}
	if quote.AmountOut.Cmp(reserveOut) >= 0 {
		return nil, amm.ErrInsufficientLiquidity
	}
	reserveIn = new(big.Int).Add(reserveIn, quote.AmountIn)
	reserveOut = new(big.Int).Sub(reserveOut, quote.AmountOut)
	next := s
	if quote.TokenIn == s.Token0 {
		next.Reserve0, next.Reserve1 = reserveIn, reserveOut
	} else {
		next.Reserve0, next.Reserve1 = reserveOut, reserveIn
	}
	return p.engine.Pool(p.address, next), nil
}

// AfterRemove returns the pair after quote's liquidity is burned. The protocol fee is
// minted first, and kLast follows the reduced reserves when the fee is on.
func (p *Pair) AfterRemove(quote amm.RemoveQuote) (amm.Pool, error) {
	s, err := p.state.Get()
	if err != nil {
		return nil, err
	}
	if len(quote.Amounts) != 2 {
		return nil, fmt.Errorf("remove quote: %d amounts for a pair", len(quote.Amounts))
	}
	supply := p.supplyAfterMintFee(s)
	if quote.Liquidity.Cmp(supply) > 0 || quote.Amounts[0].Cmp(s.Reserve0) >= 0 || quote.Amounts[1].Cmp(s.Reserve1) >= 0 {
		return nil, amm.ErrInsufficientLiquidity
	}
	next := s
	next.Reserve0 = new(big.Int).Sub(s.Reserve0, quote.Amounts[0])
	next.Reserve1 = new(big.Int).Sub(s.Reserve1, quote.Amounts[1])
	next.TotalSupply = supply.Sub(supply, quote.Liquidity)
	if s.FeeOn {
		next.KLast = new(big.Int).Mul(next.Reserve0, next.Reserve1)
	}
	return p.engine.Pool(p.address, next), nil
}

// SwapFeeRate returns the pair fee as a fraction.
func (p *Pair) SwapFeeRate() (decimal.Decimal, error) {
	s, err := p.state.Get()
	if err != nil {
		return decimal.Zero, err
	}
	return s.Fee.Rate(), nil
}

func (p *Pair) reserves(s PairState, tokenIn common.Address) (*big.Int, *big.Int, common.Address, error) {
	switch tokenIn {
	case s.Token0:
		return s.Reserve0, s.Reserve1, s.Token1, nil
	case s.Token1:
		return s.Reserve1, s.Reserve0, s.Token0, nil
	default:
		return nil, nil, common.Address{}, fmt.Errorf("%w: %s", amm.ErrTokenMismatch, tokenIn.Hex())
	}
}

// supplyAfterMintFee is the total supply the pair uses on mint and burn.
func (p *Pair) supplyAfterMintFee(s PairState) *big.Int {
	supply := new(big.Int).Set(s.TotalSupply)
	if !s.FeeOn {
		return supply
	}
	share := NewFee(p.engine.cfg.MintFee.Numerator, p.engine.cfg.MintFee.Denominator)
	return supply.Add(supply, MintFee(s.Reserve0, s.Reserve1, s.TotalSupply, s.KLast, share))
}

func (p *Pair) QuoteSwap(_ context.Context, tokenIn common.Address, amountIn *big.Int) (amm.SwapQuote, error) {
	s, err := p.state.Get()
	if err != nil {
		return amm.SwapQuote{}, err
	}
	reserveIn, reserveOut, tokenOut, err := p.reserves(s, tokenIn)
	if err != nil {
		return amm.SwapQuote{}, err
	}
	out, err := GetAmountOut(amountIn, reserveIn, reserveOut, s.Fee)
	if err != nil {
		return amm.SwapQuote{}, err
	}
	if out.Sign() == 0 {
		return amm.SwapQuote{}, amm.ErrInsufficientLiquidity
	}
	return amm.SwapQuote{TokenIn: tokenIn, TokenOut: tokenOut, AmountIn: new(big.Int).Set(amountIn), AmountOut: out}, nil
}

func (p *Pair) QuoteAddLiquidity(_ context.Context, amounts []*big.Int) (amm.AddQuote, error) {
	s, err := p.state.Get()
	if err != nil {
		return amm.AddQuote{}, err
	}
	if err := amm.CheckAmounts(amounts, 2); err != nil {
		return amm.AddQuote{}, err
	}
	amount0, amount1, err := OptimalAmounts(amounts[0], amounts[1], s.Reserve0, s.Reserve1)
	if err != nil {
		return amm.AddQuote{}, err
	}
	liquidity, err := LiquidityMinted(amount0, amount1, s.Reserve0, s.Reserve1, p.supplyAfterMintFee(s), p.engine.cfg.MinLiquidity())
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
	amount0, amount1, err := BurnAmounts(liquidity, s.Reserve0, s.Reserve1, p.supplyAfterMintFee(s))
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
	reserveIn, reserveOut, _, err := p.reserves(s, tokenIn)
	if err != nil {
		return nil, err
	}
	return OptimalSwapIn(fullAmountIn, reserveIn, reserveOut, s.Fee)
}

// BuildAddLiquidity encodes router addLiquidity; amountADesired is word 2 and
// amountBDesired word 3.
func (p *Pair) BuildAddLiquidity(quote amm.AddQuote, params amm.BuildParams) (zapstep.Step, error) {
	s, err := p.state.Get()
	if err != nil {
		return zapstep.Step{}, err
	}
	data, err := p.engine.router.Pack("addLiquidity",
		s.Token0, s.Token1,
		quote.Amounts[0], quote.Amounts[1],
		params.Min(0), params.Min(1),
		params.Recipient, params.DeadlineOrMax(),
	)
	if err != nil {
		return zapstep.Step{}, fmt.Errorf("pack addLiquidity: %w", err)
	}
	return zapstep.NewStep(p.engine.cfg.Router, data,
		zapstep.Patched(s.Token0, 2),
		zapstep.Patched(s.Token1, 3),
	), nil
}

// BuildRemoveLiquidity encodes router removeLiquidity; liquidity is word 2.
func (p *Pair) BuildRemoveLiquidity(quote amm.RemoveQuote, params amm.BuildParams) (zapstep.Step, error) {
	s, err := p.state.Get()
	if err != nil {
		return zapstep.Step{}, err
	}
	data, err := p.engine.router.Pack("removeLiquidity",
		s.Token0, s.Token1,
		quote.Liquidity,
		params.Min(0), params.Min(1),
		params.Recipient, params.DeadlineOrMax(),
	)
	if err != nil {
		return zapstep.Step{}, fmt.Errorf("pack removeLiquidity: %w", err)
	}
	return zapstep.NewStep(p.engine.cfg.Router, data, zapstep.Patched(p.address, 2)), nil
}

// BuildSwap encodes router swapExactTokensForTokens; amountIn is word 0.
func (p *Pair) BuildSwap(quote amm.SwapQuote, params amm.BuildParams) (zapstep.Step, error) {
	data, err := p.engine.router.Pack("swapExactTokensForTokens",
		quote.AmountIn,
		params.MinOutOrZero(),
		[]common.Address{quote.TokenIn, quote.TokenOut},
		params.Recipient,
		params.DeadlineOrMax(),
	)
	if err != nil {
		return zapstep.Step{}, fmt.Errorf("pack swapExactTokensForTokens: %w", err)
	}
	return zapstep.NewStep(p.engine.cfg.Router, data, zapstep.Patched(quote.TokenIn, 0)), nil
}
