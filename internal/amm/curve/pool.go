package curve

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"zapquote/internal/amm"
	"zapquote/internal/chain"
	"zapquote/internal/model"
	"zapquote/internal/state"
	"zapquote/internal/zapstep"
)

// StablePool is a loaded stable pool.
type StablePool struct {
	engine  *Engine
	address common.Address
	reader  chain.Reader
	// methods is generated for the basis coin count, poolMethods for the pool coin count.
	methods     *abi.ABI
	poolMethods *abi.ABI
	state       state.Cell[PoolState]
}

func (p *StablePool) Family() model.Family    { return model.FamilyStablePool }
func (p *StablePool) Address() common.Address { return p.address }

// State returns the snapshot.
func (p *StablePool) State() (PoolState, error) { return p.state.Get() }

func (p *StablePool) LPToken() common.Address {
	s, err := p.state.Get()
	if err != nil {
		return common.Address{}
	}
	return s.LPToken
}

// Tokens returns the deposit basis of the method type.
func (p *StablePool) Tokens() []common.Address {
	s, err := p.state.Get()
	if err != nil {
		return nil
	}
	return s.Basis
}

func (p *StablePool) spec() MethodSpec { return p.engine.spec }

func (p *StablePool) target() common.Address { return p.engine.target(p.address) }

func (p *StablePool) call(ctx context.Context, to common.Address, parsed *abi.ABI, method string, args ...interface{}) (*big.Int, error) {
	values, err := chain.One(ctx, p.reader, chain.Call{To: to, ABI: parsed, Method: method, Args: args})
	if err != nil {
		return nil, err
	}
	return chain.AsBigInt(values[0])
}

func (p *StablePool) QuoteAddLiquidity(ctx context.Context, amounts []*big.Int) (amm.AddQuote, error) {
	s, err := p.state.Get()
	if err != nil {
		return amm.AddQuote{}, err
	}
	if err := amm.CheckAmounts(amounts, len(s.Basis)); err != nil {
		return amm.AddQuote{}, err
	}
	offered := make([]*big.Int, len(amounts))
	for i, a := range amounts {
		offered[i] = new(big.Int).Set(a)
	}
	args := p.engine.args(p.address, amountsArg(p.spec(), offered))
	if s.DepositFlag {
		args = append(args, true)
	}
	minted, err := p.call(ctx, p.target(), p.methods, "calc_token_amount", args...)
	if err != nil {
		return amm.AddQuote{}, fmt.Errorf("calc_token_amount: %w", err)
	}
	if minted.Sign() <= 0 {
		return amm.AddQuote{}, amm.ErrInsufficientLiquidity
	}
	return amm.AddQuote{Offered: offered, Amounts: offered, Liquidity: minted}, nil
}

// QuoteRemoveLiquidity pays out balances·liquidity/totalSupply of every pool coin. Method
// types whose basis is not the pool's own coin list only burn into one coin.
func (p *StablePool) QuoteRemoveLiquidity(_ context.Context, liquidity *big.Int) (amm.RemoveQuote, error) {
	s, err := p.state.Get()
	if err != nil {
		return amm.RemoveQuote{}, err
	}
	if err := amm.CheckPositive(liquidity); err != nil {
		return amm.RemoveQuote{}, err
	}
	if !p.spec().SupportsProportionalRemove() {
		return amm.RemoveQuote{}, fmt.Errorf("%w: %s removes into one coin only", amm.ErrUnsupportedVariant, p.spec().Type)
	}
	if s.TotalSupply.Sign() == 0 {
		return amm.RemoveQuote{}, amm.ErrInsufficientLiquidity
	}
	amounts := make([]*big.Int, len(s.Balances))
	for i, balance := range s.Balances {
		amounts[i] = new(big.Int).Mul(balance, liquidity)
		amounts[i].Quo(amounts[i], s.TotalSupply)
	}
	return amm.RemoveQuote{Liquidity: new(big.Int).Set(liquidity), Amounts: amounts}, nil
}

// QuoteRemoveOne quotes calc_withdraw_one_coin for tokenOut of the basis.
func (p *StablePool) QuoteRemoveOne(ctx context.Context, liquidity *big.Int, tokenOut common.Address) (amm.RemoveQuote, error) {
	s, err := p.state.Get()
	if err != nil {
		return amm.RemoveQuote{}, err
	}
	if err := amm.CheckPositive(liquidity); err != nil {
		return amm.RemoveQuote{}, err
	}
	i, err := amm.IndexOf(s.Basis, tokenOut)
	if err != nil {
		return amm.RemoveQuote{}, err
	}
	args := p.engine.args(p.address, liquidity, big.NewInt(int64(i)))
	out, err := p.call(ctx, p.target(), p.methods, "calc_withdraw_one_coin", args...)
	if err != nil {
		return amm.RemoveQuote{}, fmt.Errorf("calc_withdraw_one_coin: %w", err)
	}
	if out.Sign() <= 0 {
		return amm.RemoveQuote{}, amm.ErrInsufficientLiquidity
	}
	amounts := make([]*big.Int, len(s.Basis))
	for j := range amounts {
		amounts[j] = new(big.Int)
	}
	amounts[i] = out
	return amm.RemoveQuote{Liquidity: new(big.Int).Set(liquidity), Amounts: amounts}, nil
}

// QuoteSwap swaps into the other coin of a two coin basis.
func (p *StablePool) QuoteSwap(ctx context.Context, tokenIn common.Address, amountIn *big.Int) (amm.SwapQuote, error) {
	s, err := p.state.Get()
	if err != nil {
		return amm.SwapQuote{}, err
	}
	if len(s.Basis) != 2 {
		return amm.SwapQuote{}, fmt.Errorf("%w: pool has %d coins, name the output coin", amm.ErrUnsupportedVariant, len(s.Basis))
	}
	i, err := amm.IndexOf(s.Basis, tokenIn)
	if err != nil {
		return amm.SwapQuote{}, err
	}
	return p.QuoteSwapTo(ctx, tokenIn, s.Basis[1-i], amountIn)
}

func (p *StablePool) swapIndexes(s PoolState, tokenIn, tokenOut common.Address) (int, int, error) {
	if p.spec().SwapsUnderlying() && s.MetaDepth > 1 {
		return 0, 0, fmt.Errorf("%w: underlying swaps across %d meta levels", amm.ErrUnsupportedVariant, s.MetaDepth)
	}
	i, err := amm.IndexOf(s.Basis, tokenIn)
	if err != nil {
		return 0, 0, err
	}
	j, err := amm.IndexOf(s.Basis, tokenOut)
	if err != nil {
		return 0, 0, err
	}
	if i == j {
		return 0, 0, fmt.Errorf("%w: swap %s into itself", amm.ErrTokenMismatch, tokenIn.Hex())
	}
	return i, j, nil
}

// QuoteSwapTo quotes get_dy, or get_dy_underlying for underlying and meta bases, on the pool.
func (p *StablePool) QuoteSwapTo(ctx context.Context, tokenIn, tokenOut common.Address, amountIn *big.Int) (amm.SwapQuote, error) {
	s, err := p.state.Get()
	if err != nil {
		return amm.SwapQuote{}, err
	}
	if err := amm.CheckPositive(amountIn); err != nil {
		return amm.SwapQuote{}, err
	}
	i, j, err := p.swapIndexes(s, tokenIn, tokenOut)
	if err != nil {
		return amm.SwapQuote{}, err
	}
	method := "get_dy"
	if p.spec().SwapsUnderlying() {
		method = "get_dy_underlying"
	}
	out, err := p.call(ctx, p.address, p.methods, method, big.NewInt(int64(i)), big.NewInt(int64(j)), amountIn)
	if err != nil {
		return amm.SwapQuote{}, fmt.Errorf("%s: %w", method, err)
	}
	if out.Sign() <= 0 {
		return amm.SwapQuote{}, amm.ErrInsufficientLiquidity
	}
	return amm.SwapQuote{TokenIn: tokenIn, TokenOut: tokenOut, AmountIn: new(big.Int).Set(amountIn), AmountOut: out}, nil
}

// OptimalSwapAmount is zero: stable pools take single sided deposits.
func (p *StablePool) OptimalSwapAmount(_ context.Context, tokenIn common.Address, fullAmountIn *big.Int) (*big.Int, error) {
	s, err := p.state.Get()
	if err != nil {
		return nil, err
	}
	if err := amm.CheckPositive(fullAmountIn); err != nil {
		return nil, err
	}
	if _, err := amm.IndexOf(s.Basis, tokenIn); err != nil {
		return nil, err
	}
	return new(big.Int), nil
}

// trailing appends use_underlying and receiver where the method type takes them.
func (p *StablePool) trailing(args []interface{}, recipient common.Address) []interface{} {
	if p.spec().Underlying {
		args = append(args, true)
	}
	if p.spec().Receiver {
		args = append(args, recipient)
	}
	return args
}

// BuildAddLiquidity encodes add_liquidity on the pool or wrapper with the amount words of
// the method type.
func (p *StablePool) BuildAddLiquidity(quote amm.AddQuote, params amm.BuildParams) (zapstep.Step, error) {
	s, err := p.state.Get()
	if err != nil {
		return zapstep.Step{}, err
	}
	if len(quote.Amounts) != len(s.Basis) {
		return zapstep.Step{}, fmt.Errorf("%w: %d amounts for %d coins", amm.ErrInvalidAmount, len(quote.Amounts), len(s.Basis))
	}
	args := p.engine.args(p.address, amountsArg(p.spec(), quote.Amounts), params.MinOutOrZero())
	args = p.trailing(args, params.Recipient)
	data, err := p.methods.Pack("add_liquidity", args...)
	if err != nil {
		return zapstep.Step{}, fmt.Errorf("pack add_liquidity: %w", err)
	}
	tokens := make([]zapstep.StepToken, len(s.Basis))
	for i, coin := range s.Basis {
		tokens[i] = zapstep.Patched(coin, p.spec().AmountWord(len(s.Basis), i))
	}
	return zapstep.NewStep(p.target(), data, tokens...), nil
}

// BuildRemoveLiquidity encodes a proportional remove_liquidity on the pool; the burn
// amount is word 0.
func (p *StablePool) BuildRemoveLiquidity(quote amm.RemoveQuote, params amm.BuildParams) (zapstep.Step, error) {
	s, err := p.state.Get()
	if err != nil {
		return zapstep.Step{}, err
	}
	if !p.spec().SupportsProportionalRemove() {
		return zapstep.Step{}, fmt.Errorf("%w: %s removes into one coin only", amm.ErrUnsupportedVariant, p.spec().Type)
	}
	mins := make([]*big.Int, len(s.Coins))
	for i := range mins {
		mins[i] = params.Min(i)
	}
	args := []interface{}{quote.Liquidity, fixedArray(mins)}
	if p.spec().Underlying {
		args = append(args, true)
	}
	data, err := p.poolMethods.Pack("remove_liquidity", args...)
	if err != nil {
		return zapstep.Step{}, fmt.Errorf("pack remove_liquidity: %w", err)
	}
	return zapstep.NewStep(p.address, data, zapstep.Patched(s.LPToken, RemoveLiquidityWord)), nil
}

// BuildRemoveOne encodes remove_liquidity_one_coin on the pool or wrapper.
func (p *StablePool) BuildRemoveOne(quote amm.RemoveQuote, tokenOut common.Address, params amm.BuildParams) (zapstep.Step, error) {
	s, err := p.state.Get()
	if err != nil {
		return zapstep.Step{}, err
	}
	i, err := amm.IndexOf(s.Basis, tokenOut)
	if err != nil {
		return zapstep.Step{}, err
	}
	args := p.engine.args(p.address, quote.Liquidity, big.NewInt(int64(i)), params.MinOutOrZero())
	args = p.trailing(args, params.Recipient)
	data, err := p.methods.Pack("remove_liquidity_one_coin", args...)
	if err != nil {
		return zapstep.Step{}, fmt.Errorf("pack remove_liquidity_one_coin: %w", err)
	}
	return zapstep.NewStep(p.target(), data, zapstep.Patched(s.LPToken, p.spec().RemoveOneWord())), nil
}

// BuildSwap encodes exchange or exchange_underlying on the pool; dx is word 2.
func (p *StablePool) BuildSwap(quote amm.SwapQuote, params amm.BuildParams) (zapstep.Step, error) {
	s, err := p.state.Get()
	if err != nil {
		return zapstep.Step{}, err
	}
	i, j, err := p.swapIndexes(s, quote.TokenIn, quote.TokenOut)
	if err != nil {
		return zapstep.Step{}, err
	}
	method := "exchange"
	if p.spec().SwapsUnderlying() {
		method = "exchange_underlying"
	}
	data, err := p.methods.Pack(method, big.NewInt(int64(i)), big.NewInt(int64(j)), quote.AmountIn, params.MinOutOrZero())
	if err != nil {
		return zapstep.Step{}, fmt.Errorf("pack %s: %w", method, err)
	}
	return zapstep.NewStep(p.address, data, zapstep.Patched(quote.TokenIn, ExchangeAmountWord)), nil
}
