// Package gamma implements the hypervisor engine: managed concentrated liquidity vaults
// that take deposits through a proxy enforcing a deposit ratio band.
package gamma

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"zapquote/internal/amm"
	"zapquote/internal/chain"
	"zapquote/internal/model"
	"zapquote/internal/state"
	"zapquote/internal/zapstep"
)

// HypervisorState is a snapshot of a hypervisor.
type HypervisorState struct {
	Token0      common.Address
	Token1      common.Address
	TotalSupply *big.Int
	Total0      *big.Int
	Total1      *big.Int
	Tick        int32
	// Price is token1 per token0 at Tick, scaled by Precision.
	Price *big.Int
}

// Engine loads hypervisors served by one proxy.
type Engine struct {
	cfg        model.AmmConfig
	deps       amm.Deps
	hypervisor *abi.ABI
	proxy      *abi.ABI
}

// New creates an engine for cfg.
func New(cfg model.AmmConfig, deps amm.Deps) (*Engine, error) {
	e := &Engine{cfg: cfg, deps: deps.WithDefaults()}
	var err error
	if e.hypervisor, err = HypervisorABI(); err != nil {
		return nil, fmt.Errorf("parse hypervisor abi: %w", err)
	}
	if e.proxy, err = ProxyABI(); err != nil {
		return nil, fmt.Errorf("parse proxy abi: %w", err)
	}
	return e, nil
}

func (e *Engine) Family() model.Family    { return model.FamilyHypervisor }
func (e *Engine) Config() model.AmmConfig { return e.cfg }

// Load reads the hypervisor state in one batch.
func (e *Engine) Load(ctx context.Context, reader chain.Reader, hypervisor common.Address) (amm.Pool, error) {
	calls := []chain.Call{
		{To: hypervisor, ABI: e.hypervisor, Method: "token0"},
		{To: hypervisor, ABI: e.hypervisor, Method: "token1"},
		{To: hypervisor, ABI: e.hypervisor, Method: "totalSupply"},
		{To: hypervisor, ABI: e.hypervisor, Method: "getTotalAmounts"},
		{To: hypervisor, ABI: e.hypervisor, Method: "currentTick"},
	}
	results, err := reader.BatchCall(ctx, calls)
	if err != nil {
		return nil, fmt.Errorf("load hypervisor %s: %w", hypervisor.Hex(), err)
	}
	if err := state.Require(calls, results); err != nil {
		return nil, fmt.Errorf("load hypervisor %s: %w", hypervisor.Hex(), err)
	}

	var s HypervisorState
	if s.Token0, err = chain.Value(results[0], chain.AsAddress); err != nil {
		return nil, fmt.Errorf("token0: %w", err)
	}
	if s.Token1, err = chain.Value(results[1], chain.AsAddress); err != nil {
		return nil, fmt.Errorf("token1: %w", err)
	}
	if s.TotalSupply, err = chain.Value(results[2], chain.AsBigInt); err != nil {
		return nil, fmt.Errorf("totalSupply: %w", err)
	}
	if len(results[3].Values) < 2 {
		return nil, fmt.Errorf("getTotalAmounts: short result")
	}
	if s.Total0, err = chain.AsBigInt(results[3].Values[0]); err != nil {
		return nil, fmt.Errorf("total0: %w", err)
	}
	if s.Total1, err = chain.AsBigInt(results[3].Values[1]); err != nil {
		return nil, fmt.Errorf("total1: %w", err)
	}
	tick, err := chain.Value(results[4], chain.AsBigInt)
	if err != nil {
		return nil, fmt.Errorf("currentTick: %w", err)
	}
	if s.Tick, err = chain.Int24FromBig(tick); err != nil {
		return nil, fmt.Errorf("currentTick: %w", err)
	}
	if s.Price, err = PriceAtTick(s.Tick); err != nil {
		return nil, fmt.Errorf("price at tick %d: %w", s.Tick, err)
	}
	return e.Pool(hypervisor, reader, s), nil
}

// Pool wraps a snapshot. reader serves the deposit band calls.
func (e *Engine) Pool(address common.Address, reader chain.Reader, s HypervisorState) *Hypervisor {
	return &Hypervisor{engine: e, address: address, reader: reader, state: state.Loaded(s)}
}

// Hypervisor is a loaded hypervisor.
type Hypervisor struct {
	engine  *Engine
	address common.Address
	reader  chain.Reader
	state   state.Cell[HypervisorState]
}

func (h *Hypervisor) Family() model.Family    { return model.FamilyHypervisor }
func (h *Hypervisor) Address() common.Address { return h.address }
func (h *Hypervisor) LPToken() common.Address { return h.address }

// State returns the snapshot.
func (h *Hypervisor) State() (HypervisorState, error) { return h.state.Get() }

func (h *Hypervisor) Tokens() []common.Address {
	s, err := h.state.Get()
	if err != nil {
		return nil
	}
	return []common.Address{s.Token0, s.Token1}
}

// Bands returns the token1 band for deposit0 and the token0 band for deposit1 in one batch.
// A zero deposit yields an empty band without a call.
func (h *Hypervisor) Bands(ctx context.Context, deposit0, deposit1 *big.Int) (Band, Band, error) {
	s, err := h.state.Get()
	if err != nil {
		return Band{}, Band{}, err
	}
	empty := Band{Start: new(big.Int), End: new(big.Int)}
	band1, band0 := empty, empty

	var calls []chain.Call
	if deposit0.Sign() > 0 {
		calls = append(calls, chain.Call{To: h.engine.cfg.Proxy, ABI: h.engine.proxy, Method: "getDepositAmount",
			Args: []interface{}{h.address, s.Token0, deposit0}})
	}
	if deposit1.Sign() > 0 {
		calls = append(calls, chain.Call{To: h.engine.cfg.Proxy, ABI: h.engine.proxy, Method: "getDepositAmount",
			Args: []interface{}{h.address, s.Token1, deposit1}})
	}
	if len(calls) == 0 {
		return band1, band0, nil
	}
	results, err := h.reader.BatchCall(ctx, calls)
	if err != nil {
		return Band{}, Band{}, fmt.Errorf("getDepositAmount: %w", err)
	}
	if err := state.Require(calls, results); err != nil {
		return Band{}, Band{}, err
	}
	i := 0
	if deposit0.Sign() > 0 {
		if band1, err = bandFrom(results[i]); err != nil {
			return Band{}, Band{}, err
		}
		i++
	}
	if deposit1.Sign() > 0 {
		if band0, err = bandFrom(results[i]); err != nil {
			return Band{}, Band{}, err
		}
	}
	return band1, band0, nil
}

func bandFrom(r chain.Result) (Band, error) {
	if len(r.Values) < 2 {
		return Band{}, fmt.Errorf("getDepositAmount: short result")
	}
	start, err := chain.AsBigInt(r.Values[0])
	if err != nil {
		return Band{}, fmt.Errorf("amountStart: %w", err)
	}
	end, err := chain.AsBigInt(r.Values[1])
	if err != nil {
		return Band{}, fmt.Errorf("amountEnd: %w", err)
	}
	return Band{Start: start, End: end}, nil
}

// QuoteSwap is unsupported: hypervisors hold positions but do not swap.
func (h *Hypervisor) QuoteSwap(context.Context, common.Address, *big.Int) (amm.SwapQuote, error) {
	return amm.SwapQuote{}, fmt.Errorf("%w: hypervisors do not swap", amm.ErrUnsupportedVariant)
}

// QuoteAddLiquidity fits the deposit into the proxy band and prices the shares.
func (h *Hypervisor) QuoteAddLiquidity(ctx context.Context, amounts []*big.Int) (amm.AddQuote, error) {
	s, err := h.state.Get()
	if err != nil {
		return amm.AddQuote{}, err
	}
	if err := amm.CheckAmounts(amounts, 2); err != nil {
		return amm.AddQuote{}, err
	}
	band1, band0, err := h.Bands(ctx, amounts[0], amounts[1])
	if err != nil {
		return amm.AddQuote{}, err
	}
	deposit0, deposit1, err := FitToBand(amounts[0], amounts[1], band1, band0)
	if err != nil {
		return amm.AddQuote{}, err
	}
	if deposit0.Cmp(amounts[0]) != 0 || deposit1.Cmp(amounts[1]) != 0 {
		h.engine.deps.Logger.Debug("deposit moved into band",
			zap.String("hypervisor", h.address.Hex()),
			zap.String("deposit0", deposit0.String()),
			zap.String("deposit1", deposit1.String()),
		)
	}
	shares, err := Shares(deposit0, deposit1, s.Price, s.Total0, s.Total1, s.TotalSupply)
	if err != nil {
		return amm.AddQuote{}, err
	}
	if shares.Sign() <= 0 {
		return amm.AddQuote{}, amm.ErrInsufficientLiquidity
	}
	return amm.AddQuote{
		Offered:   []*big.Int{new(big.Int).Set(amounts[0]), new(big.Int).Set(amounts[1])},
		Amounts:   []*big.Int{deposit0, deposit1},
		Liquidity: shares,
	}, nil
}

func (h *Hypervisor) QuoteRemoveLiquidity(_ context.Context, shares *big.Int) (amm.RemoveQuote, error) {
	s, err := h.state.Get()
	if err != nil {
		return amm.RemoveQuote{}, err
	}
	if err := amm.CheckPositive(shares); err != nil {
		return amm.RemoveQuote{}, err
	}
	amount0, amount1, err := WithdrawAmounts(shares, s.Total0, s.Total1, s.TotalSupply)
	if err != nil {
		return amm.RemoveQuote{}, err
	}
	return amm.RemoveQuote{Liquidity: new(big.Int).Set(shares), Amounts: []*big.Int{amount0, amount1}}, nil
}

// DepositRatio returns the band midpoint of the opposite token for a deposit of amount
// of tokenIn.
func (h *Hypervisor) DepositRatio(ctx context.Context, tokenIn common.Address, amount *big.Int) (*big.Int, error) {
	s, err := h.state.Get()
	if err != nil {
		return nil, err
	}
	switch tokenIn {
	case s.Token0:
		band1, _, err := h.Bands(ctx, amount, new(big.Int))
		if err != nil {
			return nil, err
		}
		return band1.Mid(), nil
	case s.Token1:
		_, band0, err := h.Bands(ctx, new(big.Int), amount)
		if err != nil {
			return nil, err
		}
		return band0.Mid(), nil
	default:
		return nil, fmt.Errorf("%w: %s", amm.ErrTokenMismatch, tokenIn.Hex())
	}
}

// OptimalSwapAmount splits fullAmountIn so the swapped part priced at the current tick and
// the rest match the deposit band midpoint.
func (h *Hypervisor) OptimalSwapAmount(ctx context.Context, tokenIn common.Address, fullAmountIn *big.Int) (*big.Int, error) {
	s, err := h.state.Get()
	if err != nil {
		return nil, err
	}
	if err := amm.CheckPositive(fullAmountIn); err != nil {
		return nil, err
	}
	mid, err := h.DepositRatio(ctx, tokenIn, fullAmountIn)
	if err != nil {
		return nil, err
	}
	return SwapForDeposit(fullAmountIn, mid, s.Price, tokenIn == s.Token0), nil
}

func noMinimums() [4]*big.Int {
	return [4]*big.Int{new(big.Int), new(big.Int), new(big.Int), new(big.Int)}
}

// BuildAddLiquidity encodes proxy deposit; deposit0 is word 0 and deposit1 word 1. The
// per position minimums stay zero.
func (h *Hypervisor) BuildAddLiquidity(quote amm.AddQuote, params amm.BuildParams) (zapstep.Step, error) {
	s, err := h.state.Get()
	if err != nil {
		return zapstep.Step{}, err
	}
	data, err := h.engine.proxy.Pack("deposit", quote.Amounts[0], quote.Amounts[1], params.Recipient, h.address, noMinimums())
	if err != nil {
		return zapstep.Step{}, fmt.Errorf("pack deposit: %w", err)
	}
	step := zapstep.NewStep(h.engine.cfg.Proxy, data, zapstep.Patched(s.Token0, 0), zapstep.Patched(s.Token1, 1))
	// the hypervisor pulls the tokens, not the proxy
	step.Spender = h.address
	return step, nil
}

// BuildRemoveLiquidity encodes hypervisor withdraw; shares is word 0.
func (h *Hypervisor) BuildRemoveLiquidity(quote amm.RemoveQuote, params amm.BuildParams) (zapstep.Step, error) {
	data, err := h.engine.hypervisor.Pack("withdraw", quote.Liquidity, params.Recipient, params.SenderOrRecipient(), noMinimums())
	if err != nil {
		return zapstep.Step{}, fmt.Errorf("pack withdraw: %w", err)
	}
	return zapstep.NewStep(h.address, data, zapstep.Patched(h.address, 0)), nil
}

func (h *Hypervisor) BuildSwap(amm.SwapQuote, amm.BuildParams) (zapstep.Step, error) {
	return zapstep.Step{}, fmt.Errorf("%w: hypervisors do not swap", amm.ErrUnsupportedVariant)
}
