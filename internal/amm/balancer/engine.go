// Package balancer implements the vault pool engine. Pool balances live in a shared vault;
// quotes are simulated through the vault queries contract and steps call the vault.
package balancer

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"zapquote/internal/amm"
	"zapquote/internal/chain"
	"zapquote/internal/fixedpoint"
	"zapquote/internal/model"
	"zapquote/internal/state"
	"zapquote/internal/zapstep"
)

// VaultState is a snapshot of a vault pool.
type VaultState struct {
	PoolID   [32]byte
	PoolType model.VaultPoolType
	// Tokens and balances in vault order, including the pool's own token for
	// composable stable pools.
	PoolTokens     []common.Address
	Balances       []*big.Int
	TotalSupply    *big.Int
	SwapFee        *big.Int
	ScalingFactors []*big.Int
	Weights        []*big.Int
	// BptIndex is the position of the pool token in PoolTokens, or -1.
	BptIndex int
}

// UserTokens returns the pool tokens without the pool's own token.
func (s VaultState) UserTokens() []common.Address {
	out := make([]common.Address, 0, len(s.PoolTokens))
	for i, token := range s.PoolTokens {
		if i != s.BptIndex {
			out = append(out, token)
		}
	}
	return out
}

// poolIndex maps a user token index to its vault index.
func (s VaultState) poolIndex(userIndex int) int {
	if s.BptIndex >= 0 && userIndex >= s.BptIndex {
		return userIndex + 1
	}
	return userIndex
}

// dropBpt removes the pool token slot from a vault ordered slice.
func (s VaultState) dropBpt(values []*big.Int) []*big.Int {
	if s.BptIndex < 0 {
		return values
	}
	out := make([]*big.Int, 0, len(values))
	for i, v := range values {
		if i != s.BptIndex {
			out = append(out, v)
		}
	}
	return out
}

// Engine loads vault pools of one deployment.
type Engine struct {
	cfg     model.AmmConfig
	deps    amm.Deps
	pool    *abi.ABI
	vault   *abi.ABI
	queries *abi.ABI
}

// New creates an engine for cfg.
func New(cfg model.AmmConfig, deps amm.Deps) (*Engine, error) {
	switch cfg.VaultPoolType {
	case model.VaultPoolWeighted, model.VaultPoolComposableStable, model.VaultPoolGyro:
	default:
		return nil, fmt.Errorf("%w: vault pool type %q", amm.ErrUnsupportedVariant, cfg.VaultPoolType)
	}
	e := &Engine{cfg: cfg, deps: deps.WithDefaults()}
	var err error
	if e.pool, err = PoolABI(); err != nil {
		return nil, fmt.Errorf("parse pool abi: %w", err)
	}
	if e.vault, err = VaultABI(); err != nil {
		return nil, fmt.Errorf("parse vault abi: %w", err)
	}
	if e.queries, err = QueriesABI(); err != nil {
		return nil, fmt.Errorf("parse queries abi: %w", err)
	}
	return e, nil
}

func (e *Engine) Family() model.Family    { return model.FamilyVault }
func (e *Engine) Config() model.AmmConfig { return e.cfg }

// Load reads the pool getters in one batch and the vault balances in a second one, since
// the vault is keyed by the pool id.
func (e *Engine) Load(ctx context.Context, reader chain.Reader, pool common.Address) (amm.Pool, error) {
	s := VaultState{PoolType: e.cfg.VaultPoolType, BptIndex: -1}

	supplyMethod := "totalSupply"
	if s.PoolType == model.VaultPoolComposableStable {
		supplyMethod = "getActualSupply"
	}
	calls := []chain.Call{
		{To: pool, ABI: e.pool, Method: "getPoolId"},
		{To: pool, ABI: e.pool, Method: supplyMethod},
		{To: pool, ABI: e.pool, Method: "getSwapFeePercentage"},
	}
	switch s.PoolType {
	case model.VaultPoolWeighted:
		calls = append(calls,
			chain.Call{To: pool, ABI: e.pool, Method: "getScalingFactors"},
			chain.Call{To: pool, ABI: e.pool, Method: "getNormalizedWeights"},
		)
	case model.VaultPoolComposableStable:
		calls = append(calls,
			chain.Call{To: pool, ABI: e.pool, Method: "getScalingFactors"},
			chain.Call{To: pool, ABI: e.pool, Method: "getBptIndex"},
		)
	case model.VaultPoolGyro:
		calls = append(calls, chain.Call{To: pool, ABI: e.pool, Method: "getTokenRates", Optional: true})
	}
	results, err := reader.BatchCall(ctx, calls)
	if err != nil {
		return nil, fmt.Errorf("load pool %s: %w", pool.Hex(), err)
	}
	if err := state.Require(calls, results); err != nil {
		return nil, fmt.Errorf("load pool %s: %w", pool.Hex(), err)
	}

	if s.PoolID, err = chain.Value(results[0], chain.AsBytes32); err != nil {
		return nil, fmt.Errorf("getPoolId: %w", err)
	}
	if s.TotalSupply, err = chain.Value(results[1], chain.AsBigInt); err != nil {
		return nil, fmt.Errorf("%s: %w", supplyMethod, err)
	}
	if s.SwapFee, err = chain.Value(results[2], chain.AsBigInt); err != nil {
		return nil, fmt.Errorf("getSwapFeePercentage: %w", err)
	}

	var rates []*big.Int
	switch s.PoolType {
	case model.VaultPoolWeighted:
		if s.ScalingFactors, err = chain.Value(results[3], chain.AsBigInts); err != nil {
			return nil, fmt.Errorf("getScalingFactors: %w", err)
		}
		if s.Weights, err = chain.Value(results[4], chain.AsBigInts); err != nil {
			return nil, fmt.Errorf("getNormalizedWeights: %w", err)
		}
	case model.VaultPoolComposableStable:
		if s.ScalingFactors, err = chain.Value(results[3], chain.AsBigInts); err != nil {
			return nil, fmt.Errorf("getScalingFactors: %w", err)
		}
		index, err := chain.Value(results[4], chain.AsBigInt)
		if err != nil {
			return nil, fmt.Errorf("getBptIndex: %w", err)
		}
		s.BptIndex = int(index.Int64())
	case model.VaultPoolGyro:
		if results[3].Err == nil && len(results[3].Values) == 2 {
			for _, v := range results[3].Values {
				rate, err := chain.AsBigInt(v)
				if err != nil {
					return nil, fmt.Errorf("getTokenRates: %w", err)
				}
				rates = append(rates, rate)
			}
		}
	}

	tokensCall := chain.Call{To: e.cfg.Vault, ABI: e.vault, Method: "getPoolTokens", Args: []interface{}{s.PoolID}}
	values, err := chain.One(ctx, reader, tokensCall)
	if err != nil {
		return nil, fmt.Errorf("load pool %s tokens: %w", pool.Hex(), err)
	}
	if len(values) < 2 {
		return nil, fmt.Errorf("getPoolTokens: short result")
	}
	if s.PoolTokens, err = chain.AsAddresses(values[0]); err != nil {
		return nil, fmt.Errorf("getPoolTokens tokens: %w", err)
	}
	if s.Balances, err = chain.AsBigInts(values[1]); err != nil {
		return nil, fmt.Errorf("getPoolTokens balances: %w", err)
	}
	if len(s.PoolTokens) != len(s.Balances) || len(s.PoolTokens) < 2 {
		return nil, fmt.Errorf("getPoolTokens: %d tokens with %d balances", len(s.PoolTokens), len(s.Balances))
	}
	if s.BptIndex >= len(s.PoolTokens) {
		return nil, fmt.Errorf("getBptIndex: %d out of %d tokens", s.BptIndex, len(s.PoolTokens))
	}

	if s.PoolType == model.VaultPoolGyro {
		if s.ScalingFactors, err = e.gyroScalingFactors(ctx, reader, s.PoolTokens, rates); err != nil {
			return nil, err
		}
	}
	if len(s.ScalingFactors) != len(s.PoolTokens) {
		return nil, fmt.Errorf("pool %s: %d scaling factors for %d tokens", pool.Hex(), len(s.ScalingFactors), len(s.PoolTokens))
	}

	return e.Pool(pool, reader, s), nil
}

// gyroScalingFactors combines token decimals with the pool rates; pools without rate
// providers use a rate of one.
func (e *Engine) gyroScalingFactors(ctx context.Context, reader chain.Reader, tokens []common.Address, rates []*big.Int) ([]*big.Int, error) {
	metas, err := e.deps.Tokens.Load(ctx, reader, tokens, e.deps.Logger)
	if err != nil {
		return nil, err
	}
	out := make([]*big.Int, len(tokens))
	for i, token := range tokens {
		rate := fixedpoint.One
		if len(rates) == len(tokens) && rates[i].Sign() > 0 {
			rate = rates[i]
		}
		if out[i], err = fixedpoint.ScalingFactor(metas[token].Decimals, rate); err != nil {
			return nil, fmt.Errorf("token %s: %w", token.Hex(), err)
		}
	}
	return out, nil
}

// Pool wraps a snapshot. reader serves the simulated query calls.
func (e *Engine) Pool(address common.Address, reader chain.Reader, s VaultState) *VaultPool {
	return &VaultPool{engine: e, address: address, reader: reader, state: state.Loaded(s)}
}

// VaultPool is a loaded vault pool.
type VaultPool struct {
	engine  *Engine
	address common.Address
	reader  chain.Reader
	state   state.Cell[VaultState]
}

func (p *VaultPool) Family() model.Family    { return model.FamilyVault }
func (p *VaultPool) Address() common.Address { return p.address }
func (p *VaultPool) LPToken() common.Address { return p.address }

// State returns the snapshot.
func (p *VaultPool) State() (VaultState, error) { return p.state.Get() }

// SwapFeeRate returns getSwapFeePercentage as a fraction.
func (p *VaultPool) SwapFeeRate() (decimal.Decimal, error) {
	s, err := p.state.Get()
	if err != nil {
		return decimal.Zero, err
	}
	return decimal.NewFromBigInt(s.SwapFee, -18), nil
}

func (p *VaultPool) Tokens() []common.Address {
	s, err := p.state.Get()
	if err != nil {
		return nil
	}
	return s.UserTokens()
}

func (p *VaultPool) funds() FundManagement {
	return FundManagement{Sender: p.address, Recipient: p.address}
}

func (p *VaultPool) QuoteSwap(ctx context.Context, tokenIn common.Address, amountIn *big.Int) (amm.SwapQuote, error) {
	s, err := p.state.Get()
	if err != nil {
		return amm.SwapQuote{}, err
	}
	if err := amm.CheckPositive(amountIn); err != nil {
		return amm.SwapQuote{}, err
	}
	tokens := s.UserTokens()
	if len(tokens) != 2 {
		return amm.SwapQuote{}, fmt.Errorf("%w: swaps need a two token pool, have %d", amm.ErrUnsupportedVariant, len(tokens))
	}
	in, err := amm.IndexOf(tokens, tokenIn)
	if err != nil {
		return amm.SwapQuote{}, err
	}
	tokenOut := tokens[1-in]
	out, err := p.querySwap(ctx, s, tokenIn, tokenOut, amountIn)
	if err != nil {
		return amm.SwapQuote{}, err
	}
	if out.Sign() <= 0 {
		return amm.SwapQuote{}, amm.ErrInsufficientLiquidity
	}
	return amm.SwapQuote{TokenIn: tokenIn, TokenOut: tokenOut, AmountIn: new(big.Int).Set(amountIn), AmountOut: out}, nil
}

func (p *VaultPool) querySwap(ctx context.Context, s VaultState, tokenIn, tokenOut common.Address, amountIn *big.Int) (*big.Int, error) {
	swaps := []BatchSwapStep{{
		PoolId:        s.PoolID,
		AssetInIndex:  big.NewInt(0),
		AssetOutIndex: big.NewInt(1),
		Amount:        amountIn,
		UserData:      []byte{},
	}}
	call := chain.Call{
		To:     p.engine.cfg.Queries,
		ABI:    p.engine.queries,
		Method: "queryBatchSwap",
		Args:   []interface{}{SwapKindGivenIn, swaps, []common.Address{tokenIn, tokenOut}, p.funds()},
	}
	values, err := chain.One(ctx, p.reader, call)
	if err != nil {
		return nil, fmt.Errorf("queryBatchSwap: %w", err)
	}
	deltas, err := chain.AsBigInts(values[0])
	if err != nil {
		return nil, fmt.Errorf("queryBatchSwap deltas: %w", err)
	}
	if len(deltas) != 2 {
		return nil, fmt.Errorf("queryBatchSwap: %d deltas", len(deltas))
	}
	return new(big.Int).Neg(deltas[1]), nil
}

func (p *VaultPool) queryJoin(ctx context.Context, s VaultState, maxAmountsIn []*big.Int, userData []byte) (*big.Int, []*big.Int, error) {
	request := JoinPoolRequest{Assets: s.PoolTokens, MaxAmountsIn: maxAmountsIn, UserData: userData}
	call := chain.Call{
		To:     p.engine.cfg.Queries,
		ABI:    p.engine.queries,
		Method: "queryJoin",
		Args:   []interface{}{s.PoolID, p.address, p.address, request},
	}
	values, err := chain.One(ctx, p.reader, call)
	if err != nil {
		return nil, nil, fmt.Errorf("queryJoin: %w", err)
	}
	if len(values) < 2 {
		return nil, nil, fmt.Errorf("queryJoin: short result")
	}
	bptOut, err := chain.AsBigInt(values[0])
	if err != nil {
		return nil, nil, fmt.Errorf("queryJoin bptOut: %w", err)
	}
	amountsIn, err := chain.AsBigInts(values[1])
	if err != nil {
		return nil, nil, fmt.Errorf("queryJoin amountsIn: %w", err)
	}
	if len(amountsIn) != len(s.PoolTokens) {
		return nil, nil, fmt.Errorf("queryJoin: %d amounts for %d tokens", len(amountsIn), len(s.PoolTokens))
	}
	return bptOut, amountsIn, nil
}

// QuoteAddLiquidity joins with exact amounts for weighted and composable stable pools and
// searches the largest exact BPT join that fits for gyro pools.
func (p *VaultPool) QuoteAddLiquidity(ctx context.Context, amounts []*big.Int) (amm.AddQuote, error) {
	s, err := p.state.Get()
	if err != nil {
		return amm.AddQuote{}, err
	}
	n := len(s.PoolTokens)
	if s.BptIndex >= 0 {
		n--
	}
	if err := amm.CheckAmounts(amounts, n); err != nil {
		return amm.AddQuote{}, err
	}
	offered := make([]*big.Int, n)
	for i := range amounts {
		offered[i] = new(big.Int).Set(amounts[i])
	}

	if s.PoolType == model.VaultPoolGyro {
		bpt, used, err := p.searchGyroJoin(ctx, s, offered)
		if err != nil {
			return amm.AddQuote{}, err
		}
		return amm.AddQuote{Offered: offered, Amounts: used, Liquidity: bpt}, nil
	}

	userData, err := EncodeExactTokensIn(offered, nil)
	if err != nil {
		return amm.AddQuote{}, err
	}
	maxIn := make([]*big.Int, len(s.PoolTokens))
	for i := range maxIn {
		maxIn[i] = new(big.Int)
	}
	for j, amount := range offered {
		maxIn[s.poolIndex(j)] = amount
	}
	bptOut, amountsIn, err := p.queryJoin(ctx, s, maxIn, userData)
	if err != nil {
		return amm.AddQuote{}, err
	}
	if bptOut.Sign() <= 0 {
		return amm.AddQuote{}, amm.ErrInsufficientLiquidity
	}
	return amm.AddQuote{Offered: offered, Amounts: s.dropBpt(amountsIn), Liquidity: bptOut}, nil
}

func (p *VaultPool) QuoteRemoveLiquidity(ctx context.Context, liquidity *big.Int) (amm.RemoveQuote, error) {
	s, err := p.state.Get()
	if err != nil {
		return amm.RemoveQuote{}, err
	}
	if err := amm.CheckPositive(liquidity); err != nil {
		return amm.RemoveQuote{}, err
	}
	userData, err := EncodeKindAmount(exitKind(s.PoolType), liquidity)
	if err != nil {
		return amm.RemoveQuote{}, err
	}
	minOut := make([]*big.Int, len(s.PoolTokens))
	for i := range minOut {
		minOut[i] = new(big.Int)
	}
	request := ExitPoolRequest{Assets: s.PoolTokens, MinAmountsOut: minOut, UserData: userData}
	call := chain.Call{
		To:     p.engine.cfg.Queries,
		ABI:    p.engine.queries,
		Method: "queryExit",
		Args:   []interface{}{s.PoolID, p.address, p.address, request},
	}
	values, err := chain.One(ctx, p.reader, call)
	if err != nil {
		return amm.RemoveQuote{}, fmt.Errorf("queryExit: %w", err)
	}
	if len(values) < 2 {
		return amm.RemoveQuote{}, fmt.Errorf("queryExit: short result")
	}
	amountsOut, err := chain.AsBigInts(values[1])
	if err != nil {
		return amm.RemoveQuote{}, fmt.Errorf("queryExit amountsOut: %w", err)
	}
	if len(amountsOut) != len(s.PoolTokens) {
		return amm.RemoveQuote{}, fmt.Errorf("queryExit: %d amounts for %d tokens", len(amountsOut), len(s.PoolTokens))
	}
	return amm.RemoveQuote{Liquidity: new(big.Int).Set(liquidity), Amounts: s.dropBpt(amountsOut)}, nil
}

func exitKind(poolType model.VaultPoolType) int64 {
	if poolType == model.VaultPoolComposableStable {
		return ExitExactBPTInForAllTokensOut
	}
	return ExitExactBPTInForTokensOut
}

// OptimalSwapAmount is zero for pools that accept single sided exact token joins. Gyro
// pools only join proportionally, so the input is split so that the swapped part and the
// rest match the pool balances at the swap rate of half the input.
func (p *VaultPool) OptimalSwapAmount(ctx context.Context, tokenIn common.Address, fullAmountIn *big.Int) (*big.Int, error) {
	s, err := p.state.Get()
	if err != nil {
		return nil, err
	}
	if err := amm.CheckPositive(fullAmountIn); err != nil {
		return nil, err
	}
	tokens := s.UserTokens()
	in, err := amm.IndexOf(tokens, tokenIn)
	if err != nil {
		return nil, err
	}
	if s.PoolType != model.VaultPoolGyro {
		return new(big.Int), nil
	}
	if len(tokens) != 2 {
		return nil, fmt.Errorf("%w: single sided gyro join needs two tokens, have %d", amm.ErrUnsupportedVariant, len(tokens))
	}

	half := new(big.Int).Rsh(fullAmountIn, 1)
	if half.Sign() == 0 {
		return nil, amm.ErrInsufficientLiquidity
	}
	outHalf, err := p.querySwap(ctx, s, tokenIn, tokens[1-in], half)
	if err != nil {
		return nil, err
	}
	if outHalf.Sign() <= 0 {
		return nil, amm.ErrInsufficientLiquidity
	}
	balIn := s.Balances[s.poolIndex(in)]
	balOut := s.Balances[s.poolIndex(1-in)]

	// swap·rate/balOut = (full-swap)/balIn  =>  swap = full·balOut·half / (balOut·half + out·balIn)
	num := new(big.Int).Mul(fullAmountIn, balOut)
	num.Mul(num, half)
	den := new(big.Int).Mul(balOut, half)
	den.Add(den, new(big.Int).Mul(outHalf, balIn))
	if den.Sign() == 0 {
		return nil, amm.ErrInsufficientLiquidity
	}
	return num.Quo(num, den), nil
}

func (p *VaultPool) layout(s VaultState) zapstep.VaultRequestLayout {
	return zapstep.VaultRequestLayout{Assets: len(s.PoolTokens)}
}

// BuildAddLiquidity encodes vault joinPool. Exact token joins patch the user data amounts
// and leave the limits at max; gyro joins patch the limits.
func (p *VaultPool) BuildAddLiquidity(quote amm.AddQuote, params amm.BuildParams) (zapstep.Step, error) {
	s, err := p.state.Get()
	if err != nil {
		return zapstep.Step{}, err
	}
	layout := p.layout(s)
	tokens := s.UserTokens()
	if len(quote.Amounts) != len(tokens) {
		return zapstep.Step{}, fmt.Errorf("%w: %d amounts for %d tokens", amm.ErrInvalidAmount, len(quote.Amounts), len(tokens))
	}

	maxIn := make([]*big.Int, len(s.PoolTokens))
	var userData []byte
	var patched []zapstep.StepToken
	if s.PoolType == model.VaultPoolGyro {
		for i := range maxIn {
			maxIn[i] = new(big.Int)
		}
		for j, token := range tokens {
			maxIn[s.poolIndex(j)] = quote.Amounts[j]
			patched = append(patched, zapstep.Patched(token, layout.LimitWord(s.poolIndex(j))))
		}
		if userData, err = EncodeKindAmount(JoinAllTokensInForExactBPTOut, quote.Liquidity); err != nil {
			return zapstep.Step{}, err
		}
	} else {
		unlimited := new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))
		for i := range maxIn {
			maxIn[i] = unlimited
		}
		if s.BptIndex >= 0 {
			maxIn[s.BptIndex] = new(big.Int)
		}
		for j, token := range tokens {
			patched = append(patched, zapstep.Patched(token, layout.ExactTokensInAmountWord(j)))
		}
		if userData, err = EncodeExactTokensIn(quote.Amounts, params.MinOutOrZero()); err != nil {
			return zapstep.Step{}, err
		}
	}

	request := JoinPoolRequest{Assets: s.PoolTokens, MaxAmountsIn: maxIn, UserData: userData}
	data, err := p.engine.vault.Pack("joinPool", s.PoolID, params.SenderOrRecipient(), params.Recipient, request)
	if err != nil {
		return zapstep.Step{}, fmt.Errorf("pack joinPool: %w", err)
	}
	return zapstep.NewStep(p.engine.cfg.Vault, data, patched...), nil
}

// BuildRemoveLiquidity encodes vault exitPool; the BPT amount is the second user data word.
func (p *VaultPool) BuildRemoveLiquidity(quote amm.RemoveQuote, params amm.BuildParams) (zapstep.Step, error) {
	s, err := p.state.Get()
	if err != nil {
		return zapstep.Step{}, err
	}
	userData, err := EncodeKindAmount(exitKind(s.PoolType), quote.Liquidity)
	if err != nil {
		return zapstep.Step{}, err
	}
	minOut := make([]*big.Int, len(s.PoolTokens))
	for i := range minOut {
		minOut[i] = new(big.Int)
	}
	for j := range s.UserTokens() {
		minOut[s.poolIndex(j)] = params.Min(j)
	}
	request := ExitPoolRequest{Assets: s.PoolTokens, MinAmountsOut: minOut, UserData: userData}
	data, err := p.engine.vault.Pack("exitPool", s.PoolID, params.SenderOrRecipient(), params.Recipient, request)
	if err != nil {
		return zapstep.Step{}, fmt.Errorf("pack exitPool: %w", err)
	}
	return zapstep.NewStep(p.engine.cfg.Vault, data,
		zapstep.Patched(p.address, p.layout(s).SecondUserDataWord()),
	), nil
}

// BuildSwap encodes a GIVEN_IN vault swap; the amount is word 11.
func (p *VaultPool) BuildSwap(quote amm.SwapQuote, params amm.BuildParams) (zapstep.Step, error) {
	s, err := p.state.Get()
	if err != nil {
		return zapstep.Step{}, err
	}
	single := SingleSwap{
		PoolId:   s.PoolID,
		Kind:     SwapKindGivenIn,
		AssetIn:  quote.TokenIn,
		AssetOut: quote.TokenOut,
		Amount:   quote.AmountIn,
		UserData: []byte{},
	}
	funds := FundManagement{Sender: params.SenderOrRecipient(), Recipient: params.Recipient}
	data, err := p.engine.vault.Pack("swap", single, funds, params.MinOutOrZero(), params.DeadlineOrMax())
	if err != nil {
		return zapstep.Step{}, fmt.Errorf("pack swap: %w", err)
	}
	return zapstep.NewStep(p.engine.cfg.Vault, data,
		zapstep.Patched(quote.TokenIn, zapstep.SingleSwapAmountWord),
	), nil
}
