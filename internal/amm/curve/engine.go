// Package curve implements the multi-generation stable pool engine. Generations differ in
// method signatures, call target and coin basis; MethodSpec captures each shape and quotes
// are read from the pool's own view methods.
package curve

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"reflect"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"zapquote/internal/amm"
	"zapquote/internal/chain"
	"zapquote/internal/model"
	"zapquote/internal/state"
)

const (
	// MaxCoins is the largest coin count read from a pool.
	MaxCoins = 8
	// MaxMetaDepth bounds meta pool expansion.
	MaxMetaDepth = 4
)

var (
	// ErrDepositFlagAmbiguous is returned when both or neither calc_token_amount overload answer.
	ErrDepositFlagAmbiguous = errors.New("curve: is_deposit overload ambiguous")
	// ErrMetaPoolCycle is returned when base pool references loop or nest too deep.
	ErrMetaPoolCycle = errors.New("curve: meta pool cycle")
)

// sampleAmount is the first coin amount used to call both calc_token_amount overloads.
var sampleAmount = big.NewInt(1_000_000)

// PoolState is a snapshot of a stable pool.
type PoolState struct {
	LPToken common.Address
	// Coins are the pool's own coins; Basis the coins the method type deposits.
	Coins       []common.Address
	Basis       []common.Address
	Balances    []*big.Int
	TotalSupply *big.Int
	DepositFlag bool
	// Legacy pools index their getters with int128.
	Legacy    bool
	MetaDepth int
}

// Engine loads stable pools of one generation.
type Engine struct {
	cfg    model.AmmConfig
	deps   amm.Deps
	spec   MethodSpec
	reader *abi.ABI
	legacy *abi.ABI
}

// New creates an engine for cfg.
func New(cfg model.AmmConfig, deps amm.Deps) (*Engine, error) {
	spec, err := SpecFor(MethodType(cfg.StableMethod))
	if err != nil {
		return nil, err
	}
	if spec.ViaWrapper && cfg.ZapWrapper == (common.Address{}) {
		return nil, fmt.Errorf("%w: stable method %s needs a deposit wrapper", amm.ErrUnsupportedVariant, spec.Type)
	}
	e := &Engine{cfg: cfg, deps: deps.WithDefaults(), spec: spec}
	if e.reader, err = ReaderABI(); err != nil {
		return nil, fmt.Errorf("parse reader abi: %w", err)
	}
	if e.legacy, err = LegacyReaderABI(); err != nil {
		return nil, fmt.Errorf("parse legacy reader abi: %w", err)
	}
	return e, nil
}

func (e *Engine) Family() model.Family    { return model.FamilyStablePool }
func (e *Engine) Config() model.AmmConfig { return e.cfg }

// Spec returns the method spec of the engine.
func (e *Engine) Spec() MethodSpec { return e.spec }

func (e *Engine) target(pool common.Address) common.Address {
	if e.spec.ViaWrapper {
		return e.cfg.ZapWrapper
	}
	return pool
}

// indexedCalls calls method(i) for i < MaxCoins with both index types.
func (e *Engine) indexedCalls(to common.Address, method string) []chain.Call {
	calls := make([]chain.Call, 0, 2*MaxCoins)
	for _, parsed := range []*abi.ABI{e.reader, e.legacy} {
		for i := 0; i < MaxCoins; i++ {
			calls = append(calls, chain.Call{To: to, ABI: parsed, Method: method, Args: []interface{}{big.NewInt(int64(i))}, Optional: true})
		}
	}
	return calls
}

// leadingAddresses returns the addresses answered before the first failure, preferring the
// uint256 indexed getter, and whether the int128 one was used.
func leadingAddresses(results []chain.Result) ([]common.Address, bool) {
	take := func(rs []chain.Result) []common.Address {
		var out []common.Address
		for _, r := range rs {
			addr, err := chain.Value(r, chain.AsAddress)
			if err != nil || addr == (common.Address{}) {
				break
			}
			out = append(out, addr)
		}
		return out
	}
	if coins := take(results[:MaxCoins]); len(coins) > 0 {
		return coins, false
	}
	return take(results[MaxCoins : 2*MaxCoins]), true
}

func optionalAddress(r chain.Result) (common.Address, bool) {
	addr, err := chain.Value(r, chain.AsAddress)
	if err != nil || addr == (common.Address{}) {
		return common.Address{}, false
	}
	return addr, true
}

// levelInfo is what one pool contributes to a meta expansion.
type levelInfo struct {
	coins    []common.Address
	legacy   bool
	lpToken  common.Address
	basePool common.Address
}

func (e *Engine) readLevel(ctx context.Context, reader chain.Reader, pool common.Address) (levelInfo, error) {
	calls := e.indexedCalls(pool, "coins")
	calls = append(calls,
		chain.Call{To: pool, ABI: e.reader, Method: "token", Optional: true},
		chain.Call{To: pool, ABI: e.reader, Method: "lp_token", Optional: true},
		chain.Call{To: pool, ABI: e.reader, Method: "base_pool", Optional: true},
	)
	results, err := reader.BatchCall(ctx, calls)
	if err != nil {
		return levelInfo{}, fmt.Errorf("load pool %s: %w", pool.Hex(), err)
	}
	var info levelInfo
	info.coins, info.legacy = leadingAddresses(results)
	if len(info.coins) < 2 {
		return levelInfo{}, fmt.Errorf("pool %s: found %d coins", pool.Hex(), len(info.coins))
	}
	tail := results[2*MaxCoins:]
	info.lpToken = pool
	if lp, ok := optionalAddress(tail[0]); ok {
		info.lpToken = lp
	} else if lp, ok := optionalAddress(tail[1]); ok {
		info.lpToken = lp
	}
	info.basePool, _ = optionalAddress(tail[2])
	return info, nil
}

// ExpandCoins walks base_pool references from pool and returns the flattened underlying
// coin list: every coin of each level except the last, which is the LP token of the next
// level. It fails with ErrMetaPoolCycle on revisits or beyond MaxMetaDepth.
func (e *Engine) ExpandCoins(ctx context.Context, reader chain.Reader, pool common.Address) ([]common.Address, int, error) {
	info, err := e.readLevel(ctx, reader, pool)
	if err != nil {
		return nil, 0, err
	}
	return e.expandFrom(ctx, reader, pool, info)
}

// expandFrom continues an expansion whose top level has already been read.
func (e *Engine) expandFrom(ctx context.Context, reader chain.Reader, pool common.Address, top levelInfo) ([]common.Address, int, error) {
	visited := map[common.Address]bool{pool: true}
	var out []common.Address
	depth := 0
	info := top
	for {
		if info.basePool == (common.Address{}) {
			return append(out, info.coins...), depth, nil
		}
		out = append(out, info.coins[:len(info.coins)-1]...)
		depth++

		current := info.basePool
		if visited[current] {
			return nil, 0, fmt.Errorf("%w: %s revisited", ErrMetaPoolCycle, current.Hex())
		}
		if depth > MaxMetaDepth {
			return nil, 0, fmt.Errorf("%w: deeper than %d levels at %s", ErrMetaPoolCycle, MaxMetaDepth, current.Hex())
		}
		visited[current] = true

		var err error
		if info, err = e.readLevel(ctx, reader, current); err != nil {
			return nil, 0, err
		}
	}
}

// DetectDepositFlag calls calc_token_amount with and without is_deposit on target.
// Exactly one overload must answer.
func (e *Engine) DetectDepositFlag(ctx context.Context, reader chain.Reader, pool common.Address, n int) (bool, error) {
	withFlag, err := MethodABI(e.spec, n, true)
	if err != nil {
		return false, err
	}
	withoutFlag, err := MethodABI(e.spec, n, false)
	if err != nil {
		return false, err
	}
	amounts := make([]*big.Int, n)
	for i := range amounts {
		amounts[i] = new(big.Int)
	}
	amounts[0] = sampleAmount

	target := e.target(pool)
	calls := []chain.Call{
		{To: target, ABI: withFlag, Method: "calc_token_amount", Args: e.args(pool, amountsArg(e.spec, amounts), true), Optional: true},
		{To: target, ABI: withoutFlag, Method: "calc_token_amount", Args: e.args(pool, amountsArg(e.spec, amounts)), Optional: true},
	}
	results, err := reader.BatchCall(ctx, calls)
	if err != nil {
		return false, fmt.Errorf("detect is_deposit: %w", err)
	}
	flagOK := results[0].Err == nil
	plainOK := results[1].Err == nil
	if flagOK == plainOK {
		return false, fmt.Errorf("%w: with flag %t, without flag %t on %s", ErrDepositFlagAmbiguous, flagOK, plainOK, target.Hex())
	}
	return flagOK, nil
}

// args prefixes the pool address when the method type takes it.
func (e *Engine) args(pool common.Address, rest ...interface{}) []interface{} {
	if e.spec.PoolArg {
		return append([]interface{}{pool}, rest...)
	}
	return rest
}

// amountsArg converts amounts to uint256[] or a uint256[N] array value.
func amountsArg(spec MethodSpec, amounts []*big.Int) interface{} {
	if spec.Dynamic {
		return amounts
	}
	return fixedArray(amounts)
}

func fixedArray(values []*big.Int) interface{} {
	arr := reflect.New(reflect.ArrayOf(len(values), reflect.TypeOf((*big.Int)(nil)))).Elem()
	for i, v := range values {
		arr.Index(i).Set(reflect.ValueOf(v))
	}
	return arr.Interface()
}

// Load reads the pool coins, the deposit basis, balances and supply, and detects the
// is_deposit overload.
func (e *Engine) Load(ctx context.Context, reader chain.Reader, pool common.Address) (amm.Pool, error) {
	info, err := e.readLevel(ctx, reader, pool)
	if err != nil {
		return nil, err
	}
	s := PoolState{LPToken: info.lpToken, Coins: info.coins, Legacy: info.legacy}
	getters := e.reader
	if s.Legacy {
		getters = e.legacy
	}

	calls := []chain.Call{{To: s.LPToken, ABI: e.reader, Method: "totalSupply"}}
	for i := range s.Coins {
		calls = append(calls, chain.Call{To: pool, ABI: getters, Method: "balances", Args: []interface{}{big.NewInt(int64(i))}})
	}
	basisStart := len(calls)
	switch e.spec.Basis {
	case BasisPoolUnderlying:
		for i := range s.Coins {
			calls = append(calls, chain.Call{To: pool, ABI: getters, Method: "underlying_coins", Args: []interface{}{big.NewInt(int64(i))}})
		}
	case BasisWrapperUnderlying:
		calls = append(calls, e.indexedCalls(e.cfg.ZapWrapper, "underlying_coins")...)
	}
	results, err := reader.BatchCall(ctx, calls)
	if err != nil {
		return nil, fmt.Errorf("load pool %s: %w", pool.Hex(), err)
	}
	if err := state.Require(calls, results); err != nil {
		return nil, fmt.Errorf("load pool %s: %w", pool.Hex(), err)
	}
	if s.TotalSupply, err = chain.Value(results[0], chain.AsBigInt); err != nil {
		return nil, fmt.Errorf("totalSupply: %w", err)
	}
	for i := range s.Coins {
		balance, err := chain.Value(results[1+i], chain.AsBigInt)
		if err != nil {
			return nil, fmt.Errorf("balances(%d): %w", i, err)
		}
		s.Balances = append(s.Balances, balance)
	}

	switch e.spec.Basis {
	case BasisPoolCoins:
		s.Basis = s.Coins
	case BasisPoolUnderlying:
		for i := range s.Coins {
			coin, err := chain.Value(results[basisStart+i], chain.AsAddress)
			if err != nil {
				return nil, fmt.Errorf("underlying_coins(%d): %w", i, err)
			}
			s.Basis = append(s.Basis, coin)
		}
	case BasisWrapperUnderlying:
		s.Basis, _ = leadingAddresses(results[basisStart:])
		if len(s.Basis) < 2 {
			return nil, fmt.Errorf("wrapper %s: found %d underlying coins", e.cfg.ZapWrapper.Hex(), len(s.Basis))
		}
	case BasisMeta:
		if s.Basis, s.MetaDepth, err = e.expandFrom(ctx, reader, pool, info); err != nil {
			return nil, err
		}
	}
	if len(s.Basis) > MaxCoins {
		return nil, fmt.Errorf("%w: %d basis coins", amm.ErrUnsupportedVariant, len(s.Basis))
	}

	if s.DepositFlag, err = e.DetectDepositFlag(ctx, reader, pool, len(s.Basis)); err != nil {
		return nil, err
	}
	e.deps.Logger.Debug("stable pool loaded",
		zap.String("pool", pool.Hex()),
		zap.String("method", string(e.spec.Type)),
		zap.Int("basis", len(s.Basis)),
		zap.Bool("is_deposit", s.DepositFlag),
		zap.Int("meta_depth", s.MetaDepth),
	)
	loaded, err := e.Pool(pool, reader, s)
	if err != nil {
		return nil, err
	}
	return loaded, nil
}

// Pool wraps a snapshot. reader serves the view method quotes.
func (e *Engine) Pool(address common.Address, reader chain.Reader, s PoolState) (*StablePool, error) {
	methods, err := MethodABI(e.spec, len(s.Basis), s.DepositFlag)
	if err != nil {
		return nil, err
	}
	var pool *abi.ABI
	if len(s.Coins) == len(s.Basis) {
		pool = methods
	} else if pool, err = MethodABI(e.spec, len(s.Coins), s.DepositFlag); err != nil {
		return nil, err
	}
	return &StablePool{
		engine:      e,
		address:     address,
		reader:      reader,
		methods:     methods,
		poolMethods: pool,
		state:       state.Loaded(s),
	}, nil
}
