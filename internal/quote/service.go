// Package quote selects the engine of a pool, loads a fresh snapshot and turns engine
// quotes into QuoteResults with slippage minimums, price impact and ordered router steps.
package quote

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"zapquote/internal/amm"
	"zapquote/internal/amm/engines"
	"zapquote/internal/chain"
	"zapquote/internal/metrics"
	"zapquote/internal/model"
	"zapquote/internal/state"
	"zapquote/internal/zapstep"
)

// DefaultSlippage is used when neither the request nor the service sets one.
var DefaultSlippage = decimal.RequireFromString("0.005")

// ErrInvalidSlippage is returned for slippage outside [0, 1).
var ErrInvalidSlippage = errors.New("quote: slippage must be in [0, 1)")

// Request carries the inputs of one quote. Which fields are read depends on the kind.
type Request struct {
	AmmID string
	Pool  common.Address

	// Deposit amounts in base units, aligned with the pool tokens.
	Amounts []*big.Int
	// Liquidity burned by withdrawals and zap-outs.
	Liquidity *big.Int

	TokenIn  common.Address
	TokenOut common.Address
	AmountIn *big.Int

	// Zero uses the service default.
	Slippage  decimal.Decimal
	Recipient common.Address
	Sender    common.Address
	Deadline  *big.Int

	// Pool and AMM that perform the zap swap when the target pool cannot swap.
	SwapVia    common.Address
	SwapViaAmm string
}

// Service produces quotes against live pool state.
type Service struct {
	engines  *engines.Set
	reader   chain.Reader
	tokens   *state.TokenCache
	logger   *zap.Logger
	metrics  *metrics.Metrics
	slippage decimal.Decimal
	limit    int
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithMetrics sets the metrics sink.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithTokenCache shares a token metadata cache.
func WithTokenCache(cache *state.TokenCache) Option {
	return func(s *Service) {
		if cache != nil {
			s.tokens = cache
		}
	}
}

// WithSlippage sets the default slippage.
func WithSlippage(slippage decimal.Decimal) Option {
	return func(s *Service) { s.slippage = slippage }
}

// WithConcurrency bounds QuoteMany.
func WithConcurrency(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.limit = n
		}
	}
}

// NewService creates a quote service over set and reader.
func NewService(set *engines.Set, reader chain.Reader, opts ...Option) *Service {
	s := &Service{
		engines:  set,
		reader:   reader,
		tokens:   state.NewTokenCache(),
		logger:   zap.NewNop(),
		slippage: DefaultSlippage,
		limit:    8,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Quote dispatches on kind.
func (s *Service) Quote(ctx context.Context, kind model.QuoteKind, req Request) (model.QuoteResult, error) {
	switch kind {
	case model.QuoteDeposit:
		return s.QuoteDeposit(ctx, req)
	case model.QuoteWithdraw:
		return s.QuoteWithdraw(ctx, req)
	case model.QuoteSwap:
		return s.QuoteSwap(ctx, req)
	case model.QuoteZapIn:
		return s.QuoteZapIn(ctx, req)
	case model.QuoteZapOut:
		return s.QuoteZapOut(ctx, req)
	default:
		return model.QuoteResult{}, fmt.Errorf("%w: quote kind %q", amm.ErrUnsupportedVariant, kind)
	}
}

// QuoteMany runs the quotes concurrently. Every quote loads its own snapshot; the first
// failure cancels the rest.
func (s *Service) QuoteMany(ctx context.Context, kind model.QuoteKind, reqs []Request) ([]model.QuoteResult, error) {
	results := make([]model.QuoteResult, len(reqs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.limit)
	for i, req := range reqs {
		i, req := i, req
		g.Go(func() error {
			result, err := s.Quote(gctx, kind, req)
			if err != nil {
				return fmt.Errorf("quote %d (%s %s): %w", i, req.AmmID, req.Pool.Hex(), err)
			}
			results[i] = result
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// session is the per-quote state: the target pool, its engine and resolved parameters.
type session struct {
	kind     model.QuoteKind
	engine   amm.Engine
	pool     amm.Pool
	slippage decimal.Decimal
	result   model.QuoteResult
}

// begin resolves the slippage and engine and loads the pool.
func (s *Service) begin(ctx context.Context, kind model.QuoteKind, req Request) (*session, error) {
	slippage, err := s.resolveSlippage(req.Slippage)
	if err != nil {
		return nil, err
	}
	engine, err := s.engines.Get(req.AmmID)
	if err != nil {
		return nil, err
	}
	pool, err := engine.Load(ctx, s.reader, req.Pool)
	if err != nil {
		return nil, fmt.Errorf("load %s pool %s: %w", engine.Family(), req.Pool.Hex(), err)
	}
	return &session{
		kind:     kind,
		engine:   engine,
		pool:     pool,
		slippage: slippage,
		result: model.QuoteResult{
			Kind:        kind,
			AmmID:       req.AmmID,
			Family:      engine.Family(),
			Pool:        req.Pool,
			PriceImpact: decimal.Zero,
			Fee:         decimal.Zero,
		},
	}, nil
}

func (s *Service) observe(req Request, kind model.QuoteKind, started time.Time, err error) {
	family := "unknown"
	if engine, lookupErr := s.engines.Get(req.AmmID); lookupErr == nil {
		family = string(engine.Family())
	}
	s.metrics.ObserveQuote(family, string(kind), started, err)
	if err != nil {
		s.logger.Debug("quote failed",
			zap.String("kind", string(kind)),
			zap.String("amm", req.AmmID),
			zap.String("pool", req.Pool.Hex()),
			zap.Error(err),
		)
	}
}

func (s *Service) resolveSlippage(requested decimal.Decimal) (decimal.Decimal, error) {
	slippage := requested
	if slippage.IsZero() {
		slippage = s.slippage
	}
	if slippage.IsNegative() || slippage.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		return decimal.Zero, fmt.Errorf("%w: %s", ErrInvalidSlippage, slippage)
	}
	return slippage, nil
}

func buildParams(req Request) amm.BuildParams {
	return amm.BuildParams{Recipient: req.Recipient, Sender: req.Sender, Deadline: req.Deadline}
}

// amount records a base unit amount for token; finish converts them with token metadata.
type amount struct {
	token common.Address
	wei   *big.Int
}

// finish validates the steps, loads token metadata and fills the decimal amounts.
func (s *Service) finish(ctx context.Context, sess *session, inputs, outputs, mins, returned []amount) (model.QuoteResult, error) {
	for i, step := range sess.result.Steps {
		if err := step.Validate(); err != nil {
			return model.QuoteResult{}, fmt.Errorf("step %d: %w", i, err)
		}
	}
	var addrs []common.Address
	for _, group := range [][]amount{inputs, outputs, mins, returned} {
		for _, a := range group {
			addrs = append(addrs, a.token)
		}
	}
	metas, err := s.tokens.Load(ctx, s.reader, addrs, s.logger)
	if err != nil {
		return model.QuoteResult{}, err
	}
	convert := func(group []amount) []model.TokenAmount {
		out := make([]model.TokenAmount, 0, len(group))
		for _, a := range group {
			out = append(out, model.FromWei(metas[a.token], a.wei))
		}
		return out
	}
	sess.result.Inputs = convert(inputs)
	sess.result.Outputs = convert(outputs)
	sess.result.MinOutputs = convert(mins)
	var dust []amount
	for _, a := range returned {
		if a.wei.Sign() > 0 {
			dust = append(dust, a)
		}
	}
	if len(dust) > 0 {
		sess.result.Returned = convert(dust)
	}
	return sess.result, nil
}

func (sess *session) warn(logger *zap.Logger, msg string) {
	sess.result.Warnings = append(sess.result.Warnings, msg)
	logger.Warn(msg,
		zap.String("kind", string(sess.kind)),
		zap.String("pool", sess.pool.Address().Hex()),
	)
}

// QuoteDeposit quotes adding req.Amounts of the pool tokens.
func (s *Service) QuoteDeposit(ctx context.Context, req Request) (result model.QuoteResult, err error) {
	started := time.Now()
	defer func() { s.observe(req, model.QuoteDeposit, started, err) }()

	sess, err := s.begin(ctx, model.QuoteDeposit, req)
	if err != nil {
		return model.QuoteResult{}, err
	}
	pool := sess.pool
	tokens := pool.Tokens()
	add, err := pool.QuoteAddLiquidity(ctx, req.Amounts)
	if err != nil {
		return model.QuoteResult{}, fmt.Errorf("quote add liquidity: %w", err)
	}

	params := buildParams(req)
	params.MinOut = ApplySlippage(add.Liquidity, sess.slippage)
	params.MinAmounts = applyAll(add.Amounts, sess.slippage)
	step, err := pool.BuildAddLiquidity(add, params)
	if err != nil {
		return model.QuoteResult{}, fmt.Errorf("build add liquidity: %w", err)
	}
	sess.result.Steps = []zapstep.Step{step}

	sess.result.PriceImpact, err = SampledImpact(add.Liquidity, func(divisor *big.Int) (*big.Int, error) {
		small, err := pool.QuoteAddLiquidity(ctx, scaleDown(req.Amounts, divisor))
		if err != nil {
			return nil, err
		}
		return small.Liquidity, nil
	})
	if err != nil {
		return model.QuoteResult{}, fmt.Errorf("price impact: %w", err)
	}

	lp := pool.LPToken()
	return s.finish(ctx, sess,
		aligned(tokens, add.Amounts),
		[]amount{{lp, add.Liquidity}},
		[]amount{{lp, params.MinOut}},
		aligned(tokens, add.Returned()),
	)
}

// QuoteWithdraw quotes burning req.Liquidity into every pool token.
func (s *Service) QuoteWithdraw(ctx context.Context, req Request) (result model.QuoteResult, err error) {
	started := time.Now()
	defer func() { s.observe(req, model.QuoteWithdraw, started, err) }()

	sess, err := s.begin(ctx, model.QuoteWithdraw, req)
	if err != nil {
		return model.QuoteResult{}, err
	}
	pool := sess.pool
	remove, err := pool.QuoteRemoveLiquidity(ctx, req.Liquidity)
	if err != nil {
		return model.QuoteResult{}, fmt.Errorf("quote remove liquidity: %w", err)
	}
	params := buildParams(req)
	params.MinAmounts = applyAll(remove.Amounts, sess.slippage)
	step, err := pool.BuildRemoveLiquidity(remove, params)
	if err != nil {
		return model.QuoteResult{}, fmt.Errorf("build remove liquidity: %w", err)
	}
	sess.result.Steps = []zapstep.Step{step}

	sess.result.PriceImpact, err = SampledImpact(sum(remove.Amounts), func(divisor *big.Int) (*big.Int, error) {
		small, err := pool.QuoteRemoveLiquidity(ctx, new(big.Int).Quo(req.Liquidity, divisor))
		if err != nil {
			return nil, err
		}
		return sum(small.Amounts), nil
	})
	if err != nil {
		return model.QuoteResult{}, fmt.Errorf("price impact: %w", err)
	}

	tokens := pool.Tokens()
	return s.finish(ctx, sess,
		[]amount{{pool.LPToken(), req.Liquidity}},
		aligned(tokens, remove.Amounts),
		aligned(tokens, params.MinAmounts),
		nil,
	)
}

// swapLeg is one quoted swap together with the pool that executes it.
type swapLeg struct {
	pool  amm.Pool
	quote amm.SwapQuote
	fee   decimal.Decimal
}

// quoteSwap swaps amountIn of tokenIn on pool. tokenOut may be zero for two token pools.
func quoteSwap(ctx context.Context, pool amm.Pool, tokenIn, tokenOut common.Address, amountIn *big.Int) (amm.SwapQuote, error) {
	if tokenOut != (common.Address{}) {
		if swapper, ok := pool.(amm.MultiTokenSwapper); ok {
			return swapper.QuoteSwapTo(ctx, tokenIn, tokenOut, amountIn)
		}
	}
	quote, err := pool.QuoteSwap(ctx, tokenIn, amountIn)
	if err != nil {
		return amm.SwapQuote{}, err
	}
	if tokenOut != (common.Address{}) && quote.TokenOut != tokenOut {
		return amm.SwapQuote{}, fmt.Errorf("%w: pool swaps into %s, not %s", amm.ErrTokenMismatch, quote.TokenOut.Hex(), tokenOut.Hex())
	}
	return quote, nil
}

func (s *Service) swapLeg(ctx context.Context, pool amm.Pool, tokenIn, tokenOut common.Address, amountIn *big.Int) (swapLeg, error) {
	quote, err := quoteSwap(ctx, pool, tokenIn, tokenOut, amountIn)
	if err != nil {
		return swapLeg{}, err
	}
	leg := swapLeg{pool: pool, quote: quote, fee: decimal.Zero}
	if reporter, ok := pool.(amm.FeeReporter); ok {
		rate, err := reporter.SwapFeeRate()
		if err != nil {
			return swapLeg{}, err
		}
		leg.fee = decimal.NewFromBigInt(amountIn, 0).Mul(rate)
	}
	return leg, nil
}

// impact of a leg against a reduced swap on the same pool.
func (leg swapLeg) impact(ctx context.Context) (decimal.Decimal, error) {
	return SampledImpact(leg.quote.AmountOut, func(divisor *big.Int) (*big.Int, error) {
		small, err := quoteSwap(ctx, leg.pool, leg.quote.TokenIn, leg.quote.TokenOut, new(big.Int).Quo(leg.quote.AmountIn, divisor))
		if err != nil {
			return nil, err
		}
		return small.AmountOut, nil
	})
}

func (leg swapLeg) build(req Request, slippage decimal.Decimal) (zapstep.Step, *big.Int, error) {
	params := buildParams(req)
	params.MinOut = ApplySlippage(leg.quote.AmountOut, slippage)
	step, err := leg.pool.BuildSwap(leg.quote, params)
	if err != nil {
		return zapstep.Step{}, nil, fmt.Errorf("build swap: %w", err)
	}
	return step, params.MinOut, nil
}

func (s *Service) checkConvergence(sess *session, quote amm.SwapQuote) {
	if quote.NotConverged {
		sess.warn(s.logger, "stable invariant solver hit its iteration cap")
	}
}

// QuoteSwap quotes swapping req.AmountIn of req.TokenIn. req.TokenOut is required for
// pools with more than two tokens.
func (s *Service) QuoteSwap(ctx context.Context, req Request) (result model.QuoteResult, err error) {
	started := time.Now()
	defer func() { s.observe(req, model.QuoteSwap, started, err) }()

	sess, err := s.begin(ctx, model.QuoteSwap, req)
	if err != nil {
		return model.QuoteResult{}, err
	}
	leg, err := s.swapLeg(ctx, sess.pool, req.TokenIn, req.TokenOut, req.AmountIn)
	if err != nil {
		return model.QuoteResult{}, fmt.Errorf("quote swap: %w", err)
	}
	s.checkConvergence(sess, leg.quote)
	step, minOut, err := leg.build(req, sess.slippage)
	if err != nil {
		return model.QuoteResult{}, err
	}
	sess.result.Steps = []zapstep.Step{step}
	if sess.result.PriceImpact, err = leg.impact(ctx); err != nil {
		return model.QuoteResult{}, fmt.Errorf("price impact: %w", err)
	}
	sess.result, err = s.finish(ctx, sess,
		[]amount{{leg.quote.TokenIn, leg.quote.AmountIn}},
		[]amount{{leg.quote.TokenOut, leg.quote.AmountOut}},
		[]amount{{leg.quote.TokenOut, minOut}},
		nil,
	)
	if err != nil {
		return model.QuoteResult{}, err
	}
	sess.result.Fee = scaleFee(leg.fee, sess.result.Inputs[0].Token)
	return sess.result, nil
}

// swapPoolFor quotes the swap of a zap on pool, a projection of the target pool, or on
// req.SwapVia when the target's family cannot swap.
func (s *Service) swapPoolFor(ctx context.Context, pool amm.Pool, req Request, tokenIn, tokenOut common.Address, amountIn *big.Int) (swapLeg, error) {
	leg, err := s.swapLeg(ctx, pool, tokenIn, tokenOut, amountIn)
	if err == nil || !errors.Is(err, amm.ErrUnsupportedVariant) || req.SwapVia == (common.Address{}) {
		return leg, err
	}
	viaAmm := req.SwapViaAmm
	if viaAmm == "" {
		viaAmm = req.AmmID
	}
	engine, err := s.engines.Get(viaAmm)
	if err != nil {
		return swapLeg{}, err
	}
	via, err := engine.Load(ctx, s.reader, req.SwapVia)
	if err != nil {
		return swapLeg{}, fmt.Errorf("load swap pool %s: %w", req.SwapVia.Hex(), err)
	}
	s.logger.Debug("zap swap routed through another pool",
		zap.String("pool", pool.Address().Hex()),
		zap.String("via", req.SwapVia.Hex()),
	)
	return s.swapLeg(ctx, via, tokenIn, tokenOut, amountIn)
}

// QuoteZapIn quotes turning req.AmountIn of req.TokenIn into pool liquidity: the pool's
// optimal share is swapped into the other token and both are deposited.
func (s *Service) QuoteZapIn(ctx context.Context, req Request) (result model.QuoteResult, err error) {
	started := time.Now()
	defer func() { s.observe(req, model.QuoteZapIn, started, err) }()

	sess, err := s.begin(ctx, model.QuoteZapIn, req)
	if err != nil {
		return model.QuoteResult{}, err
	}
	pool := sess.pool
	tokens := pool.Tokens()
	in, err := amm.IndexOf(tokens, req.TokenIn)
	if err != nil {
		return model.QuoteResult{}, err
	}
	swapAmount, err := pool.OptimalSwapAmount(ctx, req.TokenIn, req.AmountIn)
	if err != nil {
		return model.QuoteResult{}, fmt.Errorf("optimal swap amount: %w", err)
	}

	amounts := make([]*big.Int, len(tokens))
	for i := range amounts {
		amounts[i] = new(big.Int)
	}
	amounts[in].Set(req.AmountIn)

	var steps []zapstep.Step
	var leg swapLeg
	swapped := swapAmount.Sign() > 0
	if swapped {
		if len(tokens) != 2 {
			return model.QuoteResult{}, fmt.Errorf("%w: zap swap into a %d token pool", amm.ErrUnsupportedVariant, len(tokens))
		}
		out := tokens[1-in]
		if leg, err = s.swapPoolFor(ctx, pool, req, req.TokenIn, out, swapAmount); err != nil {
			return model.QuoteResult{}, fmt.Errorf("quote zap swap: %w", err)
		}
		s.checkConvergence(sess, leg.quote)
		amounts[in].Sub(amounts[in], swapAmount)
		amounts[1-in].Set(leg.quote.AmountOut)
		if applier, ok := leg.pool.(amm.SwapApplier); ok && leg.pool == pool {
			if pool, err = applier.AfterSwap(leg.quote); err != nil {
				return model.QuoteResult{}, fmt.Errorf("apply zap swap: %w", err)
			}
		}

		step, _, err := leg.build(req, sess.slippage)
		if err != nil {
			return model.QuoteResult{}, err
		}
		steps = append(steps, step)
	}

	add, err := pool.QuoteAddLiquidity(ctx, amounts)
	if err != nil {
		return model.QuoteResult{}, fmt.Errorf("quote add liquidity: %w", err)
	}
	params := buildParams(req)
	params.MinOut = ApplySlippage(add.Liquidity, sess.slippage)
	params.MinAmounts = applyAll(add.Amounts, sess.slippage)
	step, err := pool.BuildAddLiquidity(add, params)
	if err != nil {
		return model.QuoteResult{}, fmt.Errorf("build add liquidity: %w", err)
	}
	sess.result.Steps = append(steps, step)

	if swapped {
		sess.result.PriceImpact, err = leg.impact(ctx)
	} else {
		sess.result.PriceImpact, err = SampledImpact(add.Liquidity, func(divisor *big.Int) (*big.Int, error) {
			small, err := pool.QuoteAddLiquidity(ctx, scaleDown(amounts, divisor))
			if err != nil {
				return nil, err
			}
			return small.Liquidity, nil
		})
	}
	if err != nil {
		return model.QuoteResult{}, fmt.Errorf("price impact: %w", err)
	}

	lp := pool.LPToken()
	sess.result, err = s.finish(ctx, sess,
		[]amount{{req.TokenIn, req.AmountIn}},
		[]amount{{lp, add.Liquidity}},
		[]amount{{lp, params.MinOut}},
		aligned(tokens, add.Returned()),
	)
	if err != nil {
		return model.QuoteResult{}, err
	}
	if swapped {
		sess.result.Fee = scaleFee(leg.fee, sess.result.Inputs[0].Token)
	}
	return sess.result, nil
}

// QuoteZapOut quotes turning req.Liquidity into req.TokenOut: a single sided burn where
// the pool supports one, otherwise a proportional burn with the other tokens swapped back.
func (s *Service) QuoteZapOut(ctx context.Context, req Request) (result model.QuoteResult, err error) {
	started := time.Now()
	defer func() { s.observe(req, model.QuoteZapOut, started, err) }()

	sess, err := s.begin(ctx, model.QuoteZapOut, req)
	if err != nil {
		return model.QuoteResult{}, err
	}
	pool := sess.pool
	tokens := pool.Tokens()
	out, err := amm.IndexOf(tokens, req.TokenOut)
	if err != nil {
		return model.QuoteResult{}, err
	}
	lp := pool.LPToken()

	if remover, ok := pool.(amm.SingleSidedRemover); ok {
		remove, err := remover.QuoteRemoveOne(ctx, req.Liquidity, req.TokenOut)
		switch {
		case err == nil:
			return s.zapOutSingle(ctx, sess, req, remover, remove, out)
		case !errors.Is(err, amm.ErrUnsupportedVariant):
			return model.QuoteResult{}, fmt.Errorf("quote remove one: %w", err)
		}
	}

	remove, err := pool.QuoteRemoveLiquidity(ctx, req.Liquidity)
	if err != nil {
		return model.QuoteResult{}, fmt.Errorf("quote remove liquidity: %w", err)
	}
	params := buildParams(req)
	params.MinAmounts = applyAll(remove.Amounts, sess.slippage)
	step, err := pool.BuildRemoveLiquidity(remove, params)
	if err != nil {
		return model.QuoteResult{}, fmt.Errorf("build remove liquidity: %w", err)
	}
	steps := []zapstep.Step{step}

	// The router burns before it swaps, so swaps on the pool itself see the reduced reserves.
	swapPool := pool
	if applier, ok := pool.(amm.RemoveApplier); ok {
		if swapPool, err = applier.AfterRemove(remove); err != nil {
			return model.QuoteResult{}, fmt.Errorf("apply remove liquidity: %w", err)
		}
	}

	total := new(big.Int).Set(remove.Amounts[out])
	fee := decimal.Zero
	impact := decimal.Zero
	for i, token := range tokens {
		if i == out || remove.Amounts[i].Sign() == 0 {
			continue
		}
		leg, err := s.swapPoolFor(ctx, swapPool, req, token, req.TokenOut, remove.Amounts[i])
		if err != nil {
			return model.QuoteResult{}, fmt.Errorf("quote zap swap of %s: %w", token.Hex(), err)
		}
		s.checkConvergence(sess, leg.quote)
		if applier, ok := leg.pool.(amm.SwapApplier); ok && leg.pool == swapPool {
			if swapPool, err = applier.AfterSwap(leg.quote); err != nil {
				return model.QuoteResult{}, fmt.Errorf("apply zap swap: %w", err)
			}
		}
		swapStep, _, err := leg.build(req, sess.slippage)
		if err != nil {
			return model.QuoteResult{}, err
		}
		steps = append(steps, swapStep)
		total.Add(total, leg.quote.AmountOut)

		legImpact, err := leg.impact(ctx)
		if err != nil {
			return model.QuoteResult{}, fmt.Errorf("price impact: %w", err)
		}
		if legImpact.GreaterThan(impact) {
			impact = legImpact
		}
		fee = fee.Add(leg.fee)
	}
	sess.result.Steps = steps
	sess.result.PriceImpact = impact

	sess.result, err = s.finish(ctx, sess,
		[]amount{{lp, req.Liquidity}},
		[]amount{{req.TokenOut, total}},
		[]amount{{req.TokenOut, ApplySlippage(total, sess.slippage)}},
		nil,
	)
	if err != nil {
		return model.QuoteResult{}, err
	}
	// Fees of the swap legs are charged in different tokens; report them only for pairs.
	if len(tokens) == 2 {
		metas, err := s.tokens.Load(ctx, s.reader, []common.Address{tokens[1-out]}, s.logger)
		if err != nil {
			return model.QuoteResult{}, err
		}
		sess.result.Fee = scaleFee(fee, metas[tokens[1-out]])
	}
	return sess.result, nil
}

func (s *Service) zapOutSingle(ctx context.Context, sess *session, req Request, remover amm.SingleSidedRemover, remove amm.RemoveQuote, out int) (model.QuoteResult, error) {
	received := remove.Amounts[out]
	minOut := ApplySlippage(received, sess.slippage)
	params := buildParams(req)
	params.MinOut = minOut
	step, err := remover.BuildRemoveOne(remove, req.TokenOut, params)
	if err != nil {
		return model.QuoteResult{}, fmt.Errorf("build remove one: %w", err)
	}
	sess.result.Steps = []zapstep.Step{step}

	sess.result.PriceImpact, err = SampledImpact(received, func(divisor *big.Int) (*big.Int, error) {
		small, err := remover.QuoteRemoveOne(ctx, new(big.Int).Quo(req.Liquidity, divisor), req.TokenOut)
		if err != nil {
			return nil, err
		}
		return small.Amounts[out], nil
	})
	if err != nil {
		return model.QuoteResult{}, fmt.Errorf("price impact: %w", err)
	}
	return s.finish(ctx, sess,
		[]amount{{sess.pool.LPToken(), req.Liquidity}},
		[]amount{{req.TokenOut, received}},
		[]amount{{req.TokenOut, minOut}},
		nil,
	)
}

func aligned(tokens []common.Address, amounts []*big.Int) []amount {
	out := make([]amount, 0, len(tokens))
	for i, token := range tokens {
		if i < len(amounts) && amounts[i] != nil {
			out = append(out, amount{token, amounts[i]})
		}
	}
	return out
}

func sum(amounts []*big.Int) *big.Int {
	total := new(big.Int)
	for _, a := range amounts {
		total.Add(total, a)
	}
	return total
}

// scaleFee converts a base unit fee into token units.
func scaleFee(fee decimal.Decimal, token model.TokenMeta) decimal.Decimal {
	return fee.Shift(-int32(token.Decimals))
}

// PoolInfo is the token metadata of a loaded pool.
type PoolInfo struct {
	Family model.Family
	LP     model.TokenMeta
	Tokens []model.TokenMeta
}

// Describe loads a pool and the metadata of its LP and underlying tokens, so callers can
// scale human amounts before quoting.
func (s *Service) Describe(ctx context.Context, ammID string, address common.Address) (PoolInfo, error) {
	engine, err := s.engines.Get(ammID)
	if err != nil {
		return PoolInfo{}, err
	}
	pool, err := engine.Load(ctx, s.reader, address)
	if err != nil {
		return PoolInfo{}, fmt.Errorf("load %s pool %s: %w", engine.Family(), address.Hex(), err)
	}
	addrs := append([]common.Address{pool.LPToken()}, pool.Tokens()...)
	metas, err := s.tokens.Load(ctx, s.reader, addrs, s.logger)
	if err != nil {
		return PoolInfo{}, err
	}
	info := PoolInfo{Family: engine.Family(), LP: metas[pool.LPToken()]}
	for _, token := range pool.Tokens() {
		info.Tokens = append(info.Tokens, metas[token])
	}
	return info, nil
}

// Token returns the metadata of one token.
func (s *Service) Token(ctx context.Context, address common.Address) (model.TokenMeta, error) {
	metas, err := s.tokens.Load(ctx, s.reader, []common.Address{address}, s.logger)
	if err != nil {
		return model.TokenMeta{}, err
	}
	return metas[address], nil
}
