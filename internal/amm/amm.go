// Package amm defines the contract shared by the pool engines: load a snapshot of a pool
// in one batched read, quote against it, and build router steps for the result.
package amm

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"zapquote/internal/chain"
	"zapquote/internal/model"
	"zapquote/internal/state"
	"zapquote/internal/zapstep"
)

var (
	// ErrInsufficientLiquidity is returned when a pool cannot produce a positive result.
	ErrInsufficientLiquidity = errors.New("amm: insufficient liquidity")
	// ErrUnsupportedVariant is returned for configuration combinations an engine cannot serve.
	ErrUnsupportedVariant = errors.New("amm: unsupported variant")
	// ErrTokenMismatch is returned when a token is not part of the pool.
	ErrTokenMismatch = errors.New("amm: token not in pool")
	// ErrInvalidAmount is returned for missing or non-positive amounts.
	ErrInvalidAmount = errors.New("amm: amount must be positive")
)

// SwapQuote is the result of swapping within one pool.
type SwapQuote struct {
	TokenIn   common.Address
	TokenOut  common.Address
	AmountIn  *big.Int
	AmountOut *big.Int
	// Advisory: the stable invariant solver hit its iteration cap.
	NotConverged bool
}

// AddQuote is the result of adding liquidity. Amounts are the amounts the pool takes,
// aligned with Pool.Tokens; they may be lower than the offered amounts.
type AddQuote struct {
	Offered   []*big.Int
	Amounts   []*big.Int
	Liquidity *big.Int
}

// Returned is the part of the offered amounts the pool does not take.
func (q AddQuote) Returned() []*big.Int {
	out := make([]*big.Int, len(q.Offered))
	for i := range q.Offered {
		out[i] = new(big.Int)
		if i < len(q.Amounts) && q.Offered[i].Cmp(q.Amounts[i]) > 0 {
			out[i].Sub(q.Offered[i], q.Amounts[i])
		}
	}
	return out
}

// RemoveQuote is the result of burning liquidity, aligned with Pool.Tokens.
type RemoveQuote struct {
	Liquidity *big.Int
	Amounts   []*big.Int
}

// BuildParams carries the slippage limits and recipient for router steps.
type BuildParams struct {
	Recipient common.Address
	// Account the tokens are pulled from when the target takes an explicit sender, usually
	// the router itself. Defaults to Recipient.
	Sender   common.Address
	Deadline *big.Int
	// Per token minimums, aligned with Pool.Tokens, for add and remove.
	MinAmounts []*big.Int
	// Minimum output of a swap, or minimum liquidity of an add.
	MinOut *big.Int
}

// Pool is a loaded snapshot of one pool. Quotes that need simulated calls use ctx; the rest
// are pure integer math over the snapshot.
type Pool interface {
	Family() model.Family
	Address() common.Address
	LPToken() common.Address
	Tokens() []common.Address

	QuoteSwap(ctx context.Context, tokenIn common.Address, amountIn *big.Int) (SwapQuote, error)
	QuoteAddLiquidity(ctx context.Context, amounts []*big.Int) (AddQuote, error)
	QuoteRemoveLiquidity(ctx context.Context, liquidity *big.Int) (RemoveQuote, error)
	// OptimalSwapAmount returns how much of fullAmountIn to swap before a single sided add.
	OptimalSwapAmount(ctx context.Context, tokenIn common.Address, fullAmountIn *big.Int) (*big.Int, error)

	BuildAddLiquidity(quote AddQuote, params BuildParams) (zapstep.Step, error)
	BuildRemoveLiquidity(quote RemoveQuote, params BuildParams) (zapstep.Step, error)
	BuildSwap(quote SwapQuote, params BuildParams) (zapstep.Step, error)
}

// SingleSidedRemover is implemented by pools that can burn liquidity into one token.
type SingleSidedRemover interface {
	QuoteRemoveOne(ctx context.Context, liquidity *big.Int, tokenOut common.Address) (RemoveQuote, error)
	BuildRemoveOne(quote RemoveQuote, tokenOut common.Address, params BuildParams) (zapstep.Step, error)
}

// MultiTokenSwapper is implemented by pools with more than two tokens, where the output
// token of a swap has to be named.
type MultiTokenSwapper interface {
	QuoteSwapTo(ctx context.Context, tokenIn, tokenOut common.Address, amountIn *big.Int) (SwapQuote, error)
}

// SwapApplier is implemented by pools that can project their snapshot past one of their
// own swaps, so a follow-up add is quoted against the reserves the router will see.
type SwapApplier interface {
	AfterSwap(quote SwapQuote) (Pool, error)
}

// RemoveApplier is implemented by pools that can project their snapshot past a burn, so
// swaps that follow it are quoted against the reduced reserves.
type RemoveApplier interface {
	AfterRemove(quote RemoveQuote) (Pool, error)
}

// FeeReporter is implemented by pools whose swap fee rate is part of the snapshot.
type FeeReporter interface {
	SwapFeeRate() (decimal.Decimal, error)
}

// Engine loads pools of one AMM deployment.
type Engine interface {
	Family() model.Family
	Config() model.AmmConfig
	Load(ctx context.Context, reader chain.Reader, pool common.Address) (Pool, error)
}

// Deps are the shared collaborators handed to every engine.
type Deps struct {
	Logger  *zap.Logger
	Factory *state.FactoryCache
	Tokens  *state.TokenCache
}

// WithDefaults fills unset dependencies.
func (d Deps) WithDefaults() Deps {
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	if d.Factory == nil {
		d.Factory = state.NewFactoryCache(0, nil)
	}
	if d.Tokens == nil {
		d.Tokens = state.NewTokenCache()
	}
	return d
}

// IndexOf returns the position of token in tokens.
func IndexOf(tokens []common.Address, token common.Address) (int, error) {
	for i, t := range tokens {
		if t == token {
			return i, nil
		}
	}
	return -1, fmt.Errorf("%w: %s", ErrTokenMismatch, token.Hex())
}

// CheckAmounts validates that amounts has one non-negative entry per token and at least
// one positive entry.
func CheckAmounts(amounts []*big.Int, n int) error {
	if len(amounts) != n {
		return fmt.Errorf("%w: got %d amounts for %d tokens", ErrInvalidAmount, len(amounts), n)
	}
	positive := false
	for _, a := range amounts {
		if a == nil || a.Sign() < 0 {
			return ErrInvalidAmount
		}
		if a.Sign() > 0 {
			positive = true
		}
	}
	if !positive {
		return ErrInvalidAmount
	}
	return nil
}

// CheckPositive validates a single amount.
func CheckPositive(amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	return nil
}

// DeadlineOrMax returns Deadline or max uint256 when unset.
func (p BuildParams) DeadlineOrMax() *big.Int {
	if p.Deadline != nil {
		return p.Deadline
	}
	return new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))
}

// Min returns MinAmounts[i] or zero.
func (p BuildParams) Min(i int) *big.Int {
	if i < len(p.MinAmounts) && p.MinAmounts[i] != nil {
		return p.MinAmounts[i]
	}
	return new(big.Int)
}

// SenderOrRecipient returns Sender, or Recipient when Sender is unset.
func (p BuildParams) SenderOrRecipient() common.Address {
	if p.Sender != (common.Address{}) {
		return p.Sender
	}
	return p.Recipient
}

// MinOutOrZero returns MinOut or zero.
func (p BuildParams) MinOutOrZero() *big.Int {
	if p.MinOut != nil {
		return p.MinOut
	}
	return new(big.Int)
}
