package main

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"zapquote/internal/config"
	"zapquote/internal/model"
	"zapquote/internal/quote"
)

// target is the pool a quote runs against, after resolving config names.
type target struct {
	ammID      string
	pool       common.Address
	swapVia    common.Address
	swapViaAMM string
}

func resolveTarget(cfg config.Config) (target, error) {
	req := cfg.Request
	if req.Pool == "" {
		return target{}, fmt.Errorf("pool is required")
	}

	var t target
	if pool, ok := cfg.Pool(req.Pool); ok {
		t = target{ammID: pool.AMM, pool: pool.Address, swapVia: pool.SwapVia, swapViaAMM: pool.SwapViaAMM}
	} else {
		address, err := config.ParseAddress(req.Pool)
		if err != nil {
			return target{}, fmt.Errorf("pool %q is neither a configured name nor an address", req.Pool)
		}
		t.pool = address
	}

	if req.AMM != "" {
		t.ammID = req.AMM
	}
	if t.ammID == "" {
		return target{}, fmt.Errorf("amm is required for pool %s", t.pool.Hex())
	}
	if _, ok := cfg.AMM(t.ammID); !ok {
		return target{}, fmt.Errorf("unknown amm %q", t.ammID)
	}

	if req.SwapVia != "" {
		swapVia, err := config.ParseAddress(req.SwapVia)
		if err != nil {
			return target{}, fmt.Errorf("swap-via: %w", err)
		}
		t.swapVia = swapVia
	}
	if req.SwapViaAMM != "" {
		t.swapViaAMM = req.SwapViaAMM
	}
	if t.swapVia != (common.Address{}) && t.swapViaAMM == "" {
		t.swapViaAMM = t.ammID
	}
	return t, nil
}

// metadata is the token lookup the request builder needs.
type metadata interface {
	Describe(ctx context.Context, ammID string, address common.Address) (quote.PoolInfo, error)
	Token(ctx context.Context, address common.Address) (model.TokenMeta, error)
}

// buildRequest turns the human readable inputs of cfg into a quote request in base units.
func buildRequest(ctx context.Context, meta metadata, cfg config.Config, kind model.QuoteKind) (quote.Request, error) {
	t, err := resolveTarget(cfg)
	if err != nil {
		return quote.Request{}, err
	}
	in := cfg.Request

	recipient, err := config.ParseAddress(in.Recipient)
	if err != nil {
		return quote.Request{}, fmt.Errorf("recipient: %w", err)
	}
	tokenIn, err := config.ParseAddress(in.TokenIn)
	if err != nil {
		return quote.Request{}, fmt.Errorf("token-in: %w", err)
	}
	tokenOut, err := config.ParseAddress(in.TokenOut)
	if err != nil {
		return quote.Request{}, fmt.Errorf("token-out: %w", err)
	}

	req := quote.Request{
		AmmID:      t.ammID,
		Pool:       t.pool,
		TokenIn:    tokenIn,
		TokenOut:   tokenOut,
		Slippage:   cfg.Slippage,
		Recipient:  recipient,
		SwapVia:    t.swapVia,
		SwapViaAmm: t.swapViaAMM,
	}

	switch kind {
	case model.QuoteDeposit:
		info, err := meta.Describe(ctx, t.ammID, t.pool)
		if err != nil {
			return quote.Request{}, err
		}
		if len(in.Amounts) != len(info.Tokens) {
			return quote.Request{}, fmt.Errorf("amounts: pool has %d tokens, got %d amounts", len(info.Tokens), len(in.Amounts))
		}
		for i, token := range info.Tokens {
			wei, err := toWei(token, in.Amounts[i])
			if err != nil {
				return quote.Request{}, fmt.Errorf("amounts[%d]: %w", i, err)
			}
			req.Amounts = append(req.Amounts, wei)
		}
	case model.QuoteWithdraw, model.QuoteZapOut:
		if kind == model.QuoteZapOut && tokenOut == (common.Address{}) {
			return quote.Request{}, fmt.Errorf("token-out is required")
		}
		info, err := meta.Describe(ctx, t.ammID, t.pool)
		if err != nil {
			return quote.Request{}, err
		}
		if req.Liquidity, err = toWei(info.LP, in.Liquidity); err != nil {
			return quote.Request{}, fmt.Errorf("liquidity: %w", err)
		}
	case model.QuoteSwap, model.QuoteZapIn:
		if tokenIn == (common.Address{}) {
			return quote.Request{}, fmt.Errorf("token-in is required")
		}
		token, err := meta.Token(ctx, tokenIn)
		if err != nil {
			return quote.Request{}, err
		}
		if req.AmountIn, err = toWei(token, in.AmountIn); err != nil {
			return quote.Request{}, fmt.Errorf("amount-in: %w", err)
		}
	default:
		return quote.Request{}, fmt.Errorf("unknown quote kind %q", kind)
	}
	return req, nil
}

func toWei(token model.TokenMeta, amount string) (*big.Int, error) {
	amount = strings.TrimSpace(amount)
	if amount == "" {
		return nil, fmt.Errorf("amount is required")
	}
	parsed, err := model.NewTokenAmount(token, amount)
	if err != nil {
		return nil, err
	}
	if parsed.Amount.IsNegative() {
		return nil, fmt.Errorf("amount must not be negative")
	}
	return parsed.ToWei(), nil
}
