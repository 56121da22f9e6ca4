package model

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"zapquote/internal/zapstep"
)

// QuoteKind is the operation being quoted.
type QuoteKind string

const (
	QuoteDeposit  QuoteKind = "deposit"
	QuoteWithdraw QuoteKind = "withdraw"
	QuoteSwap     QuoteKind = "swap"
	QuoteZapIn    QuoteKind = "zap-in"
	QuoteZapOut   QuoteKind = "zap-out"
)

// QuoteResult is the outcome of a quote: expected amounts, slippage-protected minimums and
// the router steps that realise it.
type QuoteResult struct {
	Kind   QuoteKind      `json:"kind"`
	AmmID  string         `json:"amm_id"`
	Family Family         `json:"family"`
	Pool   common.Address `json:"pool"`

	Inputs     []TokenAmount `json:"inputs"`
	Outputs    []TokenAmount `json:"outputs"`
	MinOutputs []TokenAmount `json:"min_outputs"`
	// Input left unused by the pool, returned to the caller.
	Returned []TokenAmount `json:"returned,omitempty"`

	PriceImpact decimal.Decimal `json:"price_impact"`
	Fee         decimal.Decimal `json:"fee"`
	Steps       []zapstep.Step  `json:"steps"`
	// Advisory notes, such as a stable invariant that did not converge.
	Warnings []string `json:"warnings,omitempty"`
}
