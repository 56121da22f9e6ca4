package model

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

// TokenMeta captures ERC20 metadata.
type TokenMeta struct {
	Address  common.Address `json:"address"`
	Decimals uint8          `json:"decimals"`
	Symbol   string         `json:"symbol"`
	Name     string         `json:"name"`
}

// TokenAmount is a human readable amount of a token.
type TokenAmount struct {
	Token  TokenMeta       `json:"token"`
	Amount decimal.Decimal `json:"amount"`
}

// NewTokenAmount parses a decimal string such as "1.5".
func NewTokenAmount(token TokenMeta, amount string) (TokenAmount, error) {
	d, err := decimal.NewFromString(amount)
	if err != nil {
		return TokenAmount{}, err
	}
	return TokenAmount{Token: token, Amount: d}, nil
}

// FromWei converts base units into a TokenAmount.
func FromWei(token TokenMeta, wei *big.Int) TokenAmount {
	if wei == nil {
		return TokenAmount{Token: token, Amount: decimal.Zero}
	}
	return TokenAmount{Token: token, Amount: decimal.NewFromBigInt(wei, -int32(token.Decimals))}
}

// ToWei converts to base units, rounding down.
func (a TokenAmount) ToWei() *big.Int {
	return a.Amount.Shift(int32(a.Token.Decimals)).Floor().BigInt()
}

// IsPositive reports whether the amount is greater than zero.
func (a TokenAmount) IsPositive() bool {
	return a.Amount.IsPositive()
}

// String renders the amount with the token symbol.
func (a TokenAmount) String() string {
	if a.Token.Symbol == "" {
		return a.Amount.String() + " " + a.Token.Address.Hex()
	}
	return a.Amount.String() + " " + a.Token.Symbol
}
