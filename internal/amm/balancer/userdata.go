package balancer

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

// Join and exit kinds as numbered by each pool type.
const (
	JoinExactTokensInForBPTOut    = 1
	JoinAllTokensInForExactBPTOut = 3
	ExitExactBPTInForTokensOut    = 1
	ExitExactBPTInForAllTokensOut = 2
)

// SwapKindGivenIn is the GIVEN_IN swap kind.
const SwapKindGivenIn uint8 = 0

var (
	uint256Type, _      = abi.NewType("uint256", "", nil)
	uint256ArrayType, _ = abi.NewType("uint256[]", "", nil)

	exactTokensInArgs = abi.Arguments{{Type: uint256Type}, {Type: uint256ArrayType}, {Type: uint256Type}}
	kindAmountArgs    = abi.Arguments{{Type: uint256Type}, {Type: uint256Type}}
)

// EncodeExactTokensIn encodes (kind, amountsIn, minimumBPT).
func EncodeExactTokensIn(amounts []*big.Int, minBPT *big.Int) ([]byte, error) {
	if minBPT == nil {
		minBPT = new(big.Int)
	}
	data, err := exactTokensInArgs.Pack(big.NewInt(JoinExactTokensInForBPTOut), amounts, minBPT)
	if err != nil {
		return nil, fmt.Errorf("encode exact tokens in: %w", err)
	}
	return data, nil
}

// EncodeKindAmount encodes (kind, amount), the user data of exact BPT joins and exits.
func EncodeKindAmount(kind int64, amount *big.Int) ([]byte, error) {
	data, err := kindAmountArgs.Pack(big.NewInt(kind), amount)
	if err != nil {
		return nil, fmt.Errorf("encode kind %d: %w", kind, err)
	}
	return data, nil
}
