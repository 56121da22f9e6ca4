// Package zapstep describes router steps: the call data of one contract call plus the
// byte offsets at which the router writes the amounts only known at execution time.
package zapstep

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

const (
	SelectorSize = 4
	WordSize     = 32

	// NoPatch marks a token the router only approves.
	NoPatch = -1
)

var (
	ErrOffsetOutOfRange = errors.New("zapstep: offset out of range")
	ErrAmountOutOfRange = errors.New("zapstep: amount does not fit in a uint256 word")
)

var maxUint256 = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))

// WordOffset returns the byte offset of the i-th 32-byte word after the selector.
func WordOffset(i int) int {
	return SelectorSize + WordSize*i
}

// StepToken is a token consumed by a step and where its amount lives in the call data.
type StepToken struct {
	Token  common.Address `json:"token"`
	Offset int            `json:"offset"`
}

// Step is one call executed by the router.
type Step struct {
	Target common.Address `json:"target"`
	Value  *big.Int       `json:"value"`
	Data   hexutil.Bytes  `json:"data"`
	Tokens []StepToken    `json:"tokens"`
	// Spender receives the token approvals when it is not Target.
	Spender common.Address `json:"spender,omitempty"`
}

// ApprovalTarget returns the address the router approves the step tokens to.
func (s Step) ApprovalTarget() common.Address {
	if s.Spender != (common.Address{}) {
		return s.Spender
	}
	return s.Target
}

// NewStep builds a step with zero value.
func NewStep(target common.Address, data []byte, tokens ...StepToken) Step {
	return Step{
		Target: target,
		Value:  new(big.Int),
		Data:   data,
		Tokens: tokens,
	}
}

// Patched returns a token entry at word index word.
func Patched(token common.Address, word int) StepToken {
	return StepToken{Token: token, Offset: WordOffset(word)}
}

// ApproveOnly returns a token entry that is approved but never patched.
func ApproveOnly(token common.Address) StepToken {
	return StepToken{Token: token, Offset: NoPatch}
}

// Patch writes amount as a big-endian uint256 at offset. NoPatch is a no-op.
func Patch(data []byte, offset int, amount *big.Int) error {
	if offset == NoPatch {
		return nil
	}
	if offset < SelectorSize || offset+WordSize > len(data) {
		return fmt.Errorf("%w: %d in %d bytes", ErrOffsetOutOfRange, offset, len(data))
	}
	if amount == nil || amount.Sign() < 0 || amount.Cmp(maxUint256) > 0 {
		return ErrAmountOutOfRange
	}
	amount.FillBytes(data[offset : offset+WordSize])
	return nil
}

// ReadWord reads the uint256 at offset.
func ReadWord(data []byte, offset int) (*big.Int, error) {
	if offset < SelectorSize || offset+WordSize > len(data) {
		return nil, fmt.Errorf("%w: %d in %d bytes", ErrOffsetOutOfRange, offset, len(data))
	}
	return new(big.Int).SetBytes(data[offset : offset+WordSize]), nil
}

// Simulate applies amounts the way the router does before executing a step and returns
// the resulting call data. Tokens without an amount keep their encoded value.
func Simulate(step Step, amounts map[common.Address]*big.Int) ([]byte, error) {
	data := append([]byte(nil), step.Data...)
	for _, token := range step.Tokens {
		amount, ok := amounts[token.Token]
		if !ok {
			continue
		}
		if err := Patch(data, token.Offset, amount); err != nil {
			return nil, fmt.Errorf("patch %s: %w", token.Token.Hex(), err)
		}
	}
	return data, nil
}

// Validate checks that every patch offset is inside the call data and word aligned.
func (s Step) Validate() error {
	for _, token := range s.Tokens {
		if token.Offset == NoPatch {
			continue
		}
		if token.Offset < SelectorSize || token.Offset+WordSize > len(s.Data) {
			return fmt.Errorf("%w: token %s offset %d in %d bytes", ErrOffsetOutOfRange, token.Token.Hex(), token.Offset, len(s.Data))
		}
		if (token.Offset-SelectorSize)%WordSize != 0 {
			return fmt.Errorf("zapstep: token %s offset %d is not word aligned", token.Token.Hex(), token.Offset)
		}
	}
	return nil
}
