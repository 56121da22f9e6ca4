package curve

import (
	"fmt"

	"zapquote/internal/amm"
)

// MethodType names the method shape of one stable pool generation.
type MethodType string

const (
	// Pool coins, add_liquidity(uint256[N],uint256) on the pool.
	MethodFixed MethodType = "fixed"
	// Underlying coins through a deposit wrapper with int128 coin indexes.
	MethodFixedDepositInt128 MethodType = "fixed-deposit-int128"
	// Underlying coins through a deposit wrapper with uint256 coin indexes.
	MethodFixedDepositUint256 MethodType = "fixed-deposit-uint256"
	// Underlying coins on the pool itself, selected by a trailing use_underlying flag.
	MethodFixedDepositUnderlying MethodType = "fixed-deposit-underlying"
	// Underlying coins through a deposit wrapper taking uint256[] amounts.
	MethodDynamicDeposit MethodType = "dynamic-deposit"
	// Meta pool coins through a wrapper taking the pool address first.
	MethodPoolFixed MethodType = "pool-fixed"
	// As MethodPoolFixed with a trailing receiver.
	MethodPoolFixedDeposit MethodType = "pool-fixed-deposit"
	// Meta pool coins through a wrapper taking the pool address and uint256[] amounts.
	MethodPoolDynamicDeposit MethodType = "pool-dynamic-deposit"
)

// MethodTypes lists every method type.
func MethodTypes() []MethodType {
	return []MethodType{
		MethodFixed,
		MethodFixedDepositInt128,
		MethodFixedDepositUint256,
		MethodFixedDepositUnderlying,
		MethodDynamicDeposit,
		MethodPoolFixed,
		MethodPoolFixedDeposit,
		MethodPoolDynamicDeposit,
	}
}

// Basis is where the coins a method type deposits come from.
type Basis int

const (
	BasisPoolCoins Basis = iota
	BasisPoolUnderlying
	BasisWrapperUnderlying
	BasisMeta
)

// MethodSpec describes the signatures of a method type.
type MethodSpec struct {
	Type MethodType
	// Calls go to the deposit wrapper instead of the pool.
	ViaWrapper bool
	// Methods take the pool address as their first argument.
	PoolArg bool
	// Amounts are a uint256[] instead of uint256[N].
	Dynamic bool
	// add/remove take a trailing use_underlying bool.
	Underlying bool
	// add/remove take a trailing receiver.
	Receiver  bool
	IndexType string
	Basis     Basis
}

var specs = map[MethodType]MethodSpec{
	MethodFixed:                  {Type: MethodFixed, IndexType: "int128", Basis: BasisPoolCoins},
	MethodFixedDepositInt128:     {Type: MethodFixedDepositInt128, ViaWrapper: true, IndexType: "int128", Basis: BasisWrapperUnderlying},
	MethodFixedDepositUint256:    {Type: MethodFixedDepositUint256, ViaWrapper: true, IndexType: "uint256", Basis: BasisWrapperUnderlying},
	MethodFixedDepositUnderlying: {Type: MethodFixedDepositUnderlying, Underlying: true, IndexType: "int128", Basis: BasisPoolUnderlying},
	MethodDynamicDeposit:         {Type: MethodDynamicDeposit, ViaWrapper: true, Dynamic: true, IndexType: "int128", Basis: BasisWrapperUnderlying},
	MethodPoolFixed:              {Type: MethodPoolFixed, ViaWrapper: true, PoolArg: true, IndexType: "int128", Basis: BasisMeta},
	MethodPoolFixedDeposit:       {Type: MethodPoolFixedDeposit, ViaWrapper: true, PoolArg: true, Receiver: true, IndexType: "int128", Basis: BasisMeta},
	MethodPoolDynamicDeposit:     {Type: MethodPoolDynamicDeposit, ViaWrapper: true, PoolArg: true, Dynamic: true, IndexType: "int128", Basis: BasisMeta},
}

// SpecFor returns the spec of a method type.
func SpecFor(t MethodType) (MethodSpec, error) {
	spec, ok := specs[t]
	if !ok {
		return MethodSpec{}, fmt.Errorf("%w: stable method %q", amm.ErrUnsupportedVariant, t)
	}
	return spec, nil
}

func (s MethodSpec) poolArgWords() int {
	if s.PoolArg {
		return 1
	}
	return 0
}

// AddHeadWords is the number of head words of add_liquidity for n coins.
func (s MethodSpec) AddHeadWords(n int) int {
	words := s.poolArgWords() + 1 // min_mint_amount
	if s.Dynamic {
		words++
	} else {
		words += n
	}
	if s.Underlying {
		words++
	}
	if s.Receiver {
		words++
	}
	return words
}

// AmountWord is the word of amounts[i] in add_liquidity for n coins.
func (s MethodSpec) AmountWord(n, i int) int {
	if s.Dynamic {
		// the array tail follows the head: length word, then elements
		return s.AddHeadWords(n) + 1 + i
	}
	return s.poolArgWords() + i
}

// RemoveOneWord is the word of the burn amount in remove_liquidity_one_coin.
func (s MethodSpec) RemoveOneWord() int {
	return s.poolArgWords()
}

// ExchangeAmountWord is dx in exchange(i, j, dx, min_dy).
const ExchangeAmountWord = 2

// RemoveLiquidityWord is the burn amount in remove_liquidity(amount, min_amounts).
const RemoveLiquidityWord = 0

// SupportsProportionalRemove reports whether remove_liquidity pays out the deposit basis.
func (s MethodSpec) SupportsProportionalRemove() bool {
	return s.Basis == BasisPoolCoins || s.Basis == BasisPoolUnderlying
}

// SwapsUnderlying reports whether swaps between basis coins use the *_underlying methods.
func (s MethodSpec) SwapsUnderlying() bool {
	return s.Basis != BasisPoolCoins
}
