package uniswap

import (
	"context"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"zapquote/internal/amm"
	"zapquote/internal/chain/chaintest"
	"zapquote/internal/model"
	"zapquote/internal/state"
	"zapquote/internal/zapstep"
)

var (
	pairAddr    = common.HexToAddress("0x1000000000000000000000000000000000000001")
	factoryAddr = common.HexToAddress("0x1000000000000000000000000000000000000002")
	routerAddr  = common.HexToAddress("0x1000000000000000000000000000000000000003")
	token0      = common.HexToAddress("0x2000000000000000000000000000000000000001")
	token1      = common.HexToAddress("0x2000000000000000000000000000000000000002")
	user        = common.HexToAddress("0x3000000000000000000000000000000000000001")
)

func newFakePair(reserve0, reserve1, supply, kLast int64) *chaintest.Fake {
	fake := chaintest.New()
	fake.Return(pairAddr, "token0", token0)
	fake.Return(pairAddr, "token1", token1)
	fake.Return(pairAddr, "getReserves", big.NewInt(reserve0), big.NewInt(reserve1), uint32(1))
	fake.Return(pairAddr, "totalSupply", big.NewInt(supply))
	fake.Return(pairAddr, "kLast", big.NewInt(kLast))
	fake.Return(pairAddr, "swapFee", big.NewInt(30))
	fake.Return(factoryAddr, "feeTo", user)
	fake.Return(factoryAddr, "getPairFee", big.NewInt(25))
	return fake
}

func testConfig() model.AmmConfig {
	return model.AmmConfig{
		ID:      "uni",
		ChainID: 1,
		Family:  model.FamilyConstantProduct,
		Factory: factoryAddr,
		Router:  routerAddr,
		Fee:     model.Fee{Numerator: 3, Denominator: 1000},
		MintFee: model.Fee{Numerator: 1, Denominator: 6},
	}
}

func loadPair(t *testing.T, cfg model.AmmConfig, fake *chaintest.Fake) amm.Pool {
	t.Helper()
	engine, err := New(cfg, amm.Deps{})
	require.NoError(t, err)
	pool, err := engine.Load(context.Background(), fake, pairAddr)
	require.NoError(t, err)
	return pool
}

func TestLoadAndSwap(t *testing.T) {
	fake := newFakePair(1_000_000, 2_000_000, 1_000_000, 0)
	pool := loadPair(t, testConfig(), fake)

	assert.Equal(t, []common.Address{token0, token1}, pool.Tokens())
	assert.Equal(t, 1, fake.Batches(), "pair state is read in one batch")

	quote, err := pool.QuoteSwap(context.Background(), token0, big.NewInt(10_000))
	require.NoError(t, err)
	assert.Equal(t, int64(19_743), quote.AmountOut.Int64())
	assert.Equal(t, token1, quote.TokenOut)

	_, err = pool.QuoteSwap(context.Background(), user, big.NewInt(10_000))
	assert.ErrorIs(t, err, amm.ErrTokenMismatch)
}

func TestFeeSources(t *testing.T) {
	testCases := []struct {
		name   string
		source model.FeeSource
		denom  uint64
		fee    FeeFraction
	}{
		{"constant", model.FeeSourceConstant, 1000, NewFee(3, 1000)},
		{"pair swapFee", model.FeeSourcePairSwapFee, 10000, NewFee(30, 10000)},
		{"factory getPairFee", model.FeeSourceFactoryPairFee, 10000, NewFee(25, 10000)},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := testConfig()
			cfg.FeeSource = tc.source
			cfg.Fee.Denominator = tc.denom
			pool := loadPair(t, cfg, newFakePair(1_000_000, 2_000_000, 1_000_000, 0))
			s, err := pool.(*Pair).State()
			require.NoError(t, err)
			assert.Zero(t, tc.fee.N.Cmp(s.Fee.N))
			assert.Zero(t, tc.fee.D.Cmp(s.Fee.D))
		})
	}

	cfg := testConfig()
	cfg.FeeSource = model.FeeSourceFactoryStable
	_, err := New(cfg, amm.Deps{})
	assert.ErrorIs(t, err, amm.ErrUnsupportedVariant)
}

func TestRemoveLiquidityIncludesMintFee(t *testing.T) {
	fake := newFakePair(2_000_000, 2_000_000, 1_000_000, 1_000_000_000_000)
	pool := loadPair(t, testConfig(), fake)

	quote, err := pool.QuoteRemoveLiquidity(context.Background(), big.NewInt(100_000))
	require.NoError(t, err)
	assert.Equal(t, int64(183_333), quote.Amounts[0].Int64())
	assert.Equal(t, int64(183_333), quote.Amounts[1].Int64())

	cfg := testConfig()
	cfg.MintFee = model.Fee{}
	noFee := loadPair(t, cfg, newFakePair(2_000_000, 2_000_000, 1_000_000, 1_000_000_000_000))
	quote, err = noFee.QuoteRemoveLiquidity(context.Background(), big.NewInt(100_000))
	require.NoError(t, err)
	assert.Equal(t, int64(200_000), quote.Amounts[0].Int64())
}

func TestMintFeeOffWhenFeeToIsZero(t *testing.T) {
	fake := newFakePair(2_000_000, 2_000_000, 1_000_000, 1_000_000_000_000)
	fake.Return(factoryAddr, "feeTo", common.Address{})
	pool := loadPair(t, testConfig(), fake)
	s, err := pool.(*Pair).State()
	require.NoError(t, err)
	assert.False(t, s.FeeOn)
}

func TestAddThenRemoveReturnsAtMostInputs(t *testing.T) {
	fake := newFakePair(1_000_000, 2_000_000, 1_000_000, 0)
	pool := loadPair(t, testConfig(), fake)

	add, err := pool.QuoteAddLiquidity(context.Background(), []*big.Int{big.NewInt(1000), big.NewInt(5000)})
	require.NoError(t, err)
	assert.Equal(t, int64(1000), add.Liquidity.Int64())
	assert.Equal(t, int64(3000), add.Returned()[1].Int64())

	engine, err := New(testConfig(), amm.Deps{})
	require.NoError(t, err)
	after := engine.Pool(pairAddr, PairState{
		Token0:      token0,
		Token1:      token1,
		Reserve0:    big.NewInt(1_001_000),
		Reserve1:    big.NewInt(2_002_000),
		TotalSupply: big.NewInt(1_001_000),
		KLast:       new(big.Int),
		Fee:         NewFee(3, 1000),
	})
	remove, err := after.QuoteRemoveLiquidity(context.Background(), add.Liquidity)
	require.NoError(t, err)
	assert.True(t, remove.Amounts[0].Cmp(add.Amounts[0]) <= 0)
	assert.True(t, remove.Amounts[1].Cmp(add.Amounts[1]) <= 0)
}

func TestBuildStepsPatchTheRightWords(t *testing.T) {
	fake := newFakePair(1_000_000, 2_000_000, 1_000_000, 0)
	pool := loadPair(t, testConfig(), fake)
	params := amm.BuildParams{Recipient: user, MinAmounts: []*big.Int{big.NewInt(1), big.NewInt(2)}}

	add := amm.AddQuote{Amounts: []*big.Int{big.NewInt(111), big.NewInt(222)}}
	step, err := pool.BuildAddLiquidity(add, params)
	require.NoError(t, err)
	require.NoError(t, step.Validate())
	assert.Equal(t, routerAddr, step.Target)
	assert.Equal(t, 68, step.Tokens[0].Offset)
	assert.Equal(t, 100, step.Tokens[1].Offset)
	assertWord(t, step.Data, step.Tokens[0].Offset, 111)
	assertWord(t, step.Data, step.Tokens[1].Offset, 222)

	remove, err := pool.BuildRemoveLiquidity(amm.RemoveQuote{Liquidity: big.NewInt(333)}, params)
	require.NoError(t, err)
	assert.Equal(t, pairAddr, remove.Tokens[0].Token)
	assertWord(t, remove.Data, remove.Tokens[0].Offset, 333)

	swap, err := pool.BuildSwap(amm.SwapQuote{TokenIn: token0, TokenOut: token1, AmountIn: big.NewInt(444)}, params)
	require.NoError(t, err)
	assert.Equal(t, zapstep.WordOffset(0), swap.Tokens[0].Offset)
	assertWord(t, swap.Data, swap.Tokens[0].Offset, 444)
}

func TestUnloadedPairFailsFast(t *testing.T) {
	p := &Pair{state: state.Cell[PairState]{}}
	_, err := p.QuoteSwap(context.Background(), token0, big.NewInt(1))
	assert.ErrorIs(t, err, state.ErrNotLoaded)
}

func assertWord(t *testing.T, data []byte, offset int, want int64) {
	t.Helper()
	got, err := zapstep.ReadWord(data, offset)
	require.NoError(t, err)
	assert.Equal(t, want, got.Int64())
}

func TestAfterSwapMovesReserves(t *testing.T) {
	pool := loadPair(t, testConfig(), newFakePair(1_000_000, 2_000_000, 1_000_000, 0))
	quote, err := pool.QuoteSwap(context.Background(), token1, big.NewInt(20_000))
	require.NoError(t, err)

	next, err := pool.(amm.SwapApplier).AfterSwap(quote)
	require.NoError(t, err)
	s, err := next.(*Pair).State()
	require.NoError(t, err)
	assert.Equal(t, new(big.Int).Sub(big.NewInt(1_000_000), quote.AmountOut), s.Reserve0)
	assert.Equal(t, big.NewInt(2_020_000), s.Reserve1)

	before, err := pool.(*Pair).State()
	require.NoError(t, err)
	assert.Equal(t, big.NewInt(1_000_000), before.Reserve0, "the original snapshot is untouched")

	rate, err := pool.(amm.FeeReporter).SwapFeeRate()
	require.NoError(t, err)
	assert.Equal(t, "0.003", rate.String())
}

func TestAfterRemoveMintsFeeThenBurns(t *testing.T) {
	pool := loadPair(t, testConfig(), newFakePair(2_000_000, 2_000_000, 1_000_000, 1_000_000_000_000))
	pair := pool.(*Pair)
	before, err := pair.State()
	require.NoError(t, err)

	quote, err := pool.QuoteRemoveLiquidity(context.Background(), big.NewInt(100_000))
	require.NoError(t, err)
	next, err := pool.(amm.RemoveApplier).AfterRemove(quote)
	require.NoError(t, err)
	s, err := next.(*Pair).State()
	require.NoError(t, err)

	assert.Equal(t, big.NewInt(2_000_000-183_333), s.Reserve0)
	assert.Equal(t, big.NewInt(2_000_000-183_333), s.Reserve1)
	supply := pair.supplyAfterMintFee(before)
	assert.True(t, supply.Cmp(before.TotalSupply) > 0)
	assert.Equal(t, new(big.Int).Sub(supply, big.NewInt(100_000)), s.TotalSupply)
	assert.Equal(t, new(big.Int).Mul(s.Reserve0, s.Reserve1), s.KLast)
	assert.Equal(t, big.NewInt(1_000_000), before.TotalSupply, "the original snapshot is untouched")

	// kLast caught up, so nothing more is minted on the projected pair
	assert.Equal(t, s.TotalSupply, next.(*Pair).supplyAfterMintFee(s))

	_, err = pool.(amm.RemoveApplier).AfterRemove(amm.RemoveQuote{
		Liquidity: big.NewInt(5_000_000),
		Amounts:   []*big.Int{big.NewInt(2_000_000), big.NewInt(2_000_000)},
	})
	assert.ErrorIs(t, err, amm.ErrInsufficientLiquidity)
}
