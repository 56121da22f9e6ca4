package curve

import (
	"context"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"zapquote/internal/amm"
	"zapquote/internal/chain"
	"zapquote/internal/chain/chaintest"
	"zapquote/internal/model"
	"zapquote/internal/zapstep"
)

var (
	poolAddr    = common.HexToAddress("0x1000000000000000000000000000000000000001")
	basePool    = common.HexToAddress("0x1000000000000000000000000000000000000002")
	wrapperAddr = common.HexToAddress("0x1000000000000000000000000000000000000003")
	coinA       = common.HexToAddress("0x2000000000000000000000000000000000000001")
	coinB       = common.HexToAddress("0x2000000000000000000000000000000000000002")
	coinX       = common.HexToAddress("0x2000000000000000000000000000000000000003")
	coinY       = common.HexToAddress("0x2000000000000000000000000000000000000004")
	coinZ       = common.HexToAddress("0x2000000000000000000000000000000000000005")
	baseLP      = common.HexToAddress("0x2000000000000000000000000000000000000006")
	user        = common.HexToAddress("0x3000000000000000000000000000000000000001")
)

func e18(v int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(v), big.NewInt(1_000_000_000_000_000_000))
}

func testConfig(method MethodType) model.AmmConfig {
	return model.AmmConfig{
		ID:           "stable",
		ChainID:      1,
		Family:       model.FamilyStablePool,
		StableMethod: string(method),
		ZapWrapper:   wrapperAddr,
	}
}

// indexed answers getter(i) with values[i] and reverts past the end.
func indexed(values ...interface{}) chaintest.Handler {
	return func(args []interface{}) ([]interface{}, error) {
		i := args[0].(*big.Int).Int64()
		if i < 0 || int(i) >= len(values) {
			return nil, chaintest.ErrReverted
		}
		return []interface{}{values[i]}, nil
	}
}

func sumAmounts(amounts []*big.Int) *big.Int {
	total := new(big.Int)
	for _, a := range amounts {
		total.Add(total, a)
	}
	return total
}

// registerPool serves coins and balances of pool with the uint256 or int128 getters.
func registerPool(fake *chaintest.Fake, pool common.Address, legacy bool, coins []common.Address, balances []*big.Int) {
	index := "uint256"
	if legacy {
		index = "int128"
	}
	coinValues := make([]interface{}, len(coins))
	for i, c := range coins {
		coinValues[i] = c
	}
	balanceValues := make([]interface{}, len(balances))
	for i, b := range balances {
		balanceValues[i] = b
	}
	fake.Handle(pool, "coins("+index+")", indexed(coinValues...))
	fake.Handle(pool, "balances("+index+")", indexed(balanceValues...))
}

func newFixedPool(t *testing.T, legacy bool) *chaintest.Fake {
	t.Helper()
	fake := chaintest.New()
	registerPool(fake, poolAddr, legacy, []common.Address{coinA, coinB}, []*big.Int{e18(1000), e18(2000)})
	fake.Return(poolAddr, "totalSupply", e18(3000))
	fake.Handle(poolAddr, "calc_token_amount(uint256[2])", func(args []interface{}) ([]interface{}, error) {
		amounts, err := chain.AsBigInts(args[0])
		if err != nil {
			return nil, err
		}
		return []interface{}{sumAmounts(amounts)}, nil
	})
	fake.Handle(poolAddr, "calc_withdraw_one_coin(uint256,int128)", func(args []interface{}) ([]interface{}, error) {
		return []interface{}{args[0].(*big.Int)}, nil
	})
	fake.Handle(poolAddr, "get_dy(int128,int128,uint256)", func(args []interface{}) ([]interface{}, error) {
		dx := new(big.Int).Mul(args[2].(*big.Int), big.NewInt(99))
		return []interface{}{dx.Quo(dx, big.NewInt(100))}, nil
	})
	return fake
}

func load(t *testing.T, method MethodType, fake *chaintest.Fake) *StablePool {
	t.Helper()
	engine, err := New(testConfig(method), amm.Deps{})
	require.NoError(t, err)
	pool, err := engine.Load(context.Background(), fake, poolAddr)
	require.NoError(t, err)
	return pool.(*StablePool)
}

func TestFixedPoolQuotes(t *testing.T) {
	pool := load(t, MethodFixed, newFixedPool(t, false))
	ctx := context.Background()

	s, err := pool.State()
	require.NoError(t, err)
	assert.False(t, s.DepositFlag)
	assert.False(t, s.Legacy)
	assert.Equal(t, poolAddr, s.LPToken)
	assert.Equal(t, []common.Address{coinA, coinB}, pool.Tokens())

	add, err := pool.QuoteAddLiquidity(ctx, []*big.Int{e18(10), new(big.Int)})
	require.NoError(t, err)
	assert.Equal(t, e18(10), add.Liquidity)

	remove, err := pool.QuoteRemoveLiquidity(ctx, e18(300))
	require.NoError(t, err)
	assert.Equal(t, []*big.Int{e18(100), e18(200)}, remove.Amounts)

	one, err := pool.QuoteRemoveOne(ctx, e18(5), coinB)
	require.NoError(t, err)
	assert.Equal(t, []*big.Int{new(big.Int), e18(5)}, one.Amounts)

	swap, err := pool.QuoteSwap(ctx, coinA, e18(100))
	require.NoError(t, err)
	assert.Equal(t, coinB, swap.TokenOut)
	assert.Equal(t, e18(99), swap.AmountOut)

	optimal, err := pool.OptimalSwapAmount(ctx, coinA, e18(100))
	require.NoError(t, err)
	assert.Zero(t, optimal.Sign())
}

func TestLegacyGettersAreDetected(t *testing.T) {
	pool := load(t, MethodFixed, newFixedPool(t, true))
	s, err := pool.State()
	require.NoError(t, err)
	assert.True(t, s.Legacy)
	assert.Equal(t, []*big.Int{e18(1000), e18(2000)}, s.Balances)
}

func TestDetectDepositFlag(t *testing.T) {
	testCases := []struct {
		name     string
		withFlag bool
		without  bool
		want     bool
		wantErr  bool
	}{
		{"flag only", true, false, true, false},
		{"plain only", false, true, false, false},
		{"both", true, true, false, true},
		{"neither", false, false, false, true},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			fake := chaintest.New()
			answer := func([]interface{}) ([]interface{}, error) { return []interface{}{big.NewInt(1)}, nil }
			if tc.withFlag {
				fake.Handle(poolAddr, "calc_token_amount(uint256[3],bool)", answer)
			}
			if tc.without {
				fake.Handle(poolAddr, "calc_token_amount(uint256[3])", answer)
			}
			engine, err := New(testConfig(MethodFixed), amm.Deps{})
			require.NoError(t, err)

			got, err := engine.DetectDepositFlag(context.Background(), fake, poolAddr, 3)
			if tc.wantErr {
				assert.ErrorIs(t, err, ErrDepositFlagAmbiguous)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestMetaPoolExpansion(t *testing.T) {
	fake := chaintest.New()
	registerPool(fake, poolAddr, false, []common.Address{coinA, baseLP}, []*big.Int{e18(10), e18(20)})
	fake.Return(poolAddr, "base_pool", basePool)
	fake.Return(poolAddr, "totalSupply", e18(30))
	fake.Handle(basePool, "coins(uint256)", indexed(coinX, coinY, coinZ))
	fake.Handle(wrapperAddr, "calc_token_amount(address,uint256[4],bool)", func(args []interface{}) ([]interface{}, error) {
		amounts, err := chain.AsBigInts(args[1])
		if err != nil {
			return nil, err
		}
		return []interface{}{sumAmounts(amounts)}, nil
	})

	pool := load(t, MethodPoolFixed, fake)
	s, err := pool.State()
	require.NoError(t, err)
	assert.Equal(t, []common.Address{coinA, coinX, coinY, coinZ}, s.Basis)
	assert.Equal(t, 1, s.MetaDepth)
	assert.True(t, s.DepositFlag)

	topReads := 0
	for _, call := range fake.Calls() {
		if call.To == poolAddr && call.Method == "base_pool" {
			topReads++
		}
	}
	assert.Equal(t, 1, topReads, "the top level is read once for load and expansion")

	add, err := pool.QuoteAddLiquidity(context.Background(), []*big.Int{new(big.Int), e18(1), e18(2), new(big.Int)})
	require.NoError(t, err)
	assert.Equal(t, e18(3), add.Liquidity)

	_, err = pool.QuoteRemoveLiquidity(context.Background(), e18(1))
	assert.ErrorIs(t, err, amm.ErrUnsupportedVariant)
}

func TestMetaPoolCycle(t *testing.T) {
	fake := chaintest.New()
	fake.Handle(poolAddr, "coins(uint256)", indexed(coinA, baseLP))
	fake.Handle(basePool, "coins(uint256)", indexed(coinB, baseLP))
	fake.Return(poolAddr, "base_pool", basePool)
	fake.Return(basePool, "base_pool", poolAddr)

	engine, err := New(testConfig(MethodPoolFixed), amm.Deps{})
	require.NoError(t, err)
	_, _, err = engine.ExpandCoins(context.Background(), fake, poolAddr)
	assert.ErrorIs(t, err, ErrMetaPoolCycle)
}

func TestMetaPoolDepthCap(t *testing.T) {
	fake := chaintest.New()
	chainLen := MaxMetaDepth + 3
	pools := make([]common.Address, chainLen)
	for i := range pools {
		pools[i] = common.BigToAddress(big.NewInt(int64(0x5000 + i)))
	}
	for i, pool := range pools {
		fake.Handle(pool, "coins(uint256)", indexed(coinA, baseLP))
		if i+1 < len(pools) {
			fake.Return(pool, "base_pool", pools[i+1])
		}
	}

	engine, err := New(testConfig(MethodPoolFixed), amm.Deps{})
	require.NoError(t, err)
	_, _, err = engine.ExpandCoins(context.Background(), fake, pools[0])
	assert.ErrorIs(t, err, ErrMetaPoolCycle)
}

func TestNewRejectsBadConfigs(t *testing.T) {
	_, err := New(testConfig("unknown"), amm.Deps{})
	assert.ErrorIs(t, err, amm.ErrUnsupportedVariant)

	cfg := testConfig(MethodDynamicDeposit)
	cfg.ZapWrapper = common.Address{}
	_, err = New(cfg, amm.Deps{})
	assert.ErrorIs(t, err, amm.ErrUnsupportedVariant)
}

func TestFixedPoolBuildSteps(t *testing.T) {
	pool := load(t, MethodFixed, newFixedPool(t, false))
	params := amm.BuildParams{Recipient: user, MinOut: big.NewInt(7)}

	remove, err := pool.BuildRemoveLiquidity(amm.RemoveQuote{Liquidity: e18(3)}, params)
	require.NoError(t, err)
	assert.Equal(t, poolAddr, remove.Target)
	require.NoError(t, remove.Validate())
	got, err := zapstep.ReadWord(remove.Data, remove.Tokens[0].Offset)
	require.NoError(t, err)
	assert.Equal(t, e18(3), got)

	swap, err := pool.BuildSwap(amm.SwapQuote{TokenIn: coinB, TokenOut: coinA, AmountIn: e18(2)}, params)
	require.NoError(t, err)
	assert.Equal(t, zapstep.WordOffset(ExchangeAmountWord), swap.Tokens[0].Offset)
	got, err = zapstep.ReadWord(swap.Data, swap.Tokens[0].Offset)
	require.NoError(t, err)
	assert.Equal(t, e18(2), got)
	index, err := zapstep.ReadWord(swap.Data, zapstep.WordOffset(0))
	require.NoError(t, err)
	assert.Equal(t, int64(1), index.Int64())
}

func TestAmountWordsForEveryMethodType(t *testing.T) {
	coins := []common.Address{coinX, coinY, coinZ}
	amounts := []*big.Int{big.NewInt(1001), big.NewInt(1002), big.NewInt(1003)}
	params := amm.BuildParams{Recipient: user, MinOut: big.NewInt(77)}

	for _, method := range MethodTypes() {
		t.Run(string(method), func(t *testing.T) {
			engine, err := New(testConfig(method), amm.Deps{})
			require.NoError(t, err)
			pool, err := engine.Pool(poolAddr, nil, PoolState{
				LPToken:     baseLP,
				Coins:       coins,
				Basis:       coins,
				Balances:    amounts,
				TotalSupply: e18(1),
			})
			require.NoError(t, err)

			add, err := pool.BuildAddLiquidity(amm.AddQuote{Offered: amounts, Amounts: amounts, Liquidity: big.NewInt(1)}, params)
			require.NoError(t, err)
			require.NoError(t, add.Validate())
			assert.Equal(t, engine.target(poolAddr), add.Target)
			require.Len(t, add.Tokens, len(coins))
			for i, token := range add.Tokens {
				assert.Equal(t, coins[i], token.Token)
				got, err := zapstep.ReadWord(add.Data, token.Offset)
				require.NoError(t, err)
				assert.Equal(t, amounts[i], got, "amount %d", i)
			}

			remove, err := pool.BuildRemoveOne(amm.RemoveQuote{Liquidity: big.NewInt(555)}, coinY, params)
			require.NoError(t, err)
			require.NoError(t, remove.Validate())
			assert.Equal(t, baseLP, remove.Tokens[0].Token)
			got, err := zapstep.ReadWord(remove.Data, remove.Tokens[0].Offset)
			require.NoError(t, err)
			assert.Equal(t, int64(555), got.Int64())
		})
	}
}

func TestUnderlyingSwapsStopAtOneMetaLevel(t *testing.T) {
	engine, err := New(testConfig(MethodPoolFixed), amm.Deps{})
	require.NoError(t, err)
	pool, err := engine.Pool(poolAddr, chaintest.New(), PoolState{
		LPToken:     poolAddr,
		Coins:       []common.Address{coinA, baseLP},
		Basis:       []common.Address{coinA, coinX, coinY},
		TotalSupply: e18(1),
		MetaDepth:   2,
	})
	require.NoError(t, err)
	_, err = pool.QuoteSwapTo(context.Background(), coinA, coinX, e18(1))
	assert.ErrorIs(t, err, amm.ErrUnsupportedVariant)
}
