package balancer

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"zapquote/internal/amm"
	"zapquote/internal/chain/chaintest"
	"zapquote/internal/model"
	"zapquote/internal/zapstep"
)

var (
	poolAddr    = common.HexToAddress("0x1000000000000000000000000000000000000001")
	vaultAddr   = common.HexToAddress("0x1000000000000000000000000000000000000002")
	queriesAddr = common.HexToAddress("0x1000000000000000000000000000000000000003")
	tokenA      = common.HexToAddress("0x2000000000000000000000000000000000000001")
	tokenB      = common.HexToAddress("0x2000000000000000000000000000000000000002")
	router      = common.HexToAddress("0x3000000000000000000000000000000000000001")
	user        = common.HexToAddress("0x3000000000000000000000000000000000000002")
	poolID      = [32]byte{0xaa, 0xbb}
)

func e18(v int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(v), big.NewInt(1_000_000_000_000_000_000))
}

func testConfig(poolType model.VaultPoolType) model.AmmConfig {
	return model.AmmConfig{
		ID:            "vault",
		ChainID:       1,
		Family:        model.FamilyVault,
		Vault:         vaultAddr,
		Queries:       queriesAddr,
		VaultPoolType: poolType,
	}
}

func joinRequest(t *testing.T, arg interface{}) *JoinPoolRequest {
	t.Helper()
	req, ok := abi.ConvertType(arg, new(JoinPoolRequest)).(*JoinPoolRequest)
	require.True(t, ok)
	return req
}

func exitRequest(t *testing.T, arg interface{}) *ExitPoolRequest {
	t.Helper()
	req, ok := abi.ConvertType(arg, new(ExitPoolRequest)).(*ExitPoolRequest)
	require.True(t, ok)
	return req
}

func ceilDiv(a, b *big.Int) *big.Int {
	q, r := new(big.Int).QuoRem(a, b, new(big.Int))
	if r.Sign() > 0 {
		q.Add(q, big.NewInt(1))
	}
	return q
}

// newFakeVault serves a pool with balances 1000/2000 and a supply of 1000.
func newFakeVault(t *testing.T, poolType model.VaultPoolType) *chaintest.Fake {
	fake := chaintest.New()
	fake.Return(poolAddr, "getPoolId", poolID)
	fake.Return(poolAddr, "totalSupply", e18(1000))
	fake.Return(poolAddr, "getActualSupply", e18(1000))
	fake.Return(poolAddr, "getSwapFeePercentage", big.NewInt(3_000_000_000_000_000))
	fake.Return(poolAddr, "getNormalizedWeights", []*big.Int{e18(1), e18(1)})
	fake.Return(poolAddr, "getTokenRates", e18(1), e18(1))
	for _, token := range []common.Address{tokenA, tokenB} {
		fake.Return(token, "decimals", uint8(18))
		fake.Return(token, "symbol", "TKN")
		fake.Return(token, "name", "Token")
	}

	if poolType == model.VaultPoolComposableStable {
		fake.Return(poolAddr, "getScalingFactors", []*big.Int{e18(1), e18(1), e18(1)})
		fake.Return(poolAddr, "getBptIndex", big.NewInt(1))
		fake.Return(vaultAddr, "getPoolTokens",
			[]common.Address{tokenA, poolAddr, tokenB},
			[]*big.Int{e18(1000), e18(1_000_000), e18(2000)},
			big.NewInt(1),
		)
	} else {
		fake.Return(poolAddr, "getScalingFactors", []*big.Int{e18(1), e18(1)})
		fake.Return(vaultAddr, "getPoolTokens",
			[]common.Address{tokenA, tokenB},
			[]*big.Int{e18(1000), e18(2000)},
			big.NewInt(1),
		)
	}

	fake.Handle(queriesAddr, "queryJoin", func(args []interface{}) ([]interface{}, error) {
		req := joinRequest(t, args[3])
		switch poolType {
		case model.VaultPoolGyro:
			decoded, err := kindAmountArgs.Unpack(req.UserData)
			if err != nil {
				return nil, err
			}
			bpt := decoded[1].(*big.Int)
			amounts := []*big.Int{
				ceilDiv(new(big.Int).Mul(e18(1000), bpt), e18(1000)),
				ceilDiv(new(big.Int).Mul(e18(2000), bpt), e18(1000)),
			}
			// the pool rounds against the first candidate
			if bpt.Cmp(e18(10)) == 0 {
				amounts[0].Add(amounts[0], big.NewInt(1))
			}
			return []interface{}{bpt, amounts}, nil
		default:
			decoded, err := exactTokensInArgs.Unpack(req.UserData)
			if err != nil {
				return nil, err
			}
			in := decoded[1].([]*big.Int)
			total := new(big.Int)
			for _, a := range in {
				total.Add(total, a)
			}
			amounts := append([]*big.Int(nil), req.MaxAmountsIn...)
			return []interface{}{total, amounts}, nil
		}
	})
	fake.Handle(queriesAddr, "queryExit", func(args []interface{}) ([]interface{}, error) {
		req := exitRequest(t, args[3])
		decoded, err := kindAmountArgs.Unpack(req.UserData)
		if err != nil {
			return nil, err
		}
		bpt := decoded[1].(*big.Int)
		if poolType == model.VaultPoolComposableStable {
			if decoded[0].(*big.Int).Int64() != ExitExactBPTInForAllTokensOut {
				return nil, errors.New("wrong exit kind")
			}
			return []interface{}{bpt, []*big.Int{bpt, new(big.Int), new(big.Int).Mul(bpt, big.NewInt(2))}}, nil
		}
		return []interface{}{bpt, []*big.Int{bpt, new(big.Int).Mul(bpt, big.NewInt(2))}}, nil
	})
	fake.Handle(queriesAddr, "queryBatchSwap", func(args []interface{}) ([]interface{}, error) {
		assets := args[2].([]common.Address)
		amount := new(big.Int)
		steps := abi.ConvertType(args[1], new([]BatchSwapStep)).(*[]BatchSwapStep)
		amount.Set((*steps)[0].Amount)
		out := new(big.Int).Mul(amount, big.NewInt(198))
		out.Quo(out, big.NewInt(100))
		if assets[0] == tokenB {
			out = new(big.Int).Quo(amount, big.NewInt(2))
		}
		return []interface{}{[]*big.Int{amount, out.Neg(out)}}, nil
	})
	return fake
}

func load(t *testing.T, poolType model.VaultPoolType) (*VaultPool, *chaintest.Fake) {
	t.Helper()
	fake := newFakeVault(t, poolType)
	engine, err := New(testConfig(poolType), amm.Deps{})
	require.NoError(t, err)
	pool, err := engine.Load(context.Background(), fake, poolAddr)
	require.NoError(t, err)
	return pool.(*VaultPool), fake
}

func TestLoadComposableDropsPoolToken(t *testing.T) {
	pool, _ := load(t, model.VaultPoolComposableStable)
	assert.Equal(t, []common.Address{tokenA, tokenB}, pool.Tokens())

	s, err := pool.State()
	require.NoError(t, err)
	assert.Equal(t, 1, s.BptIndex)
	assert.Equal(t, poolID, s.PoolID)
	assert.Len(t, s.ScalingFactors, 3)
}

func TestUnknownPoolType(t *testing.T) {
	_, err := New(testConfig("linear"), amm.Deps{})
	assert.ErrorIs(t, err, amm.ErrUnsupportedVariant)
}

func TestWeightedJoinAndExit(t *testing.T) {
	pool, _ := load(t, model.VaultPoolWeighted)
	ctx := context.Background()

	add, err := pool.QuoteAddLiquidity(ctx, []*big.Int{e18(5), new(big.Int)})
	require.NoError(t, err)
	assert.Equal(t, e18(5), add.Liquidity)
	assert.Equal(t, e18(5), add.Amounts[0])

	remove, err := pool.QuoteRemoveLiquidity(ctx, e18(3))
	require.NoError(t, err)
	assert.Equal(t, []*big.Int{e18(3), e18(6)}, remove.Amounts)

	swap, err := pool.OptimalSwapAmount(ctx, tokenA, e18(10))
	require.NoError(t, err)
	assert.Zero(t, swap.Sign(), "weighted pools join single sided")
}

func TestComposableJoinSkipsPoolTokenSlot(t *testing.T) {
	pool, fake := load(t, model.VaultPoolComposableStable)
	ctx := context.Background()

	add, err := pool.QuoteAddLiquidity(ctx, []*big.Int{e18(1), e18(2)})
	require.NoError(t, err)
	assert.Equal(t, e18(3), add.Liquidity)
	assert.Equal(t, []*big.Int{e18(1), e18(2)}, add.Amounts)

	calls := fake.Calls()
	last := calls[len(calls)-1]
	req := joinRequest(t, last.Args[3])
	require.Len(t, req.MaxAmountsIn, 3)
	assert.Zero(t, req.MaxAmountsIn[1].Sign())

	remove, err := pool.QuoteRemoveLiquidity(ctx, e18(4))
	require.NoError(t, err)
	assert.Equal(t, []*big.Int{e18(4), e18(8)}, remove.Amounts)
}

func TestSwapThroughQueries(t *testing.T) {
	pool, _ := load(t, model.VaultPoolWeighted)
	quote, err := pool.QuoteSwap(context.Background(), tokenA, e18(1))
	require.NoError(t, err)
	assert.Equal(t, tokenB, quote.TokenOut)
	assert.Equal(t, "1980000000000000000", quote.AmountOut.String())

	_, err = pool.QuoteSwap(context.Background(), user, e18(1))
	assert.ErrorIs(t, err, amm.ErrTokenMismatch)
}

func TestGyroSearchStepsDownUntilQueryFits(t *testing.T) {
	pool, _ := load(t, model.VaultPoolGyro)

	add, err := pool.QuoteAddLiquidity(context.Background(), []*big.Int{e18(10), e18(30)})
	require.NoError(t, err)
	want := new(big.Int).Sub(e18(10), big.NewInt(1))
	assert.Equal(t, want, add.Liquidity)
	assert.True(t, add.Amounts[0].Cmp(e18(10)) <= 0)
	assert.True(t, add.Amounts[1].Cmp(e18(30)) <= 0)
	assert.Equal(t, new(big.Int).Sub(e18(20), big.NewInt(2)), add.Amounts[1])
}

func TestGyroBelowMinimumAdd(t *testing.T) {
	pool, _ := load(t, model.VaultPoolGyro)

	_, err := pool.QuoteAddLiquidity(context.Background(), []*big.Int{big.NewInt(1), big.NewInt(1)})
	assert.ErrorIs(t, err, amm.ErrInsufficientLiquidity)
}

func TestGyroEstimateAndLocalAmounts(t *testing.T) {
	balances := []*big.Int{e18(1000), e18(2000)}
	factors := []*big.Int{e18(1), e18(1)}

	bpt, err := GyroEstimate(balances, factors, []*big.Int{e18(10), e18(30)}, e18(1000))
	require.NoError(t, err)
	assert.Equal(t, e18(10), bpt)

	amounts, err := GyroAmountsIn(balances, factors, e18(1000), bpt)
	require.NoError(t, err)
	assert.Equal(t, []*big.Int{e18(10), e18(20)}, amounts)
}

func TestGyroOptimalSwap(t *testing.T) {
	pool, _ := load(t, model.VaultPoolGyro)

	swap, err := pool.OptimalSwapAmount(context.Background(), tokenA, e18(100))
	require.NoError(t, err)
	// 100·2000·50 / (2000·50 + 99·1000)
	assert.Equal(t, "50251256281407035175", swap.String())
}

func TestBuildStepsPatchTheEncodedAmounts(t *testing.T) {
	pool, _ := load(t, model.VaultPoolComposableStable)
	vault, err := VaultABI()
	require.NoError(t, err)
	params := amm.BuildParams{Recipient: user, Sender: router}

	t.Run("join", func(t *testing.T) {
		step, err := pool.BuildAddLiquidity(amm.AddQuote{Amounts: []*big.Int{e18(1), e18(2)}, Liquidity: e18(3)}, params)
		require.NoError(t, err)
		require.NoError(t, step.Validate())
		assert.Equal(t, vaultAddr, step.Target)

		data, err := zapstep.Simulate(step, map[common.Address]*big.Int{tokenA: big.NewInt(111), tokenB: big.NewInt(222)})
		require.NoError(t, err)
		args, err := vault.Methods["joinPool"].Inputs.Unpack(data[4:])
		require.NoError(t, err)
		assert.Equal(t, router, args[1].(common.Address))
		req := joinRequest(t, args[3])
		decoded, err := exactTokensInArgs.Unpack(req.UserData)
		require.NoError(t, err)
		assert.Equal(t, []*big.Int{big.NewInt(111), big.NewInt(222)}, decoded[1].([]*big.Int))
	})

	t.Run("exit", func(t *testing.T) {
		step, err := pool.BuildRemoveLiquidity(amm.RemoveQuote{Liquidity: e18(3)}, params)
		require.NoError(t, err)
		data, err := zapstep.Simulate(step, map[common.Address]*big.Int{poolAddr: big.NewInt(777)})
		require.NoError(t, err)
		args, err := vault.Methods["exitPool"].Inputs.Unpack(data[4:])
		require.NoError(t, err)
		decoded, err := kindAmountArgs.Unpack(exitRequest(t, args[3]).UserData)
		require.NoError(t, err)
		assert.Equal(t, int64(ExitExactBPTInForAllTokensOut), decoded[0].(*big.Int).Int64())
		assert.Equal(t, big.NewInt(777), decoded[1].(*big.Int))
	})

	t.Run("swap", func(t *testing.T) {
		quote := amm.SwapQuote{TokenIn: tokenA, TokenOut: tokenB, AmountIn: e18(1), AmountOut: e18(2)}
		step, err := pool.BuildSwap(quote, params)
		require.NoError(t, err)
		data, err := zapstep.Simulate(step, map[common.Address]*big.Int{tokenA: big.NewInt(5)})
		require.NoError(t, err)
		args, err := vault.Methods["swap"].Inputs.Unpack(data[4:])
		require.NoError(t, err)
		single, ok := abi.ConvertType(args[0], new(SingleSwap)).(*SingleSwap)
		require.True(t, ok)
		assert.Equal(t, big.NewInt(5), single.Amount)
	})
}

func TestGyroJoinPatchesLimits(t *testing.T) {
	pool, _ := load(t, model.VaultPoolGyro)
	vault, err := VaultABI()
	require.NoError(t, err)

	step, err := pool.BuildAddLiquidity(amm.AddQuote{Amounts: []*big.Int{e18(1), e18(2)}, Liquidity: e18(1)}, amm.BuildParams{Recipient: user})
	require.NoError(t, err)
	data, err := zapstep.Simulate(step, map[common.Address]*big.Int{tokenA: big.NewInt(9), tokenB: big.NewInt(8)})
	require.NoError(t, err)
	args, err := vault.Methods["joinPool"].Inputs.Unpack(data[4:])
	require.NoError(t, err)
	req := joinRequest(t, args[3])
	assert.Equal(t, []*big.Int{big.NewInt(9), big.NewInt(8)}, req.MaxAmountsIn)
	decoded, err := kindAmountArgs.Unpack(req.UserData)
	require.NoError(t, err)
	assert.Equal(t, int64(JoinAllTokensInForExactBPTOut), decoded[0].(*big.Int).Int64())
}

// largeGyroPool serves joins with the same rounding the pool applies, over a supply of 1e24
// and balances of 1e24 and 1.3e24, one token carrying a rate.
func largeGyroPool(t *testing.T) (*VaultPool, VaultState) {
	t.Helper()
	s := VaultState{
		PoolType:       model.VaultPoolGyro,
		PoolID:         poolID,
		PoolTokens:     []common.Address{tokenA, tokenB},
		Balances:       []*big.Int{e18(1_000_000), e18(1_300_000)},
		ScalingFactors: []*big.Int{e18(1), big.NewInt(1_050_000_000_000_000_000)},
		TotalSupply:    e18(1_000_000),
		SwapFee:        big.NewInt(1_000_000_000_000_000),
		BptIndex:       -1,
	}
	fake := chaintest.New()
	fake.Handle(queriesAddr, "queryJoin", func(args []interface{}) ([]interface{}, error) {
		req := joinRequest(t, args[3])
		decoded, err := kindAmountArgs.Unpack(req.UserData)
		if err != nil {
			return nil, err
		}
		bpt := decoded[1].(*big.Int)
		amounts, err := GyroAmountsIn(s.Balances, s.ScalingFactors, s.TotalSupply, bpt)
		if err != nil {
			return nil, err
		}
		return []interface{}{bpt, amounts}, nil
	})
	engine, err := New(testConfig(model.VaultPoolGyro), amm.Deps{})
	require.NoError(t, err)
	return engine.Pool(poolAddr, fake, s), s
}

func TestGyroJoinAtRealisticScale(t *testing.T) {
	pool, s := largeGyroPool(t)
	one := big.NewInt(1)

	for i := int64(1); i <= 20; i++ {
		offered := []*big.Int{e18(1000 * i), e18(2000 * i)}
		add, err := pool.QuoteAddLiquidity(context.Background(), offered)
		require.NoError(t, err, "deposit %d", i)
		require.True(t, add.Liquidity.Sign() > 0)
		for j := range offered {
			assert.True(t, add.Amounts[j].Cmp(offered[j]) <= 0, "deposit %d token %d", i, j)
		}

		// one more unit of BPT no longer fits
		next, err := GyroAmountsIn(s.Balances, s.ScalingFactors, s.TotalSupply, new(big.Int).Add(add.Liquidity, one))
		require.NoError(t, err)
		assert.False(t, fits(next, offered), "deposit %d is not the largest join", i)
	}
}

func TestGyroEstimateIsTightBound(t *testing.T) {
	_, s := largeGyroPool(t)
	offered := []*big.Int{e18(777), big.NewInt(123_456_789_123_456_789)}

	bpt, err := GyroEstimate(s.Balances, s.ScalingFactors, offered, s.TotalSupply)
	require.NoError(t, err)
	amounts, err := GyroAmountsIn(s.Balances, s.ScalingFactors, s.TotalSupply, bpt)
	require.NoError(t, err)
	assert.True(t, fits(amounts, offered))

	over, err := GyroAmountsIn(s.Balances, s.ScalingFactors, s.TotalSupply, new(big.Int).Add(bpt, big.NewInt(1)))
	require.NoError(t, err)
	assert.False(t, fits(over, offered))
}
