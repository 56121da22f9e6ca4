package gamma

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
	"zapquote/internal/zapstep"
)

var (
	hypervisorAddr = common.HexToAddress("0x1000000000000000000000000000000000000001")
	proxyAddr      = common.HexToAddress("0x1000000000000000000000000000000000000002")
	token0         = common.HexToAddress("0x2000000000000000000000000000000000000001")
	token1         = common.HexToAddress("0x2000000000000000000000000000000000000002")
	user           = common.HexToAddress("0x3000000000000000000000000000000000000001")
)

func e18(v int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(v), big.NewInt(1_000_000_000_000_000_000))
}

// newFakeHypervisor serves a hypervisor at tick 0 holding 100/100 with 200 shares. The
// proxy accepts the opposite token within ±10%.
func newFakeHypervisor(tick int64) *chaintest.Fake {
	fake := chaintest.New()
	fake.Return(hypervisorAddr, "token0", token0)
	fake.Return(hypervisorAddr, "token1", token1)
	fake.Return(hypervisorAddr, "totalSupply", e18(200))
	fake.Return(hypervisorAddr, "getTotalAmounts", e18(100), e18(100))
	fake.Return(hypervisorAddr, "currentTick", big.NewInt(tick))
	fake.Handle(proxyAddr, "getDepositAmount", func(args []interface{}) ([]interface{}, error) {
		amount := args[2].(*big.Int)
		start := new(big.Int).Mul(amount, big.NewInt(9))
		start.Quo(start, big.NewInt(10))
		end := new(big.Int).Mul(amount, big.NewInt(11))
		end.Quo(end, big.NewInt(10))
		return []interface{}{start, end}, nil
	})
	return fake
}

func load(t *testing.T, fake *chaintest.Fake) *Hypervisor {
	t.Helper()
	engine, err := New(model.AmmConfig{ID: "gamma", Family: model.FamilyHypervisor, Proxy: proxyAddr}, amm.Deps{})
	require.NoError(t, err)
	pool, err := engine.Load(context.Background(), fake, hypervisorAddr)
	require.NoError(t, err)
	return pool.(*Hypervisor)
}

func TestPriceAtTickZero(t *testing.T) {
	price, err := PriceAtTick(0)
	require.NoError(t, err)
	assert.Zero(t, Precision.Cmp(price))
}

func TestSharesFormula(t *testing.T) {
	price := new(big.Int).Mul(Precision, big.NewInt(2))
	// 10 + 5·2 = 20 valued in token1, pool worth 100·2 + 100 = 300, 300 shares
	shares, err := Shares(e18(5), e18(10), price, e18(100), e18(100), e18(300))
	require.NoError(t, err)
	assert.Equal(t, e18(20), shares)

	first, err := Shares(e18(5), e18(10), price, new(big.Int), new(big.Int), new(big.Int))
	require.NoError(t, err)
	assert.Equal(t, e18(20), first)
}

func TestFitToBand(t *testing.T) {
	band := func(start, end int64) Band { return Band{Start: e18(start), End: e18(end)} }

	d0, d1, err := FitToBand(e18(10), e18(10), band(9, 11), band(9, 11))
	require.NoError(t, err)
	assert.Equal(t, e18(10), d0)
	assert.Equal(t, e18(10), d1)

	d0, d1, err = FitToBand(e18(10), e18(20), band(9, 11), band(18, 22))
	require.NoError(t, err)
	assert.Equal(t, e18(10), d0)
	assert.Equal(t, e18(10), d1)

	d0, d1, err = FitToBand(e18(10), e18(5), band(9, 11), band(4, 6))
	require.NoError(t, err)
	assert.Equal(t, e18(5), d0)
	assert.Equal(t, e18(5), d1)
}

func TestFitToBandSingleSided(t *testing.T) {
	empty := Band{Start: new(big.Int), End: new(big.Int)}

	d0, d1, err := FitToBand(new(big.Int), e18(10), empty, Band{Start: new(big.Int), End: e18(3)})
	require.NoError(t, err)
	assert.Equal(t, 0, d0.Sign())
	assert.Equal(t, e18(10), d1)

	d0, d1, err = FitToBand(e18(10), new(big.Int), Band{Start: new(big.Int), End: e18(3)}, empty)
	require.NoError(t, err)
	assert.Equal(t, e18(10), d0)
	assert.Equal(t, 0, d1.Sign())

	_, _, err = FitToBand(new(big.Int), e18(10), empty, Band{Start: e18(9), End: e18(11)})
	assert.ErrorIs(t, err, amm.ErrInsufficientLiquidity)

	_, _, err = FitToBand(e18(10), new(big.Int), Band{Start: e18(9), End: e18(11)}, empty)
	assert.ErrorIs(t, err, amm.ErrInsufficientLiquidity)
}

func TestQuoteAddLiquidityToken1Only(t *testing.T) {
	fake := newFakeHypervisor(0)
	// The proxy accepts zero token0 alongside a token1 deposit.
	fake.Handle(proxyAddr, "getDepositAmount", func(args []interface{}) ([]interface{}, error) {
		amount := args[2].(*big.Int)
		end := new(big.Int).Mul(amount, big.NewInt(11))
		end.Quo(end, big.NewInt(10))
		return []interface{}{new(big.Int), end}, nil
	})
	h := load(t, fake)

	quote, err := h.QuoteAddLiquidity(context.Background(), []*big.Int{new(big.Int), e18(10)})
	require.NoError(t, err)
	assert.Equal(t, e18(10), quote.Liquidity)
	assert.Equal(t, 0, quote.Amounts[0].Sign())
	assert.Equal(t, e18(10), quote.Amounts[1])

	_, err = load(t, newFakeHypervisor(0)).QuoteAddLiquidity(context.Background(), []*big.Int{new(big.Int), e18(10)})
	assert.ErrorIs(t, err, amm.ErrInsufficientLiquidity)
}

func TestQuoteAddLiquidity(t *testing.T) {
	h := load(t, newFakeHypervisor(0))
	ctx := context.Background()

	testCases := []struct {
		name     string
		amounts  []*big.Int
		shares   *big.Int
		returned []*big.Int
	}{
		{"in band", []*big.Int{e18(10), e18(10)}, e18(20), []*big.Int{new(big.Int), new(big.Int)}},
		{"token1 above band", []*big.Int{e18(10), e18(20)}, e18(20), []*big.Int{new(big.Int), e18(10)}},
		{"token1 below band", []*big.Int{e18(10), e18(5)}, e18(10), []*big.Int{e18(5), new(big.Int)}},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			quote, err := h.QuoteAddLiquidity(ctx, tc.amounts)
			require.NoError(t, err)
			assert.Equal(t, tc.shares, quote.Liquidity)
			assert.Equal(t, tc.returned, quote.Returned())
		})
	}
}

func TestWithdrawAndSwap(t *testing.T) {
	h := load(t, newFakeHypervisor(0))
	ctx := context.Background()

	remove, err := h.QuoteRemoveLiquidity(ctx, e18(20))
	require.NoError(t, err)
	assert.Equal(t, []*big.Int{e18(10), e18(10)}, remove.Amounts)

	_, err = h.QuoteSwap(ctx, token0, e18(1))
	assert.ErrorIs(t, err, amm.ErrUnsupportedVariant)

	swap, err := h.OptimalSwapAmount(ctx, token0, e18(10))
	require.NoError(t, err)
	assert.Equal(t, e18(5), swap)

	swap, err = h.OptimalSwapAmount(ctx, token1, e18(10))
	require.NoError(t, err)
	assert.Equal(t, e18(5), swap)
}

func TestNegativeTickPricesBelowOne(t *testing.T) {
	h := load(t, newFakeHypervisor(-1000))
	s, err := h.State()
	require.NoError(t, err)
	assert.Equal(t, int32(-1000), s.Tick)
	assert.True(t, s.Price.Cmp(Precision) < 0)
}

func TestBuildSteps(t *testing.T) {
	h := load(t, newFakeHypervisor(0))
	params := amm.BuildParams{Recipient: user}

	deposit, err := h.BuildAddLiquidity(amm.AddQuote{Amounts: []*big.Int{e18(1), e18(2)}}, params)
	require.NoError(t, err)
	require.NoError(t, deposit.Validate())
	assert.Equal(t, proxyAddr, deposit.Target)
	assert.Equal(t, hypervisorAddr, deposit.ApprovalTarget())

	data, err := zapstep.Simulate(deposit, map[common.Address]*big.Int{token0: big.NewInt(3), token1: big.NewInt(4)})
	require.NoError(t, err)
	proxy, err := ProxyABI()
	require.NoError(t, err)
	args, err := proxy.Methods["deposit"].Inputs.Unpack(data[4:])
	require.NoError(t, err)
	assert.Equal(t, big.NewInt(3), args[0].(*big.Int))
	assert.Equal(t, big.NewInt(4), args[1].(*big.Int))
	assert.Equal(t, hypervisorAddr, args[3].(common.Address))

	withdraw, err := h.BuildRemoveLiquidity(amm.RemoveQuote{Liquidity: e18(1)}, params)
	require.NoError(t, err)
	assert.Equal(t, hypervisorAddr, withdraw.Target)
	assert.Equal(t, []zapstep.StepToken{zapstep.Patched(hypervisorAddr, 0)}, withdraw.Tokens)
}
