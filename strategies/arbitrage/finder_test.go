package arbitrage

import (
	"context"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/michaelpento.lv/flasharb/config"
	"github.com/michaelpento.lv/flasharb/dex"
	"github.com/michaelpento.lv/flasharb/gas"
	"github.com/michaelpento.lv/flasharb/price"
	"github.com/michaelpento.lv/flasharb/types"
	"github.com/michaelpento.lv/flasharb/utils/testutils"
)

const chainID = uint64(1)

var (
	usdc = common.HexToAddress("0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48")
	weth = common.HexToAddress("0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2")
	dai  = common.HexToAddress("0x6B175474E89094C44Da98b954EedeAC495271d0F")
)

type fixedGas struct{ price *big.Int }

func (g fixedGas) GasPrice(ctx context.Context) (*big.Int, error) { return g.price, nil }

type clock struct{ t time.Time }

func (c *clock) now() time.Time { return c.t }

func testRegistry(t *testing.T, pools []config.PoolConfig) *config.Registry {
	t.Helper()
	cfg := &config.Config{
		Chains: []config.ChainConfig{{ID: chainID, Name: "ethereum", NativeCurrency: "ETH", BaseToken: "USDC"}},
		DEXes: []config.DEXConfig{
			{Name: "uniswap", ChainID: chainID, Weight: "0.5"},
			{Name: "sushiswap", ChainID: chainID, Weight: "0.5"},
		},
		Tokens: []config.TokenConfig{
			{Symbol: "USDC", ChainID: chainID, Address: usdc.Hex(), Decimals: 6, Active: true, TradeSize: "10000"},
			{Symbol: "WETH", ChainID: chainID, Address: weth.Hex(), Decimals: 18, Active: true, TradeSize: "5"},
			{Symbol: "DAI", ChainID: chainID, Address: dai.Hex(), Decimals: 18, Active: true, TradeSize: "10000"},
		},
		Pools: pools,
	}
	reg, err := cfg.Registry()
	require.NoError(t, err)
	return reg
}

func testSettings(c *clock) Settings {
	return Settings{
		ChainID:            chainID,
		ScanInterval:       30 * time.Second,
		DirectThresholdBps: decimal.NewFromInt(DefaultThresholdBps),
		MinConfidence:      DefaultConfidence,
		MinProfit:          decimal.Zero,
		GasCeiling:         DefaultGasCeiling,
		LiquidityFloor:     decimal.NewFromInt(50000),
		Now:                c.now,
	}
}

func units(n int64, decimals uint8) *big.Int {
	return testutils.Units(n, decimals)
}

// directFixture prices WETH at 2000 on uniswap and sellPrice (in USDC base
// units per WETH) on sushiswap, both fee free with 10k WETH of depth.
func directFixture(t *testing.T, sellPrice *big.Int, gasPricer GasPricer) (*Finder, *testutils.FakeExchange, *testutils.FakeExchange, *clock) {
	t.Helper()
	reg := testRegistry(t, []config.PoolConfig{
		{DEX: "uniswap", ChainID: chainID, TokenA: "WETH", TokenB: "USDC"},
		{DEX: "sushiswap", ChainID: chainID, TokenA: "WETH", TokenB: "USDC"},
	})

	uni := testutils.NewFakeExchange("uniswap", chainID, 0)
	sushi := testutils.NewFakeExchange("sushiswap", chainID, 0)

	uni.SetQuote(weth, units(2000, 6))
	uni.SetReserves(weth, usdc, units(10000, 18), new(big.Int).Mul(units(2000, 6), big.NewInt(10000)))
	sushi.SetQuote(weth, sellPrice)
	sushi.SetReserves(weth, usdc, units(10000, 18), new(big.Int).Mul(sellPrice, big.NewInt(10000)))

	agg, err := price.NewAggregator(reg, []dex.Exchange{uni, sushi}, price.Options{}, zaptest.NewLogger(t), nil)
	require.NoError(t, err)

	c := &clock{t: time.Unix(1700000000, 0)}
	f := NewFinder(testSettings(c), reg, agg, gasPricer, zaptest.NewLogger(t), nil)
	return f, uni, sushi, c
}

func TestDirectThresholdBoundary(t *testing.T) {
	t.Run("exactly 30 bps is excluded", func(t *testing.T) {
		f, _, _, _ := directFixture(t, big.NewInt(2006_000000), nil)
		opps, err := f.ScanAllOpportunities(context.Background())
		require.NoError(t, err)
		assert.Empty(t, opps)
	})

	t.Run("31 bps is included", func(t *testing.T) {
		f, _, _, _ := directFixture(t, big.NewInt(2006_200000), nil)
		opps, err := f.ScanAllOpportunities(context.Background())
		require.NoError(t, err)
		require.Len(t, opps, 1)

		o := opps[0]
		assert.Equal(t, types.KindDirect, o.Kind)
		assert.True(t, o.PriceDiffBps.Equal(decimal.NewFromInt(31)), o.PriceDiffBps.String())
		require.NoError(t, o.Validate())
		assert.Equal(t, usdc, o.Asset)
		assert.Equal(t, units(10000, 6), o.Amount)

		// cheaper DEX buys first
		assert.Equal(t, "uniswap", o.Trades[0].DEX)
		assert.Equal(t, weth, o.Trades[0].ToToken)
		assert.Equal(t, "sushiswap", o.Trades[1].DEX)
		assert.Equal(t, usdc, o.Trades[1].ToToken)

		assert.Positive(t, o.ExpectedProfit.Sign())
		assert.Equal(t, 100, o.Confidence)
		assert.Equal(t, uint64(325000), o.GasEstimate)
		assert.NotEmpty(t, o.ID)
	})
}

func TestScanIdempotentWithinInterval(t *testing.T) {
	f, uni, sushi, c := directFixture(t, big.NewInt(2006_200000), nil)
	ctx := context.Background()

	first, err := f.ScanAllOpportunities(ctx)
	require.NoError(t, err)
	calls := uni.Calls() + sushi.Calls()

	c.t = c.t.Add(29 * time.Second)
	second, err := f.ScanAllOpportunities(ctx)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, calls, uni.Calls()+sushi.Calls(), "no DEX may be queried inside the scan interval")

	c.t = c.t.Add(2 * time.Second)
	_, err = f.ScanAllOpportunities(ctx)
	require.NoError(t, err)
	assert.Greater(t, uni.Calls()+sushi.Calls(), calls)
}

func TestGasCostReducesProfit(t *testing.T) {
	free, _, _, _ := directFixture(t, big.NewInt(2006_200000), nil)
	paid, _, _, _ := directFixture(t, big.NewInt(2006_200000), fixedGas{price: big.NewInt(10e9)})

	a, err := free.ScanAllOpportunities(context.Background())
	require.NoError(t, err)
	b, err := paid.ScanAllOpportunities(context.Background())
	require.NoError(t, err)
	require.Len(t, a, 1)
	require.Len(t, b, 1)

	assert.Zero(t, a[0].GasCost.Sign())
	assert.Positive(t, b[0].GasCost.Sign())
	assert.Equal(t, new(big.Int).Sub(a[0].ExpectedProfit, b[0].GasCost), b[0].ExpectedProfit)
}

func TestFindOptimalRoute(t *testing.T) {
	f, _, _, _ := directFixture(t, big.NewInt(2006_200000), nil)
	ctx := context.Background()

	route, err := f.FindOptimalRoute(ctx, usdc, units(10000, 6))
	require.NoError(t, err)
	require.NotNil(t, route)
	assert.Equal(t, usdc, route.Asset)

	route, err = f.FindOptimalRoute(ctx, usdc, units(5000, 6))
	require.NoError(t, err)
	assert.Nil(t, route)

	route, err = f.FindOptimalRoute(ctx, weth, units(10000, 6))
	require.NoError(t, err)
	assert.Nil(t, route)
}

func TestTriangularPass(t *testing.T) {
	reg := testRegistry(t, []config.PoolConfig{
		{DEX: "uniswap", ChainID: chainID, TokenA: "WETH", TokenB: "USDC"},
		{DEX: "uniswap", ChainID: chainID, TokenA: "WETH", TokenB: "DAI"},
		{DEX: "uniswap", ChainID: chainID, TokenA: "USDC", TokenB: "DAI"},
	})

	uni := testutils.NewFakeExchange("uniswap", chainID, 30)
	// WETH is 2000 USDC but 2100 DAI while DAI trades at par
	uni.SetReserves(weth, usdc, units(1000, 18), units(2_000_000, 6))
	uni.SetReserves(weth, dai, units(1000, 18), units(2_100_000, 18))
	uni.SetReserves(usdc, dai, units(1_000_000, 6), units(1_000_000, 18))

	agg, err := price.NewAggregator(reg, []dex.Exchange{uni}, price.Options{}, zaptest.NewLogger(t), nil)
	require.NoError(t, err)

	c := &clock{t: time.Unix(1700000000, 0)}
	f := NewFinder(testSettings(c), reg, agg, nil, zaptest.NewLogger(t), nil)

	opps, err := f.ScanAllOpportunities(context.Background())
	require.NoError(t, err)
	require.Len(t, opps, 1)

	o := opps[0]
	assert.Equal(t, types.KindTriangular, o.Kind)
	require.NoError(t, o.Validate())
	require.Len(t, o.Trades, 3)
	assert.Equal(t, usdc, o.Asset)
	assert.Equal(t, weth, o.Trades[0].ToToken)
	assert.Equal(t, dai, o.Trades[1].ToToken)
	assert.Equal(t, usdc, o.Trades[2].ToToken)
	assert.True(t, o.Trades[2].ExpectedAmountOut.Cmp(o.Amount) > 0)
	assert.True(t, o.PriceDiffBps.IsPositive())
	assert.Equal(t, uint64(477000), o.GasEstimate)
}

func TestIsTriangle(t *testing.T) {
	ab := types.Pool{DEX: "uniswap", TokenA: usdc, TokenB: weth}
	abSushi := types.Pool{DEX: "sushiswap", TokenA: weth, TokenB: usdc}
	bc := types.Pool{DEX: "uniswap", TokenA: weth, TokenB: dai}
	ca := types.Pool{DEX: "uniswap", TokenA: dai, TokenB: usdc}

	assert.True(t, IsTriangle([3]types.Pool{ab, bc, ca}))
	assert.True(t, IsTriangle([3]types.Pool{abSushi, bc, ca}))
	assert.False(t, IsTriangle([3]types.Pool{ab, abSushi, bc}))
	assert.False(t, IsTriangle([3]types.Pool{ab, abSushi, ab}))
}

func TestOrientTriangle(t *testing.T) {
	tri := [3]types.Pool{
		{DEX: "uniswap", TokenA: usdc, TokenB: weth},
		{DEX: "uniswap", TokenA: weth, TokenB: dai},
		{DEX: "uniswap", TokenA: dai, TokenB: usdc},
	}
	cycles := orientTriangle(tri, usdc)
	require.Len(t, cycles, 2)
	for _, c := range cycles {
		require.Len(t, c, 3)
		assert.Equal(t, usdc, c[0].from)
		assert.Equal(t, usdc, c[2].to)
		assert.Equal(t, c[0].to, c[1].from)
		assert.Equal(t, c[1].to, c[2].from)
	}
	assert.NotEqual(t, cycles[0][0].to, cycles[1][0].to)
}

func TestCycles(t *testing.T) {
	wbtc := common.HexToAddress("0x2260FAC5E5542a773Aa44fBCfeDf7C193bc2C599")
	pools := []types.Pool{
		{DEX: "uniswap", TokenA: usdc, TokenB: weth},
		{DEX: "uniswap", TokenA: weth, TokenB: wbtc},
		{DEX: "uniswap", TokenA: wbtc, TokenB: dai},
		{DEX: "uniswap", TokenA: dai, TokenB: usdc},
		{DEX: "uniswap", TokenA: weth, TokenB: dai},
	}

	four := Cycles(pools, usdc, 4, 4)
	// usdc-weth-wbtc-dai-usdc in both directions
	require.Len(t, four, 2)
	for _, c := range four {
		assert.Len(t, c, 4)
		assert.Equal(t, usdc, c[0].from)
		assert.Equal(t, usdc, c[len(c)-1].to)
	}

	assert.Empty(t, Cycles(pools, usdc, 4, 3))
	// the weth-dai shortcut gives triangles only
	assert.Len(t, Cycles(pools, usdc, 3, 3), 2)
}

func TestConfidence(t *testing.T) {
	leg := &types.Trade{}
	tests := []struct {
		name string
		legs int
		gas  uint64
		thin int
		want int
	}{
		{"clean", 2, 325000, 0, 100},
		{"heavy gas", 2, 600000, 0, 80},
		{"four legs", 4, 400000, 0, 85},
		{"one thin leg", 2, 325000, 1, 90},
		{"everything", 4, 629000, 4, 25},
		{"clamped", 12, 2000000, 12, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := &types.ArbitrageOpportunity{GasEstimate: tt.gas}
			for i := 0; i < tt.legs; i++ {
				o.Trades = append(o.Trades, leg)
			}
			thin := 0
			got := Confidence(o, DefaultGasCeiling, func(*types.Trade) bool {
				thin++
				return thin <= tt.thin
			})
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDefaultSettingsDisableMultiHop(t *testing.T) {
	sc := config.DefaultConfig().Scan
	assert.Equal(t, 3, sc.MaxHops)

	o := &types.ArbitrageOpportunity{}
	for i := 0; i < 4; i++ {
		o.Trades = append(o.Trades, &types.Trade{})
	}
	o.GasEstimate = gas.EstimateArbitrageGas(o.Legs())
	score := Confidence(o, sc.GasCeiling, func(*types.Trade) bool { return false })
	assert.Less(t, score, sc.MinConfidence, "a four leg route cannot pass the default confidence floor")

	settings, err := SettingsFromConfig(chainID, &sc)
	require.NoError(t, err)
	f := NewFinder(settings, nil, nil, nil, zaptest.NewLogger(t), nil)
	for _, p := range f.passes {
		_, multi := p.(*MultiHopPass)
		assert.False(t, multi)
	}
}

func TestOpportunityIDStable(t *testing.T) {
	o := &types.ArbitrageOpportunity{
		ChainID: chainID,
		Kind:    types.KindDirect,
		Amount:  big.NewInt(100),
		Trades: []*types.Trade{
			{DEX: "uniswap", FromToken: usdc, ToToken: weth},
			{DEX: "sushiswap", FromToken: weth, ToToken: usdc},
		},
	}
	id := OpportunityID(o)
	assert.Len(t, id, 16)
	assert.Equal(t, id, OpportunityID(o))

	o.Trades[0].DEX = "sushiswap"
	assert.NotEqual(t, id, OpportunityID(o))
}
