package config

import "time"

const (
	ChainEthereum uint64 = 1
	ChainPolygon  uint64 = 137
	ChainArbitrum uint64 = 42161

	uniswapV2InitCodeHash = "0x96e8ac4277198ff8b6f785478aa9a39f403cb768dd02cbee326c3e7da348845f"
	sushiswapInitCodeHash = "0xe18a34eb0e04b04f7a0ac29a6e80748dca96319b42c54d679cb821dca90c6303"
	sushiswapRouterL2     = "0x1b02dA8Cb0d097eB8D57A175b88c7D8b47997506"
	sushiswapFactoryL2    = "0xc35DADB65012eC5796536bD9864eD8773aBc74C4"
)

// DefaultConfig returns a mainnet configuration covering Ethereum, Polygon and Arbitrum.
// Contract addresses for the flash loan receiver are deployment specific and left empty.
func DefaultConfig() *Config {
	return &Config{
		Version: CurrentVersion,
		FlashLoan: FlashLoanConfig{
			MaxLoanAmount:       "1000000000000000000000", // base units of the borrowed asset
			MinProfitThreshold:  "10",                     // whole base-token units
			MaxGasPrice:         "200000000000",           // 200 gwei
			SlippageTolerance:   "0.005",
			MaxRetries:          3,
			Network:             "ethereum",
			AutoExecuteFloor:    "50",
			ConfirmationTimeout: Duration{2 * time.Minute},
			MonitorInterval:     Duration{5 * time.Second},
			ErrorBackoff:        Duration{10 * time.Second},
			QueueInterval:       Duration{time.Second},
		},
		Chains: []ChainConfig{
			{
				ID:              ChainEthereum,
				Name:            "ethereum",
				RPCEndpoint:     "https://mainnet.infura.io/v3/",
				NativeCurrency:  "ETH",
				BaseToken:       "USDC",
				Maturity:        0,
				Competition:     3,
				LendingPool:     "0x7d2768dE32b0b80b7a3454c06BdAc94A69DDc7A9",
				QuotesPerSecond: 10,
			},
			{
				ID:              ChainPolygon,
				Name:            "polygon",
				RPCEndpoint:     "https://polygon-rpc.com",
				NativeCurrency:  "MATIC",
				BaseToken:       "USDC",
				Maturity:        1,
				Competition:     2,
				LendingPool:     "0x8dFf5E27EA6b7AC08EbFdf9eB090F32ee9a30fcf",
				QuotesPerSecond: 20,
			},
			{
				ID:              ChainArbitrum,
				Name:            "arbitrum",
				RPCEndpoint:     "https://arb1.arbitrum.io/rpc",
				NativeCurrency:  "ETH",
				BaseToken:       "USDC",
				Maturity:        1,
				Competition:     2,
				QuotesPerSecond: 20,
			},
		},
		DEXes: []DEXConfig{
			{Name: "uniswap", Version: "v2", ChainID: ChainEthereum, Router: "0x7a250d5630B4cF539739dF2C5dAcb4c659F2488D", Factory: "0x5C69bEe701ef814a2B6a3EDD4B1652CB9cc5aA6f", InitCodeHash: uniswapV2InitCodeHash, FeeBps: 30, Weight: "0.6"},
			{Name: "sushiswap", Version: "v2", ChainID: ChainEthereum, Router: "0xd9e1cE17f2641f24aE83637ab66a2cca9C378B9F", Factory: "0xC0AEe478e3658e2610c5F7A4A2E1777cE9e4f2Ac", InitCodeHash: sushiswapInitCodeHash, FeeBps: 30, Weight: "0.4"},
			{Name: "quickswap", Version: "v2", ChainID: ChainPolygon, Router: "0xa5E0829CaCEd8fFDD4De3c43696c57F7D7A678ff", Factory: "0x5757371414417b8C6CAad45bAeF941aBc7d3Ab32", InitCodeHash: uniswapV2InitCodeHash, FeeBps: 30, Weight: "0.7"},
			{Name: "sushiswap", Version: "v2", ChainID: ChainPolygon, Router: sushiswapRouterL2, Factory: sushiswapFactoryL2, InitCodeHash: sushiswapInitCodeHash, FeeBps: 30, Weight: "0.3"},
			{Name: "sushiswap", Version: "v2", ChainID: ChainArbitrum, Router: sushiswapRouterL2, Factory: sushiswapFactoryL2, InitCodeHash: sushiswapInitCodeHash, FeeBps: 30, Weight: "1"},
		},
		Bridges: []BridgeConfig{
			{Name: "stargate", Contract: "0x8731d54E9D02c286767d56ac03e8037C07e01e98", SupportedChains: []uint64{ChainEthereum, ChainPolygon, ChainArbitrum}, Fee: "0.0006", Maturity: 1},
			{Name: "hop", Contract: "0x3666f603Cc164936C1b87e207F36BEBa4AC5f18a", SupportedChains: []uint64{ChainEthereum, ChainPolygon, ChainArbitrum}, Fee: "0.0025", Maturity: 2},
		},
		Tokens: []TokenConfig{
			{Symbol: "USDC", ChainID: ChainEthereum, Address: "0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48", Decimals: 6, Active: true, TradeSize: "10000"},
			{Symbol: "WETH", ChainID: ChainEthereum, Address: "0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2", Decimals: 18, Active: true, TradeSize: "5"},
			{Symbol: "DAI", ChainID: ChainEthereum, Address: "0x6B175474E89094C44Da98b954EedeAC495271d0F", Decimals: 18, Active: true, TradeSize: "10000"},
			{Symbol: "WBTC", ChainID: ChainEthereum, Address: "0x2260FAC5E5542a773Aa44fBCfeDf7C193bc2C599", Decimals: 8, Active: true, TradeSize: "0.25"},
			{Symbol: "USDC", ChainID: ChainPolygon, Address: "0x2791Bca1f2de4661ED88A30C99A7a9449Aa84174", Decimals: 6, Active: true, TradeSize: "10000"},
			{Symbol: "WETH", ChainID: ChainPolygon, Address: "0x7ceB23fD6bC0adD59E62ac25578270cFf1b9f619", Decimals: 18, Active: true, TradeSize: "5"},
			{Symbol: "WMATIC", ChainID: ChainPolygon, Address: "0x0d500B1d8E8eF31E21C99d1Db9A6444d3ADf1270", Decimals: 18},
			{Symbol: "USDC", ChainID: ChainArbitrum, Address: "0xaf88d065e77c8cC2239327C5EDb3A432268e5831", Decimals: 6, Active: true, TradeSize: "10000"},
			{Symbol: "WETH", ChainID: ChainArbitrum, Address: "0x82aF49447D8a07e3bd95BD0d56f35241523fBab1", Decimals: 18, Active: true, TradeSize: "5"},
		},
		Pools: []PoolConfig{
			{DEX: "uniswap", ChainID: ChainEthereum, TokenA: "WETH", TokenB: "USDC"},
			{DEX: "uniswap", ChainID: ChainEthereum, TokenA: "WETH", TokenB: "DAI"},
			{DEX: "uniswap", ChainID: ChainEthereum, TokenA: "USDC", TokenB: "DAI"},
			{DEX: "uniswap", ChainID: ChainEthereum, TokenA: "WBTC", TokenB: "WETH"},
			{DEX: "uniswap", ChainID: ChainEthereum, TokenA: "WBTC", TokenB: "USDC"},
			{DEX: "sushiswap", ChainID: ChainEthereum, TokenA: "WETH", TokenB: "USDC"},
			{DEX: "sushiswap", ChainID: ChainEthereum, TokenA: "WETH", TokenB: "DAI"},
			{DEX: "quickswap", ChainID: ChainPolygon, TokenA: "WETH", TokenB: "USDC"},
			{DEX: "sushiswap", ChainID: ChainPolygon, TokenA: "WETH", TokenB: "USDC"},
			{DEX: "quickswap", ChainID: ChainPolygon, TokenA: "WMATIC", TokenB: "USDC"},
		},
		Tables: TablesConfig{
			CrossChain: []ChainPairConfig{
				{From: ChainEthereum, To: ChainPolygon, GasFactor: "0.002", ExecutionTime: Duration{20 * time.Minute}},
				{From: ChainPolygon, To: ChainEthereum, GasFactor: "0.0015", ExecutionTime: Duration{45 * time.Minute}},
				{From: ChainEthereum, To: ChainArbitrum, GasFactor: "0.002", ExecutionTime: Duration{15 * time.Minute}},
				{From: ChainArbitrum, To: ChainEthereum, GasFactor: "0.001", ExecutionTime: Duration{30 * time.Minute}},
				{From: ChainPolygon, To: ChainArbitrum, GasFactor: "0.0005", ExecutionTime: Duration{10 * time.Minute}},
			},
		},
		Risk: RiskConfig{
			SampleInterval:    Duration{15 * time.Second},
			HistorySize:       100,
			MaxMempoolSize:    100,
			MaxPriceImpact:    "0.01",
			MaxVolatility:     "0.05",
			MaxBlockTime:      Duration{2 * time.Second},
			MaxRouteLegs:      3,
			LiquidityMultiple: 2,
		},
		Scan: ScanConfig{
			Interval:          Duration{30 * time.Second},
			PriceTTL:          Duration{30 * time.Second},
			PriceCacheSize:    1024,
			DirectThreshold:   "30",
			CrossChainMinDiff: "0.01",
			MinConfidence:     70,
			MinProfit:         "0",
			GasCeiling:        500000,
			LiquidityFloor:    "50000",
			// Four legs cost 629k gas, over the ceiling, and the gas and
			// complexity penalties leave 65 < MinConfidence. Raising this
			// only pays together with a higher gas_ceiling.
			MaxHops:           3,
			CrossChainAmount:  "10000",
			PriceRedisPrefix:  "flasharb:prices",
			PriceMaxAge:       Duration{10 * time.Minute},
		},
		Events: EventsConfig{
			BufferSize:  256,
			RedisStream: "flasharb.events",
			KafkaTopic:  "flasharb-events",
		},
		Metrics: MetricsConfig{
			ListenAddr:     ":9090",
			ReportInterval: Duration{time.Minute},
		},
	}
}
