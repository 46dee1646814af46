package cmd

import (
	"bytes"
	"errors"
	"math/big"
	"path/filepath"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/michaelpento.lv/flasharb/config"
	"github.com/michaelpento.lv/flasharb/multichain"
	"github.com/michaelpento.lv/flasharb/types"
)

func testRegistry(t *testing.T) *config.Registry {
	t.Helper()
	registry, err := config.DefaultConfig().Registry()
	require.NoError(t, err)
	return registry
}

func TestResolveToken(t *testing.T) {
	registry := testRegistry(t)

	weth, err := resolveToken(registry, config.ChainEthereum, "weth")
	require.NoError(t, err)
	assert.Equal(t, "WETH", weth.Symbol)

	byAddr, err := resolveToken(registry, config.ChainEthereum, weth.Address.Hex())
	require.NoError(t, err)
	assert.Equal(t, weth.Address, byAddr.Address)

	_, err = resolveToken(registry, config.ChainEthereum, "NOPE")
	assert.True(t, errors.Is(err, types.ErrConfiguration))
	_, err = resolveToken(registry, config.ChainEthereum, "0x0000000000000000000000000000000000000001")
	assert.True(t, errors.Is(err, types.ErrConfiguration))
}

func TestChainByName(t *testing.T) {
	registry := testRegistry(t)
	ch := chainByName(registry, "Polygon")
	require.NotNil(t, ch)
	assert.Equal(t, config.ChainPolygon, ch.ID)
	assert.Nil(t, chainByName(registry, "solana"))
}

func TestAmount(t *testing.T) {
	assert.Equal(t, "1,234.5", amount(big.NewInt(1_234_500_000), 6))
	assert.Equal(t, "-", amount(nil, 18))
}

func TestPrintScan(t *testing.T) {
	registry := testRegistry(t)
	weth := registry.TokenBySymbol(config.ChainEthereum, "WETH")
	require.NotNil(t, weth)

	res := &multichain.ScanResult{
		SameChain: []*types.ArbitrageOpportunity{{
			ID:             "abc",
			ChainID:        config.ChainEthereum,
			Kind:           types.KindDirect,
			Asset:          weth.Address,
			Amount:         new(big.Int).Mul(big.NewInt(5), weth.Unit()),
			ExpectedProfit: big.NewInt(2e16),
			ProfitValue:    decimal.NewFromInt(60),
			Confidence:     80,
			RiskLevel:      types.RiskLow,
			Trades:         []*types.Trade{{}, {}},
		}},
		CrossChain: []*types.CrossChainOpportunity{{
			FromChain:       config.ChainEthereum,
			ToChain:         config.ChainPolygon,
			Token:           "WETH",
			Bridge:          "stargate",
			PriceDiff:       decimal.RequireFromString("0.0125"),
			EstimatedProfit: big.NewInt(42_000_000),
			ExecutionTime:   20 * time.Minute,
			RiskLevel:       types.RiskMedium,
		}},
	}

	var out bytes.Buffer
	require.NoError(t, printScan(&out, registry, res))
	text := out.String()
	assert.Contains(t, text, "SAME-CHAIN (1)")
	assert.Contains(t, text, "ethereum")
	assert.Contains(t, text, "WETH")
	assert.Contains(t, text, "0.02")
	assert.Contains(t, text, "CROSS-CHAIN (1)")
	assert.Contains(t, text, "polygon")
	assert.Contains(t, text, "1.25%")
	assert.Contains(t, text, "42")
	assert.Contains(t, text, "20m0s")
}

func TestPrintCheck(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, printCheck(&out, config.DefaultConfig(), &config.SecureConfig{}))
	text := out.String()
	assert.Contains(t, text, "Private key:      not set")
	assert.Contains(t, text, "ethereum")
	assert.Contains(t, text, "arbitrum")
}

func TestPrintAssessment(t *testing.T) {
	token := &types.Token{Symbol: "WETH", Address: common.HexToAddress("0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2"), Decimals: 18}
	a := &types.RiskAssessment{
		Score:           70,
		Level:           types.RiskMedium,
		Issues:          []string{"gas price above limit"},
		Recommendations: []string{"wait for lower gas"},
	}

	var out bytes.Buffer
	printAssessment(&out, token, decimal.NewFromInt(2), nil, a, true)
	text := out.String()
	assert.Contains(t, text, "Score:    70 (MEDIUM)")
	assert.Contains(t, text, "Proceed:  true")
	assert.Contains(t, text, "issue: gas price above limit")
	assert.Contains(t, text, "recommendation: wait for lower gas")
}

func TestLoadConfigExplicitMissingFile(t *testing.T) {
	old := cfgFile
	t.Cleanup(func() { cfgFile = old })

	cfgFile = filepath.Join(t.TempDir(), "missing.yaml")
	_, err := loadConfig()
	assert.Error(t, err)
}
