package types

import (
	"math/big"
	"time"

	"github.com/shopspring/decimal"
)

// RiskLevel buckets a risk score.
type RiskLevel string

const (
	RiskLow      RiskLevel = "LOW"
	RiskMedium   RiskLevel = "MEDIUM"
	RiskHigh     RiskLevel = "HIGH"
	RiskCritical RiskLevel = "CRITICAL"
)

// RiskMetrics is one sampled snapshot of live chain conditions.
type RiskMetrics struct {
	GasPrice    *big.Int
	MempoolSize uint64
	Liquidity   *big.Int
	// PriceImpact and Volatility are fractions (0.01 == 1%).
	PriceImpact decimal.Decimal
	Volatility  decimal.Decimal
	BlockTime   time.Duration
	SampledAt   time.Time
}

// RiskAssessment is the output of the risk gate.
type RiskAssessment struct {
	Asset           string
	Score           int
	Level           RiskLevel
	Issues          []string
	Recommendations []string

	GasRisk        int
	SlippageRisk   int
	LiquidityRisk  int
	FrontrunRisk   int
	SandwichRisk   int
	VolatilityRisk int

	Metrics    *RiskMetrics
	AssessedAt time.Time
}
