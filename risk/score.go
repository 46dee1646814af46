package risk

import (
	"fmt"
	"math/big"
	"time"

	"github.com/shopspring/decimal"

	"github.com/michaelpento.lv/flasharb/config"
	"github.com/michaelpento.lv/flasharb/types"
	umath "github.com/michaelpento.lv/flasharb/utils/math"
)

const (
	gasPenalty        = 30
	liquidityPenalty  = 40
	impactPenaltyCap  = 50
	mempoolPenalty    = 20
	volatilityCap     = 30
	blockTimePenalty  = 15
	complexityPenalty = 10
)

// Thresholds are the limits a metric must breach before it costs points.
type Thresholds struct {
	MaxGasPrice    *big.Int
	MaxMempoolSize uint64
	// MaxPriceImpact and MaxVolatility are fractions.
	MaxPriceImpact    decimal.Decimal
	MaxVolatility     decimal.Decimal
	MaxBlockTime      time.Duration
	MaxRouteLegs      int
	LiquidityMultiple int64
}

func DefaultThresholds() Thresholds {
	return Thresholds{
		MaxGasPrice:       big.NewInt(200e9),
		MaxMempoolSize:    100,
		MaxPriceImpact:    decimal.RequireFromString("0.01"),
		MaxVolatility:     decimal.RequireFromString("0.05"),
		MaxBlockTime:      2 * time.Second,
		MaxRouteLegs:      3,
		LiquidityMultiple: 2,
	}
}

// ThresholdsFromConfig combines the risk section with the flash loan gas cap.
func ThresholdsFromConfig(rc *config.RiskConfig, maxGasPrice *big.Int) (Thresholds, error) {
	impact, err := decimal.NewFromString(rc.MaxPriceImpact)
	if err != nil {
		return Thresholds{}, fmt.Errorf("invalid max price impact: %w", err)
	}
	vol, err := decimal.NewFromString(rc.MaxVolatility)
	if err != nil {
		return Thresholds{}, fmt.Errorf("invalid max volatility: %w", err)
	}
	return Thresholds{
		MaxGasPrice:       new(big.Int).Set(maxGasPrice),
		MaxMempoolSize:    rc.MaxMempoolSize,
		MaxPriceImpact:    impact,
		MaxVolatility:     vol,
		MaxBlockTime:      rc.MaxBlockTime.Duration,
		MaxRouteLegs:      rc.MaxRouteLegs,
		LiquidityMultiple: rc.LiquidityMultiple,
	}, nil
}

// Input is everything Score looks at. A nil Liquidity means no route was
// given, so pool depth was not measured.
type Input struct {
	Metrics *types.RiskMetrics
	Amount  *big.Int
	Legs    int
}

// Score applies the penalty table to one set of inputs. It has no side
// effects and always returns a score in [0, 100].
func Score(in Input, th Thresholds) *types.RiskAssessment {
	m := in.Metrics
	if m == nil {
		m = &types.RiskMetrics{}
	}
	a := &types.RiskAssessment{Metrics: m}
	score := 100

	if m.GasPrice != nil && th.MaxGasPrice != nil && m.GasPrice.Cmp(th.MaxGasPrice) > 0 {
		score -= gasPenalty
		a.Issues = append(a.Issues, fmt.Sprintf("gas price %s gwei above limit %s gwei", formatGwei(m.GasPrice), formatGwei(th.MaxGasPrice)))
		a.Recommendations = append(a.Recommendations, "Wait for gas prices to drop")
	}

	required := requiredLiquidity(in.Amount, th.LiquidityMultiple)
	if m.Liquidity != nil && m.Liquidity.Cmp(required) < 0 {
		score -= liquidityPenalty
		a.Issues = append(a.Issues, fmt.Sprintf("liquidity %s below %dx trade amount", m.Liquidity, th.LiquidityMultiple))
		a.Recommendations = append(a.Recommendations, "Reduce trade size or route through deeper pools")
	}

	if m.PriceImpact.GreaterThan(th.MaxPriceImpact) {
		score -= scaled(m.PriceImpact, th.MaxPriceImpact, impactPenaltyCap)
		a.Issues = append(a.Issues, fmt.Sprintf("price impact %s%% above %s%%", pct(m.PriceImpact), pct(th.MaxPriceImpact)))
		a.Recommendations = append(a.Recommendations, "Split the trade to reduce price impact")
	}

	if m.MempoolSize > th.MaxMempoolSize {
		score -= mempoolPenalty
		a.Issues = append(a.Issues, fmt.Sprintf("%d pending transactions above %d", m.MempoolSize, th.MaxMempoolSize))
		a.Recommendations = append(a.Recommendations, "Use a private relay to avoid frontrunning")
	}

	if m.Volatility.GreaterThan(th.MaxVolatility) {
		score -= scaled(m.Volatility, th.MaxVolatility, volatilityCap)
		a.Issues = append(a.Issues, fmt.Sprintf("volatility %s%% above %s%%", pct(m.Volatility), pct(th.MaxVolatility)))
		a.Recommendations = append(a.Recommendations, "Tighten slippage tolerance while prices are moving")
	}

	if th.MaxBlockTime > 0 && m.BlockTime > th.MaxBlockTime {
		score -= blockTimePenalty
		a.Issues = append(a.Issues, fmt.Sprintf("block time %s above %s", m.BlockTime, th.MaxBlockTime))
		a.Recommendations = append(a.Recommendations, "Expect slower confirmation")
	}

	if th.MaxRouteLegs > 0 && in.Legs > th.MaxRouteLegs {
		score -= complexityPenalty
		a.Issues = append(a.Issues, fmt.Sprintf("route has %d legs", in.Legs))
		a.Recommendations = append(a.Recommendations, "Prefer routes with fewer hops")
	}

	a.Score = umath.ClampInt(score, 0, 100)
	a.Level = Level(a.Score)

	a.GasRisk = ratioRisk(decimalOf(m.GasPrice), decimalOf(th.MaxGasPrice))
	a.SlippageRisk = ratioRisk(m.PriceImpact, th.MaxPriceImpact)
	a.LiquidityRisk = liquidityRisk(m.Liquidity, required)
	a.FrontrunRisk = ratioRisk(decimal.NewFromInt(int64(m.MempoolSize)), decimal.NewFromInt(int64(th.MaxMempoolSize)))
	a.SandwichRisk = (a.FrontrunRisk + a.SlippageRisk) / 2
	a.VolatilityRisk = ratioRisk(m.Volatility, th.MaxVolatility)

	return a
}

// Level buckets a score.
func Level(score int) types.RiskLevel {
	switch {
	case score >= 80:
		return types.RiskLow
	case score >= 60:
		return types.RiskMedium
	case score >= 40:
		return types.RiskHigh
	default:
		return types.RiskCritical
	}
}

// ShouldProceed is the execution gate.
func ShouldProceed(a *types.RiskAssessment) bool {
	switch {
	case a.Level == types.RiskCritical:
		return false
	case a.Level == types.RiskHigh && a.Score < 50:
		return false
	case a.GasRisk > 80, a.LiquidityRisk > 90, a.SandwichRisk > 70:
		return false
	}
	return true
}

func requiredLiquidity(amount *big.Int, multiple int64) *big.Int {
	if amount == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Mul(amount, big.NewInt(multiple))
}

// scaled charges up to limit points, reaching it when value is twice the
// threshold.
func scaled(value, threshold decimal.Decimal, limit int) int {
	if !threshold.IsPositive() {
		return limit
	}
	excess := value.Sub(threshold).Div(threshold)
	if excess.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		return limit
	}
	p := int(excess.Mul(decimal.NewFromInt(int64(limit))).Ceil().IntPart())
	return umath.ClampInt(p, 1, limit)
}

// ratioRisk is 50 at the threshold and 100 at twice the threshold.
func ratioRisk(value, threshold decimal.Decimal) int {
	if !threshold.IsPositive() {
		if value.IsPositive() {
			return 100
		}
		return 0
	}
	r := value.Div(threshold)
	if r.GreaterThanOrEqual(decimal.NewFromInt(2)) {
		return 100
	}
	return umath.ClampInt(int(r.Mul(decimal.NewFromInt(50)).IntPart()), 0, 100)
}

func liquidityRisk(liquidity, required *big.Int) int {
	if liquidity == nil || required.Sign() == 0 {
		return 0
	}
	if liquidity.Sign() <= 0 {
		return 100
	}
	return ratioRisk(decimalOf(required), decimalOf(liquidity))
}

func decimalOf(x *big.Int) decimal.Decimal {
	if x == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(x, 0)
}

func formatGwei(x *big.Int) string {
	return decimal.NewFromBigInt(x, -9).String()
}

func pct(d decimal.Decimal) string {
	return d.Shift(2).StringFixed(2)
}
