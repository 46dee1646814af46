package multichain

import (
	"github.com/shopspring/decimal"

	"github.com/michaelpento.lv/flasharb/types"
)

var (
	largeProfit  = decimal.NewFromInt(1000)
	mediumProfit = decimal.NewFromInt(100)
	wideDiffBps  = decimal.NewFromInt(100)
	diffBps      = decimal.NewFromInt(50)
)

// profitPenalty grows with the profit value in base token units. Large gaps
// draw more competing searchers.
func profitPenalty(value decimal.Decimal) int {
	switch {
	case value.GreaterThanOrEqual(largeProfit):
		return 2
	case value.GreaterThanOrEqual(mediumProfit):
		return 1
	default:
		return 0
	}
}

func diffPenalty(bps decimal.Decimal) int {
	switch {
	case bps.GreaterThan(wideDiffBps):
		return 2
	case bps.GreaterThan(diffBps):
		return 1
	default:
		return 0
	}
}

// SameChainRisk adds profit size, price differential and the chain's
// competition factor.
func SameChainRisk(o *types.ArbitrageOpportunity, chain *types.Chain) (int, types.RiskLevel) {
	score := profitPenalty(o.ProfitValue) + diffPenalty(o.PriceDiffBps)
	if chain != nil {
		score += chain.Competition
	}

	switch {
	case score <= 2:
		return score, types.RiskLow
	case score <= 4:
		return score, types.RiskMedium
	default:
		return score, types.RiskHigh
	}
}

// CrossChainRisk adds bridge maturity, the maturity of both chains and the
// profit size penalty.
func CrossChainRisk(bridge *types.Bridge, from, to *types.Chain, profitValue decimal.Decimal) (int, types.RiskLevel) {
	score := bridge.Maturity + profitPenalty(profitValue)
	if from != nil {
		score += from.Maturity
	}
	if to != nil {
		score += to.Maturity
	}

	switch {
	case score <= 2:
		return score, types.RiskLow
	case score <= 4:
		return score, types.RiskMedium
	case score <= 6:
		return score, types.RiskHigh
	default:
		return score, types.RiskCritical
	}
}
