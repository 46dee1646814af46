package arbitrage

import (
	"github.com/michaelpento.lv/flasharb/types"
	umath "github.com/michaelpento.lv/flasharb/utils/math"
)

const (
	gasPenalty        = 20
	complexityPenalty = 15
	thinLegPenalty    = 10
	maxSimpleLegs     = 3
)

// Confidence scores a route from 100 down: heavy gas, more than three legs and
// every leg that thinLeg flags each cost points.
func Confidence(o *types.ArbitrageOpportunity, gasCeiling uint64, thinLeg func(*types.Trade) bool) int {
	score := 100
	if o.GasEstimate > gasCeiling {
		score -= gasPenalty
	}
	if o.Legs() > maxSimpleLegs {
		score -= complexityPenalty
	}
	for _, t := range o.Trades {
		if thinLeg(t) {
			score -= thinLegPenalty
		}
	}
	return umath.ClampInt(score, 0, 100)
}
