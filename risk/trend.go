package risk

import (
	"github.com/shopspring/decimal"
)

const (
	TrendImproving    = "improving"
	TrendWorsening    = "worsening"
	TrendStable       = "stable"
	TrendInsufficient = "insufficient_data"
)

var trendThreshold = decimal.RequireFromString("0.10")

// Trend compares the mean risk (100 - score) of the latest samples with the
// window before them.
type Trend struct {
	Direction string
	Recent    decimal.Decimal
	Previous  decimal.Decimal
	Change    decimal.Decimal
	Samples   int
}

func (m *Manager) TrendAnalysis() Trend {
	return AnalyzeTrend(m.history.Last(2 * trendWindow))
}

// AnalyzeTrend needs two full windows of samples, oldest first.
//
// The windows are compared on mean risk (100 - score) rather than mean
// score, because a higher score is safer: a rise of more than 10% in risk
// is worsening and a fall of more than 10% is improving. Measuring on risk
// also keeps small drops from a near-perfect score visible.
func AnalyzeTrend(samples []Sample) Trend {
	t := Trend{Direction: TrendInsufficient, Samples: len(samples)}
	if len(samples) < 2*trendWindow {
		return t
	}
	samples = samples[len(samples)-2*trendWindow:]

	t.Previous = meanRisk(samples[:trendWindow])
	t.Recent = meanRisk(samples[trendWindow:])

	if t.Previous.IsZero() {
		t.Direction = TrendStable
		if t.Recent.IsPositive() {
			t.Direction = TrendWorsening
		}
		return t
	}

	t.Change = t.Recent.Sub(t.Previous).DivRound(t.Previous, 8)
	switch {
	case t.Change.GreaterThan(trendThreshold):
		t.Direction = TrendWorsening
	case t.Change.LessThan(trendThreshold.Neg()):
		t.Direction = TrendImproving
	default:
		t.Direction = TrendStable
	}
	return t
}

func meanRisk(samples []Sample) decimal.Decimal {
	sum := decimal.Zero
	for _, s := range samples {
		sum = sum.Add(decimal.NewFromInt(int64(100 - s.Score)))
	}
	return sum.DivRound(decimal.NewFromInt(int64(len(samples))), 8)
}
