package multichain

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/michaelpento.lv/flasharb/types"
	umath "github.com/michaelpento.lv/flasharb/utils/math"
)

// CheapestBridge returns the lowest-fee bridge connecting both chains, or nil.
func CheapestBridge(bridges []types.Bridge, from, to uint64) *types.Bridge {
	var best *types.Bridge
	for i := range bridges {
		b := &bridges[i]
		if !b.Supports(from, to) {
			continue
		}
		if best == nil || b.Fee.LessThan(best.Fee) {
			best = b
		}
	}
	return best
}

// scanPair compares every token listed on both chains. The cheaper chain is
// the buy side.
func (e *Engine) scanPair(ctx context.Context, a, b *types.Chain, now time.Time) ([]*types.CrossChainOpportunity, error) {
	bridge := CheapestBridge(e.registry.Bridges, a.ID, b.ID)
	if bridge == nil {
		e.logger.Debug("No bridge between chains, skipping",
			zap.String("chain_a", a.Name),
			zap.String("chain_b", b.Name))
		return nil, nil
	}
	if !strings.EqualFold(a.BaseToken, b.BaseToken) {
		e.logger.Debug("Chains price in different base tokens, skipping",
			zap.String("chain_a", a.Name),
			zap.String("chain_b", b.Name))
		return nil, nil
	}

	var out []*types.CrossChainOpportunity
	for _, token := range e.registry.ActiveTokens(a.ID) {
		other := e.registry.TokenBySymbol(b.ID, token.Symbol)
		if other == nil || !other.Active {
			continue
		}

		pa, err := e.prices.GetPrice(ctx, token.Address, a.ID)
		if err != nil {
			return nil, fmt.Errorf("price %s on %s: %w", token.Symbol, a.Name, err)
		}
		pb, err := e.prices.GetPrice(ctx, other.Address, b.ID)
		if err != nil {
			return nil, fmt.Errorf("price %s on %s: %w", token.Symbol, b.Name, err)
		}
		if pa == nil || pb == nil || !pa.Value.IsPositive() || !pb.Value.IsPositive() {
			continue
		}

		from, to, buy, sell := a, b, pa.Value, pb.Value
		if buy.GreaterThan(sell) {
			from, to, buy, sell = b, a, pb.Value, pa.Value
		}

		opp, err := e.evaluate(token.Symbol, bridge, from, to, buy, sell, now)
		if err != nil {
			e.logger.Debug("Cross-chain candidate skipped",
				zap.String("token", token.Symbol),
				zap.Error(err))
			continue
		}
		if opp != nil {
			out = append(out, opp)
		}
	}
	return out, nil
}

// evaluate nets the price gap of the configured notional against the bridge
// fee and the per-pair gas factor. Amounts are in the buy chain's base token.
func (e *Engine) evaluate(symbol string, bridge *types.Bridge, from, to *types.Chain, buy, sell decimal.Decimal, now time.Time) (*types.CrossChainOpportunity, error) {
	diff := sell.Sub(buy).DivRound(buy, 18)
	if !diff.GreaterThan(e.settings.MinDiff) {
		return nil, nil
	}

	params, ok := e.registry.Pair(from.ID, to.ID)
	if !ok {
		return nil, fmt.Errorf("%w: no cross-chain table entry for %d->%d", types.ErrConfiguration, from.ID, to.ID)
	}
	base := e.registry.BaseToken(from.ID)
	if base == nil {
		return nil, fmt.Errorf("%w: no base token on chain %d", types.ErrConfiguration, from.ID)
	}

	amount := umath.FromDecimal(e.settings.Amount, base.Decimals)
	bridgeFee := umath.MulFraction(amount, bridge.Fee)
	gasCost := umath.MulFraction(amount, params.GasFactor)
	gross := umath.MulFraction(amount, diff)

	profit := new(big.Int).Sub(gross, bridgeFee)
	profit.Sub(profit, gasCost)
	if profit.Sign() <= 0 {
		return nil, nil
	}

	score, level := CrossChainRisk(bridge, from, to, umath.ToDecimal(profit, base.Decimals))

	return &types.CrossChainOpportunity{
		ID:              CrossChainID(from.ID, to.ID, bridge.Name, symbol),
		FromChain:       from.ID,
		ToChain:         to.ID,
		Bridge:          bridge.Name,
		Token:           symbol,
		BuyPrice:        buy,
		SellPrice:       sell,
		PriceDiff:       diff,
		Amount:          amount,
		BridgeFee:       bridgeFee,
		GasCost:         gasCost,
		EstimatedProfit: profit,
		ExecutionTime:   params.ExecutionTime,
		RiskLevel:       level,
		RiskScore:       score,
		Timestamp:       now,
	}, nil
}

func CrossChainID(from, to uint64, bridge, symbol string) string {
	key := fmt.Sprintf("%d>%d|%s|%s", from, to, strings.ToLower(bridge), strings.ToUpper(symbol))
	return fmt.Sprintf("%016x", xxhash.Sum64String(key))
}
