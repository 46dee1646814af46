package arbitrage

import (
	"context"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/michaelpento.lv/flasharb/types"
	umath "github.com/michaelpento.lv/flasharb/utils/math"
)

// DirectPass buys a token on the cheaper of two DEXes and sells it on the
// other when their quotes differ by more than the threshold.
type DirectPass struct {
	threshold decimal.Decimal
}

func (p *DirectPass) Kind() types.OpportunityKind {
	return types.KindDirect
}

func (p *DirectPass) Find(ctx context.Context, s *scanState) ([]*types.ArbitrageOpportunity, error) {
	var out []*types.ArbitrageOpportunity

	for _, token := range s.f.registry.ActiveTokens(s.chainID) {
		quotes, err := s.f.prices.GetQuotes(ctx, token.Address, s.chainID)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			s.f.logger.Debug("Skipping token without quotes", zap.String("token", token.Symbol), zap.Error(err))
			continue
		}

		for i := 0; i < len(quotes); i++ {
			for j := i + 1; j < len(quotes); j++ {
				lo, hi := quotes[i], quotes[j]
				if lo.Price.GreaterThan(hi.Price) {
					lo, hi = hi, lo
				}
				diff := umath.DiffBps(hi.Price, lo.Price)
				// equality is not an opportunity
				if !diff.GreaterThan(p.threshold) {
					continue
				}

				opp, err := p.route(ctx, s, token, lo.DEX, hi.DEX, diff)
				if err != nil {
					s.f.logger.Debug("Direct route unavailable",
						zap.String("token", token.Symbol),
						zap.String("buy", lo.DEX),
						zap.String("sell", hi.DEX),
						zap.Error(err))
					continue
				}
				out = append(out, opp)
			}
		}
	}

	return out, nil
}

// route borrows the base token, buys on buyDEX and sells back on sellDEX.
func (p *DirectPass) route(ctx context.Context, s *scanState, token types.Token, buyDEX, sellDEX string, diff decimal.Decimal) (*types.ArbitrageOpportunity, error) {
	amount := s.f.registry.TradeSize(s.chainID, s.base.Address)

	buy, err := s.leg(ctx, buyDEX, s.base.Address, token.Address, amount)
	if err != nil {
		return nil, err
	}
	sell, err := s.leg(ctx, sellDEX, token.Address, s.base.Address, buy.ExpectedAmountOut)
	if err != nil {
		return nil, err
	}

	return &types.ArbitrageOpportunity{
		Kind:         types.KindDirect,
		Asset:        s.base.Address,
		Amount:       amount,
		Trades:       []*types.Trade{buy, sell},
		PriceDiffBps: diff,
	}, nil
}
