package arbitrage

import (
	"context"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/michaelpento.lv/flasharb/dex"
	"github.com/michaelpento.lv/flasharb/types"
	umath "github.com/michaelpento.lv/flasharb/utils/math"
)

type reserveKey struct {
	dex  string
	from common.Address
	to   common.Address
}

type reserveResult struct {
	reserves *dex.Reserves
	err      error
}

// edge is one directed hop through a pool.
type edge struct {
	pool types.Pool
	from common.Address
	to   common.Address
}

// scanState is shared by the passes of a single scan. Pool reserves are read
// at most once per scan.
type scanState struct {
	f        *Finder
	chainID  uint64
	base     *types.Token
	gasPrice *big.Int

	mu       sync.Mutex
	reserves map[reserveKey]reserveResult
}

func newScanState(f *Finder, base *types.Token, gasPrice *big.Int) *scanState {
	return &scanState{
		f:        f,
		chainID:  f.settings.ChainID,
		base:     base,
		gasPrice: gasPrice,
		reserves: make(map[reserveKey]reserveResult),
	}
}

func (s *scanState) exchange(name string) (dex.Exchange, error) {
	ex := s.f.prices.Exchange(s.chainID, name)
	if ex == nil {
		return nil, fmt.Errorf("%w: dex %s not registered on chain %d", types.ErrConfiguration, name, s.chainID)
	}
	return ex, nil
}

func (s *scanState) reservesFor(ctx context.Context, ex dex.Exchange, from, to common.Address) (*dex.Reserves, error) {
	key := reserveKey{ex.GetName(), from, to}

	s.mu.Lock()
	res, ok := s.reserves[key]
	s.mu.Unlock()
	if ok {
		return res.reserves, res.err
	}

	r, err := ex.GetReserves(ctx, from, to)
	if err != nil {
		err = fmt.Errorf("%w: %s reserves %s/%s: %v", types.ErrProvider, ex.GetName(), from.Hex(), to.Hex(), err)
	} else if r.Reserve0.Sign() <= 0 || r.Reserve1.Sign() <= 0 {
		err = fmt.Errorf("%s pool %s/%s has no liquidity", ex.GetName(), from.Hex(), to.Hex())
	}

	s.mu.Lock()
	s.reserves[key] = reserveResult{reserves: r, err: err}
	s.mu.Unlock()
	return r, err
}

// leg simulates one swap against current reserves.
func (s *scanState) leg(ctx context.Context, dexName string, from, to common.Address, amountIn *big.Int) (*types.Trade, error) {
	ex, err := s.exchange(dexName)
	if err != nil {
		return nil, err
	}
	r, err := s.reservesFor(ctx, ex, from, to)
	if err != nil {
		return nil, err
	}

	out := dex.GetAmountOut(amountIn, r.Reserve0, r.Reserve1, ex.FeeBps())
	if out.Sign() <= 0 {
		return nil, fmt.Errorf("%s swap %s->%s yields nothing", ex.GetName(), from.Hex(), to.Hex())
	}

	var router common.Address
	if rp, ok := ex.(dex.RouterProvider); ok {
		router = rp.GetRouterAddress()
	}

	return &types.Trade{
		DEX:               ex.GetName(),
		Router:            router,
		Pool:              r.Pair,
		FromToken:         from,
		ToToken:           to,
		AmountIn:          new(big.Int).Set(amountIn),
		ExpectedAmountOut: out,
		FeeBps:            ex.FeeBps(),
		Path:              []common.Address{from, to},
		Liquidity:         new(big.Int).Set(r.Reserve0),
	}, nil
}

// cycleRate is the product of the fee-adjusted spot rates along edges.
func (s *scanState) cycleRate(ctx context.Context, edges []edge) (decimal.Decimal, error) {
	rate := decimal.NewFromInt(1)
	for _, e := range edges {
		ex, err := s.exchange(e.pool.DEX)
		if err != nil {
			return decimal.Zero, err
		}
		r, err := s.reservesFor(ctx, ex, e.from, e.to)
		if err != nil {
			return decimal.Zero, err
		}
		rate = rate.Mul(dex.SpotRate(r.Reserve0, r.Reserve1, ex.FeeBps()))
	}
	return rate, nil
}

// evaluateCycle returns a route for edges when the marginal cycle rate is
// above one, simulated with the configured trade size of the start token.
func (s *scanState) evaluateCycle(ctx context.Context, kind types.OpportunityKind, edges []edge) (*types.ArbitrageOpportunity, error) {
	rate, err := s.cycleRate(ctx, edges)
	if err != nil {
		return nil, err
	}
	if rate.LessThanOrEqual(decimal.NewFromInt(1)) {
		return nil, nil
	}

	start := edges[0].from
	amount := s.f.registry.TradeSize(s.chainID, start)
	if amount.Sign() <= 0 {
		return nil, fmt.Errorf("no trade size for %s", start.Hex())
	}

	trades := make([]*types.Trade, 0, len(edges))
	in := amount
	for _, e := range edges {
		t, err := s.leg(ctx, e.pool.DEX, e.from, e.to, in)
		if err != nil {
			return nil, err
		}
		trades = append(trades, t)
		in = t.ExpectedAmountOut
	}

	return &types.ArbitrageOpportunity{
		Kind:         kind,
		Asset:        start,
		Amount:       amount,
		Trades:       trades,
		PriceDiffBps: rate.Sub(decimal.NewFromInt(1)).Mul(decimal.NewFromInt(10000)),
	}, nil
}

// price returns the base token price of one whole token, if known.
func (s *scanState) price(ctx context.Context, token common.Address) (decimal.Decimal, bool) {
	if token == s.base.Address {
		return decimal.NewFromInt(1), true
	}
	p, err := s.f.prices.GetPrice(ctx, token, s.chainID)
	if err != nil || p == nil || !p.Value.IsPositive() {
		return decimal.Zero, false
	}
	return p.Value, true
}

// value converts base units of token into whole base token units. Unknown
// tokens are worth zero.
func (s *scanState) value(ctx context.Context, token common.Address, amount *big.Int) decimal.Decimal {
	t := s.f.registry.Token(s.chainID, token)
	if t == nil || amount == nil {
		return decimal.Zero
	}
	p, ok := s.price(ctx, token)
	if !ok {
		return decimal.Zero
	}
	return umath.ToDecimal(amount, t.Decimals).Mul(p)
}

// gasCostIn converts the gas spend for gasEstimate into asset base units via
// the wrapped native token price.
func (s *scanState) gasCostIn(ctx context.Context, asset common.Address, gasEstimate uint64) *big.Int {
	wei := new(big.Int).Mul(new(big.Int).SetUint64(gasEstimate), s.gasPrice)
	if wei.Sign() == 0 {
		return big.NewInt(0)
	}

	chain := s.f.registry.Chain(s.chainID)
	assetToken := s.f.registry.Token(s.chainID, asset)
	if chain == nil || assetToken == nil {
		return big.NewInt(0)
	}
	native := s.f.registry.TokenBySymbol(s.chainID, "W"+chain.NativeCurrency)
	if native == nil {
		s.f.logger.Debug("No wrapped native token, gas left uncosted", zap.String("native", chain.NativeCurrency))
		return big.NewInt(0)
	}
	if native.Address == asset {
		return wei
	}

	nativePrice, ok := s.price(ctx, native.Address)
	if !ok {
		return big.NewInt(0)
	}
	assetPrice, ok := s.price(ctx, asset)
	if !ok {
		return big.NewInt(0)
	}

	costBase := umath.ToDecimal(wei, native.Decimals).Mul(nativePrice)
	return umath.FromDecimal(costBase.DivRound(assetPrice, 36), assetToken.Decimals)
}
