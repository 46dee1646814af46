package multichain

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/michaelpento.lv/flasharb/config"
	"github.com/michaelpento.lv/flasharb/strategies/arbitrage"
	"github.com/michaelpento.lv/flasharb/types"
	"github.com/michaelpento.lv/flasharb/utils/metrics"
)

// PriceSource returns aggregated prices in the chain base token.
type PriceSource interface {
	GetPrice(ctx context.Context, token common.Address, chainID uint64) (*types.Price, error)
}

type Settings struct {
	ScanInterval time.Duration
	// MinDiff is the relative price gap a cross-chain candidate must exceed.
	MinDiff decimal.Decimal
	// Amount is the cross-chain notional in whole base token units.
	Amount decimal.Decimal
	Now    func() time.Time
}

// SettingsFromConfig reads the cross-chain part of the scan section.
func SettingsFromConfig(sc *config.ScanConfig) (Settings, error) {
	minDiff, err := decimal.NewFromString(sc.CrossChainMinDiff)
	if err != nil {
		return Settings{}, fmt.Errorf("invalid cross-chain min diff: %w", err)
	}
	amount, err := decimal.NewFromString(sc.CrossChainAmount)
	if err != nil {
		return Settings{}, fmt.Errorf("invalid cross-chain amount: %w", err)
	}
	return Settings{
		ScanInterval: sc.Interval.Duration,
		MinDiff:      minDiff,
		Amount:       amount,
	}, nil
}

// ScanResult holds one round of same-chain and cross-chain discovery.
type ScanResult struct {
	SameChain  []*types.ArbitrageOpportunity
	CrossChain []*types.CrossChainOpportunity
}

// Engine runs one Finder per chain and compares prices across bridged chains.
type Engine struct {
	settings Settings
	registry *config.Registry
	prices   PriceSource
	finders  []*arbitrage.Finder
	logger   *zap.Logger
	metrics  *metrics.ScanMetrics

	mu        sync.Mutex
	lastCross time.Time
	cross     []*types.CrossChainOpportunity
}

func NewEngine(settings Settings, registry *config.Registry, prices PriceSource, finders []*arbitrage.Finder, logger *zap.Logger, m *metrics.ScanMetrics) *Engine {
	if settings.ScanInterval <= 0 {
		settings.ScanInterval = arbitrage.DefaultScanInterval
	}
	if settings.Now == nil {
		settings.Now = time.Now
	}
	if m == nil {
		m = metrics.NewScanMetrics(nil, "crosschain")
	}
	return &Engine{
		settings: settings,
		registry: registry,
		prices:   prices,
		finders:  finders,
		logger:   logger.Named("multichain"),
		metrics:  m,
	}
}

// Finder returns the finder of a chain, or nil.
func (e *Engine) Finder(chainID uint64) *arbitrage.Finder {
	for _, f := range e.finders {
		if f.ChainID() == chainID {
			return f
		}
	}
	return nil
}

// ScanAll runs same-chain discovery on every chain and the cross-chain scan.
func (e *Engine) ScanAll(ctx context.Context) (*ScanResult, error) {
	same, err := e.ScanSameChain(ctx)
	if err != nil {
		return nil, err
	}
	cross, err := e.ScanCrossChain(ctx)
	if err != nil {
		return nil, err
	}
	return &ScanResult{SameChain: same, CrossChain: cross}, nil
}

// ScanSameChain merges the routes of every chain finder, risk-scored and
// sorted by profit value. A failing chain is logged and skipped.
func (e *Engine) ScanSameChain(ctx context.Context) ([]*types.ArbitrageOpportunity, error) {
	found := make([][]*types.ArbitrageOpportunity, len(e.finders))

	g, gctx := errgroup.WithContext(ctx)
	for i, f := range e.finders {
		i, f := i, f
		g.Go(func() error {
			opps, err := f.ScanAllOpportunities(gctx)
			if err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				e.logger.Warn("Chain scan failed", zap.Uint64("chain", f.ChainID()), zap.Error(err))
				return nil
			}
			found[i] = opps
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var out []*types.ArbitrageOpportunity
	for _, opps := range found {
		for _, o := range opps {
			// finder results are shared, score a copy
			c := *o
			_, c.RiskLevel = SameChainRisk(&c, e.registry.Chain(c.ChainID))
			out = append(out, &c)
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].ProfitValue.GreaterThan(out[j].ProfitValue)
	})
	return out, nil
}

// ScanCrossChain returns cross-chain candidates sorted by profit. Within the
// scan interval the previous result is returned.
func (e *Engine) ScanCrossChain(ctx context.Context) ([]*types.CrossChainOpportunity, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	now := e.settings.Now()
	if !e.lastCross.IsZero() && now.Sub(e.lastCross) < e.settings.ScanInterval {
		return e.snapshot(), nil
	}

	start := time.Now()
	results, err := e.scanCrossChain(ctx, now)
	if err != nil {
		return nil, err
	}
	e.metrics.Scans.Inc()
	e.metrics.ScanTime.Observe(time.Since(start).Seconds())
	e.metrics.Opportunities.WithLabelValues("crosschain").Add(float64(len(results)))

	e.cross = results
	e.lastCross = now
	return e.snapshot(), nil
}

func (e *Engine) snapshot() []*types.CrossChainOpportunity {
	out := make([]*types.CrossChainOpportunity, len(e.cross))
	copy(out, e.cross)
	return out
}

func (e *Engine) scanCrossChain(ctx context.Context, now time.Time) ([]*types.CrossChainOpportunity, error) {
	chains := e.registry.Chains

	var pairs [][2]*types.Chain
	for i := 0; i < len(chains); i++ {
		for j := i + 1; j < len(chains); j++ {
			pairs = append(pairs, [2]*types.Chain{&chains[i], &chains[j]})
		}
	}

	found := make([][]*types.CrossChainOpportunity, len(pairs))
	g, gctx := errgroup.WithContext(ctx)
	for i, p := range pairs {
		i, p := i, p
		g.Go(func() error {
			opps, err := e.scanPair(gctx, p[0], p[1], now)
			if err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				e.logger.Warn("Cross-chain pair failed",
					zap.Uint64("chain_a", p[0].ID),
					zap.Uint64("chain_b", p[1].ID),
					zap.Error(err))
				return nil
			}
			found[i] = opps
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var out []*types.CrossChainOpportunity
	for _, opps := range found {
		out = append(out, opps...)
	}
	sort.SliceStable(out, func(i, j int) bool {
		vi := e.profitValue(out[i])
		vj := e.profitValue(out[j])
		if c := vi.Cmp(vj); c != 0 {
			return c > 0
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (e *Engine) profitValue(o *types.CrossChainOpportunity) decimal.Decimal {
	base := e.registry.BaseToken(o.FromChain)
	if base == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(o.EstimatedProfit, -int32(base.Decimals))
}
