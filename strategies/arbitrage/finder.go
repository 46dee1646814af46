package arbitrage

import (
	"context"
	"fmt"
	"math/big"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/michaelpento.lv/flasharb/config"
	"github.com/michaelpento.lv/flasharb/dex"
	"github.com/michaelpento.lv/flasharb/gas"
	"github.com/michaelpento.lv/flasharb/types"
	umath "github.com/michaelpento.lv/flasharb/utils/math"
	"github.com/michaelpento.lv/flasharb/utils/metrics"
)

const (
	DefaultScanInterval = 30 * time.Second
	DefaultThresholdBps = 30
	DefaultConfidence   = 70
	DefaultGasCeiling   = 500000
)

// PriceSource is the view of the price aggregator the finder needs.
type PriceSource interface {
	GetPrice(ctx context.Context, token common.Address, chainID uint64) (*types.Price, error)
	GetQuotes(ctx context.Context, token common.Address, chainID uint64) ([]types.DexQuote, error)
	Exchange(chainID uint64, name string) dex.Exchange
}

// GasPricer reports the current gas price of the chain in wei.
type GasPricer interface {
	GasPrice(ctx context.Context) (*big.Int, error)
}

// Pass is one discovery strategy run during a scan.
type Pass interface {
	Kind() types.OpportunityKind
	Find(ctx context.Context, s *scanState) ([]*types.ArbitrageOpportunity, error)
}

type Settings struct {
	ChainID            uint64
	ScanInterval       time.Duration
	DirectThresholdBps decimal.Decimal
	MinConfidence      int
	// MinProfit is in whole units of the chain base token.
	MinProfit  decimal.Decimal
	GasCeiling uint64
	// LiquidityFloor is in whole units of the chain base token.
	LiquidityFloor decimal.Decimal
	MaxHops        int
	Now            func() time.Time
}

// SettingsFromConfig builds per-chain finder settings from the scan section.
func SettingsFromConfig(chainID uint64, sc *config.ScanConfig) (Settings, error) {
	threshold, err := decimal.NewFromString(sc.DirectThreshold)
	if err != nil {
		return Settings{}, fmt.Errorf("invalid direct threshold: %w", err)
	}
	minProfit, err := decimal.NewFromString(sc.MinProfit)
	if err != nil {
		return Settings{}, fmt.Errorf("invalid min profit: %w", err)
	}
	floor, err := decimal.NewFromString(sc.LiquidityFloor)
	if err != nil {
		return Settings{}, fmt.Errorf("invalid liquidity floor: %w", err)
	}
	return Settings{
		ChainID:            chainID,
		ScanInterval:       sc.Interval.Duration,
		DirectThresholdBps: threshold,
		MinConfidence:      sc.MinConfidence,
		MinProfit:          minProfit,
		GasCeiling:         sc.GasCeiling,
		LiquidityFloor:     floor,
		MaxHops:            sc.MaxHops,
	}, nil
}

// Finder discovers same-chain arbitrage routes on one chain.
type Finder struct {
	settings Settings
	registry *config.Registry
	prices   PriceSource
	gas      GasPricer
	passes   []Pass
	logger   *zap.Logger
	metrics  *metrics.ScanMetrics

	mu       sync.Mutex
	lastScan time.Time
	results  []*types.ArbitrageOpportunity
}

// NewFinder creates a finder running the direct, triangular and multi-hop passes.
func NewFinder(settings Settings, registry *config.Registry, prices PriceSource, gasPricer GasPricer, logger *zap.Logger, m *metrics.ScanMetrics) *Finder {
	if settings.ScanInterval <= 0 {
		settings.ScanInterval = DefaultScanInterval
	}
	if settings.GasCeiling == 0 {
		settings.GasCeiling = DefaultGasCeiling
	}
	if settings.Now == nil {
		settings.Now = time.Now
	}
	if m == nil {
		m = metrics.NewScanMetrics(nil, "finder")
	}

	f := &Finder{
		settings: settings,
		registry: registry,
		prices:   prices,
		gas:      gasPricer,
		logger:   logger.Named("finder").With(zap.Uint64("chain", settings.ChainID)),
		metrics:  m,
	}
	f.passes = []Pass{
		&DirectPass{threshold: settings.DirectThresholdBps},
		&TriangularPass{},
	}
	if settings.MaxHops > 3 {
		f.passes = append(f.passes, &MultiHopPass{maxHops: settings.MaxHops})
	}
	return f
}

// ChainID returns the chain this finder scans.
func (f *Finder) ChainID() uint64 {
	return f.settings.ChainID
}

// AddPass registers an extra discovery pass.
func (f *Finder) AddPass(p Pass) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.passes = append(f.passes, p)
}

// ScanAllOpportunities runs every pass and returns the filtered routes sorted
// by profit. Within the scan interval the previous result is returned as is.
func (f *Finder) ScanAllOpportunities(ctx context.Context) ([]*types.ArbitrageOpportunity, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	now := f.settings.Now()
	if !f.lastScan.IsZero() && now.Sub(f.lastScan) < f.settings.ScanInterval {
		return f.snapshot(), nil
	}

	start := time.Now()
	results, err := f.scan(ctx)
	if err != nil {
		return nil, err
	}
	f.metrics.Scans.Inc()
	f.metrics.ScanTime.Observe(time.Since(start).Seconds())

	f.results = results
	f.lastScan = now
	return f.snapshot(), nil
}

// FindOptimalRoute returns the most profitable route for exactly this asset
// and amount, or nil.
func (f *Finder) FindOptimalRoute(ctx context.Context, asset common.Address, amount *big.Int) (*types.ArbitrageOpportunity, error) {
	opps, err := f.ScanAllOpportunities(ctx)
	if err != nil {
		return nil, err
	}
	for _, o := range opps {
		if o.Asset == asset && o.Amount.Cmp(amount) == 0 {
			return o, nil
		}
	}
	return nil, nil
}

func (f *Finder) snapshot() []*types.ArbitrageOpportunity {
	out := make([]*types.ArbitrageOpportunity, len(f.results))
	copy(out, f.results)
	return out
}

func (f *Finder) scan(ctx context.Context) ([]*types.ArbitrageOpportunity, error) {
	base := f.registry.BaseToken(f.settings.ChainID)
	if base == nil {
		return nil, fmt.Errorf("%w: no base token for chain %d", types.ErrConfiguration, f.settings.ChainID)
	}

	gasPrice := big.NewInt(0)
	if f.gas != nil {
		p, err := f.gas.GasPrice(ctx)
		if err != nil {
			f.logger.Warn("Failed to get gas price, costing gas at zero", zap.Error(err))
		} else {
			gasPrice = p
		}
	}

	s := newScanState(f, base, gasPrice)

	found := make([][]*types.ArbitrageOpportunity, len(f.passes))
	g, gctx := errgroup.WithContext(ctx)
	for i, p := range f.passes {
		i, p := i, p
		g.Go(func() error {
			opps, err := p.Find(gctx, s)
			if err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				f.logger.Warn("Discovery pass failed",
					zap.String("pass", string(p.Kind())),
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

	var results []*types.ArbitrageOpportunity
	for _, opps := range found {
		for _, o := range opps {
			if err := o.Validate(); err != nil {
				f.logger.Debug("Dropping malformed route", zap.Error(err))
				continue
			}
			f.finalize(ctx, s, o)
			if o.Confidence < f.settings.MinConfidence || !o.ProfitValue.GreaterThan(f.settings.MinProfit) {
				continue
			}
			f.metrics.Opportunities.WithLabelValues(string(o.Kind)).Inc()
			results = append(results, o)
		}
	}

	sort.SliceStable(results, func(i, j int) bool {
		if c := results[i].ProfitValue.Cmp(results[j].ProfitValue); c != 0 {
			return c > 0
		}
		return results[i].ID < results[j].ID
	})

	f.logger.Debug("Scan complete", zap.Int("opportunities", len(results)))
	return results, nil
}

// finalize costs gas, nets profit, scores confidence and assigns the ID.
func (f *Finder) finalize(ctx context.Context, s *scanState, o *types.ArbitrageOpportunity) {
	o.ChainID = f.settings.ChainID
	o.GasEstimate = gas.EstimateArbitrageGas(o.Legs())
	o.GasCost = s.gasCostIn(ctx, o.Asset, o.GasEstimate)

	gross := big.NewInt(0)
	last := o.Trades[len(o.Trades)-1]
	if last.ExpectedAmountOut != nil {
		gross = umath.Sub(last.ExpectedAmountOut, o.Amount)
	}
	o.ExpectedProfit = umath.Sub(gross, o.GasCost)
	o.ProfitValue = s.value(ctx, o.Asset, o.ExpectedProfit)
	o.Confidence = Confidence(o, f.settings.GasCeiling, func(t *types.Trade) bool {
		return s.value(ctx, t.FromToken, t.Liquidity).LessThan(f.settings.LiquidityFloor)
	})
	o.ID = OpportunityID(o)
	o.Timestamp = f.settings.Now()
}

// OpportunityID hashes the chain, kind and leg path into a stable ID.
func OpportunityID(o *types.ArbitrageOpportunity) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%d|%s|%s", o.ChainID, o.Kind, o.Amount)
	for _, t := range o.Trades {
		fmt.Fprintf(&b, "|%s:%s>%s", t.DEX, t.FromToken.Hex(), t.ToToken.Hex())
	}
	return fmt.Sprintf("%016x", xxhash.Sum64String(b.String()))
}
