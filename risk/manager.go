package risk

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/michaelpento.lv/flasharb/dex"
	"github.com/michaelpento.lv/flasharb/types"
	"github.com/michaelpento.lv/flasharb/utils/metrics"
)

const (
	DefaultSampleInterval   = 15 * time.Second
	defaultVolatilityWindow = 20
	trendWindow             = 5
)

// MetricsSource takes a live snapshot of chain conditions.
type MetricsSource interface {
	Sample(ctx context.Context) (*types.RiskMetrics, error)
}

// PriceSource feeds the volatility window.
type PriceSource interface {
	GetPrice(ctx context.Context, token common.Address, chainID uint64) (*types.Price, error)
}

type Options struct {
	Interval    time.Duration
	HistorySize int
	// Prices and Reference enable volatility tracking on one token's price.
	Prices           PriceSource
	Reference        common.Address
	VolatilityWindow int
	Now              func() time.Time
}

// Manager scores trades against live chain conditions and keeps a sampled
// history for trend analysis.
type Manager struct {
	chainID   uint64
	source    MetricsSource
	prices    PriceSource
	reference common.Address
	interval  time.Duration
	now       func() time.Time
	history   *History
	logger    *zap.Logger
	metrics   *metrics.RiskMetrics

	mu         sync.RWMutex
	thresholds Thresholds

	priceMu     sync.Mutex
	window      []decimal.Decimal
	windowLimit int
}

func NewManager(chainID uint64, th Thresholds, source MetricsSource, opts Options, logger *zap.Logger, m *metrics.RiskMetrics) *Manager {
	if opts.Interval <= 0 {
		opts.Interval = DefaultSampleInterval
	}
	if opts.VolatilityWindow <= 1 {
		opts.VolatilityWindow = defaultVolatilityWindow
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if m == nil {
		m = metrics.NewRiskMetrics(nil)
	}
	return &Manager{
		chainID:     chainID,
		source:      source,
		prices:      opts.Prices,
		reference:   opts.Reference,
		interval:    opts.Interval,
		now:         opts.Now,
		history:     NewHistory(opts.HistorySize),
		logger:      logger.Named("risk"),
		metrics:     m,
		thresholds:  th,
		windowLimit: opts.VolatilityWindow,
	}
}

func (m *Manager) Thresholds() Thresholds {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.thresholds
}

// SetMaxGasPrice follows a flash loan config update.
func (m *Manager) SetMaxGasPrice(maxGasPrice *big.Int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.thresholds.MaxGasPrice = new(big.Int).Set(maxGasPrice)
}

func (m *Manager) History() *History {
	return m.history
}

// Run samples immediately and then every interval until ctx is done.
func (m *Manager) Run(ctx context.Context) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		if _, err := m.SampleOnce(ctx); err != nil && ctx.Err() == nil {
			m.logger.Warn("Failed to sample chain metrics", zap.Error(err))
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// SampleOnce takes a snapshot and records it in the history.
func (m *Manager) SampleOnce(ctx context.Context) (*types.RiskMetrics, error) {
	snapshot, err := m.source.Sample(ctx)
	if err != nil {
		m.metrics.SampleErrors.Inc()
		return nil, fmt.Errorf("failed to sample metrics: %w", err)
	}
	if snapshot.SampledAt.IsZero() {
		snapshot.SampledAt = m.now()
	}
	snapshot.Volatility = m.observeVolatility(ctx)

	a := Score(Input{Metrics: snapshot}, m.Thresholds())
	m.history.Add(Sample{Metrics: snapshot, Score: a.Score})
	m.metrics.Samples.Inc()
	return snapshot, nil
}

// Assess scores trading amount of asset, optionally along route, against
// the latest sample. A stale or missing sample is refreshed first.
func (m *Manager) Assess(ctx context.Context, asset common.Address, amount *big.Int, route *types.ArbitrageOpportunity) (*types.RiskAssessment, error) {
	current, err := m.current(ctx)
	if err != nil {
		return nil, err
	}

	snapshot := *current
	legs := 0
	if route != nil {
		legs = route.Legs()
		snapshot.Liquidity, snapshot.PriceImpact = RouteLiquidity(route)
	}

	a := Score(Input{Metrics: &snapshot, Amount: amount, Legs: legs}, m.Thresholds())
	a.Asset = asset.Hex()
	a.AssessedAt = m.now()

	m.metrics.Assessments.Inc()
	m.metrics.Score.Observe(float64(a.Score))
	m.logger.Debug("Risk assessed",
		zap.String("asset", a.Asset),
		zap.Int("score", a.Score),
		zap.String("level", string(a.Level)),
		zap.Strings("issues", a.Issues))
	return a, nil
}

// ShouldProceed applies the gate and counts rejections.
func (m *Manager) ShouldProceed(a *types.RiskAssessment) bool {
	ok := ShouldProceed(a)
	if !ok {
		m.metrics.Rejections.Inc()
	}
	return ok
}

func (m *Manager) current(ctx context.Context) (*types.RiskMetrics, error) {
	latest, ok := m.history.Latest()
	if ok && m.now().Sub(latest.Metrics.SampledAt) <= 2*m.interval {
		return latest.Metrics, nil
	}

	fresh, err := m.SampleOnce(ctx)
	if err == nil {
		return fresh, nil
	}
	if ok {
		m.logger.Warn("Using stale metrics", zap.Time("sampled_at", latest.Metrics.SampledAt), zap.Error(err))
		return latest.Metrics, nil
	}
	return nil, err
}

// RouteLiquidity returns the shallowest leg depth expressed in route asset
// units and the worst leg price impact.
func RouteLiquidity(route *types.ArbitrageOpportunity) (*big.Int, decimal.Decimal) {
	var liquidity *big.Int
	impact := decimal.Zero

	for _, t := range route.Trades {
		if t.Liquidity == nil || t.AmountIn == nil || t.AmountIn.Sign() <= 0 {
			continue
		}
		depth := new(big.Int).Mul(t.Liquidity, route.Amount)
		depth.Quo(depth, t.AmountIn)
		if liquidity == nil || depth.Cmp(liquidity) < 0 {
			liquidity = depth
		}
		if pi := dex.PriceImpact(t.AmountIn, t.Liquidity); pi.GreaterThan(impact) {
			impact = pi
		}
	}
	return liquidity, impact
}

// observeVolatility records the reference price and returns the relative
// range of the window.
func (m *Manager) observeVolatility(ctx context.Context) decimal.Decimal {
	if m.prices == nil || m.reference == (common.Address{}) {
		return decimal.Zero
	}
	p, err := m.prices.GetPrice(ctx, m.reference, m.chainID)
	if err != nil || p == nil || !p.Value.IsPositive() {
		return decimal.Zero
	}

	m.priceMu.Lock()
	defer m.priceMu.Unlock()
	m.window = append(m.window, p.Value)
	if len(m.window) > m.windowLimit {
		m.window = m.window[len(m.window)-m.windowLimit:]
	}
	return Volatility(m.window)
}

// Volatility is (max-min)/min over prices.
func Volatility(prices []decimal.Decimal) decimal.Decimal {
	if len(prices) < 2 {
		return decimal.Zero
	}
	lo, hi := prices[0], prices[0]
	for _, p := range prices[1:] {
		if p.LessThan(lo) {
			lo = p
		}
		if p.GreaterThan(hi) {
			hi = p
		}
	}
	if !lo.IsPositive() {
		return decimal.Zero
	}
	return hi.Sub(lo).DivRound(lo, 18)
}
