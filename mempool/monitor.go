package mempool

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/michaelpento.lv/flasharb/types"
	"github.com/michaelpento.lv/flasharb/utils/metrics"
)

// Monitor polls a node for the live conditions the risk manager scores:
// gas price, pending transaction count and block time.
type Monitor struct {
	chain   string
	client  EthClient
	limiter *rate.Limiter
	breaker *CircuitBreaker
	logger  *zap.Logger
	metrics *metrics.ChainMetrics
	now     func() time.Time
}

type MonitorOption func(*Monitor)

// WithRateLimit bounds polls per second.
func WithRateLimit(perSecond float64) MonitorOption {
	return func(m *Monitor) {
		if perSecond > 0 {
			m.limiter = rate.NewLimiter(rate.Limit(perSecond), 1)
		}
	}
}

func WithBreaker(cfg BreakerConfig) MonitorOption {
	return func(m *Monitor) {
		m.breaker = NewCircuitBreaker(cfg, m.now, m.logger)
	}
}

func WithClock(now func() time.Time) MonitorOption {
	return func(m *Monitor) {
		m.now = now
		m.breaker.now = now
	}
}

func NewMonitor(chain string, client EthClient, logger *zap.Logger, cm *metrics.ChainMetrics, opts ...MonitorOption) *Monitor {
	if cm == nil {
		cm = metrics.NewChainMetrics(nil)
	}
	m := &Monitor{
		chain:   chain,
		client:  client,
		logger:  logger.Named("mempool").With(zap.String("chain", chain)),
		metrics: cm,
		now:     time.Now,
	}
	m.breaker = NewCircuitBreaker(DefaultBreakerConfig, m.now, m.logger)
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Sample takes one snapshot. Liquidity, price impact and volatility are left
// for the caller to fill.
func (m *Monitor) Sample(ctx context.Context) (*types.RiskMetrics, error) {
	if !m.breaker.Allow() {
		return nil, ErrCircuitOpen
	}
	if m.limiter != nil {
		if err := m.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limiter error: %w", err)
		}
	}

	snapshot, err := m.poll(ctx)
	if err != nil {
		m.metrics.PollErrors.WithLabelValues(m.chain).Inc()
		m.breaker.RecordError(err)
		return nil, fmt.Errorf("%w: %v", types.ErrProvider, err)
	}
	m.breaker.RecordSuccess()

	gasPrice, _ := new(big.Float).SetInt(snapshot.GasPrice).Float64()
	m.metrics.GasPrice.WithLabelValues(m.chain).Set(gasPrice)
	m.metrics.PendingTx.WithLabelValues(m.chain).Set(float64(snapshot.MempoolSize))
	m.metrics.BlockTime.WithLabelValues(m.chain).Set(snapshot.BlockTime.Seconds())

	return snapshot, nil
}

func (m *Monitor) poll(ctx context.Context) (*types.RiskMetrics, error) {
	gasPrice, err := m.client.SuggestGasPrice(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get gas price: %w", err)
	}

	pending, err := m.client.PendingTransactionCount(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get pending transaction count: %w", err)
	}

	blockTime, err := m.blockTime(ctx)
	if err != nil {
		return nil, err
	}

	return &types.RiskMetrics{
		GasPrice:    gasPrice,
		MempoolSize: uint64(pending),
		BlockTime:   blockTime,
		SampledAt:   m.now(),
	}, nil
}

// blockTime is the timestamp gap between the latest block and its parent.
func (m *Monitor) blockTime(ctx context.Context) (time.Duration, error) {
	head, err := m.client.HeaderByNumber(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to get latest header: %w", err)
	}
	if head.Number == nil || head.Number.Sign() == 0 {
		return 0, nil
	}

	parent, err := m.client.HeaderByNumber(ctx, new(big.Int).Sub(head.Number, big.NewInt(1)))
	if err != nil {
		return 0, fmt.Errorf("failed to get parent header: %w", err)
	}
	if head.Time < parent.Time {
		return 0, nil
	}
	return time.Duration(head.Time-parent.Time) * time.Second, nil
}

// CircuitBreaker refuses polls for a cooldown after consecutive errors.
type CircuitBreaker struct {
	config BreakerConfig
	now    func() time.Time
	logger *zap.Logger

	mu          sync.Mutex
	errorCount  int
	lastTripped time.Time
	tripped     bool
}

func NewCircuitBreaker(cfg BreakerConfig, now func() time.Time, logger *zap.Logger) *CircuitBreaker {
	if cfg.ErrorThreshold <= 0 {
		cfg.ErrorThreshold = DefaultBreakerConfig.ErrorThreshold
	}
	return &CircuitBreaker{config: cfg, now: now, logger: logger}
}

// RecordError counts a failure and reports whether the breaker tripped.
func (cb *CircuitBreaker) RecordError(err error) bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.errorCount++
	if cb.errorCount < cb.config.ErrorThreshold || cb.tripped {
		return false
	}

	cb.tripped = true
	cb.lastTripped = cb.now()
	cb.logger.Warn("Circuit breaker tripped",
		zap.Int("error_count", cb.errorCount),
		zap.Duration("cooldown", cb.config.CooldownPeriod),
		zap.Error(err))
	return true
}

func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.errorCount = 0
}

// Allow reports whether a poll may run, closing the breaker once the
// cooldown has passed.
func (cb *CircuitBreaker) Allow() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if !cb.tripped {
		return true
	}
	if cb.now().Sub(cb.lastTripped) < cb.config.CooldownPeriod {
		return false
	}

	cb.tripped = false
	cb.errorCount = 0
	cb.logger.Info("Circuit breaker reset", zap.Duration("cooldown_period", cb.config.CooldownPeriod))
	return true
}

func (cb *CircuitBreaker) IsHealthy() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return !cb.tripped
}
