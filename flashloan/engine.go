package flashloan

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	lru "github.com/hashicorp/golang-lru"
	"go.uber.org/zap"

	"github.com/michaelpento.lv/flasharb/events"
	"github.com/michaelpento.lv/flasharb/simulator"
	"github.com/michaelpento.lv/flasharb/types"
	"github.com/michaelpento.lv/flasharb/utils/metrics"
)

const (
	DefaultMonitorInterval = 5 * time.Second
	DefaultErrorBackoff    = 10 * time.Second
	DefaultQueueInterval   = time.Second
	defaultRecentSize      = 1024

	// gasBufferPercent is added on top of the simulated gas.
	gasBufferPercent = 20
)

type Options struct {
	MonitorInterval time.Duration
	ErrorBackoff    time.Duration
	QueueInterval   time.Duration
	// RecentSize bounds the set of opportunity IDs already enqueued.
	RecentSize int
	Now        func() time.Time
}

// Engine owns the execution queue and ledger for one network.
type Engine struct {
	finder  RouteFinder
	risk    RiskGate
	gas     GasOptimizer
	pool    LendingPool
	events  Emitter
	opts    Options
	logger  *zap.Logger
	metrics *metrics.ExecutionMetrics

	cfgMu sync.RWMutex
	cfg   *types.FlashLoanConfig

	ledger *Ledger
	queue  Queue
	recent *lru.Cache

	mu     sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewEngine(cfg *types.FlashLoanConfig, finder RouteFinder, gate RiskGate, gasOpt GasOptimizer, pool LendingPool, emitter Emitter, opts Options, logger *zap.Logger, m *metrics.ExecutionMetrics) (*Engine, error) {
	if err := ValidateConfig(cfg); err != nil {
		return nil, err
	}
	if finder == nil || gate == nil || gasOpt == nil || pool == nil {
		return nil, fmt.Errorf("%w: finder, risk gate, gas optimizer and lending pool are required", types.ErrConfiguration)
	}
	if opts.MonitorInterval <= 0 {
		opts.MonitorInterval = DefaultMonitorInterval
	}
	if opts.ErrorBackoff <= 0 {
		opts.ErrorBackoff = DefaultErrorBackoff
	}
	if opts.QueueInterval <= 0 {
		opts.QueueInterval = DefaultQueueInterval
	}
	if opts.RecentSize <= 0 {
		opts.RecentSize = defaultRecentSize
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if m == nil {
		m = metrics.NewExecutionMetrics(nil)
	}

	recent, err := lru.New(opts.RecentSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create recent set: %w", err)
	}

	return &Engine{
		finder:  finder,
		risk:    gate,
		gas:     gasOpt,
		pool:    pool,
		events:  emitter,
		opts:    opts,
		logger:  logger.Named("flashloan"),
		metrics: m,
		cfg:     cloneConfig(cfg),
		ledger:  NewLedger(),
		recent:  recent,
	}, nil
}

// Start launches the monitor loop and the queue processor.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.cancel != nil {
		return fmt.Errorf("flash loan engine already running")
	}

	ctx, cancel := context.WithCancel(ctx)
	e.cancel = cancel
	e.wg.Add(2)
	go func() {
		defer e.wg.Done()
		e.monitor(ctx)
	}()
	go func() {
		defer e.wg.Done()
		e.processQueue(ctx)
	}()

	e.logger.Info("Flash loan engine started",
		zap.String("network", e.Config().Network),
		zap.Duration("monitor_interval", e.opts.MonitorInterval))
	return nil
}

// Stop cancels both loops and waits for them. An execution already in
// flight runs to completion first.
func (e *Engine) Stop() {
	e.mu.Lock()
	cancel := e.cancel
	e.cancel = nil
	e.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	e.wg.Wait()
	e.logger.Info("Flash loan engine stopped", zap.Int("queued", e.queue.Len()))
}

func (e *Engine) monitor(ctx context.Context) {
	for {
		wait := e.opts.MonitorInterval
		if err := e.MonitorOnce(ctx); err != nil {
			if ctx.Err() != nil {
				return
			}
			e.logger.Warn("Opportunity scan failed", zap.Error(err), zap.Duration("retry_in", e.opts.ErrorBackoff))
			wait = e.opts.ErrorBackoff
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(wait):
		}
	}
}

// MonitorOnce scans, publishes what it found and enqueues the single most
// profitable route if it clears the auto execute floor.
func (e *Engine) MonitorOnce(ctx context.Context) error {
	opps, err := e.finder.ScanAllOpportunities(ctx)
	if err != nil {
		return fmt.Errorf("failed to scan opportunities: %w", err)
	}
	if len(opps) == 0 {
		return nil
	}
	e.emit(ctx, events.OpportunitiesFound, append([]*types.ArbitrageOpportunity(nil), opps...))

	best := opps[0]
	for _, o := range opps[1:] {
		if o.ProfitValue.GreaterThan(best.ProfitValue) {
			best = o
		}
	}

	if !best.ProfitValue.GreaterThan(e.Config().AutoExecuteFloor) {
		return nil
	}
	if seen, _ := e.recent.ContainsOrAdd(best.ID, struct{}{}); seen {
		return nil
	}

	depth := e.Enqueue(best.Asset, best.Amount, best)
	e.logger.Info("Opportunity queued for execution",
		zap.String("opportunity_id", best.ID),
		zap.String("kind", string(best.Kind)),
		zap.String("expected_profit", best.ExpectedProfit.String()),
		zap.Int("queue_length", depth))
	return nil
}

// Enqueue adds a task for the queue processor and returns the new depth.
func (e *Engine) Enqueue(asset common.Address, amount *big.Int, route *types.ArbitrageOpportunity) int {
	depth := e.queue.Push(Task{
		Asset:      asset,
		Amount:     copyInt(amount),
		Route:      route,
		EnqueuedAt: e.opts.Now(),
	})
	e.metrics.Enqueued.Inc()
	e.metrics.QueueDepth.Set(float64(depth))
	return depth
}

func (e *Engine) QueueLength() int {
	return e.queue.Len()
}

func (e *Engine) processQueue(ctx context.Context) {
	ticker := time.NewTicker(e.opts.QueueInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		for ctx.Err() == nil && e.ProcessNext(ctx) {
		}
	}
}

// ProcessNext executes the oldest queued task. The execution does not
// observe cancellation of ctx.
func (e *Engine) ProcessNext(ctx context.Context) bool {
	task, ok := e.queue.Pop()
	if !ok {
		return false
	}
	e.metrics.QueueDepth.Set(float64(e.queue.Len()))

	rec, err := e.Execute(context.WithoutCancel(ctx), task.Asset, task.Amount, task.Route)
	if err != nil {
		e.logger.Debug("Queued execution failed",
			zap.String("execution_id", rec.ID),
			zap.Duration("waited", e.opts.Now().Sub(task.EnqueuedAt)),
			zap.Error(err))
	}
	return true
}

// Execute runs one flash loan through the gate, route, gas, submission and
// confirmation steps. Every outcome is recorded in the ledger; on error the
// failed record is returned alongside the error.
func (e *Engine) Execute(ctx context.Context, asset common.Address, amount *big.Int, route *types.ArbitrageOpportunity) (*types.FlashLoanExecution, error) {
	start := time.Now()
	opportunityID := ""
	if route != nil {
		opportunityID = route.ID
	}
	rec := e.ledger.Create(opportunityID, asset, amount, e.opts.Now())
	e.emit(ctx, events.ExecutionCreated, rec)

	logger := e.logger.With(zap.String("execution_id", rec.ID), zap.String("asset", asset.Hex()))
	logger.Debug("Execution created", zap.Stringer("amount", amount))

	profit, err := e.execute(ctx, rec.ID, asset, amount, route)
	e.metrics.ExecutionTime.Observe(time.Since(start).Seconds())

	if err != nil {
		final, _ := e.ledger.Update(rec.ID, func(r *types.FlashLoanExecution) {
			r.Status = types.StatusFailed
			r.Error = err.Error()
			r.CompletedAt = e.opts.Now()
		})
		e.metrics.Executions.WithLabelValues(string(types.StatusFailed)).Inc()
		logger.Warn("Flash loan execution failed", zap.Error(err))
		e.emit(ctx, events.ExecutionFailed, final)
		return final, err
	}

	final, _ := e.ledger.Update(rec.ID, func(r *types.FlashLoanExecution) {
		r.Status = types.StatusCompleted
		r.Profit = copyInt(profit)
		r.CompletedAt = e.opts.Now()
	})
	e.metrics.Executions.WithLabelValues(string(types.StatusCompleted)).Inc()
	if profit.Sign() > 0 {
		f, _ := new(big.Float).SetInt(profit).Float64()
		e.metrics.ProfitTotal.Add(f)
	}
	e.metrics.GasUsed.Observe(float64(final.GasUsed))
	logger.Info("Flash loan executed",
		zap.String("tx_hash", final.TransactionHash.Hex()),
		zap.Stringer("profit", profit),
		zap.Uint64("gas_used", final.GasUsed))
	e.emit(ctx, events.ExecutionCompleted, final)
	return final, nil
}

func (e *Engine) execute(ctx context.Context, id string, asset common.Address, amount *big.Int, route *types.ArbitrageOpportunity) (*big.Int, error) {
	cfg := e.Config()

	if amount == nil || amount.Sign() <= 0 {
		return nil, fmt.Errorf("%w: loan amount must be positive", types.ErrConfiguration)
	}
	if amount.Cmp(cfg.MaxLoanAmount) > 0 {
		return nil, fmt.Errorf("%w: loan amount %s exceeds maximum %s", types.ErrConfiguration, amount, cfg.MaxLoanAmount)
	}
	if route != nil {
		if err := checkRoute(route, asset, amount); err != nil {
			return nil, err
		}
	}

	assessment, err := e.risk.Assess(ctx, asset, amount, route)
	if err != nil {
		return nil, fmt.Errorf("risk assessment failed: %w", err)
	}
	if !e.risk.ShouldProceed(assessment) {
		return nil, types.NewRiskRejectedError(assessment)
	}

	if route == nil {
		route, err = e.finder.FindOptimalRoute(ctx, asset, amount)
		if err != nil {
			return nil, fmt.Errorf("failed to find route: %w", err)
		}
		if route == nil {
			return nil, fmt.Errorf("%w: no route for %s", types.ErrNoOpportunity, asset.Hex())
		}
	}
	if route.ProfitValue.LessThan(cfg.MinProfitThreshold) {
		return nil, fmt.Errorf("%w: expected profit %s below threshold %s", types.ErrNoOpportunity, route.ProfitValue, cfg.MinProfitThreshold)
	}

	e.ledger.Update(id, func(r *types.FlashLoanExecution) {
		r.Status = types.StatusExecuting
		r.OpportunityID = route.ID
	})

	req := &LoanRequest{
		Asset:    asset,
		Amount:   amount,
		Route:    route,
		Slippage: cfg.SlippageTolerance,
	}
	simulated, err := e.pool.EstimateGas(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("flash loan simulation failed: %w", err)
	}
	fees, err := e.gas.Optimize(ctx, simulator.GasLimit(simulated, gasBufferPercent), cfg.MaxGasPrice)
	if err != nil {
		return nil, fmt.Errorf("failed to optimize gas: %w", err)
	}

	tx, err := e.pool.FlashLoan(ctx, req, fees)
	if err != nil {
		return nil, fmt.Errorf("failed to submit flash loan: %w", err)
	}
	e.ledger.Update(id, func(r *types.FlashLoanExecution) {
		r.TransactionHash = tx.Hash()
	})

	waitCtx := ctx
	if cfg.ConfirmationTimeout > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, cfg.ConfirmationTimeout)
		defer cancel()
	}
	receipt, err := e.pool.WaitConfirmed(waitCtx, tx)
	if err != nil {
		return nil, fmt.Errorf("failed waiting for %s: %w", tx.Hash().Hex(), err)
	}
	e.ledger.Update(id, func(r *types.FlashLoanExecution) {
		r.GasUsed = receipt.GasUsed
	})
	if receipt.Status != ethtypes.ReceiptStatusSuccessful {
		return nil, fmt.Errorf("%w: transaction %s reverted", types.ErrExecution, tx.Hash().Hex())
	}

	profit := e.pool.RealizedProfit(receipt, asset)
	if profit == nil {
		profit = new(big.Int)
	}
	return profit, nil
}

func checkRoute(route *types.ArbitrageOpportunity, asset common.Address, amount *big.Int) error {
	if err := route.Validate(); err != nil {
		return fmt.Errorf("%w: %v", types.ErrConfiguration, err)
	}
	if route.Asset != asset {
		return fmt.Errorf("%w: route starts in %s, not %s", types.ErrConfiguration, route.Asset.Hex(), asset.Hex())
	}
	if route.Amount == nil || route.Amount.Cmp(amount) != 0 {
		return fmt.Errorf("%w: route sized for %v, not %s", types.ErrConfiguration, route.Amount, amount)
	}
	return nil
}

// Config returns a copy of the current policy.
func (e *Engine) Config() *types.FlashLoanConfig {
	e.cfgMu.RLock()
	defer e.cfgMu.RUnlock()
	return cloneConfig(e.cfg)
}

// UpdateConfig validates and installs a whole new policy.
func (e *Engine) UpdateConfig(ctx context.Context, cfg *types.FlashLoanConfig) error {
	if err := ValidateConfig(cfg); err != nil {
		return err
	}
	next := cloneConfig(cfg)

	e.cfgMu.Lock()
	e.cfg = next
	e.cfgMu.Unlock()

	if s, ok := e.risk.(gasCapSetter); ok {
		s.SetMaxGasPrice(next.MaxGasPrice)
	}
	e.logger.Info("Flash loan config updated",
		zap.Stringer("max_loan_amount", next.MaxLoanAmount),
		zap.Stringer("min_profit_threshold", next.MinProfitThreshold),
		zap.Stringer("max_gas_price", next.MaxGasPrice))
	e.emit(ctx, events.ConfigUpdated, cloneConfig(next))
	return nil
}

func (e *Engine) Execution(id string) (*types.FlashLoanExecution, bool) {
	return e.ledger.Get(id)
}

// Executions returns every record, oldest first.
func (e *Engine) Executions() []*types.FlashLoanExecution {
	return e.ledger.All()
}

func (e *Engine) emit(ctx context.Context, t events.Type, payload interface{}) {
	if e.events != nil {
		e.events.Emit(ctx, t, payload)
	}
}
