package flashloan

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/michaelpento.lv/flasharb/events"
	"github.com/michaelpento.lv/flasharb/gas"
	"github.com/michaelpento.lv/flasharb/types"
	"github.com/michaelpento.lv/flasharb/utils/metrics"
)

var (
	usdc = common.HexToAddress("0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48")
	weth = common.HexToAddress("0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2")
	dai  = common.HexToAddress("0x6B175474E89094C44Da98b954EedeAC495271d0F")
	pool = common.HexToAddress("0x7d2768dE32b0b80b7a3454c06BdAc94A69DDc7A9")
)

func testConfig() *types.FlashLoanConfig {
	return &types.FlashLoanConfig{
		MaxLoanAmount:      big.NewInt(1_000_000_000_000),
		MinProfitThreshold: decimal.New(1000, -6),
		MaxGasPrice:        big.NewInt(200e9),
		SlippageTolerance:  decimal.RequireFromString("0.005"),
		MaxRetries:         3,
		Network:            "ethereum",
		AutoExecuteFloor:   decimal.New(5000, -6),
	}
}

// route builds a USDC round trip; profit is in USDC base units.
func route(id string, amount, profit int64) *types.ArbitrageOpportunity {
	return assetRoute(id, usdc, big.NewInt(amount), big.NewInt(profit), decimal.New(profit, -6))
}

func assetRoute(id string, asset common.Address, amount, profit *big.Int, value decimal.Decimal) *types.ArbitrageOpportunity {
	return &types.ArbitrageOpportunity{
		ID:      id,
		ChainID: 1,
		Kind:    types.KindDirect,
		Asset:   asset,
		Amount:  new(big.Int).Set(amount),
		Trades: []*types.Trade{
			{DEX: "uniswap", FromToken: asset, ToToken: weth, AmountIn: new(big.Int).Set(amount), ExpectedAmountOut: big.NewInt(1e15)},
			{DEX: "sushiswap", FromToken: weth, ToToken: asset, AmountIn: big.NewInt(1e15), ExpectedAmountOut: new(big.Int).Add(amount, profit)},
		},
		ExpectedProfit: new(big.Int).Set(profit),
		ProfitValue:    value,
		GasEstimate:    325000,
	}
}

type fakeFinder struct {
	mu    sync.Mutex
	opps  []*types.ArbitrageOpportunity
	route *types.ArbitrageOpportunity
	err   error
	finds int
}

func (f *fakeFinder) ScanAllOpportunities(context.Context) ([]*types.ArbitrageOpportunity, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.opps, f.err
}

func (f *fakeFinder) FindOptimalRoute(context.Context, common.Address, *big.Int) (*types.ArbitrageOpportunity, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.finds++
	return f.route, f.err
}

type fakeGate struct {
	mu       sync.Mutex
	score    int
	issues   []string
	calls    int
	routes   []*types.ArbitrageOpportunity
	maxGas   *big.Int
	assessFn func() error
}

func (g *fakeGate) Assess(_ context.Context, asset common.Address, _ *big.Int, route *types.ArbitrageOpportunity) (*types.RiskAssessment, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls++
	g.routes = append(g.routes, route)
	if g.assessFn != nil {
		if err := g.assessFn(); err != nil {
			return nil, err
		}
	}
	level := types.RiskLow
	if g.score < 40 {
		level = types.RiskCritical
	}
	return &types.RiskAssessment{Asset: asset.Hex(), Score: g.score, Level: level, Issues: g.issues}, nil
}

func (g *fakeGate) ShouldProceed(a *types.RiskAssessment) bool {
	return a.Level != types.RiskCritical
}

func (g *fakeGate) SetMaxGasPrice(p *big.Int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.maxGas = p
}

type fakeGas struct {
	mu       sync.Mutex
	limits   []uint64
	maxGases []*big.Int
}

func (f *fakeGas) Optimize(_ context.Context, gasLimit uint64, maxGasPrice *big.Int) (*gas.Params, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.limits = append(f.limits, gasLimit)
	f.maxGases = append(f.maxGases, maxGasPrice)
	return &gas.Params{GasLimit: gasLimit, GasFeeCap: big.NewInt(50e9), GasTipCap: big.NewInt(2e9)}, nil
}

type fakePool struct {
	mu        sync.Mutex
	estimates int
	loans     int
	requests  []*LoanRequest
	status    uint64
	profit    *big.Int
	estimate  uint64
	// started is signalled when a confirmation wait begins; release gates it.
	started chan string
	release chan struct{}
	active  int
	peak    int
	block   bool
}

func newFakePool() *fakePool {
	return &fakePool{
		status:   ethtypes.ReceiptStatusSuccessful,
		profit:   big.NewInt(4200),
		estimate: 400000,
	}
}

func (p *fakePool) EstimateGas(_ context.Context, req *LoanRequest) (uint64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.estimates++
	return p.estimate, nil
}

func (p *fakePool) FlashLoan(_ context.Context, req *LoanRequest, fees *gas.Params) (*ethtypes.Transaction, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.loans++
	p.requests = append(p.requests, req)
	return ethtypes.NewTransaction(uint64(p.loans), pool, big.NewInt(0), fees.GasLimit, fees.GasFeeCap, []byte(req.Route.ID)), nil
}

func (p *fakePool) WaitConfirmed(ctx context.Context, tx *ethtypes.Transaction) (*ethtypes.Receipt, error) {
	p.mu.Lock()
	p.active++
	if p.active > p.peak {
		p.peak = p.active
	}
	block, started, release := p.block, p.started, p.release
	p.mu.Unlock()
	defer func() {
		p.mu.Lock()
		p.active--
		p.mu.Unlock()
	}()

	if started != nil {
		started <- string(tx.Data())
	}
	if block {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-release:
		}
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	return &ethtypes.Receipt{Status: p.status, GasUsed: 350000, TxHash: tx.Hash()}, nil
}

func (p *fakePool) RealizedProfit(*ethtypes.Receipt, common.Address) *big.Int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return new(big.Int).Set(p.profit)
}

func (p *fakePool) calls() (int, int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.estimates, p.loans
}

type eventLog struct {
	mu     sync.Mutex
	events []events.Event
}

func (l *eventLog) Notify(_ context.Context, e events.Event) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, e)
}

func (l *eventLog) types() []events.Type {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]events.Type, len(l.events))
	for i, e := range l.events {
		out[i] = e.Type
	}
	return out
}

type harness struct {
	engine  *Engine
	finder  *fakeFinder
	gate    *fakeGate
	gas     *fakeGas
	pool    *fakePool
	log     *eventLog
	metrics *metrics.ExecutionMetrics
}

func newHarness(t *testing.T, cfg *types.FlashLoanConfig, opts Options) *harness {
	t.Helper()
	h := &harness{
		finder:  &fakeFinder{},
		gate:    &fakeGate{score: 95},
		gas:     &fakeGas{},
		pool:    newFakePool(),
		log:     &eventLog{},
		metrics: metrics.NewExecutionMetrics(nil),
	}
	bus := events.NewBus()
	bus.Subscribe(h.log)

	var err error
	h.engine, err = NewEngine(cfg, h.finder, h.gate, h.gas, h.pool, bus, opts, zaptest.NewLogger(t), h.metrics)
	require.NoError(t, err)
	return h
}

func TestExecuteCompletes(t *testing.T) {
	h := newHarness(t, testConfig(), Options{})
	r := route("opp-1", 10_000_000, 21_000)

	rec, err := h.engine.Execute(context.Background(), usdc, big.NewInt(10_000_000), r)
	require.NoError(t, err)

	assert.Equal(t, types.StatusCompleted, rec.Status)
	assert.Equal(t, "opp-1", rec.OpportunityID)
	assert.Equal(t, int64(4200), rec.Profit.Int64())
	assert.Equal(t, uint64(350000), rec.GasUsed)
	assert.NotEqual(t, common.Hash{}, rec.TransactionHash)
	assert.False(t, rec.CompletedAt.IsZero())

	// simulated gas plus 20%, capped at the configured gas price
	assert.Equal(t, []uint64{480000}, h.gas.limits)
	assert.Equal(t, int64(200e9), h.gas.maxGases[0].Int64())

	require.Len(t, h.pool.requests, 1)
	assert.Equal(t, "0.005", h.pool.requests[0].Slippage.String())
	assert.Same(t, r, h.gate.routes[0])

	assert.Equal(t, []events.Type{events.ExecutionCreated, events.ExecutionCompleted}, h.log.types())
	assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.Executions.WithLabelValues("completed")))
	assert.Equal(t, 4200.0, testutil.ToFloat64(h.metrics.ProfitTotal))

	stored, ok := h.engine.Execution(rec.ID)
	require.True(t, ok)
	assert.Equal(t, rec, stored)
}

func TestExecuteBelowThresholdSkipsPool(t *testing.T) {
	h := newHarness(t, testConfig(), Options{})

	rec, err := h.engine.Execute(context.Background(), usdc, big.NewInt(10_000_000), route("small", 10_000_000, 999))
	require.Error(t, err)
	assert.ErrorIs(t, err, types.ErrNoOpportunity)

	estimates, loans := h.pool.calls()
	assert.Zero(t, estimates)
	assert.Zero(t, loans)
	assert.Empty(t, h.gas.limits)

	assert.Equal(t, types.StatusFailed, rec.Status)
	assert.Contains(t, rec.Error, "below threshold")
	assert.Equal(t, []events.Type{events.ExecutionCreated, events.ExecutionFailed}, h.log.types())
}

func TestExecuteResolvesRoute(t *testing.T) {
	t.Run("found", func(t *testing.T) {
		h := newHarness(t, testConfig(), Options{})
		h.finder.route = route("found", 10_000_000, 30_000)

		rec, err := h.engine.Execute(context.Background(), usdc, big.NewInt(10_000_000), nil)
		require.NoError(t, err)
		assert.Equal(t, "found", rec.OpportunityID)
		assert.Equal(t, 1, h.finder.finds)
		// risk is assessed before a route exists
		assert.Nil(t, h.gate.routes[0])
	})

	t.Run("none", func(t *testing.T) {
		h := newHarness(t, testConfig(), Options{})

		_, err := h.engine.Execute(context.Background(), usdc, big.NewInt(10_000_000), nil)
		assert.ErrorIs(t, err, types.ErrNoOpportunity)
		_, loans := h.pool.calls()
		assert.Zero(t, loans)
	})
}

func TestExecuteLoanCeiling(t *testing.T) {
	h := newHarness(t, testConfig(), Options{})
	amount := big.NewInt(2_000_000_000_000)

	_, err := h.engine.Execute(context.Background(), usdc, amount, nil)
	assert.ErrorIs(t, err, types.ErrConfiguration)
	assert.Zero(t, h.gate.calls)
	assert.Zero(t, h.finder.finds)
}

func TestExecuteRouteMismatch(t *testing.T) {
	h := newHarness(t, testConfig(), Options{})

	_, err := h.engine.Execute(context.Background(), usdc, big.NewInt(5_000_000), route("r", 10_000_000, 30_000))
	assert.ErrorIs(t, err, types.ErrConfiguration)

	_, err = h.engine.Execute(context.Background(), weth, big.NewInt(10_000_000), route("r", 10_000_000, 30_000))
	assert.ErrorIs(t, err, types.ErrConfiguration)
	assert.Zero(t, h.gate.calls)
}

func TestExecuteRiskRejected(t *testing.T) {
	h := newHarness(t, testConfig(), Options{})
	h.gate.score = 20
	h.gate.issues = []string{"gas price 250 gwei above limit 200 gwei"}

	rec, err := h.engine.Execute(context.Background(), usdc, big.NewInt(10_000_000), route("r", 10_000_000, 30_000))
	require.Error(t, err)
	assert.ErrorIs(t, err, types.ErrRiskRejected)

	var rejected *types.RiskRejectedError
	require.True(t, errors.As(err, &rejected))
	assert.Equal(t, 20, rejected.Score)
	assert.Equal(t, h.gate.issues, rejected.Issues)

	_, loans := h.pool.calls()
	assert.Zero(t, loans)
	assert.Equal(t, types.StatusFailed, rec.Status)
}

func TestExecuteRiskAssessmentError(t *testing.T) {
	h := newHarness(t, testConfig(), Options{})
	h.gate.assessFn = func() error { return types.ErrProvider }

	_, err := h.engine.Execute(context.Background(), usdc, big.NewInt(10_000_000), route("r", 10_000_000, 30_000))
	assert.ErrorIs(t, err, types.ErrProvider)
}

func TestExecuteReverted(t *testing.T) {
	h := newHarness(t, testConfig(), Options{})
	h.pool.status = ethtypes.ReceiptStatusFailed

	rec, err := h.engine.Execute(context.Background(), usdc, big.NewInt(10_000_000), route("r", 10_000_000, 30_000))
	require.Error(t, err)
	assert.ErrorIs(t, err, types.ErrExecution)
	assert.Equal(t, types.StatusFailed, rec.Status)
	assert.Equal(t, uint64(350000), rec.GasUsed)
	assert.NotEqual(t, common.Hash{}, rec.TransactionHash)
	assert.Nil(t, rec.Profit)
	assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.Executions.WithLabelValues("failed")))
}

func TestExecuteConfirmationTimeout(t *testing.T) {
	cfg := testConfig()
	cfg.ConfirmationTimeout = 20 * time.Millisecond
	h := newHarness(t, cfg, Options{})
	h.pool.block = true
	h.pool.release = make(chan struct{})

	_, err := h.engine.Execute(context.Background(), usdc, big.NewInt(10_000_000), route("r", 10_000_000, 30_000))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestMonitorOnce(t *testing.T) {
	h := newHarness(t, testConfig(), Options{})
	small := route("small", 10_000_000, 3000)
	big1 := route("big", 10_000_000, 9000)
	h.finder.opps = []*types.ArbitrageOpportunity{small, big1}
	ctx := context.Background()

	require.NoError(t, h.engine.MonitorOnce(ctx))
	assert.Equal(t, 1, h.engine.QueueLength())
	assert.Equal(t, []events.Type{events.OpportunitiesFound}, h.log.types())

	// the same opportunity is not queued twice
	require.NoError(t, h.engine.MonitorOnce(ctx))
	assert.Equal(t, 1, h.engine.QueueLength())
	assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.Enqueued))

	h.finder.opps = []*types.ArbitrageOpportunity{small}
	require.NoError(t, h.engine.MonitorOnce(ctx))
	assert.Equal(t, 1, h.engine.QueueLength())

	assert.True(t, h.engine.ProcessNext(ctx))
	assert.False(t, h.engine.ProcessNext(ctx))
	execs := h.engine.Executions()
	require.Len(t, execs, 1)
	assert.Equal(t, "big", execs[0].OpportunityID)
	assert.Equal(t, types.StatusCompleted, execs[0].Status)
}

func TestMonitorOncePicksByValue(t *testing.T) {
	h := newHarness(t, testConfig(), Options{})
	// 0.0001 DAI is a far larger base unit count than 100 USDC
	dust := assetRoute("dai-dust", dai, new(big.Int).Exp(big.NewInt(10), big.NewInt(22), nil), big.NewInt(1e14), decimal.RequireFromString("0.0001"))
	usdcRoute := assetRoute("usdc-100", usdc, big.NewInt(10_000_000_000), big.NewInt(100_000_000), decimal.NewFromInt(100))
	h.finder.opps = []*types.ArbitrageOpportunity{dust, usdcRoute}
	ctx := context.Background()

	require.NoError(t, h.engine.MonitorOnce(ctx))
	require.Equal(t, 1, h.engine.QueueLength())
	assert.True(t, h.engine.ProcessNext(ctx))

	execs := h.engine.Executions()
	require.Len(t, execs, 1)
	assert.Equal(t, "usdc-100", execs[0].OpportunityID)
	assert.Equal(t, usdc, execs[0].Asset)

	// value at or below the floor is never queued, whatever its base units
	h.finder.opps = []*types.ArbitrageOpportunity{
		assetRoute("dai-floor", dai, new(big.Int).Exp(big.NewInt(10), big.NewInt(22), nil), big.NewInt(5e15), decimal.RequireFromString("0.005")),
	}
	require.NoError(t, h.engine.MonitorOnce(ctx))
	assert.Zero(t, h.engine.QueueLength())
}

func TestMonitorOnceScanError(t *testing.T) {
	h := newHarness(t, testConfig(), Options{})
	h.finder.err = types.ErrProvider

	assert.ErrorIs(t, h.engine.MonitorOnce(context.Background()), types.ErrProvider)
	assert.Empty(t, h.log.types())
}

func TestQueueSerializesExecutions(t *testing.T) {
	h := newHarness(t, testConfig(), Options{QueueInterval: 5 * time.Millisecond, MonitorInterval: time.Hour})
	h.pool.started = make(chan string, 3)

	for _, id := range []string{"a", "b", "c"} {
		h.engine.Enqueue(usdc, big.NewInt(10_000_000), route(id, 10_000_000, 30_000))
	}
	require.NoError(t, h.engine.Start(context.Background()))
	defer h.engine.Stop()

	require.Eventually(t, func() bool {
		return h.engine.Stats().Completed == 3
	}, 2*time.Second, 5*time.Millisecond)

	var order []string
	for i := 0; i < 3; i++ {
		order = append(order, <-h.pool.started)
	}
	assert.Equal(t, []string{"a", "b", "c"}, order)
	assert.Equal(t, 1, h.pool.peak)
	assert.Zero(t, h.engine.QueueLength())
}

func TestStopWaitsForInFlight(t *testing.T) {
	h := newHarness(t, testConfig(), Options{QueueInterval: 5 * time.Millisecond, MonitorInterval: time.Hour})
	h.pool.started = make(chan string, 1)
	h.pool.release = make(chan struct{})
	h.pool.block = true

	h.engine.Enqueue(usdc, big.NewInt(10_000_000), route("slow", 10_000_000, 30_000))
	require.NoError(t, h.engine.Start(context.Background()))
	assert.Error(t, h.engine.Start(context.Background()))
	<-h.pool.started

	stopped := make(chan struct{})
	go func() {
		h.engine.Stop()
		close(stopped)
	}()

	select {
	case <-stopped:
		t.Fatal("Stop returned while an execution was in flight")
	case <-time.After(50 * time.Millisecond):
	}

	close(h.pool.release)
	<-stopped

	execs := h.engine.Executions()
	require.Len(t, execs, 1)
	assert.Equal(t, types.StatusCompleted, execs[0].Status)
}

func TestUpdateConfig(t *testing.T) {
	h := newHarness(t, testConfig(), Options{})
	ctx := context.Background()

	bad := testConfig()
	bad.Network = ""
	assert.ErrorIs(t, h.engine.UpdateConfig(ctx, bad), types.ErrConfiguration)
	assert.Equal(t, "ethereum", h.engine.Config().Network)
	assert.Empty(t, h.log.types())

	next := testConfig()
	next.MaxGasPrice = big.NewInt(100e9)
	next.MinProfitThreshold = decimal.New(50_000, -6)
	require.NoError(t, h.engine.UpdateConfig(ctx, next))

	// the caller's struct is copied, not shared
	next.MinProfitThreshold = decimal.Zero
	next.MaxGasPrice.SetInt64(1)
	assert.Equal(t, "0.05", h.engine.Config().MinProfitThreshold.String())
	assert.Equal(t, int64(100e9), h.engine.Config().MaxGasPrice.Int64())
	assert.Equal(t, int64(100e9), h.gate.maxGas.Int64())
	assert.Equal(t, []events.Type{events.ConfigUpdated}, h.log.types())

	_, err := h.engine.Execute(ctx, usdc, big.NewInt(10_000_000), route("r", 10_000_000, 30_000))
	assert.ErrorIs(t, err, types.ErrNoOpportunity)
}

func TestStats(t *testing.T) {
	h := newHarness(t, testConfig(), Options{})
	ctx := context.Background()

	_, err := h.engine.Execute(ctx, usdc, big.NewInt(10_000_000), route("ok", 10_000_000, 30_000))
	require.NoError(t, err)
	_, err = h.engine.Execute(ctx, usdc, big.NewInt(10_000_000), route("low", 10_000_000, 10))
	require.Error(t, err)
	h.engine.Enqueue(usdc, big.NewInt(10_000_000), route("later", 10_000_000, 30_000))

	s := h.engine.Stats()
	assert.Equal(t, 2, s.Total)
	assert.Equal(t, 1, s.Completed)
	assert.Equal(t, 1, s.Failed)
	assert.Equal(t, int64(4200), s.TotalProfit.Int64())
	assert.Equal(t, 0.5, s.SuccessRate)
	assert.Equal(t, 1, s.QueueLength)
}

func TestValidateConfig(t *testing.T) {
	assert.NoError(t, ValidateConfig(testConfig()))
	assert.ErrorIs(t, ValidateConfig(nil), types.ErrConfiguration)

	tests := map[string]func(c *types.FlashLoanConfig){
		"zero max loan":     func(c *types.FlashLoanConfig) { c.MaxLoanAmount = big.NewInt(0) },
		"negative profit":   func(c *types.FlashLoanConfig) { c.MinProfitThreshold = decimal.NewFromInt(-1) },
		"missing gas price": func(c *types.FlashLoanConfig) { c.MaxGasPrice = nil },
		"slippage of one":   func(c *types.FlashLoanConfig) { c.SlippageTolerance = decimal.NewFromInt(1) },
		"negative floor":    func(c *types.FlashLoanConfig) { c.AutoExecuteFloor = decimal.New(-1, -6) },
		"negative retries":  func(c *types.FlashLoanConfig) { c.MaxRetries = -1 },
		"negative timeout":  func(c *types.FlashLoanConfig) { c.ConfirmationTimeout = -time.Second },
	}
	for name, mutate := range tests {
		t.Run(name, func(t *testing.T) {
			c := testConfig()
			mutate(c)
			assert.ErrorIs(t, ValidateConfig(c), types.ErrConfiguration)
		})
	}
}

func TestLedgerFreezesTerminalRecords(t *testing.T) {
	l := NewLedger()
	rec := l.Create("o", usdc, big.NewInt(1), time.Now())
	assert.Equal(t, types.StatusPending, rec.Status)

	_, ok := l.Update(rec.ID, func(r *types.FlashLoanExecution) { r.Status = types.StatusCompleted })
	require.True(t, ok)
	_, ok = l.Update(rec.ID, func(r *types.FlashLoanExecution) { r.Status = types.StatusFailed })
	assert.False(t, ok)

	got, ok := l.Get(rec.ID)
	require.True(t, ok)
	assert.Equal(t, types.StatusCompleted, got.Status)

	got.Amount.SetInt64(99)
	again, _ := l.Get(rec.ID)
	assert.Equal(t, int64(1), again.Amount.Int64())
}
