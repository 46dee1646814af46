package bot

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/michaelpento.lv/flasharb/config"
	"github.com/michaelpento.lv/flasharb/dex"
	"github.com/michaelpento.lv/flasharb/dex/uniswap"
	"github.com/michaelpento.lv/flasharb/events"
	"github.com/michaelpento.lv/flasharb/flashloan"
	"github.com/michaelpento.lv/flasharb/gas"
	"github.com/michaelpento.lv/flasharb/mempool"
	"github.com/michaelpento.lv/flasharb/multichain"
	"github.com/michaelpento.lv/flasharb/price"
	"github.com/michaelpento.lv/flasharb/risk"
	"github.com/michaelpento.lv/flasharb/strategies/arbitrage"
	"github.com/michaelpento.lv/flasharb/types"
	"github.com/michaelpento.lv/flasharb/utils/metrics"
	"github.com/michaelpento.lv/flasharb/utils/monitor"
)

const (
	gasRefreshInterval = 12 * time.Second
	gasMaxAge          = 30 * time.Second
)

// Options select what New builds beyond the discovery pipeline.
type Options struct {
	// Registerer receives every collector; nil leaves them unregistered.
	Registerer prometheus.Registerer
	// Execute builds the flash loan engine for cfg.FlashLoan.Network. It
	// needs a signing key and the chain's lending pool contracts.
	Execute    bool
	PrivateKey string
}

// chain holds the per-chain components.
type chain struct {
	info    types.Chain
	client  *ethclient.Client
	gas     *gas.Estimator
	monitor *mempool.Monitor
	risk    *risk.Manager
	finder  *arbitrage.Finder
}

// Bot wires discovery, risk, execution and events for every configured chain.
type Bot struct {
	cfg      *config.Config
	registry *config.Registry
	chains   []*chain
	prices   *price.Aggregator
	store    *price.RedisStore
	scanner  *multichain.Engine
	engine   *flashloan.Engine
	bus      *events.Bus
	sinks    []*events.AsyncObserver
	status   *monitor.SystemMonitor
	logger   *zap.Logger

	wg     sync.WaitGroup
	cancel context.CancelFunc
}

// New dials every chain and builds the pipeline.
func New(ctx context.Context, cfg *config.Config, opts Options, logger *zap.Logger) (*Bot, error) {
	registry, err := cfg.Registry()
	if err != nil {
		return nil, err
	}
	flCfg, err := cfg.FlashLoan.ToTypes()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrConfiguration, err)
	}
	thresholds, err := risk.ThresholdsFromConfig(&cfg.Risk, flCfg.MaxGasPrice)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrConfiguration, err)
	}

	b := &Bot{
		cfg:      cfg,
		registry: registry,
		bus:      events.NewBus(),
		logger:   logger,
	}
	b.bus.Subscribe(events.NewLogObserver(logger))

	var (
		exchanges    []dex.Exchange
		quoteLimits  = make(map[uint64]float64)
		chainMetrics = metrics.NewChainMetrics(opts.Registerer)
		riskMetrics  = metrics.NewRiskMetrics(opts.Registerer)
	)
	for _, info := range registry.Chains {
		client, err := ethclient.DialContext(ctx, info.RPCEndpoint)
		if err != nil {
			b.close()
			return nil, fmt.Errorf("%w: failed to connect to %s: %v", types.ErrProvider, info.Name, err)
		}
		ch := &chain{
			info:   info,
			client: client,
			gas:    gas.NewEstimator(client, gasMaxAge, logger.With(zap.String("chain", info.Name))),
		}
		var monOpts []mempool.MonitorOption
		if cc := cfg.ChainByName(info.Name); cc != nil && cc.QuotesPerSecond > 0 {
			quoteLimits[info.ID] = cc.QuotesPerSecond
			monOpts = append(monOpts, mempool.WithRateLimit(cc.QuotesPerSecond))
		}
		ch.monitor = mempool.NewMonitor(info.Name, mempool.NewEthClientWrapper(client), logger, chainMetrics, monOpts...)
		b.chains = append(b.chains, ch)

		for _, d := range registry.DEXesOn(info.ID) {
			exchanges = append(exchanges, uniswap.NewV2(client, d))
		}
	}

	priceOpts := price.Options{
		TTL:             cfg.Scan.PriceTTL.Duration,
		CacheSize:       cfg.Scan.PriceCacheSize,
		QuotesPerSecond: quoteLimits,
	}
	if addr := cfg.Scan.PriceRedisAddr; addr != "" {
		b.store, err = price.DialRedisStore(ctx, addr, cfg.Scan.PriceRedisPrefix, cfg.Scan.PriceMaxAge.Duration)
		if err != nil {
			b.close()
			return nil, err
		}
		priceOpts.Oracle = b.store
		priceOpts.Store = b.store
		logger.Info("Price store enabled", zap.String("addr", addr))
	}
	b.prices, err = price.NewAggregator(registry, exchanges, priceOpts, logger, metrics.NewPriceMetrics(opts.Registerer))
	if err != nil {
		b.close()
		return nil, err
	}

	scanMetrics := metrics.NewScanMetrics(opts.Registerer, "finder")
	finders := make([]*arbitrage.Finder, 0, len(b.chains))
	for _, ch := range b.chains {
		settings, err := arbitrage.SettingsFromConfig(ch.info.ID, &cfg.Scan)
		if err != nil {
			b.close()
			return nil, fmt.Errorf("%w: %v", types.ErrConfiguration, err)
		}
		ch.finder = arbitrage.NewFinder(settings, registry, b.prices, ch.gas, logger, scanMetrics)
		finders = append(finders, ch.finder)

		riskOpts := risk.Options{
			Interval:    cfg.Risk.SampleInterval.Duration,
			HistorySize: cfg.Risk.HistorySize,
			Prices:      b.prices,
		}
		if ref := referenceToken(registry, ch.info.ID); ref != nil {
			riskOpts.Reference = ref.Address
		}
		ch.risk = risk.NewManager(ch.info.ID, thresholds, ch.monitor, riskOpts, logger.With(zap.String("chain", ch.info.Name)), riskMetrics)
	}

	crossSettings, err := multichain.SettingsFromConfig(&cfg.Scan)
	if err != nil {
		b.close()
		return nil, fmt.Errorf("%w: %v", types.ErrConfiguration, err)
	}
	b.scanner = multichain.NewEngine(crossSettings, registry, b.prices, finders, logger, metrics.NewScanMetrics(opts.Registerer, "crosschain"))

	if opts.Execute {
		if err := b.buildEngine(ctx, flCfg, opts, logger); err != nil {
			b.close()
			return nil, err
		}
	}

	var stats monitor.StatsSource
	if b.engine != nil {
		stats = b.engine
	}
	b.status = monitor.NewSystemMonitor(stats, logger)
	for _, ch := range b.chains {
		b.status.AddTrend(ch.info.Name, ch.risk)
	}

	return b, nil
}

// buildEngine wires the execution chain's finder, risk gate and gas
// estimator to an Aave lending pool and the configured event sinks.
func (b *Bot) buildEngine(ctx context.Context, flCfg *types.FlashLoanConfig, opts Options, logger *zap.Logger) error {
	ch := b.chainByName(flCfg.Network)
	if ch == nil {
		return fmt.Errorf("%w: network %q is not a configured chain", types.ErrConfiguration, flCfg.Network)
	}

	pool, err := newLendingPool(b.cfg.ChainByName(ch.info.Name), ch, opts.PrivateKey, logger)
	if err != nil {
		return err
	}

	if err := b.attachSinks(ctx, metrics.NewEventMetrics(opts.Registerer)); err != nil {
		return err
	}

	b.engine, err = flashloan.NewEngine(flCfg, ch.finder, ch.risk, ch.gas, pool, b.bus, flashloan.Options{
		MonitorInterval: b.cfg.FlashLoan.MonitorInterval.Duration,
		ErrorBackoff:    b.cfg.FlashLoan.ErrorBackoff.Duration,
		QueueInterval:   b.cfg.FlashLoan.QueueInterval.Duration,
	}, logger.With(zap.String("chain", ch.info.Name)), metrics.NewExecutionMetrics(opts.Registerer))
	return err
}

// attachSinks subscribes the Redis and Kafka publishers that are configured.
func (b *Bot) attachSinks(ctx context.Context, m *metrics.EventMetrics) error {
	ec := b.cfg.Events
	if ec.RedisAddr != "" {
		sink, err := events.DialRedis(ctx, ec.RedisAddr, ec.RedisStream)
		if err != nil {
			return fmt.Errorf("%w: %v", types.ErrProvider, err)
		}
		b.subscribe(events.NewAsyncObserver(sink, ec.BufferSize, b.logger, m))
	}
	if len(ec.KafkaBrokers) > 0 {
		sink := events.NewKafkaSink(events.NewKafkaWriter(ec.KafkaBrokers, ec.KafkaTopic))
		b.subscribe(events.NewAsyncObserver(sink, ec.BufferSize, b.logger, m))
	}
	return nil
}

func (b *Bot) subscribe(o *events.AsyncObserver) {
	b.sinks = append(b.sinks, o)
	b.bus.Subscribe(o)
}

// Start launches the background samplers and, when built, the flash loan engine.
func (b *Bot) Start(ctx context.Context) error {
	b.logger.Info("Starting flasharb...", zap.Int("chains", len(b.chains)))

	ctx, cancel := context.WithCancel(ctx)
	b.cancel = cancel

	for _, ch := range b.chains {
		ch := ch
		b.wg.Add(2)
		go func() {
			defer b.wg.Done()
			ch.gas.Run(ctx, gasRefreshInterval)
		}()
		go func() {
			defer b.wg.Done()
			ch.risk.Run(ctx)
		}()
	}

	if interval := b.cfg.Metrics.ReportInterval.Duration; interval > 0 {
		b.wg.Add(1)
		go func() {
			defer b.wg.Done()
			b.status.Run(ctx, interval)
		}()
	}

	if b.engine != nil {
		if err := b.engine.Start(ctx); err != nil {
			cancel()
			return err
		}
	}
	return nil
}

// Stop stops the engine, waits for the samplers and flushes the event sinks.
func (b *Bot) Stop() {
	b.logger.Info("Stopping flasharb...")
	if b.engine != nil {
		b.engine.Stop()
	}
	if b.cancel != nil {
		b.cancel()
	}
	b.wg.Wait()
	b.close()
}

func (b *Bot) close() {
	for _, s := range b.sinks {
		if err := s.Close(); err != nil {
			b.logger.Warn("Failed to close event sink", zap.Error(err))
		}
	}
	b.sinks = nil
	if b.store != nil {
		if err := b.store.Close(); err != nil {
			b.logger.Warn("Failed to close price store", zap.Error(err))
		}
		b.store = nil
	}
	for _, ch := range b.chains {
		ch.client.Close()
	}
}

func (b *Bot) Registry() *config.Registry {
	return b.registry
}

func (b *Bot) Scanner() *multichain.Engine {
	return b.scanner
}

// Engine is nil unless New was asked to build it.
func (b *Bot) Engine() *flashloan.Engine {
	return b.engine
}

// Risk returns the risk manager of a chain, or nil.
func (b *Bot) Risk(chainID uint64) *risk.Manager {
	for _, ch := range b.chains {
		if ch.info.ID == chainID {
			return ch.risk
		}
	}
	return nil
}

func (b *Bot) chainByName(name string) *chain {
	for _, ch := range b.chains {
		if strings.EqualFold(ch.info.Name, name) {
			return ch
		}
	}
	return nil
}

// referenceToken picks the token whose price feeds the volatility window:
// the first active non-base token of the chain.
func referenceToken(registry *config.Registry, chainID uint64) *types.Token {
	active := registry.ActiveTokens(chainID)
	if len(active) == 0 {
		return nil
	}
	return &active[0]
}
