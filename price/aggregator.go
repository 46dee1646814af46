package price

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	lru "github.com/hashicorp/golang-lru"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"

	"github.com/michaelpento.lv/flasharb/config"
	"github.com/michaelpento.lv/flasharb/dex"
	"github.com/michaelpento.lv/flasharb/types"
	umath "github.com/michaelpento.lv/flasharb/utils/math"
	"github.com/michaelpento.lv/flasharb/utils/metrics"
)

const (
	DefaultTTL       = 30 * time.Second
	defaultCacheSize = 1024

	SourceWeighted = "weighted"
	SourceOracle   = "oracle"
)

// Oracle is an external price source used when no DEX can quote a token.
type Oracle interface {
	Price(ctx context.Context, token types.Token) (decimal.Decimal, error)
}

type Options struct {
	TTL       time.Duration
	CacheSize int
	// QuotesPerSecond throttles DEX calls per chain; zero means unlimited.
	QuotesPerSecond map[uint64]float64
	Oracle          Oracle
	// Store receives every DEX-derived price.
	Store Store
	Now   func() time.Time
}

// Store keeps the last DEX-derived price of a token.
type Store interface {
	Save(ctx context.Context, token types.Token, p *types.Price) error
}

type cacheKey struct {
	token   common.Address
	chainID uint64
}

type cacheEntry struct {
	price     *types.Price
	quotes    []types.DexQuote
	fetchedAt time.Time
}

// Aggregator caches liquidity-weighted token prices per (token, chain).
type Aggregator struct {
	registry  *config.Registry
	exchanges map[uint64][]dex.Exchange
	limiters  map[uint64]*rate.Limiter
	oracle    Oracle
	store     Store
	ttl       time.Duration
	now       func() time.Time

	cache   *lru.Cache
	flights singleflight.Group

	logger  *zap.Logger
	metrics *metrics.PriceMetrics
}

// NewAggregator creates an aggregator over the given exchanges, grouped by chain.
func NewAggregator(registry *config.Registry, exchanges []dex.Exchange, opts Options, logger *zap.Logger, m *metrics.PriceMetrics) (*Aggregator, error) {
	if opts.TTL <= 0 {
		opts.TTL = DefaultTTL
	}
	if opts.CacheSize <= 0 {
		opts.CacheSize = defaultCacheSize
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if m == nil {
		m = metrics.NewPriceMetrics(nil)
	}

	cache, err := lru.New(opts.CacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create price cache: %w", err)
	}

	a := &Aggregator{
		registry:  registry,
		exchanges: make(map[uint64][]dex.Exchange),
		limiters:  make(map[uint64]*rate.Limiter),
		oracle:    opts.Oracle,
		store:     opts.Store,
		ttl:       opts.TTL,
		now:       opts.Now,
		cache:     cache,
		logger:    logger.Named("price"),
		metrics:   m,
	}
	for _, ex := range exchanges {
		a.exchanges[ex.ChainID()] = append(a.exchanges[ex.ChainID()], ex)
	}
	for chainID, qps := range opts.QuotesPerSecond {
		if qps > 0 {
			a.limiters[chainID] = rate.NewLimiter(rate.Limit(qps), int(qps)+1)
		}
	}

	return a, nil
}

// Exchanges returns the exchanges registered for a chain.
func (a *Aggregator) Exchanges(chainID uint64) []dex.Exchange {
	return a.exchanges[chainID]
}

// Exchange returns the named exchange on a chain, or nil.
func (a *Aggregator) Exchange(chainID uint64, name string) dex.Exchange {
	for _, ex := range a.exchanges[chainID] {
		if strings.EqualFold(ex.GetName(), name) {
			return ex
		}
	}
	return nil
}

// GetPrice returns the weighted price of one whole token in the chain base
// token. A nil price with a nil error means no source could quote it.
func (a *Aggregator) GetPrice(ctx context.Context, token common.Address, chainID uint64) (*types.Price, error) {
	entry, err := a.lookup(ctx, token, chainID)
	if err != nil {
		return nil, err
	}
	if entry.price == nil {
		return nil, nil
	}
	p := *entry.price
	return &p, nil
}

// GetQuotes returns the per-DEX quotes behind the cached price.
func (a *Aggregator) GetQuotes(ctx context.Context, token common.Address, chainID uint64) ([]types.DexQuote, error) {
	entry, err := a.lookup(ctx, token, chainID)
	if err != nil {
		return nil, err
	}
	out := make([]types.DexQuote, len(entry.quotes))
	copy(out, entry.quotes)
	return out, nil
}

// Invalidate drops the cached price of a token.
func (a *Aggregator) Invalidate(token common.Address, chainID uint64) {
	a.cache.Remove(cacheKey{token, chainID})
}

func (a *Aggregator) lookup(ctx context.Context, token common.Address, chainID uint64) (*cacheEntry, error) {
	key := cacheKey{token, chainID}
	if v, ok := a.cache.Get(key); ok {
		entry := v.(*cacheEntry)
		if a.now().Sub(entry.fetchedAt) < a.ttl {
			a.metrics.CacheHits.Inc()
			return entry, nil
		}
	}
	a.metrics.CacheMisses.Inc()

	v, err, _ := a.flights.Do(fmt.Sprintf("%d:%s", chainID, token.Hex()), func() (interface{}, error) {
		entry, err := a.fetch(ctx, token, chainID)
		if err != nil {
			return nil, err
		}
		a.cache.Add(key, entry)
		return entry, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*cacheEntry), nil
}

func (a *Aggregator) fetch(ctx context.Context, tokenAddr common.Address, chainID uint64) (*cacheEntry, error) {
	token := a.registry.Token(chainID, tokenAddr)
	if token == nil {
		return nil, fmt.Errorf("%w: token %s not registered on chain %d", types.ErrConfiguration, tokenAddr.Hex(), chainID)
	}
	base := a.registry.BaseToken(chainID)
	if base == nil {
		return nil, fmt.Errorf("%w: no base token on chain %d", types.ErrConfiguration, chainID)
	}

	now := a.now()
	if token.Address == base.Address {
		return &cacheEntry{
			price: &types.Price{
				Token:     token.Address,
				ChainID:   chainID,
				Value:     decimal.NewFromInt(1),
				Source:    base.Symbol,
				UpdatedAt: now,
			},
			fetchedAt: now,
		}, nil
	}

	quotes, err := a.fetchQuotes(ctx, token, base)
	if err != nil {
		return nil, err
	}

	entry := &cacheEntry{quotes: quotes, fetchedAt: now}
	if len(quotes) > 0 {
		entry.price = &types.Price{
			Token:     token.Address,
			ChainID:   chainID,
			Value:     a.weightedAverage(chainID, quotes),
			Sources:   len(quotes),
			Source:    SourceWeighted,
			UpdatedAt: now,
		}
		if a.store != nil {
			if err := a.store.Save(ctx, *token, entry.price); err != nil {
				a.logger.Warn("Failed to store price", zap.String("token", token.Symbol), zap.Error(err))
			}
		}
		return entry, nil
	}

	if a.oracle != nil {
		value, err := a.oracle.Price(ctx, *token)
		if err != nil {
			a.logger.Warn("Oracle fallback failed",
				zap.String("token", token.Symbol),
				zap.Uint64("chain", chainID),
				zap.Error(err))
		} else if value.IsPositive() {
			entry.price = &types.Price{
				Token:     token.Address,
				ChainID:   chainID,
				Value:     value,
				Sources:   1,
				Source:    SourceOracle,
				UpdatedAt: now,
			}
		}
	}

	return entry, nil
}

// fetchQuotes asks every exchange on the chain concurrently. Exchanges that
// fail are skipped.
func (a *Aggregator) fetchQuotes(ctx context.Context, token, base *types.Token) ([]types.DexQuote, error) {
	exchanges := a.exchanges[token.ChainID]
	results := make([]*types.DexQuote, len(exchanges))
	limiter := a.limiters[token.ChainID]

	g, gctx := errgroup.WithContext(ctx)
	for i, ex := range exchanges {
		i, ex := i, ex
		g.Go(func() error {
			if limiter != nil {
				if err := limiter.Wait(gctx); err != nil {
					return err
				}
			}

			quote, err := a.quote(gctx, ex, token, base)
			if err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				a.metrics.QuoteErrors.WithLabelValues(ex.GetName()).Inc()
				a.logger.Debug("DEX quote failed",
					zap.String("dex", ex.GetName()),
					zap.String("token", token.Symbol),
					zap.Uint64("chain", token.ChainID),
					zap.Error(fmt.Errorf("%w: %v", types.ErrProvider, err)))
				return nil
			}
			results[i] = quote
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("failed to fetch quotes: %w", err)
	}

	quotes := make([]types.DexQuote, 0, len(results))
	for _, q := range results {
		if q != nil {
			quotes = append(quotes, *q)
		}
	}
	return quotes, nil
}

// quote prices one whole token in base via the exchange router.
func (a *Aggregator) quote(ctx context.Context, ex dex.Exchange, token, base *types.Token) (*types.DexQuote, error) {
	start := time.Now()
	defer func() { a.metrics.QuoteLatency.Observe(time.Since(start).Seconds()) }()

	out, err := ex.EstimateReturn(ctx, token.Unit(), []common.Address{token.Address, base.Address})
	if err != nil {
		return nil, err
	}
	if out == nil || out.Sign() <= 0 {
		return nil, fmt.Errorf("no liquidity")
	}

	quote := &types.DexQuote{
		DEX:   ex.GetName(),
		Price: umath.ToDecimal(out, base.Decimals),
	}

	// depth is informational, a failure here keeps the quote
	if reserves, err := ex.GetReserves(ctx, token.Address, base.Address); err == nil {
		quote.Liquidity = new(big.Int).Set(reserves.Reserve1)
	}
	return quote, nil
}

func (a *Aggregator) weightedAverage(chainID uint64, quotes []types.DexQuote) decimal.Decimal {
	sum := decimal.Zero
	weights := decimal.Zero
	for _, q := range quotes {
		w := decimal.NewFromInt(1)
		if d := a.registry.DEX(chainID, q.DEX); d != nil && d.Weight.IsPositive() {
			w = d.Weight
		}
		sum = sum.Add(q.Price.Mul(w))
		weights = weights.Add(w)
	}
	if weights.IsZero() {
		return decimal.Zero
	}
	return sum.DivRound(weights, 18)
}
