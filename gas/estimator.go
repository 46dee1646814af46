package gas

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"
)

const (
	// Base cost for transaction
	baseTxGas = uint64(21000)

	// Cost per DEX hop (approximate): storage reads, token transfers and
	// swap execution.
	gasPerHop = uint64(152000)
)

// FeeSource is the subset of ethclient.Client the estimator reads from.
type FeeSource interface {
	HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error)
	SuggestGasTipCap(ctx context.Context) (*big.Int, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
}

// Params are the fee fields to set on a transaction. GasFeeCap and GasTipCap
// are nil on chains without a base fee, where GasPrice applies instead.
type Params struct {
	GasLimit  uint64
	GasPrice  *big.Int
	GasFeeCap *big.Int
	GasTipCap *big.Int
}

// Estimator provides gas price estimation and tracking
type Estimator struct {
	source FeeSource
	logger *zap.Logger

	mu          sync.RWMutex
	baseFee     *big.Int
	priorityFee *big.Int
	gasPrice    *big.Int
	updatedAt   time.Time
	maxAge      time.Duration
}

// NewEstimator creates a new gas estimator. Cached prices older than maxAge
// are refreshed on read.
func NewEstimator(source FeeSource, maxAge time.Duration, logger *zap.Logger) *Estimator {
	return &Estimator{
		source: source,
		logger: logger.Named("gas"),
		maxAge: maxAge,
	}
}

// Run refreshes prices every interval until ctx is done.
func (e *Estimator) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if err := e.update(ctx); err != nil && ctx.Err() == nil {
			e.logger.Error("Failed to update gas prices", zap.Error(err))
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// update fetches latest gas prices
func (e *Estimator) update(ctx context.Context) error {
	header, err := e.source.HeaderByNumber(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to get latest header: %w", err)
	}

	gasPrice, err := e.source.SuggestGasPrice(ctx)
	if err != nil {
		return fmt.Errorf("failed to get gas price: %w", err)
	}

	var priorityFee *big.Int
	if header.BaseFee != nil {
		priorityFee, err = e.source.SuggestGasTipCap(ctx)
		if err != nil {
			return fmt.Errorf("failed to get priority fee: %w", err)
		}
	}

	e.mu.Lock()
	e.baseFee = header.BaseFee
	e.priorityFee = priorityFee
	e.gasPrice = gasPrice
	e.updatedAt = time.Now()
	e.mu.Unlock()

	return nil
}

func (e *Estimator) fresh(ctx context.Context) error {
	e.mu.RLock()
	stale := e.gasPrice == nil || time.Since(e.updatedAt) > e.maxAge
	e.mu.RUnlock()

	if stale {
		return e.update(ctx)
	}
	return nil
}

// GasPrice returns the current effective gas price.
func (e *Estimator) GasPrice(ctx context.Context) (*big.Int, error) {
	if err := e.fresh(ctx); err != nil {
		return nil, err
	}

	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.baseFee != nil {
		return new(big.Int).Add(e.baseFee, e.priorityFee), nil
	}
	return new(big.Int).Set(e.gasPrice), nil
}

// EstimateGasCost estimates the gas cost for a transaction
func (e *Estimator) EstimateGasCost(ctx context.Context, gasLimit uint64) (*big.Int, error) {
	price, err := e.GasPrice(ctx)
	if err != nil {
		return nil, err
	}
	return new(big.Int).Mul(price, new(big.Int).SetUint64(gasLimit)), nil
}

// Optimize picks fee parameters for a transaction of gasLimit, never bidding
// above maxGasPrice. The fee cap leaves room for two base fee increases.
func (e *Estimator) Optimize(ctx context.Context, gasLimit uint64, maxGasPrice *big.Int) (*Params, error) {
	if err := e.fresh(ctx); err != nil {
		return nil, err
	}

	e.mu.RLock()
	defer e.mu.RUnlock()

	params := &Params{GasLimit: gasLimit}
	if e.baseFee == nil {
		params.GasPrice = capAt(new(big.Int).Set(e.gasPrice), maxGasPrice)
		return params, nil
	}

	feeCap := new(big.Int).Add(new(big.Int).Mul(e.baseFee, big.NewInt(2)), e.priorityFee)
	feeCap = capAt(feeCap, maxGasPrice)
	tip := capAt(new(big.Int).Set(e.priorityFee), feeCap)

	params.GasFeeCap = feeCap
	params.GasTipCap = tip
	return params, nil
}

func capAt(v, ceiling *big.Int) *big.Int {
	if ceiling != nil && ceiling.Sign() > 0 && v.Cmp(ceiling) > 0 {
		return new(big.Int).Set(ceiling)
	}
	return v
}

// EstimateArbitrageGas estimates gas for a typical arbitrage transaction
func EstimateArbitrageGas(numHops int) uint64 {
	if numHops < 0 {
		numHops = 0
	}
	return baseTxGas + (gasPerHop * uint64(numHops))
}
