package flashloan

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"

	"github.com/michaelpento.lv/flasharb/events"
	"github.com/michaelpento.lv/flasharb/gas"
	"github.com/michaelpento.lv/flasharb/types"
)

// LendingPool borrows the asset, runs the route through the receiver
// contract and repays within one transaction.
type LendingPool interface {
	// EstimateGas dry-runs the flash loan and returns the gas it used.
	EstimateGas(ctx context.Context, req *LoanRequest) (uint64, error)
	FlashLoan(ctx context.Context, req *LoanRequest, fees *gas.Params) (*ethtypes.Transaction, error)
	WaitConfirmed(ctx context.Context, tx *ethtypes.Transaction) (*ethtypes.Receipt, error)
	// RealizedProfit reads what the transaction actually paid out in asset.
	RealizedProfit(receipt *ethtypes.Receipt, asset common.Address) *big.Int
}

// RouteFinder is satisfied by *arbitrage.Finder.
type RouteFinder interface {
	ScanAllOpportunities(ctx context.Context) ([]*types.ArbitrageOpportunity, error)
	FindOptimalRoute(ctx context.Context, asset common.Address, amount *big.Int) (*types.ArbitrageOpportunity, error)
}

// RiskGate is satisfied by *risk.Manager.
type RiskGate interface {
	Assess(ctx context.Context, asset common.Address, amount *big.Int, route *types.ArbitrageOpportunity) (*types.RiskAssessment, error)
	ShouldProceed(a *types.RiskAssessment) bool
}

// GasOptimizer is satisfied by *gas.Estimator.
type GasOptimizer interface {
	Optimize(ctx context.Context, gasLimit uint64, maxGasPrice *big.Int) (*gas.Params, error)
}

// Emitter is satisfied by *events.Bus.
type Emitter interface {
	Emit(ctx context.Context, t events.Type, payload interface{})
}

// gasCapSetter lets a risk gate follow MaxGasPrice changes.
type gasCapSetter interface {
	SetMaxGasPrice(maxGasPrice *big.Int)
}
