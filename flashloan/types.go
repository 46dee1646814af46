package flashloan

import (
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/michaelpento.lv/flasharb/types"
)

// LoanRequest contains everything a lending pool needs to build the call.
type LoanRequest struct {
	Asset  common.Address
	Amount *big.Int
	Route  *types.ArbitrageOpportunity
	// Slippage reduces every leg's minimum output.
	Slippage decimal.Decimal
}

// Task is a queued execution.
type Task struct {
	Asset      common.Address
	Amount     *big.Int
	Route      *types.ArbitrageOpportunity
	EnqueuedAt time.Time
}

// Stats summarizes the ledger.
type Stats struct {
	Total       int
	Pending     int
	Executing   int
	Completed   int
	Failed      int
	TotalProfit *big.Int
	SuccessRate float64
	QueueLength int
}

// ValidateConfig checks a flash loan policy before it is installed.
func ValidateConfig(cfg *types.FlashLoanConfig) error {
	if cfg == nil {
		return fmt.Errorf("%w: flash loan config is nil", types.ErrConfiguration)
	}
	var errs []string
	if cfg.MaxLoanAmount == nil || cfg.MaxLoanAmount.Sign() <= 0 {
		errs = append(errs, "max loan amount must be positive")
	}
	if cfg.MinProfitThreshold.IsNegative() {
		errs = append(errs, "min profit threshold must not be negative")
	}
	if cfg.MaxGasPrice == nil || cfg.MaxGasPrice.Sign() <= 0 {
		errs = append(errs, "max gas price must be positive")
	}
	if cfg.SlippageTolerance.IsNegative() || cfg.SlippageTolerance.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		errs = append(errs, "slippage tolerance must be in [0,1)")
	}
	if cfg.MaxRetries < 0 {
		errs = append(errs, "max retries must not be negative")
	}
	if cfg.Network == "" {
		errs = append(errs, "network must be specified")
	}
	if cfg.AutoExecuteFloor.IsNegative() {
		errs = append(errs, "auto execute floor must not be negative")
	}
	if cfg.ConfirmationTimeout < 0 {
		errs = append(errs, "confirmation timeout must not be negative")
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %v", types.ErrConfiguration, errs)
	}
	return nil
}

func cloneConfig(cfg *types.FlashLoanConfig) *types.FlashLoanConfig {
	c := *cfg
	c.MaxLoanAmount = copyInt(cfg.MaxLoanAmount)
	c.MaxGasPrice = copyInt(cfg.MaxGasPrice)
	return &c
}

func copyInt(x *big.Int) *big.Int {
	if x == nil {
		return nil
	}
	return new(big.Int).Set(x)
}
