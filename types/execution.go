package types

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

// ExecutionStatus is the lifecycle state of a flash loan execution.
type ExecutionStatus string

const (
	StatusPending   ExecutionStatus = "pending"
	StatusExecuting ExecutionStatus = "executing"
	StatusCompleted ExecutionStatus = "completed"
	StatusFailed    ExecutionStatus = "failed"
)

// Terminal reports whether no further transition is allowed.
func (s ExecutionStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// FlashLoanExecution is a ledger record. Only the engine that created it mutates it.
type FlashLoanExecution struct {
	ID              string
	OpportunityID   string
	Asset           common.Address
	Amount          *big.Int
	Profit          *big.Int
	Status          ExecutionStatus
	TransactionHash common.Hash
	GasUsed         uint64
	Timestamp       time.Time
	CompletedAt     time.Time
	Error           string
}

// Clone returns a copy safe to hand to callers outside the engine.
func (e *FlashLoanExecution) Clone() *FlashLoanExecution {
	c := *e
	if e.Amount != nil {
		c.Amount = new(big.Int).Set(e.Amount)
	}
	if e.Profit != nil {
		c.Profit = new(big.Int).Set(e.Profit)
	}
	return &c
}

// FlashLoanConfig holds execution policy. Replaced as a whole on update.
type FlashLoanConfig struct {
	// MaxLoanAmount is in the borrowed asset's base units.
	MaxLoanAmount *big.Int
	// MinProfitThreshold and AutoExecuteFloor are compared against a route's
	// ProfitValue, in whole units of the chain base token.
	MinProfitThreshold decimal.Decimal
	MaxGasPrice        *big.Int
	// SlippageTolerance is a fraction applied to every leg's minimum output.
	SlippageTolerance decimal.Decimal
	// MaxRetries is carried for operators; the engine does not retry on its own.
	MaxRetries          int
	Network             string
	AutoExecuteFloor    decimal.Decimal
	ConfirmationTimeout time.Duration
}
