package simulator

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"go.uber.org/zap"
)

// Backend is the subset of ethclient.Client needed to dry-run a call.
type Backend interface {
	EstimateGas(ctx context.Context, call ethereum.CallMsg) (uint64, error)
	CallContract(ctx context.Context, call ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
}

// SimulationResult represents the result of a transaction simulation
type SimulationResult struct {
	Success    bool
	GasUsed    uint64
	ReturnData []byte
	Error      error
}

// Simulator handles transaction simulation
type Simulator struct {
	backend Backend
	logger  *zap.Logger
}

// NewSimulator creates a new transaction simulator
func NewSimulator(backend Backend, logger *zap.Logger) *Simulator {
	return &Simulator{
		backend: backend,
		logger:  logger.Named("simulator"),
	}
}

// Simulate estimates gas for msg and executes it against the latest state.
// A revert is reported through the result, not the error.
func (s *Simulator) Simulate(ctx context.Context, msg ethereum.CallMsg) (*SimulationResult, error) {
	if msg.To == nil {
		return nil, fmt.Errorf("simulation target must be set")
	}

	gasUsed, err := s.backend.EstimateGas(ctx, msg)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		s.logger.Debug("Gas estimation failed",
			zap.String("to", msg.To.Hex()),
			zap.Error(err))
		return &SimulationResult{
			Success: false,
			Error:   err,
		}, nil
	}

	// Try executing the call
	call := msg
	call.Gas = gasUsed
	ret, err := s.backend.CallContract(ctx, call, nil)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return &SimulationResult{
			Success: false,
			Error:   err,
			GasUsed: gasUsed,
		}, nil
	}

	return &SimulationResult{
		Success:    true,
		GasUsed:    gasUsed,
		ReturnData: ret,
	}, nil
}

// GasLimit returns the simulated gas plus a percentage buffer.
func GasLimit(gasUsed uint64, bufferPercent uint64) uint64 {
	return gasUsed + gasUsed*bufferPercent/100
}
