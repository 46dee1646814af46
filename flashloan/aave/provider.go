package aave

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"

	"github.com/michaelpento.lv/flasharb/flashloan"
	"github.com/michaelpento.lv/flasharb/gas"
	"github.com/michaelpento.lv/flasharb/simulator"
	"github.com/michaelpento.lv/flasharb/types"
	"github.com/michaelpento.lv/flasharb/utils"
	umath "github.com/michaelpento.lv/flasharb/utils/math"
)

// LendingPoolABI is the Aave V2 flash loan entry point.
const LendingPoolABI = `[
	{
		"inputs": [
			{"internalType": "address", "name": "receiverAddress", "type": "address"},
			{"internalType": "address[]", "name": "assets", "type": "address[]"},
			{"internalType": "uint256[]", "name": "amounts", "type": "uint256[]"},
			{"internalType": "uint256[]", "name": "modes", "type": "uint256[]"},
			{"internalType": "address", "name": "onBehalfOf", "type": "address"},
			{"internalType": "bytes", "name": "params", "type": "bytes"},
			{"internalType": "uint16", "name": "referralCode", "type": "uint16"}
		],
		"name": "flashLoan",
		"outputs": [],
		"stateMutability": "nonpayable",
		"type": "function"
	}
]`

// premiumBps is the Aave V2 flash loan premium.
const premiumBps = 9

// Backend is satisfied by *ethclient.Client.
type Backend interface {
	bind.ContractBackend
	bind.DeployBackend
}

type Config struct {
	LendingPool common.Address
	// Receiver is the contract that runs the route in executeOperation.
	Receiver        common.Address
	ProfitRecipient common.Address
	ReferralCode    uint16
}

// AaveProvider submits flash loans to an Aave V2 lending pool.
type AaveProvider struct {
	cfg      Config
	backend  Backend
	abi      abi.ABI
	contract *bind.BoundContract
	auth     *bind.TransactOpts
	sim      *simulator.Simulator
	decoder  *utils.TransactionDecoder
	logger   *zap.Logger
}

var _ flashloan.LendingPool = (*AaveProvider)(nil)

// NewAaveProvider creates a new Aave flash loan provider. auth signs every
// submitted transaction.
func NewAaveProvider(cfg Config, backend Backend, auth *bind.TransactOpts, sim *simulator.Simulator, logger *zap.Logger) (*AaveProvider, error) {
	if backend == nil || auth == nil || sim == nil {
		return nil, fmt.Errorf("%w: backend, signer and simulator are required", types.ErrConfiguration)
	}
	if cfg.LendingPool == (common.Address{}) || cfg.Receiver == (common.Address{}) || cfg.ProfitRecipient == (common.Address{}) {
		return nil, fmt.Errorf("%w: lending pool, receiver and profit recipient must be set", types.ErrConfiguration)
	}

	parsedABI, err := abi.JSON(strings.NewReader(LendingPoolABI))
	if err != nil {
		return nil, fmt.Errorf("failed to parse ABI: %w", err)
	}
	decoder, err := utils.NewTransactionDecoder(logger)
	if err != nil {
		return nil, err
	}

	return &AaveProvider{
		cfg:      cfg,
		backend:  backend,
		abi:      parsedABI,
		contract: bind.NewBoundContract(cfg.LendingPool, parsedABI, backend, backend, backend),
		auth:     auth,
		sim:      sim,
		decoder:  decoder,
		logger:   logger.Named("aave"),
	}, nil
}

// Premium is the fee the pool charges on amount.
func Premium(amount *big.Int) *big.Int {
	fee := new(big.Int).Mul(amount, big.NewInt(premiumBps))
	return fee.Div(fee, big.NewInt(10000))
}

// EstimateGas simulates the flash loan from the signer's account.
func (p *AaveProvider) EstimateGas(ctx context.Context, req *flashloan.LoanRequest) (uint64, error) {
	args, err := p.args(req)
	if err != nil {
		return 0, err
	}
	data, err := p.abi.Pack("flashLoan", args...)
	if err != nil {
		return 0, fmt.Errorf("failed to pack flash loan data: %w", err)
	}

	result, err := p.sim.Simulate(ctx, ethereum.CallMsg{
		From: p.auth.From,
		To:   &p.cfg.LendingPool,
		Data: data,
	})
	if err != nil {
		return 0, fmt.Errorf("%w: %v", types.ErrProvider, err)
	}
	if !result.Success {
		return 0, fmt.Errorf("%w: flash loan simulation reverted: %v", types.ErrExecution, result.Error)
	}
	return result.GasUsed, nil
}

// FlashLoan signs and sends the flash loan with the given fee parameters.
func (p *AaveProvider) FlashLoan(ctx context.Context, req *flashloan.LoanRequest, fees *gas.Params) (*ethtypes.Transaction, error) {
	args, err := p.args(req)
	if err != nil {
		return nil, err
	}

	opts := *p.auth
	opts.Context = ctx
	opts.GasLimit = fees.GasLimit
	if fees.GasFeeCap != nil {
		opts.GasFeeCap = fees.GasFeeCap
		opts.GasTipCap = fees.GasTipCap
	} else {
		opts.GasPrice = fees.GasPrice
	}

	tx, err := p.contract.Transact(&opts, "flashLoan", args...)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to send flash loan: %v", types.ErrProvider, err)
	}

	p.logger.Info("Flash loan submitted",
		zap.String("tx_hash", tx.Hash().Hex()),
		zap.String("asset", req.Asset.Hex()),
		zap.String("amount", req.Amount.String()),
		zap.String("premium", Premium(req.Amount).String()),
		zap.Uint64("gas_limit", tx.Gas()))
	return tx, nil
}

// WaitConfirmed blocks until tx is mined. The receipt is returned whatever
// its status; the caller decides what a revert means.
func (p *AaveProvider) WaitConfirmed(ctx context.Context, tx *ethtypes.Transaction) (*ethtypes.Receipt, error) {
	receipt, err := bind.WaitMined(ctx, p.backend, tx)
	if err != nil {
		return nil, err
	}
	if receipt.Status != ethtypes.ReceiptStatusSuccessful {
		p.logger.Warn("Flash loan reverted",
			zap.String("tx_hash", tx.Hash().Hex()),
			zap.Uint64("gas_used", receipt.GasUsed))
	}
	return receipt, nil
}

// RealizedProfit sums the asset transferred to the profit recipient.
func (p *AaveProvider) RealizedProfit(receipt *ethtypes.Receipt, asset common.Address) *big.Int {
	return p.decoder.TransferredTo(receipt.Logs, asset, p.cfg.ProfitRecipient)
}

func (p *AaveProvider) args(req *flashloan.LoanRequest) ([]interface{}, error) {
	params, err := RouteParams(req)
	if err != nil {
		return nil, err
	}
	encoded, err := p.decoder.EncodeRouteParams(params)
	if err != nil {
		return nil, fmt.Errorf("failed to encode route params: %w", err)
	}
	return []interface{}{
		p.cfg.Receiver,
		[]common.Address{req.Asset},
		[]*big.Int{req.Amount},
		[]*big.Int{big.NewInt(0)}, // no debt, repay in the same transaction
		p.cfg.Receiver,
		encoded,
		p.cfg.ReferralCode,
	}, nil
}

// RouteParams lays out the callback payload, one entry per leg, with every
// minimum output reduced by the slippage tolerance.
func RouteParams(req *flashloan.LoanRequest) (*utils.RouteParams, error) {
	if req == nil || req.Route == nil || len(req.Route.Trades) == 0 {
		return nil, fmt.Errorf("%w: flash loan needs a route", types.ErrConfiguration)
	}
	out := &utils.RouteParams{}
	for i, t := range req.Route.Trades {
		if t.Router == (common.Address{}) {
			return nil, fmt.Errorf("%w: leg %d on %s has no router", types.ErrConfiguration, i, t.DEX)
		}
		out.Routers = append(out.Routers, t.Router)
		out.TokensIn = append(out.TokensIn, t.FromToken)
		out.TokensOut = append(out.TokensOut, t.ToToken)
		out.AmountsIn = append(out.AmountsIn, umath.Copy(t.AmountIn))
		out.MinAmountsOut = append(out.MinAmountsOut, umath.ApplySlippage(t.ExpectedAmountOut, req.Slippage))
	}
	return out, nil
}
