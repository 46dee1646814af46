package utils

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"
)

const ERC20TransferABI = `[{"anonymous":false,"inputs":[{"indexed":true,"internalType":"address","name":"from","type":"address"},{"indexed":true,"internalType":"address","name":"to","type":"address"},{"indexed":false,"internalType":"uint256","name":"value","type":"uint256"}],"name":"Transfer","type":"event"}]`

// RouteParams is the payload the flash loan receiver decodes in its
// callback: one entry per swap leg, executed in order.
type RouteParams struct {
	Routers       []common.Address
	TokensIn      []common.Address
	TokensOut     []common.Address
	AmountsIn     []*big.Int
	MinAmountsOut []*big.Int
}

// Transfer is a decoded ERC20 Transfer event.
type Transfer struct {
	Token common.Address
	From  common.Address
	To    common.Address
	Value *big.Int
}

// TransactionDecoder handles the receiver callback payload and the token
// transfers a flash loan emits.
type TransactionDecoder struct {
	erc20       abi.ABI
	routeParams abi.Arguments
	logger      *zap.Logger
}

// NewTransactionDecoder creates a new transaction decoder
func NewTransactionDecoder(logger *zap.Logger) (*TransactionDecoder, error) {
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	erc20, err := abi.JSON(strings.NewReader(ERC20TransferABI))
	if err != nil {
		return nil, fmt.Errorf("failed to parse ERC20 ABI: %w", err)
	}

	addresses, err := abi.NewType("address[]", "", nil)
	if err != nil {
		return nil, err
	}
	amounts, err := abi.NewType("uint256[]", "", nil)
	if err != nil {
		return nil, err
	}

	return &TransactionDecoder{
		erc20: erc20,
		routeParams: abi.Arguments{
			{Name: "routers", Type: addresses},
			{Name: "tokensIn", Type: addresses},
			{Name: "tokensOut", Type: addresses},
			{Name: "amountsIn", Type: amounts},
			{Name: "minAmountsOut", Type: amounts},
		},
		logger: logger,
	}, nil
}

// EncodeRouteParams abi-encodes p for the receiver callback.
func (d *TransactionDecoder) EncodeRouteParams(p *RouteParams) ([]byte, error) {
	if p == nil {
		return nil, fmt.Errorf("params cannot be nil")
	}
	n := len(p.Routers)
	if n == 0 || len(p.TokensIn) != n || len(p.TokensOut) != n || len(p.AmountsIn) != n || len(p.MinAmountsOut) != n {
		return nil, fmt.Errorf("route params must have one entry per leg")
	}
	return d.routeParams.Pack(p.Routers, p.TokensIn, p.TokensOut, p.AmountsIn, p.MinAmountsOut)
}

// DecodeRouteParams reverses EncodeRouteParams.
func (d *TransactionDecoder) DecodeRouteParams(data []byte) (*RouteParams, error) {
	params := make(map[string]interface{})
	if err := d.routeParams.UnpackIntoMap(params, data); err != nil {
		return nil, fmt.Errorf("failed to decode route params: %w", err)
	}

	out := &RouteParams{}
	var ok bool
	if out.Routers, ok = params["routers"].([]common.Address); !ok {
		return nil, fmt.Errorf("invalid routers")
	}
	if out.TokensIn, ok = params["tokensIn"].([]common.Address); !ok {
		return nil, fmt.Errorf("invalid tokensIn")
	}
	if out.TokensOut, ok = params["tokensOut"].([]common.Address); !ok {
		return nil, fmt.Errorf("invalid tokensOut")
	}
	if out.AmountsIn, ok = params["amountsIn"].([]*big.Int); !ok {
		return nil, fmt.Errorf("invalid amountsIn")
	}
	if out.MinAmountsOut, ok = params["minAmountsOut"].([]*big.Int); !ok {
		return nil, fmt.Errorf("invalid minAmountsOut")
	}
	return out, nil
}

// DecodeTransfer decodes log if it is an ERC20 Transfer.
func (d *TransactionDecoder) DecodeTransfer(log *types.Log) (*Transfer, bool) {
	event := d.erc20.Events["Transfer"]
	if len(log.Topics) != 3 || log.Topics[0] != event.ID {
		return nil, false
	}

	values, err := event.Inputs.NonIndexed().Unpack(log.Data)
	if err != nil || len(values) != 1 {
		d.logger.Debug("Malformed Transfer log",
			zap.String("token", log.Address.Hex()),
			zap.Error(err))
		return nil, false
	}
	value, ok := values[0].(*big.Int)
	if !ok {
		return nil, false
	}

	return &Transfer{
		Token: log.Address,
		From:  common.BytesToAddress(log.Topics[1].Bytes()),
		To:    common.BytesToAddress(log.Topics[2].Bytes()),
		Value: value,
	}, true
}

// TransferredTo sums every transfer of token to recipient in logs.
func (d *TransactionDecoder) TransferredTo(logs []*types.Log, token, recipient common.Address) *big.Int {
	total := new(big.Int)
	for _, l := range logs {
		if l.Address != token {
			continue
		}
		t, ok := d.DecodeTransfer(l)
		if !ok || t.To != recipient {
			continue
		}
		total.Add(total, t.Value)
	}
	return total
}
