package mempool

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
)

// EthClient defines the node calls the monitor polls
type EthClient interface {
	PendingTransactionCount(ctx context.Context) (uint, error)
	HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
}

// EthClientWrapper wraps ethclient.Client to implement EthClient interface
type EthClientWrapper struct {
	*ethclient.Client
}

var _ EthClient = (*EthClientWrapper)(nil)

// NewEthClientWrapper creates a new EthClientWrapper
func NewEthClientWrapper(client *ethclient.Client) *EthClientWrapper {
	return &EthClientWrapper{Client: client}
}
