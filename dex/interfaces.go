package dex

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Exchange represents a decentralized exchange deployment on one chain
type Exchange interface {
	// GetName returns the exchange name
	GetName() string

	// ChainID returns the chain the exchange is deployed on
	ChainID() uint64

	// FeeBps returns the swap fee charged per hop, in basis points
	FeeBps() int64

	// GetReserves returns the reserves of a token pair ordered as (tokenA, tokenB)
	GetReserves(ctx context.Context, tokenA, tokenB common.Address) (*Reserves, error)

	// EstimateReturn estimates the return amount for a swap along path
	EstimateReturn(ctx context.Context, amountIn *big.Int, path []common.Address) (*big.Int, error)
}

// RouterProvider defines an interface for exchanges that provide router contracts
type RouterProvider interface {
	GetRouterAddress() common.Address
}

// Reserves represents token pair reserves
type Reserves struct {
	Pair     common.Address
	Reserve0 *big.Int
	Reserve1 *big.Int
	// BlockTimestampLast is the pair's last update time as reported on chain
	BlockTimestampLast uint32
}
