package uniswap

import (
	"bytes"
	"context"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/michaelpento.lv/flasharb/dex"
	"github.com/michaelpento.lv/flasharb/types"
)

const routerABIJson = `[{
	"inputs": [
		{"name": "amountIn", "type": "uint256"},
		{"name": "path", "type": "address[]"}
	],
	"name": "getAmountsOut",
	"outputs": [{"name": "amounts", "type": "uint256[]"}],
	"stateMutability": "view",
	"type": "function"
}]`

var routerABI = mustParseABI(routerABIJson)

// V2 implements dex.Exchange for Uniswap V2 and its forks. The deployment
// (factory, router, init code hash, fee) comes from the DEX registry.
type V2 struct {
	info   types.DEX
	caller bind.ContractCaller
	router *bind.BoundContract

	mu    sync.Mutex
	pairs map[common.Address]*Pair
}

var _ dex.Exchange = (*V2)(nil)
var _ dex.RouterProvider = (*V2)(nil)

// NewV2 creates an exchange for the given deployment
func NewV2(caller bind.ContractCaller, info types.DEX) *V2 {
	return &V2{
		info:   info,
		caller: caller,
		router: bind.NewBoundContract(info.Router, routerABI, caller, nil, nil),
		pairs:  make(map[common.Address]*Pair),
	}
}

// GetName returns the exchange name
func (u *V2) GetName() string {
	return u.info.Name
}

func (u *V2) ChainID() uint64 {
	return u.info.ChainID
}

func (u *V2) FeeBps() int64 {
	return u.info.FeeBps
}

// GetRouterAddress returns the router contract address
func (u *V2) GetRouterAddress() common.Address {
	return u.info.Router
}

// GetReserves returns the reserves of a token pair ordered as (tokenA, tokenB)
func (u *V2) GetReserves(ctx context.Context, tokenA, tokenB common.Address) (*dex.Reserves, error) {
	if tokenA == tokenB {
		return nil, fmt.Errorf("identical tokens %s", tokenA.Hex())
	}

	pair := u.getPair(tokenA, tokenB)
	reserve0, reserve1, ts, err := pair.GetReserves(ctx)
	if err != nil {
		return nil, err
	}

	token0, _ := SortTokens(tokenA, tokenB)
	if token0 != tokenA {
		reserve0, reserve1 = reserve1, reserve0
	}

	return &dex.Reserves{
		Pair:               pair.address,
		Reserve0:           reserve0,
		Reserve1:           reserve1,
		BlockTimestampLast: ts,
	}, nil
}

// EstimateReturn quotes a swap through the router's getAmountsOut
func (u *V2) EstimateReturn(ctx context.Context, amountIn *big.Int, path []common.Address) (*big.Int, error) {
	if len(path) < 2 {
		return nil, fmt.Errorf("invalid path length")
	}
	if amountIn == nil || amountIn.Sign() <= 0 {
		return nil, fmt.Errorf("amount in must be positive")
	}

	var out []interface{}
	err := u.router.Call(&bind.CallOpts{Context: ctx}, &out, "getAmountsOut", amountIn, path)
	if err != nil {
		return nil, fmt.Errorf("failed to quote %s via %s: %w", amountIn, u.info.Name, err)
	}
	if len(out) != 1 {
		return nil, fmt.Errorf("unexpected getAmountsOut output")
	}

	amounts, ok := out[0].([]*big.Int)
	if !ok || len(amounts) != len(path) {
		return nil, fmt.Errorf("failed to parse getAmountsOut amounts")
	}
	return amounts[len(amounts)-1], nil
}

// PairFor calculates the CREATE2 pair address for two tokens
func (u *V2) PairFor(tokenA, tokenB common.Address) common.Address {
	token0, token1 := SortTokens(tokenA, tokenB)
	salt := crypto.Keccak256(token0.Bytes(), token1.Bytes())
	return common.BytesToAddress(crypto.Keccak256(
		[]byte{0xff},
		u.info.Factory.Bytes(),
		salt,
		u.info.InitCodeHash.Bytes(),
	)[12:])
}

func (u *V2) getPair(tokenA, tokenB common.Address) *Pair {
	addr := u.PairFor(tokenA, tokenB)

	u.mu.Lock()
	defer u.mu.Unlock()

	if pair, ok := u.pairs[addr]; ok {
		return pair
	}
	pair := NewPair(addr, u.caller)
	u.pairs[addr] = pair
	return pair
}

// SortTokens orders two addresses the way V2 factories do
func SortTokens(tokenA, tokenB common.Address) (common.Address, common.Address) {
	if bytes.Compare(tokenA.Bytes(), tokenB.Bytes()) > 0 {
		return tokenB, tokenA
	}
	return tokenA, tokenB
}
