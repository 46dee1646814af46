package testutils

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"sync/atomic"

	"github.com/ethereum/go-ethereum/common"

	"github.com/michaelpento.lv/flasharb/dex"
)

var ErrNoPair = errors.New("pair not found")

// FakeExchange is an in-memory dex.Exchange. EstimateReturn prefers a fixed
// quote for the path's first token and otherwise walks the stored reserves.
type FakeExchange struct {
	Name   string
	Chain  uint64
	Fee    int64
	Router common.Address
	Err    error

	mu       sync.Mutex
	reserves map[[2]common.Address][2]*big.Int
	quotes   map[common.Address]*big.Int
	calls    atomic.Int64
}

var _ dex.Exchange = (*FakeExchange)(nil)

func NewFakeExchange(name string, chainID uint64, feeBps int64) *FakeExchange {
	return &FakeExchange{
		Name:     name,
		Chain:    chainID,
		Fee:      feeBps,
		Router:   common.BytesToAddress([]byte(name)),
		reserves: make(map[[2]common.Address][2]*big.Int),
		quotes:   make(map[common.Address]*big.Int),
	}
}

// SetQuote fixes the EstimateReturn output for swaps starting at token.
func (f *FakeExchange) SetQuote(token common.Address, out *big.Int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.quotes[token] = out
}

// SetReserves stores pool reserves for (a, b) in that order.
func (f *FakeExchange) SetReserves(a, b common.Address, ra, rb *big.Int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reserves[[2]common.Address{a, b}] = [2]*big.Int{ra, rb}
	f.reserves[[2]common.Address{b, a}] = [2]*big.Int{rb, ra}
}

// Calls returns how many quote or reserve calls were made.
func (f *FakeExchange) Calls() int {
	return int(f.calls.Load())
}

func (f *FakeExchange) GetName() string                  { return f.Name }
func (f *FakeExchange) ChainID() uint64                  { return f.Chain }
func (f *FakeExchange) FeeBps() int64                    { return f.Fee }
func (f *FakeExchange) GetRouterAddress() common.Address { return f.Router }

func (f *FakeExchange) GetReserves(ctx context.Context, tokenA, tokenB common.Address) (*dex.Reserves, error) {
	f.calls.Add(1)
	if f.Err != nil {
		return nil, f.Err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.reserves[[2]common.Address{tokenA, tokenB}]
	if !ok {
		return nil, ErrNoPair
	}
	return &dex.Reserves{
		Reserve0: new(big.Int).Set(r[0]),
		Reserve1: new(big.Int).Set(r[1]),
	}, nil
}

func (f *FakeExchange) EstimateReturn(ctx context.Context, amountIn *big.Int, path []common.Address) (*big.Int, error) {
	f.calls.Add(1)
	if f.Err != nil {
		return nil, f.Err
	}
	if len(path) < 2 {
		return nil, errors.New("invalid path length")
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if q, ok := f.quotes[path[0]]; ok && len(path) == 2 {
		return new(big.Int).Set(q), nil
	}

	amount := new(big.Int).Set(amountIn)
	for i := 0; i < len(path)-1; i++ {
		r, ok := f.reserves[[2]common.Address{path[i], path[i+1]}]
		if !ok {
			return nil, ErrNoPair
		}
		amount = dex.GetAmountOut(amount, r[0], r[1], f.Fee)
	}
	return amount, nil
}

// Units returns n whole tokens of the given decimals in base units.
func Units(n int64, decimals uint8) *big.Int {
	unit := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil)
	return new(big.Int).Mul(big.NewInt(n), unit)
}
