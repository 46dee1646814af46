package types

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

// Chain is a configured network. Immutable after load.
type Chain struct {
	ID             uint64
	Name           string
	RPCEndpoint    string
	NativeCurrency string
	// BaseToken is the symbol every price on this chain is denominated in.
	BaseToken   string
	Maturity    int
	Competition int
}

// DEX is a V2-style exchange deployment on one chain
type DEX struct {
	Name         string
	Version      string
	Router       common.Address
	Factory      common.Address
	InitCodeHash common.Hash
	ChainID      uint64
	FeeBps       int64
	Weight       decimal.Decimal
}

// Bridge describes a cross-chain transfer protocol. Only metadata is consumed here.
type Bridge struct {
	Name            string
	Contract        common.Address
	SupportedChains []uint64
	Fee             decimal.Decimal
	Maturity        int
}

// Supports reports whether the bridge connects both chains.
func (b *Bridge) Supports(from, to uint64) bool {
	var hasFrom, hasTo bool
	for _, id := range b.SupportedChains {
		if id == from {
			hasFrom = true
		}
		if id == to {
			hasTo = true
		}
	}
	return hasFrom && hasTo
}

// Token is an ERC20 deployment on a chain
type Token struct {
	Symbol   string
	Address  common.Address
	Decimals uint8
	ChainID  uint64
	Active   bool
}

// Unit returns 10^decimals, i.e. one whole token in base units.
func (t *Token) Unit() *big.Int {
	return new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(t.Decimals)), nil)
}

// Pool is a liquidity pool between two tokens on a named DEX.
type Pool struct {
	DEX     string
	ChainID uint64
	TokenA  common.Address
	TokenB  common.Address
}

// Has reports whether token is one side of the pool.
func (p Pool) Has(token common.Address) bool {
	return p.TokenA == token || p.TokenB == token
}

// Other returns the opposite side of the pool.
func (p Pool) Other(token common.Address) common.Address {
	if p.TokenA == token {
		return p.TokenB
	}
	return p.TokenA
}

// Price is an aggregated quote of one whole token in the chain base token.
type Price struct {
	Token     common.Address
	ChainID   uint64
	Value     decimal.Decimal
	Sources   int
	Source    string
	UpdatedAt time.Time
}

// DexQuote is the price a single DEX returned for a token.
type DexQuote struct {
	DEX   string
	Price decimal.Decimal
	// Liquidity is the base-token side depth of the quoted pair, when known.
	Liquidity *big.Int
}
