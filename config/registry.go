package config

import (
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/michaelpento.lv/flasharb/types"
)

// TokenKey identifies a token deployment.
type TokenKey struct {
	ChainID uint64
	Address common.Address
}

// ChainPair is an ordered (from, to) chain pair.
type ChainPair struct {
	From uint64
	To   uint64
}

// PairParams are the static cross-chain estimates for a chain pair.
type PairParams struct {
	GasFactor     decimal.Decimal
	ExecutionTime time.Duration
}

// Registry is the parsed, read-only view of the config tables shared by
// every component. It is safe for concurrent reads.
type Registry struct {
	Chains  []types.Chain
	DEXes   []types.DEX
	Bridges []types.Bridge
	Tokens  []types.Token
	Pools   []types.Pool

	pairs      map[ChainPair]PairParams
	tradeSizes map[TokenKey]*big.Int
}

// Registry converts the YAML tables into runtime types.
func (c *Config) Registry() (*Registry, error) {
	r := &Registry{
		pairs:      make(map[ChainPair]PairParams),
		tradeSizes: make(map[TokenKey]*big.Int),
	}

	for _, ch := range c.Chains {
		r.Chains = append(r.Chains, types.Chain{
			ID:             ch.ID,
			Name:           ch.Name,
			RPCEndpoint:    ch.RPCEndpoint,
			NativeCurrency: ch.NativeCurrency,
			BaseToken:      ch.BaseToken,
			Maturity:       ch.Maturity,
			Competition:    ch.Competition,
		})
	}

	for _, d := range c.DEXes {
		weight, err := decimal.NewFromString(d.Weight)
		if err != nil {
			return nil, fmt.Errorf("dex %s: invalid weight: %w", d.Name, err)
		}
		r.DEXes = append(r.DEXes, types.DEX{
			Name:         d.Name,
			Version:      d.Version,
			Router:       common.HexToAddress(d.Router),
			Factory:      common.HexToAddress(d.Factory),
			InitCodeHash: common.HexToHash(d.InitCodeHash),
			ChainID:      d.ChainID,
			FeeBps:       d.FeeBps,
			Weight:       weight,
		})
	}

	for _, b := range c.Bridges {
		fee, err := decimal.NewFromString(b.Fee)
		if err != nil {
			return nil, fmt.Errorf("bridge %s: invalid fee: %w", b.Name, err)
		}
		r.Bridges = append(r.Bridges, types.Bridge{
			Name:            b.Name,
			Contract:        common.HexToAddress(b.Contract),
			SupportedChains: append([]uint64(nil), b.SupportedChains...),
			Fee:             fee,
			Maturity:        b.Maturity,
		})
	}

	for _, t := range c.Tokens {
		tok := types.Token{
			Symbol:   t.Symbol,
			Address:  common.HexToAddress(t.Address),
			Decimals: t.Decimals,
			ChainID:  t.ChainID,
			Active:   t.Active,
		}
		r.Tokens = append(r.Tokens, tok)
		if t.TradeSize != "" {
			size, err := decimal.NewFromString(t.TradeSize)
			if err != nil {
				return nil, fmt.Errorf("token %s: invalid trade_size: %w", t.Symbol, err)
			}
			r.tradeSizes[TokenKey{t.ChainID, tok.Address}] = size.Shift(int32(t.Decimals)).BigInt()
		}
	}

	for _, p := range c.Pools {
		a := c.token(p.ChainID, p.TokenA)
		b := c.token(p.ChainID, p.TokenB)
		if a == nil || b == nil {
			return nil, fmt.Errorf("pool %s/%s on %d: unknown token", p.TokenA, p.TokenB, p.ChainID)
		}
		r.Pools = append(r.Pools, types.Pool{
			DEX:     p.DEX,
			ChainID: p.ChainID,
			TokenA:  common.HexToAddress(a.Address),
			TokenB:  common.HexToAddress(b.Address),
		})
	}

	for _, p := range c.Tables.CrossChain {
		factor, err := decimal.NewFromString(p.GasFactor)
		if err != nil {
			return nil, fmt.Errorf("tables.cross_chain %d->%d: %w", p.From, p.To, err)
		}
		params := PairParams{GasFactor: factor, ExecutionTime: p.ExecutionTime.Duration}
		r.pairs[ChainPair{p.From, p.To}] = params
		if _, ok := r.pairs[ChainPair{p.To, p.From}]; !ok {
			r.pairs[ChainPair{p.To, p.From}] = params
		}
	}

	return r, nil
}

// Chain returns the chain with the given id, or nil.
func (r *Registry) Chain(id uint64) *types.Chain {
	for i := range r.Chains {
		if r.Chains[i].ID == id {
			return &r.Chains[i]
		}
	}
	return nil
}

// Token looks a token up by address.
func (r *Registry) Token(chainID uint64, addr common.Address) *types.Token {
	for i := range r.Tokens {
		if r.Tokens[i].ChainID == chainID && r.Tokens[i].Address == addr {
			return &r.Tokens[i]
		}
	}
	return nil
}

// TokenBySymbol looks a token up by symbol, case-insensitively.
func (r *Registry) TokenBySymbol(chainID uint64, symbol string) *types.Token {
	for i := range r.Tokens {
		if r.Tokens[i].ChainID == chainID && strings.EqualFold(r.Tokens[i].Symbol, symbol) {
			return &r.Tokens[i]
		}
	}
	return nil
}

// BaseToken returns the token prices on chainID are denominated in.
func (r *Registry) BaseToken(chainID uint64) *types.Token {
	ch := r.Chain(chainID)
	if ch == nil {
		return nil
	}
	return r.TokenBySymbol(chainID, ch.BaseToken)
}

// ActiveTokens returns the active tokens on a chain, base token excluded.
func (r *Registry) ActiveTokens(chainID uint64) []types.Token {
	base := r.BaseToken(chainID)
	var out []types.Token
	for _, t := range r.Tokens {
		if t.ChainID != chainID || !t.Active {
			continue
		}
		if base != nil && t.Address == base.Address {
			continue
		}
		out = append(out, t)
	}
	return out
}

func (r *Registry) DEXesOn(chainID uint64) []types.DEX {
	var out []types.DEX
	for _, d := range r.DEXes {
		if d.ChainID == chainID {
			out = append(out, d)
		}
	}
	return out
}

func (r *Registry) PoolsOn(chainID uint64) []types.Pool {
	var out []types.Pool
	for _, p := range r.Pools {
		if p.ChainID == chainID {
			out = append(out, p)
		}
	}
	return out
}

// DEX returns the named exchange on a chain, or nil.
func (r *Registry) DEX(chainID uint64, name string) *types.DEX {
	for i := range r.DEXes {
		if r.DEXes[i].ChainID == chainID && strings.EqualFold(r.DEXes[i].Name, name) {
			return &r.DEXes[i]
		}
	}
	return nil
}

// Pair returns the cross-chain estimates for from->to.
func (r *Registry) Pair(from, to uint64) (PairParams, bool) {
	p, ok := r.pairs[ChainPair{from, to}]
	return p, ok
}

// TradeSize returns the discovery notional for a token in base units, or
// one whole token when none is configured.
func (r *Registry) TradeSize(chainID uint64, addr common.Address) *big.Int {
	if size, ok := r.tradeSizes[TokenKey{chainID, addr}]; ok {
		return new(big.Int).Set(size)
	}
	if t := r.Token(chainID, addr); t != nil {
		return t.Unit()
	}
	return big.NewInt(0)
}
