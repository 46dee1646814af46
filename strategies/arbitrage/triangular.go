package arbitrage

import (
	"bytes"
	"context"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/michaelpento.lv/flasharb/types"
)

// TriangularPass walks every closed triangle of three pools in both
// directions. A triangle is three pools over exactly three tokens, one pool
// per token pair.
type TriangularPass struct{}

func (p *TriangularPass) Kind() types.OpportunityKind {
	return types.KindTriangular
}

func (p *TriangularPass) Find(ctx context.Context, s *scanState) ([]*types.ArbitrageOpportunity, error) {
	pools := s.f.registry.PoolsOn(s.chainID)
	var out []*types.ArbitrageOpportunity

	for i := 0; i < len(pools); i++ {
		for j := i + 1; j < len(pools); j++ {
			for k := j + 1; k < len(pools); k++ {
				if err := ctx.Err(); err != nil {
					return nil, err
				}

				tri := [3]types.Pool{pools[i], pools[j], pools[k]}
				if !IsTriangle(tri) {
					continue
				}

				start := p.startToken(s, tri)
				for _, edges := range orientTriangle(tri, start) {
					opp, err := s.evaluateCycle(ctx, types.KindTriangular, edges)
					if err != nil {
						s.f.logger.Debug("Triangle skipped", zap.Error(err))
						continue
					}
					if opp != nil {
						out = append(out, opp)
					}
				}
			}
		}
	}

	return out, nil
}

// startToken borrows the base token when the triangle contains it, otherwise
// the lowest token address.
func (p *TriangularPass) startToken(s *scanState, tri [3]types.Pool) common.Address {
	tokens := triangleTokens(tri)
	for _, t := range tokens {
		if t == s.base.Address {
			return t
		}
	}
	start := tokens[0]
	for _, t := range tokens[1:] {
		if bytes.Compare(t.Bytes(), start.Bytes()) < 0 {
			start = t
		}
	}
	return start
}

func triangleTokens(tri [3]types.Pool) []common.Address {
	seen := make(map[common.Address]bool, 6)
	var tokens []common.Address
	for _, p := range tri {
		for _, t := range []common.Address{p.TokenA, p.TokenB} {
			if !seen[t] {
				seen[t] = true
				tokens = append(tokens, t)
			}
		}
	}
	return tokens
}

// IsTriangle reports whether three pools cover exactly three tokens with one
// pool per pair.
func IsTriangle(tri [3]types.Pool) bool {
	if len(triangleTokens(tri)) != 3 {
		return false
	}
	pairs := make(map[[2]common.Address]bool, 3)
	for _, p := range tri {
		if p.TokenA == p.TokenB {
			return false
		}
		a, b := p.TokenA, p.TokenB
		if bytes.Compare(a.Bytes(), b.Bytes()) > 0 {
			a, b = b, a
		}
		pairs[[2]common.Address{a, b}] = true
	}
	return len(pairs) == 3
}

// orientTriangle returns both directed cycles starting and ending at start.
func orientTriangle(tri [3]types.Pool, start common.Address) [][]edge {
	var touching []types.Pool
	var opposite types.Pool
	for _, p := range tri {
		if p.Has(start) {
			touching = append(touching, p)
		} else {
			opposite = p
		}
	}
	if len(touching) != 2 {
		return nil
	}

	cycles := make([][]edge, 0, 2)
	for _, order := range [][2]types.Pool{{touching[0], touching[1]}, {touching[1], touching[0]}} {
		first, last := order[0], order[1]
		x := first.Other(start)
		y := last.Other(start)
		cycles = append(cycles, []edge{
			{pool: first, from: start, to: x},
			{pool: opposite, from: x, to: y},
			{pool: last, from: y, to: start},
		})
	}
	return cycles
}
