package arbitrage

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/michaelpento.lv/flasharb/types"
)

// MultiHopPass searches simple cycles of four or more pools that start and
// end at the base token.
type MultiHopPass struct {
	maxHops int
}

const minMultiHops = 4

func (p *MultiHopPass) Kind() types.OpportunityKind {
	return types.KindMultiHop
}

func (p *MultiHopPass) Find(ctx context.Context, s *scanState) ([]*types.ArbitrageOpportunity, error) {
	if p.maxHops < minMultiHops {
		return nil, nil
	}

	cycles := Cycles(s.f.registry.PoolsOn(s.chainID), s.base.Address, minMultiHops, p.maxHops)

	var out []*types.ArbitrageOpportunity
	for _, c := range cycles {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		opp, err := s.evaluateCycle(ctx, types.KindMultiHop, c)
		if err != nil {
			s.f.logger.Debug("Cycle skipped", zap.Int("hops", len(c)), zap.Error(err))
			continue
		}
		if opp != nil {
			out = append(out, opp)
		}
	}
	return out, nil
}

// Cycles enumerates simple cycles through start with between minHops and
// maxHops pools. Both directions of a cycle are returned.
func Cycles(pools []types.Pool, start common.Address, minHops, maxHops int) [][]edge {
	var out [][]edge
	visited := map[common.Address]bool{start: true}
	used := make([]bool, len(pools))

	var walk func(at common.Address, path []edge)
	walk = func(at common.Address, path []edge) {
		for i, p := range pools {
			if used[i] || !p.Has(at) {
				continue
			}
			next := p.Other(at)
			hop := edge{pool: p, from: at, to: next}

			if next == start {
				if len(path)+1 >= minHops {
					cycle := make([]edge, len(path)+1)
					copy(cycle, path)
					cycle[len(path)] = hop
					out = append(out, cycle)
				}
				continue
			}
			if visited[next] || len(path)+1 >= maxHops {
				continue
			}

			visited[next] = true
			used[i] = true
			walk(next, append(path, hop))
			used[i] = false
			visited[next] = false
		}
	}
	walk(start, nil)
	return out
}
