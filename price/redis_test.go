package price

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/michaelpento.lv/flasharb/config"
	"github.com/michaelpento.lv/flasharb/types"
	"github.com/michaelpento.lv/flasharb/utils/testutils"
)

// memHash is an in-memory HashClient.
type memHash struct {
	data   map[string]map[string]string
	err    error
	closed bool
}

func newMemHash() *memHash {
	return &memHash{data: make(map[string]map[string]string)}
}

func (m *memHash) HSet(ctx context.Context, key string, values ...interface{}) *redis.IntCmd {
	if m.err != nil {
		return redis.NewIntResult(0, m.err)
	}
	h, ok := m.data[key]
	if !ok {
		h = make(map[string]string)
		m.data[key] = h
	}
	var n int64
	for _, v := range values {
		fields, ok := v.(map[string]interface{})
		if !ok {
			continue
		}
		for f, val := range fields {
			h[f] = val.(string)
			n++
		}
	}
	return redis.NewIntResult(n, nil)
}

func (m *memHash) HGetAll(ctx context.Context, key string) *redis.MapStringStringCmd {
	if m.err != nil {
		return redis.NewMapStringStringResult(nil, m.err)
	}
	out := make(map[string]string)
	for f, v := range m.data[key] {
		out[f] = v
	}
	return redis.NewMapStringStringResult(out, nil)
}

func (m *memHash) Close() error {
	m.closed = true
	return nil
}

func testToken(t *testing.T) types.Token {
	t.Helper()
	reg, err := config.DefaultConfig().Registry()
	require.NoError(t, err)
	tok := reg.TokenBySymbol(config.ChainEthereum, "WETH")
	require.NotNil(t, tok)
	return *tok
}

func TestRedisStoreSaveAndPrice(t *testing.T) {
	ctx := context.Background()
	mem := newMemHash()
	store := NewRedisStore(mem, "test:prices", time.Minute)
	clk := &clock{t: time.Unix(1_700_000_000, 0)}
	store.now = clk.now
	tok := testToken(t)

	_, err := store.Price(ctx, tok)
	assert.True(t, errors.Is(err, types.ErrProvider))

	require.NoError(t, store.Save(ctx, tok, &types.Price{Value: decimal.RequireFromString("2004.5"), UpdatedAt: clk.t}))
	require.Len(t, mem.data, 1)
	for key := range mem.data {
		assert.Equal(t, "test:prices:1:"+"0xc02aaa39b223fe8d0a0e5c4f27ead9083c756cc2", key)
	}

	v, err := store.Price(ctx, tok)
	require.NoError(t, err)
	assert.Equal(t, "2004.5", v.String())

	clk.advance(2 * time.Minute)
	_, err = store.Price(ctx, tok)
	assert.True(t, errors.Is(err, types.ErrProvider))

	require.NoError(t, store.Close())
	assert.True(t, mem.closed)
}

func TestRedisStoreClientError(t *testing.T) {
	mem := newMemHash()
	mem.err = errors.New("connection refused")
	store := NewRedisStore(mem, "p", 0)
	tok := testToken(t)

	err := store.Save(context.Background(), tok, &types.Price{Value: decimal.NewFromInt(1)})
	assert.True(t, errors.Is(err, types.ErrProvider))
	_, err = store.Price(context.Background(), tok)
	assert.True(t, errors.Is(err, types.ErrProvider))
}

func TestRedisStoreServesLastKnownPrice(t *testing.T) {
	store := NewRedisStore(newMemHash(), "p", 0)

	live := testutils.NewFakeExchange("uniswap", config.ChainEthereum, 30)
	live.SetQuote(weth, testutils.Units(2000, 6))
	agg := newTestAggregator(t, Options{Store: store}, live)
	p, err := agg.GetPrice(context.Background(), weth, config.ChainEthereum)
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.Equal(t, SourceWeighted, p.Source)

	down := testutils.NewFakeExchange("uniswap", config.ChainEthereum, 30)
	down.Err = errors.New("rpc unavailable")
	fallback := newTestAggregator(t, Options{Oracle: store}, down)
	p, err = fallback.GetPrice(context.Background(), weth, config.ChainEthereum)
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.Equal(t, SourceOracle, p.Source)
	assert.True(t, p.Value.Equal(decimal.NewFromInt(2000)), p.Value.String())
}
