package gas

import (
	"context"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type fakeSource struct {
	baseFee  *big.Int
	tip      *big.Int
	gasPrice *big.Int
	err      error
	headers  int
}

func (f *fakeSource) HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error) {
	f.headers++
	if f.err != nil {
		return nil, f.err
	}
	return &types.Header{Number: big.NewInt(1), BaseFee: f.baseFee}, nil
}

func (f *fakeSource) SuggestGasTipCap(ctx context.Context) (*big.Int, error) {
	return f.tip, nil
}

func (f *fakeSource) SuggestGasPrice(ctx context.Context) (*big.Int, error) {
	return f.gasPrice, nil
}

func gwei(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), big.NewInt(1e9))
}

func TestEstimateArbitrageGas(t *testing.T) {
	assert.Equal(t, uint64(325000), EstimateArbitrageGas(2))
	assert.Equal(t, uint64(477000), EstimateArbitrageGas(3))
	assert.Equal(t, uint64(629000), EstimateArbitrageGas(4))
	assert.Equal(t, uint64(21000), EstimateArbitrageGas(-1))
}

func TestOptimizeEIP1559(t *testing.T) {
	src := &fakeSource{baseFee: gwei(30), tip: gwei(2), gasPrice: gwei(32)}
	e := NewEstimator(src, time.Minute, zaptest.NewLogger(t))

	t.Run("under ceiling", func(t *testing.T) {
		p, err := e.Optimize(context.Background(), 500000, gwei(200))
		require.NoError(t, err)
		assert.Equal(t, gwei(62), p.GasFeeCap)
		assert.Equal(t, gwei(2), p.GasTipCap)
		assert.Nil(t, p.GasPrice)
		assert.Equal(t, uint64(500000), p.GasLimit)
	})

	t.Run("capped", func(t *testing.T) {
		p, err := e.Optimize(context.Background(), 500000, gwei(40))
		require.NoError(t, err)
		assert.Equal(t, gwei(40), p.GasFeeCap)
	})

	// both calls above hit the cache
	assert.Equal(t, 1, src.headers)
}

func TestOptimizeLegacy(t *testing.T) {
	src := &fakeSource{gasPrice: gwei(250)}
	e := NewEstimator(src, time.Minute, zaptest.NewLogger(t))

	p, err := e.Optimize(context.Background(), 21000, gwei(200))
	require.NoError(t, err)
	assert.Equal(t, gwei(200), p.GasPrice)
	assert.Nil(t, p.GasFeeCap)

	price, err := e.GasPrice(context.Background())
	require.NoError(t, err)
	assert.Equal(t, gwei(250), price)

	cost, err := e.EstimateGasCost(context.Background(), 2)
	require.NoError(t, err)
	assert.Equal(t, gwei(500), cost)
}

func TestOptimizeSourceError(t *testing.T) {
	e := NewEstimator(&fakeSource{err: errors.New("rpc down")}, time.Minute, zaptest.NewLogger(t))
	_, err := e.Optimize(context.Background(), 21000, gwei(200))
	assert.ErrorContains(t, err, "rpc down")
}
