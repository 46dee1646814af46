package utils

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

var (
	usdc      = common.HexToAddress("0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48")
	weth      = common.HexToAddress("0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2")
	router    = common.HexToAddress("0x7a250d5630B4cF539739dF2C5dAcb4c659F2488D")
	recipient = common.HexToAddress("0x2000000000000000000000000000000000000002")
)

func transferLog(token, from, to common.Address, value *big.Int) *types.Log {
	return &types.Log{
		Address: token,
		Topics: []common.Hash{
			crypto.Keccak256Hash([]byte("Transfer(address,address,uint256)")),
			common.BytesToHash(from.Bytes()),
			common.BytesToHash(to.Bytes()),
		},
		Data: common.LeftPadBytes(value.Bytes(), 32),
	}
}

func TestRouteParamsRoundTrip(t *testing.T) {
	d, err := NewTransactionDecoder(zaptest.NewLogger(t))
	require.NoError(t, err)

	in := &RouteParams{
		Routers:       []common.Address{router, router},
		TokensIn:      []common.Address{usdc, weth},
		TokensOut:     []common.Address{weth, usdc},
		AmountsIn:     []*big.Int{big.NewInt(1_000_000), big.NewInt(5e14)},
		MinAmountsOut: []*big.Int{big.NewInt(4e14), big.NewInt(1_001_000)},
	}
	data, err := d.EncodeRouteParams(in)
	require.NoError(t, err)

	out, err := d.DecodeRouteParams(data)
	require.NoError(t, err)
	assert.Equal(t, in.Routers, out.Routers)
	assert.Equal(t, in.TokensIn, out.TokensIn)
	assert.Equal(t, in.TokensOut, out.TokensOut)
	require.Len(t, out.MinAmountsOut, 2)
	assert.Equal(t, "1001000", out.MinAmountsOut[1].String())
	assert.Equal(t, "500000000000000", out.AmountsIn[1].String())
}

func TestEncodeRouteParamsRejectsRaggedLegs(t *testing.T) {
	d, err := NewTransactionDecoder(zaptest.NewLogger(t))
	require.NoError(t, err)

	_, err = d.EncodeRouteParams(&RouteParams{
		Routers:  []common.Address{router},
		TokensIn: []common.Address{usdc, weth},
	})
	assert.Error(t, err)
	_, err = d.EncodeRouteParams(nil)
	assert.Error(t, err)

	_, err = d.DecodeRouteParams([]byte{0x01, 0x02})
	assert.Error(t, err)
}

func TestDecodeTransfer(t *testing.T) {
	d, err := NewTransactionDecoder(zaptest.NewLogger(t))
	require.NoError(t, err)

	tr, ok := d.DecodeTransfer(transferLog(usdc, router, recipient, big.NewInt(1234)))
	require.True(t, ok)
	assert.Equal(t, usdc, tr.Token)
	assert.Equal(t, router, tr.From)
	assert.Equal(t, recipient, tr.To)
	assert.Equal(t, int64(1234), tr.Value.Int64())

	approval := transferLog(usdc, router, recipient, big.NewInt(1))
	approval.Topics[0] = crypto.Keccak256Hash([]byte("Approval(address,address,uint256)"))
	_, ok = d.DecodeTransfer(approval)
	assert.False(t, ok)

	truncated := transferLog(usdc, router, recipient, big.NewInt(1))
	truncated.Data = truncated.Data[:8]
	_, ok = d.DecodeTransfer(truncated)
	assert.False(t, ok)
}

func TestTransferredTo(t *testing.T) {
	d, err := NewTransactionDecoder(zaptest.NewLogger(t))
	require.NoError(t, err)

	logs := []*types.Log{
		transferLog(usdc, router, recipient, big.NewInt(100)),
		transferLog(usdc, router, router, big.NewInt(50)),
		transferLog(weth, router, recipient, big.NewInt(7)),
		transferLog(usdc, router, recipient, big.NewInt(25)),
	}
	assert.Equal(t, int64(125), d.TransferredTo(logs, usdc, recipient).Int64())
	assert.Equal(t, int64(7), d.TransferredTo(logs, weth, recipient).Int64())
	assert.Zero(t, d.TransferredTo(nil, usdc, recipient).Sign())
}
