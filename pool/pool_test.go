package pool

import (
	"context"
	"errors"
	"math/big"
	"testing"

	ethclients "github.com/Iwinswap/iwinswap-ethclients"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	poolAddr = common.HexToAddress("0xA478c2975Ab1Ea89e8196811F51A7B7Ade33eB11")
	weth     = common.HexToAddress("0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2")
)

func addressToWord(addr common.Address) []byte {
	word := make([]byte, 32)
	copy(word[12:], addr.Bytes())
	return word
}

func reservesToBytes(r0, r1 *big.Int) []byte {
	data := make([]byte, 96)
	copy(data[32-len(r0.Bytes()):32], r0.Bytes())
	copy(data[64-len(r1.Bytes()):64], r1.Bytes())
	return data
}

func TestToken0(t *testing.T) {
	t.Run("Happy path", func(t *testing.T) {
		client := ethclients.NewTestETHClient()
		client.SetCallContractHandler(func(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
			require.Equal(t, poolAddr, *msg.To)
			require.Equal(t, token0Sig, msg.Data)
			return addressToWord(weth), nil
		})

		token0, err := Token0(context.Background(), poolAddr, client)
		require.NoError(t, err)
		assert.Equal(t, weth, token0)
	})

	t.Run("RPC error", func(t *testing.T) {
		client := ethclients.NewTestETHClient()
		client.SetCallContractHandler(func(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
			return nil, errors.New("rpc error")
		})

		_, err := Token0(context.Background(), poolAddr, client)
		require.Error(t, err)
	})

	t.Run("Malformed response", func(t *testing.T) {
		client := ethclients.NewTestETHClient()
		client.SetCallContractHandler(func(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
			return []byte{0x01, 0x02}, nil
		})

		_, err := Token0(context.Background(), poolAddr, client)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid response length")
	})
}

func TestReserves(t *testing.T) {
	r0 := new(big.Int).Mul(big.NewInt(100), big.NewInt(1e18))
	r1 := new(big.Int).Mul(big.NewInt(50000), big.NewInt(1e18))

	t.Run("Happy path", func(t *testing.T) {
		client := ethclients.NewTestETHClient()
		client.SetCallContractHandler(func(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
			require.Equal(t, getReservesSig, msg.Data)
			return reservesToBytes(r0, r1), nil
		})

		got0, got1, err := Reserves(context.Background(), poolAddr, client)
		require.NoError(t, err)
		assert.Equal(t, 0, r0.Cmp(got0))
		assert.Equal(t, 0, r1.Cmp(got1))
	})

	t.Run("Malformed response", func(t *testing.T) {
		client := ethclients.NewTestETHClient()
		client.SetCallContractHandler(func(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
			return []byte{0x01}, nil
		})

		_, _, err := Reserves(context.Background(), poolAddr, client)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid response length")
	})
}
