// Package pool performs the on-chain reads the swap engine needs against a
// single V2 pair contract: constituent token addresses and current
// reserves.
package pool

import (
	"context"
	"fmt"
	"math/big"
	"time"

	ethclients "github.com/Iwinswap/iwinswap-ethclients"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"

	"github.com/poolsentry/poolsentry/abi"
)

var (
	// Method signatures for the pair contract calls, loaded from the ABI
	// package rather than hardcoded hashes.
	token0Sig      = abi.UniswapV2PairABI.Methods["token0"].ID
	token1Sig      = abi.UniswapV2PairABI.Methods["token1"].ID
	getReservesSig = abi.UniswapV2PairABI.Methods["getReserves"].ID
)

const (
	// defaultRPCTimeout bounds individual RPC calls so a single slow
	// request cannot stall a swap attempt indefinitely.
	defaultRPCTimeout = 10 * time.Second
)

// Token0 fetches the pool's first registered asset. Orientation of the
// reserve pair is decided by comparing this address against the reference
// asset.
func Token0(parentCtx context.Context, poolAddr common.Address, client ethclients.ETHClient) (common.Address, error) {
	ctx, cancel := context.WithTimeout(parentCtx, defaultRPCTimeout)
	defer cancel()

	data, err := client.CallContract(ctx, ethereum.CallMsg{To: &poolAddr, Data: token0Sig}, nil)
	if err != nil {
		return common.Address{}, fmt.Errorf("eth_call for token0 failed: %w", err)
	}
	// A valid address response from a view function is always 32 bytes.
	if len(data) != 32 {
		return common.Address{}, fmt.Errorf("invalid response length for token0: got %d bytes", len(data))
	}
	return common.BytesToAddress(data), nil
}

// Token1 fetches the pool's second registered asset.
func Token1(parentCtx context.Context, poolAddr common.Address, client ethclients.ETHClient) (common.Address, error) {
	ctx, cancel := context.WithTimeout(parentCtx, defaultRPCTimeout)
	defer cancel()

	data, err := client.CallContract(ctx, ethereum.CallMsg{To: &poolAddr, Data: token1Sig}, nil)
	if err != nil {
		return common.Address{}, fmt.Errorf("eth_call for token1 failed: %w", err)
	}
	if len(data) != 32 {
		return common.Address{}, fmt.Errorf("invalid response length for token1: got %d bytes", len(data))
	}
	return common.BytesToAddress(data), nil
}

// Reserves fetches the pool's current reserves.
func Reserves(parentCtx context.Context, poolAddr common.Address, client ethclients.ETHClient) (reserve0, reserve1 *big.Int, err error) {
	ctx, cancel := context.WithTimeout(parentCtx, defaultRPCTimeout)
	defer cancel()

	data, err := client.CallContract(ctx, ethereum.CallMsg{To: &poolAddr, Data: getReservesSig}, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("eth_call for getReserves failed for pool %s: %w", poolAddr.Hex(), err)
	}
	// getReserves() returns (uint112 reserve0, uint112 reserve1,
	// uint32 blockTimestampLast) packed into three 32-byte slots.
	if len(data) != 96 {
		return nil, nil, fmt.Errorf("invalid response length for getReserves on pool %s: got %d bytes", poolAddr.Hex(), len(data))
	}

	// The final slot (blockTimestampLast) is ignored.
	reserve0 = new(big.Int).SetBytes(data[0:32])
	reserve1 = new(big.Int).SetBytes(data[32:64])
	return reserve0, reserve1, nil
}
