// Package event defines the liquidity-pool creation event that flows
// through the detection pipeline.
package event

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// LiquidityEvent describes a newly created pool and the liquidity added in
// the creating transaction. It is immutable after construction and is
// consumed exactly once by the filter pipeline; duplicate deliveries of
// the same payload evaluate to the same verdict.
type LiquidityEvent struct {
	// BlockNumber is the block in which the pool was created.
	BlockNumber uint64

	// Creator is the sender of the factory transaction.
	Creator common.Address

	// FactoryTxHash is the transaction that created the pool.
	FactoryTxHash common.Hash

	// Pool is the pair contract address.
	Pool common.Address

	// PairedToken is the non-reference asset of the pair.
	PairedToken common.Address

	// InitialLiquidityWei is the reference-asset liquidity deposited in
	// the creating transaction, in wei. Zero means no deposit event was
	// found; that is a valid, filterable state.
	InitialLiquidityWei *big.Int
}
