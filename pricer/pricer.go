// Package pricer computes expected swap output from a pool's current
// reserves using the constant-product-with-fee formula, and bounds it by a
// slippage tolerance.
package pricer

import (
	"errors"
	"fmt"
	"math"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

const (
	// DefaultFeeBps is the standard V2 trading fee: 30 basis points
	// (the 997/1000 multiplier form).
	DefaultFeeBps uint16 = 30

	// bpsDenominator scales basis-point arithmetic.
	bpsDenominator = 10000
)

var (
	// ErrEmptyReserves is returned when a reserve slot is nil or zero;
	// the formula is undefined against an empty pool.
	ErrEmptyReserves = errors.New("pricer: pool reserves are empty")
)

// ReserveSnapshot is a pool's reserves oriented around the reference
// asset. It reflects pool state at one instant and must be treated as
// stale after use: reserves may change before a transaction lands.
type ReserveSnapshot struct {
	// ReferenceReserve is the reserve slot holding the reference asset.
	ReferenceReserve *big.Int

	// PairedReserve is the reserve slot holding the other asset.
	PairedReserve *big.Int

	// IsReversed records that the reference asset was the pool's token0,
	// i.e. the snapshot was built from slot 0 rather than slot 1.
	IsReversed bool
}

// Orient assigns reserve slots around the reference asset by comparing the
// pool's registered first asset against the reference address. Getting
// this backwards silently produces a wildly incorrect price rather than an
// error, so orientation is decided here and nowhere else.
func Orient(token0, reference common.Address, reserve0, reserve1 *big.Int) ReserveSnapshot {
	if token0 == reference {
		return ReserveSnapshot{
			ReferenceReserve: reserve0,
			PairedReserve:    reserve1,
			IsReversed:       true,
		}
	}
	return ReserveSnapshot{
		ReferenceReserve: reserve1,
		PairedReserve:    reserve0,
		IsReversed:       false,
	}
}

// AmountOut computes the output amount for amountIn against the given
// reserves:
//
//	amountOut = floor(amountIn*(10000-feeBps)*reserveOut /
//	                  (reserveIn*10000 + amountIn*(10000-feeBps)))
func AmountOut(amountIn, reserveIn, reserveOut *big.Int, feeBps uint16) (*big.Int, error) {
	if amountIn == nil || amountIn.Sign() <= 0 {
		return nil, fmt.Errorf("pricer: non-positive input amount")
	}
	if reserveIn == nil || reserveOut == nil || reserveIn.Sign() <= 0 || reserveOut.Sign() <= 0 {
		return nil, ErrEmptyReserves
	}
	if feeBps >= bpsDenominator {
		return nil, fmt.Errorf("pricer: fee %d bps consumes the whole input", feeBps)
	}

	amountInWithFee := new(big.Int).Mul(amountIn, big.NewInt(int64(bpsDenominator-feeBps)))
	numerator := new(big.Int).Mul(amountInWithFee, reserveOut)
	denominator := new(big.Int).Mul(reserveIn, big.NewInt(bpsDenominator))
	denominator.Add(denominator, amountInWithFee)

	return numerator.Quo(numerator, denominator), nil
}

// MinimumOut applies a slippage tolerance in basis points:
// floor(amountOut * (10000 - slippageBps) / 10000).
func MinimumOut(amountOut *big.Int, slippageBps uint16) *big.Int {
	bounded := new(big.Int).Mul(amountOut, big.NewInt(int64(bpsDenominator-slippageBps)))
	return bounded.Quo(bounded, big.NewInt(bpsDenominator))
}

// SlippageBps converts a slippage fraction in [0, 1) to basis points.
// Values outside the range are rejected: a fraction >= 1 makes every trade
// pass its minimum-out bound, which is a configuration error, not a
// tolerance.
func SlippageBps(fraction float64) (uint16, error) {
	if fraction < 0 || fraction >= 1 || math.IsNaN(fraction) {
		return 0, fmt.Errorf("pricer: slippage fraction %v outside [0, 1)", fraction)
	}
	return uint16(math.Round(fraction * bpsDenominator)), nil
}
