// Package logs decodes the raw ledger logs the system consumes: the
// factory's PairCreated event and the reference asset's Deposit event
// found in the same transaction's receipt.
package logs

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/poolsentry/poolsentry/topics"
)

var (
	// ErrNotPairCreated is returned when a log does not carry the
	// PairCreated signature.
	ErrNotPairCreated = errors.New("log is not a PairCreated event")
)

// PairCreated is the decoded form of a factory pool-creation log.
type PairCreated struct {
	Token0 common.Address
	Token1 common.Address
	Pair   common.Address
}

// ParsePairCreated decodes a PairCreated log.
//
// The event is PairCreated(address indexed token0, address indexed token1,
// address pair, uint). token0 and token1 arrive as indexed topics; the
// pair address occupies the first 32-byte slot of the data segment.
func ParsePairCreated(log types.Log) (PairCreated, error) {
	if len(log.Topics) == 0 || log.Topics[0] != topics.PairCreatedEvent {
		return PairCreated{}, ErrNotPairCreated
	}
	if len(log.Topics) != 3 {
		return PairCreated{}, fmt.Errorf("malformed PairCreated log: got %d topics, want 3", len(log.Topics))
	}
	if len(log.Data) < 32 {
		return PairCreated{}, fmt.Errorf("malformed PairCreated log: got %d data bytes, want at least 32", len(log.Data))
	}

	return PairCreated{
		// Indexed address topics are left-padded to 32 bytes;
		// BytesToAddress takes the trailing 20.
		Token0: common.BytesToAddress(log.Topics[1].Bytes()),
		Token1: common.BytesToAddress(log.Topics[2].Bytes()),
		Pair:   common.BytesToAddress(log.Data[:32]),
	}, nil
}

// PairedToken returns the non-reference asset of the pair, given the
// canonical reference asset address (e.g. WETH).
func (p PairCreated) PairedToken(reference common.Address) common.Address {
	if p.Token0 == reference {
		return p.Token1
	}
	return p.Token0
}
