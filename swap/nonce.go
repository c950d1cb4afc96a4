package swap

import (
	"context"
	"fmt"
	"sync"

	ethclients "github.com/Iwinswap/iwinswap-ethclients"
	"github.com/ethereum/go-ethereum/common"
)

// NonceSequencer allocates transaction nonces for a single wallet,
// exclusively and in increasing order. The wallet's nonce is the one piece
// of mutable shared state between the swap engine and the approval
// manager; concurrent fetch-then-use of the pending count without this
// sequencer produces rejected or conflicting transactions.
//
// The sequencer is held for the duration of sign+submit only.
type NonceSequencer struct {
	mu      sync.Mutex
	account common.Address
	last    uint64
	issued  bool
}

// NewNonceSequencer returns a sequencer for the given account.
func NewNonceSequencer(account common.Address) *NonceSequencer {
	return &NonceSequencer{account: account}
}

// Acquire locks the sequencer, fetches the account's current pending
// transaction count and returns the nonce to use. The returned release
// function must be called exactly once, after submission succeeds or the
// attempt is abandoned; submitted=false rolls the allocation back so the
// nonce is not skipped.
//
// The nonce is the greater of the node's pending count and one past the
// last locally issued nonce, so back-to-back swaps get strictly increasing
// nonces even when the node's view lags behind locally submitted
// transactions.
func (s *NonceSequencer) Acquire(ctx context.Context, client ethclients.ETHClient) (uint64, func(submitted bool), error) {
	s.mu.Lock()

	pending, err := client.PendingNonceAt(ctx, s.account)
	if err != nil {
		s.mu.Unlock()
		return 0, nil, fmt.Errorf("swap: fetch pending nonce for %s: %w", s.account.Hex(), err)
	}

	nonce := pending
	if s.issued && s.last+1 > nonce {
		nonce = s.last + 1
	}

	prevLast, prevIssued := s.last, s.issued
	s.last = nonce
	s.issued = true

	var once sync.Once
	release := func(submitted bool) {
		once.Do(func() {
			if !submitted {
				s.last, s.issued = prevLast, prevIssued
			}
			s.mu.Unlock()
		})
	}
	return nonce, release, nil
}
