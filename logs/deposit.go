package logs

import (
	"math/big"

	"github.com/ethereum/go-ethereum/core/types"

	"github.com/poolsentry/poolsentry/topics"
)

// InitialDepositWei scans a transaction's receipt logs for the reference
// asset's Deposit event and returns the deposited amount in wei.
//
// A zero return means no deposit log was found in the receipt. That is a
// valid, filterable state for a freshly created pool (liquidity was not
// added in the creating transaction), not an error.
func InitialDepositWei(receiptLogs []*types.Log) *big.Int {
	for _, log := range receiptLogs {
		if log == nil || len(log.Topics) == 0 {
			continue
		}
		if kind, ok := topics.Decode(log.Topics[0]); !ok || kind != topics.KindDeposit {
			continue
		}
		// Deposit(address indexed dst, uint wad): wad is the single
		// 32-byte data slot.
		if len(log.Data) != 32 {
			continue
		}
		return new(big.Int).SetBytes(log.Data)
	}
	return big.NewInt(0)
}
