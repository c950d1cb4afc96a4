// Package filter implements the heuristic consensus over a pool creator's
// provenance: three independent predicates that must agree unanimously
// before an event is considered actionable.
package filter

import (
	"math/big"

	"github.com/poolsentry/poolsentry/event"
	"github.com/poolsentry/poolsentry/provenance"
)

// RemoveLiquidityLabel is the provenance label counted by the
// no-prior-removal predicate. Selector variants (removeLiquidityETH and
// friends) decode to their own labels and are not counted.
const RemoveLiquidityLabel = "removeLiquidity"

// MinInitialLiquidityWei is the liquidity-sufficiency threshold: the event
// passes only with strictly more than 5 reference tokens deposited.
var MinInitialLiquidityWei = new(big.Int).Mul(big.NewInt(5), big.NewInt(1e18))

// Verdict is the outcome of the three predicates. It is computed fresh per
// event and never persisted.
type Verdict struct {
	LiquiditySufficient bool
	NoPriorRemoval      bool
	ContractVerified    bool
}

// Pass reports unanimous agreement. Any single failing predicate discards
// the event; there is no partial-trust tier.
func (v Verdict) Pass() bool {
	return v.LiquiditySufficient && v.NoPriorRemoval && v.ContractVerified
}

// Evaluate runs the three predicates over an event and its creator's
// provenance. The predicates are independent and order-insensitive.
func Evaluate(ev event.LiquidityEvent, history []provenance.TransactionRecord, verified bool) Verdict {
	return Verdict{
		LiquiditySufficient: ev.InitialLiquidityWei != nil && ev.InitialLiquidityWei.Cmp(MinInitialLiquidityWei) > 0,
		NoPriorRemoval:      countLabel(history, RemoveLiquidityLabel) == 0,
		ContractVerified:    verified,
	}
}

// Actionable returns the full provenance history when the verdict is
// unanimous and an empty sequence otherwise. Callers treat a non-empty
// return as "proceed to swap" and do not inspect its contents for the
// decision.
func Actionable(ev event.LiquidityEvent, history []provenance.TransactionRecord, verified bool) []provenance.TransactionRecord {
	if Evaluate(ev, history, verified).Pass() {
		return history
	}
	return []provenance.TransactionRecord{}
}

func countLabel(history []provenance.TransactionRecord, label string) int {
	n := 0
	for _, record := range history {
		if record.Method == label {
			n++
		}
	}
	return n
}
