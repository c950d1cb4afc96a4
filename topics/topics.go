// Package topics maps known 32-byte event signatures and 4-byte method
// selectors to semantic labels. Unknown identifiers pass through as their
// raw hex form: an unrecognized signature is still a useful classification
// label for provenance histories, not an error.
package topics

import (
	"encoding/hex"

	"github.com/ethereum/go-ethereum/common"

	"github.com/poolsentry/poolsentry/abi"
)

// Kind is the semantic classification of a known event signature.
type Kind string

const (
	KindPairCreated Kind = "PairCreated"
	KindPoolCreated Kind = "PoolCreated"
	KindTransfer    Kind = "Transfer"
	KindSync        Kind = "Sync"
	KindDeposit     Kind = "Deposit"
	KindApproval    Kind = "Approval"
)

var (
	PairCreatedEvent = abi.UniswapV2FactoryABI.Events["PairCreated"].ID
	SyncEvent        = abi.UniswapV2PairABI.Events["Sync"].ID
	TransferEvent    = abi.ERC20ABI.Events["Transfer"].ID
	ApprovalEvent    = abi.ERC20ABI.Events["Approval"].ID
	DepositEvent     = abi.WETHABI.Events["Deposit"].ID

	// PoolCreatedEvent is the concentrated-liquidity factory variant of the
	// pool-creation event. No contract calls are made against these pools,
	// so only the signature is carried, not a full ABI.
	PoolCreatedEvent = common.HexToHash("0x783cca1c0412dd0d695e784568c96da2e9c22ff989357a2e8b1d9b2b4e6b7118")
)

var eventKinds = map[common.Hash]Kind{
	PairCreatedEvent: KindPairCreated,
	PoolCreatedEvent: KindPoolCreated,
	TransferEvent:    KindTransfer,
	SyncEvent:        KindSync,
	DepositEvent:     KindDeposit,
	ApprovalEvent:    KindApproval,
}

// methodNames maps 4-byte call-data selectors to their canonical method
// names, used to classify an address's historical transactions.
var methodNames = map[[4]byte]string{}

func init() {
	for _, a := range []struct {
		methods map[string]bool
		source  string
	}{
		{map[string]bool{
			"addLiquidity": true, "addLiquidityETH": true,
			"removeLiquidity": true, "removeLiquidityETH": true,
			"swapExactETHForTokens": true, "swapExactTokensForETH": true,
			"swapExactTokensForTokens": true, "getAmountOut": true,
		}, "router"},
		{map[string]bool{
			"approve": true, "transfer": true, "transferFrom": true,
		}, "erc20"},
	} {
		src := abi.UniswapV2RouterABI
		if a.source == "erc20" {
			src = abi.ERC20ABI
		}
		for name, m := range src.Methods {
			if !a.methods[name] {
				continue
			}
			var sel [4]byte
			copy(sel[:], m.ID)
			methodNames[sel] = name
		}
	}
}

// Decode returns the semantic kind of a known event signature.
func Decode(signature common.Hash) (Kind, bool) {
	kind, ok := eventKinds[signature]
	return kind, ok
}

// Label returns the semantic kind of an event signature, or the raw hex
// signature when it is not known.
func Label(signature common.Hash) string {
	if kind, ok := eventKinds[signature]; ok {
		return string(kind)
	}
	return signature.Hex()
}

// MethodLabel classifies transaction call data by its leading 4-byte
// selector. Call data shorter than a selector yields the empty string;
// callers treat that as a plain value transfer. Unknown selectors fall
// back to their raw hex form.
func MethodLabel(input []byte) string {
	if len(input) < 4 {
		return ""
	}
	var sel [4]byte
	copy(sel[:], input[:4])
	if name, ok := methodNames[sel]; ok {
		return name
	}
	return "0x" + hex.EncodeToString(sel[:])
}
