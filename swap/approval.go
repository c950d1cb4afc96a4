package swap

import (
	"context"
	"fmt"
	"math/big"
	"sync"

	ethclients "github.com/Iwinswap/iwinswap-ethclients"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"

	"github.com/poolsentry/poolsentry/abi"
)

// ApprovalManager authorizes the router to move a token on the wallet's
// behalf before a token sale. Each token is approved at most once per
// process.
//
// By default the approval covers the token's full reported total supply so
// subsequent sales of the same token need no further approval
// transactions. That is a broad grant; a cap bounds it when configured.
type ApprovalManager struct {
	engine *Engine

	// cap bounds the approved amount. Nil keeps the total-supply grant.
	cap *big.Int

	mu       sync.Mutex
	approved map[common.Address]common.Hash
}

// NewApprovalManager returns a manager that signs approvals through the
// given engine's wallet and nonce sequencer. A nil cap approves each
// token's full total supply.
func NewApprovalManager(engine *Engine, cap *big.Int) *ApprovalManager {
	return &ApprovalManager{
		engine:   engine,
		cap:      cap,
		approved: make(map[common.Address]common.Hash),
	}
}

// EnsureApproval approves the router to spend token, once. The returned
// transaction is nil when the token was already approved in this process.
func (m *ApprovalManager) EnsureApproval(ctx context.Context, token common.Address) (*SignedTransaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, done := m.approved[token]; done {
		return nil, nil
	}

	client, err := m.engine.getClient()
	if err != nil {
		return nil, fmt.Errorf("swap: get client: %w", err)
	}

	amount, err := m.approvalAmount(ctx, client, token)
	if err != nil {
		return nil, err
	}

	payload, err := abi.ERC20ABI.Pack("approve", m.engine.router, amount)
	if err != nil {
		return nil, fmt.Errorf("swap: pack approve: %w", err)
	}

	signed, err := m.engine.signAndSubmit(ctx, client, "approve", token, big.NewInt(0), payload)
	if err != nil {
		return nil, err
	}

	m.approved[token] = signed.Hash
	m.engine.logger.Info("token approval submitted",
		"token", token.Hex(),
		"spender", m.engine.router.Hex(),
		"amount", amount.String(),
		"tx", signed.HashHex(),
	)
	return signed, nil
}

// approvalAmount reads the token's total supply and applies the cap.
func (m *ApprovalManager) approvalAmount(ctx context.Context, client ethclients.ETHClient, token common.Address) (*big.Int, error) {
	data, err := abi.ERC20ABI.Pack("totalSupply")
	if err != nil {
		return nil, fmt.Errorf("swap: pack totalSupply: %w", err)
	}

	result, err := client.CallContract(ctx, ethereum.CallMsg{To: &token, Data: data}, nil)
	if err != nil {
		return nil, fmt.Errorf("swap: eth_call for totalSupply failed: %w", err)
	}
	if len(result) != 32 {
		return nil, fmt.Errorf("swap: invalid response length for totalSupply: got %d bytes", len(result))
	}

	supply := new(big.Int).SetBytes(result)
	if m.cap != nil && m.cap.Cmp(supply) < 0 {
		return new(big.Int).Set(m.cap), nil
	}
	return supply, nil
}
