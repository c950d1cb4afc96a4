package swap

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	ethclients "github.com/Iwinswap/iwinswap-ethclients"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/poolsentry/poolsentry/abi"
	"github.com/poolsentry/poolsentry/pool"
	"github.com/poolsentry/poolsentry/pricer"
)

// Logger defines a standard interface for structured, leveled logging,
// compatible with the standard library's slog.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// GetClientFunc supplies the shared ledger client handle.
type GetClientFunc func() (ethclients.ETHClient, error)

// Direction is the side of a swap relative to the reference asset.
type Direction uint8

const (
	// ReferenceToToken spends the reference asset (sent as call value)
	// for the paired token.
	ReferenceToToken Direction = iota
	// TokenToReference sells the wallet's entire token balance back into
	// the reference asset.
	TokenToReference
)

// DefaultDeadlineWindow is the on-chain execution deadline attached to
// every order: submission time + 150 seconds, enforced by the router.
const DefaultDeadlineWindow = 150 * time.Second

// Order is the fully determined swap parameters for a single attempt.
// Constructed once per attempt; never reused.
type Order struct {
	Direction  Direction
	AmountIn   *big.Int
	MinimumOut *big.Int
	Wallet     common.Address
	Deadline   *big.Int
	Nonce      uint64
}

// SignedTransaction is the terminal artifact of a swap or approval
// attempt. Ownership ends once submitted; confirmation is not tracked.
type SignedTransaction struct {
	Tx   *types.Transaction
	Hash common.Hash
}

// HashHex returns the transaction hash as a 0x-prefixed hex string.
func (s *SignedTransaction) HashHex() string {
	return s.Hash.Hex()
}

// RevertError reports that gas estimation against the router reverted:
// the trade itself is currently invalid (reserves moved, or the
// minimum-out bound is unreachable), as opposed to the service being
// unreachable. The attempt aborts; whether to retry with fresh reserves
// is the caller's decision.
type RevertError struct {
	Op  string
	Err error
}

func (e *RevertError) Error() string {
	return fmt.Sprintf("swap: %s simulation reverted: %v", e.Op, e.Err)
}

func (e *RevertError) Unwrap() error {
	return e.Err
}

// EngineConfig holds the dependencies and settings for the swap engine.
type EngineConfig struct {
	GetClient      GetClientFunc
	Wallet         *Wallet
	Nonces         *NonceSequencer
	Router         common.Address
	Reference      common.Address
	ChainID        *big.Int
	SlippageBps    uint16
	FeeBps         uint16
	DeadlineWindow time.Duration
	Logger         Logger

	// Now is the clock used for order deadlines. Defaults to time.Now.
	Now func() time.Time
}

func (c *EngineConfig) validate() error {
	if c.GetClient == nil {
		return errors.New("get client function is required")
	}
	if c.Wallet == nil {
		return errors.New("wallet is required")
	}
	if c.Nonces == nil {
		return errors.New("nonce sequencer is required")
	}
	if c.Router == (common.Address{}) {
		return errors.New("router address is required")
	}
	if c.Reference == (common.Address{}) {
		return errors.New("reference asset address is required")
	}
	if c.ChainID == nil || c.ChainID.Sign() <= 0 {
		return errors.New("chain id is required")
	}
	if c.SlippageBps >= 10000 {
		return errors.New("slippage must be below 100%")
	}
	if c.Logger == nil {
		return errors.New("logger is required")
	}
	return nil
}

// Engine executes price- and slippage-bounded swaps as a four-step state
// machine: Quoted, GasEstimated, Signed, Submitted. No state is retried;
// any failure aborts the whole attempt.
type Engine struct {
	getClient      GetClientFunc
	wallet         *Wallet
	nonces         *NonceSequencer
	router         common.Address
	reference      common.Address
	chainID        *big.Int
	slippageBps    uint16
	feeBps         uint16
	deadlineWindow time.Duration
	now            func() time.Time
	logger         Logger
}

// NewEngine constructs a swap engine.
func NewEngine(cfg *EngineConfig) (*Engine, error) {
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid swap engine configuration: %w", err)
	}

	feeBps := cfg.FeeBps
	if feeBps == 0 {
		feeBps = pricer.DefaultFeeBps
	}
	deadlineWindow := cfg.DeadlineWindow
	if deadlineWindow <= 0 {
		deadlineWindow = DefaultDeadlineWindow
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	return &Engine{
		getClient:      cfg.GetClient,
		wallet:         cfg.Wallet,
		nonces:         cfg.Nonces,
		router:         cfg.Router,
		reference:      cfg.Reference,
		chainID:        cfg.ChainID,
		slippageBps:    cfg.SlippageBps,
		feeBps:         feeBps,
		deadlineWindow: deadlineWindow,
		now:            now,
		logger:         cfg.Logger,
	}, nil
}

// BuyWithReference swaps amountInWei of the reference asset for token
// through the given pool's pricing. The reference amount travels as call
// value on the router invocation.
func (e *Engine) BuyWithReference(ctx context.Context, poolAddr, token common.Address, amountInWei *big.Int) (*SignedTransaction, error) {
	client, err := e.getClient()
	if err != nil {
		return nil, fmt.Errorf("swap: get client: %w", err)
	}

	// Quoted: read current reserves and bound the output.
	order, err := e.quote(ctx, client, poolAddr, amountInWei, ReferenceToToken)
	if err != nil {
		return nil, err
	}

	payload, err := abi.UniswapV2RouterABI.Pack(
		"swapExactETHForTokens",
		order.MinimumOut,
		[]common.Address{e.reference, token},
		e.wallet.Address(),
		order.Deadline,
	)
	if err != nil {
		return nil, fmt.Errorf("swap: pack swapExactETHForTokens: %w", err)
	}

	signed, err := e.signAndSubmit(ctx, client, "swapExactETHForTokens", e.router, order.AmountIn, payload)
	if err != nil {
		return nil, err
	}

	e.logger.Info("swap submitted",
		"direction", "reference_to_token",
		"pool", poolAddr.Hex(),
		"token", token.Hex(),
		"amount_in_wei", order.AmountIn.String(),
		"minimum_out", order.MinimumOut.String(),
		"tx", signed.HashHex(),
	)
	return signed, nil
}

// SellForReference swaps the wallet's entire current balance of token back
// into the reference asset. The balance is read fresh at quote time, never
// assumed from a prior computation. The router must already be approved to
// move the token; see ApprovalManager.
func (e *Engine) SellForReference(ctx context.Context, poolAddr, token common.Address) (*SignedTransaction, error) {
	client, err := e.getClient()
	if err != nil {
		return nil, fmt.Errorf("swap: get client: %w", err)
	}

	balance, err := e.tokenBalance(ctx, client, token)
	if err != nil {
		return nil, err
	}
	if balance.Sign() == 0 {
		return nil, fmt.Errorf("swap: wallet holds no balance of token %s", token.Hex())
	}

	order, err := e.quote(ctx, client, poolAddr, balance, TokenToReference)
	if err != nil {
		return nil, err
	}

	payload, err := abi.UniswapV2RouterABI.Pack(
		"swapExactTokensForETH",
		order.AmountIn,
		order.MinimumOut,
		[]common.Address{token, e.reference},
		e.wallet.Address(),
		order.Deadline,
	)
	if err != nil {
		return nil, fmt.Errorf("swap: pack swapExactTokensForETH: %w", err)
	}

	// Token sales send zero call value; the input travels as the packed
	// amount the router pulls via its allowance.
	signed, err := e.signAndSubmit(ctx, client, "swapExactTokensForETH", e.router, big.NewInt(0), payload)
	if err != nil {
		return nil, err
	}

	e.logger.Info("swap submitted",
		"direction", "token_to_reference",
		"pool", poolAddr.Hex(),
		"token", token.Hex(),
		"amount_in", order.AmountIn.String(),
		"minimum_out", order.MinimumOut.String(),
		"tx", signed.HashHex(),
	)
	return signed, nil
}

// quote reads the pool's current state and computes the slippage-bounded
// order for the attempt. The snapshot is stale the moment it is read.
func (e *Engine) quote(ctx context.Context, client ethclients.ETHClient, poolAddr common.Address, amountIn *big.Int, dir Direction) (Order, error) {
	token0, err := pool.Token0(ctx, poolAddr, client)
	if err != nil {
		return Order{}, fmt.Errorf("swap: quote: %w", err)
	}
	reserve0, reserve1, err := pool.Reserves(ctx, poolAddr, client)
	if err != nil {
		return Order{}, fmt.Errorf("swap: quote: %w", err)
	}

	snapshot := pricer.Orient(token0, e.reference, reserve0, reserve1)

	reserveIn, reserveOut := snapshot.ReferenceReserve, snapshot.PairedReserve
	if dir == TokenToReference {
		reserveIn, reserveOut = snapshot.PairedReserve, snapshot.ReferenceReserve
	}

	amountOut, err := pricer.AmountOut(amountIn, reserveIn, reserveOut, e.feeBps)
	if err != nil {
		return Order{}, fmt.Errorf("swap: quote pool %s: %w", poolAddr.Hex(), err)
	}

	return Order{
		Direction:  dir,
		AmountIn:   amountIn,
		MinimumOut: pricer.MinimumOut(amountOut, e.slippageBps),
		Wallet:     e.wallet.Address(),
		Deadline:   big.NewInt(e.now().Unix() + int64(e.deadlineWindow/time.Second)),
	}, nil
}

// tokenBalance reads the wallet's current balance of token.
func (e *Engine) tokenBalance(ctx context.Context, client ethclients.ETHClient, token common.Address) (*big.Int, error) {
	data, err := abi.ERC20ABI.Pack("balanceOf", e.wallet.Address())
	if err != nil {
		return nil, fmt.Errorf("swap: pack balanceOf: %w", err)
	}

	result, err := client.CallContract(ctx, ethereum.CallMsg{To: &token, Data: data}, nil)
	if err != nil {
		return nil, fmt.Errorf("swap: eth_call for balanceOf failed: %w", err)
	}
	if len(result) != 32 {
		return nil, fmt.Errorf("swap: invalid response length for balanceOf: got %d bytes", len(result))
	}
	return new(big.Int).SetBytes(result), nil
}

// signAndSubmit drives the GasEstimated, Signed and Submitted states for a
// fully built call payload. The nonce sequencer is held from allocation
// through submission.
func (e *Engine) signAndSubmit(ctx context.Context, client ethclients.ETHClient, op string, to common.Address, value *big.Int, payload []byte) (*SignedTransaction, error) {
	// GasEstimated: simulate the call. A revert here means the trade is
	// currently invalid; surface it as a typed failure, never retried.
	gasLimit, err := client.EstimateGas(ctx, ethereum.CallMsg{
		From:  e.wallet.Address(),
		To:    &to,
		Value: value,
		Data:  payload,
	})
	if err != nil {
		return nil, &RevertError{Op: op, Err: err}
	}

	gasPrice, err := client.SuggestGasPrice(ctx)
	if err != nil {
		return nil, fmt.Errorf("swap: fetch gas price: %w", err)
	}

	// Signed: the nonce is fetched under the sequencer immediately before
	// signing, and the sequencer is held until submission resolves.
	nonce, release, err := e.nonces.Acquire(ctx, client)
	if err != nil {
		return nil, err
	}
	submitted := false
	defer func() { release(submitted) }()

	tx := types.NewTransaction(nonce, to, value, gasLimit, gasPrice, payload)
	signed, err := e.wallet.SignTx(tx, e.chainID)
	if err != nil {
		return nil, err
	}

	// Submitted: broadcast and hand back the hash. Terminal; the engine
	// does not wait for confirmation.
	if err := client.SendTransaction(ctx, signed); err != nil {
		return nil, fmt.Errorf("swap: submit %s transaction: %w", op, err)
	}
	submitted = true

	return &SignedTransaction{Tx: signed, Hash: signed.Hash()}, nil
}
