package swap

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"math/big"
	"testing"
	"time"

	ethclients "github.com/Iwinswap/iwinswap-ethclients"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pabi "github.com/poolsentry/poolsentry/abi"
)

// Well-known development key; never used outside tests.
const testKeyHex = "ac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"

var (
	testRouter = common.HexToAddress("0x7a250d5630B4cF539739dF2C5dAcb4c659F2488D")
	testWETH   = common.HexToAddress("0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2")
	testToken  = common.HexToAddress("0x6B175474E89094C44Da98b954EedeAC495271d0F")
	testPool   = common.HexToAddress("0xA478c2975Ab1Ea89e8196811F51A7B7Ade33eB11")

	token0Sig      = pabi.UniswapV2PairABI.Methods["token0"].ID
	getReservesSig = pabi.UniswapV2PairABI.Methods["getReserves"].ID
	balanceOfSig   = pabi.ERC20ABI.Methods["balanceOf"].ID
)

func testLogger() Logger {
	return slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
}

func addressWord(addr common.Address) []byte {
	word := make([]byte, 32)
	copy(word[12:], addr.Bytes())
	return word
}

func uintWord(n *big.Int) []byte {
	word := make([]byte, 32)
	copy(word[32-len(n.Bytes()):], n.Bytes())
	return word
}

func reservesWord(r0, r1 *big.Int) []byte {
	data := make([]byte, 96)
	copy(data[32-len(r0.Bytes()):32], r0.Bytes())
	copy(data[64-len(r1.Bytes()):64], r1.Bytes())
	return data
}

// testPoolClient wires a TestETHClient that serves a pool with token0 =
// WETH and the given reserves, a wallet token balance, and successful gas
// estimation and submission. Sent transactions are captured in sent.
func testPoolClient(t *testing.T, reserve0, reserve1, tokenBalance *big.Int, sent *[]*types.Transaction) *ethclients.TestETHClient {
	t.Helper()
	client := ethclients.NewTestETHClient()

	client.SetCallContractHandler(func(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
		switch {
		case bytes.Equal(msg.Data, token0Sig):
			return addressWord(testWETH), nil
		case bytes.Equal(msg.Data, getReservesSig):
			return reservesWord(reserve0, reserve1), nil
		case len(msg.Data) >= 4 && bytes.Equal(msg.Data[:4], balanceOfSig):
			return uintWord(tokenBalance), nil
		default:
			return nil, errors.New("unexpected eth_call")
		}
	})
	client.SetEstimateGasHandler(func(ctx context.Context, msg ethereum.CallMsg) (uint64, error) {
		return 210000, nil
	})
	client.SetSuggestGasPriceHandler(func(ctx context.Context) (*big.Int, error) {
		return big.NewInt(30_000_000_000), nil
	})
	client.SetPendingNonceAtHandler(func(ctx context.Context, addr common.Address) (uint64, error) {
		return 7, nil
	})
	client.SetSendTransactionHandler(func(ctx context.Context, tx *types.Transaction) error {
		*sent = append(*sent, tx)
		return nil
	})
	return client
}

func testEngine(t *testing.T, client *ethclients.TestETHClient, now time.Time) *Engine {
	t.Helper()
	wallet, err := NewWallet(testKeyHex)
	require.NoError(t, err)

	engine, err := NewEngine(&EngineConfig{
		GetClient:   func() (ethclients.ETHClient, error) { return client, nil },
		Wallet:      wallet,
		Nonces:      NewNonceSequencer(wallet.Address()),
		Router:      testRouter,
		Reference:   testWETH,
		ChainID:     big.NewInt(1),
		SlippageBps: 1000, // 10%
		Logger:      testLogger(),
		Now:         func() time.Time { return now },
	})
	require.NoError(t, err)
	return engine
}

func TestBuyWithReference(t *testing.T) {
	submissionTime := time.Unix(1_700_000_000, 0)
	var sent []*types.Transaction

	client := testPoolClient(t, big.NewInt(1000), big.NewInt(2000), big.NewInt(0), &sent)
	engine := testEngine(t, client, submissionTime)

	signed, err := engine.BuyWithReference(context.Background(), testPool, testToken, big.NewInt(10))
	require.NoError(t, err)
	require.Len(t, sent, 1)

	tx := sent[0]
	assert.Equal(t, signed.Hash, tx.Hash())
	assert.Equal(t, testRouter, *tx.To())
	assert.Equal(t, 0, big.NewInt(10).Cmp(tx.Value()), "reference amount travels as call value")
	assert.Equal(t, uint64(7), tx.Nonce())

	method := pabi.UniswapV2RouterABI.Methods["swapExactETHForTokens"]
	require.True(t, bytes.Equal(tx.Data()[:4], method.ID))

	args, err := method.Inputs.Unpack(tx.Data()[4:])
	require.NoError(t, err)

	// Reserves (1000, 2000), amountIn 10, 30bps fee: amountOut = 19;
	// 10% slippage bounds it to floor(19*0.9) = 17.
	minOut := args[0].(*big.Int)
	assert.Equal(t, 0, big.NewInt(17).Cmp(minOut))

	path := args[1].([]common.Address)
	assert.Equal(t, []common.Address{testWETH, testToken}, path)

	deadline := args[3].(*big.Int)
	assert.Equal(t, submissionTime.Unix()+150, deadline.Int64(), "deadline is submission time + 150s")
}

func TestBuyWithReferenceRevert(t *testing.T) {
	var sent []*types.Transaction
	client := testPoolClient(t, big.NewInt(1000), big.NewInt(2000), big.NewInt(0), &sent)
	client.SetEstimateGasHandler(func(ctx context.Context, msg ethereum.CallMsg) (uint64, error) {
		return 0, errors.New("execution reverted: UniswapV2Router: INSUFFICIENT_OUTPUT_AMOUNT")
	})

	engine := testEngine(t, client, time.Now())

	_, err := engine.BuyWithReference(context.Background(), testPool, testToken, big.NewInt(10))
	require.Error(t, err)

	var revert *RevertError
	require.ErrorAs(t, err, &revert, "estimation failure must surface as a typed revert")
	assert.Empty(t, sent, "aborted attempt must not submit anything")
}

func TestSellForReference(t *testing.T) {
	balance := big.NewInt(500)
	var sent []*types.Transaction

	// token0 = WETH, so the paired token's reserve is slot 1.
	client := testPoolClient(t, big.NewInt(1000), big.NewInt(2000), balance, &sent)
	engine := testEngine(t, client, time.Unix(1_700_000_000, 0))

	signed, err := engine.SellForReference(context.Background(), testPool, testToken)
	require.NoError(t, err)
	require.Len(t, sent, 1)

	tx := sent[0]
	assert.Equal(t, signed.Hash, tx.Hash())
	assert.Equal(t, 0, tx.Value().Sign(), "token sales send zero call value")

	method := pabi.UniswapV2RouterABI.Methods["swapExactTokensForETH"]
	require.True(t, bytes.Equal(tx.Data()[:4], method.ID))

	args, err := method.Inputs.Unpack(tx.Data()[4:])
	require.NoError(t, err)

	amountIn := args[0].(*big.Int)
	assert.Equal(t, 0, balance.Cmp(amountIn), "input is the fresh wallet balance")

	path := args[2].([]common.Address)
	assert.Equal(t, []common.Address{testToken, testWETH}, path)
}

func TestSellForReferenceEmptyBalance(t *testing.T) {
	var sent []*types.Transaction
	client := testPoolClient(t, big.NewInt(1000), big.NewInt(2000), big.NewInt(0), &sent)
	engine := testEngine(t, client, time.Now())

	_, err := engine.SellForReference(context.Background(), testPool, testToken)
	require.Error(t, err)
	assert.Empty(t, sent)
}

func TestNonceMonotonicAcrossAttempts(t *testing.T) {
	var sent []*types.Transaction
	client := testPoolClient(t, big.NewInt(1000), big.NewInt(2000), big.NewInt(0), &sent)
	engine := testEngine(t, client, time.Now())

	_, err := engine.BuyWithReference(context.Background(), testPool, testToken, big.NewInt(10))
	require.NoError(t, err)
	_, err = engine.BuyWithReference(context.Background(), testPool, testToken, big.NewInt(10))
	require.NoError(t, err)

	require.Len(t, sent, 2)
	// The pending count is pinned at 7, so the second attempt must be
	// sequenced locally.
	assert.Equal(t, uint64(7), sent[0].Nonce())
	assert.Equal(t, uint64(8), sent[1].Nonce())
}

func TestEngineConfigValidation(t *testing.T) {
	wallet, err := NewWallet(testKeyHex)
	require.NoError(t, err)

	base := func() *EngineConfig {
		return &EngineConfig{
			GetClient:   func() (ethclients.ETHClient, error) { return ethclients.NewTestETHClient(), nil },
			Wallet:      wallet,
			Nonces:      NewNonceSequencer(wallet.Address()),
			Router:      testRouter,
			Reference:   testWETH,
			ChainID:     big.NewInt(1),
			SlippageBps: 100,
			Logger:      testLogger(),
		}
	}

	testCases := []struct {
		name   string
		mutate func(*EngineConfig)
	}{
		{"Missing client", func(c *EngineConfig) { c.GetClient = nil }},
		{"Missing wallet", func(c *EngineConfig) { c.Wallet = nil }},
		{"Missing sequencer", func(c *EngineConfig) { c.Nonces = nil }},
		{"Missing router", func(c *EngineConfig) { c.Router = common.Address{} }},
		{"Missing reference asset", func(c *EngineConfig) { c.Reference = common.Address{} }},
		{"Missing chain id", func(c *EngineConfig) { c.ChainID = nil }},
		{"Degenerate slippage", func(c *EngineConfig) { c.SlippageBps = 10000 }},
		{"Missing logger", func(c *EngineConfig) { c.Logger = nil }},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := base()
			tc.mutate(cfg)
			_, err := NewEngine(cfg)
			require.Error(t, err)
		})
	}

	_, err = NewEngine(base())
	require.NoError(t, err)
}
