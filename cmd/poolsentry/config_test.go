package main

import (
	"math/big"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validConfig = `
system_name: test_sentry
ws_endpoint: wss://node.example/ws
chain_id: 1
metrics_addr: ":9090"
reference: "0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2"
router: "0x7a250d5630B4cF539739dF2C5dAcb4c659F2488D"
explorer_url: "https://api.etherscan.io/api"
slippage: 0.1
buy_amount_wei: "100000000000000000"
approval_cap_wei: "5000000000000000000"
retention_blocks: 50000
deny_list:
  - "0xA478c2975Ab1Ea89e8196811F51A7B7Ade33eB11"
known_exchanges:
  "0x28C6c06298d514Db089934071355E5743bf21d60": "Binance"
`

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "poolsentry.yaml")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o600))
	return path
}

func TestLoadConfig(t *testing.T) {
	t.Setenv(envWalletKey, "ac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80")
	t.Setenv(envExplorerAPIKey, "test-key")

	cfg, err := LoadConfig(writeConfig(t, validConfig))
	require.NoError(t, err)

	assert.Equal(t, "test_sentry", cfg.SystemName)
	assert.Equal(t, int64(1), cfg.ChainID)
	assert.Equal(t, "test-key", cfg.ExplorerAPIKey)
	assert.Equal(t, common.HexToAddress("0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2"), cfg.ReferenceAddr)
	assert.Equal(t, uint16(1000), cfg.SlippageBps, "0.1 fraction is 1000 basis points")
	assert.Equal(t, 0, big.NewInt(1e17).Cmp(cfg.BuyAmount))
	assert.Equal(t, 0, new(big.Int).Mul(big.NewInt(5), big.NewInt(1e18)).Cmp(cfg.ApprovalCap))

	deny := cfg.DenySet()
	_, denied := deny[common.HexToAddress("0xA478c2975Ab1Ea89e8196811F51A7B7Ade33eB11")]
	assert.True(t, denied)

	exchanges := cfg.ExchangeMap()
	assert.Equal(t, "Binance", exchanges[common.HexToAddress("0x28C6c06298d514Db089934071355E5743bf21d60")])
}

func TestLoadConfigRejectsInvalid(t *testing.T) {
	t.Setenv(envWalletKey, "ac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80")

	testCases := []struct {
		name    string
		mutate  string
		replace string
	}{
		{"Missing endpoint", "ws_endpoint: wss://node.example/ws", "ws_endpoint: \"\""},
		{"Slippage of one or more", "slippage: 0.1", "slippage: 1.0"},
		{"Negative slippage", "slippage: 0.1", "slippage: -0.1"},
		{"Malformed router address", `router: "0x7a250d5630B4cF539739dF2C5dAcb4c659F2488D"`, `router: "not-an-address"`},
		{"Zero buy amount", `buy_amount_wei: "100000000000000000"`, `buy_amount_wei: "0"`},
		{"Malformed buy amount", `buy_amount_wei: "100000000000000000"`, `buy_amount_wei: "ten"`},
		{"Malformed deny list entry", `- "0xA478c2975Ab1Ea89e8196811F51A7B7Ade33eB11"`, `- "bogus"`},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			contents := validConfig
			require.Contains(t, contents, tc.mutate)
			broken := writeConfig(t, strings.Replace(contents, tc.mutate, tc.replace, 1))
			_, err := LoadConfig(broken)
			require.Error(t, err)
		})
	}
}

func TestLoadConfigRequiresWalletSource(t *testing.T) {
	t.Setenv(envWalletKey, "")
	_, err := LoadConfig(writeConfig(t, validConfig))
	require.Error(t, err, "no wallet file and no key in the environment")
}
