package provenance

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	creator  = common.HexToAddress("0x05E793cE0C6027323Cc071114590e6526cb43BBf")
	exchange = common.HexToAddress("0x28C6c06298d514Db089934071355E5743bf21d60")
)

// removeLiquiditySelector is keccak("removeLiquidity(address,address,
// uint256,uint256,uint256,address,uint256)")[:4].
const removeLiquiditySelector = "0xbaa2abde"

func newExplorer(t *testing.T, txlistBody, getabiBody string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Query().Get("action") {
		case "txlist":
			assert.Equal(t, "account", r.URL.Query().Get("module"))
			assert.Equal(t, "desc", r.URL.Query().Get("sort"))
			assert.Equal(t, "1", r.URL.Query().Get("page"))
			w.Write([]byte(txlistBody))
		case "getabi":
			assert.Equal(t, "contract", r.URL.Query().Get("module"))
			w.Write([]byte(getabiBody))
		default:
			t.Errorf("unexpected action %q", r.URL.Query().Get("action"))
		}
	}))
}

func TestHistory(t *testing.T) {
	testCases := []struct {
		name     string
		body     string
		expected []TransactionRecord
	}{
		{
			name: "Classifies transfers and method calls",
			body: `{"status":"1","message":"OK","result":[
				{"input":"` + removeLiquiditySelector + `00ff","from":"` + creator.Hex() + `","blockNumber":"1200"},
				{"input":"0x","from":"` + exchange.Hex() + `","blockNumber":"1100"},
				{"input":"0x","from":"0x000000000000000000000000000000000000dEaD","blockNumber":"1000"},
				{"input":"0xdeadbeef","from":"` + creator.Hex() + `","blockNumber":"900"}
			]}`,
			expected: []TransactionRecord{
				{Method: "removeLiquidity", Block: 1200},
				{Method: "Transfer from Binance", Block: 1100},
				{Method: "Transfer from wallet", Block: 1000},
				{Method: "0xdeadbeef", Block: 900},
			},
		},
		{
			name:     "Empty result set is an empty history",
			body:     `{"status":"0","message":"No transactions found","result":[]}`,
			expected: []TransactionRecord{},
		},
		{
			name:     "Result carrying an error string is an empty history",
			body:     `{"status":"0","message":"NOTOK","result":"Max rate limit reached"}`,
			expected: []TransactionRecord{},
		},
		{
			name: "Lowercase exchange sender still matches",
			body: `{"status":"1","message":"OK","result":[
				{"input":"0x","from":"0x28c6c06298d514db089934071355e5743bf21d60","blockNumber":"42"}
			]}`,
			expected: []TransactionRecord{
				{Method: "Transfer from Binance", Block: 42},
			},
		},
	}

	exchanges := map[common.Address]string{exchange: "Binance"}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			server := newExplorer(t, tc.body, `{"status":"1"}`)
			defer server.Close()

			resolver := NewResolver(server.URL, "test-key")
			records, err := resolver.History(context.Background(), creator, 0, 99999999, exchanges)
			require.NoError(t, err)
			assert.Equal(t, tc.expected, records)
		})
	}
}

func TestHistoryNetworkFailure(t *testing.T) {
	server := newExplorer(t, "", "")
	server.Close() // Connection refused from here on.

	resolver := NewResolver(server.URL, "test-key")
	_, err := resolver.History(context.Background(), creator, 0, 100, nil)
	require.Error(t, err)
}

func TestVerified(t *testing.T) {
	testCases := []struct {
		name     string
		body     string
		expected bool
	}{
		{"Verified sentinel", `{"status":"1","result":"[...abi...]"}`, true},
		{"Unverified", `{"status":"0","result":"Contract source code not verified"}`, false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			server := newExplorer(t, "", tc.body)
			defer server.Close()

			resolver := NewResolver(server.URL, "test-key")
			verified, err := resolver.Verified(context.Background(), creator)
			require.NoError(t, err)
			assert.Equal(t, tc.expected, verified)
		})
	}
}
