// Package provenance reconstructs an address's outbound transaction
// history from an explorer-style REST API and classifies each transaction
// by its decoded method, producing the evidence the consensus filter
// evaluates.
package provenance

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/goccy/go-json"

	"github.com/poolsentry/poolsentry/topics"
)

const (
	// defaultPageSize is the single-page result window requested from the
	// explorer. One external call per History invocation; no caching.
	defaultPageSize = 10000

	// defaultRequestTimeout bounds a single explorer round trip.
	defaultRequestTimeout = 15 * time.Second

	// verifiedSentinel is the explorer's status flag for an address whose
	// source code has been published and verified.
	verifiedSentinel = "1"
)

// TransactionRecord is a classified historical transaction for an address.
// The sequence is ordered most recent first; consumers only build label
// frequency counts over it.
type TransactionRecord struct {
	// Method is the classification label: a decoded method name, a raw
	// selector, or a "Transfer from ..." label for plain value transfers.
	Method string

	// Block is the block number the transaction landed in.
	Block uint64
}

// Resolver queries an explorer-style REST API for transaction histories
// and source-verification status.
type Resolver struct {
	baseURL  string
	apiKey   string
	pageSize int
	client   *http.Client
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(r *Resolver) { r.client = c }
}

// WithPageSize overrides the txlist page size.
func WithPageSize(n int) Option {
	return func(r *Resolver) { r.pageSize = n }
}

// NewResolver returns a Resolver for the explorer at baseURL.
func NewResolver(baseURL, apiKey string, opts ...Option) *Resolver {
	r := &Resolver{
		baseURL:  baseURL,
		apiKey:   apiKey,
		pageSize: defaultPageSize,
		client:   &http.Client{Timeout: defaultRequestTimeout},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// txlistResponse mirrors the fields consumed from the explorer's
// account/txlist action. Everything else in the payload is ignored.
type txlistResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
	// Result is kept raw: the explorer reuses the field for an error
	// string when the listing is empty or rate limited.
	Result json.RawMessage `json:"result"`
}

type txsummary struct {
	Input       string `json:"input"`
	From        string `json:"from"`
	BlockNumber string `json:"blockNumber"`
}

type abiResponse struct {
	Status string `json:"status"`
}

// History pages through the explorer's transaction listing for addr within
// [startBlock, endBlock] (single page, large page size, descending) and
// classifies each transaction.
//
// Plain value transfers (empty call data) are labeled by their sender:
// "Transfer from <exchange-name>" when the sender is a known exchange,
// "Transfer from wallet" otherwise. All other transactions are labeled by
// their leading 4-byte selector, falling back to the raw selector when it
// is not known.
//
// A missing result set is an empty history, not an error.
func (r *Resolver) History(
	ctx context.Context,
	addr common.Address,
	startBlock, endBlock uint64,
	knownExchanges map[common.Address]string,
) ([]TransactionRecord, error) {
	params := url.Values{
		"module":     {"account"},
		"action":     {"txlist"},
		"address":    {addr.Hex()},
		"startblock": {strconv.FormatUint(startBlock, 10)},
		"endblock":   {strconv.FormatUint(endBlock, 10)},
		"page":       {"1"},
		"offset":     {strconv.Itoa(r.pageSize)},
		"sort":       {"desc"},
		"apikey":     {r.apiKey},
	}

	var payload txlistResponse
	if err := r.get(ctx, params, &payload); err != nil {
		return nil, fmt.Errorf("provenance: txlist for %s failed: %w", addr.Hex(), err)
	}

	var txs []txsummary
	if len(payload.Result) == 0 || json.Unmarshal(payload.Result, &txs) != nil || len(txs) == 0 {
		// No result set: an empty history, not an error.
		return []TransactionRecord{}, nil
	}

	records := make([]TransactionRecord, 0, len(txs))
	for _, tx := range txs {
		block, err := strconv.ParseUint(tx.BlockNumber, 10, 64)
		if err != nil {
			// A record with an unparsable block is still useful for the
			// frequency count; keep it at block 0.
			block = 0
		}

		var method string
		input := common.FromHex(tx.Input)
		if len(input) == 0 {
			// Normalize the sender before any comparison.
			sender := common.HexToAddress(tx.From)
			if name, ok := knownExchanges[sender]; ok {
				method = "Transfer from " + name
			} else {
				method = "Transfer from wallet"
			}
		} else {
			method = topics.MethodLabel(input)
		}

		records = append(records, TransactionRecord{Method: method, Block: block})
	}

	return records, nil
}

// Verified reports whether addr's source code has been publicly verified,
// using the explorer's getabi action as the verification signal.
func (r *Resolver) Verified(ctx context.Context, addr common.Address) (bool, error) {
	params := url.Values{
		"module":  {"contract"},
		"action":  {"getabi"},
		"address": {addr.Hex()},
		"apikey":  {r.apiKey},
	}

	var payload abiResponse
	if err := r.get(ctx, params, &payload); err != nil {
		return false, fmt.Errorf("provenance: getabi for %s failed: %w", addr.Hex(), err)
	}
	return payload.Status == verifiedSentinel, nil
}

func (r *Resolver) get(ctx context.Context, params url.Values, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.baseURL+"?"+params.Encode(), nil)
	if err != nil {
		return err
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	return json.Unmarshal(body, out)
}
