// Package swap builds, prices, signs and submits swap transactions against
// a V2 router, bounded by a slippage tolerance and an on-chain deadline.
package swap

import (
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/goccy/go-json"
)

// Wallet holds the signing key for the single account the system trades
// from. Constructed once at startup, read-only thereafter.
type Wallet struct {
	key     *ecdsa.PrivateKey
	address common.Address
}

// NewWallet constructs a Wallet from a hex-encoded private key.
func NewWallet(hexKey string) (*Wallet, error) {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(hexKey, "0x"))
	if err != nil {
		return nil, fmt.Errorf("swap: invalid private key: %w", err)
	}
	return &Wallet{
		key:     key,
		address: crypto.PubkeyToAddress(key.PublicKey),
	}, nil
}

// walletFile is the on-disk secret format: {"key": ..., "address": ...}.
type walletFile struct {
	Key     string `json:"key"`
	Address string `json:"address"`
}

// LoadWallet reads a wallet secret file and cross-checks the declared
// address against the one derived from the key.
func LoadWallet(path string) (*Wallet, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("swap: read wallet file: %w", err)
	}

	var parsed walletFile
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("swap: parse wallet file: %w", err)
	}

	wallet, err := NewWallet(parsed.Key)
	if err != nil {
		return nil, err
	}

	if parsed.Address != "" {
		declared := common.HexToAddress(parsed.Address)
		if declared != wallet.address {
			return nil, fmt.Errorf("swap: wallet file address %s does not match key-derived address %s",
				declared.Hex(), wallet.address.Hex())
		}
	}

	return wallet, nil
}

// Address returns the account address in canonical checksummed form.
func (w *Wallet) Address() common.Address {
	return w.address
}

// SignTx signs a transaction for the given chain.
func (w *Wallet) SignTx(tx *types.Transaction, chainID *big.Int) (*types.Transaction, error) {
	signed, err := types.SignTx(tx, types.LatestSignerForChainID(chainID), w.key)
	if err != nil {
		return nil, fmt.Errorf("swap: sign transaction: %w", err)
	}
	return signed, nil
}
