package main

import (
	"errors"
	"fmt"
	"math/big"
	"os"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"gopkg.in/yaml.v2"

	"github.com/poolsentry/poolsentry/pricer"
)

// Environment variables carrying secrets. They are never read from the
// yaml file.
const (
	envExplorerAPIKey = "POOLSENTRY_EXPLORER_API_KEY"
	envWalletKey      = "POOLSENTRY_WALLET_KEY"
)

// AppConfig is the yaml configuration of the poolsentry binary. Secrets
// (the explorer API key and the wallet private key) come from the
// environment, loaded from .env when present.
type AppConfig struct {
	SystemName  string `yaml:"system_name"`
	WSEndpoint  string `yaml:"ws_endpoint"`
	ChainID     int64  `yaml:"chain_id"`
	MetricsAddr string `yaml:"metrics_addr"`

	Reference string `yaml:"reference"`
	Router    string `yaml:"router"`

	ExplorerURL string `yaml:"explorer_url"`

	// WalletFile is a JSON secret file; when empty the wallet key is read
	// from the environment instead.
	WalletFile string `yaml:"wallet_file"`

	// Slippage is the tolerated downward price movement as a fraction,
	// e.g. 0.1 for 10%.
	Slippage float64 `yaml:"slippage"`
	FeeBps   uint16  `yaml:"fee_bps"`

	// BuyAmountWei is the reference-asset amount spent on each passing
	// pool, in wei.
	BuyAmountWei string `yaml:"buy_amount_wei"`

	// ApprovalCapWei bounds token approvals. Empty approves each token's
	// full total supply.
	ApprovalCapWei string `yaml:"approval_cap_wei"`

	// PruneFrequencyStr is a Go duration string, e.g. "10m". Empty
	// disables the pruner.
	PruneFrequencyStr string `yaml:"prune_frequency"`
	RetentionBlocks   uint64 `yaml:"retention_blocks"`

	DenyList []string `yaml:"deny_list"`

	// KnownExchanges labels plain value transfers in creator histories,
	// keyed by the exchange's hot-wallet address.
	KnownExchanges map[string]string `yaml:"known_exchanges"`

	// Derived fields, populated by LoadConfig.
	ExplorerAPIKey string         `yaml:"-"`
	WalletKey      string         `yaml:"-"`
	SlippageBps    uint16         `yaml:"-"`
	BuyAmount      *big.Int       `yaml:"-"`
	ApprovalCap    *big.Int       `yaml:"-"`
	ReferenceAddr  common.Address `yaml:"-"`
	RouterAddr     common.Address `yaml:"-"`
	PruneFrequency time.Duration  `yaml:"-"`
}

// LoadConfig reads, resolves and validates the yaml configuration at path.
func LoadConfig(path string) (*AppConfig, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	cfg := &AppConfig{}
	if err := yaml.UnmarshalStrict(raw, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cfg.ExplorerAPIKey = os.Getenv(envExplorerAPIKey)
	cfg.WalletKey = os.Getenv(envWalletKey)

	if err := cfg.resolve(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func (c *AppConfig) resolve() error {
	if c.SystemName == "" {
		c.SystemName = "poolsentry"
	}
	if c.WSEndpoint == "" {
		return errors.New("ws_endpoint is required")
	}
	if c.ChainID <= 0 {
		return errors.New("chain_id is required")
	}
	if c.ExplorerURL == "" {
		return errors.New("explorer_url is required")
	}
	if c.WalletFile == "" && c.WalletKey == "" {
		return fmt.Errorf("either wallet_file or %s is required", envWalletKey)
	}

	var err error
	if c.ReferenceAddr, err = parseAddress("reference", c.Reference); err != nil {
		return err
	}
	if c.RouterAddr, err = parseAddress("router", c.Router); err != nil {
		return err
	}

	if c.SlippageBps, err = pricer.SlippageBps(c.Slippage); err != nil {
		return fmt.Errorf("slippage: %w", err)
	}

	if c.BuyAmount, err = parseWei("buy_amount_wei", c.BuyAmountWei); err != nil {
		return err
	}
	if c.BuyAmount.Sign() <= 0 {
		return errors.New("buy_amount_wei must be positive")
	}

	if c.ApprovalCapWei != "" {
		if c.ApprovalCap, err = parseWei("approval_cap_wei", c.ApprovalCapWei); err != nil {
			return err
		}
		if c.ApprovalCap.Sign() <= 0 {
			return errors.New("approval_cap_wei must be positive when set")
		}
	}

	if c.PruneFrequencyStr != "" {
		if c.PruneFrequency, err = time.ParseDuration(c.PruneFrequencyStr); err != nil {
			return fmt.Errorf("prune_frequency: %w", err)
		}
	}

	for _, addr := range c.DenyList {
		if !common.IsHexAddress(addr) {
			return fmt.Errorf("deny_list: %q is not a valid address", addr)
		}
	}
	for addr := range c.KnownExchanges {
		if !common.IsHexAddress(addr) {
			return fmt.Errorf("known_exchanges: %q is not a valid address", addr)
		}
	}

	return nil
}

// DenySet returns the deny list as a membership set.
func (c *AppConfig) DenySet() map[common.Address]struct{} {
	set := make(map[common.Address]struct{}, len(c.DenyList))
	for _, addr := range c.DenyList {
		set[common.HexToAddress(addr)] = struct{}{}
	}
	return set
}

// ExchangeMap returns the known-exchange labels keyed by normalized address.
func (c *AppConfig) ExchangeMap() map[common.Address]string {
	m := make(map[common.Address]string, len(c.KnownExchanges))
	for addr, name := range c.KnownExchanges {
		m[common.HexToAddress(addr)] = name
	}
	return m
}

func parseAddress(field, value string) (common.Address, error) {
	if !common.IsHexAddress(value) {
		return common.Address{}, fmt.Errorf("%s: %q is not a valid address", field, value)
	}
	return common.HexToAddress(value), nil
}

func parseWei(field, value string) (*big.Int, error) {
	if value == "" {
		return nil, fmt.Errorf("%s is required", field)
	}
	amount, ok := new(big.Int).SetString(value, 10)
	if !ok {
		return nil, fmt.Errorf("%s: %q is not a valid decimal amount", field, value)
	}
	return amount, nil
}
