// Command poolsentry watches a ledger for new liquidity pools, vets each
// pool creator's provenance, and buys into pools whose creators pass the
// trust consensus.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"math/big"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	ethclients "github.com/Iwinswap/iwinswap-ethclients"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/joho/godotenv"
	"github.com/lmittmann/tint"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/poolsentry/poolsentry"
	"github.com/poolsentry/poolsentry/event"
	"github.com/poolsentry/poolsentry/provenance"
	"github.com/poolsentry/poolsentry/subscriber"
	"github.com/poolsentry/poolsentry/swap"
	"github.com/poolsentry/poolsentry/topics"
)

func main() {
	configPath := flag.String("config", "poolsentry.yaml", "path to the yaml configuration file")
	flag.Parse()

	logger := slog.New(tint.NewHandler(os.Stderr, &tint.Options{Level: slog.LevelDebug}))

	// .env is optional; secrets may come from the real environment.
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		logger.Warn("could not load .env file", "err", err)
	}

	if err := run(logger, *configPath); err != nil {
		logger.Error("poolsentry exited with error", "err", err)
		os.Exit(1)
	}
}

func run(logger *slog.Logger, configPath string) error {
	cfg, err := LoadConfig(configPath)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	client, err := ethclient.DialContext(ctx, cfg.WSEndpoint)
	if err != nil {
		return fmt.Errorf("dial ledger endpoint: %w", err)
	}
	defer client.Close()
	getClient := func() (ethclients.ETHClient, error) { return client, nil }

	wallet, err := loadWallet(cfg)
	if err != nil {
		return err
	}
	logger.Info("wallet loaded", "address", wallet.Address().Hex())

	engine, err := swap.NewEngine(&swap.EngineConfig{
		GetClient:   getClient,
		Wallet:      wallet,
		Nonces:      swap.NewNonceSequencer(wallet.Address()),
		Router:      cfg.RouterAddr,
		Reference:   cfg.ReferenceAddr,
		ChainID:     big.NewInt(cfg.ChainID),
		SlippageBps: cfg.SlippageBps,
		FeeBps:      cfg.FeeBps,
		Logger:      logger,
	})
	if err != nil {
		return err
	}
	approvals := swap.NewApprovalManager(engine, cfg.ApprovalCap)

	resolver := provenance.NewResolver(cfg.ExplorerURL, cfg.ExplorerAPIKey)
	exchanges := cfg.ExchangeMap()
	denySet := cfg.DenySet()

	registry := prometheus.NewRegistry()
	logEventer := make(chan types.Log, 64)

	_, err = poolsentry.NewSentry(ctx, &poolsentry.Config{
		SystemName:    cfg.SystemName,
		PrometheusReg: registry,
		LogEventer:    logEventer,
		GetClient:     getClient,
		ChainID:       big.NewInt(cfg.ChainID),
		Reference:     cfg.ReferenceAddr,
		ResolveHistory: func(ctx context.Context, account common.Address, startBlock, endBlock uint64) ([]provenance.TransactionRecord, error) {
			return resolver.History(ctx, account, startBlock, endBlock, exchanges)
		},
		ResolveVerified: resolver.Verified,
		ExecuteSwap: func(ctx context.Context, ev event.LiquidityEvent) (common.Hash, error) {
			signed, err := engine.BuyWithReference(ctx, ev.Pool, ev.PairedToken, cfg.BuyAmount)
			if err != nil {
				return common.Hash{}, err
			}
			// Approve the router now so the position can be sold later
			// without an extra round trip at exit time.
			if _, err := approvals.EnsureApproval(ctx, ev.PairedToken); err != nil {
				logger.Warn("token approval failed", "token", ev.PairedToken.Hex(), "err", err)
			}
			return signed.Hash, nil
		},
		InDenyList: func(pool common.Address) bool {
			_, denied := denySet[pool]
			return denied
		},
		ErrorHandler:    func(error) {},
		PruneFrequency:  cfg.PruneFrequency,
		RetentionBlocks: cfg.RetentionBlocks,
		Logger:          logger,
	})
	if err != nil {
		return err
	}

	sub, err := subscriber.New(&subscriber.Config{
		Subscribe: client.SubscribeFilterLogs,
		Query: ethereum.FilterQuery{
			Topics: [][]common.Hash{{topics.PairCreatedEvent}},
		},
		Logs:   logEventer,
		Logger: logger,
	})
	if err != nil {
		return err
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return sub.Run(ctx) })

	if cfg.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
		server := &http.Server{Addr: cfg.MetricsAddr, Handler: mux}

		g.Go(func() error {
			logger.Info("metrics endpoint listening", "addr", cfg.MetricsAddr)
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		g.Go(func() error {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return server.Shutdown(shutdownCtx)
		})
	}

	logger.Info("poolsentry running",
		"system", cfg.SystemName,
		"chain_id", cfg.ChainID,
		"reference", cfg.ReferenceAddr.Hex(),
		"router", cfg.RouterAddr.Hex(),
	)

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func loadWallet(cfg *AppConfig) (*swap.Wallet, error) {
	if cfg.WalletFile != "" {
		return swap.LoadWallet(cfg.WalletFile)
	}
	return swap.NewWallet(cfg.WalletKey)
}
