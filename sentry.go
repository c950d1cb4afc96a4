// Package poolsentry watches a ledger for new liquidity pools, runs a
// trust consensus over each pool creator's transaction history, and
// executes a bounded swap when the consensus is unanimous.
package poolsentry

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"sync/atomic"
	"time"

	ethclients "github.com/Iwinswap/iwinswap-ethclients"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"github.com/poolsentry/poolsentry/event"
	"github.com/poolsentry/poolsentry/filter"
	"github.com/poolsentry/poolsentry/logs"
	"github.com/poolsentry/poolsentry/provenance"
	"github.com/poolsentry/poolsentry/swap"
)

// Logger defines a standard interface for structured, leveled logging,
// compatible with the standard library's slog.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// --- Function Type Definitions for Dependencies ---

// These named types create a clear, maintainable contract for the system's dependencies.

type GetClientFunc func() (ethclients.ETHClient, error)
type ResolveHistoryFunc func(ctx context.Context, account common.Address, startBlock, endBlock uint64) ([]provenance.TransactionRecord, error)
type ResolveVerifiedFunc func(ctx context.Context, account common.Address) (bool, error)
type ExecuteSwapFunc func(ctx context.Context, ev event.LiquidityEvent) (common.Hash, error)
type InDenyListFunc func(pool common.Address) bool

type ErrorHandlerFunc func(err error)

// Config holds all the dependencies and settings for the Sentry.
// Using a configuration struct makes initialization cleaner and more extensible.
type Config struct {
	SystemName      string
	PrometheusReg   prometheus.Registerer
	LogEventer      chan types.Log
	GetClient       GetClientFunc
	ChainID         *big.Int
	Reference       common.Address
	ResolveHistory  ResolveHistoryFunc
	ResolveVerified ResolveVerifiedFunc
	ExecuteSwap     ExecuteSwapFunc
	InDenyList      InDenyListFunc
	ErrorHandler    ErrorHandlerFunc
	PruneFrequency  time.Duration
	RetentionBlocks uint64
	Logger          Logger
}

// validate checks that all essential fields in the Config are provided.
func (c *Config) validate() error {
	if c.SystemName == "" {
		return errors.New("system name is required")
	}
	if c.LogEventer == nil {
		return errors.New("log eventer channel is required")
	}
	if c.GetClient == nil {
		return errors.New("get client function is required")
	}
	if c.ChainID == nil || c.ChainID.Sign() <= 0 {
		return errors.New("chain id is required")
	}
	if c.Reference == (common.Address{}) {
		return errors.New("reference asset address is required")
	}
	if c.ResolveHistory == nil {
		return errors.New("resolve history function is required")
	}
	if c.ResolveVerified == nil {
		return errors.New("resolve verified function is required")
	}
	if c.ExecuteSwap == nil {
		return errors.New("execute swap function is required")
	}
	if c.InDenyList == nil {
		return errors.New("in deny list function is required")
	}
	if c.ErrorHandler == nil {
		return errors.New("error handler function is required")
	}
	if c.Logger == nil {
		return errors.New("logger is required")
	}

	return nil
}

// Sentry is the main orchestrator that connects the evaluation registry to
// the live ledger. It consumes pool-creation logs, resolves the creator's
// provenance, records the consensus verdict with thread-safety, and hands
// passing events to the swap executor.
type Sentry struct {
	systemName         string
	logEventer         chan types.Log
	getClient          GetClientFunc
	chainID            *big.Int
	reference          common.Address
	resolveHistory     ResolveHistoryFunc
	resolveVerified    ResolveVerifiedFunc
	executeSwap        ExecuteSwapFunc
	inDenyList         InDenyListFunc
	cachedView         atomic.Pointer[[]EvaluationView]
	lastProcessedBlock atomic.Uint64
	errorHandler       ErrorHandlerFunc
	pruneFrequency     time.Duration
	retentionBlocks    uint64
	mu                 sync.RWMutex
	registry           *EvaluationRegistry
	metrics            *Metrics
	logger             Logger
}

// NewSentry constructs and returns a new, fully initialized system.
// It starts all background goroutines, making it a self-contained, "live" service upon creation.
func NewSentry(ctx context.Context, cfg *Config) (*Sentry, error) {
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid sentry configuration: %w", err)
	}

	metrics := NewMetrics(cfg.PrometheusReg, cfg.SystemName)

	sentry := &Sentry{
		systemName:      cfg.SystemName,
		logEventer:      cfg.LogEventer,
		getClient:       cfg.GetClient,
		chainID:         cfg.ChainID,
		reference:       cfg.Reference,
		resolveHistory:  cfg.ResolveHistory,
		resolveVerified: cfg.ResolveVerified,
		executeSwap:     cfg.ExecuteSwap,
		inDenyList:      cfg.InDenyList,
		errorHandler: func(err error) {
			errorType := determineErrorType(err)
			cfg.Logger.Error("Sentry internal error", "system", cfg.SystemName, "type", errorType, "error", err)
			metrics.ErrorsTotal.WithLabelValues(errorType).Inc()

			cfg.ErrorHandler(err)
		},
		pruneFrequency:  cfg.PruneFrequency,
		retentionBlocks: cfg.RetentionBlocks,
		registry:        NewEvaluationRegistry(),
		metrics:         metrics,
		logger:          cfg.Logger,
	}

	sentry.cachedView.Store(&[]EvaluationView{})
	sentry.logger.Info("Sentry started", "system", sentry.systemName)
	go sentry.listenLogEventer(ctx)
	go sentry.startPruner(ctx)

	return sentry, nil
}

// View returns a copy of the latest registry view. This operation is lock-free.
func (s *Sentry) View() []EvaluationView {
	viewPtr := s.cachedView.Load()
	if viewPtr == nil {
		return nil
	}
	view := *viewPtr
	viewCopy := make([]EvaluationView, len(view))
	copy(viewCopy, view)
	return viewCopy
}

// LastProcessedBlock returns the block number of the last processed pool-creation log.
func (s *Sentry) LastProcessedBlock() uint64 {
	return s.lastProcessedBlock.Load()
}

// Evaluation returns the recorded outcome for a pool, if one exists.
func (s *Sentry) Evaluation(pool common.Address) (EvaluationView, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return getEvaluationByPool(pool, s.registry)
}

// updateCachedView generates a fresh view from the registry and atomically updates the pointer.
// This method MUST be called from within a write lock (s.mu.Lock).
func (s *Sentry) updateCachedView() {
	newView := viewRegistry(s.registry)
	s.cachedView.Store(&newView)
	s.metrics.EvaluationsInRegistry.WithLabelValues().Set(float64(len(newView)))
}

// listenLogEventer is the main event loop for the system.
func (s *Sentry) listenLogEventer(ctx context.Context) {
	for {
		select {
		case logEntry := <-s.logEventer:
			timer := prometheus.NewTimer(s.metrics.EventProcessingDur.WithLabelValues())
			s.metrics.EventsSeen.WithLabelValues().Inc()

			if err := s.handleLog(ctx, logEntry); err != nil {
				s.errorHandler(err)
			}
			timer.ObserveDuration()
		case <-ctx.Done():
			s.logger.Info("Sentry stopping due to context cancellation.")
			return
		}
	}
}

// handleLog runs the full pipeline for one delivered log: decode, assemble
// the liquidity event, resolve the creator's provenance, evaluate the
// consensus, record the verdict, and execute the swap on a pass.
//
// A pool already present in the registry is skipped before any network
// call; re-delivery of the same log is a cheap no-op.
func (s *Sentry) handleLog(ctx context.Context, logEntry types.Log) error {
	pairCreated, err := logs.ParsePairCreated(logEntry)
	if err != nil {
		return &DecodeError{
			SystemError: SystemError{BlockNumber: logEntry.BlockNumber, Err: err},
			TxHash:      logEntry.TxHash,
		}
	}

	if s.seen(pairCreated.Pair) {
		s.metrics.DuplicateEvents.WithLabelValues().Inc()
		s.logger.Debug("Skipping already evaluated pool", "pool", pairCreated.Pair.Hex())
		return nil
	}

	ev, err := s.assembleEvent(ctx, logEntry, pairCreated)
	if err != nil {
		return err
	}

	verdict, err := s.evaluateProvenance(ctx, ev)
	if err != nil {
		return err
	}

	if err := s.record(ev, verdict); err != nil {
		if errors.Is(err, ErrEvaluationExists) {
			// Lost a race with a concurrent delivery of the same pool.
			s.metrics.DuplicateEvents.WithLabelValues().Inc()
			return nil
		}
		return err
	}

	s.lastProcessedBlock.Store(ev.BlockNumber)
	s.metrics.LastProcessedBlock.WithLabelValues().Set(float64(ev.BlockNumber))

	verdictLabel := "reject"
	if verdict.Pass() {
		verdictLabel = "pass"
	}
	s.metrics.EvaluationsTotal.WithLabelValues(verdictLabel).Inc()

	s.logger.Info(
		"Evaluated new pool",
		"pool", ev.Pool.Hex(),
		"creator", ev.Creator.Hex(),
		"block", ev.BlockNumber,
		"liquidity_wei", ev.InitialLiquidityWei.String(),
		"liquidity_sufficient", verdict.LiquiditySufficient,
		"no_prior_removal", verdict.NoPriorRemoval,
		"contract_verified", verdict.ContractVerified,
		"passed", verdict.Pass(),
	)

	if !verdict.Pass() {
		return nil
	}
	return s.executePassingEvent(ctx, ev)
}

// seen reports whether the pool has already been evaluated.
func (s *Sentry) seen(pool common.Address) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return hasEvaluation(pool, s.registry)
}

// assembleEvent builds the liquidity event from the creating transaction:
// the creator is recovered from the transaction's signature, and the
// initial deposit is read from the receipt's logs.
func (s *Sentry) assembleEvent(ctx context.Context, logEntry types.Log, pairCreated logs.PairCreated) (event.LiquidityEvent, error) {
	pool := pairCreated.Pair

	client, err := s.getClient()
	if err != nil {
		return event.LiquidityEvent{}, &ResolveError{
			SystemError: SystemError{BlockNumber: logEntry.BlockNumber, Err: err},
			Pool:        pool,
			Stage:       "client",
		}
	}

	tx, _, err := client.TransactionByHash(ctx, logEntry.TxHash)
	if err != nil {
		return event.LiquidityEvent{}, &ResolveError{
			SystemError: SystemError{BlockNumber: logEntry.BlockNumber, Err: err},
			Pool:        pool,
			Stage:       "creating transaction",
		}
	}
	creator, err := types.Sender(types.LatestSignerForChainID(s.chainID), tx)
	if err != nil {
		return event.LiquidityEvent{}, &ResolveError{
			SystemError: SystemError{BlockNumber: logEntry.BlockNumber, Err: err},
			Pool:        pool,
			Stage:       "creator recovery",
		}
	}

	receipt, err := client.TransactionReceipt(ctx, logEntry.TxHash)
	if err != nil {
		return event.LiquidityEvent{}, &ResolveError{
			SystemError: SystemError{BlockNumber: logEntry.BlockNumber, Err: err},
			Pool:        pool,
			Creator:     creator,
			Stage:       "transaction receipt",
		}
	}

	return event.LiquidityEvent{
		BlockNumber:         logEntry.BlockNumber,
		Creator:             creator,
		FactoryTxHash:       logEntry.TxHash,
		Pool:                pool,
		PairedToken:         pairCreated.PairedToken(s.reference),
		InitialLiquidityWei: logs.InitialDepositWei(receipt.Logs),
	}, nil
}

// evaluateProvenance resolves the creator's transaction history and
// verification status concurrently, then runs the consensus.
func (s *Sentry) evaluateProvenance(ctx context.Context, ev event.LiquidityEvent) (filter.Verdict, error) {
	timer := prometheus.NewTimer(s.metrics.ProvenanceDur.WithLabelValues())
	defer timer.ObserveDuration()

	var (
		history  []provenance.TransactionRecord
		verified bool
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		history, err = s.resolveHistory(gctx, ev.Creator, 0, ev.BlockNumber)
		if err != nil {
			return &ResolveError{
				SystemError: SystemError{BlockNumber: ev.BlockNumber, Err: err},
				Pool:        ev.Pool,
				Creator:     ev.Creator,
				Stage:       "creator history",
			}
		}
		return nil
	})
	g.Go(func() error {
		var err error
		verified, err = s.resolveVerified(gctx, ev.Creator)
		if err != nil {
			return &ResolveError{
				SystemError: SystemError{BlockNumber: ev.BlockNumber, Err: err},
				Pool:        ev.Pool,
				Creator:     ev.Creator,
				Stage:       "verification status",
			}
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return filter.Verdict{}, err
	}

	return filter.Evaluate(ev, history, verified), nil
}

// record stores the verdict in the registry and refreshes the cached view.
func (s *Sentry) record(ev event.LiquidityEvent, verdict filter.Verdict) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := addEvaluation(ev.Pool, ev.Creator, ev.BlockNumber, verdict, s.registry); err != nil {
		if errors.Is(err, ErrEvaluationExists) {
			return err
		}
		return &RecordError{
			SystemError: SystemError{BlockNumber: ev.BlockNumber, Err: err},
			Pool:        ev.Pool,
		}
	}
	s.updateCachedView()
	return nil
}

// executePassingEvent hands a unanimous event to the swap executor and
// attaches the submitted transaction hash to the evaluation record.
func (s *Sentry) executePassingEvent(ctx context.Context, ev event.LiquidityEvent) error {
	txHash, err := s.executeSwap(ctx, ev)
	if err != nil {
		var revert *swap.RevertError
		return &ExecutionError{
			SystemError: SystemError{BlockNumber: ev.BlockNumber, Err: err},
			Pool:        ev.Pool,
			Token:       ev.PairedToken,
			Reverted:    errors.As(err, &revert),
		}
	}

	s.metrics.SwapsSubmitted.WithLabelValues().Inc()
	s.logger.Info(
		"Swap submitted for passing pool",
		"pool", ev.Pool.Hex(),
		"token", ev.PairedToken.Hex(),
		"tx", txHash.Hex(),
	)

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := setSwapTx(ev.Pool, txHash, s.registry); err != nil {
		return &RecordError{
			SystemError: SystemError{BlockNumber: ev.BlockNumber, Err: err},
			Pool:        ev.Pool,
		}
	}
	s.updateCachedView()
	return nil
}

// startPruner is a background process that periodically removes deny-listed
// and expired evaluations from the registry.
func (s *Sentry) startPruner(ctx context.Context) {
	if s.pruneFrequency <= 0 {
		return
	}
	ticker := time.NewTicker(s.pruneFrequency)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			s.pruneEvaluations()
		case <-ctx.Done():
			return
		}
	}
}

// pruneEvaluations scans the registry for evaluations that should no longer
// be retained and removes them: pools on the deny list, and records older
// than the retention depth when one is configured.
func (s *Sentry) pruneEvaluations() {
	s.logger.Info("Starting pruner run to check for deny-listed or expired evaluations")
	timer := prometheus.NewTimer(s.metrics.PruningDuration.WithLabelValues())
	defer timer.ObserveDuration()

	currentView := s.View()
	if len(currentView) == 0 {
		return
	}

	var expiryCutoff uint64
	if s.retentionBlocks > 0 {
		if head := s.lastProcessedBlock.Load(); head > s.retentionBlocks {
			expiryCutoff = head - s.retentionBlocks
		}
	}

	var poolsToDelete []common.Address
	for _, evalView := range currentView {
		if s.inDenyList(evalView.Pool) || (expiryCutoff > 0 && evalView.Block < expiryCutoff) {
			poolsToDelete = append(poolsToDelete, evalView.Pool)
		}
	}

	if len(poolsToDelete) > 0 {
		s.logger.Info("Pruner removing evaluations", "count", len(poolsToDelete))
		errs := s.DeleteEvaluations(poolsToDelete)
		for i, err := range errs {
			if err != nil {
				s.errorHandler(&PrunerError{Pool: poolsToDelete[i], Err: fmt.Errorf("failed to delete from registry: %w", err)})
			}
		}
	}
}

// DeleteEvaluation removes a single evaluation from the Sentry's internal registry.
//
// @note This is a low-level method. A deleted pool becomes eligible for
// re-evaluation if its creation log is delivered again.
func (s *Sentry) DeleteEvaluation(pool common.Address) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	err := deleteEvaluation(pool, s.registry)
	if err != nil {
		return err
	}

	// After any modification to the registry, the cached view must be updated.
	s.updateCachedView()
	return nil
}

// DeleteEvaluations removes multiple evaluations from the Sentry's internal registry.
//
// @note This is a low-level method. A deleted pool becomes eligible for
// re-evaluation if its creation log is delivered again.
func (s *Sentry) DeleteEvaluations(pools []common.Address) []error {
	s.mu.Lock()
	defer s.mu.Unlock()

	errs := make([]error, len(pools))
	hasChanged := false
	hasErrors := false

	for i, pool := range pools {
		err := deleteEvaluation(pool, s.registry)
		if err != nil {
			errs[i] = err
			hasErrors = true
		} else {
			hasChanged = true
		}
	}

	if hasChanged {
		// After any modification to the registry, the cached view must be updated.
		s.updateCachedView()
	}

	if hasErrors {
		return errs
	}

	return nil
}
