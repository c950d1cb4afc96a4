// Package subscriber maintains a push subscription for pool-creation logs
// and forwards every delivered log into a channel. The subscription is the
// system's single upstream; when it drops, the subscriber re-establishes
// it with exponential backoff instead of surfacing the failure.
package subscriber

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/sethvargo/go-retry"
)

// Logger defines a standard interface for structured, leveled logging,
// compatible with the standard library's slog.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// SubscribeFunc establishes a log subscription. It matches the signature
// of ethclient.Client.SubscribeFilterLogs.
type SubscribeFunc func(ctx context.Context, q ethereum.FilterQuery, ch chan<- types.Log) (ethereum.Subscription, error)

const (
	defaultBackoffBase = time.Second
	defaultBackoffCap  = time.Minute
)

// Config holds the dependencies and settings for a Subscriber.
type Config struct {
	// Subscribe establishes the upstream subscription.
	Subscribe SubscribeFunc

	// Query selects the logs to receive. For pool watching this is the
	// creation event topic, with no address restriction.
	Query ethereum.FilterQuery

	// Logs receives every delivered log. The channel is owned by the
	// caller and is never closed by the subscriber.
	Logs chan<- types.Log

	Logger Logger

	// BackoffBase and BackoffCap bound the exponential delay between
	// resubscription attempts. Zero values take the defaults.
	BackoffBase time.Duration
	BackoffCap  time.Duration
}

func (c *Config) validate() error {
	if c.Subscribe == nil {
		return errors.New("subscribe function is required")
	}
	if c.Logs == nil {
		return errors.New("logs channel is required")
	}
	if c.Logger == nil {
		return errors.New("logger is required")
	}
	return nil
}

// Subscriber owns the lifecycle of one log subscription.
type Subscriber struct {
	subscribe   SubscribeFunc
	query       ethereum.FilterQuery
	logs        chan<- types.Log
	logger      Logger
	backoffBase time.Duration
	backoffCap  time.Duration
}

// New constructs a Subscriber. Run must be called to start it.
func New(cfg *Config) (*Subscriber, error) {
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid subscriber configuration: %w", err)
	}

	base := cfg.BackoffBase
	if base <= 0 {
		base = defaultBackoffBase
	}
	cap := cfg.BackoffCap
	if cap <= 0 {
		cap = defaultBackoffCap
	}

	return &Subscriber{
		subscribe:   cfg.Subscribe,
		query:       cfg.Query,
		logs:        cfg.Logs,
		logger:      cfg.Logger,
		backoffBase: base,
		backoffCap:  cap,
	}, nil
}

// Run blocks, forwarding delivered logs until ctx is cancelled. A dropped
// or failed subscription is re-established indefinitely; only context
// cancellation ends the loop.
func (s *Subscriber) Run(ctx context.Context) error {
	for {
		sub, ch, err := s.establish(ctx)
		if err != nil {
			// establish only fails when ctx is done.
			return err
		}

		err = s.forward(ctx, sub, ch)
		sub.Unsubscribe()
		if ctx.Err() != nil {
			return ctx.Err()
		}
		s.logger.Warn("log subscription dropped; resubscribing", "err", err)
	}
}

// establish opens the subscription, retrying with exponential backoff
// until it succeeds or ctx is cancelled.
func (s *Subscriber) establish(ctx context.Context) (ethereum.Subscription, chan types.Log, error) {
	var sub ethereum.Subscription
	ch := make(chan types.Log)

	backoff := retry.WithCappedDuration(s.backoffCap, retry.NewExponential(s.backoffBase))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		var err error
		sub, err = s.subscribe(ctx, s.query, ch)
		if err != nil {
			s.logger.Warn("log subscription attempt failed", "err", err)
			return retry.RetryableError(err)
		}
		return nil
	})
	if err != nil {
		return nil, nil, fmt.Errorf("subscriber: establish subscription: %w", err)
	}

	s.logger.Info("log subscription established")
	return sub, ch, nil
}

// forward relays logs until the subscription errors or ctx is cancelled.
func (s *Subscriber) forward(ctx context.Context, sub ethereum.Subscription, ch chan types.Log) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-sub.Err():
			return err
		case logEntry := <-ch:
			select {
			case s.logs <- logEntry:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
}
