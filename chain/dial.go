package chain

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
)

const (
	defaultDialAttempts = 10
	defaultDialInterval = 3 * time.Second
)

// DialConfig describes how to reach the node and which contracts to use.
type DialConfig struct {
	Endpoint string
	Attempts int
	Interval time.Duration
	EVM      EVMConfig
}

type dialFunc func(ctx context.Context) (*EVMReader, func(), error)

// Connect dials the node and builds an EVMReader, retrying at a fixed interval
// while the node comes up. The returned function closes the client. Retrying
// is a startup concern only: once connected, reader calls are never retried.
func Connect(ctx context.Context, cfg DialConfig, logger *slog.Logger) (*EVMReader, func(), error) {
	return connect(ctx, cfg, logger, func(ctx context.Context) (*EVMReader, func(), error) {
		client, err := DialEVMClient(ctx, cfg.Endpoint)
		if err != nil {
			return nil, nil, err
		}
		reader, err := NewEVMReader(ctx, client, client.Client(), cfg.EVM)
		if err != nil {
			client.Close()
			return nil, nil, err
		}
		return reader, client.Close, nil
	})
}

func connect(ctx context.Context, cfg DialConfig, logger *slog.Logger, dial dialFunc) (*EVMReader, func(), error) {
	if logger == nil {
		logger = slog.Default()
	}
	attempts := cfg.Attempts
	if attempts <= 0 {
		attempts = defaultDialAttempts
	}
	interval := cfg.Interval
	if interval <= 0 {
		interval = defaultDialInterval
	}
	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(interval), uint64(attempts-1)),
		ctx,
	)

	var (
		reader *EVMReader
		closer func()
		tries  int
	)
	operation := func() error {
		tries++
		r, c, err := dial(ctx)
		if err != nil {
			return err
		}
		reader, closer = r, c
		return nil
	}
	notify := func(err error, wait time.Duration) {
		logger.Warn("chain connection failed, retrying",
			slog.String("endpoint", cfg.Endpoint),
			slog.Int("attempt", tries),
			slog.Int("max_attempts", attempts),
			slog.Duration("wait", wait),
			slog.Any("error", err))
	}
	if err := backoff.RetryNotify(operation, policy, notify); err != nil {
		return nil, nil, fmt.Errorf("chain: connect to %s after %d attempts: %w", cfg.Endpoint, tries, err)
	}
	logger.Info("chain connection established",
		slog.String("endpoint", cfg.Endpoint),
		slog.String("sender", reader.Sender().Hex()),
		slog.Int("attempts", tries))
	return reader, closer, nil
}
