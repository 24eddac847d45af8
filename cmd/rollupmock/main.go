package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"math/big"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	"rollupmock/chain"
	"rollupmock/config"
	"rollupmock/core/ledger"
	"rollupmock/core/query"
	"rollupmock/core/tx"
	"rollupmock/observability"
	"rollupmock/observability/logging"
	telemetry "rollupmock/observability/otel"
	"rollupmock/rpc"
	"rollupmock/rpc/middleware"
)

const shutdownTimeout = 10 * time.Second

func main() {
	var cfgPath string
	flag.StringVar(&cfgPath, "config", "", "path to rollupmock configuration (yaml or toml)")
	flag.Parse()

	if err := run(cfgPath); err != nil {
		fmt.Fprintf(os.Stderr, "rollupmock: %v\n", err)
		os.Exit(1)
	}
}

func run(cfgPath string) error {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, logCloser, err := logging.Setup(logging.Options{
		Service:    "rollupmock",
		Env:        cfg.Env,
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		File:       cfg.Log.File,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAgeDays: cfg.Log.MaxAgeDays,
	})
	if err != nil {
		return fmt.Errorf("init logging: %w", err)
	}
	defer logCloser.Close()

	shutdownTelemetry, err := telemetry.Init(context.Background(), telemetry.Config{
		ServiceName: "rollupmock",
		Environment: cfg.Env,
		Endpoint:    cfg.Telemetry.Endpoint,
		Insecure:    cfg.Telemetry.Insecure,
		Headers:     telemetry.ParseHeaders(cfg.Telemetry.Headers),
		Metrics:     cfg.Telemetry.MetricsEnabled(),
		Traces:      cfg.Telemetry.TracesEnabled(),
		Attributes: map[string]string{
			"chain.mode":      cfg.Chain.Mode,
			"transfer.policy": cfg.Transfers.Policy,
			"listen":          cfg.Listen,
		},
	})
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	defer func() {
		_ = shutdownTelemetry(context.Background())
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	reader, closeChain, err := openChain(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeChain()

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	handler, err := buildHandler(cfg, reader, logger, registry)
	if err != nil {
		return err
	}

	listener, err := net.Listen("tcp", cfg.Listen)
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	return serve(ctx, listener, handler, logger)
}

// openChain returns the configured chain backend and a release function.
func openChain(ctx context.Context, cfg config.Config, logger *slog.Logger) (chain.Reader, func(), error) {
	logger.Info("chain configured", slog.Any("chain", cfg.Chain))
	if cfg.Chain.Mode == config.ChainModeStatic {
		custody, err := cfg.StaticCustodyBalance()
		if err != nil {
			return nil, nil, err
		}
		logger.Info("using static chain", slog.String("custody", custody.String()))
		return chain.NewStaticReader(custody), func() {}, nil
	}

	evmCfg := chain.EVMConfig{
		Rollup: common.HexToAddress(cfg.Chain.RollupContract),
		Token:  common.HexToAddress(cfg.Chain.TokenAddress),
	}
	if cfg.Chain.Sender != "" {
		evmCfg.Sender = common.HexToAddress(cfg.Chain.Sender)
	}
	if cfg.Chain.SignerKey != "" {
		key, err := crypto.HexToECDSA(strings.TrimPrefix(cfg.Chain.SignerKey, "0x"))
		if err != nil {
			return nil, nil, fmt.Errorf("load signer key: %w", err)
		}
		evmCfg.SignerKey = key
		logger.Info("withdrawals signed locally",
			slog.String("signer", crypto.PubkeyToAddress(key.PublicKey).Hex()))
	}
	if cfg.Chain.ChainID != 0 {
		evmCfg.ChainID = new(big.Int).SetUint64(cfg.Chain.ChainID)
	}
	reader, closeFn, err := chain.Connect(ctx, chain.DialConfig{
		Endpoint: cfg.Chain.URL,
		Attempts: cfg.Chain.DialAttempts,
		Interval: cfg.Chain.DialInterval.Duration,
		EVM:      evmCfg,
	}, logger)
	if err != nil {
		return nil, nil, err
	}
	return reader, closeFn, nil
}

// buildHandler wires ledger, processor, query service and RPC server. Every
// metric family is registered on registry, which also backs /metrics.
func buildHandler(cfg config.Config, reader chain.Reader, logger *slog.Logger, registry *prometheus.Registry) (http.Handler, error) {
	policy, err := tx.ParsePolicy(cfg.Transfers.Policy)
	if err != nil {
		return nil, err
	}
	faucet, err := cfg.FaucetAmount()
	if err != nil {
		return nil, err
	}
	if registry == nil {
		registry = prometheus.NewRegistry()
	}
	metrics, err := observability.NewMetrics(registry)
	if err != nil {
		return nil, err
	}

	state := ledger.New()
	processor := tx.NewProcessor(state, reader,
		tx.WithPolicy(policy),
		tx.WithChangePubKeyFeeAlias(cfg.ChangePubKeyFeeAlias()),
		tx.WithMetrics(metrics.Ledger),
		tx.WithChainMetrics(metrics.Chain),
		tx.WithLogger(logger.With(slog.String("component", "processor"))),
	)

	tokens := make([]query.Token, 0, len(cfg.Tokens))
	for _, token := range cfg.Tokens {
		tokens = append(tokens, query.Token{
			Address:  cfg.Chain.TokenAddress,
			ID:       token.ID,
			Symbol:   token.Symbol,
			Decimals: token.Decimals,
		})
	}
	svc, err := query.NewService(state, reader,
		query.Contracts{Main: cfg.Chain.RollupContract, Gov: cfg.Chain.GovContract},
		tokens,
		query.WithAccountID(cfg.AccountID),
		query.WithChainMetrics(metrics.Chain),
		query.WithLogger(logger.With(slog.String("component", "query"))),
	)
	if err != nil {
		return nil, err
	}

	server := rpc.NewServer(processor, svc,
		rpc.WithLogger(logger.With(slog.String("component", "rpc"))),
		rpc.WithFaucetAmount(faucet),
		rpc.WithFaucetLimit(middleware.RateLimit{
			RequestsPerMinute: cfg.Faucet.RequestsPerMinute,
			Burst:             cfg.Faucet.Burst,
		}),
		rpc.WithCORS(middleware.CORSConfig{
			AllowedOrigins:   cfg.CORS.AllowedOrigins,
			AllowedHeaders:   cfg.CORS.AllowedHeaders,
			AllowCredentials: cfg.CORS.AllowCredentials,
		}),
		rpc.WithRegistry(registry),
		rpc.WithRPCMetrics(metrics.RPC),
	)
	logger.Info("rollup mock configured",
		slog.String("policy", string(processor.Policy())),
		slog.Int("tokens", len(tokens)),
		slog.String("rollup_contract", cfg.Chain.RollupContract))
	return server.Handler()
}

// serve runs the HTTP server until ctx is cancelled, then drains it.
func serve(ctx context.Context, listener net.Listener, handler http.Handler, logger *slog.Logger) error {
	server := &http.Server{
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       60 * time.Second,
		ErrorLog:          slog.NewLogLogger(logger.Handler(), slog.LevelWarn),
	}

	group, ctx := errgroup.WithContext(ctx)
	group.Go(func() error {
		logger.Info("listening", slog.String("addr", listener.Addr().String()))
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	})
	group.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Warn("graceful shutdown failed", slog.Any("error", err))
			return server.Close()
		}
		logger.Info("server stopped")
		return nil
	})
	return group.Wait()
}

