package tx

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"rollupmock/chain"
	"rollupmock/core/ledger"
	"rollupmock/core/txid"
	"rollupmock/observability"
)

var (
	// ErrInsufficientBalance is returned by the strict policy when the sender's
	// tracked balance does not cover the transfer.
	ErrInsufficientBalance = errors.New("tx: insufficient tracked balance")
	// ErrChain marks failures of the external chain call behind a withdrawal.
	ErrChain = errors.New("tx: chain call failed")
)

// Policy selects how transfers from under-funded senders are handled.
type Policy string

const (
	// PolicyLenient leaves an untracked sender's balances untouched and lets a
	// tracked sender go negative. The nonce is consumed either way.
	PolicyLenient Policy = "lenient"
	// PolicyStrict rejects transfers the tracked balance cannot cover and
	// mutates nothing.
	PolicyStrict Policy = "strict"
)

// ParsePolicy maps a configuration string to a Policy. Empty means lenient.
func ParsePolicy(raw string) (Policy, error) {
	switch Policy(strings.ToLower(strings.TrimSpace(raw))) {
	case "", PolicyLenient:
		return PolicyLenient, nil
	case PolicyStrict:
		return PolicyStrict, nil
	default:
		return "", fmt.Errorf("tx: unknown transfer policy %q", raw)
	}
}

// Processor applies tx_submit requests to the ledger, delegating withdrawals
// to the chain.
type Processor struct {
	ledger       *ledger.Ledger
	withdrawer   chain.Withdrawer
	policy       Policy
	feeAlias     bool
	metrics      *observability.LedgerMetrics
	chainMetrics *observability.ChainMetrics
	logger       *slog.Logger
}

// ProcessorOption customises the processor instance.
type ProcessorOption func(*Processor)

// WithPolicy sets the transfer policy.
func WithPolicy(policy Policy) ProcessorOption {
	return func(p *Processor) { p.policy = policy }
}

// WithChangePubKeyFeeAlias toggles the legacy fee-quote field alias.
func WithChangePubKeyFeeAlias(enabled bool) ProcessorOption {
	return func(p *Processor) { p.feeAlias = enabled }
}

// WithMetrics overrides the default ledger metrics registry.
func WithMetrics(m *observability.LedgerMetrics) ProcessorOption {
	return func(p *Processor) { p.metrics = m }
}

// WithChainMetrics overrides the default chain metrics registry.
func WithChainMetrics(m *observability.ChainMetrics) ProcessorOption {
	return func(p *Processor) { p.chainMetrics = m }
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) ProcessorOption {
	return func(p *Processor) { p.logger = logger }
}

// NewProcessor constructs a processor over the ledger and withdrawal backend.
func NewProcessor(l *ledger.Ledger, withdrawer chain.Withdrawer, opts ...ProcessorOption) *Processor {
	proc := &Processor{
		ledger:       l,
		withdrawer:   withdrawer,
		policy:       PolicyLenient,
		feeAlias:     true,
		metrics:      observability.Ledger(),
		chainMetrics: observability.Chain(),
	}
	for _, opt := range opts {
		opt(proc)
	}
	if proc.logger == nil {
		proc.logger = slog.Default()
	}
	if proc.policy == "" {
		proc.policy = PolicyLenient
	}
	return proc
}

// Policy reports the active transfer policy.
func (p *Processor) Policy() Policy { return p.policy }

// Submit applies the request and returns its identifier. Ledger mutations of
// a single request are applied atomically.
func (p *Processor) Submit(ctx context.Context, req Request) (string, error) {
	if p.ledger == nil {
		return "", fmt.Errorf("tx: ledger not configured")
	}
	var (
		id   string
		err  error
		kind = "unknown"
	)
	switch r := req.(type) {
	case Withdraw:
		kind = string(r.Kind())
		id, err = p.withdraw(ctx, r)
	case Transfer:
		kind = string(r.Kind())
		id, err = p.transfer(r)
	case ChangePubKey:
		kind = string(r.Kind())
		id, err = p.changePubKey(r)
	default:
		err = fmt.Errorf("%w: %T", ErrUnsupportedType, req)
	}
	p.metrics.RecordSubmission(kind, err)
	p.publishSize()
	if err != nil {
		p.logger.Warn("tx_submit rejected", slog.String("type", kind), slog.Any("error", err))
		return "", err
	}
	p.logger.Info("tx_submit applied", slog.String("type", kind), slog.String("id", id))
	return id, nil
}

// Credit adds amount to the address's tracked balance, simulating a deposit,
// and returns the new tracked balance.
func (p *Processor) Credit(address string, amount *big.Int) (*big.Int, error) {
	if err := checkAddress("address", address); err != nil {
		return nil, err
	}
	if amount == nil || amount.Sign() <= 0 {
		return nil, fmt.Errorf("%w: credit amount must be positive", ErrInvalidRequest)
	}
	balance := p.ledger.Credit(address, amount)
	p.metrics.RecordCredit()
	p.publishSize()
	p.logger.Info("tracked balance credited",
		slog.String("address", address),
		slog.String("amount", amount.String()),
		slog.String("balance", balance.String()))
	return balance, nil
}

func (p *Processor) withdraw(ctx context.Context, w Withdraw) (string, error) {
	if err := w.Validate(); err != nil {
		return "", err
	}
	if p.withdrawer == nil {
		return "", fmt.Errorf("%w: no withdrawal backend", ErrChain)
	}
	start := time.Now()
	hash, err := p.withdrawer.Withdraw(ctx, w.Amount.Big(), common.HexToAddress(w.To))
	p.chainMetrics.Observe("withdraw", err, time.Since(start))
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrChain, err)
	}
	return txid.FromHash(hash), nil
}

func (p *Processor) transfer(t Transfer) (string, error) {
	if err := t.Validate(); err != nil {
		return "", err
	}
	id, err := txid.Derive(t.From, uint64(t.Nonce))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	amount := t.Amount.Big()
	err = p.ledger.Apply(func(b *ledger.Batch) error {
		balance, tracked := b.TrackedBalance(t.From)
		if p.policy == PolicyStrict && (!tracked || balance.Cmp(amount) < 0) {
			have := "0"
			if tracked {
				have = balance.String()
			}
			return fmt.Errorf("%w: %s holds %s, transfer needs %s", ErrInsufficientBalance, t.From, have, amount)
		}
		if tracked {
			b.Debit(t.From, amount)
			b.Credit(t.To, amount)
		}
		b.IncrementNonce(t.From)
		b.PutRecord(id, ledger.Record{
			ID:     id,
			From:   t.From,
			To:     t.To,
			Token:  t.Token,
			Amount: amount,
			Nonce:  uint64(t.Nonce),
		})
		return nil
	})
	if err != nil {
		return "", err
	}
	return id, nil
}

func (p *Processor) changePubKey(c ChangePubKey) (string, error) {
	if err := c.Validate(); err != nil {
		return "", err
	}
	id, err := txid.Derive(c.Account, uint64(c.Nonce))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	_ = p.ledger.Apply(func(b *ledger.Batch) error {
		b.IncrementNonce(c.Account)
		return nil
	})
	return id, nil
}

func (p *Processor) publishSize() {
	stats := p.ledger.Stats()
	p.metrics.SetSize(stats.Accounts, stats.Records)
}
