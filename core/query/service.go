package query

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"time"

	"rollupmock/chain"
	"rollupmock/core/ledger"
	"rollupmock/observability"
)

// ZeroPubKeyHash is reported for every account; the mock never registers keys.
const ZeroPubKeyHash = "sync:0000000000000000000000000000000000000000"

// DefaultAccountID is the constant account id echoed by account_info.
const DefaultAccountID = 1

var (
	// ErrNoTokens is returned when the service is built without any token alias.
	ErrNoTokens = errors.New("query: token registry empty")
	// ErrChain marks a failed custody balance read.
	ErrChain = errors.New("query: chain read failed")
)

// Contracts names the rollup and governance contracts reported to clients.
type Contracts struct {
	Main string `json:"mainContract"`
	Gov  string `json:"govContract"`
}

// Token is one alias of the single tracked token.
type Token struct {
	Address  string `json:"address"`
	ID       uint32 `json:"id"`
	Symbol   string `json:"symbol"`
	Decimals uint8  `json:"decimals"`
}

// Balances maps token symbols to decimal amounts.
type Balances map[string]string

// AccountState is the committed or verified section of account_info.
type AccountState struct {
	Balances   Balances `json:"balances"`
	Nonce      uint64   `json:"nonce"`
	PubKeyHash string   `json:"pubKeyHash"`
}

// DepositingState is always empty in the mock.
type DepositingState struct {
	Balances Balances `json:"balances"`
}

// AccountInfo is the account_info response.
type AccountInfo struct {
	Address    string          `json:"address"`
	ID         uint64          `json:"id"`
	Committed  AccountState    `json:"committed"`
	Depositing DepositingState `json:"depositing"`
	Verified   AccountState    `json:"verified"`
}

// Block describes the block a transaction or priority operation landed in.
type Block struct {
	BlockNumber uint64 `json:"blockNumber"`
	Committed   bool   `json:"committed"`
	Verified    bool   `json:"verified"`
}

// TxStatus is the tx_info response.
type TxStatus struct {
	Executed bool  `json:"executed"`
	Success  bool  `json:"success"`
	Block    Block `json:"block"`
}

// EthOpStatus is the ethop_info response.
type EthOpStatus struct {
	Executed   bool   `json:"executed"`
	Success    bool   `json:"success"`
	FailReason string `json:"failReason"`
	Block      Block  `json:"block"`
}

// Service answers the read-only RPC calls from the ledger and one custody
// balance read.
type Service struct {
	ledger    *ledger.Ledger
	custody   chain.BalanceReader
	contracts Contracts
	tokens    []Token
	accountID uint64
	metrics   *observability.ChainMetrics
	logger    *slog.Logger
}

// Option customises the service.
type Option func(*Service)

// WithAccountID overrides the account id echoed by account_info.
func WithAccountID(id uint64) Option {
	return func(s *Service) { s.accountID = id }
}

// WithChainMetrics overrides the default chain metrics registry.
func WithChainMetrics(m *observability.ChainMetrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

// NewService builds the query service. Token aliases keep their configured
// order and must have unique symbols.
func NewService(l *ledger.Ledger, custody chain.BalanceReader, contracts Contracts, tokens []Token, opts ...Option) (*Service, error) {
	if l == nil {
		return nil, fmt.Errorf("query: ledger required")
	}
	if len(tokens) == 0 {
		return nil, ErrNoTokens
	}
	seen := make(map[string]struct{}, len(tokens))
	for _, token := range tokens {
		symbol := strings.TrimSpace(token.Symbol)
		if symbol == "" {
			return nil, fmt.Errorf("query: token symbol required")
		}
		if _, dup := seen[symbol]; dup {
			return nil, fmt.Errorf("query: duplicate token symbol %q", symbol)
		}
		seen[symbol] = struct{}{}
	}
	s := &Service{
		ledger:    l,
		custody:   custody,
		contracts: contracts,
		tokens:    append([]Token(nil), tokens...),
		accountID: DefaultAccountID,
		metrics:   observability.Chain(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	return s, nil
}

// ContractAddresses returns the configured contract identifiers.
func (s *Service) ContractAddresses() Contracts {
	return s.contracts
}

// Tokens returns the alias registry keyed by symbol.
func (s *Service) Tokens() map[string]Token {
	out := make(map[string]Token, len(s.tokens))
	for _, token := range s.tokens {
		out[token.Symbol] = token
	}
	return out
}

// AccountInfo blends the custody balance with the address's tracked balance.
// Committed and verified sections are always identical.
func (s *Service) AccountInfo(ctx context.Context, address string) (AccountInfo, error) {
	custody, err := s.custodyBalance(ctx)
	if err != nil {
		return AccountInfo{}, err
	}
	tracked, nonce := s.ledger.Snapshot(address)
	total := new(big.Int).Add(custody, tracked)

	state := func() AccountState {
		return AccountState{Balances: s.balances(total), Nonce: nonce, PubKeyHash: ZeroPubKeyHash}
	}
	return AccountInfo{
		Address:    address,
		ID:         s.accountID,
		Committed:  state(),
		Depositing: DepositingState{Balances: Balances{}},
		Verified:   state(),
	}, nil
}

// TxInfo reports every transaction as executed and final.
func (s *Service) TxInfo(string) TxStatus {
	return TxStatus{
		Executed: true,
		Success:  true,
		Block:    Block{BlockNumber: 1, Committed: true, Verified: true},
	}
}

// EthOpInfo reports every priority operation as executed and final.
func (s *Service) EthOpInfo() EthOpStatus {
	return EthOpStatus{
		Executed: true,
		Success:  true,
		Block:    Block{BlockNumber: 0, Committed: true, Verified: true},
	}
}

// TransferRecord returns the stored transfer or nil on a miss.
func (s *Service) TransferRecord(id string) *ledger.Record {
	record, ok := s.ledger.Record(id)
	if !ok {
		return nil
	}
	return &record
}

func (s *Service) custodyBalance(ctx context.Context) (*big.Int, error) {
	if s.custody == nil {
		return nil, fmt.Errorf("%w: %w", ErrChain, chain.ErrNotConfigured)
	}
	start := time.Now()
	balance, err := s.custody.CustodyBalance(ctx)
	s.metrics.Observe("custody_balance", err, time.Since(start))
	if err != nil {
		s.logger.Warn("custody balance read failed", slog.Any("error", err))
		return nil, fmt.Errorf("%w: %w", ErrChain, err)
	}
	if balance == nil {
		return new(big.Int), nil
	}
	return balance, nil
}

func (s *Service) balances(total *big.Int) Balances {
	out := make(Balances, len(s.tokens))
	for _, token := range s.tokens {
		out[token.Symbol] = total.String()
	}
	return out
}
