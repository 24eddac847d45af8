package observability

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	rpcMetricsOnce sync.Once
	rpcRegistry    *RPCMetrics

	ledgerMetricsOnce sync.Once
	ledgerRegistry    *LedgerMetrics

	chainMetricsOnce sync.Once
	chainRegistry    *ChainMetrics
)

// RPCMetrics tracks JSON-RPC and out-of-band route activity.
type RPCMetrics struct {
	requests *prometheus.CounterVec
	latency  *prometheus.HistogramVec
	throttle *prometheus.CounterVec
}

// RPC returns the lazily-initialised RPC metrics registered on the default
// registerer.
func RPC() *RPCMetrics {
	rpcMetricsOnce.Do(func() {
		rpcRegistry = mustRegister(NewRPCMetrics(prometheus.DefaultRegisterer))
	})
	return rpcRegistry
}

// NewRPCMetrics builds the RPC metric families and registers them on reg.
func NewRPCMetrics(reg prometheus.Registerer) (*RPCMetrics, error) {
	m := &RPCMetrics{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "rollupmock",
			Subsystem: "rpc",
			Name:      "requests_total",
			Help:      "Total JSON-RPC requests segmented by method and outcome.",
		}, []string{"method", "outcome"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "rollupmock",
			Subsystem: "rpc",
			Name:      "request_duration_seconds",
			Help:      "Latency distribution for JSON-RPC handlers.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method"}),
		throttle: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "rollupmock",
			Subsystem: "rpc",
			Name:      "throttles_total",
			Help:      "Count of requests rejected by the rate limiter.",
		}, []string{"route"}),
	}
	if err := register(reg, m.requests, m.latency, m.throttle); err != nil {
		return nil, err
	}
	return m, nil
}

// Observe records the outcome of a JSON-RPC call.
func (m *RPCMetrics) Observe(method string, err error, duration time.Duration) {
	if m == nil {
		return
	}
	label := labelMethod(method)
	m.requests.WithLabelValues(label, outcome(err)).Inc()
	m.latency.WithLabelValues(label).Observe(duration.Seconds())
}

// RecordThrottle counts a rate-limited request.
func (m *RPCMetrics) RecordThrottle(route string) {
	if m == nil {
		return
	}
	m.throttle.WithLabelValues(route).Inc()
}

// LedgerMetrics tracks state transitions applied to the in-memory ledger.
type LedgerMetrics struct {
	submissions *prometheus.CounterVec
	credits     prometheus.Counter
	accounts    prometheus.Gauge
	records     prometheus.Gauge
}

// Ledger returns the lazily-initialised ledger metrics registered on the
// default registerer.
func Ledger() *LedgerMetrics {
	ledgerMetricsOnce.Do(func() {
		ledgerRegistry = mustRegister(NewLedgerMetrics(prometheus.DefaultRegisterer))
	})
	return ledgerRegistry
}

// NewLedgerMetrics builds the ledger metric families and registers them on reg.
func NewLedgerMetrics(reg prometheus.Registerer) (*LedgerMetrics, error) {
	m := &LedgerMetrics{
		submissions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "rollupmock",
			Subsystem: "ledger",
			Name:      "submissions_total",
			Help:      "Count of tx_submit calls segmented by transaction type and outcome.",
		}, []string{"type", "outcome"}),
		credits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "rollupmock",
			Subsystem: "ledger",
			Name:      "credits_total",
			Help:      "Count of out-of-band credits applied to tracked balances.",
		}),
		accounts: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "rollupmock",
			Subsystem: "ledger",
			Name:      "accounts",
			Help:      "Number of addresses with a tracked balance or nonce.",
		}),
		records: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "rollupmock",
			Subsystem: "ledger",
			Name:      "transfer_records",
			Help:      "Number of stored transfer records.",
		}),
	}
	if err := register(reg, m.submissions, m.credits, m.accounts, m.records); err != nil {
		return nil, err
	}
	return m, nil
}

// RecordSubmission counts a processed submission.
func (m *LedgerMetrics) RecordSubmission(kind string, err error) {
	if m == nil {
		return
	}
	m.submissions.WithLabelValues(kind, outcome(err)).Inc()
}

// RecordCredit counts an out-of-band credit.
func (m *LedgerMetrics) RecordCredit() {
	if m == nil {
		return
	}
	m.credits.Inc()
}

// SetSize publishes the current ledger size.
func (m *LedgerMetrics) SetSize(accounts, records int) {
	if m == nil {
		return
	}
	m.accounts.Set(float64(accounts))
	m.records.Set(float64(records))
}

// ChainMetrics tracks calls made to the external chain.
type ChainMetrics struct {
	calls   *prometheus.CounterVec
	latency *prometheus.HistogramVec
}

// Chain returns the lazily-initialised chain metrics registered on the
// default registerer.
func Chain() *ChainMetrics {
	chainMetricsOnce.Do(func() {
		chainRegistry = mustRegister(NewChainMetrics(prometheus.DefaultRegisterer))
	})
	return chainRegistry
}

// NewChainMetrics builds the chain metric families and registers them on reg.
func NewChainMetrics(reg prometheus.Registerer) (*ChainMetrics, error) {
	m := &ChainMetrics{
		calls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "rollupmock",
			Subsystem: "chain",
			Name:      "calls_total",
			Help:      "Calls to the external chain segmented by operation and outcome.",
		}, []string{"operation", "outcome"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "rollupmock",
			Subsystem: "chain",
			Name:      "call_duration_seconds",
			Help:      "Latency distribution for external chain calls.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),
	}
	if err := register(reg, m.calls, m.latency); err != nil {
		return nil, err
	}
	return m, nil
}

// Observe records one chain call.
func (m *ChainMetrics) Observe(operation string, err error, duration time.Duration) {
	if m == nil {
		return
	}
	m.calls.WithLabelValues(operation, outcome(err)).Inc()
	m.latency.WithLabelValues(operation).Observe(duration.Seconds())
}

func register(reg prometheus.Registerer, collectors ...prometheus.Collector) error {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			return fmt.Errorf("observability: register collector: %w", err)
		}
	}
	return nil
}

func mustRegister[T any](m *T, err error) *T {
	if err != nil {
		panic(err)
	}
	return m
}

func outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

func labelMethod(method string) string {
	normalized := strings.TrimSpace(method)
	if normalized == "" {
		return "unknown"
	}
	return normalized
}

// Metrics groups every family the mock exports so one registry can serve them.
type Metrics struct {
	RPC    *RPCMetrics
	Ledger *LedgerMetrics
	Chain  *ChainMetrics
}

// NewMetrics registers the RPC, ledger and chain families on reg.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	rpc, err := NewRPCMetrics(reg)
	if err != nil {
		return nil, err
	}
	ledger, err := NewLedgerMetrics(reg)
	if err != nil {
		return nil, err
	}
	chain, err := NewChainMetrics(reg)
	if err != nil {
		return nil, err
	}
	return &Metrics{RPC: rpc, Ledger: ledger, Chain: chain}, nil
}
