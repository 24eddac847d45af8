package rpc

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/big"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"rollupmock/core/query"
	"rollupmock/core/tx"
	"rollupmock/observability"
	"rollupmock/rpc/middleware"
)

const (
	jsonRPCVersion  = "2.0"
	maxRequestBytes = 1 << 20 // 1 MiB
	maxBatchSize    = 100
	donateRoute     = "donate"
)

const (
	codeParseError     = -32700
	codeInvalidRequest = -32600
	codeMethodNotFound = -32601
	codeInvalidParams  = -32602
	codeServerError    = -32000
)

// DonateReceipt is the fixed body returned by the credit route.
const DonateReceipt = `"0x00000000000000000000000000000000000000000000000000000000deadbeef"`

// DefaultFaucetAmount is 1000 tokens with 18 decimals.
var DefaultFaucetAmount = new(big.Int).Mul(big.NewInt(1000), new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil))

// Server exposes the processor and query service over JSON-RPC and the
// out-of-band test routes.
type Server struct {
	processor  *tx.Processor
	query      *query.Service
	faucet     *big.Int
	faucetRate middleware.RateLimit
	cors       middleware.CORSConfig
	registerer prometheus.Registerer
	gatherer   prometheus.Gatherer
	metrics    *observability.RPCMetrics
	tracer     trace.Tracer
	logger     *slog.Logger
}

// ServerOption customises the server.
type ServerOption func(*Server)

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) ServerOption {
	return func(s *Server) { s.logger = logger }
}

// WithFaucetAmount overrides the amount credited by /donate.
func WithFaucetAmount(amount *big.Int) ServerOption {
	return func(s *Server) {
		if amount != nil {
			s.faucet = new(big.Int).Set(amount)
		}
	}
}

// WithFaucetLimit throttles /donate per client. A zero rate disables it.
func WithFaucetLimit(limit middleware.RateLimit) ServerOption {
	return func(s *Server) { s.faucetRate = limit }
}

// WithCORS overrides the CORS policy.
func WithCORS(cfg middleware.CORSConfig) ServerOption {
	return func(s *Server) { s.cors = cfg }
}

// WithRegistry registers the HTTP collectors on registry and serves /metrics
// from it instead of the process default. Pair it with WithRPCMetrics and the
// processor and query metric options built by observability.NewMetrics on the
// same registry so /metrics carries every family.
func WithRegistry(registry *prometheus.Registry) ServerOption {
	return func(s *Server) {
		if registry != nil {
			s.registerer = registry
			s.gatherer = registry
		}
	}
}

// WithRPCMetrics overrides the JSON-RPC metric families.
func WithRPCMetrics(m *observability.RPCMetrics) ServerOption {
	return func(s *Server) { s.metrics = m }
}

// NewServer wires the processor and query service.
func NewServer(processor *tx.Processor, q *query.Service, opts ...ServerOption) *Server {
	s := &Server{
		processor:  processor,
		query:      q,
		faucet:     new(big.Int).Set(DefaultFaucetAmount),
		registerer: prometheus.DefaultRegisterer,
		gatherer:   prometheus.DefaultGatherer,
		metrics:    observability.RPC(),
		tracer:     otel.Tracer("rollupmock/rpc"),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	return s
}

// Handler builds the HTTP handler tree.
func (s *Server) Handler() (http.Handler, error) {
	obs, err := middleware.NewObservability(middleware.ObservabilityConfig{
		ServiceName: "rollupmock",
		LogRequests: true,
		Registerer:  s.registerer,
	}, s.logger)
	if err != nil {
		return nil, fmt.Errorf("rpc: register http metrics: %w", err)
	}
	limiter := middleware.NewRateLimiter(map[string]middleware.RateLimit{
		donateRoute: s.faucetRate,
	}, s.logger, s.metrics.RecordThrottle)

	r := chi.NewRouter()
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.CORS(s.cors))

	r.With(obs.Middleware("jsonrpc")).Post("/", s.handle)
	r.With(obs.Middleware(donateRoute), limiter.Middleware(donateRoute)).Get("/donate/{address}", s.handleDonate)
	r.With(obs.Middleware("transfers")).Get("/transfers/{id}", s.handleTransfer)
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))

	return otelhttp.NewHandler(r, "rollupmock"), nil
}

// RPCRequest is one JSON-RPC 2.0 call. Params may be positional or named.
type RPCRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params"`
	ID      json.RawMessage `json:"id"`
}

// RPCResponse is one JSON-RPC 2.0 reply.
type RPCResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  interface{}     `json:"result,omitempty"`
	Error   *RPCError       `json:"error,omitempty"`
}

// RPCError is the JSON-RPC error object.
type RPCError struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

func writeError(w http.ResponseWriter, status int, id json.RawMessage, code int, message string, data interface{}) {
	if status <= 0 {
		status = http.StatusBadRequest
	}
	errObj := &RPCError{Code: code, Message: message}
	if data != nil {
		errObj.Data = data
	}
	writeJSON(w, status, RPCResponse{JSONRPC: jsonRPCVersion, ID: id, Error: errObj})
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if status != http.StatusOK {
		w.WriteHeader(status)
	}
	_ = json.NewEncoder(w).Encode(body)
}

func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	reader := http.MaxBytesReader(w, r.Body, maxRequestBytes)
	defer func() {
		_ = reader.Close()
	}()

	body, err := io.ReadAll(reader)
	if err != nil {
		status := http.StatusBadRequest
		message := "failed to read request body"
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			status = http.StatusRequestEntityTooLarge
			message = fmt.Sprintf("request body exceeds %d bytes", maxRequestBytes)
		}
		writeError(w, status, nil, codeInvalidRequest, message, err.Error())
		return
	}
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		writeError(w, http.StatusBadRequest, nil, codeInvalidRequest, "request body required", nil)
		return
	}

	if trimmed[0] == '[' {
		var batch []json.RawMessage
		if err := json.Unmarshal(trimmed, &batch); err != nil {
			writeError(w, http.StatusBadRequest, nil, codeParseError, "invalid JSON payload", err.Error())
			return
		}
		if len(batch) == 0 {
			writeError(w, http.StatusBadRequest, nil, codeInvalidRequest, "empty batch", nil)
			return
		}
		if len(batch) > maxBatchSize {
			writeError(w, http.StatusBadRequest, nil, codeInvalidRequest, fmt.Sprintf("batch exceeds %d calls", maxBatchSize), nil)
			return
		}
		responses := make([]RPCResponse, 0, len(batch))
		for _, raw := range batch {
			responses = append(responses, s.call(r.Context(), raw))
		}
		writeJSON(w, http.StatusOK, responses)
		return
	}

	req := &RPCRequest{}
	if err := json.Unmarshal(trimmed, req); err != nil {
		writeError(w, http.StatusBadRequest, nil, codeParseError, "invalid JSON payload", err.Error())
		return
	}
	resp := s.dispatch(r.Context(), req)
	status := http.StatusOK
	if resp.Error != nil && resp.Error.Code == codeInvalidRequest {
		status = http.StatusBadRequest
	}
	writeJSON(w, status, resp)
}

func (s *Server) call(ctx context.Context, raw json.RawMessage) RPCResponse {
	req := &RPCRequest{}
	if err := json.Unmarshal(raw, req); err != nil {
		return RPCResponse{
			JSONRPC: jsonRPCVersion,
			Error:   &RPCError{Code: codeInvalidRequest, Message: "invalid request object", Data: err.Error()},
		}
	}
	return s.dispatch(ctx, req)
}

func (s *Server) dispatch(ctx context.Context, req *RPCRequest) RPCResponse {
	resp := RPCResponse{JSONRPC: jsonRPCVersion, ID: req.ID}
	if req.JSONRPC != "" && req.JSONRPC != jsonRPCVersion {
		resp.Error = &RPCError{Code: codeInvalidRequest, Message: "unsupported jsonrpc version", Data: req.JSONRPC}
		return resp
	}
	if req.Method == "" {
		resp.Error = &RPCError{Code: codeInvalidRequest, Message: "method required"}
		return resp
	}

	ctx, span := s.tracer.Start(ctx, "rpc."+req.Method)
	defer span.End()
	start := time.Now()
	result, err := s.invoke(ctx, req.Method, req.Params)
	s.metrics.Observe(req.Method, err, time.Since(start))
	if err != nil {
		span.RecordError(err)
		resp.Error = toRPCError(err)
		s.logger.Warn("rpc call failed",
			slog.String("request_id", middleware.RequestIDFrom(ctx)),
			slog.String("method", req.Method),
			slog.Int("code", resp.Error.Code),
			slog.Any("error", err))
		return resp
	}
	resp.Result = result
	return resp
}

// toRPCError maps domain failures onto JSON-RPC codes.
func toRPCError(err error) *RPCError {
	var rpcErr *RPCError
	if errors.As(err, &rpcErr) {
		return rpcErr
	}
	switch {
	case errors.Is(err, tx.ErrUnsupportedType),
		errors.Is(err, tx.ErrInvalidRequest),
		errors.Is(err, tx.ErrInsufficientBalance):
		return &RPCError{Code: codeInvalidParams, Message: err.Error()}
	case errors.Is(err, tx.ErrChain), errors.Is(err, query.ErrChain):
		return &RPCError{Code: codeServerError, Message: "upstream chain failure", Data: err.Error()}
	default:
		return &RPCError{Code: codeServerError, Message: err.Error()}
	}
}
