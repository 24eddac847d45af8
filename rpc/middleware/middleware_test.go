package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestRateLimiterBlocksAfterBurst(t *testing.T) {
	var throttled []string
	limiter := NewRateLimiter(map[string]RateLimit{
		"donate": {RequestsPerMinute: 1, Burst: 1},
	}, nil, func(key string) { throttled = append(throttled, key) })
	handler := limiter.Middleware("donate")(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/donate/0xabc", nil)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	require.Equal(t, http.StatusOK, res.Code)

	res = httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	require.Equal(t, http.StatusTooManyRequests, res.Code)
	require.Equal(t, []string{"donate"}, throttled)
}

func TestRateLimiterSeparatesClients(t *testing.T) {
	limiter := NewRateLimiter(map[string]RateLimit{
		"donate": {RequestsPerMinute: 1, Burst: 1},
	}, nil, nil)
	handler := limiter.Middleware("donate")(okHandler())

	reqA := httptest.NewRequest(http.MethodGet, "/donate/0xabc", nil)
	reqA.Header.Set("X-Forwarded-For", "10.0.0.1, 10.0.0.9")
	resA := httptest.NewRecorder()
	handler.ServeHTTP(resA, reqA)
	require.Equal(t, http.StatusOK, resA.Code)

	reqB := httptest.NewRequest(http.MethodGet, "/donate/0xabc", nil)
	reqB.Header.Set("X-Real-IP", "10.0.0.2")
	resB := httptest.NewRecorder()
	handler.ServeHTTP(resB, reqB)
	require.Equal(t, http.StatusOK, resB.Code)
}

func TestRateLimiterUnknownOrDisabledKeyPasses(t *testing.T) {
	limiter := NewRateLimiter(map[string]RateLimit{"donate": {}}, nil, nil)
	for _, key := range []string{"donate", "transfers"} {
		handler := limiter.Middleware(key)(okHandler())
		for i := 0; i < 3; i++ {
			res := httptest.NewRecorder()
			handler.ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/", nil))
			require.Equal(t, http.StatusOK, res.Code)
		}
	}
}

func TestRequestIDAssignsAndEchoes(t *testing.T) {
	var seen string
	handler := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = RequestIDFrom(r.Context())
	}))

	res := httptest.NewRecorder()
	handler.ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Len(t, seen, 36)
	require.Equal(t, seen, res.Header().Get(RequestIDHeader))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(RequestIDHeader, "client-42")
	res = httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	require.Equal(t, "client-42", seen)
	require.Equal(t, "client-42", res.Header().Get(RequestIDHeader))
}

func TestCORSPreflight(t *testing.T) {
	handler := CORS(CORSConfig{})(okHandler())
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, httptest.NewRequest(http.MethodOptions, "/", nil))
	require.Equal(t, http.StatusNoContent, res.Code)
	require.Equal(t, "*", res.Header().Get("Access-Control-Allow-Origin"))
	require.Contains(t, res.Header().Get("Access-Control-Allow-Headers"), RequestIDHeader)
}

func TestCORSAllowedOrigins(t *testing.T) {
	handler := CORS(CORSConfig{AllowedOrigins: []string{"http://localhost:5173/", "https://wallet.test"}})(okHandler())

	req := httptest.NewRequest(http.MethodOptions, "/", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	require.Equal(t, http.StatusNoContent, res.Code)
	require.Equal(t, "http://localhost:5173", res.Header().Get("Access-Control-Allow-Origin"))
	require.Equal(t, "Origin", res.Header().Get("Vary"))

	req = httptest.NewRequest(http.MethodPost, "/", nil)
	req.Header.Set("Origin", "https://evil.test")
	res = httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	require.Equal(t, http.StatusOK, res.Code)
	require.Empty(t, res.Header().Get("Access-Control-Allow-Origin"))
}

func TestObservabilityCountsRequests(t *testing.T) {
	registry := prometheus.NewRegistry()
	obs, err := NewObservability(ObservabilityConfig{Registerer: registry, LogRequests: true}, nil)
	require.NoError(t, err)
	handler := obs.Middleware("jsonrpc")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/", nil))
	require.Equal(t, 1.0, testutil.ToFloat64(obs.requests.WithLabelValues("jsonrpc", http.MethodPost, "418")))

	_, err = NewObservability(ObservabilityConfig{Registerer: registry}, nil)
	require.Error(t, err)
}
