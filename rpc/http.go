package rpc

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/time/rate"

	"bookingledger/core"
	"bookingledger/observability"
)

const (
	jsonRPCVersion  = "2.0"
	maxRequestBytes = 1 << 20 // 1 MiB

	authTokenEnv = "BOOKINGLEDGER_RPC_TOKEN"
)

const (
	codeParseError     = -32700
	codeInvalidRequest = -32600
	codeMethodNotFound = -32601
	codeInvalidParams  = -32602
	codeServerError    = -32000
	codeUnauthorized   = -32001
	codeRateLimited    = -32020

	codeBookingNotFound  = -32021
	codeBookingForbidden = -32022
	codeBookingConflict  = -32023
	codeBookingRejected  = -32024
)

type RPCRequest struct {
	JSONRPC string            `json:"jsonrpc"`
	Method  string            `json:"method"`
	Params  []json.RawMessage `json:"params"`
	ID      interface{}       `json:"id"`
}

type RPCResponse struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      interface{} `json:"id"`
	Result  interface{} `json:"result,omitempty"`
	Error   *RPCError   `json:"error,omitempty"`
}

type RPCError struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// Server exposes the booking ledger over JSON-RPC 2.0.
type Server struct {
	node      *core.Node
	logger    *slog.Logger
	authToken string
	limiter   *clientLimiter
	metrics   *observability.RPCMetrics
}

// NewServer builds an RPC server for the node. The bearer token protecting
// mutating methods is read from BOOKINGLEDGER_RPC_TOKEN; when unset, mutating
// methods stay open (local development mode).
func NewServer(node *core.Node, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		node:      node,
		logger:    logger,
		authToken: strings.TrimSpace(os.Getenv(authTokenEnv)),
		limiter:   newClientLimiter(rate.Limit(50), 100),
		metrics:   observability.Metrics(),
	}
}

// Router assembles the HTTP surface: the JSON-RPC endpoint, a liveness probe
// and the Prometheus scrape endpoint.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.Handler())
	r.Post("/", s.handle)
	return otelhttp.NewHandler(r, "bookingledger.rpc")
}

// Start serves the router until the context is cancelled.
func (s *Server) Start(ctx context.Context, addr string) error {
	server := &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe()
	}()
	s.logger.Info("JSON-RPC server listening", slog.String("addr", addr))
	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

type requestIDKey struct{}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSpace(r.Header.Get("X-Request-ID"))
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", id)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), requestIDKey{}, id)))
	})
}

func requestID(r *http.Request) string {
	if id, ok := r.Context().Value(requestIDKey{}).(string); ok {
		return id
	}
	return ""
}

// clientLimiter keeps one token bucket per client address.
type clientLimiter struct {
	mu       sync.Mutex
	visitors map[string]*rate.Limiter
	limit    rate.Limit
	burst    int
}

func newClientLimiter(limit rate.Limit, burst int) *clientLimiter {
	return &clientLimiter{
		visitors: make(map[string]*rate.Limiter),
		limit:    limit,
		burst:    burst,
	}
}

func (l *clientLimiter) allow(client string) bool {
	l.mu.Lock()
	limiter, ok := l.visitors[client]
	if !ok {
		limiter = rate.NewLimiter(l.limit, l.burst)
		l.visitors[client] = limiter
	}
	l.mu.Unlock()
	return limiter.Allow()
}

func clientAddr(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

type rpcHandler struct {
	fn       func(w http.ResponseWriter, r *http.Request, req *RPCRequest)
	mutating bool
}

func (s *Server) methods() map[string]rpcHandler {
	return map[string]rpcHandler{
		"booking_create":      {fn: s.handleBookingCreate, mutating: true},
		"booking_pay":         {fn: s.handleBookingPay, mutating: true},
		"booking_drawDown":    {fn: s.handleBookingDrawDown, mutating: true},
		"booking_balanceOf":   {fn: s.handleBookingBalanceOf},
		"booking_get":         {fn: s.handleBookingGet},
		"ledger_getBalance":   {fn: s.handleLedgerGetBalance},
		"ledger_agentAddress": {fn: s.handleLedgerAgentAddress},
		"ledger_events":       {fn: s.handleLedgerEvents},
		"ledger_fund":         {fn: s.handleLedgerFund, mutating: true},
	}
}

func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if !s.limiter.allow(clientAddr(r)) {
		writeError(w, http.StatusTooManyRequests, nil, codeRateLimited, "rate_limited", nil)
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBytes)

	var req RPCRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, nil, codeParseError, "parse_error", err.Error())
		return
	}
	if req.JSONRPC != "" && req.JSONRPC != jsonRPCVersion {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidRequest, "invalid_request", "unsupported jsonrpc version")
		return
	}
	method := strings.TrimSpace(req.Method)
	handler, ok := s.methods()[method]
	if !ok {
		writeError(w, http.StatusNotFound, req.ID, codeMethodNotFound, "method_not_found", fmt.Sprintf("unknown method %q", method))
		return
	}
	if handler.mutating {
		if authErr := s.requireAuth(r); authErr != nil {
			s.observe(method, "unauthorized", authErr.Code, time.Now())
			writeError(w, http.StatusUnauthorized, req.ID, authErr.Code, authErr.Message, authErr.Data)
			return
		}
	}

	start := time.Now()
	recorder := &statusRecorder{inner: w}
	handler.fn(recorder, r, &req)

	outcome := "ok"
	if recorder.errCode != 0 {
		outcome = "error"
	}
	s.observe(method, outcome, recorder.errCode, start)
	s.logger.Debug("rpc call",
		slog.String("method", method),
		slog.String("outcome", outcome),
		slog.String("requestId", requestID(r)),
		slog.Duration("elapsed", time.Since(start)),
	)
}

func (s *Server) observe(method, outcome string, errCode int, start time.Time) {
	code := ""
	if errCode != 0 {
		code = fmt.Sprintf("%d", errCode)
	}
	s.metrics.ObserveRequest(method, outcome, code, time.Since(start))
}

// statusRecorder lets the dispatcher see which error code a handler reported.
type statusRecorder struct {
	inner   http.ResponseWriter
	errCode int
}

func (r *statusRecorder) Header() http.Header         { return r.inner.Header() }
func (r *statusRecorder) Write(b []byte) (int, error) { return r.inner.Write(b) }
func (r *statusRecorder) WriteHeader(status int)      { r.inner.WriteHeader(status) }

func (s *Server) requireAuth(r *http.Request) *RPCError {
	if s.authToken == "" {
		return nil
	}
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return &RPCError{Code: codeUnauthorized, Message: "unauthorized", Data: "missing bearer token"}
	}
	token := strings.TrimSpace(strings.TrimPrefix(header, prefix))
	if subtle.ConstantTimeCompare([]byte(token), []byte(s.authToken)) != 1 {
		return &RPCError{Code: codeUnauthorized, Message: "unauthorized", Data: "invalid token"}
	}
	return nil
}

func writeError(w http.ResponseWriter, status int, id interface{}, code int, message string, data interface{}) {
	if recorder, ok := w.(*statusRecorder); ok {
		recorder.errCode = code
	}
	if status <= 0 {
		status = http.StatusBadRequest
	}
	if status != http.StatusOK {
		w.WriteHeader(status)
	}
	errObj := &RPCError{Code: code, Message: message}
	if data != nil {
		errObj.Data = data
	}
	resp := RPCResponse{JSONRPC: jsonRPCVersion, ID: id, Error: errObj}
	_ = json.NewEncoder(w).Encode(resp)
}

func writeResult(w http.ResponseWriter, id interface{}, result interface{}) {
	resp := RPCResponse{JSONRPC: jsonRPCVersion, ID: id, Result: result}
	_ = json.NewEncoder(w).Encode(resp)
}
