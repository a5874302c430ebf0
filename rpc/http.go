package rpc

import (
	"bytes"
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/big"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"

	"findprotocol/native/fees"
	"findprotocol/native/launch"
	"findprotocol/native/mortgage"
	"findprotocol/native/position"
	"findprotocol/native/swaprouter"
	"findprotocol/native/token"
	"findprotocol/observability"
	"findprotocol/observability/logging"
)

const (
	jsonRPCVersion         = "2.0"
	defaultMaxRequestBytes = 1 << 20 // 1 MiB
)

const (
	codeParseError     = -32700
	codeInvalidRequest = -32600
	codeMethodNotFound = -32601
	codeInvalidParams  = -32602
	codeUnauthorized   = -32001
	codeServerError    = -32000
	codeRateLimited    = -32020
)

// Dependencies collects the collaborators the RPC server exposes.
type Dependencies struct {
	Engine    *mortgage.Engine
	Launcher  *launch.Engine
	Tokens    *token.Ledger
	Positions *position.Ledger
	Sink      *fees.Sink
	Pool      *swaprouter.PoolRouter
}

// Options tunes the transport-level behaviour of the server.
type Options struct {
	AuthToken       string
	RequestsPerMin  int
	Burst           int
	MaxRequestBytes int64
	Logger          *slog.Logger
}

type Server struct {
	deps    Dependencies
	logger  *slog.Logger
	metrics interface {
		Observe(method string, status int, duration time.Duration)
		RecordThrottle(reason string)
	}
	engineMetrics interface {
		RecordOperation(operation string, err error, fee *big.Int)
		SetOpenPositions(count int)
	}

	authToken       string
	maxRequestBytes int64
	perSecond       rate.Limit
	burst           int

	mu       sync.Mutex
	visitors map[string]*rate.Limiter

	httpServer *http.Server
}

// NewServer constructs the JSON-RPC server over the supplied collaborators.
func NewServer(deps Dependencies, opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	maxBytes := opts.MaxRequestBytes
	if maxBytes <= 0 {
		maxBytes = defaultMaxRequestBytes
	}
	perMin := opts.RequestsPerMin
	if perMin <= 0 {
		perMin = 50
	}
	burst := opts.Burst
	if burst <= 0 {
		burst = perMin
	}
	return &Server{
		deps:            deps,
		logger:          logger,
		metrics:         observability.RPCMetrics(),
		engineMetrics:   observability.EngineMetrics(),
		authToken:       strings.TrimSpace(opts.AuthToken),
		maxRequestBytes: maxBytes,
		perSecond:       rate.Limit(float64(perMin) / 60.0),
		burst:           burst,
		visitors:        make(map[string]*rate.Limiter),
	}
}

// Router assembles the HTTP routes: health, metrics and the JSON-RPC entry
// point.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
	})
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())
	r.Post("/", s.handle)
	r.Post("/rpc", s.handle)
	return r
}

// Start serves the router on addr until Shutdown is called.
func (s *Server) Start(addr string) error {
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.logger.Info("rpc server listening", "addr", addr)
	err := s.httpServer.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown drains in-flight requests and stops the listener.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

type RPCRequest struct {
	JSONRPC string            `json:"jsonrpc"`
	Method  string            `json:"method"`
	Params  []json.RawMessage `json:"params"`
	ID      int               `json:"id"`
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

func writeError(w http.ResponseWriter, status int, id interface{}, code int, message string, data interface{}) {
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

func (s *Server) requireAuth(r *http.Request) *RPCError {
	if s.authToken == "" {
		return &RPCError{Code: codeUnauthorized, Message: "RPC authentication token not configured"}
	}
	header := r.Header.Get("Authorization")
	if header == "" {
		return &RPCError{Code: codeUnauthorized, Message: "missing Authorization header"}
	}
	if !strings.HasPrefix(header, "Bearer ") {
		return &RPCError{Code: codeUnauthorized, Message: "Authorization header must use Bearer scheme"}
	}
	token := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	if token == "" {
		return &RPCError{Code: codeUnauthorized, Message: "missing bearer token"}
	}
	if subtle.ConstantTimeCompare([]byte(token), []byte(s.authToken)) != 1 {
		return &RPCError{Code: codeUnauthorized, Message: "invalid RPC credentials"}
	}
	return nil
}

func clientID(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return strings.TrimSpace(r.RemoteAddr)
	}
	return host
}

func (s *Server) allowSource(source string) bool {
	if source == "" {
		source = "unknown"
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	limiter, ok := s.visitors[source]
	if !ok {
		limiter = rate.NewLimiter(s.perSecond, s.burst)
		s.visitors[source] = limiter
	}
	return limiter.Allow()
}

// handle is the main request handler that routes to specific handlers.
func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	started := time.Now()
	reader := http.MaxBytesReader(w, r.Body, s.maxRequestBytes)
	defer func() {
		_ = reader.Close()
	}()

	w.Header().Set("Content-Type", "application/json")

	body, err := io.ReadAll(reader)
	if err != nil {
		status := http.StatusBadRequest
		message := "failed to read request body"
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			status = http.StatusRequestEntityTooLarge
			message = fmt.Sprintf("request body exceeds %d bytes", s.maxRequestBytes)
		}
		writeError(w, status, nil, codeInvalidRequest, message, err.Error())
		s.metrics.Observe("unknown", status, time.Since(started))
		return
	}
	if len(bytes.TrimSpace(body)) == 0 {
		writeError(w, http.StatusBadRequest, nil, codeInvalidRequest, "request body required", nil)
		s.metrics.Observe("unknown", http.StatusBadRequest, time.Since(started))
		return
	}

	req := &RPCRequest{}
	if err := json.Unmarshal(body, req); err != nil {
		writeError(w, http.StatusBadRequest, nil, codeParseError, "invalid JSON payload", err.Error())
		s.metrics.Observe("unknown", http.StatusBadRequest, time.Since(started))
		return
	}
	if req.JSONRPC != "" && req.JSONRPC != jsonRPCVersion {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidRequest, "unsupported jsonrpc version", req.JSONRPC)
		s.metrics.Observe(req.Method, http.StatusBadRequest, time.Since(started))
		return
	}
	if req.Method == "" {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidRequest, "method required", nil)
		s.metrics.Observe("unknown", http.StatusBadRequest, time.Since(started))
		return
	}

	if !s.allowSource(clientID(r)) {
		s.metrics.RecordThrottle("rate_limit")
		writeError(w, http.StatusTooManyRequests, req.ID, codeRateLimited, "rate limit exceeded", nil)
		s.metrics.Observe(req.Method, http.StatusTooManyRequests, time.Since(started))
		return
	}

	status := s.dispatch(w, r, req)
	s.metrics.Observe(req.Method, status, time.Since(started))
	s.logger.Info("rpc request",
		"method", req.Method,
		"status", status,
		logging.MaskField("source", clientID(r)),
	)
}

// observeEngine records the outcome of an engine operation and refreshes the
// open-position gauge after successful mutations.
func (s *Server) observeEngine(operation string, err error, fee *big.Int) {
	s.engineMetrics.RecordOperation(operation, err, fee)
	if err != nil || s.deps.Positions == nil {
		return
	}
	if count, countErr := s.deps.Positions.OpenCount(); countErr == nil {
		s.engineMetrics.SetOpenPositions(int(count))
	}
}

// dispatch routes a request to its handler and returns the HTTP status the
// handler reported for metrics purposes.
func (s *Server) dispatch(w http.ResponseWriter, r *http.Request, req *RPCRequest) int {
	mutating := map[string]func(http.ResponseWriter, *RPCRequest) int{
		"find_mortgage":         s.handleMortgage,
		"find_mortgageAdd":      s.handleMortgageAdd,
		"find_redeem":           s.handleRedeem,
		"find_multiply":         s.handleMultiply,
		"find_multiplyAdd":      s.handleMultiplyAdd,
		"find_cash":             s.handleCash,
		"find_transferPosition": s.handleTransferPosition,
		"find_approvePosition":  s.handleApprovePosition,
		"launch_create":         s.handleLaunchCreate,
		"launch_claimOwnership": s.handleClaimOwnership,
		"admin_setFeeBps":       s.handleSetFeeBps,
	}
	if handler, ok := mutating[req.Method]; ok {
		if authErr := s.requireAuth(r); authErr != nil {
			writeError(w, http.StatusUnauthorized, req.ID, authErr.Code, authErr.Message, authErr.Data)
			return http.StatusUnauthorized
		}
		return handler(w, req)
	}

	switch req.Method {
	case "find_getPosition":
		return s.handleGetPosition(w, req)
	case "find_listPositions":
		return s.handleListPositions(w, req)
	case "find_balanceOf":
		return s.handleBalanceOf(w, req)
	case "find_feeTotals":
		return s.handleFeeTotals(w, req)
	case "find_reserves":
		return s.handleReserves(w, req)
	case "launch_getProject":
		return s.handleGetProject(w, req)
	default:
		writeError(w, http.StatusNotFound, req.ID, codeMethodNotFound, "method not found", req.Method)
		return http.StatusNotFound
	}
}
