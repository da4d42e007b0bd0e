package rpc

import (
	"encoding/json"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"

	"staychain/native/booking"
	"staychain/native/marketplace"
	"staychain/native/payment"
	"staychain/native/royalty"
	"staychain/native/system"
	"staychain/native/token"
	"staychain/observability"
)

const (
	codeParse          = -32700
	codeInvalidRequest = -32600
	codeMethodNotFound = -32601
	codeInvalidParams  = -32602
	codeServerError    = -32000
	codeUnauthorized   = -32001
	codeThrottled      = -32002
)

type rpcRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Result  interface{}     `json:"result,omitempty"`
	Error   *rpcError       `json:"error,omitempty"`
}

// Server exposes the native modules over JSON-RPC 2.0. Mutating methods carry
// the caller address explicitly; authentication, when enabled, is a shared
// bearer token.
type Server struct {
	logger    *slog.Logger
	engine    *marketplace.Engine
	bookings  *booking.Ledger
	tokens    *token.Registry
	payments  *payment.Ledger
	royalties *royalty.Engine
	pauses    *system.Pauses

	authToken string

	limiterMu sync.Mutex
	limiters  map[string]*rate.Limiter
	rateLimit rate.Limit
	rateBurst int
}

// ServerConfig bundles the transport settings for NewServer.
type ServerConfig struct {
	AuthToken string
	RateLimit int
	RateBurst int
}

// NewServer wires a JSON-RPC server over the supplied module set.
func NewServer(logger *slog.Logger, cfg ServerConfig, engine *marketplace.Engine, bookings *booking.Ledger, tokens *token.Registry, payments *payment.Ledger, royalties *royalty.Engine, pauses *system.Pauses) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.RateLimit <= 0 {
		cfg.RateLimit = 50
	}
	if cfg.RateBurst <= 0 {
		cfg.RateBurst = cfg.RateLimit * 2
	}
	return &Server{
		logger:    logger,
		engine:    engine,
		bookings:  bookings,
		tokens:    tokens,
		payments:  payments,
		royalties: royalties,
		pauses:    pauses,
		authToken: strings.TrimSpace(cfg.AuthToken),
		limiters:  make(map[string]*rate.Limiter),
		rateLimit: rate.Limit(cfg.RateLimit),
		rateBurst: cfg.RateBurst,
	}
}

// Router returns the HTTP handler serving the RPC endpoint, health check and
// metrics.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.Handler())
	r.Post("/rpc", s.handleRPC)
	return r
}

func (s *Server) limiterFor(source string) *rate.Limiter {
	s.limiterMu.Lock()
	defer s.limiterMu.Unlock()
	limiter, ok := s.limiters[source]
	if !ok {
		limiter = rate.NewLimiter(s.rateLimit, s.rateBurst)
		s.limiters[source] = limiter
	}
	return limiter
}

func clientSource(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func (s *Server) authorized(r *http.Request) bool {
	if s.authToken == "" {
		return true
	}
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	return header == "Bearer "+s.authToken
}

func (s *Server) handleRPC(w http.ResponseWriter, r *http.Request) {
	requestID := uuid.NewString()
	w.Header().Set("X-Request-Id", requestID)
	logger := s.logger.With(slog.String("requestId", requestID), slog.String("source", clientSource(r)))

	if !s.authorized(r) {
		writeRPCError(w, nil, codeUnauthorized, "unauthorized")
		return
	}
	if !s.limiterFor(clientSource(r)).Allow() {
		writeRPCError(w, nil, codeThrottled, "rate limit exceeded")
		return
	}

	var req rpcRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeRPCError(w, nil, codeParse, "invalid JSON")
		return
	}
	if req.JSONRPC != "2.0" || req.Method == "" {
		writeRPCError(w, req.ID, codeInvalidRequest, "invalid request")
		return
	}

	start := time.Now()
	result, rpcErr := s.dispatch(&req)
	metrics := observability.RPCMetrics()
	if rpcErr != nil {
		metrics.Observe(req.Method, "error", time.Since(start))
		metrics.ObserveError(req.Method, strconv.Itoa(rpcErr.Code))
		logger.Warn("rpc error", slog.String("method", req.Method), slog.Int("code", rpcErr.Code), slog.String("message", rpcErr.Message))
		writeJSON(w, rpcResponse{JSONRPC: "2.0", ID: req.ID, Error: rpcErr})
		return
	}
	metrics.Observe(req.Method, "ok", time.Since(start))
	logger.Info("rpc", slog.String("method", req.Method), slog.Duration("duration", time.Since(start)))
	writeJSON(w, rpcResponse{JSONRPC: "2.0", ID: req.ID, Result: result})
}

func writeRPCError(w http.ResponseWriter, id json.RawMessage, code int, message string) {
	writeJSON(w, rpcResponse{JSONRPC: "2.0", ID: id, Error: &rpcError{Code: code, Message: message}})
}

func writeJSON(w http.ResponseWriter, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(payload)
}
