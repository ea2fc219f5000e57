package rpc

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"turingarena/native/settlement"
	"turingarena/observability/metrics"
	"turingarena/services/authority"
)

const (
	jsonRPCVersion  = "2.0"
	maxRequestBytes = 1 << 20 // 1 MiB
)

const (
	codeParseError     = -32700
	codeInvalidRequest = -32600
	codeMethodNotFound = -32601
	codeInvalidParams  = -32602
	codeUnauthorized   = -32001
	codeServerError    = -32000
)

// Server exposes the settlement engine over JSON-RPC. State-changing calls
// hold the write side of a single lock, providing the total transaction order
// the engine expects from its host; queries share the read side.
type Server struct {
	engine *settlement.Engine
	vault  *settlement.MemoryVault
	signer *authority.Signer
	owner  [20]byte

	log     *slog.Logger
	metrics *metrics.SettlementMetrics

	mu        sync.RWMutex
	authToken string
}

// NewServer wires the RPC surface. The signer is optional; without it the
// authorization-issuing methods report an error. Admin methods require the
// bearer token from ARENA_RPC_TOKEN.
func NewServer(engine *settlement.Engine, vault *settlement.MemoryVault, signer *authority.Signer, owner [20]byte, log *slog.Logger) *Server {
	token := strings.TrimSpace(os.Getenv("ARENA_RPC_TOKEN"))
	if log == nil {
		log = slog.Default()
	}
	return &Server{
		engine:    engine,
		vault:     vault,
		signer:    signer,
		owner:     owner,
		log:       log,
		metrics:   metrics.Settlement(),
		authToken: token,
	}
}

// Router mounts the RPC handler and the Prometheus endpoint.
func (s *Server) Router() chi.Router {
	r := chi.NewRouter()
	r.Post("/", s.handle)
	r.Handle("/metrics", promhttp.Handler())
	return r
}

// Start serves the router on the given address.
func (s *Server) Start(addr string) error {
	s.log.Info("starting JSON-RPC server", "addr", addr)
	return http.ListenAndServe(addr, s.Router())
}

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
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBytes))
	if err != nil {
		writeError(w, nil, codeParseError, "unable to read request body")
		return
	}
	var req RPCRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeError(w, nil, codeParseError, "invalid JSON payload")
		return
	}
	if req.JSONRPC != jsonRPCVersion {
		writeError(w, req.ID, codeInvalidRequest, "unsupported JSON-RPC version")
		return
	}
	if strings.HasPrefix(req.Method, "admin_") && !s.authorized(r) {
		writeError(w, req.ID, codeUnauthorized, "admin token required")
		return
	}
	result, rpcErr := s.dispatch(&req)
	if rpcErr != nil {
		writeError(w, req.ID, rpcErr.Code, rpcErr.Message)
		return
	}
	writeResult(w, req.ID, result)
}

func (s *Server) authorized(r *http.Request) bool {
	if s.authToken == "" {
		return false
	}
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	token := strings.TrimPrefix(header, "Bearer ")
	return subtle.ConstantTimeCompare([]byte(token), []byte(s.authToken)) == 1
}

func writeResult(w http.ResponseWriter, id, result interface{}) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(RPCResponse{JSONRPC: jsonRPCVersion, ID: id, Result: result})
}

func writeError(w http.ResponseWriter, id interface{}, code int, message string) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(RPCResponse{JSONRPC: jsonRPCVersion, ID: id, Error: &RPCError{Code: code, Message: message}})
}

func decodeParams(req *RPCRequest, out interface{}) *RPCError {
	if len(req.Params) != 1 {
		return &RPCError{Code: codeInvalidParams, Message: "expected a single params object"}
	}
	if err := json.Unmarshal(req.Params[0], out); err != nil {
		return &RPCError{Code: codeInvalidParams, Message: fmt.Sprintf("invalid params: %v", err)}
	}
	return nil
}

// transition serializes an engine call, records metrics and maps the sentinel
// error taxonomy onto a reason string the caller can act on.
func (s *Server) transition(op string, fn func() error) *RPCError {
	s.mu.Lock()
	err := fn()
	s.mu.Unlock()
	if err != nil {
		reason := failureReason(err)
		s.metrics.Failures.WithLabelValues(op, reason).Inc()
		s.log.Warn("settlement transition rejected", "op", op, "reason", reason, "err", err)
		return &RPCError{Code: codeServerError, Message: err.Error()}
	}
	s.metrics.Transitions.WithLabelValues(op).Inc()
	return nil
}

// view serializes a read-only engine or vault access against in-flight
// transitions. Queries run concurrently with each other but never observe a
// half-committed state swap.
func (s *Server) view(fn func()) {
	s.mu.RLock()
	fn()
	s.mu.RUnlock()
}

func failureReason(err error) string {
	switch {
	case errors.Is(err, settlement.ErrInvalidSignature):
		return "invalid_signature"
	case errors.Is(err, settlement.ErrNonceAlreadyUsed), errors.Is(err, settlement.ErrNonceNotIncreasing):
		return "nonce"
	case errors.Is(err, settlement.ErrBalanceChanged):
		return "balance_changed"
	case errors.Is(err, settlement.ErrAmountMismatch), errors.Is(err, settlement.ErrBalanceMismatch):
		return "inconsistent_payload"
	case errors.Is(err, settlement.ErrInsufficientBalance):
		return "insufficient_balance"
	case errors.Is(err, settlement.ErrTransferFailed):
		return "transfer_failed"
	case errors.Is(err, settlement.ErrBanned):
		return "banned"
	case errors.Is(err, settlement.ErrPaused):
		return "paused"
	case errors.Is(err, settlement.ErrNotOwner):
		return "not_owner"
	case errors.Is(err, settlement.ErrReentrantCall):
		return "reentrant"
	case errors.Is(err, settlement.ErrInvalidAmount):
		return "invalid_amount"
	case errors.Is(err, settlement.ErrInvalidDuration):
		return "invalid_duration"
	default:
		return "other"
	}
}
