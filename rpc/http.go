package rpc

import (
	"bytes"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"vouchermarket/core/events"
	"vouchermarket/native/common"
	"vouchermarket/native/dispute"
	"vouchermarket/native/exchange"
	"vouchermarket/native/funds"
	"vouchermarket/native/offer"
	"vouchermarket/native/voucher"
	"vouchermarket/observability"
	"vouchermarket/registry"
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
	codeServerError    = -32000
	codeUnauthorized   = -32001
	codeNotFound       = -32022
	codeForbidden      = -32023
	codeConflict       = -32024
	codePeriod         = -32026
	codeInsufficient   = -32027
	codeSignature      = -32028
	codeTransfer       = -32029
	codePaused         = -32030
)

// Server exposes the protocol engines over JSON-RPC 2.0. A single mutex
// serializes every state-mutating call; the engines assume serialized
// execution and enforce nothing finer-grained themselves.
type Server struct {
	offers    *offer.Engine
	exchanges *exchange.Engine
	disputes  *dispute.Engine
	allocator *voucher.Allocator
	ledger    *funds.Ledger
	registry  *registry.Registry
	events    *events.Memory

	mu        sync.Mutex
	authToken string
	log       *slog.Logger
	metrics   *observability.RPCMetrics
}

// Engines bundles the collaborators the server dispatches into.
type Engines struct {
	Offers    *offer.Engine
	Exchanges *exchange.Engine
	Disputes  *dispute.Engine
	Allocator *voucher.Allocator
	Ledger    *funds.Ledger
	Registry  *registry.Registry
	Events    *events.Memory
}

// NewServer creates an RPC server over the supplied engines. An empty auth
// token disables authentication for mutating methods.
func NewServer(engines Engines, authToken string, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	return &Server{
		offers:    engines.Offers,
		exchanges: engines.Exchanges,
		disputes:  engines.Disputes,
		allocator: engines.Allocator,
		ledger:    engines.Ledger,
		registry:  engines.Registry,
		events:    engines.Events,
		authToken: strings.TrimSpace(authToken),
		log:       log,
		metrics:   observability.Metrics(),
	}
}

// Router assembles the HTTP surface: the JSON-RPC endpoint, health and
// prometheus metrics.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())
	r.Post("/", s.handle)
	return r
}

// Start blocks serving the RPC surface on addr.
func (s *Server) Start(addr string) error {
	s.log.Info("starting JSON-RPC server", "addr", addr)
	server := &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	return server.ListenAndServe()
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

// errorCode maps engine error kinds onto stable RPC codes so clients can
// branch without parsing messages.
func errorCode(err error) int {
	switch {
	case errors.Is(err, common.ErrNotFound):
		return codeNotFound
	case errors.Is(err, common.ErrAccessDenied):
		return codeForbidden
	case errors.Is(err, common.ErrInvalidState):
		return codeConflict
	case errors.Is(err, common.ErrPeriodViolation):
		return codePeriod
	case errors.Is(err, common.ErrInsufficientFunds):
		return codeInsufficient
	case errors.Is(err, common.ErrSignatureInvalid):
		return codeSignature
	case errors.Is(err, common.ErrTransferFailure):
		return codeTransfer
	case errors.Is(err, common.ErrConfigurationInvalid):
		return codeInvalidParams
	case errors.Is(err, common.ErrModulePaused):
		return codePaused
	default:
		return codeServerError
	}
}

func writeEngineError(w http.ResponseWriter, id interface{}, err error) {
	code := errorCode(err)
	status := http.StatusBadRequest
	if code == codeServerError {
		status = http.StatusInternalServerError
	}
	writeError(w, status, id, code, "engine_error", err.Error())
}

func (s *Server) requireAuth(r *http.Request) *RPCError {
	if s.authToken == "" {
		return nil
	}
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	token, ok := strings.CutPrefix(header, "Bearer ")
	if !ok {
		return &RPCError{Code: codeUnauthorized, Message: "unauthorized", Data: "bearer token required"}
	}
	if subtle.ConstantTimeCompare([]byte(strings.TrimSpace(token)), []byte(s.authToken)) != 1 {
		return &RPCError{Code: codeUnauthorized, Message: "unauthorized", Data: "invalid token"}
	}
	return nil
}

type handlerFunc func(w http.ResponseWriter, r *http.Request, req *RPCRequest)

type methodEntry struct {
	handler  handlerFunc
	mutating bool
}

func (s *Server) methods() map[string]methodEntry {
	return map[string]methodEntry{
		"market_registerSeller":      {s.handleRegisterSeller, true},
		"market_registerBuyer":       {s.handleRegisterBuyer, true},
		"market_registerAgent":       {s.handleRegisterAgent, true},
		"market_registerResolver":    {s.handleRegisterResolver, true},
		"market_setResolverFee":      {s.handleSetResolverFee, true},
		"market_removeResolverFee":   {s.handleRemoveResolverFee, true},
		"market_setResolverActive":   {s.handleSetResolverActive, true},
		"market_addAllowedSeller":    {s.handleAddAllowedSeller, true},
		"market_removeAllowedSeller": {s.handleRemoveAllowedSeller, true},

		"market_createOffer":             {s.handleCreateOffer, true},
		"market_voidOffer":               {s.handleVoidOffer, true},
		"market_updateRoyaltyRecipients": {s.handleUpdateRoyaltyRecipients, true},
		"market_getOffer":                {s.handleGetOffer, false},

		"market_reserveRange":          {s.handleReserveRange, true},
		"market_preMint":               {s.handlePreMint, true},
		"market_burnPremintedVouchers": {s.handleBurnPreminted, true},

		"market_commitToOffer":               {s.handleCommitToOffer, true},
		"market_commitToPriceDiscoveryOffer": {s.handleCommitToPriceDiscoveryOffer, true},
		"market_sequentialCommitToOffer":     {s.handleSequentialCommitToOffer, true},
		"market_redeemVoucher":               {s.handleRedeemVoucher, true},
		"market_cancelVoucher":               {s.handleCancelVoucher, true},
		"market_revokeVoucher":               {s.handleRevokeVoucher, true},
		"market_expireVoucher":               {s.handleExpireVoucher, true},
		"market_transferVoucher":             {s.handleTransferVoucher, true},
		"market_completeExchange":            {s.handleCompleteExchange, true},
		"market_getExchange":                 {s.handleGetExchange, false},
		"market_getExchangeState":            {s.handleGetExchangeState, false},
		"market_isExchangeFinalized":         {s.handleIsExchangeFinalized, false},
		"market_royaltyInfo":                 {s.handleRoyaltyInfo, false},

		"market_raiseDispute":           {s.handleRaiseDispute, true},
		"market_retractDispute":         {s.handleRetractDispute, true},
		"market_resolveDispute":         {s.handleResolveDispute, true},
		"market_escalateDispute":        {s.handleEscalateDispute, true},
		"market_decideDispute":          {s.handleDecideDispute, true},
		"market_refuseEscalatedDispute": {s.handleRefuseEscalatedDispute, true},
		"market_expireEscalatedDispute": {s.handleExpireEscalatedDispute, true},
		"market_expireDispute":          {s.handleExpireDispute, true},
		"market_getDispute":             {s.handleGetDispute, false},

		"market_getEvents": {s.handleGetEvents, false},

		"market_depositFunds":      {s.handleDepositFunds, true},
		"market_withdrawFunds":     {s.handleWithdrawFunds, true},
		"market_getAvailableFunds": {s.handleGetAvailableFunds, false},
	}
}

func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	started := time.Now()
	requestID := uuid.NewString()
	reader := http.MaxBytesReader(w, r.Body, maxRequestBytes)
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
			message = fmt.Sprintf("request body exceeds %d bytes", maxRequestBytes)
		}
		writeError(w, status, nil, codeInvalidRequest, message, err.Error())
		return
	}
	if len(bytes.TrimSpace(body)) == 0 {
		writeError(w, http.StatusBadRequest, nil, codeInvalidRequest, "request body required", nil)
		return
	}

	req := &RPCRequest{}
	if err := json.Unmarshal(body, req); err != nil {
		writeError(w, http.StatusBadRequest, nil, codeParseError, "invalid JSON payload", err.Error())
		return
	}
	if req.JSONRPC != "" && req.JSONRPC != jsonRPCVersion {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidRequest, "unsupported jsonrpc version", req.JSONRPC)
		return
	}
	if req.Method == "" {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidRequest, "method required", nil)
		return
	}

	entry, ok := s.methods()[req.Method]
	if !ok {
		writeError(w, http.StatusNotFound, req.ID, codeMethodNotFound, "method not found", req.Method)
		return
	}
	if entry.mutating {
		if authErr := s.requireAuth(r); authErr != nil {
			writeError(w, http.StatusUnauthorized, req.ID, authErr.Code, authErr.Message, authErr.Data)
			return
		}
		s.mu.Lock()
		defer s.mu.Unlock()
	}

	recorder := &statusRecorder{inner: w}
	entry.handler(recorder, r, req)
	s.metrics.Observe(req.Method, recorder.errCode, time.Since(started))
	s.log.Info("rpc request",
		"requestId", requestID,
		"method", req.Method,
		"errorCode", recorder.errCode,
		"durationMs", time.Since(started).Milliseconds(),
	)
}

// statusRecorder captures the RPC error code written by a handler so metrics
// and logs see the outcome without re-parsing the response.
type statusRecorder struct {
	inner   http.ResponseWriter
	errCode int
}

func (r *statusRecorder) Header() http.Header { return r.inner.Header() }

func (r *statusRecorder) WriteHeader(status int) { r.inner.WriteHeader(status) }

func (r *statusRecorder) Write(data []byte) (int, error) {
	var resp RPCResponse
	if err := json.Unmarshal(data, &resp); err == nil && resp.Error != nil {
		r.errCode = resp.Error.Code
	}
	return r.inner.Write(data)
}
