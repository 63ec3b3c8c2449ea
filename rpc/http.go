package rpc

import (
	"bytes"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/big"
	"net/http"
	"strings"
	"time"

	ethcommon "github.com/ethereum/go-ethereum/common"
	"golang.org/x/time/rate"

	"tokensale/core"
	"tokensale/observability/metrics"
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
	codeDuplicateID    = -32010
	codeRateLimited    = -32020
)

// Server exposes the sale node over JSON-RPC 2.0. Admin methods require the
// configured bearer token; all methods share one token-bucket rate limiter.
type Server struct {
	node      *core.Node
	authToken string
	limiter   *rate.Limiter
	metrics   *metrics.SaleMetrics
	logger    *slog.Logger
}

// ServerOption customises a Server.
type ServerOption func(*Server)

// WithAuthToken sets the admin bearer token. An empty token leaves the admin
// surface disabled.
func WithAuthToken(token string) ServerOption {
	return func(s *Server) { s.authToken = strings.TrimSpace(token) }
}

// WithRateLimit replaces the default request rate limit.
func WithRateLimit(perSecond float64, burst int) ServerOption {
	return func(s *Server) {
		if perSecond > 0 && burst > 0 {
			s.limiter = rate.NewLimiter(rate.Limit(perSecond), burst)
		}
	}
}

// WithLogger replaces the default logger.
func WithLogger(logger *slog.Logger) ServerOption {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewServer constructs the RPC server over the node.
func NewServer(node *core.Node, opts ...ServerOption) *Server {
	s := &Server{
		node:    node,
		limiter: rate.NewLimiter(rate.Limit(50), 100),
		metrics: metrics.Sale(),
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start blocks serving RPC traffic on addr.
func (s *Server) Start(addr string) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handle)
	s.logger.Info("starting JSON-RPC server", "addr", addr)
	return http.ListenAndServe(addr, mux)
}

// Handler returns the HTTP handler, primarily for tests.
func (s *Server) Handler() http.Handler {
	return http.HandlerFunc(s.handle)
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

func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	reader := http.MaxBytesReader(w, r.Body, maxRequestBytes)
	defer func() { _ = reader.Close() }()

	w.Header().Set("Content-Type", "application/json")

	if !s.limiter.Allow() {
		writeError(w, http.StatusTooManyRequests, nil, codeRateLimited, "rate limit exceeded", nil)
		return
	}

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

	started := time.Now()
	recorder := &statusRecorder{ResponseWriter: w}
	s.route(recorder, r, req)
	outcome := "ok"
	if recorder.status >= http.StatusBadRequest {
		outcome = "error"
	}
	s.metrics.ObserveRPCRequest(req.Method, outcome, time.Since(started).Seconds())
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (s *Server) route(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	switch req.Method {
	case "sale_purchase":
		s.handleSalePurchase(w, r, req)
	case "sale_purchaseNative":
		s.handleSalePurchaseNative(w, r, req)
	case "sale_quote":
		s.handleSaleQuote(w, r, req)
	case "sale_crossRate":
		s.handleSaleCrossRate(w, r, req)
	case "sale_stats":
		s.handleSaleStats(w, r, req)
	case "sale_receipt":
		s.handleSaleReceipt(w, r, req)
	case "sale_receiptByOrder":
		s.handleSaleReceiptByOrder(w, r, req)
	case "sale_userPurchases":
		s.handleSaleUserPurchases(w, r, req)
	case "sale_asset":
		s.handleSaleAsset(w, r, req)
	case "sale_policy":
		s.handleSalePolicy(w, r, req)
	case "sale_feedHealth":
		s.handleSaleFeedHealth(w, r, req)
	case "saleAdmin_registerAsset":
		s.admin(w, r, req, s.handleAdminRegisterAsset)
	case "saleAdmin_removeAsset":
		s.admin(w, r, req, s.handleAdminRemoveAsset)
	case "saleAdmin_setAssetRate":
		s.admin(w, r, req, s.handleAdminSetAssetRate)
	case "saleAdmin_configureOracle":
		s.admin(w, r, req, s.handleAdminConfigureOracle)
	case "saleAdmin_removeOracle":
		s.admin(w, r, req, s.handleAdminRemoveOracle)
	case "saleAdmin_setOracleEnabled":
		s.admin(w, r, req, s.handleAdminSetOracleEnabled)
	case "saleAdmin_setStaleness":
		s.admin(w, r, req, s.handleAdminSetStaleness)
	case "saleAdmin_setDefaultStaleness":
		s.admin(w, r, req, s.handleAdminSetDefaultStaleness)
	case "saleAdmin_setBase":
		s.admin(w, r, req, s.handleAdminSetBase)
	case "saleAdmin_updateBaseRate":
		s.admin(w, r, req, s.handleAdminUpdateBaseRate)
	case "saleAdmin_setLimits":
		s.admin(w, r, req, s.handleAdminSetLimits)
	case "saleAdmin_setUserCap":
		s.admin(w, r, req, s.handleAdminSetUserCap)
	case "saleAdmin_setWindow":
		s.admin(w, r, req, s.handleAdminSetWindow)
	case "saleAdmin_configure":
		s.admin(w, r, req, s.handleAdminConfigure)
	case "saleAdmin_pause":
		s.admin(w, r, req, s.handleAdminPause)
	case "saleAdmin_resume":
		s.admin(w, r, req, s.handleAdminResume)
	case "saleAdmin_setRecipient":
		s.admin(w, r, req, s.handleAdminSetRecipient)
	case "saleAdmin_setWhitelistRequired":
		s.admin(w, r, req, s.handleAdminSetWhitelistRequired)
	case "saleAdmin_whitelistAdd":
		s.admin(w, r, req, s.handleAdminWhitelistAdd)
	case "saleAdmin_whitelistRemove":
		s.admin(w, r, req, s.handleAdminWhitelistRemove)
	case "saleAdmin_withdraw":
		s.admin(w, r, req, s.handleAdminWithdraw)
	default:
		writeError(w, http.StatusNotFound, req.ID, codeMethodNotFound, fmt.Sprintf("method %q not found", req.Method), nil)
	}
}

type handlerFunc func(http.ResponseWriter, *http.Request, *RPCRequest)

func (s *Server) admin(w http.ResponseWriter, r *http.Request, req *RPCRequest, next handlerFunc) {
	if authErr := s.requireAuth(r); authErr != nil {
		writeError(w, http.StatusUnauthorized, req.ID, authErr.Code, authErr.Message, authErr.Data)
		return
	}
	next(w, r, req)
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

func parseAddress(raw string) ([20]byte, error) {
	var addr [20]byte
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return addr, fmt.Errorf("address required")
	}
	if !ethcommon.IsHexAddress(trimmed) {
		return addr, fmt.Errorf("invalid address %q", raw)
	}
	copy(addr[:], ethcommon.HexToAddress(trimmed).Bytes())
	return addr, nil
}

func parseAmount(raw string) (*big.Int, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil, fmt.Errorf("amount required")
	}
	value, ok := new(big.Int).SetString(trimmed, 10)
	if !ok {
		return nil, fmt.Errorf("invalid amount %q", raw)
	}
	if value.Sign() < 0 {
		return nil, fmt.Errorf("amount must not be negative")
	}
	return value, nil
}

// parseOptionalAmount treats an empty string as zero.
func parseOptionalAmount(raw string) (*big.Int, error) {
	if strings.TrimSpace(raw) == "" {
		return big.NewInt(0), nil
	}
	return parseAmount(raw)
}

func addrHex(addr [20]byte) string {
	return strings.ToLower(ethcommon.BytesToAddress(addr[:]).Hex())
}

func bigString(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}
