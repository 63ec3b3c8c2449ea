package rpc

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	ethcommon "github.com/ethereum/go-ethereum/common"

	"tokensale/core"
	"tokensale/observability/logging"
	"tokensale/storage"
)

const testAdminToken = "test-admin-token"

func testAddr(b byte) [20]byte {
	var addr [20]byte
	for i := range addr {
		addr[i] = b
	}
	return addr
}

func hex(addr [20]byte) string {
	return ethcommon.BytesToAddress(addr[:]).Hex()
}

type rpcEnv struct {
	node   *core.Node
	server *Server

	saleAccount [20]byte
	recipient   [20]byte
	usd         [20]byte
	buyer       [20]byte
}

func newRPCEnv(t *testing.T) *rpcEnv {
	t.Helper()
	env := &rpcEnv{
		saleAccount: testAddr(0x5a),
		recipient:   testAddr(0xaa),
		usd:         testAddr(0x01),
		buyer:       testAddr(0xb1),
	}
	node, err := core.NewNode(storage.NewMemDB(), env.saleAccount)
	if err != nil {
		t.Fatalf("new node: %v", err)
	}
	env.node = node
	env.server = NewServer(node, WithAuthToken(testAdminToken), WithRateLimit(1000, 1000))
	return env
}

// seedSale registers the USD asset at 100 tokens per unit and funds the buyer.
func (env *rpcEnv) seedSale(t *testing.T) {
	t.Helper()
	rate, _ := new(big.Int).SetString("100000000000000000000", 10)
	if err := env.node.SaleRegisterAsset(env.usd, rate, 6); err != nil {
		t.Fatalf("register asset: %v", err)
	}
	if err := env.node.SaleSetRecipient(env.recipient); err != nil {
		t.Fatalf("set recipient: %v", err)
	}
	if err := env.node.Bank().Credit(env.usd, env.buyer, big.NewInt(10_000_000_000)); err != nil {
		t.Fatalf("credit buyer: %v", err)
	}
}

func (env *rpcEnv) call(t *testing.T, token, method string, params ...interface{}) (*httptest.ResponseRecorder, RPCResponse) {
	t.Helper()
	body, err := json.Marshal(map[string]interface{}{
		"jsonrpc": jsonRPCVersion,
		"id":      1,
		"method":  method,
		"params":  params,
	})
	if err != nil {
		t.Fatalf("marshal request: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, "/", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	recorder := httptest.NewRecorder()
	env.server.Handler().ServeHTTP(recorder, req)
	var resp RPCResponse
	if err := json.Unmarshal(recorder.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response %q: %v", recorder.Body.String(), err)
	}
	return recorder, resp
}

func decodeResult(t *testing.T, resp RPCResponse, out interface{}) {
	t.Helper()
	raw, err := json.Marshal(resp.Result)
	if err != nil {
		t.Fatalf("re-marshal result: %v", err)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		t.Fatalf("decode result: %v", err)
	}
}

func TestHandleRejectsMalformedRequests(t *testing.T) {
	env := newRPCEnv(t)

	cases := []struct {
		name   string
		body   string
		status int
		code   int
	}{
		{"empty body", "   ", http.StatusBadRequest, codeInvalidRequest},
		{"invalid json", "{not json", http.StatusBadRequest, codeParseError},
		{"bad version", `{"jsonrpc":"1.0","method":"sale_stats","id":1}`, http.StatusBadRequest, codeInvalidRequest},
		{"missing method", `{"jsonrpc":"2.0","id":1}`, http.StatusBadRequest, codeInvalidRequest},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(tc.body))
			recorder := httptest.NewRecorder()
			env.server.Handler().ServeHTTP(recorder, req)
			if recorder.Code != tc.status {
				t.Fatalf("status = %d, want %d", recorder.Code, tc.status)
			}
			var resp RPCResponse
			if err := json.Unmarshal(recorder.Body.Bytes(), &resp); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if resp.Error == nil || resp.Error.Code != tc.code {
				t.Fatalf("error = %+v, want code %d", resp.Error, tc.code)
			}
		})
	}
}

func TestHandleRejectsOversizedBody(t *testing.T) {
	env := newRPCEnv(t)
	body := strings.Repeat("a", maxRequestBytes+1)
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	recorder := httptest.NewRecorder()
	env.server.Handler().ServeHTTP(recorder, req)
	if recorder.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("status = %d", recorder.Code)
	}
}

func TestHandleUnknownMethod(t *testing.T) {
	env := newRPCEnv(t)
	recorder, resp := env.call(t, "", "sale_doesNotExist")
	if recorder.Code != http.StatusNotFound {
		t.Fatalf("status = %d", recorder.Code)
	}
	if resp.Error == nil || resp.Error.Code != codeMethodNotFound {
		t.Fatalf("error = %+v", resp.Error)
	}
}

func TestRateLimitExceeded(t *testing.T) {
	env := newRPCEnv(t)
	env.server = NewServer(env.node, WithRateLimit(1, 1))

	recorder, _ := env.call(t, "", "sale_stats")
	if recorder.Code != http.StatusOK {
		t.Fatalf("first call status = %d", recorder.Code)
	}
	recorder, resp := env.call(t, "", "sale_stats")
	if recorder.Code != http.StatusTooManyRequests {
		t.Fatalf("second call status = %d", recorder.Code)
	}
	if resp.Error == nil || resp.Error.Code != codeRateLimited {
		t.Fatalf("error = %+v", resp.Error)
	}
}

func TestAdminAuthRequired(t *testing.T) {
	env := newRPCEnv(t)

	cases := []struct {
		name  string
		token string
	}{
		{"missing token", ""},
		{"wrong token", "not-the-token"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			recorder, resp := env.call(t, tc.token, "saleAdmin_pause")
			if recorder.Code != http.StatusUnauthorized {
				t.Fatalf("status = %d", recorder.Code)
			}
			if resp.Error == nil || resp.Error.Code != codeUnauthorized {
				t.Fatalf("error = %+v", resp.Error)
			}
		})
	}
}

func TestAdminDisabledWithoutConfiguredToken(t *testing.T) {
	env := newRPCEnv(t)
	env.server = NewServer(env.node)

	recorder, resp := env.call(t, "any-token", "saleAdmin_pause")
	if recorder.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d", recorder.Code)
	}
	if resp.Error == nil || !strings.Contains(resp.Error.Message, "not configured") {
		t.Fatalf("error = %+v", resp.Error)
	}
}

func TestPurchaseEndToEnd(t *testing.T) {
	env := newRPCEnv(t)
	env.seedSale(t)

	recorder, resp := env.call(t, "", "sale_purchase", map[string]string{
		"buyer":   hex(env.buyer),
		"asset":   hex(env.usd),
		"amount":  "1000000000",
		"orderId": "order-1",
	})
	if recorder.Code != http.StatusOK {
		t.Fatalf("status = %d body = %s", recorder.Code, recorder.Body.String())
	}
	var receipt ReceiptResult
	decodeResult(t, resp, &receipt)
	if receipt.IssuedAmount != "100000000000000000000000" {
		t.Fatalf("issued = %s", receipt.IssuedAmount)
	}
	if receipt.OrderID != "order-1" {
		t.Fatalf("orderId = %s", receipt.OrderID)
	}

	// The same order id must be rejected with a conflict.
	recorder, resp = env.call(t, "", "sale_purchase", map[string]string{
		"buyer":   hex(env.buyer),
		"asset":   hex(env.usd),
		"amount":  "1000000000",
		"orderId": "order-1",
	})
	if recorder.Code != http.StatusConflict {
		t.Fatalf("replay status = %d", recorder.Code)
	}
	if resp.Error == nil || resp.Error.Code != codeDuplicateID {
		t.Fatalf("replay error = %+v", resp.Error)
	}
}

func TestPurchaseValidationErrors(t *testing.T) {
	env := newRPCEnv(t)
	env.seedSale(t)

	cases := []struct {
		name    string
		payload map[string]string
	}{
		{"bad buyer", map[string]string{"buyer": "nope", "asset": hex(env.usd), "amount": "1"}},
		{"bad asset", map[string]string{"buyer": hex(env.buyer), "asset": "nope", "amount": "1"}},
		{"bad amount", map[string]string{"buyer": hex(env.buyer), "asset": hex(env.usd), "amount": "abc"}},
		{"negative amount", map[string]string{"buyer": hex(env.buyer), "asset": hex(env.usd), "amount": "-1"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			recorder, resp := env.call(t, "", "sale_purchase", tc.payload)
			if recorder.Code != http.StatusBadRequest {
				t.Fatalf("status = %d", recorder.Code)
			}
			if resp.Error == nil || resp.Error.Code != codeInvalidParams {
				t.Fatalf("error = %+v", resp.Error)
			}
		})
	}
}

func TestPurchaseNotWhitelistedForbidden(t *testing.T) {
	env := newRPCEnv(t)
	env.seedSale(t)
	if err := env.node.SaleSetWhitelistRequired(true); err != nil {
		t.Fatalf("set whitelist: %v", err)
	}

	recorder, resp := env.call(t, "", "sale_purchase", map[string]string{
		"buyer":  hex(env.buyer),
		"asset":  hex(env.usd),
		"amount": "1000000",
	})
	if recorder.Code != http.StatusForbidden {
		t.Fatalf("status = %d", recorder.Code)
	}
	if resp.Error == nil || resp.Error.Code != codeUnauthorized {
		t.Fatalf("error = %+v", resp.Error)
	}
}

func TestQuoteAndStats(t *testing.T) {
	env := newRPCEnv(t)
	env.seedSale(t)

	_, resp := env.call(t, "", "sale_quote", hex(env.usd))
	var quote QuoteResult
	decodeResult(t, resp, &quote)
	if quote.Rate != "100000000000000000000" || quote.Source != "manual" || quote.Decimals != 6 {
		t.Fatalf("quote = %+v", quote)
	}

	_, resp = env.call(t, "", "sale_purchase", map[string]string{
		"buyer":  hex(env.buyer),
		"asset":  hex(env.usd),
		"amount": "1000000",
	})
	if resp.Error != nil {
		t.Fatalf("purchase: %+v", resp.Error)
	}

	_, resp = env.call(t, "", "sale_stats")
	var stats StatsResult
	decodeResult(t, resp, &stats)
	if stats.Purchases != 1 {
		t.Fatalf("purchases = %d", stats.Purchases)
	}
	if stats.TotalIssued != "100000000000000000000" {
		t.Fatalf("issued = %s", stats.TotalIssued)
	}
}

func TestReceiptLookups(t *testing.T) {
	env := newRPCEnv(t)
	env.seedSale(t)

	_, resp := env.call(t, "", "sale_purchase", map[string]string{
		"buyer":   hex(env.buyer),
		"asset":   hex(env.usd),
		"amount":  "1000000",
		"orderId": "lookup-1",
	})
	var receipt ReceiptResult
	decodeResult(t, resp, &receipt)

	_, resp = env.call(t, "", "sale_receipt", receipt.ReceiptID)
	var byID ReceiptResult
	decodeResult(t, resp, &byID)
	if byID.ReceiptID != receipt.ReceiptID {
		t.Fatalf("receipt = %+v", byID)
	}

	_, resp = env.call(t, "", "sale_receiptByOrder", "lookup-1")
	var byOrder ReceiptResult
	decodeResult(t, resp, &byOrder)
	if byOrder.ReceiptID != receipt.ReceiptID {
		t.Fatalf("receipt by order = %+v", byOrder)
	}

	recorder, resp := env.call(t, "", "sale_receipt", "missing")
	if recorder.Code != http.StatusNotFound {
		t.Fatalf("status = %d", recorder.Code)
	}
	if resp.Error == nil {
		t.Fatalf("expected error")
	}
}

func TestUserPurchasesAggregates(t *testing.T) {
	env := newRPCEnv(t)
	env.seedSale(t)

	for i := 0; i < 3; i++ {
		_, resp := env.call(t, "", "sale_purchase", map[string]string{
			"buyer":   hex(env.buyer),
			"asset":   hex(env.usd),
			"amount":  "1000000",
			"orderId": fmt.Sprintf("multi-%d", i),
		})
		if resp.Error != nil {
			t.Fatalf("purchase %d: %+v", i, resp.Error)
		}
	}

	_, resp := env.call(t, "", "sale_userPurchases", hex(env.buyer))
	var result struct {
		TotalIssued  string          `json:"totalIssued"`
		Receipts     []ReceiptResult `json:"receipts"`
		ReceiptCount int             `json:"receiptCount"`
	}
	decodeResult(t, resp, &result)
	if result.ReceiptCount != 3 || len(result.Receipts) != 3 {
		t.Fatalf("result = %+v", result)
	}
	if result.TotalIssued != "300000000000000000000" {
		t.Fatalf("total issued = %s", result.TotalIssued)
	}
}

func TestAdminRegisterAndConfigure(t *testing.T) {
	env := newRPCEnv(t)
	asset := testAddr(0x02)

	recorder, resp := env.call(t, testAdminToken, "saleAdmin_registerAsset", map[string]interface{}{
		"asset":    hex(asset),
		"rate":     "2000000000000000000",
		"decimals": 18,
	})
	if recorder.Code != http.StatusOK {
		t.Fatalf("register status = %d body = %s", recorder.Code, recorder.Body.String())
	}
	if resp.Error != nil {
		t.Fatalf("register error = %+v", resp.Error)
	}

	_, resp = env.call(t, "", "sale_asset", hex(asset))
	var info struct {
		Allowed  bool   `json:"allowed"`
		Rate     string `json:"rate"`
		Decimals uint8  `json:"decimals"`
	}
	decodeResult(t, resp, &info)
	if !info.Allowed || info.Rate != "2000000000000000000" || info.Decimals != 18 {
		t.Fatalf("asset = %+v", info)
	}

	recorder, resp = env.call(t, testAdminToken, "saleAdmin_configure", map[string]interface{}{
		"hardCap":     "1000000000000000000000",
		"minPurchase": "1000000",
		"start":       uint64(100),
		"end":         uint64(200),
	})
	if recorder.Code != http.StatusOK || resp.Error != nil {
		t.Fatalf("configure: status = %d error = %+v", recorder.Code, resp.Error)
	}

	_, resp = env.call(t, "", "sale_policy")
	var policy struct {
		HardCap   string `json:"hardCap"`
		SaleStart uint64 `json:"saleStart"`
		SaleEnd   uint64 `json:"saleEnd"`
	}
	decodeResult(t, resp, &policy)
	if policy.HardCap != "1000000000000000000000" || policy.SaleStart != 100 || policy.SaleEnd != 200 {
		t.Fatalf("policy = %+v", policy)
	}
}

func TestAdminValidationErrors(t *testing.T) {
	env := newRPCEnv(t)

	cases := []struct {
		name    string
		method  string
		payload interface{}
	}{
		{"zero rate", "saleAdmin_registerAsset", map[string]interface{}{
			"asset": hex(testAddr(0x02)), "rate": "0", "decimals": 6,
		}},
		{"decimals out of range", "saleAdmin_registerAsset", map[string]interface{}{
			"asset": hex(testAddr(0x02)), "rate": "1", "decimals": 19,
		}},
		{"rate for unknown asset", "saleAdmin_setAssetRate", map[string]interface{}{
			"asset": hex(testAddr(0x03)), "rate": "1",
		}},
		{"inverted window", "saleAdmin_setWindow", map[string]interface{}{
			"start": uint64(200), "end": uint64(100),
		}},
		{"zero recipient", "saleAdmin_setRecipient", hex([20]byte{})},
		{"unknown feed", "saleAdmin_configureOracle", map[string]interface{}{
			"asset": hex(testAddr(0x02)), "feed": "missing-feed",
		}},
		{"zero default staleness", "saleAdmin_setDefaultStaleness", map[string]interface{}{
			"seconds": uint64(0),
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			recorder, resp := env.call(t, testAdminToken, tc.method, tc.payload)
			if recorder.Code != http.StatusBadRequest {
				t.Fatalf("status = %d body = %s", recorder.Code, recorder.Body.String())
			}
			if resp.Error == nil || resp.Error.Code != codeInvalidParams {
				t.Fatalf("error = %+v", resp.Error)
			}
		})
	}
}

func TestAdminPauseBlocksPurchases(t *testing.T) {
	env := newRPCEnv(t)
	env.seedSale(t)

	if _, resp := env.call(t, testAdminToken, "saleAdmin_pause"); resp.Error != nil {
		t.Fatalf("pause: %+v", resp.Error)
	}
	recorder, _ := env.call(t, "", "sale_purchase", map[string]string{
		"buyer":  hex(env.buyer),
		"asset":  hex(env.usd),
		"amount": "1000000",
	})
	if recorder.Code != http.StatusBadRequest {
		t.Fatalf("paused purchase status = %d", recorder.Code)
	}
	if _, resp := env.call(t, testAdminToken, "saleAdmin_resume"); resp.Error != nil {
		t.Fatalf("resume: %+v", resp.Error)
	}
	recorder, _ = env.call(t, "", "sale_purchase", map[string]string{
		"buyer":  hex(env.buyer),
		"asset":  hex(env.usd),
		"amount": "1000000",
	})
	if recorder.Code != http.StatusOK {
		t.Fatalf("resumed purchase status = %d", recorder.Code)
	}
}

func TestAdminWhitelistLifecycle(t *testing.T) {
	env := newRPCEnv(t)
	account := testAddr(0xc1)

	if _, resp := env.call(t, testAdminToken, "saleAdmin_whitelistAdd", hex(account)); resp.Error != nil {
		t.Fatalf("add: %+v", resp.Error)
	}
	recorder, resp := env.call(t, testAdminToken, "saleAdmin_whitelistAdd", hex(account))
	if recorder.Code != http.StatusBadRequest || resp.Error == nil {
		t.Fatalf("duplicate add: status = %d error = %+v", recorder.Code, resp.Error)
	}
	if _, resp := env.call(t, testAdminToken, "saleAdmin_whitelistRemove", hex(account)); resp.Error != nil {
		t.Fatalf("remove: %+v", resp.Error)
	}
	recorder, resp = env.call(t, testAdminToken, "saleAdmin_whitelistRemove", hex(account))
	if recorder.Code != http.StatusBadRequest || resp.Error == nil {
		t.Fatalf("missing remove: status = %d error = %+v", recorder.Code, resp.Error)
	}
}

func TestAdminWithdrawMovesRevenue(t *testing.T) {
	env := newRPCEnv(t)
	env.seedSale(t)

	// Route payments into the sale account so they are withdrawable.
	if _, resp := env.call(t, testAdminToken, "saleAdmin_setRecipient", hex(env.saleAccount)); resp.Error != nil {
		t.Fatalf("set recipient: %+v", resp.Error)
	}

	if _, resp := env.call(t, "", "sale_purchase", map[string]string{
		"buyer":  hex(env.buyer),
		"asset":  hex(env.usd),
		"amount": "1000000",
	}); resp.Error != nil {
		t.Fatalf("purchase: %+v", resp.Error)
	}

	treasury := testAddr(0xf0)
	if _, resp := env.call(t, testAdminToken, "saleAdmin_withdraw", map[string]string{
		"asset":     hex(env.usd),
		"recipient": hex(treasury),
	}); resp.Error != nil {
		t.Fatalf("withdraw: %+v", resp.Error)
	}

	balance, err := env.node.Bank().BalanceOf(env.usd, env.saleAccount)
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if balance.Sign() != 0 {
		t.Fatalf("sale account balance = %s", balance)
	}
	moved, err := env.node.Bank().BalanceOf(env.usd, treasury)
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if moved.String() != "1000000" {
		t.Fatalf("treasury balance = %s", moved)
	}
}

func TestPurchaseFailureLogRedactsBuyer(t *testing.T) {
	env := newRPCEnv(t)
	env.seedSale(t)
	if err := env.node.SaleSetWhitelistRequired(true); err != nil {
		t.Fatalf("set whitelist: %v", err)
	}
	var logBuf bytes.Buffer
	env.server = NewServer(env.node,
		WithRateLimit(1000, 1000),
		WithLogger(slog.New(slog.NewTextHandler(&logBuf, nil))),
	)

	recorder, _ := env.call(t, "", "sale_purchase", map[string]string{
		"buyer":   hex(env.buyer),
		"asset":   hex(env.usd),
		"amount":  "1000000",
		"orderId": "order-masked",
	})
	if recorder.Code != http.StatusForbidden {
		t.Fatalf("status = %d", recorder.Code)
	}

	logged := logBuf.String()
	if !strings.Contains(logged, "purchase rejected") || !strings.Contains(logged, "reason=not_whitelisted") {
		t.Fatalf("log = %q", logged)
	}
	if !strings.Contains(logged, logging.RedactedValue) {
		t.Fatalf("buyer not redacted: %q", logged)
	}
	if strings.Contains(logged, hex(env.buyer)) || strings.Contains(logged, "order-masked") {
		t.Fatalf("sensitive fields leaked: %q", logged)
	}
}
