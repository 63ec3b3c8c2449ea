package rpc

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"tokensale/native/sale"
	"tokensale/observability/logging"
)

type ReceiptResult struct {
	ReceiptID     string `json:"receiptId"`
	OrderID       string `json:"orderId,omitempty"`
	Buyer         string `json:"buyer"`
	PaymentAsset  string `json:"paymentAsset"`
	PaymentAmount string `json:"paymentAmount"`
	IssuedAmount  string `json:"issuedAmount"`
	Rate          string `json:"rate"`
	Timestamp     uint64 `json:"timestamp"`
}

func receiptResult(receipt *sale.PurchaseReceipt) ReceiptResult {
	return ReceiptResult{
		ReceiptID:     receipt.ReceiptID,
		OrderID:       receipt.OrderID,
		Buyer:         addrHex(receipt.Buyer),
		PaymentAsset:  addrHex(receipt.PaymentAsset),
		PaymentAmount: bigString(receipt.PaymentAmount),
		IssuedAmount:  bigString(receipt.IssuedAmount),
		Rate:          bigString(receipt.Rate),
		Timestamp:     receipt.Timestamp,
	}
}

type QuoteResult struct {
	Rate     string `json:"rate"`
	Decimals uint8  `json:"decimals"`
	Source   string `json:"source"`
}

type StatsResult struct {
	TotalIssued  string `json:"totalIssued"`
	TotalRevenue string `json:"totalRevenue"`
	Purchases    uint64 `json:"purchases"`
}

type FeedHealthResult struct {
	ID           string `json:"id"`
	Description  string `json:"description,omitempty"`
	LastAnswer   string `json:"lastAnswer,omitempty"`
	LastUpdated  int64  `json:"lastUpdated,omitempty"`
	ProbeFailure string `json:"probeFailure,omitempty"`
}

func purchaseFailureReason(err error) string {
	switch {
	case errors.Is(err, sale.ErrPaused):
		return "paused"
	case errors.Is(err, sale.ErrNotWhitelisted):
		return "not_whitelisted"
	case errors.Is(err, sale.ErrAssetNotAllowed):
		return "asset_not_allowed"
	case errors.Is(err, sale.ErrAmountZero):
		return "amount_zero"
	case errors.Is(err, sale.ErrSaleNotStarted):
		return "not_started"
	case errors.Is(err, sale.ErrSaleEnded):
		return "ended"
	case errors.Is(err, sale.ErrOrderIDUsed):
		return "order_id_used"
	case errors.Is(err, sale.ErrInsufficientPayment):
		return "insufficient_payment"
	case errors.Is(err, sale.ErrBelowMinimum):
		return "below_minimum"
	case errors.Is(err, sale.ErrHardCapExceeded):
		return "hard_cap"
	case errors.Is(err, sale.ErrUserCapExceeded):
		return "user_cap"
	case errors.Is(err, sale.ErrReentrantCall):
		return "reentrant"
	case errors.Is(err, sale.ErrRecipientNotSet):
		return "recipient_unset"
	default:
		return "internal"
	}
}

func (s *Server) writePurchaseError(w http.ResponseWriter, id interface{}, buyer, orderID string, err error) {
	reason := purchaseFailureReason(err)
	s.metrics.ObservePurchaseFailure(reason)
	// Buyer addresses and caller-chosen order ids are not allowlisted for
	// log output; they pass through the redaction mask.
	s.logger.Warn("purchase rejected",
		"reason", reason,
		logging.MaskField("buyer", buyer),
		logging.MaskField("orderId", orderID),
	)
	switch {
	case errors.Is(err, sale.ErrOrderIDUsed):
		writeError(w, http.StatusConflict, id, codeDuplicateID, err.Error(), orderID)
	case errors.Is(err, sale.ErrNotWhitelisted):
		writeError(w, http.StatusForbidden, id, codeUnauthorized, err.Error(), nil)
	case errors.Is(err, sale.ErrPaused),
		errors.Is(err, sale.ErrAssetNotAllowed),
		errors.Is(err, sale.ErrAmountZero),
		errors.Is(err, sale.ErrSaleNotStarted),
		errors.Is(err, sale.ErrSaleEnded),
		errors.Is(err, sale.ErrInsufficientPayment),
		errors.Is(err, sale.ErrBelowMinimum),
		errors.Is(err, sale.ErrHardCapExceeded),
		errors.Is(err, sale.ErrUserCapExceeded):
		writeError(w, http.StatusBadRequest, id, codeInvalidParams, err.Error(), nil)
	case errors.Is(err, sale.ErrReentrantCall):
		writeError(w, http.StatusTooManyRequests, id, codeRateLimited, err.Error(), nil)
	default:
		writeError(w, http.StatusInternalServerError, id, codeServerError, "purchase failed", err.Error())
	}
}

func (s *Server) handleSalePurchase(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	if len(req.Params) != 1 {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "expected purchase payload", nil)
		return
	}
	var payload struct {
		Buyer   string `json:"buyer"`
		Asset   string `json:"asset"`
		Amount  string `json:"amount"`
		OrderID string `json:"orderId,omitempty"`
	}
	if err := json.Unmarshal(req.Params[0], &payload); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid payload", err.Error())
		return
	}
	buyer, err := parseAddress(payload.Buyer)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid buyer", err.Error())
		return
	}
	asset, err := parseAddress(payload.Asset)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid asset", err.Error())
		return
	}
	amount, err := parseAmount(payload.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid amount", err.Error())
		return
	}
	receipt, err := s.node.SalePurchase(buyer, asset, amount, strings.TrimSpace(payload.OrderID))
	if err != nil {
		s.writePurchaseError(w, req.ID, payload.Buyer, payload.OrderID, err)
		return
	}
	writeResult(w, req.ID, receiptResult(receipt))
}

func (s *Server) handleSalePurchaseNative(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	if len(req.Params) != 1 {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "expected purchase payload", nil)
		return
	}
	var payload struct {
		Buyer   string `json:"buyer"`
		Value   string `json:"value"`
		OrderID string `json:"orderId,omitempty"`
	}
	if err := json.Unmarshal(req.Params[0], &payload); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid payload", err.Error())
		return
	}
	buyer, err := parseAddress(payload.Buyer)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid buyer", err.Error())
		return
	}
	value, err := parseAmount(payload.Value)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid value", err.Error())
		return
	}
	receipt, err := s.node.SalePurchaseNative(buyer, value, strings.TrimSpace(payload.OrderID))
	if err != nil {
		s.writePurchaseError(w, req.ID, payload.Buyer, payload.OrderID, err)
		return
	}
	writeResult(w, req.ID, receiptResult(receipt))
}

func (s *Server) handleSaleQuote(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	asset, ok := s.addressParam(w, req, "asset")
	if !ok {
		return
	}
	quote, err := s.node.SaleQuote(asset)
	if err != nil {
		writeError(w, http.StatusInternalServerError, req.ID, codeServerError, "quote failed", err.Error())
		return
	}
	writeResult(w, req.ID, QuoteResult{
		Rate:     bigString(quote.Rate),
		Decimals: quote.Decimals,
		Source:   string(quote.Source),
	})
}

func (s *Server) handleSaleCrossRate(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	asset, ok := s.addressParam(w, req, "asset")
	if !ok {
		return
	}
	cross, err := s.node.SaleCrossRate(asset)
	if err != nil {
		switch {
		case errors.Is(err, sale.ErrOracleNotConfigured),
			errors.Is(err, sale.ErrOracleStale),
			errors.Is(err, sale.ErrOraclePriceInvalid),
			errors.Is(err, sale.ErrOracleUnavailable),
			errors.Is(err, sale.ErrCrossRateZero):
			writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		default:
			writeError(w, http.StatusInternalServerError, req.ID, codeServerError, "cross rate failed", err.Error())
		}
		return
	}
	writeResult(w, req.ID, map[string]string{"rate": bigString(cross)})
}

func (s *Server) handleSaleStats(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	stats, err := s.node.SaleStats()
	if err != nil {
		writeError(w, http.StatusInternalServerError, req.ID, codeServerError, "stats failed", err.Error())
		return
	}
	writeResult(w, req.ID, StatsResult{
		TotalIssued:  bigString(stats.TotalIssued),
		TotalRevenue: bigString(stats.TotalRevenue),
		Purchases:    stats.Purchases,
	})
}

func (s *Server) handleSaleReceipt(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	receiptID, ok := s.stringParam(w, req, "receiptId")
	if !ok {
		return
	}
	receipt, found, err := s.node.SaleReceipt(receiptID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, req.ID, codeServerError, "receipt lookup failed", err.Error())
		return
	}
	if !found {
		writeError(w, http.StatusNotFound, req.ID, codeInvalidParams, "receipt not found", receiptID)
		return
	}
	writeResult(w, req.ID, receiptResult(receipt))
}

func (s *Server) handleSaleReceiptByOrder(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	orderID, ok := s.stringParam(w, req, "orderId")
	if !ok {
		return
	}
	receipt, found, err := s.node.SaleReceiptByOrder(orderID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, req.ID, codeServerError, "receipt lookup failed", err.Error())
		return
	}
	if !found {
		writeError(w, http.StatusNotFound, req.ID, codeInvalidParams, "order not found", orderID)
		return
	}
	writeResult(w, req.ID, receiptResult(receipt))
}

func (s *Server) handleSaleUserPurchases(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	account, ok := s.addressParam(w, req, "account")
	if !ok {
		return
	}
	receipts, total, err := s.node.SaleUserPurchases(account)
	if err != nil {
		writeError(w, http.StatusInternalServerError, req.ID, codeServerError, "user purchases failed", err.Error())
		return
	}
	results := make([]ReceiptResult, 0, len(receipts))
	for _, receipt := range receipts {
		results = append(results, receiptResult(receipt))
	}
	writeResult(w, req.ID, map[string]interface{}{
		"account":      addrHex(account),
		"totalIssued":  bigString(total),
		"receipts":     results,
		"receiptCount": len(results),
	})
}

func (s *Server) handleSaleAsset(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	asset, ok := s.addressParam(w, req, "asset")
	if !ok {
		return
	}
	cfg, found, err := s.node.SaleAsset(asset)
	if err != nil {
		writeError(w, http.StatusInternalServerError, req.ID, codeServerError, "asset lookup failed", err.Error())
		return
	}
	if !found {
		writeError(w, http.StatusNotFound, req.ID, codeInvalidParams, "asset not registered", addrHex(asset))
		return
	}
	writeResult(w, req.ID, map[string]interface{}{
		"asset":    addrHex(asset),
		"allowed":  cfg.Allowed,
		"rate":     bigString(cfg.Rate),
		"decimals": cfg.Decimals,
	})
}

func (s *Server) handleSalePolicy(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	policy, err := s.node.SalePolicy()
	if err != nil {
		writeError(w, http.StatusInternalServerError, req.ID, codeServerError, "policy lookup failed", err.Error())
		return
	}
	writeResult(w, req.ID, map[string]interface{}{
		"whitelistRequired": policy.WhitelistRequired,
		"hardCap":           bigString(policy.HardCap),
		"minPurchase":       bigString(policy.MinPurchase),
		"globalMaxPerUser":  bigString(policy.GlobalMaxPerUser),
		"saleStart":         policy.SaleStart,
		"saleEnd":           policy.SaleEnd,
		"paused":            policy.Paused,
		"recipient":         addrHex(policy.Recipient),
	})
}

func (s *Server) handleSaleFeedHealth(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	health := s.node.SaleFeedHealth()
	results := make([]FeedHealthResult, 0, len(health))
	for _, entry := range health {
		result := FeedHealthResult{
			ID:           entry.ID,
			Description:  entry.Description,
			LastUpdated:  entry.LastUpdated,
			ProbeFailure: entry.ProbeFailure,
		}
		if entry.LastAnswer != nil {
			result.LastAnswer = entry.LastAnswer.String()
		}
		results = append(results, result)
	}
	writeResult(w, req.ID, results)
}

// addressParam decodes a single-address parameter given either as a bare
// string or as {"<field>": "0x.."}.
func (s *Server) addressParam(w http.ResponseWriter, req *RPCRequest, field string) ([20]byte, bool) {
	raw, ok := s.stringParam(w, req, field)
	if !ok {
		return [20]byte{}, false
	}
	addr, err := parseAddress(raw)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid "+field, err.Error())
		return [20]byte{}, false
	}
	return addr, true
}

func (s *Server) stringParam(w http.ResponseWriter, req *RPCRequest, field string) (string, bool) {
	if len(req.Params) != 1 {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "expected "+field, nil)
		return "", false
	}
	var direct string
	if err := json.Unmarshal(req.Params[0], &direct); err == nil {
		return strings.TrimSpace(direct), true
	}
	var wrapper map[string]string
	if err := json.Unmarshal(req.Params[0], &wrapper); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid "+field, nil)
		return "", false
	}
	return strings.TrimSpace(wrapper[field]), true
}
