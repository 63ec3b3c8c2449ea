package rpc

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"tokensale/native/sale"
)

func (s *Server) writeAdminError(w http.ResponseWriter, id interface{}, err error) {
	switch {
	case errors.Is(err, sale.ErrZeroRate),
		errors.Is(err, sale.ErrZeroThreshold),
		errors.Is(err, sale.ErrInvalidRecipient),
		errors.Is(err, sale.ErrDecimalsOutOfRange),
		errors.Is(err, sale.ErrInvalidWindow),
		errors.Is(err, sale.ErrAssetNotRegistered),
		errors.Is(err, sale.ErrBaseRateNotSet),
		errors.Is(err, sale.ErrBaseAssetNotAllowed),
		errors.Is(err, sale.ErrAlreadyWhitelisted),
		errors.Is(err, sale.ErrNotInWhitelist),
		errors.Is(err, sale.ErrFeedUnknown),
		errors.Is(err, sale.ErrOracleInvalid),
		errors.Is(err, sale.ErrOracleNotConfigured),
		errors.Is(err, sale.ErrAmountZero):
		writeError(w, http.StatusBadRequest, id, codeInvalidParams, err.Error(), nil)
	case errors.Is(err, sale.ErrReentrantCall):
		writeError(w, http.StatusTooManyRequests, id, codeRateLimited, err.Error(), nil)
	default:
		writeError(w, http.StatusInternalServerError, id, codeServerError, "admin operation failed", err.Error())
	}
}

func decodePayload(w http.ResponseWriter, req *RPCRequest, out interface{}) bool {
	if len(req.Params) != 1 {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "expected payload", nil)
		return false
	}
	if err := json.Unmarshal(req.Params[0], out); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid payload", err.Error())
		return false
	}
	return true
}

func ackResult(w http.ResponseWriter, id interface{}) {
	writeResult(w, id, map[string]bool{"ok": true})
}

func (s *Server) handleAdminRegisterAsset(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var payload struct {
		Asset    string `json:"asset"`
		Rate     string `json:"rate"`
		Decimals uint8  `json:"decimals"`
	}
	if !decodePayload(w, req, &payload) {
		return
	}
	asset, err := parseAddress(payload.Asset)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid asset", err.Error())
		return
	}
	rate, err := parseAmount(payload.Rate)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid rate", err.Error())
		return
	}
	if err := s.node.SaleRegisterAsset(asset, rate, payload.Decimals); err != nil {
		s.writeAdminError(w, req.ID, err)
		return
	}
	ackResult(w, req.ID)
}

func (s *Server) handleAdminRemoveAsset(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	asset, ok := s.addressParam(w, req, "asset")
	if !ok {
		return
	}
	if err := s.node.SaleRemoveAsset(asset); err != nil {
		s.writeAdminError(w, req.ID, err)
		return
	}
	ackResult(w, req.ID)
}

func (s *Server) handleAdminSetAssetRate(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var payload struct {
		Asset string `json:"asset"`
		Rate  string `json:"rate"`
	}
	if !decodePayload(w, req, &payload) {
		return
	}
	asset, err := parseAddress(payload.Asset)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid asset", err.Error())
		return
	}
	rate, err := parseAmount(payload.Rate)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid rate", err.Error())
		return
	}
	if err := s.node.SaleSetAssetRate(asset, rate); err != nil {
		s.writeAdminError(w, req.ID, err)
		return
	}
	ackResult(w, req.ID)
}

func (s *Server) handleAdminConfigureOracle(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var payload struct {
		Asset            string `json:"asset"`
		Feed             string `json:"feed"`
		StalenessSeconds uint64 `json:"stalenessSeconds,omitempty"`
	}
	if !decodePayload(w, req, &payload) {
		return
	}
	asset, err := parseAddress(payload.Asset)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid asset", err.Error())
		return
	}
	if strings.TrimSpace(payload.Feed) == "" {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "feed required", nil)
		return
	}
	if err := s.node.SaleConfigureOracle(asset, payload.Feed, payload.StalenessSeconds); err != nil {
		s.writeAdminError(w, req.ID, err)
		return
	}
	ackResult(w, req.ID)
}

func (s *Server) handleAdminRemoveOracle(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	asset, ok := s.addressParam(w, req, "asset")
	if !ok {
		return
	}
	if err := s.node.SaleRemoveOracle(asset); err != nil {
		s.writeAdminError(w, req.ID, err)
		return
	}
	ackResult(w, req.ID)
}

func (s *Server) handleAdminSetOracleEnabled(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var payload struct {
		Asset   string `json:"asset"`
		Enabled bool   `json:"enabled"`
	}
	if !decodePayload(w, req, &payload) {
		return
	}
	asset, err := parseAddress(payload.Asset)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid asset", err.Error())
		return
	}
	if err := s.node.SaleSetOracleEnabled(asset, payload.Enabled); err != nil {
		s.writeAdminError(w, req.ID, err)
		return
	}
	ackResult(w, req.ID)
}

func (s *Server) handleAdminSetStaleness(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var payload struct {
		Asset   string `json:"asset"`
		Seconds uint64 `json:"seconds"`
	}
	if !decodePayload(w, req, &payload) {
		return
	}
	asset, err := parseAddress(payload.Asset)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid asset", err.Error())
		return
	}
	if err := s.node.SaleSetStaleness(asset, payload.Seconds); err != nil {
		s.writeAdminError(w, req.ID, err)
		return
	}
	ackResult(w, req.ID)
}

func (s *Server) handleAdminSetDefaultStaleness(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var payload struct {
		Seconds uint64 `json:"seconds"`
	}
	if !decodePayload(w, req, &payload) {
		return
	}
	if err := s.node.SaleSetDefaultStaleness(payload.Seconds); err != nil {
		s.writeAdminError(w, req.ID, err)
		return
	}
	ackResult(w, req.ID)
}

func (s *Server) handleAdminSetBase(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var payload struct {
		Asset string `json:"asset"`
		Rate  string `json:"rate"`
	}
	if !decodePayload(w, req, &payload) {
		return
	}
	asset, err := parseAddress(payload.Asset)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid asset", err.Error())
		return
	}
	rate, err := parseAmount(payload.Rate)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid rate", err.Error())
		return
	}
	if err := s.node.SaleSetBase(asset, rate); err != nil {
		s.writeAdminError(w, req.ID, err)
		return
	}
	ackResult(w, req.ID)
}

func (s *Server) handleAdminUpdateBaseRate(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var payload struct {
		Rate string `json:"rate"`
	}
	if !decodePayload(w, req, &payload) {
		return
	}
	rate, err := parseAmount(payload.Rate)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid rate", err.Error())
		return
	}
	if err := s.node.SaleUpdateBaseRate(rate); err != nil {
		s.writeAdminError(w, req.ID, err)
		return
	}
	ackResult(w, req.ID)
}

func (s *Server) handleAdminSetLimits(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var payload struct {
		HardCap          string `json:"hardCap,omitempty"`
		MinPurchase      string `json:"minPurchase,omitempty"`
		GlobalMaxPerUser string `json:"globalMaxPerUser,omitempty"`
	}
	if !decodePayload(w, req, &payload) {
		return
	}
	hardCap, err := parseOptionalAmount(payload.HardCap)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid hardCap", err.Error())
		return
	}
	minPurchase, err := parseOptionalAmount(payload.MinPurchase)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid minPurchase", err.Error())
		return
	}
	maxPerUser, err := parseOptionalAmount(payload.GlobalMaxPerUser)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid globalMaxPerUser", err.Error())
		return
	}
	if err := s.node.SaleSetLimits(hardCap, minPurchase, maxPerUser); err != nil {
		s.writeAdminError(w, req.ID, err)
		return
	}
	ackResult(w, req.ID)
}

func (s *Server) handleAdminSetUserCap(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var payload struct {
		Account string `json:"account"`
		Cap     string `json:"cap,omitempty"`
	}
	if !decodePayload(w, req, &payload) {
		return
	}
	account, err := parseAddress(payload.Account)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid account", err.Error())
		return
	}
	cap, err := parseOptionalAmount(payload.Cap)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid cap", err.Error())
		return
	}
	if err := s.node.SaleSetUserCap(account, cap); err != nil {
		s.writeAdminError(w, req.ID, err)
		return
	}
	ackResult(w, req.ID)
}

func (s *Server) handleAdminSetWindow(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var payload struct {
		Start uint64 `json:"start"`
		End   uint64 `json:"end"`
	}
	if !decodePayload(w, req, &payload) {
		return
	}
	if err := s.node.SaleSetWindow(payload.Start, payload.End); err != nil {
		s.writeAdminError(w, req.ID, err)
		return
	}
	ackResult(w, req.ID)
}

func (s *Server) handleAdminConfigure(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var payload struct {
		HardCap          string `json:"hardCap,omitempty"`
		MinPurchase      string `json:"minPurchase,omitempty"`
		GlobalMaxPerUser string `json:"globalMaxPerUser,omitempty"`
		Start            uint64 `json:"start"`
		End              uint64 `json:"end"`
	}
	if !decodePayload(w, req, &payload) {
		return
	}
	hardCap, err := parseOptionalAmount(payload.HardCap)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid hardCap", err.Error())
		return
	}
	minPurchase, err := parseOptionalAmount(payload.MinPurchase)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid minPurchase", err.Error())
		return
	}
	maxPerUser, err := parseOptionalAmount(payload.GlobalMaxPerUser)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid globalMaxPerUser", err.Error())
		return
	}
	if err := s.node.SaleConfigure(hardCap, minPurchase, maxPerUser, payload.Start, payload.End); err != nil {
		s.writeAdminError(w, req.ID, err)
		return
	}
	ackResult(w, req.ID)
}

func (s *Server) handleAdminPause(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	if err := s.node.SalePause(); err != nil {
		s.writeAdminError(w, req.ID, err)
		return
	}
	ackResult(w, req.ID)
}

func (s *Server) handleAdminResume(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	if err := s.node.SaleResume(); err != nil {
		s.writeAdminError(w, req.ID, err)
		return
	}
	ackResult(w, req.ID)
}

func (s *Server) handleAdminSetRecipient(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	recipient, ok := s.addressParam(w, req, "recipient")
	if !ok {
		return
	}
	if err := s.node.SaleSetRecipient(recipient); err != nil {
		s.writeAdminError(w, req.ID, err)
		return
	}
	ackResult(w, req.ID)
}

func (s *Server) handleAdminSetWhitelistRequired(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var payload struct {
		Required bool `json:"required"`
	}
	if !decodePayload(w, req, &payload) {
		return
	}
	if err := s.node.SaleSetWhitelistRequired(payload.Required); err != nil {
		s.writeAdminError(w, req.ID, err)
		return
	}
	ackResult(w, req.ID)
}

func (s *Server) handleAdminWhitelistAdd(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	account, ok := s.addressParam(w, req, "account")
	if !ok {
		return
	}
	if err := s.node.SaleWhitelistAdd(account); err != nil {
		s.writeAdminError(w, req.ID, err)
		return
	}
	ackResult(w, req.ID)
}

func (s *Server) handleAdminWhitelistRemove(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	account, ok := s.addressParam(w, req, "account")
	if !ok {
		return
	}
	if err := s.node.SaleWhitelistRemove(account); err != nil {
		s.writeAdminError(w, req.ID, err)
		return
	}
	ackResult(w, req.ID)
}

func (s *Server) handleAdminWithdraw(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var payload struct {
		Asset     string `json:"asset"`
		Amount    string `json:"amount,omitempty"`
		Recipient string `json:"recipient"`
	}
	if !decodePayload(w, req, &payload) {
		return
	}
	asset, err := parseAddress(payload.Asset)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid asset", err.Error())
		return
	}
	recipient, err := parseAddress(payload.Recipient)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid recipient", err.Error())
		return
	}
	amount, err := parseOptionalAmount(payload.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid amount", err.Error())
		return
	}
	if err := s.node.SaleWithdraw(asset, amount, recipient); err != nil {
		s.writeAdminError(w, req.ID, err)
		return
	}
	ackResult(w, req.ID)
}
