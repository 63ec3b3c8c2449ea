package events

import (
	"math/big"
	"strconv"
	"strings"

	ethcommon "github.com/ethereum/go-ethereum/common"
)

// Event type identifiers emitted by the sale engine. Exactly one event is
// emitted per successful mutating operation, never on a failed one.
const (
	TypeSalePurchased           = "sale.purchased"
	TypeSaleAssetRegistered     = "sale.asset_registered"
	TypeSaleAssetRemoved        = "sale.asset_removed"
	TypeSaleRateUpdated         = "sale.rate_updated"
	TypeSaleOracleConfigured    = "sale.oracle_configured"
	TypeSaleOracleRemoved       = "sale.oracle_removed"
	TypeSaleOracleStatusChanged = "sale.oracle_status_changed"
	TypeSaleStalenessUpdated    = "sale.staleness_updated"
	TypeSaleBaseRateUpdated     = "sale.base_rate_updated"
	TypeSaleLimitsUpdated       = "sale.limits_updated"
	TypeSaleUserCapUpdated      = "sale.user_cap_updated"
	TypeSaleWindowUpdated       = "sale.window_updated"
	TypeSalePaused              = "sale.paused"
	TypeSaleResumed             = "sale.resumed"
	TypeSaleRecipientUpdated    = "sale.recipient_updated"
	TypeSaleWhitelistRequired   = "sale.whitelist_required"
	TypeSaleWhitelistAdded      = "sale.whitelist_added"
	TypeSaleWhitelistRemoved    = "sale.whitelist_removed"
	TypeSaleWithdrawn           = "sale.withdrawn"
)

func addrHex(addr [20]byte) string {
	return strings.ToLower(ethcommon.BytesToAddress(addr[:]).Hex())
}

func bigString(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

// SalePurchased is the externally observable purchase record.
type SalePurchased struct {
	Buyer         [20]byte
	PaymentAsset  [20]byte
	PaymentAmount *big.Int
	IssuedAmount  *big.Int
	Rate          *big.Int
	OrderID       string
}

func (SalePurchased) EventType() string { return TypeSalePurchased }

func (e SalePurchased) Record() *Record {
	return &Record{
		Type: TypeSalePurchased,
		Attributes: map[string]string{
			"buyer":         addrHex(e.Buyer),
			"paymentAsset":  addrHex(e.PaymentAsset),
			"paymentAmount": bigString(e.PaymentAmount),
			"issuedAmount":  bigString(e.IssuedAmount),
			"rate":          bigString(e.Rate),
			"orderId":       strings.TrimSpace(e.OrderID),
		},
	}
}

// SaleAssetRegistered marks a payment asset joining the accepted registry.
type SaleAssetRegistered struct {
	Asset    [20]byte
	Rate     *big.Int
	Decimals uint8
}

func (SaleAssetRegistered) EventType() string { return TypeSaleAssetRegistered }

func (e SaleAssetRegistered) Record() *Record {
	return &Record{
		Type: TypeSaleAssetRegistered,
		Attributes: map[string]string{
			"asset":    addrHex(e.Asset),
			"rate":     bigString(e.Rate),
			"decimals": strconv.FormatUint(uint64(e.Decimals), 10),
		},
	}
}

// SaleAssetRemoved marks a payment asset leaving the accepted registry.
type SaleAssetRemoved struct {
	Asset [20]byte
}

func (SaleAssetRemoved) EventType() string { return TypeSaleAssetRemoved }

func (e SaleAssetRemoved) Record() *Record {
	return &Record{
		Type:       TypeSaleAssetRemoved,
		Attributes: map[string]string{"asset": addrHex(e.Asset)},
	}
}

// SaleRateUpdated records a manual rate change for a registered asset.
type SaleRateUpdated struct {
	Asset   [20]byte
	OldRate *big.Int
	NewRate *big.Int
}

func (SaleRateUpdated) EventType() string { return TypeSaleRateUpdated }

func (e SaleRateUpdated) Record() *Record {
	return &Record{
		Type: TypeSaleRateUpdated,
		Attributes: map[string]string{
			"asset":   addrHex(e.Asset),
			"oldRate": bigString(e.OldRate),
			"newRate": bigString(e.NewRate),
		},
	}
}

// SaleOracleConfigured records a feed binding for a payment asset.
type SaleOracleConfigured struct {
	Asset            [20]byte
	Feed             string
	StalenessSeconds uint64
}

func (SaleOracleConfigured) EventType() string { return TypeSaleOracleConfigured }

func (e SaleOracleConfigured) Record() *Record {
	return &Record{
		Type: TypeSaleOracleConfigured,
		Attributes: map[string]string{
			"asset":            addrHex(e.Asset),
			"feed":             strings.TrimSpace(e.Feed),
			"stalenessSeconds": strconv.FormatUint(e.StalenessSeconds, 10),
		},
	}
}

// SaleOracleRemoved records an oracle binding being dropped.
type SaleOracleRemoved struct {
	Asset [20]byte
}

func (SaleOracleRemoved) EventType() string { return TypeSaleOracleRemoved }

func (e SaleOracleRemoved) Record() *Record {
	return &Record{
		Type:       TypeSaleOracleRemoved,
		Attributes: map[string]string{"asset": addrHex(e.Asset)},
	}
}

// SaleOracleStatusChanged records an oracle binding being enabled or disabled.
type SaleOracleStatusChanged struct {
	Asset   [20]byte
	Enabled bool
}

func (SaleOracleStatusChanged) EventType() string { return TypeSaleOracleStatusChanged }

func (e SaleOracleStatusChanged) Record() *Record {
	return &Record{
		Type: TypeSaleOracleStatusChanged,
		Attributes: map[string]string{
			"asset":   addrHex(e.Asset),
			"enabled": strconv.FormatBool(e.Enabled),
		},
	}
}

// SaleStalenessUpdated records a staleness threshold change. A zero asset
// address denotes the process-wide default.
type SaleStalenessUpdated struct {
	Asset      [20]byte
	OldSeconds uint64
	NewSeconds uint64
}

func (SaleStalenessUpdated) EventType() string { return TypeSaleStalenessUpdated }

func (e SaleStalenessUpdated) Record() *Record {
	return &Record{
		Type: TypeSaleStalenessUpdated,
		Attributes: map[string]string{
			"asset":      addrHex(e.Asset),
			"oldSeconds": strconv.FormatUint(e.OldSeconds, 10),
			"newSeconds": strconv.FormatUint(e.NewSeconds, 10),
		},
	}
}

// SaleBaseRateUpdated records the base asset/rate configuration changing.
type SaleBaseRateUpdated struct {
	Asset   [20]byte
	OldRate *big.Int
	NewRate *big.Int
}

func (SaleBaseRateUpdated) EventType() string { return TypeSaleBaseRateUpdated }

func (e SaleBaseRateUpdated) Record() *Record {
	return &Record{
		Type: TypeSaleBaseRateUpdated,
		Attributes: map[string]string{
			"asset":   addrHex(e.Asset),
			"oldRate": bigString(e.OldRate),
			"newRate": bigString(e.NewRate),
		},
	}
}

// SaleLimitsUpdated records changes to the cap configuration, carrying both
// the prior and the new values.
type SaleLimitsUpdated struct {
	OldHardCap          *big.Int
	OldMinPurchase      *big.Int
	OldGlobalMaxPerUser *big.Int
	HardCap             *big.Int
	MinPurchase         *big.Int
	GlobalMaxPerUser    *big.Int
}

func (SaleLimitsUpdated) EventType() string { return TypeSaleLimitsUpdated }

func (e SaleLimitsUpdated) Record() *Record {
	return &Record{
		Type: TypeSaleLimitsUpdated,
		Attributes: map[string]string{
			"oldHardCap":          bigString(e.OldHardCap),
			"oldMinPurchase":      bigString(e.OldMinPurchase),
			"oldGlobalMaxPerUser": bigString(e.OldGlobalMaxPerUser),
			"hardCap":             bigString(e.HardCap),
			"minPurchase":         bigString(e.MinPurchase),
			"globalMaxPerUser":    bigString(e.GlobalMaxPerUser),
		},
	}
}

// SaleUserCapUpdated records a per-user cap override change.
type SaleUserCapUpdated struct {
	Account [20]byte
	OldCap  *big.Int
	NewCap  *big.Int
}

func (SaleUserCapUpdated) EventType() string { return TypeSaleUserCapUpdated }

func (e SaleUserCapUpdated) Record() *Record {
	return &Record{
		Type: TypeSaleUserCapUpdated,
		Attributes: map[string]string{
			"account": addrHex(e.Account),
			"oldCap":  bigString(e.OldCap),
			"newCap":  bigString(e.NewCap),
		},
	}
}

// SaleWindowUpdated records the sale window being reconfigured.
type SaleWindowUpdated struct {
	OldStart, OldEnd int64
	NewStart, NewEnd int64
}

func (SaleWindowUpdated) EventType() string { return TypeSaleWindowUpdated }

func (e SaleWindowUpdated) Record() *Record {
	return &Record{
		Type: TypeSaleWindowUpdated,
		Attributes: map[string]string{
			"oldStart": strconv.FormatInt(e.OldStart, 10),
			"oldEnd":   strconv.FormatInt(e.OldEnd, 10),
			"newStart": strconv.FormatInt(e.NewStart, 10),
			"newEnd":   strconv.FormatInt(e.NewEnd, 10),
		},
	}
}

// SalePaused marks the sale being halted by the operator.
type SalePaused struct{}

func (SalePaused) EventType() string { return TypeSalePaused }

func (SalePaused) Record() *Record {
	return &Record{Type: TypeSalePaused, Attributes: map[string]string{}}
}

// SaleResumed marks the sale being reopened by the operator.
type SaleResumed struct{}

func (SaleResumed) EventType() string { return TypeSaleResumed }

func (SaleResumed) Record() *Record {
	return &Record{Type: TypeSaleResumed, Attributes: map[string]string{}}
}

// SaleRecipientUpdated records the payment recipient changing.
type SaleRecipientUpdated struct {
	OldRecipient [20]byte
	NewRecipient [20]byte
}

func (SaleRecipientUpdated) EventType() string { return TypeSaleRecipientUpdated }

func (e SaleRecipientUpdated) Record() *Record {
	return &Record{
		Type: TypeSaleRecipientUpdated,
		Attributes: map[string]string{
			"oldRecipient": addrHex(e.OldRecipient),
			"newRecipient": addrHex(e.NewRecipient),
		},
	}
}

// SaleWhitelistRequired records the whitelist requirement flag changing.
type SaleWhitelistRequired struct {
	Enabled bool
}

func (SaleWhitelistRequired) EventType() string { return TypeSaleWhitelistRequired }

func (e SaleWhitelistRequired) Record() *Record {
	return &Record{
		Type:       TypeSaleWhitelistRequired,
		Attributes: map[string]string{"enabled": strconv.FormatBool(e.Enabled)},
	}
}

// SaleWhitelistAdded records an account joining the whitelist.
type SaleWhitelistAdded struct {
	Account [20]byte
}

func (SaleWhitelistAdded) EventType() string { return TypeSaleWhitelistAdded }

func (e SaleWhitelistAdded) Record() *Record {
	return &Record{
		Type:       TypeSaleWhitelistAdded,
		Attributes: map[string]string{"account": addrHex(e.Account)},
	}
}

// SaleWhitelistRemoved records an account leaving the whitelist.
type SaleWhitelistRemoved struct {
	Account [20]byte
}

func (SaleWhitelistRemoved) EventType() string { return TypeSaleWhitelistRemoved }

func (e SaleWhitelistRemoved) Record() *Record {
	return &Record{
		Type:       TypeSaleWhitelistRemoved,
		Attributes: map[string]string{"account": addrHex(e.Account)},
	}
}

// SaleWithdrawn records an emergency withdrawal of funds held by the sale.
type SaleWithdrawn struct {
	Asset     [20]byte
	Amount    *big.Int
	Recipient [20]byte
}

func (SaleWithdrawn) EventType() string { return TypeSaleWithdrawn }

func (e SaleWithdrawn) Record() *Record {
	return &Record{
		Type: TypeSaleWithdrawn,
		Attributes: map[string]string{
			"asset":     addrHex(e.Asset),
			"amount":    bigString(e.Amount),
			"recipient": addrHex(e.Recipient),
		},
	}
}
