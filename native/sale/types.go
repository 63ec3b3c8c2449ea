package sale

import "math/big"

// NativeAsset is the reserved identifier for the chain's native currency.
// Registering it makes native-currency purchases eligible.
var NativeAsset = [20]byte{
	0xee, 0xee, 0xee, 0xee, 0xee, 0xee, 0xee, 0xee, 0xee, 0xee,
	0xee, 0xee, 0xee, 0xee, 0xee, 0xee, 0xee, 0xee, 0xee, 0xee,
}

const (
	// SaleAssetDecimals is the fixed unit scale of the issued sale asset.
	SaleAssetDecimals = 18
	// MaxPaymentDecimals bounds the accepted unit scale of payment assets.
	MaxPaymentDecimals = 18
	// DefaultStalenessSeconds is the process-wide oracle freshness window
	// applied when no override is configured.
	DefaultStalenessSeconds uint64 = 24 * 60 * 60
)

// AssetConfig describes a registered payment asset. Rate is expressed in
// sale-asset units (18 implied decimals) issuable per one unit of the
// payment asset, and is meaningful only while Allowed is true.
type AssetConfig struct {
	Allowed  bool
	Rate     *big.Int
	Decimals uint8
}

// Copy returns a deep copy to shield callers from shared pointers.
func (c AssetConfig) Copy() AssetConfig {
	clone := AssetConfig{Allowed: c.Allowed, Decimals: c.Decimals}
	if c.Rate != nil {
		clone.Rate = new(big.Int).Set(c.Rate)
	} else {
		clone.Rate = big.NewInt(0)
	}
	return clone
}

// OracleBinding associates a payment asset with a registered price feed.
// StalenessSeconds of zero means the process-wide default applies.
type OracleBinding struct {
	FeedID           string
	Enabled          bool
	StalenessSeconds uint64
}

// BaseRate designates the payment asset whose fixed rate anchors all
// oracle-derived cross rates.
type BaseRate struct {
	Asset [20]byte
	Rate  *big.Int
}

// Copy returns a deep copy.
func (b BaseRate) Copy() BaseRate {
	clone := BaseRate{Asset: b.Asset}
	if b.Rate != nil {
		clone.Rate = new(big.Int).Set(b.Rate)
	} else {
		clone.Rate = big.NewInt(0)
	}
	return clone
}

// SalePolicy is the singleton sale configuration. Zero values mean
// "unbounded" for caps and "unset" for window boundaries.
type SalePolicy struct {
	WhitelistRequired bool
	HardCap           *big.Int
	MinPurchase       *big.Int
	GlobalMaxPerUser  *big.Int
	SaleStart         uint64
	SaleEnd           uint64
	Paused            bool
	Recipient         [20]byte
}

// Copy returns a deep copy.
func (p SalePolicy) Copy() SalePolicy {
	clone := p
	clone.HardCap = copyOrZero(p.HardCap)
	clone.MinPurchase = copyOrZero(p.MinPurchase)
	clone.GlobalMaxPerUser = copyOrZero(p.GlobalMaxPerUser)
	return clone
}

func copyOrZero(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(v)
}

// PurchaseReceipt is the externally observable record of a successful
// purchase.
type PurchaseReceipt struct {
	ReceiptID     string
	OrderID       string
	Buyer         [20]byte
	PaymentAsset  [20]byte
	PaymentAmount *big.Int
	IssuedAmount  *big.Int
	Rate          *big.Int
	Timestamp     uint64
}

// Copy returns a deep copy to avoid callers mutating shared pointers.
func (r *PurchaseReceipt) Copy() *PurchaseReceipt {
	if r == nil {
		return nil
	}
	clone := *r
	clone.PaymentAmount = copyOrZero(r.PaymentAmount)
	clone.IssuedAmount = copyOrZero(r.IssuedAmount)
	clone.Rate = copyOrZero(r.Rate)
	return &clone
}

// SaleStats aggregates the ledger totals for operator dashboards.
type SaleStats struct {
	TotalIssued  *big.Int
	TotalRevenue *big.Int
	Purchases    uint64
}

// Copy returns a deep copy.
func (s SaleStats) Copy() SaleStats {
	return SaleStats{
		TotalIssued:  copyOrZero(s.TotalIssued),
		TotalRevenue: copyOrZero(s.TotalRevenue),
		Purchases:    s.Purchases,
	}
}
