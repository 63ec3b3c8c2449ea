package sale

import "errors"

// Policy violations reported by the purchase path. Each failed check aborts
// the whole operation with no state change.
var (
	// ErrPaused indicates the sale has been halted by the operator.
	ErrPaused = errors.New("sale: paused")
	// ErrNotWhitelisted indicates the buyer is not on the required whitelist.
	ErrNotWhitelisted = errors.New("sale: buyer not whitelisted")
	// ErrAssetNotAllowed indicates the payment asset is not currently accepted.
	ErrAssetNotAllowed = errors.New("sale: payment asset not allowed")
	// ErrAmountZero indicates the payment amount was zero.
	ErrAmountZero = errors.New("sale: payment amount must be positive")
	// ErrSaleNotStarted indicates the purchase arrived before the sale window opened.
	ErrSaleNotStarted = errors.New("sale: sale not started")
	// ErrSaleEnded indicates the purchase arrived after the sale window closed.
	ErrSaleEnded = errors.New("sale: sale ended")
	// ErrOrderIDUsed indicates the order identifier has already been processed.
	ErrOrderIDUsed = errors.New("sale: order id already used")
	// ErrInsufficientPayment indicates the computed issuance truncated to zero.
	ErrInsufficientPayment = errors.New("sale: insufficient payment")
	// ErrBelowMinimum indicates the issuance fell below the configured minimum purchase.
	ErrBelowMinimum = errors.New("sale: below minimum purchase")
	// ErrHardCapExceeded indicates the issuance would push outstanding supply past the hard cap.
	ErrHardCapExceeded = errors.New("sale: hard cap exceeded")
	// ErrUserCapExceeded indicates the issuance would push the buyer's balance past their cap.
	ErrUserCapExceeded = errors.New("sale: per-user cap exceeded")
	// ErrReentrantCall indicates a mutating entry point was invoked while another was in progress.
	ErrReentrantCall = errors.New("sale: reentrant call")
	// ErrRecipientNotSet indicates no payment recipient has been configured yet.
	ErrRecipientNotSet = errors.New("sale: payment recipient not configured")
)

// Administrative input violations.
var (
	// ErrZeroRate indicates a rate update with a zero value for a registered asset.
	ErrZeroRate = errors.New("sale: rate must be positive")
	// ErrZeroThreshold indicates a staleness threshold update with a zero value.
	ErrZeroThreshold = errors.New("sale: staleness threshold must be positive")
	// ErrInvalidRecipient indicates the payment recipient is the zero account.
	ErrInvalidRecipient = errors.New("sale: invalid recipient")
	// ErrDecimalsOutOfRange indicates an asset registration with decimals above 18.
	ErrDecimalsOutOfRange = errors.New("sale: decimals out of range")
	// ErrInvalidWindow indicates saleStart does not precede saleEnd.
	ErrInvalidWindow = errors.New("sale: start must precede end")
	// ErrAssetNotRegistered indicates the operation targets an unregistered asset.
	ErrAssetNotRegistered = errors.New("sale: asset not registered")
	// ErrBaseRateNotSet indicates a base rate update before any base rate exists.
	ErrBaseRateNotSet = errors.New("sale: base rate not set")
	// ErrBaseAssetNotAllowed indicates the proposed base asset is not an accepted payment asset.
	ErrBaseAssetNotAllowed = errors.New("sale: base asset not allowed")
	// ErrAlreadyWhitelisted indicates an add for an account already on the whitelist.
	ErrAlreadyWhitelisted = errors.New("sale: already whitelisted")
	// ErrNotInWhitelist indicates a removal for an account not on the whitelist.
	ErrNotInWhitelist = errors.New("sale: not in whitelist")
	// ErrFeedUnknown indicates the referenced feed identifier is not registered.
	ErrFeedUnknown = errors.New("sale: unknown price feed")
	// ErrOracleInvalid indicates the feed failed its binding-time probe.
	ErrOracleInvalid = errors.New("sale: oracle invalid")
	// ErrOracleNotConfigured indicates no oracle binding exists for the asset.
	ErrOracleNotConfigured = errors.New("sale: oracle not configured")
)

// Oracle failures surfaced by the cross-rate derivation. The purchase path
// absorbs these via the manual-rate fallback; direct callers observe them.
var (
	// ErrOracleUnavailable indicates a feed could not be queried.
	ErrOracleUnavailable = errors.New("sale: oracle unavailable")
	// ErrOraclePriceInvalid indicates a feed returned a non-positive price or unset timestamp.
	ErrOraclePriceInvalid = errors.New("sale: oracle price invalid")
	// ErrOracleStale indicates a feed sample exceeded the effective staleness threshold.
	ErrOracleStale = errors.New("sale: oracle price stale")
	// ErrCrossRateZero indicates the derived cross rate truncated to zero.
	ErrCrossRateZero = errors.New("sale: derived rate is zero")
)
