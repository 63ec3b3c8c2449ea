package sale

import (
	"fmt"
	"math/big"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"tokensale/core/events"
	nativecommon "tokensale/native/common"
)

// Engine orchestrates purchases and administrative state transitions. All
// mutating entry points are guarded by a non-reentrant latch: a recursive
// call while one is in progress fails outright with ErrReentrantCall.
// Callers that need blocking serialization between goroutines wrap the
// engine (see core.Node).
type Engine struct {
	policy   *PolicyStore
	ledger   *Ledger
	resolver *Resolver
	token    SaleToken
	bank     PaymentBank
	account  [20]byte
	emitter  events.Emitter
	pauses   nativecommon.PauseView
	clock    func() time.Time

	entered atomic.Bool
}

// NewEngine constructs an engine over the supplied stores and collaborators.
// The account identifies the funds held by the sale itself for emergency
// withdrawals.
func NewEngine(policy *PolicyStore, ledger *Ledger, resolver *Resolver, token SaleToken, bank PaymentBank, account [20]byte) *Engine {
	return &Engine{
		policy:   policy,
		ledger:   ledger,
		resolver: resolver,
		token:    token,
		bank:     bank,
		account:  account,
		emitter:  events.NoopEmitter{},
		pauses:   policy,
		clock:    time.Now,
	}
}

// SetEmitter installs the event sink. Events are emitted exactly once per
// successful mutating operation, never on a failed one.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if e == nil || emitter == nil {
		return
	}
	e.emitter = emitter
}

// SetClock overrides the time source, enabling deterministic unit tests.
func (e *Engine) SetClock(clock func() time.Time) {
	if e == nil || clock == nil {
		return
	}
	e.clock = clock
	e.resolver.SetClock(clock)
	e.ledger.SetClock(clock)
}

// Resolver exposes the shared rate resolver for read-only quoting. The read
// path uses the exact same resolution algorithm as the purchase path.
func (e *Engine) Resolver() *Resolver { return e.resolver }

// Ledger exposes the accounting ledger for read-only statistics lookups.
func (e *Engine) Ledger() *Ledger { return e.ledger }

// Policy exposes the policy store for read-only configuration lookups.
func (e *Engine) Policy() *PolicyStore { return e.policy }

func (e *Engine) enter() error {
	if !e.entered.CompareAndSwap(false, true) {
		return ErrReentrantCall
	}
	return nil
}

func (e *Engine) exit() {
	e.entered.Store(false)
}

func (e *Engine) emit(evt events.Event) {
	if e.emitter != nil {
		e.emitter.Emit(evt)
	}
}

// Purchase exchanges paymentAmount of the payment asset for freshly issued
// sale-asset units. orderID is an optional idempotency token; the empty
// string is the "no id" sentinel.
func (e *Engine) Purchase(caller [20]byte, paymentAsset [20]byte, paymentAmount *big.Int, orderID string) (*PurchaseReceipt, error) {
	return e.purchase(caller, paymentAsset, paymentAmount, orderID)
}

// PurchaseNative is the native-currency variant: value is the transferred
// amount. The native asset itself must be registered and allowed.
func (e *Engine) PurchaseNative(caller [20]byte, value *big.Int, orderID string) (*PurchaseReceipt, error) {
	return e.purchase(caller, NativeAsset, value, orderID)
}

func (e *Engine) purchase(caller [20]byte, paymentAsset [20]byte, paymentAmount *big.Int, orderID string) (*PurchaseReceipt, error) {
	if e == nil {
		return nil, fmt.Errorf("sale engine not initialised")
	}
	if err := e.enter(); err != nil {
		return nil, err
	}
	defer e.exit()

	if err := nativecommon.Guard(e.pauses, nativecommon.ModuleSale); err != nil {
		return nil, ErrPaused
	}
	policy, err := e.policy.Policy()
	if err != nil {
		return nil, err
	}
	if policy.WhitelistRequired {
		member, err := e.policy.Whitelisted(caller)
		if err != nil {
			return nil, err
		}
		if !member {
			return nil, ErrNotWhitelisted
		}
	}
	cfg, ok, err := e.policy.Asset(paymentAsset)
	if err != nil {
		return nil, err
	}
	if !ok || !cfg.Allowed {
		return nil, ErrAssetNotAllowed
	}
	if paymentAmount == nil || paymentAmount.Sign() <= 0 {
		return nil, ErrAmountZero
	}
	now := uint64(e.clock().UTC().Unix())
	if policy.SaleStart != 0 && now < policy.SaleStart {
		return nil, ErrSaleNotStarted
	}
	if policy.SaleEnd != 0 && now > policy.SaleEnd {
		return nil, ErrSaleEnded
	}
	orderID = strings.TrimSpace(orderID)
	if orderID != "" {
		used, err := e.ledger.OrderUsed(orderID)
		if err != nil {
			return nil, err
		}
		if used {
			return nil, ErrOrderIDUsed
		}
	}

	quote, err := e.resolver.ResolveRate(paymentAsset)
	if err != nil {
		return nil, err
	}
	divisor := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(quote.Decimals)), nil)
	issued := new(big.Int).Mul(paymentAmount, copyOrZero(quote.Rate))
	issued.Quo(issued, divisor)
	if issued.Sign() <= 0 {
		return nil, ErrInsufficientPayment
	}
	if policy.MinPurchase.Sign() > 0 && issued.Cmp(policy.MinPurchase) < 0 {
		return nil, ErrBelowMinimum
	}
	if policy.HardCap.Sign() > 0 {
		supply, err := e.token.TotalSupply()
		if err != nil {
			return nil, err
		}
		projected := new(big.Int).Add(supply, issued)
		if projected.Cmp(policy.HardCap) > 0 {
			return nil, ErrHardCapExceeded
		}
	}
	effectiveCap, err := e.policy.UserCap(caller)
	if err != nil {
		return nil, err
	}
	if effectiveCap.Sign() == 0 {
		effectiveCap = policy.GlobalMaxPerUser
	}
	if effectiveCap.Sign() > 0 {
		balance, err := e.token.BalanceOf(caller)
		if err != nil {
			return nil, err
		}
		projected := new(big.Int).Add(balance, issued)
		if projected.Cmp(effectiveCap) > 0 {
			return nil, ErrUserCapExceeded
		}
	}

	// Funds must have somewhere to go before any move; a zero recipient
	// would silently burn the payment.
	if policy.Recipient == ([20]byte{}) {
		return nil, ErrRecipientNotSet
	}

	// Reserve the order id before any external effect so a reentrant call
	// cannot replay the same order. The reservation is released again if
	// the effects fail, keeping failures free of observable state change.
	reserved := false
	if orderID != "" {
		if err := e.ledger.MarkOrderUsed(orderID); err != nil {
			return nil, err
		}
		reserved = true
	}
	release := func() {
		if reserved {
			_ = e.ledger.ReleaseOrder(orderID)
		}
	}

	if err := e.bank.TransferFrom(paymentAsset, caller, policy.Recipient, paymentAmount); err != nil {
		release()
		return nil, fmt.Errorf("sale: payment transfer: %w", err)
	}
	if err := e.token.Mint(caller, issued); err != nil {
		release()
		return nil, fmt.Errorf("sale: mint: %w", err)
	}

	receipt := &PurchaseReceipt{
		ReceiptID:     uuid.NewString(),
		OrderID:       orderID,
		Buyer:         caller,
		PaymentAsset:  paymentAsset,
		PaymentAmount: new(big.Int).Set(paymentAmount),
		IssuedAmount:  issued,
		Rate:          copyOrZero(quote.Rate),
		Timestamp:     now,
	}
	if err := e.ledger.RecordPurchase(receipt); err != nil {
		return nil, err
	}
	e.emit(events.SalePurchased{
		Buyer:         caller,
		PaymentAsset:  paymentAsset,
		PaymentAmount: receipt.PaymentAmount,
		IssuedAmount:  receipt.IssuedAmount,
		Rate:          receipt.Rate,
		OrderID:       orderID,
	})
	return receipt.Copy(), nil
}

// --- Administrative operations ---

// RegisterAsset adds (or re-registers) a payment asset with its manual rate.
func (e *Engine) RegisterAsset(asset [20]byte, rate *big.Int, decimals uint8) error {
	if err := e.enter(); err != nil {
		return err
	}
	defer e.exit()
	if decimals > MaxPaymentDecimals {
		return ErrDecimalsOutOfRange
	}
	if rate == nil || rate.Sign() <= 0 {
		return ErrZeroRate
	}
	cfg := AssetConfig{Allowed: true, Rate: new(big.Int).Set(rate), Decimals: decimals}
	if err := e.policy.SetAsset(asset, cfg); err != nil {
		return err
	}
	e.emit(events.SaleAssetRegistered{Asset: asset, Rate: cfg.Rate, Decimals: decimals})
	return nil
}

// RemoveAsset deregisters a payment asset. The identifier stays addressable;
// allowed and rate are cleared.
func (e *Engine) RemoveAsset(asset [20]byte) error {
	if err := e.enter(); err != nil {
		return err
	}
	defer e.exit()
	cfg, ok, err := e.policy.Asset(asset)
	if err != nil {
		return err
	}
	if !ok || !cfg.Allowed {
		return ErrAssetNotRegistered
	}
	cleared := AssetConfig{Allowed: false, Rate: big.NewInt(0), Decimals: cfg.Decimals}
	if err := e.policy.SetAsset(asset, cleared); err != nil {
		return err
	}
	e.emit(events.SaleAssetRemoved{Asset: asset})
	return nil
}

// SetAssetRate updates the manual rate of a registered asset. The rate must
// stay nonzero while the asset is registered.
func (e *Engine) SetAssetRate(asset [20]byte, rate *big.Int) error {
	if err := e.enter(); err != nil {
		return err
	}
	defer e.exit()
	cfg, ok, err := e.policy.Asset(asset)
	if err != nil {
		return err
	}
	if !ok || !cfg.Allowed {
		return ErrAssetNotRegistered
	}
	if rate == nil || rate.Sign() <= 0 {
		return ErrZeroRate
	}
	oldRate := cfg.Rate
	cfg.Rate = new(big.Int).Set(rate)
	if err := e.policy.SetAsset(asset, cfg); err != nil {
		return err
	}
	e.emit(events.SaleRateUpdated{Asset: asset, OldRate: oldRate, NewRate: cfg.Rate})
	return nil
}

// ConfigureOracle binds a price feed to a payment asset. The feed is probed
// at binding time; invalid feeds are rejected here, never at purchase time.
func (e *Engine) ConfigureOracle(asset [20]byte, feedID string, stalenessSeconds uint64) error {
	if err := e.enter(); err != nil {
		return err
	}
	defer e.exit()
	feedID = strings.TrimSpace(feedID)
	feed, ok := e.resolver.feeds.Lookup(feedID)
	if !ok {
		return ErrFeedUnknown
	}
	if err := ProbeFeed(feed); err != nil {
		return err
	}
	binding := OracleBinding{FeedID: feedID, Enabled: true, StalenessSeconds: stalenessSeconds}
	if err := e.policy.SetOracleBinding(asset, binding); err != nil {
		return err
	}
	e.emit(events.SaleOracleConfigured{Asset: asset, Feed: feedID, StalenessSeconds: stalenessSeconds})
	return nil
}

// RemoveOracle drops the oracle binding for the asset.
func (e *Engine) RemoveOracle(asset [20]byte) error {
	if err := e.enter(); err != nil {
		return err
	}
	defer e.exit()
	_, ok, err := e.policy.OracleBinding(asset)
	if err != nil {
		return err
	}
	if !ok {
		return ErrOracleNotConfigured
	}
	if err := e.policy.RemoveOracleBinding(asset); err != nil {
		return err
	}
	e.emit(events.SaleOracleRemoved{Asset: asset})
	return nil
}

// SetOracleEnabled toggles an existing oracle binding.
func (e *Engine) SetOracleEnabled(asset [20]byte, enabled bool) error {
	if err := e.enter(); err != nil {
		return err
	}
	defer e.exit()
	binding, ok, err := e.policy.OracleBinding(asset)
	if err != nil {
		return err
	}
	if !ok || binding.FeedID == "" {
		return ErrOracleNotConfigured
	}
	binding.Enabled = enabled
	if err := e.policy.SetOracleBinding(asset, binding); err != nil {
		return err
	}
	e.emit(events.SaleOracleStatusChanged{Asset: asset, Enabled: enabled})
	return nil
}

// SetStaleness updates the per-asset staleness threshold.
func (e *Engine) SetStaleness(asset [20]byte, seconds uint64) error {
	if err := e.enter(); err != nil {
		return err
	}
	defer e.exit()
	if seconds == 0 {
		return ErrZeroThreshold
	}
	binding, ok, err := e.policy.OracleBinding(asset)
	if err != nil {
		return err
	}
	if !ok {
		return ErrOracleNotConfigured
	}
	old := binding.StalenessSeconds
	binding.StalenessSeconds = seconds
	if err := e.policy.SetOracleBinding(asset, binding); err != nil {
		return err
	}
	e.emit(events.SaleStalenessUpdated{Asset: asset, OldSeconds: old, NewSeconds: seconds})
	return nil
}

// SetDefaultStaleness updates the process-wide staleness threshold.
func (e *Engine) SetDefaultStaleness(seconds uint64) error {
	if err := e.enter(); err != nil {
		return err
	}
	defer e.exit()
	if seconds == 0 {
		return ErrZeroThreshold
	}
	old, err := e.policy.DefaultStaleness()
	if err != nil {
		return err
	}
	if err := e.policy.SetDefaultStaleness(seconds); err != nil {
		return err
	}
	e.emit(events.SaleStalenessUpdated{OldSeconds: old, NewSeconds: seconds})
	return nil
}

// SetBase designates the base payment asset and its fixed rate. The asset
// must be a registered, allowed payment asset; the native-currency
// identifier is implicitly eligible.
func (e *Engine) SetBase(asset [20]byte, rate *big.Int) error {
	if err := e.enter(); err != nil {
		return err
	}
	defer e.exit()
	if rate == nil || rate.Sign() <= 0 {
		return ErrZeroRate
	}
	if asset != NativeAsset {
		cfg, ok, err := e.policy.Asset(asset)
		if err != nil {
			return err
		}
		if !ok || !cfg.Allowed {
			return ErrBaseAssetNotAllowed
		}
	}
	old, _, err := e.policy.BaseRate()
	if err != nil {
		return err
	}
	base := BaseRate{Asset: asset, Rate: new(big.Int).Set(rate)}
	if err := e.policy.SetBaseRate(base); err != nil {
		return err
	}
	e.emit(events.SaleBaseRateUpdated{Asset: asset, OldRate: old.Rate, NewRate: base.Rate})
	return nil
}

// UpdateBaseRate changes the base rate; a base configuration must already
// exist.
func (e *Engine) UpdateBaseRate(rate *big.Int) error {
	if err := e.enter(); err != nil {
		return err
	}
	defer e.exit()
	base, ok, err := e.policy.BaseRate()
	if err != nil {
		return err
	}
	if !ok || base.Rate == nil || base.Rate.Sign() == 0 {
		return ErrBaseRateNotSet
	}
	if rate == nil || rate.Sign() <= 0 {
		return ErrZeroRate
	}
	old := base.Rate
	base.Rate = new(big.Int).Set(rate)
	if err := e.policy.SetBaseRate(base); err != nil {
		return err
	}
	e.emit(events.SaleBaseRateUpdated{Asset: base.Asset, OldRate: old, NewRate: base.Rate})
	return nil
}

func validAmount(v *big.Int) (*big.Int, error) {
	if v == nil {
		return big.NewInt(0), nil
	}
	if v.Sign() < 0 {
		return nil, fmt.Errorf("sale: amount must not be negative")
	}
	return new(big.Int).Set(v), nil
}

// SetLimits updates the cap configuration. Zero values mean unbounded (hard
// cap, per-user max) or disabled (minimum purchase).
func (e *Engine) SetLimits(hardCap, minPurchase, globalMaxPerUser *big.Int) error {
	if err := e.enter(); err != nil {
		return err
	}
	defer e.exit()
	return e.setLimits(hardCap, minPurchase, globalMaxPerUser)
}

func (e *Engine) setLimits(hardCap, minPurchase, globalMaxPerUser *big.Int) error {
	policy, err := e.policy.Policy()
	if err != nil {
		return err
	}
	oldHardCap, oldMinPurchase, oldMaxPerUser := policy.HardCap, policy.MinPurchase, policy.GlobalMaxPerUser
	if policy.HardCap, err = validAmount(hardCap); err != nil {
		return err
	}
	if policy.MinPurchase, err = validAmount(minPurchase); err != nil {
		return err
	}
	if policy.GlobalMaxPerUser, err = validAmount(globalMaxPerUser); err != nil {
		return err
	}
	if err := e.policy.SetPolicy(policy); err != nil {
		return err
	}
	e.emit(events.SaleLimitsUpdated{
		OldHardCap:          oldHardCap,
		OldMinPurchase:      oldMinPurchase,
		OldGlobalMaxPerUser: oldMaxPerUser,
		HardCap:             policy.HardCap,
		MinPurchase:         policy.MinPurchase,
		GlobalMaxPerUser:    policy.GlobalMaxPerUser,
	})
	return nil
}

// SetUserCap sets the per-user cap override; zero restores the global cap.
func (e *Engine) SetUserCap(account [20]byte, cap *big.Int) error {
	if err := e.enter(); err != nil {
		return err
	}
	defer e.exit()
	amount, err := validAmount(cap)
	if err != nil {
		return err
	}
	old, err := e.policy.UserCap(account)
	if err != nil {
		return err
	}
	if err := e.policy.SetUserCap(account, amount); err != nil {
		return err
	}
	e.emit(events.SaleUserCapUpdated{Account: account, OldCap: old, NewCap: amount})
	return nil
}

// SetWindow updates the sale time window. Zero means unbounded on that side;
// when both are set, start must precede end.
func (e *Engine) SetWindow(start, end uint64) error {
	if err := e.enter(); err != nil {
		return err
	}
	defer e.exit()
	return e.setWindow(start, end)
}

func (e *Engine) setWindow(start, end uint64) error {
	if start != 0 && end != 0 && start >= end {
		return ErrInvalidWindow
	}
	policy, err := e.policy.Policy()
	if err != nil {
		return err
	}
	oldStart, oldEnd := policy.SaleStart, policy.SaleEnd
	policy.SaleStart, policy.SaleEnd = start, end
	if err := e.policy.SetPolicy(policy); err != nil {
		return err
	}
	e.emit(events.SaleWindowUpdated{
		OldStart: int64(oldStart), OldEnd: int64(oldEnd),
		NewStart: int64(start), NewEnd: int64(end),
	})
	return nil
}

// ConfigureSale applies limits and window in one operation with identical
// validation to the individual setters.
func (e *Engine) ConfigureSale(hardCap, minPurchase, globalMaxPerUser *big.Int, start, end uint64) error {
	if err := e.enter(); err != nil {
		return err
	}
	defer e.exit()
	if start != 0 && end != 0 && start >= end {
		return ErrInvalidWindow
	}
	if err := e.setLimits(hardCap, minPurchase, globalMaxPerUser); err != nil {
		return err
	}
	return e.setWindow(start, end)
}

// Pause halts all purchases.
func (e *Engine) Pause() error {
	if err := e.enter(); err != nil {
		return err
	}
	defer e.exit()
	policy, err := e.policy.Policy()
	if err != nil {
		return err
	}
	policy.Paused = true
	if err := e.policy.SetPolicy(policy); err != nil {
		return err
	}
	e.emit(events.SalePaused{})
	return nil
}

// Resume reopens purchases.
func (e *Engine) Resume() error {
	if err := e.enter(); err != nil {
		return err
	}
	defer e.exit()
	policy, err := e.policy.Policy()
	if err != nil {
		return err
	}
	policy.Paused = false
	if err := e.policy.SetPolicy(policy); err != nil {
		return err
	}
	e.emit(events.SaleResumed{})
	return nil
}

// SetRecipient updates the payment recipient.
func (e *Engine) SetRecipient(recipient [20]byte) error {
	if err := e.enter(); err != nil {
		return err
	}
	defer e.exit()
	if recipient == ([20]byte{}) {
		return ErrInvalidRecipient
	}
	policy, err := e.policy.Policy()
	if err != nil {
		return err
	}
	old := policy.Recipient
	policy.Recipient = recipient
	if err := e.policy.SetPolicy(policy); err != nil {
		return err
	}
	e.emit(events.SaleRecipientUpdated{OldRecipient: old, NewRecipient: recipient})
	return nil
}

// SetWhitelistRequired toggles the whitelist requirement.
func (e *Engine) SetWhitelistRequired(required bool) error {
	if err := e.enter(); err != nil {
		return err
	}
	defer e.exit()
	policy, err := e.policy.Policy()
	if err != nil {
		return err
	}
	policy.WhitelistRequired = required
	if err := e.policy.SetPolicy(policy); err != nil {
		return err
	}
	e.emit(events.SaleWhitelistRequired{Enabled: required})
	return nil
}

// WhitelistAdd adds an account to the whitelist; adding a member twice is
// rejected.
func (e *Engine) WhitelistAdd(account [20]byte) error {
	if err := e.enter(); err != nil {
		return err
	}
	defer e.exit()
	member, err := e.policy.Whitelisted(account)
	if err != nil {
		return err
	}
	if member {
		return ErrAlreadyWhitelisted
	}
	if err := e.policy.SetWhitelisted(account, true); err != nil {
		return err
	}
	e.emit(events.SaleWhitelistAdded{Account: account})
	return nil
}

// WhitelistRemove removes an account from the whitelist; removing a
// non-member is rejected.
func (e *Engine) WhitelistRemove(account [20]byte) error {
	if err := e.enter(); err != nil {
		return err
	}
	defer e.exit()
	member, err := e.policy.Whitelisted(account)
	if err != nil {
		return err
	}
	if !member {
		return ErrNotInWhitelist
	}
	if err := e.policy.SetWhitelisted(account, false); err != nil {
		return err
	}
	e.emit(events.SaleWhitelistRemoved{Account: account})
	return nil
}

// Withdraw moves funds held by the sale to the recipient. A zero amount
// withdraws the full balance of the asset.
func (e *Engine) Withdraw(asset [20]byte, amount *big.Int, recipient [20]byte) error {
	if err := e.enter(); err != nil {
		return err
	}
	defer e.exit()
	if recipient == ([20]byte{}) {
		return ErrInvalidRecipient
	}
	value, err := validAmount(amount)
	if err != nil {
		return err
	}
	if value.Sign() == 0 {
		balance, err := e.bank.BalanceOf(asset, e.account)
		if err != nil {
			return err
		}
		value = balance
	}
	if value.Sign() <= 0 {
		return ErrAmountZero
	}
	if err := e.bank.TransferFrom(asset, e.account, recipient, value); err != nil {
		return fmt.Errorf("sale: withdraw transfer: %w", err)
	}
	e.emit(events.SaleWithdrawn{Asset: asset, Amount: value, Recipient: recipient})
	return nil
}
