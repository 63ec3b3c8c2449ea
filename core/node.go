package core

import (
	"fmt"
	"math/big"
	"sync"
	"time"

	"tokensale/core/events"
	"tokensale/native/sale"
	"tokensale/native/token"
	"tokensale/state"
	"tokensale/storage"
)

// SaleTokenSymbol is the ledger symbol of the issued sale asset.
const SaleTokenSymbol = "SALE"

// Node is the central controller, wiring storage, the token ledgers, and the
// sale engine together. Mutating operations are serialized on stateMu so
// concurrent callers block rather than trip the engine's reentrancy latch;
// read paths go straight to the underlying stores.
type Node struct {
	db      storage.Database
	manager *state.Manager
	policy  *sale.PolicyStore
	ledger  *sale.Ledger
	feeds   *sale.FeedRegistry
	token   *token.Token
	bank    *token.Bank
	engine  *sale.Engine
	stateMu sync.Mutex
}

// NewNode opens the sale system over the provided database. saleAccount
// identifies the account holding funds withdrawable by the operator.
func NewNode(db storage.Database, saleAccount [20]byte) (*Node, error) {
	if db == nil {
		return nil, fmt.Errorf("core: database required")
	}
	manager := state.NewManager(db)
	saleToken, err := token.NewToken(manager, SaleTokenSymbol)
	if err != nil {
		return nil, err
	}
	bank, err := token.NewBank(manager)
	if err != nil {
		return nil, err
	}
	policy := sale.NewPolicyStore(manager)
	ledger := sale.NewLedger(manager)
	feeds := sale.NewFeedRegistry()
	resolver := sale.NewResolver(policy, feeds)
	engine := sale.NewEngine(policy, ledger, resolver, saleToken, bank, saleAccount)

	return &Node{
		db:      db,
		manager: manager,
		policy:  policy,
		ledger:  ledger,
		feeds:   feeds,
		token:   saleToken,
		bank:    bank,
		engine:  engine,
	}, nil
}

// SetEmitter installs the event sink on the engine.
func (n *Node) SetEmitter(emitter events.Emitter) {
	n.engine.SetEmitter(emitter)
}

// SetClock overrides the time source for deterministic tests.
func (n *Node) SetClock(clock func() time.Time) {
	n.engine.SetClock(clock)
}

// SetFallbackHook installs the observer for absorbed oracle failures.
func (n *Node) SetFallbackHook(hook sale.FallbackHook) {
	n.engine.Resolver().SetFallbackHook(hook)
}

// Feeds exposes the feed registry so deployments can register adapters.
func (n *Node) Feeds() *sale.FeedRegistry { return n.feeds }

// Bank exposes the payment bank for deposits entering the system.
func (n *Node) Bank() *token.Bank { return n.bank }

// Token exposes the sale asset ledger.
func (n *Node) Token() *token.Token { return n.token }

// --- purchase path ---

// SalePurchase executes a purchase with a previously deposited payment asset.
func (n *Node) SalePurchase(buyer [20]byte, asset [20]byte, amount *big.Int, orderID string) (*sale.PurchaseReceipt, error) {
	n.stateMu.Lock()
	defer n.stateMu.Unlock()
	return n.engine.Purchase(buyer, asset, amount, orderID)
}

// SalePurchaseNative executes a native-currency purchase.
func (n *Node) SalePurchaseNative(buyer [20]byte, value *big.Int, orderID string) (*sale.PurchaseReceipt, error) {
	n.stateMu.Lock()
	defer n.stateMu.Unlock()
	return n.engine.PurchaseNative(buyer, value, orderID)
}

// --- read path ---

// SaleQuote resolves the current rate for the payment asset without touching
// sale state.
func (n *Node) SaleQuote(asset [20]byte) (sale.Quote, error) {
	return n.engine.Resolver().ResolveRate(asset)
}

// SaleCrossRate derives the oracle cross rate, surfacing the failure instead
// of falling back.
func (n *Node) SaleCrossRate(asset [20]byte) (*big.Int, error) {
	return n.engine.Resolver().CrossRate(asset)
}

// SaleStats returns the aggregate ledger totals.
func (n *Node) SaleStats() (sale.SaleStats, error) {
	return n.ledger.Stats()
}

// SaleRevenueByAsset returns accumulated revenue for one payment asset.
func (n *Node) SaleRevenueByAsset(asset [20]byte) (*big.Int, error) {
	return n.ledger.RevenueByAsset(asset)
}

// SaleReceipt looks up a receipt by identifier.
func (n *Node) SaleReceipt(receiptID string) (*sale.PurchaseReceipt, bool, error) {
	return n.ledger.Receipt(receiptID)
}

// SaleReceiptByOrder looks up the receipt recorded for an order identifier.
func (n *Node) SaleReceiptByOrder(orderID string) (*sale.PurchaseReceipt, bool, error) {
	return n.ledger.ReceiptByOrder(orderID)
}

// SaleUserPurchases returns the account's receipts plus its issued total.
func (n *Node) SaleUserPurchases(account [20]byte) ([]*sale.PurchaseReceipt, *big.Int, error) {
	receipts, err := n.ledger.UserReceipts(account)
	if err != nil {
		return nil, nil, err
	}
	total, err := n.ledger.PurchasedBy(account)
	if err != nil {
		return nil, nil, err
	}
	return receipts, total, nil
}

// SaleAsset returns the registration record for a payment asset.
func (n *Node) SaleAsset(asset [20]byte) (sale.AssetConfig, bool, error) {
	return n.policy.Asset(asset)
}

// SalePolicy returns the sale policy singleton.
func (n *Node) SalePolicy() (sale.SalePolicy, error) {
	return n.policy.Policy()
}

// SaleFeedHealth probes every registered price feed.
func (n *Node) SaleFeedHealth() []sale.FeedHealth {
	return n.feeds.Health()
}

// --- admin path ---

// SaleRegisterAsset adds a payment asset with its manual rate.
func (n *Node) SaleRegisterAsset(asset [20]byte, rate *big.Int, decimals uint8) error {
	n.stateMu.Lock()
	defer n.stateMu.Unlock()
	return n.engine.RegisterAsset(asset, rate, decimals)
}

// SaleRemoveAsset deregisters a payment asset.
func (n *Node) SaleRemoveAsset(asset [20]byte) error {
	n.stateMu.Lock()
	defer n.stateMu.Unlock()
	return n.engine.RemoveAsset(asset)
}

// SaleSetAssetRate updates a registered asset's manual rate.
func (n *Node) SaleSetAssetRate(asset [20]byte, rate *big.Int) error {
	n.stateMu.Lock()
	defer n.stateMu.Unlock()
	return n.engine.SetAssetRate(asset, rate)
}

// SaleConfigureOracle binds a feed to a payment asset.
func (n *Node) SaleConfigureOracle(asset [20]byte, feedID string, stalenessSeconds uint64) error {
	n.stateMu.Lock()
	defer n.stateMu.Unlock()
	return n.engine.ConfigureOracle(asset, feedID, stalenessSeconds)
}

// SaleRemoveOracle drops the oracle binding for the asset.
func (n *Node) SaleRemoveOracle(asset [20]byte) error {
	n.stateMu.Lock()
	defer n.stateMu.Unlock()
	return n.engine.RemoveOracle(asset)
}

// SaleSetOracleEnabled toggles the oracle binding for the asset.
func (n *Node) SaleSetOracleEnabled(asset [20]byte, enabled bool) error {
	n.stateMu.Lock()
	defer n.stateMu.Unlock()
	return n.engine.SetOracleEnabled(asset, enabled)
}

// SaleSetStaleness updates the per-asset staleness threshold.
func (n *Node) SaleSetStaleness(asset [20]byte, seconds uint64) error {
	n.stateMu.Lock()
	defer n.stateMu.Unlock()
	return n.engine.SetStaleness(asset, seconds)
}

// SaleSetDefaultStaleness updates the process-wide staleness threshold.
func (n *Node) SaleSetDefaultStaleness(seconds uint64) error {
	n.stateMu.Lock()
	defer n.stateMu.Unlock()
	return n.engine.SetDefaultStaleness(seconds)
}

// SaleSetBase designates the base payment asset and rate.
func (n *Node) SaleSetBase(asset [20]byte, rate *big.Int) error {
	n.stateMu.Lock()
	defer n.stateMu.Unlock()
	return n.engine.SetBase(asset, rate)
}

// SaleUpdateBaseRate changes the existing base rate.
func (n *Node) SaleUpdateBaseRate(rate *big.Int) error {
	n.stateMu.Lock()
	defer n.stateMu.Unlock()
	return n.engine.UpdateBaseRate(rate)
}

// SaleSetLimits updates the cap configuration.
func (n *Node) SaleSetLimits(hardCap, minPurchase, globalMaxPerUser *big.Int) error {
	n.stateMu.Lock()
	defer n.stateMu.Unlock()
	return n.engine.SetLimits(hardCap, minPurchase, globalMaxPerUser)
}

// SaleSetUserCap sets the per-user cap override.
func (n *Node) SaleSetUserCap(account [20]byte, cap *big.Int) error {
	n.stateMu.Lock()
	defer n.stateMu.Unlock()
	return n.engine.SetUserCap(account, cap)
}

// SaleSetWindow updates the sale time window.
func (n *Node) SaleSetWindow(start, end uint64) error {
	n.stateMu.Lock()
	defer n.stateMu.Unlock()
	return n.engine.SetWindow(start, end)
}

// SaleConfigure applies limits and window in one operation.
func (n *Node) SaleConfigure(hardCap, minPurchase, globalMaxPerUser *big.Int, start, end uint64) error {
	n.stateMu.Lock()
	defer n.stateMu.Unlock()
	return n.engine.ConfigureSale(hardCap, minPurchase, globalMaxPerUser, start, end)
}

// SalePause halts all purchases.
func (n *Node) SalePause() error {
	n.stateMu.Lock()
	defer n.stateMu.Unlock()
	return n.engine.Pause()
}

// SaleResume reopens purchases.
func (n *Node) SaleResume() error {
	n.stateMu.Lock()
	defer n.stateMu.Unlock()
	return n.engine.Resume()
}

// SaleSetRecipient updates the payment recipient.
func (n *Node) SaleSetRecipient(recipient [20]byte) error {
	n.stateMu.Lock()
	defer n.stateMu.Unlock()
	return n.engine.SetRecipient(recipient)
}

// SaleSetWhitelistRequired toggles the whitelist requirement.
func (n *Node) SaleSetWhitelistRequired(required bool) error {
	n.stateMu.Lock()
	defer n.stateMu.Unlock()
	return n.engine.SetWhitelistRequired(required)
}

// SaleWhitelistAdd adds an account to the whitelist.
func (n *Node) SaleWhitelistAdd(account [20]byte) error {
	n.stateMu.Lock()
	defer n.stateMu.Unlock()
	return n.engine.WhitelistAdd(account)
}

// SaleWhitelistRemove removes an account from the whitelist.
func (n *Node) SaleWhitelistRemove(account [20]byte) error {
	n.stateMu.Lock()
	defer n.stateMu.Unlock()
	return n.engine.WhitelistRemove(account)
}

// SaleWithdraw moves funds held by the sale account to the recipient. A zero
// amount withdraws the full balance.
func (n *Node) SaleWithdraw(asset [20]byte, amount *big.Int, recipient [20]byte) error {
	n.stateMu.Lock()
	defer n.stateMu.Unlock()
	return n.engine.Withdraw(asset, amount, recipient)
}
