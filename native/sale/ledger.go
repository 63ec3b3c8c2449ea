package sale

import (
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/rlp"
)

// Ledger persists purchase accounting: aggregate totals, revenue by asset,
// per-user totals, receipts, and the used order identifier set.
type Ledger struct {
	store Storage
	clock func() time.Time
}

// NewLedger constructs a ledger bound to the provided storage backend.
func NewLedger(store Storage) *Ledger {
	return &Ledger{store: store, clock: time.Now}
}

// SetClock overrides the time source (primarily for deterministic testing).
func (l *Ledger) SetClock(clock func() time.Time) {
	if l == nil || clock == nil {
		return
	}
	l.clock = clock
}

type storedReceipt struct {
	ReceiptID     string
	OrderID       string
	Buyer         [20]byte
	PaymentAsset  [20]byte
	PaymentAmount *big.Int
	IssuedAmount  *big.Int
	Rate          *big.Int
	Timestamp     uint64
}

type storedTotals struct {
	TotalIssued  *big.Int
	TotalRevenue *big.Int
	Purchases    uint64
}

type orderRecord struct {
	ReceiptID string
}

func toStoredReceipt(r *PurchaseReceipt) storedReceipt {
	return storedReceipt{
		ReceiptID:     strings.TrimSpace(r.ReceiptID),
		OrderID:       strings.TrimSpace(r.OrderID),
		Buyer:         r.Buyer,
		PaymentAsset:  r.PaymentAsset,
		PaymentAmount: copyOrZero(r.PaymentAmount),
		IssuedAmount:  copyOrZero(r.IssuedAmount),
		Rate:          copyOrZero(r.Rate),
		Timestamp:     r.Timestamp,
	}
}

func fromStoredReceipt(s storedReceipt) *PurchaseReceipt {
	return &PurchaseReceipt{
		ReceiptID:     s.ReceiptID,
		OrderID:       s.OrderID,
		Buyer:         s.Buyer,
		PaymentAsset:  s.PaymentAsset,
		PaymentAmount: copyOrZero(s.PaymentAmount),
		IssuedAmount:  copyOrZero(s.IssuedAmount),
		Rate:          copyOrZero(s.Rate),
		Timestamp:     s.Timestamp,
	}
}

// OrderUsed reports whether the order identifier has been reserved. The
// empty sentinel is never considered used.
func (l *Ledger) OrderUsed(orderID string) (bool, error) {
	if l == nil {
		return false, fmt.Errorf("ledger not initialised")
	}
	trimmed := strings.TrimSpace(orderID)
	if trimmed == "" {
		return false, nil
	}
	return l.store.KVGet(orderKey(trimmed), nil)
}

// MarkOrderUsed reserves the order identifier. The reservation happens before
// any external effect so a reentrant call cannot replay the same order.
func (l *Ledger) MarkOrderUsed(orderID string) error {
	if l == nil {
		return fmt.Errorf("ledger not initialised")
	}
	trimmed := strings.TrimSpace(orderID)
	if trimmed == "" {
		return fmt.Errorf("ledger: order id required")
	}
	used, err := l.OrderUsed(trimmed)
	if err != nil {
		return err
	}
	if used {
		return ErrOrderIDUsed
	}
	return l.store.KVPut(orderKey(trimmed), orderRecord{})
}

// ReleaseOrder drops an order reservation that never completed, restoring the
// all-or-nothing failure semantics of the purchase operation.
func (l *Ledger) ReleaseOrder(orderID string) error {
	if l == nil {
		return fmt.Errorf("ledger not initialised")
	}
	trimmed := strings.TrimSpace(orderID)
	if trimmed == "" {
		return nil
	}
	return l.store.KVDelete(orderKey(trimmed))
}

// RecordPurchase persists the receipt and folds it into every running total.
func (l *Ledger) RecordPurchase(receipt *PurchaseReceipt) error {
	if l == nil {
		return fmt.Errorf("ledger not initialised")
	}
	if receipt == nil {
		return fmt.Errorf("ledger: receipt must not be nil")
	}
	stored := toStoredReceipt(receipt)
	if stored.ReceiptID == "" {
		return fmt.Errorf("ledger: receipt id required")
	}
	if stored.IssuedAmount.Sign() <= 0 || stored.PaymentAmount.Sign() <= 0 {
		return fmt.Errorf("ledger: amounts must be positive")
	}
	if stored.Timestamp == 0 {
		stored.Timestamp = uint64(l.clock().UTC().Unix())
	}
	if err := l.store.KVPut(receiptKey(stored.ReceiptID), stored); err != nil {
		return err
	}
	if stored.OrderID != "" {
		if err := l.store.KVPut(orderKey(stored.OrderID), orderRecord{ReceiptID: stored.ReceiptID}); err != nil {
			return err
		}
	}
	encoded, err := rlp.EncodeToBytes(stored.ReceiptID)
	if err != nil {
		return err
	}
	if err := l.store.KVAppend(userReceiptsKey(receipt.Buyer), encoded); err != nil {
		return err
	}

	totals, err := l.totals()
	if err != nil {
		return err
	}
	totals.TotalIssued.Add(totals.TotalIssued, stored.IssuedAmount)
	totals.TotalRevenue.Add(totals.TotalRevenue, stored.PaymentAmount)
	totals.Purchases++
	if err := l.store.KVPut(totalsKeyBytes, totals); err != nil {
		return err
	}
	if err := l.addAmount(revenueKey(receipt.PaymentAsset), stored.PaymentAmount); err != nil {
		return err
	}
	if err := l.addAmount(purchasedKey(receipt.Buyer), stored.IssuedAmount); err != nil {
		return err
	}
	return l.addAmount(purchasedPairKey(receipt.Buyer, receipt.PaymentAsset), stored.IssuedAmount)
}

func (l *Ledger) totals() (storedTotals, error) {
	var stored storedTotals
	ok, err := l.store.KVGet(totalsKeyBytes, &stored)
	if err != nil {
		return storedTotals{}, err
	}
	if !ok {
		return storedTotals{TotalIssued: big.NewInt(0), TotalRevenue: big.NewInt(0)}, nil
	}
	stored.TotalIssued = copyOrZero(stored.TotalIssued)
	stored.TotalRevenue = copyOrZero(stored.TotalRevenue)
	return stored, nil
}

func (l *Ledger) amount(key []byte) (*big.Int, error) {
	var stored amountRecord
	ok, err := l.store.KVGet(key, &stored)
	if err != nil {
		return nil, err
	}
	if !ok {
		return big.NewInt(0), nil
	}
	return copyOrZero(stored.Amount), nil
}

func (l *Ledger) addAmount(key []byte, delta *big.Int) error {
	current, err := l.amount(key)
	if err != nil {
		return err
	}
	current.Add(current, delta)
	return l.store.KVPut(key, amountRecord{Amount: current})
}

// Stats returns the aggregate totals.
func (l *Ledger) Stats() (SaleStats, error) {
	if l == nil {
		return SaleStats{}, fmt.Errorf("ledger not initialised")
	}
	totals, err := l.totals()
	if err != nil {
		return SaleStats{}, err
	}
	return SaleStats{
		TotalIssued:  totals.TotalIssued,
		TotalRevenue: totals.TotalRevenue,
		Purchases:    totals.Purchases,
	}, nil
}

// RevenueByAsset returns accumulated revenue for the payment asset.
func (l *Ledger) RevenueByAsset(asset [20]byte) (*big.Int, error) {
	if l == nil {
		return nil, fmt.Errorf("ledger not initialised")
	}
	return l.amount(revenueKey(asset))
}

// PurchasedBy returns the total sale-asset units issued to the account.
func (l *Ledger) PurchasedBy(account [20]byte) (*big.Int, error) {
	if l == nil {
		return nil, fmt.Errorf("ledger not initialised")
	}
	return l.amount(purchasedKey(account))
}

// PurchasedByAsset returns the sale-asset units issued to the account for
// purchases paid in the given asset.
func (l *Ledger) PurchasedByAsset(account, asset [20]byte) (*big.Int, error) {
	if l == nil {
		return nil, fmt.Errorf("ledger not initialised")
	}
	return l.amount(purchasedPairKey(account, asset))
}

// Receipt looks up a receipt by its identifier.
func (l *Ledger) Receipt(receiptID string) (*PurchaseReceipt, bool, error) {
	if l == nil {
		return nil, false, fmt.Errorf("ledger not initialised")
	}
	var stored storedReceipt
	ok, err := l.store.KVGet(receiptKey(strings.TrimSpace(receiptID)), &stored)
	if err != nil || !ok {
		return nil, false, err
	}
	return fromStoredReceipt(stored), true, nil
}

// ReceiptByOrder looks up the receipt recorded for an order identifier.
func (l *Ledger) ReceiptByOrder(orderID string) (*PurchaseReceipt, bool, error) {
	if l == nil {
		return nil, false, fmt.Errorf("ledger not initialised")
	}
	trimmed := strings.TrimSpace(orderID)
	if trimmed == "" {
		return nil, false, nil
	}
	var record orderRecord
	ok, err := l.store.KVGet(orderKey(trimmed), &record)
	if err != nil || !ok {
		return nil, false, err
	}
	if record.ReceiptID == "" {
		return nil, false, nil
	}
	return l.Receipt(record.ReceiptID)
}

// UserReceipts returns every receipt recorded for the account, oldest first.
func (l *Ledger) UserReceipts(account [20]byte) ([]*PurchaseReceipt, error) {
	if l == nil {
		return nil, fmt.Errorf("ledger not initialised")
	}
	var raw [][]byte
	if err := l.store.KVGetList(userReceiptsKey(account), &raw); err != nil {
		return nil, err
	}
	receipts := make([]*PurchaseReceipt, 0, len(raw))
	for _, encoded := range raw {
		if len(encoded) == 0 {
			continue
		}
		var id string
		if err := rlp.DecodeBytes(encoded, &id); err != nil {
			return nil, err
		}
		receipt, ok, err := l.Receipt(id)
		if err != nil {
			return nil, err
		}
		if ok {
			receipts = append(receipts, receipt)
		}
	}
	return receipts, nil
}
