package core

import (
	"fmt"
	"math/big"
	"sync"
	"testing"
	"time"

	"tokensale/native/sale"
	"tokensale/storage"
)

func testAddr(b byte) [20]byte {
	var a [20]byte
	for i := range a {
		a[i] = b
	}
	return a
}

func newTestNode(t *testing.T) *Node {
	t.Helper()
	node, err := NewNode(storage.NewMemDB(), testAddr(0x5a))
	if err != nil {
		t.Fatalf("new node: %v", err)
	}
	node.SetClock(func() time.Time { return time.Unix(1_700_000_000, 0).UTC() })
	return node
}

func TestNodePurchaseEndToEnd(t *testing.T) {
	node := newTestNode(t)
	usd := testAddr(0x01)
	buyer := testAddr(0x02)
	rate, _ := new(big.Int).SetString("100000000000000000000", 10)

	if err := node.SaleRegisterAsset(usd, rate, 6); err != nil {
		t.Fatalf("register asset: %v", err)
	}
	if err := node.SaleSetRecipient(testAddr(0xaa)); err != nil {
		t.Fatalf("set recipient: %v", err)
	}
	if err := node.Bank().Credit(usd, buyer, big.NewInt(2_000_000)); err != nil {
		t.Fatalf("credit: %v", err)
	}

	receipt, err := node.SalePurchase(buyer, usd, big.NewInt(1_000_000), "node-order-1")
	if err != nil {
		t.Fatalf("purchase: %v", err)
	}
	if receipt.IssuedAmount.Cmp(rate) != 0 {
		t.Fatalf("issued = %s, want %s", receipt.IssuedAmount, rate)
	}

	balance, err := node.Token().BalanceOf(buyer)
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if balance.Cmp(rate) != 0 {
		t.Fatalf("token balance = %s", balance)
	}

	byOrder, ok, err := node.SaleReceiptByOrder("node-order-1")
	if err != nil || !ok {
		t.Fatalf("receipt by order: ok=%v err=%v", ok, err)
	}
	if byOrder.ReceiptID != receipt.ReceiptID {
		t.Fatalf("receipt id mismatch: %q vs %q", byOrder.ReceiptID, receipt.ReceiptID)
	}

	receipts, total, err := node.SaleUserPurchases(buyer)
	if err != nil {
		t.Fatalf("user purchases: %v", err)
	}
	if len(receipts) != 1 || total.Cmp(rate) != 0 {
		t.Fatalf("user purchases = %d total = %s", len(receipts), total)
	}
}

func TestNodeSerializesConcurrentPurchases(t *testing.T) {
	node := newTestNode(t)
	usd := testAddr(0x01)
	rate, _ := new(big.Int).SetString("100000000000000000000", 10)

	if err := node.SaleRegisterAsset(usd, rate, 6); err != nil {
		t.Fatalf("register asset: %v", err)
	}
	if err := node.SaleSetRecipient(testAddr(0xaa)); err != nil {
		t.Fatalf("set recipient: %v", err)
	}

	const buyers = 8
	for i := 0; i < buyers; i++ {
		if err := node.Bank().Credit(usd, testAddr(byte(0x10+i)), big.NewInt(1_000_000)); err != nil {
			t.Fatalf("credit %d: %v", i, err)
		}
	}

	var wg sync.WaitGroup
	errs := make(chan error, buyers)
	for i := 0; i < buyers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := node.SalePurchase(testAddr(byte(0x10+i)), usd, big.NewInt(1_000_000), fmt.Sprintf("conc-%d", i))
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("concurrent purchase: %v", err)
		}
	}

	stats, err := node.SaleStats()
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.Purchases != buyers {
		t.Fatalf("purchases = %d, want %d", stats.Purchases, buyers)
	}
	wantIssued := new(big.Int).Mul(rate, big.NewInt(buyers))
	if stats.TotalIssued.Cmp(wantIssued) != 0 {
		t.Fatalf("total issued = %s, want %s", stats.TotalIssued, wantIssued)
	}
}

func TestNodeQuoteMatchesPurchaseRate(t *testing.T) {
	node := newTestNode(t)
	usd := testAddr(0x01)
	rate, _ := new(big.Int).SetString("100000000000000000000", 10)
	if err := node.SaleRegisterAsset(usd, rate, 6); err != nil {
		t.Fatalf("register asset: %v", err)
	}

	quote, err := node.SaleQuote(usd)
	if err != nil {
		t.Fatalf("quote: %v", err)
	}
	if quote.Source != sale.RateSourceManual {
		t.Fatalf("source = %q", quote.Source)
	}
	if quote.Rate.Cmp(rate) != 0 {
		t.Fatalf("rate = %s", quote.Rate)
	}
}

func TestNodePersistsAcrossReopen(t *testing.T) {
	db := storage.NewMemDB()
	node, err := NewNode(db, testAddr(0x5a))
	if err != nil {
		t.Fatalf("new node: %v", err)
	}
	usd := testAddr(0x01)
	rate, _ := new(big.Int).SetString("100000000000000000000", 10)
	if err := node.SaleRegisterAsset(usd, rate, 6); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := node.SaleWhitelistAdd(testAddr(0x02)); err != nil {
		t.Fatalf("whitelist: %v", err)
	}

	reopened, err := NewNode(db, testAddr(0x5a))
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	cfg, ok, err := reopened.SaleAsset(usd)
	if err != nil || !ok || !cfg.Allowed {
		t.Fatalf("asset after reopen: ok=%v allowed=%v err=%v", ok, cfg.Allowed, err)
	}
}
