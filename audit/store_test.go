package audit

import (
	"context"
	"math/big"
	"path/filepath"
	"testing"
	"time"

	"tokensale/core/events"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "audit.db"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestOpenRequiresPath(t *testing.T) {
	if _, err := Open("   "); err != ErrPathRequired {
		t.Fatalf("err = %v, want ErrPathRequired", err)
	}
}

func TestRecordAndQueryEvents(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	now := time.Unix(1_700_000_000, 0).UTC()

	purchase := events.SalePurchased{
		PaymentAmount: big.NewInt(1000),
		IssuedAmount:  big.NewInt(2000),
		Rate:          big.NewInt(2),
		OrderID:       "o-1",
	}
	if err := store.RecordEvent(ctx, purchase.Record(), now); err != nil {
		t.Fatalf("record purchase: %v", err)
	}
	paused := events.SalePaused{}
	if err := store.RecordEvent(ctx, paused.Record(), now.Add(time.Minute)); err != nil {
		t.Fatalf("record pause: %v", err)
	}

	byType, err := store.EventsByType(ctx, events.TypeSalePurchased, 10)
	if err != nil {
		t.Fatalf("events by type: %v", err)
	}
	if len(byType) != 1 {
		t.Fatalf("purchased events = %d", len(byType))
	}
	if byType[0].Attributes["orderId"] != "o-1" {
		t.Fatalf("attributes = %v", byType[0].Attributes)
	}
	if !byType[0].RecordedAt.Equal(now) {
		t.Fatalf("recorded at = %v", byType[0].RecordedAt)
	}

	recent, err := store.RecentEvents(ctx, 10)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(recent) != 2 {
		t.Fatalf("recent events = %d", len(recent))
	}
	// Newest first.
	if recent[0].Type != events.TypeSalePaused {
		t.Fatalf("recent[0] = %q", recent[0].Type)
	}

	counts, err := store.CountByType(ctx)
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if counts[events.TypeSalePurchased] != 1 || counts[events.TypeSalePaused] != 1 {
		t.Fatalf("counts = %v", counts)
	}
}

func TestEmitterPersistsEvents(t *testing.T) {
	store := openTestStore(t)
	emitter := NewEmitter(store, nil)
	emitter.SetClock(func() time.Time { return time.Unix(1_700_000_000, 0).UTC() })

	emitter.Emit(events.SaleResumed{})

	recent, err := store.RecentEvents(context.Background(), 10)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(recent) != 1 || recent[0].Type != events.TypeSaleResumed {
		t.Fatalf("recent = %+v", recent)
	}
}

func TestRecordEventValidation(t *testing.T) {
	store := openTestStore(t)
	if err := store.RecordEvent(context.Background(), nil, time.Now()); err == nil {
		t.Fatalf("nil record accepted")
	}
}
