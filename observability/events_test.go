package observability

import (
	"math/big"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"tokensale/core/events"
)

func testAddr(b byte) [20]byte {
	var a [20]byte
	for i := range a {
		a[i] = b
	}
	return a
}

func TestMetricsEmitterAccumulatesPurchaseTotals(t *testing.T) {
	emitter := NewMetricsEmitter()
	asset := testAddr(0x01)

	for _, amounts := range []struct{ paid, issued int64 }{
		{paid: 1_000_000, issued: 3_000_000},
		{paid: 2_000_000, issued: 2_000_000},
	} {
		emitter.Emit(events.SalePurchased{
			Buyer:         testAddr(0xb1),
			PaymentAsset:  asset,
			PaymentAmount: big.NewInt(amounts.paid),
			IssuedAmount:  big.NewInt(amounts.issued),
			Rate:          big.NewInt(1),
		})
	}
	// Non-purchase events leave the issuance and revenue gauges untouched.
	emitter.Emit(events.SalePaused{})

	expected := `
# HELP sale_issued_total Cumulative sale-asset units issued, in raw 18-decimal units.
# TYPE sale_issued_total gauge
sale_issued_total 5000000
# HELP sale_revenue Cumulative revenue collected per payment asset in raw units.
# TYPE sale_revenue gauge
sale_revenue{asset="0x0101010101010101010101010101010101010101"} 3000000
`
	err := testutil.GatherAndCompare(prometheus.DefaultGatherer, strings.NewReader(expected),
		"sale_issued_total", "sale_revenue")
	if err != nil {
		t.Fatalf("unexpected gauge state: %v", err)
	}
}
