package metrics

import (
	"math"
	"math/big"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

type SaleMetrics struct {
	purchases        *prometheus.CounterVec
	purchaseFailures *prometheus.CounterVec
	issuedTotal      prometheus.Gauge
	revenue          *prometheus.GaugeVec
	oracleFallbacks  *prometheus.CounterVec
	rpcRequests      *prometheus.CounterVec
	rpcLatency       *prometheus.HistogramVec
}

var (
	saleOnce     sync.Once
	saleRegistry *SaleMetrics
)

func Sale() *SaleMetrics {
	saleOnce.Do(func() {
		saleRegistry = &SaleMetrics{
			purchases: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "sale_purchases_total",
				Help: "Count of completed purchases by payment asset.",
			}, []string{"asset"}),
			purchaseFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "sale_purchase_failures_total",
				Help: "Count of rejected purchases by failure reason.",
			}, []string{"reason"}),
			issuedTotal: prometheus.NewGauge(prometheus.GaugeOpts{
				Name: "sale_issued_total",
				Help: "Cumulative sale-asset units issued, in raw 18-decimal units.",
			}),
			revenue: prometheus.NewGaugeVec(prometheus.GaugeOpts{
				Name: "sale_revenue",
				Help: "Cumulative revenue collected per payment asset in raw units.",
			}, []string{"asset"}),
			oracleFallbacks: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "sale_oracle_fallbacks_total",
				Help: "Count of oracle failures absorbed by the manual-rate fallback.",
			}, []string{"asset"}),
			rpcRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "sale_rpc_requests_total",
				Help: "Total JSON-RPC requests segmented by method and outcome.",
			}, []string{"method", "outcome"}),
			rpcLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Name:    "sale_rpc_latency_seconds",
				Help:    "JSON-RPC request latency by method.",
				Buckets: prometheus.DefBuckets,
			}, []string{"method"}),
		}
		prometheus.MustRegister(
			saleRegistry.purchases,
			saleRegistry.purchaseFailures,
			saleRegistry.issuedTotal,
			saleRegistry.revenue,
			saleRegistry.oracleFallbacks,
			saleRegistry.rpcRequests,
			saleRegistry.rpcLatency,
		)
	})
	return saleRegistry
}

func (m *SaleMetrics) ObservePurchase(asset string) {
	if m == nil {
		return
	}
	if asset == "" {
		asset = "unknown"
	}
	m.purchases.WithLabelValues(asset).Inc()
}

func (m *SaleMetrics) ObservePurchaseFailure(reason string) {
	if m == nil {
		return
	}
	if reason == "" {
		reason = "unknown"
	}
	m.purchaseFailures.WithLabelValues(reason).Inc()
}

// AddIssued accumulates freshly issued sale-asset units into the issuance
// gauge. Values beyond the float64 range are clamped.
func (m *SaleMetrics) AddIssued(amount *big.Int) {
	if m == nil || amount == nil {
		return
	}
	m.issuedTotal.Add(clampBig(amount))
}

// AddRevenue accumulates collected payment units into the per-asset revenue
// gauge.
func (m *SaleMetrics) AddRevenue(asset string, amount *big.Int) {
	if m == nil || amount == nil {
		return
	}
	if asset == "" {
		asset = "unknown"
	}
	m.revenue.WithLabelValues(asset).Add(clampBig(amount))
}

func clampBig(v *big.Int) float64 {
	value, _ := new(big.Float).SetInt(v).Float64()
	if math.IsInf(value, 0) {
		value = math.MaxFloat64
	}
	return value
}

func (m *SaleMetrics) ObserveOracleFallback(asset string) {
	if m == nil {
		return
	}
	if asset == "" {
		asset = "unknown"
	}
	m.oracleFallbacks.WithLabelValues(asset).Inc()
}

func (m *SaleMetrics) ObserveRPCRequest(method, outcome string, seconds float64) {
	if m == nil {
		return
	}
	if method == "" {
		method = "unknown"
	}
	if outcome == "" {
		outcome = "unknown"
	}
	m.rpcRequests.WithLabelValues(method, outcome).Inc()
	m.rpcLatency.WithLabelValues(method).Observe(seconds)
}
