package observability

import (
	"math/big"

	"tokensale/core/events"
	"tokensale/observability/metrics"
)

// MetricsEmitter folds engine events into the Prometheus registry. It is
// meant to be combined with other sinks through events.MultiEmitter.
type MetricsEmitter struct {
	sale *metrics.SaleMetrics
}

// NewMetricsEmitter returns an emitter publishing to the sale registry.
func NewMetricsEmitter() *MetricsEmitter {
	return &MetricsEmitter{sale: metrics.Sale()}
}

// Emit implements events.Emitter.
func (m *MetricsEmitter) Emit(evt events.Event) {
	if m == nil || evt == nil {
		return
	}
	record := evt.Record()
	if record == nil {
		return
	}
	if record.Type != events.TypeSalePurchased {
		return
	}
	asset := record.Attributes["paymentAsset"]
	m.sale.ObservePurchase(asset)
	if issued, ok := new(big.Int).SetString(record.Attributes["issuedAmount"], 10); ok {
		m.sale.AddIssued(issued)
	}
	if paid, ok := new(big.Int).SetString(record.Attributes["paymentAmount"], 10); ok {
		m.sale.AddRevenue(asset, paid)
	}
}
