package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// OrderMetrics holds the prometheus collectors for the order lifecycle.
// A nil *OrderMetrics is valid and records nothing, which keeps tests
// free of the default-registry double-registration panic.
type OrderMetrics struct {
	OrdersCreatedTotal   prometheus.CounterVec
	OrdersConfirmedTotal prometheus.Counter
	OrdersRejectedTotal  prometheus.Counter
	StockConflictsTotal  prometheus.Counter
	CompensationsTotal   prometheus.Counter
	CoinsDebitedTotal    prometheus.Counter
	CoinsCreditedTotal   prometheus.Counter
}

// NewOrderMetrics registers the collectors with the default registry.
func NewOrderMetrics() *OrderMetrics {
	return &OrderMetrics{
		OrdersCreatedTotal: *promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "orders_created_total",
				Help: "Orders placed, by payment kind (rub/coin)",
			},
			[]string{"payment"},
		),
		OrdersConfirmedTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "orders_confirmed_total",
			Help: "Orders approved by an admin",
		}),
		OrdersRejectedTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "orders_rejected_total",
			Help: "Orders rejected by an admin",
		}),
		StockConflictsTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "stock_conflicts_total",
			Help: "Reservations refused because the size ran out",
		}),
		CompensationsTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "stock_compensations_total",
			Help: "Reservations rolled back after a failed order insert",
		}),
		CoinsDebitedTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "coins_debited_total",
			Help: "Coins charged for exclusive purchases",
		}),
		CoinsCreditedTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "coins_credited_total",
			Help: "Coins refunded on rejection",
		}),
	}
}

func (m *OrderMetrics) OrderCreated(payment string) {
	if m == nil {
		return
	}
	m.OrdersCreatedTotal.WithLabelValues(payment).Inc()
}

func (m *OrderMetrics) OrderConfirmed() {
	if m == nil {
		return
	}
	m.OrdersConfirmedTotal.Inc()
}

func (m *OrderMetrics) OrderRejected() {
	if m == nil {
		return
	}
	m.OrdersRejectedTotal.Inc()
}

func (m *OrderMetrics) StockConflict() {
	if m == nil {
		return
	}
	m.StockConflictsTotal.Inc()
}

func (m *OrderMetrics) Compensation() {
	if m == nil {
		return
	}
	m.CompensationsTotal.Inc()
}

func (m *OrderMetrics) CoinsDebited(amount int64) {
	if m == nil {
		return
	}
	m.CoinsDebitedTotal.Add(float64(amount))
}

func (m *OrderMetrics) CoinsCredited(amount int64) {
	if m == nil {
		return
	}
	m.CoinsCreditedTotal.Add(float64(amount))
}
