package metrics

import "github.com/prometheus/client_golang/prometheus"

// Order sources for OrderPersisted.
const (
	SourceSubmit    = "submit"
	SourceVerify    = "verify"
	SourceReconcile = "reconcile"
)

// CheckoutMetrics counts each hop of the payment round trip so a gap between
// verified payments and persisted orders is visible on a dashboard.
type CheckoutMetrics struct {
	gatewayOrders *prometheus.CounterVec
	verifications *prometheus.CounterVec
	persisted     *prometheus.CounterVec
}

func NewCheckoutMetrics(reg prometheus.Registerer) *CheckoutMetrics {
	if reg == nil {
		return &CheckoutMetrics{}
	}
	m := &CheckoutMetrics{
		gatewayOrders: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "gateway_orders_total",
			Help:      "Gateway order creation attempts by result.",
		}, []string{"result"}),
		verifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "payment_verifications_total",
			Help:      "Payment signature verifications by result.",
		}, []string{"result"}),
		persisted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "orders_confirmed_total",
			Help:      "Orders moved to confirmed, by the path that confirmed them.",
		}, []string{"source"}),
	}
	reg.MustRegister(m.gatewayOrders, m.verifications, m.persisted)
	return m
}

func (m *CheckoutMetrics) GatewayOrder(err error) {
	if m == nil || m.gatewayOrders == nil {
		return
	}
	m.gatewayOrders.WithLabelValues(resultLabel(err)).Inc()
}

// Verification records "valid", "invalid" or "error".
func (m *CheckoutMetrics) Verification(result string) {
	if m == nil || m.verifications == nil {
		return
	}
	m.verifications.WithLabelValues(normalizeLabel(result)).Inc()
}

func (m *CheckoutMetrics) OrderConfirmed(source string) {
	if m == nil || m.persisted == nil {
		return
	}
	m.persisted.WithLabelValues(normalizeLabel(source)).Inc()
}
