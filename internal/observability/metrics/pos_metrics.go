package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// POSMetrics counts business events on the transactional core.
type POSMetrics struct {
	ordersValidated     prometheus.Counter
	ordersRejected      *prometheus.CounterVec
	stockMovements      *prometheus.CounterVec
	insufficientStock   prometheus.Counter
	paymentsRecorded    *prometheus.CounterVec
	paymentAmount       *prometheus.CounterVec
	authorizationDenied *prometheus.CounterVec
	tenantsExpired      prometheus.Counter
}

var (
	posMetricsOnce sync.Once
	posMetrics     *POSMetrics
)

func POS() *POSMetrics {
	return POSWithConfig(Config{})
}

func POSWithConfig(cfg Config) *POSMetrics {
	posMetricsOnce.Do(func() {
		posMetrics = newPOSMetrics(prometheus.DefaultRegisterer, cfg)
	})
	return posMetrics
}

func ResetPOSMetricsForTest() {
	posMetricsOnce = sync.Once{}
	posMetrics = nil
}

func newPOSMetrics(registerer prometheus.Registerer, cfg Config) *POSMetrics {
	constLabels := cfg.constLabels()
	m := &POSMetrics{
		ordersValidated: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "comptoir_orders_validated_total",
			Help:        "Orders moved from pending to validated.",
			ConstLabels: constLabels,
		}),
		ordersRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "comptoir_orders_validation_rejected_total",
			Help:        "Order validations rejected by reason.",
			ConstLabels: constLabels,
		}, []string{"reason"}),
		stockMovements: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "comptoir_stock_movements_total",
			Help:        "Stock ledger movements by direction and reference kind.",
			ConstLabels: constLabels,
		}, []string{"direction", "reference_kind"}),
		insufficientStock: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "comptoir_stock_insufficient_total",
			Help:        "Outbound movements refused because available stock was too low.",
			ConstLabels: constLabels,
		}),
		paymentsRecorded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "comptoir_payments_recorded_total",
			Help:        "Payments recorded by method.",
			ConstLabels: constLabels,
		}, []string{"method"}),
		paymentAmount: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "comptoir_payments_amount_total",
			Help:        "Sum of recorded payment amounts in minor units by method.",
			ConstLabels: constLabels,
		}, []string{"method"}),
		authorizationDenied: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "comptoir_authorization_denied_total",
			Help:        "Operations rejected by the access control layer.",
			ConstLabels: constLabels,
		}, []string{"object", "action"}),
		tenantsExpired: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "comptoir_tenants_expired_total",
			Help:        "Tenants moved to expired by the subscription job.",
			ConstLabels: constLabels,
		}),
	}
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	registerer.MustRegister(
		m.ordersValidated,
		m.ordersRejected,
		m.stockMovements,
		m.insufficientStock,
		m.paymentsRecorded,
		m.paymentAmount,
		m.authorizationDenied,
		m.tenantsExpired,
	)
	return m
}

func (m *POSMetrics) IncOrderValidated() {
	if m == nil {
		return
	}
	m.ordersValidated.Inc()
}

func (m *POSMetrics) IncOrderRejected(reason string) {
	if m == nil {
		return
	}
	m.ordersRejected.WithLabelValues(reason).Inc()
}

func (m *POSMetrics) IncStockMovement(direction, referenceKind string) {
	if m == nil {
		return
	}
	m.stockMovements.WithLabelValues(direction, referenceKind).Inc()
}

func (m *POSMetrics) IncInsufficientStock() {
	if m == nil {
		return
	}
	m.insufficientStock.Inc()
}

func (m *POSMetrics) ObservePayment(method string, amount int64) {
	if m == nil {
		return
	}
	m.paymentsRecorded.WithLabelValues(method).Inc()
	if amount > 0 {
		m.paymentAmount.WithLabelValues(method).Add(float64(amount))
	}
}

func (m *POSMetrics) IncAuthorizationDenied(object, action string) {
	if m == nil {
		return
	}
	m.authorizationDenied.WithLabelValues(object, action).Inc()
}

func (m *POSMetrics) AddTenantsExpired(count int) {
	if m == nil || count <= 0 {
		return
	}
	m.tenantsExpired.Add(float64(count))
}
