package metrics

import "github.com/prometheus/client_golang/prometheus"

const (
	ResultOK       = "ok"
	ResultRejected = "rejected" // caller or business-rule failure
	ResultError    = "error"
)

type Metrics struct {
	walletOps      *prometheus.CounterVec
	stockOps       *prometheus.CounterVec
	stockConflicts prometheus.Counter
}

func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		walletOps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "snapcart",
			Subsystem: "wallet",
			Name:      "operations_total",
			Help:      "Wallet operations by operation and result.",
		}, []string{"operation", "result"}),
		stockOps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "snapcart",
			Subsystem: "stock",
			Name:      "operations_total",
			Help:      "Variant stock operations by operation and result.",
		}, []string{"operation", "result"}),
		stockConflicts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "snapcart",
			Subsystem: "stock",
			Name:      "version_conflicts_total",
			Help:      "Optimistic stock updates that lost a version race and were retried.",
		}),
	}
	reg.MustRegister(m.walletOps, m.stockOps, m.stockConflicts)
	return m
}

func (m *Metrics) WalletOperation(operation, result string) {
	m.walletOps.WithLabelValues(operation, result).Inc()
}

func (m *Metrics) StockOperation(operation, result string) {
	m.stockOps.WithLabelValues(operation, result).Inc()
}

func (m *Metrics) StockConflict() {
	m.stockConflicts.Inc()
}

// WalletOps and StockOps expose the vectors to tests.
func (m *Metrics) WalletOps() *prometheus.CounterVec { return m.walletOps }

func (m *Metrics) StockOps() *prometheus.CounterVec { return m.stockOps }

func (m *Metrics) StockConflicts() prometheus.Counter { return m.stockConflicts }
