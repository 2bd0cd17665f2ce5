package balances

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics exposes Prometheus collectors for aggregate recomputes.
type Metrics struct {
	recomputes *prometheus.CounterVec
	retries    prometheus.Counter
}

var (
	defaultOnce    sync.Once
	defaultMetrics *Metrics
)

// NewMetrics registers the recompute metrics against registerer. A nil
// registerer uses the default Prometheus registerer.
func NewMetrics(registerer prometheus.Registerer) *Metrics {
	if registerer == nil {
		defaultOnce.Do(func() {
			defaultMetrics = buildMetrics(prometheus.DefaultRegisterer)
		})
		return defaultMetrics
	}
	return buildMetrics(registerer)
}

func buildMetrics(registerer prometheus.Registerer) *Metrics {
	recomputes := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "odyssey_books_recompute_total",
		Help: "Aggregate recomputes partitioned by aggregate and result (changed, noop, error).",
	}, []string{"aggregate", "result"})
	retries := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "odyssey_books_recompute_retries_total",
		Help: "Transactions re-run after a concurrency conflict.",
	})
	registerer.MustRegister(recomputes, retries)
	return &Metrics{recomputes: recomputes, retries: retries}
}

func (m *Metrics) observe(agg Aggregate, out Outcome, err error) {
	if m == nil {
		return
	}
	result := "noop"
	switch {
	case err != nil:
		result = "error"
	case out.Changed:
		result = "changed"
	}
	m.recomputes.WithLabelValues(string(agg), result).Inc()
}

func (m *Metrics) retried() {
	if m == nil {
		return
	}
	m.retries.Inc()
}
