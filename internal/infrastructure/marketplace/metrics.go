package marketplace

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics counts outbound marketplace calls by endpoint and outcome. A nil
// Metrics disables collection.
type Metrics struct {
	CallsTotal *prometheus.CounterVec
}

// NewMetrics registers the marketplace call counters on the given registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	return &Metrics{
		CallsTotal: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "marketplace_calls_total",
			Help: "Outbound marketplace API calls by endpoint and outcome.",
		}, []string{"endpoint", "outcome"}),
	}
}

func (m *Metrics) record(endpoint string, status int, err error) {
	if m == nil {
		return
	}
	outcome := "error"
	if err == nil {
		outcome = strconv.Itoa(status)
	}
	m.CallsTotal.WithLabelValues(endpoint, outcome).Inc()
}
