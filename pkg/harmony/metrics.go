package harmony

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	outcomeSuccess = "success"
	outcomeFailure = "failure"
)

// Metrics counts outbound calls. A nil *Metrics is valid and records nothing.
type Metrics struct {
	callsTotal     *prometheus.CounterVec
	tokenRefreshes *prometheus.CounterVec
	tokenCacheHits prometheus.Counter
}

// NewMetrics registers the client collectors on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		callsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "harmony",
			Name:      "api_calls_total",
			Help:      "Outbound Epsilon Harmony calls by method, status code and outcome.",
		}, []string{"method", "status_code", "outcome"}),
		tokenRefreshes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "harmony",
			Name:      "token_refreshes_total",
			Help:      "OAuth2 token acquisitions by outcome.",
		}, []string{"outcome"}),
		tokenCacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "harmony",
			Name:      "token_cache_hits_total",
			Help:      "Requests served with a cached bearer token.",
		}),
	}
	reg.MustRegister(m.callsTotal, m.tokenRefreshes, m.tokenCacheHits)
	return m
}

func (m *Metrics) observeCall(method string, statusCode int, outcome string) {
	if m == nil {
		return
	}
	m.callsTotal.WithLabelValues(method, strconv.Itoa(statusCode), outcome).Inc()
}

func (m *Metrics) observeRefresh(outcome string) {
	if m == nil {
		return
	}
	m.tokenRefreshes.WithLabelValues(outcome).Inc()
}

func (m *Metrics) observeCacheHit() {
	if m == nil {
		return
	}
	m.tokenCacheHits.Inc()
}
