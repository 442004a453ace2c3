package server

import (
	"net/http"
	"strconv"
	"time"

	"github.com/jrsteele09/stratgate/auth"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const metricsNamespace = "stratgate"

// Metrics holds the gateway's collectors on a private registry so that
// several servers can coexist in one process.
type Metrics struct {
	registry *prometheus.Registry

	httpRequests     *prometheus.CounterVec
	httpDuration     *prometheus.HistogramVec
	proxiedRequests  *prometheus.CounterVec
	sessionStates    *prometheus.CounterVec
	upstreamFailures prometheus.Counter
}

func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		httpRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "http_requests_total",
				Help:      "HTTP requests handled, by method and status code",
			},
			[]string{"method", "code"},
		),
		httpDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Name:      "http_request_duration_seconds",
				Help:      "Time until the handler returned, including streamed bodies",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method"},
		),
		proxiedRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: "gateway",
				Name:      "proxied_requests_total",
				Help:      "Requests relayed to the API origin, by credential mode and origin status",
			},
			[]string{"mode", "code"},
		),
		sessionStates: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: "session",
				Name:      "resolutions_total",
				Help:      "Session resolutions by outcome",
			},
			[]string{"state"},
		),
		upstreamFailures: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: "gateway",
				Name:      "upstream_failures_total",
				Help:      "Requests that could not reach the API origin",
			},
		),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.httpRequests,
		m.httpDuration,
		m.proxiedRequests,
		m.sessionStates,
		m.upstreamFailures,
	)
	return m
}

func (m *Metrics) ObserveHTTP(method string, code int, elapsed time.Duration) {
	m.httpRequests.WithLabelValues(method, strconv.Itoa(code)).Inc()
	m.httpDuration.WithLabelValues(method).Observe(elapsed.Seconds())
}

func (m *Metrics) ObserveProxied(mode auth.Mode, code int) {
	m.proxiedRequests.WithLabelValues(string(mode), strconv.Itoa(code)).Inc()
}

func (m *Metrics) ObserveSessionState(state auth.State) {
	m.sessionStates.WithLabelValues(state.String()).Inc()
}

func (m *Metrics) ObserveUpstreamFailure() {
	m.upstreamFailures.Inc()
}

// Handler exposes the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		ErrorHandling: promhttp.ContinueOnError,
	})
}
