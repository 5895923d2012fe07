package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Registry holds all Prometheus metrics.
type Registry struct {
	*prometheus.Registry

	// HTTP metrics
	httpRequestsTotal    *prometheus.CounterVec
	httpRequestDuration  *prometheus.HistogramVec
	httpRequestsInFlight prometheus.Gauge

	// Access metrics
	accessChecks  *prometheus.CounterVec
	tokensIssued  *prometheus.CounterVec
	tokenRefresh  *prometheus.CounterVec
	deviceResets  prometheus.Counter
	signalFetches *prometheus.CounterVec
	streamClients prometheus.Gauge
}

// NewRegistry creates a new metrics registry with all metrics registered.
func NewRegistry() *Registry {
	reg := prometheus.NewRegistry()

	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	r := &Registry{
		Registry: reg,

		httpRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),

		httpRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),

		httpRequestsInFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "http_requests_in_flight",
				Help: "Number of HTTP requests currently in flight",
			},
		),
	}

	reg.MustRegister(r.httpRequestsTotal)
	reg.MustRegister(r.httpRequestDuration)
	reg.MustRegister(r.httpRequestsInFlight)

	r.accessChecks = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fxhedz_access_checks_total",
			Help: "Access checks by resolved state",
		},
		[]string{"state"},
	)
	r.tokensIssued = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fxhedz_tokens_issued_total",
			Help: "Tokens issued by kind",
		},
		[]string{"kind"},
	)
	r.tokenRefresh = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fxhedz_token_refresh_total",
			Help: "Refresh attempts by result",
		},
		[]string{"result"},
	)
	r.deviceResets = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "fxhedz_device_resets_total",
			Help: "Total number of device binding resets",
		},
	)
	r.signalFetches = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fxhedz_signal_fetch_total",
			Help: "Upstream signal fetches by result",
		},
		[]string{"result"},
	)
	r.streamClients = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "fxhedz_stream_clients",
			Help: "Number of connected signal stream clients",
		},
	)

	reg.MustRegister(r.accessChecks)
	reg.MustRegister(r.tokensIssued)
	reg.MustRegister(r.tokenRefresh)
	reg.MustRegister(r.deviceResets)
	reg.MustRegister(r.signalFetches)
	reg.MustRegister(r.streamClients)

	return r
}

// RecordRequest records metrics for an HTTP request.
func (r *Registry) RecordRequest(method, path string, status int, duration float64) {
	statusStr := statusToString(status)
	r.httpRequestsTotal.WithLabelValues(method, path, statusStr).Inc()
	r.httpRequestDuration.WithLabelValues(method, path).Observe(duration)
}

// InFlightInc increments in-flight requests.
func (r *Registry) InFlightInc() {
	r.httpRequestsInFlight.Inc()
}

// InFlightDec decrements in-flight requests.
func (r *Registry) InFlightDec() {
	r.httpRequestsInFlight.Dec()
}

// RecordAccessCheck records a resolved access state.
func (r *Registry) RecordAccessCheck(state string) {
	r.accessChecks.WithLabelValues(state).Inc()
}

// RecordTokenIssued records an issued token ("access" or "refresh").
func (r *Registry) RecordTokenIssued(kind string) {
	r.tokensIssued.WithLabelValues(kind).Inc()
}

// RecordRefresh records a refresh attempt ("ok", "invalid", "error").
func (r *Registry) RecordRefresh(result string) {
	r.tokenRefresh.WithLabelValues(result).Inc()
}

// RecordDeviceReset records a device reset.
func (r *Registry) RecordDeviceReset() {
	r.deviceResets.Inc()
}

// RecordSignalFetch records an upstream signal fetch ("ok" or "error").
func (r *Registry) RecordSignalFetch(result string) {
	r.signalFetches.WithLabelValues(result).Inc()
}

// StreamOpened increments connected stream clients.
func (r *Registry) StreamOpened() {
	r.streamClients.Inc()
}

// StreamClosed decrements connected stream clients.
func (r *Registry) StreamClosed() {
	r.streamClients.Dec()
}

func statusToString(status int) string {
	switch {
	case status >= 500:
		return "5xx"
	case status >= 400:
		return "4xx"
	case status >= 300:
		return "3xx"
	case status >= 200:
		return "2xx"
	default:
		return "1xx"
	}
}
