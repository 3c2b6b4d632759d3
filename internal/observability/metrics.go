package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups all Prometheus instruments used by the service.
type Metrics struct {
	HTTPRequests    *prometheus.CounterVec
	HTTPLatency     *prometheus.HistogramVec
	TodoMutations   *prometheus.CounterVec
	LiveTodos       prometheus.Gauge
	FeedSubscribers prometheus.Gauge

	latency *latencyWindow
}

func NewMetrics(namespace string) *Metrics {
	return &Metrics{
		HTTPRequests: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by route, method and status.",
		}, []string{"route", "method", "status"}),
		HTTPLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_ms",
			Help:      "HTTP request latency in milliseconds.",
			Buckets:   []float64{1, 2, 5, 10, 25, 50, 100, 250, 500, 1000},
		}, []string{"route", "method"}),
		TodoMutations: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "todo_mutations_total",
			Help:      "Successful todo mutations by operation.",
		}, []string{"op"}),
		LiveTodos: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "todos_live",
			Help:      "Number of todos currently stored.",
		}),
		FeedSubscribers: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "feed_subscribers",
			Help:      "Open change-feed websocket connections.",
		}),
		latency: newLatencyWindow(256),
	}
}

func (m *Metrics) ObserveRequest(route, method string, status int, d time.Duration) {
	if m == nil {
		return
	}
	if route == "" {
		route = "unmatched"
	}
	ms := float64(d.Microseconds()) / 1000
	m.HTTPRequests.WithLabelValues(route, method, statusLabel(status)).Inc()
	m.HTTPLatency.WithLabelValues(route, method).Observe(ms)
	m.latency.Observe(method+" "+route, ms)
	m.latency.ObserveIndicator(statusClass(status))
}

func (m *Metrics) ObserveMutation(op string) {
	if m == nil {
		return
	}
	m.TodoMutations.WithLabelValues(op).Inc()
}

func (m *Metrics) SnapshotLatency() LatencySnapshot {
	if m == nil {
		return LatencySnapshot{Routes: []RouteLatency{}}
	}
	return m.latency.Snapshot()
}

func MetricsHandler() http.Handler {
	return promhttp.Handler()
}

func statusLabel(status int) string {
	if status <= 0 {
		status = http.StatusOK
	}
	return strconv.Itoa(status)
}

func statusClass(status int) string {
	switch {
	case status >= 500:
		return "5xx"
	case status >= 400:
		return "4xx"
	case status >= 300:
		return "3xx"
	default:
		return "2xx"
	}
}
