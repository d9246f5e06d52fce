package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func init() {
	register(
		wsSubscribers,
		eventsPublished,
		eventsDropped,
		httpRequests,
		httpLatency,
	)
}

var (
	wsSubscribers = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "flipradar_ws_subscribers",
			Help: "Connected WebSocket subscribers.",
		},
	)

	eventsPublished = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "flipradar_events_published_total",
			Help: "Events published to the hub, by type.",
		},
		[]string{"type"},
	)

	eventsDropped = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "flipradar_events_dropped_total",
			Help: "Events dropped because a subscriber buffer was full.",
		},
	)

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "flipradar_http_requests_total",
			Help: "HTTP requests by method, route pattern and status code.",
		},
		[]string{"method", "route", "code"},
	)

	httpLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "flipradar_http_request_duration_ms",
			Help:    "HTTP request latency in milliseconds.",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500},
		},
		[]string{"method", "route"},
	)
)

func SetSubscribers(n int) { wsSubscribers.Set(float64(n)) }

func EventPublished(eventType string) { eventsPublished.WithLabelValues(norm(eventType)).Inc() }

func EventDropped() { eventsDropped.Inc() }

// ObserveHTTP records one request. route should be the router pattern, not
// the raw path, to keep label cardinality bounded.
func ObserveHTTP(method, route string, code int, elapsed time.Duration) {
	if route == "" {
		route = "unmatched"
	}
	httpRequests.WithLabelValues(method, route, strconv.Itoa(code)).Inc()
	httpLatency.WithLabelValues(method, route).Observe(float64(elapsed.Milliseconds()))
}
