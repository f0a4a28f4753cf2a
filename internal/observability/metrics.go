package observability

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics stores Prometheus collectors used by the relay pipeline and the
// operator HTTP surface.
type Metrics struct {
	registry *prometheus.Registry

	httpRequestsTotal    *prometheus.CounterVec
	httpRequestDuration  *prometheus.HistogramVec
	bookingsRelayedTotal prometheus.Counter
	bookingsSkippedTotal *prometheus.CounterVec
	relayFailedTotal     *prometheus.CounterVec
	deliveryDuration     prometheus.Histogram
	deliveriesInflight   prometheus.Gauge
	dedupCacheEntries    prometheus.Gauge
	connectionState      prometheus.Gauge
	reconnectsTotal      prometheus.Counter
}

func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		httpRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "dbmiddleware",
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests processed by method, path, and status.",
			},
			[]string{"method", "path", "status"},
		),
		httpRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "dbmiddleware",
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds by method and path.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
		bookingsRelayedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "dbmiddleware",
				Name:      "bookings_relayed_total",
				Help:      "Total number of bookings accepted by the sink.",
			},
		),
		bookingsSkippedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "dbmiddleware",
				Name:      "bookings_skipped_total",
				Help:      "Total number of observed bookings dropped before delivery, by reason.",
			},
			[]string{"reason"},
		),
		relayFailedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "dbmiddleware",
				Name:      "relay_failed_total",
				Help:      "Total number of bookings whose delivery ended in terminal failure, by reason.",
			},
			[]string{"reason"},
		),
		deliveryDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: "dbmiddleware",
				Name:      "delivery_duration_seconds",
				Help:      "Sink delivery duration in seconds, including retries.",
				Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12),
			},
		),
		deliveriesInflight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "dbmiddleware",
				Name:      "deliveries_inflight",
				Help:      "Current number of in-flight sink deliveries.",
			},
		),
		dedupCacheEntries: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "dbmiddleware",
				Name:      "dedup_cache_entries",
				Help:      "Current number of booking ids held in the dedup cache.",
			},
		),
		connectionState: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "dbmiddleware",
				Name:      "source_connection_state",
				Help:      "Source watch connection state (0 connecting, 1 connected, 2 disconnected, 3 error).",
			},
		),
		reconnectsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "dbmiddleware",
				Name:      "source_reconnects_total",
				Help:      "Total number of source watch reconnection attempts.",
			},
		),
	}

	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.httpRequestsTotal,
		m.httpRequestDuration,
		m.bookingsRelayedTotal,
		m.bookingsSkippedTotal,
		m.relayFailedTotal,
		m.deliveryDuration,
		m.deliveriesInflight,
		m.dedupCacheEntries,
		m.connectionState,
		m.reconnectsTotal,
	)

	return m
}

func (m *Metrics) Handler() http.Handler {
	if m == nil || m.registry == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) HTTPMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()

		path := routePath(c)
		// Avoid self-scrape noise for request counters.
		if path == "/metrics" {
			return err
		}

		m.recordHTTPRequest(c.Method(), path, statusFromResult(c, err), time.Since(start))
		return err
	}
}

func (m *Metrics) IncBookingRelayed() {
	if m == nil {
		return
	}
	m.bookingsRelayedTotal.Inc()
}

func (m *Metrics) IncBookingSkipped(reason string) {
	if m == nil {
		return
	}
	m.bookingsSkippedTotal.WithLabelValues(normalizeReason(reason)).Inc()
}

func (m *Metrics) IncRelayFailed(reason string) {
	if m == nil {
		return
	}
	m.relayFailedTotal.WithLabelValues(normalizeReason(reason)).Inc()
}

func (m *Metrics) ObserveDeliveryDuration(duration time.Duration) {
	if m == nil {
		return
	}
	seconds := duration.Seconds()
	if seconds < 0 {
		seconds = 0
	}
	m.deliveryDuration.Observe(seconds)
}

func (m *Metrics) IncDeliveriesInFlight() {
	if m == nil {
		return
	}
	m.deliveriesInflight.Inc()
}

func (m *Metrics) DecDeliveriesInFlight() {
	if m == nil {
		return
	}
	m.deliveriesInflight.Dec()
}

func (m *Metrics) SetDedupCacheEntries(count int) {
	if m == nil {
		return
	}
	m.dedupCacheEntries.Set(float64(count))
}

func (m *Metrics) SetConnectionState(state int) {
	if m == nil {
		return
	}
	m.connectionState.Set(float64(state))
}

func (m *Metrics) IncReconnects() {
	if m == nil {
		return
	}
	m.reconnectsTotal.Inc()
}

func (m *Metrics) recordHTTPRequest(method string, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}

	methodLabel := strings.ToUpper(strings.TrimSpace(method))
	if methodLabel == "" {
		methodLabel = "UNKNOWN"
	}
	pathLabel := strings.TrimSpace(path)
	if pathLabel == "" {
		pathLabel = "unmatched"
	}

	m.httpRequestsTotal.WithLabelValues(methodLabel, pathLabel, strconv.Itoa(status)).Inc()
	m.httpRequestDuration.WithLabelValues(methodLabel, pathLabel).Observe(duration.Seconds())
}

func routePath(c *fiber.Ctx) string {
	if c == nil {
		return "unmatched"
	}

	if route := c.Route(); route != nil {
		if path := strings.TrimSpace(route.Path); path != "" {
			return path
		}
	}
	return "unmatched"
}

func statusFromResult(c *fiber.Ctx, err error) int {
	if err != nil {
		if fiberErr, ok := err.(*fiber.Error); ok {
			return fiberErr.Code
		}
		return fiber.StatusInternalServerError
	}

	if c == nil {
		return fiber.StatusOK
	}

	status := c.Response().StatusCode()
	if status == 0 {
		return fiber.StatusOK
	}
	return status
}

func normalizeReason(reason string) string {
	normalized := strings.ToLower(strings.TrimSpace(reason))
	if normalized == "" {
		return "unknown"
	}
	return normalized
}
