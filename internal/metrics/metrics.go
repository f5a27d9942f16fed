// Package metrics defines the Prometheus collectors for Homewatch Core.
//
// All methods on a nil *Collector are no-ops, so components take an
// optional collector without guarding every call site.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "homewatch"

// Discard reasons for ingested messages.
const (
	ReasonNoRoute       = "no_route"
	ReasonUnknownDevice = "unknown_device"
	ReasonBadValue      = "bad_value"
	ReasonStoreError    = "store_error"
	ReasonPanic         = "panic"
)

// Collector holds every metric the service exports.
type Collector struct {
	registry prometheus.Gatherer

	ingestReceived  prometheus.Counter
	ingestStored    *prometheus.CounterVec
	ingestDiscarded *prometheus.CounterVec
	ingestDuration  prometheus.Histogram
	ingestQueue     prometheus.Gauge
	busConnected    prometheus.Gauge
	busReconnects   prometheus.Counter

	commands        *prometheus.CounterVec
	publishDuration prometheus.Histogram

	observers       prometheus.Gauge
	observerDropped prometheus.Counter

	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec

	readingsPurged prometheus.Counter
}

// New creates a collector on a fresh registry that also carries the Go
// runtime and process collectors.
func New() *Collector {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return NewCollector(reg, reg)
}

// NewCollector registers the service metrics on reg. gatherer backs
// Handler and may be nil when the caller serves metrics elsewhere.
func NewCollector(reg prometheus.Registerer, gatherer prometheus.Gatherer) *Collector {
	c := &Collector{
		registry: gatherer,

		ingestReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "ingest", Name: "messages_received_total",
			Help: "Bus messages received by the ingestion bridge.",
		}),
		ingestStored: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "ingest", Name: "messages_stored_total",
			Help: "Bus messages applied to the registry, by measurement type.",
		}, []string{"type"}),
		ingestDiscarded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "ingest", Name: "messages_discarded_total",
			Help: "Bus messages discarded, by reason.",
		}, []string{"reason"}),
		ingestDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace, Subsystem: "ingest", Name: "message_duration_seconds",
			Help:    "Time to process one bus message.",
			Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
		}),
		ingestQueue: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "ingest", Name: "queue_depth",
			Help: "Messages waiting for the ingestion worker.",
		}),
		busConnected: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "bus", Name: "connected",
			Help: "1 when the MQTT connection is up.",
		}),
		busReconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "bus", Name: "connections_lost_total",
			Help: "MQTT connection losses.",
		}),

		commands: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "control", Name: "commands_total",
			Help: "Device commands by path (bus or local) and outcome.",
		}, []string{"path", "status"}),
		publishDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace, Subsystem: "control", Name: "publish_duration_seconds",
			Help:    "Command publish latency.",
			Buckets: prometheus.DefBuckets,
		}),

		observers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "observer", Name: "clients",
			Help: "Connected live event clients.",
		}),
		observerDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "observer", Name: "dropped_total",
			Help: "Events dropped because a client's buffer was full.",
		}),

		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "http", Name: "requests_total",
			Help: "HTTP requests by route pattern, method and status.",
		}, []string{"route", "method", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Subsystem: "http", Name: "request_duration_seconds",
			Help:    "HTTP request latency by route pattern.",
			Buckets: prometheus.DefBuckets,
		}, []string{"route"}),

		readingsPurged: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "telemetry", Name: "readings_purged_total",
			Help: "Readings deleted by retention.",
		}),
	}

	reg.MustRegister(
		c.ingestReceived, c.ingestStored, c.ingestDiscarded, c.ingestDuration, c.ingestQueue,
		c.busConnected, c.busReconnects,
		c.commands, c.publishDuration,
		c.observers, c.observerDropped,
		c.httpRequests, c.httpDuration,
		c.readingsPurged,
	)
	return c
}

// Handler serves the scrape endpoint.
func (c *Collector) Handler() http.Handler {
	if c == nil || c.registry == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

func (c *Collector) MessageReceived() {
	if c == nil {
		return
	}
	c.ingestReceived.Inc()
}

func (c *Collector) MessageStored(measurementType string) {
	if c == nil {
		return
	}
	c.ingestStored.WithLabelValues(measurementType).Inc()
}

func (c *Collector) MessageDiscarded(reason string) {
	if c == nil {
		return
	}
	c.ingestDiscarded.WithLabelValues(reason).Inc()
}

func (c *Collector) ObserveIngest(d time.Duration) {
	if c == nil {
		return
	}
	c.ingestDuration.Observe(d.Seconds())
}

func (c *Collector) SetQueueDepth(n int) {
	if c == nil {
		return
	}
	c.ingestQueue.Set(float64(n))
}

// SetBusConnected records the MQTT link state. A transition to down also
// counts a lost connection.
func (c *Collector) SetBusConnected(up bool) {
	if c == nil {
		return
	}
	if up {
		c.busConnected.Set(1)
		return
	}
	c.busConnected.Set(0)
	c.busReconnects.Inc()
}

func (c *Collector) CommandDispatched(path, status string) {
	if c == nil {
		return
	}
	c.commands.WithLabelValues(path, status).Inc()
}

func (c *Collector) ObservePublish(d time.Duration) {
	if c == nil {
		return
	}
	c.publishDuration.Observe(d.Seconds())
}

func (c *Collector) SetObservers(n int) {
	if c == nil {
		return
	}
	c.observers.Set(float64(n))
}

func (c *Collector) ObserverDropped() {
	if c == nil {
		return
	}
	c.observerDropped.Inc()
}

func (c *Collector) ObserveHTTP(route, method string, status int, d time.Duration) {
	if c == nil {
		return
	}
	c.httpRequests.WithLabelValues(route, method, strconv.Itoa(status)).Inc()
	c.httpDuration.WithLabelValues(route).Observe(d.Seconds())
}

func (c *Collector) ReadingsPurged(n int64) {
	if c == nil || n <= 0 {
		return
	}
	c.readingsPurged.Add(float64(n))
}
