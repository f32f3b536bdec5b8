package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// HTTP
	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "route", "code"},
	)
	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route", "code"},
	)

	// Pledgeball remote API
	remoteRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pledgeball_requests_total",
			Help: "Total number of Pledgeball API requests.",
		},
		[]string{"operation"},
	)
	remoteErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pledgeball_errors_total",
			Help: "Total number of failed Pledgeball API requests.",
		},
		[]string{"operation"},
	)
	remoteDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "pledgeball_request_duration_seconds",
			Help:    "Pledgeball API request duration in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"},
	)

	// Business
	pledgesSubmitted = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "pledges_submitted_total",
			Help: "Total number of validated pledge submissions dispatched.",
		},
	)
	pledgesQueued = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "pledges_queued_total",
			Help: "Total number of submissions cached after a failed delivery.",
		},
	)
	pledgesDelivered = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pledges_delivered_total",
			Help: "Total number of submissions confirmed delivered to Pledgeball.",
		},
		[]string{"source"},
	)
	pledgesDeadLettered = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "pledges_dead_lettered_total",
			Help: "Total number of submissions parked after exhausting delivery attempts.",
		},
	)
	queueLagSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "pledge_queue_lag_seconds",
			Help:    "Lag between submission time and a queue runner delivery attempt (seconds).",
			Buckets: []float64{1, 5, 30, 60, 300, 900, 3600, 14400, 86400, 604800},
		},
	)

	// Queue gauges (DB collector)
	queuePending = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "pledge_queue_pending",
			Help: "Current number of queued submissions awaiting delivery.",
		},
	)
	queueEvents = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "pledge_queue_events",
			Help: "Current number of events with a non-empty queue.",
		},
	)
	metaValues = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "event_meta_values",
			Help: "Current count of stored values by meta key.",
		},
		[]string{"meta_key"},
	)

	// Delivery events (Kafka)
	deliveryEventsPublished = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "delivery_events_published_total",
			Help: "Total number of delivery events published to Kafka.",
		},
	)
	deliveryEventErrors = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "delivery_event_errors_total",
			Help: "Total number of delivery events that failed to publish.",
		},
	)
)

var registerOnce sync.Once

func Register() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			httpRequests,
			httpDuration,

			remoteRequests,
			remoteErrors,
			remoteDuration,

			pledgesSubmitted,
			pledgesQueued,
			pledgesDelivered,
			pledgesDeadLettered,
			queueLagSeconds,

			queuePending,
			queueEvents,
			metaValues,

			deliveryEventsPublished,
			deliveryEventErrors,
		)
		registerRedisMetrics()
	})
}

func Handler() http.Handler {
	return promhttp.Handler()
}

// --- HTTP ---
func ObserveHTTPRequest(method, route, code string, d time.Duration) {
	httpRequests.WithLabelValues(method, route, code).Inc()
	httpDuration.WithLabelValues(method, route, code).Observe(d.Seconds())
}

// --- Pledgeball remote API ---
func IncRemoteRequest(op string) { remoteRequests.WithLabelValues(op).Inc() }
func IncRemoteError(op string)   { remoteErrors.WithLabelValues(op).Inc() }
func ObserveRemoteDuration(op string, d time.Duration) {
	remoteDuration.WithLabelValues(op).Observe(d.Seconds())
}

// --- Business ---
func IncPledgeSubmitted() { pledgesSubmitted.Inc() }
func IncPledgeQueued()    { pledgesQueued.Inc() }
func IncPledgeDelivered(source string) {
	pledgesDelivered.WithLabelValues(source).Inc()
}
func IncPledgeDeadLettered() { pledgesDeadLettered.Inc() }
func ObserveQueueLagSeconds(sec float64) {
	if sec < 0 {
		sec = 0
	}
	queueLagSeconds.Observe(sec)
}

// --- Gauges (DB collector) ---
func SetQueuePending(count int64) {
	if count < 0 {
		count = 0
	}
	queuePending.Set(float64(count))
}
func SetQueueEvents(count int64) {
	if count < 0 {
		count = 0
	}
	queueEvents.Set(float64(count))
}
func SetMetaValueCount(key string, count int64) {
	if count < 0 {
		count = 0
	}
	metaValues.WithLabelValues(key).Set(float64(count))
}

// --- Delivery events ---
func IncDeliveryEventPublished() { deliveryEventsPublished.Inc() }
func IncDeliveryEventError()     { deliveryEventErrors.Inc() }
