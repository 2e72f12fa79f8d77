package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	EventsAcceptedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "hookline_events_accepted_total",
			Help: "Total number of events accepted for delivery.",
		},
	)

	EventsRejectedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hookline_events_rejected_total",
			Help: "Total number of rejected ingestion requests by reason.",
		},
		[]string{"reason"}, // unauthenticated, invalid_payload, no_destinations, rate_limited, internal
	)

	DeliveriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hookline_deliveries_total",
			Help: "Total number of delivery attempts by terminal status.",
		},
		[]string{"status"}, // success, failed
	)

	RetriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hookline_retries_total",
			Help: "Total number of delivery retries by reason.",
		},
		[]string{"reason"}, // e.g. http_5xx, timeout, network
	)

	DeadLetterTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "hookline_dead_letter_total",
			Help: "Total number of deliveries that exhausted their attempt budget.",
		},
	)

	DispatchLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "hookline_dispatch_latency_seconds",
			Help:    "Outbound webhook call latency by status class.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"class"}, // 2xx, 3xx, 4xx, 5xx, error
	)

	QueueBacklog = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "hookline_queue_backlog",
			Help: "Depth of the deliveries channel as observed from nsqd stats.",
		},
	)

	ReclaimedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "hookline_reclaimed_total",
			Help: "Total number of stale processing attempts requeued by the reclaimer.",
		},
	)
)

func MustRegister(reg *prometheus.Registry) {
	reg.MustRegister(
		EventsAcceptedTotal,
		EventsRejectedTotal,
		DeliveriesTotal,
		RetriesTotal,
		DeadLetterTotal,
		DispatchLatency,
		QueueBacklog,
		ReclaimedTotal,
	)
}

// RecordAccepted increments the accepted-events counter
func RecordAccepted() {
	EventsAcceptedTotal.Inc()
}

// RecordRejected increments the rejection counter for the given reason
func RecordRejected(reason string) {
	EventsRejectedTotal.WithLabelValues(reason).Inc()
}

// RecordDelivery records a terminal delivery outcome
func RecordDelivery(status string) {
	DeliveriesTotal.WithLabelValues(status).Inc()
}

// RecordRetry increments the retry counter for the given failure reason
func RecordRetry(reason string) {
	RetriesTotal.WithLabelValues(reason).Inc()
}

// RecordDeadLetter increments the exhausted-attempts counter
func RecordDeadLetter() {
	DeadLetterTotal.Inc()
}

// RecordDispatch observes one outbound call latency under its status class
func RecordDispatch(statusClass string, latency time.Duration) {
	DispatchLatency.WithLabelValues(statusClass).Observe(latency.Seconds())
}

// UpdateBacklog sets the current queue depth gauge
func UpdateBacklog(depth float64) {
	QueueBacklog.Set(depth)
}

// RecordReclaimed increments the stale-attempt reclaim counter
func RecordReclaimed() {
	ReclaimedTotal.Inc()
}
