package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "slotkeeper"

var (
	once sync.Once

	bookingAttempts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "booking_attempts_total",
			Help:      "Booking attempts by terminal outcome.",
		},
		[]string{"outcome"},
	)

	slotConflicts = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "slot_conflicts_total",
			Help:      "Reservation requests that lost the slot to an overlapping hold or booking.",
		},
	)

	settlements = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "settlements_total",
			Help:      "Transactions settled by final state.",
		},
		[]string{"state"},
	)

	cancellations = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reservations_cancelled_total",
			Help:      "Reservations cancelled by their owner or an admin.",
		},
	)

	expired = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reservations_expired_total",
			Help:      "Pending reservations moved to EXPIRED by the reaper.",
		},
	)

	eventsPublished = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_published_total",
			Help:      "Lifecycle events handed to the broker by result.",
		},
		[]string{"type", "result"},
	)

	httpRequests = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route and status class.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "status"},
	)
)

// Register registers metrics (idempotent).
func Register() {
	once.Do(func() {
		prometheus.MustRegister(
			bookingAttempts,
			slotConflicts,
			settlements,
			cancellations,
			expired,
			eventsPublished,
			httpRequests,
		)
	})
}

func IncBookingAttempt(outcome string) {
	bookingAttempts.WithLabelValues(outcome).Inc()
}

func IncSlotConflict() {
	slotConflicts.Inc()
}

func IncSettlement(state string) {
	settlements.WithLabelValues(state).Inc()
}

func IncCancellation() {
	cancellations.Inc()
}

func AddExpired(n int) {
	if n > 0 {
		expired.Add(float64(n))
	}
}

func IncEventPublished(eventType, result string) {
	eventsPublished.WithLabelValues(eventType, result).Inc()
}

func ObserveHTTPRequest(method, status string, seconds float64) {
	httpRequests.WithLabelValues(method, status).Observe(seconds)
}
