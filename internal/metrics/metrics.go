package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once sync.Once

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "staybook",
			Name:      "http_requests_total",
			Help:      "HTTP requests by endpoint and status code.",
		},
		[]string{"endpoint", "code"},
	)

	reservations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "staybook",
			Name:      "reservations_total",
			Help:      "Reservation attempts by booking type and result.",
		},
		[]string{"type", "result"},
	)

	payments = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "staybook",
			Name:      "payments_total",
			Help:      "Payment confirmations by gateway and result.",
		},
		[]string{"gateway", "result"},
	)

	refunds = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "staybook",
			Name:      "refunds_total",
			Help:      "Refund attempts by result.",
		},
		[]string{"result"},
	)

	reaped = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "staybook",
			Name:      "reaper_cancelled_total",
			Help:      "Pending bookings cancelled after their hold expired.",
		},
	)

	availabilityCache = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "staybook",
			Name:      "availability_cache_total",
			Help:      "Availability cache lookups by outcome.",
		},
		[]string{"outcome"},
	)

	relayed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "staybook",
			Name:      "events_relayed_total",
			Help:      "Outbox events relayed to the broker by result.",
		},
		[]string{"result"},
	)
)

// Register registers Prometheus metrics. Safe to call multiple times.
func Register() {
	once.Do(func() {
		prometheus.MustRegister(httpRequests, reservations, payments, refunds, reaped, availabilityCache, relayed)
	})
}

// IncHTTP increments the counter for an endpoint label.
func IncHTTP(endpoint, code string) {
	httpRequests.WithLabelValues(endpoint, code).Inc()
}

func IncReservation(bookingType, result string) {
	reservations.WithLabelValues(bookingType, result).Inc()
}

func IncPayment(gateway, result string) {
	payments.WithLabelValues(gateway, result).Inc()
}

func IncRefund(result string) {
	refunds.WithLabelValues(result).Inc()
}

func IncReaped(n int) {
	reaped.Add(float64(n))
}

func IncAvailabilityCache(outcome string) {
	availabilityCache.WithLabelValues(outcome).Inc()
}

func IncRelayed(result string) {
	relayed.WithLabelValues(result).Inc()
}
