package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once sync.Once

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "booking_api",
			Name:      "http_requests_total",
			Help:      "HTTP requests by path and status.",
		},
		[]string{"path", "status"},
	)

	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "booking_api",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by path.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"path"},
	)

	bookingTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "booking_api",
			Name:      "booking_transitions_total",
			Help:      "Booking state transitions by target state.",
		},
		[]string{"state"},
	)

	holdsExpired = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "booking_api",
			Name:      "holds_expired_total",
			Help:      "ON_HOLD bookings cancelled by the expiry sweeper.",
		},
	)

	conversionsRecorded = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "booking_api",
			Name:      "affiliate_conversions_total",
			Help:      "Affiliate conversions recorded by provider.",
		},
		[]string{"provider"},
	)
)

// Register registers all collectors. Safe to call more than once.
func Register() {
	once.Do(func() {
		prometheus.MustRegister(
			httpRequests,
			httpDuration,
			bookingTransitions,
			holdsExpired,
			conversionsRecorded,
		)
	})
}

func ObserveRequest(path, status string, elapsed time.Duration) {
	httpRequests.WithLabelValues(path, status).Inc()
	httpDuration.WithLabelValues(path).Observe(elapsed.Seconds())
}

func IncBookingTransition(state string) {
	bookingTransitions.WithLabelValues(state).Inc()
}

func IncHoldsExpired(n int) {
	holdsExpired.Add(float64(n))
}

func IncConversion(provider string) {
	conversionsRecorded.WithLabelValues(provider).Inc()
}
