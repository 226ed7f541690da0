package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	MatchesPerformed      prometheus.Counter
	MatchDuration         prometheus.Histogram
	ReservationsHeld      prometheus.Counter
	ReservationsCommitted prometheus.Counter
	ReservationsReleased  prometheus.Counter
	ReservationsExpired   prometheus.Counter
	InsufficientStock     prometheus.Counter
	RequestsExpired       prometheus.Counter
}

// New creates and registers all Prometheus metrics.
func New() *Metrics {
	return &Metrics{
		MatchesPerformed: promauto.NewCounter(prometheus.CounterOpts{
			Name: "hemolink_matches_total",
			Help: "Total number of match queries served",
		}),
		MatchDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "hemolink_match_duration_seconds",
			Help:    "Latency of match queries",
			Buckets: prometheus.DefBuckets,
		}),
		ReservationsHeld: promauto.NewCounter(prometheus.CounterOpts{
			Name: "hemolink_reservations_held_total",
			Help: "Total number of successful inventory reservations",
		}),
		ReservationsCommitted: promauto.NewCounter(prometheus.CounterOpts{
			Name: "hemolink_reservations_committed_total",
			Help: "Total number of committed (fulfilled) reservations",
		}),
		ReservationsReleased: promauto.NewCounter(prometheus.CounterOpts{
			Name: "hemolink_reservations_released_total",
			Help: "Total number of reservations released back to stock",
		}),
		ReservationsExpired: promauto.NewCounter(prometheus.CounterOpts{
			Name: "hemolink_reservations_expired_total",
			Help: "Total number of reservations released by the expiry sweep",
		}),
		InsufficientStock: promauto.NewCounter(prometheus.CounterOpts{
			Name: "hemolink_insufficient_stock_total",
			Help: "Total number of reservations rejected for insufficient stock",
		}),
		RequestsExpired: promauto.NewCounter(prometheus.CounterOpts{
			Name: "hemolink_requests_expired_total",
			Help: "Total number of blood requests expired by the sweep",
		}),
	}
}
