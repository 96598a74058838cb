package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	PendingOperations = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "cartsync_pending_operations",
			Help: "Cart mutations currently awaiting the cart service",
		},
	)

	MutationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cartsync_mutations_total",
			Help: "Cart mutations by operation and outcome",
		},
		[]string{"op", "outcome"},
	)

	RemoteRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "cartsync_remote_request_duration_seconds",
			Help:    "Cart service round trip duration by operation",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"op"},
	)

	PromotionTransitionsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "cartsync_promotion_transitions_total",
			Help: "Cart items whose promotion started or ended",
		},
	)

	MigrationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cartsync_migrations_total",
			Help: "Anonymous cart migrations by path taken",
		},
		[]string{"path"},
	)
)

func init() {
	prometheus.MustRegister(PendingOperations)
	prometheus.MustRegister(MutationsTotal)
	prometheus.MustRegister(RemoteRequestDuration)
	prometheus.MustRegister(PromotionTransitionsTotal)
	prometheus.MustRegister(MigrationsTotal)
}

func Handler() http.Handler {
	return promhttp.Handler()
}

type Timer struct {
	start time.Time
}

func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}

func (t *Timer) ObserveDurationVec(h *prometheus.HistogramVec, labels ...string) {
	h.WithLabelValues(labels...).Observe(t.Duration().Seconds())
}
