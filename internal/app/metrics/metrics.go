// Package metrics exposes Prometheus collectors for the payments database.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Registry holds the application-specific Prometheus collectors.
	Registry = prometheus.NewRegistry()

	paymentsInserted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "walletdb",
			Subsystem: "payments",
			Name:      "inserted_total",
			Help:      "Total number of payment records inserted.",
		},
		[]string{"direction"},
	)

	paymentsUpdated = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "walletdb",
			Subsystem: "payments",
			Name:      "updated_total",
			Help:      "Total number of payment record updates.",
		},
	)

	paymentsDeleted = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "walletdb",
			Subsystem: "payments",
			Name:      "deleted_total",
			Help:      "Total number of payment records deleted.",
		},
	)

	malformedPayloads = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "walletdb",
			Subsystem: "payments",
			Name:      "malformed_payloads_total",
			Help:      "Total number of rows whose payload failed to decode.",
		},
	)

	notificationsPublished = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "walletdb",
			Subsystem: "notify",
			Name:      "changes_published_total",
			Help:      "Total number of change notifications published.",
		},
		[]string{"topic"},
	)

	feedRefreshes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "walletdb",
			Subsystem: "feeds",
			Name:      "refreshes_total",
			Help:      "Total number of feed re-evaluations.",
		},
		[]string{"feed"},
	)
)

func init() {
	Registry.MustRegister(
		paymentsInserted,
		paymentsUpdated,
		paymentsDeleted,
		malformedPayloads,
		notificationsPublished,
		feedRefreshes,
	)
}

// Handler returns an HTTP handler exposing the registered Prometheus metrics.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

// PaymentInserted records a successful record insert.
func PaymentInserted(direction string) {
	paymentsInserted.WithLabelValues(direction).Inc()
}

// PaymentUpdated records a successful record update.
func PaymentUpdated() { paymentsUpdated.Inc() }

// PaymentDeleted records a successful record deletion.
func PaymentDeleted() { paymentsDeleted.Inc() }

// MalformedPayload records a row that failed to decode.
func MalformedPayload() { malformedPayloads.Inc() }

// NotificationPublished records a published change notification.
func NotificationPublished(topic string) {
	notificationsPublished.WithLabelValues(topic).Inc()
}

// FeedRefreshed records a feed re-evaluation.
func FeedRefreshed(feed string) {
	feedRefreshes.WithLabelValues(feed).Inc()
}
