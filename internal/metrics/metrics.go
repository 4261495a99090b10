// Package metrics registers the Prometheus collectors of the posts engine.
// Metrics: postengine_bulk_operations_total, postengine_bulk_rows_total,
// postengine_transactions_total, postengine_post_events_total.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// BulkOperations counts bulk edits and destroys by outcome.
	BulkOperations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "postengine_bulk_operations_total",
			Help: "Bulk post operations by operation, action and result.",
		},
		[]string{"operation", "action", "result"},
	)

	// BulkRows counts posts affected by bulk operations.
	BulkRows = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "postengine_bulk_rows_total",
			Help: "Posts affected by bulk operations.",
		},
		[]string{"operation"},
	)

	// Transactions counts transactions opened and joined by the coordinator.
	Transactions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "postengine_transactions_total",
			Help: "Transactions opened or joined by the transaction coordinator.",
		},
		[]string{"mode"},
	)

	// PostEvents counts status transition events derived from single edits.
	PostEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "postengine_post_events_total",
			Help: "Status transition events emitted by post edits.",
		},
		[]string{"event"},
	)
)

// Result returns the result label for err.
func Result(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
