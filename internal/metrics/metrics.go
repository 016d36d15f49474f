// Package metrics exposes Prometheus collectors for the inventory engine.
package metrics

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/iliyamo/ticket-inventory/internal/inventory"
	"github.com/iliyamo/ticket-inventory/internal/rangecodec"
)

var (
	// OperationsTotal counts engine operations by name and outcome.
	OperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "inventory_operations_total",
			Help: "Total number of inventory engine operations by operation and outcome",
		},
		[]string{"operation", "outcome"},
	)

	// UnitsTransitioned counts units moved by committed operations.
	UnitsTransitioned = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "inventory_units_transitioned_total",
			Help: "Total number of units changed by committed operations",
		},
		[]string{"operation"},
	)

	// RateLimited counts requests rejected by the token bucket.
	RateLimited = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_rate_limited_total",
			Help: "Total number of requests rejected by the rate limiter",
		},
		[]string{"path"},
	)

	// HTTPRequestDuration tracks request latency by method and path.
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		},
		[]string{"method", "path", "status"},
	)
)

// Observe records the outcome of one operation.  units is the number of
// units changed when err is nil.
func Observe(operation string, units int, err error) {
	OperationsTotal.WithLabelValues(operation, Outcome(err)).Inc()
	if err == nil && units > 0 {
		UnitsTransitioned.WithLabelValues(operation).Add(float64(units))
	}
}

// Outcome maps an engine error to a low-cardinality label.
func Outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, rangecodec.ErrSyntax):
		return "syntax_error"
	case errors.Is(err, rangecodec.ErrOverlap):
		return "overlap"
	case errors.Is(err, inventory.ErrStateViolation):
		return "state_violation"
	case errors.Is(err, inventory.ErrCapacityExceeded):
		return "capacity_exceeded"
	case errors.Is(err, inventory.ErrNotFound):
		return "not_found"
	case errors.Is(err, inventory.ErrInvalidRequest), errors.Is(err, inventory.ErrInvalidSchedule):
		return "invalid_request"
	}
	return "error"
}
