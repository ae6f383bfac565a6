package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	pkgerrors "github.com/angelmondragon/salesledger/pkg/errors"
)

const namespace = "salesledger"

// Outcome labels.
const (
	OutcomeSuccess = "success"
	OutcomeDenied  = "denied"
	OutcomeInvalid = "invalid"
	OutcomeError   = "error"
)

// OperationMetrics counts and times domain operations such as order writes
// and role changes. A nil receiver is a no-op.
type OperationMetrics struct {
	duration *prometheus.HistogramVec
	total    *prometheus.CounterVec
}

// NewOperationMetrics registers the operation collectors on reg. A nil
// registerer yields a collector that records nothing.
func NewOperationMetrics(reg prometheus.Registerer) *OperationMetrics {
	if reg == nil {
		return &OperationMetrics{}
	}
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "operation_duration_seconds",
		Help:      "Duration of domain operations in seconds.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"operation"})
	total := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "operations_total",
		Help:      "Domain operations by outcome.",
	}, []string{"operation", "outcome"})
	reg.MustRegister(duration, total)
	return &OperationMetrics{duration: duration, total: total}
}

// Observe records one finished operation.
func (m *OperationMetrics) Observe(operation, outcome string, elapsed time.Duration) {
	if m == nil || m.total == nil {
		return
	}
	operation = normalizeLabel(operation)
	m.total.WithLabelValues(operation, normalizeLabel(outcome)).Inc()
	m.duration.WithLabelValues(operation).Observe(elapsed.Seconds())
}

// Track returns a func that records operation with the outcome derived from
// the error passed to it.
func (m *OperationMetrics) Track(operation string, classify func(error) string) func(error) {
	started := time.Now()
	return func(err error) {
		outcome := OutcomeSuccess
		if err != nil {
			outcome = OutcomeError
			if classify != nil {
				outcome = classify(err)
			}
		}
		m.Observe(operation, outcome, time.Since(started))
	}
}

func normalizeLabel(value string) string {
	if value == "" {
		return "unknown"
	}
	return value
}

// ClassifyError maps a typed error to an outcome label.
func ClassifyError(err error) string {
	switch pkgerrors.CategoryOf(err) {
	case pkgerrors.CategoryAuthorization:
		return OutcomeDenied
	case pkgerrors.CategoryValidation, pkgerrors.CategoryNotFound:
		return OutcomeInvalid
	default:
		return OutcomeError
	}
}
