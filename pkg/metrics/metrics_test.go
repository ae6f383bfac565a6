package metrics

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkgerrors "github.com/angelmondragon/salesledger/pkg/errors"
)

func TestOperationMetricsExportsCountersAndHistogram(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewOperationMetrics(reg)

	m.Observe("order_create", OutcomeSuccess, 250*time.Millisecond)
	m.Observe("order_create", OutcomeDenied, time.Millisecond)
	done := m.Track("order_delete", func(error) string { return OutcomeInvalid })
	done(errors.New("bad input"))

	mfs, err := reg.Gather()
	require.NoError(t, err)

	got, err := fetchCounterValue(mfs, "salesledger_operations_total", map[string]string{"operation": "order_create", "outcome": "success"})
	require.NoError(t, err)
	assert.Equal(t, 1.0, got)

	got, err = fetchCounterValue(mfs, "salesledger_operations_total", map[string]string{"operation": "order_delete", "outcome": "invalid"})
	require.NoError(t, err)
	assert.Equal(t, 1.0, got)

	sum, err := fetchHistogramSum(mfs, "salesledger_operation_duration_seconds", map[string]string{"operation": "order_create"})
	require.NoError(t, err)
	assert.Greater(t, sum, 0.0)
}

func TestOutboxMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewOutboxMetrics(reg)
	m.IncPublished("order_created")
	m.IncPublished("order_created")
	m.IncFailed("order_deleted")
	m.IncDeadLetter("", "max_attempts")

	mfs, err := reg.Gather()
	require.NoError(t, err)

	got, err := fetchCounterValue(mfs, "salesledger_outbox_published_total", map[string]string{"event_type": "order_created"})
	require.NoError(t, err)
	assert.Equal(t, 2.0, got)

	got, err = fetchCounterValue(mfs, "salesledger_outbox_dead_letter_total", map[string]string{"event_type": "unknown", "reason": "max_attempts"})
	require.NoError(t, err)
	assert.Equal(t, 1.0, got)
}

func TestJobMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewJobMetrics(reg)
	m.Observe("outbox-retention", 20*time.Millisecond, nil)
	m.Observe("outbox-retention", time.Millisecond, errors.New("boom"))
	m.AddDeleted("outbox-retention", 4)
	m.AddDeleted("outbox-retention", 0)

	mfs, err := reg.Gather()
	require.NoError(t, err)

	got, err := fetchCounterValue(mfs, "salesledger_job_runs_total", map[string]string{"job": "outbox-retention", "outcome": "error"})
	require.NoError(t, err)
	assert.Equal(t, 1.0, got)

	got, err = fetchCounterValue(mfs, "salesledger_job_rows_deleted_total", map[string]string{"job": "outbox-retention"})
	require.NoError(t, err)
	assert.Equal(t, 4.0, got)
}

func TestConsumerMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewConsumerMetrics(reg)
	m.Inc("analytics", "order_created", ConsumerHandled)
	m.Inc("analytics", "order_created", ConsumerHandled)
	m.Inc("analytics", "", ConsumerDropped)

	mfs, err := reg.Gather()
	require.NoError(t, err)

	got, err := fetchCounterValue(mfs, "salesledger_consumer_messages_total", map[string]string{"consumer": "analytics", "event_type": "order_created", "outcome": "handled"})
	require.NoError(t, err)
	assert.Equal(t, 2.0, got)

	got, err = fetchCounterValue(mfs, "salesledger_consumer_messages_total", map[string]string{"event_type": "unknown", "outcome": "dropped"})
	require.NoError(t, err)
	assert.Equal(t, 1.0, got)
}

func TestNilMetricsAreNoops(t *testing.T) {
	var ops *OperationMetrics
	ops.Observe("x", OutcomeSuccess, time.Second)
	ops.Track("x", nil)(nil)
	NewOperationMetrics(nil).Observe("x", OutcomeSuccess, time.Second)

	var outbox *OutboxMetrics
	outbox.IncPublished("x")
	NewOutboxMetrics(nil).IncDeadLetter("x", "y")

	var jobs *JobMetrics
	jobs.Observe("x", time.Second, nil)
	NewJobMetrics(nil).AddDeleted("x", 3)

	var consumer *ConsumerMetrics
	consumer.Inc("x", "y", ConsumerRetried)
	NewConsumerMetrics(nil).Inc("x", "y", ConsumerHandled)
}

func fetchCounterValue(mfs []*dto.MetricFamily, name string, labels map[string]string) (float64, error) {
	metric, err := findMetric(mfs, name, labels)
	if err != nil {
		return 0, err
	}
	return metric.GetCounter().GetValue(), nil
}

func fetchHistogramSum(mfs []*dto.MetricFamily, name string, labels map[string]string) (float64, error) {
	metric, err := findMetric(mfs, name, labels)
	if err != nil {
		return 0, err
	}
	return metric.GetHistogram().GetSampleSum(), nil
}

func findMetric(mfs []*dto.MetricFamily, name string, labels map[string]string) (*dto.Metric, error) {
	for _, mf := range mfs {
		if mf.GetName() != name {
			continue
		}
		for _, metric := range mf.GetMetric() {
			if matchesLabels(metric.GetLabel(), labels) {
				return metric, nil
			}
		}
		return nil, fmt.Errorf("metric %q missing labels %v", name, labels)
	}
	return nil, fmt.Errorf("metric %q not found", name)
}

func matchesLabels(pairs []*dto.LabelPair, want map[string]string) bool {
	matched := 0
	for _, pair := range pairs {
		if v, ok := want[pair.GetName()]; ok && v == pair.GetValue() {
			matched++
		}
	}
	return matched == len(want)
}

func TestClassifyError(t *testing.T) {
	assert.Equal(t, OutcomeDenied, ClassifyError(pkgerrors.New(pkgerrors.CodeAccessRevoked, "revoked")))
	assert.Equal(t, OutcomeDenied, ClassifyError(pkgerrors.New(pkgerrors.CodeForbidden, "no")))
	assert.Equal(t, OutcomeInvalid, ClassifyError(pkgerrors.New(pkgerrors.CodeValidation, "bad")))
	assert.Equal(t, OutcomeInvalid, ClassifyError(pkgerrors.New(pkgerrors.CodeNotFound, "gone")))
	assert.Equal(t, OutcomeError, ClassifyError(pkgerrors.New(pkgerrors.CodeDependency, "down")))
	assert.Equal(t, OutcomeError, ClassifyError(errors.New("plain")))
}
