package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// JobMetrics records scheduled housekeeping runs. A nil receiver is a no-op.
type JobMetrics struct {
	duration *prometheus.HistogramVec
	runs     *prometheus.CounterVec
	rows     *prometheus.CounterVec
}

func NewJobMetrics(reg prometheus.Registerer) *JobMetrics {
	if reg == nil {
		return &JobMetrics{}
	}
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "job_duration_seconds",
		Help:      "Duration of housekeeping jobs in seconds.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"job"})
	runs := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "job_runs_total",
		Help:      "Housekeeping job runs by outcome.",
	}, []string{"job", "outcome"})
	rows := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "job_rows_deleted_total",
		Help:      "Rows removed by housekeeping jobs.",
	}, []string{"job"})
	reg.MustRegister(duration, runs, rows)
	return &JobMetrics{duration: duration, runs: runs, rows: rows}
}

// Observe records one run of job.
func (m *JobMetrics) Observe(job string, elapsed time.Duration, err error) {
	if m == nil || m.duration == nil {
		return
	}
	job = normalizeLabel(job)
	outcome := OutcomeSuccess
	if err != nil {
		outcome = OutcomeError
	}
	m.duration.WithLabelValues(job).Observe(elapsed.Seconds())
	m.runs.WithLabelValues(job, outcome).Inc()
}

func (m *JobMetrics) AddDeleted(job string, n int64) {
	if m == nil || m.rows == nil || n <= 0 {
		return
	}
	m.rows.WithLabelValues(normalizeLabel(job)).Add(float64(n))
}
