package housekeeping

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/multierr"
	"gorm.io/gorm"

	dbpkg "github.com/angelmondragon/salesledger/pkg/db"
	"github.com/angelmondragon/salesledger/pkg/db/dbtest"
	"github.com/angelmondragon/salesledger/pkg/db/models"
	"github.com/angelmondragon/salesledger/pkg/enums"
	"github.com/angelmondragon/salesledger/pkg/logger"
	"github.com/angelmondragon/salesledger/pkg/metrics"
	"github.com/angelmondragon/salesledger/pkg/outbox"
)

var now = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func testLogger() *logger.Logger {
	return logger.New(logger.Options{ServiceName: "test", Output: io.Discard})
}

func insertEvent(t *testing.T, conn *gorm.DB, published *time.Time) uuid.UUID {
	t.Helper()
	row := models.OutboxEvent{
		ID:            uuid.New(),
		EventType:     enums.EventOrderCreated,
		AggregateType: enums.AggregateOrder,
		AggregateID:   "TR0001",
		Payload:       json.RawMessage(`{}`),
		PublishedAt:   published,
	}
	require.NoError(t, conn.Create(&row).Error)
	return row.ID
}

func TestOutboxRetentionKeepsPendingAndRecent(t *testing.T) {
	conn := dbtest.Open(t)
	old := now.AddDate(0, 0, -45)
	recent := now.AddDate(0, 0, -2)
	insertEvent(t, conn, &old)
	keepRecent := insertEvent(t, conn, &recent)
	keepPending := insertEvent(t, conn, nil)

	job, err := NewOutboxRetentionJob(dbpkg.NewFromConn(conn), outbox.NewRepository(conn), 30)
	require.NoError(t, err)
	job.(*retentionJob).now = func() time.Time { return now }

	deleted, err := job.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	var ids []uuid.UUID
	require.NoError(t, conn.Model(&models.OutboxEvent{}).Order("id").Pluck("id", &ids).Error)
	assert.ElementsMatch(t, []uuid.UUID{keepRecent, keepPending}, ids)
}

func TestDeadLetterRetention(t *testing.T) {
	conn := dbtest.Open(t)
	for _, failed := range []time.Time{now.AddDate(0, 0, -120), now.AddDate(0, 0, -10)} {
		require.NoError(t, conn.Create(&models.OutboxDLQ{
			ID:            uuid.New(),
			EventID:       uuid.New(),
			EventType:     enums.EventOrderDeleted,
			AggregateType: enums.AggregateOrder,
			AggregateID:   "TR0002",
			Payload:       json.RawMessage(`{}`),
			ErrorReason:   enums.OutboxDLQReasonMaxAttempts,
			FailedAt:      failed,
		}).Error)
	}

	job, err := NewDeadLetterRetentionJob(dbpkg.NewFromConn(conn), outbox.NewDLQRepository(conn), 90)
	require.NoError(t, err)
	job.(*retentionJob).now = func() time.Time { return now }

	deleted, err := job.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)
	assert.Equal(t, "dlq-retention", job.Name())
}

func TestRetentionJobRequiresPositiveDays(t *testing.T) {
	conn := dbtest.Open(t)
	_, err := NewOutboxRetentionJob(dbpkg.NewFromConn(conn), outbox.NewRepository(conn), 0)
	assert.Error(t, err)
}

type fakeLock struct {
	held     bool
	lostAt   int
	acquires int
	extends  int
	releases int
}

func (f *fakeLock) Acquire(context.Context) (bool, error) {
	f.acquires++
	if f.held {
		return false, nil
	}
	return true, nil
}

func (f *fakeLock) Extend(context.Context) error {
	f.extends++
	if f.lostAt > 0 && f.extends >= f.lostAt {
		return ErrLockLost
	}
	return nil
}

func (f *fakeLock) Release(context.Context) error {
	f.releases++
	return nil
}

type countingJob struct {
	name string
	rows int64
	err  error
	runs int
}

func (j *countingJob) Name() string { return j.name }

func (j *countingJob) Run(context.Context) (int64, error) {
	j.runs++
	return j.rows, j.err
}

func TestRunnerRunsEveryJobEvenAfterFailure(t *testing.T) {
	failing := &countingJob{name: "failing", err: errors.New("boom")}
	ok := &countingJob{name: "ok", rows: 3}
	lock := &fakeLock{}
	reg := prometheus.NewRegistry()

	runner, err := NewRunner(RunnerParams{
		Logger:   testLogger(),
		Lock:     lock,
		Metrics:  metrics.NewJobMetrics(reg),
		Interval: time.Hour,
		Jobs:     []Job{failing, nil, ok},
	})
	require.NoError(t, err)

	err = runner.RunOnce(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom")
	assert.Equal(t, 1, failing.runs)
	assert.Equal(t, 1, ok.runs)
	assert.Equal(t, 1, lock.releases)
}

func TestRunnerCombinesJobErrors(t *testing.T) {
	first := &countingJob{name: "first", err: errors.New("first failed")}
	second := &countingJob{name: "second", err: errors.New("second failed")}
	runner, err := NewRunner(RunnerParams{Logger: testLogger(), Lock: &fakeLock{}, Interval: time.Hour, Jobs: []Job{first, second}})
	require.NoError(t, err)

	err = runner.RunOnce(context.Background())
	require.Error(t, err)
	assert.Len(t, multierr.Errors(err), 2)
}

func TestRunnerStopsWhenLockLost(t *testing.T) {
	first := &countingJob{name: "first"}
	second := &countingJob{name: "second"}
	lock := &fakeLock{lostAt: 1}
	runner, err := NewRunner(RunnerParams{Logger: testLogger(), Lock: lock, Interval: time.Hour, Jobs: []Job{first, second}})
	require.NoError(t, err)

	err = runner.RunOnce(context.Background())
	assert.ErrorIs(t, err, ErrLockLost)
	assert.Equal(t, 1, first.runs)
	assert.Zero(t, second.runs)
	assert.Equal(t, 1, lock.releases)
}

func TestRunnerSkipsWhenLockHeld(t *testing.T) {
	job := &countingJob{name: "ok"}
	lock := &fakeLock{held: true}
	runner, err := NewRunner(RunnerParams{Logger: testLogger(), Lock: lock, Interval: time.Hour, Jobs: []Job{job}})
	require.NoError(t, err)

	require.NoError(t, runner.RunOnce(context.Background()))
	assert.Equal(t, 0, job.runs)
	assert.Equal(t, 0, lock.releases)
}

func TestRunnerStopsOnCancel(t *testing.T) {
	job := &countingJob{name: "ok"}
	runner, err := NewRunner(RunnerParams{Logger: testLogger(), Lock: &fakeLock{}, Interval: time.Hour, Jobs: []Job{job}})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err = runner.Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, job.runs)
}

type memoryStore struct {
	values  map[string]string
	extends int
}

func (m *memoryStore) SetNX(_ context.Context, key string, value any, _ time.Duration) (bool, error) {
	if _, ok := m.values[key]; ok {
		return false, nil
	}
	m.values[key] = value.(string)
	return true, nil
}

func (m *memoryStore) ExtendIfOwner(_ context.Context, key, owner string, _ time.Duration) (bool, error) {
	if m.values[key] != owner {
		return false, nil
	}
	m.extends++
	return true, nil
}

func (m *memoryStore) DelIfOwner(_ context.Context, key, owner string) (bool, error) {
	if m.values[key] != owner {
		return false, nil
	}
	delete(m.values, key)
	return true, nil
}

func TestRedisLockOwnership(t *testing.T) {
	store := &memoryStore{values: map[string]string{}}
	first, err := NewRedisLock(store, "sl:housekeeping:lock", time.Minute)
	require.NoError(t, err)
	second, err := NewRedisLock(store, "sl:housekeeping:lock", time.Minute)
	require.NoError(t, err)

	ctx := context.Background()
	ok, err := first.Acquire(ctx)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = second.Acquire(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, second.Release(ctx))
	assert.Contains(t, store.values, "sl:housekeeping:lock")

	require.NoError(t, first.Release(ctx))
	assert.NotContains(t, store.values, "sl:housekeeping:lock")

	ok, err = second.Acquire(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRedisLockExtendDetectsTakeover(t *testing.T) {
	store := &memoryStore{values: map[string]string{}}
	lock, err := NewRedisLock(store, "sl:housekeeping:lock", time.Minute)
	require.NoError(t, err)
	ctx := context.Background()

	assert.ErrorIs(t, lock.Extend(ctx), ErrLockLost, "extend without acquire")

	ok, err := lock.Acquire(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	require.NoError(t, lock.Extend(ctx))
	assert.Equal(t, 1, store.extends)

	// Expired and taken by someone else.
	store.values["sl:housekeeping:lock"] = "other-owner"
	assert.ErrorIs(t, lock.Extend(ctx), ErrLockLost)
	require.NoError(t, lock.Release(ctx))
	assert.Equal(t, "other-owner", store.values["sl:housekeeping:lock"])
}
