package housekeeping

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type publishedPruner interface {
	DeletePublishedBefore(tx *gorm.DB, cutoff time.Time) (int64, error)
}

type deadLetterPruner interface {
	DeleteFailedBefore(tx *gorm.DB, cutoff time.Time) (int64, error)
}

// retentionJob deletes rows older than a fixed number of days.
type retentionJob struct {
	name  string
	days  int
	tx    txRunner
	prune func(tx *gorm.DB, cutoff time.Time) (int64, error)
	now   func() time.Time
}

// NewOutboxRetentionJob removes published outbox events older than days.
// Unpublished events are kept regardless of age.
func NewOutboxRetentionJob(tx txRunner, repo publishedPruner, days int) (Job, error) {
	if repo == nil {
		return nil, fmt.Errorf("outbox repository required")
	}
	return newRetentionJob("outbox-retention", tx, repo.DeletePublishedBefore, days)
}

// NewDeadLetterRetentionJob removes dead-lettered events that failed more
// than days ago.
func NewDeadLetterRetentionJob(tx txRunner, repo deadLetterPruner, days int) (Job, error) {
	if repo == nil {
		return nil, fmt.Errorf("dead letter repository required")
	}
	return newRetentionJob("dlq-retention", tx, repo.DeleteFailedBefore, days)
}

func newRetentionJob(name string, tx txRunner, prune func(*gorm.DB, time.Time) (int64, error), days int) (*retentionJob, error) {
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if days <= 0 {
		return nil, fmt.Errorf("%s: retention days must be positive", name)
	}
	return &retentionJob{name: name, days: days, tx: tx, prune: prune, now: time.Now}, nil
}

func (j *retentionJob) Name() string { return j.name }

func (j *retentionJob) Run(ctx context.Context) (int64, error) {
	cutoff := j.now().UTC().AddDate(0, 0, -j.days)
	var deleted int64
	err := j.tx.WithTx(ctx, func(tx *gorm.DB) error {
		n, err := j.prune(tx, cutoff)
		deleted = n
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("%s: %w", j.name, err)
	}
	return deleted, nil
}
