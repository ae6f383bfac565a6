package outbox

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/salesledger/pkg/db/models"
	"github.com/angelmondragon/salesledger/pkg/enums"
)

const (
	maxErrorLen     = 1024
	defaultDLQLimit = 50
)

// ErrNotDeadLettered is returned by ReplayTx when no DLQ entry exists.
var ErrNotDeadLettered = errors.New("event is not in the dead letter table")

// DLQFilter narrows List. A zero Reason matches every reason.
type DLQFilter struct {
	Reason enums.OutboxDLQErrorReason
	Limit  int
}

// DLQRepository stores events the publisher gave up on, keyed by the outbox
// row id they came from.
type DLQRepository struct {
	db *gorm.DB
}

func NewDLQRepository(db *gorm.DB) *DLQRepository {
	return &DLQRepository{db: db}
}

func (r *DLQRepository) InsertTx(tx *gorm.DB, entry models.OutboxDLQ) error {
	if tx == nil {
		return errors.New("transaction required")
	}
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	if entry.FailedAt.IsZero() {
		entry.FailedAt = time.Now().UTC()
	}
	if entry.ErrorMessage != nil {
		msg := truncateError(*entry.ErrorMessage)
		entry.ErrorMessage = &msg
	}
	return tx.Create(&entry).Error
}

// FindByEventID returns the entry for eventID, or nil when there is none.
func (r *DLQRepository) FindByEventID(ctx context.Context, eventID uuid.UUID) (*models.OutboxDLQ, error) {
	return findEntry(r.db.WithContext(ctx), eventID)
}

func findEntry(q *gorm.DB, eventID uuid.UUID) (*models.OutboxDLQ, error) {
	var rows []models.OutboxDLQ
	if err := q.Where("event_id = ?", eventID).Limit(1).Find(&rows).Error; err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return &rows[0], nil
}

// List returns the most recent failures first.
func (r *DLQRepository) List(ctx context.Context, filter DLQFilter) ([]models.OutboxDLQ, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = defaultDLQLimit
	}
	q := r.db.WithContext(ctx).Order("failed_at DESC").Limit(limit)
	if filter.Reason != "" {
		q = q.Where("error_reason = ?", filter.Reason)
	}
	var rows []models.OutboxDLQ
	return rows, q.Find(&rows).Error
}

// ReplayTx puts a dead-lettered event back into the publish queue with a
// fresh attempt budget and removes its DLQ entries. The outbox row is reset
// in place; if retention already removed it, it is recreated from the DLQ
// copy under the same id.
func (r *DLQRepository) ReplayTx(tx *gorm.DB, eventID uuid.UUID) (*models.OutboxDLQ, error) {
	if tx == nil {
		return nil, errors.New("transaction required")
	}
	entry, err := findEntry(tx.Clauses(clause.Locking{Strength: "UPDATE"}), eventID)
	if err != nil {
		return nil, err
	}
	if entry == nil {
		return nil, ErrNotDeadLettered
	}

	reset := tx.Model(&models.OutboxEvent{}).
		Where("id = ?", eventID).
		Updates(map[string]any{
			"attempt_count": 0,
			"last_error":    nil,
			"published_at":  nil,
		})
	if reset.Error != nil {
		return nil, reset.Error
	}
	if reset.RowsAffected == 0 {
		if err := tx.Create(&models.OutboxEvent{
			ID:            entry.EventID,
			EventType:     entry.EventType,
			AggregateType: entry.AggregateType,
			AggregateID:   entry.AggregateID,
			Payload:       entry.Payload,
		}).Error; err != nil {
			return nil, err
		}
	}
	if err := tx.Where("event_id = ?", eventID).Delete(&models.OutboxDLQ{}).Error; err != nil {
		return nil, err
	}
	return entry, nil
}

func (r *DLQRepository) DeleteFailedBefore(tx *gorm.DB, cutoff time.Time) (int64, error) {
	if tx == nil {
		return 0, errors.New("transaction required")
	}
	res := tx.Where("failed_at < ?", cutoff).Delete(&models.OutboxDLQ{})
	return res.RowsAffected, res.Error
}

func truncateError(message string) string {
	if len(message) <= maxErrorLen {
		return message
	}
	return message[:maxErrorLen]
}
