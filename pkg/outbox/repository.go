package outbox

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/perfcycle/pms-backend/pkg/db/models"
	"github.com/perfcycle/pms-backend/pkg/enums"
)

var relayableStatuses = []enums.OutboxStatus{
	enums.OutboxStatusPending,
	enums.OutboxStatusFailed,
}

type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// InsertTx persists a new record inside the caller's transaction so the
// event write commits or rolls back with the business mutation.
func (r *Repository) InsertTx(tx *gorm.DB, record *models.OutboxRecord) error {
	if tx == nil {
		return errors.New("transaction required")
	}
	return tx.Create(record).Error
}

// ExistsTx reports whether a record with the given event id already exists.
func (r *Repository) ExistsTx(tx *gorm.DB, eventID string) (bool, error) {
	if tx == nil {
		return false, errors.New("transaction required")
	}
	var count int64
	err := tx.Model(&models.OutboxRecord{}).
		Where("event_id = ?", eventID).
		Count(&count).Error
	return count > 0, err
}

// FetchDueTx selects up to limit records eligible for relay: pending or
// failed, with next_attempt_at at or before now, oldest first.
func (r *Repository) FetchDueTx(tx *gorm.DB, limit int, now time.Time) ([]models.OutboxRecord, error) {
	if tx == nil {
		tx = r.db
	}
	var rows []models.OutboxRecord
	err := tx.Where("status IN ? AND next_attempt_at <= ?", relayableStatuses, now).
		Order("created_at ASC").
		Order("id ASC").
		Limit(limit).
		Find(&rows).Error
	return rows, err
}

// MarkSentTx records a successful delivery. last_error is cleared; sent_at
// is set exactly once.
func (r *Repository) MarkSentTx(tx *gorm.DB, id uuid.UUID, sentAt time.Time) error {
	if tx == nil {
		return errors.New("transaction required")
	}
	return tx.Model(&models.OutboxRecord{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"status":     enums.OutboxStatusSent,
			"sent_at":    sentAt,
			"last_error": nil,
		}).Error
}

// MarkFailedTx records a retryable failure and reschedules the record.
func (r *Repository) MarkFailedTx(tx *gorm.DB, id uuid.UUID, attemptCount int, lastError string, nextAttemptAt time.Time) error {
	if tx == nil {
		return errors.New("transaction required")
	}
	return tx.Model(&models.OutboxRecord{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"status":          enums.OutboxStatusFailed,
			"attempt_count":   attemptCount,
			"last_error":      lastError,
			"next_attempt_at": nextAttemptAt,
		}).Error
}

// MarkDeadLetterTx moves a record to its terminal dead-letter state. The
// record is never selected again.
func (r *Repository) MarkDeadLetterTx(tx *gorm.DB, id uuid.UUID, attemptCount int, lastError string) error {
	if tx == nil {
		return errors.New("transaction required")
	}
	return tx.Model(&models.OutboxRecord{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"status":        enums.OutboxStatusDeadLetter,
			"attempt_count": attemptCount,
			"last_error":    lastError,
		}).Error
}

// CountStale returns how many undelivered records are older than the cutoff.
// This feeds the backlog gauge operators alert on.
func (r *Repository) CountStale(ctx context.Context, cutoff time.Time) (int64, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	var count int64
	err := r.db.WithContext(ctx).Model(&models.OutboxRecord{}).
		Where("status IN ? AND created_at < ?", relayableStatuses, cutoff).
		Count(&count).Error
	return count, err
}

// DeleteSentBefore removes delivered records older than the cutoff. Only
// sent rows are eligible; undelivered and dead-lettered rows are kept.
func (r *Repository) DeleteSentBefore(ctx context.Context, tx *gorm.DB, cutoff time.Time) (int64, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if tx == nil {
		tx = r.db
	}
	result := tx.WithContext(ctx).
		Where("status = ? AND sent_at < ?", enums.OutboxStatusSent, cutoff).
		Delete(&models.OutboxRecord{})
	return result.RowsAffected, result.Error
}
