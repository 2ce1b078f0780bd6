package outbox

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/perfcycle/pms-backend/pkg/db/models"
)

// maxDeadLetterErrorLen bounds error text so a pathological broker message
// cannot bloat the dead-letter table.
const maxDeadLetterErrorLen = 1800

type DLQRepository struct {
	db *gorm.DB
}

func NewDLQRepository(db *gorm.DB) *DLQRepository {
	return &DLQRepository{db: db}
}

// InsertTx appends a dead-letter snapshot inside the relay cycle's
// transaction. This write is the authoritative record of a terminal failure;
// topic forwarding is only a convenience mirror.
func (r *DLQRepository) InsertTx(tx *gorm.DB, entry *models.DeadLetterEvent) error {
	if tx == nil {
		return errors.New("transaction required")
	}
	if entry.ErrorMessage != nil {
		msg := truncateDeadLetterError(*entry.ErrorMessage)
		entry.ErrorMessage = &msg
	}
	return tx.Create(entry).Error
}

// FindByEventID returns the dead-letter snapshot for an event, or nil when
// the event never dead-lettered.
func (r *DLQRepository) FindByEventID(ctx context.Context, eventID string) (*models.DeadLetterEvent, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	var entry models.DeadLetterEvent
	err := r.db.WithContext(ctx).Where("event_id = ?", eventID).First(&entry).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &entry, nil
}

// List returns the most recent dead-letter entries for operator inspection.
func (r *DLQRepository) List(ctx context.Context, limit int) ([]models.DeadLetterEvent, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if limit <= 0 {
		limit = 50
	}
	var rows []models.DeadLetterEvent
	err := r.db.WithContext(ctx).
		Order("failed_at DESC").
		Limit(limit).
		Find(&rows).Error
	return rows, err
}

// DeleteFailedBefore removes dead-letter rows older than the cutoff.
func (r *DLQRepository) DeleteFailedBefore(ctx context.Context, tx *gorm.DB, cutoff time.Time) (int64, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if tx == nil {
		tx = r.db
	}
	result := tx.WithContext(ctx).
		Where("failed_at < ?", cutoff).
		Delete(&models.DeadLetterEvent{})
	return result.RowsAffected, result.Error
}

func truncateDeadLetterError(message string) string {
	if len(message) <= maxDeadLetterErrorLen {
		return message
	}
	return message[:maxDeadLetterErrorLen]
}
