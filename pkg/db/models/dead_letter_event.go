package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// DeadLetterEvent captures a terminally-failed outbox record for auditing and
// manual remediation. Append-only; never updated or deleted by the relay.
type DeadLetterEvent struct {
	ID           uuid.UUID       `gorm:"column:id;type:uuid;primaryKey"`
	EventID      string          `gorm:"column:event_id;not null;index:ix_audit_dead_letter_event_id"`
	Topic        string          `gorm:"column:topic;not null"`
	Payload      json.RawMessage `gorm:"column:payload;type:jsonb;not null"`
	ErrorMessage *string         `gorm:"column:error_message"`
	AttemptCount int             `gorm:"column:attempt_count;not null;default:0"`
	FailedAt     time.Time       `gorm:"column:failed_at;not null"`
	CreatedAt    time.Time       `gorm:"column:created_at;autoCreateTime"`
}

func (DeadLetterEvent) TableName() string { return "audit_dead_letter" }

func (e *DeadLetterEvent) BeforeCreate(_ *gorm.DB) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	return nil
}
