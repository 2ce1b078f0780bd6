package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/perfcycle/pms-backend/pkg/enums"
)

// OutboxRecord is one durable audit event envelope awaiting relay. Rows are
// created by the enqueue service inside the caller's transaction and mutated
// only by the relay.
type OutboxRecord struct {
	ID            uuid.UUID          `gorm:"column:id;type:uuid;primaryKey"`
	EventID       string             `gorm:"column:event_id;uniqueIndex:ux_audit_outbox_event_id;not null"`
	Topic         string             `gorm:"column:topic;not null"`
	MessageKey    string             `gorm:"column:message_key;not null"`
	Status        enums.OutboxStatus `gorm:"column:status;type:outbox_status_enum;not null"`
	AttemptCount  int                `gorm:"column:attempt_count;not null;default:0"`
	NextAttemptAt time.Time          `gorm:"column:next_attempt_at;not null"`
	SentAt        *time.Time         `gorm:"column:sent_at"`
	LastError     *string            `gorm:"column:last_error"`
	Payload       json.RawMessage    `gorm:"column:payload;type:jsonb;not null"`
	CreatedAt     time.Time          `gorm:"column:created_at;autoCreateTime"`
}

func (OutboxRecord) TableName() string { return "audit_outbox" }

func (r *OutboxRecord) BeforeCreate(_ *gorm.DB) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	return nil
}
