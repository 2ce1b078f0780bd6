package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/perfcycle/pms-backend/pkg/audit"
	dbpkg "github.com/perfcycle/pms-backend/pkg/db"
	"github.com/perfcycle/pms-backend/pkg/db/models"
	"github.com/perfcycle/pms-backend/pkg/enums"
	"github.com/perfcycle/pms-backend/pkg/logger"
)

const eventIDConstraint = "ux_audit_outbox_event_id"

// Service is the enqueue side of the outbox: it writes one pending record
// per audit event inside the caller's transaction, so "event recorded" and
// "business state changed" commit or roll back together.
type Service struct {
	repo *Repository
	logg *logger.Logger
	now  func() time.Time
}

func NewService(repo *Repository, logg *logger.Logger) *Service {
	return &Service{repo: repo, logg: logg, now: time.Now}
}

// Enqueue records the event for asynchronous delivery. A serialization
// failure is returned to the caller and aborts its transaction: a malformed
// event would never succeed on retry. Topic resolution cannot fail.
func (s *Service) Enqueue(ctx context.Context, tx *gorm.DB, event audit.Event) error {
	if tx == nil {
		return errors.New("transaction required")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if event.EventID == "" {
		event.EventID = uuid.NewString()
	}
	if event.AggregateID == "" {
		return errors.New("aggregate id required")
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = s.now().UTC()
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("serializing audit event %s: %w", event.EventID, err)
	}

	topic := audit.ResolveTopic(event.Domain)
	now := s.now().UTC()
	record := models.OutboxRecord{
		EventID:       event.EventID,
		Topic:         topic,
		MessageKey:    event.AggregateID,
		Status:        enums.OutboxStatusPending,
		AttemptCount:  0,
		NextAttemptAt: now,
		Payload:       json.RawMessage(payload),
		CreatedAt:     now,
	}
	if err := s.repo.InsertTx(tx, &record); err != nil {
		return err
	}

	if s.logg != nil {
		logCtx := s.logg.WithFields(ctx, map[string]any{
			"event_id":     event.EventID,
			"event_type":   event.EventType,
			"domain":       event.Domain,
			"aggregate_id": event.AggregateID,
			"topic":        topic,
		})
		s.logg.Info(logCtx, "audit event enqueued")
	}
	return nil
}

// EnqueueIfNotExists behaves like Enqueue but treats a duplicate event id as
// success, so an idempotent producer retry does not abort the business
// transaction. The unique index on event_id is the deduplication authority.
func (s *Service) EnqueueIfNotExists(ctx context.Context, tx *gorm.DB, event audit.Event) error {
	if tx == nil {
		return errors.New("transaction required")
	}
	if event.EventID != "" {
		exists, err := s.repo.ExistsTx(tx, event.EventID)
		if err != nil {
			return err
		}
		if exists {
			return nil
		}
	}
	if err := s.Enqueue(ctx, tx, event); err != nil {
		if dbpkg.IsUniqueViolation(err, eventIDConstraint) {
			return nil
		}
		return err
	}
	return nil
}
