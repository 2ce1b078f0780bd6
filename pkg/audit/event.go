package audit

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/perfcycle/pms-backend/pkg/enums"
)

// ActorRef identifies who produced the event.
type ActorRef struct {
	UserID uuid.UUID `json:"userId"`
	Role   string    `json:"role,omitempty"`
}

// Event is the audit envelope raised by the business services. The
// serialized form is stored verbatim in the outbox so the relay never
// depends on the in-memory value.
type Event struct {
	EventID     string            `json:"eventId"`
	EventType   string            `json:"eventType"`
	Domain      enums.AuditDomain `json:"domain"`
	AggregateID string            `json:"aggregateId"`
	Actor       *ActorRef         `json:"actor,omitempty"`
	Data        json.RawMessage   `json:"data,omitempty"`
	OccurredAt  time.Time         `json:"occurredAt"`
}
