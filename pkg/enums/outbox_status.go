package enums

import "fmt"

// OutboxStatus maps to the outbox_status enum in Postgres. Records move
// forward only: pending -> sent, or pending -> failed -> sent/dead_letter.
type OutboxStatus string

const (
	OutboxStatusPending    OutboxStatus = "pending"
	OutboxStatusFailed     OutboxStatus = "failed"
	OutboxStatusSent       OutboxStatus = "sent"
	OutboxStatusDeadLetter OutboxStatus = "dead_letter"
)

var validOutboxStatuses = []OutboxStatus{
	OutboxStatusPending,
	OutboxStatusFailed,
	OutboxStatusSent,
	OutboxStatusDeadLetter,
}

// IsValid reports whether the value matches the canonical outbox_status enum.
func (s OutboxStatus) IsValid() bool {
	for _, candidate := range validOutboxStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// IsTerminal reports whether the status permits no further transitions.
func (s OutboxStatus) IsTerminal() bool {
	return s == OutboxStatusSent || s == OutboxStatusDeadLetter
}

// ParseOutboxStatus converts raw input into OutboxStatus.
func ParseOutboxStatus(value string) (OutboxStatus, error) {
	for _, candidate := range validOutboxStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid outbox status %q", value)
}
