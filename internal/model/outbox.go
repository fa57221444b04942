package model

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

type OutboxStatus string

const (
	OutboxStatusPending   OutboxStatus = "pending"
	OutboxStatusRetry     OutboxStatus = "retry"
	OutboxStatusProcessed OutboxStatus = "processed"
	OutboxStatusFailed    OutboxStatus = "failed"
)

type OutboxEvent struct {
	ID           uuid.UUID       `db:"id" json:"id"`
	EventType    string          `db:"event_type" json:"event_type"`
	Payload      json.RawMessage `db:"payload" json:"payload"`
	DedupKey     *string         `db:"dedup_key" json:"dedup_key,omitempty"`
	Status       OutboxStatus    `db:"status" json:"status"`
	ErrorMessage *string         `db:"error_message" json:"error_message,omitempty"`
	RetryCount   int             `db:"retry_count" json:"retry_count"`
	RetryAt      *time.Time      `db:"retry_at" json:"retry_at,omitempty"`
	CreatedAt    time.Time       `db:"created_at" json:"created_at"`
	ProcessedAt  *time.Time      `db:"processed_at" json:"processed_at,omitempty"`
	UpdatedAt    time.Time       `db:"updated_at" json:"updated_at"`
}

// NewOutboxEvent wraps a domain event for durable delivery.
func NewOutboxEvent(evt *DomainEvent) (*OutboxEvent, error) {
	payload, err := json.Marshal(evt)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal event payload: %w", err)
	}
	out := &OutboxEvent{
		ID:        evt.ID,
		EventType: string(evt.Kind),
		Payload:   payload,
		Status:    OutboxStatusPending,
		CreatedAt: evt.OccurredAt,
		UpdatedAt: evt.OccurredAt,
	}
	if evt.DedupKey != "" {
		key := evt.DedupKey
		out.DedupKey = &key
	}
	return out, nil
}

// DomainEvent decodes the payload back into the event it carries.
func (e *OutboxEvent) DomainEvent() (*DomainEvent, error) {
	var evt DomainEvent
	if err := json.Unmarshal(e.Payload, &evt); err != nil {
		return nil, fmt.Errorf("failed to decode outbox payload %s: %w", e.ID, err)
	}
	return &evt, nil
}
