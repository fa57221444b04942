package model

import (
	"time"

	"github.com/google/uuid"
)

type NotificationStatus string

const (
	NotificationStatusSent   NotificationStatus = "sent"
	NotificationStatusFailed NotificationStatus = "failed"
)

// Notification is the in-app record a provider sees for each domain event.
type Notification struct {
	ID          uuid.UUID          `db:"id" json:"id"`
	EventID     uuid.UUID          `db:"event_id" json:"event_id"`
	ProviderID  uuid.UUID          `db:"provider_id" json:"provider_id"`
	Type        EventKind          `db:"type" json:"type"`
	Message     string             `db:"message" json:"message"`
	EmailStatus NotificationStatus `db:"email_status" json:"email_status"`
	LastError   *string            `db:"last_error" json:"last_error,omitempty"`
	CreatedAt   time.Time          `db:"created_at" json:"created_at"`
}
