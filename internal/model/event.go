package model

import (
	"time"

	"github.com/google/uuid"
)

type EventKind string

const (
	EventKindBooked            EventKind = "consultation.booked"
	EventKindRescheduled       EventKind = "consultation.rescheduled"
	EventKindMissed            EventKind = "consultation.missed"
	EventKindCompleted         EventKind = "consultation.completed"
	EventKindCanceled          EventKind = "consultation.canceled"
	EventKindReminder          EventKind = "consultation.reminder"
	EventKindDocumentSubmitted EventKind = "consultation.document_submitted"
	EventKindLicenseExpired    EventKind = "provider.license_expired"
	EventKindDailySummary      EventKind = "provider.daily_summary"
)

// LifecycleEventKinds maps each state-machine event to the domain event it emits.
var LifecycleEventKinds = map[LifecycleEvent]EventKind{
	EventBook:          EventKindBooked,
	EventReschedule:    EventKindRescheduled,
	EventMarkMissed:    EventKindMissed,
	EventMarkCompleted: EventKindCompleted,
	EventCancel:        EventKindCanceled,
}

// DomainEvent is a structured fact handed to the notification collaborator.
// Context carries the raw values (date, time, priority, ...) so consumers
// render their own text.
type DomainEvent struct {
	ID             uuid.UUID         `json:"id"`
	Kind           EventKind         `json:"kind"`
	ProviderID     uuid.UUID         `json:"provider_id"`
	ConsultationID *uuid.UUID        `json:"consultation_id,omitempty"`
	PatientID      *uuid.UUID        `json:"patient_id,omitempty"`
	Message        string            `json:"message"`
	Context        map[string]string `json:"context,omitempty"`
	OccurredAt     time.Time         `json:"occurred_at"`

	// DedupKey suppresses a second enqueue of the same fact. Empty means
	// always enqueue.
	DedupKey string `json:"-"`
}

// NewConsultationEvent builds an event about c with the slot fields filled in.
func NewConsultationEvent(kind EventKind, c *Consultation, message string, now time.Time) *DomainEvent {
	consultationID := c.ID
	patientID := c.PatientID
	return &DomainEvent{
		ID:             uuid.New(),
		Kind:           kind,
		ProviderID:     c.ProviderID,
		ConsultationID: &consultationID,
		PatientID:      &patientID,
		Message:        message,
		Context: map[string]string{
			"date":     c.DateString(),
			"time":     c.Time,
			"status":   string(c.Status),
			"priority": string(c.Priority),
		},
		OccurredAt: now,
	}
}
