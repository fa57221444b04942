package model

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

type ConsultationStatus string

const (
	ConsultationStatusScheduled   ConsultationStatus = "Scheduled"
	ConsultationStatusRescheduled ConsultationStatus = "Rescheduled"
	ConsultationStatusMissed      ConsultationStatus = "Missed"
	ConsultationStatusCompleted   ConsultationStatus = "Completed"
	ConsultationStatusCanceled    ConsultationStatus = "Canceled"
)

// ActiveStatuses are the statuses that occupy a slot.
var ActiveStatuses = []ConsultationStatus{
	ConsultationStatusScheduled,
	ConsultationStatusRescheduled,
}

// IsActive reports whether a consultation in this status holds its slot.
func (s ConsultationStatus) IsActive() bool {
	return s == ConsultationStatusScheduled || s == ConsultationStatusRescheduled
}

// IsTerminal reports whether no further transitions are allowed.
func (s ConsultationStatus) IsTerminal() bool {
	switch s {
	case ConsultationStatusMissed, ConsultationStatusCompleted, ConsultationStatusCanceled:
		return true
	}
	return false
}

func ParseConsultationStatus(s string) (ConsultationStatus, error) {
	for _, st := range []ConsultationStatus{
		ConsultationStatusScheduled,
		ConsultationStatusRescheduled,
		ConsultationStatusMissed,
		ConsultationStatusCompleted,
		ConsultationStatusCanceled,
	} {
		if strings.EqualFold(string(st), s) {
			return st, nil
		}
	}
	return "", fmt.Errorf("unknown consultation status %q", s)
}

// Priority only shapes notification content; it never affects matching.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
)

// ParsePriority defaults an empty value to medium.
func ParsePriority(s string) (Priority, error) {
	switch p := Priority(strings.ToLower(strings.TrimSpace(s))); p {
	case "":
		return PriorityMedium, nil
	case PriorityLow, PriorityMedium, PriorityHigh:
		return p, nil
	default:
		return "", fmt.Errorf("unknown priority %q", s)
	}
}

type Consultation struct {
	Base
	PatientID  uuid.UUID          `db:"patient_id" json:"patient_id"`
	ProviderID uuid.UUID          `db:"provider_id" json:"provider_id"`
	Date       time.Time          `db:"date" json:"-"`
	Time       string             `db:"time" json:"time"`
	Status     ConsultationStatus `db:"status" json:"status"`
	Priority   Priority           `db:"priority" json:"priority"`
	CanceledAt *time.Time         `db:"canceled_at" json:"canceled_at,omitempty"`
}

func (c Consultation) MarshalJSON() ([]byte, error) {
	type alias Consultation
	return json.Marshal(struct {
		alias
		Date string `json:"date"`
	}{alias(c), c.DateString()})
}

// DateString is the YYYY-MM-DD form used in JSON and messages.
func (c *Consultation) DateString() string {
	return FormatDate(c.Date)
}

// Slot returns the slot this consultation occupies (or occupied).
func (c *Consultation) Slot() SlotKey {
	return SlotKey{ProviderID: c.ProviderID, Date: NormalizeDate(c.Date), Time: c.Time}
}

// SlotKey identifies a bookable unit: one provider, one calendar day, one
// time-of-day. It is derived, never stored.
type SlotKey struct {
	ProviderID uuid.UUID
	Date       time.Time
	Time       string
}

func NewSlotKey(providerID uuid.UUID, date time.Time, clock string) SlotKey {
	return SlotKey{ProviderID: providerID, Date: NormalizeDate(date), Time: clock}
}

func (k SlotKey) String() string {
	return fmt.Sprintf("slot:%s:%s:%s", k.ProviderID, FormatDate(k.Date), k.Time)
}

type BookConsultationRequest struct {
	PatientID      uuid.UUID `json:"patient_id" binding:"required"`
	Specialization string    `json:"specialization" binding:"max=100"`
	Date           string    `json:"date" binding:"required,calendar_date"`
	Time           string    `json:"time" binding:"required,clock_time"`
	Priority       string    `json:"priority" binding:"omitempty,oneof=low medium high"`
}

type RescheduleConsultationRequest struct {
	Date     string `json:"date" binding:"required,calendar_date"`
	Time     string `json:"time" binding:"required,clock_time"`
	Priority string `json:"priority" binding:"omitempty,oneof=low medium high"`
}

type ConsultationFilters struct {
	ProviderID *uuid.UUID
	PatientID  *uuid.UUID
	Date       *time.Time
	Statuses   []ConsultationStatus
}

// SummaryEntry is one line of a provider's daily summary.
type SummaryEntry struct {
	ConsultationID uuid.UUID          `json:"consultation_id"`
	PatientName    string             `json:"patient_name"`
	Time           string             `json:"time"`
	Status         ConsultationStatus `json:"status"`
}

type ProviderDaySummary struct {
	ProviderID   uuid.UUID      `json:"provider_id"`
	ProviderName string         `json:"provider_name"`
	Date         string         `json:"date"`
	Entries      []SummaryEntry `json:"entries"`
}

type UpdateConsultationStatusRequest struct {
	Status string `json:"status" binding:"required"`
}
