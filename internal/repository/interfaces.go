package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/consult-api/internal/model"
)

var (
	// ErrNotFound is returned by point lookups that match nothing.
	ErrNotFound = errors.New("record not found")

	// ErrSlotTaken is returned when a write would put a second active
	// consultation into one (provider, date, time) slot.
	ErrSlotTaken = errors.New("slot already has an active consultation")

	// ErrAlreadyExists is returned when a unique natural key is reused.
	ErrAlreadyExists = errors.New("record already exists")

	// ErrDuplicateEvent is returned when an outbox event with the same
	// dedup key was already enqueued.
	ErrDuplicateEvent = errors.New("event already enqueued")
)

// All repository interfaces in one file
type (
	ProviderRepository interface {
		// Create fails with ErrAlreadyExists if the email is taken.
		Create(ctx context.Context, provider *model.Provider) error
		Get(ctx context.Context, id uuid.UUID) (*model.Provider, error)
		List(ctx context.Context) ([]*model.Provider, error)
		// ListBySpecialization returns matches ordered by ID ascending.
		ListBySpecialization(ctx context.Context, specialization string) ([]*model.Provider, error)
		// ListLicenseExpiredBefore returns providers whose license expiry
		// date is strictly before date.
		ListLicenseExpiredBefore(ctx context.Context, date time.Time) ([]*model.Provider, error)
	}

	PatientRepository interface {
		Create(ctx context.Context, patient *model.Patient) error
		Get(ctx context.Context, id uuid.UUID) (*model.Patient, error)
	}

	ConsultationRepository interface {
		// Create fails with ErrSlotTaken if the slot is held by an active consultation.
		Create(ctx context.Context, consultation *model.Consultation) error
		Get(ctx context.Context, id uuid.UUID) (*model.Consultation, error)
		// GetForUpdate locks the row for the rest of the surrounding transaction.
		GetForUpdate(ctx context.Context, id uuid.UUID) (*model.Consultation, error)
		// Update fails with ErrSlotTaken if the new slot is held by another active consultation.
		Update(ctx context.Context, consultation *model.Consultation) error
		List(ctx context.Context, filters *model.ConsultationFilters) ([]*model.Consultation, error)
		ExistsInSlot(ctx context.Context, slot model.SlotKey, statuses []model.ConsultationStatus, excludeID *uuid.UUID) (bool, error)
		ListByDate(ctx context.Context, date time.Time, statuses []model.ConsultationStatus) ([]*model.Consultation, error)
	}

	DocumentRepository interface {
		Create(ctx context.Context, doc *model.PatientDocument) error
	}

	NotificationRepository interface {
		Create(ctx context.Context, notification *model.Notification) error
		ListByProvider(ctx context.Context, providerID uuid.UUID, limit int) ([]*model.Notification, error)
	}

	OutboxRepository interface {
		// Create fails with ErrDuplicateEvent when the dedup key is already present.
		Create(ctx context.Context, event *model.OutboxEvent) error
		GetPendingEventsWithLock(ctx context.Context, limit int) ([]*model.OutboxEvent, error)
		// Lease hides the events from GetPendingEventsWithLock until the
		// given time.
		Lease(ctx context.Context, ids []uuid.UUID, until time.Time) error
		MarkProcessed(ctx context.Context, id uuid.UUID) error
		MarkRetry(ctx context.Context, id uuid.UUID, errorMessage string, retryAt time.Time) error
		MarkFailed(ctx context.Context, id uuid.UUID, errorMessage string) error
		DeleteProcessedBefore(ctx context.Context, before time.Time) (int64, error)
	}

	// Transactor runs fn inside one storage transaction. Repositories called
	// with the ctx handed to fn join that transaction.
	Transactor interface {
		WithTx(ctx context.Context, fn func(ctx context.Context) error) error
	}
)

// Store bundles the repositories of one storage backend.
type Store struct {
	Providers     ProviderRepository
	Patients      PatientRepository
	Consultations ConsultationRepository
	Documents     DocumentRepository
	Notifications NotificationRepository
	Outbox        OutboxRepository
	Tx            Transactor
	Close         func() error
}
