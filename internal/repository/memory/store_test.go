package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/consult-api/internal/model"
	"github.com/jwalitptl/consult-api/internal/repository"
)

var day = time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)

func newConsultation(providerID uuid.UUID, clock string) *model.Consultation {
	return &model.Consultation{
		PatientID:  uuid.New(),
		ProviderID: providerID,
		Date:       day,
		Time:       clock,
		Status:     model.ConsultationStatusScheduled,
		Priority:   model.PriorityMedium,
	}
}

func TestConsultations_UniqueActiveSlot(t *testing.T) {
	ctx := context.Background()
	store := NewStore(NewDB())
	providerID := uuid.New()

	first := newConsultation(providerID, "10:00")
	require.NoError(t, store.Consultations.Create(ctx, first))
	assert.ErrorIs(t, store.Consultations.Create(ctx, newConsultation(providerID, "10:00")), repository.ErrSlotTaken)

	// Another provider or time is free.
	require.NoError(t, store.Consultations.Create(ctx, newConsultation(uuid.New(), "10:00")))
	require.NoError(t, store.Consultations.Create(ctx, newConsultation(providerID, "11:00")))

	// A canceled booking releases the slot.
	first.Status = model.ConsultationStatusCanceled
	require.NoError(t, store.Consultations.Update(ctx, first))
	require.NoError(t, store.Consultations.Create(ctx, newConsultation(providerID, "10:00")))
}

func TestConsultations_UpdateIntoHeldSlot(t *testing.T) {
	ctx := context.Background()
	store := NewStore(NewDB())
	providerID := uuid.New()

	a := newConsultation(providerID, "10:00")
	b := newConsultation(providerID, "11:00")
	require.NoError(t, store.Consultations.Create(ctx, a))
	require.NoError(t, store.Consultations.Create(ctx, b))

	b.Time = "10:00"
	assert.ErrorIs(t, store.Consultations.Update(ctx, b), repository.ErrSlotTaken)

	// Re-saving into its own slot is fine.
	a.Status = model.ConsultationStatusRescheduled
	require.NoError(t, store.Consultations.Update(ctx, a))
}

func TestConsultations_ExistsInSlotExcludesSelf(t *testing.T) {
	ctx := context.Background()
	store := NewStore(NewDB())
	c := newConsultation(uuid.New(), "10:00")
	require.NoError(t, store.Consultations.Create(ctx, c))

	held, err := store.Consultations.ExistsInSlot(ctx, c.Slot(), model.ActiveStatuses, nil)
	require.NoError(t, err)
	assert.True(t, held)

	held, err = store.Consultations.ExistsInSlot(ctx, c.Slot(), model.ActiveStatuses, &c.ID)
	require.NoError(t, err)
	assert.False(t, held)
}

func TestWithTx_RollsBackOnError(t *testing.T) {
	ctx := context.Background()
	store := NewStore(NewDB())
	boom := errors.New("boom")

	c := newConsultation(uuid.New(), "10:00")
	require.NoError(t, store.Consultations.Create(ctx, c))

	var created *model.Consultation
	err := store.Tx.WithTx(ctx, func(ctx context.Context) error {
		c.Status = model.ConsultationStatusCanceled
		if err := store.Consultations.Update(ctx, c); err != nil {
			return err
		}
		created = newConsultation(uuid.New(), "12:00")
		if err := store.Consultations.Create(ctx, created); err != nil {
			return err
		}
		key := "k"
		if err := store.Outbox.Create(ctx, &model.OutboxEvent{EventType: "x", Payload: []byte(`{}`), DedupKey: &key}); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)

	got, err := store.Consultations.Get(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, model.ConsultationStatusScheduled, got.Status)

	_, err = store.Consultations.Get(ctx, created.ID)
	assert.ErrorIs(t, err, repository.ErrNotFound)

	// The dedup key was released with the rollback.
	key := "k"
	require.NoError(t, store.Outbox.Create(ctx, &model.OutboxEvent{EventType: "x", Payload: []byte(`{}`), DedupKey: &key}))
}

func TestWithTx_NestedJoinsOuter(t *testing.T) {
	ctx := context.Background()
	store := NewStore(NewDB())
	c := newConsultation(uuid.New(), "10:00")

	err := store.Tx.WithTx(ctx, func(ctx context.Context) error {
		return store.Tx.WithTx(ctx, func(ctx context.Context) error {
			return store.Consultations.Create(ctx, c)
		})
	})
	require.NoError(t, err)

	_, err = store.Consultations.Get(ctx, c.ID)
	require.NoError(t, err)
}

func TestProviders_OrderAndExpiry(t *testing.T) {
	ctx := context.Background()
	store := NewStore(NewDB())

	ids := []uuid.UUID{
		uuid.MustParse("00000000-0000-0000-0000-000000000003"),
		uuid.MustParse("00000000-0000-0000-0000-000000000001"),
		uuid.MustParse("00000000-0000-0000-0000-000000000002"),
	}
	for i, id := range ids {
		p := &model.Provider{
			Base:              model.Base{ID: id},
			Name:              id.String(),
			Email:             id.String() + "@example.com",
			Specialization:    "Cardiology",
			LicenseExpiryDate: day.AddDate(0, 0, i-1),
		}
		require.NoError(t, store.Providers.Create(ctx, p))
	}

	got, err := store.Providers.ListBySpecialization(ctx, "Cardiology")
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, ids[1], got[0].ID)
	assert.Equal(t, ids[2], got[1].ID)
	assert.Equal(t, ids[0], got[2].ID)

	expired, err := store.Providers.ListLicenseExpiredBefore(ctx, day)
	require.NoError(t, err)
	require.Len(t, expired, 1)
	assert.Equal(t, ids[0], expired[0].ID)

	dup := &model.Provider{Email: ids[0].String() + "@example.com", Specialization: "Cardiology"}
	assert.ErrorIs(t, store.Providers.Create(ctx, dup), repository.ErrAlreadyExists)
}

func TestOutbox_Lifecycle(t *testing.T) {
	ctx := context.Background()
	store := NewStore(NewDB())

	key := "reminder:1"
	evt := &model.OutboxEvent{EventType: "consultation.reminder", Payload: []byte(`{}`), DedupKey: &key}
	require.NoError(t, store.Outbox.Create(ctx, evt))
	assert.ErrorIs(t, store.Outbox.Create(ctx, &model.OutboxEvent{EventType: "x", Payload: []byte(`{}`), DedupKey: &key}), repository.ErrDuplicateEvent)

	pending, err := store.Outbox.GetPendingEventsWithLock(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)

	require.NoError(t, store.Outbox.MarkRetry(ctx, evt.ID, "smtp down", time.Now().Add(time.Hour)))
	pending, err = store.Outbox.GetPendingEventsWithLock(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, pending)

	require.NoError(t, store.Outbox.MarkProcessed(ctx, evt.ID))
	n, err := store.Outbox.DeleteProcessedBefore(ctx, time.Now().Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	assert.ErrorIs(t, store.Outbox.MarkFailed(ctx, evt.ID, "gone"), repository.ErrNotFound)
}

func TestNotifications_ListByProviderNewestFirst(t *testing.T) {
	ctx := context.Background()
	store := NewStore(NewDB())
	providerID := uuid.New()

	for _, msg := range []string{"first", "second", "third"} {
		require.NoError(t, store.Notifications.Create(ctx, &model.Notification{ProviderID: providerID, Message: msg}))
	}
	require.NoError(t, store.Notifications.Create(ctx, &model.Notification{ProviderID: uuid.New(), Message: "other"}))

	got, err := store.Notifications.ListByProvider(ctx, providerID, 2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "third", got[0].Message)
	assert.Equal(t, "second", got[1].Message)
}
