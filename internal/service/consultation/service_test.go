package consultation

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
	"github.com/jwalitptl/consult-api/internal/repository/memory"
	"github.com/jwalitptl/consult-api/internal/service/directory"
	"github.com/jwalitptl/consult-api/internal/service/event"
	"github.com/jwalitptl/consult-api/internal/service/matcher"
	"github.com/jwalitptl/consult-api/internal/service/slot"
	apperrors "github.com/jwalitptl/consult-api/pkg/errors"
	"github.com/jwalitptl/consult-api/pkg/logger"
	"github.com/jwalitptl/consult-api/pkg/slotlock"
)

var (
	now = time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	day = time.Date(2024, 5, 3, 0, 0, 0, 0, time.UTC)
)

type failingEmitter struct{ err error }

func (f failingEmitter) Emit(context.Context, *model.DomainEvent) error { return f.err }

type fixture struct {
	store     *repository.Store
	svc       *Service
	providers []*model.Provider
	patient   *model.Patient
}

func newFixture(t *testing.T, emitter event.Emitter, providers int) *fixture {
	t.Helper()
	ctx := context.Background()
	store := memory.NewStore(memory.NewDB())

	f := &fixture{store: store}
	for i := 0; i < providers; i++ {
		p := &model.Provider{
			Base:              model.Base{ID: uuid.MustParse("00000000-0000-0000-0000-00000000000" + string(rune('1'+i)))},
			Name:              "Dr " + string(rune('A'+i)),
			Email:             string(rune('a'+i)) + "@example.com",
			Specialization:    "Cardiology",
			LicenseExpiryDate: now.AddDate(1, 0, 0),
		}
		require.NoError(t, store.Providers.Create(ctx, p))
		f.providers = append(f.providers, p)
	}

	f.patient = &model.Patient{Name: "Jane Roe", Email: "jane@example.com", ReasonForConsultation: "Cardiology"}
	require.NoError(t, store.Patients.Create(ctx, f.patient))

	if emitter == nil {
		emitter = event.NewOutboxEmitter(store.Outbox, nil, logger.Nop())
	}
	clock := func() time.Time { return now }
	locker := slotlock.NewLocalLocker(time.Second)
	index := slot.NewIndex(store.Consultations)
	dir := directory.NewService(store.Providers, directory.WithClock(clock))

	f.svc = NewService(Deps{
		Store:   store,
		Matcher: matcher.New(dir, index, locker, nil, logger.Nop()),
		Slots:   index,
		Locker:  locker,
		Emitter: emitter,
		Logger:  logger.Nop(),
		Now:     clock,
	})
	return f
}

func (f *fixture) book(t *testing.T, clock string) *model.Consultation {
	t.Helper()
	c, err := f.svc.Book(context.Background(), BookInput{PatientID: f.patient.ID, Date: day, Time: clock})
	require.NoError(t, err)
	return c
}

func (f *fixture) events(t *testing.T) map[string]int {
	t.Helper()
	pending, err := f.store.Outbox.GetPendingEventsWithLock(context.Background(), 100)
	require.NoError(t, err)
	kinds := map[string]int{}
	for _, e := range pending {
		kinds[e.EventType]++
	}
	return kinds
}

func TestBook(t *testing.T) {
	f := newFixture(t, nil, 2)

	c, err := f.svc.Book(context.Background(), BookInput{
		PatientID:      f.patient.ID,
		Specialization: "Cardiology",
		Date:           time.Date(2024, 5, 3, 22, 0, 0, 0, time.FixedZone("PDT", -7*3600)),
		Time:           "9:30",
		Priority:       "high",
	})
	require.NoError(t, err)

	assert.Equal(t, model.ConsultationStatusScheduled, c.Status)
	assert.Equal(t, f.providers[0].ID, c.ProviderID)
	assert.Equal(t, "2024-05-03", c.DateString())
	assert.Equal(t, "09:30", c.Time)
	assert.Equal(t, model.PriorityHigh, c.Priority)
	assert.Equal(t, map[string]int{string(model.EventKindBooked): 1}, f.events(t))

	// The next booking for the same slot goes to the second provider.
	next := f.book(t, "09:30")
	assert.Equal(t, f.providers[1].ID, next.ProviderID)
}

func TestBook_DefaultsSpecializationAndPriority(t *testing.T) {
	f := newFixture(t, nil, 1)

	c := f.book(t, "10:00")
	assert.Equal(t, f.providers[0].ID, c.ProviderID)
	assert.Equal(t, model.PriorityMedium, c.Priority)
}

func TestBook_Errors(t *testing.T) {
	f := newFixture(t, nil, 1)
	ctx := context.Background()

	_, err := f.svc.Book(ctx, BookInput{PatientID: uuid.New(), Date: day, Time: "10:00"})
	assert.True(t, apperrors.Is(err, apperrors.ErrNotFound))

	_, err = f.svc.Book(ctx, BookInput{PatientID: f.patient.ID, Date: day, Time: "25:00"})
	assert.True(t, apperrors.Is(err, apperrors.ErrBadRequest))

	_, err = f.svc.Book(ctx, BookInput{PatientID: f.patient.ID, Date: day, Time: "10:00", Priority: "urgent"})
	assert.True(t, apperrors.Is(err, apperrors.ErrBadRequest))

	_, err = f.svc.Book(ctx, BookInput{PatientID: f.patient.ID, Specialization: "Neurology", Date: day, Time: "10:00"})
	assert.True(t, apperrors.Is(err, apperrors.ErrNoProviders))

	f.book(t, "10:00")
	_, err = f.svc.Book(ctx, BookInput{PatientID: f.patient.ID, Date: day, Time: "10:00"})
	assert.True(t, apperrors.Is(err, apperrors.ErrAllBusy))
}

func TestBook_EmitFailureRollsBack(t *testing.T) {
	boom := errors.New("outbox down")
	f := newFixture(t, failingEmitter{err: boom}, 1)

	_, err := f.svc.Book(context.Background(), BookInput{PatientID: f.patient.ID, Date: day, Time: "10:00"})
	assert.ErrorIs(t, err, boom)

	all, err := f.svc.List(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestReschedule(t *testing.T) {
	f := newFixture(t, nil, 1)
	ctx := context.Background()
	first := f.book(t, "10:00")
	other := f.book(t, "11:00")

	// Onto its own slot.
	c, err := f.svc.Reschedule(ctx, first.ID, RescheduleInput{Date: day, Time: "10:00"})
	require.NoError(t, err)
	assert.Equal(t, model.ConsultationStatusRescheduled, c.Status)

	// Onto a slot the provider already holds.
	_, err = f.svc.Reschedule(ctx, first.ID, RescheduleInput{Date: day, Time: "11:00"})
	assert.True(t, apperrors.Is(err, apperrors.ErrConflict))

	// Onto a free slot; the old slot is released.
	c, err = f.svc.Reschedule(ctx, first.ID, RescheduleInput{Date: day.AddDate(0, 0, 1), Time: "12:00", Priority: "low"})
	require.NoError(t, err)
	assert.Equal(t, "2024-05-04", c.DateString())
	assert.Equal(t, "12:00", c.Time)
	assert.Equal(t, model.PriorityLow, c.Priority)

	moved := f.book(t, "10:00")
	assert.Equal(t, f.providers[0].ID, moved.ProviderID)

	_, err = f.svc.Cancel(ctx, other.ID)
	require.NoError(t, err)
	_, err = f.svc.Reschedule(ctx, other.ID, RescheduleInput{Date: day, Time: "15:00"})
	assert.True(t, apperrors.Is(err, apperrors.ErrInvalidTransition))

	_, err = f.svc.Reschedule(ctx, uuid.New(), RescheduleInput{Date: day, Time: "15:00"})
	assert.True(t, apperrors.Is(err, apperrors.ErrNotFound))

	assert.Equal(t, 2, f.events(t)[string(model.EventKindRescheduled)])
}

func TestMarkMissed(t *testing.T) {
	f := newFixture(t, nil, 1)
	ctx := context.Background()
	c := f.book(t, "10:00")

	missed, err := f.svc.MarkMissed(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, model.ConsultationStatusMissed, missed.Status)

	_, err = f.svc.MarkMissed(ctx, c.ID)
	assert.True(t, apperrors.Is(err, apperrors.ErrAlreadyMissed))

	_, err = f.svc.MarkCompleted(ctx, c.ID)
	assert.True(t, apperrors.Is(err, apperrors.ErrInvalidTransition))

	assert.Equal(t, 1, f.events(t)[string(model.EventKindMissed)])
}

func TestMarkCompleted(t *testing.T) {
	f := newFixture(t, nil, 1)
	ctx := context.Background()
	c := f.book(t, "10:00")

	done, err := f.svc.MarkCompleted(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, model.ConsultationStatusCompleted, done.Status)

	for _, op := range []func(context.Context, uuid.UUID) (*model.Consultation, error){
		f.svc.MarkCompleted, f.svc.MarkMissed, f.svc.Cancel,
	} {
		_, err := op(ctx, c.ID)
		assert.True(t, apperrors.Is(err, apperrors.ErrInvalidTransition))
	}
}

func TestCancel_KeepsRecordAndFreesSlot(t *testing.T) {
	f := newFixture(t, nil, 1)
	ctx := context.Background()
	c := f.book(t, "10:00")

	canceled, err := f.svc.Cancel(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, model.ConsultationStatusCanceled, canceled.Status)
	require.NotNil(t, canceled.CanceledAt)
	assert.True(t, canceled.CanceledAt.Equal(now))

	got, err := f.svc.Get(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, model.ConsultationStatusCanceled, got.Status)

	rebooked := f.book(t, "10:00")
	assert.NotEqual(t, c.ID, rebooked.ID)

	_, err = f.svc.Cancel(ctx, c.ID)
	assert.True(t, apperrors.Is(err, apperrors.ErrInvalidTransition))
}

func TestTransitions_EmitExactlyOneEventEach(t *testing.T) {
	f := newFixture(t, nil, 1)
	ctx := context.Background()

	a := f.book(t, "09:00")
	b := f.book(t, "10:00")
	c := f.book(t, "11:00")

	_, err := f.svc.Reschedule(ctx, a.ID, RescheduleInput{Date: day, Time: "12:00"})
	require.NoError(t, err)
	_, err = f.svc.MarkMissed(ctx, a.ID)
	require.NoError(t, err)
	_, err = f.svc.MarkCompleted(ctx, b.ID)
	require.NoError(t, err)
	_, err = f.svc.Cancel(ctx, c.ID)
	require.NoError(t, err)

	// Rejected transitions emit nothing.
	_, _ = f.svc.MarkMissed(ctx, a.ID)
	_, _ = f.svc.Cancel(ctx, b.ID)

	assert.Equal(t, map[string]int{
		string(model.EventKindBooked):      3,
		string(model.EventKindRescheduled): 1,
		string(model.EventKindMissed):      1,
		string(model.EventKindCompleted):   1,
		string(model.EventKindCanceled):    1,
	}, f.events(t))
}

func TestGet_NotFound(t *testing.T) {
	f := newFixture(t, nil, 1)
	_, err := f.svc.Get(context.Background(), uuid.New())
	assert.True(t, apperrors.Is(err, apperrors.ErrNotFound))
}

func TestSummary(t *testing.T) {
	f := newFixture(t, nil, 1)
	ctx := context.Background()
	f.book(t, "11:00")
	first := f.book(t, "09:00")
	_, err := f.svc.Cancel(ctx, first.ID)
	require.NoError(t, err)

	summary, err := f.svc.Summary(ctx, f.providers[0].ID, day)
	require.NoError(t, err)
	assert.Equal(t, "2024-05-03", summary.Date)
	require.Len(t, summary.Entries, 2)
	assert.Equal(t, "09:00", summary.Entries[0].Time)
	assert.Equal(t, model.ConsultationStatusCanceled, summary.Entries[0].Status)
	assert.Equal(t, "Jane Roe", summary.Entries[1].PatientName)
	assert.Equal(t, 1, f.events(t)[string(model.EventKindDailySummary)])

	// Viewing the same summary again the same day sends nothing new.
	_, err = f.svc.Summary(ctx, f.providers[0].ID, day)
	require.NoError(t, err)
	assert.Equal(t, 1, f.events(t)[string(model.EventKindDailySummary)])

	f.svc.now = func() time.Time { return now.AddDate(0, 0, 1) }
	_, err = f.svc.Summary(ctx, f.providers[0].ID, day)
	require.NoError(t, err)
	assert.Equal(t, 2, f.events(t)[string(model.EventKindDailySummary)])

	_, err = f.svc.Summary(ctx, uuid.New(), day)
	assert.True(t, apperrors.Is(err, apperrors.ErrNotFound))
}

func TestAttachDocument(t *testing.T) {
	f := newFixture(t, nil, 1)
	ctx := context.Background()
	c := f.book(t, "10:00")

	doc, err := f.svc.AttachDocument(ctx, c.ID, "lab_report", "https://files.example.com/lab.pdf")
	require.NoError(t, err)
	assert.Equal(t, c.ProviderID, doc.ProviderID)
	assert.Equal(t, c.PatientID, doc.PatientID)
	assert.NotEqual(t, uuid.Nil, doc.ID)
	assert.Equal(t, 1, f.events(t)[string(model.EventKindDocumentSubmitted)])

	_, err = f.svc.AttachDocument(ctx, uuid.New(), "lab_report", "https://files.example.com/lab.pdf")
	assert.True(t, apperrors.Is(err, apperrors.ErrNotFound))
}

func TestBook_SkipsProviderHoldingTheSlot(t *testing.T) {
	f := newFixture(t, nil, 2)
	ctx := context.Background()
	jan10 := time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC)

	held := &model.Consultation{
		PatientID:  uuid.New(),
		ProviderID: f.providers[0].ID,
		Date:       jan10,
		Time:       "10:00",
		Status:     model.ConsultationStatusScheduled,
		Priority:   model.PriorityMedium,
	}
	require.NoError(t, f.store.Consultations.Create(ctx, held))

	c, err := f.svc.Book(ctx, BookInput{PatientID: f.patient.ID, Specialization: "Cardiology", Date: jan10, Time: "10:00"})
	require.NoError(t, err)
	assert.Equal(t, f.providers[1].ID, c.ProviderID)
}
