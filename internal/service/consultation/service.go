package consultation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/jwalitptl/consult-api/internal/model"
	"github.com/jwalitptl/consult-api/internal/repository"
	"github.com/jwalitptl/consult-api/internal/service/event"
	"github.com/jwalitptl/consult-api/internal/service/matcher"
	apperrors "github.com/jwalitptl/consult-api/pkg/errors"
	"github.com/jwalitptl/consult-api/pkg/logger"
	"github.com/jwalitptl/consult-api/pkg/metrics"
	"github.com/jwalitptl/consult-api/pkg/slotlock"
)

var tracer = otel.Tracer("consult.internal.service.consultation")

type Reserver interface {
	Reserve(ctx context.Context, specialization string, date time.Time, clock string, create matcher.CreateFunc) (*model.Provider, error)
}

type ConflictChecker interface {
	HasConflict(ctx context.Context, providerID uuid.UUID, date time.Time, clock string, excludeID *uuid.UUID) (bool, error)
}

type Service struct {
	store   *repository.Store
	matcher Reserver
	slots   ConflictChecker
	locker  slotlock.Locker
	emitter event.Emitter
	metrics *metrics.Metrics
	logger  *logger.Logger
	now     func() time.Time
}

type Deps struct {
	Store   *repository.Store
	Matcher Reserver
	Slots   ConflictChecker
	Locker  slotlock.Locker
	Emitter event.Emitter
	Metrics *metrics.Metrics
	Logger  *logger.Logger
	Now     func() time.Time
}

func NewService(d Deps) *Service {
	if d.Now == nil {
		d.Now = time.Now
	}
	if d.Logger == nil {
		d.Logger = logger.Nop()
	}
	return &Service{
		store:   d.Store,
		matcher: d.Matcher,
		slots:   d.Slots,
		locker:  d.Locker,
		emitter: d.Emitter,
		metrics: d.Metrics,
		logger:  d.Logger,
		now:     d.Now,
	}
}

// BookInput is a booking request after transport decoding. An empty
// Specialization falls back to the patient's reason for consultation.
type BookInput struct {
	PatientID      uuid.UUID
	Specialization string
	Date           time.Time
	Time           string
	Priority       string
}

type RescheduleInput struct {
	Date     time.Time
	Time     string
	Priority string
}

func (s *Service) Book(ctx context.Context, in BookInput) (_ *model.Consultation, err error) {
	ctx, span := tracer.Start(ctx, "consultation.book")
	defer span.End()
	defer s.metrics.Since("book", time.Now())

	outcome := "booked"
	defer func() {
		if err != nil {
			span.RecordError(err)
			outcome = apperrors.CodeOf(err).String()
		}
		s.metrics.Booking(outcome)
	}()

	clock, err := model.NormalizeTime(in.Time)
	if err != nil {
		return nil, apperrors.BadRequest(err.Error(), err)
	}
	priority, err := model.ParsePriority(in.Priority)
	if err != nil {
		return nil, apperrors.BadRequest(err.Error(), err)
	}
	date := model.NormalizeDate(in.Date)

	patient, err := s.store.Patients.Get(ctx, in.PatientID)
	if err != nil {
		return nil, notFound("patient", err)
	}

	specialization := in.Specialization
	if specialization == "" {
		specialization = patient.ReasonForConsultation
	}
	if specialization == "" {
		return nil, apperrors.BadRequest("specialization is required", nil)
	}

	span.SetAttributes(
		attribute.String("consult.specialization", specialization),
		attribute.String("consult.date", model.FormatDate(date)),
		attribute.String("consult.time", clock),
	)

	status, err := model.Transition(model.StatusNone, model.EventBook)
	if err != nil {
		return nil, err
	}

	var booked *model.Consultation
	_, err = s.matcher.Reserve(ctx, specialization, date, clock, func(ctx context.Context, provider *model.Provider) error {
		c := &model.Consultation{
			PatientID:  patient.ID,
			ProviderID: provider.ID,
			Date:       date,
			Time:       clock,
			Status:     status,
			Priority:   priority,
		}
		err := s.store.Tx.WithTx(ctx, func(ctx context.Context) error {
			if err := s.store.Consultations.Create(ctx, c); err != nil {
				return err
			}
			msg := fmt.Sprintf("New consultation on %s at %s (Priority: %s)", c.DateString(), c.Time, c.Priority)
			return s.emit(ctx, model.EventKindBooked, c, msg)
		})
		if err != nil {
			return err
		}
		booked = c
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.metrics.Transition(string(model.EventBook), "ok")
	s.logger.Info("consultation booked",
		"consultation_id", booked.ID.String(),
		"provider_id", booked.ProviderID.String(),
		"date", booked.DateString(),
		"time", booked.Time,
	)
	return booked, nil
}

// Reschedule moves a consultation to a new slot with the same provider.
// The target slot is checked under its lock, ignoring the consultation
// itself, so moving onto its own slot succeeds.
func (s *Service) Reschedule(ctx context.Context, id uuid.UUID, in RescheduleInput) (_ *model.Consultation, err error) {
	ctx, span := tracer.Start(ctx, "consultation.reschedule")
	defer span.End()
	defer s.metrics.Since("reschedule", time.Now())
	defer s.record(model.EventReschedule, span, &err)

	clock, err := model.NormalizeTime(in.Time)
	if err != nil {
		return nil, apperrors.BadRequest(err.Error(), err)
	}
	date := model.NormalizeDate(in.Date)

	current, err := s.store.Consultations.Get(ctx, id)
	if err != nil {
		return nil, notFound("consultation", err)
	}
	if _, err := model.Transition(current.Status, model.EventReschedule); err != nil {
		return nil, err
	}

	key := model.NewSlotKey(current.ProviderID, date, clock)
	lock, err := s.locker.Acquire(ctx, key.String())
	if errors.Is(err, slotlock.ErrTimeout) {
		return nil, apperrors.Conflict("requested slot is busy", err)
	}
	if err != nil {
		return nil, apperrors.DependencyFailure("slot lock", err)
	}
	defer s.release(ctx, lock, key)

	var updated *model.Consultation
	err = s.store.Tx.WithTx(ctx, func(ctx context.Context) error {
		c, err := s.store.Consultations.GetForUpdate(ctx, id)
		if err != nil {
			return notFound("consultation", err)
		}
		to, err := model.Transition(c.Status, model.EventReschedule)
		if err != nil {
			return err
		}

		held, err := s.slots.HasConflict(ctx, c.ProviderID, date, clock, &c.ID)
		if err != nil {
			return err
		}
		if held {
			return apperrors.Conflict(fmt.Sprintf("provider already has a consultation on %s at %s", model.FormatDate(date), clock), nil)
		}

		c.Date = date
		c.Time = clock
		c.Status = to
		if in.Priority != "" {
			if c.Priority, err = model.ParsePriority(in.Priority); err != nil {
				return apperrors.BadRequest(err.Error(), err)
			}
		}

		if err := s.store.Consultations.Update(ctx, c); err != nil {
			if errors.Is(err, repository.ErrSlotTaken) {
				return apperrors.Conflict("requested slot was taken", err)
			}
			return err
		}

		msg := fmt.Sprintf("Consultation updated to %s at %s (Priority: %s)", c.DateString(), c.Time, c.Priority)
		if err := s.emit(ctx, model.EventKindRescheduled, c, msg); err != nil {
			return err
		}
		updated = c
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("consultation rescheduled",
		"consultation_id", updated.ID.String(),
		"date", updated.DateString(),
		"time", updated.Time,
	)
	return updated, nil
}

func (s *Service) MarkMissed(ctx context.Context, id uuid.UUID) (*model.Consultation, error) {
	return s.transition(ctx, id, model.EventMarkMissed, func(c *model.Consultation, patient string) string {
		return fmt.Sprintf("A consultation with %s on %s at %s was missed.", patient, c.DateString(), c.Time)
	})
}

func (s *Service) MarkCompleted(ctx context.Context, id uuid.UUID) (*model.Consultation, error) {
	return s.transition(ctx, id, model.EventMarkCompleted, func(c *model.Consultation, patient string) string {
		return fmt.Sprintf("Consultation with %s on %s at %s was completed.", patient, c.DateString(), c.Time)
	})
}

// Cancel moves the consultation to Canceled and keeps the record.
func (s *Service) Cancel(ctx context.Context, id uuid.UUID) (*model.Consultation, error) {
	return s.transition(ctx, id, model.EventCancel, func(c *model.Consultation, patient string) string {
		return fmt.Sprintf("Consultation with %s on %s at %s has been canceled.", patient, c.DateString(), c.Time)
	})
}

// transition applies a status-only lifecycle event and enqueues its domain
// event in the same transaction.
func (s *Service) transition(ctx context.Context, id uuid.UUID, ev model.LifecycleEvent, message func(*model.Consultation, string) string) (_ *model.Consultation, err error) {
	ctx, span := tracer.Start(ctx, "consultation."+string(ev))
	defer span.End()
	span.SetAttributes(attribute.String("consult.consultation_id", id.String()))
	defer s.metrics.Since(string(ev), time.Now())
	defer s.record(ev, span, &err)

	var updated *model.Consultation
	err = s.store.Tx.WithTx(ctx, func(ctx context.Context) error {
		c, err := s.store.Consultations.GetForUpdate(ctx, id)
		if err != nil {
			return notFound("consultation", err)
		}

		to, err := model.Transition(c.Status, ev)
		if err != nil {
			return err
		}
		c.Status = to
		if to == model.ConsultationStatusCanceled {
			now := s.now().UTC()
			c.CanceledAt = &now
		}

		if err := s.store.Consultations.Update(ctx, c); err != nil {
			return err
		}

		msg := message(c, s.patientLabel(ctx, c.PatientID))
		if err := s.emit(ctx, model.LifecycleEventKinds[ev], c, msg); err != nil {
			return err
		}
		updated = c
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("consultation transitioned",
		"consultation_id", updated.ID.String(),
		"event", string(ev),
		"status", string(updated.Status),
	)
	return updated, nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*model.Consultation, error) {
	c, err := s.store.Consultations.Get(ctx, id)
	if err != nil {
		return nil, notFound("consultation", err)
	}
	return c, nil
}

func (s *Service) List(ctx context.Context, filters *model.ConsultationFilters) ([]*model.Consultation, error) {
	consultations, err := s.store.Consultations.List(ctx, filters)
	if err != nil {
		return nil, fmt.Errorf("failed to list consultations: %w", err)
	}
	return consultations, nil
}

// Summary collects a provider's consultations on date and notifies the
// provider that the summary is available.
func (s *Service) Summary(ctx context.Context, providerID uuid.UUID, date time.Time) (*model.ProviderDaySummary, error) {
	ctx, span := tracer.Start(ctx, "consultation.summary")
	defer span.End()

	provider, err := s.store.Providers.Get(ctx, providerID)
	if err != nil {
		span.RecordError(err)
		return nil, notFound("provider", err)
	}

	day := model.NormalizeDate(date)
	consultations, err := s.store.Consultations.List(ctx, &model.ConsultationFilters{
		ProviderID: &providerID,
		Date:       &day,
	})
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to list consultations: %w", err)
	}

	summary := &model.ProviderDaySummary{
		ProviderID:   provider.ID,
		ProviderName: provider.Name,
		Date:         model.FormatDate(day),
		Entries:      make([]model.SummaryEntry, 0, len(consultations)),
	}
	for _, c := range consultations {
		summary.Entries = append(summary.Entries, model.SummaryEntry{
			ConsultationID: c.ID,
			PatientName:    s.patientLabel(ctx, c.PatientID),
			Time:           c.Time,
			Status:         c.Status,
		})
	}

	evt := &model.DomainEvent{
		ID:         uuid.New(),
		Kind:       model.EventKindDailySummary,
		ProviderID: provider.ID,
		Message:    fmt.Sprintf("Your consultation summary for %s is available.", summary.Date),
		Context: map[string]string{
			"date":  summary.Date,
			"count": fmt.Sprintf("%d", len(summary.Entries)),
		},
		OccurredAt: s.now().UTC(),
	}
	// One notice per provider, summary date and calendar day of the request.
	evt.DedupKey = fmt.Sprintf("daily_summary:%s:%s:%s", provider.ID, summary.Date, model.FormatDate(evt.OccurredAt))
	if err := s.emitter.Emit(ctx, evt); err != nil && !errors.Is(err, repository.ErrDuplicateEvent) {
		span.RecordError(err)
		return nil, err
	}
	return summary, nil
}

// AttachDocument records the metadata of a document the upload subsystem
// stored and notifies the provider.
func (s *Service) AttachDocument(ctx context.Context, consultationID uuid.UUID, documentType, documentURL string) (*model.PatientDocument, error) {
	ctx, span := tracer.Start(ctx, "consultation.attach_document")
	defer span.End()

	c, err := s.store.Consultations.Get(ctx, consultationID)
	if err != nil {
		span.RecordError(err)
		return nil, notFound("consultation", err)
	}

	doc := &model.PatientDocument{
		ConsultationID: c.ID,
		ProviderID:     c.ProviderID,
		PatientID:      c.PatientID,
		DocumentType:   documentType,
		DocumentURL:    documentURL,
	}

	err = s.store.Tx.WithTx(ctx, func(ctx context.Context) error {
		if err := s.store.Documents.Create(ctx, doc); err != nil {
			return err
		}
		evt := model.NewConsultationEvent(model.EventKindDocumentSubmitted, c,
			fmt.Sprintf("Patient (ID: %s) submitted a %s for consultation ID %s on %s.",
				c.PatientID, documentType, c.ID, c.DateString()),
			s.now().UTC(),
		)
		evt.Context["document_type"] = documentType
		evt.Context["document_url"] = documentURL
		return s.emitter.Emit(ctx, evt)
	})
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	return doc, nil
}

func (s *Service) emit(ctx context.Context, kind model.EventKind, c *model.Consultation, message string) error {
	return s.emitter.Emit(ctx, model.NewConsultationEvent(kind, c, message, s.now().UTC()))
}

func (s *Service) record(ev model.LifecycleEvent, span trace.Span, errp *error) {
	if *errp != nil {
		span.RecordError(*errp)
		s.metrics.Transition(string(ev), apperrors.CodeOf(*errp).String())
		return
	}
	s.metrics.Transition(string(ev), "ok")
}

func (s *Service) release(ctx context.Context, lock slotlock.Lock, key model.SlotKey) {
	if err := lock.Release(context.WithoutCancel(ctx)); err != nil {
		s.logger.Warn("failed to release slot lock", "slot", key.String(), "error", err.Error())
	}
}

// patientLabel is the patient's name for messages, or their ID if the
// lookup fails.
func (s *Service) patientLabel(ctx context.Context, patientID uuid.UUID) string {
	p, err := s.store.Patients.Get(ctx, patientID)
	if err != nil {
		return "patient " + patientID.String()
	}
	return p.Name
}

func notFound(resource string, err error) error {
	if errors.Is(err, repository.ErrNotFound) {
		return apperrors.NotFound(resource, err)
	}
	return err
}
