package memory

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/consult-api/internal/model"
	"github.com/jwalitptl/consult-api/internal/repository"
)

type providerRepository struct{ db *DB }

func (r *providerRepository) Create(ctx context.Context, p *model.Provider) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	for _, existing := range r.db.providers {
		if existing.Email == p.Email {
			return repository.ErrAlreadyExists
		}
	}

	p.Touch(time.Now().UTC())
	p.LicenseExpiryDate = model.NormalizeDate(p.LicenseExpiryDate)
	r.db.providers[p.ID] = *p
	id := p.ID
	journal(ctx, func() { delete(r.db.providers, id) })
	return nil
}

func (r *providerRepository) Get(_ context.Context, id uuid.UUID) (*model.Provider, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	p, ok := r.db.providers[id]
	if !ok {
		return nil, fmt.Errorf("failed to get provider: %w", repository.ErrNotFound)
	}
	return &p, nil
}

func (r *providerRepository) List(_ context.Context) ([]*model.Provider, error) {
	return r.filter(func(*model.Provider) bool { return true }), nil
}

func (r *providerRepository) ListBySpecialization(_ context.Context, specialization string) ([]*model.Provider, error) {
	return r.filter(func(p *model.Provider) bool { return p.Specialization == specialization }), nil
}

func (r *providerRepository) ListLicenseExpiredBefore(_ context.Context, date time.Time) ([]*model.Provider, error) {
	day := model.NormalizeDate(date)
	return r.filter(func(p *model.Provider) bool { return p.LicenseExpiryDate.Before(day) }), nil
}

// filter returns copies ordered by ID ascending, the same order postgres
// gives for UUID columns.
func (r *providerRepository) filter(keep func(*model.Provider) bool) []*model.Provider {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	out := make([]*model.Provider, 0)
	for _, p := range r.db.providers {
		p := p
		if keep(&p) {
			out = append(out, &p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return lessUUID(out[i].ID, out[j].ID) })
	return out
}

type patientRepository struct{ db *DB }

func (r *patientRepository) Create(ctx context.Context, p *model.Patient) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	p.Touch(time.Now().UTC())
	r.db.patients[p.ID] = *p
	id := p.ID
	journal(ctx, func() { delete(r.db.patients, id) })
	return nil
}

func (r *patientRepository) Get(_ context.Context, id uuid.UUID) (*model.Patient, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	p, ok := r.db.patients[id]
	if !ok {
		return nil, fmt.Errorf("failed to get patient: %w", repository.ErrNotFound)
	}
	return &p, nil
}

type consultationRepository struct{ db *DB }

// slotHeld reports whether an active consultation other than self holds
// slot. Callers hold mu.
func (r *consultationRepository) slotHeld(slot model.SlotKey, statuses []model.ConsultationStatus, self uuid.UUID) bool {
	for id, c := range r.db.consultations {
		if id == self || !hasStatus(statuses, c.Status) {
			continue
		}
		if c.Slot() == slot {
			return true
		}
	}
	return false
}

func (r *consultationRepository) Create(ctx context.Context, c *model.Consultation) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	c.Touch(time.Now().UTC())
	c.Date = model.NormalizeDate(c.Date)
	if c.Status.IsActive() && r.slotHeld(c.Slot(), model.ActiveStatuses, c.ID) {
		return repository.ErrSlotTaken
	}

	r.db.consultations[c.ID] = *c
	id := c.ID
	journal(ctx, func() { delete(r.db.consultations, id) })
	return nil
}

func (r *consultationRepository) Get(_ context.Context, id uuid.UUID) (*model.Consultation, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	c, ok := r.db.consultations[id]
	if !ok {
		return nil, fmt.Errorf("failed to get consultation: %w", repository.ErrNotFound)
	}
	return &c, nil
}

// GetForUpdate is Get: transactions are already serialized.
func (r *consultationRepository) GetForUpdate(ctx context.Context, id uuid.UUID) (*model.Consultation, error) {
	return r.Get(ctx, id)
}

func (r *consultationRepository) Update(ctx context.Context, c *model.Consultation) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	prev, ok := r.db.consultations[c.ID]
	if !ok {
		return repository.ErrNotFound
	}

	c.UpdatedAt = time.Now().UTC()
	c.Date = model.NormalizeDate(c.Date)
	if c.Status.IsActive() && r.slotHeld(c.Slot(), model.ActiveStatuses, c.ID) {
		return repository.ErrSlotTaken
	}

	r.db.consultations[c.ID] = *c
	journal(ctx, func() { r.db.consultations[prev.ID] = prev })
	return nil
}

func (r *consultationRepository) List(_ context.Context, filters *model.ConsultationFilters) ([]*model.Consultation, error) {
	if filters == nil {
		filters = &model.ConsultationFilters{}
	}
	var day time.Time
	if filters.Date != nil {
		day = model.NormalizeDate(*filters.Date)
	}

	return r.filter(func(c *model.Consultation) bool {
		switch {
		case filters.ProviderID != nil && c.ProviderID != *filters.ProviderID:
			return false
		case filters.PatientID != nil && c.PatientID != *filters.PatientID:
			return false
		case filters.Date != nil && !c.Date.Equal(day):
			return false
		case len(filters.Statuses) > 0 && !hasStatus(filters.Statuses, c.Status):
			return false
		}
		return true
	}), nil
}

func (r *consultationRepository) ExistsInSlot(_ context.Context, slot model.SlotKey, statuses []model.ConsultationStatus, excludeID *uuid.UUID) (bool, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	self := uuid.Nil
	if excludeID != nil {
		self = *excludeID
	}
	slot.Date = model.NormalizeDate(slot.Date)
	return r.slotHeld(slot, statuses, self), nil
}

func (r *consultationRepository) ListByDate(_ context.Context, date time.Time, statuses []model.ConsultationStatus) ([]*model.Consultation, error) {
	day := model.NormalizeDate(date)
	return r.filter(func(c *model.Consultation) bool {
		return c.Date.Equal(day) && hasStatus(statuses, c.Status)
	}), nil
}

func (r *consultationRepository) filter(keep func(*model.Consultation) bool) []*model.Consultation {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	out := make([]*model.Consultation, 0)
	for _, c := range r.db.consultations {
		c := c
		if keep(&c) {
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if !a.Date.Equal(b.Date) {
			return a.Date.Before(b.Date)
		}
		if a.Time != b.Time {
			return a.Time < b.Time
		}
		return lessUUID(a.ID, b.ID)
	})
	return out
}

type documentRepository struct{ db *DB }

func (r *documentRepository) Create(ctx context.Context, d *model.PatientDocument) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	d.Touch(time.Now().UTC())
	r.db.documents[d.ID] = *d
	id := d.ID
	journal(ctx, func() { delete(r.db.documents, id) })
	return nil
}

type notificationRepository struct{ db *DB }

func (r *notificationRepository) Create(ctx context.Context, n *model.Notification) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	if n.ID == uuid.Nil {
		n.ID = uuid.New()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now().UTC()
	}
	r.db.notifications = append(r.db.notifications, *n)
	id := n.ID
	journal(ctx, func() {
		for i := range r.db.notifications {
			if r.db.notifications[i].ID == id {
				r.db.notifications = append(r.db.notifications[:i], r.db.notifications[i+1:]...)
				return
			}
		}
	})
	return nil
}

func (r *notificationRepository) ListByProvider(_ context.Context, providerID uuid.UUID, limit int) ([]*model.Notification, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	out := make([]*model.Notification, 0)
	for i := len(r.db.notifications) - 1; i >= 0; i-- {
		n := r.db.notifications[i]
		if n.ProviderID != providerID {
			continue
		}
		out = append(out, &n)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

type outboxRepository struct{ db *DB }

func (r *outboxRepository) Create(ctx context.Context, event *model.OutboxEvent) error {
	if event == nil {
		return fmt.Errorf("event cannot be nil")
	}
	if event.Payload == nil {
		return fmt.Errorf("event payload cannot be nil")
	}

	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	if event.DedupKey != nil {
		if _, ok := r.db.dedupKeys[*event.DedupKey]; ok {
			return repository.ErrDuplicateEvent
		}
	}

	if event.ID == uuid.Nil {
		event.ID = uuid.New()
	}
	now := time.Now().UTC()
	if event.CreatedAt.IsZero() {
		event.CreatedAt = now
	}
	event.UpdatedAt = now
	event.Status = model.OutboxStatusPending

	stored := *event
	stored.Payload = append([]byte(nil), event.Payload...)
	r.db.outbox[event.ID] = stored
	if event.DedupKey != nil {
		r.db.dedupKeys[*event.DedupKey] = event.ID
	}

	id, key := event.ID, event.DedupKey
	journal(ctx, func() {
		delete(r.db.outbox, id)
		if key != nil {
			delete(r.db.dedupKeys, *key)
		}
	})
	return nil
}

func (r *outboxRepository) GetPendingEventsWithLock(_ context.Context, limit int) ([]*model.OutboxEvent, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	now := time.Now()
	out := make([]*model.OutboxEvent, 0)
	for _, e := range r.db.outbox {
		e := e
		if e.Status != model.OutboxStatusPending && e.Status != model.OutboxStatusRetry {
			continue
		}
		if e.RetryAt != nil && e.RetryAt.After(now) {
			continue
		}
		out = append(out, &e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *outboxRepository) Lease(ctx context.Context, ids []uuid.UUID, until time.Time) error {
	for _, id := range ids {
		err := r.update(ctx, id, func(e *model.OutboxEvent) {
			at := until
			e.RetryAt = &at
		})
		if err != nil {
			return err
		}
	}
	return nil
}

func (r *outboxRepository) MarkProcessed(ctx context.Context, id uuid.UUID) error {
	return r.update(ctx, id, func(e *model.OutboxEvent) {
		now := time.Now().UTC()
		e.Status = model.OutboxStatusProcessed
		e.ErrorMessage = nil
		e.ProcessedAt = &now
	})
}

func (r *outboxRepository) MarkRetry(ctx context.Context, id uuid.UUID, errorMessage string, retryAt time.Time) error {
	return r.update(ctx, id, func(e *model.OutboxEvent) {
		e.Status = model.OutboxStatusRetry
		e.ErrorMessage = &errorMessage
		e.RetryCount++
		e.RetryAt = &retryAt
	})
}

func (r *outboxRepository) MarkFailed(ctx context.Context, id uuid.UUID, errorMessage string) error {
	return r.update(ctx, id, func(e *model.OutboxEvent) {
		e.Status = model.OutboxStatusFailed
		e.ErrorMessage = &errorMessage
	})
}

func (r *outboxRepository) update(ctx context.Context, id uuid.UUID, apply func(*model.OutboxEvent)) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	prev, ok := r.db.outbox[id]
	if !ok {
		return repository.ErrNotFound
	}
	next := prev
	apply(&next)
	next.UpdatedAt = time.Now().UTC()
	r.db.outbox[id] = next
	journal(ctx, func() { r.db.outbox[id] = prev })
	return nil
}

func (r *outboxRepository) DeleteProcessedBefore(ctx context.Context, before time.Time) (int64, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	var n int64
	for id, e := range r.db.outbox {
		if e.Status != model.OutboxStatusProcessed || e.ProcessedAt == nil || !e.ProcessedAt.Before(before) {
			continue
		}
		delete(r.db.outbox, id)
		if e.DedupKey != nil {
			delete(r.db.dedupKeys, *e.DedupKey)
		}
		removed := e
		journal(ctx, func() {
			r.db.outbox[removed.ID] = removed
			if removed.DedupKey != nil {
				r.db.dedupKeys[*removed.DedupKey] = removed.ID
			}
		})
		n++
	}
	return n, nil
}

func hasStatus(statuses []model.ConsultationStatus, s model.ConsultationStatus) bool {
	for _, st := range statuses {
		if st == s {
			return true
		}
	}
	return false
}

func lessUUID(a, b uuid.UUID) bool {
	for i := range a {
		if a[i] != b[i] {
			return a[i] < b[i]
		}
	}
	return false
}
