package scanner

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"

	"github.com/jwalitptl/consult-api/internal/model"
	"github.com/jwalitptl/consult-api/internal/repository"
	"github.com/jwalitptl/consult-api/internal/service/event"
	"github.com/jwalitptl/consult-api/pkg/logger"
	"github.com/jwalitptl/consult-api/pkg/metrics"
)

const (
	ScanReminders = "reminders"
	ScanLicenses  = "licenses"
)

// Result summarizes one scan. Err aggregates the per-item failures; items
// after a failure are still processed.
type Result struct {
	Scan       string `json:"scan"`
	Date       string `json:"date"`
	Matched    int    `json:"matched"`
	Emitted    int    `json:"emitted"`
	Duplicates int    `json:"duplicates"`
	Failed     int    `json:"failed"`
	Err        error  `json:"-"`
}

type Service struct {
	consultations repository.ConsultationRepository
	providers     repository.ProviderRepository
	emitter       event.Emitter
	metrics       *metrics.Metrics
	logger        *logger.Logger
	location      *time.Location
}

// NewService returns a scanner that resolves "today" in loc. A nil loc
// means UTC.
func NewService(store *repository.Store, emitter event.Emitter, loc *time.Location, m *metrics.Metrics, log *logger.Logger) *Service {
	if loc == nil {
		loc = time.UTC
	}
	return &Service{
		consultations: store.Consultations,
		providers:     store.Providers,
		emitter:       emitter,
		metrics:       m,
		logger:        log,
		location:      loc,
	}
}

// Reminders emits a reminder for every active consultation on the day after
// now.
func (s *Service) Reminders(ctx context.Context, now time.Time) (*Result, error) {
	tomorrow := model.NextDay(now.In(s.location))
	res := &Result{Scan: ScanReminders, Date: model.FormatDate(tomorrow)}

	consultations, err := s.consultations.ListByDate(ctx, tomorrow, model.ActiveStatuses)
	if err != nil {
		return nil, fmt.Errorf("failed to list consultations for %s: %w", res.Date, err)
	}
	res.Matched = len(consultations)

	for _, c := range consultations {
		evt := model.NewConsultationEvent(model.EventKindReminder, c,
			fmt.Sprintf("Reminder: Your upcoming consultation is on %s at %s.", c.DateString(), c.Time),
			now.UTC(),
		)
		evt.DedupKey = fmt.Sprintf("reminder:%s:%s", c.ID, c.DateString())
		s.emit(ctx, res, evt)
	}

	s.logger.Info("reminder scan finished",
		"date", res.Date,
		"matched", res.Matched,
		"emitted", res.Emitted,
		"duplicates", res.Duplicates,
		"failed", res.Failed,
	)
	return res, nil
}

// LicenseExpiry emits a notice for every provider whose license expired
// before today.
func (s *Service) LicenseExpiry(ctx context.Context, now time.Time) (*Result, error) {
	today := model.NormalizeDate(now.In(s.location))
	res := &Result{Scan: ScanLicenses, Date: model.FormatDate(today)}

	providers, err := s.providers.ListLicenseExpiredBefore(ctx, today)
	if err != nil {
		return nil, fmt.Errorf("failed to list expired licenses: %w", err)
	}
	res.Matched = len(providers)

	for _, p := range providers {
		expired := model.FormatDate(p.LicenseExpiryDate)
		evt := &model.DomainEvent{
			ID:         uuid.New(),
			Kind:       model.EventKindLicenseExpired,
			ProviderID: p.ID,
			Message: fmt.Sprintf("Your medical license (License No: %s) expired on %s. Please renew it immediately.",
				p.LicenseNumber, expired),
			Context: map[string]string{
				"license_number": p.LicenseNumber,
				"expired_on":     expired,
			},
			OccurredAt: now.UTC(),
			DedupKey:   fmt.Sprintf("license_expired:%s:%s", p.ID, res.Date),
		}
		s.emit(ctx, res, evt)
	}

	s.logger.Info("license expiry scan finished",
		"date", res.Date,
		"matched", res.Matched,
		"emitted", res.Emitted,
		"duplicates", res.Duplicates,
		"failed", res.Failed,
	)
	return res, nil
}

func (s *Service) emit(ctx context.Context, res *Result, evt *model.DomainEvent) {
	err := s.emitter.Emit(ctx, evt)
	switch {
	case err == nil:
		res.Emitted++
		s.metrics.ScanItem(res.Scan, "emitted")
	case errors.Is(err, repository.ErrDuplicateEvent):
		res.Duplicates++
		s.metrics.ScanItem(res.Scan, "duplicate")
	default:
		res.Failed++
		res.Err = multierr.Append(res.Err, fmt.Errorf("%s: %w", evt.DedupKey, err))
		s.metrics.ScanItem(res.Scan, "failed")
		s.logger.Error(err, "failed to emit scan event", "scan", res.Scan, "dedup_key", evt.DedupKey)
	}
}
