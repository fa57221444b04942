package matcher

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/consult-api/internal/model"
	"github.com/jwalitptl/consult-api/internal/repository"
	apperrors "github.com/jwalitptl/consult-api/pkg/errors"
	"github.com/jwalitptl/consult-api/pkg/logger"
	"github.com/jwalitptl/consult-api/pkg/metrics"
	"github.com/jwalitptl/consult-api/pkg/slotlock"
)

type Directory interface {
	EligibleProviders(ctx context.Context, specialization string) ([]*model.Provider, error)
}

type ConflictChecker interface {
	HasConflict(ctx context.Context, providerID uuid.UUID, date time.Time, clock string, excludeID *uuid.UUID) (bool, error)
}

// CreateFunc persists a consultation for the chosen provider. It runs while
// the provider's slot lock is held.
type CreateFunc func(ctx context.Context, provider *model.Provider) error

// Matcher picks the first eligible provider whose slot is free.
type Matcher struct {
	directory Directory
	slots     ConflictChecker
	locker    slotlock.Locker
	metrics   *metrics.Metrics
	logger    *logger.Logger
}

func New(directory Directory, slots ConflictChecker, locker slotlock.Locker, m *metrics.Metrics, log *logger.Logger) *Matcher {
	return &Matcher{
		directory: directory,
		slots:     slots,
		locker:    locker,
		metrics:   m,
		logger:    log,
	}
}

// Assign returns the first provider, in directory order, with no active
// consultation at (date, clock). It reserves nothing.
func (m *Matcher) Assign(ctx context.Context, specialization string, date time.Time, clock string) (*model.Provider, error) {
	providers, err := m.candidates(ctx, specialization)
	if err != nil {
		return nil, err
	}

	for _, p := range providers {
		held, err := m.slots.HasConflict(ctx, p.ID, date, clock, nil)
		if err != nil {
			return nil, err
		}
		if !held {
			return p, nil
		}
	}
	return nil, apperrors.AllBusy(specialization)
}

// Reserve walks the same order as Assign but checks and creates under each
// candidate's slot lock. Losing a race on one slot moves on to the next
// candidate.
func (m *Matcher) Reserve(ctx context.Context, specialization string, date time.Time, clock string, create CreateFunc) (*model.Provider, error) {
	providers, err := m.candidates(ctx, specialization)
	if err != nil {
		return nil, err
	}

	for _, p := range providers {
		ok, err := m.tryReserve(ctx, p, date, clock, create)
		if err != nil {
			return nil, err
		}
		if ok {
			return p, nil
		}
	}
	return nil, apperrors.AllBusy(specialization)
}

func (m *Matcher) tryReserve(ctx context.Context, p *model.Provider, date time.Time, clock string, create CreateFunc) (bool, error) {
	key := model.NewSlotKey(p.ID, date, clock)

	start := time.Now()
	lock, err := m.locker.Acquire(ctx, key.String())
	m.metrics.LockWait(time.Since(start))
	if errors.Is(err, slotlock.ErrTimeout) {
		m.logger.Warn("slot lock wait exceeded, trying next provider", "slot", key.String())
		return false, nil
	}
	if err != nil {
		return false, apperrors.DependencyFailure("slot lock", err)
	}
	defer func() {
		if err := lock.Release(context.WithoutCancel(ctx)); err != nil {
			m.logger.Warn("failed to release slot lock", "slot", key.String(), "error", err.Error())
		}
	}()

	held, err := m.slots.HasConflict(ctx, p.ID, date, clock, nil)
	if err != nil {
		return false, err
	}
	if held {
		return false, nil
	}

	err = create(ctx, p)
	if errors.Is(err, repository.ErrSlotTaken) {
		m.logger.Info("slot taken concurrently, trying next provider", "slot", key.String())
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (m *Matcher) candidates(ctx context.Context, specialization string) ([]*model.Provider, error) {
	providers, err := m.directory.EligibleProviders(ctx, specialization)
	if apperrors.Is(err, apperrors.ErrNotFound) {
		return nil, apperrors.NoProviders(specialization)
	}
	if err != nil {
		return nil, err
	}
	return providers, nil
}
