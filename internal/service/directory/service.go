package directory

import (
	"context"
	"fmt"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/jwalitptl/consult-api/internal/model"
	"github.com/jwalitptl/consult-api/internal/repository"
	apperrors "github.com/jwalitptl/consult-api/pkg/errors"
	"github.com/jwalitptl/consult-api/pkg/metrics"
)

// Service answers which providers may take new consultations for a
// specialization.
type Service struct {
	repo     repository.ProviderRepository
	cache    *cache.Cache
	metrics  *metrics.Metrics
	now      func() time.Time
	location *time.Location
}

type Option func(*Service)

// WithCache keeps each specialization's provider list for ttl. Zero
// disables caching.
func WithCache(ttl time.Duration) Option {
	return func(s *Service) {
		if ttl > 0 {
			s.cache = cache.New(ttl, 2*ttl)
		}
	}
}

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithLocation sets the timezone whose calendar day counts as today.
func WithLocation(loc *time.Location) Option {
	return func(s *Service) { s.location = loc }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

func NewService(repo repository.ProviderRepository, opts ...Option) *Service {
	s := &Service{
		repo:     repo,
		now:      time.Now,
		location: time.UTC,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// EligibleProviders returns every provider with the specialization whose
// license has not expired, ordered by ID ascending. The order is stable
// across calls so first-fit matching is deterministic.
func (s *Service) EligibleProviders(ctx context.Context, specialization string) ([]*model.Provider, error) {
	providers, err := s.bySpecialization(ctx, specialization)
	if err != nil {
		return nil, err
	}

	today := model.NormalizeDate(s.now().In(s.location))
	eligible := make([]*model.Provider, 0, len(providers))
	for _, p := range providers {
		if !p.LicenseExpiredOn(today) {
			eligible = append(eligible, p)
		}
	}

	if len(eligible) == 0 {
		return nil, apperrors.NotFound(fmt.Sprintf("eligible %s provider", specialization), nil)
	}
	return eligible, nil
}

// Invalidate drops the cached list for a specialization after a provider
// joins or changes.
func (s *Service) Invalidate(specialization string) {
	if s.cache != nil {
		s.cache.Delete(specialization)
	}
}

func (s *Service) bySpecialization(ctx context.Context, specialization string) ([]*model.Provider, error) {
	if s.cache != nil {
		if cached, found := s.cache.Get(specialization); found {
			s.metrics.DirectoryLookup("hit")
			return cached.([]*model.Provider), nil
		}
	}
	s.metrics.DirectoryLookup("miss")

	providers, err := s.repo.ListBySpecialization(ctx, specialization)
	if err != nil {
		return nil, fmt.Errorf("failed to list providers: %w", err)
	}

	if s.cache != nil {
		s.cache.Set(specialization, providers, cache.DefaultExpiration)
	}
	return providers, nil
}
