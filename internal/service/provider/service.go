package provider

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/jwalitptl/consult-api/internal/model"
	"github.com/jwalitptl/consult-api/internal/repository"
	apperrors "github.com/jwalitptl/consult-api/pkg/errors"
	"github.com/jwalitptl/consult-api/pkg/logger"
)

// CacheInvalidator drops cached directory entries for a specialization.
type CacheInvalidator interface {
	Invalidate(specialization string)
}

type Service struct {
	repo      repository.ProviderRepository
	directory CacheInvalidator
	logger    *logger.Logger
}

func NewService(repo repository.ProviderRepository, directory CacheInvalidator, log *logger.Logger) *Service {
	return &Service{
		repo:      repo,
		directory: directory,
		logger:    log,
	}
}

// Create onboards a provider and makes them matchable immediately.
func (s *Service) Create(ctx context.Context, req *model.CreateProviderRequest) (*model.Provider, error) {
	expiry, err := model.ParseDate(req.LicenseExpiryDate)
	if err != nil {
		return nil, apperrors.BadRequest(err.Error(), err)
	}

	p := &model.Provider{
		Name:              strings.TrimSpace(req.Name),
		Email:             strings.ToLower(strings.TrimSpace(req.Email)),
		Specialization:    strings.TrimSpace(req.Specialization),
		LicenseNumber:     req.LicenseNumber,
		LicenseExpiryDate: expiry,
		State:             req.State,
	}
	if err := s.repo.Create(ctx, p); err != nil {
		if errors.Is(err, repository.ErrAlreadyExists) {
			return nil, apperrors.Conflict(fmt.Sprintf("provider with email %s already exists", p.Email), err)
		}
		return nil, err
	}

	s.directory.Invalidate(p.Specialization)
	s.logger.Info("provider created", "provider_id", p.ID.String(), "specialization", p.Specialization)
	return p, nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*model.Provider, error) {
	p, err := s.repo.Get(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperrors.NotFound("provider", err)
		}
		return nil, err
	}
	return p, nil
}

// List returns providers, optionally restricted to one specialization.
func (s *Service) List(ctx context.Context, specialization string) ([]*model.Provider, error) {
	if specialization != "" {
		return s.repo.ListBySpecialization(ctx, specialization)
	}
	return s.repo.List(ctx)
}
