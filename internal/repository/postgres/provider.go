package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/jwalitptl/consult-api/internal/model"
	"github.com/jwalitptl/consult-api/internal/repository"
)

const providerColumns = `
	id, name, email, specialization,
	COALESCE(license_number, '') AS license_number,
	license_expiry_date,
	COALESCE(state, '') AS state,
	created_at, updated_at`

type providerRepository struct {
	BaseRepository
}

func NewProviderRepository(base BaseRepository) repository.ProviderRepository {
	return &providerRepository{base}
}

func (r *providerRepository) Create(ctx context.Context, p *model.Provider) error {
	query := `
		INSERT INTO providers (
			id, name, email, specialization, license_number,
			license_expiry_date, state, created_at, updated_at
		) VALUES ($1, $2, $3, $4, NULLIF($5, ''), $6, NULLIF($7, ''), $8, $9)
	`
	p.Touch(time.Now().UTC())
	p.LicenseExpiryDate = model.NormalizeDate(p.LicenseExpiryDate)

	_, err := r.conn(ctx).ExecContext(ctx, query,
		p.ID,
		p.Name,
		p.Email,
		p.Specialization,
		p.LicenseNumber,
		p.LicenseExpiryDate,
		p.State,
		p.CreatedAt,
		p.UpdatedAt,
	)
	if isUniqueViolation(err, constraintProviderEmail) {
		return repository.ErrAlreadyExists
	}
	if err != nil {
		return fmt.Errorf("failed to create provider: %w", err)
	}
	return nil
}

func (r *providerRepository) Get(ctx context.Context, id uuid.UUID) (*model.Provider, error) {
	query := `SELECT ` + providerColumns + ` FROM providers WHERE id = $1`

	var p model.Provider
	if err := sqlx.GetContext(ctx, r.conn(ctx), &p, query, id); err != nil {
		return nil, fmt.Errorf("failed to get provider: %w", notFound(err))
	}
	normalizeProvider(&p)
	return &p, nil
}

func (r *providerRepository) List(ctx context.Context) ([]*model.Provider, error) {
	query := `SELECT ` + providerColumns + ` FROM providers ORDER BY id ASC`
	return r.selectProviders(ctx, "list providers", query)
}

func (r *providerRepository) ListBySpecialization(ctx context.Context, specialization string) ([]*model.Provider, error) {
	query := `SELECT ` + providerColumns + `
		FROM providers
		WHERE specialization = $1
		ORDER BY id ASC`
	return r.selectProviders(ctx, "list providers by specialization", query, specialization)
}

func (r *providerRepository) ListLicenseExpiredBefore(ctx context.Context, date time.Time) ([]*model.Provider, error) {
	query := `SELECT ` + providerColumns + `
		FROM providers
		WHERE license_expiry_date < $1
		ORDER BY id ASC`
	return r.selectProviders(ctx, "list expired providers", query, model.NormalizeDate(date))
}

func (r *providerRepository) selectProviders(ctx context.Context, op, query string, args ...interface{}) ([]*model.Provider, error) {
	var providers []*model.Provider
	if err := sqlx.SelectContext(ctx, r.conn(ctx), &providers, query, args...); err != nil {
		return nil, fmt.Errorf("failed to %s: %w", op, err)
	}
	for _, p := range providers {
		normalizeProvider(p)
	}
	return providers, nil
}

func normalizeProvider(p *model.Provider) {
	p.LicenseExpiryDate = model.NormalizeDate(p.LicenseExpiryDate)
}
