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

type patientRepository struct {
	BaseRepository
}

func NewPatientRepository(base BaseRepository) repository.PatientRepository {
	return &patientRepository{base}
}

func (r *patientRepository) Create(ctx context.Context, p *model.Patient) error {
	query := `
		INSERT INTO patients (
			id, name, email, reason_for_consultation, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6)
	`
	p.Touch(time.Now().UTC())

	_, err := r.conn(ctx).ExecContext(ctx, query,
		p.ID,
		p.Name,
		p.Email,
		p.ReasonForConsultation,
		p.CreatedAt,
		p.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create patient: %w", err)
	}
	return nil
}

func (r *patientRepository) Get(ctx context.Context, id uuid.UUID) (*model.Patient, error) {
	query := `
		SELECT id, name, email, reason_for_consultation, created_at, updated_at
		FROM patients
		WHERE id = $1
	`
	var p model.Patient
	if err := sqlx.GetContext(ctx, r.conn(ctx), &p, query, id); err != nil {
		return nil, fmt.Errorf("failed to get patient: %w", notFound(err))
	}
	return &p, nil
}
