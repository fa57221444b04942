package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/jwalitptl/consult-api/internal/model"
	"github.com/jwalitptl/consult-api/internal/repository"
)

const consultationColumns = `
	id, patient_id, provider_id, date, time,
	status, priority, canceled_at, created_at, updated_at`

type consultationRepository struct {
	BaseRepository
}

func NewConsultationRepository(base BaseRepository) repository.ConsultationRepository {
	return &consultationRepository{base}
}

func (r *consultationRepository) Create(ctx context.Context, c *model.Consultation) error {
	query := `
		INSERT INTO consultations (
			id, patient_id, provider_id, date, time,
			status, priority, canceled_at, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	c.Touch(time.Now().UTC())
	c.Date = model.NormalizeDate(c.Date)

	_, err := r.conn(ctx).ExecContext(ctx, query,
		c.ID,
		c.PatientID,
		c.ProviderID,
		c.Date,
		c.Time,
		c.Status,
		c.Priority,
		c.CanceledAt,
		c.CreatedAt,
		c.UpdatedAt,
	)
	if isUniqueViolation(err, constraintActiveSlot) {
		return repository.ErrSlotTaken
	}
	if err != nil {
		return fmt.Errorf("failed to create consultation: %w", err)
	}
	return nil
}

func (r *consultationRepository) Get(ctx context.Context, id uuid.UUID) (*model.Consultation, error) {
	query := `SELECT ` + consultationColumns + ` FROM consultations WHERE id = $1`
	return r.getOne(ctx, query, id)
}

func (r *consultationRepository) GetForUpdate(ctx context.Context, id uuid.UUID) (*model.Consultation, error) {
	query := `SELECT ` + consultationColumns + ` FROM consultations WHERE id = $1 FOR UPDATE`
	return r.getOne(ctx, query, id)
}

func (r *consultationRepository) getOne(ctx context.Context, query string, id uuid.UUID) (*model.Consultation, error) {
	var c model.Consultation
	if err := sqlx.GetContext(ctx, r.conn(ctx), &c, query, id); err != nil {
		return nil, fmt.Errorf("failed to get consultation: %w", notFound(err))
	}
	c.Date = model.NormalizeDate(c.Date)
	return &c, nil
}

func (r *consultationRepository) Update(ctx context.Context, c *model.Consultation) error {
	query := `
		UPDATE consultations
		SET date = $1, time = $2, status = $3, priority = $4, canceled_at = $5, updated_at = $6
		WHERE id = $7
	`
	c.UpdatedAt = time.Now().UTC()
	c.Date = model.NormalizeDate(c.Date)

	result, err := r.conn(ctx).ExecContext(ctx, query,
		c.Date,
		c.Time,
		c.Status,
		c.Priority,
		c.CanceledAt,
		c.UpdatedAt,
		c.ID,
	)
	if isUniqueViolation(err, constraintActiveSlot) {
		return repository.ErrSlotTaken
	}
	if err != nil {
		return fmt.Errorf("failed to update consultation: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return repository.ErrNotFound
	}
	return nil
}

func (r *consultationRepository) List(ctx context.Context, filters *model.ConsultationFilters) ([]*model.Consultation, error) {
	query := `SELECT ` + consultationColumns + ` FROM consultations WHERE 1 = 1`
	args := []interface{}{}
	argCount := 1

	if filters != nil {
		if filters.ProviderID != nil {
			query += fmt.Sprintf(" AND provider_id = $%d", argCount)
			args = append(args, *filters.ProviderID)
			argCount++
		}
		if filters.PatientID != nil {
			query += fmt.Sprintf(" AND patient_id = $%d", argCount)
			args = append(args, *filters.PatientID)
			argCount++
		}
		if filters.Date != nil {
			query += fmt.Sprintf(" AND date = $%d", argCount)
			args = append(args, model.NormalizeDate(*filters.Date))
			argCount++
		}
		if len(filters.Statuses) > 0 {
			query += fmt.Sprintf(" AND status = ANY($%d)", argCount)
			args = append(args, statusArray(filters.Statuses))
			argCount++
		}
	}

	query += " ORDER BY date ASC, time ASC, id ASC"
	return r.selectConsultations(ctx, "list consultations", query, args...)
}

func (r *consultationRepository) ExistsInSlot(ctx context.Context, slot model.SlotKey, statuses []model.ConsultationStatus, excludeID *uuid.UUID) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1 FROM consultations
			WHERE provider_id = $1
			AND date = $2
			AND time = $3
			AND status = ANY($4)
	`
	args := []interface{}{slot.ProviderID, model.NormalizeDate(slot.Date), slot.Time, statusArray(statuses)}

	if excludeID != nil {
		query += " AND id != $5"
		args = append(args, *excludeID)
	}

	query += ")"

	var exists bool
	if err := sqlx.GetContext(ctx, r.conn(ctx), &exists, query, args...); err != nil {
		return false, fmt.Errorf("failed to check slot: %w", err)
	}
	return exists, nil
}

func (r *consultationRepository) ListByDate(ctx context.Context, date time.Time, statuses []model.ConsultationStatus) ([]*model.Consultation, error) {
	query := `SELECT ` + consultationColumns + `
		FROM consultations
		WHERE date = $1
		AND status = ANY($2)
		ORDER BY time ASC, id ASC`
	return r.selectConsultations(ctx, "list consultations by date", query, model.NormalizeDate(date), statusArray(statuses))
}

func (r *consultationRepository) selectConsultations(ctx context.Context, op, query string, args ...interface{}) ([]*model.Consultation, error) {
	var consultations []*model.Consultation
	if err := sqlx.SelectContext(ctx, r.conn(ctx), &consultations, query, args...); err != nil {
		return nil, fmt.Errorf("failed to %s: %w", op, err)
	}
	for _, c := range consultations {
		c.Date = model.NormalizeDate(c.Date)
	}
	return consultations, nil
}

func statusArray(statuses []model.ConsultationStatus) interface{} {
	out := make([]string, len(statuses))
	for i, s := range statuses {
		out[i] = string(s)
	}
	return pq.Array(out)
}
