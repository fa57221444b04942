package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jwalitptl/consult-api/internal/model"
	"github.com/jwalitptl/consult-api/internal/repository"
)

type documentRepository struct {
	BaseRepository
}

func NewDocumentRepository(base BaseRepository) repository.DocumentRepository {
	return &documentRepository{base}
}

func (r *documentRepository) Create(ctx context.Context, d *model.PatientDocument) error {
	query := `
		INSERT INTO patient_documents (
			id, consultation_id, provider_id, patient_id,
			document_type, document_url, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	d.Touch(time.Now().UTC())

	_, err := r.conn(ctx).ExecContext(ctx, query,
		d.ID,
		d.ConsultationID,
		d.ProviderID,
		d.PatientID,
		d.DocumentType,
		d.DocumentURL,
		d.CreatedAt,
		d.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create patient document: %w", err)
	}
	return nil
}
