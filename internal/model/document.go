package model

import (
	"github.com/google/uuid"
)

// PatientDocument records a file the upload subsystem stored for a
// consultation. Only the metadata lives here.
type PatientDocument struct {
	Base
	ConsultationID uuid.UUID `db:"consultation_id" json:"consultation_id"`
	ProviderID     uuid.UUID `db:"provider_id" json:"provider_id"`
	PatientID      uuid.UUID `db:"patient_id" json:"patient_id"`
	DocumentType   string    `db:"document_type" json:"document_type"`
	DocumentURL    string    `db:"document_url" json:"document_url"`
}

type AttachDocumentRequest struct {
	DocumentType string `json:"document_type" binding:"required,max=100"`
	DocumentURL  string `json:"document_url" binding:"required,url"`
}
