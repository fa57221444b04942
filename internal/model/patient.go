package model

// Patient is the person requesting a consultation. ReasonForConsultation
// names the specialization they need.
type Patient struct {
	Base
	Name                  string `db:"name" json:"name"`
	Email                 string `db:"email" json:"email"`
	ReasonForConsultation string `db:"reason_for_consultation" json:"reason_for_consultation"`
}

type CreatePatientRequest struct {
	Name                  string `json:"name" binding:"required,max=255"`
	Email                 string `json:"email" binding:"required,email"`
	ReasonForConsultation string `json:"reason_for_consultation" binding:"required,max=100"`
}
