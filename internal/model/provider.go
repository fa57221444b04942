package model

import (
	"time"
)

// Provider is a clinician who can be matched to consultations. Providers are
// onboarded elsewhere; the booking core only reads them.
type Provider struct {
	Base
	Name              string    `db:"name" json:"name"`
	Email             string    `db:"email" json:"email"`
	Specialization    string    `db:"specialization" json:"specialization"`
	LicenseNumber     string    `db:"license_number" json:"license_number,omitempty"`
	LicenseExpiryDate time.Time `db:"license_expiry_date" json:"license_expiry_date"`
	State             string    `db:"state" json:"state,omitempty"`
}

// LicenseExpiredOn reports whether the license expiry date is strictly
// before the calendar day of today.
func (p *Provider) LicenseExpiredOn(today time.Time) bool {
	return NormalizeDate(p.LicenseExpiryDate).Before(NormalizeDate(today))
}

// CreateProviderRequest is the onboarding payload.
type CreateProviderRequest struct {
	Name              string `json:"name" binding:"required,max=255"`
	Email             string `json:"email" binding:"required,email"`
	Specialization    string `json:"specialization" binding:"required,max=100"`
	LicenseNumber     string `json:"license_number" binding:"max=100"`
	LicenseExpiryDate string `json:"license_expiry_date" binding:"required,calendar_date"`
	State             string `json:"state" binding:"max=100"`
}
