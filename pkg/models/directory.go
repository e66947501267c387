package models

import (
	"time"

	"github.com/google/uuid"
)

// User represents an internal application user. Authentication and profile
// management are owned by the external identity service; this table mirrors
// the fields the messaging core needs.
type User struct {
	BaseModel
	Email    string `gorm:"unique;not null" json:"email" validate:"required,email"`
	Name     string `gorm:"not null" json:"name" validate:"required"`
	IsActive bool   `gorm:"default:true" json:"is_active"`
}

// Contact represents an external person reachable by their real phone number.
// A contact may optionally be linked to an internal user account.
type Contact struct {
	BaseModel
	Name   string     `gorm:"not null" json:"name" validate:"required"`
	Phone  string     `gorm:"size:20;not null;index" json:"phone" validate:"required"` // E.164
	UserID *uuid.UUID `gorm:"type:uuid;index;constraint:OnDelete:SET NULL" json:"user_id,omitempty"`

	// Relations
	User *User `gorm:"foreignKey:UserID" json:"user,omitempty"`
}

// Patient represents a protected subject that conversations can be linked to
type Patient struct {
	BaseModel
	Name     string `gorm:"not null" json:"name" validate:"required"`
	Phone    string `gorm:"size:20" json:"phone"`
	IsActive bool   `gorm:"default:true" json:"is_active"`
}

// ConsentRecord ties a contact to a patient with an explicit grant. Consent
// is opt-in: the absence of a record means no consent.
type ConsentRecord struct {
	BaseModel
	ContactID uuid.UUID  `gorm:"type:uuid;not null;index:idx_consent_contact_patient;constraint:OnDelete:RESTRICT" json:"contact_id"`
	PatientID uuid.UUID  `gorm:"type:uuid;not null;index:idx_consent_contact_patient;constraint:OnDelete:RESTRICT" json:"patient_id"`
	Granted   bool       `gorm:"default:false" json:"granted"`
	GrantedAt *time.Time `json:"granted_at"`
	RevokedAt *time.Time `json:"revoked_at"`

	// Relations
	Contact *Contact `gorm:"foreignKey:ContactID" json:"contact,omitempty"`
	Patient *Patient `gorm:"foreignKey:PatientID" json:"patient,omitempty"`
}
