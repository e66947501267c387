package repo

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"carewire/pkg/models"
)

// ConsentRepository handles contact and consent data access
type ConsentRepository struct {
	db *gorm.DB
}

// NewConsentRepository creates a new consent repository
func NewConsentRepository(db *gorm.DB) *ConsentRepository {
	return &ConsentRepository{db: db}
}

// FindContactByUser finds the contact record linked to a staff user;
// (nil, nil) when missing.
func (r *ConsentRepository) FindContactByUser(ctx context.Context, userID uuid.UUID) (*models.Contact, error) {
	var contact models.Contact
	err := r.db.WithContext(ctx).Where("user_id = ?", userID).First(&contact).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &contact, nil
}

// FindContactByPhone finds a contact by normalized phone; (nil, nil) when
// missing.
func (r *ConsentRepository) FindContactByPhone(ctx context.Context, phone string) (*models.Contact, error) {
	var contact models.Contact
	err := r.db.WithContext(ctx).Where("phone = ?", phone).First(&contact).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &contact, nil
}

// HasActiveConsent reports whether the contact holds an unrevoked consent
// grant for the patient.
func (r *ConsentRepository) HasActiveConsent(ctx context.Context, contactID, patientID uuid.UUID) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.ConsentRecord{}).
		Where("contact_id = ? AND patient_id = ? AND granted = ? AND revoked_at IS NULL", contactID, patientID, true).
		Count(&count).Error
	return count > 0, err
}
