package services

import (
	"github.com/google/uuid"

	"carewire/pkg/models"
)

// Identity addresses a conversation member by its stable key: UserID for
// internal users, Phone (E.164) for external contacts. Exactly one of the
// two must be set.
type Identity struct {
	UserID      *uuid.UUID
	Phone       string
	DisplayName string
}

// Kind returns the participant kind this identity maps to.
func (i Identity) Kind() string {
	if i.UserID != nil {
		return models.ParticipantKindVirtual
	}
	return models.ParticipantKindSMS
}

// Key returns the stable identity key used for duplicate detection and
// removal lookups.
func (i Identity) Key() string {
	if i.UserID != nil {
		return i.UserID.String()
	}
	return i.Phone
}
