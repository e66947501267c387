package services

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"carewire/pkg/models"
)

// ConsentGate evaluates whether an identity may be added to a conversation
// linked to a patient. Consent is opt-in: no contact record or no granted
// record both mean no. The gate runs before every participant mutation on a
// patient-linked conversation; it is a hard invariant of the directory, not
// a UI convenience.
type ConsentGate struct {
	store ConsentStore
}

// NewConsentGate creates a consent gate over the given store.
func NewConsentGate(store ConsentStore) *ConsentGate {
	return &ConsentGate{store: store}
}

// MayAdd reports whether identity may join conv. Conversations without a
// patient link are unrestricted.
func (g *ConsentGate) MayAdd(ctx context.Context, conv *models.Conversation, identity Identity) (bool, error) {
	if conv.PatientID == nil {
		return true, nil
	}

	contact, err := g.resolveContact(ctx, identity)
	if err != nil {
		return false, err
	}
	if contact == nil {
		log.Debug().
			Str("conversation_id", conv.ID.String()).
			Str("identity", identity.Key()).
			Msg("consent check: no contact record")
		return false, nil
	}

	granted, err := g.store.HasActiveConsent(ctx, contact.ID, *conv.PatientID)
	if err != nil {
		return false, fmt.Errorf("failed to check consent: %w", err)
	}
	if !granted {
		log.Debug().
			Str("conversation_id", conv.ID.String()).
			Str("contact_id", contact.ID.String()).
			Str("patient_id", conv.PatientID.String()).
			Msg("consent check: no granted record")
	}
	return granted, nil
}

func (g *ConsentGate) resolveContact(ctx context.Context, identity Identity) (*models.Contact, error) {
	if identity.UserID != nil {
		contact, err := g.store.FindContactByUser(ctx, *identity.UserID)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve contact by user: %w", err)
		}
		return contact, nil
	}

	contact, err := g.store.FindContactByPhone(ctx, identity.Phone)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve contact by phone: %w", err)
	}
	return contact, nil
}
