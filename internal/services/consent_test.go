package services

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"carewire/pkg/models"
)

func TestMayAddWithoutPatientLink(t *testing.T) {
	gate := NewConsentGate(&fakeConsentStore{})

	conv := &models.Conversation{Kind: models.ConversationKindGroup}
	allowed, err := gate.MayAdd(context.Background(), conv, Identity{Phone: "+15550001111"})
	require.NoError(t, err)
	assert.True(t, allowed, "conversations without a patient link are unrestricted")
}

func TestMayAddNoContactRecord(t *testing.T) {
	gate := NewConsentGate(&fakeConsentStore{})
	patientID := uuid.New()

	conv := &models.Conversation{Kind: models.ConversationKindGroup, PatientID: &patientID}
	allowed, err := gate.MayAdd(context.Background(), conv, Identity{Phone: "+15550001111"})
	require.NoError(t, err)
	assert.False(t, allowed, "unknown identities have no consent")
}

func TestMayAddGrantedConsent(t *testing.T) {
	store := &fakeConsentStore{}
	patientID := uuid.New()
	contact := store.addContact("Dana", "+15550001111", nil)
	store.grant(contact.ID, patientID)

	gate := NewConsentGate(store)
	conv := &models.Conversation{Kind: models.ConversationKindGroup, PatientID: &patientID}

	allowed, err := gate.MayAdd(context.Background(), conv, Identity{Phone: "+15550001111"})
	require.NoError(t, err)
	assert.True(t, allowed)
}

func TestMayAddConsentForDifferentPatient(t *testing.T) {
	store := &fakeConsentStore{}
	patientID := uuid.New()
	contact := store.addContact("Dana", "+15550001111", nil)
	store.grant(contact.ID, uuid.New())

	gate := NewConsentGate(store)
	conv := &models.Conversation{Kind: models.ConversationKindGroup, PatientID: &patientID}

	allowed, err := gate.MayAdd(context.Background(), conv, Identity{Phone: "+15550001111"})
	require.NoError(t, err)
	assert.False(t, allowed, "consent is scoped per patient")
}

func TestMayAddRevokedConsent(t *testing.T) {
	store := &fakeConsentStore{}
	patientID := uuid.New()
	contact := store.addContact("Dana", "+15550001111", nil)
	rec := store.grant(contact.ID, patientID)
	now := time.Now()
	rec.RevokedAt = &now

	gate := NewConsentGate(store)
	conv := &models.Conversation{Kind: models.ConversationKindGroup, PatientID: &patientID}

	allowed, err := gate.MayAdd(context.Background(), conv, Identity{Phone: "+15550001111"})
	require.NoError(t, err)
	assert.False(t, allowed, "a revoked grant no longer authorizes")
}

func TestMayAddResolvesContactByUser(t *testing.T) {
	store := &fakeConsentStore{}
	patientID := uuid.New()
	userID := uuid.New()
	contact := store.addContact("Robin", "+15550002222", &userID)
	store.grant(contact.ID, patientID)

	gate := NewConsentGate(store)
	conv := &models.Conversation{Kind: models.ConversationKindGroup, PatientID: &patientID}

	allowed, err := gate.MayAdd(context.Background(), conv, Identity{UserID: &userID})
	require.NoError(t, err)
	assert.True(t, allowed, "staff identities resolve through their linked contact")
}
