package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"carewire/pkg/models"
	"carewire/pkg/phone"
)

// ParticipantDirectory owns conversation membership: it creates the three
// conversation kinds, adds and soft-removes participants, and enforces the
// consent gate and virtual-number assignment on every mutation.
type ParticipantDirectory struct {
	store      DirectoryStore
	allocator  *NumberAllocator
	gate       *ConsentGate
	normalizer *phone.Normalizer
}

// ExcludedMember describes a requested group member that was skipped because
// the consent gate rejected it. Callers surface these to the user instead of
// silently shrinking the group.
type ExcludedMember struct {
	Identity    string `json:"identity"`
	DisplayName string `json:"display_name,omitempty"`
	Reason      string `json:"reason"`
}

// NewParticipantDirectory creates a directory.
func NewParticipantDirectory(store DirectoryStore, allocator *NumberAllocator, gate *ConsentGate, normalizer *phone.Normalizer) *ParticipantDirectory {
	return &ParticipantDirectory{
		store:      store,
		allocator:  allocator,
		gate:       gate,
		normalizer: normalizer,
	}
}

// CreateDirect creates a two-user conversation. Both users are internal and
// get virtual numbers assigned if they lack one.
func (d *ParticipantDirectory) CreateDirect(ctx context.Context, creatorID, otherID uuid.UUID) (*models.Conversation, error) {
	conv := &models.Conversation{
		Kind:        models.ConversationKindDirect,
		CreatedByID: creatorID,
		IsActive:    true,
	}

	now := time.Now()
	creator, err := d.buildParticipant(ctx, Identity{UserID: &creatorID}, models.ParticipantRoleAdmin, now)
	if err != nil {
		return nil, err
	}
	other, err := d.buildParticipant(ctx, Identity{UserID: &otherID}, models.ParticipantRoleMember, now)
	if err != nil {
		return nil, err
	}

	if err := d.store.CreateConversationWithParticipants(ctx, conv, []models.Participant{*creator, *other}); err != nil {
		return nil, fmt.Errorf("failed to create direct conversation: %w", err)
	}

	log.Info().Str("conversation_id", conv.ID.String()).Msg("direct conversation created")
	return conv, nil
}

// CreateSMS creates a conversation between an internal user and one external
// contact reachable via SMS.
func (d *ParticipantDirectory) CreateSMS(ctx context.Context, creatorID uuid.UUID, externalNumber, displayName string) (*models.Conversation, error) {
	conv := &models.Conversation{
		Kind:        models.ConversationKindSMS,
		CreatedByID: creatorID,
		IsActive:    true,
	}

	now := time.Now()
	creator, err := d.buildParticipant(ctx, Identity{UserID: &creatorID}, models.ParticipantRoleAdmin, now)
	if err != nil {
		return nil, err
	}
	external, err := d.buildParticipant(ctx, Identity{Phone: externalNumber, DisplayName: displayName}, models.ParticipantRoleMember, now)
	if err != nil {
		return nil, err
	}

	if conv.Name == "" {
		conv.Name = external.DisplayName
	}

	if err := d.store.CreateConversationWithParticipants(ctx, conv, []models.Participant{*creator, *external}); err != nil {
		return nil, fmt.Errorf("failed to create sms conversation: %w", err)
	}

	log.Info().Str("conversation_id", conv.ID.String()).Str("external", external.RoutingNumber).Msg("sms conversation created")
	return conv, nil
}

// CreateGroup creates a group conversation, optionally linked to a patient.
// When a patient is linked, every non-creator member runs through the consent
// gate; rejected members are excluded from the group and reported back, never
// silently added.
func (d *ParticipantDirectory) CreateGroup(ctx context.Context, creatorID uuid.UUID, name string, patientID *uuid.UUID, members []Identity) (*models.Conversation, []ExcludedMember, error) {
	conv := &models.Conversation{
		Kind:        models.ConversationKindGroup,
		Name:        name,
		PatientID:   patientID,
		CreatedByID: creatorID,
		IsActive:    true,
	}

	now := time.Now()
	creator, err := d.buildParticipant(ctx, Identity{UserID: &creatorID}, models.ParticipantRoleAdmin, now)
	if err != nil {
		return nil, nil, err
	}

	participants := []models.Participant{*creator}
	seen := map[string]bool{creator.IdentityKey(): true}
	var excluded []ExcludedMember

	for _, member := range members {
		identity, err := d.canonicalize(member)
		if err != nil {
			return nil, nil, err
		}
		if seen[identity.Key()] {
			continue
		}
		seen[identity.Key()] = true

		allowed, err := d.gate.MayAdd(ctx, conv, identity)
		if err != nil {
			return nil, nil, err
		}
		if !allowed {
			excluded = append(excluded, ExcludedMember{
				Identity:    identity.Key(),
				DisplayName: identity.DisplayName,
				Reason:      "consent_denied",
			})
			continue
		}

		p, err := d.buildParticipant(ctx, identity, models.ParticipantRoleMember, now)
		if err != nil {
			return nil, nil, err
		}
		participants = append(participants, *p)
	}

	if err := d.store.CreateConversationWithParticipants(ctx, conv, participants); err != nil {
		return nil, nil, fmt.Errorf("failed to create group conversation: %w", err)
	}

	log.Info().
		Str("conversation_id", conv.ID.String()).
		Int("participants", len(participants)).
		Int("excluded", len(excluded)).
		Msg("group conversation created")
	return conv, excluded, nil
}

// AddParticipant adds an identity to an existing conversation. Fails with
// ErrConsentDenied when the gate rejects and ErrDuplicateParticipant when an
// active participant with the same identity key already exists.
func (d *ParticipantDirectory) AddParticipant(ctx context.Context, conversationID uuid.UUID, member Identity) (*models.Participant, error) {
	conv, err := d.requireActiveConversation(ctx, conversationID)
	if err != nil {
		return nil, err
	}

	identity, err := d.canonicalize(member)
	if err != nil {
		return nil, err
	}

	allowed, err := d.gate.MayAdd(ctx, conv, identity)
	if err != nil {
		return nil, err
	}
	if !allowed {
		return nil, fmt.Errorf("%w: %s", ErrConsentDenied, identity.Key())
	}

	existing, err := d.store.FindActiveParticipant(ctx, conversationID, identity)
	if err != nil {
		return nil, fmt.Errorf("failed to check membership: %w", err)
	}
	if existing != nil {
		return nil, fmt.Errorf("%w: %s", ErrDuplicateParticipant, identity.Key())
	}

	p, err := d.buildParticipant(ctx, identity, models.ParticipantRoleMember, time.Now())
	if err != nil {
		return nil, err
	}
	p.ConversationID = conversationID

	if err := d.store.CreateParticipant(ctx, p); err != nil {
		return nil, fmt.Errorf("failed to add participant: %w", err)
	}

	log.Info().Str("conversation_id", conversationID.String()).Str("identity", identity.Key()).Msg("participant added")
	return p, nil
}

// RemoveParticipant soft-removes the active participant matching identityKey
// (a user id or a phone number). The row is kept with a left timestamp;
// re-adding the same identity later creates a new row.
func (d *ParticipantDirectory) RemoveParticipant(ctx context.Context, conversationID uuid.UUID, identityKey string) error {
	if _, err := d.requireActiveConversation(ctx, conversationID); err != nil {
		return err
	}

	identity, err := d.parseIdentityKey(identityKey)
	if err != nil {
		return err
	}

	removed, err := d.store.MarkParticipantLeft(ctx, conversationID, identity, time.Now())
	if err != nil {
		return fmt.Errorf("failed to remove participant: %w", err)
	}
	if !removed {
		return fmt.Errorf("%w: %s", ErrParticipantNotFound, identityKey)
	}

	log.Info().Str("conversation_id", conversationID.String()).Str("identity", identity.Key()).Msg("participant removed")
	return nil
}

// ListActive returns the active participants ordered by join time, the
// stable ordering fan-out and rendering rely on.
func (d *ParticipantDirectory) ListActive(ctx context.Context, conversationID uuid.UUID) ([]models.Participant, error) {
	if _, err := d.requireConversation(ctx, conversationID); err != nil {
		return nil, err
	}
	return d.store.ListActiveParticipants(ctx, conversationID)
}

// Deactivate takes the conversation out of routing. Conversations are never
// hard-deleted.
func (d *ParticipantDirectory) Deactivate(ctx context.Context, conversationID uuid.UUID) error {
	if _, err := d.requireConversation(ctx, conversationID); err != nil {
		return err
	}
	return d.store.DeactivateConversation(ctx, conversationID)
}

// Get returns a conversation by id.
func (d *ParticipantDirectory) Get(ctx context.Context, conversationID uuid.UUID) (*models.Conversation, error) {
	return d.requireConversation(ctx, conversationID)
}

func (d *ParticipantDirectory) requireConversation(ctx context.Context, id uuid.UUID) (*models.Conversation, error) {
	conv, err := d.store.GetConversation(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load conversation: %w", err)
	}
	if conv == nil {
		return nil, fmt.Errorf("%w: %s", ErrConversationNotFound, id)
	}
	return conv, nil
}

func (d *ParticipantDirectory) requireActiveConversation(ctx context.Context, id uuid.UUID) (*models.Conversation, error) {
	conv, err := d.requireConversation(ctx, id)
	if err != nil {
		return nil, err
	}
	if !conv.IsActive {
		return nil, fmt.Errorf("%w: %s", ErrConversationInactive, id)
	}
	return conv, nil
}

// canonicalize normalizes the phone of an sms identity; virtual identities
// pass through unchanged.
func (d *ParticipantDirectory) canonicalize(identity Identity) (Identity, error) {
	if identity.UserID != nil {
		return identity, nil
	}
	normalized, err := d.normalizer.Normalize(identity.Phone)
	if err != nil {
		return Identity{}, err
	}
	identity.Phone = normalized
	return identity, nil
}

func (d *ParticipantDirectory) parseIdentityKey(key string) (Identity, error) {
	if userID, err := uuid.Parse(key); err == nil {
		return Identity{UserID: &userID}, nil
	}
	normalized, err := d.normalizer.Normalize(key)
	if err != nil {
		return Identity{}, err
	}
	return Identity{Phone: normalized}, nil
}

// buildParticipant resolves the routing number for an identity: virtual
// members go through the allocator, sms members use their real number.
func (d *ParticipantDirectory) buildParticipant(ctx context.Context, identity Identity, role string, joinedAt time.Time) (*models.Participant, error) {
	identity, err := d.canonicalize(identity)
	if err != nil {
		return nil, err
	}

	p := &models.Participant{
		Kind:        identity.Kind(),
		DisplayName: identity.DisplayName,
		Role:        role,
		IsActive:    true,
		JoinedAt:    joinedAt,
	}

	if identity.UserID != nil {
		user, err := d.store.GetUser(ctx, *identity.UserID)
		if err != nil {
			return nil, fmt.Errorf("failed to load user: %w", err)
		}
		if user == nil {
			return nil, fmt.Errorf("%w: user %s", ErrParticipantNotFound, identity.UserID)
		}

		number, err := d.allocator.Assign(ctx, *identity.UserID)
		if err != nil {
			return nil, err
		}

		p.UserID = identity.UserID
		p.RoutingNumber = number
		if p.DisplayName == "" {
			p.DisplayName = user.Name
		}
		return p, nil
	}

	p.Phone = identity.Phone
	p.RoutingNumber = identity.Phone
	if p.DisplayName == "" {
		p.DisplayName = identity.Phone
	}
	return p, nil
}
