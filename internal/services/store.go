package services

import (
	"context"
	"time"

	"carewire/pkg/models"

	"github.com/google/uuid"
)

// NumberStore persists the virtual number pool. Implementations must back
// Number and AssignedUserID with unique constraints and surface violations
// as ErrNumberTaken; the constraint, not any in-memory state, is the arbiter
// of allocation races. Find methods return (nil, nil) when nothing matches.
type NumberStore interface {
	Create(ctx context.Context, vn *models.VirtualNumber) error
	FindByAssignedUser(ctx context.Context, userID uuid.UUID) (*models.VirtualNumber, error)
	FindByNumber(ctx context.Context, number string) (*models.VirtualNumber, error)
	// ClaimFree atomically assigns one unassigned pooled number to userID.
	// Returns (nil, nil) when the pool has no free numbers.
	ClaimFree(ctx context.Context, userID uuid.UUID, at time.Time) (*models.VirtualNumber, error)
	// Release clears the user's assignment, returning the freed number.
	// Returns (nil, nil) when the user holds no number.
	Release(ctx context.Context, userID uuid.UUID) (*models.VirtualNumber, error)
	// DeleteFree removes an unassigned number from the pool.
	DeleteFree(ctx context.Context, number string) error
	ListNumbers(ctx context.Context) ([]string, error)
	ListAvailable(ctx context.Context) ([]models.VirtualNumber, error)
	ListAssigned(ctx context.Context) ([]models.VirtualNumber, error)
}

// ConsentStore resolves contacts and consent grants for the gate. Find
// methods return (nil, nil) when nothing matches.
type ConsentStore interface {
	FindContactByUser(ctx context.Context, userID uuid.UUID) (*models.Contact, error)
	FindContactByPhone(ctx context.Context, phone string) (*models.Contact, error)
	// HasActiveConsent reports whether an unrevoked granted record links the
	// contact to the patient.
	HasActiveConsent(ctx context.Context, contactID, patientID uuid.UUID) (bool, error)
}

// DirectoryStore owns conversation and participant persistence. Each mutating
// method is a single transactional boundary: either the whole mutation lands
// or none of it does.
type DirectoryStore interface {
	// CreateConversationWithParticipants persists a conversation and its
	// initial participant set atomically.
	CreateConversationWithParticipants(ctx context.Context, conv *models.Conversation, participants []models.Participant) error
	GetConversation(ctx context.Context, id uuid.UUID) (*models.Conversation, error)
	DeactivateConversation(ctx context.Context, id uuid.UUID) error
	CreateParticipant(ctx context.Context, p *models.Participant) error
	// FindActiveParticipant matches on the identity key (user id for virtual
	// participants, phone for sms participants). Returns (nil, nil) when no
	// active participant matches.
	FindActiveParticipant(ctx context.Context, conversationID uuid.UUID, identity Identity) (*models.Participant, error)
	// ListActiveParticipants returns active participants ordered by join time.
	ListActiveParticipants(ctx context.Context, conversationID uuid.UUID) ([]models.Participant, error)
	// MarkParticipantLeft soft-removes the matching active participant.
	// Returns false when none matched.
	MarkParticipantLeft(ctx context.Context, conversationID uuid.UUID, identity Identity, at time.Time) (bool, error)
	UpdateParticipantRouting(ctx context.Context, participantID uuid.UUID, routingNumber string) error
	GetUser(ctx context.Context, id uuid.UUID) (*models.User, error)
}

// MessageStore owns message and per-recipient delivery persistence for the
// fan-out engine.
type MessageStore interface {
	// CreateMessageWithDeliveries persists the message and its pending
	// delivery rows atomically, before any gateway call is made.
	CreateMessageWithDeliveries(ctx context.Context, msg *models.Message, deliveries []models.MessageDelivery) error
	UpdateDelivery(ctx context.Context, delivery *models.MessageDelivery) error
	// FinalizeMessage sets the aggregate status and bumps the conversation's
	// last-activity timestamp in one transaction.
	FinalizeMessage(ctx context.Context, messageID, conversationID uuid.UUID, status string, at time.Time) error
}
