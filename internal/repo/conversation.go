package repo

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"carewire/internal/services"
	"carewire/pkg/models"
)

// ConversationRepository handles conversation and participant data access
type ConversationRepository struct {
	db *gorm.DB
}

// NewConversationRepository creates a new conversation repository
func NewConversationRepository(db *gorm.DB) *ConversationRepository {
	return &ConversationRepository{db: db}
}

// CreateConversationWithParticipants creates a conversation and its initial
// participants in a single transaction.
func (r *ConversationRepository) CreateConversationWithParticipants(ctx context.Context, conv *models.Conversation, participants []models.Participant) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(conv).Error; err != nil {
			return err
		}
		for i := range participants {
			participants[i].ConversationID = conv.ID
		}
		if len(participants) == 0 {
			return nil
		}
		return tx.Create(&participants).Error
	})
}

// GetConversation gets a conversation by ID; (nil, nil) when missing.
func (r *ConversationRepository) GetConversation(ctx context.Context, id uuid.UUID) (*models.Conversation, error) {
	var conv models.Conversation
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&conv).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &conv, nil
}

// DeactivateConversation flags a conversation inactive. Rows are never
// hard-deleted.
func (r *ConversationRepository) DeactivateConversation(ctx context.Context, id uuid.UUID) error {
	return r.db.WithContext(ctx).
		Model(&models.Conversation{}).
		Where("id = ?", id).
		Update("is_active", false).Error
}

// CreateParticipant inserts a participant row.
func (r *ConversationRepository) CreateParticipant(ctx context.Context, p *models.Participant) error {
	return r.db.WithContext(ctx).Create(p).Error
}

// FindActiveParticipant matches an active participant by identity key.
func (r *ConversationRepository) FindActiveParticipant(ctx context.Context, conversationID uuid.UUID, identity services.Identity) (*models.Participant, error) {
	var p models.Participant
	query := r.db.WithContext(ctx).
		Where("conversation_id = ? AND is_active = ?", conversationID, true)
	query = scopeIdentity(query, identity)

	err := query.First(&p).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &p, nil
}

// ListActiveParticipants lists active participants ordered by join time.
func (r *ConversationRepository) ListActiveParticipants(ctx context.Context, conversationID uuid.UUID) ([]models.Participant, error) {
	var participants []models.Participant
	err := r.db.WithContext(ctx).
		Where("conversation_id = ? AND is_active = ?", conversationID, true).
		Order("joined_at ASC, created_at ASC").
		Find(&participants).Error
	return participants, err
}

// MarkParticipantLeft soft-removes an active participant. Returns false when
// no active participant matched.
func (r *ConversationRepository) MarkParticipantLeft(ctx context.Context, conversationID uuid.UUID, identity services.Identity, at time.Time) (bool, error) {
	query := r.db.WithContext(ctx).
		Model(&models.Participant{}).
		Where("conversation_id = ? AND is_active = ?", conversationID, true)
	query = scopeIdentity(query, identity)

	result := query.Updates(map[string]interface{}{
		"is_active": false,
		"left_at":   at,
	})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// UpdateParticipantRouting stores a participant's routing number.
func (r *ConversationRepository) UpdateParticipantRouting(ctx context.Context, participantID uuid.UUID, routingNumber string) error {
	return r.db.WithContext(ctx).
		Model(&models.Participant{}).
		Where("id = ?", participantID).
		Update("routing_number", routingNumber).Error
}

// GetUser gets a user by ID; (nil, nil) when missing.
func (r *ConversationRepository) GetUser(ctx context.Context, id uuid.UUID) (*models.User, error) {
	var user models.User
	err := r.db.WithContext(ctx).Where("id = ? AND is_active = ?", id, true).First(&user).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &user, nil
}

// ListByUser lists conversations the user actively participates in, most
// recently active first, with pagination.
func (r *ConversationRepository) ListByUser(ctx context.Context, userID uuid.UUID, limit, offset int) (models.PaginationResult[models.Conversation], error) {
	var conversations []models.Conversation
	var total int64

	base := r.db.WithContext(ctx).
		Model(&models.Conversation{}).
		Joins("JOIN participants ON participants.conversation_id = conversations.id").
		Where("participants.user_id = ? AND participants.is_active = ? AND conversations.is_active = ?", userID, true, true)

	if err := base.Count(&total).Error; err != nil {
		return models.PaginationResult[models.Conversation]{}, err
	}

	err := base.
		Order("conversations.last_message_at DESC NULLS LAST, conversations.created_at DESC").
		Limit(limit).Offset(offset).
		Find(&conversations).Error
	if err != nil {
		return models.PaginationResult[models.Conversation]{}, err
	}

	page := 1
	totalPages := 1
	if limit > 0 {
		page = (offset / limit) + 1
		totalPages = int((total + int64(limit) - 1) / int64(limit))
	}

	return models.PaginationResult[models.Conversation]{
		Data:       conversations,
		Total:      total,
		Page:       page,
		PerPage:    limit,
		TotalPages: totalPages,
	}, nil
}

// scopeIdentity narrows a participant query to one identity key.
func scopeIdentity(query *gorm.DB, identity services.Identity) *gorm.DB {
	if identity.UserID != nil {
		return query.Where("kind = ? AND user_id = ?", models.ParticipantKindVirtual, *identity.UserID)
	}
	return query.Where("kind = ? AND phone = ?", models.ParticipantKindSMS, identity.Phone)
}
