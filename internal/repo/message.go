package repo

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"carewire/pkg/models"
)

// MessageRepository handles message and delivery data access
type MessageRepository struct {
	db *gorm.DB
}

// NewMessageRepository creates a new message repository
func NewMessageRepository(db *gorm.DB) *MessageRepository {
	return &MessageRepository{db: db}
}

// CreateMessageWithDeliveries inserts a message and its per-recipient delivery
// rows in one transaction.
func (r *MessageRepository) CreateMessageWithDeliveries(ctx context.Context, msg *models.Message, deliveries []models.MessageDelivery) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(msg).Error; err != nil {
			return err
		}
		for i := range deliveries {
			deliveries[i].MessageID = msg.ID
		}
		if len(deliveries) == 0 {
			return nil
		}
		return tx.Create(&deliveries).Error
	})
}

// UpdateDelivery records the outcome of one delivery attempt.
func (r *MessageRepository) UpdateDelivery(ctx context.Context, delivery *models.MessageDelivery) error {
	return r.db.WithContext(ctx).
		Model(&models.MessageDelivery{}).
		Where("message_id = ? AND participant_id = ?", delivery.MessageID, delivery.ParticipantID).
		Updates(map[string]interface{}{
			"status":        delivery.Status,
			"provider_sid":  delivery.ProviderSID,
			"error_message": delivery.ErrorMessage,
		}).Error
}

// FinalizeMessage sets the message's aggregate status and bumps the
// conversation's last activity timestamp.
func (r *MessageRepository) FinalizeMessage(ctx context.Context, messageID, conversationID uuid.UUID, status string, at time.Time) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&models.Message{}).
			Where("id = ?", messageID).
			Update("status", status).Error; err != nil {
			return err
		}
		return tx.Model(&models.Conversation{}).
			Where("id = ?", conversationID).
			Update("last_message_at", at).Error
	})
}

// ListByConversation lists a conversation's messages, newest first, with
// pagination.
func (r *MessageRepository) ListByConversation(ctx context.Context, conversationID uuid.UUID, limit, offset int) (models.PaginationResult[models.Message], error) {
	var messages []models.Message
	var total int64

	base := r.db.WithContext(ctx).
		Model(&models.Message{}).
		Where("conversation_id = ?", conversationID)

	if err := base.Count(&total).Error; err != nil {
		return models.PaginationResult[models.Message]{}, err
	}

	err := base.
		Order("created_at DESC").
		Limit(limit).Offset(offset).
		Find(&messages).Error
	if err != nil {
		return models.PaginationResult[models.Message]{}, err
	}

	page := 1
	totalPages := 1
	if limit > 0 {
		page = (offset / limit) + 1
		totalPages = int((total + int64(limit) - 1) / int64(limit))
	}

	return models.PaginationResult[models.Message]{
		Data:       messages,
		Total:      total,
		Page:       page,
		PerPage:    limit,
		TotalPages: totalPages,
	}, nil
}

// ListDeliveries lists the delivery rows for a message.
func (r *MessageRepository) ListDeliveries(ctx context.Context, messageID uuid.UUID) ([]models.MessageDelivery, error) {
	var deliveries []models.MessageDelivery
	err := r.db.WithContext(ctx).
		Where("message_id = ?", messageID).
		Order("created_at ASC").
		Find(&deliveries).Error
	return deliveries, err
}

// FindActiveSMSParticipants finds active external participants whose phone
// matches, scoped to active conversations and ordered by conversation
// recency.
func (r *MessageRepository) FindActiveSMSParticipants(ctx context.Context, phone string) ([]models.Participant, error) {
	var participants []models.Participant
	err := r.db.WithContext(ctx).
		Model(&models.Participant{}).
		Joins("JOIN conversations ON conversations.id = participants.conversation_id").
		Where("participants.kind = ? AND participants.phone = ? AND participants.is_active = ? AND conversations.is_active = ?",
			models.ParticipantKindSMS, phone, true, true).
		Order("conversations.last_message_at DESC NULLS LAST, conversations.created_at DESC").
		Find(&participants).Error
	return participants, err
}

// HasActiveParticipantWithRouting reports whether the conversation has an
// active participant holding the given routing number.
func (r *MessageRepository) HasActiveParticipantWithRouting(ctx context.Context, conversationID uuid.UUID, routingNumber string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.Participant{}).
		Where("conversation_id = ? AND routing_number = ? AND is_active = ?", conversationID, routingNumber, true).
		Count(&count).Error
	return count > 0, err
}

// FindMessageByExternalID looks up a message by provider ID; (nil, nil) when
// missing.
func (r *MessageRepository) FindMessageByExternalID(ctx context.Context, externalID string) (*models.Message, error) {
	var msg models.Message
	err := r.db.WithContext(ctx).Where("external_id = ?", externalID).First(&msg).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &msg, nil
}

// AppendInbound stores an inbound message and bumps conversation activity in
// one transaction.
func (r *MessageRepository) AppendInbound(ctx context.Context, msg *models.Message, at time.Time) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(msg).Error; err != nil {
			return err
		}
		return tx.Model(&models.Conversation{}).
			Where("id = ?", msg.ConversationID).
			Update("last_message_at", at).Error
	})
}
