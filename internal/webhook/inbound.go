package webhook

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"carewire/pkg/models"
	"carewire/pkg/phone"
)

// InboundStore is the persistence surface the router needs. Find methods
// return (nil, nil) when nothing matches.
type InboundStore interface {
	// FindActiveSMSParticipants returns active sms-kind participants whose
	// routing number matches, restricted to active conversations and ordered
	// by conversation recency (most recently active first).
	FindActiveSMSParticipants(ctx context.Context, routingNumber string) ([]models.Participant, error)
	// HasActiveParticipantWithRouting reports whether the conversation has an
	// active participant routed via the given number.
	HasActiveParticipantWithRouting(ctx context.Context, conversationID uuid.UUID, routingNumber string) (bool, error)
	FindMessageByExternalID(ctx context.Context, externalID string) (*models.Message, error)
	// AppendInbound persists the message and bumps the conversation's
	// last-activity timestamp in one transaction.
	AppendInbound(ctx context.Context, msg *models.Message, at time.Time) error
}

// RoutedMessage is the outcome of successfully attributing an inbound SMS.
type RoutedMessage struct {
	Message        *models.Message
	ConversationID uuid.UUID
}

// InboundRouter resolves inbound SMS events to their owning conversation
// purely from phone numbers. An inbound message is attributed by the
// external sender's number, not the receiving virtual number: one virtual
// number can sit in many conversations at once, so the To number alone is
// not a reliable conversation key.
type InboundRouter struct {
	store      InboundStore
	normalizer *phone.Normalizer
	notifier   WebSocketNotifier
}

// NewInboundRouter creates a router.
func NewInboundRouter(store InboundStore, normalizer *phone.Normalizer) *InboundRouter {
	return &InboundRouter{store: store, normalizer: normalizer}
}

// SetNotifier sets the WebSocket notifier for real-time notifications.
func (r *InboundRouter) SetNotifier(notifier WebSocketNotifier) {
	r.notifier = notifier
}

// Route attributes one inbound SMS. A nil RoutedMessage with a nil error is
// the recognized unmatched outcome: the event is logged and the caller acks
// the provider normally, it is not an error. When the sender's number sits
// in several active conversations, the match is scoped by the To number and
// then by conversation recency.
func (r *InboundRouter) Route(ctx context.Context, fromRaw, toRaw, body, providerMessageID string) (*RoutedMessage, error) {
	from, err := r.normalizer.Normalize(fromRaw)
	if err != nil {
		log.Warn().Str("from", fromRaw).Err(err).Msg("inbound sms with unparseable sender, dropping")
		return nil, nil
	}

	// Replays of the same provider message attach to the original.
	if providerMessageID != "" {
		existing, err := r.store.FindMessageByExternalID(ctx, providerMessageID)
		if err != nil {
			return nil, fmt.Errorf("failed to check message id: %w", err)
		}
		if existing != nil {
			log.Debug().Str("external_id", providerMessageID).Msg("inbound sms replay ignored")
			return &RoutedMessage{Message: existing, ConversationID: existing.ConversationID}, nil
		}
	}

	candidates, err := r.store.FindActiveSMSParticipants(ctx, from)
	if err != nil {
		return nil, fmt.Errorf("failed to search participants: %w", err)
	}
	if len(candidates) == 0 {
		log.Warn().Str("from", from).Str("to", toRaw).Msg("inbound sms unmatched")
		return nil, nil
	}

	match := candidates[0]
	if len(candidates) > 1 {
		match = r.disambiguate(ctx, candidates, toRaw)
	}

	msg := &models.Message{
		ConversationID: match.ConversationID,
		SenderUserID:   nil, // external sender
		SenderName:     match.DisplayName,
		SenderPhone:    fromRaw,
		Direction:      models.MessageDirectionIn,
		Body:           body,
		Status:         models.MessageStatusReceived,
		ExternalID:     providerMessageID,
	}

	if err := r.store.AppendInbound(ctx, msg, time.Now()); err != nil {
		return nil, fmt.Errorf("failed to append inbound message: %w", err)
	}

	log.Info().
		Str("conversation_id", match.ConversationID.String()).
		Str("from", from).
		Str("message_id", msg.ID.String()).
		Msg("inbound sms routed")

	if r.notifier != nil {
		r.notifier.BroadcastNotification("message", map[string]interface{}{
			"type":            "new_message",
			"message_id":      msg.ID.String(),
			"conversation_id": match.ConversationID.String(),
			"sender_phone":    fromRaw,
			"body":            body,
		})
	}

	return &RoutedMessage{Message: msg, ConversationID: match.ConversationID}, nil
}

// disambiguate picks one conversation when the sender's number is an active
// participant in several: first a conversation that also contains the To
// virtual number, then the most recently active one. Candidates arrive
// recency-ordered from the store, so the first hit wins either way.
func (r *InboundRouter) disambiguate(ctx context.Context, candidates []models.Participant, toRaw string) models.Participant {
	to, err := r.normalizer.Normalize(toRaw)
	if err == nil {
		for _, c := range candidates {
			has, herr := r.store.HasActiveParticipantWithRouting(ctx, c.ConversationID, to)
			if herr != nil {
				log.Error().Err(herr).Str("conversation_id", c.ConversationID.String()).Msg("failed to scope inbound match by recipient number")
				break
			}
			if has {
				return c
			}
		}
	}

	log.Warn().
		Int("candidates", len(candidates)).
		Str("picked", candidates[0].ConversationID.String()).
		Msg("ambiguous inbound sms, picked most recently active conversation")
	return candidates[0]
}
