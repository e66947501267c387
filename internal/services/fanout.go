package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"carewire/internal/config"
	"carewire/internal/gateway"
	"carewire/pkg/models"
)

// DeliveryOutcome is the result of one per-recipient delivery attempt.
type DeliveryOutcome struct {
	ParticipantID uuid.UUID `json:"participant_id"`
	DisplayName   string    `json:"display_name"`
	RoutingNumber string    `json:"routing_number"`
	Success       bool      `json:"success"`
	ProviderSID   string    `json:"provider_sid,omitempty"`
	Error         string    `json:"error,omitempty"`
}

// DeliveryReport aggregates the per-recipient outcomes of one logical send.
// Partial failure is not an error condition: it is represented structurally
// here so callers can see exactly which recipients failed.
type DeliveryReport struct {
	MessageID uuid.UUID         `json:"message_id"`
	Status    string            `json:"status"`
	Outcomes  []DeliveryOutcome `json:"outcomes"`
}

// SucceededCount returns the number of successful deliveries.
func (r *DeliveryReport) SucceededCount() int {
	n := 0
	for _, o := range r.Outcomes {
		if o.Success {
			n++
		}
	}
	return n
}

// FanoutEngine turns one logical message into N independent per-recipient
// SMS deliveries through the gateway. Deliveries run concurrently under a
// bounded worker cap; one failure never aborts the rest, and the engine
// joins on every attempt before returning the report.
type FanoutEngine struct {
	conversations DirectoryStore
	messages      MessageStore
	allocator     *NumberAllocator
	gw            gateway.Gateway
	cfg           config.FanoutConfig
}

// NewFanoutEngine creates a fan-out engine.
func NewFanoutEngine(conversations DirectoryStore, messages MessageStore, allocator *NumberAllocator, gw gateway.Gateway, cfg config.FanoutConfig) *FanoutEngine {
	return &FanoutEngine{
		conversations: conversations,
		messages:      messages,
		allocator:     allocator,
		gw:            gw,
		cfg:           cfg,
	}
}

// Send fans body out to every active participant of the conversation except
// the sender. The sender must be an active internal participant; one without
// a routing number gets one assigned synchronously before dispatch. The
// message's aggregate status becomes "sent" when at least one delivery
// succeeded, "failed" otherwise; per-recipient outcomes are persisted on the
// delivery rows and returned in the report.
func (e *FanoutEngine) Send(ctx context.Context, conversationID, senderUserID uuid.UUID, body string) (*DeliveryReport, error) {
	conv, err := e.conversations.GetConversation(ctx, conversationID)
	if err != nil {
		return nil, fmt.Errorf("failed to load conversation: %w", err)
	}
	if conv == nil {
		return nil, fmt.Errorf("%w: %s", ErrConversationNotFound, conversationID)
	}
	if !conv.IsActive {
		return nil, fmt.Errorf("%w: %s", ErrConversationInactive, conversationID)
	}

	participants, err := e.conversations.ListActiveParticipants(ctx, conversationID)
	if err != nil {
		return nil, fmt.Errorf("failed to list participants: %w", err)
	}

	var sender *models.Participant
	recipients := make([]models.Participant, 0, len(participants))
	for i := range participants {
		p := participants[i]
		if p.Kind == models.ParticipantKindVirtual && p.UserID != nil && *p.UserID == senderUserID {
			sender = &participants[i]
			continue
		}
		recipients = append(recipients, p)
	}
	if sender == nil {
		return nil, fmt.Errorf("%w: sender %s", ErrParticipantNotFound, senderUserID)
	}

	if sender.RoutingNumber == "" {
		number, err := e.allocator.Assign(ctx, senderUserID)
		if err != nil {
			return nil, err
		}
		if err := e.conversations.UpdateParticipantRouting(ctx, sender.ID, number); err != nil {
			return nil, fmt.Errorf("failed to store sender routing number: %w", err)
		}
		sender.RoutingNumber = number
	}

	msg := &models.Message{
		ConversationID: conversationID,
		SenderUserID:   &senderUserID,
		SenderName:     sender.DisplayName,
		Direction:      models.MessageDirectionOut,
		Body:           body,
		Status:         models.MessageStatusPending,
	}
	deliveries := make([]models.MessageDelivery, len(recipients))
	for i, r := range recipients {
		deliveries[i] = models.MessageDelivery{
			ParticipantID: r.ID,
			Status:        models.DeliveryStatusPending,
		}
	}

	// The message and its pending deliveries are committed before any
	// gateway call; no store transaction spans the network.
	if err := e.messages.CreateMessageWithDeliveries(ctx, msg, deliveries); err != nil {
		return nil, fmt.Errorf("failed to persist message: %w", err)
	}

	// Recipients see who wrote the message even though many senders can
	// share one physical delivery number on their end.
	wireBody := fmt.Sprintf("%s: %s", sender.DisplayName, body)

	outcomes := make([]DeliveryOutcome, len(recipients))
	sem := make(chan struct{}, e.concurrency(len(recipients)))
	var wg sync.WaitGroup

	for i := range recipients {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			outcomes[i] = e.deliver(ctx, sender.RoutingNumber, &recipients[i], &deliveries[i], wireBody)
		}(i)
	}
	wg.Wait()

	status := models.MessageStatusFailed
	for _, o := range outcomes {
		if o.Success {
			status = models.MessageStatusSent
			break
		}
	}

	if err := e.messages.FinalizeMessage(ctx, msg.ID, conversationID, status, time.Now()); err != nil {
		return nil, fmt.Errorf("failed to finalize message: %w", err)
	}

	report := &DeliveryReport{MessageID: msg.ID, Status: status, Outcomes: outcomes}
	log.Info().
		Str("conversation_id", conversationID.String()).
		Str("message_id", msg.ID.String()).
		Int("recipients", len(recipients)).
		Int("succeeded", report.SucceededCount()).
		Str("status", status).
		Msg("fan-out complete")
	return report, nil
}

// deliver runs one gateway call under its own timeout and records the
// outcome on the delivery row. A timed-out or failed attempt is one failed
// outcome; the engine never retries on its own.
func (e *FanoutEngine) deliver(ctx context.Context, from string, recipient *models.Participant, delivery *models.MessageDelivery, body string) DeliveryOutcome {
	outcome := DeliveryOutcome{
		ParticipantID: recipient.ID,
		DisplayName:   recipient.DisplayName,
		RoutingNumber: recipient.RoutingNumber,
	}

	callCtx, cancel := context.WithTimeout(ctx, e.cfg.DeliveryTimeout)
	defer cancel()

	result, err := e.gw.SendSMS(callCtx, from, recipient.RoutingNumber, body)
	if err != nil {
		outcome.Error = err.Error()
		delivery.Status = models.DeliveryStatusFailed
		delivery.ErrorMessage = err.Error()
		log.Warn().
			Str("to", recipient.RoutingNumber).
			Str("message_id", delivery.MessageID.String()).
			Err(err).
			Msg("delivery failed")
	} else {
		outcome.Success = true
		outcome.ProviderSID = result.SID
		delivery.Status = models.DeliveryStatusSent
		delivery.ProviderSID = result.SID
	}

	if err := e.messages.UpdateDelivery(ctx, delivery); err != nil {
		log.Error().
			Str("message_id", delivery.MessageID.String()).
			Str("participant_id", delivery.ParticipantID.String()).
			Err(err).
			Msg("failed to record delivery outcome")
	}
	return outcome
}

func (e *FanoutEngine) concurrency(recipients int) int {
	if recipients < 1 {
		return 1
	}
	if recipients > e.cfg.MaxConcurrency {
		return e.cfg.MaxConcurrency
	}
	return recipients
}
