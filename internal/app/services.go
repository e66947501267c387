package app

import (
	"context"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"carewire/internal/config"
	"carewire/internal/gateway"
	"carewire/internal/repo"
	"carewire/internal/services"
	"carewire/internal/webhook"
	"carewire/pkg/phone"
)

// Services holds all application services
type Services struct {
	DB               *gorm.DB
	Config           *config.Config
	NumberRepo       *repo.VirtualNumberRepository
	ConversationRepo *repo.ConversationRepository
	MessageRepo      *repo.MessageRepository
	ConsentRepo      *repo.ConsentRepository
	Gateway          gateway.Gateway
	Normalizer       *phone.Normalizer
	Allocator        *services.NumberAllocator
	ConsentGate      *services.ConsentGate
	Directory        *services.ParticipantDirectory
	Fanout           *services.FanoutEngine
	InboundRouter    *webhook.InboundRouter
}

// NewServices creates a new services container
func NewServices(db *gorm.DB, cfg *config.Config) *Services {
	// Initialize repositories
	numberRepo := repo.NewVirtualNumberRepository(db)
	conversationRepo := repo.NewConversationRepository(db)
	messageRepo := repo.NewMessageRepository(db)
	consentRepo := repo.NewConsentRepository(db)

	// Outbound SMS goes through Twilio when credentials are present. The mock
	// gateway keeps local development working without an account.
	var gw gateway.Gateway
	if cfg.Twilio.AccountSID != "" && cfg.Twilio.AuthToken != "" {
		gw = gateway.NewTwilioGateway(cfg.Twilio.BaseURL, cfg.Twilio.AccountSID, cfg.Twilio.AuthToken)
		log.Info().Str("account_sid", cfg.Twilio.AccountSID).Msg("Using Twilio SMS gateway")
	} else {
		gw = gateway.NewMockGateway()
		log.Warn().Msg("TWILIO_ACCOUNT_SID not set, using mock SMS gateway")
	}

	normalizer := phone.NewNormalizer(cfg.Numbering.CallingCode)

	allocator := services.NewNumberAllocator(numberRepo, cfg.Numbering)
	if err := allocator.Seed(context.Background()); err != nil {
		log.Warn().Err(err).Msg("Failed to seed number allocator cache")
	}

	consentGate := services.NewConsentGate(consentRepo)
	directory := services.NewParticipantDirectory(conversationRepo, allocator, consentGate, normalizer)
	fanout := services.NewFanoutEngine(conversationRepo, messageRepo, allocator, gw, cfg.Fanout)
	inboundRouter := webhook.NewInboundRouter(messageRepo, normalizer)

	return &Services{
		DB:               db,
		Config:           cfg,
		NumberRepo:       numberRepo,
		ConversationRepo: conversationRepo,
		MessageRepo:      messageRepo,
		ConsentRepo:      consentRepo,
		Gateway:          gw,
		Normalizer:       normalizer,
		Allocator:        allocator,
		ConsentGate:      consentGate,
		Directory:        directory,
		Fanout:           fanout,
		InboundRouter:    inboundRouter,
	}
}
