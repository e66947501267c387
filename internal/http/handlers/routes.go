package handlers

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"carewire/internal/app"
	"carewire/internal/gateway"
	"carewire/internal/http/middleware"
	"carewire/internal/webhook"
)

// SetupRoutes sets up all API routes
func SetupRoutes(api *echo.Group, services *app.Services) {
	cfg := services.Config

	// WebSocket handler doubles as the inbound notification sink
	wsHandler := NewWebSocketHandler(cfg.JWTSecret)
	services.InboundRouter.SetNotifier(wsHandler)

	// Health check (no authentication required)
	api.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})

	// Inbound SMS webhook (provider-signed, no JWT)
	verifier := gateway.NewSignatureValidator(cfg.Twilio.AuthToken)
	smsWebhook := webhook.NewSMSWebhookHandler(services.InboundRouter, verifier, cfg.Twilio.WebhookURL)
	api.POST("/webhook/sms", smsWebhook.HandleInboundSMS)

	// WebSocket endpoint (handles authentication manually via query parameter)
	api.GET("/ws", wsHandler.HandleWebSocket)

	// Protected routes (require authentication)
	protected := api.Group("")
	protected.Use(middleware.JWTAuth(cfg.JWTSecret))

	conversationHandler := NewConversationHandler(services.Directory, services.ConversationRepo)
	protected.POST("/conversations/direct", conversationHandler.CreateDirect)
	protected.POST("/conversations/sms", conversationHandler.CreateSMS)
	protected.POST("/conversations/group", conversationHandler.CreateGroup)
	protected.GET("/conversations", conversationHandler.List)
	protected.GET("/conversations/:id", conversationHandler.GetByID)
	protected.DELETE("/conversations/:id", conversationHandler.Deactivate)
	protected.GET("/conversations/:id/participants", conversationHandler.ListParticipants)
	protected.POST("/conversations/:id/participants", conversationHandler.AddParticipant)
	protected.DELETE("/conversations/:id/participants/:key", conversationHandler.RemoveParticipant)

	messageHandler := NewMessageHandler(services.Fanout, services.MessageRepo)
	protected.POST("/conversations/:id/messages", messageHandler.Send)
	protected.GET("/conversations/:id/messages", messageHandler.List)
	protected.GET("/conversations/:id/messages/:message_id/deliveries", messageHandler.ListDeliveries)

	numberHandler := NewNumberHandler(services.Allocator)
	numbers := protected.Group("/numbers")
	numbers.POST("", numberHandler.Add)
	numbers.GET("/available", numberHandler.ListAvailable)
	numbers.GET("/assigned", numberHandler.ListAssigned)
	numbers.DELETE("/users/:user_id", numberHandler.Release)
	numbers.DELETE("/:number", numberHandler.Remove)
}
