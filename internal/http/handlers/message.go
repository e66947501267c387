package handlers

import (
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"carewire/internal/http/middleware"
	"carewire/internal/repo"
	"carewire/internal/services"
)

// MessageHandler handles message operations
type MessageHandler struct {
	fanout      *services.FanoutEngine
	messageRepo *repo.MessageRepository
}

// NewMessageHandler creates a new message handler
func NewMessageHandler(fanout *services.FanoutEngine, messageRepo *repo.MessageRepository) *MessageHandler {
	return &MessageHandler{
		fanout:      fanout,
		messageRepo: messageRepo,
	}
}

type SendMessageRequest struct {
	Body string `json:"body" validate:"required,max=1600"`
}

// Send godoc
// @Summary Send message
// @Description Fan a message out to every other active participant
// @Tags messages
// @Accept json
// @Produce json
// @Param id path string true "Conversation ID"
// @Param request body SendMessageRequest true "Message body"
// @Success 201 {object} services.DeliveryReport
// @Failure 400 {object} map[string]string
// @Failure 404 {object} map[string]string
// @Router /conversations/{id}/messages [post]
// @Security BearerAuth
func (h *MessageHandler) Send(c echo.Context) error {
	userID, err := middleware.UserID(c)
	if err != nil {
		return err
	}

	conversationID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid conversation ID"})
	}

	var req SendMessageRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request body"})
	}
	if err := c.Validate(req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	}

	report, err := h.fanout.Send(c.Request().Context(), conversationID, userID, req.Body)
	if err != nil {
		return conversationError(c, err)
	}

	return c.JSON(http.StatusCreated, report)
}

// List godoc
// @Summary List messages by conversation
// @Description Get a conversation's messages, newest first, with pagination
// @Tags messages
// @Produce json
// @Param id path string true "Conversation ID"
// @Param limit query int false "Limit" default(20)
// @Param offset query int false "Offset" default(0)
// @Success 200 {object} models.PaginationResult[models.Message]
// @Failure 500 {object} map[string]string
// @Router /conversations/{id}/messages [get]
// @Security BearerAuth
func (h *MessageHandler) List(c echo.Context) error {
	conversationID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid conversation ID"})
	}

	limit, _ := strconv.Atoi(c.QueryParam("limit"))
	offset, _ := strconv.Atoi(c.QueryParam("offset"))
	if limit <= 0 {
		limit = 20
	}

	result, err := h.messageRepo.ListByConversation(c.Request().Context(), conversationID, limit, offset)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}

	return c.JSON(http.StatusOK, result)
}

// ListDeliveries godoc
// @Summary List message deliveries
// @Description Get the per-recipient delivery outcomes for a message
// @Tags messages
// @Produce json
// @Param id path string true "Conversation ID"
// @Param message_id path string true "Message ID"
// @Success 200 {array} models.MessageDelivery
// @Failure 400 {object} map[string]string
// @Router /conversations/{id}/messages/{message_id}/deliveries [get]
// @Security BearerAuth
func (h *MessageHandler) ListDeliveries(c echo.Context) error {
	messageID, err := uuid.Parse(c.Param("message_id"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid message ID"})
	}

	deliveries, err := h.messageRepo.ListDeliveries(c.Request().Context(), messageID)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}

	return c.JSON(http.StatusOK, deliveries)
}
