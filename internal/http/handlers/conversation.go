package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"carewire/internal/http/middleware"
	"carewire/internal/repo"
	"carewire/internal/services"
	"carewire/pkg/models"
	"carewire/pkg/phone"
)

// ConversationHandler handles conversation operations
type ConversationHandler struct {
	directory        *services.ParticipantDirectory
	conversationRepo *repo.ConversationRepository
}

// NewConversationHandler creates a new conversation handler
func NewConversationHandler(directory *services.ParticipantDirectory, conversationRepo *repo.ConversationRepository) *ConversationHandler {
	return &ConversationHandler{
		directory:        directory,
		conversationRepo: conversationRepo,
	}
}

type CreateDirectRequest struct {
	UserID string `json:"user_id" validate:"required,uuid"`
}

type CreateSMSRequest struct {
	Phone       string `json:"phone" validate:"required"`
	DisplayName string `json:"display_name,omitempty"`
}

type MemberRequest struct {
	UserID      string `json:"user_id,omitempty" validate:"omitempty,uuid"`
	Phone       string `json:"phone,omitempty"`
	DisplayName string `json:"display_name,omitempty"`
}

type CreateGroupRequest struct {
	Name      string          `json:"name" validate:"required"`
	PatientID string          `json:"patient_id,omitempty" validate:"omitempty,uuid"`
	Members   []MemberRequest `json:"members" validate:"required,min=1,dive"`
}

type CreateGroupResponse struct {
	Conversation *models.Conversation      `json:"conversation"`
	Excluded     []services.ExcludedMember `json:"excluded,omitempty"`
}

// CreateDirect godoc
// @Summary Create direct conversation
// @Description Create a one-to-one conversation between the caller and another staff user
// @Tags conversations
// @Accept json
// @Produce json
// @Param request body CreateDirectRequest true "Other participant"
// @Success 201 {object} models.Conversation
// @Failure 400 {object} map[string]string
// @Failure 404 {object} map[string]string
// @Router /conversations/direct [post]
// @Security BearerAuth
func (h *ConversationHandler) CreateDirect(c echo.Context) error {
	creatorID, err := middleware.UserID(c)
	if err != nil {
		return err
	}

	var req CreateDirectRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request body"})
	}
	if err := c.Validate(req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	}

	otherID, err := uuid.Parse(req.UserID)
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid user_id"})
	}

	conv, err := h.directory.CreateDirect(c.Request().Context(), creatorID, otherID)
	if err != nil {
		return conversationError(c, err)
	}

	return c.JSON(http.StatusCreated, conv)
}

// CreateSMS godoc
// @Summary Create SMS conversation
// @Description Create a conversation with one external phone participant
// @Tags conversations
// @Accept json
// @Produce json
// @Param request body CreateSMSRequest true "External participant"
// @Success 201 {object} models.Conversation
// @Failure 400 {object} map[string]string
// @Router /conversations/sms [post]
// @Security BearerAuth
func (h *ConversationHandler) CreateSMS(c echo.Context) error {
	creatorID, err := middleware.UserID(c)
	if err != nil {
		return err
	}

	var req CreateSMSRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request body"})
	}
	if err := c.Validate(req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	}

	conv, err := h.directory.CreateSMS(c.Request().Context(), creatorID, req.Phone, req.DisplayName)
	if err != nil {
		return conversationError(c, err)
	}

	return c.JSON(http.StatusCreated, conv)
}

// CreateGroup godoc
// @Summary Create group conversation
// @Description Create a named group conversation, optionally linked to a patient
// @Tags conversations
// @Accept json
// @Produce json
// @Param request body CreateGroupRequest true "Group definition"
// @Success 201 {object} CreateGroupResponse
// @Failure 400 {object} map[string]string
// @Router /conversations/group [post]
// @Security BearerAuth
func (h *ConversationHandler) CreateGroup(c echo.Context) error {
	creatorID, err := middleware.UserID(c)
	if err != nil {
		return err
	}

	var req CreateGroupRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request body"})
	}
	if err := c.Validate(req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	}

	var patientID *uuid.UUID
	if req.PatientID != "" {
		id, err := uuid.Parse(req.PatientID)
		if err != nil {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid patient_id"})
		}
		patientID = &id
	}

	members := make([]services.Identity, 0, len(req.Members))
	for _, m := range req.Members {
		identity, err := memberIdentity(m)
		if err != nil {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
		}
		members = append(members, identity)
	}

	conv, excluded, err := h.directory.CreateGroup(c.Request().Context(), creatorID, req.Name, patientID, members)
	if err != nil {
		return conversationError(c, err)
	}

	return c.JSON(http.StatusCreated, CreateGroupResponse{
		Conversation: conv,
		Excluded:     excluded,
	})
}

// List godoc
// @Summary List conversations
// @Description Get the caller's active conversations with pagination
// @Tags conversations
// @Accept json
// @Produce json
// @Param limit query int false "Limit" default(20)
// @Param offset query int false "Offset" default(0)
// @Success 200 {object} models.PaginationResult[models.Conversation]
// @Failure 500 {object} map[string]string
// @Router /conversations [get]
// @Security BearerAuth
func (h *ConversationHandler) List(c echo.Context) error {
	userID, err := middleware.UserID(c)
	if err != nil {
		return err
	}

	limit, _ := strconv.Atoi(c.QueryParam("limit"))
	offset, _ := strconv.Atoi(c.QueryParam("offset"))
	if limit <= 0 {
		limit = 20
	}

	result, err := h.conversationRepo.ListByUser(c.Request().Context(), userID, limit, offset)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}

	return c.JSON(http.StatusOK, result)
}

// GetByID godoc
// @Summary Get conversation by ID
// @Tags conversations
// @Produce json
// @Param id path string true "Conversation ID"
// @Success 200 {object} models.Conversation
// @Failure 404 {object} map[string]string
// @Router /conversations/{id} [get]
// @Security BearerAuth
func (h *ConversationHandler) GetByID(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid conversation ID"})
	}

	conv, err := h.directory.Get(c.Request().Context(), id)
	if err != nil {
		return conversationError(c, err)
	}

	return c.JSON(http.StatusOK, conv)
}

// Deactivate godoc
// @Summary Deactivate conversation
// @Description Flag a conversation inactive so it stops routing messages
// @Tags conversations
// @Produce json
// @Param id path string true "Conversation ID"
// @Success 204
// @Failure 404 {object} map[string]string
// @Router /conversations/{id} [delete]
// @Security BearerAuth
func (h *ConversationHandler) Deactivate(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid conversation ID"})
	}

	if err := h.directory.Deactivate(c.Request().Context(), id); err != nil {
		return conversationError(c, err)
	}

	return c.NoContent(http.StatusNoContent)
}

// AddParticipant godoc
// @Summary Add participant
// @Description Add a staff user or external phone to an active conversation
// @Tags participants
// @Accept json
// @Produce json
// @Param id path string true "Conversation ID"
// @Param request body MemberRequest true "Participant identity"
// @Success 201 {object} models.Participant
// @Failure 403 {object} map[string]string
// @Failure 409 {object} map[string]string
// @Router /conversations/{id}/participants [post]
// @Security BearerAuth
func (h *ConversationHandler) AddParticipant(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid conversation ID"})
	}

	var req MemberRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request body"})
	}
	if err := c.Validate(req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	}

	identity, err := memberIdentity(req)
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	}

	participant, err := h.directory.AddParticipant(c.Request().Context(), id, identity)
	if err != nil {
		return conversationError(c, err)
	}

	return c.JSON(http.StatusCreated, participant)
}

// RemoveParticipant godoc
// @Summary Remove participant
// @Description Soft-remove a participant; past messages are untouched
// @Tags participants
// @Produce json
// @Param id path string true "Conversation ID"
// @Param key path string true "Participant user ID or phone"
// @Success 204
// @Failure 404 {object} map[string]string
// @Router /conversations/{id}/participants/{key} [delete]
// @Security BearerAuth
func (h *ConversationHandler) RemoveParticipant(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid conversation ID"})
	}

	if err := h.directory.RemoveParticipant(c.Request().Context(), id, c.Param("key")); err != nil {
		return conversationError(c, err)
	}

	return c.NoContent(http.StatusNoContent)
}

// ListParticipants godoc
// @Summary List active participants
// @Tags participants
// @Produce json
// @Param id path string true "Conversation ID"
// @Success 200 {array} models.Participant
// @Failure 404 {object} map[string]string
// @Router /conversations/{id}/participants [get]
// @Security BearerAuth
func (h *ConversationHandler) ListParticipants(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid conversation ID"})
	}

	participants, err := h.directory.ListActive(c.Request().Context(), id)
	if err != nil {
		return conversationError(c, err)
	}

	return c.JSON(http.StatusOK, participants)
}

// memberIdentity converts an API member payload into a service identity.
func memberIdentity(req MemberRequest) (services.Identity, error) {
	if req.UserID != "" {
		id, err := uuid.Parse(req.UserID)
		if err != nil {
			return services.Identity{}, errors.New("invalid user_id")
		}
		return services.Identity{UserID: &id, DisplayName: req.DisplayName}, nil
	}
	if req.Phone == "" {
		return services.Identity{}, errors.New("either user_id or phone is required")
	}
	return services.Identity{Phone: req.Phone, DisplayName: req.DisplayName}, nil
}

// conversationError maps service errors to HTTP responses.
func conversationError(c echo.Context, err error) error {
	switch {
	case errors.Is(err, services.ErrConversationNotFound),
		errors.Is(err, services.ErrParticipantNotFound):
		return c.JSON(http.StatusNotFound, map[string]string{"error": err.Error()})
	case errors.Is(err, services.ErrConsentDenied):
		return c.JSON(http.StatusForbidden, map[string]string{"error": err.Error()})
	case errors.Is(err, services.ErrDuplicateParticipant),
		errors.Is(err, services.ErrAlreadyAssigned):
		return c.JSON(http.StatusConflict, map[string]string{"error": err.Error()})
	case errors.Is(err, services.ErrConversationInactive):
		return c.JSON(http.StatusConflict, map[string]string{"error": err.Error()})
	case errors.Is(err, phone.ErrInvalidPhoneNumber):
		return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	case errors.Is(err, services.ErrAllocationExhausted):
		return c.JSON(http.StatusServiceUnavailable, map[string]string{"error": err.Error()})
	default:
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
}
