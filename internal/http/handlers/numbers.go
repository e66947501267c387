package handlers

import (
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"carewire/internal/services"
	"carewire/pkg/phone"
)

// NumberHandler handles virtual number pool administration
type NumberHandler struct {
	allocator *services.NumberAllocator
}

// NewNumberHandler creates a new number handler
func NewNumberHandler(allocator *services.NumberAllocator) *NumberHandler {
	return &NumberHandler{allocator: allocator}
}

type AddNumberRequest struct {
	Number string `json:"number" validate:"required"`
}

// Add godoc
// @Summary Add number to pool
// @Description Register a provisioned number as available for assignment
// @Tags numbers
// @Accept json
// @Produce json
// @Param request body AddNumberRequest true "Number in any dialable format"
// @Success 201 {object} map[string]string
// @Failure 400 {object} map[string]string
// @Failure 409 {object} map[string]string
// @Router /numbers [post]
// @Security BearerAuth
func (h *NumberHandler) Add(c echo.Context) error {
	var req AddNumberRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request body"})
	}
	if err := c.Validate(req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	}

	number, err := h.allocator.AddToPool(c.Request().Context(), req.Number)
	if err != nil {
		return numberError(c, err)
	}

	return c.JSON(http.StatusCreated, map[string]string{"number": number})
}

// Remove godoc
// @Summary Remove number from pool
// @Description Remove an unassigned number from the pool
// @Tags numbers
// @Produce json
// @Param number path string true "Number"
// @Success 204
// @Failure 404 {object} map[string]string
// @Failure 409 {object} map[string]string
// @Router /numbers/{number} [delete]
// @Security BearerAuth
func (h *NumberHandler) Remove(c echo.Context) error {
	if err := h.allocator.RemoveFromPool(c.Request().Context(), c.Param("number")); err != nil {
		return numberError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// ListAvailable godoc
// @Summary List available numbers
// @Tags numbers
// @Produce json
// @Success 200 {array} models.VirtualNumber
// @Router /numbers/available [get]
// @Security BearerAuth
func (h *NumberHandler) ListAvailable(c echo.Context) error {
	numbers, err := h.allocator.ListAvailable(c.Request().Context())
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
	return c.JSON(http.StatusOK, numbers)
}

// ListAssigned godoc
// @Summary List assigned numbers
// @Tags numbers
// @Produce json
// @Success 200 {array} models.VirtualNumber
// @Router /numbers/assigned [get]
// @Security BearerAuth
func (h *NumberHandler) ListAssigned(c echo.Context) error {
	numbers, err := h.allocator.ListAssigned(c.Request().Context())
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
	return c.JSON(http.StatusOK, numbers)
}

// Release godoc
// @Summary Release a user's number
// @Description Return a staff user's assigned number to the pool
// @Tags numbers
// @Produce json
// @Param user_id path string true "User ID"
// @Success 200 {object} map[string]string
// @Failure 404 {object} map[string]string
// @Router /numbers/users/{user_id} [delete]
// @Security BearerAuth
func (h *NumberHandler) Release(c echo.Context) error {
	userID, err := uuid.Parse(c.Param("user_id"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid user ID"})
	}

	number, err := h.allocator.Release(c.Request().Context(), userID)
	if err != nil {
		return numberError(c, err)
	}

	return c.JSON(http.StatusOK, map[string]string{"number": number})
}

// numberError maps allocator errors to HTTP responses.
func numberError(c echo.Context, err error) error {
	switch {
	case errors.Is(err, services.ErrNumberNotFound):
		return c.JSON(http.StatusNotFound, map[string]string{"error": err.Error()})
	case errors.Is(err, services.ErrAlreadyAssigned):
		return c.JSON(http.StatusConflict, map[string]string{"error": err.Error()})
	case errors.Is(err, services.ErrAllocationExhausted):
		return c.JSON(http.StatusServiceUnavailable, map[string]string{"error": err.Error()})
	case errors.Is(err, phone.ErrInvalidPhoneNumber):
		return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	default:
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
}
