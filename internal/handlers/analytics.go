package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/example/verdant/internal/middleware"
	"github.com/example/verdant/internal/models"
)

// AnalyticsHandler ingests storefront events. This is the one route the
// authentication gate lets through without a token; anonymous events simply
// carry no user ID.
type AnalyticsHandler struct {
	db *gorm.DB
}

// NewAnalyticsHandler constructs AnalyticsHandler.
func NewAnalyticsHandler(db *gorm.DB) *AnalyticsHandler {
	return &AnalyticsHandler{db: db}
}

type eventRequest struct {
	Name     string `json:"name"`
	Path     string `json:"path"`
	Metadata string `json:"metadata"`
}

// CreateEvent records one analytics event.
func (h *AnalyticsHandler) CreateEvent(c *fiber.Ctx) error {
	var req eventRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}
	if req.Name == "" {
		return fiber.NewError(fiber.StatusBadRequest, "name is required")
	}

	var userID *uuid.UUID
	if id, ok := middleware.GetCurrentUserID(c); ok {
		userID = &id
	}

	event := models.AnalyticsEvent{
		UserID:   userID,
		Name:     req.Name,
		Path:     req.Path,
		Metadata: req.Metadata,
	}

	if err := h.db.Create(&event).Error; err != nil {
		return err
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"success": true, "data": fiber.Map{
		"id":   event.ID,
		"name": event.Name,
	}})
}
