package handlers

import (
	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"github.com/example/verdant/internal/models"
)

// AdminHandler manages admin-only analytics endpoints.
type AdminHandler struct {
	db *gorm.DB
}

// NewAdminHandler constructs AdminHandler.
func NewAdminHandler(db *gorm.DB) *AdminHandler {
	return &AdminHandler{db: db}
}

// DashboardStats returns aggregate statistics for the admin dashboard.
func (h *AdminHandler) DashboardStats(c *fiber.Ctx) error {
	var totalUsers int64
	if err := h.db.Model(&models.User{}).Count(&totalUsers).Error; err != nil {
		return err
	}

	var activeSessions int64
	if err := h.db.Model(&models.Session{}).
		Where("revoked = ?", false).
		Count(&activeSessions).Error; err != nil {
		return err
	}

	var totalCoupons int64
	if err := h.db.Model(&models.Coupon{}).Count(&totalCoupons).Error; err != nil {
		return err
	}

	// Coupon usage by code
	type usageCount struct {
		Code      string `json:"code"`
		UsedCount int64  `json:"used_count"`
	}
	var usage []usageCount
	if err := h.db.Model(&models.Coupon{}).
		Select("code, used_count").
		Where("used_count > 0").
		Order("used_count desc").
		Limit(10).
		Scan(&usage).Error; err != nil {
		return err
	}

	var totalEvents int64
	if err := h.db.Model(&models.AnalyticsEvent{}).Count(&totalEvents).Error; err != nil {
		return err
	}

	return c.JSON(fiber.Map{
		"success": true,
		"data": fiber.Map{
			"total_users":     totalUsers,
			"active_sessions": activeSessions,
			"total_coupons":   totalCoupons,
			"top_coupons":     usage,
			"total_events":    totalEvents,
		},
	})
}
