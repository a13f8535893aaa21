package handlers

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/example/verdant/internal/models"
	"github.com/example/verdant/internal/pricing"
)

// TaxHandler manages tax rule administration and tax calculation.
type TaxHandler struct {
	db *gorm.DB
}

// NewTaxHandler constructs TaxHandler.
func NewTaxHandler(db *gorm.DB) *TaxHandler {
	return &TaxHandler{db: db}
}

// ListTaxRules returns all tax rules (admin only).
func (h *TaxHandler) ListTaxRules(c *fiber.Ctx) error {
	query := h.db.Model(&models.TaxRule{})
	if region := c.Query("region"); region != "" {
		query = query.Where("region = ?", normalizeRegion(region))
	}

	var items []models.TaxRule
	if err := query.Order("region asc, created_at desc").Find(&items).Error; err != nil {
		return err
	}

	return c.JSON(fiber.Map{"success": true, "data": items})
}

type taxRuleRequest struct {
	Name      string  `json:"name"`
	Region    string  `json:"region"`
	State     string  `json:"state"`
	Rate      float64 `json:"rate"`
	Type      string  `json:"type"`
	IsDefault bool    `json:"is_default"`
	Threshold float64 `json:"threshold"`
	IsActive  *bool   `json:"is_active"`
}

func (r *taxRuleRequest) validate() error {
	r.Region = normalizeRegion(r.Region)
	if r.Name == "" || r.Region == "" {
		return fiber.NewError(fiber.StatusBadRequest, "name and region are required")
	}

	if r.Type == "" {
		r.Type = pricing.TaxPercentage
	}
	switch r.Type {
	case pricing.TaxPercentage, pricing.TaxVAT, pricing.TaxSales, pricing.TaxGST:
		if r.Rate < 0 || r.Rate > 100 {
			return fiber.NewError(fiber.StatusBadRequest, "rate must be between 0 and 100")
		}
	case pricing.TaxFlat:
		if r.Rate < 0 {
			return fiber.NewError(fiber.StatusBadRequest, "rate must not be negative")
		}
	default:
		return fiber.NewError(fiber.StatusBadRequest, "unknown tax type")
	}

	return nil
}

// CreateTaxRule creates a tax rule (admin only). Setting is_default clears
// the flag on every other rule for the same region in the same transaction.
func (h *TaxHandler) CreateTaxRule(c *fiber.Ctx) error {
	var req taxRuleRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}
	if err := req.validate(); err != nil {
		return err
	}

	rule := models.TaxRule{
		Name:      req.Name,
		Region:    req.Region,
		State:     req.State,
		Rate:      req.Rate,
		Type:      req.Type,
		IsDefault: req.IsDefault,
		Threshold: req.Threshold,
		IsActive:  true,
	}
	if req.IsActive != nil {
		rule.IsActive = *req.IsActive
	}

	err := h.db.Transaction(func(tx *gorm.DB) error {
		if rule.IsDefault {
			if err := clearRegionDefault(tx, rule.Region, uuid.Nil); err != nil {
				return err
			}
		}
		return tx.Create(&rule).Error
	})
	if err != nil {
		return err
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"success": true, "data": rule})
}

// UpdateTaxRule updates a tax rule (admin only).
func (h *TaxHandler) UpdateTaxRule(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid id")
	}

	var rule models.TaxRule
	if err := h.db.First(&rule, "id = ?", id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return fiber.NewError(fiber.StatusNotFound, "tax rule not found")
		}
		return err
	}

	var req taxRuleRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}
	if err := req.validate(); err != nil {
		return err
	}

	rule.Name = req.Name
	rule.Region = req.Region
	rule.State = req.State
	rule.Rate = req.Rate
	rule.Type = req.Type
	rule.IsDefault = req.IsDefault
	rule.Threshold = req.Threshold
	if req.IsActive != nil {
		rule.IsActive = *req.IsActive
	}

	err = h.db.Transaction(func(tx *gorm.DB) error {
		if rule.IsDefault {
			if err := clearRegionDefault(tx, rule.Region, rule.ID); err != nil {
				return err
			}
		}
		return tx.Save(&rule).Error
	})
	if err != nil {
		return err
	}

	return c.JSON(fiber.Map{"success": true, "data": rule})
}

// DeleteTaxRule removes a tax rule (admin only).
func (h *TaxHandler) DeleteTaxRule(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid id")
	}

	if err := h.db.Delete(&models.TaxRule{}, "id = ?", id).Error; err != nil {
		return err
	}

	return c.SendStatus(fiber.StatusNoContent)
}

type calculateTaxRequest struct {
	Region   string  `json:"region"`
	Subtotal float64 `json:"subtotal"`
}

// CalculateTax applies the region's active default tax rule to a subtotal.
func (h *TaxHandler) CalculateTax(c *fiber.Ctx) error {
	var req calculateTaxRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	region := normalizeRegion(req.Region)
	if region == "" {
		return fiber.NewError(fiber.StatusBadRequest, "region is required")
	}
	if req.Subtotal < 0 {
		return fiber.NewError(fiber.StatusBadRequest, "subtotal must not be negative")
	}

	var rule models.TaxRule
	err := h.db.Where("region = ? AND is_default = ? AND is_active = ?", region, true, true).
		First(&rule).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return fiber.NewError(fiber.StatusNotFound, "no tax rule for region")
		}
		return err
	}

	quote, err := pricing.Tax(rule, req.Subtotal)
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}

	return c.JSON(fiber.Map{
		"success":    true,
		"tax_amount": quote.TaxAmount,
		"total":      quote.Total,
	})
}

// clearRegionDefault unsets is_default on every rule for the region except
// the one being written.
func clearRegionDefault(tx *gorm.DB, region string, except uuid.UUID) error {
	query := tx.Model(&models.TaxRule{}).Where("region = ? AND is_default = ?", region, true)
	if except != uuid.Nil {
		query = query.Where("id != ?", except)
	}
	return query.Update("is_default", false).Error
}

func normalizeRegion(region string) string {
	return strings.ToUpper(strings.TrimSpace(region))
}
