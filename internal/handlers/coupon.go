package handlers

import (
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/example/verdant/internal/models"
	"github.com/example/verdant/internal/pricing"
	"github.com/example/verdant/internal/utils"
)

// CouponHandler manages coupon administration and checkout-time evaluation.
type CouponHandler struct {
	db *gorm.DB
}

// NewCouponHandler constructs CouponHandler.
func NewCouponHandler(db *gorm.DB) *CouponHandler {
	return &CouponHandler{db: db}
}

// ListCoupons returns all coupons with pagination.
func (h *CouponHandler) ListCoupons(c *fiber.Ctx) error {
	pg := utils.ParsePagination(c)

	var total int64
	if err := h.db.Model(&models.Coupon{}).Count(&total).Error; err != nil {
		return err
	}

	var items []models.Coupon
	if err := h.db.Order("created_at desc").
		Limit(pg.Limit).Offset(pg.Offset).
		Find(&items).Error; err != nil {
		return err
	}

	return c.JSON(fiber.Map{
		"success": true,
		"data":    items,
		"pagination": fiber.Map{
			"current_page":   pg.Page,
			"items_per_page": pg.Limit,
			"total_items":    total,
		},
	})
}

type couponRequest struct {
	Code            string     `json:"code"`
	Type            string     `json:"type"`
	Value           float64    `json:"value"`
	MinimumPurchase float64    `json:"minimum_purchase"`
	MaxDiscount     float64    `json:"max_discount"`
	ValidFrom       *time.Time `json:"valid_from"`
	ValidUntil      *time.Time `json:"valid_until"`
	MaxUsage        int        `json:"max_usage"`
	IsActive        *bool      `json:"is_active"`
}

func (r *couponRequest) validate() error {
	r.Code = strings.ToUpper(strings.TrimSpace(r.Code))
	if r.Code == "" {
		return fiber.NewError(fiber.StatusBadRequest, "code is required")
	}

	switch r.Type {
	case pricing.DiscountPercentage:
		if r.Value <= 0 || r.Value > 100 {
			return fiber.NewError(fiber.StatusBadRequest, "percentage value must be in (0,100]")
		}
	case pricing.DiscountFixed:
		if r.Value <= 0 {
			return fiber.NewError(fiber.StatusBadRequest, "fixed value must be positive")
		}
	default:
		return fiber.NewError(fiber.StatusBadRequest, "type must be percentage or fixed")
	}

	if r.ValidFrom != nil && r.ValidUntil != nil && !r.ValidUntil.After(*r.ValidFrom) {
		return fiber.NewError(fiber.StatusBadRequest, "valid_until must be after valid_from")
	}

	return nil
}

// CreateCoupon creates a coupon (admin only).
func (h *CouponHandler) CreateCoupon(c *fiber.Ctx) error {
	var req couponRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}
	if err := req.validate(); err != nil {
		return err
	}

	var existing models.Coupon
	if err := h.db.Where("code = ?", req.Code).First(&existing).Error; err == nil {
		return fiber.NewError(fiber.StatusConflict, "coupon code already exists")
	} else if err != gorm.ErrRecordNotFound {
		return err
	}

	coupon := models.Coupon{
		Code:            req.Code,
		Type:            req.Type,
		Value:           req.Value,
		MinimumPurchase: req.MinimumPurchase,
		MaxDiscount:     req.MaxDiscount,
		ValidFrom:       time.Now(),
		ValidUntil:      req.ValidUntil,
		MaxUsage:        req.MaxUsage,
		IsActive:        true,
	}
	if req.ValidFrom != nil {
		coupon.ValidFrom = *req.ValidFrom
	}
	if req.IsActive != nil {
		coupon.IsActive = *req.IsActive
	}

	if err := h.db.Create(&coupon).Error; err != nil {
		return conflictOn(err, "coupon code already exists")
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"success": true, "data": coupon})
}

// UpdateCoupon updates an existing coupon (admin only). used_count is not
// writable through this endpoint.
func (h *CouponHandler) UpdateCoupon(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid id")
	}

	var coupon models.Coupon
	if err := h.db.First(&coupon, "id = ?", id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return fiber.NewError(fiber.StatusNotFound, "coupon not found")
		}
		return err
	}

	var req couponRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}
	if err := req.validate(); err != nil {
		return err
	}

	coupon.Code = req.Code
	coupon.Type = req.Type
	coupon.Value = req.Value
	coupon.MinimumPurchase = req.MinimumPurchase
	coupon.MaxDiscount = req.MaxDiscount
	coupon.MaxUsage = req.MaxUsage
	if req.ValidFrom != nil {
		coupon.ValidFrom = *req.ValidFrom
	}
	coupon.ValidUntil = req.ValidUntil
	if req.IsActive != nil {
		coupon.IsActive = *req.IsActive
	}

	if err := h.db.Save(&coupon).Error; err != nil {
		return conflictOn(err, "coupon code already exists")
	}

	return c.JSON(fiber.Map{"success": true, "data": coupon})
}

// DeleteCoupon removes a coupon (admin only).
func (h *CouponHandler) DeleteCoupon(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid id")
	}

	if err := h.db.Delete(&models.Coupon{}, "id = ?", id).Error; err != nil {
		return err
	}

	return c.SendStatus(fiber.StatusNoContent)
}

type validateCouponRequest struct {
	Code      string  `json:"code"`
	CartTotal float64 `json:"cart_total"`
}

// ValidateCoupon previews a coupon against a cart total. It has no side
// effects; usage is only consumed by ApplyCoupon.
func (h *CouponHandler) ValidateCoupon(c *fiber.Ctx) error {
	coupon, quote, err := h.evaluate(c)
	if err != nil {
		return err
	}

	return c.JSON(fiber.Map{
		"success": true,
		"valid":   true,
		"coupon": fiber.Map{
			"code":            coupon.Code,
			"discount_amount": quote.DiscountAmount,
			"final_total":     quote.FinalTotal,
		},
	})
}

// ApplyCoupon evaluates a coupon and consumes one usage. The increment is a
// single conditional UPDATE so concurrent checkouts cannot exceed max_usage.
func (h *CouponHandler) ApplyCoupon(c *fiber.Ctx) error {
	coupon, quote, err := h.evaluate(c)
	if err != nil {
		return err
	}

	result := h.db.Model(&models.Coupon{}).
		Where("id = ? AND (max_usage = 0 OR used_count < max_usage)", coupon.ID).
		UpdateColumn("used_count", gorm.Expr("used_count + 1"))
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return fiber.NewError(fiber.StatusBadRequest, pricing.ErrUsageExhausted.Error())
	}

	return c.JSON(fiber.Map{
		"success": true,
		"valid":   true,
		"coupon": fiber.Map{
			"code":            coupon.Code,
			"discount_amount": quote.DiscountAmount,
			"final_total":     quote.FinalTotal,
		},
	})
}

func (h *CouponHandler) evaluate(c *fiber.Ctx) (*models.Coupon, pricing.Quote, error) {
	var req validateCouponRequest
	if err := c.BodyParser(&req); err != nil {
		return nil, pricing.Quote{}, fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	code := strings.ToUpper(strings.TrimSpace(req.Code))
	if code == "" {
		return nil, pricing.Quote{}, fiber.NewError(fiber.StatusBadRequest, "code is required")
	}
	if req.CartTotal < 0 {
		return nil, pricing.Quote{}, fiber.NewError(fiber.StatusBadRequest, "cart_total must not be negative")
	}

	var coupon models.Coupon
	if err := h.db.Where("code = ?", code).First(&coupon).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, pricing.Quote{}, fiber.NewError(fiber.StatusNotFound, "coupon not found")
		}
		return nil, pricing.Quote{}, err
	}

	quote, err := pricing.Discount(coupon, req.CartTotal, time.Now())
	if err != nil {
		return nil, pricing.Quote{}, fiber.NewError(fiber.StatusBadRequest, err.Error())
	}

	return &coupon, quote, nil
}
