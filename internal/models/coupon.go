package models

import "time"

// Coupon is a discount rule applied at checkout. Codes are stored upper-case
// and unique.
type Coupon struct {
	BaseModel
	Code            string     `gorm:"uniqueIndex;size:64" json:"code"`
	Type            string     `gorm:"size:16" json:"type"` // "percentage" or "fixed"
	Value           float64    `json:"value"`
	MinimumPurchase float64    `json:"minimum_purchase"`
	MaxDiscount     float64    `json:"max_discount"`
	ValidFrom       time.Time  `json:"valid_from"`
	ValidUntil      *time.Time `json:"valid_until"`
	MaxUsage        int        `json:"max_usage"`
	UsedCount       int        `json:"used_count"`
	IsActive        bool       `gorm:"default:true" json:"is_active"`
}
