package models

// TaxRule defines how tax is computed for a region. At most one rule per
// region carries IsDefault; writes that set it clear the flag on siblings.
type TaxRule struct {
	BaseModel
	Name      string  `json:"name"`
	Region    string  `gorm:"index;size:64" json:"region"`
	State     string  `gorm:"size:64" json:"state"`
	Rate      float64 `json:"rate"`
	Type      string  `gorm:"size:16;default:percentage" json:"type"` // percentage, flat, vat, sales, gst
	IsDefault bool    `json:"is_default"`
	Threshold float64 `json:"threshold"`
	IsActive  bool    `gorm:"default:true" json:"is_active"`
}
