package models

import "github.com/google/uuid"

// AnalyticsEvent is a storefront event. Ingestion accepts anonymous
// submissions, so UserID may be nil.
type AnalyticsEvent struct {
	BaseModel
	UserID   *uuid.UUID `gorm:"type:uuid;index" json:"user_id"`
	Name     string     `gorm:"size:128;index" json:"name"`
	Path     string     `gorm:"size:255" json:"path"`
	Metadata string     `gorm:"type:text" json:"metadata"`
}
