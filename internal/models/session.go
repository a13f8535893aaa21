package models

import (
	"time"

	"github.com/google/uuid"
)

// Session records one successful login. Sessions live in their own table,
// indexed by (user_id, jti), so revoking or touching one never rewrites the
// user row.
type Session struct {
	BaseModel
	UserID     uuid.UUID `gorm:"type:uuid;index:idx_sessions_user_jti,unique" json:"user_id"`
	JTI        string    `gorm:"size:64;index:idx_sessions_user_jti,unique" json:"jti"`
	UserAgent  string    `gorm:"type:text" json:"user_agent"`
	IP         string    `gorm:"size:64" json:"ip"`
	LastUsedAt time.Time `gorm:"index" json:"last_used_at"`
	Revoked    bool      `gorm:"index" json:"revoked"`
}

func (Session) TableName() string { return "sessions" }
