package models

import (
	"time"

	"gorm.io/gorm"
)

// Role determines what a user may do. It is the single source of truth for
// privileges; IsAdmin is derived from it and never written directly.
type Role string

const (
	RoleUser   Role = "user"
	RoleAdmin  Role = "admin"
	RoleSeller Role = "seller"
)

// User represents an account that can authenticate against the API.
type User struct {
	BaseModel
	Name         string `json:"name"`
	Email        string `gorm:"uniqueIndex" json:"email"`
	PasswordHash string `json:"-"`
	Role         Role   `gorm:"type:varchar(16);default:user" json:"role"`
	IsAdmin      bool   `gorm:"-" json:"is_admin"`

	IsVerified        bool   `json:"is_verified"`
	VerificationToken string `json:"-"`

	LoginAttempts int        `json:"-"`
	LockedUntil   *time.Time `json:"-"`

	// LastLogout invalidates every token issued at or before it.
	LastLogout        *time.Time `json:"-"`
	PasswordChangedAt *time.Time `json:"-"`

	ResetPasswordToken   string     `json:"-"`
	ResetPasswordExpires *time.Time `json:"-"`

	Sessions []Session `json:"sessions,omitempty"`
}

// AfterFind populates the derived admin flag.
func (u *User) AfterFind(tx *gorm.DB) error {
	u.IsAdmin = u.Role == RoleAdmin
	return nil
}

// BeforeSave keeps the derived flag consistent on copies serialized back to
// callers after a save.
func (u *User) BeforeSave(tx *gorm.DB) error {
	if u.Role == "" {
		u.Role = RoleUser
	}
	u.IsAdmin = u.Role == RoleAdmin
	return nil
}

// Locked reports whether the account is currently locked out.
func (u *User) Locked(now time.Time) bool {
	return u.LockedUntil != nil && u.LockedUntil.After(now)
}
