package handlers

import (
	"crypto/rand"
	"encoding/hex"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"github.com/example/verdant/internal/config"
	"github.com/example/verdant/internal/middleware"
	"github.com/example/verdant/internal/models"
	"github.com/example/verdant/internal/session"
	"github.com/example/verdant/internal/utils"
)

// AuthHandler bundles dependencies for authentication endpoints.
type AuthHandler struct {
	db     *gorm.DB
	cfg    *config.Config
	ledger *session.Ledger
}

// NewAuthHandler constructs an AuthHandler.
func NewAuthHandler(db *gorm.DB, cfg *config.Config, ledger *session.Ledger) *AuthHandler {
	return &AuthHandler{db: db, cfg: cfg, ledger: ledger}
}

type registerRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Register creates a new user account and logs it in.
func (h *AuthHandler) Register(c *fiber.Ctx) error {
	var req registerRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	req.Email = normalizeEmail(req.Email)
	if req.Name == "" || req.Email == "" || req.Password == "" {
		return fiber.NewError(fiber.StatusBadRequest, "missing required fields")
	}
	if len(req.Password) < 6 {
		return fiber.NewError(fiber.StatusBadRequest, "password must be at least 6 characters")
	}

	var existing models.User
	if err := h.db.Where("email = ?", req.Email).First(&existing).Error; err == nil {
		return fiber.NewError(fiber.StatusConflict, "email already registered")
	} else if err != gorm.ErrRecordNotFound {
		return err
	}

	passwordHash, err := utils.HashPassword(req.Password)
	if err != nil {
		if err == utils.ErrLooksHashed {
			return fiber.NewError(fiber.StatusBadRequest, "password must be plaintext, not a hash")
		}
		return fiber.NewError(fiber.StatusInternalServerError, "failed to hash password")
	}

	verificationToken, err := randomToken()
	if err != nil {
		return fiber.NewError(fiber.StatusInternalServerError, "failed to generate verification token")
	}

	user := models.User{
		Name:              req.Name,
		Email:             req.Email,
		PasswordHash:      passwordHash,
		Role:              models.RoleUser,
		IsVerified:        h.cfg.AllowUnverified,
		VerificationToken: verificationToken,
	}

	if err := h.db.Create(&user).Error; err != nil {
		return conflictOn(err, "email already registered")
	}

	sess, err := h.ledger.Create(user.ID, c.Get(fiber.HeaderUserAgent), c.IP())
	if err != nil {
		return err
	}

	token, err := utils.GenerateToken(h.cfg.JWTSecret, user.ID, sess.JTI, h.cfg.TokenExpires)
	if err != nil {
		return fiber.NewError(fiber.StatusInternalServerError, "failed to generate token")
	}

	resp := fiber.Map{
		"success": true,
		"user": fiber.Map{
			"id":       user.ID,
			"name":     user.Name,
			"email":    user.Email,
			"is_admin": user.IsAdmin,
		},
		"token": token,
	}
	if h.cfg.ExposeDevTokens {
		resp["verification_token"] = verificationToken
	}

	return c.Status(fiber.StatusCreated).JSON(resp)
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Login authenticates an existing user and opens a new session. Five
// consecutive failures lock the account.
func (h *AuthHandler) Login(c *fiber.Ctx) error {
	var req loginRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	var user models.User
	if err := h.db.Where("email = ?", normalizeEmail(req.Email)).First(&user).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return fiber.NewError(fiber.StatusUnauthorized, "invalid credentials")
		}
		return err
	}

	now := time.Now()
	if user.Locked(now) {
		return fiber.NewError(fiber.StatusLocked, "account locked, try again later")
	}

	if !utils.CheckPassword(user.PasswordHash, req.Password) {
		return h.recordFailedAttempt(&user, now)
	}

	if !user.IsVerified && !h.cfg.AllowUnverified {
		return fiber.NewError(fiber.StatusUnauthorized, "please verify your email")
	}

	// Successful login clears the failure counter.
	if user.LoginAttempts > 0 || user.LockedUntil != nil {
		if err := h.db.Model(&models.User{}).Where("id = ?", user.ID).
			Updates(map[string]interface{}{
				"login_attempts": 0,
				"locked_until":   nil,
			}).Error; err != nil {
			return err
		}
	}

	sess, err := h.ledger.Create(user.ID, c.Get(fiber.HeaderUserAgent), c.IP())
	if err != nil {
		return err
	}

	if err := h.ledger.Prune(user.ID, h.cfg.SessionMax); err != nil {
		return err
	}

	token, err := utils.GenerateToken(h.cfg.JWTSecret, user.ID, sess.JTI, h.cfg.TokenExpires)
	if err != nil {
		return fiber.NewError(fiber.StatusInternalServerError, "failed to generate token")
	}

	return c.JSON(fiber.Map{
		"success": true,
		"user": fiber.Map{
			"id":       user.ID,
			"name":     user.Name,
			"email":    user.Email,
			"is_admin": user.IsAdmin,
		},
		"token": token,
	})
}

func (h *AuthHandler) recordFailedAttempt(user *models.User, now time.Time) error {
	attempts := user.LoginAttempts + 1
	updates := map[string]interface{}{"login_attempts": attempts}

	if attempts >= h.cfg.LockoutThreshold {
		lockedUntil := now.Add(h.cfg.LockoutDuration)
		updates["locked_until"] = lockedUntil
		updates["login_attempts"] = 0
	}

	if err := h.db.Model(&models.User{}).Where("id = ?", user.ID).
		Updates(updates).Error; err != nil {
		return err
	}

	if _, locked := updates["locked_until"]; locked {
		return fiber.NewError(fiber.StatusLocked, "account locked, try again later")
	}
	return fiber.NewError(fiber.StatusUnauthorized, "invalid credentials")
}

// Logout revokes the session the presented token references, or every
// session when the token carries no jti.
func (h *AuthHandler) Logout(c *fiber.Ctx) error {
	userID, ok := middleware.GetCurrentUserID(c)
	if !ok {
		return fiber.NewError(fiber.StatusUnauthorized, "unauthorized")
	}

	jti, ok := middleware.GetCurrentJTI(c)
	if !ok {
		if err := h.ledger.RevokeAll(userID); err != nil {
			return err
		}
		return c.JSON(fiber.Map{"success": true, "message": "logged out everywhere"})
	}

	if err := h.ledger.Revoke(userID, jti); err != nil && err != session.ErrNotFound {
		return err
	}

	return c.JSON(fiber.Map{"success": true, "message": "logged out"})
}

// ListSessions returns the caller's sessions, most recently used first.
func (h *AuthHandler) ListSessions(c *fiber.Ctx) error {
	userID, ok := middleware.GetCurrentUserID(c)
	if !ok {
		return fiber.NewError(fiber.StatusUnauthorized, "unauthorized")
	}

	sessions, err := h.ledger.List(userID)
	if err != nil {
		return err
	}

	currentJTI, _ := middleware.GetCurrentJTI(c)

	items := make([]fiber.Map, 0, len(sessions))
	for _, s := range sessions {
		items = append(items, fiber.Map{
			"jti":          s.JTI,
			"user_agent":   s.UserAgent,
			"ip":           s.IP,
			"created_at":   s.CreatedAt,
			"last_used_at": s.LastUsedAt,
			"revoked":      s.Revoked,
			"current":      s.JTI == currentJTI,
		})
	}

	return c.JSON(fiber.Map{"success": true, "sessions": items})
}

// RevokeSession revokes one session by jti.
func (h *AuthHandler) RevokeSession(c *fiber.Ctx) error {
	userID, ok := middleware.GetCurrentUserID(c)
	if !ok {
		return fiber.NewError(fiber.StatusUnauthorized, "unauthorized")
	}

	jti := c.Params("jti")
	if err := h.ledger.Revoke(userID, jti); err != nil {
		if err == session.ErrNotFound {
			return fiber.NewError(fiber.StatusNotFound, "session not found")
		}
		return err
	}

	return c.JSON(fiber.Map{"success": true, "message": "session revoked"})
}

// RevokeAllSessions revokes every session and moves the global-logout
// marker.
func (h *AuthHandler) RevokeAllSessions(c *fiber.Ctx) error {
	userID, ok := middleware.GetCurrentUserID(c)
	if !ok {
		return fiber.NewError(fiber.StatusUnauthorized, "unauthorized")
	}

	if err := h.ledger.RevokeAll(userID); err != nil {
		return err
	}

	return c.JSON(fiber.Map{"success": true, "message": "all sessions revoked"})
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func randomToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
