package handlers

import (
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"github.com/example/verdant/internal/config"
	"github.com/example/verdant/internal/models"
	"github.com/example/verdant/internal/session"
	"github.com/example/verdant/internal/utils"
)

// PasswordResetHandler manages forgot-password and email-verification
// endpoints.
type PasswordResetHandler struct {
	db     *gorm.DB
	cfg    *config.Config
	ledger *session.Ledger
}

// NewPasswordResetHandler constructs a PasswordResetHandler.
func NewPasswordResetHandler(db *gorm.DB, cfg *config.Config, ledger *session.Ledger) *PasswordResetHandler {
	return &PasswordResetHandler{db: db, cfg: cfg, ledger: ledger}
}

type forgotPasswordRequest struct {
	Email string `json:"email"`
}

// ForgotPassword starts the reset flow. The response is the same whether or
// not the address is registered, so the endpoint cannot be used to enumerate
// accounts.
func (h *PasswordResetHandler) ForgotPassword(c *fiber.Ctx) error {
	var req forgotPasswordRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}
	if req.Email == "" {
		return fiber.NewError(fiber.StatusBadRequest, "email is required")
	}

	genericResponse := fiber.Map{
		"success": true,
		"message": "if that email is registered, a reset link has been sent",
	}

	var user models.User
	if err := h.db.Where("email = ?", normalizeEmail(req.Email)).First(&user).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return c.JSON(genericResponse)
		}
		return err
	}

	resetToken, err := randomToken()
	if err != nil {
		return fiber.NewError(fiber.StatusInternalServerError, "failed to generate token")
	}

	// Only the hash is stored; a leaked users table yields no usable tokens.
	expires := time.Now().Add(h.cfg.ResetTokenTTL)
	if err := h.db.Model(&models.User{}).Where("id = ?", user.ID).
		Updates(map[string]interface{}{
			"reset_password_token":   hashToken(resetToken),
			"reset_password_expires": expires,
		}).Error; err != nil {
		return err
	}

	if h.cfg.ExposeDevTokens {
		genericResponse["reset_token"] = resetToken
	}

	return c.JSON(genericResponse)
}

type resetPasswordRequest struct {
	Password string `json:"password"`
}

// ResetPassword consumes a reset token and sets a new password. All existing
// sessions are revoked and previously issued tokens die via
// password_changed_at.
func (h *PasswordResetHandler) ResetPassword(c *fiber.Ctx) error {
	var req resetPasswordRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}
	if len(req.Password) < 6 {
		return fiber.NewError(fiber.StatusBadRequest, "password must be at least 6 characters")
	}

	tokenHash := hashToken(c.Params("token"))

	var user models.User
	err := h.db.Where("reset_password_token = ? AND reset_password_expires > ?", tokenHash, time.Now()).
		First(&user).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return fiber.NewError(fiber.StatusBadRequest, "invalid or expired reset token")
		}
		return err
	}

	passwordHash, err := utils.HashPassword(req.Password)
	if err != nil {
		if err == utils.ErrLooksHashed {
			return fiber.NewError(fiber.StatusBadRequest, "password must be plaintext, not a hash")
		}
		return fiber.NewError(fiber.StatusInternalServerError, "failed to hash password")
	}

	// The ε cutoff keeps a token minted in the same second as the reset
	// valid; iat claims are second-truncated.
	if err := h.db.Model(&models.User{}).Where("id = ?", user.ID).
		Updates(map[string]interface{}{
			"password_hash":          passwordHash,
			"password_changed_at":    session.InvalidationCutoff(time.Now()),
			"reset_password_token":   "",
			"reset_password_expires": nil,
			"login_attempts":         0,
			"locked_until":           nil,
		}).Error; err != nil {
		return err
	}

	if err := h.ledger.RevokeAll(user.ID); err != nil {
		return err
	}

	return c.JSON(fiber.Map{"success": true, "message": "password updated successfully"})
}

// VerifyEmail consumes a verification token and marks the account verified.
func (h *PasswordResetHandler) VerifyEmail(c *fiber.Ctx) error {
	token := c.Params("token")
	if token == "" {
		return fiber.NewError(fiber.StatusBadRequest, "verification token is required")
	}

	var user models.User
	if err := h.db.Where("verification_token = ?", token).First(&user).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return fiber.NewError(fiber.StatusBadRequest, "invalid verification token")
		}
		return err
	}

	if err := h.db.Model(&models.User{}).Where("id = ?", user.ID).
		Updates(map[string]interface{}{
			"is_verified":        true,
			"verification_token": "",
		}).Error; err != nil {
		return err
	}

	return c.JSON(fiber.Map{"success": true, "verified": true})
}

func hashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
