package middleware

import (
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/example/verdant/internal/config"
	"github.com/example/verdant/internal/models"
	"github.com/example/verdant/internal/session"
	"github.com/example/verdant/internal/utils"
)

const (
	userContextKey      = "currentUser"
	userIDContextKey    = "currentUserID"
	jtiContextKey       = "currentJTI"
	anonymousContextKey = "anonymousRequest"

	// TokenCookie is the cookie accepted interchangeably with the
	// Authorization header.
	TokenCookie = "token"
)

// Anonymous analytics ingestion is the only route allowed through the gate
// without a token.
const (
	anonymousMethod = fiber.MethodPost
	anonymousPath   = "/api/analytics/events"
)

// AuthMiddleware authenticates requests. Checks run in a fixed order; each
// is a terminal failure on its own, and later checks assume earlier ones
// passed. Reordering them leaks information (e.g. reporting lockout for a
// token whose session was already revoked).
func AuthMiddleware(db *gorm.DB, cfg *config.Config, ledger *session.Ledger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		// 1. Extract the token: header first, cookie as fallback.
		token := extractToken(c)
		if token == "" {
			if c.Method() == anonymousMethod && c.Path() == anonymousPath {
				c.Locals(anonymousContextKey, true)
				return c.Next()
			}
			return fiber.NewError(fiber.StatusUnauthorized, "no token provided")
		}

		// 2. Signature and expiry.
		claims, err := utils.ParseToken(cfg.JWTSecret, token)
		if err != nil {
			if err == utils.ErrTokenExpired {
				return fiber.NewError(fiber.StatusUnauthorized, "token expired")
			}
			return fiber.NewError(fiber.StatusUnauthorized, "invalid token")
		}

		// 3. Resolve the subject. Unknown subjects always fail; there is
		// no bootstrap path that conjures users out of tokens.
		var user models.User
		if err := db.First(&user, "id = ?", claims.UserID).Error; err != nil {
			if err == gorm.ErrRecordNotFound {
				return fiber.NewError(fiber.StatusUnauthorized, "invalid token")
			}
			return err
		}

		var sess *models.Session
		if claims.JTI != "" {
			found, err := ledger.Find(user.ID, claims.JTI)
			if err != nil && err != session.ErrNotFound {
				return err
			}
			sess = found
		}

		// 4..8. Per-user guards over the loaded records.
		if guardErr := guardIdentity(&user, sess, claims, cfg.AllowUnverified, time.Now()); guardErr != nil {
			return guardErr
		}

		c.Locals(userContextKey, &user)
		c.Locals(userIDContextKey, user.ID)
		if claims.JTI != "" {
			c.Locals(jtiContextKey, claims.JTI)

			// Advisory bookkeeping; must never delay or fail the request.
			go func(userID uuid.UUID, jti string) {
				defer func() { _ = recover() }()
				ledger.Touch(userID, jti)
				_ = ledger.Cleanup(userID)
			}(user.ID, claims.JTI)
		}

		c.Set(fiber.HeaderCacheControl, "no-store, no-cache, must-revalidate, private")
		c.Set("Pragma", "no-cache")

		return c.Next()
	}
}

// guardIdentity runs the per-user checks of the gate over an already-loaded
// user and session. sess is nil when the token's jti matched no row. The
// order is fixed: session state is reported before account state so a dead
// session never leaks lockout or logout details.
func guardIdentity(user *models.User, sess *models.Session, claims *utils.TokenClaims, allowUnverified bool, now time.Time) *fiber.Error {
	// 4. Session must exist and not be revoked. Revocation is terminal;
	// there is no un-revoke path.
	if claims.JTI != "" {
		if sess == nil {
			return fiber.NewError(fiber.StatusUnauthorized, "session not found")
		}
		if sess.Revoked {
			return fiber.NewError(fiber.StatusUnauthorized, "session revoked")
		}
	}

	// 5. Unverified accounts cannot authenticate.
	if !user.IsVerified && !allowUnverified {
		return fiber.NewError(fiber.StatusUnauthorized, "please verify your email")
	}

	// 6. Tokens issued before a password change are dead.
	if user.PasswordChangedAt != nil && claims.IssuedAt.Before(*user.PasswordChangedAt) {
		return fiber.NewError(fiber.StatusUnauthorized, "password changed, please log in again")
	}

	// 7. Lockout is temporary and time-bound, hence 423 not 401.
	if user.Locked(now) {
		return fiber.NewError(fiber.StatusLocked, "account locked")
	}

	// 8. Global logout invalidates everything issued at or before it.
	if user.LastLogout != nil && !claims.IssuedAt.After(*user.LastLogout) {
		return fiber.NewError(fiber.StatusUnauthorized, "logged out, please log in again")
	}

	return nil
}

// AdminOnly asserts the authenticated user holds administrative privilege.
// It re-fetches the record so a role change mid-session takes effect
// immediately. Failures are 403: identity was already established upstream.
func AdminOnly(db *gorm.DB) fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID, ok := GetCurrentUserID(c)
		if !ok {
			return fiber.NewError(fiber.StatusForbidden, "not authorized as admin")
		}

		var user models.User
		if err := db.First(&user, "id = ?", userID).Error; err != nil {
			if err == gorm.ErrRecordNotFound {
				return fiber.NewError(fiber.StatusForbidden, "not authorized as admin")
			}
			return err
		}

		if user.Role != models.RoleAdmin && !user.IsAdmin {
			return fiber.NewError(fiber.StatusForbidden, "not authorized as admin")
		}

		return c.Next()
	}
}

// extractToken prefers the Authorization header but falls back to the
// cookie whenever the header is absent or does not parse as a Bearer
// credential; the two transports are interchangeable.
func extractToken(c *fiber.Ctx) string {
	authHeader := c.Get(fiber.HeaderAuthorization)
	if authHeader != "" {
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
			return strings.TrimSpace(parts[1])
		}
	}
	return c.Cookies(TokenCookie)
}

// GetCurrentUser returns the authenticated user attached by AuthMiddleware.
func GetCurrentUser(c *fiber.Ctx) (*models.User, bool) {
	user, ok := c.Locals(userContextKey).(*models.User)
	return user, ok && user != nil
}

// GetCurrentUserID extracts the authenticated user ID from context.
func GetCurrentUserID(c *fiber.Ctx) (uuid.UUID, bool) {
	if id, ok := c.Locals(userIDContextKey).(uuid.UUID); ok {
		return id, true
	}
	return uuid.Nil, false
}

// GetCurrentJTI returns the session identifier of the presented token.
func GetCurrentJTI(c *fiber.Ctx) (string, bool) {
	jti, ok := c.Locals(jtiContextKey).(string)
	return jti, ok && jti != ""
}

// IsAnonymous reports whether the request passed the gate via the anonymous
// analytics exception.
func IsAnonymous(c *fiber.Ctx) bool {
	anon, ok := c.Locals(anonymousContextKey).(bool)
	return ok && anon
}
