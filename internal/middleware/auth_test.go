package middleware

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/example/verdant/internal/config"
	"github.com/example/verdant/internal/models"
	"github.com/example/verdant/internal/session"
	"github.com/example/verdant/internal/utils"
)

// The guards below run before any database access, so the middleware can be
// exercised with a nil DB and ledger.
func gateApp(cfg *config.Config) *fiber.App {
	app := fiber.New()
	gate := AuthMiddleware(nil, cfg, nil)

	app.Get("/api/profile", gate, func(c *fiber.Ctx) error {
		return c.SendString("ok")
	})
	app.Post("/api/analytics/events", gate, func(c *fiber.Ctx) error {
		if IsAnonymous(c) {
			return c.SendString("anonymous")
		}
		return c.SendString("identified")
	})
	return app
}

func testConfig() *config.Config {
	return &config.Config{JWTSecret: "test-secret"}
}

func TestAuthMiddlewareNoToken(t *testing.T) {
	app := gateApp(testConfig())

	req := httptest.NewRequest(fiber.MethodGet, "/api/profile", nil)
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	if resp.StatusCode != fiber.StatusUnauthorized {
		t.Errorf("status = %d, want 401", resp.StatusCode)
	}

	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), "no token provided") {
		t.Errorf("body = %q, want a no-token message", body)
	}
}

func TestAuthMiddlewareAnonymousAnalytics(t *testing.T) {
	app := gateApp(testConfig())

	req := httptest.NewRequest(fiber.MethodPost, "/api/analytics/events", nil)
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	body, _ := io.ReadAll(resp.Body)
	if string(body) != "anonymous" {
		t.Errorf("body = %q, want anonymous identity", body)
	}
}

func TestAuthMiddlewareInvalidToken(t *testing.T) {
	app := gateApp(testConfig())

	req := httptest.NewRequest(fiber.MethodGet, "/api/profile", nil)
	req.Header.Set(fiber.HeaderAuthorization, "Bearer not-a-token")
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	if resp.StatusCode != fiber.StatusUnauthorized {
		t.Errorf("status = %d, want 401", resp.StatusCode)
	}

	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), "invalid token") {
		t.Errorf("body = %q, want an invalid-token message", body)
	}
}

func TestAuthMiddlewareExpiredToken(t *testing.T) {
	cfg := testConfig()
	app := gateApp(cfg)

	token, err := utils.GenerateToken(cfg.JWTSecret, uuid.New(), uuid.NewString(), -time.Minute)
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}

	req := httptest.NewRequest(fiber.MethodGet, "/api/profile", nil)
	req.Header.Set(fiber.HeaderAuthorization, "Bearer "+token)
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	if resp.StatusCode != fiber.StatusUnauthorized {
		t.Errorf("status = %d, want 401", resp.StatusCode)
	}

	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), "token expired") {
		t.Errorf("body = %q, want a token-expired message", body)
	}
}

func TestAuthMiddlewareWrongSecret(t *testing.T) {
	app := gateApp(testConfig())

	token, err := utils.GenerateToken("other-secret", uuid.New(), uuid.NewString(), time.Hour)
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}

	req := httptest.NewRequest(fiber.MethodGet, "/api/profile", nil)
	req.Header.Set(fiber.HeaderAuthorization, "Bearer "+token)
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	if resp.StatusCode != fiber.StatusUnauthorized {
		t.Errorf("status = %d, want 401", resp.StatusCode)
	}
}

func TestExtractTokenPrefersHeader(t *testing.T) {
	app := fiber.New()
	app.Get("/t", func(c *fiber.Ctx) error {
		return c.SendString(extractToken(c))
	})

	req := httptest.NewRequest(fiber.MethodGet, "/t", nil)
	req.Header.Set(fiber.HeaderAuthorization, "Bearer from-header")
	req.Header.Set("Cookie", TokenCookie+"=from-cookie")
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	if string(body) != "from-header" {
		t.Errorf("extracted %q, want the header token", body)
	}
}

func TestExtractTokenFallsBackOnMalformedHeader(t *testing.T) {
	// Header and cookie transports are interchangeable; a header that is
	// not a Bearer credential must not suppress a valid cookie.
	app := fiber.New()
	app.Get("/t", func(c *fiber.Ctx) error {
		return c.SendString(extractToken(c))
	})

	req := httptest.NewRequest(fiber.MethodGet, "/t", nil)
	req.Header.Set(fiber.HeaderAuthorization, "Token abc123")
	req.Header.Set("Cookie", TokenCookie+"=from-cookie")
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	if string(body) != "from-cookie" {
		t.Errorf("extracted %q, want the cookie token", body)
	}
}

func TestExtractTokenFromCookie(t *testing.T) {
	app := fiber.New()
	app.Get("/t", func(c *fiber.Ctx) error {
		return c.SendString(extractToken(c))
	})

	req := httptest.NewRequest(fiber.MethodGet, "/t", nil)
	req.Header.Set("Cookie", TokenCookie+"=from-cookie")
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	if string(body) != "from-cookie" {
		t.Errorf("extracted %q, want the cookie token", body)
	}
}

// Guard-sequence tests over already-loaded records (gate steps 4 through 8).

func verifiedUser() *models.User {
	return &models.User{IsVerified: true}
}

func tokenClaims(jti string, iat time.Time) *utils.TokenClaims {
	return &utils.TokenClaims{UserID: uuid.New(), JTI: jti, IssuedAt: iat}
}

func wantGuardFailure(t *testing.T, got *fiber.Error, code int, message string) {
	t.Helper()
	if got == nil {
		t.Fatalf("guard passed, want %d %q", code, message)
	}
	if got.Code != code {
		t.Errorf("code = %d, want %d", got.Code, code)
	}
	if got.Message != message {
		t.Errorf("message = %q, want %q", got.Message, message)
	}
}

func TestGuardIdentitySessionNotFound(t *testing.T) {
	claims := tokenClaims(uuid.NewString(), time.Now())

	got := guardIdentity(verifiedUser(), nil, claims, false, time.Now())
	wantGuardFailure(t, got, fiber.StatusUnauthorized, "session not found")
}

func TestGuardIdentityRevocationIsTerminal(t *testing.T) {
	claims := tokenClaims(uuid.NewString(), time.Now())
	sess := &models.Session{JTI: claims.JTI, Revoked: true}

	// Once revoked, the session fails forever; repeated presentation of
	// the same token keeps yielding 401, never a crash or a pass.
	for _, offset := range []time.Duration{0, time.Hour, 24 * time.Hour, 365 * 24 * time.Hour} {
		got := guardIdentity(verifiedUser(), sess, claims, false, time.Now().Add(offset))
		wantGuardFailure(t, got, fiber.StatusUnauthorized, "session revoked")
	}
}

func TestGuardIdentityRevokedReportedBeforeLockout(t *testing.T) {
	// Order matters: a dead session must not leak account state.
	now := time.Now()
	claims := tokenClaims(uuid.NewString(), now)
	sess := &models.Session{JTI: claims.JTI, Revoked: true}

	user := verifiedUser()
	lockedUntil := now.Add(10 * time.Minute)
	user.LockedUntil = &lockedUntil

	got := guardIdentity(user, sess, claims, false, now)
	wantGuardFailure(t, got, fiber.StatusUnauthorized, "session revoked")
}

func TestGuardIdentityUnverified(t *testing.T) {
	claims := tokenClaims(uuid.NewString(), time.Now())
	sess := &models.Session{JTI: claims.JTI}

	got := guardIdentity(&models.User{}, sess, claims, false, time.Now())
	wantGuardFailure(t, got, fiber.StatusUnauthorized, "please verify your email")

	if got := guardIdentity(&models.User{}, sess, claims, true, time.Now()); got != nil {
		t.Errorf("bootstrap mode rejected an unverified user: %v", got)
	}
}

func TestGuardIdentityPasswordChanged(t *testing.T) {
	now := time.Now()
	user := verifiedUser()
	changedAt := now.Add(-time.Hour)
	user.PasswordChangedAt = &changedAt

	claims := tokenClaims(uuid.NewString(), now.Add(-2*time.Hour))
	sess := &models.Session{JTI: claims.JTI}

	got := guardIdentity(user, sess, claims, false, now)
	wantGuardFailure(t, got, fiber.StatusUnauthorized, "password changed, please log in again")
}

func TestGuardIdentityTokenIssuedRightAfterPasswordReset(t *testing.T) {
	// iat claims are second-truncated, so a login in the same wall-clock
	// second as the reset mints a token whose iat can precede the reset
	// instant. The stored cutoff backs off by epsilon so that token lives.
	now := time.Now()
	user := verifiedUser()
	changedAt := session.InvalidationCutoff(now)
	user.PasswordChangedAt = &changedAt

	claims := tokenClaims(uuid.NewString(), now.Truncate(time.Second))
	sess := &models.Session{JTI: claims.JTI}

	if got := guardIdentity(user, sess, claims, false, now); got != nil {
		t.Errorf("token issued after the password reset rejected: %v", got)
	}
}

func TestGuardIdentityLockout(t *testing.T) {
	now := time.Now()
	claims := tokenClaims(uuid.NewString(), now)
	sess := &models.Session{JTI: claims.JTI}

	user := verifiedUser()
	lockedUntil := now.Add(10 * time.Minute)
	user.LockedUntil = &lockedUntil

	got := guardIdentity(user, sess, claims, false, now)
	wantGuardFailure(t, got, fiber.StatusLocked, "account locked")

	// An elapsed lock no longer blocks.
	expired := now.Add(-time.Minute)
	user.LockedUntil = &expired
	if got := guardIdentity(user, sess, claims, false, now); got != nil {
		t.Errorf("expired lockout still rejected: %v", got)
	}
}

func TestGuardIdentityGlobalLogout(t *testing.T) {
	now := time.Now()
	sess := &models.Session{Revoked: false}

	user := verifiedUser()
	lastLogout := now.Add(-time.Minute)
	user.LastLogout = &lastLogout

	// Tokens issued at or before the marker die even when their session
	// was never individually revoked.
	for _, iat := range []time.Time{lastLogout.Add(-time.Hour), lastLogout} {
		claims := tokenClaims(uuid.NewString(), iat)
		sess.JTI = claims.JTI
		got := guardIdentity(user, sess, claims, false, now)
		wantGuardFailure(t, got, fiber.StatusUnauthorized, "logged out, please log in again")
	}

	claims := tokenClaims(uuid.NewString(), lastLogout.Add(time.Second))
	sess.JTI = claims.JTI
	if got := guardIdentity(user, sess, claims, false, now); got != nil {
		t.Errorf("token issued after global logout rejected: %v", got)
	}
}

func TestGuardIdentityPasses(t *testing.T) {
	claims := tokenClaims(uuid.NewString(), time.Now())
	sess := &models.Session{JTI: claims.JTI}

	if got := guardIdentity(verifiedUser(), sess, claims, false, time.Now()); got != nil {
		t.Errorf("healthy identity rejected: %v", got)
	}
}
