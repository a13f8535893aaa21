package routes

import (
	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"github.com/example/verdant/internal/config"
	"github.com/example/verdant/internal/handlers"
	"github.com/example/verdant/internal/middleware"
	"github.com/example/verdant/internal/session"
)

// Register wires up all HTTP routes.
func Register(app *fiber.App, db *gorm.DB, cfg *config.Config, counters middleware.CounterStore) {
	ledger := session.NewLedger(db)

	authHandler := handlers.NewAuthHandler(db, cfg, ledger)
	resetHandler := handlers.NewPasswordResetHandler(db, cfg, ledger)
	profileHandler := handlers.NewProfileHandler(db)
	couponHandler := handlers.NewCouponHandler(db)
	taxHandler := handlers.NewTaxHandler(db)
	analyticsHandler := handlers.NewAnalyticsHandler(db)
	adminHandler := handlers.NewAdminHandler(db)

	authenticated := middleware.AuthMiddleware(db, cfg, ledger)
	adminOnly := middleware.AdminOnly(db)

	api := app.Group("/api", middleware.RateLimit(counters, "api", cfg.APIRateMax, cfg.APIRateWindow))

	// Auth routes carry a stricter limit on top of the general one.
	auth := api.Group("/auth", middleware.RateLimit(counters, "auth", cfg.AuthRateMax, cfg.AuthRateWindow))
	auth.Post("/register", authHandler.Register)
	auth.Post("/login", authHandler.Login)
	auth.Post("/logout", authenticated, authHandler.Logout)
	auth.Get("/sessions", authenticated, authHandler.ListSessions)
	auth.Delete("/sessions/:jti", authenticated, authHandler.RevokeSession)
	auth.Delete("/sessions", authenticated, authHandler.RevokeAllSessions)
	auth.Post("/forgot-password", resetHandler.ForgotPassword)
	auth.Put("/reset-password/:token", resetHandler.ResetPassword)
	auth.Get("/verify-email/:token", resetHandler.VerifyEmail)

	// Profile
	api.Get("/profile", authenticated, profileHandler.GetProfile)
	api.Put("/profile", authenticated, profileHandler.UpdateProfile)

	// Pricing
	api.Post("/coupons/validate", couponHandler.ValidateCoupon)
	api.Post("/coupons/apply", authenticated, couponHandler.ApplyCoupon)
	api.Post("/tax/calculate", taxHandler.CalculateTax)

	// Analytics ingestion; the gate itself admits anonymous posts here.
	api.Post("/analytics/events", authenticated, analyticsHandler.CreateEvent)

	// Admin
	admin := api.Group("/admin", authenticated, adminOnly)
	admin.Get("/stats", adminHandler.DashboardStats)

	admin.Get("/coupons", couponHandler.ListCoupons)
	admin.Post("/coupons", couponHandler.CreateCoupon)
	admin.Put("/coupons/:id", couponHandler.UpdateCoupon)
	admin.Delete("/coupons/:id", couponHandler.DeleteCoupon)

	admin.Get("/tax-rules", taxHandler.ListTaxRules)
	admin.Post("/tax-rules", taxHandler.CreateTaxRule)
	admin.Put("/tax-rules/:id", taxHandler.UpdateTaxRule)
	admin.Delete("/tax-rules/:id", taxHandler.DeleteTaxRule)
}
