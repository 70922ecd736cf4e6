package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/wallet_ledger/internal/apikey"
	"github.com/congo-pay/wallet_ledger/internal/auth"
	"github.com/congo-pay/wallet_ledger/internal/middleware"
)

// RegisterAuthRoutes wires the public Google sign-in flow.
func RegisterAuthRoutes(r fiber.Router, h *auth.Handler) {
	group := r.Group("/auth")
	group.Get("/google", h.GoogleLogin)
	group.Get("/google/callback", h.GoogleCallback)
}

// RegisterSessionRoutes wires endpoints that act on the caller's own session.
// Logout only accepts bearer tokens.
func RegisterSessionRoutes(r fiber.Router, authn fiber.Handler, h *auth.Handler) {
	r.Post("/auth/logout", authn, middleware.RequireBearer(), h.Logout)
	r.Get("/me", authn, h.Me)
}

// RegisterKeyRoutes wires API key management. Keys cannot manage keys.
func RegisterKeyRoutes(r fiber.Router, authn fiber.Handler, h *apikey.Handler) {
	bearer := middleware.RequireBearer()
	r.Post("/keys/create", authn, bearer, h.Create)
	r.Post("/keys/rollover", authn, bearer, h.Rollover)
	r.Get("/keys", authn, bearer, h.List)
	r.Delete("/keys/:id", authn, bearer, h.Revoke)
}
