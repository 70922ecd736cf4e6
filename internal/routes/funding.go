package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/wallet_ledger/internal/auth"
	"github.com/congo-pay/wallet_ledger/internal/funding"
	"github.com/congo-pay/wallet_ledger/internal/middleware"
)

// RegisterWebhookRoutes wires the unauthenticated gateway callbacks. The
// payments path is kept for gateways configured before the wallet path existed.
func RegisterWebhookRoutes(r fiber.Router, h *funding.Handler) {
	r.Post("/wallet/paystack/webhook", h.Webhook)
	r.Post("/payments/paystack/webhook", h.Webhook)
}

// RegisterFundingRoutes wires deposit endpoints.
func RegisterFundingRoutes(r fiber.Router, authn fiber.Handler, h *funding.Handler) {
	r.Post("/wallet/deposit", authn, middleware.RequirePermission(auth.PermDeposit), h.Deposit)
	r.Get("/wallet/deposit/:reference/status", authn, middleware.RequirePermission(auth.PermRead), h.Status)
	r.Get("/wallet/deposit/:reference/verify", authn, middleware.RequirePermission(auth.PermRead), h.Verify)
}
