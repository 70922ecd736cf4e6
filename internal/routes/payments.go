package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/wallet_ledger/internal/auth"
	"github.com/congo-pay/wallet_ledger/internal/middleware"
	"github.com/congo-pay/wallet_ledger/internal/payments"
)

// RegisterPaymentRoutes wires payment endpoints. idempotency may be nil.
func RegisterPaymentRoutes(r fiber.Router, authn fiber.Handler, h *payments.Handler, idempotency fiber.Handler) {
	handlers := []fiber.Handler{authn, middleware.RequirePermission(auth.PermTransfer)}
	if idempotency != nil {
		handlers = append(handlers, idempotency)
	}
	handlers = append(handlers, h.Transfer)
	r.Post("/wallet/transfer", handlers...)
}
