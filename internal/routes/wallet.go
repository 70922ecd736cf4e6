package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/wallet_ledger/internal/auth"
	"github.com/congo-pay/wallet_ledger/internal/middleware"
	"github.com/congo-pay/wallet_ledger/internal/wallet"
)

// RegisterWalletRoutes wires wallet read endpoints.
func RegisterWalletRoutes(r fiber.Router, authn fiber.Handler, h *wallet.Handler) {
	read := middleware.RequirePermission(auth.PermRead)
	r.Get("/wallet", authn, read, h.Get)
	r.Get("/wallet/balance", authn, read, h.Balance)
	r.Get("/wallet/transactions", authn, read, h.Transactions)
}
