package wallet

import (
	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/wallet_ledger/internal/auth"
)

// Handler exposes wallet HTTP endpoints.
type Handler struct {
	service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

type walletResponse struct {
	ID           string `json:"id"`
	WalletNumber string `json:"wallet_number"`
	Balance      int64  `json:"balance"`
}

// Get returns the caller's wallet.
func (h *Handler) Get(c *fiber.Ctx) error {
	p, err := auth.Current(c)
	if err != nil {
		return err
	}
	w, err := h.service.Wallet(c.UserContext(), p.UserID)
	if err != nil {
		return err
	}
	return c.JSON(walletResponse{ID: w.ID, WalletNumber: w.Number, Balance: w.Balance})
}

// Balance returns the caller's balance.
func (h *Handler) Balance(c *fiber.Ctx) error {
	p, err := auth.Current(c)
	if err != nil {
		return err
	}
	b, err := h.service.Balance(c.UserContext(), p.UserID)
	if err != nil {
		return err
	}
	return c.JSON(b)
}

// Transactions returns the caller's history, newest first.
func (h *Handler) Transactions(c *fiber.Ctx) error {
	p, err := auth.Current(c)
	if err != nil {
		return err
	}
	entries, err := h.service.Transactions(c.UserContext(), p.UserID, c.QueryInt("limit", 0))
	if err != nil {
		return err
	}
	return c.JSON(entries)
}
