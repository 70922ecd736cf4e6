package payments

import (
	"net/http"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/wallet_ledger/internal/apperr"
	"github.com/congo-pay/wallet_ledger/internal/auth"
	"github.com/congo-pay/wallet_ledger/internal/ledger"
)

// Handler exposes payment endpoints.
type Handler struct {
	service *Service
}

// NewHandler constructs a payment handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

type transferRequest struct {
	RecipientWalletNumber string `json:"recipient_wallet_number"`
	Amount                int64  `json:"amount"`
}

type legResponse struct {
	ID        string    `json:"id"`
	Reference string    `json:"reference"`
	Amount    int64     `json:"amount"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
}

type transferResponse struct {
	Status        string      `json:"status"`
	Message       string      `json:"message"`
	Debit         legResponse `json:"debit"`
	Credit        legResponse `json:"credit"`
	SenderBalance int64       `json:"sender_balance"`
}

func leg(tx ledger.Transaction) legResponse {
	return legResponse{
		ID:        tx.ID,
		Reference: tx.Reference,
		Amount:    tx.Amount,
		Status:    string(tx.Status),
		CreatedAt: tx.CreatedAt,
	}
}

// Transfer processes a wallet-to-wallet transfer.
func (h *Handler) Transfer(c *fiber.Ctx) error {
	p, err := auth.Current(c)
	if err != nil {
		return err
	}
	var req transferRequest
	if err := c.BodyParser(&req); err != nil {
		return apperr.Wrap(apperr.InvalidOperation, "invalid request body", err)
	}
	number := strings.TrimSpace(req.RecipientWalletNumber)
	if number == "" {
		return apperr.New(apperr.InvalidOperation, "recipient_wallet_number is required")
	}

	res, err := h.service.Transfer(c.UserContext(), p.UserID, number, req.Amount)
	if err != nil {
		return err
	}

	return c.Status(http.StatusOK).JSON(transferResponse{
		Status:        "success",
		Message:       "Transfer completed",
		Debit:         leg(res.Debit),
		Credit:        leg(res.Credit),
		SenderBalance: res.SenderBalance,
	})
}
