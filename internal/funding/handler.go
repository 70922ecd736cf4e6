package funding

import (
	"log/slog"
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/wallet_ledger/internal/apperr"
	"github.com/congo-pay/wallet_ledger/internal/auth"
	"github.com/congo-pay/wallet_ledger/internal/ledger"
)

// Handler exposes deposit endpoints and the gateway webhook.
type Handler struct {
	service       *Service
	webhookSecret string
}

func NewHandler(service *Service, webhookSecret string) *Handler {
	return &Handler{service: service, webhookSecret: webhookSecret}
}

// Deposit opens a gateway checkout for the caller's wallet.
func (h *Handler) Deposit(c *fiber.Ctx) error {
	p, err := auth.Current(c)
	if err != nil {
		return err
	}
	var req DepositRequest
	if err := c.BodyParser(&req); err != nil {
		return apperr.Wrap(apperr.InvalidOperation, "invalid request body", err)
	}
	dep, err := h.service.InitiateDeposit(c.UserContext(), p.UserID, req.Amount)
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(dep)
}

func toStatus(tx ledger.Transaction) DepositStatusResponse {
	return DepositStatusResponse{
		Reference: tx.Reference,
		Status:    string(tx.Status),
		Amount:    tx.Amount,
		PaidAt:    tx.PaidAt,
		CreatedAt: tx.CreatedAt,
	}
}

// Status reports a deposit the caller owns.
func (h *Handler) Status(c *fiber.Ctx) error {
	p, err := auth.Current(c)
	if err != nil {
		return err
	}
	tx, err := h.service.DepositStatus(c.UserContext(), p.UserID, c.Params("reference"))
	if err != nil {
		return err
	}
	return c.JSON(toStatus(tx))
}

// Verify reports a deposit the caller owns together with the gateway's view.
func (h *Handler) Verify(c *fiber.Ctx) error {
	p, err := auth.Current(c)
	if err != nil {
		return err
	}
	tx, v, err := h.service.VerifyDeposit(c.UserContext(), p.UserID, c.Params("reference"))
	if err != nil {
		return err
	}
	return c.JSON(DepositVerifyResponse{
		DepositStatusResponse: toStatus(tx),
		GatewayStatus:         v.Status,
		GatewayData:           v.Raw,
	})
}

// Webhook authenticates and applies a gateway event. Once an event is
// decided the gateway always gets {"status": true}; store trouble yields 503
// so the gateway redelivers.
func (h *Handler) Webhook(c *fiber.Ctx) error {
	body := c.Body()
	signature := c.Get(signatureHeader)
	if signature == "" {
		h.service.metrics.WebhookEvent("missing_signature")
		return apperr.New(apperr.InvalidOperation, "missing paystack signature")
	}
	if !VerifySignature(h.webhookSecret, body, signature) {
		h.service.metrics.WebhookEvent("bad_signature")
		h.service.logger.Warn("webhook signature rejected", slog.String("ip", c.IP()))
		return apperr.New(apperr.InvalidOperation, "invalid signature")
	}

	ev, err := ParseEvent(body)
	if err != nil {
		return err
	}
	if _, err := h.service.HandleEvent(c.UserContext(), ev); err != nil {
		switch apperr.KindOf(err) {
		case apperr.Transient, apperr.StoreUnavailable:
			return c.Status(http.StatusServiceUnavailable).JSON(WebhookResponse{Status: false})
		default:
			return err
		}
	}
	return c.Status(http.StatusOK).JSON(WebhookResponse{Status: true})
}
