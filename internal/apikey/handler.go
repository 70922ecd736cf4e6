package apikey

import (
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/wallet_ledger/internal/apperr"
	"github.com/congo-pay/wallet_ledger/internal/auth"
)

// Handler exposes API key management. Routes are mounted behind bearer auth.
type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

type createRequest struct {
	Name        string   `json:"name"`
	Permissions []string `json:"permissions"`
	Expiry      string   `json:"expiry"`
}

type rolloverRequest struct {
	ExpiredKeyID string `json:"expired_key_id"`
	Expiry       string `json:"expiry"`
}

type keyResponse struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Permissions []string  `json:"permissions"`
	ExpiresAt   time.Time `json:"expires_at"`
	IsActive    bool      `json:"is_active"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func (h *Handler) Create(c *fiber.Ctx) error {
	p, err := auth.Current(c)
	if err != nil {
		return err
	}
	var req createRequest
	if err := c.BodyParser(&req); err != nil {
		return apperr.Wrap(apperr.InvalidOperation, "invalid request body", err)
	}
	issued, err := h.svc.Create(c.UserContext(), p.UserID, req.Name, req.Permissions, req.Expiry)
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(issued)
}

func (h *Handler) Rollover(c *fiber.Ctx) error {
	p, err := auth.Current(c)
	if err != nil {
		return err
	}
	var req rolloverRequest
	if err := c.BodyParser(&req); err != nil {
		return apperr.Wrap(apperr.InvalidOperation, "invalid request body", err)
	}
	issued, err := h.svc.Rollover(c.UserContext(), p.UserID, req.ExpiredKeyID, req.Expiry)
	if err != nil {
		return err
	}
	return c.Status(http.StatusOK).JSON(issued)
}

func (h *Handler) List(c *fiber.Ctx) error {
	p, err := auth.Current(c)
	if err != nil {
		return err
	}
	keys, err := h.svc.List(c.UserContext(), p.UserID)
	if err != nil {
		return err
	}
	out := make([]keyResponse, 0, len(keys))
	for _, k := range keys {
		out = append(out, keyResponse{
			ID:          k.ID,
			Name:        k.Name,
			Permissions: k.Permissions.Strings(),
			ExpiresAt:   k.ExpiresAt,
			IsActive:    k.Active,
			CreatedAt:   k.CreatedAt,
			UpdatedAt:   k.UpdatedAt,
		})
	}
	return c.JSON(out)
}

func (h *Handler) Revoke(c *fiber.Ctx) error {
	p, err := auth.Current(c)
	if err != nil {
		return err
	}
	if err := h.svc.Revoke(c.UserContext(), p.UserID, c.Params("id")); err != nil {
		return err
	}
	return c.SendStatus(http.StatusNoContent)
}
