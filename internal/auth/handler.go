package auth

import (
	"errors"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/wallet_ledger/internal/apperr"
	"github.com/congo-pay/wallet_ledger/internal/identity"
	"github.com/congo-pay/wallet_ledger/internal/ledger"
)

const stateTTL = 10 * time.Minute

// Handler exposes sign-in, logout and profile endpoints.
type Handler struct {
	ids      *identity.Service
	provider identity.Provider
	states   StateStore
	svc      *Service
	wallets  ledger.Store
}

// NewHandler wires the auth endpoints. A nil provider disables Google sign-in.
func NewHandler(ids *identity.Service, provider identity.Provider, states StateStore, svc *Service, wallets ledger.Store) *Handler {
	return &Handler{ids: ids, provider: provider, states: states, svc: svc, wallets: wallets}
}

// Current returns the principal attached by the authentication middleware.
func Current(c *fiber.Ctx) (Principal, error) {
	p, ok := PrincipalFromContext(c.UserContext())
	if !ok {
		return Principal{}, apperr.New(apperr.Unauthenticated, "authentication required")
	}
	return p, nil
}

// GoogleLogin returns the consent page URL for the Google sign-in flow.
func (h *Handler) GoogleLogin(c *fiber.Ctx) error {
	if h.provider == nil {
		return apperr.New(apperr.GatewayUnavailable, "google sign-in is not configured")
	}
	state, err := newState()
	if err != nil {
		return apperr.Wrap(apperr.Internal, "generate oauth state", err)
	}
	if err := h.states.Save(c.UserContext(), state, stateTTL); err != nil {
		return err
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{"google_auth_url": h.provider.AuthCodeURL(state)})
}

type callbackResponse struct {
	UserID       string    `json:"user_id"`
	Email        string    `json:"email"`
	Name         string    `json:"name,omitempty"`
	AccessToken  string    `json:"access_token"`
	TokenType    string    `json:"token_type"`
	ExpiresAt    time.Time `json:"expires_at"`
	WalletNumber string    `json:"wallet_number,omitempty"`
	NewUser      bool      `json:"new_user"`
}

// GoogleCallback completes sign-in, provisioning the user and wallet on first use.
func (h *Handler) GoogleCallback(c *fiber.Ctx) error {
	if h.provider == nil {
		return apperr.New(apperr.GatewayUnavailable, "google sign-in is not configured")
	}
	ctx := c.UserContext()
	state := c.Query("state")
	if state == "" {
		return apperr.New(apperr.Unauthenticated, "missing oauth state")
	}
	ok, err := h.states.Consume(ctx, state)
	if err != nil {
		return err
	}
	if !ok {
		return apperr.New(apperr.Unauthenticated, "invalid or expired oauth state")
	}

	profile, err := h.provider.Exchange(ctx, c.Query("code"))
	if err != nil {
		return err
	}
	user, created, err := h.ids.SignIn(ctx, profile)
	if err != nil {
		return err
	}
	token, err := h.svc.Login(user)
	if err != nil {
		return err
	}
	resp := callbackResponse{
		UserID:      user.ID,
		Email:       user.Email,
		Name:        user.Name,
		AccessToken: token.AccessToken,
		TokenType:   token.TokenType,
		ExpiresAt:   token.ExpiresAt,
		NewUser:     created,
	}
	if w, err := h.wallets.WalletByOwner(ctx, user.ID); err == nil {
		resp.WalletNumber = w.Number
	}
	return c.Status(http.StatusOK).JSON(resp)
}

// Logout invalidates every outstanding token for the caller.
func (h *Handler) Logout(c *fiber.Ctx) error {
	p, err := Current(c)
	if err != nil {
		return err
	}
	if err := h.svc.Logout(c.UserContext(), p.UserID); err != nil {
		return err
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{"status": "logged_out"})
}

// Me returns the caller's profile.
func (h *Handler) Me(c *fiber.Ctx) error {
	p, err := Current(c)
	if err != nil {
		return err
	}
	user, err := h.ids.Get(c.UserContext(), p.UserID)
	if err != nil {
		if errors.Is(err, identity.ErrUserNotFound) {
			return apperr.New(apperr.Unauthenticated, "user not found")
		}
		return err
	}
	body := fiber.Map{
		"user_id":     user.ID,
		"email":       user.Email,
		"name":        user.Name,
		"picture":     user.Picture,
		"auth_method": p.Method,
		"permissions": p.Permissions.Strings(),
		"created_at":  user.CreatedAt,
	}
	if w, err := h.wallets.WalletByOwner(c.UserContext(), user.ID); err == nil {
		body["wallet_number"] = w.Number
	}
	return c.JSON(body)
}
