package auth

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/congo-pay/wallet_ledger/internal/apperr"
	"github.com/congo-pay/wallet_ledger/internal/identity"
)

// Service issues bearer tokens and resolves them back to principals.
type Service struct {
	tokens *TokenManager
	users  identity.Repository
	logger *slog.Logger
}

func NewService(tokens *TokenManager, users identity.Repository, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{tokens: tokens, users: users, logger: logger}
}

type Token struct {
	AccessToken string    `json:"access_token"`
	TokenType   string    `json:"token_type"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// Login issues an access token bound to the user's current token version.
func (s *Service) Login(user identity.User) (Token, error) {
	signed, exp, err := s.tokens.Issue(user.ID, user.TokenVersion)
	if err != nil {
		return Token{}, apperr.Wrap(apperr.Internal, "sign access token", err)
	}
	return Token{AccessToken: signed, TokenType: "bearer", ExpiresAt: exp.UTC()}, nil
}

// Authenticate verifies a bearer token. Tokens minted before the last logout
// carry a stale version and are rejected.
func (s *Service) Authenticate(ctx context.Context, bearer string) (Principal, error) {
	claims, err := s.tokens.Parse(strings.TrimSpace(bearer))
	if err != nil {
		return Principal{}, err
	}
	user, err := s.users.FindByID(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, identity.ErrUserNotFound) {
			return Principal{}, apperr.New(apperr.Unauthenticated, "invalid token")
		}
		return Principal{}, err
	}
	if user.TokenVersion != claims.Version {
		return Principal{}, apperr.New(apperr.Unauthenticated, "token revoked")
	}
	return Principal{UserID: user.ID, Permissions: AllPermissions, Method: MethodJWT}, nil
}

// Logout increments the token version so every outstanding token stops working.
func (s *Service) Logout(ctx context.Context, userID string) error {
	version, err := s.users.BumpTokenVersion(ctx, userID)
	if err != nil {
		return err
	}
	s.logger.Info("tokens revoked", slog.String("user_id", userID), slog.Int("token_version", version))
	return nil
}
