package identity

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/congo-pay/wallet_ledger/internal/apperr"
	"github.com/congo-pay/wallet_ledger/internal/ledger"
)

const provisionAttempts = 3

// Service manages identity lifecycle.
type Service struct {
	repo   Repository
	logger *slog.Logger
	now    func() time.Time
}

// NewService creates a new identity service.
func NewService(repo Repository, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, logger: logger, now: func() time.Time { return time.Now().UTC() }}
}

// Get returns the user with the given id.
func (s *Service) Get(ctx context.Context, id string) (User, error) {
	return s.repo.FindByID(ctx, id)
}

// SignIn resolves a provider profile to a user. First sign-in creates the
// user together with an empty wallet; created reports that case.
func (s *Service) SignIn(ctx context.Context, p Profile) (user User, created bool, err error) {
	p.Email = strings.ToLower(strings.TrimSpace(p.Email))
	if p.GoogleID == "" || p.Email == "" {
		return User{}, false, apperr.New(apperr.Unauthenticated, "identity provider returned an incomplete profile")
	}

	user, err = s.repo.FindByGoogleID(ctx, p.GoogleID)
	if err == nil {
		return s.refresh(ctx, user, p)
	}
	if !errors.Is(err, ErrUserNotFound) {
		return User{}, false, err
	}

	user, err = s.repo.FindByEmail(ctx, p.Email)
	if err == nil {
		return s.refresh(ctx, user, p)
	}
	if !errors.Is(err, ErrUserNotFound) {
		return User{}, false, err
	}

	for attempt := 0; attempt < provisionAttempts; attempt++ {
		user, err = s.provision(ctx, p)
		if err == nil {
			s.logger.Info("user provisioned", slog.String("user_id", user.ID))
			return user, true, nil
		}
		if !apperr.Is(err, apperr.Conflict) {
			return User{}, false, err
		}
		// A concurrent first sign-in may have won; otherwise the wallet number collided.
		if existing, findErr := s.repo.FindByGoogleID(ctx, p.GoogleID); findErr == nil {
			return existing, false, nil
		}
	}
	return User{}, false, err
}

func (s *Service) provision(ctx context.Context, p Profile) (User, error) {
	now := s.now()
	number, err := ledger.NewWalletNumber(now)
	if err != nil {
		return User{}, err
	}
	user := User{
		ID:        uuid.NewString(),
		Email:     p.Email,
		Name:      p.Name,
		Picture:   p.Picture,
		GoogleID:  p.GoogleID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	wallet := ledger.Wallet{
		ID:        uuid.NewString(),
		OwnerID:   user.ID,
		Number:    number,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.repo.CreateWithWallet(ctx, user, wallet); err != nil {
		return User{}, err
	}
	return user, nil
}

func (s *Service) refresh(ctx context.Context, user User, p Profile) (User, bool, error) {
	if user.GoogleID == p.GoogleID && user.Email == p.Email && user.Name == p.Name && user.Picture == p.Picture {
		return user, false, nil
	}
	user.GoogleID = p.GoogleID
	user.Email = p.Email
	user.Name = p.Name
	user.Picture = p.Picture
	user.UpdatedAt = s.now()
	if err := s.repo.UpdateProfile(ctx, user); err != nil {
		return User{}, false, err
	}
	return user, false, nil
}
