package apikey

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/congo-pay/wallet_ledger/internal/apperr"
	"github.com/congo-pay/wallet_ledger/internal/auth"
	"github.com/congo-pay/wallet_ledger/internal/config"
)

const indexLength = 8

var errInvalidKey = apperr.New(apperr.Unauthenticated, "invalid api key")

// Service issues, rotates, revokes and resolves API keys.
type Service struct {
	repo   Repository
	prefix string
	cost   int
	limit  int
	logger *slog.Logger
	now    func() time.Time
}

func NewService(repo Repository, cfg config.Config, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	cost := cfg.APIKeyHashCost
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	return &Service{
		repo:   repo,
		prefix: cfg.APIKeyPrefix,
		cost:   cost,
		limit:  cfg.MaxActiveAPIKeys,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Issued carries the plaintext key. It is returned once and never stored.
type Issued struct {
	ID        string    `json:"id"`
	APIKey    string    `json:"api_key"`
	ExpiresAt time.Time `json:"expires_at"`
}

func (s *Service) mint(userID, name string, perms auth.PermissionSet, ttl time.Duration, now time.Time) (Key, string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return Key{}, "", apperr.Wrap(apperr.Internal, "key entropy", err)
	}
	secret := base64.RawURLEncoding.EncodeToString(buf)
	plaintext := s.prefix + "_" + secret
	hash, err := bcrypt.GenerateFromPassword([]byte(plaintext), s.cost)
	if err != nil {
		return Key{}, "", apperr.Wrap(apperr.Internal, "hash key", err)
	}
	return Key{
		ID:          uuid.NewString(),
		UserID:      userID,
		Name:        name,
		Prefix:      secret[:indexLength],
		Hash:        string(hash),
		Permissions: perms,
		ExpiresAt:   now.Add(ttl),
		Active:      true,
		CreatedAt:   now,
		UpdatedAt:   now,
	}, plaintext, nil
}

// Create issues a new key with the given permissions and lifetime.
func (s *Service) Create(ctx context.Context, userID, name string, permissions []string, expiry string) (Issued, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Issued{}, apperr.New(apperr.InvalidOperation, "name is required")
	}
	perms, err := auth.ParsePermissions(permissions)
	if err != nil {
		return Issued{}, err
	}
	ttl, err := ParseExpiry(expiry)
	if err != nil {
		return Issued{}, err
	}
	now := s.now()
	key, plaintext, err := s.mint(userID, name, perms, ttl, now)
	if err != nil {
		return Issued{}, err
	}
	if err := s.repo.CreateWithLimit(ctx, key, s.limit, now); err != nil {
		return Issued{}, err
	}
	s.logger.Info("api key issued", slog.String("user_id", userID), slog.String("key_id", key.ID))
	return Issued{ID: key.ID, APIKey: plaintext, ExpiresAt: key.ExpiresAt}, nil
}

// Rollover replaces an expired key with a fresh one carrying the same name
// and permissions.
func (s *Service) Rollover(ctx context.Context, userID, expiredKeyID, expiry string) (Issued, error) {
	ttl, err := ParseExpiry(expiry)
	if err != nil {
		return Issued{}, err
	}
	now := s.now()
	var (
		issued Issued
		oldID  string
	)
	err = s.repo.Rollover(ctx, userID, expiredKeyID, s.limit, now, func(old Key) (Key, error) {
		if !old.Active {
			return Key{}, apperr.New(apperr.InvalidOperation, "api key has been revoked")
		}
		if !old.Expired(now) {
			return Key{}, apperr.New(apperr.InvalidOperation, "api key is not yet expired")
		}
		next, plaintext, err := s.mint(userID, old.Name, old.Permissions, ttl, now)
		if err != nil {
			return Key{}, err
		}
		oldID = old.ID
		issued = Issued{ID: next.ID, APIKey: plaintext, ExpiresAt: next.ExpiresAt}
		return next, nil
	})
	if err != nil {
		return Issued{}, err
	}
	s.logger.Info("api key rolled over", slog.String("user_id", userID), slog.String("from_key_id", oldID), slog.String("key_id", issued.ID))
	return issued, nil
}

func (s *Service) List(ctx context.Context, userID string) ([]Key, error) {
	return s.repo.ListByUser(ctx, userID)
}

// Revoke deactivates a key the caller owns.
func (s *Service) Revoke(ctx context.Context, userID, keyID string) error {
	if err := s.repo.Deactivate(ctx, userID, keyID, s.now()); err != nil {
		return err
	}
	s.logger.Info("api key revoked", slog.String("user_id", userID), slog.String("key_id", keyID))
	return nil
}

// Resolve maps a presented key to a principal holding exactly the key's
// permissions. The index prefix only narrows candidates; the hash decides.
func (s *Service) Resolve(ctx context.Context, plaintext string) (auth.Principal, error) {
	secret, ok := strings.CutPrefix(plaintext, s.prefix+"_")
	if !ok || len(secret) < indexLength {
		return auth.Principal{}, errInvalidKey
	}
	candidates, err := s.repo.FindByPrefix(ctx, secret[:indexLength])
	if err != nil {
		return auth.Principal{}, err
	}
	for _, k := range candidates {
		err := bcrypt.CompareHashAndPassword([]byte(k.Hash), []byte(plaintext))
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			continue
		}
		if err != nil {
			s.logger.Warn("unreadable api key hash", slog.String("key_id", k.ID), slog.Any("error", err))
			continue
		}
		if !k.Active {
			return auth.Principal{}, apperr.New(apperr.Forbidden, "api key has been revoked")
		}
		if k.Expired(s.now()) {
			return auth.Principal{}, apperr.New(apperr.Forbidden, "api key has expired")
		}
		return auth.Principal{UserID: k.UserID, Permissions: k.Permissions, Method: auth.MethodAPIKey, KeyID: k.ID}, nil
	}
	return auth.Principal{}, errInvalidKey
}
